package candle

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCandle(ts time.Time) Candle {
	return Candle{
		Timestamp: ts,
		Open:      100, High: 101, Low: 99, Close: 100.5,
		Volume: 10, Symbol: "BTCUSDT", Timeframe: "15m",
	}
}

func TestCandleValidate(t *testing.T) {
	base := validCandle(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Candle)
	}{
		{"zero timestamp", func(c *Candle) { c.Timestamp = time.Time{} }},
		{"non-positive price", func(c *Candle) { c.Close = 0 }},
		{"high below low", func(c *Candle) { c.High = 98 }},
		{"open above high", func(c *Candle) { c.Open = 102 }},
		{"close below low", func(c *Candle) { c.Close = 98 }},
		{"negative volume", func(c *Candle) { c.Volume = -1 }},
		{"empty symbol", func(c *Candle) { c.Symbol = "" }},
		{"empty timeframe", func(c *Candle) { c.Timeframe = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestSeriesAppendOrdered(t *testing.T) {
	s := NewSeries("BTCUSDT", "15m", 0)
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Append(validCandle(start.Add(time.Duration(i)*15*time.Minute))))
	}
	assert.Equal(t, 3, s.Len())
	assert.True(t, s.Last().Timestamp.Equal(start.Add(30*time.Minute)))
}

func TestSeriesAppendReplacesSameBar(t *testing.T) {
	s := NewSeries("BTCUSDT", "15m", 0)
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append(validCandle(ts)))
	updated := validCandle(ts)
	updated.Close = 100.9
	updated.High = 101
	require.NoError(t, s.Append(updated))

	assert.Equal(t, 1, s.Len())
	assert.InDelta(t, 100.9, s.Last().Close, 1e-9)
}

func TestSeriesAppendOutOfOrder(t *testing.T) {
	s := NewSeries("BTCUSDT", "15m", 0)
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append(validCandle(start)))
	require.NoError(t, s.Append(validCandle(start.Add(30*time.Minute))))
	require.NoError(t, s.Append(validCandle(start.Add(15*time.Minute))))

	require.Equal(t, 3, s.Len())
	for i := 1; i < s.Len(); i++ {
		assert.True(t, s.Candles[i-1].Timestamp.Before(s.Candles[i].Timestamp))
	}
}

func TestSeriesRetentionLimit(t *testing.T) {
	s := NewSeries("BTCUSDT", "15m", 3)
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(validCandle(start.Add(time.Duration(i)*15*time.Minute))))
	}
	assert.Equal(t, 3, s.Len())
	// The oldest two were dropped.
	assert.True(t, s.Candles[0].Timestamp.Equal(start.Add(30*time.Minute)))
}

func TestSeriesRejectsForeignCandle(t *testing.T) {
	s := NewSeries("BTCUSDT", "15m", 0)
	c := validCandle(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	c.Symbol = "ETHUSDT"
	assert.Error(t, s.Append(c))

	c = validCandle(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	c.Timeframe = "1h"
	assert.Error(t, s.Append(c))
}

func TestSeriesTruncatesTimestamps(t *testing.T) {
	s := NewSeries("BTCUSDT", "15m", 0)
	ragged := time.Date(2024, 3, 1, 0, 7, 31, 0, time.UTC)

	require.NoError(t, s.Append(validCandle(ragged)))
	assert.True(t, s.Last().Timestamp.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
}

func TestCloses(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	c1 := validCandle(start)
	c2 := validCandle(start.Add(15 * time.Minute))
	c2.Close = 101

	assert.Equal(t, []float64{100.5, 101}, Closes([]Candle{c1, c2}))
}

func TestCandleIsComplete(t *testing.T) {
	past := validCandle(time.Now().UTC().Add(-time.Hour))
	assert.True(t, past.IsComplete())

	forming := validCandle(time.Now().UTC().Add(-time.Minute))
	assert.False(t, forming.IsComplete())
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCSV(t *testing.T) {
	path := writeCSV(t, "timestamp,open,high,low,close,volume\n"+
		"2024-03-01 00:15:00,101,102,100,101.5,20\n"+
		"2024-03-01 00:00:00,100,101,99,100.5,10\n")

	candles, err := LoadCSV(path, "BTCUSDT", "15m")
	require.NoError(t, err)
	require.Len(t, candles, 2)

	// Rows come back sorted regardless of file order.
	assert.True(t, candles[0].Timestamp.Before(candles[1].Timestamp))
	assert.InDelta(t, 100.5, candles[0].Close, 1e-9)
	assert.Equal(t, "BTCUSDT", candles[0].Symbol)
	assert.Equal(t, "15m", candles[0].Timeframe)
}

func TestLoadCSVUnixMillis(t *testing.T) {
	path := writeCSV(t, "timestamp,open,high,low,close,volume\n"+
		"1709251200000,100,101,99,100.5,10\n")

	candles, err := LoadCSV(path, "BTCUSDT", "15m")
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, int64(1709251200), candles[0].Timestamp.Unix())
}

func TestLoadCSVErrors(t *testing.T) {
	t.Run("missing column", func(t *testing.T) {
		path := writeCSV(t, "timestamp,open,high,low,close\n"+
			"2024-03-01 00:00:00,100,101,99,100.5\n")
		_, err := LoadCSV(path, "BTCUSDT", "15m")
		assert.ErrorContains(t, err, "volume")
	})

	t.Run("bad price", func(t *testing.T) {
		path := writeCSV(t, "timestamp,open,high,low,close,volume\n"+
			"2024-03-01 00:00:00,abc,101,99,100.5,10\n")
		_, err := LoadCSV(path, "BTCUSDT", "15m")
		assert.Error(t, err)
	})

	t.Run("invalid candle", func(t *testing.T) {
		path := writeCSV(t, "timestamp,open,high,low,close,volume\n"+
			"2024-03-01 00:00:00,100,99,101,100.5,10\n")
		_, err := LoadCSV(path, "BTCUSDT", "15m")
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadCSV(filepath.Join(t.TempDir(), "nope.csv"), "BTCUSDT", "15m")
		assert.Error(t, err)
	})
}
