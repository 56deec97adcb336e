package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/candle"
)

func memCandle(ts time.Time, close float64) candle.Candle {
	return candle.Candle{
		Timestamp: ts,
		Open:      close, High: close + 1, Low: close - 1, Close: close,
		Volume: 10, Symbol: "BTCUSDT", Timeframe: "15m",
	}
}

func TestMemorySaveAndGetCandles(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	// Out of order on purpose.
	require.NoError(t, m.SaveCandles(ctx, []candle.Candle{
		memCandle(start.Add(30*time.Minute), 102),
		memCandle(start, 100),
		memCandle(start.Add(15*time.Minute), 101),
	}))

	got, err := m.GetCandles(ctx, "BTCUSDT", "15m", start, start.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.InDelta(t, 100.0, got[0].Close, 1e-9)
	assert.InDelta(t, 102.0, got[2].Close, 1e-9)

	// [start, end) excludes the bar at the end boundary.
	got, err = m.GetCandles(ctx, "BTCUSDT", "15m", start, start.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestMemoryUpsertsSameBar(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, m.SaveCandles(ctx, []candle.Candle{memCandle(ts, 100)}))
	require.NoError(t, m.SaveCandles(ctx, []candle.Candle{memCandle(ts, 105)}))

	count, err := m.GetCandleCount(ctx, "BTCUSDT", "15m", ts, ts.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	latest, err := m.GetLatestCandle(ctx, "BTCUSDT", "15m")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.InDelta(t, 105.0, latest.Close, 1e-9)
}

func TestMemoryRejectsInvalidCandles(t *testing.T) {
	m := NewMemory()
	bad := memCandle(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), 100)
	bad.High = 0
	assert.Error(t, m.SaveCandles(context.Background(), []candle.Candle{bad}))
}

func TestMemoryGetLatestCandleEmpty(t *testing.T) {
	m := NewMemory()
	latest, err := m.GetLatestCandle(context.Background(), "BTCUSDT", "15m")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestMemoryDeleteCandles(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, m.SaveCandles(ctx, []candle.Candle{
		memCandle(start, 100),
		memCandle(start.Add(15*time.Minute), 101),
	}))
	require.NoError(t, m.DeleteCandles(ctx, "BTCUSDT", "15m", start.Add(10*time.Minute)))

	got, err := m.GetCandles(ctx, "BTCUSDT", "15m", start, start.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Timestamp.Equal(start.Add(15*time.Minute)))
}

func TestMemoryEvents(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, m.LogEvent(ctx, Event{
		Time: base, Type: "position_open", Symbol: "BTCUSDT", Description: "long qty=1",
	}))
	require.NoError(t, m.LogEvent(ctx, Event{
		Time: base.Add(time.Hour), Type: "position_close", Symbol: "BTCUSDT", Description: "stop_loss",
	}))

	opens, err := m.GetEvents(ctx, "position_open", base.Add(-time.Minute), base.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, opens, 1)
	assert.Equal(t, "BTCUSDT", opens[0].Symbol)

	// Type filter excludes the close event even inside the window.
	none, err := m.GetEvents(ctx, "position_open", base, base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, none, 1)
}

func TestMemoryLogEventDefaultsTime(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.LogEvent(context.Background(), Event{Type: "heartbeat"}))

	events, err := m.GetEvents(context.Background(), "heartbeat",
		time.Now().Add(-time.Minute), time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
