// Package candle
package candle

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/tfutils"
)

type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
}

// IsComplete checks if the candle's interval has fully elapsed.
func (c *Candle) IsComplete() bool {
	now := time.Now().UTC()
	candleEnd := c.Timestamp.Add(tfutils.GetTimeframeDuration(c.Timeframe))
	return now.After(candleEnd)
}

// Validate checks if a candle has valid data
func (c *Candle) Validate() error {
	if c.Timestamp.IsZero() {
		return errors.New("candle timestamp is zero")
	}
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return errors.New("candle prices must be positive")
	}
	if c.High < c.Low {
		return errors.New("candle high cannot be less than low")
	}
	if c.Open < c.Low || c.Open > c.High {
		return errors.New("candle open price must be between high and low")
	}
	if c.Close < c.Low || c.Close > c.High {
		return errors.New("candle close price must be between high and low")
	}
	if c.Volume < 0 {
		return errors.New("candle volume cannot be negative")
	}
	if c.Symbol == "" {
		return errors.New("candle symbol cannot be empty")
	}
	if c.Timeframe == "" {
		return errors.New("candle timeframe cannot be empty")
	}
	return nil
}

// Series is an ordered, deduplicated run of candles for one symbol/timeframe.
type Series struct {
	Symbol    string
	Timeframe string
	Candles   []Candle
	maxLen    int
}

// NewSeries creates a series that keeps at most maxLen candles (0 = unbounded).
func NewSeries(symbol, timeframe string, maxLen int) *Series {
	return &Series{Symbol: symbol, Timeframe: timeframe, maxLen: maxLen}
}

// Append inserts a closed candle, replacing an existing candle with the same
// open time and dropping the oldest entries beyond the retention limit.
func (s *Series) Append(c Candle) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid candle: %w", err)
	}
	if c.Symbol != s.Symbol || c.Timeframe != s.Timeframe {
		return fmt.Errorf("candle %s/%s does not belong to series %s/%s", c.Symbol, c.Timeframe, s.Symbol, s.Timeframe)
	}

	c.Timestamp = tfutils.AlignToTimeframe(c.Timestamp, s.Timeframe)

	n := len(s.Candles)
	switch {
	case n == 0 || c.Timestamp.After(s.Candles[n-1].Timestamp):
		s.Candles = append(s.Candles, c)
	case c.Timestamp.Equal(s.Candles[n-1].Timestamp):
		s.Candles[n-1] = c
	default:
		// Out-of-order delivery: insert and re-sort.
		idx := sort.Search(n, func(i int) bool {
			return !s.Candles[i].Timestamp.Before(c.Timestamp)
		})
		if idx < n && s.Candles[idx].Timestamp.Equal(c.Timestamp) {
			s.Candles[idx] = c
		} else {
			s.Candles = append(s.Candles, Candle{})
			copy(s.Candles[idx+1:], s.Candles[idx:])
			s.Candles[idx] = c
		}
	}

	if s.maxLen > 0 && len(s.Candles) > s.maxLen {
		s.Candles = s.Candles[len(s.Candles)-s.maxLen:]
	}
	return nil
}

// Len returns the number of candles held.
func (s *Series) Len() int { return len(s.Candles) }

// Last returns the most recent candle, or nil if the series is empty.
func (s *Series) Last() *Candle {
	if len(s.Candles) == 0 {
		return nil
	}
	return &s.Candles[len(s.Candles)-1]
}

// SortByTimestamp orders candles ascending by open time.
func SortByTimestamp(candles []Candle) {
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
}

// Closes extracts the close column.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
