package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/candle"
)

// Memory is an in-memory Storage used in tests and when no DSN is configured.
type Memory struct {
	mu      sync.RWMutex
	candles map[string][]candle.Candle // symbol|timeframe -> sorted candles
	events  []Event
}

func NewMemory() *Memory {
	return &Memory{candles: make(map[string][]candle.Candle)}
}

func candleKey(symbol, timeframe string) string {
	return symbol + "|" + timeframe
}

func (m *Memory) SaveCandles(ctx context.Context, candles []candle.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	for i, c := range candles {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid candle at index %d: %w", i, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range candles {
		key := candleKey(c.Symbol, c.Timeframe)
		existing := m.candles[key]
		replaced := false
		for i := range existing {
			if existing[i].Timestamp.Equal(c.Timestamp) {
				existing[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, c)
		}
		candle.SortByTimestamp(existing)
		m.candles[key] = existing
	}
	return nil
}

func (m *Memory) GetCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]candle.Candle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []candle.Candle
	for _, c := range m.candles[candleKey(symbol, timeframe)] {
		if !c.Timestamp.Before(start) && c.Timestamp.Before(end) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) GetLatestCandle(ctx context.Context, symbol, timeframe string) (*candle.Candle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cs := m.candles[candleKey(symbol, timeframe)]
	if len(cs) == 0 {
		return nil, nil
	}
	c := cs[len(cs)-1]
	return &c, nil
}

func (m *Memory) GetCandleCount(ctx context.Context, symbol, timeframe string, start, end time.Time) (int, error) {
	cs, err := m.GetCandles(ctx, symbol, timeframe, start, end)
	if err != nil {
		return 0, err
	}
	return len(cs), nil
}

func (m *Memory) DeleteCandles(ctx context.Context, symbol, timeframe string, before time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := candleKey(symbol, timeframe)
	var kept []candle.Candle
	for _, c := range m.candles[key] {
		if !c.Timestamp.Before(before) {
			kept = append(kept, c)
		}
	}
	m.candles[key] = kept
	return nil
}

func (m *Memory) LogEvent(ctx context.Context, e Event) error {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *Memory) GetEvents(ctx context.Context, eventType string, start, end time.Time) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Event
	for _, e := range m.events {
		if e.Type == eventType && !e.Time.Before(start) && e.Time.Before(end) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
