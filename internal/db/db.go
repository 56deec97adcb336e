// Package db
package db

import (
	"context"
	"time"

	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/candle"
)

// Event is a journaled runtime occurrence: an order fill, a guard trip,
// a state snapshot, an error.
type Event struct {
	Time        time.Time `json:"time"`
	Type        string    `json:"type"`
	Symbol      string    `json:"symbol,omitempty"`
	Description string    `json:"description"`
	Data        any       `json:"data,omitempty"`
}

// Storage is the interface for persistent candle history and the event journal.
type Storage interface {
	SaveCandles(ctx context.Context, candles []candle.Candle) error
	GetCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]candle.Candle, error)
	GetLatestCandle(ctx context.Context, symbol, timeframe string) (*candle.Candle, error)
	GetCandleCount(ctx context.Context, symbol, timeframe string, start, end time.Time) (int, error)
	DeleteCandles(ctx context.Context, symbol, timeframe string, before time.Time) error

	LogEvent(ctx context.Context, e Event) error
	GetEvents(ctx context.Context, eventType string, start, end time.Time) ([]Event, error)

	Close() error
}
