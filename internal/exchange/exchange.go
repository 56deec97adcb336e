// Package exchange provides execution and market data adapters for
// USDT-margined futures venues.
package exchange

import (
	"context"

	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/candle"
)

// OrderSide is the direction of a market order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OpenPosition is a position reported by the venue. Qty is signed:
// positive for long, negative for short.
type OpenPosition struct {
	Symbol     string
	Qty        float64
	EntryPrice float64
}

// Exchange places orders and reports account state.
type Exchange interface {
	// Name identifies the adapter in logs.
	Name() string

	// Init prepares the adapter for trading (loads symbol filters,
	// verifies connectivity).
	Init(ctx context.Context) error

	// SetLeverage configures the leverage used for a symbol.
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// CreateMarketOrder submits a market order. Quantity is in base
	// asset units; reduceOnly marks the order as position-reducing.
	CreateMarketOrder(ctx context.Context, symbol string, side OrderSide, qty float64, reduceOnly bool) error

	// GetOpenPositions returns all positions with non-zero quantity.
	GetOpenPositions(ctx context.Context) ([]OpenPosition, error)

	// GetBalanceUSDT returns the available USDT margin balance.
	GetBalanceUSDT(ctx context.Context) (float64, error)

	// Close releases adapter resources.
	Close() error
}

// MarketData fetches historical candles over REST.
type MarketData interface {
	FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]candle.Candle, error)
}
