package exchange

import (
	"context"

	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/position"
)

// OrderExecutor bridges the position ledger to a venue adapter. Close
// orders are submitted reduce-only on the opposite side.
type OrderExecutor struct {
	X Exchange
}

func (e OrderExecutor) OpenMarket(ctx context.Context, symbol string, side position.Side, qty float64) error {
	return e.X.CreateMarketOrder(ctx, symbol, orderSide(side), qty, false)
}

func (e OrderExecutor) CloseMarket(ctx context.Context, symbol string, side position.Side, qty float64) error {
	return e.X.CreateMarketOrder(ctx, symbol, orderSide(side.Opposite()), qty, true)
}

func orderSide(s position.Side) OrderSide {
	if s == position.Long {
		return OrderSideBuy
	}
	return OrderSideSell
}
