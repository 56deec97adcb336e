package exchange

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaperOpenAndClose(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(5000)
	p.SetMarkPrice("BTCUSDT", 100)

	require.NoError(t, p.CreateMarketOrder(ctx, "BTCUSDT", OrderSideBuy, 2, false))

	positions, err := p.GetOpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.InDelta(t, 2.0, positions[0].Qty, 1e-9)
	assert.InDelta(t, 100.0, positions[0].EntryPrice, 1e-9)

	// Close at 110: pnl = 10*2 = 20.
	p.SetMarkPrice("BTCUSDT", 110)
	require.NoError(t, p.CreateMarketOrder(ctx, "BTCUSDT", OrderSideSell, 2, true))

	positions, err = p.GetOpenPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)

	balance, err := p.GetBalanceUSDT(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 5020.0, balance, 1e-9)
}

func TestPaperShortPosition(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(5000)
	p.SetMarkPrice("ETHUSDT", 100)

	require.NoError(t, p.CreateMarketOrder(ctx, "ETHUSDT", OrderSideSell, 3, false))

	positions, _ := p.GetOpenPositions(ctx)
	require.Len(t, positions, 1)
	assert.InDelta(t, -3.0, positions[0].Qty, 1e-9)

	// Cover at 90: pnl = (90-100)*(-3) = 30.
	p.SetMarkPrice("ETHUSDT", 90)
	require.NoError(t, p.CreateMarketOrder(ctx, "ETHUSDT", OrderSideBuy, 3, true))

	balance, _ := p.GetBalanceUSDT(ctx)
	assert.InDelta(t, 5030.0, balance, 1e-9)
}

func TestPaperPartialReduce(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(5000)
	p.SetMarkPrice("BTCUSDT", 100)

	require.NoError(t, p.CreateMarketOrder(ctx, "BTCUSDT", OrderSideBuy, 4, false))
	p.SetMarkPrice("BTCUSDT", 105)
	require.NoError(t, p.CreateMarketOrder(ctx, "BTCUSDT", OrderSideSell, 1, true))

	positions, _ := p.GetOpenPositions(ctx)
	require.Len(t, positions, 1)
	assert.InDelta(t, 3.0, positions[0].Qty, 1e-9)

	// One unit realized 5 USDT.
	balance, _ := p.GetBalanceUSDT(ctx)
	assert.InDelta(t, 5005.0, balance, 1e-9)
}

func TestPaperAveragesEntryOnIncrease(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(5000)

	p.SetMarkPrice("BTCUSDT", 100)
	require.NoError(t, p.CreateMarketOrder(ctx, "BTCUSDT", OrderSideBuy, 1, false))
	p.SetMarkPrice("BTCUSDT", 110)
	require.NoError(t, p.CreateMarketOrder(ctx, "BTCUSDT", OrderSideBuy, 1, false))

	positions, _ := p.GetOpenPositions(ctx)
	require.Len(t, positions, 1)
	assert.InDelta(t, 2.0, positions[0].Qty, 1e-9)
	assert.InDelta(t, 105.0, positions[0].EntryPrice, 1e-9)
}

func TestPaperRejectsBadOrders(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(5000)

	// No mark price yet.
	assert.Error(t, p.CreateMarketOrder(ctx, "BTCUSDT", OrderSideBuy, 1, false))

	p.SetMarkPrice("BTCUSDT", 100)
	assert.Error(t, p.CreateMarketOrder(ctx, "BTCUSDT", OrderSideBuy, 0, false))
	// Reduce-only on a flat book.
	assert.Error(t, p.CreateMarketOrder(ctx, "BTCUSDT", OrderSideSell, 1, true))
}
