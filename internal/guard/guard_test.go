package guard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/config"
)

func testGuardConfig() config.GuardConfig {
	return config.GuardConfig{
		HardMaxDrawdownPct:       20,
		MaxTradesPerHour:         3,
		MinReopenIntervalSec:     300,
		MaxOpenPositions:         3,
		StrategyMaxOpenPositions: 2,
		WSStaleSec:               900,
	}
}

// fixedClock lets the tests move time explicitly.
type fixedClock struct {
	now time.Time
}

func (c *fixedClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestGuard(cfg config.GuardConfig) (*Guard, *fixedClock) {
	g := New(cfg)
	clock := &fixedClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	g.SetClock(func() time.Time { return clock.now })
	return g, clock
}

func TestCheckDrawdownTripsOnce(t *testing.T) {
	g, _ := newTestGuard(testGuardConfig())

	dd, tripped := g.CheckDrawdown(9000, 10000)
	assert.InDelta(t, 10.0, dd, 1e-9)
	assert.False(t, tripped)
	assert.False(t, g.TradingDisabled())

	dd, tripped = g.CheckDrawdown(7500, 10000)
	assert.InDelta(t, 25.0, dd, 1e-9)
	assert.True(t, tripped)
	assert.True(t, g.TradingDisabled())

	// Already tripped: reports the drawdown but does not re-trip.
	_, tripped = g.CheckDrawdown(7000, 10000)
	assert.False(t, tripped)
	assert.True(t, g.TradingDisabled())
}

func TestKillSwitchIsSticky(t *testing.T) {
	g, _ := newTestGuard(testGuardConfig())

	g.CheckDrawdown(7500, 10000)
	assert.True(t, g.TradingDisabled())

	// Equity recovering does not re-enable trading.
	_, tripped := g.CheckDrawdown(11000, 10000)
	assert.False(t, tripped)
	assert.True(t, g.TradingDisabled())

	ok, reason := g.AllowEntry("BTCUSDT", 0)
	assert.False(t, ok)
	assert.Contains(t, reason, "disabled")
}

func TestCheckDrawdownDisabledByZeroLimit(t *testing.T) {
	cfg := testGuardConfig()
	cfg.HardMaxDrawdownPct = 0
	g, _ := newTestGuard(cfg)

	dd, tripped := g.CheckDrawdown(1000, 10000)
	assert.Zero(t, dd)
	assert.False(t, tripped)
	assert.False(t, g.TradingDisabled())
}

func TestAllowEntryRateLimit(t *testing.T) {
	g, clock := newTestGuard(testGuardConfig())

	for i, symbol := range []string{"A", "B", "C"} {
		ok, _ := g.AllowEntry(symbol, 0)
		assert.True(t, ok, "entry %d should be allowed", i)
		g.RegisterOpen(symbol)
		clock.advance(time.Minute)
	}

	ok, reason := g.AllowEntry("D", 0)
	assert.False(t, ok)
	assert.Contains(t, reason, "rate limit")

	// The window slides: 1h after the first trade there is room again.
	clock.advance(time.Hour)
	ok, _ = g.AllowEntry("D", 0)
	assert.True(t, ok)
}

func TestAllowEntryCooldown(t *testing.T) {
	g, clock := newTestGuard(testGuardConfig())

	g.RegisterOpen("BTCUSDT")
	clock.advance(time.Minute)

	ok, reason := g.AllowEntry("BTCUSDT", 0)
	assert.False(t, ok)
	assert.Contains(t, reason, "cooldown")

	// A different symbol is not affected.
	ok, _ = g.AllowEntry("ETHUSDT", 0)
	assert.True(t, ok)

	clock.advance(5 * time.Minute)
	ok, _ = g.AllowEntry("BTCUSDT", 0)
	assert.True(t, ok)
}

func TestAllowEntryPositionCap(t *testing.T) {
	g, _ := newTestGuard(testGuardConfig())

	// Strategy cap (2) is tighter than the global cap (3).
	ok, reason := g.AllowEntry("BTCUSDT", 2)
	assert.False(t, ok)
	assert.Contains(t, reason, "max open positions")

	ok, _ = g.AllowEntry("BTCUSDT", 1)
	assert.True(t, ok)
}

func TestTradesInWindowPrunes(t *testing.T) {
	g, clock := newTestGuard(testGuardConfig())

	g.RegisterOpen("A")
	clock.advance(30 * time.Minute)
	g.RegisterOpen("B")
	assert.Equal(t, 2, g.TradesInWindow())

	clock.advance(45 * time.Minute)
	assert.Equal(t, 1, g.TradesInWindow())

	clock.advance(time.Hour)
	assert.Zero(t, g.TradesInWindow())
}

func TestIsStale(t *testing.T) {
	g, clock := newTestGuard(testGuardConfig())

	// No message yet means not stale: the stream has not started.
	assert.False(t, g.IsStale(time.Time{}))

	last := clock.now
	clock.advance(10 * time.Minute)
	assert.False(t, g.IsStale(last))

	clock.advance(10 * time.Minute)
	assert.True(t, g.IsStale(last))
}
