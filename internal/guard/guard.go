// Package guard
package guard

import (
	"fmt"
	"log"
	"time"

	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/config"
)

// Guard is the protective layer between signals and orders. It tracks the
// sticky drawdown kill-switch, the hourly trade-rate window, per-symbol
// re-entry cooldowns, and the open-position cap.
//
// Guard is not safe for concurrent use; callers serialize access the same way
// they do for the ledger.
type Guard struct {
	cfg config.GuardConfig

	tradingDisabled bool
	tradeTimes      []time.Time
	lastOpen        map[string]time.Time

	now func() time.Time
}

func New(cfg config.GuardConfig) *Guard {
	return &Guard{
		cfg:      cfg,
		lastOpen: make(map[string]time.Time),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source, for tests and backtests.
func (g *Guard) SetClock(now func() time.Time) { g.now = now }

// TradingDisabled reports whether the kill-switch has tripped.
func (g *Guard) TradingDisabled() bool { return g.tradingDisabled }

// SetTradingDisabled sets the kill-switch directly. The flag is sticky for
// the process lifetime: nothing clears it short of a restart.
func (g *Guard) SetTradingDisabled(disabled bool) { g.tradingDisabled = disabled }

// CheckDrawdown evaluates equity against the peak and trips the kill-switch
// when the configured hard drawdown is reached. It returns the drawdown
// percentage and whether the switch tripped on this call.
func (g *Guard) CheckDrawdown(equity, peak float64) (ddPct float64, tripped bool) {
	if g.cfg.HardMaxDrawdownPct <= 0 || equity <= 0 || peak <= 0 {
		return 0, false
	}
	ddPct = (peak - equity) / peak * 100.0
	if ddPct < 0 {
		ddPct = 0
	}
	if ddPct >= g.cfg.HardMaxDrawdownPct {
		tripped = !g.tradingDisabled
		if tripped {
			log.Printf("Guard | Hard drawdown triggered: DD=%.2f%%, limit=%.2f%%, disabling new entries",
				ddPct, g.cfg.HardMaxDrawdownPct)
		}
		g.tradingDisabled = true
	}
	return ddPct, tripped
}

// AllowEntry decides whether a new position may be opened for the symbol.
// Checks run in fixed order: kill-switch, hourly rate limit, per-symbol
// cooldown, position cap. The returned reason is empty when entry is allowed.
func (g *Guard) AllowEntry(symbol string, openCount int) (bool, string) {
	if g.tradingDisabled {
		return false, "trading disabled by risk guard"
	}

	now := g.now()

	if g.cfg.MaxTradesPerHour > 0 {
		g.pruneTradeTimes(now)
		if len(g.tradeTimes) >= g.cfg.MaxTradesPerHour {
			return false, fmt.Sprintf("trade rate limit reached (%d trades/h)", g.cfg.MaxTradesPerHour)
		}
	}

	if cooldown := g.cfg.MinReopenInterval(); cooldown > 0 {
		if last, ok := g.lastOpen[symbol]; ok {
			elapsed := now.Sub(last)
			if elapsed < cooldown {
				return false, fmt.Sprintf("re-entry cooldown: last %s open was %.1fs ago (<%s)",
					symbol, elapsed.Seconds(), cooldown)
			}
		}
	}

	if max := g.cfg.EffectiveMaxOpenPositions(); max > 0 && openCount >= max {
		return false, fmt.Sprintf("max open positions reached (%d)", max)
	}

	return true, ""
}

// RegisterOpen records a successful entry for the rate limiter and the
// per-symbol cooldown.
func (g *Guard) RegisterOpen(symbol string) {
	now := g.now()
	g.lastOpen[symbol] = now
	g.tradeTimes = append(g.tradeTimes, now)
	g.pruneTradeTimes(now)
}

// TradesInWindow returns the number of entries within the rolling hour.
func (g *Guard) TradesInWindow() int {
	g.pruneTradeTimes(g.now())
	return len(g.tradeTimes)
}

func (g *Guard) pruneTradeTimes(now time.Time) {
	cutoff := now.Add(-time.Hour)
	kept := g.tradeTimes[:0]
	for _, t := range g.tradeTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	g.tradeTimes = kept
}

// IsStale reports whether the market data feed has gone silent for longer
// than the configured threshold. A zero lastMessage means no data yet and is
// not considered stale.
func (g *Guard) IsStale(lastMessage time.Time) bool {
	if g.cfg.WSStaleSec <= 0 || lastMessage.IsZero() {
		return false
	}
	return g.now().Sub(lastMessage) > g.cfg.WSStaleTimeout()
}
