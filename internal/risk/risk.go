// Package risk
package risk

import (
	"github.com/shopspring/decimal"

	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/config"
)

// Sizer normalizes futures position sizes: it derives notional from the risk
// budget and the stop distance, caps it by leverage, floors quantity to the
// exchange lot step, and enforces the minimum notional.
type Sizer struct {
	minNotional float64
	qtyStep     decimal.Decimal
}

func NewSizer(cfg config.RiskConfig) *Sizer {
	return &Sizer{
		minNotional: cfg.MinNotionalUSDT,
		qtyStep:     decimal.NewFromFloat(cfg.QtyStep),
	}
}

// CalcSize normalizes a desired notional at the given price into a consistent
// (notional, qty) pair. Returns (0, 0) when the size is too small to trade.
func (s *Sizer) CalcSize(notional, price float64) (float64, float64) {
	if price <= 0 || notional <= 0 {
		return 0, 0
	}

	if notional < s.minNotional {
		notional = s.minNotional
	}

	qty := s.floorToStep(notional / price)
	if qty <= 0 {
		return 0, 0
	}

	notional = qty * price
	if notional < s.minNotional {
		return 0, 0
	}
	return notional, qty
}

// MaxNotionalByLeverage returns the position notional cap for the given
// equity and leverage.
func (s *Sizer) MaxNotionalByLeverage(equity float64, leverage int) float64 {
	if equity <= 0 || leverage <= 0 {
		return 0
	}
	return equity * float64(leverage)
}

// CalcSizeFromRisk sizes a position so the stop-loss costs riskPerTrade of
// equity, capped by the leverage limit. stopDistancePct is in percent of
// price (0.8 means 0.8%). Returns (0, 0) on any non-positive input.
func (s *Sizer) CalcSizeFromRisk(equity, price, stopDistancePct, riskPerTrade float64, leverage int) (float64, float64) {
	if equity <= 0 || price <= 0 || stopDistancePct <= 0 || riskPerTrade <= 0 || leverage <= 0 {
		return 0, 0
	}

	riskAmount := equity * riskPerTrade
	notionalByRisk := riskAmount * 100.0 / stopDistancePct
	maxNotional := s.MaxNotionalByLeverage(equity, leverage)

	desired := notionalByRisk
	if maxNotional < desired {
		desired = maxNotional
	}
	return s.CalcSize(desired, price)
}

// floorToStep floors qty to the lot step using exact decimal arithmetic, so
// a qty of 0.30000000000000004 at step 0.0001 comes out as 0.3, not 0.2999.
func (s *Sizer) floorToStep(qty float64) float64 {
	if !s.qtyStep.IsPositive() {
		return qty
	}
	d := decimal.NewFromFloat(qty)
	steps := d.Div(s.qtyStep).Floor()
	out, _ := steps.Mul(s.qtyStep).Float64()
	return out
}
