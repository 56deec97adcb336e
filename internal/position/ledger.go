package position

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/config"
	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/db"
	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/notifier"
	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/risk"
	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/strategy"
)

// Executor places market orders. Open orders take the position side; close
// orders are reduce-only on the opposite side.
type Executor interface {
	OpenMarket(ctx context.Context, symbol string, side Side, qty float64) error
	CloseMarket(ctx context.Context, symbol string, side Side, qty float64) error
}

// Ledger owns all open positions, the cash balance, and realized PnL. Every
// exit decision goes through Manage in strict priority order: hard stop-loss,
// TP1 partial close, trailing-stop ratchet, time-stop, reversal signal.
//
// Ledger is not safe for concurrent use. The backtester is single-threaded
// and the live runner serializes access behind its own mutex.
type Ledger struct {
	exec    Executor
	notif   notifier.Notifier
	sizer   *risk.Sizer
	journal db.Storage // optional

	feeRate      float64
	riskPerTrade float64
	leverage     int
	exit         config.ExitConfig

	balance  float64
	realized float64

	positions map[string]*Position
}

func NewLedger(cfg config.Config, sizer *risk.Sizer, exec Executor, notif notifier.Notifier) *Ledger {
	if notif == nil {
		notif = notifier.Noop{}
	}
	return &Ledger{
		exec:         exec,
		notif:        notif,
		sizer:        sizer,
		feeRate:      cfg.FeeRate,
		riskPerTrade: cfg.RiskPerTrade,
		leverage:     cfg.Leverage,
		exit:         cfg.Exit,
		balance:      cfg.InitialBalanceUSDT,
		positions:    make(map[string]*Position),
	}
}

// SetJournal attaches an event journal. Journaling failures are absorbed.
func (l *Ledger) SetJournal(s db.Storage) { l.journal = s }

func (l *Ledger) Balance() float64        { return l.balance }
func (l *Ledger) SetBalance(b float64)    { l.balance = b }
func (l *Ledger) RealizedPnL() float64    { return l.realized }
func (l *Ledger) SetRealizedPnL(p float64) { l.realized = p }

// Get returns the open position for a symbol, or nil.
func (l *Ledger) Get(symbol string) *Position {
	return l.positions[symbol]
}

// OpenCount returns the number of open positions.
func (l *Ledger) OpenCount() int {
	return len(l.positions)
}

// Snapshot returns a copy of all open positions keyed by symbol.
func (l *Ledger) Snapshot() map[string]Position {
	out := make(map[string]Position, len(l.positions))
	for sym, p := range l.positions {
		out[sym] = *p
	}
	return out
}

// Restore replaces the open positions, typically from the state file.
func (l *Ledger) Restore(positions map[string]Position) {
	l.positions = make(map[string]*Position, len(positions))
	for sym, p := range positions {
		cp := p
		l.positions[sym] = &cp
	}
}

// Equity returns balance plus mark-to-market PnL of all open positions.
// Symbols missing from prices contribute nothing.
func (l *Ledger) Equity(prices map[string]float64) float64 {
	equity := l.balance
	for sym, pos := range l.positions {
		price, ok := prices[sym]
		if !ok {
			continue
		}
		equity += pos.UnrealizedPnL(price)
	}
	return equity
}

// Manage runs the exit machine for one symbol on a closed LTF bar. It returns
// true when the position was fully closed. A nil position is a no-op, so a
// duplicate exit request on a flat symbol is idempotent.
//
// Order failures leave the position unchanged: the books only move after the
// exchange accepted the order.
func (l *Ledger) Manage(ctx context.Context, symbol string, price, atr float64, bar int64, sig strategy.Signal) (bool, error) {
	pos := l.positions[symbol]
	if pos == nil {
		return false, nil
	}
	if price <= 0 || atr <= 0 {
		return false, nil
	}

	// 1) Hard stop-loss.
	if (pos.Side == Long && price <= pos.StopLoss) || (pos.Side == Short && price >= pos.StopLoss) {
		return l.closeFull(ctx, symbol, pos, price, ReasonStopLoss)
	}

	// 2) TP1: take half off, move the stop to breakeven, arm the trailing stop.
	if pos.TP1 != nil && pos.Qty > 0 {
		hit := (pos.Side == Long && price >= *pos.TP1) || (pos.Side == Short && price <= *pos.TP1)
		if hit {
			if err := l.closeFraction(ctx, symbol, pos, price, 0.5, ReasonTP1); err != nil {
				return false, err
			}
			pos.StopLoss = pos.EntryPrice
			newTS := l.trailingLevel(pos.Side, price, atr)
			if pos.TrailingStop == nil || tighter(pos.Side, newTS, *pos.TrailingStop) {
				pos.TrailingStop = &newTS
			}
			pos.TP1 = nil
		}
	}

	// 3) Trailing stop: ratchet toward price, never away, then check.
	if pos.TrailingStop != nil && pos.Qty > 0 {
		newTS := l.trailingLevel(pos.Side, price, atr)
		if tighter(pos.Side, newTS, *pos.TrailingStop) {
			pos.TrailingStop = &newTS
		}
		if (pos.Side == Long && price <= *pos.TrailingStop) || (pos.Side == Short && price >= *pos.TrailingStop) {
			return l.closeFull(ctx, symbol, pos, price, ReasonTrailingStop)
		}
	}

	// 4) Time-stop.
	if l.exit.MaxBarsInPosition > 0 && pos.AgeBars(bar) >= int64(l.exit.MaxBarsInPosition) {
		return l.closeFull(ctx, symbol, pos, price, ReasonTimeStop)
	}

	// 5) Opposite strategy signal.
	if (pos.Side == Long && sig == strategy.Sell) || (pos.Side == Short && sig == strategy.Buy) {
		return l.closeFull(ctx, symbol, pos, price, ReasonReverseSignal)
	}

	return false, nil
}

// Open sizes and opens a new position from a signal. It returns nil with no
// error when the computed size is too small to trade. Protective checks
// (drawdown, rate limits, caps) are the caller's responsibility.
func (l *Ledger) Open(ctx context.Context, symbol string, sig strategy.Signal, price, atr, equity float64, bar int64) (*Position, error) {
	if l.positions[symbol] != nil {
		return nil, fmt.Errorf("position already open for %s", symbol)
	}
	if sig != strategy.Buy && sig != strategy.Sell {
		return nil, nil
	}
	if price <= 0 || atr <= 0 || equity <= 0 {
		return nil, nil
	}

	stopDistancePct := l.exit.ATRSLMult * atr / price * 100.0
	notional, qty := l.sizer.CalcSizeFromRisk(equity, price, stopDistancePct, l.riskPerTrade, l.leverage)
	if notional <= 0 || qty <= 0 {
		log.Printf("Ledger | Position size too small for %s (equity=%.2f price=%.4f atr=%.5f)", symbol, equity, price, atr)
		return nil, nil
	}

	side := Long
	if sig == strategy.Sell {
		side = Short
	}

	if err := l.exec.OpenMarket(ctx, symbol, side, qty); err != nil {
		l.notif.NotifyOrderError(symbol, string(side), qty, err.Error())
		return nil, fmt.Errorf("failed to open %s %s: %w", side, symbol, err)
	}

	var stopLoss, tp1 float64
	if side == Long {
		stopLoss = price - l.exit.ATRSLMult*atr
		tp1 = price + l.exit.ATRTP1Mult*atr
	} else {
		stopLoss = price + l.exit.ATRSLMult*atr
		tp1 = price - l.exit.ATRTP1Mult*atr
	}

	pos := &Position{
		Symbol:       symbol,
		EntryPrice:   price,
		Qty:          qty,
		Notional:     notional,
		Side:         side,
		OpenTime:     time.Now().UTC(),
		OpenBar:      bar,
		StopLoss:     stopLoss,
		TP1:          &tp1,
		PeakPrice:    price,
		PyramidLevel: 0,
	}
	l.positions[symbol] = pos

	log.Printf("Ledger | OPEN %s %s qty=%.6f price=%.4f sl=%.4f tp1=%.4f (equity=%.2f)",
		side, symbol, qty, price, stopLoss, tp1, equity)
	l.notif.NotifyOpenPosition(symbol, string(side), qty, price, l.leverage)
	l.logEvent(ctx, "position_open", symbol, fmt.Sprintf("%s qty=%.6f price=%.4f", side, qty, price), pos)

	return pos, nil
}

// Close fully closes the position for a symbol at the given price. A flat
// symbol is a no-op.
func (l *Ledger) Close(ctx context.Context, symbol string, price float64, reason string) (bool, error) {
	pos := l.positions[symbol]
	if pos == nil {
		return false, nil
	}
	return l.closeFull(ctx, symbol, pos, price, reason)
}

func (l *Ledger) closeFull(ctx context.Context, symbol string, pos *Position, price float64, reason string) (bool, error) {
	if pos.Qty <= 0 {
		delete(l.positions, symbol)
		return true, nil
	}

	if err := l.exec.CloseMarket(ctx, symbol, pos.Side, pos.Qty); err != nil {
		l.notif.NotifyOrderError(symbol, string(pos.Side), pos.Qty, err.Error())
		return false, fmt.Errorf("failed to close %s (%s): %w", symbol, reason, err)
	}

	pnl := pos.UnrealizedPnL(price)
	fee := l.fee(pos.EntryPrice, price, pos.Qty)
	net := pnl - fee
	l.balance += net
	l.realized += net

	roePct := 0.0
	if pos.Notional > 0 {
		roePct = pnl / pos.Notional * 100.0
	}

	log.Printf("Ledger | CLOSE %s %s qty=%.6f price=%.4f pnl=%.4f fee=%.4f reason=%s",
		pos.Side, symbol, pos.Qty, price, pnl, fee, reason)
	l.notif.NotifyClosePosition(symbol, string(pos.Side), pos.Qty, pos.EntryPrice, price,
		net, roePct, time.Since(pos.OpenTime), reason)
	l.logEvent(ctx, "position_close", symbol,
		fmt.Sprintf("%s qty=%.6f price=%.4f pnl=%.4f reason=%s", pos.Side, pos.Qty, price, net, reason), pos)

	delete(l.positions, symbol)
	return true, nil
}

func (l *Ledger) closeFraction(ctx context.Context, symbol string, pos *Position, price, fraction float64, reason string) error {
	if pos.Qty <= 0 || fraction <= 0 || fraction >= 1 {
		return nil
	}
	qtyClose := pos.Qty * fraction
	if qtyClose <= 0 {
		return nil
	}

	if err := l.exec.CloseMarket(ctx, symbol, pos.Side, qtyClose); err != nil {
		l.notif.NotifyOrderError(symbol, string(pos.Side), qtyClose, err.Error())
		return fmt.Errorf("failed to close fraction of %s (%s): %w", symbol, reason, err)
	}

	var pnl float64
	if pos.Side == Long {
		pnl = (price - pos.EntryPrice) * qtyClose
	} else {
		pnl = (pos.EntryPrice - price) * qtyClose
	}
	fee := l.fee(pos.EntryPrice, price, qtyClose)
	net := pnl - fee
	l.balance += net
	l.realized += net

	pos.Qty -= qtyClose
	if pos.Qty < 0 {
		pos.Qty = 0
	}
	pos.Notional = pos.EntryPrice * pos.Qty

	log.Printf("Ledger | CLOSE FRACTION %s %s qty=%.6f price=%.4f pnl=%.4f fee=%.4f reason=%s",
		pos.Side, symbol, qtyClose, price, pnl, fee, reason)
	l.logEvent(ctx, "position_partial_close", symbol,
		fmt.Sprintf("%s qty=%.6f price=%.4f pnl=%.4f reason=%s", pos.Side, qtyClose, price, net, reason), pos)
	return nil
}

// fee charges both legs of the round trip on the closed quantity.
func (l *Ledger) fee(entryPrice, exitPrice, qty float64) float64 {
	return (entryPrice*qty + exitPrice*qty) * l.feeRate
}

func (l *Ledger) trailingLevel(side Side, price, atr float64) float64 {
	if side == Long {
		return price - l.exit.ATRTSMult*atr
	}
	return price + l.exit.ATRTSMult*atr
}

// tighter reports whether candidate is closer to price than current, in the
// direction that protects profit.
func tighter(side Side, candidate, current float64) bool {
	if side == Long {
		return candidate > current
	}
	return candidate < current
}

func (l *Ledger) logEvent(ctx context.Context, eventType, symbol, description string, data any) {
	if l.journal == nil {
		return
	}
	e := db.Event{
		Time:        time.Now().UTC(),
		Type:        eventType,
		Symbol:      symbol,
		Description: description,
		Data:        data,
	}
	if err := l.journal.LogEvent(ctx, e); err != nil {
		log.Printf("Ledger | Failed to journal %s event for %s: %v", eventType, symbol, err)
	}
}
