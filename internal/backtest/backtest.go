// Package backtest replays historical candles through the strategy,
// ledger and guard with deterministic, single-threaded semantics.
package backtest

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/candle"
	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/config"
	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/db"
	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/guard"
	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/indicator"
	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/notifier"
	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/position"
	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/risk"
	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/strategy"
)

// warmupBars is the number of leading bars skipped so the slowest
// indicator (SMA 200) has data before the first evaluation.
const warmupBars = 200

// symbolData holds one symbol's series and its precomputed frame. The
// frame is prefix-stable, so slicing it to the first n rows reproduces
// what a live run would have seen after n closed bars.
type symbolData struct {
	ltf   []candle.Candle
	htf   []candle.Candle
	frame *indicator.Frame
}

// nopExecutor fills every simulated order. The ledger does all the
// accounting in a backtest.
type nopExecutor struct{}

func (nopExecutor) OpenMarket(ctx context.Context, symbol string, side position.Side, qty float64) error {
	return nil
}

func (nopExecutor) CloseMarket(ctx context.Context, symbol string, side position.Side, qty float64) error {
	return nil
}

// Backtester replays one or more symbols bar by bar. Bars are aligned
// by index across symbols; the guard clock follows simulated bar time,
// so two runs over the same data produce identical trades.
type Backtester struct {
	cfg    config.Config
	eval   strategy.Evaluator
	ledger *position.Ledger
	guard  *guard.Guard
	notif  notifier.Notifier

	data    map[string]*symbolData
	symbols []string
	maxBars int

	simNow time.Time
	curve  []EquityPoint
	peak   float64
}

func New(cfg config.Config, eval strategy.Evaluator, notif notifier.Notifier) *Backtester {
	if notif == nil {
		notif = notifier.Noop{}
	}
	b := &Backtester{
		cfg:    cfg,
		eval:   eval,
		ledger: position.NewLedger(cfg, risk.NewSizer(cfg.Risk), nopExecutor{}, notif),
		guard:  guard.New(cfg.Guard),
		notif:  notif,
		data:   make(map[string]*symbolData),
	}
	b.guard.SetClock(func() time.Time { return b.simNow })
	return b
}

// Ledger exposes the books for inspection after a run.
func (b *Backtester) Ledger() *position.Ledger { return b.ledger }

// LoadCSVData loads <SYMBOL>_<ltf>.csv and <SYMBOL>_<htf>.csv for every
// configured symbol from dir.
func (b *Backtester) LoadCSVData(dir string) error {
	for _, symbol := range b.cfg.Symbols {
		ltfPath := filepath.Join(dir, fmt.Sprintf("%s_%s.csv", symbol, b.cfg.LTFTimeframe))
		htfPath := filepath.Join(dir, fmt.Sprintf("%s_%s.csv", symbol, b.cfg.HTFTimeframe))

		ltf, err := candle.LoadCSV(ltfPath, symbol, b.cfg.LTFTimeframe)
		if err != nil {
			return fmt.Errorf("failed to load %s data: %w", symbol, err)
		}
		htf, err := candle.LoadCSV(htfPath, symbol, b.cfg.HTFTimeframe)
		if err != nil {
			return fmt.Errorf("failed to load %s data: %w", symbol, err)
		}
		b.addSymbol(symbol, ltf, htf)
	}
	return nil
}

// LoadStorageData loads candles for every configured symbol from the
// candle store, windowed to the configured backtest range.
func (b *Backtester) LoadStorageData(ctx context.Context, store db.Storage) error {
	from := b.cfg.BacktestFrom
	to := b.cfg.BacktestTo
	if from.IsZero() {
		from = time.Unix(0, 0).UTC()
	}
	if to.IsZero() {
		to = time.Now().UTC()
	}

	for _, symbol := range b.cfg.Symbols {
		ltf, err := store.GetCandles(ctx, symbol, b.cfg.LTFTimeframe, from, to)
		if err != nil {
			return fmt.Errorf("failed to load %s %s candles: %w", symbol, b.cfg.LTFTimeframe, err)
		}
		htf, err := store.GetCandles(ctx, symbol, b.cfg.HTFTimeframe, from, to)
		if err != nil {
			return fmt.Errorf("failed to load %s %s candles: %w", symbol, b.cfg.HTFTimeframe, err)
		}
		b.addSymbol(symbol, ltf, htf)
	}
	return nil
}

// addSymbol windows the series to the backtest range, builds the frame
// and registers the symbol for the run.
func (b *Backtester) addSymbol(symbol string, ltf, htf []candle.Candle) {
	ltf = filterRange(ltf, b.cfg.BacktestFrom, b.cfg.BacktestTo)
	htf = filterRange(htf, b.cfg.BacktestFrom, b.cfg.BacktestTo)

	d := &symbolData{
		ltf:   ltf,
		htf:   htf,
		frame: indicator.BuildFrame(ltf, htf, indicator.DefaultParams()),
	}
	b.data[symbol] = d
	b.symbols = append(b.symbols, symbol)
	if len(ltf) > b.maxBars {
		b.maxBars = len(ltf)
	}
	log.Printf("Backtest | Loaded %s: %d %s bars, %d %s bars",
		symbol, len(ltf), b.cfg.LTFTimeframe, len(htf), b.cfg.HTFTimeframe)
}

func filterRange(candles []candle.Candle, from, to time.Time) []candle.Candle {
	if from.IsZero() && to.IsZero() {
		return candles
	}
	out := make([]candle.Candle, 0, len(candles))
	for _, c := range candles {
		if !from.IsZero() && c.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && !c.Timestamp.Before(to) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Run replays all loaded symbols and returns the aggregated result.
// The same warmup is applied per symbol so the first evaluated bar has
// a full indicator history behind it.
func (b *Backtester) Run(ctx context.Context) (*Result, error) {
	if len(b.symbols) == 0 {
		return nil, fmt.Errorf("no data loaded")
	}

	start := time.Now()
	log.Printf("Backtest | Starting: %d symbols, %d bars, balance=%.2f",
		len(b.symbols), b.maxBars, b.ledger.Balance())

	for bar := 0; bar < b.maxBars; bar++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		prices := make(map[string]float64, len(b.symbols))
		var barTime time.Time

		for _, symbol := range b.symbols {
			d := b.data[symbol]
			if bar >= len(d.ltf) {
				continue
			}
			c := d.ltf[bar]
			prices[symbol] = c.Close
			if c.Timestamp.After(barTime) {
				barTime = c.Timestamp
			}
		}
		if len(prices) == 0 {
			continue
		}
		b.simNow = barTime

		for _, symbol := range b.symbols {
			d := b.data[symbol]
			if bar >= len(d.ltf) {
				continue
			}
			warmup := warmupBars
			if warmup > len(d.ltf)-1 {
				warmup = len(d.ltf) - 1
			}
			if bar < warmup {
				continue
			}
			if err := b.step(ctx, symbol, d, bar, prices); err != nil {
				return nil, err
			}
		}

		equity := b.ledger.Equity(prices)
		if equity > b.peak {
			b.peak = equity
		}
		b.curve = append(b.curve, EquityPoint{Time: barTime, Equity: equity})
		if _, tripped := b.guard.CheckDrawdown(equity, b.peak); tripped {
			b.notif.NotifyError("risk guard", fmt.Sprintf("hard drawdown reached, trading disabled (equity=%.2f)", equity))
		}
	}

	if err := b.closeRemaining(ctx); err != nil {
		return nil, err
	}

	result := b.buildResult()
	log.Printf("Backtest | Finished in %v: pnl=%.2f roi=%.2f%% maxDD=%.2f%%",
		time.Since(start).Round(time.Millisecond), result.TotalPnL, result.ROIPct, result.MaxDrawdownPct)
	return result, nil
}

// step runs the exit machine and entry pipeline for one symbol on one
// closed bar.
func (b *Backtester) step(ctx context.Context, symbol string, d *symbolData, bar int, prices map[string]float64) error {
	view := d.frame.Slice(bar + 1)
	price := d.ltf[bar].Close
	atr := d.frame.LTF.ATR[bar]
	sig := b.eval.Evaluate(view)

	closed, err := b.ledger.Manage(ctx, symbol, price, atr, int64(bar), sig)
	if err != nil {
		return fmt.Errorf("exit management failed for %s: %w", symbol, err)
	}
	if closed || sig == strategy.None || b.ledger.Get(symbol) != nil {
		return nil
	}

	if ok, reason := b.guard.AllowEntry(symbol, b.ledger.OpenCount()); !ok {
		log.Printf("Backtest | Entry blocked for %s: %s", symbol, reason)
		return nil
	}

	equity := b.ledger.Equity(prices)
	pos, err := b.ledger.Open(ctx, symbol, sig, price, atr, equity, int64(bar))
	if err != nil {
		return fmt.Errorf("entry failed for %s: %w", symbol, err)
	}
	if pos != nil {
		b.guard.RegisterOpen(symbol)
	}
	return nil
}

// closeRemaining flattens every open position at its last available
// close so the result reflects fully realized PnL.
func (b *Backtester) closeRemaining(ctx context.Context) error {
	for symbol, pos := range b.ledger.Snapshot() {
		d := b.data[symbol]
		if d == nil || len(d.ltf) == 0 {
			continue
		}
		lastPrice := d.ltf[len(d.ltf)-1].Close
		if _, err := b.ledger.Close(ctx, symbol, lastPrice, position.ReasonEndOfData); err != nil {
			return fmt.Errorf("failed to flatten %s %s at end of data: %w", pos.Side, symbol, err)
		}
	}
	return nil
}
