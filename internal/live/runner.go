// Package live drives event-driven trading off the exchange websocket,
// reusing the same strategy, ledger and guard the backtester runs.
package live

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/candle"
	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/config"
	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/db"
	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/exchange"
	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/guard"
	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/indicator"
	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/notifier"
	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/position"
	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/risk"
	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/state"
	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/strategy"
)

// seriesCap bounds in-memory candle retention per symbol/timeframe.
const seriesCap = 2000

// symbolBook holds one symbol's rolling candle history. processedBars
// counts closed LTF bars seen by this process (preload included) and is
// the age reference for the time-stop.
type symbolBook struct {
	ltf           *candle.Series
	htf           *candle.Series
	processedBars int64
}

// Runner owns the live trading loop. All trading state (ledger, guard,
// state file, books) is accessed under mu: candle handlers run on the
// stream goroutine while the heartbeat runs on its own ticker.
type Runner struct {
	cfg    config.Config
	eval   strategy.Evaluator
	broker exchange.Exchange
	md     exchange.MarketData
	stream *exchange.KlineStream
	notif  notifier.Notifier
	store  db.Storage

	mu     sync.Mutex
	ledger *position.Ledger
	guard  *guard.Guard
	st     *state.Manager
	books  map[string]*symbolBook
}

// New wires a runner. md supplies REST history for preload; broker
// executes orders (paper or real). store is optional and used for the
// event journal plus candle archival.
func New(cfg config.Config, eval strategy.Evaluator, broker exchange.Exchange, md exchange.MarketData, notif notifier.Notifier, store db.Storage) *Runner {
	if notif == nil {
		notif = notifier.Noop{}
	}
	r := &Runner{
		cfg:    cfg,
		eval:   eval,
		broker: broker,
		md:     md,
		notif:  notif,
		store:  store,
		guard:  guard.New(cfg.Guard),
		st:     state.NewManager(cfg.StateFile, eval.Name()),
		books:  make(map[string]*symbolBook),
	}
	r.ledger = position.NewLedger(cfg, risk.NewSizer(cfg.Risk), exchange.OrderExecutor{X: broker}, notif)
	if store != nil {
		r.ledger.SetJournal(store)
	}
	return r
}

// Run blocks until ctx is cancelled, then shuts down gracefully. Open
// positions are kept (they are protected by their stops on restart via
// the state file), not flattened.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.restoreState(); err != nil {
		return err
	}
	if err := r.broker.Init(ctx); err != nil {
		return fmt.Errorf("failed to init %s: %w", r.broker.Name(), err)
	}
	r.reconcileBalance(ctx)
	for _, symbol := range r.cfg.Symbols {
		if err := r.broker.SetLeverage(ctx, symbol, r.cfg.Leverage); err != nil {
			return err
		}
	}
	if err := r.preloadHistory(ctx); err != nil {
		return err
	}

	r.stream = exchange.NewKlineStream(
		r.cfg.Symbols,
		[]string{r.cfg.LTFTimeframe, r.cfg.HTFTimeframe},
		func(c candle.Candle) error { return r.onCandle(ctx, c) },
	)
	r.stream.Start(ctx)
	log.Printf("Live | Started: %d symbols, broker=%s, heartbeat=%v",
		len(r.cfg.Symbols), r.broker.Name(), r.cfg.Live.HeartbeatInterval())

	r.heartbeatLoop(ctx)

	return r.shutdown()
}

// restoreState loads positions, balance and equity peak from the state
// file so a restart continues where the previous process stopped.
func (r *Runner) restoreState() error {
	if err := r.st.Load(); err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	positions := r.st.Positions()
	if len(positions) > 0 {
		r.ledger.Restore(positions)
		for symbol, pos := range positions {
			log.Printf("Live | Restored %s %s qty=%.6f entry=%.4f sl=%.4f",
				pos.Side, symbol, pos.Qty, pos.EntryPrice, pos.StopLoss)
		}
	}
	if bal, ok := r.st.Balance("USDT"); ok && bal.Free > 0 {
		r.ledger.SetBalance(bal.Free)
	}
	r.ledger.SetRealizedPnL(r.st.RealizedPnL())
	return nil
}

// reconcileBalance replaces the ledger cash balance with the venue's USDT
// balance, so the books follow the real account rather than the state file
// or the configured starting balance. Paper runs keep the simulated balance;
// the ledger is the only bookkeeper there. Fetch failures are advisory.
func (r *Runner) reconcileBalance(ctx context.Context) {
	if _, isPaper := r.broker.(*exchange.Paper); isPaper {
		return
	}

	bal, err := r.broker.GetBalanceUSDT(ctx)
	if err != nil {
		log.Printf("Live | Failed to fetch USDT balance: %v", err)
		return
	}
	if bal <= 0 {
		log.Printf("Live | Venue reports no USDT balance, keeping ledger balance")
		return
	}

	r.mu.Lock()
	prev := r.ledger.Balance()
	r.ledger.SetBalance(bal)
	r.mu.Unlock()
	if prev != bal {
		log.Printf("Live | Balance reconciled with venue: %.2f -> %.2f USDT", prev, bal)
	}
}

// preloadHistory fetches recent candles over REST so indicators are
// warm before the first streamed bar. Bar ages start at the preload
// length, matching how a backtest counts bars from the data it has.
func (r *Runner) preloadHistory(ctx context.Context) error {
	for _, symbol := range r.cfg.Symbols {
		ltf, err := r.md.FetchCandles(ctx, symbol, r.cfg.LTFTimeframe, r.cfg.Live.Preload15mBars)
		if err != nil {
			return fmt.Errorf("failed to preload %s %s history: %w", symbol, r.cfg.LTFTimeframe, err)
		}
		htf, err := r.md.FetchCandles(ctx, symbol, r.cfg.HTFTimeframe, r.cfg.Live.Preload1hBars)
		if err != nil {
			return fmt.Errorf("failed to preload %s %s history: %w", symbol, r.cfg.HTFTimeframe, err)
		}

		book := &symbolBook{
			ltf: candle.NewSeries(symbol, r.cfg.LTFTimeframe, seriesCap),
			htf: candle.NewSeries(symbol, r.cfg.HTFTimeframe, seriesCap),
		}
		for _, c := range ltf {
			if err := book.ltf.Append(c); err != nil {
				return fmt.Errorf("failed to seed %s %s series: %w", symbol, r.cfg.LTFTimeframe, err)
			}
		}
		for _, c := range htf {
			if err := book.htf.Append(c); err != nil {
				return fmt.Errorf("failed to seed %s %s series: %w", symbol, r.cfg.HTFTimeframe, err)
			}
		}
		book.processedBars = int64(book.ltf.Len())

		r.mu.Lock()
		r.books[symbol] = book
		r.mu.Unlock()
		log.Printf("Live | Preloaded %s: %d %s bars, %d %s bars",
			symbol, book.ltf.Len(), r.cfg.LTFTimeframe, book.htf.Len(), r.cfg.HTFTimeframe)
	}
	return nil
}

// onCandle handles one closed candle from the stream. HTF candles only
// extend history; each closed LTF candle drives a full pipeline pass.
func (r *Runner) onCandle(ctx context.Context, c candle.Candle) error {
	r.archiveCandle(ctx, c)

	r.mu.Lock()
	defer r.mu.Unlock()

	book := r.books[c.Symbol]
	if book == nil {
		return nil
	}

	switch c.Timeframe {
	case r.cfg.HTFTimeframe:
		return book.htf.Append(c)
	case r.cfg.LTFTimeframe:
		if err := book.ltf.Append(c); err != nil {
			return err
		}
		book.processedBars++
		return r.processBar(ctx, c.Symbol, book)
	default:
		return nil
	}
}

// processBar runs the pipeline on the latest closed LTF bar: exits
// first, then guarded entry, then state persistence. Caller holds mu.
func (r *Runner) processBar(ctx context.Context, symbol string, book *symbolBook) error {
	if book.ltf.Len() < r.cfg.Strategy.MinHistoryBars {
		return nil
	}

	frame := indicator.BuildFrame(book.ltf.Candles, book.htf.Candles, indicator.DefaultParams())
	n := frame.Len()
	price := frame.Candles[n-1].Close
	atr := frame.LTF.ATR[n-1]
	bar := book.processedBars - 1
	sig := r.eval.Evaluate(frame)

	if paper, ok := r.broker.(*exchange.Paper); ok {
		paper.SetMarkPrice(symbol, price)
	}

	prices := r.lastPricesLocked()
	equity := r.ledger.Equity(prices)
	if err := r.st.UpdateEquityPeak(equity); err != nil {
		log.Printf("Live | Failed to save equity peak: %v", err)
	}
	if _, tripped := r.guard.CheckDrawdown(equity, r.st.EquityPeak()); tripped {
		r.notif.NotifyError("risk guard", fmt.Sprintf("hard drawdown reached, trading disabled (equity=%.2f)", equity))
	}

	closed, err := r.ledger.Manage(ctx, symbol, price, atr, bar, sig)
	if err != nil {
		r.notif.NotifyError("exit management", err.Error())
		log.Printf("Live | Exit management failed for %s: %v", symbol, err)
		return r.persistLocked()
	}
	if closed || sig == strategy.None || r.ledger.Get(symbol) != nil {
		return r.persistLocked()
	}

	if ok, reason := r.guard.AllowEntry(symbol, r.ledger.OpenCount()); !ok {
		log.Printf("Live | Entry blocked for %s: %s", symbol, reason)
		return r.persistLocked()
	}

	pos, err := r.ledger.Open(ctx, symbol, sig, price, atr, r.ledger.Equity(prices), bar)
	if err != nil {
		r.notif.NotifyError("order entry", err.Error())
		log.Printf("Live | Entry failed for %s: %v", symbol, err)
		return r.persistLocked()
	}
	if pos != nil {
		r.guard.RegisterOpen(symbol)
	}
	return r.persistLocked()
}

// lastPricesLocked returns the latest LTF close per symbol.
func (r *Runner) lastPricesLocked() map[string]float64 {
	prices := make(map[string]float64, len(r.books))
	for symbol, book := range r.books {
		if last := book.ltf.Last(); last != nil {
			prices[symbol] = last.Close
		}
	}
	return prices
}

// persistLocked writes the full trading state to disk. Caller holds mu.
func (r *Runner) persistLocked() error {
	r.st.SetPositions(r.ledger.Snapshot())
	prices := r.lastPricesLocked()
	r.st.UpdateBalance("USDT", r.ledger.Balance(), r.ledger.Equity(prices))
	r.st.SetRealizedPnL(r.ledger.RealizedPnL())
	if err := r.st.Save(); err != nil {
		log.Printf("Live | Failed to save state: %v", err)
		return err
	}
	return nil
}

// archiveCandle stores the candle when a database is configured.
// Storage failures never interrupt trading.
func (r *Runner) archiveCandle(ctx context.Context, c candle.Candle) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveCandles(ctx, []candle.Candle{c}); err != nil {
		log.Printf("Live | Failed to archive candle %s %s: %v", c.Symbol, c.Timeframe, err)
	}
}

// heartbeatLoop periodically reports equity and runs the watchdogs
// until ctx is cancelled.
func (r *Runner) heartbeatLoop(ctx context.Context) {
	interval := r.cfg.Live.HeartbeatInterval()
	if interval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.heartbeat(ctx)
		}
	}
}

// heartbeat reconciles the venue balance, sends the equity notification
// and checks stream staleness and the ledger-versus-exchange position
// match.
func (r *Runner) heartbeat(ctx context.Context) {
	r.reconcileBalance(ctx)

	r.mu.Lock()
	equity := r.ledger.Equity(r.lastPricesLocked())
	openCount := r.ledger.OpenCount()
	r.mu.Unlock()

	r.notif.NotifyHeartbeat(equity, openCount)

	if last := r.stream.LastMessageTime(); r.guard.IsStale(last) {
		msg := fmt.Sprintf("no market data since %s (stream %s)",
			last.UTC().Format(time.RFC3339), r.stream.State())
		log.Printf("Live | %s", msg)
		r.notif.NotifyError("market data watchdog", msg)
	}

	r.checkPositionMismatch(ctx)
}

// checkPositionMismatch compares the ledger's book against the venue.
// A mismatch means the books can no longer be trusted, so new entries
// are disabled until an operator intervenes and restarts.
func (r *Runner) checkPositionMismatch(ctx context.Context) {
	if _, isPaper := r.broker.(*exchange.Paper); isPaper {
		return
	}

	remote, err := r.broker.GetOpenPositions(ctx)
	if err != nil {
		log.Printf("Live | Failed to fetch positions for mismatch check: %v", err)
		return
	}

	remoteBySymbol := make(map[string]exchange.OpenPosition, len(remote))
	for _, p := range remote {
		remoteBySymbol[p.Symbol] = p
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var mismatch string
	local := r.ledger.Snapshot()
	for symbol, pos := range local {
		rp, ok := remoteBySymbol[symbol]
		if !ok {
			mismatch = fmt.Sprintf("%s open locally (%s qty=%.6f) but flat on exchange", symbol, pos.Side, pos.Qty)
			break
		}
		wantLong := rp.Qty > 0
		if (pos.Side == position.Long) != wantLong {
			mismatch = fmt.Sprintf("%s side mismatch: local %s, exchange qty=%.6f", symbol, pos.Side, rp.Qty)
			break
		}
	}
	if mismatch == "" {
		for symbol := range remoteBySymbol {
			if _, ok := local[symbol]; !ok {
				mismatch = fmt.Sprintf("%s open on exchange but not tracked locally", symbol)
				break
			}
		}
	}
	if mismatch == "" {
		return
	}

	log.Printf("Live | Position mismatch: %s, disabling new entries", mismatch)
	r.guard.SetTradingDisabled(true)
	r.notif.NotifyError("position mismatch", mismatch)
}

// shutdown stops the stream, persists state and releases the broker.
func (r *Runner) shutdown() error {
	log.Println("Live | Shutting down")
	if r.stream != nil {
		r.stream.Stop()
	}

	r.mu.Lock()
	openCount := r.ledger.OpenCount()
	err := r.persistLocked()
	r.mu.Unlock()

	if cerr := r.broker.Close(); cerr != nil && err == nil {
		err = cerr
	}
	r.notif.NotifyBotStopped(openCount)
	log.Printf("Live | Stopped with %d open positions", openCount)
	return err
}
