package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/backtest"
	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/config"
	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/db"
	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/exchange"
	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/live"
	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/notifier"
	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/strategy"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Main | %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log.Printf("Main | Mode=%s symbols=%v ltf=%s htf=%s", cfg.Mode, cfg.Symbols, cfg.LTFTimeframe, cfg.HTFTimeframe)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Main | Received %v, shutting down", sig)
		cancel()
	}()

	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var notif notifier.Notifier = notifier.Noop{}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		notif = notifier.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
		log.Println("Main | Telegram notifications enabled")
	}

	eval := strategy.NewMTFBreakout(cfg.Strategy)

	switch cfg.Mode {
	case "backtest":
		return runBacktest(ctx, cfg, eval, notif, store)
	case "live":
		return runLive(ctx, cfg, eval, notif, store)
	default:
		return fmt.Errorf("unknown mode %q", cfg.Mode)
	}
}

// openStorage connects to Postgres when DB_CONN_STR is set and falls
// back to the in-memory store otherwise.
func openStorage(cfg config.Config) (db.Storage, error) {
	if cfg.DBConnStr == "" {
		log.Println("Main | No DB_CONN_STR, using in-memory storage")
		return db.NewMemory(), nil
	}
	pg, err := db.NewPostgres(cfg.DBConnStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	log.Println("Main | Connected to postgres")
	return pg, nil
}

func runBacktest(ctx context.Context, cfg config.Config, eval strategy.Evaluator, notif notifier.Notifier, store db.Storage) error {
	bt := backtest.New(cfg, eval, notif)

	// CSV files take priority; the candle store is the fallback source.
	if err := bt.LoadCSVData(cfg.DataDir); err != nil {
		log.Printf("Main | CSV data unavailable (%v), trying candle store", err)
		if serr := bt.LoadStorageData(ctx, store); serr != nil {
			return fmt.Errorf("no backtest data: %w", serr)
		}
	}

	result, err := bt.Run(ctx)
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}
	log.Printf("Main | Backtest result: %s", result)

	name := fmt.Sprintf("equity_curve_%s.csv", time.Now().UTC().Format("20060102_150405"))
	path, err := result.ExportEquityCurve(cfg.ResultsDir, name)
	if err != nil {
		return fmt.Errorf("failed to export equity curve: %w", err)
	}
	log.Printf("Main | Equity curve written to %s", path)
	return nil
}

func runLive(ctx context.Context, cfg config.Config, eval strategy.Evaluator, notif notifier.Notifier, store db.Storage) error {
	// Market data always comes from the venue; execution is either the
	// paper simulator or the real account.
	binance := exchange.NewBinance(cfg.BinanceAPIKey, cfg.BinanceAPISecret)

	var broker exchange.Exchange = binance
	if cfg.PaperTrading {
		log.Println("Main | Paper trading enabled, orders are simulated")
		broker = exchange.NewPaper(cfg.InitialBalanceUSDT)
	}

	runner := live.New(cfg, eval, broker, binance, notif, store)
	return runner.Run(ctx)
}
