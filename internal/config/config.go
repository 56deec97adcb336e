// Package config
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/tfutils"
)

// Config is built once at startup and passed by value. Credentials come from
// the environment (or a .env file), everything else from defaults overlaid
// with an optional YAML file and command-line flags.
type Config struct {
	Mode         string   `yaml:"mode"` // "backtest" or "live"
	Symbols      []string `yaml:"symbols"`
	LTFTimeframe string   `yaml:"ltf_timeframe"`
	HTFTimeframe string   `yaml:"htf_timeframe"`

	InitialBalanceUSDT float64 `yaml:"initial_balance_usdt"`
	RiskPerTrade       float64 `yaml:"risk_per_trade"`
	Leverage           int     `yaml:"leverage"`
	FeeRate            float64 `yaml:"fee_rate"`

	PaperTrading bool   `yaml:"paper_trading"`
	StateFile    string `yaml:"state_file"`
	DataDir      string `yaml:"data_dir"`
	ResultsDir   string `yaml:"results_dir"`

	BacktestFrom time.Time `yaml:"-"`
	BacktestTo   time.Time `yaml:"-"`

	// Secrets, environment only.
	BinanceAPIKey    string `yaml:"-"`
	BinanceAPISecret string `yaml:"-"`
	TelegramToken    string `yaml:"-"`
	TelegramChatID   string `yaml:"-"`
	DBConnStr        string `yaml:"-"`

	Risk     RiskConfig     `yaml:"risk"`
	Strategy StrategyConfig `yaml:"strategy"`
	Exit     ExitConfig     `yaml:"exit"`
	Guard    GuardConfig    `yaml:"guard"`
	Live     LiveConfig     `yaml:"live"`
}

// RiskConfig controls position sizing.
type RiskConfig struct {
	MinNotionalUSDT float64 `yaml:"min_notional_usdt"`
	QtyStep         float64 `yaml:"qty_step"`
}

// StrategyConfig holds every knob of the MTF breakout rule.
type StrategyConfig struct {
	MinHistoryBars int `yaml:"min_history_bars"`

	AntiChopMinATRPct float64 `yaml:"anti_chop_min_atr_pct"`
	BreakoutADXMin    float64 `yaml:"breakout_adx_min"`

	HTFVolatileATRPct    float64 `yaml:"htf_volatile_atr_pct"`
	HTFVolatileDriftPct  float64 `yaml:"htf_volatile_drift_pct"`
	HTFVolatileADXMax    float64 `yaml:"htf_volatile_adx_max"`
	HTFDriftLookbackBars int     `yaml:"htf_drift_lookback_bars"`

	DisableVolatileFlat bool    `yaml:"disable_volatile_flat"`
	ATRSuperHighPct     float64 `yaml:"atr_super_high_pct"`

	DriftLookbackBars    int     `yaml:"drift_lookback_bars"`
	DriftMinPct          float64 `yaml:"drift_min_pct"`
	DriftStrongTrendPct  float64 `yaml:"drift_strong_trend_pct"`
	DriftAdaptiveEnabled bool    `yaml:"drift_adaptive_enabled"`
	DriftMinLoosenFactor float64 `yaml:"drift_min_loosen_factor"`
	StrongTrendADXMargin float64 `yaml:"strong_trend_adx_margin"`

	LTFLookback   int     `yaml:"ltf_lookback"`
	ATRLowVolPct  float64 `yaml:"atr_low_vol_pct"`
	ATRHighVolPct float64 `yaml:"atr_high_vol_pct"`
	LookbackMin   int     `yaml:"lookback_min"`
	LookbackMax   int     `yaml:"lookback_max"`

	BreakoutBufferPct  float64 `yaml:"breakout_buffer_pct"`
	BreakoutVolumeMult float64 `yaml:"breakout_volume_mult"`

	LTFATRMinPct           float64 `yaml:"ltf_atr_min_pct"`
	LTFMicroATRPct         float64 `yaml:"ltf_micro_atr_pct"`
	LTFSlopeLookback       int     `yaml:"ltf_slope_lookback"`
	LTFSlopeMinAbs         float64 `yaml:"ltf_slope_min_abs"`
	LTFVolatileSlopeFactor float64 `yaml:"ltf_volatile_slope_factor"`

	RSILongMin      float64 `yaml:"rsi_long_min"`
	RSILongMax      float64 `yaml:"rsi_long_max"`
	RSIShortMin     float64 `yaml:"rsi_short_min"`
	RSIShortMax     float64 `yaml:"rsi_short_max"`
	RSILongTighten  float64 `yaml:"rsi_long_tighten"`
	RSIShortTighten float64 `yaml:"rsi_short_tighten"`
}

// ExitConfig controls the protective exit levels derived from ATR at entry.
type ExitConfig struct {
	ATRSLMult         float64 `yaml:"atr_sl_mult"`
	ATRTP1Mult        float64 `yaml:"atr_tp1_mult"`
	ATRTSMult         float64 `yaml:"atr_ts_mult"`
	MaxBarsInPosition int     `yaml:"max_bars_in_position"`
}

// GuardConfig controls the protective layer.
type GuardConfig struct {
	HardMaxDrawdownPct       float64 `yaml:"hard_max_drawdown_pct"` // 0 disables
	MaxTradesPerHour         int     `yaml:"max_trades_per_hour"`
	MinReopenIntervalSec     int     `yaml:"min_reopen_interval_sec"`
	MaxOpenPositions         int     `yaml:"max_open_positions"`
	StrategyMaxOpenPositions int     `yaml:"strategy_max_open_positions"`
	WSStaleSec               int     `yaml:"ws_stale_sec"`
}

// MinReopenInterval returns the per-symbol re-entry cooldown.
func (g GuardConfig) MinReopenInterval() time.Duration {
	return time.Duration(g.MinReopenIntervalSec) * time.Second
}

// WSStaleTimeout returns the market-data staleness threshold.
func (g GuardConfig) WSStaleTimeout() time.Duration {
	return time.Duration(g.WSStaleSec) * time.Second
}

// EffectiveMaxOpenPositions returns the cap applied to entries: the tighter of
// the global and per-strategy limits.
func (g GuardConfig) EffectiveMaxOpenPositions() int {
	if g.StrategyMaxOpenPositions > 0 && g.StrategyMaxOpenPositions < g.MaxOpenPositions {
		return g.StrategyMaxOpenPositions
	}
	return g.MaxOpenPositions
}

// LiveConfig controls the live runner.
type LiveConfig struct {
	HeartbeatSec   int `yaml:"heartbeat_sec"`
	Preload15mBars int `yaml:"preload_15m_bars"`
	Preload1hBars  int `yaml:"preload_1h_bars"`
}

// HeartbeatInterval returns the equity notification cadence.
func (l LiveConfig) HeartbeatInterval() time.Duration {
	return time.Duration(l.HeartbeatSec) * time.Second
}

// Defaults returns the configuration the bot runs with when nothing is overridden.
func Defaults() Config {
	return Config{
		Mode:         "backtest",
		Symbols:      []string{"BTCUSDT"},
		LTFTimeframe: "15m",
		HTFTimeframe: "1h",

		InitialBalanceUSDT: 5000,
		RiskPerTrade:       0.01,
		Leverage:           5,
		FeeRate:            0.0004,

		PaperTrading: true,
		StateFile:    "state.json",
		DataDir:      "data",
		ResultsDir:   "results",

		Risk: RiskConfig{
			MinNotionalUSDT: 5.0,
			QtyStep:         0.0001,
		},
		Strategy: StrategyConfig{
			MinHistoryBars:         100,
			AntiChopMinATRPct:      0.0005,
			BreakoutADXMin:         20,
			HTFVolatileATRPct:      0.004,
			HTFVolatileDriftPct:    0.006,
			HTFVolatileADXMax:      22,
			HTFDriftLookbackBars:   16,
			DisableVolatileFlat:    true,
			ATRSuperHighPct:        0.02,
			DriftLookbackBars:      96,
			DriftMinPct:            0.006,
			DriftStrongTrendPct:    0.01,
			DriftAdaptiveEnabled:   true,
			DriftMinLoosenFactor:   0.7,
			StrongTrendADXMargin:   5.0,
			LTFLookback:            60,
			ATRLowVolPct:           0.003,
			ATRHighVolPct:          0.015,
			LookbackMin:            40,
			LookbackMax:            80,
			BreakoutBufferPct:      0.001,
			BreakoutVolumeMult:     1.5,
			LTFATRMinPct:           0.0002,
			LTFMicroATRPct:         0.0015,
			LTFSlopeLookback:       30,
			LTFSlopeMinAbs:         0.001,
			LTFVolatileSlopeFactor: 5.0,
			RSILongMin:             50,
			RSILongMax:             85,
			RSIShortMin:            15,
			RSIShortMax:            55,
			RSILongTighten:         5,
			RSIShortTighten:        5,
		},
		Exit: ExitConfig{
			ATRSLMult:         5.0,
			ATRTP1Mult:        10.0,
			ATRTSMult:         5.0,
			MaxBarsInPosition: 96,
		},
		Guard: GuardConfig{
			HardMaxDrawdownPct:       0,
			MaxTradesPerHour:         20,
			MinReopenIntervalSec:     300,
			MaxOpenPositions:         3,
			StrategyMaxOpenPositions: 3,
			WSStaleSec:               900,
		},
		Live: LiveConfig{
			HeartbeatSec:   600,
			Preload15mBars: 500,
			Preload1hBars:  200,
		},
	}
}

// Load builds the config from defaults, an optional YAML file, command-line
// flags, and the environment. Call once from main.
func Load() (Config, error) {
	configFile := flag.String("config", "", "Path to YAML config file")
	mode := flag.String("mode", "", "Mode: backtest or live")
	symbolsFlag := flag.String("symbols", "", "Comma-separated list of trading symbols")
	from := flag.String("from", "", "Backtest start date (YYYY-MM-DD)")
	to := flag.String("to", "", "Backtest end date (YYYY-MM-DD)")
	stateFile := flag.String("state", "", "Path to the state file")
	dataDir := flag.String("data-dir", "", "Directory with <SYMBOL>_<tf>.csv files for backtests")
	paper := flag.Bool("paper", true, "Use the paper execution adapter in live mode")
	flag.Parse()

	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	cfg := Defaults()

	if *configFile != "" {
		data, err := os.ReadFile(*configFile)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if *mode != "" {
		cfg.Mode = *mode
	}
	if *symbolsFlag != "" {
		cfg.Symbols = strings.Split(*symbolsFlag, ",")
	}
	if *stateFile != "" {
		cfg.StateFile = *stateFile
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	cfg.PaperTrading = *paper

	if *from != "" {
		t, err := time.Parse("2006-01-02", *from)
		if err != nil {
			return Config{}, fmt.Errorf("invalid -from date: %w", err)
		}
		cfg.BacktestFrom = t
	}
	if *to != "" {
		t, err := time.Parse("2006-01-02", *to)
		if err != nil {
			return Config{}, fmt.Errorf("invalid -to date: %w", err)
		}
		cfg.BacktestTo = t
	}

	cfg.BinanceAPIKey = os.Getenv("BINANCE_API_KEY")
	cfg.BinanceAPISecret = os.Getenv("BINANCE_API_SECRET")
	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	cfg.TelegramChatID = os.Getenv("TELEGRAM_CHAT_ID")
	cfg.DBConnStr = os.Getenv("DB_CONN_STR")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the bot cannot run with.
func (c Config) Validate() error {
	if c.Mode != "backtest" && c.Mode != "live" {
		return fmt.Errorf("invalid mode %q", c.Mode)
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("no symbols configured")
	}
	for _, tf := range []string{c.LTFTimeframe, c.HTFTimeframe} {
		if _, err := tfutils.ParseTimeframe(tf); err != nil {
			return fmt.Errorf("unsupported timeframe %q, supported: %s",
				tf, strings.Join(tfutils.GetSupportedTimeframes(), ", "))
		}
	}
	if c.RiskPerTrade <= 0 || c.RiskPerTrade >= 1 {
		return fmt.Errorf("risk_per_trade must be in (0, 1), got %v", c.RiskPerTrade)
	}
	if c.Leverage <= 0 {
		return fmt.Errorf("leverage must be positive, got %d", c.Leverage)
	}
	if c.FeeRate < 0 {
		return fmt.Errorf("fee_rate cannot be negative, got %v", c.FeeRate)
	}
	if c.InitialBalanceUSDT <= 0 {
		return fmt.Errorf("initial_balance_usdt must be positive, got %v", c.InitialBalanceUSDT)
	}
	if c.Mode == "live" && !c.PaperTrading {
		if c.BinanceAPIKey == "" || c.BinanceAPISecret == "" {
			return fmt.Errorf("live mode with real execution requires BINANCE_API_KEY and BINANCE_API_SECRET")
		}
	}
	return nil
}
