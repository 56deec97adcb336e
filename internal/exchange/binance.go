package exchange

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/candle"
	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/tfutils"
)

// symbolFilters holds the venue trading rules relevant to order sizing.
type symbolFilters struct {
	stepSize    decimal.Decimal
	minQty      decimal.Decimal
	minNotional float64
}

// Binance adapts the USDT-M futures REST API. Safe for concurrent use
// once Init has completed.
type Binance struct {
	client *futures.Client

	mu      sync.RWMutex
	filters map[string]symbolFilters
}

// NewBinance creates an adapter. Empty credentials are allowed for
// market-data-only use; trading calls will then fail at the venue.
func NewBinance(apiKey, apiSecret string) *Binance {
	return &Binance{
		client:  futures.NewClient(apiKey, apiSecret),
		filters: make(map[string]symbolFilters),
	}
}

func (b *Binance) Name() string { return "binance-futures" }

// Init loads exchange info and caches per-symbol lot size and notional
// filters used to quantize order quantities.
func (b *Binance) Init(ctx context.Context) error {
	var info *futures.ExchangeInfo
	err := retry(ctx, defaultRetryAttempts, defaultRetryBase, defaultRetryMax, func() error {
		var err error
		info, err = b.client.NewExchangeInfoService().Do(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to load exchange info: %w", err)
	}

	filters := make(map[string]symbolFilters, len(info.Symbols))
	for _, s := range info.Symbols {
		f := symbolFilters{}
		if lot := s.LotSizeFilter(); lot != nil {
			f.stepSize, _ = decimal.NewFromString(lot.StepSize)
			f.minQty, _ = decimal.NewFromString(lot.MinQuantity)
		}
		if mn := s.MinNotionalFilter(); mn != nil {
			f.minNotional, _ = strconv.ParseFloat(mn.Notional, 64)
		}
		filters[s.Symbol] = f
	}

	b.mu.Lock()
	b.filters = filters
	b.mu.Unlock()
	log.Printf("Binance | Loaded trading filters for %d symbols", len(filters))
	return nil
}

func (b *Binance) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	err := retry(ctx, defaultRetryAttempts, defaultRetryBase, defaultRetryMax, func() error {
		_, err := b.client.NewChangeLeverageService().
			Symbol(symbol).
			Leverage(leverage).
			Do(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to set leverage %dx for %s: %w", leverage, symbol, err)
	}
	return nil
}

// CreateMarketOrder quantizes qty to the symbol's lot step and submits
// a market order with a fresh client order ID.
func (b *Binance) CreateMarketOrder(ctx context.Context, symbol string, side OrderSide, qty float64, reduceOnly bool) error {
	adjusted, err := b.adjustQty(symbol, qty)
	if err != nil {
		return err
	}

	orderID := uuid.NewString()
	err = retry(ctx, defaultRetryAttempts, defaultRetryBase, defaultRetryMax, func() error {
		_, err := b.client.NewCreateOrderService().
			Symbol(symbol).
			Side(futures.SideType(side)).
			Type(futures.OrderTypeMarket).
			Quantity(adjusted).
			ReduceOnly(reduceOnly).
			NewClientOrderID(orderID).
			Do(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create %s market order for %s qty=%s: %w", side, symbol, adjusted, err)
	}
	log.Printf("Binance | %s %s qty=%s reduceOnly=%v id=%s", side, symbol, adjusted, reduceOnly, orderID)
	return nil
}

// adjustQty floors qty to the symbol's step size and checks the venue
// minimum quantity.
func (b *Binance) adjustQty(symbol string, qty float64) (string, error) {
	b.mu.RLock()
	f, ok := b.filters[symbol]
	b.mu.RUnlock()

	d := decimal.NewFromFloat(qty)
	if ok && f.stepSize.IsPositive() {
		d = d.Div(f.stepSize).Floor().Mul(f.stepSize)
	}
	if !d.IsPositive() {
		return "", fmt.Errorf("quantity %.8f for %s rounds to zero", qty, symbol)
	}
	if ok && d.LessThan(f.minQty) {
		return "", fmt.Errorf("quantity %s below minimum %s for %s", d, f.minQty, symbol)
	}
	return d.String(), nil
}

func (b *Binance) GetOpenPositions(ctx context.Context) ([]OpenPosition, error) {
	var risks []*futures.PositionRisk
	err := retry(ctx, defaultRetryAttempts, defaultRetryBase, defaultRetryMax, func() error {
		var err error
		risks, err = b.client.NewGetPositionRiskService().Do(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch open positions: %w", err)
	}

	var positions []OpenPosition
	for _, r := range risks {
		amt, err := strconv.ParseFloat(r.PositionAmt, 64)
		if err != nil || amt == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(r.EntryPrice, 64)
		positions = append(positions, OpenPosition{
			Symbol:     r.Symbol,
			Qty:        amt,
			EntryPrice: entry,
		})
	}
	return positions, nil
}

func (b *Binance) GetBalanceUSDT(ctx context.Context) (float64, error) {
	var balances []*futures.Balance
	err := retry(ctx, defaultRetryAttempts, defaultRetryBase, defaultRetryMax, func() error {
		var err error
		balances, err = b.client.NewGetBalanceService().Do(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch balances: %w", err)
	}
	for _, bal := range balances {
		if bal.Asset == "USDT" {
			v, err := strconv.ParseFloat(bal.Balance, 64)
			if err != nil {
				return 0, fmt.Errorf("failed to parse USDT balance %q: %w", bal.Balance, err)
			}
			return v, nil
		}
	}
	return 0, nil
}

// FetchCandles loads up to limit of the most recent closed candles for
// the symbol and timeframe. Invalid and still-forming candles are
// dropped.
func (b *Binance) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]candle.Candle, error) {
	if !tfutils.IsValidTimeframe(timeframe) {
		return nil, fmt.Errorf("unsupported timeframe: %s", timeframe)
	}

	var klines []*futures.Kline
	err := retry(ctx, defaultRetryAttempts, defaultRetryBase, defaultRetryMax, func() error {
		var err error
		klines, err = b.client.NewKlinesService().
			Symbol(symbol).
			Interval(timeframe).
			Limit(limit).
			Do(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candles for %s %s: %w", symbol, timeframe, err)
	}

	candles := make([]candle.Candle, 0, len(klines))
	for _, k := range klines {
		c, err := klineToCandle(k, symbol, timeframe)
		if err != nil {
			log.Printf("Binance | Skipping invalid candle for %s %s: %v", symbol, timeframe, err)
			continue
		}
		// The venue includes the still-forming candle as the last kline;
		// the stream delivers closed candles only, so drop it here too.
		if !c.IsComplete() {
			continue
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func klineToCandle(k *futures.Kline, symbol, timeframe string) (candle.Candle, error) {
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return candle.Candle{}, fmt.Errorf("failed to parse open: %w", err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return candle.Candle{}, fmt.Errorf("failed to parse high: %w", err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return candle.Candle{}, fmt.Errorf("failed to parse low: %w", err)
	}
	closePrice, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return candle.Candle{}, fmt.Errorf("failed to parse close: %w", err)
	}
	volume, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return candle.Candle{}, fmt.Errorf("failed to parse volume: %w", err)
	}

	c := candle.Candle{
		Timestamp: time.UnixMilli(k.OpenTime).UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
		Symbol:    symbol,
		Timeframe: timeframe,
	}
	if err := c.Validate(); err != nil {
		return candle.Candle{}, err
	}
	return c, nil
}

func (b *Binance) Close() error { return nil }
