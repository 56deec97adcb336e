package live

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/candle"
	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/config"
	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/exchange"
	"github.com/amatviitsiv/tradeBot-v4-1-mtf-with-graphs-fixed/internal/strategy"
)

// fakeBroker is a stub venue with a scripted USDT balance.
type fakeBroker struct {
	balance      float64
	balanceErr   error
	balanceCalls int
}

func (f *fakeBroker) Name() string                                   { return "fake" }
func (f *fakeBroker) Init(context.Context) error                     { return nil }
func (f *fakeBroker) SetLeverage(context.Context, string, int) error { return nil }
func (f *fakeBroker) Close() error                                   { return nil }

func (f *fakeBroker) GetOpenPositions(context.Context) ([]exchange.OpenPosition, error) {
	return nil, nil
}

func (f *fakeBroker) CreateMarketOrder(context.Context, string, exchange.OrderSide, float64, bool) error {
	return nil
}

func (f *fakeBroker) GetBalanceUSDT(context.Context) (float64, error) {
	f.balanceCalls++
	return f.balance, f.balanceErr
}

func (f *fakeBroker) FetchCandles(context.Context, string, string, int) ([]candle.Candle, error) {
	return nil, nil
}

func newTestRunner(broker exchange.Exchange, md exchange.MarketData) *Runner {
	cfg := config.Defaults()
	return New(cfg, strategy.NewMTFBreakout(cfg.Strategy), broker, md, nil, nil)
}

func TestReconcileBalanceFollowsVenue(t *testing.T) {
	broker := &fakeBroker{balance: 7777.25}
	r := newTestRunner(broker, broker)

	// The ledger starts from the configured balance; the venue overrides it.
	r.reconcileBalance(context.Background())

	assert.Equal(t, 1, broker.balanceCalls)
	assert.InDelta(t, 7777.25, r.ledger.Balance(), 1e-9)
}

func TestReconcileBalanceKeepsLedgerOnFetchError(t *testing.T) {
	broker := &fakeBroker{balanceErr: assert.AnError}
	r := newTestRunner(broker, broker)
	r.ledger.SetBalance(4321)

	r.reconcileBalance(context.Background())

	assert.InDelta(t, 4321.0, r.ledger.Balance(), 1e-9)
}

func TestReconcileBalanceIgnoresEmptyVenueBalance(t *testing.T) {
	broker := &fakeBroker{balance: 0}
	r := newTestRunner(broker, broker)
	r.ledger.SetBalance(4321)

	r.reconcileBalance(context.Background())

	assert.InDelta(t, 4321.0, r.ledger.Balance(), 1e-9)
}

func TestReconcileBalanceSkipsPaperBroker(t *testing.T) {
	paper := exchange.NewPaper(5000)
	r := newTestRunner(paper, &fakeBroker{balance: 9999})
	r.ledger.SetBalance(1234)

	r.reconcileBalance(context.Background())

	assert.InDelta(t, 1234.0, r.ledger.Balance(), 1e-9)
}
