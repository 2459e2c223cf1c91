package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonbotlabs/moonbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// fakeTrader records submitted orders and returns scripted errors.
type fakeTrader struct {
	buys    []buyCall
	sells   []domain.SellRequest
	buyErr  error
	sellErr error
}

type buyCall struct {
	asset  string
	amount float64
}

func (f *fakeTrader) Buy(_ context.Context, asset string, amount float64) (domain.Position, error) {
	f.buys = append(f.buys, buyCall{asset: asset, amount: amount})
	return domain.Position{}, f.buyErr
}

func (f *fakeTrader) Sell(_ context.Context, _ string, req domain.SellRequest) (domain.Position, error) {
	f.sells = append(f.sells, req)
	return domain.Position{}, f.sellErr
}

// fakeBalance serves one balance for every asset.
type fakeBalance struct {
	avail float64
	err   error
}

func (f *fakeBalance) Balance(context.Context, string) (float64, error) {
	return f.avail, f.err
}

func defaultConfig() Config {
	return Config{
		Asset:            "MOON",
		QuoteAsset:       "USDC",
		BuyAmount:        0.1,
		SellAmount:       0.05,
		SellDenomination: domain.DenomQuote,
	}
}

func TestBuyTickSubmitsOrder(t *testing.T) {
	trader := &fakeTrader{}
	s := New(trader, &fakeBalance{avail: 1}, defaultConfig(), testLogger())

	s.buyTick(context.Background())

	require.Len(t, trader.buys, 1)
	assert.Equal(t, "MOON", trader.buys[0].asset)
	assert.Equal(t, 0.1, trader.buys[0].amount)
}

func TestBuyTickSkipsWhenFundsShort(t *testing.T) {
	trader := &fakeTrader{}
	s := New(trader, &fakeBalance{avail: 0.05}, defaultConfig(), testLogger())

	s.buyTick(context.Background())
	assert.Empty(t, trader.buys)
}

func TestBuyTickSkipsWhenBalanceCheckFails(t *testing.T) {
	trader := &fakeTrader{}
	s := New(trader, &fakeBalance{err: errors.New("venue down")}, defaultConfig(), testLogger())

	s.buyTick(context.Background())
	assert.Empty(t, trader.buys)
}

func TestBuyTickWithoutBalanceSourceSubmitsUnchecked(t *testing.T) {
	trader := &fakeTrader{}
	s := New(trader, nil, defaultConfig(), testLogger())

	s.buyTick(context.Background())
	assert.Len(t, trader.buys, 1)
}

func TestBuyTickToleratesLockContention(t *testing.T) {
	trader := &fakeTrader{buyErr: domain.ErrLockHeld}
	s := New(trader, nil, defaultConfig(), testLogger())

	// Must not panic or retry; the next tick will try again.
	s.buyTick(context.Background())
	assert.Len(t, trader.buys, 1)
}

func TestSellTickSubmitsConfiguredRequest(t *testing.T) {
	trader := &fakeTrader{}
	s := New(trader, nil, defaultConfig(), testLogger())

	s.sellTick(context.Background())

	require.Len(t, trader.sells, 1)
	req := trader.sells[0]
	assert.Equal(t, 0.05, req.Amount)
	assert.Equal(t, domain.DenomQuote, req.Denomination)
	assert.Equal(t, "scheduled", req.Reason)
}

func TestSellTickToleratesMissingPosition(t *testing.T) {
	trader := &fakeTrader{sellErr: domain.ErrNotFound}
	s := New(trader, nil, defaultConfig(), testLogger())

	s.sellTick(context.Background())
	assert.Len(t, trader.sells, 1)
}

func TestSellTickToleratesUndersizedPosition(t *testing.T) {
	trader := &fakeTrader{sellErr: domain.ErrInsufficientBalance}
	s := New(trader, nil, defaultConfig(), testLogger())

	s.sellTick(context.Background())
	assert.Len(t, trader.sells, 1)
}

func TestRunIdlesWhenBothIntervalsDisabled(t *testing.T) {
	trader := &fakeTrader{}
	s := New(trader, nil, defaultConfig(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, trader.buys)
	assert.Empty(t, trader.sells)
}

func TestRunTicksAndStopsOnCancel(t *testing.T) {
	trader := &fakeTrader{}
	cfg := defaultConfig()
	cfg.BuyInterval = 5 * time.Millisecond
	s := New(trader, nil, cfg, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotEmpty(t, trader.buys)
}
