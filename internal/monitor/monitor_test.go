package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonbotlabs/moonbot/internal/domain"
	"github.com/moonbotlabs/moonbot/internal/store/file"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// scriptedOracle returns a per-asset price.
type scriptedOracle struct {
	prices map[string]float64
	errs   map[string]error
}

func (o *scriptedOracle) FetchPrice(_ context.Context, asset string) (float64, error) {
	if err := o.errs[asset]; err != nil {
		return 0, err
	}
	return o.prices[asset], nil
}

// recordingSeller captures triggered sells.
type recordingSeller struct {
	calls []sellCall
	err   error
}

type sellCall struct {
	asset string
	req   domain.SellRequest
}

func (s *recordingSeller) Sell(_ context.Context, asset string, req domain.SellRequest) (domain.Position, error) {
	s.calls = append(s.calls, sellCall{asset: asset, req: req})
	return domain.Position{}, s.err
}

// noSleep counts pacing sleeps without waiting.
type noSleep struct {
	count int
}

func (s *noSleep) Sleep(context.Context, time.Duration) error {
	s.count++
	return nil
}

type fixture struct {
	store   *file.Ledger
	oracle  *scriptedOracle
	seller  *recordingSeller
	sleeper *noSleep
	mon     *Monitor
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		store:   file.Open(filepath.Join(t.TempDir(), "positions.json"), testLogger()),
		oracle:  &scriptedOracle{prices: map[string]float64{}, errs: map[string]error{}},
		seller:  &recordingSeller{},
		sleeper: &noSleep{},
	}
	f.mon = New(f.store, f.oracle, f.seller, nil, cfg, testLogger())
	f.mon.SetSleeper(f.sleeper)
	return f
}

func (f *fixture) seed(t *testing.T, positions ...domain.Position) {
	t.Helper()
	book := domain.NewPositionBook()
	for _, p := range positions {
		book.Set(p.Asset, p)
	}
	require.NoError(t, f.store.Save(context.Background(), book))
}

func bought(asset string, entry, units float64) domain.Position {
	return domain.Position{Asset: asset, Status: domain.PositionStatusBought, EntryPrice: entry, UnitsHeld: units}
}

func TestCycleTriggersTakeProfitAtThreshold(t *testing.T) {
	f := newFixture(t, Config{TakeProfitPct: 10, StopLossPct: 10, Execute: true})
	f.seed(t, bought("MOON", 100, 50))
	f.oracle.prices["MOON"] = 110 // exactly at threshold

	require.NoError(t, f.mon.cycle(context.Background()))

	require.Len(t, f.seller.calls, 1)
	call := f.seller.calls[0]
	assert.Equal(t, "MOON", call.asset)
	assert.Equal(t, "take_profit", call.req.Reason)
	assert.Equal(t, domain.DenomUnits, call.req.Denomination)
	assert.Equal(t, 50.0, call.req.Amount)
}

func TestCycleDoesNotTriggerJustBelowTakeProfit(t *testing.T) {
	f := newFixture(t, Config{TakeProfitPct: 10, StopLossPct: 10, Execute: true})
	f.seed(t, bought("MOON", 100, 50))
	f.oracle.prices["MOON"] = 109.999

	require.NoError(t, f.mon.cycle(context.Background()))
	assert.Empty(t, f.seller.calls)
}

func TestCycleTriggersStopLossAtThreshold(t *testing.T) {
	f := newFixture(t, Config{TakeProfitPct: 10, StopLossPct: 10, Execute: true})
	f.seed(t, bought("MOON", 100, 50))
	f.oracle.prices["MOON"] = 90

	require.NoError(t, f.mon.cycle(context.Background()))

	require.Len(t, f.seller.calls, 1)
	assert.Equal(t, "stop_loss", f.seller.calls[0].req.Reason)
}

func TestCycleDoesNotTriggerJustAboveStopLoss(t *testing.T) {
	f := newFixture(t, Config{TakeProfitPct: 10, StopLossPct: 10, Execute: true})
	f.seed(t, bought("MOON", 100, 50))
	f.oracle.prices["MOON"] = 90.001

	require.NoError(t, f.mon.cycle(context.Background()))
	assert.Empty(t, f.seller.calls)
}

func TestCyclePersistsObservedPrice(t *testing.T) {
	f := newFixture(t, Config{TakeProfitPct: 10, StopLossPct: 10, Execute: true})
	f.seed(t, bought("MOON", 100, 50))
	f.oracle.prices["MOON"] = 105

	require.NoError(t, f.mon.cycle(context.Background()))

	book, err := f.store.Load(context.Background())
	require.NoError(t, err)
	pos, _ := book.Get("MOON")
	assert.Equal(t, 105.0, pos.LastPrice)
}

func TestCycleSkipsClosedPositions(t *testing.T) {
	f := newFixture(t, Config{TakeProfitPct: 10, StopLossPct: 10, Execute: true})
	f.seed(t,
		domain.Position{Asset: "DONE", Status: domain.PositionStatusSold},
		domain.Position{Asset: "DEAD", Status: domain.PositionStatusFailed},
		bought("MOON", 100, 50),
	)
	f.oracle.prices["MOON"] = 120

	require.NoError(t, f.mon.cycle(context.Background()))

	require.Len(t, f.seller.calls, 1)
	assert.Equal(t, "MOON", f.seller.calls[0].asset)
}

func TestCycleContinuesPastOracleFailure(t *testing.T) {
	f := newFixture(t, Config{TakeProfitPct: 10, StopLossPct: 10, Execute: true})
	f.seed(t, bought("AAA", 100, 10), bought("MOON", 100, 50))
	f.oracle.errs["AAA"] = domain.ErrPriceUnavailable
	f.oracle.prices["MOON"] = 120

	require.NoError(t, f.mon.cycle(context.Background()))

	// AAA is skipped, MOON still triggers.
	require.Len(t, f.seller.calls, 1)
	assert.Equal(t, "MOON", f.seller.calls[0].asset)
}

func TestCycleDryRunSuppressesTrigger(t *testing.T) {
	f := newFixture(t, Config{TakeProfitPct: 10, StopLossPct: 10, Execute: false})
	f.seed(t, bought("MOON", 100, 50))
	f.oracle.prices["MOON"] = 200

	require.NoError(t, f.mon.cycle(context.Background()))

	assert.Empty(t, f.seller.calls)

	// Prices are still recorded in dry-run mode.
	book, err := f.store.Load(context.Background())
	require.NoError(t, err)
	pos, _ := book.Get("MOON")
	assert.Equal(t, 200.0, pos.LastPrice)
}

func TestCycleToleratesSellerErrors(t *testing.T) {
	f := newFixture(t, Config{TakeProfitPct: 10, StopLossPct: 10, Execute: true})
	f.seed(t, bought("MOON", 100, 50))
	f.oracle.prices["MOON"] = 120
	f.seller.err = errors.New("venue down")

	assert.NoError(t, f.mon.cycle(context.Background()))
}

func TestCycleEmptyBookWaitsOnePollInterval(t *testing.T) {
	f := newFixture(t, Config{PollDelay: time.Second, CycleDelay: time.Minute, Execute: true})

	require.NoError(t, f.mon.cycle(context.Background()))
	assert.Equal(t, 1, f.sleeper.count)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	f := newFixture(t, Config{Execute: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.mon.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
