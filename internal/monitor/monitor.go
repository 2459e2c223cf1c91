// Package monitor implements the price-driven monitoring loop: it sweeps
// every open position, records the latest quote, and triggers a full close
// when the take-profit or stop-loss threshold is crossed.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/moonbotlabs/moonbot/internal/domain"
	"github.com/moonbotlabs/moonbot/internal/retry"
)

// Seller closes positions. Implemented by the executor.
type Seller interface {
	Sell(ctx context.Context, asset string, req domain.SellRequest) (domain.Position, error)
}

// Config holds the monitor's thresholds and pacing.
type Config struct {
	// TakeProfitPct and StopLossPct are percentages relative to the entry
	// price (10 means 10 %).
	TakeProfitPct float64
	StopLossPct   float64
	// PollDelay separates consecutive assets within a cycle and is the wait
	// when the store is empty. CycleDelay separates full sweeps.
	PollDelay  time.Duration
	CycleDelay time.Duration
	// Execute gates selling. When false the loop observes and records
	// prices but suppresses triggers (master switch off).
	Execute bool
}

// Monitor is the polling loop over open positions.
type Monitor struct {
	store   domain.PositionStore
	oracle  domain.PriceSource
	seller  Seller
	prices  domain.PriceCache // optional write-through mirror
	sleeper retry.Sleeper
	cfg     Config
	logger  *slog.Logger
}

// New creates a Monitor. The prices cache may be nil.
func New(
	store domain.PositionStore,
	oracle domain.PriceSource,
	seller Seller,
	prices domain.PriceCache,
	cfg Config,
	logger *slog.Logger,
) *Monitor {
	return &Monitor{
		store:   store,
		oracle:  oracle,
		seller:  seller,
		prices:  prices,
		sleeper: retry.RealSleeper{},
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "monitor")),
	}
}

// SetSleeper replaces the pacing sleeper. Tests use this to drive cycles
// without real delays.
func (m *Monitor) SetSleeper(s retry.Sleeper) {
	m.sleeper = s
}

// Run sweeps positions until ctx is cancelled. The loop never terminates on
// an internal error: a failing asset is logged and the sweep continues, and
// an unreadable store backs off one cycle and retries rather than aborting
// (or overwriting the store).
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor started",
		slog.Float64("take_profit_pct", m.cfg.TakeProfitPct),
		slog.Float64("stop_loss_pct", m.cfg.StopLossPct),
		slog.Bool("execute", m.cfg.Execute),
	)
	defer m.logger.Info("monitor stopped")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.cycle(ctx); err != nil {
			return err
		}
	}
}

// cycle performs one full sweep. It returns an error only when ctx ends.
func (m *Monitor) cycle(ctx context.Context) error {
	book, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Error("store load failed, backing off",
			slog.String("error", err.Error()),
		)
		return m.sleeper.Sleep(ctx, m.cfg.CycleDelay)
	}

	swept := 0
	for _, asset := range book.Assets() {
		pos, ok := book.Get(asset)
		if !ok || !pos.Monitorable() {
			continue
		}
		swept++

		m.check(ctx, pos)

		if err := m.sleeper.Sleep(ctx, m.cfg.PollDelay); err != nil {
			return err
		}
	}

	if swept == 0 {
		// Nothing to watch: wait one polling interval and reload.
		return m.sleeper.Sleep(ctx, m.cfg.PollDelay)
	}
	return m.sleeper.Sleep(ctx, m.cfg.CycleDelay)
}

// check polls one position, persists the observed price, and triggers a sell
// when a threshold is crossed. Failures are logged, never propagated.
func (m *Monitor) check(ctx context.Context, pos domain.Position) {
	log := m.logger.With(slog.String("asset", pos.Asset))

	price, err := m.oracle.FetchPrice(ctx, pos.Asset)
	if err != nil {
		log.Warn("price unavailable, skipping asset",
			slog.String("error", err.Error()),
		)
		return
	}

	updated, err := m.store.Update(ctx, pos.Asset, func(p *domain.Position) error {
		p.LastPrice = price
		return nil
	})
	if err != nil {
		log.Warn("could not persist observed price",
			slog.String("error", err.Error()),
		)
		return
	}
	if m.prices != nil {
		if err := m.prices.SetPrice(ctx, pos.Asset, price, time.Now().UTC()); err != nil {
			log.Debug("price cache write failed",
				slog.String("error", err.Error()),
			)
		}
	}
	if !updated.Monitorable() {
		// Closed by a scheduler between load and update.
		return
	}

	takeProfit := updated.TakeProfitPrice(m.cfg.TakeProfitPct)
	stopLoss := updated.StopLossPrice(m.cfg.StopLossPct)

	switch {
	case price >= takeProfit:
		log.Info("take-profit hit",
			slog.Float64("price", price),
			slog.Float64("threshold", takeProfit),
		)
		m.trigger(ctx, updated, "take_profit")

	case price <= stopLoss:
		log.Warn("stop-loss hit",
			slog.Float64("price", price),
			slog.Float64("threshold", stopLoss),
		)
		m.trigger(ctx, updated, "stop_loss")

	default:
		log.Debug("within thresholds, no action",
			slog.Float64("price", price),
			slog.Float64("take_profit", takeProfit),
			slog.Float64("stop_loss", stopLoss),
		)
	}
}

// trigger closes the full position for the given reason.
func (m *Monitor) trigger(ctx context.Context, pos domain.Position, reason string) {
	log := m.logger.With(slog.String("asset", pos.Asset), slog.String("reason", reason))

	if !m.cfg.Execute {
		log.Info("trading disabled, trigger suppressed")
		return
	}

	_, err := m.seller.Sell(ctx, pos.Asset, domain.SellRequest{
		Amount:       pos.UnitsHeld,
		Denomination: domain.DenomUnits,
		Reason:       reason,
	})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrLockHeld):
		log.Info("sell already in flight, skipping")
	default:
		log.Error("triggered sell failed",
			slog.String("error", err.Error()),
		)
	}
}
