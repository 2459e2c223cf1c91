// Package scheduler drives the periodic trading cadence: a buy tick and a
// sell tick on independent intervals for the configured asset. Ticks are
// fire-and-forget; a tick that cannot run (lock held, balance short) is
// skipped, never queued, and the next tick proceeds on schedule.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/moonbotlabs/moonbot/internal/domain"
)

// Trader places scheduled orders. Implemented by the executor.
type Trader interface {
	Buy(ctx context.Context, asset string, amount float64) (domain.Position, error)
	Sell(ctx context.Context, asset string, req domain.SellRequest) (domain.Position, error)
}

// Config holds the schedule and sizing for the traded asset.
type Config struct {
	// Asset is the instrument bought and sold on schedule.
	Asset string
	// QuoteAsset is the base currency whose balance gates buys.
	QuoteAsset string
	// BuyAmount and SellAmount are denominated in the base currency
	// (SellAmount per SellDenomination).
	BuyAmount  float64
	SellAmount float64
	// SellDenomination sizes scheduled sells: base-currency value at the
	// live quote, or a direct unit count.
	SellDenomination domain.Denomination
	// BuyInterval and SellInterval pace the two tickers independently.
	// A non-positive interval disables that side.
	BuyInterval  time.Duration
	SellInterval time.Duration
}

// Scheduler runs the buy and sell tickers.
type Scheduler struct {
	trader  Trader
	balance domain.BalanceSource
	cfg     Config
	logger  *slog.Logger
}

// New creates a Scheduler. The balance source may be nil, in which case buys
// are submitted without a funds pre-check.
func New(trader Trader, balance domain.BalanceSource, cfg Config, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		trader:  trader,
		balance: balance,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "scheduler")),
	}
}

// Run ticks until ctx is cancelled. The two sides share one goroutine; a
// slow tick delays the other side's next tick rather than overlapping it,
// which keeps at most one scheduled order in flight per process.
func (s *Scheduler) Run(ctx context.Context) error {
	var buyC, sellC <-chan time.Time

	if s.cfg.BuyInterval > 0 {
		buyTicker := time.NewTicker(s.cfg.BuyInterval)
		defer buyTicker.Stop()
		buyC = buyTicker.C
	}
	if s.cfg.SellInterval > 0 {
		sellTicker := time.NewTicker(s.cfg.SellInterval)
		defer sellTicker.Stop()
		sellC = sellTicker.C
	}
	if buyC == nil && sellC == nil {
		s.logger.Warn("both intervals disabled, scheduler idle")
		<-ctx.Done()
		return ctx.Err()
	}

	s.logger.Info("scheduler started",
		slog.String("asset", s.cfg.Asset),
		slog.Duration("buy_interval", s.cfg.BuyInterval),
		slog.Duration("sell_interval", s.cfg.SellInterval),
	)
	defer s.logger.Info("scheduler stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-buyC:
			s.buyTick(ctx)
		case <-sellC:
			s.sellTick(ctx)
		}
	}
}

// buyTick submits one scheduled buy, skipping when funds are short or a buy
// for the asset is already in flight.
func (s *Scheduler) buyTick(ctx context.Context) {
	log := s.logger.With(slog.String("asset", s.cfg.Asset))

	if s.balance != nil {
		avail, err := s.balance.Balance(ctx, s.cfg.QuoteAsset)
		if err != nil {
			log.Warn("balance check failed, skipping buy tick",
				slog.String("error", err.Error()),
			)
			return
		}
		if avail < s.cfg.BuyAmount {
			log.Warn("insufficient funds, skipping buy tick",
				slog.Float64("available", avail),
				slog.Float64("required", s.cfg.BuyAmount),
			)
			return
		}
	}

	_, err := s.trader.Buy(ctx, s.cfg.Asset, s.cfg.BuyAmount)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrLockHeld):
		log.Info("buy already in flight, skipping tick")
	case errors.Is(err, domain.ErrPositionFailed):
		log.Warn("position failed, buy rejected, operator action required")
	default:
		log.Error("scheduled buy failed",
			slog.String("error", err.Error()),
		)
	}
}

// sellTick submits one scheduled partial sell.
func (s *Scheduler) sellTick(ctx context.Context) {
	log := s.logger.With(slog.String("asset", s.cfg.Asset))

	_, err := s.trader.Sell(ctx, s.cfg.Asset, domain.SellRequest{
		Amount:       s.cfg.SellAmount,
		Denomination: s.cfg.SellDenomination,
		Reason:       "scheduled",
	})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrLockHeld):
		log.Info("sell already in flight, skipping tick")
	case errors.Is(err, domain.ErrNotFound):
		log.Info("no position to sell, skipping tick")
	case errors.Is(err, domain.ErrInsufficientBalance):
		log.Warn("held units below scheduled sell size, skipping tick")
	default:
		log.Error("scheduled sell failed",
			slog.String("error", err.Error()),
		)
	}
}
