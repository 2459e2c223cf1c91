// Package executor owns every order that mutates the position store. Buys
// and sells are guarded by per-asset try-locks so a second submission for an
// asset already in flight is rejected rather than queued, and all store
// writes happen through the store's own serialization point.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/moonbotlabs/moonbot/internal/domain"
	"github.com/moonbotlabs/moonbot/internal/retry"
)

// Alerter delivers operator notifications. Delivery failures are logged and
// never affect order handling.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config holds the executor's retry and locking parameters.
type Config struct {
	// MaxSellRetries is the number of retries after the initial sell
	// attempt; exhausting them transitions the position to failed.
	MaxSellRetries int
	// SellRetryDelay is the base backoff delay; the n-th retry waits
	// n times this long.
	SellRetryDelay time.Duration
	// LockTTL bounds how long a distributed lock implementation holds an
	// abandoned lock. Ignored by the in-process lock manager.
	LockTTL time.Duration
}

// Executor submits buy and sell orders and reconciles the results into the
// position store.
type Executor struct {
	store   domain.PositionStore
	exch    domain.ExecutionClient
	oracle  domain.PriceSource
	prices  domain.PriceCache // optional read-through quote cache
	locks   domain.LockManager
	alerter Alerter
	sleeper retry.Sleeper
	cfg     Config
	logger  *slog.Logger
}

// New creates an Executor. The prices cache and alerter may be nil.
func New(
	store domain.PositionStore,
	exch domain.ExecutionClient,
	oracle domain.PriceSource,
	prices domain.PriceCache,
	locks domain.LockManager,
	alerter Alerter,
	cfg Config,
	logger *slog.Logger,
) *Executor {
	if cfg.SellRetryDelay <= 0 {
		cfg.SellRetryDelay = 2 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Minute
	}
	return &Executor{
		store:   store,
		exch:    exch,
		oracle:  oracle,
		prices:  prices,
		locks:   locks,
		alerter: alerter,
		sleeper: retry.RealSleeper{},
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "executor")),
	}
}

// SetSleeper replaces the backoff sleeper. Tests use this to run the sell
// retry schedule without real delays.
func (e *Executor) SetSleeper(s retry.Sleeper) {
	e.sleeper = s
}

// Buy submits a buy for amount of base currency and upserts the resulting
// position: first fill creates it, a fill into a sold position reopens it,
// a fill into a bought position accumulates. Concurrent buys for the same
// asset are rejected with domain.ErrLockHeld. A failed position rejects the
// buy before anything is submitted.
func (e *Executor) Buy(ctx context.Context, asset string, amount float64) (domain.Position, error) {
	if amount <= 0 {
		return domain.Position{}, fmt.Errorf("executor: buy %s: non-positive amount %v", asset, amount)
	}

	unlock, err := e.locks.Acquire(ctx, "buy:"+asset, e.cfg.LockTTL)
	if err != nil {
		return domain.Position{}, fmt.Errorf("executor: buy %s: %w", asset, err)
	}
	defer unlock()

	// Reject failed positions before touching the execution API; reopening
	// them is an operator decision.
	book, err := e.store.Load(ctx)
	if err != nil {
		return domain.Position{}, fmt.Errorf("executor: buy %s: %w", asset, err)
	}
	if existing, ok := book.Get(asset); ok && existing.Status == domain.PositionStatusFailed {
		return domain.Position{}, fmt.Errorf("executor: buy %s: %w", asset, domain.ErrPositionFailed)
	}

	fill, err := e.exch.Buy(ctx, asset, amount)
	if err != nil {
		e.logger.Error("buy submission failed",
			slog.String("asset", asset),
			slog.Float64("amount", amount),
			slog.String("error", err.Error()),
		)
		return domain.Position{}, fmt.Errorf("executor: buy %s: %w", asset, err)
	}

	pos, err := e.store.Upsert(ctx, asset, func(p *domain.Position, _ bool) error {
		return p.ApplyBuy(asset, amount, fill.UnitsReceived, fill.ExecutionPrice)
	})
	if err != nil {
		// The order filled but the store write failed; this needs the
		// operator's eyes, not an automatic resubmission.
		e.logger.Error("buy filled but store update failed",
			slog.String("asset", asset),
			slog.String("tx_ref", fill.TxRef),
			slog.String("error", err.Error()),
		)
		return domain.Position{}, fmt.Errorf("executor: buy %s: record fill: %w", asset, err)
	}

	e.logger.Info("buy filled",
		slog.String("asset", asset),
		slog.Float64("amount", amount),
		slog.Float64("units", fill.UnitsReceived),
		slog.Float64("price", fill.ExecutionPrice),
		slog.String("tx_ref", fill.TxRef),
	)
	e.notify(ctx, "position_opened", "Buy filled",
		fmt.Sprintf("%s: %.6f for %.4f at %.10f", asset, fill.UnitsReceived, amount, fill.ExecutionPrice))

	return pos, nil
}

// Sell sizes, submits, and reconciles a sell. Sizing is either a
// base-currency amount converted at the live quote or a direct unit count.
// Transient failures are retried with linearly growing backoff up to
// MaxSellRetries; exhaustion transitions the position to failed exactly once.
// Concurrent sells for the same asset are rejected with domain.ErrLockHeld.
func (e *Executor) Sell(ctx context.Context, asset string, req domain.SellRequest) (domain.Position, error) {
	if req.Amount <= 0 {
		return domain.Position{}, fmt.Errorf("executor: sell %s: non-positive amount %v", asset, req.Amount)
	}

	unlock, err := e.locks.Acquire(ctx, "sell:"+asset, e.cfg.LockTTL)
	if err != nil {
		return domain.Position{}, fmt.Errorf("executor: sell %s: %w", asset, err)
	}
	defer unlock()

	book, err := e.store.Load(ctx)
	if err != nil {
		return domain.Position{}, fmt.Errorf("executor: sell %s: %w", asset, err)
	}
	pos, ok := book.Get(asset)
	if !ok {
		return domain.Position{}, fmt.Errorf("executor: sell %s: %w", asset, domain.ErrNotFound)
	}
	if pos.Status != domain.PositionStatusBought {
		return domain.Position{}, fmt.Errorf("executor: sell %s: position is %s, nothing to sell", asset, pos.Status)
	}

	units, err := e.sizeSell(ctx, asset, pos, req)
	if err != nil {
		return domain.Position{}, err
	}

	policy := retry.Policy{
		MaxAttempts: e.cfg.MaxSellRetries + 1,
		BaseDelay:   e.cfg.SellRetryDelay,
		Multiplier:  1,
	}

	var receipt domain.SellReceipt
	sellErr := retry.Do(ctx, policy, e.sleeper, func(ctx context.Context) error {
		r, err := e.exch.Sell(ctx, asset, units)
		if err != nil {
			e.logger.Warn("sell attempt failed",
				slog.String("asset", asset),
				slog.String("reason", req.Reason),
				slog.String("error", err.Error()),
			)
			return err
		}
		receipt = r
		return nil
	})
	if sellErr != nil {
		return e.failPosition(ctx, asset, req, sellErr)
	}

	exitPrice := 0.0
	if units > 0 {
		exitPrice = receipt.Proceeds / units
	}
	pos, err = e.store.Update(ctx, asset, func(p *domain.Position) error {
		return p.MarkSold(exitPrice, receipt.Proceeds)
	})
	if err != nil {
		e.logger.Error("sell executed but store update failed",
			slog.String("asset", asset),
			slog.String("tx_ref", receipt.TxRef),
			slog.String("error", err.Error()),
		)
		return domain.Position{}, fmt.Errorf("executor: sell %s: record close: %w", asset, err)
	}

	e.logger.Info("position closed",
		slog.String("asset", asset),
		slog.String("reason", req.Reason),
		slog.Float64("units", units),
		slog.Float64("proceeds", receipt.Proceeds),
		slog.String("tx_ref", receipt.TxRef),
	)
	e.notify(ctx, "position_closed", "Position closed",
		fmt.Sprintf("%s: sold %.6f for %.4f (%s)", asset, units, receipt.Proceeds, req.Reason))

	return pos, nil
}

// sizeSell converts a sell request into a unit count and verifies the held
// balance covers it.
func (e *Executor) sizeSell(ctx context.Context, asset string, pos domain.Position, req domain.SellRequest) (float64, error) {
	var units float64
	switch req.Denomination {
	case domain.DenomUnits:
		units = req.Amount
	case domain.DenomQuote, "":
		price, err := e.quote(ctx, asset)
		if err != nil {
			return 0, fmt.Errorf("executor: sell %s: size at quote: %w", asset, err)
		}
		units = req.Amount / price
	default:
		return 0, fmt.Errorf("executor: sell %s: unknown denomination %q", asset, req.Denomination)
	}

	if units > pos.UnitsHeld {
		return 0, fmt.Errorf("executor: sell %s: want %v units, hold %v: %w",
			asset, units, pos.UnitsHeld, domain.ErrInsufficientBalance)
	}
	return units, nil
}

// quote returns the freshest known price for asset: the shared quote cache
// when it holds an entry, the oracle otherwise. Cache entries expire on their
// TTL, so a hit is always recent enough for sizing.
func (e *Executor) quote(ctx context.Context, asset string) (float64, error) {
	if e.prices != nil {
		if price, _, err := e.prices.GetPrice(ctx, asset); err == nil && price > 0 {
			return price, nil
		}
	}
	return e.oracle.FetchPrice(ctx, asset)
}

// failPosition marks the position failed after sell-retry exhaustion. The
// transition happens once; the position then requires operator intervention.
func (e *Executor) failPosition(ctx context.Context, asset string, req domain.SellRequest, sellErr error) (domain.Position, error) {
	if errors.Is(sellErr, context.Canceled) || errors.Is(sellErr, context.DeadlineExceeded) {
		// Shutdown, not exhaustion: leave the position as-is.
		return domain.Position{}, fmt.Errorf("executor: sell %s: %w", asset, sellErr)
	}

	pos, err := e.store.Update(ctx, asset, func(p *domain.Position) error {
		return p.MarkFailed()
	})
	if err != nil {
		e.logger.Error("could not mark position failed",
			slog.String("asset", asset),
			slog.String("error", err.Error()),
		)
		return domain.Position{}, fmt.Errorf("executor: sell %s: mark failed: %w", asset, err)
	}

	e.logger.Error("sell retries exhausted, position marked failed",
		slog.String("asset", asset),
		slog.String("reason", req.Reason),
		slog.Int("max_retries", e.cfg.MaxSellRetries),
		slog.String("error", sellErr.Error()),
	)
	e.notify(ctx, "sell_failed", "Sell failed",
		fmt.Sprintf("%s: retries exhausted (%s), operator action required", asset, req.Reason))

	return pos, fmt.Errorf("executor: sell %s: %w", asset, sellErr)
}

// notify sends a best-effort operator notification.
func (e *Executor) notify(ctx context.Context, event, title, message string) {
	if e.alerter == nil {
		return
	}
	if err := e.alerter.Notify(ctx, event, title, message); err != nil {
		e.logger.Warn("notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
