package domain

import (
	"context"
	"time"
)

// PositionStore is the single source of truth for positions. Implementations
// MUST serialize all mutations internally: the monitor loop, the buy
// scheduler, and the sell scheduler each perform read-modify-write cycles
// concurrently, and two concurrent updates to the same asset (or to the full
// snapshot) must never lose either update.
type PositionStore interface {
	// Load returns a deep copy of the current book. A missing or empty
	// backing store yields an empty book; malformed content yields
	// ErrCorruptStore.
	Load(ctx context.Context) (*PositionBook, error)

	// Save atomically replaces the full book. A crashed process must never
	// leave a partially written snapshot behind.
	Save(ctx context.Context, book *PositionBook) error

	// Update applies fn to the position for asset under the store's
	// serialization point and persists the result. It returns ErrNotFound
	// when the asset is absent. When fn returns an error nothing is
	// persisted and the error is returned unchanged.
	Update(ctx context.Context, asset string, fn func(*Position) error) (Position, error)

	// Upsert is Update but creates a zero-value record (created=true) when
	// the asset is absent.
	Upsert(ctx context.Context, asset string, fn func(p *Position, created bool) error) (Position, error)
}

// LockManager hands out mutual-exclusion locks keyed by asset. Acquire never
// blocks on a held lock: it fails fast with ErrLockHeld so a second buy
// attempt while one is in flight is rejected, not queued. The returned unlock
// function is idempotent and must be called on every exit path.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// PriceCache mirrors the latest observed quote per asset for consumers
// outside the engine (dashboards, notifications). Best effort; the persisted
// position record remains authoritative.
type PriceCache interface {
	SetPrice(ctx context.Context, asset string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, asset string) (float64, time.Time, error)
}
