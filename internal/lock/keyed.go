// Package lock provides the default in-process implementation of
// domain.LockManager: a keyed try-lock guarding per-asset order submission
// within a single bot process.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/moonbotlabs/moonbot/internal/domain"
)

// Keyed is a set of named try-locks. A second Acquire for a held key fails
// immediately with domain.ErrLockHeld rather than blocking.
type Keyed struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewKeyed returns an empty lock set.
func NewKeyed() *Keyed {
	return &Keyed{held: make(map[string]struct{})}
}

// Acquire takes the lock for key. The ttl is ignored: in-process locks are
// released by the returned unlock function, which is safe to call more than
// once and must be called on every exit path.
func (k *Keyed) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, taken := k.held[key]; taken {
		return nil, fmt.Errorf("lock %s: %w", key, domain.ErrLockHeld)
	}
	k.held[key] = struct{}{}

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			k.mu.Lock()
			delete(k.held, key)
			k.mu.Unlock()
		})
	}
	return unlock, nil
}

// Compile-time interface check.
var _ domain.LockManager = (*Keyed)(nil)
