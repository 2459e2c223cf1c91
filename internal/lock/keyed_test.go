package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonbotlabs/moonbot/internal/domain"
)

func TestAcquireRejectsHeldKey(t *testing.T) {
	k := NewKeyed()
	ctx := context.Background()

	unlock, err := k.Acquire(ctx, "buy:MOON", time.Minute)
	require.NoError(t, err)

	_, err = k.Acquire(ctx, "buy:MOON", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()

	unlock2, err := k.Acquire(ctx, "buy:MOON", time.Minute)
	require.NoError(t, err)
	unlock2()
}

func TestDistinctKeysAreIndependent(t *testing.T) {
	k := NewKeyed()
	ctx := context.Background()

	unlockBuy, err := k.Acquire(ctx, "buy:MOON", 0)
	require.NoError(t, err)
	defer unlockBuy()

	unlockSell, err := k.Acquire(ctx, "sell:MOON", 0)
	require.NoError(t, err)
	defer unlockSell()
}

func TestUnlockIsIdempotent(t *testing.T) {
	k := NewKeyed()
	ctx := context.Background()

	unlock, err := k.Acquire(ctx, "buy:MOON", 0)
	require.NoError(t, err)

	unlock()
	// A second holder takes the lock.
	_, err = k.Acquire(ctx, "buy:MOON", 0)
	require.NoError(t, err)

	// Replaying the first unlock must not release the second holder's lock.
	unlock()
	_, err = k.Acquire(ctx, "buy:MOON", 0)
	assert.ErrorIs(t, err, domain.ErrLockHeld)
}
