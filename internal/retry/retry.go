// Package retry provides a bounded, clock-injectable retry policy. Retries
// are always iterative and always terminate; the delay schedule is described
// by an explicit policy object rather than scattered sleeps.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Sleeper abstracts the inter-attempt delay so tests can run without real
// time passing.
type Sleeper interface {
	// Sleep waits for d or until ctx is done, returning ctx.Err() in the
	// latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// RealSleeper implements Sleeper with the wall clock.
type RealSleeper struct{}

// Sleep waits for d or until ctx is cancelled.
func (RealSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Policy describes a bounded retry schedule. The delay before retrying after
// the n-th failed attempt (1-based) is BaseDelay * (1 + Multiplier*(n-1)):
// a zero Multiplier gives a fixed delay, a Multiplier of 1 grows the delay
// linearly with the attempt count.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// Delay returns the pause after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(float64(p.BaseDelay) * (1 + p.Multiplier*float64(attempt-1)))
}

// Do runs op up to p.MaxAttempts times, sleeping p.Delay between attempts.
// It returns nil on the first success, ctx.Err() if the context ends first,
// and the last error wrapped with the attempt count after exhaustion.
func Do(ctx context.Context, p Policy, s Sleeper, op func(ctx context.Context) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if s == nil {
		s = RealSleeper{}
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == p.MaxAttempts {
			break
		}
		if err := s.Sleep(ctx, p.Delay(attempt)); err != nil {
			return err
		}
	}
	return fmt.Errorf("after %d attempt(s): %w", p.MaxAttempts, lastErr)
}
