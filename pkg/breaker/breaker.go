// Package breaker implements a two-state circuit breaker: failures are
// counted while closed, the breaker opens at a threshold, and after the
// cooldown elapses the counter is reset and the next call is admitted
// directly. There is no half-open state.
package breaker

import (
	"sync"
	"time"

	apperrors "github.com/lwoyr/AdsTrendsAPI/internal/errors"
)

// Breaker tracks consecutive failures for one upstream.
type Breaker struct {
	mu       sync.Mutex
	name     string
	thresh   int
	cooldown time.Duration

	consecutiveFailures int
	openedAt            time.Time

	now func() time.Time
}

// Snapshot is a point-in-time view of the breaker state.
type Snapshot struct {
	ConsecutiveFailures int
	Open                bool
	RemainingCooldown   time.Duration
}

// New creates a breaker for the named upstream.
func New(name string, threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		name:     name,
		thresh:   threshold,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// WithClock overrides the breaker's clock. Test hook.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.now = now
	return b
}

// Allow returns nil when a call may proceed, or a breaker_open error
// carrying the remaining cooldown. Once the cooldown has elapsed the
// state is reset and the call is admitted.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.consecutiveFailures < b.thresh {
		return nil
	}

	if b.openedAt.IsZero() {
		b.openedAt = b.now()
	}

	elapsed := b.now().Sub(b.openedAt)
	if elapsed < b.cooldown {
		remaining := b.cooldown - elapsed
		return apperrors.Newf(apperrors.ErrorTypeBreakerOpen, "%s circuit breaker is open", b.name).
			WithDetailsf("retry in %.0fs", remaining.Seconds())
	}

	b.openedAt = time.Time{}
	b.consecutiveFailures = 0
	return nil
}

// Success resets the failure counter.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
	b.openedAt = time.Time{}
}

// Failure records one failed call.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures++
}

// ForceOpen trips the breaker immediately, as if the threshold had just
// been reached. Used when the upstream signals quota exhaustion.
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = b.thresh
	b.openedAt = b.now()
}

// Snapshot returns the current breaker state.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := Snapshot{ConsecutiveFailures: b.consecutiveFailures}
	if b.consecutiveFailures >= b.thresh {
		if b.openedAt.IsZero() {
			snap.Open = true
			snap.RemainingCooldown = b.cooldown
		} else if elapsed := b.now().Sub(b.openedAt); elapsed < b.cooldown {
			snap.Open = true
			snap.RemainingCooldown = b.cooldown - elapsed
		}
	}
	return snap
}
