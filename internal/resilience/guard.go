package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docstore-backend/internal/shared/telemetry"
)

// ErrUnavailable marks a dependency as down: either the breaker is open or
// every retry attempt failed.
var ErrUnavailable = errors.New("dependency unavailable")

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks an error as a definitive answer from the dependency.
// The guard returns the wrapped error as-is: no retries, no breaker charge,
// no ErrUnavailable wrapping. Use it for not-found, conflicts, and other
// outcomes retrying cannot change.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Policy controls retry and breaker behavior for one dependency.
type Policy struct {
	MaxAttempts      int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	CallTimeout      time.Duration
	FailureThreshold int
	Cooldown         time.Duration
}

// Guard wraps every call to one downstream dependency with a per-call
// timeout, capped exponential backoff, and a circuit breaker. Coordinators
// never call the backends directly.
type Guard struct {
	name    string
	policy  Policy
	breaker *Breaker
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewGuard constructs a Guard for the named dependency.
func NewGuard(name string, policy Policy) *Guard {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = 100 * time.Millisecond
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 5 * time.Second
	}
	return &Guard{
		name:    name,
		policy:  policy,
		breaker: NewBreaker(policy.FailureThreshold, policy.Cooldown),
		sleep:   sleepCtx,
	}
}

// Do runs fn under the guard. The returned error wraps ErrUnavailable when
// the breaker is open or all attempts failed; caller cancellation is passed
// through untouched and not charged to the breaker.
func (g *Guard) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if !g.breaker.Allow() {
		return fmt.Errorf("%s %s: circuit open: %w", g.name, op, ErrUnavailable)
	}

	var lastErr error
	for attempt := 0; attempt < g.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := g.sleep(ctx, g.backoff(attempt)); err != nil {
				g.breaker.ReleaseProbe()
				return err
			}
		}

		lastErr = g.call(ctx, fn)
		if lastErr == nil {
			g.breaker.RecordSuccess()
			return nil
		}
		var perm *permanentError
		if errors.As(lastErr, &perm) {
			// The dependency answered; its answer just happens to be an error.
			g.breaker.RecordSuccess()
			return perm.err
		}
		if ctx.Err() != nil {
			// The caller went away; the dependency is not to blame, and an
			// abandoned probe must not keep holding the half-open slot.
			g.breaker.ReleaseProbe()
			return ctx.Err()
		}

		telemetry.Warn("backend.retry", map[string]any{
			"dependency": g.name,
			"op":         op,
			"attempt":    attempt + 1,
			"max":        g.policy.MaxAttempts,
			"err":        lastErr.Error(),
		})
	}

	g.breaker.RecordFailure()
	return fmt.Errorf("%s %s: %w: %v", g.name, op, ErrUnavailable, lastErr)
}

// DoOnce runs fn under the breaker without retries, for calls that consume
// a streaming body and cannot be replayed.
func (g *Guard) DoOnce(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if !g.breaker.Allow() {
		return fmt.Errorf("%s %s: circuit open: %w", g.name, op, ErrUnavailable)
	}

	err := g.call(ctx, fn)
	if err == nil {
		g.breaker.RecordSuccess()
		return nil
	}
	var perm *permanentError
	if errors.As(err, &perm) {
		g.breaker.RecordSuccess()
		return perm.err
	}
	if ctx.Err() != nil {
		g.breaker.ReleaseProbe()
		return ctx.Err()
	}

	g.breaker.RecordFailure()
	return fmt.Errorf("%s %s: %w: %v", g.name, op, ErrUnavailable, err)
}

// State returns the breaker state for monitoring.
func (g *Guard) State() State {
	state, _ := g.breaker.Snapshot()
	return state
}

func (g *Guard) call(ctx context.Context, fn func(ctx context.Context) error) error {
	callCtx := ctx
	if g.policy.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.policy.CallTimeout)
		defer cancel()
	}
	return fn(callCtx)
}

func (g *Guard) backoff(attempt int) time.Duration {
	delay := g.policy.BaseDelay << (attempt - 1)
	if delay > g.policy.MaxDelay || delay <= 0 {
		delay = g.policy.MaxDelay
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
