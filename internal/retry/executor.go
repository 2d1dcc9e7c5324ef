package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TerminalFailure wraps the last error once retries (attempts, budget, or
// breaker) are exhausted. Callers inspect Action to decide whether to
// stop the job, continue past this item, or run a fallback command.
type TerminalFailure struct {
	Err    error
	Action OnFailureAction
	State  State
}

func (f *TerminalFailure) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempt(s): %v", f.State.AttemptCount, f.Err)
}

func (f *TerminalFailure) Unwrap() error { return f.Err }

// ErrCircuitOpen is returned when the circuit breaker refuses a call
// outright, before any attempt is made.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Clock abstracts time.Now and time.Sleep so tests can run a retry
// sequence without real delays.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock sleeps for real, honoring context cancellation.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Executor runs an operation under a Policy, optionally guarded by a
// CircuitBreaker shared across calls for the same command identity.
type Executor struct {
	clock Clock
	rand  func() float64
}

// NewExecutor constructs an Executor using real time and randomness.
func NewExecutor() *Executor {
	return &Executor{clock: RealClock{}, rand: defaultRand}
}

// WithClock overrides the clock, for deterministic tests.
func (e *Executor) WithClock(c Clock) *Executor {
	e.clock = c
	return e
}

// WithRand overrides the jitter source, for deterministic tests.
func (e *Executor) WithRand(r func() float64) *Executor {
	e.rand = r
	return e
}

// Do runs fn under policy p, retrying per the delay schedule and
// classification rules in spec §4.E. breaker may be nil to disable
// circuit-breaking. It returns the operation's result on success, or a
// *TerminalFailure once retries are exhausted.
func Do[T any](ctx context.Context, e *Executor, p Policy, breaker *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, State, error) {
	state := NewState(p, e.clock.Now())

	var zero T
	for {
		now := e.clock.Now()

		if breaker != nil && !breaker.Allow(now) {
			state.CircuitOpen = true
			return zero, state, &TerminalFailure{Err: ErrCircuitOpen, Action: p.OnFailure, State: state}
		}

		attemptN := state.AttemptCount + 1
		started := now
		result, err := fn(ctx)
		duration := e.clock.Now().Sub(started)

		attempt := Attempt{Number: attemptN, StartedAt: started, Duration: duration}
		if err != nil {
			attempt.Err = err.Error()
		}
		state.RecordAttempt(attempt)

		if err == nil {
			if breaker != nil {
				breaker.RecordSuccess()
			}
			state.CircuitOpen = false
			return result, state, nil
		}

		if breaker != nil {
			breaker.RecordFailure(e.clock.Now())
		}

		if !shouldRetry(p, state, attemptN, err, e.clock.Now(), breaker) {
			return zero, state, &TerminalFailure{Err: err, Action: p.OnFailure, State: state}
		}

		delay := Delay(p, attemptN+1, e.rand)
		state.NextRetryAt = e.clock.Now().Add(delay)
		if sleepErr := e.clock.Sleep(ctx, delay); sleepErr != nil {
			return zero, state, &TerminalFailure{Err: sleepErr, Action: p.OnFailure, State: state}
		}
	}
}

// shouldRetry implements spec §4.E's classification formula:
//
//	attempt < attempts ∧ (retry_on empty OR any matcher matches) ∧
//	(retry_budget not exhausted) ∧ (breaker not Open)
func shouldRetry(p Policy, s State, attempt int, err error, now time.Time, breaker *CircuitBreaker) bool {
	if attempt >= p.Attempts {
		return false
	}
	if !p.MatchesAny(err) {
		return false
	}
	if s.BudgetExhausted(now) {
		return false
	}
	if breaker != nil && breaker.State() == BreakerOpen {
		return false
	}
	return true
}
