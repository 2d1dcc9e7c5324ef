package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeClock advances instantly on Sleep so retry tests run without real
// delays, while still recording how much total time was "slept".
type fakeClock struct {
	now   time.Time
	slept time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.now = c.now.Add(d)
	c.slept += d
	return nil
}

type classifiedError struct {
	msg   string
	class ErrorClass
}

func (e classifiedError) Error() string          { return e.msg }
func (e classifiedError) ErrorClass() ErrorClass { return e.class }

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	e := NewExecutor().WithClock(&fakeClock{now: time.Now()})
	calls := 0

	result, state, err := Do(context.Background(), e, DefaultPolicy(), nil, func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Errorf("got %q", result)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if state.AttemptCount != 1 {
		t.Errorf("expected AttemptCount 1, got %d", state.AttemptCount)
	}
}

func TestDo_RetriesThenSucceeds(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	e := NewExecutor().WithClock(clock).WithRand(func() float64 { return 0.5 })

	p := Policy{
		Attempts:     3,
		Backoff:      BackoffExponential,
		InitialDelay: 10 * time.Millisecond,
		Base:         2,
		RetryOn:      []Matcher{ClassMatcher(ErrorNetwork)},
	}

	calls := 0
	result, state, err := Do(context.Background(), e, p, nil, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", classifiedError{msg: "connection refused", class: ErrorNetwork}
		}
		return "done", nil
	})

	if err != nil {
		t.Fatalf("unexpected terminal failure: %v", err)
	}
	if result != "done" {
		t.Errorf("got %q", result)
	}
	if state.AttemptCount != 3 {
		t.Errorf("expected 3 attempts, got %d", state.AttemptCount)
	}
	if clock.slept < 30*time.Millisecond {
		t.Errorf("expected at least 30ms total sleep, got %v", clock.slept)
	}
}

func TestDo_NonMatchingErrorGoesStraightToTerminal(t *testing.T) {
	e := NewExecutor().WithClock(&fakeClock{now: time.Now()})
	p := Policy{
		Attempts: 3,
		Backoff:  BackoffFixed,
		RetryOn:  []Matcher{ClassMatcher(ErrorNetwork)},
	}

	calls := 0
	_, state, err := Do(context.Background(), e, p, nil, func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("syntax error")
	})

	var terminal *TerminalFailure
	if !errors.As(err, &terminal) {
		t.Fatalf("expected *TerminalFailure, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 attempt (no retry on mismatched class), got %d", calls)
	}
	if state.AttemptCount != 1 {
		t.Errorf("expected AttemptCount 1, got %d", state.AttemptCount)
	}
}

func TestDo_AttemptsOneNeverRetries(t *testing.T) {
	e := NewExecutor().WithClock(&fakeClock{now: time.Now()})
	p := Policy{Attempts: 1, Backoff: BackoffFixed}

	calls := 0
	_, _, err := Do(context.Background(), e, p, nil, func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("boom")
	})

	if err == nil {
		t.Fatal("expected terminal failure")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_BudgetExhaustionStopsRetrying(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	e := NewExecutor().WithClock(clock)
	p := Policy{
		Attempts:     10,
		Backoff:      BackoffFixed,
		InitialDelay: time.Hour,
		RetryBudget:  time.Millisecond,
	}

	calls := 0
	_, state, err := Do(context.Background(), e, p, nil, func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("boom")
	})

	var terminal *TerminalFailure
	if !errors.As(err, &terminal) {
		t.Fatalf("expected *TerminalFailure, got %v", err)
	}
	// The first failed attempt still has budget remaining, so one retry
	// sleep runs; that sleep blows through the 1ms budget, and the
	// classification check after the second attempt stops the loop.
	if calls != 2 {
		t.Errorf("expected exactly 2 attempts (budget checked post-attempt), got %d", calls)
	}
	if state.AttemptCount != 2 {
		t.Errorf("expected AttemptCount 2, got %d", state.AttemptCount)
	}
}

func TestDo_CircuitOpenShortCircuitsBeforeCall(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	e := NewExecutor().WithClock(clock)
	breaker := NewCircuitBreaker(BreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Hour})
	breaker.Allow(clock.now)
	breaker.RecordFailure(clock.now)

	p := Policy{Attempts: 5, Backoff: BackoffFixed}

	calls := 0
	_, _, err := Do(context.Background(), e, p, breaker, func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("boom")
	})

	var terminal *TerminalFailure
	if !errors.As(err, &terminal) {
		t.Fatalf("expected *TerminalFailure, got %v", err)
	}
	if !errors.Is(terminal.Err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", terminal.Err)
	}
	if calls != 0 {
		t.Errorf("expected no calls while breaker is open, got %d", calls)
	}
}
