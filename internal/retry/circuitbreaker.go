package retry

import (
	"sync"
	"time"
)

// BreakerState is one of Closed, Open, or HalfOpen.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// BreakerConfig parameterises a CircuitBreaker.
type BreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	HalfOpenMaxCalls int // calls permitted while HalfOpen before deciding
}

// CircuitBreaker is a per-command-id failure short-circuit. It is safe
// for concurrent use; the orchestrator keeps one instance per retryable
// command identity (e.g. a step's deterministic step ID).
type CircuitBreaker struct {
	mu sync.Mutex

	cfg BreakerConfig

	state                BreakerState
	consecutiveFailures  int
	openUntil            time.Time
	halfOpenSuccessCount int
	halfOpenCalls        int
}

// NewCircuitBreaker constructs a breaker starting Closed.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg, state: BreakerClosed}
}

// Allow reports whether a call may proceed, advancing Open -> HalfOpen
// once the recovery timeout has elapsed.
func (b *CircuitBreaker) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if now.Before(b.openUntil) {
			return false
		}
		b.state = BreakerHalfOpen
		b.halfOpenSuccessCount = 0
		b.halfOpenCalls = 0
		return true
	case BreakerHalfOpen:
		if b.cfg.HalfOpenMaxCalls > 0 && b.halfOpenCalls >= b.cfg.HalfOpenMaxCalls {
			return false
		}
		b.halfOpenCalls++
		return true
	default:
		return true
	}
}

// RecordSuccess registers a successful call. In HalfOpen, enough
// successes restore Closed; in Closed it simply resets the failure
// streak.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerHalfOpen:
		b.halfOpenSuccessCount++
		if b.halfOpenSuccessCount >= max(1, b.cfg.FailureThreshold) {
			b.state = BreakerClosed
			b.consecutiveFailures = 0
		}
	default:
		b.consecutiveFailures = 0
	}
}

// RecordFailure registers a failed call. Any failure in HalfOpen re-opens
// immediately with a fresh deadline; in Closed, the breaker opens once
// consecutive failures reach FailureThreshold.
func (b *CircuitBreaker) RecordFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerHalfOpen:
		b.open(now)
	default:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.cfg.FailureThreshold {
			b.open(now)
		}
	}
}

func (b *CircuitBreaker) open(now time.Time) {
	b.state = BreakerOpen
	b.openUntil = now.Add(b.cfg.RecoveryTimeout)
	b.halfOpenSuccessCount = 0
	b.halfOpenCalls = 0
}

// State returns the breaker's current state, for observability/checkpointing.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
