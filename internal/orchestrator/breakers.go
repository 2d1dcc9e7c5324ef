package orchestrator

import (
	"sync"

	"github.com/iepathos/prodigy/internal/retry"
)

// breakerRegistry hands out one *retry.CircuitBreaker per command
// identity (a step's deterministic ID), shared across every work
// item's agent task so that failures on one item push the same
// command's breaker toward Open for all of them, per spec §4.E's
// "Circuit breaker (per command id)".
type breakerRegistry struct {
	mu       sync.Mutex
	cfg      retry.BreakerConfig
	breakers map[string]*retry.CircuitBreaker
}

func newBreakerRegistry(cfg retry.BreakerConfig) *breakerRegistry {
	return &breakerRegistry{cfg: cfg, breakers: make(map[string]*retry.CircuitBreaker)}
}

// forCommand returns the shared breaker for id, creating it on first
// use. A nil registry (tests that build AgentTaskParams directly)
// returns nil, which retry.Do treats as "no breaker".
func (r *breakerRegistry) forCommand(id string) *retry.CircuitBreaker {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[id]
	if !ok {
		b = retry.NewCircuitBreaker(r.cfg)
		r.breakers[id] = b
	}
	return b
}
