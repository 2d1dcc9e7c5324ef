package retry

import "time"

// Attempt records one completed try within a retry sequence.
type Attempt struct {
	Number    int
	StartedAt time.Time
	Duration  time.Duration
	Err       string // empty on success
}

// State is the progress of a retry sequence for one command, matching
// spec §3's per-command retry state. Every delay schedule, Fibonacci
// included, is a pure function of the attempt number, so BackoffState
// is not consulted when computing delays.
type State struct {
	AttemptCount    int
	MaxAttempts     int
	LastAttemptAt   time.Time
	NextRetryAt     time.Time
	BackoffState    BackoffState
	History         []Attempt
	CircuitOpen     bool
	BudgetExpiresAt time.Time // zero means no budget
	TotalRetryTime  time.Duration
}

// BackoffState holds a Fibonacci pair, seeded to (1, 1) by NewState for
// the Fibonacci schedule, and a CurrentDelay field. Nothing advances or
// reads these fields.
type BackoffState struct {
	FibPrev, FibCurr int64
	CurrentDelay     time.Duration
}

// NewState seeds a fresh State from a Policy. now anchors the retry
// budget deadline; callers pass their Clock's current time so budget
// accounting stays consistent under an injected clock in tests.
func NewState(p Policy, now time.Time) State {
	s := State{MaxAttempts: p.Attempts}
	if p.RetryBudget > 0 {
		s.BudgetExpiresAt = now.Add(p.RetryBudget)
	}
	if p.Backoff == BackoffFibonacci {
		s.BackoffState = BackoffState{FibPrev: 1, FibCurr: 1}
	}
	return s
}

// RecordAttempt appends an attempt to history and advances counters.
func (s *State) RecordAttempt(a Attempt) {
	s.AttemptCount++
	s.LastAttemptAt = a.StartedAt
	s.History = append(s.History, a)
	s.TotalRetryTime += a.Duration
}

// BudgetExhausted reports whether the wall-clock retry budget (if any)
// has elapsed as of now.
func (s State) BudgetExhausted(now time.Time) bool {
	if s.BudgetExpiresAt.IsZero() {
		return false
	}
	return now.After(s.BudgetExpiresAt)
}
