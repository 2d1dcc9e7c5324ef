// Package retry implements the Retry Executor (component E): it wraps a
// fallible operation with a backoff schedule, jitter, error-pattern
// classification, a wall-clock retry budget, and an optional circuit
// breaker.
package retry

import (
	"regexp"
	"time"
)

// BackoffKind selects the delay schedule shape.
type BackoffKind string

const (
	BackoffFixed       BackoffKind = "fixed"
	BackoffLinear      BackoffKind = "linear"
	BackoffExponential BackoffKind = "exponential"
	BackoffFibonacci   BackoffKind = "fibonacci"
	BackoffCustom      BackoffKind = "custom"
)

// ErrorClass is a coarse category an operation's failure can be matched
// against via Policy.RetryOn.
type ErrorClass string

const (
	ErrorNetwork     ErrorClass = "network"
	ErrorTimeout     ErrorClass = "timeout"
	ErrorServerError ErrorClass = "server_error"
	ErrorRateLimit   ErrorClass = "rate_limit"
)

// Matcher decides whether an error should count as retryable. A Policy's
// RetryOn list is empty-means-match-anything; a non-empty list retries
// only if at least one matcher matches.
type Matcher struct {
	Class   ErrorClass
	Pattern *regexp.Regexp
}

// ClassMatcher builds a Matcher against one of the coarse ErrorClass
// categories. Classification of a raw error into a class is the caller's
// responsibility (see Classifiable below); Matcher only checks it against
// the declared class.
func ClassMatcher(class ErrorClass) Matcher {
	return Matcher{Class: class}
}

// PatternMatcher builds a Matcher against an error's message via a
// regular expression.
func PatternMatcher(pattern *regexp.Regexp) Matcher {
	return Matcher{Pattern: pattern}
}

func (m Matcher) matches(err error) bool {
	if m.Pattern != nil {
		return m.Pattern.MatchString(err.Error())
	}
	if cls, ok := err.(Classifiable); ok {
		return cls.ErrorClass() == m.Class
	}
	return false
}

// Classifiable lets an error self-report its ErrorClass so Matcher can
// compare it against a Policy's RetryOn list without string sniffing.
type Classifiable interface {
	ErrorClass() ErrorClass
}

// OnFailureAction names what happens once a Policy's retries (and any
// circuit breaker) are exhausted.
type OnFailureAction string

const (
	OnFailureStop     OnFailureAction = "stop"
	OnFailureContinue OnFailureAction = "continue"
	OnFailureFallback OnFailureAction = "fallback"
)

// Policy configures one retry schedule.
type Policy struct {
	Attempts int

	Backoff       BackoffKind
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	Increment     time.Duration // Linear
	Base          float64       // Exponential
	CustomDelays  []time.Duration

	Jitter       bool
	JitterFactor float64 // [0,1], symmetric ± of base delay

	RetryOn []Matcher // empty means retry any error

	RetryBudget time.Duration // 0 means unbounded

	OnFailure        OnFailureAction
	FallbackCommand  string

	Breaker *BreakerConfig // nil disables the circuit breaker
}

// DefaultPolicy returns a Policy matching a bare `attempts: 1` spec
// declaration: no retries, no backoff, fail immediately.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:     1,
		Backoff:      BackoffFixed,
		InitialDelay: 0,
		OnFailure:    OnFailureStop,
	}
}

// MatchesAny reports whether err counts as retryable against p's RetryOn
// list: true if the list is empty, or if any matcher matches err.
func (p Policy) MatchesAny(err error) bool {
	if len(p.RetryOn) == 0 {
		return true
	}
	for _, m := range p.RetryOn {
		if m.matches(err) {
			return true
		}
	}
	return false
}
