package retry

import (
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// baseDelay computes the schedule delay for attempt n (1-indexed), before
// jitter and the max-delay cap are applied.
func baseDelay(p Policy, n int) time.Duration {
	switch p.Backoff {
	case BackoffFixed:
		return p.InitialDelay
	case BackoffLinear:
		return p.InitialDelay + time.Duration(n-1)*p.Increment
	case BackoffExponential:
		return exponentialDelay(p, n)
	case BackoffFibonacci:
		return time.Duration(float64(p.InitialDelay) * float64(fib(n)))
	case BackoffCustom:
		if n-1 < len(p.CustomDelays) {
			return p.CustomDelays[n-1]
		}
		if len(p.CustomDelays) > 0 {
			return p.CustomDelays[len(p.CustomDelays)-1]
		}
		return p.InitialDelay
	default:
		return p.InitialDelay
	}
}

// exponentialDelay drives cenkalti/backoff's ExponentialBackOff state
// machine through n steps rather than reimplementing its growth curve;
// randomization and the caller's own cap are applied afterward by Delay,
// so jitter and MaxInterval are disabled here.
func exponentialDelay(p Policy, n int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	if p.Base > 0 {
		b.Multiplier = p.Base
	}
	b.RandomizationFactor = 0
	b.MaxInterval = 100 * 365 * 24 * time.Hour // effectively unbounded; Delay applies p.MaxDelay itself
	b.Reset()

	d := b.NextBackOff()
	for i := 1; i < n; i++ {
		d = b.NextBackOff()
	}
	return d
}

// fib(1) = fib(2) = 1, per spec.
func fib(n int) int64 {
	if n <= 2 {
		return 1
	}
	var a, b int64 = 1, 1
	for i := 3; i <= n; i++ {
		a, b = b, a+b
	}
	return b
}

// Delay returns the jittered, capped delay to sleep before attempt n
// (1-indexed). rnd is injected so tests can assert bounds deterministically;
// pass rand.Float64 in production.
func Delay(p Policy, n int, rnd func() float64) time.Duration {
	d := baseDelay(p, n)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if d < 0 {
		d = 0
	}

	if p.Jitter && d > 0 {
		j := p.JitterFactor
		if j < 0 {
			j = 0
		}
		if j > 1 {
			j = 1
		}
		lo := float64(d) * (1 - j/2)
		hi := float64(d) * (1 + j/2)
		if lo < 0 {
			lo = 0
		}
		sample := lo + rnd()*(hi-lo)
		d = time.Duration(sample)
	}

	if d < 0 {
		d = 0
	}
	return d
}

func defaultRand() float64 {
	return rand.Float64()
}
