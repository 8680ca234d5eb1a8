// Package backoff implements pluggable retry backoff curves.
//
// A Func receives the previous delay and the attempt number and returns the
// delay before the next attempt. The signature is compatible with
// github.com/juju/retry's BackoffFunc, so any curve here plugs straight
// into a retry.CallArgs. The curve in effect is always configuration
// (swr.Policy.Backoff); nothing in the engine hard-codes one.
package backoff

import (
	"math/rand"
	"time"
)

// Func computes the delay before the next attempt. delay is the delay used
// before the previous attempt (the policy's base delay on the first retry),
// attempt counts failed attempts starting at 1.
type Func func(delay time.Duration, attempt int) time.Duration

// Fixed keeps the delay constant at step regardless of the attempt.
func Fixed(step time.Duration) Func {
	return func(time.Duration, int) time.Duration { return step }
}

// Exponential doubles the delay after every attempt, capped at max.
// A non-positive max disables the cap.
func Exponential(max time.Duration) Func {
	return func(delay time.Duration, _ int) time.Duration {
		d := delay * 2
		if max > 0 && d > max {
			d = max
		}
		return d
	}
}

// Linear grows the delay by step per attempt: step, 2*step, 3*step, ...
func Linear(step time.Duration) Func {
	return func(_ time.Duration, attempt int) time.Duration {
		return time.Duration(attempt) * step
	}
}

// Jitter wraps f, spreading each delay uniformly over
// [(1-fraction)*d, (1+fraction)*d]. fraction is clamped to [0, 1].
// Jittering avoids synchronized retry storms when many entries fail at
// once (e.g. right after connectivity returns).
func Jitter(f Func, fraction float64) Func {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return func(delay time.Duration, attempt int) time.Duration {
		d := f(delay, attempt)
		if fraction == 0 || d <= 0 {
			return d
		}
		span := float64(d) * fraction
		lo := float64(d) - span
		return time.Duration(lo + rand.Float64()*2*span)
	}
}
