package swr

import (
	"time"

	"github.com/IvanBrykalov/swrcache/backoff"
)

// Defaults applied by withDefaults for zero Policy fields.
const (
	DefaultGCTime        = 5 * time.Minute
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = time.Second
	DefaultRetryMaxDelay = 30 * time.Second
)

// Policy is the immutable per-definition fetch configuration. It is shared
// by reference across every entry created from the same definition; the
// store normalizes a private copy at entry creation and never mutates the
// caller's value.
//
// Zero values mean "default" (see the field comments), matching the house
// options style: a zero Policy is safe.
type Policy struct {
	// StaleTime is how long fetched data stays fresh. Zero means
	// immediately stale (every new observer revalidates); negative means
	// never stale.
	StaleTime time.Duration

	// GCTime is the keep-alive delay after the last observer detaches
	// before the entry is evicted. Zero selects DefaultGCTime; negative
	// means evict as soon as the refcount reaches zero.
	GCTime time.Duration

	// RetryAttempts is the total number of fetch-function invocations per
	// task, including the first. Zero or negative selects
	// DefaultRetryAttempts; 1 disables retries.
	RetryAttempts int

	// RetryDelay is the delay before the first retry; subsequent delays
	// come from Backoff. Zero selects DefaultRetryDelay.
	RetryDelay time.Duration

	// RetryMaxDelay caps the delay between retries. Zero selects
	// DefaultRetryMaxDelay.
	RetryMaxDelay time.Duration

	// Backoff shapes the retry delay curve. Nil selects exponential
	// doubling capped at RetryMaxDelay. See package backoff for stock
	// curves (fixed, linear, exponential, jitter).
	Backoff backoff.Func

	// DedupeWindow suppresses revalidation triggers that fire within the
	// window after the previous fetch started. Zero disables the window;
	// in-flight deduplication applies regardless. Manual Refetch bypasses
	// the window.
	DedupeWindow time.Duration
}

// DefaultPolicy returns the policy used when a definition carries none.
func DefaultPolicy() Policy {
	return Policy{}.withDefaults()
}

// withDefaults returns a normalized copy with zero fields resolved.
func (p Policy) withDefaults() Policy {
	if p.GCTime == 0 {
		p.GCTime = DefaultGCTime
	} else if p.GCTime < 0 {
		p.GCTime = 0 // evict immediately at refcount zero
	}
	if p.RetryAttempts <= 0 {
		p.RetryAttempts = DefaultRetryAttempts
	}
	if p.RetryDelay <= 0 {
		p.RetryDelay = DefaultRetryDelay
	}
	if p.RetryMaxDelay <= 0 {
		p.RetryMaxDelay = DefaultRetryMaxDelay
	}
	if p.Backoff == nil {
		p.Backoff = backoff.Exponential(p.RetryMaxDelay)
	}
	return p
}
