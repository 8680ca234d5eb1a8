package swr

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/juju/retry"
)

// Programmer errors. These are the only errors the store's public
// operations return directly; everything recoverable terminates at the
// entry boundary and is surfaced through entry state instead.
var (
	// ErrInvalidKey — the key is zero or its parameters cannot be canonicalized.
	ErrInvalidKey = errors.New("swr: invalid key")
	// ErrNoFetch — the definition carries no fetch/open/run function.
	ErrNoFetch = errors.New("swr: no fetch function")
	// ErrStoreClosed — the store has been closed.
	ErrStoreClosed = errors.New("swr: store closed")
	// ErrKindMismatch — the key is already bound to an entry of another kind.
	ErrKindMismatch = errors.New("swr: key bound to a different entry kind")
)

// errSuperseded marks a fetch attempt abandoned because a newer task took
// over the entry. Never user-visible.
var errSuperseded = errors.New("swr: fetch superseded")

// ErrorKind classifies an error stored on an entry. Network and application
// errors are handled identically (retried per policy, then surfaced);
// the kind only distinguishes the payload. Cancelled errors are never
// stored on entries.
type ErrorKind int

const (
	// KindApplication — the fetch function returned a domain error.
	KindApplication ErrorKind = iota
	// KindNetwork — the transport failed (net.Error).
	KindNetwork
	// KindCancelled — the attempt was cancelled or superseded.
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindCancelled:
		return "cancelled"
	default:
		return "application"
	}
}

// FetchError wraps an error produced inside a fetch task together with its
// classification. Use errors.As to recover it from entry state.
type FetchError struct {
	Kind ErrorKind
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("swr: fetch failed (%s): %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// classify wraps err with its taxonomy kind. Context cancellation and
// supersession map to KindCancelled, net.Error implementations to
// KindNetwork, everything else to KindApplication.
func classify(err error) *FetchError {
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, errSuperseded):
		return &FetchError{Kind: KindCancelled, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return &FetchError{Kind: KindNetwork, Err: err}
	}
	return &FetchError{Kind: KindApplication, Err: err}
}

// isCancellation reports whether err from a retry loop means the task was
// cancelled or superseded rather than having genuinely failed.
func isCancellation(err error) bool {
	if err == nil {
		return false
	}
	if retry.IsRetryStopped(err) {
		return true
	}
	if errors.Is(err, ErrStoreClosed) || errors.Is(err, errSuperseded) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == KindCancelled
}

// taskError normalizes an error returned by retry.Call into the FetchError
// to store on the entry: attempts-exceeded wrappers are unwrapped to the
// last attempt's error first.
func taskError(err error) *FetchError {
	if retry.IsAttemptsExceeded(err) || retry.IsDurationExceeded(err) {
		err = retry.LastError(err)
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return classify(err)
}
