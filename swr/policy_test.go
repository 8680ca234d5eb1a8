package swr

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func TestPolicy_WithDefaults(t *testing.T) {
	t.Parallel()

	p := Policy{}.withDefaults()
	if p.GCTime != DefaultGCTime {
		t.Fatalf("GCTime = %v", p.GCTime)
	}
	if p.RetryAttempts != DefaultRetryAttempts {
		t.Fatalf("RetryAttempts = %d", p.RetryAttempts)
	}
	if p.RetryDelay != DefaultRetryDelay || p.RetryMaxDelay != DefaultRetryMaxDelay {
		t.Fatalf("delays = %v / %v", p.RetryDelay, p.RetryMaxDelay)
	}
	if p.Backoff == nil {
		t.Fatal("default backoff missing")
	}
	// The default curve doubles, capped at RetryMaxDelay.
	if got := p.Backoff(20*time.Second, 2); got != DefaultRetryMaxDelay {
		t.Fatalf("capped delay = %v", got)
	}

	// Explicit values survive; negative GCTime means immediate eviction.
	q := Policy{GCTime: -1, StaleTime: time.Minute, RetryAttempts: 1}.withDefaults()
	if q.GCTime != 0 || q.StaleTime != time.Minute || q.RetryAttempts != 1 {
		t.Fatalf("normalized = %+v", q)
	}
}

type fakeNetErr struct{}

func (fakeNetErr) Error() string   { return "conn reset" }
func (fakeNetErr) Timeout() bool   { return false }
func (fakeNetErr) Temporary() bool { return true }

var _ net.Error = fakeNetErr{}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want ErrorKind
	}{
		{errors.New("domain"), KindApplication},
		{fakeNetErr{}, KindNetwork},
		{context.Canceled, KindCancelled},
		{context.DeadlineExceeded, KindCancelled},
		{errSuperseded, KindCancelled},
	}
	for _, c := range cases {
		fe := classify(c.err)
		if fe.Kind != c.want {
			t.Errorf("classify(%v) = %v, want %v", c.err, fe.Kind, c.want)
		}
		if !errors.Is(fe, c.err) {
			t.Errorf("classify(%v) must wrap its cause", c.err)
		}
	}
}

func TestIsCancellation(t *testing.T) {
	t.Parallel()

	if isCancellation(nil) {
		t.Fatal("nil is not a cancellation")
	}
	if isCancellation(errors.New("boom")) {
		t.Fatal("plain errors are not cancellations")
	}
	for _, err := range []error{
		context.Canceled,
		ErrStoreClosed,
		errSuperseded,
		&FetchError{Kind: KindCancelled, Err: errors.New("x")},
	} {
		if !isCancellation(err) {
			t.Errorf("isCancellation(%v) = false", err)
		}
	}
	if isCancellation(&FetchError{Kind: KindNetwork, Err: fakeNetErr{}}) {
		t.Fatal("network failures are retryable, not cancellations")
	}
}
