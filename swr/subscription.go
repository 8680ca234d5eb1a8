package swr

import (
	"context"

	"github.com/juju/retry"
)

// SubscriptionDef binds a Key to a long-lived asynchronous stream instead
// of a request/response fetch. Each emitted item replaces the entry's data.
type SubscriptionDef[V any] struct {
	Key Key

	// Open connects the stream. The returned channel must be closed by the
	// producer when the stream ends; the producer must stop when ctx is
	// cancelled. Open is retried per policy when it (or the stream) fails.
	Open func(ctx context.Context, rcv Receiver) (<-chan V, error)

	// Policy overrides the store default. GCTime bounds how long the
	// stream stays connected after the last observer detaches. Nil =>
	// store default.
	Policy *Policy
}

// AttachSubscription subscribes to the stream entry for def.Key. The stream
// is opened when the entry is created and its context is cancelled exactly
// when the entry is evicted — so it survives the keep-alive window after
// the last observer detaches, like any other entry.
func AttachSubscription[V any](s *Store, def SubscriptionDef[V]) (*Handle[V], error) {
	if def.Open == nil {
		return nil, ErrNoFetch
	}
	spec := entrySpec{
		kind: kindSubscription,
		pol:  s.normalizePolicy(def.Policy),
		pump: func(ctx context.Context, emit func(any)) error {
			ch, err := def.Open(ctx, s.rcv)
			if err != nil {
				return err
			}
			for {
				select {
				case v, ok := <-ch:
					if !ok {
						return nil
					}
					emit(v)
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		},
	}
	h, err := s.attach(def.Key, spec)
	if err != nil {
		return nil, err
	}
	return &Handle[V]{h: h}, nil
}

// startSubscription runs the stream pump for a freshly created subscription
// entry. Stream failures are retried per policy; after exhaustion the entry
// settles in Failure (items received before the failure remain servable).
func (s *Store) startSubscription(e *entry) {
	ctx, cancel := context.WithCancel(s.ctx)
	e.mu.Lock()
	if e.evicted {
		e.mu.Unlock()
		cancel()
		return
	}
	e.subCancel = cancel
	e.fstatus = FetchActive
	pol := e.pol
	pump := e.pump
	e.mu.Unlock()

	go func() {
		err := retry.Call(retry.CallArgs{
			Func: func() error {
				perr := pump(ctx, e.applyStreamItem)
				if perr != nil {
					return classify(perr)
				}
				return nil
			},
			IsFatalError: isCancellation,
			NotifyFunc: func(lastErr error, attempt int) {
				s.log.Debug("subscription stream failed",
					"key", e.key.ID(), "attempt", attempt, "err", lastErr)
				e.noteAttemptFailure(attempt)
			},
			Attempts:    pol.RetryAttempts,
			Delay:       pol.RetryDelay,
			MaxDelay:    pol.RetryMaxDelay,
			BackoffFunc: pol.Backoff,
			Clock:       s.clk,
			Stop:        ctx.Done(),
		})
		now := s.clk.Now()
		e.mu.Lock()
		e.fstatus = FetchIdle
		if err != nil && !isCancellation(err) && !e.evicted {
			fe := taskError(err)
			e.err = fe
			if now.After(e.errAt) {
				e.errAt = now
			}
			e.status = StatusFailure
			s.met.Fetch(FetchFailed)
		}
		e.notifyLocked()
		e.mu.Unlock()
	}()
}
