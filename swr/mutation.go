package swr

import (
	"context"

	"github.com/juju/retry"
)

// MutationDef describes one mutation: a side-effecting call with optional
// optimistic-update callbacks. P is the variables type, V the result type.
type MutationDef[V, P any] struct {
	// Key is optional. When set, a transient entry mirrors the mutation's
	// Idle -> Fetching -> Success/Failure transitions in the registry and
	// is garbage-collected through the normal keep-alive path. Keyless
	// mutations never touch the registry.
	Key Key

	// Run performs the mutation. Retried per policy, so it should be
	// idempotent from the cache's perspective.
	Run func(ctx context.Context, rcv Receiver, vars P) (V, error)

	// OnMutate fires before Run, typically applying an optimistic update.
	// The returned rollback (may be nil) is invoked iff the mutation
	// ultimately fails afterwards. An OnMutate error aborts the mutation
	// without calling Run.
	OnMutate func(ctx context.Context, vars P) (rollback func(), err error)

	// OnSuccess fires after Run succeeds.
	OnSuccess func(ctx context.Context, result V, vars P)

	// OnError fires after the mutation ultimately fails (after rollback).
	OnError func(ctx context.Context, err error, vars P)

	// Policy overrides the store default (retry fields only; StaleTime is
	// meaningless for mutations). Nil => store default.
	Policy *Policy
}

// Mutate runs the mutation once through its retry policy and returns the
// result. The mutation rides the caller's ctx: cancelling it stops the
// retry loop (partial effects are not rolled back automatically — only the
// caller-supplied rollback runs). Unlike queries, the outcome is the return
// value of this call; it is not cached for re-fetch.
func Mutate[V, P any](ctx context.Context, s *Store, def MutationDef[V, P], vars P) (V, error) {
	var zero V
	if s.closed.Load() {
		return zero, ErrStoreClosed
	}
	if def.Run == nil {
		return zero, ErrNoFetch
	}
	pol := s.normalizePolicy(def.Policy)

	var me *entry
	if !def.Key.IsZero() {
		var err error
		if me, err = s.mutationEntry(def.Key, pol); err != nil {
			return zero, err
		}
		me.beginMutation()
	}

	var rollback func()
	if def.OnMutate != nil {
		rb, err := def.OnMutate(ctx, vars)
		if err != nil {
			if def.OnError != nil {
				def.OnError(ctx, err, vars)
			}
			s.finishMutation(me, nil, classify(err))
			return zero, err
		}
		rollback = rb
	}

	var val V
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			v, rerr := def.Run(ctx, s.rcv, vars)
			if rerr != nil {
				return classify(rerr)
			}
			val = v
			return nil
		},
		IsFatalError: isCancellation,
		NotifyFunc: func(lastErr error, attempt int) {
			s.log.Debug("mutation attempt failed",
				"key", def.Key.ID(), "attempt", attempt, "err", lastErr)
			if me != nil {
				me.noteAttemptFailure(attempt)
			}
		},
		Attempts:    pol.RetryAttempts,
		Delay:       pol.RetryDelay,
		MaxDelay:    pol.RetryMaxDelay,
		BackoffFunc: pol.Backoff,
		Clock:       s.clk,
		Stop:        ctx.Done(),
	})
	if err != nil {
		if retry.IsRetryStopped(err) && ctx.Err() != nil {
			err = ctx.Err()
		} else if ferr := taskError(err); ferr.Kind != KindCancelled {
			err = ferr
		} else {
			err = ferr.Err
		}
		if rollback != nil {
			rollback()
		}
		if def.OnError != nil {
			def.OnError(ctx, err, vars)
		}
		s.finishMutation(me, nil, err)
		s.met.Fetch(FetchFailed)
		return zero, err
	}
	if def.OnSuccess != nil {
		def.OnSuccess(ctx, val, vars)
	}
	s.finishMutation(me, val, nil)
	s.met.Fetch(FetchSucceeded)
	return val, nil
}

// mutationEntry creates or reuses the transient status entry for a keyed
// mutation.
func (s *Store) mutationEntry(key Key, pol Policy) (*entry, error) {
	if err := key.validate(); err != nil {
		return nil, err
	}
	sh := s.shardFor(key.Hash())
	for {
		sh.mu.Lock()
		e, ok := sh.entries[key.ID()]
		created := false
		if !ok {
			e = newEntry(s, key, entrySpec{kind: kindMutation, pol: pol})
			sh.entries[key.ID()] = e
			created = true
		}
		sh.mu.Unlock()
		if created {
			s.afterCreate(e)
		}
		e.mu.Lock()
		if e.evicted {
			e.mu.Unlock()
			continue
		}
		if e.kind != kindMutation {
			e.mu.Unlock()
			return nil, ErrKindMismatch
		}
		e.cancelGCLocked()
		e.mu.Unlock()
		return e, nil
	}
}

func (e *entry) beginMutation() {
	e.mu.Lock()
	e.fstatus = FetchActive
	e.retries = 0
	e.notifyLocked()
	e.mu.Unlock()
}

func (e *entry) noteAttemptFailure(attempt int) {
	e.mu.Lock()
	if !e.evicted {
		e.retries = attempt
		e.notifyLocked()
	}
	e.mu.Unlock()
}

// finishMutation records the outcome on the transient entry (if any) and
// hands it to the keep-alive timer.
func (s *Store) finishMutation(e *entry, val any, err error) {
	if e == nil {
		return
	}
	now := s.clk.Now()
	e.mu.Lock()
	if !e.evicted {
		if err == nil {
			e.data, e.hasData = val, true
			if now.After(e.dataAt) {
				e.dataAt = now
			}
			e.status = StatusSuccess
			e.err = nil
			e.retries = 0
		} else if !isCancellation(err) {
			e.err = err
			if now.After(e.errAt) {
				e.errAt = now
			}
			e.status = StatusFailure
		}
		e.fstatus = FetchIdle
		e.notifyLocked()
		e.scheduleGCLocked()
	}
	e.mu.Unlock()
}
