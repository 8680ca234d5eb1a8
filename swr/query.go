package swr

import "context"

// QueryDef binds a Key to a fetch function and policy. Definitions are
// plain values; construct them once per cacheable unit and reuse them —
// equal keys from separate definitions resolve to the same entry, and the
// first definition attached for a key supplies its fetch function.
type QueryDef[V any] struct {
	Key Key

	// Fetch loads the value. It must be safely re-invocable: retries and
	// revalidation call it again. ctx is the store's lifecycle context.
	Fetch func(ctx context.Context, rcv Receiver) (V, error)

	// Policy overrides the store default. Nil => store default.
	Policy *Policy

	// InitialData optionally seeds the entry at creation time with a
	// Success state; the seed is dated at creation, so it goes stale on
	// the normal schedule.
	InitialData func() (V, bool)
}

// Handle is one observer's view of a query or subscription entry: a
// read-only state snapshot, a change-notification channel and a detach
// capability. Release it with Detach exactly once; later calls are no-ops.
type Handle[V any] struct {
	h *handle
}

// Attach subscribes to the entry for def.Key, creating it if absent, and
// schedules a fetch when data is absent or stale. Concurrent attaches for
// one key join a single in-flight fetch. Returns immediately; the state may
// still be Idle. Only programmer errors are returned.
func Attach[V any](s *Store, def QueryDef[V]) (*Handle[V], error) {
	if def.Fetch == nil {
		return nil, ErrNoFetch
	}
	spec := entrySpec{
		kind: kindQuery,
		pol:  s.normalizePolicy(def.Policy),
		fetch: func(ctx context.Context) (any, error) {
			return def.Fetch(ctx, s.rcv)
		},
	}
	if def.InitialData != nil {
		spec.init = func() (any, bool) { return def.InitialData() }
	}
	h, err := s.attach(def.Key, spec)
	if err != nil {
		return nil, err
	}
	return &Handle[V]{h: h}, nil
}

// Prefetch attaches transiently, waits for the entry to settle (first
// success or failure) and detaches, leaving the result cached subject to
// the usual keep-alive. Fetch failures stay on the entry; only ctx or
// programmer errors are returned.
func Prefetch[V any](ctx context.Context, s *Store, def QueryDef[V]) error {
	h, err := Attach(s, def)
	if err != nil {
		return err
	}
	defer h.Detach()
	return h.h.waitSettled(ctx)
}

// State returns a point-in-time copy of the entry state.
func (h *Handle[V]) State() State[V] {
	sn := h.h.snapshot()
	st := State[V]{
		HasData:       sn.HasData,
		DataUpdatedAt: sn.DataUpdatedAt,
		Err:           sn.Err,
		ErrUpdatedAt:  sn.ErrUpdatedAt,
		Status:        sn.Status,
		FetchStatus:   sn.FetchStatus,
		Retries:       sn.Retries,
		Stale:         sn.Stale,
	}
	if v, ok := sn.Data.(V); ok {
		st.Data = v
	}
	return st
}

// Updates returns the change-notification channel. One token is delivered
// per state change; pending tokens coalesce, so always re-read State after
// draining.
func (h *Handle[V]) Updates() <-chan struct{} { return h.h.ch }

// Refetch forces a revalidation, superseding any in-flight fetch and
// bypassing the dedupe window.
func (h *Handle[V]) Refetch() { h.h.refetch() }

// Key returns the key this handle observes.
func (h *Handle[V]) Key() Key { return h.h.e.key }

// Detach releases the observer. At refcount zero the entry's keep-alive
// timer starts. Idempotent.
func (h *Handle[V]) Detach() { h.h.detach() }
