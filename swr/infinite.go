package swr

import "context"

// InfiniteDef binds a Key to a page-parameterized fetch. P is the page
// parameter type (cursor, offset, URL, ...); V is one page of data.
type InfiniteDef[V, P any] struct {
	Key Key

	// FirstParam is the parameter for page one.
	FirstParam P

	// FetchPage loads one page. Same re-invocability contract as
	// QueryDef.Fetch.
	FetchPage func(ctx context.Context, rcv Receiver, param P) (V, error)

	// NextParam inspects the fetched pages and returns the parameter for
	// the next page, or ok=false when no more pages exist.
	NextParam func(pages []V) (param P, ok bool)

	// Policy overrides the store default. Nil => store default.
	Policy *Policy
}

// InfiniteHandle is one observer's view of an infinite-query entry.
type InfiniteHandle[V, P any] struct {
	h *handle
}

// AttachInfinite subscribes to the paginated entry for def.Key, creating it
// if absent and fetching the first page when the page set is absent or
// stale. Revalidation (stale attach, invalidate, signals) refetches only
// the first page and truncates the rest: a changed page one means later
// pages' parameters may be stale.
func AttachInfinite[V, P any](s *Store, def InfiniteDef[V, P]) (*InfiniteHandle[V, P], error) {
	if def.FetchPage == nil || def.NextParam == nil {
		return nil, ErrNoFetch
	}
	spec := entrySpec{
		kind:       kindInfinite,
		pol:        s.normalizePolicy(def.Policy),
		firstParam: def.FirstParam,
		fetchPage: func(ctx context.Context, param any) (any, error) {
			return def.FetchPage(ctx, s.rcv, param.(P))
		},
		nextAfter: func(pages []any) (any, bool) {
			typed := make([]V, len(pages))
			for i, p := range pages {
				typed[i], _ = p.(V)
			}
			param, ok := def.NextParam(typed)
			return param, ok
		},
	}
	h, err := s.attach(def.Key, spec)
	if err != nil {
		return nil, err
	}
	return &InfiniteHandle[V, P]{h: h}, nil
}

// State returns a point-in-time copy of the page sequence and entry state.
func (h *InfiniteHandle[V, P]) State() InfiniteState[V] {
	sn := h.h.snapshot()
	st := InfiniteState[V]{
		HasNextPage:   sn.HasNextPage,
		DataUpdatedAt: sn.DataUpdatedAt,
		Err:           sn.Err,
		ErrUpdatedAt:  sn.ErrUpdatedAt,
		Status:        sn.Status,
		FetchStatus:   sn.FetchStatus,
		Retries:       sn.Retries,
		Stale:         sn.Stale,
	}
	if len(sn.Pages) > 0 {
		st.Pages = make([]V, len(sn.Pages))
		for i, p := range sn.Pages {
			st.Pages[i], _ = p.(V)
		}
	}
	return st
}

// LoadMore fetches the next page and appends it to the sequence, waiting
// for the fetch to settle. When no next page exists it returns immediately
// without fetching, leaving the sequence unchanged. A task already in
// flight is joined, not duplicated. Fetch failures terminate at the entry
// (visible via State); only ctx errors are returned.
func (h *InfiniteHandle[V, P]) LoadMore(ctx context.Context) error {
	e := h.h.e
	e.mu.Lock()
	if e.evicted {
		e.mu.Unlock()
		return nil
	}
	var t *fetchTask
	switch {
	case e.task != nil:
		t = e.task
	case len(e.pages) == 0:
		t = e.newRefreshTaskLocked()
		e.startTaskLocked(t, TriggerManual)
	case e.hasNext:
		t = e.newLoadMoreTaskLocked()
		e.startTaskLocked(t, TriggerManual)
	default:
		// End boundary: nothing to fetch.
		e.mu.Unlock()
		return nil
	}
	done := t.done
	e.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Updates returns the change-notification channel (see Handle.Updates).
func (h *InfiniteHandle[V, P]) Updates() <-chan struct{} { return h.h.ch }

// Refetch forces a first-page revalidation, truncating later pages.
func (h *InfiniteHandle[V, P]) Refetch() { h.h.refetch() }

// Key returns the key this handle observes.
func (h *InfiniteHandle[V, P]) Key() Key { return h.h.e.key }

// Detach releases the observer. Idempotent.
func (h *InfiniteHandle[V, P]) Detach() { h.h.detach() }
