package swr

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"
)

// entryKind is the closed set of state-machine variants sharing one cache
// contract.
type entryKind int

const (
	kindQuery entryKind = iota
	kindInfinite
	kindMutation
	kindSubscription
)

func (k entryKind) String() string {
	switch k {
	case kindInfinite:
		return "infinite"
	case kindMutation:
		return "mutation"
	case kindSubscription:
		return "subscription"
	default:
		return "query"
	}
}

// entrySpec carries the kind-specific behavior from a typed definition into
// the untyped registry. Exactly one behavior group is set per kind; the
// first definition seen for a key wins, later attaches must match the kind.
type entrySpec struct {
	kind entryKind
	pol  Policy

	// query
	fetch func(ctx context.Context) (any, error)
	init  func() (any, bool)

	// infinite query
	firstParam any
	fetchPage  func(ctx context.Context, param any) (any, error)
	nextAfter  func(pages []any) (any, bool)

	// subscription: open the stream and push items through emit until the
	// stream ends (return nil) or fails (return the error). Must honor ctx.
	pump func(ctx context.Context, emit func(any)) error
}

// entry owns the lifecycle of one cached value. All fields below mu are
// guarded by it; transitions for a key are serialized through this lock,
// which is what gives causal per-entry ordering. The fetch function itself
// always runs outside the lock.
type entry struct {
	store *Store
	key   Key
	hash  uint64
	kind  entryKind
	pol   Policy

	mu      sync.Mutex
	data    any
	hasData bool
	dataAt  time.Time
	err     error
	errAt   time.Time
	status  Status
	fstatus FetchStatus
	retries int

	observers int
	watchers  map[*handle]struct{}

	invalid   bool // explicitly invalidated; stale regardless of StaleTime
	evicted   bool
	lastFetch time.Time // start of the most recent task, for the dedupe window

	task *fetchTask // in-flight task; nil otherwise (invariant: at most one)
	succ *fetchTask // parked successor after supersession (never more than one)

	gcTimer  clock.Timer
	gcCancel chan struct{}
	gcGen    uint64

	// infinite query
	pages      []any
	nextParam  any
	hasNext    bool
	firstParam any
	fetchPage  func(ctx context.Context, param any) (any, error)
	nextAfter  func(pages []any) (any, bool)

	// query
	fetch func(ctx context.Context) (any, error)

	// subscription
	pump      func(ctx context.Context, emit func(any)) error
	subCancel context.CancelFunc
}

func newEntry(s *Store, key Key, spec entrySpec) *entry {
	e := &entry{
		store:      s,
		key:        key,
		hash:       key.Hash(),
		kind:       spec.kind,
		pol:        spec.pol,
		watchers:   make(map[*handle]struct{}),
		fetch:      spec.fetch,
		firstParam: spec.firstParam,
		fetchPage:  spec.fetchPage,
		nextAfter:  spec.nextAfter,
		pump:       spec.pump,
	}
	if spec.init != nil {
		if v, ok := spec.init(); ok {
			e.data, e.hasData = v, true
			e.dataAt = s.clk.Now()
			e.status = StatusSuccess
		}
	}
	return e
}

// isStaleLocked reports whether the entry is past its freshness deadline.
// The boundary is inclusive: data fetched at T with staleTime S is stale at
// exactly T+S.
func (e *entry) isStaleLocked(now time.Time) bool {
	if !e.hasData {
		return true
	}
	if e.invalid {
		return true
	}
	if e.pol.StaleTime < 0 {
		return false
	}
	return !now.Before(e.dataAt.Add(e.pol.StaleTime))
}

func (e *entry) inDedupeWindowLocked(now time.Time) bool {
	return e.pol.DedupeWindow > 0 && !e.lastFetch.IsZero() &&
		now.Sub(e.lastFetch) < e.pol.DedupeWindow
}

// notifyLocked wakes every attached watcher. Signals coalesce: a watcher
// that has not drained its channel gets no extra token.
func (e *entry) notifyLocked() {
	for h := range e.watchers {
		h.signal()
	}
}

// maybeFetchLocked starts a fetch if the entry needs one: no data, or data
// gone stale. It never supersedes — an in-flight task is joined, not
// replaced (in-flight dedupe). Returns whether a task was started.
func (e *entry) maybeFetchLocked(trigger RevalidateTrigger) bool {
	if e.evicted || e.task != nil || e.kind == kindMutation || e.kind == kindSubscription {
		return false
	}
	now := e.store.clk.Now()
	if !e.isStaleLocked(now) {
		return false
	}
	if e.hasData && e.inDedupeWindowLocked(now) {
		return false
	}
	e.startTaskLocked(e.newRefreshTaskLocked(), trigger)
	return true
}

// revalidateLocked is the strong revalidation path used by invalidate and
// manual refetch: an in-flight task is superseded (its remaining retries
// are skipped) and exactly one successor is parked; a newer call replaces
// the parked successor — last-write-wins, no stacking. force bypasses the
// dedupe window.
func (e *entry) revalidateLocked(trigger RevalidateTrigger, force bool) bool {
	if e.evicted || e.kind == kindMutation || e.kind == kindSubscription {
		return false
	}
	if !force && e.hasData && e.inDedupeWindowLocked(e.store.clk.Now()) {
		return false
	}
	t := e.newRefreshTaskLocked()
	if e.task != nil {
		if !e.task.superseded.Swap(true) {
			close(e.task.stop)
		}
		e.succ = t
		return true
	}
	e.startTaskLocked(t, trigger)
	return true
}

// invalidateLocked marks the entry stale. Observed entries revalidate right
// away; unobserved ones are left to fetch lazily on the next attach.
func (e *entry) invalidateLocked() bool {
	if e.evicted {
		return false
	}
	e.invalid = true
	started := false
	if e.observers > 0 {
		started = e.revalidateLocked(TriggerInvalidate, false)
	}
	e.notifyLocked()
	return started
}

// scheduleGCLocked arms the keep-alive timer. The generation counter makes
// a timer that fired but lost the race against a reattach harmless.
func (e *entry) scheduleGCLocked() {
	if e.evicted || e.observers > 0 {
		return
	}
	e.cancelGCLocked()
	gen := e.gcGen
	cancel := make(chan struct{})
	t := e.store.clk.NewTimer(e.pol.GCTime)
	e.gcTimer, e.gcCancel = t, cancel
	go func() {
		select {
		case <-t.Chan():
			e.store.reap(e, gen)
		case <-cancel:
			t.Stop()
		}
	}()
}

func (e *entry) cancelGCLocked() {
	if e.gcCancel != nil {
		close(e.gcCancel)
		e.gcCancel = nil
		e.gcTimer = nil
	}
	e.gcGen++
}

// evictLocked finalizes removal. The caller has already deleted the entry
// from its shard map and reports the registry-size change afterwards.
func (e *entry) evictLocked(reason EvictReason) {
	e.evicted = true
	if e.task != nil && !e.task.superseded.Swap(true) {
		close(e.task.stop)
	}
	e.succ = nil
	e.cancelGCLocked()
	if e.subCancel != nil {
		e.subCancel()
		e.subCancel = nil
	}
	e.notifyLocked()
	e.store.met.Evict(reason)
	e.store.log.Debug("entry evicted", "key", e.key.ID(), "reason", reason.String())
}

// applyStreamItem replaces the entry data with one subscription item.
func (e *entry) applyStreamItem(v any) {
	now := e.store.clk.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evicted {
		return
	}
	e.data, e.hasData = v, true
	if now.After(e.dataAt) {
		e.dataAt = now
	}
	e.status = StatusSuccess
	e.err = nil
	e.invalid = false
	e.retries = 0
	e.fstatus = FetchIdle
	e.notifyLocked()
}

// handle represents one external subscriber to an entry. It carries a
// coalescing change-notification channel and a deterministic release.
type handle struct {
	e    *entry
	ch   chan struct{}
	once sync.Once
}

func (h *handle) signal() {
	select {
	case h.ch <- struct{}{}:
	default:
	}
}

func (h *handle) snapshot() snapshot {
	now := h.e.store.clk.Now()
	h.e.mu.Lock()
	defer h.e.mu.Unlock()
	return h.e.snapshotLocked(now)
}

func (h *handle) detach() {
	h.once.Do(func() { h.e.store.detach(h) })
}

func (h *handle) refetch() {
	e := h.e
	e.mu.Lock()
	started := e.revalidateLocked(TriggerManual, true)
	e.mu.Unlock()
	if started {
		e.store.met.Revalidate(TriggerManual)
	}
}

// waitSettled blocks until the entry has settled at least once (data or a
// stored failure, with no task in flight). Fetch failures terminate at the
// entry boundary; only ctx errors are returned.
func (h *handle) waitSettled(ctx context.Context) error {
	for {
		sn := h.snapshot()
		if sn.FetchStatus == FetchIdle && sn.Status != StatusIdle {
			return nil
		}
		if h.entryEvicted() {
			return nil
		}
		select {
		case <-h.ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *handle) entryEvicted() bool {
	h.e.mu.Lock()
	defer h.e.mu.Unlock()
	return h.e.evicted
}
