package swr

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/juju/clock"

	"github.com/IvanBrykalov/swrcache/internal/util"
	"github.com/IvanBrykalov/swrcache/notify"
)

// Store is the cache engine: a sharded registry of live entry state
// machines. It deduplicates fetches per key, refcounts observers, drives
// background revalidation from external signals and evicts idle entries
// after their keep-alive delay.
//
// All methods are safe for concurrent use. Typed access goes through the
// package-level generic functions (Attach, AttachInfinite, Mutate,
// AttachSubscription, Prefetch); Go interfaces cannot carry generic
// methods, so the typed surface is free functions over a concrete Store.
type Store struct {
	opt    Options
	clk    clock.Clock
	met    Metrics
	log    *slog.Logger
	rcv    Receiver
	defPol Policy

	shards []*storeShard
	closed atomic.Bool

	// ctx is the fetch lifecycle context: cancelled by Close, not by
	// observer churn.
	ctx    context.Context
	cancel context.CancelFunc

	entries   atomic.Int64
	observers atomic.Int64

	// connectivity gate (nil signals no Network source / online)
	netMu    sync.Mutex
	offline  bool
	onlineCh chan struct{}

	// lazy signal subscriptions, held only while the registry is non-empty
	sigMu     sync.Mutex
	sigOn     bool
	sigRemove []func()
}

// storeShard is an independent partition of the registry with its own lock
// and hot hit/miss counters on separate cache lines.
type storeShard struct {
	mu      sync.RWMutex
	entries map[string]*entry

	_      util.CacheLinePad
	hits   util.PaddedAtomicInt64
	misses util.PaddedAtomicInt64
}

// New constructs a Store with the provided Options. See Options for the
// defaults applied to zero fields.
func New(opt Options) *Store {
	if opt.Clock == nil {
		opt.Clock = clock.WallClock
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Logger == nil {
		opt.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	n := opt.Shards
	if n <= 0 {
		n = util.ReasonableShardCount()
	} else {
		n = int(util.NextPow2(uint64(n)))
	}
	shards := make([]*storeShard, n)
	for i := range shards {
		shards[i] = &storeShard{entries: make(map[string]*entry)}
	}
	defPol := DefaultPolicy()
	if opt.DefaultPolicy != nil {
		defPol = opt.DefaultPolicy.withDefaults()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		opt:    opt,
		clk:    opt.Clock,
		met:    opt.Metrics,
		log:    opt.Logger,
		rcv:    opt.Receiver,
		defPol: defPol,
		shards: shards,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Store) shardFor(hash uint64) *storeShard {
	return s.shards[util.ShardIndex(hash, len(s.shards))]
}

// normalizePolicy resolves a definition's policy pointer to a value copy.
func (s *Store) normalizePolicy(p *Policy) Policy {
	if p == nil {
		return s.defPol
	}
	return p.withDefaults()
}

// attach creates or joins the entry for key, increments its refcount and
// schedules a fetch when data is absent or stale. It returns immediately
// with a live handle; the current state may still be Idle.
func (s *Store) attach(key Key, spec entrySpec) (*handle, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	if err := key.validate(); err != nil {
		return nil, err
	}
	sh := s.shardFor(key.Hash())
	for {
		sh.mu.Lock()
		e, ok := sh.entries[key.ID()]
		created := false
		if !ok {
			e = newEntry(s, key, spec)
			sh.entries[key.ID()] = e
			created = true
		}
		sh.mu.Unlock()
		if created {
			s.afterCreate(e)
		}

		e.mu.Lock()
		if e.evicted {
			// Lost the race against a reaper; the slot is free again.
			e.mu.Unlock()
			continue
		}
		if e.kind != spec.kind {
			e.mu.Unlock()
			return nil, ErrKindMismatch
		}
		h := &handle{e: e, ch: make(chan struct{}, 1)}
		e.observers++
		e.watchers[h] = struct{}{}
		e.cancelGCLocked()

		now := s.clk.Now()
		stale := e.isStaleLocked(now)
		if e.hasData && !stale {
			sh.hits.Add(1)
			s.met.Hit()
		} else {
			sh.misses.Add(1)
			s.met.Miss()
		}
		revalidated := e.hasData && stale
		if started := e.maybeFetchLocked(TriggerAttach); started && revalidated {
			s.met.Revalidate(TriggerAttach)
		}
		e.mu.Unlock()

		s.observers.Add(1)
		s.met.Size(int(s.entries.Load()), int(s.observers.Load()))
		return h, nil
	}
}

// detach decrements the refcount; at zero the keep-alive timer starts.
// An in-flight fetch is left to complete and update cache state.
func (s *Store) detach(h *handle) {
	e := h.e
	e.mu.Lock()
	delete(e.watchers, h)
	if e.observers > 0 {
		e.observers--
		s.observers.Add(-1)
	}
	if e.observers == 0 && !e.evicted {
		e.scheduleGCLocked()
	}
	e.mu.Unlock()
	s.met.Size(int(s.entries.Load()), int(s.observers.Load()))
}

// afterCreate runs registry bookkeeping for a freshly inserted entry.
func (s *Store) afterCreate(e *entry) {
	if s.entries.Add(1) == 1 {
		s.subscribeSignals()
	}
	if e.kind == kindSubscription {
		s.startSubscription(e)
	}
	s.log.Debug("entry created", "key", e.key.ID(), "kind", e.kind.String())
}

// reap is the keep-alive timer callback. gen guards against a timer that
// fired but lost the race to a reattach.
func (s *Store) reap(e *entry, gen uint64) {
	sh := s.shardFor(e.hash)
	sh.mu.Lock()
	e.mu.Lock()
	if e.evicted || e.observers > 0 || e.gcGen != gen {
		e.mu.Unlock()
		sh.mu.Unlock()
		return
	}
	delete(sh.entries, e.key.ID())
	e.evictLocked(EvictExpired)
	e.mu.Unlock()
	sh.mu.Unlock()
	s.afterEvict(1)
}

func (s *Store) afterEvict(n int) {
	if s.entries.Add(int64(-n)) == 0 {
		s.unsubscribeSignals()
	}
	s.met.Size(int(s.entries.Load()), int(s.observers.Load()))
}

// Invalidate marks the entry for key stale. If it has observers a
// revalidation starts immediately (superseding any in-flight task);
// otherwise the entry refetches lazily on its next attach. Only programmer
// errors (invalid key) are returned.
func (s *Store) Invalidate(key Key) error {
	if err := key.validate(); err != nil {
		return err
	}
	sh := s.shardFor(key.Hash())
	sh.mu.RLock()
	e := sh.entries[key.ID()]
	sh.mu.RUnlock()
	if e == nil {
		return nil
	}
	e.mu.Lock()
	started := e.invalidateLocked()
	e.mu.Unlock()
	if started {
		s.met.Revalidate(TriggerInvalidate)
	}
	return nil
}

// InvalidateNamespace invalidates every entry whose namespace starts with
// prefix and returns the number of entries marked.
func (s *Store) InvalidateNamespace(prefix string) int {
	n := 0
	for _, sh := range s.shards {
		for _, e := range s.shardEntries(sh) {
			if !hasNamespacePrefix(e.key.Namespace(), prefix) {
				continue
			}
			e.mu.Lock()
			if e.evicted {
				e.mu.Unlock()
				continue
			}
			started := e.invalidateLocked()
			e.mu.Unlock()
			n++
			if started {
				s.met.Revalidate(TriggerInvalidate)
			}
		}
	}
	return n
}

func hasNamespacePrefix(ns, prefix string) bool {
	return len(ns) >= len(prefix) && ns[:len(prefix)] == prefix
}

func (s *Store) shardEntries(sh *storeShard) []*entry {
	sh.mu.RLock()
	es := make([]*entry, 0, len(sh.entries))
	for _, e := range sh.entries {
		es = append(es, e)
	}
	sh.mu.RUnlock()
	return es
}

// Len returns the number of resident entries across all shards.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}

// Stats are aggregate store counters.
type Stats struct {
	Entries   int
	Observers int
	Hits      int64
	Misses    int64
}

// Stats returns a snapshot of the aggregate counters.
func (s *Store) Stats() Stats {
	st := Stats{
		Entries:   int(s.entries.Load()),
		Observers: int(s.observers.Load()),
	}
	for _, sh := range s.shards {
		st.Hits += sh.hits.Load()
		st.Misses += sh.misses.Load()
	}
	return st
}

// Close evicts every entry, cancels in-flight fetches and subscription
// streams, and removes signal observers. Idempotent.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.cancel()
	s.unsubscribeSignals()
	evicted := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, e := range sh.entries {
			e.mu.Lock()
			delete(sh.entries, id)
			e.evictLocked(EvictClosed)
			e.mu.Unlock()
			evicted++
		}
		sh.mu.Unlock()
	}
	if evicted > 0 {
		s.afterEvict(evicted)
	}
	return nil
}

// ---- signal integration ----

// subscribeSignals registers the store's observers with the configured
// sources. Called when the registry becomes non-empty; removal happens when
// it empties again, so an idle store costs the sources nothing.
func (s *Store) subscribeSignals() {
	s.sigMu.Lock()
	defer s.sigMu.Unlock()
	if s.sigOn || s.closed.Load() {
		return
	}
	if src := s.opt.Network; src != nil {
		s.sigRemove = append(s.sigRemove, src.AddObserver(s.onNetwork))
	}
	if src := s.opt.Visibility; src != nil {
		s.sigRemove = append(s.sigRemove, src.AddObserver(s.onVisibility))
	}
	if src := s.opt.Memory; src != nil {
		s.sigRemove = append(s.sigRemove, src.AddObserver(s.onMemory))
	}
	s.sigOn = true
}

func (s *Store) unsubscribeSignals() {
	s.sigMu.Lock()
	defer s.sigMu.Unlock()
	if !s.sigOn {
		return
	}
	for _, rm := range s.sigRemove {
		rm()
	}
	s.sigRemove = nil
	s.sigOn = false
	// Connectivity events published from here on are lost, so a recorded
	// outage can never be cleared. Assume online; a still-down network just
	// fails the next fetch into the retry path.
	s.setOnline(true)
}

func (s *Store) onNetwork(ev notify.NetworkEvent) {
	switch ev {
	case notify.NetworkAvailable:
		s.setOnline(true)
		s.log.Debug("network available; revalidating stale entries")
		s.sweepRevalidate(TriggerNetwork)
	case notify.NetworkLost:
		s.setOnline(false)
	}
}

func (s *Store) onVisibility(ev notify.VisibilityEvent) {
	if ev != notify.VisibilityForeground {
		return
	}
	s.log.Debug("foregrounded; revalidating stale entries")
	s.sweepRevalidate(TriggerVisibility)
}

func (s *Store) onMemory(ev notify.MemoryEvent) {
	if ev != notify.MemoryPressureHigh {
		return
	}
	s.log.Debug("memory pressure high; sweeping idle entries")
	s.sweepPressure()
}

func (s *Store) setOnline(online bool) {
	s.netMu.Lock()
	defer s.netMu.Unlock()
	if online {
		if s.offline {
			s.offline = false
			close(s.onlineCh)
			s.onlineCh = nil
		}
		return
	}
	if !s.offline {
		s.offline = true
		s.onlineCh = make(chan struct{})
	}
}

// offlineGate returns a channel closed when connectivity returns, or nil if
// the store is online (or has no network source).
func (s *Store) offlineGate() <-chan struct{} {
	s.netMu.Lock()
	defer s.netMu.Unlock()
	if !s.offline {
		return nil
	}
	return s.onlineCh
}

// sweepRevalidate refetches every currently-observed stale entry.
// Unobserved entries are left alone; they refetch lazily on reattach.
func (s *Store) sweepRevalidate(trigger RevalidateTrigger) {
	for _, sh := range s.shards {
		for _, e := range s.shardEntries(sh) {
			e.mu.Lock()
			started := e.observers > 0 && e.maybeFetchLocked(trigger)
			e.mu.Unlock()
			if started {
				s.met.Revalidate(trigger)
			}
		}
	}
}

// sweepPressure evicts every zero-refcount entry immediately, regardless of
// remaining keep-alive time.
func (s *Store) sweepPressure() {
	evicted := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, e := range sh.entries {
			e.mu.Lock()
			if e.observers == 0 && !e.evicted {
				delete(sh.entries, id)
				e.evictLocked(EvictPressure)
				evicted++
			}
			e.mu.Unlock()
		}
		sh.mu.Unlock()
	}
	if evicted > 0 {
		s.afterEvict(evicted)
	}
}
