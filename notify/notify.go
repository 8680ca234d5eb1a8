// Package notify defines the signal-notifier contract the cache store
// subscribes to: small event enums delivered to registered observers.
//
// Platform integrations (OS lifecycle callbacks, netlink watchers, browser
// events behind wasm, ...) implement Source by broadcasting the matching
// event whenever the underlying condition changes. Broadcaster is a plain
// in-process Source suitable both for tests and for wiring platform
// callbacks by hand.
package notify

import "sync"

// NetworkEvent reports connectivity transitions.
type NetworkEvent int

const (
	// NetworkAvailable — connectivity (re)gained.
	NetworkAvailable NetworkEvent = iota
	// NetworkLost — connectivity dropped.
	NetworkLost
)

func (e NetworkEvent) String() string {
	if e == NetworkAvailable {
		return "available"
	}
	return "lost"
}

// VisibilityEvent reports window/application foreground transitions.
type VisibilityEvent int

const (
	// VisibilityForeground — the application became visible/active.
	VisibilityForeground VisibilityEvent = iota
	// VisibilityBackground — the application was backgrounded.
	VisibilityBackground
)

func (e VisibilityEvent) String() string {
	if e == VisibilityForeground {
		return "foreground"
	}
	return "background"
}

// MemoryEvent reports memory-pressure transitions.
type MemoryEvent int

const (
	// MemoryPressureLow — pressure back to normal.
	MemoryPressureLow MemoryEvent = iota
	// MemoryPressureHigh — the process should shed reclaimable memory.
	MemoryPressureHigh
)

func (e MemoryEvent) String() string {
	if e == MemoryPressureLow {
		return "low"
	}
	return "high"
}

// Source is the minimal observer contract a signal source must satisfy.
// AddObserver registers fn and returns a remove function that unregisters
// it; remove is idempotent. Observers must be quick and must not call back
// into AddObserver from within fn.
type Source[E any] interface {
	AddObserver(fn func(E)) (remove func())
}

// Broadcaster is an in-process Source. The zero value is ready to use.
// All methods are safe for concurrent use.
type Broadcaster[E any] struct {
	mu  sync.Mutex
	seq int
	obs map[int]func(E)
}

// NewBroadcaster returns an empty Broadcaster.
func NewBroadcaster[E any]() *Broadcaster[E] { return &Broadcaster[E]{} }

// AddObserver registers fn and returns its remove function.
func (b *Broadcaster[E]) AddObserver(fn func(E)) (remove func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.obs == nil {
		b.obs = make(map[int]func(E))
	}
	id := b.seq
	b.seq++
	b.obs[id] = fn
	return func() {
		b.mu.Lock()
		delete(b.obs, id)
		b.mu.Unlock()
	}
}

// Publish delivers e to every registered observer, synchronously, in
// unspecified order. Observers registered during delivery are not called
// for this event.
func (b *Broadcaster[E]) Publish(e E) {
	b.mu.Lock()
	fns := make([]func(E), 0, len(b.obs))
	for _, fn := range b.obs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(e)
	}
}

// Len returns the number of registered observers.
func (b *Broadcaster[E]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.obs)
}

var _ Source[NetworkEvent] = (*Broadcaster[NetworkEvent])(nil)
