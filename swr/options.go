package swr

import (
	"log/slog"

	"github.com/juju/clock"

	"github.com/IvanBrykalov/swrcache/notify"
)

// Receiver is the opaque transport capability forwarded to every fetch,
// open and run function. The engine never inspects it; any HTTP/IPC client
// works as long as the fetch functions know what to do with it.
type Receiver = any

// Options configures a Store. Zero values are safe; sane defaults are
// applied in New():
//   - nil Clock    => clock.WallClock
//   - nil Metrics  => NoopMetrics
//   - nil Logger   => discard
//   - Shards <= 0  => auto (rounded up to power of two)
type Options struct {
	// Shards is the number of registry shards. If 0, an automatic value is
	// chosen (≈ 2*GOMAXPROCS) and rounded to the next power of two. Shards
	// only partition the key->entry map; each entry serializes its own
	// transitions.
	Shards int

	// Receiver is passed to fetch functions verbatim. May be nil.
	Receiver Receiver

	// DefaultPolicy applies to definitions that carry no Policy.
	// Nil => DefaultPolicy().
	DefaultPolicy *Policy

	// Clock is the time source for staleness, keep-alive and retry backoff.
	// All policy durations are measured against it; with the default
	// clock.WallClock they ride Go's monotonic readings and stay correct
	// across wall-clock adjustments. Tests inject a testclock.
	Clock clock.Clock

	// Metrics receives hit/miss/fetch/evict/size signals. Nil => NoopMetrics.
	Metrics Metrics

	// Logger receives debug-level fetch/eviction/signal lines.
	// Nil => discard.
	Logger *slog.Logger

	// Signal sources. Each is optional; the store registers its observer
	// lazily when the registry becomes non-empty and removes it when the
	// registry empties again.
	//
	// Network drives revalidate-on-reconnect and pauses in-flight retries
	// while connectivity is lost. Visibility drives
	// revalidate-on-foreground. Memory drives the eager eviction sweep on
	// high pressure.
	Network    notify.Source[notify.NetworkEvent]
	Visibility notify.Source[notify.VisibilityEvent]
	Memory     notify.Source[notify.MemoryEvent]
}
