package swr

// EvictReason explains why an entry left the registry.
type EvictReason int

const (
	// EvictExpired — the keep-alive (gcTime) window elapsed at refcount zero.
	EvictExpired EvictReason = iota
	// EvictPressure — removed by the memory-pressure sweep.
	EvictPressure
	// EvictClosed — the store was closed.
	EvictClosed
)

func (r EvictReason) String() string {
	switch r {
	case EvictPressure:
		return "pressure"
	case EvictClosed:
		return "closed"
	default:
		return "expired"
	}
}

// FetchOutcome classifies a finished fetch task.
type FetchOutcome int

const (
	// FetchSucceeded — the task produced data.
	FetchSucceeded FetchOutcome = iota
	// FetchFailed — the task exhausted its retries.
	FetchFailed
	// FetchCancelled — the task was superseded or the store closed.
	FetchCancelled
)

func (o FetchOutcome) String() string {
	switch o {
	case FetchFailed:
		return "failed"
	case FetchCancelled:
		return "cancelled"
	default:
		return "succeeded"
	}
}

// RevalidateTrigger names the signal that started a revalidation fetch.
type RevalidateTrigger int

const (
	// TriggerAttach — a new observer attached to a stale entry.
	TriggerAttach RevalidateTrigger = iota
	// TriggerInvalidate — an explicit invalidate call.
	TriggerInvalidate
	// TriggerNetwork — connectivity regained.
	TriggerNetwork
	// TriggerVisibility — window foregrounded.
	TriggerVisibility
	// TriggerManual — Handle.Refetch or LoadMore.
	TriggerManual
)

func (t RevalidateTrigger) String() string {
	switch t {
	case TriggerInvalidate:
		return "invalidate"
	case TriggerNetwork:
		return "network"
	case TriggerVisibility:
		return "visibility"
	case TriggerManual:
		return "manual"
	default:
		return "attach"
	}
}

// Metrics exposes store-level observability hooks. A NoopMetrics
// implementation is provided and used by default; metrics/prom exports a
// Prometheus adapter. Implementations must be safe for concurrent use and
// keep callbacks lightweight — some fire under entry locks.
type Metrics interface {
	// Hit — an attach found fresh data.
	Hit()
	// Miss — an attach found no data, or only stale data.
	Miss()
	// Fetch — a fetch task finished with the given outcome.
	Fetch(outcome FetchOutcome)
	// Revalidate — a background revalidation was started by trigger.
	Revalidate(trigger RevalidateTrigger)
	// Evict — an entry was removed for the given reason.
	Evict(reason EvictReason)
	// Size — current registry size (entries and attached observers).
	Size(entries, observers int)
}

// NoopMetrics is a drop-in Metrics implementation that does nothing.
type NoopMetrics struct{}

func (NoopMetrics) Hit()                         {}
func (NoopMetrics) Miss()                        {}
func (NoopMetrics) Fetch(FetchOutcome)           {}
func (NoopMetrics) Revalidate(RevalidateTrigger) {}
func (NoopMetrics) Evict(EvictReason)            {}
func (NoopMetrics) Size(int, int)                {}

// Ensure NoopMetrics implements the Metrics interface at compile time.
var _ Metrics = NoopMetrics{}
