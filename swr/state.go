package swr

import (
	"slices"
	"time"
)

// Status is the result axis of an entry's state machine:
// Idle (never settled) -> Success or Failure. Revalidation loops an entry
// back through an active fetch without leaving Success/Failure; eviction is
// terminal and handled by the registry, not by Status.
type Status int

const (
	// StatusIdle — no data and no error yet.
	StatusIdle Status = iota
	// StatusSuccess — data is present (fresh or stale).
	StatusSuccess
	// StatusFailure — the last fetch exhausted its retries.
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	default:
		return "idle"
	}
}

// FetchStatus is the activity axis, orthogonal to Status.
type FetchStatus int

const (
	// FetchIdle — no task in flight.
	FetchIdle FetchStatus = iota
	// FetchActive — a fetch task is running.
	FetchActive
	// FetchPaused — a task is waiting for connectivity to return.
	FetchPaused
)

func (s FetchStatus) String() string {
	switch s {
	case FetchActive:
		return "fetching"
	case FetchPaused:
		return "paused"
	default:
		return "idle"
	}
}

// State is a typed point-in-time view of a query or subscription entry.
// It is a value copy: reading it never blocks the entry.
type State[V any] struct {
	// Data is the cached value; meaningful only when HasData is true.
	Data          V
	HasData       bool
	DataUpdatedAt time.Time

	// Err is the stored failure, nil unless Status is StatusFailure
	// (stale data stays visible alongside a failed revalidation).
	Err          error
	ErrUpdatedAt time.Time

	Status      Status
	FetchStatus FetchStatus

	// Retries is the failed-attempt count of the current task; 0 after success.
	Retries int
	// Stale reports whether the entry is past its freshness deadline
	// (or was explicitly invalidated). Stale data is still servable.
	Stale bool
}

// InfiniteState is the typed view of an infinite-query entry. Pages are in
// fetch order; appending never reorders earlier pages.
type InfiniteState[V any] struct {
	Pages         []V
	HasNextPage   bool
	DataUpdatedAt time.Time

	Err          error
	ErrUpdatedAt time.Time

	Status      Status
	FetchStatus FetchStatus
	Retries     int
	Stale       bool
}

// snapshot is the untyped internal view shared by all entry kinds.
type snapshot struct {
	Data          any
	HasData       bool
	DataUpdatedAt time.Time
	Err           error
	ErrUpdatedAt  time.Time
	Status        Status
	FetchStatus   FetchStatus
	Retries       int
	Stale         bool
	Observers     int
	Pages         []any
	HasNextPage   bool
}

func (e *entry) snapshotLocked(now time.Time) snapshot {
	sn := snapshot{
		Data:          e.data,
		HasData:       e.hasData,
		DataUpdatedAt: e.dataAt,
		Err:           e.err,
		ErrUpdatedAt:  e.errAt,
		Status:        e.status,
		FetchStatus:   e.fstatus,
		Retries:       e.retries,
		Stale:         e.isStaleLocked(now),
		Observers:     e.observers,
		HasNextPage:   e.hasNext,
	}
	if e.kind == kindInfinite {
		sn.Pages = slices.Clone(e.pages)
	}
	return sn
}
