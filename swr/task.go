package swr

import (
	"context"
	"sync/atomic"

	"github.com/juju/retry"
)

// fetchTask is one execution of an entry's fetch function, including its
// retries. At most one task is active per entry; concurrent triggers join
// the in-flight task by waiting on done instead of issuing a second fetch
// (the coalescing a singleflight group would do, folded into the entry).
type fetchTask struct {
	// fn performs one attempt. apply commits a successful value to the
	// entry; it runs with the entry lock held.
	fn    func(ctx context.Context) (any, error)
	apply func(e *entry, v any)

	// stop is closed on supersession or eviction: remaining retries are
	// skipped, the result is discarded silently.
	stop       chan struct{}
	superseded atomic.Bool

	// done is closed once the task has settled. err is the stored failure
	// (nil on success or silent cancellation); read only after done.
	done chan struct{}
	err  error
}

func newFetchTask() *fetchTask {
	return &fetchTask{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// newRefreshTaskLocked builds the task that (re)populates the entry:
// the plain fetch for queries, a first-page fetch for infinite queries.
// A changed first page means later pages' parameters may be stale, so the
// infinite refresh truncates the page sequence down to the new first page.
func (e *entry) newRefreshTaskLocked() *fetchTask {
	t := newFetchTask()
	switch e.kind {
	case kindInfinite:
		param := e.firstParam
		fetchPage := e.fetchPage
		t.fn = func(ctx context.Context) (any, error) { return fetchPage(ctx, param) }
		t.apply = func(e *entry, v any) {
			e.pages = []any{v}
			e.hasData = true
			e.nextParam, e.hasNext = e.nextAfter(e.pages)
		}
	default:
		t.fn = e.fetch
		t.apply = func(e *entry, v any) {
			e.data = v
			e.hasData = true
		}
	}
	return t
}

// newLoadMoreTaskLocked builds the task appending the next page. The page
// parameter is captured at creation; existing pages are never re-fetched.
func (e *entry) newLoadMoreTaskLocked() *fetchTask {
	t := newFetchTask()
	param := e.nextParam
	fetchPage := e.fetchPage
	t.fn = func(ctx context.Context) (any, error) { return fetchPage(ctx, param) }
	t.apply = func(e *entry, v any) {
		e.pages = append(e.pages, v)
		e.hasData = true
		e.nextParam, e.hasNext = e.nextAfter(e.pages)
	}
	return t
}

func (e *entry) startTaskLocked(t *fetchTask, trigger RevalidateTrigger) {
	e.task = t
	e.fstatus = FetchActive
	e.lastFetch = e.store.clk.Now()
	e.notifyLocked()
	e.store.log.Debug("fetch started", "key", e.key.ID(), "trigger", trigger.String())
	go e.store.runTask(e, t)
}

// runTask drives one task through the retry policy. Fetches run on the
// store's lifecycle context: detaching the last observer does not cancel an
// in-flight fetch (the result is still useful if an observer reattaches
// within the keep-alive window); closing the store does.
func (s *Store) runTask(e *entry, t *fetchTask) {
	pol := e.pol
	var val any
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			if err := s.waitOnline(e, t); err != nil {
				return err
			}
			v, ferr := t.fn(s.ctx)
			if ferr != nil {
				return classify(ferr)
			}
			val = v
			return nil
		},
		IsFatalError: isCancellation,
		NotifyFunc: func(lastErr error, attempt int) {
			s.log.Debug("fetch attempt failed",
				"key", e.key.ID(), "attempt", attempt, "err", lastErr)
			e.noteRetry(t, attempt)
		},
		Attempts:    pol.RetryAttempts,
		Delay:       pol.RetryDelay,
		MaxDelay:    pol.RetryMaxDelay,
		BackoffFunc: pol.Backoff,
		Clock:       s.clk,
		Stop:        t.stop,
	})
	s.settleTask(e, t, val, err)
}

// settleTask commits the task outcome to the entry and starts the parked
// successor, if any. Superseded and cancelled results are discarded without
// touching entry state — never surfaced as user errors.
func (s *Store) settleTask(e *entry, t *fetchTask, val any, err error) {
	now := s.clk.Now()
	outcome := FetchSucceeded

	e.mu.Lock()
	current := e.task == t
	if current {
		e.task = nil
	}
	discarded := !current || t.superseded.Load() || e.evicted
	switch {
	case discarded, isCancellation(err):
		outcome = FetchCancelled
	case err == nil:
		t.apply(e, val)
		if now.After(e.dataAt) {
			e.dataAt = now
		}
		e.status = StatusSuccess
		e.err = nil
		e.retries = 0
		e.invalid = false
	default:
		fe := taskError(err)
		e.err = fe
		if now.After(e.errAt) {
			e.errAt = now
		}
		e.status = StatusFailure
		t.err = fe
		outcome = FetchFailed
	}
	if current {
		e.fstatus = FetchIdle
		if e.succ != nil && !e.evicted {
			next := e.succ
			e.succ = nil
			e.startTaskLocked(next, TriggerInvalidate)
		}
	}
	e.notifyLocked()
	e.mu.Unlock()

	s.met.Fetch(outcome)
	close(t.done)
}

// noteRetry surfaces the in-flight retry count in snapshots.
func (e *entry) noteRetry(t *fetchTask, attempt int) {
	e.mu.Lock()
	if e.task == t && !t.superseded.Load() {
		e.retries = attempt
		e.notifyLocked()
	}
	e.mu.Unlock()
}

// waitOnline gates fetch attempts on connectivity when a network source is
// configured. While waiting, the entry reports FetchPaused.
func (s *Store) waitOnline(e *entry, t *fetchTask) error {
	gate := s.offlineGate()
	if gate == nil {
		return nil
	}
	e.setFetchStatus(FetchPaused)
	defer e.setFetchStatus(FetchActive)
	select {
	case <-gate:
		return nil
	case <-t.stop:
		return &FetchError{Kind: KindCancelled, Err: errSuperseded}
	case <-s.ctx.Done():
		return ErrStoreClosed
	}
}

func (e *entry) setFetchStatus(fs FetchStatus) {
	e.mu.Lock()
	if !e.evicted && e.fstatus != fs && e.fstatus != FetchIdle {
		e.fstatus = fs
		e.notifyLocked()
	}
	e.mu.Unlock()
}
