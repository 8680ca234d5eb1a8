// Package swr provides a client-side asynchronous data cache following the
// stale-while-revalidate model: fetched values are served from memory
// immediately, even once stale, while a background fetch refreshes them.
//
// Design
//
//   - Identity: a Key is a namespace plus an ordered parameter tuple,
//     canonicalized so structurally equal keys — wherever constructed —
//     resolve to the same entry. The registry routes keys to shards by a
//     64-bit hash of the canonical id.
//
//   - Entries: each key owns one entry state machine. Four variants share
//     the contract: Query (single value), InfiniteQuery (ordered page
//     sequence with a computed next-page parameter), Mutation (per-invocation
//     transitions, optimistic rollback) and Subscription (long-lived stream
//     replacing the value per item). The set is closed by design; dispatch
//     is by kind, not open inheritance.
//
//   - Concurrency: the shard maps are the only shared structures; every
//     entry serializes its own transitions behind one mutex, so state
//     changes for a key apply in causal order. At most one fetch task is in
//     flight per entry — concurrent attaches join it instead of issuing a
//     second fetch. A newer revalidation supersedes the in-flight task
//     (remaining retries are skipped) and parks exactly one successor.
//
//   - Time: staleness, keep-alive (gcTime) and retry backoff all run on an
//     injected github.com/juju/clock.Clock, so policy is measured in
//     monotonic process time and tests drive it with a testclock.
//
//   - Retry: each task runs through github.com/juju/retry with the policy's
//     attempt budget and a pluggable backoff curve (package backoff).
//
//   - Lifecycle: observers are refcounted through explicit handles. When
//     the last observer detaches, a keep-alive timer starts; reattachment
//     cancels it, expiry evicts the entry. In-flight fetches are not
//     cancelled by detach — their result is still useful to a reattaching
//     observer — only by closing the store.
//
//   - Signals: the store lazily registers with optional notify sources
//     while it holds entries. Connectivity regained and foregrounding
//     revalidate observed stale entries; lost connectivity pauses fetch
//     retries; high memory pressure evicts all idle entries immediately.
//
//   - Errors: recoverable fetch failures terminate at the entry boundary —
//     stored as state, classified (network/application/cancelled), never
//     returned from store operations. Superseded tasks are discarded
//     silently. Only programmer errors (invalid key, missing fetch
//     function, closed store) fail calls directly.
//
// Basic usage
//
//	s := swr.New(swr.Options{Receiver: httpClient})
//	defer s.Close()
//
//	users := swr.QueryDef[[]User]{
//		Key:    swr.NewKey("users", orgID),
//		Policy: &swr.Policy{StaleTime: time.Minute},
//		Fetch: func(ctx context.Context, rcv swr.Receiver) ([]User, error) {
//			return rcv.(*Client).ListUsers(ctx, orgID)
//		},
//	}
//
//	h, err := swr.Attach(s, users)
//	if err != nil { ... }
//	defer h.Detach()
//
//	for range h.Updates() {
//		st := h.State()
//		render(st.Data, st.Stale, st.FetchStatus)
//	}
//
// Pagination
//
//	feed := swr.InfiniteDef[Page, string]{
//		Key:        swr.NewKey("feed"),
//		FirstParam: "",
//		FetchPage:  fetchPage,
//		NextParam: func(pages []Page) (string, bool) {
//			last := pages[len(pages)-1]
//			return last.Cursor, last.Cursor != ""
//		},
//	}
//	fh, _ := swr.AttachInfinite(s, feed)
//	_ = fh.LoadMore(ctx) // appends page 2; no-op once NextParam says done
//
// Mutations with optimistic rollback
//
//	rename := swr.MutationDef[User, string]{
//		Run: doRename,
//		OnMutate: func(ctx context.Context, name string) (func(), error) {
//			prev := view.Name()
//			view.SetName(name)                  // optimistic
//			return func() { view.SetName(prev) }, nil
//		},
//		OnSuccess: func(ctx context.Context, u User, _ string) {
//			_ = s.Invalidate(swr.NewKey("users", u.Org))
//		},
//	}
//	_, err := swr.Mutate(ctx, s, rename, "new name")
//
// See Options for store-level configuration and Policy for per-definition
// staleness, keep-alive and retry settings.
package swr
