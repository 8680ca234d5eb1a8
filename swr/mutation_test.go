package swr

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Callback order on success: OnMutate -> Run -> OnSuccess; rollback unused.
func TestMutate_Success(t *testing.T) {
	t.Parallel()

	s := New(Options{})
	t.Cleanup(func() { _ = s.Close() })

	var (
		order      []string
		rolledBack bool
	)
	def := MutationDef[string, int]{
		OnMutate: func(_ context.Context, vars int) (func(), error) {
			order = append(order, "mutate")
			return func() { rolledBack = true }, nil
		},
		Run: func(_ context.Context, _ Receiver, vars int) (string, error) {
			order = append(order, "run")
			return "renamed-42", nil
		},
		OnSuccess: func(_ context.Context, result string, vars int) {
			order = append(order, "success")
			require.Equal(t, "renamed-42", result)
			require.Equal(t, 42, vars)
		},
		OnError: func(context.Context, error, int) {
			order = append(order, "error")
		},
	}

	got, err := Mutate(context.Background(), s, def, 42)
	require.NoError(t, err)
	require.Equal(t, "renamed-42", got)
	require.Equal(t, []string{"mutate", "run", "success"}, order)
	require.False(t, rolledBack)
}

// Ultimate failure rolls back the optimistic update, then reports OnError,
// then returns the classified error.
func TestMutate_FailureRollsBack(t *testing.T) {
	t.Parallel()

	s := New(Options{})
	t.Cleanup(func() { _ = s.Close() })

	boom := errors.New("conflict")
	var (
		calls      atomic.Int64
		rolledBack bool
		reported   error
	)
	def := MutationDef[string, int]{
		Policy: &Policy{RetryAttempts: 2, RetryDelay: time.Millisecond},
		OnMutate: func(context.Context, int) (func(), error) {
			return func() { rolledBack = true }, nil
		},
		Run: func(context.Context, Receiver, int) (string, error) {
			calls.Add(1)
			return "", boom
		},
		OnError: func(_ context.Context, err error, _ int) {
			require.True(t, rolledBack, "rollback must run before OnError")
			reported = err
		},
	}

	_, err := Mutate(context.Background(), s, def, 1)
	require.Error(t, err)
	require.ErrorIs(t, err, boom)
	require.EqualValues(t, 2, calls.Load(), "must retry per policy")

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, KindApplication, fe.Kind)
	require.Same(t, err, reported)
}

// An OnMutate error aborts the mutation: Run never executes.
func TestMutate_OnMutateAborts(t *testing.T) {
	t.Parallel()

	s := New(Options{})
	t.Cleanup(func() { _ = s.Close() })

	abort := errors.New("validation failed")
	ran := false
	def := MutationDef[string, int]{
		OnMutate: func(context.Context, int) (func(), error) { return nil, abort },
		Run: func(context.Context, Receiver, int) (string, error) {
			ran = true
			return "", nil
		},
	}

	_, err := Mutate(context.Background(), s, def, 1)
	require.ErrorIs(t, err, abort)
	require.False(t, ran)
}

// An OnMutate failure on a keyed mutation records a classified error on the
// transient entry, like every other failure path.
func TestMutate_OnMutateFailureClassified(t *testing.T) {
	t.Parallel()

	s := New(Options{})
	t.Cleanup(func() { _ = s.Close() })

	abort := errors.New("validation failed")
	key := NewKey("rename", "bad")
	def := MutationDef[string, int]{
		Key:      key,
		OnMutate: func(context.Context, int) (func(), error) { return nil, abort },
		Run: func(context.Context, Receiver, int) (string, error) {
			return "", nil
		},
	}

	_, err := Mutate(context.Background(), s, def, 1)
	require.ErrorIs(t, err, abort)

	sh := s.shardFor(key.Hash())
	sh.mu.RLock()
	e := sh.entries[key.ID()]
	sh.mu.RUnlock()
	require.NotNil(t, e)

	e.mu.Lock()
	sn := e.snapshotLocked(s.clk.Now())
	e.mu.Unlock()

	require.Equal(t, StatusFailure, sn.Status)
	var fe *FetchError
	require.ErrorAs(t, sn.Err, &fe)
	require.Equal(t, KindApplication, fe.Kind)
	require.ErrorIs(t, sn.Err, abort)
}

// Cancelling the caller's ctx stops the retry loop; the ctx error is
// returned as-is and the rollback still runs.
func TestMutate_ContextCancelled(t *testing.T) {
	t.Parallel()

	s := New(Options{})
	t.Cleanup(func() { _ = s.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	var rolledBack bool
	def := MutationDef[string, int]{
		OnMutate: func(context.Context, int) (func(), error) {
			return func() { rolledBack = true }, nil
		},
		Run: func(ctx context.Context, _ Receiver, _ int) (string, error) {
			cancel()
			<-ctx.Done()
			return "", ctx.Err()
		},
	}

	_, err := Mutate(ctx, s, def, 1)
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, rolledBack)
}

// A keyed mutation mirrors its transitions through a transient registry
// entry; the key stays reserved for mutations.
func TestMutate_KeyedEntry(t *testing.T) {
	t.Parallel()

	s := New(Options{})
	t.Cleanup(func() { _ = s.Close() })

	key := NewKey("rename", 7)
	def := MutationDef[string, int]{
		Key: key,
		Run: func(context.Context, Receiver, int) (string, error) {
			return "done", nil
		},
	}

	got, err := Mutate(context.Background(), s, def, 7)
	require.NoError(t, err)
	require.Equal(t, "done", got)
	require.Equal(t, 1, s.Len(), "transient entry must be registered")

	// The slot is bound to the mutation kind until it is collected.
	fetch, _ := countingFetch()
	_, err = Attach(s, QueryDef[int]{Key: key, Fetch: fetch})
	require.ErrorIs(t, err, ErrKindMismatch)

	// Reusing the key for another mutation reuses the entry.
	_, err = Mutate(context.Background(), s, def, 7)
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())
}

// OnSuccess commonly invalidates related queries; the revalidation must be
// observable on already-attached handles.
func TestMutate_InvalidateFromOnSuccess(t *testing.T) {
	t.Parallel()

	s := New(Options{})
	t.Cleanup(func() { _ = s.Close() })

	fetch, calls := countingFetch()
	queryKey := NewKey("users", "list")
	h, err := Attach(s, QueryDef[int]{Key: queryKey, Fetch: fetch, Policy: &Policy{StaleTime: -1}})
	require.NoError(t, err)
	defer h.Detach()
	settle(t, h)

	def := MutationDef[string, int]{
		Run: func(context.Context, Receiver, int) (string, error) { return "ok", nil },
		OnSuccess: func(context.Context, string, int) {
			_ = s.Invalidate(queryKey)
		},
	}
	_, err = Mutate(context.Background(), s, def, 1)
	require.NoError(t, err)

	settle(t, h)
	require.EqualValues(t, 2, calls.Load())
	require.Equal(t, 2, h.State().Data)
}
