package swr

import (
	"context"
	"errors"
	"math/rand"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/IvanBrykalov/swrcache/notify"
)

// A mixed workload of concurrent attach/read/detach, invalidation, manual
// refetch and signal publishing on a shared keyspace. Should pass under
// `-race` without detector reports.
func TestRace_MixedWorkload(t *testing.T) {
	network := notify.NewBroadcaster[notify.NetworkEvent]()
	vis := notify.NewBroadcaster[notify.VisibilityEvent]()
	mem := notify.NewBroadcaster[notify.MemoryEvent]()
	s := New(Options{
		Shards:     8,
		Network:    network,
		Visibility: vis,
		Memory:     mem,
	})
	t.Cleanup(func() { _ = s.Close() })

	fetch := func(ctx context.Context, _ Receiver) (int, error) {
		return 1, nil
	}
	pol := &Policy{StaleTime: 10 * time.Millisecond, GCTime: 20 * time.Millisecond}

	workers := 4 * runtime.GOMAXPROCS(0)
	keyspace := 64
	deadline := time.Now().Add(2 * time.Second)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)*9973))
			for time.Now().Before(deadline) {
				k := NewKey("race", r.Intn(keyspace))
				switch r.Intn(100) {
				case 0, 1, 2: // ~3% — invalidate
					_ = s.Invalidate(k)
				case 3: // ~1% — namespace invalidate
					s.InvalidateNamespace("race")
				case 4: // ~1% — signals
					switch r.Intn(4) {
					case 0:
						network.Publish(notify.NetworkLost)
					case 1:
						network.Publish(notify.NetworkAvailable)
					case 2:
						vis.Publish(notify.VisibilityForeground)
					case 3:
						mem.Publish(notify.MemoryPressureHigh)
					}
				default: // attach, read, sometimes refetch, detach
					h, err := Attach(s, QueryDef[int]{Key: k, Fetch: fetch, Policy: pol})
					if err != nil {
						if errors.Is(err, ErrStoreClosed) {
							return
						}
						t.Error(err)
						return
					}
					_ = h.State()
					if r.Intn(10) == 0 {
						h.Refetch()
					}
					h.Detach()
				}
			}
		}(w)
	}
	wg.Wait()

	// The store must still be coherent after the storm.
	_ = s.Len()
	_ = s.Stats()
}
