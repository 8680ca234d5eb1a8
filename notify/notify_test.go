package notify

import (
	"sync"
	"testing"
)

func TestBroadcaster_PublishDelivers(t *testing.T) {
	t.Parallel()

	var b Broadcaster[NetworkEvent] // zero value is ready
	var got []NetworkEvent
	remove := b.AddObserver(func(e NetworkEvent) { got = append(got, e) })
	defer remove()

	b.Publish(NetworkLost)
	b.Publish(NetworkAvailable)

	if len(got) != 2 || got[0] != NetworkLost || got[1] != NetworkAvailable {
		t.Fatalf("got %v", got)
	}
}

func TestBroadcaster_RemoveIsIdempotent(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster[MemoryEvent]()
	n := 0
	remove := b.AddObserver(func(MemoryEvent) { n++ })
	other := b.AddObserver(func(MemoryEvent) {})
	defer other()

	if b.Len() != 2 {
		t.Fatalf("Len = %d, want 2", b.Len())
	}
	remove()
	remove() // second call must be a no-op
	if b.Len() != 1 {
		t.Fatalf("Len = %d, want 1", b.Len())
	}

	b.Publish(MemoryPressureHigh)
	if n != 0 {
		t.Fatal("removed observer must not receive events")
	}
}

// Publishing with no observers is safe, as is concurrent add/remove/publish.
func TestBroadcaster_Concurrent(t *testing.T) {
	t.Parallel()

	b := NewBroadcaster[VisibilityEvent]()
	b.Publish(VisibilityForeground) // no observers: no-op

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				remove := b.AddObserver(func(VisibilityEvent) {})
				b.Publish(VisibilityBackground)
				remove()
			}
		}()
	}
	wg.Wait()

	if b.Len() != 0 {
		t.Fatalf("Len = %d, want 0", b.Len())
	}
}

func TestEventStrings(t *testing.T) {
	t.Parallel()

	cases := []struct {
		got, want string
	}{
		{NetworkAvailable.String(), "available"},
		{NetworkLost.String(), "lost"},
		{VisibilityForeground.String(), "foreground"},
		{VisibilityBackground.String(), "background"},
		{MemoryPressureLow.String(), "low"},
		{MemoryPressureHigh.String(), "high"},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("got %q, want %q", c.got, c.want)
		}
	}
}
