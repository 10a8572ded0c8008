package coordinator

import (
	"fmt"
	"testing"
	"time"

	"auto-transcriber/internal/domain"
)

// TestEventBusSequencing verifies monotonic sequence assignment and
// incremental reads.
func TestEventBusSequencing(t *testing.T) {
	bus := NewEventBus(10)

	first := bus.Publish(Event{Type: EventTypeQueued, Job: domain.Job{ID: "a"}})
	second := bus.Publish(Event{Type: EventTypeStarted, Job: domain.Job{ID: "a"}})
	if first.Seq != 1 || second.Seq != 2 {
		t.Fatalf("sequences = %d, %d, want 1, 2", first.Seq, second.Seq)
	}

	since := bus.Since(first.Seq)
	if len(since) != 1 || since[0].Type != EventTypeStarted {
		t.Errorf("Since(%d) = %+v, want only the started event", first.Seq, since)
	}
	if got := bus.Since(second.Seq); len(got) != 0 {
		t.Errorf("Since(latest) returned %d events, want 0", len(got))
	}
}

// TestEventBusBounded verifies old events are dropped past the cap
// while sequence numbers keep growing.
func TestEventBusBounded(t *testing.T) {
	bus := NewEventBus(5)
	for i := 0; i < 12; i++ {
		bus.Publish(Event{Type: EventTypeProgress, Job: domain.Job{ID: fmt.Sprintf("j%d", i)}})
	}

	events := bus.Since(0)
	if len(events) != 5 {
		t.Fatalf("bus holds %d events, want 5", len(events))
	}
	if events[0].Seq != 8 || events[len(events)-1].Seq != 12 {
		t.Errorf("retained sequences %d..%d, want 8..12", events[0].Seq, events[len(events)-1].Seq)
	}
}

// TestEventBusSubscribe verifies live fan-out and cancellation.
func TestEventBusSubscribe(t *testing.T) {
	bus := NewEventBus(10)
	ch, cancel := bus.Subscribe()

	bus.Publish(Event{Type: EventTypeQueued, Job: domain.Job{ID: "a"}})
	select {
	case ev := <-ch:
		if ev.Type != EventTypeQueued {
			t.Errorf("received %s, want queued", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive the event")
	}

	cancel()
	bus.Publish(Event{Type: EventTypeStarted, Job: domain.Job{ID: "a"}})
	select {
	case ev := <-ch:
		t.Errorf("received %s after cancel", ev.Type)
	default:
	}
}
