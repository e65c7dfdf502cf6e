package jobs

import "testing"

// TestEventBusSince verifies incremental event reads by sequence.
func TestEventBusSince(t *testing.T) {
	bus := NewEventBus(3)
	bus.Publish(Event{Type: EventTypeStage, Message: "1"})
	bus.Publish(Event{Type: EventTypeStage, Message: "2"})
	bus.Publish(Event{Type: EventTypeStage, Message: "3"})

	events := bus.Since(1)
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Seq != 2 || events[1].Seq != 3 {
		t.Fatalf("unexpected seqs: %+v", events)
	}
}

// TestEventBusCapsHistory verifies buffer limit trimming behavior.
func TestEventBusCapsHistory(t *testing.T) {
	bus := NewEventBus(2)
	bus.Publish(Event{Message: "1"})
	bus.Publish(Event{Message: "2"})
	bus.Publish(Event{Message: "3"})

	events := bus.Since(0)
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Message != "2" || events[1].Message != "3" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

// TestEventBusSubscribeOrder verifies subscribers see sequenced events.
func TestEventBusSubscribeOrder(t *testing.T) {
	bus := NewEventBus(10)
	var seen []int64
	bus.Subscribe(func(e Event) { seen = append(seen, e.Seq) })
	bus.Subscribe(nil)

	bus.Publish(Event{Type: EventTypeStage, Path: "a"})
	bus.Publish(Event{Type: EventTypeOutcome, Path: "a"})

	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Fatalf("seen = %v, want [1 2]", seen)
	}
}
