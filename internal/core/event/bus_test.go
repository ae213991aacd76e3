package event

import (
	"slices"
	"testing"

	"github.com/simkit/compstore/internal/core/ecs"
)

func TestEventsVisibleNextTick(t *testing.T) {
	b := NewBus()
	var got []ecs.EntityID
	Subscribe(b, func(ev EntityDestroyed) { got = append(got, ev.Entity) })

	Emit(b, EntityDestroyed{Entity: 7})
	if Pending[EntityDestroyed](b) != 1 {
		t.Fatal("Expected one pending event")
	}
	if n := b.DispatchAll(); n != 0 || len(got) != 0 {
		t.Fatalf("events must not be delivered in the tick they were emitted, got %v", got)
	}

	b.SwapBuffers()
	if n := b.DispatchAll(); n != 1 || !slices.Equal(got, []ecs.EntityID{7}) {
		t.Errorf("DispatchAll() = %d, delivered %v", n, got)
	}

	b.SwapBuffers()
	if n := b.DispatchAll(); n != 0 {
		t.Errorf("events must be delivered once, got %d again", n)
	}
}

func TestDispatchFollowsFirstEmitOrder(t *testing.T) {
	b := NewBus()
	var got []string
	Subscribe(b, func(ComponentFreed) { got = append(got, "freed") })
	Subscribe(b, func(ComponentAllocated) { got = append(got, "allocated") })
	Subscribe(b, func(EntityDestroyed) { got = append(got, "destroyed") })

	for i := 0; i < 3; i++ {
		got = got[:0]
		Emit(b, ComponentAllocated{Entity: 1})
		Emit(b, ComponentFreed{Entity: 1})
		Emit(b, EntityDestroyed{Entity: 1})
		Emit(b, ComponentAllocated{Entity: 2})
		b.SwapBuffers()
		b.DispatchAll()

		want := []string{"allocated", "allocated", "freed", "destroyed"}
		if !slices.Equal(got, want) {
			t.Fatalf("round %d: delivered %v, want %v", i, got, want)
		}
	}
}

func TestDispatchCountsHandlerCalls(t *testing.T) {
	b := NewBus()
	calls := 0
	Subscribe(b, func(EntityDestroyed) { calls++ })
	Subscribe(b, func(EntityDestroyed) { calls++ })

	Emit(b, ComponentFreed{Entity: 1})
	Emit(b, ComponentFreed{Entity: 2})
	Emit(b, EntityDestroyed{Entity: 1})
	b.SwapBuffers()

	if n := b.DispatchAll(); n != 2 || calls != 2 {
		t.Errorf("DispatchAll() = %d with %d calls; unsubscribed events must not count", n, calls)
	}
}
