package world

import (
	"testing"

	"github.com/rotisserie/eris"
	"go.uber.org/zap/zaptest"

	"github.com/simkit/compstore/internal/core/ecs"
	"github.com/simkit/compstore/internal/core/event"
)

type fixture struct {
	world  *World
	mgr    *ecs.Manager
	bus    *event.Bus
	health ecs.TypeID
	sprite ecs.TypeID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t)
	reg := ecs.NewTypeRegistry(log)
	reg.Init()
	t.Cleanup(reg.Shutdown)

	f := &fixture{
		health: reg.Register(&ecs.TypeDescriptor{Name: "Health", Size: 8}, nil, 2),
		sprite: reg.Register(&ecs.TypeDescriptor{Name: "Sprite", Size: 32}, nil, 8),
	}
	f.mgr = ecs.NewManager(reg, nil, ecs.WithLogger(log), ecs.WithWeakBuckets(4))
	t.Cleanup(f.mgr.Close)
	f.bus = event.NewBus()
	f.world = New(f.mgr, f.bus, 16, log)
	t.Cleanup(f.world.Close)
	return f
}

func TestAttachErrors(t *testing.T) {
	f := newFixture(t)
	id := f.world.Spawn()

	if _, err := f.world.Attach(id, "Helth"); !eris.Is(err, ErrUnknownType) {
		t.Errorf("Attach(unknown) error = %v, want ErrUnknownType", err)
	}

	f.world.Attach(id, "Health")
	f.world.Attach(id, "Health")
	if _, err := f.world.Attach(id, "Health"); !eris.Is(err, ErrPoolFull) {
		t.Errorf("Attach(full pool) error = %v, want ErrPoolFull", err)
	}

	f.world.MarkForDestruction(id)
	f.world.FlushDestroyQueue()
	if _, err := f.world.Attach(id, "Sprite"); !eris.Is(err, ErrNotAlive) {
		t.Errorf("Attach(dead) error = %v, want ErrNotAlive", err)
	}
}

func TestDetachDeferred(t *testing.T) {
	f := newFixture(t)
	id := f.world.Spawn()
	h, err := f.world.Attach(id, "Sprite")
	if err != nil {
		t.Fatal(err)
	}

	var freed int
	event.Subscribe(f.bus, func(event.ComponentFreed) { freed++ })

	f.world.DetachDeferred(h)
	f.world.DetachDeferred(h)
	if !f.mgr.Allocated(h) {
		t.Fatal("deferred detach must keep the component until tick end")
	}
	if n := f.mgr.ProcessPendingDeletes(); n != 1 {
		t.Errorf("Expected 1 pending delete, got %d", n)
	}
	if f.world.Collection(id).Len() != 0 {
		t.Error("collection still lists the detached type")
	}

	f.bus.SwapBuffers()
	f.bus.DispatchAll()
	if freed != 1 {
		t.Errorf("Expected one ComponentFreed event, got %d", freed)
	}
}

func TestFlushDestroyQueue(t *testing.T) {
	f := newFixture(t)
	a := f.world.Spawn()
	b := f.world.Spawn()
	ha, _ := f.world.Attach(a, "Health")
	f.world.Attach(a, "Sprite")
	f.world.Attach(a, "Sprite")
	hb, _ := f.world.Attach(b, "Health")
	ref := f.mgr.Acquire(ha)

	var destroyed []event.EntityDestroyed
	event.Subscribe(f.bus, func(ev event.EntityDestroyed) { destroyed = append(destroyed, ev) })

	f.world.MarkForDestruction(a)
	f.world.MarkForDestruction(a)
	if n := f.world.FlushDestroyQueue(); n != 1 {
		t.Errorf("Expected 1 entity destroyed, got %d", n)
	}

	if f.world.Alive(a) || f.world.Collection(a) != nil {
		t.Error("destroyed entity still reachable")
	}
	if f.world.Len() != 1 || f.world.At(0) != b {
		t.Errorf("Expected only b left, got len %d", f.world.Len())
	}
	if f.mgr.CountAllocated(f.sprite) != 0 || !f.mgr.Allocated(hb) {
		t.Error("destroying a must free exactly a's components")
	}
	if ref.IsGood() {
		t.Error("weak ref into a destroyed entity must go stale")
	}

	f.bus.SwapBuffers()
	f.bus.DispatchAll()
	if len(destroyed) != 1 || destroyed[0].Entity != a || destroyed[0].Components != 3 {
		t.Errorf("EntityDestroyed events = %+v", destroyed)
	}

	c := f.world.Spawn()
	if c == a || c.Index() != a.Index() {
		t.Errorf("respawn should reuse index %d with a new generation, got %d", a.Index(), c)
	}
	if f.world.Alive(a) {
		t.Error("old id must stay dead after its index is reused")
	}
}

func TestDetachAfterDeferredAnnouncesOnce(t *testing.T) {
	f := newFixture(t)
	id := f.world.Spawn()
	h, err := f.world.Attach(id, "Health")
	if err != nil {
		t.Fatal(err)
	}

	var freed []ecs.Handle
	event.Subscribe(f.bus, func(ev event.ComponentFreed) { freed = append(freed, ev.Handle) })

	f.world.DetachDeferred(h)
	f.world.Detach(h)
	if f.mgr.Allocated(h) {
		t.Fatal("Detach must free immediately")
	}
	if n := f.mgr.ProcessPendingDeletes(); n != 0 {
		t.Errorf("pending entry must be skipped after an explicit detach, freed %d", n)
	}

	f.bus.SwapBuffers()
	f.bus.DispatchAll()
	if len(freed) != 1 || freed[0] != h {
		t.Errorf("Expected one ComponentFreed for %v, got %v", h, freed)
	}
}
