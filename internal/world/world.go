package world

import (
	"github.com/kamstrup/intmap"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/simkit/compstore/internal/core/ecs"
	"github.com/simkit/compstore/internal/core/event"
)

var (
	ErrNotAlive    = eris.New("entity not alive")
	ErrUnknownType = eris.New("unknown component type")
	ErrPoolFull    = eris.New("component pool full")
)

type entry struct {
	id   ecs.EntityID
	coll *ecs.Collection
}

// World is the simulation object layer over a component manager. Each live
// entity owns one Collection. Destruction is deferred to FlushDestroyQueue,
// which CleanupSystem calls at tick end.
// Accessed only from the tick loop goroutine.
type World struct {
	entities     *ecs.EntityPool
	index        *intmap.Map[ecs.EntityID, int] // entity -> position in live
	live         []entry
	mgr          *ecs.Manager
	bus          *event.Bus
	destroyQueue []ecs.EntityID
	log          *zap.Logger
}

func New(mgr *ecs.Manager, bus *event.Bus, capacityHint int, log *zap.Logger) *World {
	if log == nil {
		log = zap.NewNop()
	}
	return &World{
		entities:     ecs.NewEntityPool(capacityHint),
		index:        intmap.New[ecs.EntityID, int](capacityHint),
		live:         make([]entry, 0, capacityHint),
		mgr:          mgr,
		bus:          bus,
		destroyQueue: make([]ecs.EntityID, 0, 64),
		log:          log,
	}
}

func (w *World) Manager() *ecs.Manager { return w.mgr }
func (w *World) Bus() *event.Bus       { return w.bus }

func (w *World) Spawn() ecs.EntityID {
	id := w.entities.Create()
	w.index.Put(id, len(w.live))
	w.live = append(w.live, entry{id: id, coll: ecs.NewCollection()})
	return id
}

func (w *World) Alive(id ecs.EntityID) bool {
	return w.entities.Alive(id)
}

// Len is the number of live entities, including those queued for destruction.
func (w *World) Len() int { return len(w.live) }

// At returns the i-th live entity. Order changes whenever an entity is
// destroyed.
func (w *World) At(i int) ecs.EntityID { return w.live[i].id }

// Collection returns the components attached to id, or nil if id is not alive.
func (w *World) Collection(id ecs.EntityID) *ecs.Collection {
	i, ok := w.index.Get(id)
	if !ok {
		return nil
	}
	return w.live[i].coll
}

// Attach allocates a component of the named type on id.
func (w *World) Attach(id ecs.EntityID, typeName string) (ecs.Handle, error) {
	t, ok := w.mgr.Registry().Lookup(typeName)
	if !ok {
		return ecs.Handle{}, eris.Wrapf(ErrUnknownType, "attach %s", typeName)
	}
	return w.AttachType(id, t)
}

func (w *World) AttachType(id ecs.EntityID, t ecs.TypeID) (ecs.Handle, error) {
	coll := w.Collection(id)
	if coll == nil {
		return ecs.Handle{}, eris.Wrapf(ErrNotAlive, "attach to %d", id)
	}
	p := w.mgr.Pool(t)
	if p == nil || p.Len() == p.Cap() {
		return ecs.Handle{}, eris.Wrapf(ErrPoolFull, "attach %s", w.mgr.Registry().Descriptor(t).Name)
	}
	h := w.mgr.Allocate(t, id, coll)
	event.Emit(w.bus, event.ComponentAllocated{Entity: id, Type: t, Handle: h})
	return h, nil
}

// Detach frees the component now. A component already passed to
// DetachDeferred was announced then and is not announced again.
func (w *World) Detach(h ecs.Handle) {
	owner := w.mgr.Owner(h)
	announced := false
	if p := w.mgr.Pool(h.Type()); p != nil && p.Allocated(h) {
		announced = p.PendingDelete(h)
	}
	w.mgr.Free(h)
	if !announced {
		event.Emit(w.bus, event.ComponentFreed{Entity: owner, Type: h.Type(), Handle: h})
	}
}

// DetachDeferred schedules the component to be freed at tick end. It stays
// attached until then.
func (w *World) DetachDeferred(h ecs.Handle) {
	if p := w.mgr.Pool(h.Type()); p != nil && p.Allocated(h) && p.PendingDelete(h) {
		return
	}
	w.mgr.FreeDeferred(h)
	event.Emit(w.bus, event.ComponentFreed{Entity: w.mgr.Owner(h), Type: h.Type(), Handle: h})
}

// MarkForDestruction queues an entity for end-of-tick cleanup.
func (w *World) MarkForDestruction(id ecs.EntityID) {
	w.destroyQueue = append(w.destroyQueue, id)
}

// FlushDestroyQueue destroys all queued entities and releases their
// components. Returns how many entities were destroyed; entities queued
// twice or already gone are skipped.
func (w *World) FlushDestroyQueue() int {
	n := 0
	for _, id := range w.destroyQueue {
		if w.destroy(id) {
			n++
		}
	}
	w.destroyQueue = w.destroyQueue[:0]
	return n
}

func (w *World) destroy(id ecs.EntityID) bool {
	i, ok := w.index.Get(id)
	if !ok {
		return false
	}
	coll := w.live[i].coll
	released := 0
	for _, t := range coll.Types() {
		p := w.mgr.Pool(t)
		for _, h := range w.mgr.Components(coll, t) {
			// DetachDeferred already announced these
			if !p.PendingDelete(h) {
				event.Emit(w.bus, event.ComponentFreed{Entity: id, Type: t, Handle: h})
			}
			released++
		}
	}
	w.mgr.ReleaseAll(coll)

	last := len(w.live) - 1
	if i != last {
		w.live[i] = w.live[last]
		w.index.Put(w.live[i].id, i)
	}
	w.live = w.live[:last]
	w.index.Del(id)
	w.entities.Destroy(id)

	event.Emit(w.bus, event.EntityDestroyed{Entity: id, Components: released})
	return true
}

// Close destroys every entity. The manager is left open.
func (w *World) Close() {
	for len(w.live) > 0 {
		w.destroy(w.live[len(w.live)-1].id)
	}
	w.destroyQueue = w.destroyQueue[:0]
	w.log.Debug("world closed")
}
