package system

import (
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/simkit/compstore/internal/core/ecs"
	"github.com/simkit/compstore/internal/core/event"
	coresys "github.com/simkit/compstore/internal/core/system"
	"github.com/simkit/compstore/internal/scripting"
	"github.com/simkit/compstore/internal/world"
)

// Planner decides how much work each tick does. *scripting.Engine is the
// production implementation.
type Planner interface {
	Plan(ctx scripting.TickContext) scripting.TickPlan
}

// ChurnStats are running totals kept by ChurnSystem.
type ChurnStats struct {
	Spawned    int
	Attached   int
	Rejected   int // attach refused because the pool was full
	Detached   int
	Destroyed  int // destruction requests, including repeats
	Acquired   int
	Released   int
	Expired    int // held refs found emptied by the sweep
	Orphaned   int // held refs dropped when their owner was destroyed
	Mismatched int // checked ref resolved to a component of another entity
}

type heldRef struct {
	ref   *ecs.Ref
	owner ecs.EntityID
}

// ChurnSystem drives random attach, detach, destroy and weak reference
// traffic against the world, following the planner's counts. Every held ref
// records the entity it was taken from; a checked Get that resolves to a
// component owned by anyone else is counted as Mismatched. Refs into an
// entity are released when its EntityDestroyed event arrives; refs into
// components detached one at a time are left for the sweep.
// Phase 2 (Update).
type ChurnSystem struct {
	world   *world.World
	planner Planner
	rng     *rand.Rand
	types   []ecs.TypeID
	refs    []heldRef
	tick    uint64
	log     *zap.Logger
	unknown map[string]bool

	Stats ChurnStats
}

func NewChurnSystem(ws *world.World, planner Planner, seed int64, log *zap.Logger) *ChurnSystem {
	if log == nil {
		log = zap.NewNop()
	}
	s := &ChurnSystem{
		world:   ws,
		planner: planner,
		rng:     rand.New(rand.NewSource(seed)),
		log:     log,
		unknown: make(map[string]bool),
	}
	mgr := ws.Manager()
	for _, d := range mgr.Registry().Types() {
		if mgr.Pool(d.ID()) != nil {
			s.types = append(s.types, d.ID())
		}
	}
	event.Subscribe(ws.Bus(), s.onEntityDestroyed)
	return s
}

func (s *ChurnSystem) onEntityDestroyed(ev event.EntityDestroyed) {
	for i := 0; i < len(s.refs); {
		if s.refs[i].owner != ev.Entity {
			i++
			continue
		}
		s.refs[i].ref.Release()
		s.removeRef(i)
		s.Stats.Orphaned++
	}
}

func (s *ChurnSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

// Refs is the number of weak refs currently held.
func (s *ChurnSystem) Refs() int { return len(s.refs) }

func (s *ChurnSystem) Update(_ time.Duration) {
	s.tick++
	s.prune()

	mgr := s.world.Manager()
	plan := s.planner.Plan(scripting.TickContext{
		Tick:       s.tick,
		Entities:   s.world.Len(),
		Components: s.liveComponents(),
		Refs:       len(s.refs),
		Stale:      mgr.Weak().Invalidated(),
	})
	types := s.resolve(plan.Types)

	for i := 0; i < plan.Spawn; i++ {
		s.world.Spawn()
		s.Stats.Spawned++
	}
	for i := 0; i < plan.Attach && len(types) > 0; i++ {
		id, ok := s.randomEntity()
		if !ok {
			break
		}
		t := types[s.rng.Intn(len(types))]
		if _, err := s.world.AttachType(id, t); err != nil {
			s.Stats.Rejected++
			continue
		}
		s.Stats.Attached++
	}
	for i := 0; i < plan.Detach; i++ {
		_, h, ok := s.randomComponent()
		if !ok {
			break
		}
		s.world.DetachDeferred(h)
		s.Stats.Detached++
	}
	for i := 0; i < plan.Acquire; i++ {
		id, h, ok := s.randomComponent()
		if !ok {
			break
		}
		s.refs = append(s.refs, heldRef{ref: mgr.Acquire(h), owner: id})
		s.Stats.Acquired++
	}
	for i := 0; i < plan.Release && len(s.refs) > 0; i++ {
		s.release(s.rng.Intn(len(s.refs)))
	}
	for i := 0; i < plan.Destroy; i++ {
		id, ok := s.randomEntity()
		if !ok {
			break
		}
		s.world.MarkForDestruction(id)
		s.Stats.Destroyed++
	}
}

// release checks the ref one last time, then drops it.
func (s *ChurnSystem) release(i int) {
	held := s.refs[i]
	if h, ok := held.ref.Get(); ok && s.world.Manager().Owner(h) != held.owner {
		s.Stats.Mismatched++
		s.log.Error("weak ref resolved to another entity's component",
			zap.Uint64("tick", s.tick),
			zap.Uint64("expected_owner", uint64(held.owner)),
			zap.Uint64("actual_owner", uint64(s.world.Manager().Owner(h))),
		)
	}
	held.ref.Release()
	s.removeRef(i)
	s.Stats.Released++
}

// prune forgets refs the sweep has already emptied.
func (s *ChurnSystem) prune() {
	for i := 0; i < len(s.refs); {
		if _, ok := s.refs[i].ref.UncheckedGet(); ok {
			i++
			continue
		}
		s.removeRef(i)
		s.Stats.Expired++
	}
}

func (s *ChurnSystem) removeRef(i int) {
	last := len(s.refs) - 1
	s.refs[i] = s.refs[last]
	s.refs[last] = heldRef{}
	s.refs = s.refs[:last]
}

func (s *ChurnSystem) resolve(names []string) []ecs.TypeID {
	if len(names) == 0 {
		return s.types
	}
	reg := s.world.Manager().Registry()
	out := make([]ecs.TypeID, 0, len(names))
	for _, name := range names {
		t, ok := reg.Lookup(name)
		if !ok || s.world.Manager().Pool(t) == nil {
			if !s.unknown[name] {
				s.unknown[name] = true
				s.log.Warn("scenario names a type with no pool", zap.String("type", name))
			}
			continue
		}
		out = append(out, t)
	}
	return out
}

func (s *ChurnSystem) randomEntity() (ecs.EntityID, bool) {
	n := s.world.Len()
	if n == 0 {
		return ecs.NoOwner, false
	}
	return s.world.At(s.rng.Intn(n)), true
}

// randomComponent picks a random entity and returns the head of one of its
// chains. A few misses on component-less entities are tolerated.
func (s *ChurnSystem) randomComponent() (ecs.EntityID, ecs.Handle, bool) {
	for try := 0; try < 4; try++ {
		id, ok := s.randomEntity()
		if !ok {
			break
		}
		coll := s.world.Collection(id)
		if coll.Len() == 0 {
			continue
		}
		types := coll.Types()
		h, _ := coll.First(types[s.rng.Intn(len(types))])
		return id, h, true
	}
	return ecs.NoOwner, ecs.Handle{}, false
}

func (s *ChurnSystem) liveComponents() int {
	n := 0
	for _, t := range s.types {
		n += s.world.Manager().CountAllocated(t)
	}
	return n
}
