package system

import (
	"time"

	"github.com/simkit/compstore/internal/core/ecs"
	coresys "github.com/simkit/compstore/internal/core/system"
)

// WeakRefSweepSystem advances the weak reference sweep by one bucket. It must
// be the only caller of Manager.Tick so that every ref is revisited within
// the bucket count. Phase 5 (Sweep), after cleanup has freed this tick's
// components.
type WeakRefSweepSystem struct {
	mgr   *ecs.Manager
	Stale int // refs invalidated by the sweep, total
}

func NewWeakRefSweepSystem(mgr *ecs.Manager) *WeakRefSweepSystem {
	return &WeakRefSweepSystem{mgr: mgr}
}

func (s *WeakRefSweepSystem) Phase() coresys.Phase { return coresys.PhaseSweep }

func (s *WeakRefSweepSystem) Update(_ time.Duration) {
	s.Stale += s.mgr.Tick()
}
