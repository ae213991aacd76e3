package system

import (
	"time"

	coresys "github.com/simkit/compstore/internal/core/system"
	"github.com/simkit/compstore/internal/world"
)

// CleanupSystem frees components detached with DetachDeferred, then flushes
// the deferred entity destruction queue. Phase 4 (Cleanup).
type CleanupSystem struct {
	world *world.World

	Freed     int // components freed by the pending-delete pass, total
	Destroyed int // entities destroyed, total
}

func NewCleanupSystem(ws *world.World) *CleanupSystem {
	return &CleanupSystem{world: ws}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) {
	s.Freed += s.world.Manager().ProcessPendingDeletes()
	s.Destroyed += s.world.FlushDestroyQueue()
}
