package system

import (
	"time"

	"go.uber.org/zap"

	"github.com/simkit/compstore/internal/core/ecs"
	coresys "github.com/simkit/compstore/internal/core/system"
)

// VerifySystem checks every pool's roster and chain invariants after the
// tick's mutations, and dumps every roster at debug level on the first
// failure. Phase 3 (PostUpdate).
type VerifySystem struct {
	mgr   *ecs.Manager
	log   *zap.Logger
	tick  uint64
	Err   error // first failure
	Fails int
}

func NewVerifySystem(mgr *ecs.Manager, log *zap.Logger) *VerifySystem {
	return &VerifySystem{mgr: mgr, log: log}
}

func (s *VerifySystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *VerifySystem) Update(_ time.Duration) {
	s.tick++
	err := s.mgr.Verify()
	if err == nil {
		return
	}
	s.Fails++
	if s.Err == nil {
		s.Err = err
		s.log.Error("pool invariant violated", zap.Uint64("tick", s.tick), zap.Error(err))
		for _, d := range s.mgr.Registry().Types() {
			if p := s.mgr.Pool(d.ID()); p != nil {
				p.Dump()
			}
		}
	}
}
