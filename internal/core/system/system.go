package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: plan this tick's scripted work
	PhasePreUpdate               // 1: deliver last tick's events
	PhaseUpdate                  // 2: attach, detach, acquire, release
	PhasePostUpdate              // 3: verify pool invariants
	PhaseCleanup                 // 4: pending deletes, destroy queue
	PhaseSweep                   // 5: one weak reference bucket
)

var phaseNames = [...]string{"input", "pre_update", "update", "post_update", "cleanup", "sweep"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// System is the interface every simulation system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
