package system

import (
	"time"

	"github.com/simkit/compstore/internal/core/event"
	coresys "github.com/simkit/compstore/internal/core/system"
)

// EventDispatchSystem delivers the events emitted last tick. Phase 1
// (PreUpdate).
type EventDispatchSystem struct {
	bus       *event.Bus
	Delivered int
}

func NewEventDispatchSystem(bus *event.Bus) *EventDispatchSystem {
	return &EventDispatchSystem{bus: bus}
}

func (s *EventDispatchSystem) Phase() coresys.Phase { return coresys.PhasePreUpdate }

func (s *EventDispatchSystem) Update(_ time.Duration) {
	s.bus.SwapBuffers()
	s.Delivered += s.bus.DispatchAll()
}
