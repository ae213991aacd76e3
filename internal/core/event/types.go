package event

import "github.com/simkit/compstore/internal/core/ecs"

// ComponentAllocated is emitted when a component is attached to an entity.
type ComponentAllocated struct {
	Entity ecs.EntityID
	Type   ecs.TypeID
	Handle ecs.Handle
}

// ComponentFreed is emitted when a component is released, including
// components released by entity destruction.
type ComponentFreed struct {
	Entity ecs.EntityID
	Type   ecs.TypeID
	Handle ecs.Handle
}

type EntityDestroyed struct {
	Entity     ecs.EntityID
	Components int
}
