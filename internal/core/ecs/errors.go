package ecs

import "github.com/rotisserie/eris"

// Programmer errors. The core raises these with panic, wrapped with context
// via eris; they are never returned. Tests and supervisors can match them
// with eris.Is on the recovered value.
var (
	ErrPoolExhausted     = eris.New("component pool exhausted")
	ErrNoPool            = eris.New("no component pool for type in this world")
	ErrNotAllocated      = eris.New("component slot is not allocated")
	ErrAlreadyRegistered = eris.New("component type already registered")
	ErrUnknownParent     = eris.New("parent component type is not registered")
	ErrTypeOutOfRange    = eris.New("component type id out of range")
	ErrTooManyTypes      = eris.New("component type table is full")
	ErrInvalidLayout     = eris.New("invalid component layout")
	ErrNotInitialized    = eris.New("type registry is not initialized")
)
