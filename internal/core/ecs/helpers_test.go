package ecs

import (
	"testing"

	"github.com/rotisserie/eris"
	"go.uber.org/zap/zaptest"
)

func newTestRegistry(t *testing.T) *TypeRegistry {
	t.Helper()
	reg := NewTypeRegistry(zaptest.NewLogger(t))
	reg.Init()
	t.Cleanup(reg.Shutdown)
	return reg
}

func newTestManager(t *testing.T, reg *TypeRegistry, capacities map[string]int, opts ...Option) *Manager {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	m := NewManager(reg, capacities, opts...)
	t.Cleanup(m.Close)
	return m
}

// expectPanic runs fn and fails unless it panics with an error matching target.
func expectPanic(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected panic matching %q, got none", target)
		}
		err, ok := r.(error)
		if !ok || !eris.Is(err, target) {
			t.Fatalf("expected panic matching %q, got %v", target, r)
		}
	}()
	fn()
}

func mustVerify(t *testing.T, m *Manager) {
	t.Helper()
	if err := m.Verify(); err != nil {
		t.Fatalf("invariant violated: %v", err)
	}
}
