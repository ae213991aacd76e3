package data

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/simkit/compstore/internal/core/ecs"
)

const sampleCatalog = `
types:
  - name: Transform
    size: 48
    align: 16
    capacity: 128
  - name: Renderable
    size: 16
    capacity: 64
  - name: Sprite
    parent: Renderable
    size: 32
    capacity: 64
  - name: AnimatedSprite
    parent: Sprite
    size: 40
    capacity: 16
`

func TestLoadCatalogRegistersHierarchy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(sampleCatalog), 0o644); err != nil {
		t.Fatal(err)
	}
	cat, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if cat.Count() != 4 {
		t.Fatalf("Expected 4 types, got %d", cat.Count())
	}
	if e := cat.Get("Transform"); e == nil || e.Align != 16 {
		t.Errorf("Get(Transform) = %+v", e)
	}

	reg := ecs.NewTypeRegistry(zaptest.NewLogger(t))
	reg.Init()
	defer reg.Shutdown()
	descs, err := cat.Register(reg)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	renderable := descs["Renderable"].ID()
	animated := descs["AnimatedSprite"].ID()
	if !reg.Implements(animated, renderable) {
		t.Error("AnimatedSprite should implement Renderable through Sprite")
	}
	if reg.Implements(descs["Transform"].ID(), renderable) {
		t.Error("Transform has no parent")
	}
	if got := descs["Sprite"].DefaultCapacity(); got != 64 {
		t.Errorf("Sprite default capacity = %d, want 64", got)
	}

	if _, err := cat.Register(reg); err == nil {
		t.Error("registering the same catalog twice should fail")
	}
}

func TestParseCatalogRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"ForwardParent", "types:\n  - {name: Child, parent: Base}\n  - {name: Base}\n", "declared before"},
		{"Duplicate", "types:\n  - {name: A}\n  - {name: A}\n", "declared twice"},
		{"Unnamed", "types:\n  - {size: 4}\n", "missing name"},
		{"Align", "types:\n  - {name: A, align: 24}\n", "power of two"},
		{"Negative", "types:\n  - {name: A, capacity: -3}\n", "negative"},
		{"Syntax", "types: [", "parse type catalog"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("ParseCatalog() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}
