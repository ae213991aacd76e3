package data

import (
	"fmt"
	"math/bits"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/simkit/compstore/internal/core/ecs"
)

// TypeEntry declares one component type in the catalog.
type TypeEntry struct {
	Name     string `yaml:"name"`
	Parent   string `yaml:"parent"`   // must be declared earlier in the file
	Size     int    `yaml:"size"`     // payload bytes
	Align    int    `yaml:"align"`    // 0 means byte aligned
	Capacity int    `yaml:"capacity"` // default pool capacity
	Note     string `yaml:"note"`
}

type catalogFile struct {
	Types []TypeEntry `yaml:"types"`
}

// Catalog is the ordered list of component types a simulation registers.
type Catalog struct {
	entries []TypeEntry
	byName  map[string]int
}

// LoadCatalog loads catalog.yaml.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read type catalog: %w", err)
	}
	return ParseCatalog(raw)
}

func ParseCatalog(raw []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse type catalog: %w", err)
	}
	c := &Catalog{
		entries: f.Types,
		byName:  make(map[string]int, len(f.Types)),
	}
	for i := range c.entries {
		e := &c.entries[i]
		if e.Name == "" {
			return nil, fmt.Errorf("type catalog entry %d: missing name", i)
		}
		if _, dup := c.byName[e.Name]; dup {
			return nil, fmt.Errorf("type catalog: %s declared twice", e.Name)
		}
		if e.Parent != "" {
			if _, ok := c.byName[e.Parent]; !ok {
				return nil, fmt.Errorf("type catalog: %s: parent %s must be declared before it", e.Name, e.Parent)
			}
		}
		if e.Size < 0 || e.Capacity < 0 {
			return nil, fmt.Errorf("type catalog: %s: negative size or capacity", e.Name)
		}
		if e.Align < 0 || (e.Align > 0 && bits.OnesCount(uint(e.Align)) != 1) {
			return nil, fmt.Errorf("type catalog: %s: align %d is not a power of two", e.Name, e.Align)
		}
		c.byName[e.Name] = i
	}
	if len(c.entries) > ecs.MaxTypes {
		return nil, fmt.Errorf("type catalog: %d types exceeds the limit of %d", len(c.entries), ecs.MaxTypes)
	}
	return c, nil
}

// Get returns the entry for name, or nil if the catalog does not declare it.
func (c *Catalog) Get(name string) *TypeEntry {
	i, ok := c.byName[name]
	if !ok {
		return nil
	}
	return &c.entries[i]
}

// Count returns the total number of types declared.
func (c *Catalog) Count() int {
	return len(c.entries)
}

// Register registers every catalog type with reg in file order and returns
// the descriptors by name. reg must be initialized.
func (c *Catalog) Register(reg *ecs.TypeRegistry) (map[string]*ecs.TypeDescriptor, error) {
	for _, e := range c.entries {
		if _, taken := reg.Lookup(e.Name); taken {
			return nil, fmt.Errorf("register %s: name already registered", e.Name)
		}
	}
	descs := make(map[string]*ecs.TypeDescriptor, len(c.entries))
	for _, e := range c.entries {
		d := &ecs.TypeDescriptor{Name: e.Name, Size: e.Size, Align: e.Align}
		reg.Register(d, descs[e.Parent], e.Capacity)
		descs[e.Name] = d
	}
	return descs, nil
}
