package ecs

import (
	"math"
	"math/bits"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// TypeID is the dense id assigned to a component type at registration.
type TypeID uint16

// MaxTypes is the size of the type table. The top value of TypeID is kept free.
const MaxTypes = math.MaxUint16

// TypeDescriptor describes one component type: layout, in-place construct and
// destruct hooks, and the closure sets filled in by TypeRegistry.Register.
//
// Construct and Destruct receive the slot payload. A nil Construct zero-fills
// the payload; a nil Destruct does nothing.
type TypeDescriptor struct {
	Name      string
	Size      int
	Align     int
	Construct func(payload []byte)
	Destruct  func(payload []byte)

	id              TypeID
	registered      bool
	defaultCapacity int
	implemented     TypeSet
	implementing    TypeSet
}

// ID returns the assigned id. Only meaningful while Registered is true.
func (d *TypeDescriptor) ID() TypeID           { return d.id }
func (d *TypeDescriptor) Registered() bool     { return d.registered }
func (d *TypeDescriptor) DefaultCapacity() int { return d.defaultCapacity }

// Implemented holds the type itself plus every ancestor.
func (d *TypeDescriptor) Implemented() TypeSet { return d.implemented }

// Implementing holds the type itself plus every descendant registered so far.
func (d *TypeDescriptor) Implementing() TypeSet { return d.implementing }

func (d *TypeDescriptor) reset() {
	d.id = 0
	d.registered = false
	d.defaultCapacity = 0
	d.implemented = TypeSet{}
	d.implementing = TypeSet{}
}

// TypeRegistry is the table of component types for a process (or a test).
// Init and Shutdown are reference counted; the table is cleared when the last
// user shuts down.
type TypeRegistry struct {
	types    []*TypeDescriptor
	byName   map[string]TypeID
	refCount int
	log      *zap.Logger
}

func NewTypeRegistry(log *zap.Logger) *TypeRegistry {
	if log == nil {
		log = zap.NewNop()
	}
	return &TypeRegistry{
		types:  make([]*TypeDescriptor, 0, 32),
		byName: make(map[string]TypeID, 32),
		log:    log,
	}
}

func (r *TypeRegistry) Init() {
	r.refCount++
}

// Shutdown drops one reference. At zero every descriptor is reset so it can be
// registered again by a later Init.
func (r *TypeRegistry) Shutdown() {
	if r.refCount == 0 {
		r.log.Warn("type registry shutdown without matching init")
		return
	}
	r.refCount--
	if r.refCount > 0 {
		return
	}
	r.log.Info("component types shutting down", zap.Int("types", len(r.types)))
	for _, d := range r.types {
		d.reset()
	}
	r.types = r.types[:0]
	r.byName = make(map[string]TypeID, 32)
}

func (r *TypeRegistry) Initialized() bool { return r.refCount > 0 }

// Register assigns the next TypeID to desc and builds its closure sets. The
// new type implements itself, parent, and everything parent implements; it is
// added to the implementing set of each of those.
//
// Registering into a registry that is not initialized, registering the same
// descriptor (or name) twice, an unregistered parent, or a bad layout is a
// programmer error and panics.
func (r *TypeRegistry) Register(desc *TypeDescriptor, parent *TypeDescriptor, defaultCapacity int) TypeID {
	if !r.Initialized() {
		panic(eris.Wrapf(ErrNotInitialized, "register %q", desc.Name))
	}
	if desc.registered {
		panic(eris.Wrapf(ErrAlreadyRegistered, "register %q: already has id %d", desc.Name, desc.id))
	}
	if _, dup := r.byName[desc.Name]; dup {
		panic(eris.Wrapf(ErrAlreadyRegistered, "register %q: name in use", desc.Name))
	}
	if parent != nil && !r.owns(parent) {
		panic(eris.Wrapf(ErrUnknownParent, "register %q: parent %q", desc.Name, parent.Name))
	}
	if len(r.types) >= MaxTypes {
		panic(eris.Wrapf(ErrTooManyTypes, "register %q", desc.Name))
	}
	if desc.Size < 0 || defaultCapacity < 0 {
		panic(eris.Wrapf(ErrInvalidLayout, "register %q: size %d capacity %d", desc.Name, desc.Size, defaultCapacity))
	}
	if desc.Align <= 0 {
		desc.Align = 1
	}
	if bits.OnesCount(uint(desc.Align)) != 1 {
		panic(eris.Wrapf(ErrInvalidLayout, "register %q: alignment %d is not a power of two", desc.Name, desc.Align))
	}

	id := TypeID(len(r.types))
	desc.id = id
	desc.registered = true
	desc.defaultCapacity = defaultCapacity
	desc.implemented = newTypeSet()
	desc.implementing = newTypeSet()
	desc.implemented.add(id)
	desc.implementing.add(id)

	if parent != nil {
		// parent.implemented already includes parent itself
		for _, ancestor := range parent.implemented.IDs() {
			desc.implemented.add(ancestor)
			r.types[ancestor].implementing.add(id)
		}
	}

	r.types = append(r.types, desc)
	r.byName[desc.Name] = id

	r.log.Debug("registered component type",
		zap.String("type", desc.Name),
		zap.Uint16("id", uint16(id)),
		zap.Int("size", desc.Size),
		zap.Int("default_capacity", defaultCapacity),
		zap.Int("depth", desc.implemented.Len()-1),
	)
	return id
}

func (r *TypeRegistry) owns(d *TypeDescriptor) bool {
	return d.registered && int(d.id) < len(r.types) && r.types[d.id] == d
}

// Descriptor looks up a type by id. The id is expected to be valid; an out of
// range id panics.
func (r *TypeRegistry) Descriptor(id TypeID) *TypeDescriptor {
	if int(id) >= len(r.types) {
		panic(eris.Wrapf(ErrTypeOutOfRange, "type id %d (registered: %d)", id, len(r.types)))
	}
	return r.types[id]
}

func (r *TypeRegistry) Lookup(name string) (TypeID, bool) {
	id, ok := r.byName[name]
	return id, ok
}

// Implements reports whether type a satisfies a query for type b.
func (r *TypeRegistry) Implements(a, b TypeID) bool {
	return r.Descriptor(a).implemented.Has(b)
}

// Types returns the registered descriptors in id order. The slice must not be modified.
func (r *TypeRegistry) Types() []*TypeDescriptor { return r.types }

func (r *TypeRegistry) Len() int { return len(r.types) }
