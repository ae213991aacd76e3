package ecs

import (
	"maps"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Manager owns one Pool per registered component type for a single world,
// plus that world's weak reference registry. It is the entry point for
// allocate and free. Not safe for concurrent use; one simulation goroutine
// drives it.
type Manager struct {
	reg     *TypeRegistry
	pools   []*Pool
	weak    *WeakRegistry
	pending []Handle
	log     *zap.Logger
	closed  bool
}

type managerOptions struct {
	log     *zap.Logger
	buckets int
}

// Option configures a Manager.
type Option func(*managerOptions)

func WithLogger(log *zap.Logger) Option {
	return func(o *managerOptions) { o.log = log }
}

// WithWeakBuckets sets the number of weak reference buckets (ticks per full sweep).
func WithWeakBuckets(n int) Option {
	return func(o *managerOptions) { o.buckets = n }
}

// NewManager creates one pool per type registered in reg. capacities maps a
// type name to its pool size for this world: a missing entry or a negative
// value keeps the type's default, 0 leaves the type without a pool. Names
// that match no registered type are logged and ignored.
//
// The manager holds a reference on reg until Close.
func NewManager(reg *TypeRegistry, capacities map[string]int, opts ...Option) *Manager {
	o := managerOptions{buckets: DefaultBucketCount}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	if !reg.Initialized() {
		panic(eris.Wrap(ErrNotInitialized, "create component manager"))
	}
	reg.Init()

	m := &Manager{
		reg:   reg,
		pools: make([]*Pool, 0, reg.Len()),
		log:   o.log,
	}
	m.weak = NewWeakRegistry(m, o.buckets)

	for _, name := range slices.Sorted(maps.Keys(capacities)) {
		if _, ok := reg.Lookup(name); !ok {
			m.log.Warn("pool size configured for unregistered component type; check spelling and registration",
				zap.String("type", name),
				zap.Int("capacity", capacities[name]),
			)
		}
	}

	for _, desc := range reg.Types() {
		capacity := desc.DefaultCapacity()
		if c, ok := capacities[desc.Name]; ok && c >= 0 {
			capacity = c
		}
		m.pools = append(m.pools, newPool(desc, capacity, m.log))
	}
	return m
}

func (m *Manager) Registry() *TypeRegistry { return m.reg }
func (m *Manager) Weak() *WeakRegistry     { return m.weak }

// Pool returns the pool for type t, or nil when this world has no instances
// of t (capacity 0, or t registered after the manager was created).
func (m *Manager) Pool(t TypeID) *Pool {
	m.reg.Descriptor(t) // range check
	if int(t) >= len(m.pools) {
		return nil
	}
	return m.pools[t]
}

func (m *Manager) mustPool(t TypeID, op string) *Pool {
	p := m.Pool(t)
	if p == nil {
		panic(eris.Wrapf(ErrNoPool, "%s %s", op, m.reg.Descriptor(t).Name))
	}
	return p
}

// Allocate creates a component of type t owned by owner and chains it into coll.
func (m *Manager) Allocate(t TypeID, owner EntityID, coll *Collection) Handle {
	return m.mustPool(t, "allocate").Allocate(owner, coll)
}

// Free releases the component immediately.
func (m *Manager) Free(h Handle) {
	m.mustPool(h.Type(), "free").Free(h)
}

// FreeDeferred marks the component for deletion at the next
// ProcessPendingDeletes. It stays live, and reachable through its
// collection, until then.
func (m *Manager) FreeDeferred(h Handle) {
	p := m.mustPool(h.Type(), "defer free of")
	p.mustBeAllocated(h, "defer free of")
	if p.inline[h.Slot].pendingDelete {
		return
	}
	p.inline[h.Slot].pendingDelete = true
	m.pending = append(m.pending, h)
}

// ProcessPendingDeletes frees every component marked by FreeDeferred and
// returns how many were freed.
func (m *Manager) ProcessPendingDeletes() int {
	freed := 0
	for _, h := range m.pending {
		p := m.pools[h.Pool]
		// an explicit Free in between clears the flag; skip those
		if p.Allocated(h) && p.inline[h.Slot].pendingDelete {
			p.Free(h)
			freed++
		}
	}
	m.pending = m.pending[:0]
	return freed
}

// Generation implements GenerationSource for the weak registry.
func (m *Manager) Generation(h Handle) (Generation, bool) {
	if int(h.Pool) >= len(m.pools) {
		return 0, false
	}
	p := m.pools[h.Pool]
	if p == nil || !p.Allocated(h) {
		return 0, false
	}
	return p.inline[h.Slot].generation, true
}

// Allocated reports whether h names a live component.
func (m *Manager) Allocated(h Handle) bool {
	_, ok := m.Generation(h)
	return ok
}

func (m *Manager) Owner(h Handle) EntityID { return m.mustPool(h.Type(), "owner of").Owner(h) }
func (m *Manager) Payload(h Handle) []byte { return m.mustPool(h.Type(), "payload of").Payload(h) }

// Acquire binds a new weak reference to h.
func (m *Manager) Acquire(h Handle) *Ref { return m.weak.Acquire(h) }

// CountAllocated is the number of live components of exactly type t.
func (m *Manager) CountAllocated(t TypeID) int {
	if p := m.Pool(t); p != nil {
		return p.Len()
	}
	return 0
}

// CountAllocatedThatImplement sums the live counts of every pool whose type
// implements t. It costs one lookup per implementing type and never touches
// individual components.
func (m *Manager) CountAllocatedThatImplement(t TypeID) int {
	n := 0
	for _, id := range m.reg.Descriptor(t).Implementing().IDs() {
		n += m.CountAllocated(id)
	}
	return n
}

// Tick runs one step of the weak reference sweep. Call exactly once per
// simulation step. Returns the number of refs found stale.
func (m *Manager) Tick() int {
	return m.weak.Tick()
}

// Verify checks the packed-roster and chain invariants of every pool.
func (m *Manager) Verify() error {
	for _, p := range m.pools {
		if p == nil {
			continue
		}
		if err := p.verify(); err != nil {
			return eris.Wrap(err, "verify component pools")
		}
	}
	return nil
}

// Close flushes pending deletes, ticks the weak registry once, and destroys
// every pool. Components still allocated are reported, not destructed.
func (m *Manager) Close() {
	if m.closed {
		return
	}
	m.closed = true
	m.ProcessPendingDeletes()
	m.Tick()

	leaked := 0
	for _, p := range m.pools {
		if p == nil {
			continue
		}
		leaked += p.Len()
		p.destroy()
	}
	if leaked > 0 {
		m.log.Warn("component manager closed with live components", zap.Int("allocated", leaked))
	}
	m.pools = nil
	m.reg.Shutdown()
}
