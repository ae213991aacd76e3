package ecs

import (
	"unsafe"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// slotAlign is the minimum alignment of every slot in a pool block.
const slotAlign = 16

// Generation is bumped every time a slot is freed. It is deliberately narrow;
// the weak reference sweep bounds how long a handle can go unchecked, so a
// wrap cannot silently revalidate it.
type Generation uint8

// Handle names a component slot: the pool (one per type, so the TypeID) and
// the slot index inside that pool.
type Handle struct {
	Pool uint32
	Slot uint32
}

// Type returns the component type the handle's pool stores.
func (h Handle) Type() TypeID { return TypeID(h.Pool) }

// Link is an optional index: a chain neighbour slot, or a weak reference
// bucket. The zero value is "none".
type Link struct {
	index uint32
	ok    bool
}

func linkTo(index uint32) Link { return Link{index: index, ok: true} }

func (l Link) Get() (uint32, bool) { return l.index, l.ok }
func (l Link) Valid() bool         { return l.ok }

// slotInline is the per-slot bookkeeping that travels with the component.
type slotInline struct {
	owner         EntityID
	generation    Generation
	next          Link
	prev          Link
	pendingDelete bool
}

// slotParallel is bookkeeping only the pool needs.
type slotParallel struct {
	collection *Collection
	roster     uint32
}

// Pool is fixed-capacity storage for one component type in one world.
// roster[:firstUnallocated] are the live slots, roster[firstUnallocated:] the
// free ones. Not safe for concurrent use.
type Pool struct {
	id       uint32
	desc     *TypeDescriptor
	stride   int
	block    []byte
	inline   []slotInline
	parallel []slotParallel
	roster   []uint32

	firstUnallocated uint32

	log *zap.Logger
}

// newPool lays out storage for capacity components of desc. A zero capacity
// yields no pool at all.
func newPool(desc *TypeDescriptor, capacity int, log *zap.Logger) *Pool {
	if capacity == 0 {
		log.Debug("creating null component pool", zap.String("type", desc.Name))
		return nil
	}

	align := max(desc.Align, slotAlign)
	stride := alignUp(desc.Size, align)

	p := &Pool{
		id:       uint32(desc.id),
		desc:     desc,
		stride:   stride,
		inline:   make([]slotInline, capacity),
		parallel: make([]slotParallel, capacity),
		roster:   make([]uint32, capacity),
		log:      log,
	}
	if size := stride * capacity; size > 0 {
		raw := make([]byte, size+align)
		base := uintptr(unsafe.Pointer(unsafe.SliceData(raw)))
		off := (align - int(base%uintptr(align))) % align
		p.block = raw[off : off+size : off+size]
	}
	for i := range p.roster {
		p.roster[i] = uint32(i)
		p.parallel[i].roster = uint32(i)
	}

	log.Debug("created component pool",
		zap.String("type", desc.Name),
		zap.Int("capacity", capacity),
		zap.Int("stride", stride),
		zap.Int("bytes", len(p.block)),
	)
	return p
}

func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

func (p *Pool) ID() uint32                  { return p.id }
func (p *Pool) Descriptor() *TypeDescriptor { return p.desc }
func (p *Pool) Cap() int                    { return len(p.roster) }

// Len is the number of allocated components.
func (p *Pool) Len() int { return int(p.firstUnallocated) }

// Live returns the roster prefix of allocated slot indices. The slice is only
// valid until the next Allocate or Free and must not be modified.
func (p *Pool) Live() []uint32 { return p.roster[:p.firstUnallocated] }

func (p *Pool) handle(slot uint32) Handle { return Handle{Pool: p.id, Slot: slot} }

// Allocated reports whether h names a live slot of this pool.
func (p *Pool) Allocated(h Handle) bool {
	return h.Pool == p.id && int(h.Slot) < len(p.roster) && p.parallel[h.Slot].roster < p.firstUnallocated
}

func (p *Pool) mustBeAllocated(h Handle, op string) {
	if !p.Allocated(h) {
		panic(eris.Wrapf(ErrNotAllocated, "%s %s slot %d (pool %d)", op, p.desc.Name, h.Slot, h.Pool))
	}
}

// Allocate takes the first free slot, makes it the head of the owner's chain
// for this type in coll, and constructs it. Running out of slots panics; pool
// sizes are a configuration decision, not a runtime one.
func (p *Pool) Allocate(owner EntityID, coll *Collection) Handle {
	if int(p.firstUnallocated) >= len(p.roster) {
		panic(eris.Wrapf(ErrPoolExhausted, "allocate %s for owner %d: all %d instances in use",
			p.desc.Name, owner, len(p.roster)))
	}

	slot := p.roster[p.firstUnallocated]
	p.firstUnallocated++
	h := p.handle(slot)

	if coll != nil {
		if head, ok := coll.First(p.desc.id); ok {
			p.inline[slot].next = linkTo(head.Slot)
			p.inline[head.Slot].prev = linkTo(slot)
		}
		coll.setHead(p.desc.id, h)
	}
	p.inline[slot].owner = owner
	p.parallel[slot].collection = coll

	payload := p.payload(slot)
	if p.desc.Construct != nil {
		p.desc.Construct(payload)
	} else {
		clear(payload)
	}
	return h
}

// Free destructs the component, unlinks it from its owner's chain, bumps the
// slot generation and returns the slot to the free suffix by swapping it with
// the last live roster entry.
func (p *Pool) Free(h Handle) {
	p.mustBeAllocated(h, "free")
	slot := h.Slot

	if p.desc.Destruct != nil {
		p.desc.Destruct(p.payload(slot))
	}
	p.unchain(slot)

	in := &p.inline[slot]
	in.generation++
	in.owner = NoOwner
	in.pendingDelete = false
	p.parallel[slot].collection = nil

	used := p.parallel[slot].roster
	p.firstUnallocated--
	last := p.firstUnallocated
	if used != last {
		other := p.roster[last]
		p.roster[used] = other
		p.roster[last] = slot
		p.parallel[other].roster = used
		p.parallel[slot].roster = last
	}
}

func (p *Pool) unchain(slot uint32) {
	coll := p.parallel[slot].collection
	if coll == nil {
		return
	}
	in := &p.inline[slot]
	prev, hasPrev := in.prev.Get()
	next, hasNext := in.next.Get()

	switch {
	case hasPrev:
		p.inline[prev].next = in.next
	case hasNext:
		coll.setHead(p.desc.id, p.handle(next))
	default:
		coll.remove(p.desc.id)
	}
	if hasNext {
		p.inline[next].prev = in.prev
	}
	in.next = Link{}
	in.prev = Link{}
}

func (p *Pool) payload(slot uint32) []byte {
	if p.block == nil {
		return nil
	}
	off := int(slot) * p.stride
	end := off + p.desc.Size
	return p.block[off:end:end]
}

// Payload returns the component's bytes inside the pool block.
func (p *Pool) Payload(h Handle) []byte {
	p.mustBeAllocated(h, "payload of")
	return p.payload(h.Slot)
}

// Owner returns the owner token stored on the slot (NoOwner if free).
func (p *Pool) Owner(h Handle) EntityID { return p.inline[h.Slot].owner }

// Generation returns the slot's current generation.
func (p *Pool) Generation(slot uint32) Generation { return p.inline[slot].generation }

// Next returns the next component of the same type on the same owner.
func (p *Pool) Next(h Handle) (Handle, bool) {
	slot, ok := p.inline[h.Slot].next.Get()
	return p.handle(slot), ok
}

// Prev returns the previous component of the same type on the same owner.
func (p *Pool) Prev(h Handle) (Handle, bool) {
	slot, ok := p.inline[h.Slot].prev.Get()
	return p.handle(slot), ok
}

func (p *Pool) PendingDelete(h Handle) bool { return p.inline[h.Slot].pendingDelete }

// Collection returns the collection the component is chained into, if any.
func (p *Pool) Collection(h Handle) *Collection { return p.parallel[h.Slot].collection }

// destroy releases the block. Live components are reported, not destructed.
func (p *Pool) destroy() {
	if p.firstUnallocated > 0 {
		p.log.Warn("components still allocated at pool teardown",
			zap.String("type", p.desc.Name),
			zap.Uint32("allocated", p.firstUnallocated),
		)
	}
	p.block = nil
	p.inline = nil
	p.parallel = nil
	p.roster = nil
	p.firstUnallocated = 0
}

// Dump logs the live roster at debug level.
func (p *Pool) Dump() {
	p.log.Debug("pool roster",
		zap.String("type", p.desc.Name),
		zap.Uint32("allocated", p.firstUnallocated),
		zap.Int("capacity", len(p.roster)),
	)
	for i, slot := range p.Live() {
		p.log.Debug("  live slot",
			zap.Int("roster", i),
			zap.Uint32("slot", slot),
			zap.Uint64("owner", uint64(p.inline[slot].owner)),
			zap.Uint8("generation", uint8(p.inline[slot].generation)),
		)
	}
}

// verify checks the roster partition and the chain links of every live slot.
func (p *Pool) verify() error {
	for i, slot := range p.roster {
		if p.parallel[slot].roster != uint32(i) {
			return eris.Errorf("%s: roster[%d]=%d but slot records roster index %d",
				p.desc.Name, i, slot, p.parallel[slot].roster)
		}
		live := uint32(i) < p.firstUnallocated
		in := p.inline[slot]
		if !live {
			if in.owner != NoOwner || in.next.Valid() || in.prev.Valid() || p.parallel[slot].collection != nil {
				return eris.Errorf("%s: free slot %d still carries owner or chain state", p.desc.Name, slot)
			}
			continue
		}
		if next, ok := in.next.Get(); ok {
			if back, ok := p.inline[next].prev.Get(); !ok || back != slot {
				return eris.Errorf("%s: slot %d -> next %d does not link back", p.desc.Name, slot, next)
			}
		}
		coll := p.parallel[slot].collection
		if coll == nil {
			continue
		}
		if _, ok := in.prev.Get(); !ok {
			if head, ok := coll.First(p.desc.id); !ok || head != p.handle(slot) {
				return eris.Errorf("%s: slot %d has no prev but is not the collection head", p.desc.Name, slot)
			}
		}
	}
	return nil
}
