package ecs

// EntityID encodes a 32-bit index in the lower bits and a 32-bit generation
// in the upper bits. Generations start at 1, so the zero EntityID never names
// a live entity and doubles as "no owner" on a component slot.
type EntityID uint64

// NoOwner is stored on free slots and on components allocated without an owner.
const NoOwner EntityID = 0

func NewEntityID(index uint32, generation uint32) EntityID {
	return EntityID(uint64(generation)<<32 | uint64(index))
}

func (id EntityID) Index() uint32      { return uint32(id) }
func (id EntityID) Generation() uint32 { return uint32(id >> 32) }
func (id EntityID) IsZero() bool       { return id == NoOwner }

// EntityPool hands out owner tokens with generational indices and a free list.
// The component core never dereferences these; it only stores and compares them.
type EntityPool struct {
	generations []uint32
	freeList    []uint32
	live        int
}

func NewEntityPool(capacityHint int) *EntityPool {
	return &EntityPool{
		generations: make([]uint32, 0, capacityHint),
		freeList:    make([]uint32, 0, capacityHint/4),
	}
}

func (p *EntityPool) Create() EntityID {
	p.live++
	if n := len(p.freeList); n > 0 {
		idx := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		return NewEntityID(idx, p.generations[idx])
	}
	idx := uint32(len(p.generations))
	p.generations = append(p.generations, 1)
	return NewEntityID(idx, 1)
}

func (p *EntityPool) Alive(id EntityID) bool {
	idx := id.Index()
	if int(idx) >= len(p.generations) {
		return false
	}
	return p.generations[idx] == id.Generation()
}

// Destroy retires id. Stale or unknown ids are ignored.
func (p *EntityPool) Destroy(id EntityID) {
	if !p.Alive(id) {
		return
	}
	idx := id.Index()
	p.generations[idx]++
	if p.generations[idx] == 0 {
		// skip 0 on wrap so the id can never collide with NoOwner
		p.generations[idx] = 1
	}
	p.freeList = append(p.freeList, idx)
	p.live--
}

// Len reports the number of live entities.
func (p *EntityPool) Len() int { return p.live }
