package ecs

// DefaultBucketCount is how many ticks it takes the sweep to visit every weak
// reference once. It matches the Generation range, so a slot cannot cycle
// back to a remembered generation between two visits of the same handle.
const DefaultBucketCount = 256

// GenerationSource reports the current generation of a live slot. ok is false
// when the handle does not name an allocated component.
type GenerationSource interface {
	Generation(h Handle) (gen Generation, ok bool)
}

// WeakRegistry keeps every bound Ref in one of a fixed ring of intrusive
// lists. Tick sweeps one list per call, so each Ref is revalidated at least
// once every BucketCount ticks without scanning all of them each tick.
type WeakRegistry struct {
	src     GenerationSource
	buckets []*Ref
	tick    uint64
	live    int
	stale   uint64
}

func NewWeakRegistry(src GenerationSource, bucketCount int) *WeakRegistry {
	if bucketCount <= 0 {
		bucketCount = DefaultBucketCount
	}
	return &WeakRegistry{
		src:     src,
		buckets: make([]*Ref, bucketCount),
	}
}

func (w *WeakRegistry) BucketCount() int  { return len(w.buckets) }
func (w *WeakRegistry) TickCount() uint64 { return w.tick }

// Len is the number of refs currently linked into a bucket.
func (w *WeakRegistry) Len() int { return w.live }

// Invalidated is the running count of refs found stale, by sweep or by access.
func (w *WeakRegistry) Invalidated() uint64 { return w.stale }

// BucketLen walks bucket k. Intended for diagnostics and tests.
func (w *WeakRegistry) BucketLen(k int) int {
	n := 0
	for r := w.buckets[k]; r != nil; r = r.next {
		n++
	}
	return n
}

// Acquire returns a new Ref bound to h. If h is not allocated the Ref starts
// out empty.
func (w *WeakRegistry) Acquire(h Handle) *Ref {
	r := &Ref{reg: w}
	r.Reset(h)
	return r
}

// Tick advances the tick counter and checks every ref in the bucket it now
// selects. It returns how many of them were found stale.
func (w *WeakRegistry) Tick() int {
	w.tick++
	k := w.tick % uint64(len(w.buckets))
	before := w.stale
	for r := w.buckets[k]; r != nil; {
		// Check may unlink r, so step first.
		next := r.next
		r.Check()
		r = next
	}
	return int(w.stale - before)
}

func (w *WeakRegistry) register(r *Ref) {
	k := uint32(w.tick % uint64(len(w.buckets)))
	r.prev = nil
	r.next = w.buckets[k]
	if r.next != nil {
		r.next.prev = r
		r.next.head = Link{}
	}
	r.head = linkTo(k)
	w.buckets[k] = r
	w.live++
}

func (w *WeakRegistry) unlink(r *Ref) {
	k, isHead := r.head.Get()
	if !isHead && r.prev == nil {
		// not linked
		return
	}
	if isHead {
		w.buckets[k] = r.next
		if r.next != nil {
			r.next.head = r.head
		}
		r.head = Link{}
	} else {
		r.prev.next = r.next
	}
	if r.next != nil {
		r.next.prev = r.prev
	}
	r.prev = nil
	r.next = nil
	w.live--
}

// Ref is a weak handle to a component. It never keeps the component alive and
// never touches pool state; it remembers the slot generation seen when it was
// bound and drops its target once that generation moves on.
//
// A Ref that has gone stale is unlinked from its registry as well as emptied,
// so it costs nothing further. Release is still safe to call on it.
type Ref struct {
	reg        *WeakRegistry
	target     Handle
	bound      bool
	generation Generation

	next *Ref
	prev *Ref
	head Link
}

// Reset rebinds the ref to h, capturing h's current generation. A handle that
// is not allocated leaves the ref empty.
func (r *Ref) Reset(h Handle) {
	r.Release()
	gen, ok := r.reg.src.Generation(h)
	if !ok {
		return
	}
	r.target = h
	r.generation = gen
	r.bound = true
	r.reg.register(r)
}

// Release empties the ref and removes it from the registry.
func (r *Ref) Release() {
	r.reg.unlink(r)
	r.bound = false
	r.target = Handle{}
}

// Check drops the target if its slot has been freed since the ref was bound.
func (r *Ref) Check() {
	if !r.bound {
		return
	}
	if gen, ok := r.reg.src.Generation(r.target); ok && gen == r.generation {
		return
	}
	r.reg.unlink(r)
	r.bound = false
	r.target = Handle{}
	r.reg.stale++
}

// IsGood checks the ref and reports whether it still has a target.
func (r *Ref) IsGood() bool {
	r.Check()
	return r.bound
}

// Get checks the ref and returns its target.
func (r *Ref) Get() (Handle, bool) {
	r.Check()
	return r.target, r.bound
}

// UncheckedGet returns the target without revalidating. Only safe when nothing
// has been freed since the last Check.
func (r *Ref) UncheckedGet() (Handle, bool) { return r.target, r.bound }

// Linked reports whether the ref currently sits in a registry bucket.
func (r *Ref) Linked() bool { return r.head.Valid() || r.prev != nil }

// Generation is the slot generation remembered at bind time.
func (r *Ref) Generation() Generation { return r.generation }
