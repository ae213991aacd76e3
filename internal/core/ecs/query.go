package ecs

// Each calls fn for every live component of exactly type t. fn must not
// allocate or free components of t.
func (m *Manager) Each(t TypeID, fn func(Handle)) {
	p := m.Pool(t)
	if p == nil {
		return
	}
	for _, slot := range p.Live() {
		fn(p.handle(slot))
	}
}

// EachImplementing calls fn for every live component whose type implements t,
// pool by pool in registration order.
func (m *Manager) EachImplementing(t TypeID, fn func(Handle)) {
	for _, id := range m.reg.Descriptor(t).Implementing().IDs() {
		m.Each(id, fn)
	}
}

// Components returns the chain of type t on coll, head first.
func (m *Manager) Components(coll *Collection, t TypeID) []Handle {
	h, ok := coll.First(t)
	if !ok {
		return nil
	}
	p := m.pools[t]
	var out []Handle
	for ok {
		out = append(out, h)
		h, ok = p.Next(h)
	}
	return out
}

// ComponentsThatImplement returns every component on coll whose type
// implements t, grouped by type in attach order.
func (m *Manager) ComponentsThatImplement(coll *Collection, t TypeID) []Handle {
	var out []Handle
	for _, have := range coll.types {
		if m.reg.Implements(have, t) {
			out = append(out, m.Components(coll, have)...)
		}
	}
	return out
}

// FirstThatImplements returns some component on coll implementing t, preferring
// an exact match.
func (m *Manager) FirstThatImplements(coll *Collection, t TypeID) (Handle, bool) {
	if h, ok := coll.First(t); ok {
		return h, true
	}
	for _, have := range coll.types {
		if m.reg.Implements(have, t) {
			return coll.First(have)
		}
	}
	return Handle{}, false
}

// ReleaseEach frees every component of type t on coll.
func (m *Manager) ReleaseEach(coll *Collection, t TypeID) {
	for {
		h, ok := coll.First(t)
		if !ok {
			return
		}
		m.Free(h)
	}
}

// ReleaseAll frees every component on coll.
func (m *Manager) ReleaseAll(coll *Collection) {
	for n := len(coll.types); n > 0; n = len(coll.types) {
		m.ReleaseEach(coll, coll.types[n-1])
	}
}
