package ecs

import "github.com/kamstrup/intmap"

// TypeSet is an insertion-ordered set of type ids. Membership is an intmap
// lookup; the ordered slice is kept for iteration.
type TypeSet struct {
	ids     []TypeID
	members *intmap.Map[TypeID, struct{}]
}

func newTypeSet() TypeSet {
	return TypeSet{members: intmap.New[TypeID, struct{}](4)}
}

func (s *TypeSet) add(id TypeID) {
	if s.Has(id) {
		return
	}
	s.members.Put(id, struct{}{})
	s.ids = append(s.ids, id)
}

// Has reports whether id is in the set.
func (s TypeSet) Has(id TypeID) bool {
	if s.members == nil {
		return false
	}
	_, ok := s.members.Get(id)
	return ok
}

// IDs returns the members in insertion order. The slice must not be modified.
func (s TypeSet) IDs() []TypeID { return s.ids }

func (s TypeSet) Len() int { return len(s.ids) }
