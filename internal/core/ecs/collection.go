package ecs

import "github.com/kamstrup/intmap"

// Collection maps each component type attached to one owner to the head of
// that owner's same-type chain. It indexes pool slots and never owns them;
// pools update it from Allocate and Free. The zero value is ready to use.
type Collection struct {
	heads *intmap.Map[TypeID, Handle]
	types []TypeID
}

func NewCollection() *Collection {
	return &Collection{heads: intmap.New[TypeID, Handle](8)}
}

// First returns the head of the chain for type t.
func (c *Collection) First(t TypeID) (Handle, bool) {
	if c.heads == nil {
		return Handle{}, false
	}
	return c.heads.Get(t)
}

// Types lists the component types currently attached, in attach order.
func (c *Collection) Types() []TypeID {
	out := make([]TypeID, len(c.types))
	copy(out, c.types)
	return out
}

// Len is the number of distinct attached types.
func (c *Collection) Len() int { return len(c.types) }

func (c *Collection) setHead(t TypeID, h Handle) {
	if c.heads == nil {
		c.heads = intmap.New[TypeID, Handle](8)
	}
	if _, ok := c.heads.Get(t); !ok {
		c.types = append(c.types, t)
	}
	c.heads.Put(t, h)
}

func (c *Collection) remove(t TypeID) {
	if c.heads == nil {
		return
	}
	c.heads.Del(t)
	for i, have := range c.types {
		if have == t {
			c.types = append(c.types[:i], c.types[i+1:]...)
			break
		}
	}
}
