package ecs

import "fmt"

// EntityId encodes the entity index (lower 32 bits), a generation counter
// (bits 32-47) and role flags (the two highest bits).
type EntityId uint64

const (
	indexMask      EntityId = 0xFFFFFFFF
	generationMask EntityId = 0xFFFF << 32

	// roleChildOf marks an id as a "child of" relation to the masked entity.
	roleChildOf EntityId = 1 << 62
	// roleInstanceOf marks an id as an "instance of" (prefab base) relation.
	roleInstanceOf EntityId = 1 << 63

	roleMask   = roleChildOf | roleInstanceOf
	entityMask = ^roleMask
)

// NewEntityId creates an EntityId from an index and a generation
func NewEntityId(index uint32, generation uint16) EntityId {
	return EntityId(uint64(generation)<<32 | uint64(index))
}

// Index extracts the recyclable index from the entity ID
func (e EntityId) Index() uint32 {
	return uint32(e & indexMask)
}

// Generation extracts the generation counter from the entity ID
func (e EntityId) Generation() uint16 {
	return uint16((e & generationMask) >> 32)
}

// Entity strips role flags, returning the plain entity the id refers to
func (e EntityId) Entity() EntityId {
	return e & entityMask
}

// IsRelation reports whether the id carries a ChildOf or InstanceOf role.
func (e EntityId) IsRelation() bool {
	return e&roleMask != 0
}

// IsChildOf reports whether the id is a ChildOf relation.
func (e EntityId) IsChildOf() bool {
	return e&roleChildOf != 0
}

// IsInstanceOf reports whether the id is an InstanceOf relation.
func (e EntityId) IsInstanceOf() bool {
	return e&roleInstanceOf != 0
}

func (e EntityId) String() string {
	switch {
	case e.IsChildOf():
		return fmt.Sprintf("ChildOf(%d:%d)", e.Index(), e.Generation())
	case e.IsInstanceOf():
		return fmt.Sprintf("InstanceOf(%d:%d)", e.Index(), e.Generation())
	default:
		return fmt.Sprintf("%d:%d", e.Index(), e.Generation())
	}
}

// ChildOf returns the relation id that makes an entity a child of parent.
// Adding it to an entity lets FromComponent terms read data from parent.
func ChildOf(parent EntityId) EntityId {
	return parent.Entity() | roleChildOf
}

// InstanceOf returns the relation id that makes an entity inherit the
// components of base. Inherited components are resolved as references.
func InstanceOf(base EntityId) EntityId {
	return base.Entity() | roleInstanceOf
}

// EntityLocation describes where an entity's row currently lives.
type EntityLocation struct {
	Family Family
	Table  *Table
	Row    int
}
