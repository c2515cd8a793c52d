package ecs

import (
	"unsafe"
)

// Iter is passed to a system action for every contiguous run of rows of one
// matched table. Column data is pre-resolved; structural changes go through
// the iterator's stage and become visible after the run merges.
type Iter struct {
	world  *World
	system *System
	stage  *Stage

	DeltaTime float64
	Param     any

	// FrameOffset is the position of the segment's first row among all rows
	// of the run. TableOffset counts the earlier segments of the same job.
	FrameOffset int
	TableOffset int

	mt      *matchedTable
	offset  int
	count   int
	refPtrs []unsafe.Pointer

	interruptedBy EntityId
}

func (it *Iter) setSegment(mt *matchedTable, offset, count int) {
	it.mt = mt
	it.offset = offset
	it.count = count
	it.refPtrs = it.world.resolveRefs(mt, it.refPtrs)
}

// World returns the world being iterated.
func (it *Iter) World() *World { return it.world }

// System returns the id of the running system.
func (it *Iter) System() EntityId { return it.system.id }

// Stage returns the deferred mutation buffer of the running executor.
func (it *Iter) Stage() *Stage { return it.stage }

// Count returns the number of rows in this segment.
func (it *Iter) Count() int { return it.count }

// Table returns the iterated table, nil for systems without table terms.
func (it *Iter) Table() *Table { return it.mt.table }

// Offset returns the first row of the segment inside the table.
func (it *Iter) Offset() int { return it.offset }

// Entities returns the entities of the segment's rows.
func (it *Iter) Entities() []EntityId {
	if it.mt.table == nil {
		return nil
	}
	return it.mt.table.entities[it.offset : it.offset+it.count]
}

// Entity returns the entity of the i-th row of the segment.
func (it *Iter) Entity(i int) EntityId {
	return it.mt.table.entities[it.offset+i]
}

// Component returns the component matched by term i. For Or terms it is the
// alternative present in this table.
func (it *Iter) Component(term int) EntityId {
	return it.mt.components[term]
}

// IsShared reports whether term i is read from another entity, in which case
// use Ref instead of Field.
func (it *Iter) IsShared(term int) bool {
	return it.mt.columns[term] < 0
}

// IsSet reports whether term i has data for this segment.
func (it *Iter) IsSet(term int) bool {
	code := it.mt.columns[term]
	if code < 0 {
		return it.refPtrs[-code-1] != nil
	}
	return code > 0
}

// Column returns the raw bytes of term i for the segment's rows, or nil when
// the term is shared or has no data.
func (it *Iter) Column(term int) []byte {
	code := it.mt.columns[term]
	if code <= 0 {
		return nil
	}
	c := &it.mt.table.columns[code-1]
	return c.data[it.offset*c.size : (it.offset+it.count)*c.size]
}

// Interrupt stops the current job after this segment. RunSystem returns e.
func (it *Iter) Interrupt(e EntityId) {
	it.interruptedBy = e
}

// New creates an entity whose components are added when the stage merges.
func (it *Iter) New(components ...EntityId) EntityId {
	return it.stage.newEntity(components...)
}

// Delete defers deleting e.
func (it *Iter) Delete(e EntityId) { it.stage.Delete(e) }

// Add defers adding c to e.
func (it *Iter) Add(e, c EntityId) { it.stage.Add(e, c) }

// Remove defers removing c from e.
func (it *Iter) Remove(e, c EntityId) { it.stage.Remove(e, c) }

// Set writes c on e. Existing components are written in place, anything that
// changes the entity's family is deferred.
func (it *Iter) Set(e, c EntityId, data []byte) { it.stage.Set(e, c, data) }

// Get reads c from e, seeing values set earlier through this iterator.
func (it *Iter) Get(e, c EntityId) []byte { return it.stage.Get(e, c) }

// Field returns term i of the segment as a typed slice. It returns nil for
// shared terms and terms without data. T must have the component's size.
func Field[T any](it *Iter, term int) []T {
	code := it.mt.columns[term]
	if code <= 0 {
		return nil
	}
	c := &it.mt.table.columns[code-1]
	var zero T
	if unsafe.Sizeof(zero) != uintptr(c.size) {
		invariant(ErrComponentSize, "field %d: %T is %d bytes, column is %d", term, zero, unsafe.Sizeof(zero), c.size)
	}
	return unsafe.Slice((*T)(c.ptr(it.offset)), it.count)
}

// Ref returns the single value of a shared term, or nil.
func Ref[T any](it *Iter, term int) *T {
	code := it.mt.columns[term]
	if code >= 0 {
		return nil
	}
	return (*T)(it.refPtrs[-code-1])
}

// FieldOrRef returns the value of term i for row, whether owned or shared.
func FieldOrRef[T any](it *Iter, term, row int) *T {
	if it.IsShared(term) {
		return Ref[T](it, term)
	}
	f := Field[T](it, term)
	if f == nil {
		return nil
	}
	return &f[row]
}
