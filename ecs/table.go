package ecs

import (
	"unsafe"
)

// column is a type-erased dense array holding one component for every row of
// a table. len(data) is always count*size; cap(data) is capacity*size.
type column struct {
	info *ComponentInfo
	size int
	data []byte
}

func (c *column) elem(row int) []byte {
	off := row * c.size
	return c.data[off : off+c.size : off+c.size]
}

func (c *column) ptr(row int) unsafe.Pointer {
	return unsafe.Pointer(unsafe.SliceData(c.data[row*c.size:]))
}

// Table stores every entity of exactly one family in column-oriented form.
type Table struct {
	id       int
	family   Family
	ids      []EntityId
	columns  []column
	columnOf []int // family index -> column index, -1 for tags
	entities []EntityId

	store *tableStore

	// table systems matched against this table, notified on activation
	systems []*System
}

// Family returns the family the table stores.
func (t *Table) Family() Family {
	return t.family
}

// Ids returns the sorted component ids of the table's family.
func (t *Table) Ids() []EntityId {
	return t.ids
}

// Count returns the number of rows.
func (t *Table) Count() int {
	return len(t.entities)
}

// Capacity returns the number of rows that fit without growing.
func (t *Table) Capacity() int {
	return cap(t.entities)
}

// Entities returns the row owners. The slice is only valid until the next
// structural change of the table.
func (t *Table) Entities() []EntityId {
	return t.entities
}

// ColumnCount returns the number of data columns (tags own no column).
func (t *Table) ColumnCount() int {
	return len(t.columns)
}

// ColumnIndex returns the column holding component, or -1.
func (t *Table) ColumnIndex(component EntityId) int {
	idx := t.store.families.IndexOf(t.family, component)
	if idx < 0 {
		return -1
	}
	return t.columnOf[idx]
}

// Active reports whether the table holds at least one row.
func (t *Table) Active() bool {
	return len(t.entities) > 0
}

func newTable(store *tableStore, id int, family Family) *Table {
	ids := store.families.Ids(family)
	t := &Table{
		id:       id,
		family:   family,
		ids:      ids,
		columnOf: make([]int, len(ids)),
		store:    store,
	}

	for i, cid := range ids {
		t.columnOf[i] = -1
		if cid.IsRelation() {
			continue
		}
		info := store.components.get(cid)
		if info == nil || info.IsTag() {
			continue
		}
		t.columnOf[i] = len(t.columns)
		t.columns = append(t.columns, column{info: info, size: int(info.Size)})
	}
	return t
}

// grow reallocates every column to hold at least n rows. Buffers are backed by
// uint64 words so every element offset keeps the component's alignment.
func (t *Table) grow(n int) {
	newCap := max(cap(t.entities)*2, t.store.capacity, n)

	entities := make([]EntityId, len(t.entities), newCap)
	copy(entities, t.entities)
	t.entities = entities

	for i := range t.columns {
		c := &t.columns[i]
		words := make([]uint64, (newCap*c.size+7)/8)
		buf := unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(words))), len(words)*8)
		n := copy(buf, c.data)
		c.data = buf[:n:newCap*c.size]
	}
}

// appendRow adds a row for e without initialising column data.
func (t *Table) appendRow(e EntityId) int {
	row := len(t.entities)
	if row == cap(t.entities) {
		t.grow(row + 1)
	}
	t.entities = append(t.entities, e)
	for i := range t.columns {
		c := &t.columns[i]
		c.data = c.data[:len(c.data)+c.size]
	}
	t.store.version++
	return row
}

// insert appends a row for e and constructs every component value.
func (t *Table) insert(e EntityId) int {
	row := t.appendRow(e)
	for i := range t.columns {
		c := &t.columns[i]
		c.info.construct(c.elem(row))
	}
	if row == 0 {
		t.store.activate(t, true)
	}
	return row
}

// delete swap-removes row, destructing its values. The entity that occupied
// the last row is relocated into row and its location updated.
func (t *Table) delete(row int) {
	t.removeRow(row, true)
}

func (t *Table) removeRow(row int, destruct bool) {
	last := len(t.entities) - 1
	if row < 0 || row > last {
		invariant(ErrRowOutOfRange, "row %d of %d in table %d", row, last+1, t.id)
	}

	for i := range t.columns {
		c := &t.columns[i]
		if destruct {
			c.info.destruct(c.elem(row))
		}
		if row != last {
			c.info.moveValue(c.elem(row), c.elem(last))
		}
		c.data = c.data[:last*c.size]
	}

	if row != last {
		moved := t.entities[last]
		t.entities[row] = moved
		t.store.ids.setLocation(moved, record{family: t.family, table: t, row: int32(row)})
	}
	t.entities = t.entities[:last]
	t.store.version++

	if last == 0 {
		t.store.activate(t, false)
	}
}

// moveTo relocates row into dst. Shared components are moved, components only
// in dst are constructed and components only in t are destructed.
func (t *Table) moveTo(row int, dst *Table) int {
	e := t.entities[row]
	newRow := dst.appendRow(e)

	// both column lists follow the sorted family order
	i, j := 0, 0
	for j < len(dst.columns) {
		dc := &dst.columns[j]
		for i < len(t.columns) && t.columns[i].info.Id < dc.info.Id {
			sc := &t.columns[i]
			sc.info.destruct(sc.elem(row))
			i++
		}
		if i < len(t.columns) && t.columns[i].info.Id == dc.info.Id {
			dc.info.moveValue(dc.elem(newRow), t.columns[i].elem(row))
			i++
		} else {
			dc.info.construct(dc.elem(newRow))
		}
		j++
	}
	for ; i < len(t.columns); i++ {
		sc := &t.columns[i]
		sc.info.destruct(sc.elem(row))
	}

	if newRow == 0 {
		dst.store.activate(dst, true)
	}
	t.removeRow(row, false)
	return newRow
}

// checkInvariants panics if any column disagrees with the entity array.
func (t *Table) checkInvariants() {
	n := len(t.entities)
	for i := range t.columns {
		c := &t.columns[i]
		if len(c.data) != n*c.size {
			invariant(ErrColumnMismatch, "table %d column %d: %d bytes for %d rows", t.id, i, len(c.data), n)
		}
	}
}
