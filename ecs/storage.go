package ecs

import (
	"slices"
	"unsafe"
)

// tableStore owns one table per family that has been used by an entity.
// Tables are never destroyed before the world is closed.
type tableStore struct {
	byFamily []*Table
	tables   []*Table
	capacity int

	// version changes whenever any table gains or loses a row
	version uint64

	ids        *identifierRegistry
	components *componentRegistry
	families   *FamilyRegistry

	onNewTable []func(*Table)
	onActivate func(*Table, bool)
}

func newTableStore(ids *identifierRegistry, components *componentRegistry, families *FamilyRegistry, capacity int) *tableStore {
	return &tableStore{
		capacity:   capacity,
		ids:        ids,
		components: components,
		families:   families,
	}
}

// find returns the table of f, or nil if none was created yet.
func (s *tableStore) find(f Family) *Table {
	if int(f) >= len(s.byFamily) {
		return nil
	}
	return s.byFamily[f]
}

// getOrCreate returns the table of f, creating it on first use. The empty
// family has no table.
func (s *tableStore) getOrCreate(f Family) *Table {
	if f == EmptyFamily {
		return nil
	}
	if t := s.find(f); t != nil {
		return t
	}

	if int(f) >= len(s.byFamily) {
		grown := make([]*Table, max(int(f)+1, len(s.byFamily)*2))
		copy(grown, s.byFamily)
		s.byFamily = grown
	}

	t := newTable(s, len(s.tables), f)
	s.byFamily[f] = t
	s.tables = append(s.tables, t)

	for _, fn := range s.onNewTable {
		fn(t)
	}
	return t
}

func (s *tableStore) activate(t *Table, active bool) {
	if s.onActivate != nil {
		s.onActivate(t, active)
	}
}

// NewEntity creates an entity with the given components.
func (w *World) NewEntity(components ...EntityId) EntityId {
	if w.deferring() {
		return w.deferred.newEntity(components...)
	}
	w.gate.Lock()
	defer w.gate.Unlock()

	e := w.ids.newId()
	if len(components) > 0 {
		w.commit(e, record{}, w.families.FromIds(components...))
	}
	w.flushDeferred()
	return e
}

// NewPrefab creates an entity tagged Prefab. Systems never match prefab
// tables; entities inherit prefab components through InstanceOf.
func (w *World) NewPrefab(components ...EntityId) EntityId {
	return w.NewEntity(append(slices.Clone(components), w.Prefab)...)
}

// Delete removes the entity and all its components. Its id becomes stale.
func (w *World) Delete(e EntityId) {
	if w.deferring() {
		w.deferred.Delete(e)
		return
	}
	w.gate.Lock()
	defer w.gate.Unlock()

	w.deleteEntity(e)
	w.flushDeferred()
}

// Add adds component c to e. Adding a component the entity already has is a
// no-op.
func (w *World) Add(e, c EntityId) {
	if w.deferring() {
		w.deferred.Add(e, c)
		return
	}
	w.gate.Lock()
	defer w.gate.Unlock()

	w.addComponent(e, c)
	w.flushDeferred()
}

// Remove removes component c from e.
func (w *World) Remove(e, c EntityId) {
	if w.deferring() {
		w.deferred.Remove(e, c)
		return
	}
	w.gate.Lock()
	defer w.gate.Unlock()

	w.removeComponent(e, c)
	w.flushDeferred()
}

// Set copies data into component c of e, adding c first if needed. data must
// be exactly the component's size.
func (w *World) Set(e, c EntityId, data []byte) {
	if w.deferring() {
		w.deferred.Set(e, c, data)
		return
	}
	w.gate.Lock()
	defer w.gate.Unlock()

	w.setComponent(e, c, data)
	w.flushDeferred()
}

// Get returns the bytes of component c on e, or nil if e does not have it.
// Components inherited through InstanceOf resolve to the base's data. The
// slice aliases table memory and is valid until the next structural change.
func (w *World) Get(e, c EntityId) []byte {
	rec := w.ids.mustLocate(e)
	return w.getFrom(rec, c)
}

// Has reports whether e has c, either owned or inherited.
func (w *World) Has(e, c EntityId) bool {
	rec := w.ids.mustLocate(e)
	return w.families.Has(rec.family, c, true)
}

// Owns reports whether e has c in its own family.
func (w *World) Owns(e, c EntityId) bool {
	rec := w.ids.mustLocate(e)
	return w.families.Has(rec.family, c, false)
}

// IsAlive reports whether e refers to a live entity.
func (w *World) IsAlive(e EntityId) bool {
	return w.ids.isAlive(e)
}

// Family returns the current family of e.
func (w *World) Family(e EntityId) Family {
	return w.ids.mustLocate(e).family
}

// Location returns where e is stored. ok is false for stale ids.
func (w *World) Location(e EntityId) (loc EntityLocation, ok bool) {
	if !w.ids.isAlive(e) {
		return EntityLocation{}, false
	}
	rec, _ := w.ids.location(e)
	return EntityLocation{Family: rec.family, Table: rec.table, Row: int(rec.row)}, true
}

// Count returns the number of live entities, components and systems included.
func (w *World) Count() int {
	return w.ids.count()
}

func (w *World) getFrom(rec record, c EntityId) []byte {
	if rec.table == nil {
		return nil
	}
	if col := rec.table.ColumnIndex(c); col >= 0 {
		return rec.table.columns[col].elem(int(rec.row))
	}
	if base := w.families.FindBase(rec.family, c); base != 0 {
		baseRec, ok := w.ids.location(base)
		if !ok {
			return nil
		}
		return w.getFrom(baseRec, c)
	}
	return nil
}

// commit moves e from its current location to the table of family to, firing
// OnRemove triggers before and OnAdd triggers after the move.
func (w *World) commit(e EntityId, rec record, to Family) record {
	if rec.family == to {
		return rec
	}
	from := rec.table
	dst := w.store.getOrCreate(to)

	if from != nil {
		w.triggerTransition(KindOnRemove, e, rec, to)
	}

	var row int
	switch {
	case from != nil && dst != nil:
		row = from.moveTo(int(rec.row), dst)
	case dst != nil:
		row = dst.insert(e)
	case from != nil:
		from.delete(int(rec.row))
	}

	next := record{family: to, table: dst, row: int32(row)}
	w.ids.setLocation(e, next)

	if dst != nil {
		w.triggerTransition(KindOnAdd, e, next, rec.family)
	}
	return next
}

func (w *World) addComponent(e, c EntityId) record {
	rec := w.ids.mustLocate(e)
	return w.commit(e, rec, w.families.Register(c, rec.family))
}

func (w *World) removeComponent(e, c EntityId) record {
	rec := w.ids.mustLocate(e)
	return w.commit(e, rec, w.families.Unregister(c, rec.family))
}

func (w *World) setComponent(e, c EntityId, data []byte) {
	info := w.components.get(c)
	if info == nil || info.IsTag() {
		invariant(ErrNotComponent, "set %v on %v", c, e)
	}
	if uintptr(len(data)) != info.Size {
		invariant(ErrComponentSize, "component %s: got %d bytes, want %d", info.Name, len(data), info.Size)
	}

	rec := w.ids.mustLocate(e)
	if !w.families.Has(rec.family, c, false) {
		rec = w.commit(e, rec, w.families.Register(c, rec.family))
	}
	col := rec.table.ColumnIndex(c)
	info.copyValue(rec.table.columns[col].elem(int(rec.row)), data)
	w.triggerSet(e, rec, c)
}

func (w *World) deleteEntity(e EntityId) {
	rec := w.ids.mustLocate(e)
	w.commit(e, rec, EmptyFamily)
	w.ids.recycle(e)
}

// Get returns a pointer to the T component of e, or nil.
func Get[T any](w *World, e EntityId) *T {
	c, ok := ComponentFor[T](w)
	if !ok {
		return nil
	}
	b := w.Get(e, c)
	if b == nil {
		return nil
	}
	return (*T)(unsafe.Pointer(unsafe.SliceData(b)))
}

// Set writes value into the T component of e, adding it if needed.
func Set[T any](w *World, e EntityId, value T) {
	c := RegisterComponent[T](w)
	w.Set(e, c, valueBytes(&value))
}

// Add adds the T component of e with its zero value.
func Add[T any](w *World, e EntityId) {
	w.Add(e, RegisterComponent[T](w))
}

func valueBytes[T any](v *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), unsafe.Sizeof(*v))
}
