package ecs

import (
	"slices"
	"sync"
	"unsafe"

	"github.com/kamstrup/intmap"
)

// Stage buffers structural changes made while systems run, so tables that are
// being iterated are never mutated. Each executor owns one stage; the world
// owns one more for calls made directly on the World during a run.
// Stages are merged into the store in one step after every worker finished.
type Stage struct {
	world *World
	mu    sync.Mutex

	pending *intmap.Map[EntityId, *pendingEntity]
	order   []EntityId
	deletes []EntityId
	notices []setNotice
}

type pendingEntity struct {
	add    []EntityId
	remove []EntityId
	sets   []pendingSet
}

type pendingSet struct {
	component EntityId
	data      []byte
}

// setNotice remembers an in-place write whose OnSet systems run at merge.
type setNotice struct {
	entity    EntityId
	component EntityId
}

func newStage(w *World) *Stage {
	return &Stage{
		world:   w,
		pending: intmap.New[EntityId, *pendingEntity](64),
	}
}

func (s *Stage) entry(e EntityId) *pendingEntity {
	p, ok := s.pending.Get(e)
	if !ok {
		p = &pendingEntity{}
		s.pending.Put(e, p)
		s.order = append(s.order, e)
	}
	return p
}

func (s *Stage) newEntity(components ...EntityId) EntityId {
	e := s.world.ids.newId()
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.entry(e)
	p.add = append(p.add, components...)
	return e
}

// New creates an entity now; its components are added at merge.
func (s *Stage) New(components ...EntityId) EntityId {
	return s.newEntity(components...)
}

// Delete defers deleting e.
func (s *Stage) Delete(e EntityId) {
	s.assertAlive(e, "delete")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, e)
}

// Add defers adding c to e. It cancels an earlier deferred removal of c.
func (s *Stage) Add(e, c EntityId) {
	s.assertAlive(e, "add")
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.entry(e)
	p.remove = deleteId(p.remove, c)
	if !slices.Contains(p.add, c) {
		p.add = append(p.add, c)
	}
}

// Remove defers removing c from e. It cancels earlier deferred adds and sets
// of c.
func (s *Stage) Remove(e, c EntityId) {
	s.assertAlive(e, "remove")
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.entry(e)
	p.add = deleteId(p.add, c)
	p.sets = slices.DeleteFunc(p.sets, func(ps pendingSet) bool { return ps.component == c })
	if !slices.Contains(p.remove, c) {
		p.remove = append(p.remove, c)
	}
}

// Set writes data to c on e. When e already owns c and has no pending
// structural change in this stage the value is written in place, otherwise
// a copy of data is buffered and applied at merge.
func (s *Stage) Set(e, c EntityId, data []byte) {
	w := s.world
	info := w.components.get(c)
	if info == nil || info.IsTag() {
		invariant(ErrNotComponent, "set %v on %v", c, e)
	}
	if uintptr(len(data)) != info.Size {
		invariant(ErrComponentSize, "component %s: got %d bytes, want %d", info.Name, len(data), info.Size)
	}
	s.assertAlive(e, "set")

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, staged := s.pending.Get(e); !staged {
		if rec, ok := w.ids.location(e); ok && rec.table != nil {
			if col := rec.table.ColumnIndex(c); col >= 0 {
				info.copyValue(rec.table.columns[col].elem(int(rec.row)), data)
				s.notices = append(s.notices, setNotice{entity: e, component: c})
				return
			}
		}
	}

	p := s.entry(e)
	p.remove = deleteId(p.remove, c)
	p.sets = slices.DeleteFunc(p.sets, func(ps pendingSet) bool { return ps.component == c })
	p.sets = append(p.sets, pendingSet{component: c, data: slices.Clone(data)})
}

// assertAlive panics for ids that are already stale when the operation is
// buffered. Entities deleted by a stage stay alive until the merge.
func (s *Stage) assertAlive(e EntityId, op string) {
	if !s.world.ids.isAlive(e) {
		invariant(ErrStaleEntity, "staged %s on %v", op, e)
	}
}

// Get reads c from e, preferring a value buffered in this stage.
func (s *Stage) Get(e, c EntityId) []byte {
	s.mu.Lock()
	p, ok := s.pending.Get(e)
	if ok {
		for i := len(p.sets) - 1; i >= 0; i-- {
			if p.sets[i].component == c {
				data := p.sets[i].data
				s.mu.Unlock()
				return data
			}
		}
	}
	s.mu.Unlock()

	rec, found := s.world.ids.location(e)
	if !found {
		return nil
	}
	return s.world.getFrom(rec, c)
}

// Len returns the number of buffered operations.
func (s *Stage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order) + len(s.deletes) + len(s.notices)
}

// reset drops every buffered operation. Entities created through the stage
// stay alive without components.
func (s *Stage) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.order) > 0 {
		s.pending = intmap.New[EntityId, *pendingEntity](64)
	}
	s.order, s.deletes, s.notices = nil, nil, nil
}

func (s *Stage) empty() bool {
	return s.Len() == 0
}

// merge applies and clears the buffered operations. It must run with no
// workers active. Operations on entities deleted in the same stage are
// dropped.
func (s *Stage) merge() (applied int) {
	s.mu.Lock()
	pending, order, deletes, notices := s.pending, s.order, s.deletes, s.notices
	if len(order) > 0 {
		s.pending = intmap.New[EntityId, *pendingEntity](len(order))
	}
	s.order, s.deletes, s.notices = nil, nil, nil
	s.mu.Unlock()

	w := s.world
	fr := w.families

	for _, e := range deletes {
		if w.ids.isAlive(e) {
			w.deleteEntity(e)
			applied++
		}
	}

	for _, e := range order {
		if !w.ids.isAlive(e) {
			continue
		}
		p, _ := pending.Get(e)

		add := p.add
		for _, ps := range p.sets {
			add = append(add, ps.component)
		}
		toAdd := fr.FromIds(add...)
		toRemove := fr.FromIds(p.remove...)

		rec, _ := w.ids.location(e)
		rec = w.commit(e, rec, fr.Merge(rec.family, toAdd, toRemove))

		for _, ps := range p.sets {
			col := rec.table.ColumnIndex(ps.component)
			w.components.get(ps.component).copyValue(rec.table.columns[col].elem(int(rec.row)), ps.data)
			w.triggerSet(e, rec, ps.component)
		}
		applied++
	}

	for _, n := range notices {
		if !w.ids.isAlive(n.entity) {
			continue
		}
		rec, _ := w.ids.location(n.entity)
		w.triggerSet(n.entity, rec, n.component)
	}
	return applied
}

func deleteId(ids []EntityId, id EntityId) []EntityId {
	return slices.DeleteFunc(ids, func(x EntityId) bool { return x == id })
}

// Defer buffers a typed Set on the stage.
func Defer[T any](s *Stage, e EntityId, value T) {
	c, ok := ComponentFor[T](s.world)
	if !ok {
		invariant(ErrNotComponent, "%T is not registered", value)
	}
	s.Set(e, c, unsafe.Slice((*byte)(unsafe.Pointer(&value)), unsafe.Sizeof(value)))
}
