package ecs

import (
	"sync"

	"github.com/kamstrup/intmap"
)

// record is the location of a live entity. A zero family with a nil table
// means the entity exists but has no components.
type record struct {
	family Family
	table  *Table
	row    int32
}

// identifierRegistry issues and recycles entity ids and tracks where each live
// entity is stored.
//
// Id allocation is guarded by a mutex so callbacks running on workers can
// create entities. The location map is only written while no workers run.
type identifierRegistry struct {
	mu          sync.Mutex
	generations []uint16
	alive       []bool
	free        []uint32
	live        int

	locations *intmap.Map[EntityId, record]
}

func newIdentifierRegistry(capacity int) *identifierRegistry {
	r := &identifierRegistry{
		generations: make([]uint16, 1, capacity+1),
		alive:       make([]bool, 1, capacity+1),
		locations:   intmap.New[EntityId, record](capacity),
	}
	// index 0 is reserved so that EntityId(0) is never valid
	return r
}

func (r *identifierRegistry) newId() EntityId {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.live++
	if n := len(r.free); n > 0 {
		index := r.free[n-1]
		r.free = r.free[:n-1]
		r.alive[index] = true
		return NewEntityId(index, r.generations[index])
	}

	index := uint32(len(r.generations))
	r.generations = append(r.generations, 0)
	r.alive = append(r.alive, true)
	return NewEntityId(index, 0)
}

// recycle invalidates the id and returns its index to the free list with a
// bumped generation, so any copy of the old id becomes detectably stale.
func (r *identifierRegistry) recycle(e EntityId) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isAliveLocked(e) {
		invariant(ErrStaleEntity, "recycle %v", e)
	}
	index := e.Index()
	r.alive[index] = false
	r.generations[index]++
	r.free = append(r.free, index)
	r.live--
	r.locations.Del(e)
}

func (r *identifierRegistry) isAlive(e EntityId) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isAliveLocked(e)
}

func (r *identifierRegistry) isAliveLocked(e EntityId) bool {
	if e == 0 || e.IsRelation() {
		return false
	}
	index := e.Index()
	if int(index) >= len(r.alive) {
		return false
	}
	return r.alive[index] && r.generations[index] == e.Generation()
}

func (r *identifierRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live
}

func (r *identifierRegistry) location(e EntityId) (record, bool) {
	return r.locations.Get(e)
}

func (r *identifierRegistry) setLocation(e EntityId, rec record) {
	r.locations.Put(e, rec)
}

// mustLocate returns the location of a live entity and panics for stale ids.
func (r *identifierRegistry) mustLocate(e EntityId) record {
	if !r.isAlive(e) {
		invariant(ErrStaleEntity, "entity %v", e)
	}
	rec, _ := r.locations.Get(e)
	return rec
}
