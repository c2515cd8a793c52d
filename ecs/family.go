package ecs

import (
	"slices"
	"unsafe"

	"github.com/TheBitDrifter/mask"
	"github.com/cespare/xxhash/v2"
	"github.com/kamstrup/intmap"
)

// Family is the canonical handle of a sorted, de-duplicated set of component
// ids. Two families are equal iff their id sets are equal. The zero Family is
// the empty set.
type Family uint32

const EmptyFamily Family = 0

// maskBits bounds which component indices take part in the quick-reject mask.
const maskBits = 64

// maxBaseDepth bounds how far InstanceOf chains are followed.
const maxBaseDepth = 32

type familyData struct {
	ids  []EntityId
	hash uint64
	bits mask.Mask

	// cached transitions, the family graph
	add    *intmap.Map[EntityId, Family]
	remove *intmap.Map[EntityId, Family]

	hasBases bool
}

// FamilyRegistry canonicalises id sets into families. Families are created
// once and never destroyed.
type FamilyRegistry struct {
	families  []familyData
	buckets   *intmap.Map[uint64, []Family]
	listeners []func(Family)

	// baseFamily resolves the current family of an InstanceOf base entity.
	baseFamily func(EntityId) Family

	scratch []EntityId
}

func newFamilyRegistry(baseFamily func(EntityId) Family) *FamilyRegistry {
	r := &FamilyRegistry{
		families:   make([]familyData, 1, 64),
		buckets:    intmap.New[uint64, []Family](64),
		baseFamily: baseFamily,
	}
	r.families[EmptyFamily] = familyData{hash: hashIds(nil)}
	return r
}

// OnNewFamily registers fn to be called once for every family created after
// this call. Lookups of existing families never trigger it.
func (r *FamilyRegistry) OnNewFamily(fn func(Family)) {
	r.listeners = append(r.listeners, fn)
}

// Len returns the number of families, including the empty family.
func (r *FamilyRegistry) Len() int {
	return len(r.families)
}

// Ids returns the sorted ids of f. The slice must not be modified.
func (r *FamilyRegistry) Ids(f Family) []EntityId {
	return r.families[f].ids
}

// Count returns the number of ids in f.
func (r *FamilyRegistry) Count(f Family) int {
	return len(r.families[f].ids)
}

// Register returns the family for base ∪ {add}. A zero add returns base.
func (r *FamilyRegistry) Register(add EntityId, base Family) Family {
	if add == 0 {
		return base
	}
	fd := &r.families[base]
	if fd.add != nil {
		if f, ok := fd.add.Get(add); ok {
			return f
		}
	}

	pos, found := slices.BinarySearch(fd.ids, add)
	if found {
		return base
	}

	out := append(r.scratch[:0], fd.ids[:pos]...)
	out = append(out, add)
	out = append(out, fd.ids[pos:]...)
	r.scratch = out
	result := r.lookup(out)

	// lookup may have grown the slice, fetch the entry again
	fd = &r.families[base]
	if fd.add == nil {
		fd.add = intmap.New[EntityId, Family](4)
	}
	fd.add.Put(add, result)
	return result
}

// Unregister returns the family for base \ {remove}.
func (r *FamilyRegistry) Unregister(remove EntityId, base Family) Family {
	fd := &r.families[base]
	if fd.remove != nil {
		if f, ok := fd.remove.Get(remove); ok {
			return f
		}
	}

	pos, found := slices.BinarySearch(fd.ids, remove)
	if !found {
		return base
	}

	out := append(r.scratch[:0], fd.ids[:pos]...)
	out = append(out, fd.ids[pos+1:]...)
	r.scratch = out
	result := r.lookup(out)

	fd = &r.families[base]
	if fd.remove == nil {
		fd.remove = intmap.New[EntityId, Family](4)
	}
	fd.remove.Put(remove, result)
	return result
}

// FromIds returns the family of an arbitrary, unordered id list.
func (r *FamilyRegistry) FromIds(ids ...EntityId) Family {
	out := append(r.scratch[:0], ids...)
	slices.Sort(out)
	out = slices.Compact(out)
	r.scratch = out
	return r.lookup(out)
}

// Merge computes (current ∪ toAdd) \ toRemove in one pass over the three
// sorted lists. An id present in both toAdd and toRemove is kept.
func (r *FamilyRegistry) Merge(current, toAdd, toRemove Family) Family {
	if toAdd == EmptyFamily && toRemove == EmptyFamily {
		return current
	}

	a := r.families[current].ids
	b := r.families[toAdd].ids
	c := r.families[toRemove].ids

	out := r.scratch[:0]
	if cap(out) < len(a)+len(b) {
		out = make([]EntityId, 0, len(a)+len(b))
	}

	i, j, k := 0, 0, 0
	for i < len(a) || j < len(b) {
		var next EntityId
		added := false

		switch {
		case j >= len(b) || (i < len(a) && a[i] < b[j]):
			next = a[i]
			i++
		case i >= len(a) || b[j] < a[i]:
			next = b[j]
			j++
			added = true
		default:
			next = a[i]
			i++
			j++
			added = true
		}

		for k < len(c) && c[k] < next {
			k++
		}
		if !added && k < len(c) && c[k] == next {
			continue
		}
		out = append(out, next)
	}

	r.scratch = out
	return r.lookup(out)
}

// Contains reports whether a contains the ids of b. With matchAll every id of b
// must be present and the last matched id is returned; otherwise the first
// id of b found in a is returned. Zero means no match. With matchPrefab, ids
// missing from a are also looked up in a's InstanceOf bases.
func (r *FamilyRegistry) Contains(a, b Family, matchAll, matchPrefab bool) EntityId {
	bids := r.families[b].ids
	if len(bids) == 0 {
		return 0
	}
	fa := &r.families[a]
	if a == b {
		return bids[0]
	}
	if matchAll && !(matchPrefab && fa.hasBases) && !fa.bits.ContainsAll(r.families[b].bits) {
		return 0
	}

	aids := fa.ids
	i := 0
	var last EntityId
	for _, e2 := range bids {
		for i < len(aids) && aids[i] < e2 {
			i++
		}
		found := i < len(aids) && aids[i] == e2
		if !found && matchPrefab && fa.hasBases && !e2.IsRelation() {
			found = r.findInBases(aids, e2, 0, 0) != 0
		}

		if found {
			if !matchAll {
				return e2
			}
			last = e2
		} else if matchAll {
			return 0
		}
	}

	if matchAll {
		return last
	}
	return 0
}

// Has reports whether f contains id, optionally through InstanceOf bases.
func (r *FamilyRegistry) Has(f Family, id EntityId, matchPrefab bool) bool {
	fd := &r.families[f]
	if _, found := slices.BinarySearch(fd.ids, id); found {
		return true
	}
	if matchPrefab && fd.hasBases && !id.IsRelation() {
		return r.findInBases(fd.ids, id, 0, 0) != 0
	}
	return false
}

// IndexOf returns the position of id in f, or -1.
func (r *FamilyRegistry) IndexOf(f Family, id EntityId) int {
	pos, found := slices.BinarySearch(r.families[f].ids, id)
	if !found {
		return -1
	}
	return pos
}

// FindBase returns the InstanceOf base of f that provides component, or 0.
func (r *FamilyRegistry) FindBase(f Family, component EntityId) EntityId {
	fd := &r.families[f]
	if !fd.hasBases {
		return 0
	}
	return r.findInBases(fd.ids, component, 0, 0)
}

// findInBases walks InstanceOf ids back to front; relation ids sort last so
// the walk stops at the first plain id. previous is the base being walked
// from and is skipped to avoid bouncing between mutual bases.
func (r *FamilyRegistry) findInBases(ids []EntityId, component, previous EntityId, depth int) EntityId {
	if depth >= maxBaseDepth {
		return 0
	}
	for i := len(ids) - 1; i >= 0; i-- {
		id := ids[i]
		if !id.IsInstanceOf() {
			if id.IsChildOf() {
				continue
			}
			break
		}

		base := id.Entity()
		if base == previous {
			continue
		}
		baseIds := r.families[r.baseFamily(base)].ids
		if _, found := slices.BinarySearch(baseIds, component); found {
			return base
		}
		if found := r.findInBases(baseIds, component, base, depth+1); found != 0 {
			return found
		}
	}
	return 0
}

func (r *FamilyRegistry) lookup(ids []EntityId) Family {
	if len(ids) == 0 {
		return EmptyFamily
	}

	h := hashIds(ids)
	bucket, _ := r.buckets.Get(h)
	for _, f := range bucket {
		if slices.Equal(r.families[f].ids, ids) {
			return f
		}
	}

	fd := familyData{
		ids:  slices.Clone(ids),
		hash: h,
	}
	for _, id := range ids {
		if id.IsInstanceOf() {
			fd.hasBases = true
		}
		if !id.IsRelation() && id.Index() < maskBits {
			fd.bits.Mark(id.Index())
		}
	}

	f := Family(len(r.families))
	r.families = append(r.families, fd)
	r.buckets.Put(h, append(bucket, f))

	for _, fn := range r.listeners {
		fn(f)
	}
	return f
}

func hashIds(ids []EntityId) uint64 {
	if len(ids) == 0 {
		return xxhash.Sum64(nil)
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(ids))), len(ids)*int(unsafe.Sizeof(EntityId(0))))
	return xxhash.Sum64(b)
}
