package ecs

import (
	"slices"
	"time"
	"unsafe"
)

// familyTriggers lists, per row system kind, the event systems matching one
// family. It is filled when the family is created.
type familyTriggers [kindCount][]*System

// matchFamily reports whether s matches entities of family f.
func (w *World) matchFamily(s *System, f Family) bool {
	fr := w.families

	if fr.Has(f, w.Prefab, false) || fr.Has(f, w.singletonTag, false) {
		return false
	}
	if !s.matchDisabled && fr.Has(f, w.Disabled, false) {
		return false
	}
	if s.andFromSelf != EmptyFamily && fr.Contains(f, s.andFromSelf, true, true) == 0 {
		return false
	}

	for i, t := range s.terms {
		switch t.Oper {
		case And, Or:
			matchAll := t.Oper == And
			switch t.Source {
			case FromSelf:
				if t.Oper == Or && fr.Contains(f, s.termFamilies[i], false, true) == 0 {
					return false
				}
			case FromComponent:
				if src, _ := w.componentSource(f, s.termFamilies[i]); src == 0 {
					return false
				}
			case FromFixed:
				if fr.Contains(w.familyOf(t.Entity), s.termFamilies[i], matchAll, true) == 0 {
					return false
				}
			}
		case Not:
			switch t.Source {
			case FromComponent:
				if src, _ := w.componentSource(f, s.termFamilies[i]); src != 0 {
					return false
				}
			case FromFixed:
				if fr.Has(w.familyOf(t.Entity), t.Component, true) {
					return false
				}
			}
		}
	}

	if s.notFromSelf != EmptyFamily && fr.Contains(f, s.notFromSelf, false, true) != 0 {
		return false
	}
	return true
}

// familyOf returns the family of any entity without asserting liveness.
func (w *World) familyOf(e EntityId) Family {
	rec, _ := w.ids.location(e)
	return rec.family
}

// componentSource finds the entity, referenced by an id of f, whose own
// family provides any id of target. ChildOf parents are searched first as
// relation ids sort last. It returns the source and the matched component.
func (w *World) componentSource(f Family, target Family) (EntityId, EntityId) {
	ids := w.families.Ids(f)
	for i := len(ids) - 1; i >= 0; i-- {
		id := ids[i]
		if id.IsInstanceOf() {
			continue
		}
		src := id.Entity()
		rec, ok := w.ids.location(src)
		if !ok || rec.family == EmptyFamily {
			continue
		}
		if c := w.families.Contains(rec.family, target, false, true); c != 0 {
			return src, c
		}
	}
	return 0, 0
}

// matchTable matches s against t once. Tables are never matched twice.
func (w *World) matchTable(s *System, t *Table) {
	if _, seen := s.byTable[t]; seen {
		return
	}
	if !w.matchFamily(s, t.family) {
		return
	}

	mt := w.newMatchedTable(s, t)
	s.byTable[t] = mt
	t.systems = append(t.systems, s)
	if t.Active() {
		s.tables = append(s.tables, mt)
	} else {
		s.inactive = append(s.inactive, mt)
	}
	s.topology++
}

// newMatchedTable computes column codes and references of every term for t.
// t may be nil for systems that do not iterate tables.
func (w *World) newMatchedTable(s *System, t *Table) *matchedTable {
	fr := w.families
	mt := &matchedTable{
		table:      t,
		columns:    make([]int32, len(s.terms)),
		components: make([]EntityId, len(s.terms)),
	}

	var family Family
	if t != nil {
		family = t.family
	}

	for i, term := range s.terms {
		var source EntityId
		component := term.Component

		switch term.Source {
		case FromSelf:
			if term.Oper == Or && t != nil {
				component = fr.Contains(family, s.termFamilies[i], false, true)
			}
		case FromComponent:
			if t != nil {
				source, component = w.componentSource(family, s.termFamilies[i])
			}
			if source == 0 {
				mt.components[i] = term.Component
				continue
			}
		case FromFixed:
			source = term.Entity
			if term.Oper == Or {
				component = fr.Contains(w.familyOf(source), s.termFamilies[i], false, true)
			}
		}
		mt.components[i] = component

		if term.Oper == Not || component == 0 {
			continue
		}

		if source == 0 && t != nil {
			if col := t.ColumnIndex(component); col >= 0 {
				mt.columns[i] = int32(col + 1)
				continue
			}
			if fr.Has(family, component, false) {
				continue
			}
			// not owned, so it has to come from a base
			source = fr.FindBase(family, component)
		}

		if source == 0 {
			continue
		}
		if info := w.components.get(component); info != nil && !info.IsTag() {
			mt.refs = append(mt.refs, reference{entity: source, component: component})
			mt.columns[i] = -int32(len(mt.refs))
		}
	}
	return mt
}

// onNewTable matches every table system against a freshly created table.
func (w *World) onNewTable(t *Table) {
	for _, s := range w.systems {
		if s.kind.rowKind() || !s.needsTables {
			continue
		}
		w.matchTable(s, t)
	}
	w.logger.Debug().
		Uint32("family", uint32(t.family)).
		Int("columns", len(t.columns)).
		Int("systems", len(t.systems)).
		Msg("table created")
}

// onActivate moves t between the active and inactive lists of its systems.
func (w *World) onActivate(t *Table, active bool) {
	for _, s := range t.systems {
		mt := s.byTable[t]
		if active {
			s.inactive = removeMatched(s.inactive, mt)
			s.tables = append(s.tables, mt)
		} else {
			s.tables = removeMatched(s.tables, mt)
			s.inactive = append(s.inactive, mt)
		}
		s.topology++
	}
}

func removeMatched(list []*matchedTable, mt *matchedTable) []*matchedTable {
	i := slices.Index(list, mt)
	if i < 0 {
		return list
	}
	return slices.Delete(list, i, i+1)
}

// onNewFamily records which event systems match a new family.
func (w *World) onNewFamily(f Family) {
	for int(f) >= len(w.triggers) {
		w.triggers = append(w.triggers, familyTriggers{})
	}
	for _, s := range w.rowSystems {
		w.matchRowSystem(s, f)
	}
	w.logger.Debug().
		Uint32("family", uint32(f)).
		Int("ids", w.families.Count(f)).
		Msg("family created")
}

func (w *World) matchRowSystem(s *System, f Family) {
	for int(f) >= len(w.triggers) {
		w.triggers = append(w.triggers, familyTriggers{})
	}
	if w.matchFamily(s, f) {
		w.triggers[f][s.kind] = append(w.triggers[f][s.kind], s)
	}
}

// triggerTransition runs the kind's event systems that match rec's family
// but not other. OnRemove passes the old location, OnAdd the new one.
func (w *World) triggerTransition(kind SystemKind, e EntityId, rec record, other Family) {
	if int(rec.family) >= len(w.triggers) {
		return
	}
	systems := w.triggers[rec.family][kind]
	if len(systems) == 0 {
		return
	}
	var otherSystems []*System
	if int(other) < len(w.triggers) {
		otherSystems = w.triggers[other][kind]
	}
	for _, s := range systems {
		if !s.enabled || slices.Contains(otherSystems, s) {
			continue
		}
		w.invokeRow(s, e, rec)
	}
}

// triggerSet runs OnSet systems of rec's family that have c as a term.
func (w *World) triggerSet(e EntityId, rec record, c EntityId) {
	if int(rec.family) >= len(w.triggers) {
		return
	}
	for _, s := range w.triggers[rec.family][KindOnSet] {
		if !s.enabled {
			continue
		}
		for _, t := range s.terms {
			if t.Source == FromSelf && (t.Component == c || slices.Contains(t.Components, c)) {
				w.invokeRow(s, e, rec)
				break
			}
		}
	}
}

// invokeRow runs an event system on a single row. Structural changes made by
// the action are deferred until the triggering operation completes.
func (w *World) invokeRow(s *System, e EntityId, rec record) {
	if rec.table == nil {
		return
	}
	mt, ok := s.byTable[rec.table]
	if !ok {
		mt = w.newMatchedTable(s, rec.table)
		s.byTable[rec.table] = mt
	}

	w.deferDepth.Add(1)
	start := time.Now()
	defer func() {
		w.deferDepth.Add(-1)
		s.stats.record(time.Since(start))
	}()

	it := &Iter{
		world:  w,
		system: s,
		stage:  w.deferred,
		Param:  s.param,
	}
	it.setSegment(mt, int(rec.row), 1)
	s.action(it)
}

// resolveRefs turns the references of mt into pointers using the current
// location of each source entity.
func (w *World) resolveRefs(mt *matchedTable, dst []unsafe.Pointer) []unsafe.Pointer {
	dst = dst[:0]
	for _, ref := range mt.refs {
		var p unsafe.Pointer
		rec, ok := w.ids.location(ref.entity)
		if ok {
			if b := w.getFrom(rec, ref.component); b != nil {
				p = unsafe.Pointer(unsafe.SliceData(b))
			}
		}
		dst = append(dst, p)
	}
	return dst
}
