package ecs

import (
	"time"
)

// SystemKind decides when a system runs.
type SystemKind uint8

const (
	// KindOnFrame systems run on every Progress call, in registration order.
	KindOnFrame SystemKind = iota
	// KindManual systems only run through RunSystem.
	KindManual
	// KindOnAdd systems run for a single row when an entity starts matching.
	KindOnAdd
	// KindOnRemove systems run for a single row right before an entity stops
	// matching, while its data is still readable.
	KindOnRemove
	// KindOnSet systems run for a single row after one of their components
	// was set.
	KindOnSet

	kindCount
)

func (k SystemKind) String() string {
	switch k {
	case KindOnFrame:
		return "OnFrame"
	case KindManual:
		return "Manual"
	case KindOnAdd:
		return "OnAdd"
	case KindOnRemove:
		return "OnRemove"
	case KindOnSet:
		return "OnSet"
	}
	return "unknown"
}

// rowKind reports whether the kind is an event system run per row.
func (k SystemKind) rowKind() bool {
	return k == KindOnAdd || k == KindOnRemove || k == KindOnSet
}

// Action is invoked once per contiguous run of matched rows in one table.
type Action func(it *Iter)

// SystemDesc describes a system to register.
type SystemDesc struct {
	Name  string
	Terms []Term

	// Parallel splits matched rows across the worker pool.
	Parallel bool
	// Period, when non-zero, is the minimum time between two OnFrame runs.
	Period float64
	// MatchDisabled lets the system match tables tagged Disabled.
	MatchDisabled bool
	// Param is passed to the action when a run does not supply one.
	Param any
}

// reference names the entity a term's data is read from when it does not
// live in the iterated table.
type reference struct {
	entity    EntityId
	component EntityId
}

// matchedTable caches, for one (system, table) pair, where each term's data
// lives. A column code > 0 is a table column index plus one, 0 means no data
// and < 0 is minus the reference index plus one.
type matchedTable struct {
	table      *Table
	columns    []int32
	components []EntityId
	refs       []reference
}

// System is a registered behaviour together with its matched tables.
type System struct {
	id     EntityId
	name   string
	kind   SystemKind
	terms  []Term
	action Action
	param  any

	parallel      bool
	period        float64
	timePassed    float64
	matchDisabled bool
	enabled       bool

	// termFamilies holds, per term, the family of its operands: the single
	// component, or the union of an Or term.
	termFamilies []Family
	andFromSelf  Family
	notFromSelf  Family
	needsTables  bool

	tables   []*matchedTable
	inactive []*matchedTable
	byTable  map[*Table]*matchedTable
	task     *matchedTable

	// topology changes whenever a table is matched, activated or deactivated
	topology uint64
	jobs     jobCache

	stats systemStatsInternal
}

// Id returns the system's entity id.
func (s *System) Id() EntityId { return s.id }

// Name returns the system name.
func (s *System) Name() string { return s.name }

// Kind returns when the system runs.
func (s *System) Kind() SystemKind { return s.kind }

// Enabled reports whether the system runs.
func (s *System) Enabled() bool { return s.enabled }

// ActiveTables returns the number of matched tables holding rows.
func (s *System) ActiveTables() int { return len(s.tables) }

// InactiveTables returns the number of matched, empty tables.
func (s *System) InactiveTables() int { return len(s.inactive) }

// MatchedRows returns the number of rows across active tables.
func (s *System) MatchedRows() int {
	n := 0
	for _, mt := range s.tables {
		n += mt.table.Count()
	}
	return n
}

// RegisterSystem validates desc and registers it. Registration either fully
// succeeds or leaves the world untouched.
func (w *World) RegisterSystem(desc SystemDesc, action Action, kind SystemKind) (EntityId, error) {
	if kind >= kindCount {
		return 0, ErrInvalidTerm
	}
	if w.deferring() {
		return 0, ErrInProgress
	}
	w.gate.Lock()
	defer w.gate.Unlock()

	if err := w.validateTerms(desc.Terms); err != nil {
		return 0, err
	}

	s := &System{
		id:            w.ids.newId(),
		name:          desc.Name,
		kind:          kind,
		terms:         append([]Term(nil), desc.Terms...),
		action:        action,
		param:         desc.Param,
		parallel:      desc.Parallel,
		period:        desc.Period,
		matchDisabled: desc.MatchDisabled,
		enabled:       true,
		byTable:       make(map[*Table]*matchedTable),
		stats:         systemStatsInternal{name: desc.Name, minDuration: time.Duration(1<<63 - 1)},
	}
	if s.name == "" {
		s.name = s.id.String()
		s.stats.name = s.name
	}
	w.computeFamilies(s)

	w.systems = append(w.systems, s)
	w.systemById.Put(s.id, s)

	if kind.rowKind() {
		w.rowSystems = append(w.rowSystems, s)
		for f := 0; f < w.families.Len(); f++ {
			w.matchRowSystem(s, Family(f))
		}
	} else {
		if kind == KindOnFrame {
			w.frameSystems = append(w.frameSystems, s)
		}
		if s.needsTables {
			for _, t := range w.store.tables {
				w.matchTable(s, t)
			}
		} else {
			s.task = w.newMatchedTable(s, nil)
		}
	}

	w.logger.Debug().
		Str("system", s.name).
		Str("kind", kind.String()).
		Int("terms", len(s.terms)).
		Int("active", len(s.tables)).
		Int("inactive", len(s.inactive)).
		Msg("system registered")

	w.flushDeferred()
	return s.id, nil
}

// System returns the registered system with the given id, or nil.
func (w *World) System(id EntityId) *System {
	s, _ := w.systemById.Get(id)
	return s
}

// EnableSystem enables or disables a system.
func (w *World) EnableSystem(id EntityId, enabled bool) {
	s := w.mustSystem(id)
	s.enabled = enabled
}

func (w *World) mustSystem(id EntityId) *System {
	s, ok := w.systemById.Get(id)
	if !ok {
		invariant(ErrUnknownSystem, "system %v", id)
	}
	return s
}

// computeFamilies derives the per-term and combined families used while
// matching. Families are built once at registration.
func (w *World) computeFamilies(s *System) {
	s.termFamilies = make([]Family, len(s.terms))
	var andSelf, notSelf []EntityId

	for i, t := range s.terms {
		if t.Oper == Or {
			s.termFamilies[i] = w.families.FromIds(t.Components...)
		} else {
			s.termFamilies[i] = w.families.Register(t.Component, EmptyFamily)
		}

		// any term not bound to a fixed entity iterates tables, whatever its operator
		if t.Source != FromFixed {
			s.needsTables = true
		}
		if t.Source == FromSelf && t.Oper == And {
			andSelf = append(andSelf, t.Component)
		}
		if t.Source == FromSelf && t.Oper == Not {
			notSelf = append(notSelf, t.Component)
		}
	}

	s.andFromSelf = w.families.FromIds(andSelf...)
	s.notFromSelf = w.families.FromIds(notSelf...)
}
