package ecs

import "github.com/rotisserie/eris"

// SourceKind selects which entity a term reads its component from.
type SourceKind uint8

const (
	// FromSelf reads from the iterated entity, or from one of its InstanceOf
	// bases when the entity does not own the component.
	FromSelf SourceKind = iota
	// FromComponent reads from another entity referenced by the iterated
	// entity's family: a ChildOf parent or a component entity.
	FromComponent
	// FromFixed reads from the entity named in Term.Entity.
	FromFixed
)

func (k SourceKind) String() string {
	switch k {
	case FromSelf:
		return "self"
	case FromComponent:
		return "component"
	case FromFixed:
		return "fixed"
	}
	return "unknown"
}

// Operator combines a term with the rest of the signature.
type Operator uint8

const (
	And Operator = iota
	Or
	Not
	// Optional never rejects a table; the field is empty when absent.
	Optional
)

func (o Operator) String() string {
	switch o {
	case And:
		return "and"
	case Or:
		return "or"
	case Not:
		return "not"
	case Optional:
		return "optional"
	}
	return "unknown"
}

// Term is one parsed clause of a system signature.
type Term struct {
	Source SourceKind
	Oper   Operator

	// Component is the operand of And, Not and Optional terms.
	Component EntityId
	// Components are the alternatives of an Or term.
	Components []EntityId
	// Entity is the source of FromFixed terms.
	Entity EntityId
}

// With returns an And term on the iterated entity.
func With(c EntityId) Term {
	return Term{Source: FromSelf, Oper: And, Component: c}
}

// Without returns a Not term on the iterated entity.
func Without(c EntityId) Term {
	return Term{Source: FromSelf, Oper: Not, Component: c}
}

// Maybe returns an Optional term on the iterated entity.
func Maybe(c EntityId) Term {
	return Term{Source: FromSelf, Oper: Optional, Component: c}
}

// AnyOf returns an Or term on the iterated entity.
func AnyOf(cs ...EntityId) Term {
	return Term{Source: FromSelf, Oper: Or, Components: cs}
}

// FromParent returns an And term resolved on a referenced entity.
func FromParent(c EntityId) Term {
	return Term{Source: FromComponent, Oper: And, Component: c}
}

// FromEntity returns an And term resolved on a fixed entity.
func FromEntity(e, c EntityId) Term {
	return Term{Source: FromFixed, Oper: And, Component: c, Entity: e}
}

func (w *World) resolvable(id EntityId) bool {
	if id == 0 {
		return false
	}
	if id.IsRelation() {
		return w.ids.isAlive(id.Entity())
	}
	return w.components.get(id) != nil || w.ids.isAlive(id)
}

// validateTerms checks every operand before anything is registered.
func (w *World) validateTerms(terms []Term) error {
	if len(terms) == 0 {
		return ErrEmptySignature
	}

	for i, t := range terms {
		if t.Source > FromFixed || t.Oper > Optional {
			return eris.Wrapf(ErrInvalidTerm, "term %d: source %d operator %d", i, t.Source, t.Oper)
		}
		if t.Source == FromFixed && !w.ids.isAlive(t.Entity) {
			return eris.Wrapf(ErrInvalidTerm, "term %d: fixed source %v is not alive", i, t.Entity)
		}

		if t.Oper == Or {
			if len(t.Components) == 0 {
				return eris.Wrapf(ErrInvalidTerm, "term %d: or without operands", i)
			}
			for _, c := range t.Components {
				if !w.resolvable(c) {
					return UnresolvedOperandError{Term: i, Operand: c}
				}
			}
			continue
		}

		if !w.resolvable(t.Component) {
			return UnresolvedOperandError{Term: i, Operand: t.Component}
		}
	}
	return nil
}
