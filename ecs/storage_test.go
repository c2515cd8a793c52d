package ecs_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plus3/archon/ecs"
)

// Test EntityId encoding/decoding
func TestEntityIdEncoding(t *testing.T) {
	tests := []struct {
		index      uint32
		generation uint16
	}{
		{1, 0},
		{0xFFFFFFFF, 0xFFFF},
		{12345, 7},
		{0x12345678, 0x9ABC},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("index=%d,generation=%d", tt.index, tt.generation), func(t *testing.T) {
			e := ecs.NewEntityId(tt.index, tt.generation)
			assert.Equal(t, tt.index, e.Index())
			assert.Equal(t, tt.generation, e.Generation())
			assert.False(t, e.IsRelation())
		})
	}
}

func TestEntityIdRelations(t *testing.T) {
	e := ecs.NewEntityId(42, 3)

	child := ecs.ChildOf(e)
	assert.True(t, child.IsChildOf())
	assert.False(t, child.IsInstanceOf())
	assert.Equal(t, e, child.Entity())

	instance := ecs.InstanceOf(e)
	assert.True(t, instance.IsInstanceOf())
	assert.Equal(t, e, instance.Entity())

	// relation ids sort after every plain id
	assert.Greater(t, child, ecs.NewEntityId(0xFFFFFFFF, 0xFFFF))
	assert.Greater(t, instance, child)
}

func TestNewEntity(t *testing.T) {
	w, c := newTestWorld()
	defer w.Close()

	empty := w.NewEntity()
	assert.True(t, w.IsAlive(empty))
	assert.Equal(t, ecs.EmptyFamily, w.Family(empty))

	loc, ok := w.Location(empty)
	require.True(t, ok)
	assert.Nil(t, loc.Table)

	e := w.NewEntity(c.Position, c.Velocity)
	loc, ok = w.Location(e)
	require.True(t, ok)
	require.NotNil(t, loc.Table)
	assert.Equal(t, 0, loc.Row)
	assert.Equal(t, 2, loc.Table.ColumnCount())
	assert.Equal(t, []ecs.EntityId{c.Position, c.Velocity}, w.Families().Ids(loc.Family))

	// components start zeroed
	assert.Equal(t, &Position{}, ecs.Get[Position](w, e))
}

func TestSetAndGet(t *testing.T) {
	w, c := newTestWorld()
	defer w.Close()

	e := spawn(w, Position{X: 3, Y: 4}, nil)

	pos := ecs.Get[Position](w, e)
	require.NotNil(t, pos)
	assert.Equal(t, Position{X: 3, Y: 4}, *pos)
	assert.Nil(t, ecs.Get[Velocity](w, e))

	assert.True(t, w.Has(e, c.Position))
	assert.False(t, w.Has(e, c.Velocity))

	// writing through the pointer is visible
	pos.X = 10
	assert.Equal(t, float32(10), ecs.Get[Position](w, e).X)

	ecs.Set(w, e, Velocity{DX: 1, DY: 2})
	assert.Equal(t, Position{X: 10, Y: 4}, *ecs.Get[Position](w, e))
	assert.Equal(t, Velocity{DX: 1, DY: 2}, *ecs.Get[Velocity](w, e))
}

func TestAddRemoveMovesEntity(t *testing.T) {
	w, c := newTestWorld()
	defer w.Close()

	a := spawn(w, Position{X: 1}, nil)
	b := spawn(w, Position{X: 2}, nil)
	first := w.Family(a)

	w.Add(a, c.Velocity)
	assert.NotEqual(t, first, w.Family(a))
	assert.Equal(t, float32(1), ecs.Get[Position](w, a).X)
	assert.Equal(t, &Velocity{}, ecs.Get[Velocity](w, a))

	// b was swapped into a's old row
	loc, ok := w.Location(b)
	require.True(t, ok)
	assert.Equal(t, 0, loc.Row)
	assert.Equal(t, float32(2), ecs.Get[Position](w, b).X)

	w.Remove(a, c.Velocity)
	assert.Equal(t, first, w.Family(a))
	assert.Equal(t, float32(1), ecs.Get[Position](w, a).X)

	// adding twice, removing something missing: no-ops
	fam := w.Family(a)
	w.Add(a, c.Position)
	w.Remove(a, c.Health)
	assert.Equal(t, fam, w.Family(a))

	w.CheckInvariants()
}

func TestDeleteEntity(t *testing.T) {
	w, c := newTestWorld()
	defer w.Close()

	a := spawn(w, Position{X: 1}, nil)
	b := spawn(w, Position{X: 2}, nil)

	w.Delete(a)
	assert.False(t, w.IsAlive(a))
	assert.True(t, w.IsAlive(b))
	assert.Equal(t, float32(2), ecs.Get[Position](w, b).X)

	// the recycled index carries a new generation
	n := w.NewEntity(c.Position)
	assert.Equal(t, a.Index(), n.Index())
	assert.NotEqual(t, a.Generation(), n.Generation())
	assert.False(t, w.IsAlive(a))

	assert.Panics(t, func() { w.Add(a, c.Velocity) })
	assert.Panics(t, func() { w.Delete(a) })
	assert.Panics(t, func() { w.Get(a, c.Position) })

	w.CheckInvariants()
}

func TestTags(t *testing.T) {
	w, c := newTestWorld()
	defer w.Close()

	e := w.NewEntity(c.Position, c.Player)
	assert.True(t, w.Has(e, c.Player))
	assert.Nil(t, w.Get(e, c.Player))

	loc, _ := w.Location(e)
	assert.Equal(t, 1, loc.Table.ColumnCount())
	assert.Equal(t, -1, loc.Table.ColumnIndex(c.Player))

	assert.Panics(t, func() { w.Set(e, c.Player, []byte{1}) })
}

func TestSetWrongSize(t *testing.T) {
	w, c := newTestWorld()
	defer w.Close()

	e := w.NewEntity(c.Position)
	assert.Panics(t, func() { w.Set(e, c.Position, []byte{1, 2, 3}) })
}

func TestRegisterComponent(t *testing.T) {
	w := ecs.New()
	defer w.Close()

	id := ecs.RegisterComponent[Position](w)
	assert.Equal(t, id, ecs.RegisterComponent[Position](w))

	info := w.Component(id)
	require.NotNil(t, info)
	assert.Equal(t, uintptr(8), info.Size)
	assert.False(t, info.IsTag())

	got, ok := ecs.ComponentFor[Position](w)
	assert.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = ecs.ComponentFor[Velocity](w)
	assert.False(t, ok)

	// independent worlds never share ids
	other := ecs.New()
	defer other.Close()
	ecs.RegisterComponent[Velocity](other)
	_, ok = ecs.ComponentFor[Velocity](w)
	assert.False(t, ok)
}

func TestRegisterComponentRejectsPointers(t *testing.T) {
	w := ecs.New()
	defer w.Close()

	assert.Panics(t, func() { ecs.RegisterComponent[Name](w) })
	assert.Panics(t, func() { ecs.RegisterComponent[Inventory](w) })
	assert.Panics(t, func() { ecs.RegisterComponent[Link](w) })
	assert.NotPanics(t, func() { ecs.RegisterComponent[[4]float32](w) })
}

func TestComponentHooks(t *testing.T) {
	w := ecs.New()
	defer w.Close()

	var ctors, dtors, moves int
	c := w.NewComponent("Counter", 4, 4, ecs.Hooks{
		Ctor: func(dst []byte) {
			ctors++
			dst[0] = 7
		},
		Dtor: func([]byte) { dtors++ },
		Move: func(dst, src []byte) {
			moves++
			copy(dst, src)
		},
	})
	tag := w.NewTag("Marker")

	a := w.NewEntity(c)
	b := w.NewEntity(c)
	assert.Equal(t, 2, ctors)
	assert.Equal(t, byte(7), w.Get(a, c)[0])

	w.Get(b, c)[0] = 9
	w.Delete(a)
	assert.Equal(t, 1, dtors)
	// b moved from the last row into row 0
	assert.Equal(t, 1, moves)
	assert.Equal(t, byte(9), w.Get(b, c)[0])

	// table change moves the value instead of destroying it
	w.Add(b, tag)
	assert.Equal(t, 1, dtors)
	assert.Equal(t, 2, moves)
	assert.Equal(t, byte(9), w.Get(b, c)[0])
}

func TestPrefabInheritance(t *testing.T) {
	w, c := newTestWorld()
	defer w.Close()

	base := w.NewPrefab()
	ecs.Set(w, base, Health{Current: 50, Max: 100})

	e := spawn(w, Position{X: 1}, nil)
	w.Add(e, ecs.InstanceOf(base))

	assert.True(t, w.Has(e, c.Health))
	assert.False(t, w.Owns(e, c.Health))
	assert.Equal(t, Health{Current: 50, Max: 100}, *ecs.Get[Health](w, e))

	// overriding gives the instance its own copy
	ecs.Set(w, e, Health{Current: 10, Max: 100})
	assert.True(t, w.Owns(e, c.Health))
	assert.Equal(t, 10, ecs.Get[Health](w, e).Current)
	assert.Equal(t, 50, ecs.Get[Health](w, base).Current)
}

func TestNewPrefabKeepsCallerSlice(t *testing.T) {
	w, c := newTestWorld()
	defer w.Close()

	components := make([]ecs.EntityId, 1, 4)
	components[0] = c.Health
	spare := components[:2]

	w.NewPrefab(components...)
	assert.Equal(t, ecs.EntityId(0), spare[1])
	assert.Equal(t, []ecs.EntityId{c.Health}, components)
}

func TestRandomOperationsKeepInvariants(t *testing.T) {
	w, c := newTestWorld(ecs.WithTableCapacity(2))
	defer w.Close()

	rng := rand.New(rand.NewSource(7))
	components := []ecs.EntityId{c.Position, c.Velocity, c.Health, c.Mass, c.AI, c.Player}

	// expected Position.X per live entity that owns Position
	expected := make(map[ecs.EntityId]float32)
	var live []ecs.EntityId

	for i := 0; i < 5000; i++ {
		switch op := rng.Intn(10); {
		case op < 3 || len(live) == 0:
			e := w.NewEntity()
			live = append(live, e)
		case op < 5:
			e := live[rng.Intn(len(live))]
			x := rng.Float32()
			ecs.Set(w, e, Position{X: x})
			expected[e] = x
		case op < 7:
			e := live[rng.Intn(len(live))]
			comp := components[rng.Intn(len(components))]
			w.Add(e, comp)
			if _, ok := expected[e]; !ok && comp == c.Position {
				expected[e] = 0
			}
		case op < 9:
			e := live[rng.Intn(len(live))]
			comp := components[rng.Intn(len(components))]
			w.Remove(e, comp)
			if comp == c.Position {
				delete(expected, e)
			}
		default:
			idx := rng.Intn(len(live))
			w.Delete(live[idx])
			delete(expected, live[idx])
			live = append(live[:idx], live[idx+1:]...)
		}
	}

	w.CheckInvariants()
	for _, e := range live {
		x, owns := expected[e]
		assert.Equal(t, owns, w.Owns(e, c.Position))
		if owns {
			assert.Equal(t, x, ecs.Get[Position](w, e).X)
		}
	}
}

func TestStaleIdsPanic(t *testing.T) {
	w, c := newTestWorld()
	defer w.Close()

	e := w.NewEntity(c.Position)
	w.Delete(e)

	assert.False(t, w.IsAlive(e))
	assert.False(t, w.IsAlive(0))
	_, ok := w.Location(e)
	assert.False(t, ok)
	assert.Panics(t, func() { w.Family(e) })
	assert.Panics(t, func() { w.Has(e, c.Position) })
}
