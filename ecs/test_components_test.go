package ecs_test

import (
	"github.com/plus3/archon/ecs"
)

// Common test component types
type Position struct {
	X, Y float32
}

type Velocity struct {
	DX, DY float32
}

type Health struct {
	Current int
	Max     int
}

type Mass struct {
	Value float64
}

type AI struct {
	State int
}

type PlayerController struct{}

// Pointerful types are rejected by RegisterComponent
type Name struct {
	Value string
}

type Inventory struct {
	Items []string
}

type Link struct {
	Next *Position
}

type testComponents struct {
	Position ecs.EntityId
	Velocity ecs.EntityId
	Health   ecs.EntityId
	Mass     ecs.EntityId
	AI       ecs.EntityId
	Player   ecs.EntityId
}

func newTestWorld(opts ...ecs.Option) (*ecs.World, testComponents) {
	w := ecs.New(opts...)
	c := testComponents{
		Position: ecs.RegisterComponent[Position](w),
		Velocity: ecs.RegisterComponent[Velocity](w),
		Health:   ecs.RegisterComponent[Health](w),
		Mass:     ecs.RegisterComponent[Mass](w),
		AI:       ecs.RegisterComponent[AI](w),
		Player:   w.NewTag("Player"),
	}
	return w, c
}

func spawn(w *ecs.World, pos Position, vel *Velocity) ecs.EntityId {
	e := w.NewEntity()
	ecs.Set(w, e, pos)
	if vel != nil {
		ecs.Set(w, e, *vel)
	}
	return e
}
