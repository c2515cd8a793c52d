package ecs

import (
	"unsafe"
)

// Singleton provides access to a single T value that belongs to the world
// rather than to a game entity. Every singleton of a world is a component of
// the same hidden entity, so systems can read one with FromEntity terms.
type Singleton[T any] struct {
	world     *World
	component EntityId
}

// NewSingleton registers T and returns its accessor. If the world holds no T
// yet it is created with the initializer, or the zero value. Systems never
// iterate the singleton entity; they read it through FromEntity terms.
func NewSingleton[T any](w *World, initializer ...T) *Singleton[T] {
	s := &Singleton[T]{
		world:     w,
		component: RegisterComponent[T](w),
	}
	if !s.Exists() {
		// keeps the singleton table apart from entity tables
		w.Add(w.singleton, w.singletonTag)
		var value T
		if len(initializer) > 0 {
			value = initializer[0]
		}
		s.Set(value)
	}
	return s
}

// Get returns a pointer to the value, or nil when it was never set. The
// pointer is invalidated when another singleton type is added.
func (s *Singleton[T]) Get() *T {
	b := s.world.Get(s.world.singleton, s.component)
	if b == nil {
		return nil
	}
	return (*T)(unsafe.Pointer(unsafe.SliceData(b)))
}

// Set replaces the value. During a run the write is deferred unless the
// value already exists.
func (s *Singleton[T]) Set(value T) {
	s.world.Set(s.world.singleton, s.component, valueBytes(&value))
}

// Exists reports whether the world holds a T.
func (s *Singleton[T]) Exists() bool {
	return s.world.Owns(s.world.singleton, s.component)
}

// Component returns the component id of T.
func (s *Singleton[T]) Component() EntityId {
	return s.component
}

// Entity returns the entity holding every singleton of the world.
func (s *Singleton[T]) Entity() EntityId {
	return s.world.singleton
}
