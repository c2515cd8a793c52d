package ecs_test

import (
	"testing"

	"github.com/plus3/archon/ecs"
)

func BenchmarkNewEntity(b *testing.B) {
	w, c := newTestWorld()
	defer w.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w.NewEntity(c.Position)
	}
}

func BenchmarkNewEntityWithMultipleComponents(b *testing.B) {
	w, c := newTestWorld()
	defer w.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w.NewEntity(c.Position, c.Velocity, c.Health, c.Player)
	}
}

func BenchmarkDelete(b *testing.B) {
	w, c := newTestWorld()
	defer w.Close()

	ids := make([]ecs.EntityId, b.N)
	for i := 0; i < b.N; i++ {
		ids[i] = w.NewEntity(c.Position)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w.Delete(ids[i])
	}
}

func BenchmarkGetComponent(b *testing.B) {
	w, _ := newTestWorld()
	defer w.Close()
	e := spawn(w, Position{X: 1, Y: 2}, &Velocity{DX: 3, DY: 4})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ecs.Get[Velocity](w, e)
	}
}

func BenchmarkSetComponent(b *testing.B) {
	w, _ := newTestWorld()
	defer w.Close()
	e := spawn(w, Position{}, nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ecs.Set(w, e, Position{X: float32(i)})
	}
}

func BenchmarkAddComponent(b *testing.B) {
	w, c := newTestWorld()
	defer w.Close()

	ids := make([]ecs.EntityId, b.N)
	for i := 0; i < b.N; i++ {
		ids[i] = w.NewEntity(c.Position)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w.Add(ids[i], c.Velocity)
	}
}

func BenchmarkRemoveComponent(b *testing.B) {
	w, c := newTestWorld()
	defer w.Close()

	ids := make([]ecs.EntityId, b.N)
	for i := 0; i < b.N; i++ {
		ids[i] = w.NewEntity(c.Position, c.Velocity)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w.Remove(ids[i], c.Velocity)
	}
}

func BenchmarkFamilyMerge(b *testing.B) {
	w, c := newTestWorld()
	defer w.Close()
	fr := w.Families()

	current := fr.FromIds(c.Position, c.Velocity, c.Health)
	toAdd := fr.FromIds(c.Mass, c.AI)
	toRemove := fr.FromIds(c.Velocity)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		fr.Merge(current, toAdd, toRemove)
	}
}

func BenchmarkMixedOperations(b *testing.B) {
	w, c := newTestWorld()
	defer w.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e := w.NewEntity(c.Position, c.Velocity)
		w.Add(e, c.Health)
		_ = ecs.Get[Position](w, e)
		w.Remove(e, c.Velocity)
		w.Delete(e)
	}
}

func benchMovementWorld(b *testing.B, threads, count int) (*ecs.World, ecs.EntityId) {
	w, c := newTestWorld(ecs.WithThreads(threads))

	for i := 0; i < count; i++ {
		e := w.NewEntity(c.Position, c.Velocity)
		ecs.Set(w, e, Velocity{DX: 1, DY: 1})
		if i%3 == 0 {
			w.Add(e, c.Health)
		}
	}

	id, err := w.RegisterSystem(ecs.SystemDesc{
		Name:     "Movement",
		Terms:    []ecs.Term{ecs.With(c.Position), ecs.With(c.Velocity)},
		Parallel: true,
	}, func(it *ecs.Iter) {
		pos := ecs.Field[Position](it, 0)
		vel := ecs.Field[Velocity](it, 1)
		for i := range pos {
			pos[i].X += vel[i].DX * float32(it.DeltaTime)
			pos[i].Y += vel[i].DY * float32(it.DeltaTime)
		}
	}, ecs.KindManual)
	if err != nil {
		b.Fatal(err)
	}
	return w, id
}

func BenchmarkRunSystemSerial(b *testing.B) {
	w, id := benchMovementWorld(b, 1, 100000)
	defer w.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w.RunSystem(id, 0.016, nil)
	}
}

func BenchmarkRunSystemParallel(b *testing.B) {
	w, id := benchMovementWorld(b, 8, 100000)
	defer w.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w.RunSystem(id, 0.016, nil)
	}
}

func BenchmarkProgressMultipleSystems(b *testing.B) {
	w, c := newTestWorld(ecs.WithThreads(4))
	defer w.Close()

	for i := 0; i < 1000; i++ {
		e := spawn(w, Position{}, &Velocity{DX: 1})
		ecs.Set(w, e, Health{Current: 100, Max: 100})
	}

	_, err := w.RegisterSystem(ecs.SystemDesc{
		Name:     "Movement",
		Terms:    []ecs.Term{ecs.With(c.Position), ecs.With(c.Velocity)},
		Parallel: true,
	}, func(it *ecs.Iter) {
		pos := ecs.Field[Position](it, 0)
		vel := ecs.Field[Velocity](it, 1)
		for i := range pos {
			pos[i].X += vel[i].DX
		}
	}, ecs.KindOnFrame)
	if err != nil {
		b.Fatal(err)
	}
	_, err = w.RegisterSystem(ecs.SystemDesc{
		Name:  "Health",
		Terms: []ecs.Term{ecs.With(c.Health)},
	}, func(it *ecs.Iter) {
		for i, h := range ecs.Field[Health](it, 0) {
			if h.Current < h.Max {
				ecs.Field[Health](it, 0)[i].Current++
			}
		}
	}, ecs.KindOnFrame)
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w.Progress(0.016)
	}
}
