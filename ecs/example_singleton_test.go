package ecs_test

import (
	"fmt"

	"github.com/plus3/archon/ecs"
)

type GameConfig struct {
	MaxPlayers int
	Difficulty int
}

type GameTime struct {
	TotalFrames int
	TotalTime   float64
}

type ScoreTracker struct {
	Points int
}

// ExampleNewSingleton demonstrates creating and accessing singleton values.
// Singletons belong to the world rather than to a game entity, useful for
// game state or configuration.
func ExampleNewSingleton() {
	w := ecs.New()
	defer w.Close()

	config := ecs.NewSingleton[GameConfig](w, GameConfig{MaxPlayers: 4, Difficulty: 1})
	fmt.Printf("Config: %d players, difficulty %d\n", config.Get().MaxPlayers, config.Get().Difficulty)

	config.Get().Difficulty = 3
	fmt.Printf("Updated difficulty: %d\n", config.Get().Difficulty)

	// A second accessor refers to the same value and ignores its initializer.
	same := ecs.NewSingleton[GameConfig](w, GameConfig{})
	fmt.Printf("Same config: difficulty %d\n", same.Get().Difficulty)

	// Output:
	// Config: 4 players, difficulty 1
	// Updated difficulty: 3
	// Same config: difficulty 3
}

// ExampleSingleton_systems shows systems reading singletons through
// FromEntity terms on the world's singleton entity.
func ExampleSingleton_systems() {
	w, c := newTestWorld()
	defer w.Close()

	gameTime := ecs.NewSingleton[GameTime](w)
	score := ecs.NewSingleton[ScoreTracker](w)

	spawn(w, Position{X: 0}, nil)
	spawn(w, Position{X: 10}, nil)
	spawn(w, Position{X: 20}, nil)

	_, err := w.RegisterSystem(ecs.SystemDesc{
		Name:  "TimeTracker",
		Terms: []ecs.Term{ecs.FromEntity(gameTime.Entity(), gameTime.Component())},
	}, func(it *ecs.Iter) {
		t := ecs.Ref[GameTime](it, 0)
		t.TotalFrames++
		t.TotalTime += it.DeltaTime
	}, ecs.KindOnFrame)
	if err != nil {
		panic(err)
	}

	_, err = w.RegisterSystem(ecs.SystemDesc{
		Name: "Score",
		Terms: []ecs.Term{
			ecs.With(c.Position),
			ecs.FromEntity(score.Entity(), score.Component()),
		},
	}, func(it *ecs.Iter) {
		ecs.Ref[ScoreTracker](it, 1).Points += it.Count() * 10
	}, ecs.KindOnFrame)
	if err != nil {
		panic(err)
	}

	w.Progress(0.016)
	w.Progress(0.016)
	w.Progress(0.016)

	fmt.Printf("Frames: %d, Time: %.3f\n", gameTime.Get().TotalFrames, gameTime.Get().TotalTime)
	fmt.Printf("Score: %d points\n", score.Get().Points)

	// Output:
	// Frames: 3, Time: 0.048
	// Score: 90 points
}
