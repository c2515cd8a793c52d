package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"runtime"
	"time"
	"unsafe"

	"github.com/pkg/profile"
	"github.com/rs/zerolog"

	"github.com/plus3/archon/ecs"
)

// payload is the layout of every generated component.
type payload struct {
	Value   float32
	Counter uint32
	_       [8]byte
}

func main() {
	duration := flag.Duration("duration", 10*time.Second, "The total duration the test should run for.")
	entityCount := flag.Int("entities", 10000, "The initial number of entities to create.")
	componentCount := flag.Int("components", 64, "The number of generated components.")
	systemCount := flag.Int("systems", 32, "The number of generated systems.")
	threads := flag.Int("threads", runtime.GOMAXPROCS(0), "Executors used by parallel systems.")
	churn := flag.Float64("churn", 0.001, "Probability per row and frame of a deferred add or remove.")
	profileMode := flag.String("profile", "", "Write a cpu or mem profile to the working directory.")
	verbose := flag.Bool("v", false, "Log world debug events to stderr.")
	gcPauseMetrics := flag.Bool("gc-pause-metrics", false, "Enable detailed GC pause metrics in the report.")
	flag.Parse()

	switch *profileMode {
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "":
	default:
		log.Fatalf("Unknown profile mode %q", *profileMode)
	}

	logger := zerolog.Nop()
	if *verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(zerolog.DebugLevel)
	}

	log.Println("Starting ECS stress test...")

	// 1. Setup the world, components and systems
	world := ecs.New(ecs.WithThreads(*threads), ecs.WithLogger(logger), ecs.WithTableCapacity(256))
	defer world.Close()

	rng := rand.New(rand.NewSource(1))
	components := registerComponents(world, *componentCount)
	registerSystems(world, rng, components, *systemCount, *churn)

	// 2. Populate the world with initial entities
	log.Printf("Populating world with %d entities...\n", *entityCount)
	for i := 0; i < *entityCount; i++ {
		// Spawn an entity with 1 to 5 random components
		spawnRandomEntity(world, rng, components, rng.Intn(5)+1)
	}
	log.Printf("Population complete: %d tables, %d families.\n", len(world.Tables()), world.Families().Len())

	// 3. Run the simulation loop
	report := &Report{
		Duration:       *duration,
		Entities:       *entityCount,
		Components:     *componentCount,
		Systems:        *systemCount,
		Threads:        *threads,
		GCPauseMetrics: *gcPauseMetrics,
		UpdateTime: Stats{
			Samples: make([]time.Duration, 0),
		},
	}

	runtime.ReadMemStats(&report.MemStatsStart)

	log.Printf("Running simulation for %s...\n", *duration)
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	startTime := time.Now()
	var totalUpdates int64
	lastFrameTime := time.Now()

Loop:
	for {
		select {
		case <-ctx.Done():
			break Loop
		default:
			deltaTime := time.Since(lastFrameTime)
			lastFrameTime = time.Now()

			updateStart := time.Now()
			world.Progress(deltaTime.Seconds())
			updateDuration := time.Since(updateStart)

			report.UpdateTime.Samples = append(report.UpdateTime.Samples, updateDuration)
			totalUpdates++
		}
	}

	report.TotalTime = time.Since(startTime)
	report.TotalUpdates = totalUpdates
	report.FinalEntities = world.Count()
	report.Storage = world.CollectStats()
	report.Scheduler = world.GetStats()
	report.UpdateTime.Finalize()
	runtime.ReadMemStats(&report.MemStatsEnd)

	log.Println("Simulation finished.")

	// 4. Generate Report to Console
	fmt.Println("\n\n--- Stress Test Report ---")
	if err := report.Generate(os.Stdout); err != nil {
		log.Fatalf("Failed to generate report: %v", err)
	}
	fmt.Println("--- End of Report ---")

	log.Println("Stress test complete.")
}

func registerComponents(world *ecs.World, n int) []ecs.EntityId {
	var p payload
	ids := make([]ecs.EntityId, n)
	for i := range ids {
		ids[i] = world.NewComponent(fmt.Sprintf("Component%03d", i), unsafe.Sizeof(p), unsafe.Alignof(p))
	}
	return ids
}

// registerSystems creates parallel OnFrame systems over one to three random
// components. Each bumps its first field and occasionally moves the entity to
// another table through the stage.
func registerSystems(world *ecs.World, rng *rand.Rand, components []ecs.EntityId, n int, churn float64) {
	for i := 0; i < n; i++ {
		want := min(rng.Intn(3)+1, len(components))
		terms := make([]ecs.Term, 0, want)
		seen := make(map[ecs.EntityId]bool)
		for len(terms) < want {
			c := components[rng.Intn(len(components))]
			if seen[c] {
				continue
			}
			seen[c] = true
			terms = append(terms, ecs.With(c))
		}

		extra := components[rng.Intn(len(components))]
		seed := rng.Int63()

		_, err := world.RegisterSystem(ecs.SystemDesc{
			Name:     fmt.Sprintf("System%03d", i),
			Terms:    terms,
			Parallel: true,
		}, func(it *ecs.Iter) {
			values := ecs.Field[payload](it, 0)
			local := rand.New(rand.NewSource(seed + int64(it.FrameOffset)))
			for row := range values {
				values[row].Value += float32(it.DeltaTime)
				values[row].Counter++
				if churn > 0 && local.Float64() < churn {
					e := it.Entity(row)
					if it.World().Owns(e, extra) {
						it.Remove(e, extra)
					} else {
						it.Add(e, extra)
					}
				}
			}
		}, ecs.KindOnFrame)
		if err != nil {
			log.Fatalf("Failed to register system %d: %v", i, err)
		}
	}
}

func spawnRandomEntity(world *ecs.World, rng *rand.Rand, components []ecs.EntityId, n int) ecs.EntityId {
	picked := make([]ecs.EntityId, 0, n)
	for range n {
		picked = append(picked, components[rng.Intn(len(components))])
	}
	return world.NewEntity(picked...)
}
