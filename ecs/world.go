package ecs

import (
	"sync"
	"sync/atomic"

	"github.com/kamstrup/intmap"
	"github.com/rs/zerolog"
)

// World owns entities, components, families, tables and systems.
//
// Direct mutations take the gate exclusively. While systems run the gate is
// held shared and every mutation is buffered in a Stage, which is merged once
// all executors finished.
type World struct {
	ids        *identifierRegistry
	components *componentRegistry
	families   *FamilyRegistry
	store      *tableStore

	systems      []*System
	systemById   *intmap.Map[EntityId, *System]
	frameSystems []*System
	rowSystems   []*System
	triggers     []familyTriggers

	pool     *workerPool
	stages   []*Stage
	deferred *Stage
	threads  int

	gate       sync.RWMutex
	runMu      sync.Mutex
	deferDepth atomic.Int32
	closed     atomic.Bool

	logger zerolog.Logger

	// Prefab marks entities that only serve as InstanceOf bases.
	Prefab EntityId
	// Disabled hides an entity from systems that did not opt in.
	Disabled EntityId

	singleton    EntityId
	singletonTag EntityId
}

type config struct {
	threads  int
	logger   zerolog.Logger
	capacity int
}

// Option configures a World.
type Option func(*config)

// WithThreads sets the number of executors used by parallel systems, the
// calling goroutine included. Values below 1 are treated as 1.
func WithThreads(n int) Option {
	return func(c *config) { c.threads = max(n, 1) }
}

// WithLogger sets the logger used for debug events.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithTableCapacity sets the number of rows a table reserves when it first
// grows.
func WithTableCapacity(n int) Option {
	return func(c *config) { c.capacity = max(n, 1) }
}

// New creates an empty world.
func New(opts ...Option) *World {
	cfg := config{threads: 1, logger: zerolog.Nop(), capacity: 8}
	for _, opt := range opts {
		opt(&cfg)
	}

	w := &World{
		ids:        newIdentifierRegistry(1024),
		components: newComponentRegistry(),
		systemById: intmap.New[EntityId, *System](32),
		logger:     cfg.logger,
	}
	w.families = newFamilyRegistry(w.familyOf)
	w.store = newTableStore(w.ids, w.components, w.families, cfg.capacity)
	w.store.onNewTable = append(w.store.onNewTable, w.onNewTable)
	w.store.onActivate = w.onActivate
	w.families.OnNewFamily(w.onNewFamily)
	w.deferred = newStage(w)

	w.Prefab = w.NewTag("Prefab")
	w.Disabled = w.NewTag("Disabled")
	w.singletonTag = w.NewTag("Singleton")
	w.singleton = w.ids.newId()

	w.configureThreads(cfg.threads)
	return w
}

// Close stops the worker pool. The world must not be used afterwards.
func (w *World) Close() {
	if w.closed.Swap(true) {
		return
	}
	w.runMu.Lock()
	defer w.runMu.Unlock()
	if w.pool != nil {
		w.pool.close()
		w.pool = nil
	}
}

// Threads returns the configured number of executors.
func (w *World) Threads() int {
	return w.threads
}

// SetThreadCount resizes the worker pool. It fails with ErrInProgress when
// called while systems run.
func (w *World) SetThreadCount(n int) error {
	if n < 1 {
		return ErrInvalidThreads
	}
	if w.deferring() || !w.runMu.TryLock() {
		return ErrInProgress
	}
	defer w.runMu.Unlock()
	if w.closed.Load() {
		return ErrWorldClosed
	}

	w.configureThreads(n)
	return nil
}

func (w *World) configureThreads(n int) {
	if w.pool != nil && w.pool.size() == n {
		return
	}
	if w.pool != nil {
		w.pool.close()
	}
	w.pool = newWorkerPool(n - 1)
	for len(w.stages) < n {
		w.stages = append(w.stages, newStage(w))
	}
	w.threads = n
	w.logger.Debug().Int("threads", n).Msg("thread count changed")
}

// deferring reports whether mutations must be buffered instead of applied.
func (w *World) deferring() bool {
	return w.deferDepth.Load() > 0
}

func (w *World) assertNotInProgress() {
	if w.deferring() {
		invariant(ErrInProgress, "operation is not allowed while systems run")
	}
}

// flushDeferred merges the world stage until event systems stop producing
// new work. The gate must be held exclusively.
func (w *World) flushDeferred() {
	for !w.deferred.empty() {
		n := w.deferred.merge()
		w.logger.Debug().Int("operations", n).Msg("world stage merged")
	}
}

// mergeStages applies every executor stage in order, then the world stage.
// The gate must be held exclusively.
func (w *World) mergeStages() {
	total := 0
	for _, s := range w.stages {
		if !s.empty() {
			total += s.merge()
		}
	}
	w.flushDeferred()
	if total > 0 {
		w.logger.Debug().Int("operations", total).Int("stages", len(w.stages)).Msg("stages merged")
	}
}

// Families returns the family registry.
func (w *World) Families() *FamilyRegistry {
	return w.families
}

// Tables returns every table in creation order. The slice must not be
// modified.
func (w *World) Tables() []*Table {
	return w.store.tables
}

// TableFor returns the table of f, or nil if no entity ever had that family.
func (w *World) TableFor(f Family) *Table {
	return w.store.find(f)
}

// SingletonEntity returns the entity holding Singleton values.
func (w *World) SingletonEntity() EntityId {
	return w.singleton
}

// CheckInvariants panics if any table's columns disagree with its rows, or
// any row disagrees with its entity's recorded location.
func (w *World) CheckInvariants() {
	for _, t := range w.store.tables {
		t.checkInvariants()
		for row, e := range t.entities {
			rec, ok := w.ids.location(e)
			if !ok || rec.table != t || int(rec.row) != row {
				invariant(ErrColumnMismatch, "entity %v at row %d of table %d has location %+v", e, row, t.id, rec)
			}
		}
	}
}
