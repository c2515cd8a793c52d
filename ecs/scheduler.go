package ecs

import (
	"context"
	"sync"
	"time"
)

// SchedulerStats provides statistics about system execution.
type SchedulerStats struct {
	SystemCount     int
	TotalExecutions int64
	Systems         []SystemStats
}

// SystemStats provides execution statistics for a single system.
type SystemStats struct {
	Name           string
	Kind           SystemKind
	ExecutionCount int64
	MinDuration    time.Duration
	MaxDuration    time.Duration
	AvgDuration    time.Duration
	LastDuration   time.Duration
	TotalDuration  time.Duration
}

type systemStatsInternal struct {
	mu             sync.Mutex
	name           string
	executionCount int64
	minDuration    time.Duration
	maxDuration    time.Duration
	totalDuration  time.Duration
	lastDuration   time.Duration
}

func (st *systemStatsInternal) record(d time.Duration) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.executionCount++
	st.lastDuration = d
	st.totalDuration += d
	if d < st.minDuration {
		st.minDuration = d
	}
	if d > st.maxDuration {
		st.maxDuration = d
	}
}

func (st *systemStatsInternal) snapshot(kind SystemKind) SystemStats {
	st.mu.Lock()
	defer st.mu.Unlock()

	out := SystemStats{
		Name:           st.name,
		Kind:           kind,
		ExecutionCount: st.executionCount,
		MaxDuration:    st.maxDuration,
		LastDuration:   st.lastDuration,
		TotalDuration:  st.totalDuration,
	}
	if st.executionCount > 0 {
		out.MinDuration = st.minDuration
		out.AvgDuration = st.totalDuration / time.Duration(st.executionCount)
	}
	return out
}

// RunOptions narrows a single RunSystemWith call.
type RunOptions struct {
	DeltaTime float64
	// Param overrides the system's Param when non-nil.
	Param any
	// Offset skips that many matched rows, counted across tables.
	Offset int
	// Limit caps the number of rows processed. Zero means no limit.
	Limit int
	// Filter additionally requires every id of the family on each table.
	Filter Family
}

// RunSystem runs a system once over all of its matched rows and returns the
// entity passed to Iter.Interrupt, or 0.
func (w *World) RunSystem(id EntityId, dt float64, param any) EntityId {
	return w.RunSystemWith(id, RunOptions{DeltaTime: dt, Param: param})
}

// RunSystemWith runs a system once with the given options. Structural changes
// made by the action are merged before it returns.
//
// Called from inside another system's action, the system runs inline on the
// calling goroutine and its changes merge together with the outer run.
func (w *World) RunSystemWith(id EntityId, opts RunOptions) EntityId {
	s := w.mustSystem(id)
	if w.deferring() {
		return w.execute(s, opts, w.deferred, false)
	}

	var interrupted EntityId
	w.runFrame(func() {
		interrupted = w.execute(s, opts, w.stages[0], true)
	})
	return interrupted
}

// Progress runs every enabled OnFrame system once, in registration order,
// and merges their structural changes at the end of the frame. Systems with a
// Period only run once enough time accumulated.
func (w *World) Progress(dt float64) {
	w.assertNotInProgress()
	w.runFrame(func() {
		for _, s := range w.frameSystems {
			if !s.shouldRun(dt) {
				continue
			}
			w.execute(s, RunOptions{DeltaTime: dt}, w.stages[0], true)
		}
	})
}

// Run calls Progress at the given interval until the context is cancelled.
func (w *World) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			dt := now.Sub(lastTime).Seconds()
			lastTime = now
			w.Progress(dt)
		}
	}
}

// runFrame executes fn with the gate held shared and every mutation
// deferred, then merges all stages with the gate held exclusively. A panic
// raised by fn propagates after the buffered changes were discarded.
func (w *World) runFrame(fn func()) {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	if w.closed.Load() {
		invariant(ErrWorldClosed, "run")
	}

	func() {
		w.gate.RLock()
		w.deferDepth.Add(1)
		defer func() {
			w.deferDepth.Add(-1)
			w.gate.RUnlock()
			if r := recover(); r != nil {
				w.discardStages()
				panic(r)
			}
		}()
		fn()
	}()

	w.gate.Lock()
	defer w.gate.Unlock()
	w.mergeStages()
}

func (w *World) discardStages() {
	for _, s := range w.stages {
		s.reset()
	}
	w.deferred.reset()
	w.logger.Warn().Msg("run panicked, buffered changes discarded")
}

func (s *System) shouldRun(dt float64) bool {
	if !s.enabled {
		return false
	}
	if s.period <= 0 {
		return true
	}
	s.timePassed += dt
	if s.timePassed < s.period {
		return false
	}
	s.timePassed -= s.period
	if s.timePassed > s.period {
		s.timePassed = 0
	}
	return true
}

// execute runs s over its matched rows. Parallel systems are split across
// the pool when pooled is set; otherwise every row runs on the caller with
// the given stage.
func (w *World) execute(s *System, opts RunOptions, stage *Stage, pooled bool) EntityId {
	if !s.enabled {
		return 0
	}
	start := time.Now()
	defer func() { s.stats.record(time.Since(start)) }()

	param := opts.Param
	if param == nil {
		param = s.param
	}

	if !s.needsTables {
		it := &Iter{world: w, system: s, stage: stage, DeltaTime: opts.DeltaTime, Param: param}
		it.setSegment(s.task, 0, 0)
		s.action(it)
		return it.interruptedBy
	}

	threads := 1
	if pooled && s.parallel {
		threads = w.threads
	}

	var slices []tableSlice
	var jobs []job
	if pooled {
		slices, jobs = w.cachedJobs(s, opts, threads)
	} else {
		slices = w.sliceTables(s, opts, nil)
		jobs = partition(sliceCounts(slices), 1)
	}

	if len(jobs) <= 1 {
		if len(jobs) == 0 {
			return 0
		}
		return w.runJob(s, slices, jobs[0], stage, opts.DeltaTime, param)
	}

	results := make([]EntityId, len(jobs))
	tasks := make([]func(), len(jobs))
	for i := range jobs {
		tasks[i] = func() {
			results[i] = w.runJob(s, slices, jobs[i], w.stages[i], opts.DeltaTime, param)
		}
	}
	w.pool.run(tasks)

	for _, e := range results {
		if e != 0 {
			return e
		}
	}
	return 0
}

// cachedJobs returns the partition of s for these options, rebuilding it
// only when the matched tables, their row counts or the thread count changed.
func (w *World) cachedJobs(s *System, opts RunOptions, threads int) ([]tableSlice, []job) {
	key := jobKey{
		topology: s.topology,
		version:  w.store.version,
		threads:  threads,
		offset:   opts.Offset,
		limit:    opts.Limit,
		filter:   opts.Filter,
	}
	if s.jobs.valid && s.jobs.key == key {
		return s.jobs.slices, s.jobs.jobs
	}

	s.jobs.slices = w.sliceTables(s, opts, s.jobs.slices[:0])
	s.jobs.jobs = partition(sliceCounts(s.jobs.slices), threads)
	s.jobs.key = key
	s.jobs.valid = true
	return s.jobs.slices, s.jobs.jobs
}

// sliceTables applies the run filter, offset and limit to the active tables
// of s, in table list order.
func (w *World) sliceTables(s *System, opts RunOptions, dst []tableSlice) []tableSlice {
	offset, limit := opts.Offset, opts.Limit

	for _, mt := range s.tables {
		if opts.Filter != EmptyFamily && w.families.Contains(mt.table.family, opts.Filter, true, true) == 0 {
			continue
		}

		first, count := 0, mt.table.Count()
		if offset > 0 {
			if offset >= count {
				offset -= count
				continue
			}
			first = offset
			count -= offset
			offset = 0
		}
		if opts.Limit > 0 {
			if limit == 0 {
				break
			}
			count = min(count, limit)
			limit -= count
		}
		if count > 0 {
			dst = append(dst, tableSlice{mt: mt, first: first, count: count})
		}
	}
	return dst
}

func sliceCounts(slices []tableSlice) []int {
	counts := make([]int, len(slices))
	for i, sl := range slices {
		counts[i] = sl.count
	}
	return counts
}

// runJob invokes the action once per table segment of j. References are
// resolved again for every segment. It stops after the segment in which the
// action called Interrupt.
func (w *World) runJob(s *System, slices []tableSlice, j job, stage *Stage, dt float64, param any) EntityId {
	it := &Iter{
		world:       w,
		system:      s,
		stage:       stage,
		DeltaTime:   dt,
		Param:       param,
		FrameOffset: j.frameOffset,
	}

	remaining, row := j.count, j.row
	for t := j.table; remaining > 0 && t < len(slices); t++ {
		sl := slices[t]
		n := min(sl.count-row, remaining)
		it.setSegment(sl.mt, sl.first+row, n)
		s.action(it)

		if it.interruptedBy != 0 {
			return it.interruptedBy
		}
		remaining -= n
		row = 0
		it.FrameOffset += n
		it.TableOffset++
	}
	return 0
}

// GetStats returns statistics about system execution.
func (w *World) GetStats() *SchedulerStats {
	stats := &SchedulerStats{
		SystemCount: len(w.systems),
		Systems:     make([]SystemStats, len(w.systems)),
	}

	var totalExecs int64
	for i, s := range w.systems {
		stats.Systems[i] = s.stats.snapshot(s.kind)
		totalExecs += stats.Systems[i].ExecutionCount
	}

	stats.TotalExecutions = totalExecs
	return stats
}
