package ecs

import (
	"sync"

	"github.com/rotisserie/eris"
)

// workerPool is a fixed set of goroutines parked on their task channels
// between runs. The calling goroutine always executes the first task itself.
type workerPool struct {
	workers []*worker
	wg      sync.WaitGroup
	closed  sync.WaitGroup
}

type worker struct {
	index int
	tasks chan func()

	panicked any
	failed   bool
}

func newWorkerPool(n int) *workerPool {
	p := &workerPool{}
	for i := 0; i < n; i++ {
		wk := &worker{index: i + 1, tasks: make(chan func())}
		p.workers = append(p.workers, wk)
		p.closed.Add(1)
		go p.loop(wk)
	}
	return p
}

// size returns the number of executors, the calling goroutine included.
func (p *workerPool) size() int {
	return len(p.workers) + 1
}

func (p *workerPool) loop(wk *worker) {
	defer p.closed.Done()
	for task := range wk.tasks {
		wk.panicked, wk.failed = protect(task)
		p.wg.Done()
	}
}

// run executes tasks[0] on the calling goroutine and the rest on workers, and
// returns once all of them completed. A panic in any task is re-raised here
// after every task finished.
func (p *workerPool) run(tasks []func()) {
	if len(tasks) == 0 {
		return
	}
	if len(tasks) > p.size() {
		invariant(ErrInvalidThreads, "%d tasks for %d executors", len(tasks), p.size())
	}

	dispatched := p.workers[:len(tasks)-1]
	p.wg.Add(len(dispatched))
	for i, wk := range dispatched {
		wk.tasks <- tasks[i+1]
	}

	mainPanic, mainFailed := protect(tasks[0])
	p.wg.Wait()

	if mainFailed {
		panic(mainPanic)
	}
	for _, wk := range dispatched {
		if wk.failed {
			panic(eris.Wrapf(ErrWorkerPanic, "worker %d: %v", wk.index, wk.panicked))
		}
	}
}

func (p *workerPool) close() {
	for _, wk := range p.workers {
		close(wk.tasks)
	}
	p.closed.Wait()
}

func protect(task func()) (panicked any, failed bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked, failed = r, true
		}
	}()
	task()
	return nil, false
}
