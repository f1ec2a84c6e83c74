package engine

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool manages a pool of workers bounding the per-bot fan-out
// of an evaluation cycle.
type WorkerPool struct {
	workers    int
	taskQueue  chan func()
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	running    atomic.Bool
	tasksTotal atomic.Uint64
	tasksDone  atomic.Uint64
}

// NewWorkerPool creates a new worker pool with the specified number of
// workers. If workers is 0, it defaults to runtime.NumCPU().
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		workers:   workers,
		taskQueue: make(chan func(), workers*100),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start starts the worker pool.
func (p *WorkerPool) Start() {
	if p.running.Swap(true) {
		return // Already running
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case task := <-p.taskQueue:
			task()
			p.tasksDone.Add(1)
		}
	}
}

// Submit submits a task to the worker pool. Returns false if the pool
// is not running or the queue is full.
func (p *WorkerPool) Submit(task func()) bool {
	if !p.running.Load() {
		return false
	}

	select {
	case <-p.ctx.Done():
		return false
	case p.taskQueue <- task:
		p.tasksTotal.Add(1)
		return true
	default:
		return false // Queue full
	}
}

// Stop stops the worker pool and waits for all workers to finish.
// The queue is never closed; workers exit on context cancellation,
// which keeps a concurrent Submit safe.
func (p *WorkerPool) Stop() {
	if !p.running.Swap(false) {
		return // Not running
	}

	p.cancel()
	p.wg.Wait()
}

// Stats returns the number of tasks submitted and completed so far.
func (p *WorkerPool) Stats() (submitted, completed uint64) {
	return p.tasksTotal.Load(), p.tasksDone.Load()
}
