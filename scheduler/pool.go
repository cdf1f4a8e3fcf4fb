// Package scheduler implements the dependency-aware worker pool (spec C1):
// a fixed-size pool of workers repeatedly scanning a shared pending deque
// front-to-back for the first task whose predecessors are Done and whose
// GPU requirement the single GPU slot can satisfy.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"focusstack/imgtask"
	"focusstack/logsink"
	"focusstack/mysync"
)

// watchdogInterval is how often an untimed WaitAll checks for orphaned
// dependencies, per spec §4.1.
const watchdogInterval = 10 * time.Second

// Pool is the fixed-size worker pool driving the task graph.
type Pool struct {
	logger imgtask.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	pending  *ringBuffer
	running  map[imgtask.Task]struct{}
	total    int
	completed int
	failed   bool
	failErr  error
	shutdown bool

	gpuSlot mysync.TASLock

	workersWG sync.WaitGroup
}

// New creates a Pool with nWorkers goroutines. nWorkers is clamped to at
// least 1.
func New(nWorkers int, logger imgtask.Logger) *Pool {
	if nWorkers < 1 {
		nWorkers = 1
	}
	if logger == nil {
		logger = logsink.StdSink(discardWriter{}, logsink.Error)
	}
	p := &Pool{
		logger:  logger,
		pending: newRingBuffer(4),
		running: make(map[imgtask.Task]struct{}),
		gpuSlot: mysync.NewTasLock(),
	}
	p.cond = sync.NewCond(&p.mu)

	p.workersWG.Add(nWorkers)
	for i := 0; i < nWorkers; i++ {
		go p.workerLoop(i)
	}
	return p
}

type discardWriter struct{}

func (discardWriter) Write(b []byte) (int, error) { return len(b), nil }

// Add appends a task to the pending deque and wakes all workers. No-op
// if the pool is shutting down.
func (p *Pool) Add(t imgtask.Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shutdown {
		return
	}
	p.pending.PushBack(t)
	p.total++
	p.cond.Broadcast()
}

// Prepend priority-inserts a task at the front of the pending deque.
func (p *Pool) Prepend(t imgtask.Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shutdown {
		return
	}
	p.pending.PushFront(t)
	p.total++
	p.cond.Broadcast()
}

// GetStatus returns a snapshot of (total, completed) tasks, for progress
// reporting.
func (p *Pool) GetStatus() (total, completed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total, p.completed
}

// WaitAll blocks until the pending queue drains or a task fails. A
// negative timeout waits indefinitely (and runs the deadlock watchdog);
// timeout >= 0 returns without unwinding once it elapses, even if work
// remains.
func (p *Pool) WaitAll(timeout time.Duration) (success bool, errMsg string) {
	done := make(chan struct{})
	go func() {
		p.mu.Lock()
		for p.pending.Len() > 0 || len(p.running) > 0 {
			if p.failed {
				break
			}
			p.cond.Wait()
		}
		p.mu.Unlock()
		close(done)
	}()

	var watchdogStop chan struct{}
	if timeout < 0 {
		watchdogStop = make(chan struct{})
		go p.runWatchdog(watchdogStop)
		defer close(watchdogStop)
	}

	if timeout >= 0 {
		select {
		case <-done:
		case <-time.After(timeout):
			return true, ""
		}
	} else {
		<-done
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failed {
		return false, p.failErr.Error()
	}
	return true, ""
}

// Shutdown clears the deque, flips the shutdown flag, wakes all workers
// and joins them.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.shutdown = true
	p.pending.Clear()
	p.cond.Broadcast()
	p.mu.Unlock()
	p.workersWG.Wait()
}

// runWatchdog periodically verifies every pending task's dependencies are
// Done, Running, or themselves pending — an orphan indicates an
// orchestrator bug and is logged at error level (TaskDependencyMissing).
func (p *Pool) runWatchdog(stop <-chan struct{}) {
	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.checkOrphans()
		}
	}
}

func (p *Pool) checkOrphans() {
	p.mu.Lock()
	scheduled := make(map[imgtask.Task]struct{}, p.pending.Len()+len(p.running))
	for i := 0; i < p.pending.Len(); i++ {
		scheduled[p.pending.At(i)] = struct{}{}
	}
	for t := range p.running {
		scheduled[t] = struct{}{}
	}
	pendingSnapshot := make([]imgtask.Task, p.pending.Len())
	for i := range pendingSnapshot {
		pendingSnapshot[i] = p.pending.At(i)
	}
	p.mu.Unlock()

	for _, t := range pendingSnapshot {
		for _, d := range t.DependsOn() {
			if d.IsDone() {
				continue
			}
			if _, ok := scheduled[d]; !ok {
				p.logger.Errorf("TaskDependencyMissing: task %q depends on unscheduled %q", t.Name(), d.Name())
			}
		}
	}
}

// workerLoop is the per-worker run loop: scan the pending deque
// front-to-back for the first ready (and, if GPU-bound, GPU-available)
// task; on exhaustion, wait on the pool's condition variable. Workers
// share one deque and scan it rather than stealing from each other.
func (p *Pool) workerLoop(id int) {
	defer p.workersWG.Done()
	for {
		task, gpuClaimed := p.acquireNext()
		if task == nil {
			return // shutdown, or a failed run with nothing left running
		}

		err := task.Run(p.logger)

		if gpuClaimed {
			p.gpuSlot.Unlock()
		}

		p.mu.Lock()
		delete(p.running, task)
		p.completed++
		if err != nil && !p.failed {
			p.failed = true
			p.failErr = fmt.Errorf("task %q failed: %w", task.Name(), err)
		}
		p.cond.Broadcast()
		p.mu.Unlock()
	}
}

// acquireNext blocks until either a runnable task is found and removed
// from the pending deque (returning it, plus whether this call claimed
// the GPU slot for it) or there is nothing left to dispatch (returning
// nil, false): the pool is shut down, or a task has failed and no other
// task is still running.
func (p *Pool) acquireNext() (imgtask.Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		if p.shutdown {
			return nil, false
		}
		if p.failed {
			// Let in-flight work finish but stop dispatching new tasks.
			if len(p.running) == 0 {
				return nil, false
			}
		} else {
			for i := 0; i < p.pending.Len(); i++ {
				t := p.pending.At(i)
				if !t.ReadyToRun() {
					continue
				}
				gpuClaimed := false
				if t.UsesGPU() {
					if !p.gpuSlot.TryLock() {
						continue
					}
					gpuClaimed = true
				}
				p.pending.RemoveAt(i)
				p.running[t] = struct{}{}
				return t, gpuClaimed
			}
		}
		p.cond.Wait()
	}
}
