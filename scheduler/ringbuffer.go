package scheduler

import "focusstack/imgtask"

// ringBuffer is a mutex-guarded, power-of-two resizable buffer of pending
// tasks. It is the storage layer the Pool scans front-to-back to find
// the next runnable task.
//
// It keeps a doubling-capacity, modular-index storage scheme but drops
// any lock-free CAS protocol: dispatch here needs to scan for the
// *first* task satisfying a predicate and remove it from an arbitrary
// position, not LIFO/FIFO push/pop at the ends, so a single mutex
// guarding the whole buffer replaces per-end atomics.
type ringBuffer struct {
	logCapacity int
	tasks       []imgtask.Task
	head, count int
}

func newRingBuffer(initialLogCapacity int) *ringBuffer {
	return &ringBuffer{
		logCapacity: initialLogCapacity,
		tasks:       make([]imgtask.Task, 1<<initialLogCapacity),
	}
}

func (r *ringBuffer) capacity() int { return 1 << r.logCapacity }

func (r *ringBuffer) Len() int { return r.count }

func (r *ringBuffer) grow() {
	newCap := r.capacity() * 2
	newTasks := make([]imgtask.Task, newCap)
	for i := 0; i < r.count; i++ {
		newTasks[i] = r.tasks[(r.head+i)%r.capacity()]
	}
	r.logCapacity++
	r.tasks = newTasks
	r.head = 0
}

// PushBack appends a task at the logical end of the buffer (used by Add).
func (r *ringBuffer) PushBack(t imgtask.Task) {
	if r.count >= r.capacity() {
		r.grow()
	}
	idx := (r.head + r.count) % r.capacity()
	r.tasks[idx] = t
	r.count++
}

// PushFront inserts a task at the logical front (used by Prepend).
func (r *ringBuffer) PushFront(t imgtask.Task) {
	if r.count >= r.capacity() {
		r.grow()
	}
	r.head = (r.head - 1 + r.capacity()) % r.capacity()
	r.tasks[r.head] = t
	r.count++
}

// At returns the task at logical index i (0 is the front).
func (r *ringBuffer) At(i int) imgtask.Task {
	return r.tasks[(r.head+i)%r.capacity()]
}

// RemoveAt removes the task at logical index i, shifting subsequent
// entries down by one. Front-to-back scan order for the remaining
// entries is preserved.
func (r *ringBuffer) RemoveAt(i int) {
	cap := r.capacity()
	for j := i; j < r.count-1; j++ {
		r.tasks[(r.head+j)%cap] = r.tasks[(r.head+j+1)%cap]
	}
	r.tasks[(r.head+r.count-1)%cap] = nil
	r.count--
}

// Clear drops every pending task (used by Pool shutdown).
func (r *ringBuffer) Clear() {
	r.tasks = make([]imgtask.Task, r.capacity())
	r.head = 0
	r.count = 0
}
