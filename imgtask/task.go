// Package imgtask defines the uniform task contract shared by every node
// in the focus-stacking dependency graph: load, grayscale, align, wavelet,
// merge, reassign, depth and save.
package imgtask

import (
	"path/filepath"
	"sync"

	"focusstack/geom"

	"github.com/pkg/errors"
)

// State is a task's lifecycle state. Transitions are monotonic: a task
// never re-enters Pending.
type State int

const (
	Pending State = iota
	Running
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Task is the uniform contract every scheduler node satisfies.
//
// ReadyToRun reports whether every predecessor has completed (some tasks,
// e.g. a streaming Load, override the default to also gate on external
// conditions). Run executes the task body at most once; it is safe to
// call concurrently. ValidArea/LimitValidArea propagate the cropping
// invariant that every transformation narrows its output's valid region.
type Task interface {
	Name() string
	Basename() string
	Index() int
	UsesGPU() bool
	ReadyToRun() bool
	Run(logger Logger) error
	State() State
	IsDone() bool
	ValidArea() geom.Rect
	LimitValidArea(geom.Rect)
	DependsOn() []Task
}

// Logger is the minimal logging capability a task body needs. It is
// satisfied by logsink.Sink; declared here to avoid an import cycle.
type Logger interface {
	Verbosef(format string, args ...any)
	Progressf(format string, args ...any)
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// Base is an embeddable implementation of the uniform bookkeeping every
// task needs: state transitions, the run-once mutex, dependency handles
// and valid-area tracking. Concrete task types embed Base and pass a
// `body func() error` to Base.RunOnce from their own Run method.
type Base struct {
	NameStr  string
	FileName string
	Idx      int
	GPU      bool

	mu      sync.Mutex
	state   State
	area    geom.Rect
	areaSet bool
	deps    []Task
}

// NewBase constructs a Base with the given dependencies. Dependencies are
// copied into an owned slice so the caller's slice may be reused.
func NewBase(name, filename string, index int, usesGPU bool, deps []Task) Base {
	owned := make([]Task, len(deps))
	copy(owned, deps)
	return Base{NameStr: name, FileName: filename, Idx: index, GPU: usesGPU, deps: owned}
}

func (b *Base) Name() string { return b.NameStr }

// Basename returns the filename tail without directory, matching the
// teacher's WriteToFile/CreateTasks path conventions.
func (b *Base) Basename() string {
	if b.FileName == "" {
		return b.NameStr
	}
	return filepath.Base(b.FileName)
}

func (b *Base) Index() int   { return b.Idx }
func (b *Base) UsesGPU() bool { return b.GPU }

// DependsOn returns the (possibly nil) dependency slice. Once Run drops
// references on success the slice becomes empty — predecessors may then
// be collected once no other consumer still holds them.
func (b *Base) DependsOn() []Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deps
}

// ReadyToRun is the default readiness predicate: every dependency is Done.
// Tasks that need additional gating (e.g. a streaming Load waiting on a
// file to appear) override this in their own type.
func (b *Base) ReadyToRun() bool {
	b.mu.Lock()
	deps := b.deps
	b.mu.Unlock()
	for _, d := range deps {
		if !d.IsDone() {
			return false
		}
	}
	return true
}

func (b *Base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Base) IsDone() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == Done || b.state == Failed
}

// ValidArea defaults to the zero rect until SetValidArea/LimitValidArea
// narrows it; callers that need "whole buffer" semantics should call
// SetValidArea with the buffer bounds once the output is known.
func (b *Base) ValidArea() geom.Rect {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.area
}

func (b *Base) SetValidArea(r geom.Rect) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.area = r
	b.areaSet = true
}

// LimitValidArea intersects the stored rect with other, narrowing it.
// Every stage calls this to propagate cropping from its inputs.
func (b *Base) LimitValidArea(other geom.Rect) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.areaSet {
		b.area = other
		b.areaSet = true
		return
	}
	b.area = b.area.Intersect(other)
}

// RunOnce executes body at most once, guarded by the task's own mutex, as
// required by invariant I2. It sets Done (or Failed) even when body
// returns an error, so dependents never stall on a failed predecessor,
// and it drops the dependency handles on success so their buffers can be
// collected once every consumer has completed.
func (b *Base) RunOnce(body func() error) error {
	b.mu.Lock()
	if b.state != Pending {
		// Already run (or running); a concurrent caller observes the
		// same outcome per I2 — block until the first caller finishes.
		for b.state == Running {
			b.mu.Unlock()
			b.mu.Lock()
		}
		failed := b.state == Failed
		b.mu.Unlock()
		if failed {
			return errors.Errorf("task %q failed", b.NameStr)
		}
		return nil
	}
	b.state = Running
	b.mu.Unlock()

	err := body()

	b.mu.Lock()
	if err != nil {
		b.state = Failed
	} else {
		b.state = Done
		b.deps = nil
	}
	b.mu.Unlock()

	if err != nil {
		return errors.Wrapf(err, "task %q failed", b.NameStr)
	}
	return nil
}
