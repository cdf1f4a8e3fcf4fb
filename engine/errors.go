package engine

import "github.com/pkg/errors"

// The error kinds surfaced by the engine (spec §7). Engine.Run returns a
// ConfigError (built by validate below) for a rejected configuration and
// a TaskException for a failed task graph; LoadFailure, AlignFailure,
// TaskDependencyMissing and GpuUnavailable are declared here but not
// constructed anywhere in the module.

type LoadFailure struct {
	Path string
	Err  error
}

func (e *LoadFailure) Error() string {
	return errors.Wrapf(e.Err, "load failure: %s", e.Path).Error()
}
func (e *LoadFailure) Unwrap() error { return e.Err }

type AlignFailure struct {
	Index int
}

func (e *AlignFailure) Error() string {
	return errors.Errorf("align failure at index %d: ECC did not converge", e.Index).Error()
}

type TaskDependencyMissing struct {
	Name string
}

func (e *TaskDependencyMissing) Error() string {
	return errors.Errorf("task dependency missing: %s", e.Name).Error()
}

type GpuUnavailable struct{}

func (e *GpuUnavailable) Error() string { return "GPU unavailable, falling back to CPU" }

type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "config error: " + e.Msg }

type TaskException struct {
	TaskName string
	Message  string
}

func (e *TaskException) Error() string {
	return errors.Errorf("task %q failed: %s", e.TaskName, e.Message).Error()
}

// validate checks the construction-time inconsistencies spec §7 calls
// out as genuine ConfigErrors (as opposed to the reference-index case,
// which is silently rewritten to the middle rather than rejected).
func (c Config) validate(imageCount int) error {
	if imageCount < 2 {
		return &ConfigError{Msg: "at least 2 input images are required"}
	}
	if c.Depthmap != "" && c.MaxDepthUnset() {
		return &ConfigError{Msg: "depthmap output requested but max-depth is not set"}
	}
	if c.ThreeDView != "" && c.MaxDepthUnset() {
		return &ConfigError{Msg: "3d-view output requested but max-depth is not set"}
	}
	return nil
}

func (c Config) MaxDepthUnset() bool { return c.MaxDepth <= 0 }
