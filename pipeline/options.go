// Package pipeline implements the Pipeline Orchestrator (spec C3): it
// wires the Load/Grayscale/Align/Wavelet/Merge/Reassign/Depth stages
// into one dependency graph per run and submits it to the scheduler.
package pipeline

import (
	"time"

	"focusstack/depth"
)

// Options mirrors the CLI/programmatic surface of spec §6 that bears on
// how the graph is built (output paths and codec/crop choices live in
// the engine package, one layer up).
type Options struct {
	Reference           int // -1 selects floor(count/2)
	GlobalAlign         bool
	FullResolutionAlign bool
	NoWhiteBalance      bool
	NoContrast          bool
	AlignOnly           bool
	AlignKeepSize       bool
	Consistency         int // 0, 1, or 2
	WaveletDenoise      float64 // soft-threshold level applied to merged detail coefficients, 0 disables

	DepthmapThreshold float64
	DepthSmoothXY     int
	DepthSmoothZ      float64
	HaloRadius        int
	RemoveBG          float64
	MaxDepth          float64
	NoiseLevel        float64
	DevThreshold      float32
	OutlierLimit      float64
	ConnectCount      int

	BatchSize  int
	Threads    int
	NoOpenCL   bool
	WaitImages time.Duration
	NoCrop     bool

	SaveSteps bool

	// GrayInput resolves the colour-path-vs-gray-path Open Question
	// (spec §9, reassignment contract) statically at configuration time:
	// whether the stack is single-channel, and so should merge through
	// GrayRangeMapTask/GrayClampTask, is otherwise only known once a
	// Load task actually decodes a file, by which point the rest of the
	// graph for that tick has already been wired.
	GrayInput bool
}

// Output is what the caller (engine), not the graph itself, decides:
// where final results land. Kept separate from Options so the graph-
// shape decisions above don't entangle with codec/path choices.
type Output struct {
	Path        string
	JPEGQuality int

	WantDepth bool
	DepthPath string

	ThreeDViewPath string
	ThreeDView     depth.Viewpoint
}

func (o Options) resolveReference(count int) int {
	if o.Reference >= 0 && o.Reference < count {
		return o.Reference
	}
	return count / 2
}

func (o Options) inpaintOptions() depth.InpaintOptions {
	return depth.InpaintOptions{
		NoiseLevel:   o.NoiseLevel,
		DevThreshold: o.DevThreshold,
		HaloRadius:   o.HaloRadius,
		OutlierLimit: o.OutlierLimit,
		SmoothXY:     o.DepthSmoothXY,
		SmoothZ:      o.DepthSmoothZ,
		ConnectCount: o.ConnectCount,
	}
}
