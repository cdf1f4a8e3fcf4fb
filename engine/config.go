// Package engine implements the top-level programmatic API (spec §6):
// typed configuration mirroring the CLI flag surface, typed error kinds
// (spec §7), and a thin Engine wrapping pipeline.Orchestrator with
// start/add_image/finalize/await/get_status semantics.
package engine

import (
	"runtime"
	"time"
)

// Config holds every setting of the CLI surface of spec §6;
// cmd/focusstack parses flags directly into this struct. MaxDepth,
// DevThreshold, OutlierLimit, ConnectCount and GrayInput have no
// command-line flag, so they keep their zero values when set from the CLI.
type Config struct {
	Output     string
	Depthmap   string
	ThreeDView string
	SaveSteps  bool

	JPEGQuality int
	NoCrop      bool

	Reference           int
	GlobalAlign         bool
	FullResolutionAlign bool
	NoWhiteBalance      bool
	NoContrast          bool
	AlignOnly           bool
	AlignKeepSize       bool
	Consistency         int

	Denoise           float64 // wavelet coefficient soft-threshold level (spec §4.8's optional denoise stage)
	DepthNoiseLevel   float64 // depth-map inpaint accept/reject noise floor (spec §4.10 stage 1)
	DepthmapThreshold float64
	DepthSmoothXY     int
	DepthSmoothZ      float64
	RemoveBG          float64
	HaloRadius        int
	MaxDepth          float64
	DevThreshold      float32
	OutlierLimit      float64
	ConnectCount      int
	ThreeDViewpoint   [4]float64 // x, y, z, zscale

	Threads    int
	BatchSize  int
	NoOpenCL   bool
	WaitImages time.Duration

	GrayInput bool

	Verbose bool
}

// resolveThreads applies spec §5's default: hardware concurrency + 1,
// to overlap a GPU-submitting thread.
func (c Config) resolveThreads() int {
	if c.Threads > 0 {
		return c.Threads
	}
	return runtime.NumCPU() + 1
}
