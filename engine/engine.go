package engine

import (
	"os"
	"time"

	"github.com/pkg/errors"

	"focusstack/depth"
	"focusstack/logsink"
	"focusstack/pipeline"
	"focusstack/scheduler"
	"focusstack/wavelet"
)

// Engine is the programmatic entry point named in spec §6: set inputs,
// start/add_image/finalize/await, retrieve results. It owns the
// scheduler.Pool and the pipeline.Orchestrator built from Config.
type Engine struct {
	cfg    Config
	logger logsink.Sink
	pool   *scheduler.Pool
	orch   *pipeline.Orchestrator
}

// probeGPU reports GPU availability at start. The actual OpenCL context
// is an external collaborator, so this always reports unavailable. New
// calls it only when NoOpenCL is not set and then falls back to the CPU
// backend, without fabricating a GPU backend.
func probeGPU(cfg Config) bool {
	return false
}

// New builds an Engine from cfg, wiring a worker pool sized per spec §5
// and selecting the wavelet backend per the resolved GPU policy
// (wavelet.Select, spec §9).
func New(cfg Config, logCallback logsink.Callback) *Engine {
	var logger logsink.Sink
	if logCallback != nil {
		logger = logsink.New(logCallback)
	} else {
		minLevel := logsink.Info
		if cfg.Verbose {
			minLevel = logsink.Verbose
		}
		logger = logsink.StdSink(os.Stderr, minLevel)
	}

	gpuAvailable := false
	if !cfg.NoOpenCL {
		gpuAvailable = probeGPU(cfg)
		if !gpuAvailable {
			logger.Verbosef("GPU unavailable, falling back to CPU")
		}
	}
	backend := wavelet.Select(gpuAvailable)

	pool := scheduler.New(cfg.resolveThreads(), logger)

	opts := pipeline.Options{
		Reference:           cfg.Reference,
		GlobalAlign:         cfg.GlobalAlign,
		FullResolutionAlign: cfg.FullResolutionAlign,
		NoWhiteBalance:      cfg.NoWhiteBalance,
		NoContrast:          cfg.NoContrast,
		AlignOnly:           cfg.AlignOnly,
		AlignKeepSize:       cfg.AlignKeepSize,
		Consistency:         cfg.Consistency,
		WaveletDenoise:      cfg.Denoise,
		DepthmapThreshold:   cfg.DepthmapThreshold,
		DepthSmoothXY:       cfg.DepthSmoothXY,
		DepthSmoothZ:        cfg.DepthSmoothZ,
		HaloRadius:          cfg.HaloRadius,
		RemoveBG:            cfg.RemoveBG,
		MaxDepth:            cfg.MaxDepth,
		NoiseLevel:          cfg.DepthNoiseLevel,
		DevThreshold:        cfg.DevThreshold,
		OutlierLimit:        cfg.OutlierLimit,
		ConnectCount:        cfg.ConnectCount,
		BatchSize:           cfg.BatchSize,
		Threads:             cfg.resolveThreads(),
		NoOpenCL:            cfg.NoOpenCL,
		WaitImages:          cfg.WaitImages,
		NoCrop:              cfg.NoCrop,
		SaveSteps:           cfg.SaveSteps,
		GrayInput:           cfg.GrayInput,
	}

	return &Engine{
		cfg:    cfg,
		logger: logger,
		pool:   pool,
		orch:   pipeline.New(pool, logger, opts, backend),
	}
}

func (e *Engine) output() pipeline.Output {
	vp := e.cfg.ThreeDViewpoint
	return pipeline.Output{
		Path:        e.cfg.Output,
		JPEGQuality: e.cfg.JPEGQuality,
		WantDepth:   e.cfg.Depthmap != "" || e.cfg.ThreeDView != "",
		DepthPath:   e.cfg.Depthmap,

		ThreeDViewPath: e.cfg.ThreeDView,
		ThreeDView:     depth.Viewpoint{X: vp[0], Y: vp[1], Z: vp[2], ZScale: vp[3]},
	}
}

// Run performs the blocking-mode usage named in spec §4.3: validates
// paths, builds and runs the whole graph, waits for completion, and
// returns the finished result. A configuration rejected by validate is
// returned as a *ConfigError before any task is built; any failure of
// the task graph is returned as a *TaskException; everything else is
// handled inside the task graph itself.
func (e *Engine) Run(paths []string) (*pipeline.Result, error) {
	if err := e.cfg.validate(len(paths)); err != nil {
		return nil, err
	}
	res, err := e.orch.Run(paths, e.output())
	if err != nil {
		return nil, &TaskException{TaskName: "run", Message: err.Error()}
	}
	return res, nil
}

// Start begins a streaming-mode run (spec §4.3); follow with AddImage,
// then Finalize, then Await.
func (e *Engine) Start() {
	e.orch.Start()
}

// AddImage submits one streamed image path and returns its assigned
// index.
func (e *Engine) AddImage(path string) int {
	return e.orch.AddImage(path)
}

// Finalize closes the streaming batch and schedules the terminal save
// (and optional depth) tasks. Call Await afterward to block for
// completion.
func (e *Engine) Finalize() *pipeline.Result {
	return e.orch.Finalize(e.output())
}

// Await blocks until the graph drains or fails; a negative timeout
// waits indefinitely.
func (e *Engine) Await(timeout time.Duration) error {
	ok, msg := e.orch.Await(timeout)
	if !ok {
		return errors.New(msg)
	}
	return nil
}

// GetStatus reports (total, completed) task counts for progress
// reporting.
func (e *Engine) GetStatus() (total, completed int) {
	return e.orch.GetStatus()
}

// Shutdown releases the worker pool. Call once the caller is done with
// the Engine; no further Run/AddImage calls are valid afterward.
func (e *Engine) Shutdown() {
	e.pool.Shutdown()
}
