package pipeline

import (
	"math"
	"path/filepath"
	"strings"
	"time"

	"focusstack/align"
	"focusstack/depth"
	"focusstack/geom"
	"focusstack/grayscale"
	"focusstack/imgtask"
	"focusstack/merge"
	"focusstack/rawimage"
	"focusstack/reassign"
	"focusstack/scheduler"
	"focusstack/wavelet"
)

// Result is everything a run produces, handed back to the caller for
// saving: the final colour reassembly, the optional depth fit/inpaint,
// and the per-image aligned colour frames when AlignOnly stopped the
// graph early.
type Result struct {
	Final        *rawimage.SaveTask
	Depthmap     *depth.InpaintTask
	DepthmapSave *rawimage.SaveTask
	ThreeDView   *depth.ThreeDViewTask
	AlignedOut   []*align.Task
}

// Orchestrator wires the Load/Grayscale/Align/Wavelet/Merge/Reassign/
// Depth stages into one dependency graph and submits it to a
// scheduler.Pool (spec C3). It supports both usage modes named in spec
// §4.3 over the same internal state: Run does reset+start+drain+await
// in one call (blocking mode); Start/AddImage/Finalize/Await let a
// caller stream images in one at a time.
//
// Per-image task bookkeeping is keyed by image index rather than held
// in pre-sized slices: blocking mode knows the final count upfront and
// schedules reference-first/alternating-outward (arbitrary index
// order), while streaming mode discovers images one at a time in
// arrival order — a map serves both without two separate code paths.
type Orchestrator struct {
	pool    *scheduler.Pool
	logger  imgtask.Logger
	opts    Options
	backend wavelet.Backend

	referenceIndex   int
	referenceResolved bool
	nextIndex        int
	scheduledCount   int
	lastIndex        int // most recently submitted image's index; the "immediate neighbour" eviction spares

	loads        map[int]*rawimage.LoadTask
	grays        map[int]*grayscale.Task
	aligns       map[int]*align.Task
	alignedGrays map[int]*grayscale.Task
	forwards     map[int]*wavelet.ForwardTask

	rollingMerge     *merge.Task
	rollingColorMap  *reassign.MapTask
	rollingGrayRange *reassign.GrayRangeMapTask
	lastAccum        *depth.AccumulateTask

	pendingMerge []merge.Input
	pendingColor []reassign.BatchMember
	pendingGray  []reassign.GrayBatchMember
}

// New builds an Orchestrator bound to pool; backend selects CPU/GPU per
// wavelet.Select(!opts.NoOpenCL && gpuAvailable).
func New(pool *scheduler.Pool, logger imgtask.Logger, opts Options, backend wavelet.Backend) *Orchestrator {
	o := &Orchestrator{pool: pool, logger: logger, opts: opts, backend: backend}
	o.Start()
	return o
}

// Start (re)initializes per-run state, per spec §4.3's "reset; start".
// Safe to call before the first AddImage/Run, or to begin a fresh run
// on an Orchestrator whose previous run has already finished.
func (o *Orchestrator) Start() {
	o.referenceIndex = 0
	o.referenceResolved = false
	o.nextIndex = 0
	o.scheduledCount = 0
	o.lastIndex = -1
	o.loads = make(map[int]*rawimage.LoadTask)
	o.grays = make(map[int]*grayscale.Task)
	o.aligns = make(map[int]*align.Task)
	o.alignedGrays = make(map[int]*grayscale.Task)
	o.forwards = make(map[int]*wavelet.ForwardTask)
	o.rollingMerge = nil
	o.rollingColorMap = nil
	o.rollingGrayRange = nil
	o.lastAccum = nil
	o.pendingMerge = nil
	o.pendingColor = nil
	o.pendingGray = nil
}

// Run builds the full graph for paths in one call (spec §4.3's
// blocking mode): reference selection sees the whole count upfront, so
// scheduling runs reference-first then alternating outward. Submits
// every task to the pool, waits for completion, and returns the tasks
// the caller should pull results from and save per out.
func (o *Orchestrator) Run(paths []string, out Output) (*Result, error) {
	o.Start()
	o.referenceIndex = o.opts.resolveReference(len(paths))
	o.referenceResolved = true

	order := schedulingOrder(o.referenceIndex, len(paths))

	var alignedOut []*align.Task
	for _, idx := range order {
		o.logger.Verbosef("scheduling image %d (%s)", idx, paths[idx])
		o.submit(paths[idx], idx)
		if o.opts.AlignOnly {
			alignedOut = append(alignedOut, o.aligns[idx])
		}
	}

	if o.opts.AlignOnly {
		ok, errMsg := o.pool.WaitAll(-1)
		if !ok {
			return nil, &runError{msg: errMsg}
		}
		return &Result{AlignedOut: alignedOut}, nil
	}

	final, depthTask, depthSave, viewTask := o.finalize(out)

	ok, errMsg := o.pool.WaitAll(-1)
	if !ok {
		return nil, &runError{msg: errMsg}
	}
	return &Result{Final: final, Depthmap: depthTask, DepthmapSave: depthSave, ThreeDView: viewTask}, nil
}

// AddImage submits the next streamed image (spec §4.3's streaming
// mode). The reference is resolved "the moment it is first needed":
// since the final count isn't known until Finalize, Options.Reference
// is honoured only when it names the very first image (index 0);
// otherwise the first image added becomes the reference, and every
// later image chains against its immediate predecessor.
func (o *Orchestrator) AddImage(path string) int {
	idx := o.nextIndex
	o.nextIndex++

	if !o.referenceResolved {
		o.referenceIndex = 0
		o.referenceResolved = true
	}

	o.submit(path, idx)
	return idx
}

// Finalize forces a merge of any partial batch and chains the terminal
// save (and optional depth) tasks, per spec §4.3's Finalization. Await
// must still be called to wait for completion.
func (o *Orchestrator) Finalize(out Output) *Result {
	final, depthTask, depthSave, viewTask := o.finalize(out)
	return &Result{Final: final, Depthmap: depthTask, DepthmapSave: depthSave, ThreeDView: viewTask}
}

// Await blocks until the graph drains or fails; a negative timeout
// waits indefinitely and runs the deadlock watchdog (spec §4.1).
func (o *Orchestrator) Await(timeout time.Duration) (bool, string) {
	return o.pool.WaitAll(timeout)
}

// GetStatus returns (total, completed) task counts for progress
// reporting.
func (o *Orchestrator) GetStatus() (total, completed int) {
	return o.pool.GetStatus()
}

// schedulingOrder is reference-first then alternating outward
// (ref-1, ref+1, ref-2, ref+2, ...), per spec §4.3.
func schedulingOrder(ref, count int) []int {
	order := make([]int, 0, count)
	order = append(order, ref)
	for d := 1; ; d++ {
		lo, hi := ref-d, ref+d
		added := false
		if lo >= 0 {
			order = append(order, lo)
			added = true
		}
		if hi < count {
			order = append(order, hi)
			added = true
		}
		if !added {
			break
		}
	}
	return order
}

// neighbourIndex is the already-scheduled image adjacent to idx on the
// path back to the reference: one step closer, scheduled immediately
// before idx in schedulingOrder (blocking mode) or arrival order
// (streaming mode, where it's always idx-1 since the reference is
// always index 0).
func (o *Orchestrator) neighbourIndex(idx int) int {
	if idx < o.referenceIndex {
		return idx + 1
	}
	return idx - 1
}

func (o *Orchestrator) submit(path string, idx int) {
	isRef := idx == o.referenceIndex

	load := rawimage.NewLoadTask(path, idx, o.opts.WaitImages > 0)
	o.loads[idx] = load
	o.pool.Add(load)

	var grayRef *grayscale.Task
	if !isRef {
		grayRef = o.grays[o.referenceIndex]
	}
	grayDeps := []imgtask.Task{load}
	if grayRef != nil {
		grayDeps = append(grayDeps, grayRef)
	}
	gray := grayscale.New(path, load, grayRef, idx, grayDeps)
	o.grays[idx] = gray
	o.pool.Add(gray)

	alignTask := o.buildAlign(path, idx, isRef, load, gray)
	o.aligns[idx] = alignTask
	o.pool.Add(alignTask)

	var alignedGrayRef *grayscale.Task
	if !isRef {
		alignedGrayRef = o.alignedGrays[o.referenceIndex]
	}
	alignedDeps := []imgtask.Task{alignTask}
	if alignedGrayRef != nil {
		alignedDeps = append(alignedDeps, alignedGrayRef)
	}
	alignedGray := grayscale.New("aligned:"+path, alignTask, alignedGrayRef, idx, alignedDeps)
	o.alignedGrays[idx] = alignedGray
	o.pool.Add(alignedGray)

	fwd := wavelet.NewForwardTask(path, alignedGray, o.backend, idx, []imgtask.Task{alignedGray})
	o.forwards[idx] = fwd
	o.pool.Add(fwd)

	focus := depth.NewFocusMeasureTask(path, alignedGray, o.opts.DepthmapThreshold, idx, []imgtask.Task{alignedGray})
	o.pool.Add(focus)

	if o.opts.SaveSteps {
		o.saveStep(path, idx, "gray", gray, []imgtask.Task{gray})
		o.saveStep(path, idx, "aligned", alignTask, []imgtask.Task{alignTask})
		o.saveStep(path, idx, "aligned-gray", alignedGray, []imgtask.Task{alignedGray})
		o.saveStep(path, idx, "focus", focus, []imgtask.Task{focus})

		preview := newWaveletPreviewTask(path, fwd, idx, []imgtask.Task{fwd})
		o.pool.Add(preview)
		o.saveStep(path, idx, "wavelet", preview, []imgtask.Task{preview})
	}

	accumDeps := []imgtask.Task{focus}
	if o.lastAccum != nil {
		accumDeps = append(accumDeps, o.lastAccum)
	}
	accum := depth.NewAccumulateTask(path, o.lastAccum, focus, idx, o.opts.NoiseLevel, idx, accumDeps)
	o.lastAccum = accum
	o.pool.Add(accum)

	o.scheduledCount++
	o.evict(idx)

	if o.opts.AlignOnly {
		return
	}

	o.pendingMerge = append(o.pendingMerge, merge.Input{Decomp: fwd, Index: idx})
	o.pendingColor = append(o.pendingColor, reassign.BatchMember{Gray: alignedGray, Color: alignTask})
	o.pendingGray = append(o.pendingGray, reassign.GrayBatchMember{Gray: alignedGray})

	if len(o.pendingMerge) >= o.batchSize() {
		o.flushBatch()
	}
}

// evict drops per-image map entries for indices that are no longer
// needed to wire future tasks, per spec §4.3's eviction policy: the
// reference and the immediate neighbour (the image just submitted, and
// the one submitted before it) are always retained; everything else
// scheduled so far can go, since every consumer that needed it already
// holds its own direct reference via a struct field, not via this map.
func (o *Orchestrator) evict(justSubmitted int) {
	keep := map[int]bool{o.referenceIndex: true, justSubmitted: true, o.lastIndex: true}
	for idx := range o.loads {
		if keep[idx] {
			continue
		}
		delete(o.loads, idx)
		delete(o.grays, idx)
		delete(o.aligns, idx)
		delete(o.alignedGrays, idx)
		delete(o.forwards, idx)
	}
	o.lastIndex = justSubmitted
}

// saveStep attaches an extra Save node for one intermediate stage output
// (spec's "save intermediate per-stage images" supplement), writing
// beside the source image rather than the eventual output path: in
// streaming mode the output path isn't known until Finalize, but every
// per-image intermediate is already fully determined at submit time.
func (o *Orchestrator) saveStep(srcPath string, idx int, stage string, src rawimage.Provider, deps []imgtask.Task) {
	path := stepPath(srcPath, stage)
	step := rawimage.NewSaveTask(stage, src, idx, path, 90, deps)
	o.pool.Add(step)
}

func stepPath(srcPath, stage string) string {
	dir := filepath.Dir(srcPath)
	base := filepath.Base(srcPath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, name+".step-"+stage+".png")
}

// waveletPreviewTask renders a forward decomposition's coefficient
// magnitude (log-scaled, normalized to its own max) as a single-channel
// preview image, for the save-steps supplement's wavelet-as-preview
// stage: the raw coefficients span many orders of magnitude, so a log
// scale is the only way a preview shows anything but a single bright
// low-pass corner.
type waveletPreviewTask struct {
	imgtask.Base

	Forward *wavelet.ForwardTask

	result *rawimage.Image
}

func newWaveletPreviewTask(name string, fwd *wavelet.ForwardTask, index int, deps []imgtask.Task) *waveletPreviewTask {
	return &waveletPreviewTask{
		Base:    imgtask.NewBase("wavelet-preview:"+name, name, index, false, deps),
		Forward: fwd,
	}
}

func (t *waveletPreviewTask) Result() *rawimage.Image { return t.result }

func (t *waveletPreviewTask) Run(logger imgtask.Logger) error {
	return t.RunOnce(func() error {
		d := t.Forward.Result()
		n := d.Width * d.Height

		mags := make([]float64, n)
		maxMag := 0.0
		for i := 0; i < n; i++ {
			m := math.Hypot(d.Re[i], d.Im[i])
			mags[i] = m
			if m > maxMag {
				maxMag = m
			}
		}
		if maxMag == 0 {
			maxMag = 1
		}
		logMax := math.Log1p(maxMag)

		out := rawimage.NewImage(rawimage.F32, d.Width, d.Height, t.Index())
		for i, m := range mags {
			out.Data[i] = float32(math.Log1p(m) / logMax)
		}
		out.ValidArea = geom.NewRect(0, 0, d.Width, d.Height)
		out.OrigSize = geom.Size{W: d.Width, H: d.Height}

		t.result = out
		t.LimitValidArea(out.ValidArea)
		logger.Verbosef("%s: rendered wavelet preview", t.Name())
		return nil
	})
}

func (o *Orchestrator) batchSize() int {
	if o.opts.BatchSize > 0 {
		return o.opts.BatchSize
	}
	return 4
}

// buildAlign wires one image's align.Task per spec §4.6: the reference
// gets the identity task; in global mode every other image registers
// directly against the reference's aligned grayscale using its
// neighbour's transform as an initial guess; otherwise each image
// registers against its immediate neighbour and composes its local
// affine with the neighbour's accumulated one.
func (o *Orchestrator) buildAlign(name string, idx int, isRef bool, load *rawimage.LoadTask, gray *grayscale.Task) *align.Task {
	if isRef {
		return align.NewIdentity(load, idx, []imgtask.Task{load})
	}

	neighbour := o.neighbourIndex(idx)
	neighbourAlign := o.aligns[neighbour]

	var refColor, refGray rawimage.Provider
	var stacked *align.Task
	deps := []imgtask.Task{load, gray, neighbourAlign}

	if o.opts.GlobalAlign {
		refColor = o.aligns[o.referenceIndex]
		refGray = o.alignedGrays[o.referenceIndex]
		stacked = nil
		deps = append(deps, o.aligns[o.referenceIndex], o.alignedGrays[o.referenceIndex])
	} else {
		refColor = neighbourAlign
		refGray = o.alignedGrays[neighbour]
		stacked = neighbourAlign
		deps = append(deps, o.alignedGrays[neighbour])
	}

	a := align.New(name, load, gray, refColor, refGray, idx, deps)
	a.InitialGuess = neighbourAlign
	a.Stacked = stacked
	a.NoContrast = o.opts.NoContrast
	a.NoWhiteBalance = o.opts.NoWhiteBalance
	a.FullResolution = o.opts.FullResolutionAlign
	a.GlobalAlign = o.opts.GlobalAlign
	a.KeepSize = o.opts.AlignKeepSize
	return a
}

// flushBatch schedules a Merge task (and the matching colour-map or
// gray-range update) over the pending batch, per spec §4.3's batching
// rule, then resets the pending slices and advances the rolling chain
// heads.
func (o *Orchestrator) flushBatch() {
	if len(o.pendingMerge) == 0 {
		return
	}

	mergeDeps := make([]imgtask.Task, 0, len(o.pendingMerge)+1)
	for _, in := range o.pendingMerge {
		mergeDeps = append(mergeDeps, in.Decomp.(imgtask.Task))
	}
	if o.rollingMerge != nil {
		mergeDeps = append(mergeDeps, o.rollingMerge)
	}
	mergeTask := merge.New("batch", o.rollingMerge, o.pendingMerge, o.opts.Consistency, 0, mergeDeps)
	o.pool.Add(mergeTask)
	o.rollingMerge = mergeTask

	if o.opts.GrayInput {
		grayDeps := make([]imgtask.Task, 0, len(o.pendingGray)+1)
		for _, m := range o.pendingGray {
			grayDeps = append(grayDeps, m.Gray.(imgtask.Task))
		}
		if o.rollingGrayRange != nil {
			grayDeps = append(grayDeps, o.rollingGrayRange)
		}
		grayRangeTask := reassign.NewGrayRangeMapTask("batch", o.rollingGrayRange, o.pendingGray, 0, grayDeps)
		o.pool.Add(grayRangeTask)
		o.rollingGrayRange = grayRangeTask
	} else {
		colorDeps := make([]imgtask.Task, 0, len(o.pendingColor)+1)
		for _, m := range o.pendingColor {
			colorDeps = append(colorDeps, m.Gray.(imgtask.Task), m.Color.(imgtask.Task))
		}
		if o.rollingColorMap != nil {
			colorDeps = append(colorDeps, o.rollingColorMap)
		}
		colorTask := reassign.NewMapTask("batch", o.rollingColorMap, o.pendingColor, 0, colorDeps)
		o.pool.Add(colorTask)
		o.rollingColorMap = colorTask
	}

	o.pendingMerge = nil
	o.pendingColor = nil
	o.pendingGray = nil
}

// finalize forces a merge of any partial batch, then chains
// denoise -> inverse-wavelet -> reassign/clamp -> (optional remove-bg) ->
// save. A depth fit is added when depth output, background removal or a
// 3-D view was requested, and fit -> inpaint only when depth output was
// requested, per spec §4.3's Finalization plus the background-removal
// supplement.
func (o *Orchestrator) finalize(out Output) (*rawimage.SaveTask, *depth.InpaintTask, *rawimage.SaveTask, *depth.ThreeDViewTask) {
	o.flushBatch()

	refLoad := o.loads[o.referenceIndex]
	mergeTask := o.rollingMerge

	denoise := wavelet.NewDenoiseTask("final", mergedDecomp{mergeTask}, o.opts.WaveletDenoise, 0, []imgtask.Task{mergeTask})
	o.pool.Add(denoise)

	inv := wavelet.NewInverseTask("final", denoise,
		func() geom.Rect { return mergeTask.Result().ValidArea },
		func() geom.Size { return refLoad.Result().OrigSize },
		o.backend, 0, []imgtask.Task{denoise})
	o.pool.Add(inv)

	var colorOutput rawimage.Provider
	var colorDeps []imgtask.Task
	if o.opts.GrayInput {
		clamp := reassign.NewGrayClampTask("final", inv, o.rollingGrayRange, 0, []imgtask.Task{inv, o.rollingGrayRange})
		o.pool.Add(clamp)
		colorOutput = clamp
		colorDeps = []imgtask.Task{clamp}
	} else {
		reassignTask := reassign.NewReassignTask("final", inv, o.rollingColorMap, 0, []imgtask.Task{inv, o.rollingColorMap})
		o.pool.Add(reassignTask)
		colorOutput = reassignTask
		colorDeps = []imgtask.Task{reassignTask}
	}

	var fit *depth.FitTask
	wantFit := (out.WantDepth || o.opts.RemoveBG > 0 || out.ThreeDViewPath != "") && o.lastAccum != nil
	if wantFit {
		fit = depth.NewFitTask("final", o.lastAccum, o.opts.MaxDepth, 0, []imgtask.Task{o.lastAccum})
		o.pool.Add(fit)
	}

	if o.opts.RemoveBG > 0 && fit != nil {
		removeBG := depth.NewRemoveBGTask("final", colorOutput, fit, o.opts.RemoveBG, o.opts.ConnectCount, 0, append(append([]imgtask.Task{}, colorDeps...), fit))
		o.pool.Add(removeBG)
		colorOutput = removeBG
		colorDeps = []imgtask.Task{removeBG}
	}

	save := rawimage.NewSaveTask("final", colorOutput, 0, out.Path, out.JPEGQuality, colorDeps)
	o.pool.Add(save)

	var inpaintTask *depth.InpaintTask
	if out.WantDepth && fit != nil {
		inpaintTask = depth.NewInpaintTask("final", fit, o.opts.inpaintOptions(), 0, []imgtask.Task{fit})
		o.pool.Add(inpaintTask)
	}

	var depthSave *rawimage.SaveTask
	if out.DepthPath != "" && inpaintTask != nil {
		depthImg := depth.NewDepthmapTask("final", inpaintTask, 0, []imgtask.Task{inpaintTask})
		o.pool.Add(depthImg)
		depthSave = rawimage.NewSaveTask("depthmap", depthImg, 0, out.DepthPath, out.JPEGQuality, []imgtask.Task{depthImg})
		o.pool.Add(depthSave)
	}

	var viewTask *depth.ThreeDViewTask
	if out.ThreeDViewPath != "" && fit != nil {
		viewDeps := append(append([]imgtask.Task{}, colorDeps...), fit)
		viewTask = depth.NewThreeDViewTask("final", colorOutput, fit, out.ThreeDView, out.ThreeDViewPath, 0, viewDeps)
		o.pool.Add(viewTask)
	}

	return save, inpaintTask, depthSave, viewTask
}

// mergedDecomp adapts a *merge.Task into a wavelet.Provider, reading the
// fused decomposition out of the rolling state only once the merge has
// actually run.
type mergedDecomp struct{ task *merge.Task }

func (m mergedDecomp) Result() *wavelet.Decomposition { return m.task.Result().Merged }

// runError is a plain string error wrapping the pool's failure message,
// since scheduler.Pool.WaitAll returns a message rather than an error.
type runError struct{ msg string }

func (e *runError) Error() string { return e.msg }
