package wavelet

import (
	"focusstack/geom"
	"focusstack/imgtask"
	"focusstack/rawimage"
)

// ForwardTask runs the forward transform (spec C7) as a scheduler node,
// so GPU-backed transforms are arbitrated through the single GPU slot
// like any other uses_gpu task (spec §4.7/I3).
type ForwardTask struct {
	imgtask.Base

	Source  rawimage.Provider
	Backend Backend

	result *Decomposition
}

func NewForwardTask(name string, src rawimage.Provider, backend Backend, index int, deps []imgtask.Task) *ForwardTask {
	return &ForwardTask{
		Base:    imgtask.NewBase("wavelet-fwd:"+name, name, index, backend.UsesGPU(), deps),
		Source:  src,
		Backend: backend,
	}
}

func (t *ForwardTask) Result() *Decomposition { return t.result }

func (t *ForwardTask) Run(logger imgtask.Logger) error {
	return t.RunOnce(func() error {
		src := t.Source.Result()
		levels := Levels(maxInt(src.Width, src.Height))
		d := t.Backend.Forward(src.GrayChannel(), src.Width, src.Height, levels)
		t.result = d
		t.LimitValidArea(src.ValidArea)
		logger.Verbosef("%s: forward transform, %d levels", t.Name(), levels)
		return nil
	})
}

// InverseTask runs the inverse transform and writes the result into a
// single-channel rawimage.Image, preserving the source decomposition's
// valid area (narrowed further by any upstream merge/denoise steps).
//
// ValidArea/OrigSize are resolved lazily via closures rather than plain
// values: both typically come from a rolling-merge/reference-load result
// that, like Source, hasn't run yet when the orchestrator wires this
// task into the graph.
type InverseTask struct {
	imgtask.Base

	Source    Provider
	ValidArea func() geom.Rect
	OrigSize  func() geom.Size
	Backend   Backend

	result *rawimage.Image
}

func NewInverseTask(name string, src Provider, validArea func() geom.Rect, origSize func() geom.Size, backend Backend, index int, deps []imgtask.Task) *InverseTask {
	return &InverseTask{
		Base:      imgtask.NewBase("wavelet-inv:"+name, name, index, backend.UsesGPU(), deps),
		Source:    src,
		ValidArea: validArea,
		OrigSize:  origSize,
		Backend:   backend,
	}
}

func (t *InverseTask) Result() *rawimage.Image { return t.result }

func (t *InverseTask) Run(logger imgtask.Logger) error {
	return t.RunOnce(func() error {
		src := t.Source.Result()
		gray := t.Backend.Inverse(src)
		out := rawimage.NewImage(rawimage.F32, src.Width, src.Height, 0)
		out.SetGrayChannel(gray)
		area := t.ValidArea()
		out.ValidArea = area
		out.OrigSize = t.OrigSize()
		t.result = out
		t.LimitValidArea(area)
		logger.Verbosef("%s: inverse transform", t.Name())
		return nil
	})
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// DenoiseTask runs between Merge and the inverse transform: it soft-
// thresholds every merged wavelet coefficient outside the lowest-
// resolution subband, clamping small (probably noise) real/imaginary
// components to zero and shrinking the rest toward zero by Level. A
// Level of 0 is a no-op, so the task is always wired but costs nothing
// when denoising wasn't requested.
type DenoiseTask struct {
	imgtask.Base

	Source Provider
	Level  float64

	result *Decomposition
}

func NewDenoiseTask(name string, src Provider, level float64, index int, deps []imgtask.Task) *DenoiseTask {
	return &DenoiseTask{
		Base:   imgtask.NewBase("wavelet-denoise:"+name, name, index, false, deps),
		Source: src,
		Level:  level,
	}
}

func (t *DenoiseTask) Result() *Decomposition { return t.result }

func (t *DenoiseTask) Run(logger imgtask.Logger) error {
	return t.RunOnce(func() error {
		src := t.Source.Result()
		if t.Level <= 0 {
			t.result = src
			return nil
		}

		re := append([]float64(nil), src.Re...)
		im := append([]float64(nil), src.Im...)
		lowW := src.Width >> uint(src.Levels)
		lowH := src.Height >> uint(src.Levels)
		n := 0
		for y := 0; y < src.Height; y++ {
			for x := 0; x < src.Width; x++ {
				if y < lowH && x < lowW {
					continue // lowest-resolution subband carries the base image; never thresholded
				}
				idx := y*src.Width + x
				before := re[idx] != 0 || im[idx] != 0
				re[idx] = shrink(re[idx], t.Level)
				im[idx] = shrink(im[idx], t.Level)
				if before && re[idx] == 0 && im[idx] == 0 {
					n++
				}
			}
		}
		t.result = &Decomposition{Width: src.Width, Height: src.Height, Levels: src.Levels, Re: re, Im: im}
		logger.Verbosef("%s: denoise level %.4f zeroed %d coefficients", t.Name(), t.Level, n)
		return nil
	})
}

// shrink is the soft-threshold used by the denoise pass: values within
// [-level, level] of zero go to zero, values outside it are pulled in by
// level, the same threshold_filter behaviour as the reference denoiser.
func shrink(v, level float64) float64 {
	switch {
	case v < -level:
		return v + level
	case v > level:
		return v - level
	default:
		return 0
	}
}
