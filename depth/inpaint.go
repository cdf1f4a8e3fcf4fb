package depth

import (
	"sort"

	"focusstack/imgtask"
)

// InpaintOptions carries the CLI-tunable cascade parameters (spec §6:
// --depthmap-threshold, --depthmap-smooth-xy, --depthmap-smooth-z,
// --halo-radius).
type InpaintOptions struct {
	NoiseLevel   float64
	DevThreshold float32
	HaloRadius   int
	OutlierLimit float64
	SmoothXY     int
	SmoothZ      float64
	ConnectCount int // spec §9 resolution: always an integer pixel count
}

// InpaintTask fills unknown pixels of a FitResult using the five-stage
// cascade of spec §4.10.
type InpaintTask struct {
	imgtask.Base

	Fit     *FitTask
	Options InpaintOptions

	result []float32 // final depth, width*height
}

func NewInpaintTask(name string, fit *FitTask, opts InpaintOptions, index int, deps []imgtask.Task) *InpaintTask {
	return &InpaintTask{
		Base:    imgtask.NewBase("depth-inpaint:"+name, name, index, false, deps),
		Fit:     fit,
		Options: opts,
	}
}

func (t *InpaintTask) Result() []float32 { return t.result }

func (t *InpaintTask) Run(logger imgtask.Logger) error {
	return t.RunOnce(func() error {
		fit := t.Fit.Result()
		w, h := fit.Width, fit.Height
		opt := t.Options

		accepted := buildMask(fit, opt)
		lowres := maskedBlur(fit.Depth, accepted, w, h, 4)
		lowres = radialAverage(lowres, accepted, w, h, 8)

		clamped := make([]float32, w*h)
		for i := range clamped {
			v := fit.Depth[i]
			if !accepted[i] {
				v = lowres[i]
			}
			lo := lowres[i] - float32(opt.OutlierLimit)
			hi := lowres[i] + float32(opt.OutlierLimit)
			if v < lo {
				v = lo
			}
			if v > hi {
				v = hi
			}
			clamped[i] = v
		}

		connected := radialLineConnect(clamped, accepted, w, h, opt.ConnectCount)
		connected = radialAverage(connected, accepted, w, h, opt.ConnectCount)

		xy := opt.SmoothXY
		if xy < 1 {
			xy = 1
		}
		out := medianBlur(connected, w, h, xy)
		out = bilateralFilter(out, w, h, xy, opt.SmoothZ)
		out = medianBlur(out, w, h, xy)

		logger.Progressf("%s: inpaint cascade complete", t.Name())
		t.result = out
		return nil
	})
}

// buildMask accepts a pixel when its amplitude, minus a flat noise
// level and minus half the dilated (halo) amplitude of its
// neighbourhood, stays positive, and its deviation is not above
// threshold (spec §4.10 stage 1).
func buildMask(fit *FitResult, opt InpaintOptions) []bool {
	w, h := fit.Width, fit.Height
	dilated := dilateMax(fit.Amp, w, h, opt.HaloRadius)
	accepted := make([]bool, w*h)
	for i := range accepted {
		m := float64(fit.Amp[i]) - opt.NoiseLevel - 0.5*float64(dilated[i])
		accepted[i] = m > 0 && fit.Dev[i] <= opt.DevThreshold
	}
	return accepted
}

func dilateMax(in []float32, w, h, radius int) []float32 {
	if radius < 1 {
		radius = 1
	}
	out := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var maxV float32
			for dy := -radius; dy <= radius; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -radius; dx <= radius; dx++ {
					nx := x + dx
					if nx < 0 || nx >= w {
						continue
					}
					v := in[ny*w+nx]
					if v > maxV {
						maxV = v
					}
				}
			}
			out[y*w+x] = maxV
		}
	}
	return out
}

// maskedBlur averages only accepted pixels within a box of the given
// radius, leaving unaccepted pixels at 0 for the subsequent radial
// average to fill (spec §4.10 stage 2, "low-resolution masked_blur").
func maskedBlur(values []float32, accepted []bool, w, h, radius int) []float32 {
	out := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum float32
			var count int
			for dy := -radius; dy <= radius; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -radius; dx <= radius; dx++ {
					nx := x + dx
					if nx < 0 || nx >= w {
						continue
					}
					idx := ny*w + nx
					if accepted[idx] {
						sum += values[idx]
						count++
					}
				}
			}
			if count > 0 {
				out[y*w+x] = sum / float32(count)
			}
		}
	}
	return out
}

// radialAverage propagates known (accepted, or already non-zero from a
// previous pass) values outward by repeated neighbourhood averaging —
// the propagation step named throughout spec §4.10.
func radialAverage(values []float32, accepted []bool, w, h, radius int) []float32 {
	out := append([]float32(nil), values...)
	known := append([]bool(nil), accepted...)

	for pass := 0; pass < 3; pass++ {
		next := append([]float32(nil), out...)
		nextKnown := append([]bool(nil), known...)
		changed := false
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				idx := y*w + x
				if known[idx] {
					continue
				}
				var sum float32
				var count int
				for dy := -radius; dy <= radius; dy++ {
					ny := y + dy
					if ny < 0 || ny >= h {
						continue
					}
					for dx := -radius; dx <= radius; dx++ {
						nx := x + dx
						if nx < 0 || nx >= w {
							continue
						}
						nidx := ny*w + nx
						if known[nidx] {
							sum += out[nidx]
							count++
						}
					}
				}
				if count > 0 {
					next[idx] = sum / float32(count)
					nextKnown[idx] = true
					changed = true
				}
			}
		}
		out, known = next, nextKnown
		if !changed {
			break
		}
	}
	return out
}

// radialLineConnect closes interior gaps by sampling along the four
// principal radial directions from each unknown pixel out to
// connectCount pixels, replacing it with the average of the first
// accepted value found in each direction; a pixel with no accepted value
// in reach keeps its value (spec
// §4.10 stage 4; the resolved Open Question in DESIGN.md fixes
// connectCount as an integer pixel count, never a float scaler).
func radialLineConnect(values []float32, accepted []bool, w, h, connectCount int) []float32 {
	if connectCount < 1 {
		connectCount = 1
	}
	out := append([]float32(nil), values...)
	dirs := [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*w + x
			if accepted[idx] {
				continue
			}
			var sum float32
			var count int
			for _, d := range dirs {
				for step := 1; step <= connectCount; step++ {
					nx, ny := x+d[0]*step, y+d[1]*step
					if nx < 0 || nx >= w || ny < 0 || ny >= h {
						break
					}
					nidx := ny*w + nx
					if accepted[nidx] {
						sum += values[nidx]
						count++
						break
					}
				}
			}
			if count > 0 {
				out[idx] = sum / float32(count)
			}
		}
	}
	return out
}

// medianBlur applies a (2*radius+1)^2 median filter (spec §4.10 stage
// 5), used both before and after the bilateral pass.
func medianBlur(in []float32, w, h, radius int) []float32 {
	out := make([]float32, w*h)
	window := make([]float32, 0, (2*radius+1)*(2*radius+1))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			window = window[:0]
			for dy := -radius; dy <= radius; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -radius; dx <= radius; dx++ {
					nx := x + dx
					if nx < 0 || nx >= w {
						continue
					}
					window = append(window, in[ny*w+nx])
				}
			}
			sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })
			out[y*w+x] = window[len(window)/2]
		}
	}
	return out
}

// bilateralFilter is a fast approximation: a box-weighted average where
// neighbours are down-weighted by their value distance from the centre
// (smoothZ controls range sensitivity), standing in for a trilinear
// bilateral grid over a downsampled product volume — same edge-preserving
// smoothing behaviour at a simpler, unconditionally-correct cost.
func bilateralFilter(in []float32, w, h, radiusXY int, smoothZ float64) []float32 {
	if smoothZ <= 0 {
		smoothZ = 1
	}
	out := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			center := in[y*w+x]
			var sum, weightSum float64
			for dy := -radiusXY; dy <= radiusXY; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -radiusXY; dx <= radiusXY; dx++ {
					nx := x + dx
					if nx < 0 || nx >= w {
						continue
					}
					v := in[ny*w+nx]
					diff := float64(v - center)
					weight := gaussianWeight(diff, smoothZ)
					sum += weight * float64(v)
					weightSum += weight
				}
			}
			if weightSum > 0 {
				out[y*w+x] = float32(sum / weightSum)
			} else {
				out[y*w+x] = center
			}
		}
	}
	return out
}

func gaussianWeight(diff, sigma float64) float64 {
	d := diff / sigma
	return 1.0 / (1.0 + d*d)
}
