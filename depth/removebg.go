package depth

import (
	"focusstack/imgtask"
	"focusstack/rawimage"
)

// RemoveBGTask implements the background-removal supplement (--remove-bg):
// pixels whose fitted amplitude falls below Threshold are treated as
// background and zeroed in the saved colour output, consuming the same
// amplitude channel InpaintTask's buildMask reads for its accept/reject
// decision (spec §4.10). Before the final zeroing, the raw per-pixel
// threshold decision is cleaned up the way task_background_removal.cc does:
// an erode+dilate opening removes small noise specks, RadialFilter::connect
// closes gaps along the four principal directions (radialLineConnect in
// inpaint.go implements the same stepping search), and a
// dilate/erode/erode/dilate close-then-open cascade smooths the resulting
// mask boundary before it is applied.
type RemoveBGTask struct {
	imgtask.Base

	Color     rawimage.Provider
	Fit       *FitTask
	Threshold float64
	GapSize   int

	result *rawimage.Image
}

func NewRemoveBGTask(name string, color rawimage.Provider, fit *FitTask, threshold float64, gapSize int, index int, deps []imgtask.Task) *RemoveBGTask {
	return &RemoveBGTask{
		Base:      imgtask.NewBase("remove-bg:"+name, name, index, false, deps),
		Color:     color,
		Fit:       fit,
		Threshold: threshold,
		GapSize:   gapSize,
	}
}

func (t *RemoveBGTask) Result() *rawimage.Image { return t.result }

// foregroundMaskRadius is the structuring-element radius used for the
// noise-removal opening and the final close/open cascade, matching the
// original's 5x5 (radius-2) elliptical kernel.
const foregroundMaskRadius = 2

func (t *RemoveBGTask) Run(logger imgtask.Logger) error {
	return t.RunOnce(func() error {
		src := t.Color.Result()
		fit := t.Fit.Result()
		w, h := fit.Width, fit.Height

		raw := make([]bool, w*h)
		for i := range raw {
			raw[i] = float64(fit.Amp[i]) >= t.Threshold
		}

		// Opening (erode then dilate): drop small noise specks, restore
		// the surviving region's size.
		opened := dilateMax(erodeMask(toFloatMask(raw), w, h, foregroundMaskRadius), w, h, foregroundMaskRadius)

		gap := t.GapSize
		if gap < 1 {
			gap = 1
		}
		connected := radialLineConnect(opened, toBoolMask(opened), w, h, gap)
		for i, v := range opened {
			if v > 0 {
				connected[i] = 1
			}
		}
		thresholded := toFloatMask(toBoolMask(connected))

		// Closing then opening (dilate, erode, erode, dilate): smooths the
		// mask boundary after gap-closing.
		finalF := dilateMax(thresholded, w, h, foregroundMaskRadius)
		finalF = erodeMask(finalF, w, h, foregroundMaskRadius)
		finalF = erodeMask(finalF, w, h, foregroundMaskRadius)
		finalF = dilateMax(finalF, w, h, foregroundMaskRadius)
		mask := toBoolMask(finalF)

		out := src.Clone()
		ch := out.Channels()
		removed := 0
		for i, keep := range mask {
			if keep {
				continue
			}
			removed++
			x, y := i%w, i/w
			for c := 0; c < ch; c++ {
				out.Set(x, y, c, 0)
			}
		}
		t.result = out
		t.LimitValidArea(src.ValidArea)
		logger.Verbosef("%s: removed %d background pixels", t.Name(), removed)
		return nil
	})
}

func toFloatMask(b []bool) []float32 {
	out := make([]float32, len(b))
	for i, v := range b {
		if v {
			out[i] = 1
		}
	}
	return out
}

func toBoolMask(f []float32) []bool {
	out := make([]bool, len(f))
	for i, v := range f {
		out[i] = v > 0
	}
	return out
}

// erodeMask is dilateMax's (inpaint.go) dual: each output pixel is the minimum, not
// the maximum, of its neighbourhood — the "erode" half of the
// erode/dilate opening and the dilate/erode/erode/dilate closing cascade
// task_background_removal.cc runs on the foreground mask.
func erodeMask(in []float32, w, h, radius int) []float32 {
	out := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			minV := in[y*w+x]
			for dy := -radius; dy <= radius; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					minV = 0
					continue
				}
				for dx := -radius; dx <= radius; dx++ {
					nx := x + dx
					if nx < 0 || nx >= w {
						minV = 0
						continue
					}
					if v := in[ny*w+nx]; v < minV {
						minV = v
					}
				}
			}
			out[y*w+x] = minV
		}
	}
	return out
}
