// Package depth implements the Depth pipeline (spec C10): per-layer
// Tenengrad focus measurement, Guo's closed-form Gaussian fit across
// layers, and a multi-stage inpaint cascade that fills unknown pixels.
package depth

import (
	"focusstack/imgtask"
	"focusstack/rawimage"
)

var sobelX = [9]float64{-1, 0, 1, -2, 0, 2, -1, 0, 1}
var sobelY = [9]float64{-1, -2, -1, 0, 0, 0, 1, 2, 1}

// tenengrad computes the squared-gradient focus measure at every pixel
// of a grayscale buffer: squared Sobel-x plus squared Sobel-y, windowed
// the way png/effects.go's ConvolveFlat accesses a 3x3 neighbourhood
// (clamped at the border instead of zero-padded, since focus measure
// should not drop to zero at the image edge).
func tenengrad(gray []float64, w, h int) []float64 {
	out := make([]float64, w*h)
	at := func(x, y int) float64 {
		if x < 0 {
			x = 0
		}
		if x >= w {
			x = w - 1
		}
		if y < 0 {
			y = 0
		}
		if y >= h {
			y = h - 1
		}
		return gray[y*w+x]
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var gx, gy float64
			k := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					v := at(x+dx, y+dy)
					gx += sobelX[k] * v
					gy += sobelY[k] * v
					k++
				}
			}
			out[y*w+x] = gx*gx + gy*gy
		}
	}
	return out
}

// gaussianSmoothRadius1 applies a fixed 3x3 Gaussian kernel (sigma≈1),
// matching spec §4.10's "Gaussian-smoothed with radius 1".
func gaussianSmoothRadius1(in []float64, w, h int) []float64 {
	kernel := [9]float64{1, 2, 1, 2, 4, 2, 1, 2, 1}
	const norm = 16.0
	out := make([]float64, w*h)
	at := func(x, y int) float64 {
		if x < 0 {
			x = 0
		}
		if x >= w {
			x = w - 1
		}
		if y < 0 {
			y = 0
		}
		if y >= h {
			y = h - 1
		}
		return in[y*w+x]
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float64
			k := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					acc += kernel[k] * at(x+dx, y+dy)
					k++
				}
			}
			out[y*w+x] = acc / norm
		}
	}
	return out
}

// FocusMeasureTask computes the Tenengrad focus measure for one layer.
type FocusMeasureTask struct {
	imgtask.Base

	Source    rawimage.Provider
	Threshold float64

	result *rawimage.Image
}

func NewFocusMeasureTask(name string, src rawimage.Provider, threshold float64, index int, deps []imgtask.Task) *FocusMeasureTask {
	return &FocusMeasureTask{
		Base:      imgtask.NewBase("focus:"+name, name, index, false, deps),
		Source:    src,
		Threshold: threshold,
	}
}

func (t *FocusMeasureTask) Result() *rawimage.Image { return t.result }

func (t *FocusMeasureTask) Run(logger imgtask.Logger) error {
	return t.RunOnce(func() error {
		src := t.Source.Result()
		gray := src.GrayChannel()
		fm := tenengrad(gray, src.Width, src.Height)
		fm = gaussianSmoothRadius1(fm, src.Width, src.Height)

		out := rawimage.NewImage(rawimage.F32, src.Width, src.Height, src.Index)
		for i, v := range fm {
			if v < t.Threshold {
				v = 0
			}
			out.Data[i] = float32(v)
		}
		out.ValidArea = src.ValidArea
		out.OrigSize = src.OrigSize
		t.result = out
		t.LimitValidArea(src.ValidArea)
		logger.Verbosef("%s: focus measure computed", t.Name())
		return nil
	})
}
