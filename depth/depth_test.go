package depth

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot/vg"

	"focusstack/geom"
	"focusstack/imgtask"
	"focusstack/rawimage"
)

type noopLogger struct{}

func (noopLogger) Verbosef(string, ...any)  {}
func (noopLogger) Progressf(string, ...any) {}
func (noopLogger) Infof(string, ...any)     {}
func (noopLogger) Errorf(string, ...any)    {}

func TestFocusMeasureIsZeroForFlatImage(t *testing.T) {
	img := rawimage.NewImage(rawimage.F32, 8, 8, 0)
	for i := range img.Data {
		img.Data[i] = 0.5
	}
	task := NewFocusMeasureTask("t", img, 0, 0, nil)
	require.NoError(t, task.Run(noopLogger{}))
	out := task.Result()
	for _, v := range out.Data {
		require.InDelta(t, 0, v, 1e-6)
	}
}

func TestFocusMeasureRespondsToEdge(t *testing.T) {
	img := rawimage.NewImage(rawimage.F32, 8, 8, 0)
	for y := 0; y < 8; y++ {
		for x := 4; x < 8; x++ {
			img.Set(x, y, 0, 1.0)
		}
	}
	task := NewFocusMeasureTask("t", img, 0, 0, nil)
	require.NoError(t, task.Run(noopLogger{}))
	out := task.Result()
	require.Greater(t, out.At(4, 4, 0), float32(0))
}

// A synthetic Gaussian focus curve across 5 layers should recover its
// known peak layer via the Guo fit.
func TestGuoFitRecoversPeakLayer(t *testing.T) {
	const w, h, layers = 2, 2, 5
	const peak = 2.0
	const sigma = 1.0

	var last *AccumulateTask
	for layer := 0; layer < layers; layer++ {
		fm := rawimage.NewImage(rawimage.F32, w, h, layer)
		x := float64(layer)
		y := 100 * math.Exp(-(x-peak)*(x-peak)/(2*sigma*sigma))
		for i := range fm.Data {
			fm.Data[i] = float32(y)
		}
		task := NewAccumulateTask("t", last, fm, layer, 0, layer, nil)
		require.NoError(t, task.Run(noopLogger{}))
		last = task
	}

	fit := NewFitTask("fit", last, 10, 0, nil)
	require.NoError(t, fit.Run(noopLogger{}))
	res := fit.Result()
	for i := range res.Depth {
		require.InDelta(t, peak, res.Depth[i], 0.5)
	}
}

func TestMedianBlurPreservesConstant(t *testing.T) {
	in := make([]float32, 16)
	for i := range in {
		in[i] = 3
	}
	out := medianBlur(in, 4, 4, 1)
	for _, v := range out {
		require.Equal(t, float32(3), v)
	}
}

// buildTestFit hand-populates a FitTask's result directly rather than
// driving it through a real accumulation, so the amplitude/depth fields
// can be shaped precisely for the consumers below.
func buildTestFit(w, h int) *FitTask {
	fit := &FitTask{Base: imgtask.NewBase("depth-fit:t", "t", 0, false, nil)}
	res := &FitResult{Width: w, Height: h, Depth: make([]float32, w*h), Dev: make([]float32, w*h), Amp: make([]float32, w*h)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			res.Depth[i] = float32(x+y) / float32(w+h)
			if x < w/2 {
				res.Amp[i] = 0.2 // background: below a 0.5 threshold
			} else {
				res.Amp[i] = 0.8 // foreground
			}
		}
	}
	fit.result = res
	return fit
}

func TestRemoveBGZeroesLowAmplitudePixels(t *testing.T) {
	// Large enough that the erode/dilate opening and closing cascade
	// (radius foregroundMaskRadius=2) has room to operate without the
	// image border swallowing the whole foreground region.
	const w, h = 16, 16
	src := rawimage.NewImage(rawimage.U8x3, w, h, 0)
	src.ValidArea = geom.NewRect(0, 0, w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src.Set(x, y, 0, 1)
			src.Set(x, y, 1, 1)
			src.Set(x, y, 2, 1)
		}
	}

	fit := buildTestFit(w, h)
	task := NewRemoveBGTask("t", src, fit, 0.5, 4, 0, nil)
	require.NoError(t, task.Run(noopLogger{}))

	out := task.Result()
	require.Equal(t, float32(0), out.At(1, 8, 0), "background pixel should be zeroed")
	require.Equal(t, float32(1), out.At(w-3, 8, 0), "foreground pixel well inside the mask should survive")
}

func TestRenderViewWritesNonEmptyPNG(t *testing.T) {
	const w, h = 16, 16
	src := rawimage.NewImage(rawimage.U8x3, w, h, 0)
	src.ValidArea = geom.NewRect(0, 0, w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src.Set(x, y, 0, float32(x)/float32(w))
			src.Set(x, y, 1, float32(y)/float32(h))
			src.Set(x, y, 2, 0.5)
		}
	}
	fit := buildTestFit(w, h)

	path := filepath.Join(t.TempDir(), "view.png")
	vp := Viewpoint{X: 0.5, Y: 0.5, Z: 1, ZScale: 10}
	require.NoError(t, RenderView(src, fit.Result(), vp, path, 4*vg.Inch, 4*vg.Inch))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}
