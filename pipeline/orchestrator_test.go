package pipeline

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"focusstack/depth"
	"focusstack/logsink"
	"focusstack/scheduler"
	"focusstack/wavelet"
)

func writeTestPNG(t *testing.T, path string, w, h int, focus int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// A simple checkerboard whose square size depends on `focus`,
			// standing in for different focus-blur levels across the
			// stack without needing real lens defocus.
			sq := (x/focus + y/focus) % 2
			v := uint8(60)
			if sq == 0 {
				v = 200
			}
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestOrchestratorRunProducesFinalSave(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "a.png")
	p2 := filepath.Join(dir, "b.png")
	writeTestPNG(t, p1, 24, 24, 3)
	writeTestPNG(t, p2, 24, 24, 5)

	logger := logsink.StdSink(os.Stderr, logsink.Error)
	pool := scheduler.New(2, logger)
	backend := wavelet.Select(false)

	opts := Options{Reference: -1, Consistency: 1, BatchSize: 4}
	orch := New(pool, logger, opts, backend)

	res, err := orch.Run([]string{p1, p2}, Output{Path: ":memory:"})
	require.NoError(t, err)
	require.NotNil(t, res.Final)
	require.True(t, res.Final.IsDone())

	out := res.Final.Result()
	require.NotNil(t, out)
	require.Equal(t, 24, out.Bounds().Dx())
	require.Equal(t, 24, out.Bounds().Dy())
}

func TestOrchestratorStreamingMatchesBlockingShape(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "a.png")
	p2 := filepath.Join(dir, "b.png")
	p3 := filepath.Join(dir, "c.png")
	writeTestPNG(t, p1, 16, 16, 2)
	writeTestPNG(t, p2, 16, 16, 4)
	writeTestPNG(t, p3, 16, 16, 3)

	logger := logsink.StdSink(os.Stderr, logsink.Error)
	pool := scheduler.New(2, logger)
	backend := wavelet.Select(false)

	opts := Options{Reference: -1, Consistency: 0, BatchSize: 2}
	orch := New(pool, logger, opts, backend)

	orch.Start()
	for _, p := range []string{p1, p2, p3} {
		orch.AddImage(p)
	}
	res := orch.Finalize(Output{Path: ":memory:"})
	ok, msg := orch.Await(-1)
	require.True(t, ok, msg)
	require.NotNil(t, res.Final)
	require.NotNil(t, res.Final.Result())
}

func TestOrchestratorSupplementedFeatures(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "a.png")
	p2 := filepath.Join(dir, "b.png")
	writeTestPNG(t, p1, 32, 32, 4)
	writeTestPNG(t, p2, 32, 32, 6)

	logger := logsink.StdSink(os.Stderr, logsink.Error)
	pool := scheduler.New(2, logger)
	backend := wavelet.Select(false)

	opts := Options{
		Reference: -1, Consistency: 1, BatchSize: 4,
		MaxDepth: 10, RemoveBG: 0.01, SaveSteps: true,
	}
	orch := New(pool, logger, opts, backend)

	depthPath := filepath.Join(dir, "depth.png")
	viewPath := filepath.Join(dir, "view.png")
	out := Output{
		Path: ":memory:", WantDepth: true, DepthPath: depthPath,
		ThreeDViewPath: viewPath, ThreeDView: depth.Viewpoint{X: 0.3, Y: 0.3, Z: 1, ZScale: 8},
	}

	res, err := orch.Run([]string{p1, p2}, out)
	require.NoError(t, err)
	require.NotNil(t, res.Final)
	require.NotNil(t, res.Depthmap)
	require.NotNil(t, res.DepthmapSave)
	require.NotNil(t, res.ThreeDView)
	require.True(t, res.ThreeDView.IsDone())

	info, err := os.Stat(viewPath)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))

	info, err = os.Stat(depthPath)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))

	for _, stage := range []string{"gray", "aligned", "aligned-gray", "focus", "wavelet"} {
		require.FileExists(t, stepPath(p1, stage))
		require.FileExists(t, stepPath(p2, stage))
	}
}

func TestSchedulingOrderReferenceFirstAlternating(t *testing.T) {
	require.Equal(t, []int{2, 1, 3, 0, 4}, schedulingOrder(2, 5))
	require.Equal(t, []int{0, 1}, schedulingOrder(0, 2))
}
