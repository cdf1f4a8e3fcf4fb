package engine

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTestPNG(t *testing.T, path string, w, h int, focus int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
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

func TestConfigValidateRejectsTooFewImages(t *testing.T) {
	var cfg Config
	err := cfg.validate(1)
	require.Error(t, err)
	require.IsType(t, &ConfigError{}, err)
}

func TestConfigValidateRejectsDepthmapWithoutMaxDepth(t *testing.T) {
	cfg := Config{Depthmap: "out-depth.png"}
	err := cfg.validate(2)
	require.Error(t, err)
}

func TestConfigValidateRejectsThreeDViewWithoutMaxDepth(t *testing.T) {
	cfg := Config{ThreeDView: "out-view.png"}
	err := cfg.validate(2)
	require.Error(t, err)
}

func TestConfigValidateAcceptsOrdinaryRun(t *testing.T) {
	var cfg Config
	require.NoError(t, cfg.validate(3))
}

func TestEngineRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "a.png")
	p2 := filepath.Join(dir, "b.png")
	writeTestPNG(t, p1, 24, 24, 3)
	writeTestPNG(t, p2, 24, 24, 5)

	cfg := Config{
		Output:      ":memory:",
		JPEGQuality: 90,
		Reference:   -1,
		Consistency: 1,
		BatchSize:   4,
		NoOpenCL:    true,
		Threads:     2,
	}
	eng := New(cfg, nil)
	defer eng.Shutdown()

	res, err := eng.Run([]string{p1, p2})
	require.NoError(t, err)
	require.NotNil(t, res.Final)
	require.NotNil(t, res.Final.Result())
}

func TestEngineRunRejectsSingleImage(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "a.png")
	writeTestPNG(t, p1, 16, 16, 2)

	eng := New(Config{Output: ":memory:"}, nil)
	defer eng.Shutdown()

	_, err := eng.Run([]string{p1})
	require.Error(t, err)
	require.IsType(t, &ConfigError{}, err)
}
