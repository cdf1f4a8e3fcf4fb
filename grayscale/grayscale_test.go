package grayscale

import (
	"testing"

	"github.com/stretchr/testify/require"

	"focusstack/rawimage"
)

type noopLogger struct{}

func (noopLogger) Verbosef(string, ...any)  {}
func (noopLogger) Progressf(string, ...any) {}
func (noopLogger) Infof(string, ...any)     {}
func (noopLogger) Errorf(string, ...any)    {}

// S7: a 64x64 BGR image that is zero everywhere except a green pixel at
// (32,32) yields weights (0, 1, 0).
func TestPCAWeightsGreenPixel(t *testing.T) {
	img := rawimage.NewImage(rawimage.U8x3, sampleGrid, sampleGrid, 0)
	img.Set(32, 32, 1, 1.0) // G channel

	task := New("t", img, nil, 0, nil)
	require.NoError(t, task.Run(noopLogger{}))

	require.InDelta(t, 0, task.Weights.B, 1e-6)
	require.InDelta(t, 1, task.Weights.G, 1e-6)
	require.InDelta(t, 0, task.Weights.R, 1e-6)
}

// R2: Grayscale(reference) then Grayscale(other, reference=...) uses
// identical weights.
func TestReferenceWeightsAreCopied(t *testing.T) {
	ref := rawimage.NewImage(rawimage.U8x3, sampleGrid, sampleGrid, 0)
	ref.Set(10, 10, 2, 1.0) // R channel

	refTask := New("ref", ref, nil, 0, nil)
	require.NoError(t, refTask.Run(noopLogger{}))

	other := rawimage.NewImage(rawimage.U8x3, sampleGrid, sampleGrid, 1)
	otherTask := New("other", other, refTask, 1, nil)
	require.NoError(t, otherTask.Run(noopLogger{}))

	require.Equal(t, refTask.Weights, otherTask.Weights)
}

func TestSingleChannelPassThrough(t *testing.T) {
	img := rawimage.NewImage(rawimage.F32, 8, 8, 0)
	img.Set(3, 3, 0, 0.5)
	task := New("gray", img, nil, 0, nil)
	require.NoError(t, task.Run(noopLogger{}))
	require.Same(t, img, task.Result())
}
