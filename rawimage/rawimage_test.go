package rawimage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"focusstack/geom"
)

func TestReflectCoordWithinBounds(t *testing.T) {
	for v := -5; v < 15; v++ {
		r := reflectCoord(v, 10)
		require.GreaterOrEqual(t, r, 0)
		require.Less(t, r, 10)
	}
}

func TestReflectCoordIdentityInRange(t *testing.T) {
	for v := 0; v < 10; v++ {
		require.Equal(t, v, reflectCoord(v, 10))
	}
}

func TestImageGrayChannelRoundTrip(t *testing.T) {
	im := NewImage(F32, 4, 4, 0)
	vals := []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1, 0.1, 0.2, 0.3, 0.4, 0.5}
	im.SetGrayChannel(vals)
	got := im.GrayChannel()
	for i := range vals {
		require.InDelta(t, vals[i], got[i], 1e-6)
	}
}

func TestImageCloneIsIndependent(t *testing.T) {
	im := NewImage(U8x3, 2, 2, 3)
	im.Set(0, 0, 0, 0.5)
	clone := im.Clone()
	clone.Set(0, 0, 0, 0.9)
	require.NotEqual(t, im.At(0, 0, 0), clone.At(0, 0, 0))
	require.Equal(t, im.Index, clone.Index)
}

func TestSaveTaskCropsToValidArea(t *testing.T) {
	src := NewImage(U8x3, 6, 6, 0)
	src.ValidArea = geom.NewRect(1, 1, 3, 3)
	for y := 0; y < 6; y++ {
		for x := 0; x < 6; x++ {
			src.Set(x, y, 0, 1)
			src.Set(x, y, 1, 1)
			src.Set(x, y, 2, 1)
		}
	}
	task := NewSaveTask("test", src, 0, ":memory:", 90, nil)
	require.NoError(t, task.Run(noopLogger{}))
	out := task.Result()
	b := out.Bounds()
	require.Equal(t, 3, b.Dx())
	require.Equal(t, 3, b.Dy())
}

type noopLogger struct{}

func (noopLogger) Verbosef(string, ...any)  {}
func (noopLogger) Progressf(string, ...any) {}
func (noopLogger) Infof(string, ...any)     {}
func (noopLogger) Errorf(string, ...any)    {}
