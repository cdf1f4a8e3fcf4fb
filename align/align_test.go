package align

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

func TestComposeWithIdentityIsNoop(t *testing.T) {
	tr := Transform{A00: 1.1, A01: 0.1, A10: -0.1, A11: 0.9, Tx: 2, Ty: -3}
	require.Equal(t, tr, Compose(Identity(), tr))
	require.Equal(t, tr, Compose(tr, Identity()))
}

func TestInvertRoundTrip(t *testing.T) {
	tr := Transform{A00: 1.05, A01: 0.02, A10: -0.01, A11: 0.98, Tx: 3, Ty: -1}
	inv := tr.Invert()
	x, y := tr.Apply(10, 20)
	ox, oy := inv.Apply(x, y)
	require.InDelta(t, 10, ox, 1e-6)
	require.InDelta(t, 20, oy, 1e-6)
}

// R3: Align(identity reference) returns the input unchanged except for a
// known border.
func TestIdentityAlignReturnsInputUnchanged(t *testing.T) {
	img := rawimage.NewImage(rawimage.U8x3, 8, 8, 0)
	img.ValidArea = img.Bounds()
	task := NewIdentity(img, 0, nil)
	require.NoError(t, task.Run(noopLogger{}))
	require.Same(t, img, task.Result())
	require.True(t, task.Transform.IsIdentity())
}

func TestContrastMatchRatio(t *testing.T) {
	ref := rawimage.NewImage(rawimage.U8x3, 4, 4, 0)
	src := rawimage.NewImage(rawimage.U8x3, 4, 4, 1)
	ref.ValidArea = ref.Bounds()
	src.ValidArea = src.Bounds()
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			ref.Set(x, y, 0, 1.0)
			ref.Set(x, y, 1, 1.0)
			ref.Set(x, y, 2, 1.0)
			src.Set(x, y, 0, 0.5)
			src.Set(x, y, 1, 0.5)
			src.Set(x, y, 2, 0.5)
		}
	}
	gain := contrastMatch(ref, src)
	require.InDelta(t, 2.0, gain[0], 1e-6)
	require.InDelta(t, 2.0, gain[1], 1e-6)
	require.InDelta(t, 2.0, gain[2], 1e-6)
}
