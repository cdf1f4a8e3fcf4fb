package merge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"focusstack/geom"
	"focusstack/imgtask"
	"focusstack/wavelet"
)

type noopLogger struct{}

func (noopLogger) Verbosef(string, ...any)  {}
func (noopLogger) Progressf(string, ...any) {}
func (noopLogger) Infof(string, ...any)     {}
func (noopLogger) Errorf(string, ...any)    {}

func fullArea(w, h int) geom.Rect { return geom.NewRect(0, 0, w, h) }

// fakeSource wraps a bare Decomposition with a fixed valid area, standing
// in for a *wavelet.ForwardTask in tests that don't need a real task.
type fakeSource struct {
	d    *wavelet.Decomposition
	area geom.Rect
}

func (f fakeSource) Result() *wavelet.Decomposition { return f.d }
func (f fakeSource) ValidArea() geom.Rect            { return f.area }

// S5: two wavelet images, one with larger magnitude in the left half,
// the other in the right; merged coefficients equal image-A in the left
// half and image-B in the right; depth_label is 0 left, 1 right.
func TestSelectionPassFusesByMagnitude(t *testing.T) {
	const n = 4
	a := wavelet.NewDecomposition(n, n, 1)
	b := wavelet.NewDecomposition(n, n, 1)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			idx := y*n + x
			if x < n/2 {
				a.Re[idx] = 10
				b.Re[idx] = 1
			} else {
				a.Re[idx] = 1
				b.Re[idx] = 10
			}
		}
	}

	batch := []Input{
		{Decomp: fakeSource{d: a, area: fullArea(n, n)}, Index: 0},
		{Decomp: fakeSource{d: b, area: fullArea(n, n)}, Index: 1},
	}
	task := New("t", nil, batch, 0, 0, nil)
	require.NoError(t, task.Run(noopLogger{}))
	st := task.Result()

	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			idx := y*n + x
			if x < n/2 {
				require.Equal(t, 0, st.DepthLabel[idx])
				require.InDelta(t, 10, st.Merged.Re[idx], 1e-9)
			} else {
				require.Equal(t, 1, st.DepthLabel[idx])
				require.InDelta(t, 10, st.Merged.Re[idx], 1e-9)
			}
		}
	}
}

// I4: max_sq_magnitude[p] = |merged_wavelet[p]|^2 for every p.
func TestMaxSqMagnitudeMatchesMergedCoefficient(t *testing.T) {
	const n = 4
	a := wavelet.NewDecomposition(n, n, 1)
	for i := range a.Re {
		a.Re[i] = float64(i)
		a.Im[i] = float64(i) / 2
	}
	batch := []Input{{Decomp: fakeSource{d: a, area: fullArea(n, n)}, Index: 0}}
	task := New("t", nil, batch, 0, 0, nil)
	require.NoError(t, task.Run(noopLogger{}))
	st := task.Result()
	for i := range st.MaxSqMagnitude {
		want := st.Merged.Re[i]*st.Merged.Re[i] + st.Merged.Im[i]*st.Merged.Im[i]
		require.InDelta(t, want, st.MaxSqMagnitude[i], 1e-9)
	}
}

// I6: applying the subband consistency pass twice gives the same result
// as applying it once.
func TestSubbandConsistencyPassIdempotent(t *testing.T) {
	const n = 8
	a := wavelet.NewDecomposition(n, n, 2)
	b := wavelet.NewDecomposition(n, n, 2)
	for i := range a.Re {
		a.Re[i] = 5
		b.Re[i] = 1
	}
	batch := []Input{
		{Decomp: fakeSource{d: a, area: fullArea(n, n)}, Index: 0},
		{Decomp: fakeSource{d: b, area: fullArea(n, n)}, Index: 1},
	}
	task := New("t", nil, batch, 1, 0, nil)
	require.NoError(t, task.Run(noopLogger{}))
	st := task.Result()
	labelsAfterOne := append([]int(nil), st.DepthLabel...)

	lookup := map[int]*wavelet.Decomposition{0: a, 1: b}
	subbandConsistencyPass(st, lookup)
	require.Equal(t, labelsAfterOne, st.DepthLabel)
}

func TestValidAreaIsIntersection(t *testing.T) {
	const n = 4
	a := wavelet.NewDecomposition(n, n, 1)
	b := wavelet.NewDecomposition(n, n, 1)
	batch := []Input{
		{Decomp: fakeSource{d: a, area: geom.NewRect(0, 0, 3, 4)}, Index: 0},
		{Decomp: fakeSource{d: b, area: geom.NewRect(1, 0, 3, 4)}, Index: 1},
	}
	task := New("t", nil, batch, 0, 0, nil)
	require.NoError(t, task.Run(noopLogger{}))
	require.Equal(t, geom.NewRect(1, 0, 2, 4), task.Result().ValidArea)
}

var _ imgtask.Task = (*Task)(nil)
