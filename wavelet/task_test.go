package wavelet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type noopLogger struct{}

func (noopLogger) Verbosef(string, ...any)  {}
func (noopLogger) Progressf(string, ...any) {}
func (noopLogger) Infof(string, ...any)     {}
func (noopLogger) Errorf(string, ...any)    {}

type fixedDecomp struct{ d *Decomposition }

func (f fixedDecomp) Result() *Decomposition { return f.d }

func TestDenoiseZeroLevelIsNoop(t *testing.T) {
	const n = 4
	d := &Decomposition{Width: n, Height: n, Levels: 1, Re: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}, Im: make([]float64, n*n)}
	task := NewDenoiseTask("t", fixedDecomp{d}, 0, 0, nil)
	require.NoError(t, task.Run(noopLogger{}))
	require.Equal(t, d, task.Result())
}

func TestDenoiseShrinksDetailLeavesLowPassUntouched(t *testing.T) {
	const n = 4
	d := &Decomposition{Width: n, Height: n, Levels: 1, Re: make([]float64, n*n), Im: make([]float64, n*n)}
	// Lowest-resolution subband is the top-left n/2 x n/2 quadrant.
	d.Re[0*n+0] = 100 // low-pass, must survive untouched
	d.Re[0*n+2] = 2   // detail, below level -> zeroed
	d.Re[2*n+2] = 10  // detail, above level -> shrunk toward zero

	task := NewDenoiseTask("t", fixedDecomp{d}, 3, 0, nil)
	require.NoError(t, task.Run(noopLogger{}))
	out := task.Result()

	require.Equal(t, 100.0, out.Re[0*n+0], "low-pass subband must never be thresholded")
	require.Equal(t, 0.0, out.Re[0*n+2], "small detail coefficient should be zeroed")
	require.Equal(t, 7.0, out.Re[2*n+2], "large detail coefficient should shrink by the level")
}

func TestShrinkMatchesThresholdFilter(t *testing.T) {
	require.Equal(t, 0.0, shrink(1.0, 2.0))
	require.Equal(t, 0.0, shrink(-1.0, 2.0))
	require.Equal(t, 1.0, shrink(3.0, 2.0))
	require.Equal(t, -1.0, shrink(-3.0, 2.0))
}
