package wavelet

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// expectedReal8x8 and expectedImag8x8 are the published single-level
// decomposition of an 8x8 image that is 1.0 in rect (0,0)-(2,4) and 0
// elsewhere, reproduced from the reference test vectors (obtained by
// running https://github.com/fiji-BIG/wavelets/ against the same input).
var expectedReal8x8 = [8][8]float64{
	{0.547, 0.547, -0.047, -0.047, -0.391, 0.391, -0.047, 0.047},
	{1.182, 1.182, -0.088, -0.088, -0.898, 0.898, -0.117, 0.117},
	{0.547, 0.547, -0.047, -0.047, -0.391, 0.391, -0.047, 0.047},
	{-0.088, -0.088, -0.006, -0.006, 0.117, -0.117, 0.023, -0.023},
	{-0.391, -0.391, 0.047, 0.047, 0.225, -0.225, 0.018, -0.018},
	{-0.000, -0.000, 0.000, 0.000, 0.000, -0.000, 0.000, -0.000},
	{0.391, 0.391, -0.047, -0.047, -0.225, 0.225, -0.018, 0.018},
	{0.000, 0.000, 0.000, 0.000, 0.000, 0.000, 0.000, 0.000},
}

var expectedImag8x8 = [8][8]float64{
	{0.061, 0.061, -0.061, -0.061, 0.182, -0.182, 0.061, -0.061},
	{0.265, 0.265, -0.144, -0.144, 0.303, -0.303, 0.121, -0.121},
	{0.061, 0.061, -0.061, -0.061, 0.182, -0.182, 0.061, -0.061},
	{-0.144, -0.144, 0.023, 0.023, 0.061, -0.061, 0.000, 0.000},
	{0.091, 0.091, 0.030, 0.030, -0.219, 0.219, -0.053, 0.053},
	{0.000, 0.000, 0.000, 0.000, -0.000, 0.000, -0.000, 0.000},
	{-0.091, -0.091, -0.030, -0.030, 0.219, -0.219, 0.053, -0.053},
	{0.000, 0.000, 0.000, 0.000, 0.000, 0.000, 0.000, 0.000},
}

// S4 (matrix half): single-level decompose of the same 8x8 input must
// match the published reference coefficient matrix to 3 decimals.
func TestDecomposeMatchesReferenceCoefficients(t *testing.T) {
	const n = 8
	re := make([]float64, n*n)
	im := make([]float64, n*n)
	for y := 0; y < 4; y++ {
		for x := 0; x < 2; x++ {
			re[y*n+x] = 1.0
		}
	}
	d := &Decomposition{Width: n, Height: n, Levels: 1, Re: re, Im: im}
	decomposeLevel(d, n, n)

	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			idx := y*n + x
			require.InDelta(t, expectedReal8x8[y][x], d.Re[idx], 0.002, "real[%d][%d]", y, x)
			require.InDelta(t, expectedImag8x8[y][x], d.Im[idx], 0.002, "imag[%d][%d]", y, x)
		}
	}
}

// S4: 8x8 input is 1.0 in rect (0,0)-(2,4), 0 elsewhere; round-trip
// error must stay within spec's 2e-3 tolerance (I5/R1).
func TestForwardInverseRoundTrip8x8(t *testing.T) {
	const n = 8
	img := make([]float64, n*n)
	for y := 0; y < 4; y++ {
		for x := 0; x < 2; x++ {
			img[y*n+x] = 1.0
		}
	}
	levels := 3 // the most levels an 8x8 buffer supports: 8 is a multiple of 2^L only up to L = 3
	d := Forward(img, n, n, levels)
	out := Inverse(d)

	var maxErr float64
	for i := range img {
		e := math.Abs(out[i] - img[i])
		if e > maxErr {
			maxErr = e
		}
	}
	require.LessOrEqual(t, maxErr, 2e-3, "round-trip error exceeds spec tolerance")
}

func TestLevelsClampedRange(t *testing.T) {
	require.GreaterOrEqual(t, Levels(16), 5)
	require.LessOrEqual(t, Levels(1<<20), 10)
}

func TestPadSizeIsMultipleOf2ToL(t *testing.T) {
	w, h, l := PadSize(100, 57)
	m := 1 << uint(l)
	require.Equal(t, 0, w%m)
	require.Equal(t, 0, h%m)
	require.GreaterOrEqual(t, w, 100)
	require.GreaterOrEqual(t, h, 57)
}

func TestRandomImageRoundTrip(t *testing.T) {
	const n = 32
	img := make([]float64, n*n)
	seed := uint64(12345)
	for i := range img {
		seed = seed*6364136223846793005 + 1
		img[i] = float64(seed%1000) / 1000.0
	}
	levels := 3
	d := Forward(img, n, n, levels)
	out := Inverse(d)
	var maxErr float64
	for i := range img {
		e := math.Abs(out[i] - img[i])
		if e > maxErr {
			maxErr = e
		}
	}
	require.LessOrEqual(t, maxErr, 2e-3)
}
