// Package wavelet implements the 2-D complex Daubechies multi-level
// transform (spec C7): a Mallat quad-tree decomposition with circular
// boundary handling, shared between a CPU backend and a GPU-arbitrated
// backend.
package wavelet

// Decomposition is a two-channel (real, imag) buffer of the padded image
// size, organized as a Mallat quad-tree: the top-left quadrant at every
// level holds the recursively decomposed low-pass image; the other three
// quadrants carry horizontal/vertical/diagonal detail coefficients.
type Decomposition struct {
	Width, Height int
	Levels        int
	Re, Im        []float64 // row-major, length Width*Height each
}

// Provider is satisfied by any task producing a Decomposition (e.g.
// ForwardTask) and by *Decomposition itself, mirroring rawimage.Provider
// so orchestration code can wire a dependency graph before the
// dependency has actually run.
type Provider interface {
	Result() *Decomposition
}

// Result implements Provider on *Decomposition directly.
func (d *Decomposition) Result() *Decomposition { return d }

func NewDecomposition(width, height, levels int) *Decomposition {
	return &Decomposition{
		Width: width, Height: height, Levels: levels,
		Re: make([]float64, width*height),
		Im: make([]float64, width*height),
	}
}

func (d *Decomposition) at(x, y int) int { return y*d.Width + x }

// Forward builds a complex input from a real grayscale buffer (real part
// = the pixel values, imaginary part = zero — the transform's own complex
// filter taps are what make every level genuinely complex-valued from
// there on) and runs the multi-level 2-D decomposition.
func Forward(gray []float64, width, height, levels int) *Decomposition {
	re := make([]float64, len(gray))
	copy(re, gray)
	im := make([]float64, len(gray))

	d := &Decomposition{Width: width, Height: height, Levels: levels, Re: re, Im: im}
	w, h := width, height
	for l := 0; l < levels; l++ {
		decomposeLevel(d, w, h)
		w /= 2
		h /= 2
	}
	return d
}

// Inverse is the exact dual of Forward: it reconstructs the complex
// buffer innermost quadrant outward, then returns the real channel (the
// imaginary channel is discarded, matching how Forward seeded it at
// zero for a real-valued input).
func Inverse(d *Decomposition) []float64 {
	re := append([]float64(nil), d.Re...)
	im := append([]float64(nil), d.Im...)
	tmp := &Decomposition{Width: d.Width, Height: d.Height, Levels: d.Levels, Re: re, Im: im}

	sizesW := make([]int, d.Levels+1)
	sizesH := make([]int, d.Levels+1)
	sizesW[0], sizesH[0] = d.Width, d.Height
	for l := 1; l <= d.Levels; l++ {
		sizesW[l] = sizesW[l-1] / 2
		sizesH[l] = sizesH[l-1] / 2
	}
	for l := d.Levels - 1; l >= 0; l-- {
		composeLevel(tmp, sizesW[l], sizesH[l])
	}
	return tmp.Re
}

// decomposeLevel applies the 1-D analysis step along rows then columns of
// the w×h top-left quadrant of d, writing the low-pass half into the
// top-left w/2×h/2 sub-quadrant and the three detail subbands into the
// other three w/2×h/2 sub-quadrants.
func decomposeLevel(d *Decomposition, w, h int) {
	// Rows.
	rowRe := make([]float64, w)
	rowIm := make([]float64, w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := d.at(x, y)
			rowRe[x] = d.Re[idx]
			rowIm[x] = d.Im[idx]
		}
		outRe, outIm := analyzeComplex1D(rowRe, rowIm)
		for x := 0; x < w; x++ {
			idx := d.at(x, y)
			d.Re[idx] = outRe[x]
			d.Im[idx] = outIm[x]
		}
	}
	// Columns.
	colRe := make([]float64, h)
	colIm := make([]float64, h)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			idx := d.at(x, y)
			colRe[y] = d.Re[idx]
			colIm[y] = d.Im[idx]
		}
		outRe, outIm := analyzeComplex1D(colRe, colIm)
		for y := 0; y < h; y++ {
			idx := d.at(x, y)
			d.Re[idx] = outRe[y]
			d.Im[idx] = outIm[y]
		}
	}
}

// composeLevel is the exact dual of decomposeLevel.
func composeLevel(d *Decomposition, w, h int) {
	colRe := make([]float64, h)
	colIm := make([]float64, h)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			idx := d.at(x, y)
			colRe[y] = d.Re[idx]
			colIm[y] = d.Im[idx]
		}
		outRe, outIm := synthesizeComplex1D(colRe, colIm)
		for y := 0; y < h; y++ {
			idx := d.at(x, y)
			d.Re[idx] = outRe[y]
			d.Im[idx] = outIm[y]
		}
	}
	rowRe := make([]float64, w)
	rowIm := make([]float64, w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := d.at(x, y)
			rowRe[x] = d.Re[idx]
			rowIm[x] = d.Im[idx]
		}
		outRe, outIm := synthesizeComplex1D(rowRe, rowIm)
		for x := 0; x < w; x++ {
			idx := d.at(x, y)
			d.Re[idx] = outRe[x]
			d.Im[idx] = outIm[x]
		}
	}
}

// analyzeComplex1D runs the circular complex Daubechies-3 analysis step on
// a length-N complex row/column (re, im), returning
// concat(low[N/2], high[N/2]) as (outRe, outIm). Each output sample is a
// genuine complex multiply-accumulate of six neighbouring complex input
// samples against the six complex filter taps (filters.go), not two
// independent real convolutions.
func analyzeComplex1D(re, im []float64) (outRe, outIm []float64) {
	n := len(re)
	half := n / 2
	outRe = make([]float64, n)
	outIm = make([]float64, n)
	for k := 0; k < half; k++ {
		var reLo, imLo, reHi, imHi float64
		y := 2 * k
		for j := 0; j < 6; j++ {
			pos := mod(y+j-3, n)
			vr, vi := re[pos], im[pos]
			lf, hf := lowFilter[j], highFilter[j]
			reLo += vr*lf.Re - vi*lf.Im
			imLo += vi*lf.Re + vr*lf.Im
			reHi += vr*hf.Re - vi*hf.Im
			imHi += vi*hf.Re + vr*hf.Im
		}
		outRe[k], outIm[k] = reLo, imLo
		outRe[half+k], outIm[half+k] = reHi, imHi
	}
	return outRe, outIm
}

// synthesizeComplex1D is the exact dual of analyzeComplex1D: each output
// sample accumulates Re/Im of val*conj(filter) over the low and high
// halves, the adjoint of the analysis step's complex multiply.
func synthesizeComplex1D(re, im []float64) (outRe, outIm []float64) {
	n := len(re)
	half := n / 2
	loRe, loIm := re[:half], im[:half]
	hiRe, hiIm := re[half:], im[half:]
	outRe = make([]float64, n)
	outIm = make([]float64, n)
	for m := 0; m < n; m++ {
		var accRe, accIm float64
		start := mod(m+3, 2)
		for j := start; j < 6; j += 2 {
			pos := mod((m-j+3)/2, half)
			lf, hf := lowFilter[j], highFilter[j]
			accRe += loRe[pos]*lf.Re + loIm[pos]*lf.Im + hiRe[pos]*hf.Re + hiIm[pos]*hf.Im
			accIm += loIm[pos]*lf.Re - loRe[pos]*lf.Im + hiIm[pos]*hf.Re - hiRe[pos]*hf.Im
		}
		outRe[m], outIm[m] = accRe, accIm
	}
	return outRe, outIm
}

func mod(a, n int) int {
	r := a % n
	if r < 0 {
		r += n
	}
	return r
}
