// Package grayscale implements the Grayscale stage (spec C5): PCA-derived
// luminance projection that either copies a reference's weights or
// derives its own from a 64x64 sampled grid of the input colour image.
package grayscale

import (
	"gonum.org/v1/gonum/mat"

	"focusstack/imgtask"
	"focusstack/rawimage"
)

const sampleGrid = 64

// Weights is the (w_b, w_g, w_r) linear projection applied as
// w_b*B + w_g*G + w_r*R, shared between the reference and every other
// image in the stack once derived (spec R2).
type Weights struct {
	B, G, R float64
}

// Task is the Grayscale stage. If Source is already single-channel it is
// passed through. Otherwise, if Reference is non-nil its Weights are
// copied (R2); otherwise Weights are derived from Source via PCA.
type Task struct {
	imgtask.Base

	Source    rawimage.Provider
	Reference *Task // nil for the reference's own grayscale task

	Weights Weights
	result  *rawimage.Image
}

func New(name string, src rawimage.Provider, reference *Task, index int, deps []imgtask.Task) *Task {
	return &Task{
		Base:      imgtask.NewBase("grayscale:"+name, name, index, false, deps),
		Source:    src,
		Reference: reference,
	}
}

func (t *Task) Result() *rawimage.Image { return t.result }

func (t *Task) Run(logger imgtask.Logger) error {
	return t.RunOnce(func() error {
		src := t.Source.Result()
		if src.Channels() == 1 {
			t.result = src
			t.LimitValidArea(src.ValidArea)
			return nil
		}

		switch {
		case t.Reference != nil:
			t.Weights = t.Reference.Weights
			logger.Verbosef("%s: copied reference PCA weights %+v", t.Name(), t.Weights)
		default:
			t.Weights = derivePCAWeights(src)
			logger.Verbosef("%s: derived PCA weights %+v", t.Name(), t.Weights)
		}

		out := rawimage.NewImage(rawimage.F32, src.Width, src.Height, src.Index)
		for y := 0; y < src.Height; y++ {
			for x := 0; x < src.Width; x++ {
				b := float64(src.At(x, y, 0))
				g := float64(src.At(x, y, 1))
				r := float64(src.At(x, y, 2))
				gray := t.Weights.B*b + t.Weights.G*g + t.Weights.R*r
				out.Set(x, y, 0, float32(gray))
			}
		}
		out.ValidArea = src.ValidArea
		out.OrigSize = src.OrigSize
		t.result = out
		t.LimitValidArea(src.ValidArea)
		return nil
	})
}

// derivePCAWeights samples a uniform sampleGrid x sampleGrid grid from
// src, computes the first principal component of the (B,G,R) samples,
// scales it so the dominant axis has coefficient 1, centres it by
// subtracting its projection of the zero vector (a no-op for a pure
// linear eigenvector, kept to mirror spec §4.5's phrasing), and
// normalises the result so the three weights sum to 1.
func derivePCAWeights(src *rawimage.Image) Weights {
	n := sampleGrid * sampleGrid
	samples := mat.NewDense(n, 3, nil)

	row := 0
	for j := 0; j < sampleGrid; j++ {
		sy := j * src.Height / sampleGrid
		for i := 0; i < sampleGrid; i++ {
			sx := i * src.Width / sampleGrid
			samples.Set(row, 0, float64(src.At(sx, sy, 0)))
			samples.Set(row, 1, float64(src.At(sx, sy, 1)))
			samples.Set(row, 2, float64(src.At(sx, sy, 2)))
			row++
		}
	}

	var mean [3]float64
	for c := 0; c < 3; c++ {
		col := mat.Col(nil, c, samples)
		var sum float64
		for _, v := range col {
			sum += v
		}
		mean[c] = sum / float64(n)
	}

	centered := mat.NewDense(n, 3, nil)
	for i := 0; i < n; i++ {
		for c := 0; c < 3; c++ {
			centered.Set(i, c, samples.At(i, c)-mean[c])
		}
	}

	var cov mat.SymDense
	cov.SymOuterK(1.0/float64(n-1), centered.T())

	var eig mat.EigenSym
	if !eig.Factorize(&cov, true) {
		// eigen factorisation failed: fall back to equal weights
		// rather than an undefined eigenvector.
		return Weights{B: 1.0 / 3, G: 1.0 / 3, R: 1.0 / 3}
	}

	values := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	v := [3]float64{vecs.At(0, best), vecs.At(1, best), vecs.At(2, best)}

	dominant := 0
	for i := 1; i < 3; i++ {
		if abs(v[i]) > abs(v[dominant]) {
			dominant = i
		}
	}
	if v[dominant] != 0 {
		scale := 1.0 / v[dominant]
		for i := range v {
			v[i] *= scale
		}
	}

	// "subtract the projection of the zero vector": for a pure linear
	// map f(x) = v.x this projection is v.(0,0,0) = 0, so it leaves v
	// unchanged; kept as an explicit no-op step for clarity.
	zeroProj := v[0]*0 + v[1]*0 + v[2]*0
	for i := range v {
		v[i] -= zeroProj
	}

	sum := v[0] + v[1] + v[2]
	if sum != 0 {
		for i := range v {
			v[i] /= sum
		}
	}

	return Weights{B: v[0], G: v[1], R: v[2]}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
