package depth

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"focusstack/imgtask"
	"focusstack/rawimage"
)

const guoChannels = 8

// AccumulatorState is the per-pixel 8-channel Guo accumulator (spec §3's
// Depth accumulator): Σy², Σxy², Σx²y², Σx³y², Σx⁴y², Σy²lny, Σxy²lny,
// Σx²y²lny, with x = layer index and y = max(focus_measure-noise_floor,1).
type AccumulatorState struct {
	Width, Height int
	Data          []float64 // w*h*guoChannels
}

func newAccumulatorState(w, h int) *AccumulatorState {
	return &AccumulatorState{Width: w, Height: h, Data: make([]float64, w*h*guoChannels)}
}

func (s *AccumulatorState) at(idx, ch int) float64 { return s.Data[idx*guoChannels+ch] }
func (s *AccumulatorState) add(idx, ch int, v float64) {
	s.Data[idx*guoChannels+ch] += v
}

// AccumulateTask folds one layer's focus measure into the running
// accumulator, chained through Previous so re-execution is linear in
// the number of layers (spec §4.10).
type AccumulateTask struct {
	imgtask.Base

	Previous     *AccumulateTask
	FocusMeasure rawimage.Provider
	LayerIndex   int
	NoiseFloor   float64

	result *AccumulatorState
}

func NewAccumulateTask(name string, previous *AccumulateTask, fm rawimage.Provider, layerIndex int, noiseFloor float64, index int, deps []imgtask.Task) *AccumulateTask {
	return &AccumulateTask{
		Base:         imgtask.NewBase("depth-accum:"+name, name, index, false, deps),
		Previous:     previous,
		FocusMeasure: fm,
		LayerIndex:   layerIndex,
		NoiseFloor:   noiseFloor,
	}
}

func (t *AccumulateTask) Result() *AccumulatorState { return t.result }

func (t *AccumulateTask) Run(logger imgtask.Logger) error {
	return t.RunOnce(func() error {
		fm := t.FocusMeasure.Result()
		w, h := fm.Width, fm.Height
		var st *AccumulatorState
		if t.Previous != nil {
			prev := t.Previous.Result()
			st = &AccumulatorState{Width: prev.Width, Height: prev.Height, Data: append([]float64(nil), prev.Data...)}
		} else {
			st = newAccumulatorState(w, h)
		}

		x := float64(t.LayerIndex)
		x2, x3, x4 := x*x, x*x*x, x*x*x*x

		for i := 0; i < w*h; i++ {
			y := float64(fm.Data[i]) - t.NoiseFloor
			if y < 1 {
				y = 1
			}
			y2 := y * y
			lny := math.Log(y)

			st.add(i, 0, y2)
			st.add(i, 1, x*y2)
			st.add(i, 2, x2*y2)
			st.add(i, 3, x3*y2)
			st.add(i, 4, x4*y2)
			st.add(i, 5, y2*lny)
			st.add(i, 6, x*y2*lny)
			st.add(i, 7, x2*y2*lny)
		}

		t.result = st
		logger.Verbosef("%s: accumulated layer %d", t.Name(), t.LayerIndex)
		return nil
	})
}

// FitResult is the per-pixel Gaussian fit output: depth (mu), deviation
// (sigma), and amplitude, or the unknown-pixel sentinel (0, 255, 0).
type FitResult struct {
	Width, Height int
	Depth         []float32
	Dev           []float32
	Amp           []float32
}

// FitTask performs the final Guo closed-form fit (spec §4.10): at each
// pixel solve the 3x3 linear system A*C=B built from the accumulator's
// eight channels, extract (a,b,c), and accept the fit only if c is
// sufficiently negative and the resulting mu falls in [0, max_depth].
type FitTask struct {
	imgtask.Base

	Accumulator *AccumulateTask
	MaxDepth    float64

	result *FitResult
}

func NewFitTask(name string, accum *AccumulateTask, maxDepth float64, index int, deps []imgtask.Task) *FitTask {
	return &FitTask{
		Base:        imgtask.NewBase("depth-fit:"+name, name, index, false, deps),
		Accumulator: accum,
		MaxDepth:    maxDepth,
	}
}

func (t *FitTask) Result() *FitResult { return t.result }

func (t *FitTask) Run(logger imgtask.Logger) error {
	return t.RunOnce(func() error {
		st := t.Accumulator.Result()
		w, h := st.Width, st.Height
		res := &FitResult{Width: w, Height: h, Depth: make([]float32, w*h), Dev: make([]float32, w*h), Amp: make([]float32, w*h)}

		unknown := 0
		for i := 0; i < w*h; i++ {
			sy2 := st.at(i, 0)
			sxy2 := st.at(i, 1)
			sx2y2 := st.at(i, 2)
			sx3y2 := st.at(i, 3)
			sx4y2 := st.at(i, 4)
			sy2lny := st.at(i, 5)
			sxy2lny := st.at(i, 6)
			sx2y2lny := st.at(i, 7)

			A := mat.NewDense(3, 3, []float64{
				sy2, sxy2, sx2y2,
				sxy2, sx2y2, sx3y2,
				sx2y2, sx3y2, sx4y2,
			})
			B := mat.NewVecDense(3, []float64{sy2lny, sxy2lny, sx2y2lny})

			var C mat.VecDense
			if err := C.SolveVec(A, B); err != nil {
				markUnknown(res, i)
				unknown++
				continue
			}
			a, b, c := C.AtVec(0), C.AtVec(1), C.AtVec(2)

			if c >= -1e-5 {
				markUnknown(res, i)
				unknown++
				continue
			}
			mu := -b / (2 * c)
			if mu < 0 || mu > t.MaxDepth {
				markUnknown(res, i)
				unknown++
				continue
			}
			sigma := math.Sqrt(-1 / (2 * c))
			amp := math.Exp(a - b*b/(4*c))

			res.Depth[i] = float32(mu)
			res.Dev[i] = float32(sigma)
			res.Amp[i] = float32(amp)
		}

		logger.Progressf("%s: fit complete, %d/%d pixels unknown", t.Name(), unknown, w*h)
		t.result = res
		return nil
	})
}

func markUnknown(res *FitResult, i int) {
	res.Depth[i] = 0
	res.Dev[i] = 255
	res.Amp[i] = 0
}
