// Package merge implements the Merge stage (spec C8): a rolling,
// in-place fusion of forward-wavelet coefficients across a batch of
// input images, selecting the largest-magnitude coefficient at every
// position and tracking which input it came from.
package merge

import (
	"focusstack/geom"
	"focusstack/imgtask"
	"focusstack/wavelet"
)

// State is the rolling merge result (spec §3's Rolling merge state):
// the fused wavelet coefficients, the per-pixel source-image index that
// won at that position, and the squared magnitude that won it.
type State struct {
	Merged          *wavelet.Decomposition
	DepthLabel      []int
	MaxSqMagnitude  []float64
	ValidArea       geom.Rect
}

// Source is a forward-wavelet producer whose decomposition and valid
// area are both resolved lazily, inside Run, rather than at the moment
// the batch is assembled — the orchestrator builds a whole tick's batch
// before any of that tick's wavelet tasks have actually executed.
// *wavelet.ForwardTask satisfies this directly (Result from
// wavelet.Provider, ValidArea from its embedded imgtask.Base).
type Source interface {
	wavelet.Provider
	ValidArea() geom.Rect
}

// Input is one batch member: a forward-wavelet producer and the index of
// the source image it came from.
type Input struct {
	Decomp Source
	Index  int
}

// Task is the Merge stage. Previous is the rolling state to extend, or
// nil for the first batch. Consistency selects how many of the two
// optional denoise passes run (0, 1, or 2), per spec §4.8.
type Task struct {
	imgtask.Base

	Previous    *Task
	Batch       []Input
	Consistency int

	result *State
}

func New(name string, previous *Task, batch []Input, consistency int, index int, deps []imgtask.Task) *Task {
	return &Task{
		Base:        imgtask.NewBase("merge:"+name, name, index, false, deps),
		Previous:    previous,
		Batch:       batch,
		Consistency: consistency,
	}
}

func (t *Task) Result() *State { return t.result }

func (t *Task) Run(logger imgtask.Logger) error {
	return t.RunOnce(func() error {
		var prev *State
		if t.Previous != nil {
			prev = t.Previous.Result()
		}

		st, lookup := t.selectionPass(prev)

		if t.Consistency >= 1 {
			subbandConsistencyPass(st, lookup)
		}
		if t.Consistency >= 2 {
			neighbourConsistencyPass(st, lookup)
		}

		logger.Verbosef("%s: merged %d inputs, consistency=%d", t.Name(), len(t.Batch), t.Consistency)

		t.result = st
		t.LimitValidArea(st.ValidArea)
		return nil
	})
}

// selectionPass implements spec §4.8 pass 1: for each input in the
// batch, compute sq_mag and update max_sq_magnitude/merged_wavelet/
// depth_label where sq_mag > current_max. It also builds the transient
// index -> decomposition lookup the consistency passes need, and drops
// it once Run returns (not stored on Task/State).
func (t *Task) selectionPass(prev *State) (*State, map[int]*wavelet.Decomposition) {
	var w, h, levels int
	if len(t.Batch) > 0 {
		first := t.Batch[0].Decomp.Result()
		w, h, levels = first.Width, first.Height, first.Levels
	} else if prev != nil {
		w, h, levels = prev.Merged.Width, prev.Merged.Height, prev.Merged.Levels
	}

	st := &State{
		Merged:         wavelet.NewDecomposition(w, h, levels),
		DepthLabel:     make([]int, w*h),
		MaxSqMagnitude: make([]float64, w*h),
	}

	area := geom.NewRect(0, 0, w, h)
	if prev != nil {
		copy(st.Merged.Re, prev.Merged.Re)
		copy(st.Merged.Im, prev.Merged.Im)
		copy(st.DepthLabel, prev.DepthLabel)
		copy(st.MaxSqMagnitude, prev.MaxSqMagnitude)
		area = prev.ValidArea
	}

	lookup := make(map[int]*wavelet.Decomposition, len(t.Batch))
	for _, in := range t.Batch {
		decomp := in.Decomp.Result()
		lookup[in.Index] = decomp
		area = area.Intersect(in.Decomp.ValidArea())

		for i := 0; i < w*h; i++ {
			re, im := decomp.Re[i], decomp.Im[i]
			sq := re*re + im*im
			if sq > st.MaxSqMagnitude[i] {
				st.MaxSqMagnitude[i] = sq
				st.Merged.Re[i] = re
				st.Merged.Im[i] = im
				st.DepthLabel[i] = in.Index
			}
		}
	}
	st.ValidArea = area
	return st, lookup
}

// subbandConsistencyPass is spec §4.8 pass 2: at every level, when two
// of the three detail subbands agree on a depth_label and the third
// disagrees, the third is overwritten with the majority label and its
// coefficient re-fetched from that input.
//
// Applying this pass twice gives the same result as applying it once
// (spec I6): after the first pass every triple of subband positions is
// either unanimous or was just made unanimous, so a second pass finds
// no further disagreement.
func subbandConsistencyPass(st *State, lookup map[int]*wavelet.Decomposition) {
	w, h := st.Merged.Width, st.Merged.Height
	levels := st.Merged.Levels

	qw, qh := w, h
	for l := 0; l < levels; l++ {
		// Level l's detail subbands are the three halfW×halfH quadrants
		// beside the low-pass corner of the current qw×qh region.
		halfW, halfH := qw/2, qh/2
		for y := 0; y < halfH; y++ {
			for x := 0; x < halfW; x++ {
				hIdx := y*w + (x + halfW)   // horizontal detail
				vIdx := (y+halfH)*w + x     // vertical detail
				dIdx := (y+halfH)*w + (x + halfW) // diagonal detail
				resolveTriple(st, lookup, hIdx, vIdx, dIdx)
			}
		}
		qw, qh = halfW, halfH
	}
}

func resolveTriple(st *State, lookup map[int]*wavelet.Decomposition, idxs ...int) {
	counts := map[int]int{}
	for _, idx := range idxs {
		counts[st.DepthLabel[idx]]++
	}
	var majority, majCount int
	for label, c := range counts {
		if c > majCount {
			majority, majCount = label, c
		}
	}
	if majCount != 2 {
		return // unanimous (3) or no clear majority (all different)
	}
	for _, idx := range idxs {
		if st.DepthLabel[idx] != majority {
			src, ok := lookup[majority]
			if !ok {
				continue
			}
			st.DepthLabel[idx] = majority
			st.Merged.Re[idx] = src.Re[idx]
			st.Merged.Im[idx] = src.Im[idx]
			re, im := src.Re[idx], src.Im[idx]
			st.MaxSqMagnitude[idx] = re*re + im*im
		}
	}
}

// neighbourConsistencyPass is spec §4.8 pass 3: for every interior pixel
// of depth_label, if the four Von-Neumann neighbours are all strictly
// greater than or all strictly less than the centre, the centre is
// replaced by their integer average and the merged coefficient is
// re-fetched from that image.
func neighbourConsistencyPass(st *State, lookup map[int]*wavelet.Decomposition) {
	w, h := st.Merged.Width, st.Merged.Height
	labels := append([]int(nil), st.DepthLabel...)

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			idx := y*w + x
			center := labels[idx]
			up := labels[(y-1)*w+x]
			down := labels[(y+1)*w+x]
			left := labels[y*w+(x-1)]
			right := labels[y*w+(x+1)]

			allGreater := up > center && down > center && left > center && right > center
			allLess := up < center && down < center && left < center && right < center
			if !allGreater && !allLess {
				continue
			}
			avg := (up + down + left + right) / 4
			src, ok := lookup[avg]
			if !ok {
				continue
			}
			st.DepthLabel[idx] = avg
			st.Merged.Re[idx] = src.Re[idx]
			st.Merged.Im[idx] = src.Im[idx]
			re, im := src.Re[idx], src.Im[idx]
			st.MaxSqMagnitude[idx] = re*re + im*im
		}
	}
}
