package reassign

import (
	"focusstack/geom"
	"focusstack/imgtask"
	"focusstack/rawimage"
)

// GrayRangeMap is spec §4.9's grayscale-input sub-contract: the map
// reduces to (gray_min, gray_max) per pixel, computed element-wise
// across the stack.
type GrayRangeMap struct {
	Width, Height int
	Min, Max      []float32
}

func NewGrayRangeMap(w, h int) *GrayRangeMap {
	m := &GrayRangeMap{Width: w, Height: h, Min: make([]float32, w*h), Max: make([]float32, w*h)}
	for i := range m.Min {
		m.Min[i] = float32(1e30)
		m.Max[i] = float32(-1e30)
	}
	return m
}

func (m *GrayRangeMap) Update(gray *rawimage.Image, area geom.Rect) {
	for y := area.MinY; y < area.MaxY; y++ {
		for x := area.MinX; x < area.MaxX; x++ {
			idx := y*m.Width + x
			v := gray.At(x, y, 0)
			if v < m.Min[idx] {
				m.Min[idx] = v
			}
			if v > m.Max[idx] {
				m.Max[idx] = v
			}
		}
	}
}

// GrayRangeMapTask is the grayscale-input analogue of MapTask.
type GrayRangeMapTask struct {
	imgtask.Base

	Previous *GrayRangeMapTask
	Batch    []GrayBatchMember

	result *GrayRangeMap
}

type GrayBatchMember struct {
	Gray ImageSource
}

func NewGrayRangeMapTask(name string, previous *GrayRangeMapTask, batch []GrayBatchMember, index int, deps []imgtask.Task) *GrayRangeMapTask {
	return &GrayRangeMapTask{
		Base:     imgtask.NewBase("reassign-range:"+name, name, index, false, deps),
		Previous: previous,
		Batch:    batch,
	}
}

func (t *GrayRangeMapTask) Result() *GrayRangeMap { return t.result }

func (t *GrayRangeMapTask) Run(logger imgtask.Logger) error {
	return t.RunOnce(func() error {
		var w, h int
		if len(t.Batch) > 0 {
			first := t.Batch[0].Gray.Result()
			w, h = first.Width, first.Height
		} else if t.Previous != nil {
			w, h = t.Previous.Result().Width, t.Previous.Result().Height
		}

		var m *GrayRangeMap
		if t.Previous != nil {
			prev := t.Previous.Result()
			m = &GrayRangeMap{Width: prev.Width, Height: prev.Height,
				Min: append([]float32(nil), prev.Min...), Max: append([]float32(nil), prev.Max...)}
		} else {
			m = NewGrayRangeMap(w, h)
		}

		for _, member := range t.Batch {
			m.Update(member.Gray.Result(), member.Gray.ValidArea())
		}

		logger.Verbosef("%s: updated gray range across %d images", t.Name(), len(t.Batch))
		t.result = m
		return nil
	})
}

// GrayClampTask clamps the merged grayscale into [gray_min, gray_max]
// per pixel, suppressing inverse-wavelet ringing without changing hue
// (spec §4.9).
type GrayClampTask struct {
	imgtask.Base

	Merged rawimage.Provider
	Range  *GrayRangeMapTask

	result *rawimage.Image
}

func NewGrayClampTask(name string, merged rawimage.Provider, rangeMap *GrayRangeMapTask, index int, deps []imgtask.Task) *GrayClampTask {
	return &GrayClampTask{
		Base:   imgtask.NewBase("reassign-clamp:"+name, name, index, false, deps),
		Merged: merged,
		Range:  rangeMap,
	}
}

func (t *GrayClampTask) Result() *rawimage.Image { return t.result }

func (t *GrayClampTask) Run(logger imgtask.Logger) error {
	return t.RunOnce(func() error {
		merged := t.Merged.Result()
		r := t.Range.Result()
		out := rawimage.NewImage(rawimage.F32, merged.Width, merged.Height, merged.Index)
		for y := 0; y < merged.Height; y++ {
			for x := 0; x < merged.Width; x++ {
				idx := y*merged.Width + x
				v := merged.At(x, y, 0)
				if v < r.Min[idx] {
					v = r.Min[idx]
				}
				if v > r.Max[idx] {
					v = r.Max[idx]
				}
				out.Set(x, y, 0, v)
			}
		}
		out.ValidArea = merged.ValidArea
		out.OrigSize = merged.OrigSize
		t.result = out
		t.LimitValidArea(merged.ValidArea)
		logger.Progressf("%s: clamped merged grayscale", t.Name())
		return nil
	})
}
