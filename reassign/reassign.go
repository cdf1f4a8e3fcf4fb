// Package reassign implements the Reassign stage (spec C9): colour
// reconstruction from fused luminance via a per-pixel (gray, colour)
// lookup table built incrementally across the stack, or (for already
// single-channel inputs) a per-pixel range clamp.
package reassign

import (
	"focusstack/geom"
	"focusstack/imgtask"
	"focusstack/rawimage"
)

const maxEntriesPerPixel = 255

type colorEntry struct {
	Gray  float32
	Color [3]float32
}

// ColorMap is the per-pixel (gray, colour) lookup table used to
// reassign colour onto a grayscale-fused result. Entries is the
// growable, per-pixel view; Flatten produces a packed colors[]/counts[]
// representation on demand, while Entries is what Update and Nearest
// operate on directly.
type ColorMap struct {
	Width, Height int
	Entries       [][]colorEntry
}

func NewColorMap(w, h int) *ColorMap {
	return &ColorMap{Width: w, Height: h, Entries: make([][]colorEntry, w*h)}
}

// Update folds one batch member's aligned grayscale and colour images
// into the map: for each pixel, the union of distinct (gray, colour)
// pairs seen across the stack, deduplicated by exact gray match and
// capped at maxEntriesPerPixel entries (spec §4.9).
func (m *ColorMap) Update(gray, color *rawimage.Image, area geom.Rect) {
	for y := area.MinY; y < area.MaxY; y++ {
		for x := area.MinX; x < area.MaxX; x++ {
			idx := y*m.Width + x
			g := gray.At(x, y, 0)

			entries := m.Entries[idx]
			duplicate := false
			for i := range entries {
				if entries[i].Gray == g {
					duplicate = true
					break
				}
			}
			if duplicate || len(entries) >= maxEntriesPerPixel {
				continue
			}
			m.Entries[idx] = append(entries, colorEntry{
				Gray:  g,
				Color: [3]float32{color.At(x, y, 0), color.At(x, y, 1), color.At(x, y, 2)},
			})
		}
	}
}

// Nearest returns the colour whose recorded gray value minimises
// |gray - target|, ties broken by first-seen (insertion) order.
func (m *ColorMap) Nearest(x, y int, target float32) [3]float32 {
	entries := m.Entries[y*m.Width+x]
	if len(entries) == 0 {
		return [3]float32{target, target, target}
	}
	best := entries[0]
	bestDist := absf(entries[0].Gray - target)
	for _, e := range entries[1:] {
		d := absf(e.Gray - target)
		if d < bestDist {
			best, bestDist = e, d
		}
	}
	return best.Color
}

// Flatten produces the packed colors[]/counts[] representation named in
// spec §4.9: counts[i] holds entries_per_pixel-1 for pixel i (u8), and
// colors[] is every pixel's entries concatenated in order.
func (m *ColorMap) Flatten() (colors [][3]float32, counts []uint8) {
	counts = make([]uint8, len(m.Entries))
	for i, entries := range m.Entries {
		if len(entries) == 0 {
			continue
		}
		counts[i] = uint8(len(entries) - 1)
		for _, e := range entries {
			colors = append(colors, e.Color)
		}
	}
	return colors, counts
}

func absf(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// MapTask incrementally builds a ColorMap across a batch, chained
// through Previous the way the merge rolling state is (spec §4.9).
type MapTask struct {
	imgtask.Base

	Previous *MapTask
	Batch    []BatchMember

	result *ColorMap
}

// ImageSource is an aligned-image producer whose buffer and valid area
// are both resolved lazily, inside Run, rather than when the batch is
// assembled — mirrors merge.Source. *align.Task and *grayscale.Task both
// satisfy this directly (Result from rawimage.Provider, ValidArea from
// their embedded imgtask.Base).
type ImageSource interface {
	rawimage.Provider
	ValidArea() geom.Rect
}

// BatchMember is one image's aligned grayscale and colour pair
// contributed to a map-build batch.
type BatchMember struct {
	Gray, Color ImageSource
}

func NewMapTask(name string, previous *MapTask, batch []BatchMember, index int, deps []imgtask.Task) *MapTask {
	return &MapTask{
		Base:     imgtask.NewBase("reassign-map:"+name, name, index, false, deps),
		Previous: previous,
		Batch:    batch,
	}
}

func (t *MapTask) Result() *ColorMap { return t.result }

func (t *MapTask) Run(logger imgtask.Logger) error {
	return t.RunOnce(func() error {
		var w, h int
		if len(t.Batch) > 0 {
			first := t.Batch[0].Gray.Result()
			w, h = first.Width, first.Height
		} else if t.Previous != nil {
			w, h = t.Previous.Result().Width, t.Previous.Result().Height
		}

		var m *ColorMap
		if t.Previous != nil {
			prev := t.Previous.Result()
			m = &ColorMap{Width: prev.Width, Height: prev.Height, Entries: make([][]colorEntry, len(prev.Entries))}
			for i, e := range prev.Entries {
				m.Entries[i] = append([]colorEntry(nil), e...)
			}
		} else {
			m = NewColorMap(w, h)
		}

		for _, member := range t.Batch {
			m.Update(member.Gray.Result(), member.Color.Result(), member.Gray.ValidArea())
		}

		logger.Verbosef("%s: updated colour map across %d images", t.Name(), len(t.Batch))
		t.result = m
		return nil
	})
}

// ReassignTask is the final Reassign task: given the inverse-wavelet
// merged grayscale and a finalised ColorMap, writes
// result[p] = map[p].nearest(merged[p]).colour (spec §4.9).
type ReassignTask struct {
	imgtask.Base

	Merged rawimage.Provider
	Map    *MapTask

	result *rawimage.Image
}

func NewReassignTask(name string, merged rawimage.Provider, colorMap *MapTask, index int, deps []imgtask.Task) *ReassignTask {
	return &ReassignTask{
		Base:   imgtask.NewBase("reassign:"+name, name, index, false, deps),
		Merged: merged,
		Map:    colorMap,
	}
}

func (t *ReassignTask) Result() *rawimage.Image { return t.result }

func (t *ReassignTask) Run(logger imgtask.Logger) error {
	return t.RunOnce(func() error {
		merged := t.Merged.Result()
		m := t.Map.Result()
		out := rawimage.NewImage(rawimage.U8x3, merged.Width, merged.Height, merged.Index)
		for y := 0; y < merged.Height; y++ {
			for x := 0; x < merged.Width; x++ {
				gray := merged.At(x, y, 0)
				c := m.Nearest(x, y, gray)
				out.Set(x, y, 0, c[0])
				out.Set(x, y, 1, c[1])
				out.Set(x, y, 2, c[2])
			}
		}
		out.ValidArea = merged.ValidArea
		out.OrigSize = merged.OrigSize
		t.result = out
		t.LimitValidArea(merged.ValidArea)
		logger.Progressf("%s: reassigned colour", t.Name())
		return nil
	})
}
