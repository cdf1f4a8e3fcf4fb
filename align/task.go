package align

import (
	"focusstack/geom"
	"focusstack/imgtask"
	"focusstack/rawimage"
)

// Task is the Alignment stage (spec C6). It is also used, trivially, for
// the reference image itself: RefColor == nil marks the identity case,
// scheduled only so every downstream consumer sees a uniform Task type.
// Source/Reference fields are rawimage.Provider rather than resolved
// images, so the graph can be wired before any producer has run; Run
// resolves them once its own dependencies guarantee they're Done.
type Task struct {
	imgtask.Base

	SourceColor rawimage.Provider
	SourceGray  rawimage.Provider
	RefColor    rawimage.Provider // nil for the reference's own identity task
	RefGray     rawimage.Provider

	InitialGuess *Task // neighbour's fitted transform, or nil
	Stacked      *Task // global predecessor to compose against, or nil

	NoContrast     bool
	NoWhiteBalance bool
	FullResolution bool
	GlobalAlign    bool
	KeepSize       bool

	Transform Transform
	result    *rawimage.Image
	converged bool
}

func New(name string, srcColor, srcGray, refColor, refGray rawimage.Provider, index int, deps []imgtask.Task) *Task {
	return &Task{
		Base:        imgtask.NewBase("align:"+name, name, index, false, deps),
		SourceColor: srcColor,
		SourceGray:  srcGray,
		RefColor:    refColor,
		RefGray:     refGray,
	}
}

// NewIdentity builds the reference's own alignment task: identity
// transform, scheduled so downstream stages can depend on an align.Task
// uniformly regardless of whether they're looking at the reference or
// any other image (spec §4.6, "reference image special case").
func NewIdentity(color rawimage.Provider, index int, deps []imgtask.Task) *Task {
	return &Task{
		Base:        imgtask.NewBase("align:identity", "reference", index, false, deps),
		SourceColor: color,
		Transform:   Identity(),
	}
}

func (t *Task) Result() *rawimage.Image { return t.result }
func (t *Task) Converged() bool         { return t.converged }

func (t *Task) Run(logger imgtask.Logger) error {
	return t.RunOnce(func() error {
		srcColor := t.SourceColor.Result()

		if t.RefColor == nil {
			// Identity path.
			t.Transform = Identity()
			t.converged = true
			t.result = srcColor
			t.LimitValidArea(srcColor.ValidArea)
			return nil
		}
		refColor := t.RefColor.Result()
		if refColor == srcColor {
			t.Transform = Identity()
			t.converged = true
			t.result = srcColor
			t.LimitValidArea(srcColor.ValidArea)
			return nil
		}

		gain := [3]float64{1, 1, 1}
		if !t.NoContrast {
			gain = contrastMatch(refColor, srcColor)
		}
		if !t.NoWhiteBalance {
			wb := whiteBalanceMatch(refColor, srcColor)
			for c := range gain {
				gain[c] *= wb[c]
			}
		}

		initial := Identity()
		if t.InitialGuess != nil {
			initial = t.InitialGuess.Transform
		}

		refBuf := toGrayBuffer(t.RefGray.Result())
		srcBuf := toGrayBuffer(t.SourceGray.Result())

		fitted, ok := SearchECC(refBuf, srcBuf, initial, t.FullResolution)
		t.converged = ok
		if !ok {
			logger.Verbosef("%s: ECC did not converge, falling back to predecessor transform", t.Name())
			fitted = initial
		}

		local := fitted
		if t.Stacked != nil {
			fitted = Compose(t.Stacked.Transform, local)
		}
		t.Transform = fitted

		warped := InverseWarp(srcColor, fitted, gain)
		warped.OrigSize = srcColor.OrigSize
		warped.ValidArea = srcColor.ValidArea

		if !t.KeepSize {
			band := BorderBand(fitted)
			warped.ValidArea = shrink(warped.ValidArea, band)
		}

		t.result = warped
		t.LimitValidArea(warped.ValidArea)
		return nil
	})
}

func shrink(r geom.Rect, band int) geom.Rect {
	return geom.Rect{
		MinX: r.MinX + band, MinY: r.MinY + band,
		MaxX: r.MaxX - band, MaxY: r.MaxY - band,
	}
}

func toGrayBuffer(im *rawimage.Image) *grayBuffer {
	return &grayBuffer{W: im.Width, H: im.Height, Data: im.GrayChannel()}
}

// contrastMatch is the scalar ratio of reference luminance sum to source
// luminance sum (spec §4.6 step 1), applied identically to every colour
// channel.
func contrastMatch(ref, src *rawimage.Image) [3]float64 {
	ratio := channelSum(ref, -1) / channelSum(src, -1)
	return [3]float64{ratio, ratio, ratio}
}

// whiteBalanceMatch is a per-channel gain so the source's channel sums
// match the reference's (spec §4.6 step 2, colour input only).
func whiteBalanceMatch(ref, src *rawimage.Image) [3]float64 {
	var gain [3]float64
	for c := 0; c < 3; c++ {
		rs := channelSum(ref, c)
		ss := channelSum(src, c)
		if ss == 0 {
			gain[c] = 1
			continue
		}
		gain[c] = rs / ss
	}
	return gain
}

// channelSum sums a single channel (or, if c < 0, all channels) over the
// image's ValidArea, matching the "luminance sum" / "channel sums"
// language of spec §4.6.
func channelSum(im *rawimage.Image, c int) float64 {
	area := im.ValidArea
	if area.Empty() {
		area = im.Bounds()
	}
	var sum float64
	ch := im.Channels()
	for y := area.MinY; y < area.MaxY; y++ {
		for x := area.MinX; x < area.MaxX; x++ {
			if c < 0 {
				for cc := 0; cc < ch; cc++ {
					sum += float64(im.At(x, y, cc))
				}
			} else if c < ch {
				sum += float64(im.At(x, y, c))
			}
		}
	}
	if sum == 0 {
		return 1
	}
	return sum
}
