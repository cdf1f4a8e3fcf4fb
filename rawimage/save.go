package rawimage

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"focusstack/imgtask"
)

// SaveTask is the Save stage (spec C11): crop a buffer down to its
// ValidArea, convert to a standard colour image, and either write it to
// a codec sink or retain it in memory for a caller that asked for
// ":memory:" (e.g. a diagnostics preview or align-only intermediate).
type SaveTask struct {
	imgtask.Base

	Source      Provider
	Path        string // ":memory:" or "" retains the converted image instead of writing it
	JPEGQuality int

	result image.Image
}

func NewSaveTask(name string, src Provider, index int, path string, jpegQuality int, deps []imgtask.Task) *SaveTask {
	return &SaveTask{
		Base:        imgtask.NewBase("save:"+name, path, index, false, deps),
		Source:      src,
		Path:        path,
		JPEGQuality: jpegQuality,
	}
}

// Result returns the cropped, converted standard-library image, populated whether or
// not Path was a real file (":memory:" retention relies on this).
func (t *SaveTask) Result() image.Image { return t.result }

func (t *SaveTask) Run(logger imgtask.Logger) error {
	return t.RunOnce(func() error {
		src := t.Source.Result()
		img := toStdImage(src)
		t.result = img
		t.LimitValidArea(src.ValidArea)

		if t.Path == "" || t.Path == ":memory:" {
			logger.Verbosef("retaining %s in memory", t.Name())
			return nil
		}

		opts := []imaging.EncodeOption{imaging.JPEGQuality(t.JPEGQuality)}
		if err := imaging.Save(img, t.Path, opts...); err != nil {
			return errors.Wrapf(err, "save %s", t.Path)
		}
		logger.Progressf("saved %s", t.Path)
		return nil
	})
}

// toStdImage crops src to its ValidArea and converts it to an
// image.RGBA, mapping the 1- and 2-channel element kinds (depth labels,
// merge statistics) into a grayscale preview, clamping float values to
// 8-bit range the same way clamp8 below does for the final save path.
func toStdImage(src *Image) image.Image {
	area := src.ValidArea
	w, h := area.Dx(), area.Dy()
	if w <= 0 || h <= 0 {
		w, h = src.Width, src.Height
		area.MinX, area.MinY = 0, 0
	}

	out := image.NewRGBA(image.Rect(0, 0, w, h))
	ch := src.Channels()
	for y := 0; y < h; y++ {
		sy := area.MinY + y
		for x := 0; x < w; x++ {
			sx := area.MinX + x
			var r, g, b uint8
			switch {
			case ch >= 3:
				r = clamp8(src.At(sx, sy, 0))
				g = clamp8(src.At(sx, sy, 1))
				b = clamp8(src.At(sx, sy, 2))
			default:
				// 1- or 2-channel buffers (depth labels, merge stats)
				// render as grayscale previews from channel 0.
				v := clamp8(src.At(sx, sy, 0))
				r, g, b = v, v, v
			}
			out.SetRGBA(x, y, color.RGBA{R: r, G: g, B: b, A: 255})
		}
	}
	return out
}

func clamp8(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v * 255.0)
}
