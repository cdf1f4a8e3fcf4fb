package rawimage

import (
	"image"
	_ "image/jpeg"
	"image/png"
	"os"
	"sync"

	"github.com/pkg/errors"

	"focusstack/geom"
	"focusstack/imgtask"
	"focusstack/wavelet"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// decode picks a codec by file extension, covering the still-image
// formats this pipeline treats as external collaborators.
func decode(r *os.File, ext string) (image.Image, error) {
	switch ext {
	case ".png":
		return png.Decode(r)
	case ".bmp":
		return bmp.Decode(r)
	case ".tif", ".tiff":
		return tiff.Decode(r)
	default:
		// jpeg and any other registered codec: image.Decode dispatches on
		// the registered format sniffers (image/jpeg self-registers via
		// its blank import above).
		img, _, err := image.Decode(r)
		return img, err
	}
}

// LoadTask is the Load stage (spec C4): decode a source file, convert to
// the flat float32 colour buffer, and reflect-pad it to the wavelet-
// aligned size so every downstream stage operates on a uniform grid.
//
// In streaming mode (spec §4.4) a LoadTask for a file that does not yet
// exist stays not-ready until the file appears; ReadyToRun is overridden
// to check this instead of (the non-existent) dependency list.
type LoadTask struct {
	imgtask.Base

	Path       string
	WaitForFile bool

	mu     sync.Mutex
	result *Image
}

func NewLoadTask(path string, index int, waitForFile bool) *LoadTask {
	return &LoadTask{
		Base:        imgtask.NewBase("load:"+path, path, index, false, nil),
		Path:        path,
		WaitForFile: waitForFile,
	}
}

func (t *LoadTask) ReadyToRun() bool {
	if !t.WaitForFile {
		return true
	}
	_, err := os.Stat(t.Path)
	return err == nil
}

// Result returns the decoded, padded image. Valid only after Run has
// completed (State() == Done); callers that depend on this task always
// run after it per the scheduler's dependency ordering.
func (t *LoadTask) Result() *Image {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

func (t *LoadTask) Run(logger imgtask.Logger) error {
	return t.RunOnce(func() error {
		logger.Verbosef("loading %s", t.Path)

		f, err := os.Open(t.Path)
		if err != nil {
			return errors.Wrapf(err, "open %s", t.Path)
		}
		defer f.Close()

		ext := extOf(t.Path)
		decoded, err := decode(f, ext)
		if err != nil {
			return errors.Wrapf(err, "decode %s", t.Path)
		}

		bounds := decoded.Bounds()
		origW, origH := bounds.Dx(), bounds.Dy()
		padW, padH, _ := wavelet.PadSize(origW, origH)
		beforeX, _ := wavelet.SplitPad(padW, origW)
		beforeY, _ := wavelet.SplitPad(padH, origH)

		out := NewImage(U8x3, padW, padH, t.Index())
		for y := 0; y < padH; y++ {
			sy := reflectCoord(y-beforeY, origH)
			for x := 0; x < padW; x++ {
				sx := reflectCoord(x-beforeX, origW)
				r, g, b, _ := decoded.At(bounds.Min.X+sx, bounds.Min.Y+sy).RGBA()
				out.Set(x, y, 0, float32(r)/65535.0)
				out.Set(x, y, 1, float32(g)/65535.0)
				out.Set(x, y, 2, float32(b)/65535.0)
			}
		}
		out.ValidArea = geom.NewRect(beforeX, beforeY, origW, origH)
		out.OrigSize = geom.Size{W: origW, H: origH}
		t.SetValidArea(out.ValidArea)

		t.mu.Lock()
		t.result = out
		t.mu.Unlock()

		logger.Progressf("loaded %s (%dx%d, padded to %dx%d)", t.Path, origW, origH, padW, padH)
		return nil
	})
}

// reflectCoord mirrors an out-of-range coordinate back into [0,n) the way
// a reflect-padded border is built, matching spec §4.4's "reflect-pad
// centering the padding".
func reflectCoord(v, n int) int {
	if n <= 1 {
		return 0
	}
	period := 2 * n
	v = ((v % period) + period) % period
	if v >= n {
		v = period - 1 - v
	}
	return v
}

func extOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return lower(path[i:])
		}
		if path[i] == '/' {
			break
		}
	}
	return ""
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}
