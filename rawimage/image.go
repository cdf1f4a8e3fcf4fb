// Package rawimage implements the Load and Save stages (spec C4/C11) and
// the Image artifact (spec §3) shared by every image-producing task.
package rawimage

import "focusstack/geom"

// ElemKind tags an Image's element type, per spec §3's buffer element
// type set.
type ElemKind int

const (
	U8 ElemKind = iota
	U8x3
	F32
	F32x2
	F32x8
	U16
)

func (k ElemKind) Channels() int {
	switch k {
	case U8, F32, U16:
		return 1
	case U8x3:
		return 3
	case F32x2:
		return 2
	case F32x8:
		return 8
	default:
		return 1
	}
}

// Image is the output artifact of every image-producing task. The pixel
// buffer is stored uniformly as float32 regardless of ElemKind; ElemKind
// only records the semantic element type and channel count used by
// Save's codec mapping and by range-clamp behavior.
//
// ValidArea is the sub-rectangle with meaningful content; the
// surrounding pixels are mirror-padding added for wavelet alignment or
// reflection borders from warps. Every transformation narrows ValidArea
// by intersection — see imgtask.Base.LimitValidArea.
type Image struct {
	Kind     ElemKind
	Width    int
	Height   int
	Data     []float32 // row-major, Width*Height*Channels
	ValidArea geom.Rect
	OrigSize geom.Size
	Index    int
}

func NewImage(kind ElemKind, width, height, index int) *Image {
	return &Image{
		Kind:   kind,
		Width:  width,
		Height: height,
		Data:   make([]float32, width*height*kind.Channels()),
		Index:  index,
	}
}

func (im *Image) Channels() int { return im.Kind.Channels() }

// Provider is satisfied by any task (LoadTask, grayscale.Task,
// align.Task, wavelet.InverseTask, reassign.ReassignTask, ...) that
// produces an Image, and by *Image itself (returning itself) — this
// lets orchestration code wire a dependency graph by holding the
// producer task rather than its not-yet-computed result, resolving the
// actual buffer lazily inside Run() once the scheduler has guaranteed
// the dependency is Done.
type Provider interface {
	Result() *Image
}

// Result implements Provider on *Image directly, so a literal buffer
// (as used in tests, or a task with no further producer) can stand in
// wherever a Provider is expected.
func (im *Image) Result() *Image { return im }

func (im *Image) offset(x, y, c int) int {
	return (y*im.Width+x)*im.Channels() + c
}

func (im *Image) At(x, y, c int) float32 {
	return im.Data[im.offset(x, y, c)]
}

func (im *Image) Set(x, y, c int, v float32) {
	im.Data[im.offset(x, y, c)] = v
}

// Bounds returns the full buffer bounds (including padding).
func (im *Image) Bounds() geom.Rect {
	return geom.NewRect(0, 0, im.Width, im.Height)
}

// Clone returns a deep copy, used where a stage must keep its source
// buffer immutable (e.g. Align writes a new warped image rather than
// mutating the input colour frame in place).
func (im *Image) Clone() *Image {
	out := &Image{
		Kind: im.Kind, Width: im.Width, Height: im.Height,
		ValidArea: im.ValidArea, OrigSize: im.OrigSize, Index: im.Index,
	}
	out.Data = make([]float32, len(im.Data))
	copy(out.Data, im.Data)
	return out
}

// GrayChannel returns channel 0 as a []float64, the representation the
// wavelet and depth packages operate on.
func (im *Image) GrayChannel() []float64 {
	out := make([]float64, im.Width*im.Height)
	ch := im.Channels()
	for i := 0; i < im.Width*im.Height; i++ {
		out[i] = float64(im.Data[i*ch])
	}
	return out
}

// SetGrayChannel writes a []float64 back into channel 0 (used when
// ElemKind is F32/U16, i.e. single channel).
func (im *Image) SetGrayChannel(v []float64) {
	ch := im.Channels()
	for i := 0; i < im.Width*im.Height && i < len(v); i++ {
		im.Data[i*ch] = float32(v[i])
	}
}
