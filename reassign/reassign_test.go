package reassign

import (
	"testing"

	"github.com/stretchr/testify/require"

	"focusstack/geom"
	"focusstack/rawimage"
)

type noopLogger struct{}

func (noopLogger) Verbosef(string, ...any)  {}
func (noopLogger) Progressf(string, ...any) {}
func (noopLogger) Infof(string, ...any)     {}
func (noopLogger) Errorf(string, ...any)    {}

// fakeSource wraps a bare *rawimage.Image with a fixed valid area,
// standing in for an *align.Task/*grayscale.Task in tests that don't
// need a real task.
type fakeSource struct {
	img  *rawimage.Image
	area geom.Rect
}

func (f fakeSource) Result() *rawimage.Image { return f.img }
func (f fakeSource) ValidArea() geom.Rect    { return f.area }

// I7: the reassignment map contains every distinct (gray, colour) seen
// in the stack for each pixel; running Reassign on any merged grayscale
// yields a colour whose gray channel appears in the map.
func TestColorMapContainsEveryDistinctPair(t *testing.T) {
	gray1 := rawimage.NewImage(rawimage.F32, 2, 2, 0)
	color1 := rawimage.NewImage(rawimage.U8x3, 2, 2, 0)
	gray1.Set(0, 0, 0, 0.2)
	color1.Set(0, 0, 0, 0.2)
	color1.Set(0, 0, 1, 0.3)
	color1.Set(0, 0, 2, 0.4)

	gray2 := rawimage.NewImage(rawimage.F32, 2, 2, 1)
	color2 := rawimage.NewImage(rawimage.U8x3, 2, 2, 1)
	gray2.Set(0, 0, 0, 0.8)
	color2.Set(0, 0, 0, 0.8)
	color2.Set(0, 0, 1, 0.1)
	color2.Set(0, 0, 2, 0.1)

	area := geom.NewRect(0, 0, 2, 2)
	batch := []BatchMember{
		{Gray: fakeSource{img: gray1, area: area}, Color: fakeSource{img: color1, area: area}},
		{Gray: fakeSource{img: gray2, area: area}, Color: fakeSource{img: color2, area: area}},
	}
	task := NewMapTask("t", nil, batch, 0, nil)
	require.NoError(t, task.Run(noopLogger{}))

	m := task.Result()
	entries := m.Entries[0]
	require.Len(t, entries, 2)

	merged := rawimage.NewImage(rawimage.F32, 2, 2, 0)
	merged.Set(0, 0, 0, 0.79) // closer to gray2's 0.8 than gray1's 0.2
	reassign := NewReassignTask("r", merged, task, 0, nil)
	require.NoError(t, reassign.Run(noopLogger{}))
	out := reassign.Result()
	require.InDelta(t, 0.8, out.At(0, 0, 0), 1e-6)
}

func TestColorMapDeduplicatesExactGrayMatches(t *testing.T) {
	m := NewColorMap(1, 1)
	gray := rawimage.NewImage(rawimage.F32, 1, 1, 0)
	color := rawimage.NewImage(rawimage.U8x3, 1, 1, 0)
	gray.Set(0, 0, 0, 0.5)
	color.Set(0, 0, 0, 0.5)
	area := geom.NewRect(0, 0, 1, 1)
	m.Update(gray, color, area)
	m.Update(gray, color, area) // identical gray, should not duplicate
	require.Len(t, m.Entries[0], 1)
}

func TestGrayClampBoundsOutput(t *testing.T) {
	g1 := rawimage.NewImage(rawimage.F32, 1, 1, 0)
	g1.Set(0, 0, 0, 0.1)
	g2 := rawimage.NewImage(rawimage.F32, 1, 1, 1)
	g2.Set(0, 0, 0, 0.9)
	area := geom.NewRect(0, 0, 1, 1)

	rangeTask := NewGrayRangeMapTask("t", nil, []GrayBatchMember{
		{Gray: fakeSource{img: g1, area: area}}, {Gray: fakeSource{img: g2, area: area}},
	}, 0, nil)
	require.NoError(t, rangeTask.Run(noopLogger{}))

	merged := rawimage.NewImage(rawimage.F32, 1, 1, 0)
	merged.Set(0, 0, 0, 5.0) // way outside [0.1, 0.9]
	clamp := NewGrayClampTask("c", merged, rangeTask, 0, nil)
	require.NoError(t, clamp.Run(noopLogger{}))
	require.InDelta(t, 0.9, clamp.Result().At(0, 0, 0), 1e-6)
}
