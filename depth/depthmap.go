package depth

import (
	"focusstack/geom"
	"focusstack/imgtask"
	"focusstack/rawimage"
)

// DepthmapTask renders an InpaintTask's final per-pixel depth into a
// single-channel Image normalized to [0,1] by the fit's MaxDepth, so the
// depth map can be written out through the same rawimage.SaveTask every
// other stage uses, rather than a bespoke codec path.
type DepthmapTask struct {
	imgtask.Base

	Inpaint *InpaintTask

	result *rawimage.Image
}

func NewDepthmapTask(name string, inpaint *InpaintTask, index int, deps []imgtask.Task) *DepthmapTask {
	return &DepthmapTask{
		Base:    imgtask.NewBase("depthmap:"+name, name, index, false, deps),
		Inpaint: inpaint,
	}
}

func (t *DepthmapTask) Result() *rawimage.Image { return t.result }

func (t *DepthmapTask) Run(logger imgtask.Logger) error {
	return t.RunOnce(func() error {
		depthVals := t.Inpaint.Result()
		fit := t.Inpaint.Fit.Result()
		maxDepth := t.Inpaint.Fit.MaxDepth
		if maxDepth <= 0 {
			maxDepth = 1
		}

		out := rawimage.NewImage(rawimage.F32, fit.Width, fit.Height, t.Index())
		for i, v := range depthVals {
			out.Data[i] = float32(float64(v) / maxDepth)
		}
		out.ValidArea = geom.NewRect(0, 0, fit.Width, fit.Height)
		out.OrigSize = geom.Size{W: fit.Width, H: fit.Height}

		t.result = out
		t.LimitValidArea(out.ValidArea)
		logger.Verbosef("%s: rendered depthmap", t.Name())
		return nil
	})
}
