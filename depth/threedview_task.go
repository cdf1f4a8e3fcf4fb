package depth

import (
	"github.com/pkg/errors"
	"gonum.org/v1/plot/vg"

	"focusstack/imgtask"
	"focusstack/rawimage"
)

// ThreeDViewTask is the Save-stage consumer behind --3dview: it reads the
// same fitted depth map InpaintTask draws from and the final colour result,
// and renders the oblique heightfield PNG described by RenderView.
type ThreeDViewTask struct {
	imgtask.Base

	Color     rawimage.Provider
	Fit       *FitTask
	Viewpoint Viewpoint
	Path      string
}

func NewThreeDViewTask(name string, color rawimage.Provider, fit *FitTask, vp Viewpoint, path string, index int, deps []imgtask.Task) *ThreeDViewTask {
	return &ThreeDViewTask{
		Base:      imgtask.NewBase("3dview:"+name, name, index, false, deps),
		Color:     color,
		Fit:       fit,
		Viewpoint: vp,
		Path:      path,
	}
}

func (t *ThreeDViewTask) Run(logger imgtask.Logger) error {
	return t.RunOnce(func() error {
		colorImg := t.Color.Result()
		fit := t.Fit.Result()

		if err := RenderView(colorImg, fit, t.Viewpoint, t.Path, 8*vg.Inch, 8*vg.Inch); err != nil {
			return errors.Wrapf(err, "%s: render 3d view", t.Name())
		}
		t.LimitValidArea(colorImg.ValidArea)
		logger.Progressf("%s: saved 3d view to %s", t.Name(), t.Path)
		return nil
	})
}
