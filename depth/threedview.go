package depth

import (
	"image/color"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"focusstack/rawimage"
)

// Viewpoint holds the --3dviewpoint=x:y:z:zscale oblique projection
// parameters: X/Y/Z steer the shear direction of the viewing ray, ZScale
// exaggerates relief.
type Viewpoint struct {
	X, Y, Z, ZScale float64
}

const viewBins = 16

type viewBucket struct {
	xs, ys           []float64
	sumR, sumG, sumB float64
	count            int
}

// RenderView reprojects a depth map and its matching colour frame into an
// oblique heightfield PNG (--3dview): sampled pixels are sheared in screen
// space by their depth along the viewpoint ray, then grouped into
// depth-ordered scatter series coloured by the average RGB of the points
// they hold, so far bands plot before near ones like a simple back-to-front
// relief. An interactive 3-D viewer stays out of scope; this is a static
// render onto a gonum/plot canvas, one plotter.Scatter series per colour
// bucket, styled via GlyphStyle.
func RenderView(colorImg *rawimage.Image, fit *FitResult, vp Viewpoint, path string, w, h vg.Length) error {
	area := colorImg.ValidArea
	width, height := area.Dx(), area.Dy()
	if width <= 0 || height <= 0 {
		width, height = colorImg.Width, colorImg.Height
		area.MinX, area.MinY = 0, 0
	}
	if width <= 0 || height <= 0 || fit.Width <= 0 || fit.Height <= 0 {
		return errors.New("3d view: empty image")
	}

	step := width / 200
	if step < 1 {
		step = 1
	}

	minZ, maxZ := fit.Depth[0], fit.Depth[0]
	for _, z := range fit.Depth {
		if z < minZ {
			minZ = z
		}
		if z > maxZ {
			maxZ = z
		}
	}
	span := maxZ - minZ
	if span == 0 {
		span = 1
	}

	buckets := make([]viewBucket, viewBins)
	ch := colorImg.Channels()

	for y := 0; y < height; y += step {
		fy := y * fit.Height / height
		for x := 0; x < width; x += step {
			fx := x * fit.Width / width
			z := fit.Depth[fy*fit.Width+fx]

			t := float64((z - minZ) / span)
			idx := int(t * float64(viewBins-1))
			if idx < 0 {
				idx = 0
			}
			if idx >= viewBins {
				idx = viewBins - 1
			}

			sx, sy := area.MinX+x, area.MinY+y
			var r, g, b float32
			if ch >= 3 {
				r, g, b = colorImg.At(sx, sy, 0), colorImg.At(sx, sy, 1), colorImg.At(sx, sy, 2)
			} else {
				v := colorImg.At(sx, sy, 0)
				r, g, b = v, v, v
			}

			screenX := float64(x) + vp.X*float64(z)*vp.ZScale
			screenY := float64(height-y) + vp.Y*float64(z)*vp.ZScale - vp.Z*float64(z)*vp.ZScale

			bk := &buckets[idx]
			bk.xs = append(bk.xs, screenX)
			bk.ys = append(bk.ys, screenY)
			bk.sumR += float64(r)
			bk.sumG += float64(g)
			bk.sumB += float64(b)
			bk.count++
		}
	}

	p := plot.New()
	p.Title.Text = "focus stack 3d view"
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y (far to near)"
	p.Add(plotter.NewGrid())

	drawn := 0
	for _, bk := range buckets {
		if bk.count == 0 {
			continue
		}
		pts := make(plotter.XYs, bk.count)
		for i := range bk.xs {
			pts[i].X = bk.xs[i]
			pts[i].Y = bk.ys[i]
		}
		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return errors.Wrap(err, "3d view: build scatter series")
		}
		scatter.GlyphStyle.Color = color.RGBA{
			R: clamp8(float32(bk.sumR / float64(bk.count))),
			G: clamp8(float32(bk.sumG / float64(bk.count))),
			B: clamp8(float32(bk.sumB / float64(bk.count))),
			A: 255,
		}
		scatter.GlyphStyle.Radius = vg.Points(1.5)
		p.Add(scatter)
		drawn++
	}
	if drawn == 0 {
		return errors.New("3d view: no samples to plot")
	}

	if err := p.Save(w, h, path); err != nil {
		return errors.Wrapf(err, "3d view: save %s", path)
	}
	return nil
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
