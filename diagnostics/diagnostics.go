// Package diagnostics charts scheduler throughput: completed-task count
// sampled over wall-clock time during a run, rendered as a line plot.
// This is an optional, opt-in side channel (spec §1's "diagnostics are
// not part of the core pipeline contract") driven entirely from
// scheduler.Pool.GetStatus, never from task internals.
package diagnostics

import (
	"fmt"
	"image/color"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"focusstack/scheduler"
)

// Sample is one throughput observation: completed/total task counts at
// an elapsed time since recording started.
type Sample struct {
	Elapsed   time.Duration
	Completed int
	Total     int
}

// Recorder polls a scheduler.Pool's status on a fixed interval until
// stopped, building a Sample series for later plotting.
type Recorder struct {
	pool     *scheduler.Pool
	interval time.Duration
	start    time.Time
	samples  []Sample
	stop     chan struct{}
	done     chan struct{}
}

// NewRecorder builds a Recorder for pool; call Start to begin polling.
func NewRecorder(pool *scheduler.Pool, interval time.Duration) *Recorder {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return &Recorder{pool: pool, interval: interval, stop: make(chan struct{}), done: make(chan struct{})}
}

// Start begins polling in its own goroutine. now is the caller-supplied
// recording start time (Date.now()/time.Now() at the call site, not
// inside this package, so repeated runs stay reproducible in tests).
func (r *Recorder) Start(now time.Time) {
	r.start = now
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stop:
				return
			case t := <-ticker.C:
				total, completed := r.pool.GetStatus()
				r.samples = append(r.samples, Sample{Elapsed: t.Sub(r.start), Completed: completed, Total: total})
			}
		}
	}()
}

// Stop halts polling and blocks until the polling goroutine exits.
func (r *Recorder) Stop() []Sample {
	close(r.stop)
	<-r.done
	return r.samples
}

// SavePNG renders samples as a completed-vs-elapsed-seconds line chart
// to path, sized w x h inches.
func SavePNG(samples []Sample, title, path string, w, h vg.Length) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Elapsed (s)"
	p.Y.Label.Text = "Completed tasks"

	grid := plotter.NewGrid()
	p.Add(grid)

	pts := make(plotter.XYs, len(samples))
	for i, s := range samples {
		pts[i].X = s.Elapsed.Seconds()
		pts[i].Y = float64(s.Completed)
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return errors.Wrap(err, "diagnostics: build throughput line")
	}
	line.LineStyle.Width = vg.Points(1.5)
	line.LineStyle.Color = color.RGBA{R: 0, G: 120, B: 220, A: 255}
	p.Add(line)

	if len(samples) > 0 {
		total := samples[len(samples)-1].Total
		p.Legend.Top = true
		p.Legend.Left = true
		p.Legend.Add(fmt.Sprintf("completed / %d total", total), line)
	}

	if err := p.Save(w, h, path); err != nil {
		return errors.Wrapf(err, "diagnostics: save %s", path)
	}
	return nil
}
