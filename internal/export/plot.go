// Package export renders stored trajectories to image files. The
// output format follows the file extension (png, svg, pdf, ...).
package export

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

const (
	plotWidth  = 8 * vg.Inch
	plotHeight = 5 * vg.Inch
)

// Trajectory draws every solution component against time.
func Trajectory(path, title string, times []float64, states [][]float64) error {
	if len(times) < 2 || len(times) != len(states) {
		return fmt.Errorf("export: need at least two samples, got %d times and %d states", len(times), len(states))
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "t"
	p.Y.Label.Text = "y"
	p.Add(plotter.NewGrid())

	dim := len(states[0])
	args := make([]interface{}, 0, 2*dim)
	for j := 0; j < dim; j++ {
		xys := make(plotter.XYs, len(times))
		for i := range times {
			xys[i].X = times[i]
			xys[i].Y = states[i][j]
		}
		args = append(args, fmt.Sprintf("y%d", j), xys)
	}
	if err := plotutil.AddLines(p, args...); err != nil {
		return err
	}

	return p.Save(plotWidth, plotHeight, path)
}

// StepSizes draws the accepted step sizes on a log scale, the usual
// way to inspect how the controller tracked the problem's stiffness.
func StepSizes(path, title string, times []float64) error {
	if len(times) < 2 {
		return fmt.Errorf("export: need at least two accepted times, got %d", len(times))
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "t"
	p.Y.Label.Text = "h"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	p.Add(plotter.NewGrid())

	xys := make(plotter.XYs, len(times)-1)
	for i := 1; i < len(times); i++ {
		xys[i-1].X = times[i]
		xys[i-1].Y = times[i] - times[i-1]
	}
	if err := plotutil.AddLines(p, "step size", xys); err != nil {
		return err
	}

	return p.Save(plotWidth, plotHeight, path)
}

// Phase draws component j against component i.
func Phase(path, title string, states [][]float64, i, j int) error {
	if len(states) < 2 {
		return fmt.Errorf("export: need at least two samples, got %d", len(states))
	}
	if dim := len(states[0]); i < 0 || j < 0 || i >= dim || j >= dim {
		return fmt.Errorf("export: components (%d, %d) out of range for dimension %d", i, j, dim)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = fmt.Sprintf("y%d", i)
	p.Y.Label.Text = fmt.Sprintf("y%d", j)
	p.Add(plotter.NewGrid())

	xys := make(plotter.XYs, len(states))
	for k := range states {
		xys[k].X = states[k][i]
		xys[k].Y = states[k][j]
	}
	if err := plotutil.AddLines(p, "orbit", xys); err != nil {
		return err
	}

	return p.Save(plotWidth, plotHeight, path)
}
