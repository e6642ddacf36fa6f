// Package report renders posterior feature scores as charts.
package report

import (
	"image/color"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/ubayfs/pkg/errors"
)

// Default chart size.
const (
	Width  = 16 * vg.Centimeter
	Height = 10 * vg.Centimeter
)

var (
	selectedColor   = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
	unselectedColor = color.RGBA{R: 0x9e, G: 0x9e, B: 0x9e, A: 0xff}
)

// PlotPosterior builds a bar chart of exp(posterior) per feature. Features
// with state[j] == 1 are highlighted; state may be nil.
func PlotPosterior(names []string, posterior, state []float64) (*plot.Plot, error) {
	const op = "report.PlotPosterior"

	n := len(names)
	if n == 0 {
		return nil, errors.NewDataError(op, "no features to plot")
	}
	if len(posterior) != n {
		return nil, errors.NewDimensionError(op, n, len(posterior), 0)
	}
	if state != nil && len(state) != n {
		return nil, errors.NewDimensionError(op, n, len(state), 0)
	}

	sel := make(plotter.Values, n)
	rest := make(plotter.Values, n)
	for j, v := range posterior {
		score := math.Exp(v)
		if state != nil && state[j] == 1 {
			sel[j] = score
		} else {
			rest[j] = score
		}
	}

	p := plot.New()
	p.Title.Text = "Posterior feature scores"
	p.Y.Label.Text = "posterior expectation"
	p.Y.Min = 0

	width := vg.Points(math.Max(4, math.Min(20, 400/float64(n))))
	restBars, err := plotter.NewBarChart(rest, width)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build bar chart")
	}
	restBars.Color = unselectedColor
	restBars.LineStyle.Width = 0

	selBars, err := plotter.NewBarChart(sel, width)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build bar chart")
	}
	selBars.Color = selectedColor
	selBars.LineStyle.Width = 0

	p.Add(restBars, selBars)
	if state != nil {
		p.Legend.Add("selected", selBars)
		p.Legend.Add("not selected", restBars)
		p.Legend.Top = true
	}
	p.NominalX(names...)
	return p, nil
}

// SavePosterior writes the chart to path. The image format is taken from
// the file extension (png, svg, pdf, ...).
func SavePosterior(path string, names []string, posterior, state []float64) error {
	p, err := PlotPosterior(names, posterior, state)
	if err != nil {
		return err
	}
	if err := p.Save(Width, Height, path); err != nil {
		return errors.Wrapf(err, "failed to save plot to %s", path)
	}
	return nil
}

// WritePosterior writes the chart to w in the given format.
func WritePosterior(w io.Writer, format string, names []string, posterior, state []float64) error {
	p, err := PlotPosterior(names, posterior, state)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(Width, Height, format)
	if err != nil {
		return errors.Wrapf(err, "unsupported plot format %q", format)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return errors.Wrap(err, "failed to write plot")
	}
	return nil
}
