// Package report renders the statistics tables of a run as line plots.
package report

import (
	"fmt"
	"math"

	"manifold_lib/stats"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Line draws one curve per (xs[i], ys[i]) pair into path. Non-finite points
// are dropped. An empty path draws nothing.
func Line(path string, xs, ys [][]float64, labels []string, title, xlabel, ylabel string) error {
	if path == "" {
		return nil
	}
	if len(xs) != len(ys) || len(xs) != len(labels) {
		return fmt.Errorf("report: %d x series, %d y series, %d labels", len(xs), len(ys), len(labels))
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	p.Y.Label.Text = ylabel
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	for i := range xs {
		if len(xs[i]) != len(ys[i]) {
			return fmt.Errorf("report: series %q has %d x and %d y values", labels[i], len(xs[i]), len(ys[i]))
		}
		pts := make(plotter.XYs, 0, len(xs[i]))
		for j := range xs[i] {
			x, y := xs[i][j], ys[i][j]
			if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
				continue
			}
			pts = append(pts, plotter.XY{X: x, Y: y})
		}
		if len(pts) == 0 {
			continue
		}
		l, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("report: series %q: %w", labels[i], err)
		}
		l.Color = plotutil.Color(i / 2)
		l.Dashes = plotutil.Dashes(i % 2)
		p.Add(l)
		p.Legend.Add(labels[i], l)
	}
	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("report: save %s: %w", path, err)
	}
	return nil
}

// Files names the plot outputs; empty names are skipped.
type Files struct {
	Loss     string
	Error    string
	Success  string
	Gradient string
}

// series interleaves train and test curves of the given columns.
func series(train, test *stats.Table, cols []stats.Column, names []string) (xs, ys [][]float64, labels []string) {
	tx, vx := train.Column(stats.ColIteration), test.Column(stats.ColIteration)
	for i, c := range cols {
		xs = append(xs, tx, vx)
		ys = append(ys, train.Column(c), test.Column(c))
		labels = append(labels, "Train "+names[i], "Test "+names[i])
	}
	return xs, ys, labels
}

// Plot renders the loss, error, success/norm and gradient plots.
func Plot(files Files, train, test *stats.Table) error {
	xs, ys, labels := series(train, test,
		[]stats.Column{stats.ColLoss, stats.ColPerturbationLoss, stats.ColDecoderPerturbationLoss},
		[]string{"Loss", "Loss (Perturbed)", "Loss (Decoder+Perturbed)"})
	if err := Line(files.Loss, xs, ys, labels, "Loss during Training", "Iteration", "Loss"); err != nil {
		return err
	}

	xs, ys, labels = series(train, test,
		[]stats.Column{stats.ColError, stats.ColPerturbationError, stats.ColDecoderPerturbationError},
		[]string{"Error", "Error (Perturbed)", "Error (Decoder+Perturbed)"})
	if err := Line(files.Error, xs, ys, labels, "Error during Training", "Iteration", "Error"); err != nil {
		return err
	}

	xs, ys, labels = series(train, test,
		[]stats.Column{stats.ColSuccess, stats.ColNorm, stats.ColDecoderSuccess, stats.ColDecoderNorm},
		[]string{"Success Rate", "Norm", "Success Rate (Decoder)", "Norm (Decoder)"})
	if err := Line(files.Success, xs, ys, labels, "Attack Success Rate / Norm during Training", "Iteration", "Success Rate / Norm"); err != nil {
		return err
	}

	return Line(files.Gradient,
		[][]float64{train.Column(stats.ColIteration)},
		[][]float64{train.Column(stats.ColGradient)},
		[]string{"Train Gradient Norm"}, "Gradient during Training", "Iteration", "Gradient Norm")
}
