package report

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var (
	meanColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	maxColor  = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	p95Color  = color.RGBA{R: 44, G: 160, B: 44, A: 255}
)

// SaveConvergencePlot writes a PNG (or any format gonum/plot infers from
// the extension) of the mean, max and, when present, p95 residual norm per
// iteration. The y axis is logarithmic when every value is positive.
func SaveConvergencePlot(pts []Point, title, path string) error {
	if len(pts) == 0 {
		return fmt.Errorf("no iterations to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Iteration"
	p.Y.Label.Text = "Residual norm"
	if positive(pts) {
		p.Y.Scale = plot.LogScale{}
		p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	}

	series := []struct {
		name  string
		color color.Color
		value func(Point) float64
	}{
		{"mean", meanColor, func(pt Point) float64 { return pt.Mean }},
		{"max", maxColor, func(pt Point) float64 { return pt.Max }},
		{"p95", p95Color, func(pt Point) float64 { return pt.P95 }},
	}
	for _, s := range series {
		xys := make(plotter.XYs, 0, len(pts))
		for _, pt := range pts {
			if v := s.value(pt); usable(v) {
				xys = append(xys, plotter.XY{X: float64(pt.Iteration), Y: v})
			}
		}
		if len(xys) == 0 {
			continue
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return err
		}
		line.Color = s.color
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(s.name, line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot %s: %w", path, err)
	}
	return nil
}
