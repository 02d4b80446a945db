package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// RenderConvergenceChart writes a standalone HTML line chart of the
// residual norms per iteration. Missing values are drawn as gaps.
func RenderConvergenceChart(w io.Writer, title, subtitle string, pts []Point) error {
	xs := make([]string, len(pts))
	mean := make([]opts.LineData, len(pts))
	peak := make([]opts.LineData, len(pts))
	p95 := make([]opts.LineData, len(pts))
	hasP95 := false
	for i, pt := range pts {
		xs[i] = strconv.Itoa(pt.Iteration)
		mean[i] = lineValue(pt.Mean)
		peak[i] = lineValue(pt.Max)
		p95[i] = lineValue(pt.P95)
		hasP95 = hasP95 || usable(pt.P95)
	}

	yAxis := opts.YAxis{Name: "Residual norm", NameLocation: "middle", NameGap: 50}
	if positive(pts) {
		yAxis.Type = "log"
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Iteration", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(yAxis),
	)
	line.SetXAxis(xs).
		AddSeries("mean", mean).
		AddSeries("max", peak)
	if hasP95 {
		line.AddSeries("p95", p95)
	}

	if err := line.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

// lineValue maps a missing value to "-", which echarts draws as a gap.
func lineValue(v float64) opts.LineData {
	if !usable(v) {
		return opts.LineData{Value: "-"}
	}
	return opts.LineData{Value: v}
}
