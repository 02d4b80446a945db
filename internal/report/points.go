// Package report renders convergence histories of inversion runs as PNG
// plots and interactive HTML charts.
package report

import (
	"math"

	"github.com/banshee-data/invertfield/internal/db"
	"github.com/banshee-data/invertfield/internal/invert"
)

// Point is one iteration of a convergence history. Missing values are NaN.
type Point struct {
	Iteration int
	Mean      float64
	Max       float64
	P95       float64
}

// PointsFromStats converts an in-memory run history.
func PointsFromStats(history []invert.IterationStats) []Point {
	pts := make([]Point, len(history))
	for i, s := range history {
		pts[i] = Point{Iteration: s.Iteration, Mean: s.MeanErrorNorm, Max: s.MaxErrorNorm, P95: s.P95ErrorNorm}
	}
	return pts
}

// PointsFromRecords converts a stored run history.
func PointsFromRecords(history []db.IterationRecord) []Point {
	pts := make([]Point, len(history))
	for i, r := range history {
		pts[i] = Point{Iteration: r.Iteration, Mean: orNaN(r.MeanErrorNorm), Max: orNaN(r.MaxErrorNorm), P95: orNaN(r.P95ErrorNorm)}
	}
	return pts
}

func orNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

func usable(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// positive reports whether every usable value of every series is > 0, so
// a log axis can be used.
func positive(pts []Point) bool {
	seen := false
	for _, p := range pts {
		for _, v := range []float64{p.Mean, p.Max, p.P95} {
			if !usable(v) {
				continue
			}
			if v <= 0 {
				return false
			}
			seen = true
		}
	}
	return seen
}
