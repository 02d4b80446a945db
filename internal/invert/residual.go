package invert

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/invertfield/internal/field"
	"github.com/banshee-data/invertfield/internal/parallel"
)

// residualPhase is the input of the residual pass.
type residualPhase struct {
	composed *field.Field       // overwritten with the negated residual
	norms    *field.ScalarField // receives the scaled norm per cell
	spans    []field.Span
}

// residualTotals is the reduction produced by the residual pass.
type residualTotals struct {
	sum float64
	max float64
}

// estimateResiduals computes, for every cell, the residual magnitude with
// each component divided by the axis spacing, stores it in norms, and
// negates the composed vector in place so it becomes the raw correction.
//
// Each partition reduces into its own slot; the slots are merged in
// partition order after the barrier, so a fixed partition count gives a
// bit-identical sum.
func estimateResiduals(pool *parallel.Pool, in residualPhase) (residualTotals, error) {
	sums := make([]float64, len(in.spans))
	maxes := make([]float64, len(in.spans))
	spacing := in.composed.Spacing

	err := pool.ParallelFor(len(in.spans), func(part int) error {
		var sum, peak float64
		span := in.spans[part]
		for off := span.Begin; off < span.End; off++ {
			v := in.composed.At(off)
			var sq float64
			for d, c := range v {
				s := c / spacing[d]
				sq += s * s
			}
			norm := math.Sqrt(sq)

			sum += norm
			if norm > peak {
				peak = norm
			}
			in.norms.Data[off] = norm
			floats.Scale(-1, v)
		}
		sums[part] = sum
		maxes[part] = peak
		return nil
	})
	if err != nil {
		return residualTotals{}, err
	}

	totals := residualTotals{sum: floats.Sum(sums)}
	if len(maxes) > 0 {
		totals.max = floats.Max(maxes)
	}
	tracef("residual pass: partitions=%d sum=%g max=%g", len(in.spans), totals.sum, totals.max)
	return totals, nil
}
