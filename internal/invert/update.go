package invert

import (
	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/invertfield/internal/field"
	"github.com/banshee-data/invertfield/internal/parallel"
)

// updatePhase is the input of the damped update pass. The global norms
// come from a completed residual pass.
type updatePhase struct {
	correction *field.Field       // negated residual, scaled in place
	norms      *field.ScalarField // scaled residual norm per cell
	inverse    *field.Field       // updated in place
	spans      []field.Span

	epsilon         float64
	maxErrorNorm    float64
	enforceBoundary bool
}

// applyUpdate adds a damped correction to every inverse cell. A cell whose
// residual exceeds epsilon*maxErrorNorm has its correction rescaled to that
// magnitude first. With enforceBoundary set, cells on the first or last
// index of any axis are reset to zero afterwards.
func applyUpdate(pool *parallel.Pool, in updatePhase) error {
	limit := in.epsilon * in.maxErrorNorm
	region := in.inverse.Region

	return pool.ParallelFor(len(in.spans), func(part int) error {
		region.Walk(in.spans[part], func(off int, index []int) {
			corr := in.correction.At(off)
			if norm := in.norms.Data[off]; norm > limit {
				floats.Scale(limit/norm, corr)
			}

			inv := in.inverse.At(off)
			floats.AddScaled(inv, in.epsilon, corr)

			if in.enforceBoundary && region.IsBoundary(index) {
				clear(inv)
			}
		})
		return nil
	})
}
