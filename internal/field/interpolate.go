package field

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Interpolator samples a vector field at a physical point. The sample is
// written into dst (len f.Dim). It returns false, leaving dst zeroed, when
// the point falls outside the field's buffer; the composer then treats the
// sample as a zero displacement.
//
// Implementations must be safe for concurrent use.
type Interpolator func(f *Field, point []float64, dst []float64) bool

// stackDim covers the common 2D and 3D cases without heap scratch.
const stackDim = 4

// LinearInterpolator is the default Interpolator: N-linear interpolation
// over the 2^Dim neighbouring cells, with neighbour indices clamped to the
// region so samples within half a cell of the edge stay defined.
func LinearInterpolator(f *Field, point []float64, dst []float64) bool {
	clear(dst[:f.Dim])

	var cbuf, fbuf [stackDim]float64
	var bbuf, nbuf [stackDim]int
	cindex, frac := cbuf[:], fbuf[:]
	base, nb := bbuf[:], nbuf[:]
	if f.Dim > stackDim {
		cindex = make([]float64, f.Dim)
		frac = make([]float64, f.Dim)
		base = make([]int, f.Dim)
		nb = make([]int, f.Dim)
	}
	cindex = f.ContinuousIndex(point, cindex)
	if !f.InsideBuffer(cindex) {
		return false
	}

	for d := 0; d < f.Dim; d++ {
		fl := math.Floor(cindex[d])
		base[d] = int(fl)
		frac[d] = cindex[d] - fl
	}

	corners := 1 << f.Dim
	for mask := 0; mask < corners; mask++ {
		w := 1.0
		for d := 0; d < f.Dim; d++ {
			if mask&(1<<d) != 0 {
				w *= frac[d]
				nb[d] = base[d] + 1
			} else {
				w *= 1 - frac[d]
				nb[d] = base[d]
			}
			nb[d] = clampIndex(nb[d], f.Region.Index[d], f.Region.Size[d])
		}
		if w == 0 {
			continue
		}
		floats.AddScaled(dst[:f.Dim], w, f.AtIndex(nb[:f.Dim]))
	}
	return true
}

// NearestInterpolator samples the cell whose centre is closest to point.
func NearestInterpolator(f *Field, point []float64, dst []float64) bool {
	clear(dst[:f.Dim])

	var cbuf [stackDim]float64
	var nbuf [stackDim]int
	cindex, nb := cbuf[:], nbuf[:]
	if f.Dim > stackDim {
		cindex = make([]float64, f.Dim)
		nb = make([]int, f.Dim)
	}
	cindex = f.ContinuousIndex(point, cindex)
	if !f.InsideBuffer(cindex) {
		return false
	}
	for d := 0; d < f.Dim; d++ {
		nb[d] = clampIndex(int(math.Floor(cindex[d]+0.5)), f.Region.Index[d], f.Region.Size[d])
	}
	copy(dst[:f.Dim], f.AtIndex(nb[:f.Dim]))
	return true
}

func clampIndex(i, start, size int) int {
	if i < start {
		return start
	}
	if last := start + size - 1; i > last {
		return last
	}
	return i
}

// Interpolator names accepted by LookupInterpolator.
const (
	InterpolatorLinear  = "linear"
	InterpolatorNearest = "nearest"
)

// LookupInterpolator resolves a configured interpolator name. The empty
// name selects linear interpolation.
func LookupInterpolator(name string) (Interpolator, error) {
	switch name {
	case "", InterpolatorLinear:
		return LinearInterpolator, nil
	case InterpolatorNearest:
		return NearestInterpolator, nil
	default:
		return nil, fmt.Errorf("unknown interpolator %q", name)
	}
}
