// Package field holds the dense grid containers used by the inversion
// engine: vector displacement fields, scalar companion images, their
// geometry, interpolation and composition.
//
// Displacements are expressed in physical units. A cell at absolute index
// x sits at physical point Origin + Spacing*x (identity direction).
package field

import (
	"errors"
	"fmt"
	"math"
)

// ErrGeometry is wrapped by every geometry validation failure.
var ErrGeometry = errors.New("invalid field geometry")

// Field is a dense grid of Dim-component vectors.
type Field struct {
	Dim     int
	Region  Region
	Spacing []float64
	Origin  []float64
	// Data holds NumCells()*Dim values, cell-major.
	Data []float64
}

// NewField allocates a zero field over region with the given spacing. The
// origin defaults to zero on every axis.
func NewField(region Region, spacing []float64) *Field {
	dim := region.Dim()
	sp := make([]float64, dim)
	copy(sp, spacing)
	return &Field{
		Dim:     dim,
		Region:  region.Clone(),
		Spacing: sp,
		Origin:  make([]float64, dim),
		Data:    make([]float64, region.NumCells()*dim),
	}
}

// NewFieldLike allocates a zero field with the geometry of f.
func NewFieldLike(f *Field) *Field {
	out := NewField(f.Region, f.Spacing)
	copy(out.Origin, f.Origin)
	return out
}

// Clone returns a deep copy of f.
func (f *Field) Clone() *Field {
	out := NewFieldLike(f)
	copy(out.Data, f.Data)
	return out
}

// NumCells returns the number of grid cells.
func (f *Field) NumCells() int { return f.Region.NumCells() }

// At returns the vector stored at linear offset off. The slice aliases the
// field's storage.
func (f *Field) At(off int) []float64 {
	i := off * f.Dim
	return f.Data[i : i+f.Dim : i+f.Dim]
}

// AtIndex returns the vector stored at an absolute index.
func (f *Field) AtIndex(index []int) []float64 {
	return f.At(f.Region.Offset(index))
}

// Fill sets every cell to v.
func (f *Field) Fill(v []float64) {
	for off := 0; off < f.NumCells(); off++ {
		copy(f.At(off), v)
	}
}

// Zero sets every component to zero.
func (f *Field) Zero() {
	clear(f.Data)
}

// PhysicalPoint writes the physical location of an absolute index into dst.
func (f *Field) PhysicalPoint(index []int, dst []float64) []float64 {
	if len(dst) < f.Dim {
		dst = make([]float64, f.Dim)
	}
	for d := 0; d < f.Dim; d++ {
		dst[d] = f.Origin[d] + f.Spacing[d]*float64(index[d])
	}
	return dst
}

// ContinuousIndex writes the continuous index of a physical point into dst.
func (f *Field) ContinuousIndex(point []float64, dst []float64) []float64 {
	if len(dst) < f.Dim {
		dst = make([]float64, f.Dim)
	}
	for d := 0; d < f.Dim; d++ {
		dst[d] = (point[d] - f.Origin[d]) / f.Spacing[d]
	}
	return dst
}

// InsideBuffer reports whether a continuous index falls within the half
// cell padded extent [start-0.5, start+size-0.5) on every axis.
func (f *Field) InsideBuffer(cindex []float64) bool {
	for d := 0; d < f.Dim; d++ {
		lo := float64(f.Region.Index[d]) - 0.5
		hi := float64(f.Region.Index[d]+f.Region.Size[d]) - 0.5
		if !(cindex[d] >= lo && cindex[d] < hi) {
			return false
		}
	}
	return true
}

// Validate checks the geometry and storage of f. Failures wrap ErrGeometry.
func (f *Field) Validate() error {
	if f == nil {
		return fmt.Errorf("%w: nil field", ErrGeometry)
	}
	if f.Dim < 1 {
		return fmt.Errorf("%w: dimension must be >= 1, got %d", ErrGeometry, f.Dim)
	}
	if err := f.Region.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrGeometry, err)
	}
	if f.Region.Dim() != f.Dim {
		return fmt.Errorf("%w: region has %d axes for a %d-dimensional field", ErrGeometry, f.Region.Dim(), f.Dim)
	}
	if len(f.Spacing) != f.Dim {
		return fmt.Errorf("%w: spacing has %d components, want %d", ErrGeometry, len(f.Spacing), f.Dim)
	}
	for d, s := range f.Spacing {
		if !(s > 0) || math.IsInf(s, 0) {
			return fmt.Errorf("%w: spacing on axis %d must be positive and finite, got %g", ErrGeometry, d, s)
		}
	}
	if len(f.Origin) != f.Dim {
		return fmt.Errorf("%w: origin has %d components, want %d", ErrGeometry, len(f.Origin), f.Dim)
	}
	if f.NumCells() > math.MaxInt/f.Dim {
		return fmt.Errorf("%w: %d cells of %d components overflow the data length", ErrGeometry, f.NumCells(), f.Dim)
	}
	if want := f.NumCells() * f.Dim; len(f.Data) != want {
		return fmt.Errorf("%w: data has %d values, want %d", ErrGeometry, len(f.Data), want)
	}
	return nil
}

// SameGeometry reports whether two fields share dimension, region, spacing
// and origin.
func SameGeometry(a, b *Field) bool {
	if a.Dim != b.Dim || !a.Region.Equal(b.Region) {
		return false
	}
	for d := 0; d < a.Dim; d++ {
		if a.Spacing[d] != b.Spacing[d] || a.Origin[d] != b.Origin[d] {
			return false
		}
	}
	return true
}

// ScalarField is a dense grid of one value per cell sharing a vector
// field's geometry.
type ScalarField struct {
	Region Region
	Data   []float64
}

// NewScalarField allocates a zero scalar grid over region.
func NewScalarField(region Region) *ScalarField {
	return &ScalarField{
		Region: region.Clone(),
		Data:   make([]float64, region.NumCells()),
	}
}
