package field

import (
	"fmt"
	"math"
)

// Region is an axis-aligned block of integer grid indices: Index holds the
// first valid index per axis and Size the number of cells per axis. Cells
// are laid out with axis 0 varying fastest.
type Region struct {
	Index []int
	Size  []int
}

// NewRegion builds a region starting at the origin of index space.
func NewRegion(size ...int) Region {
	idx := make([]int, len(size))
	sz := make([]int, len(size))
	copy(sz, size)
	return Region{Index: idx, Size: sz}
}

// Dim returns the number of axes.
func (r Region) Dim() int { return len(r.Size) }

// NumCells returns the product of the per-axis sizes.
func (r Region) NumCells() int {
	if len(r.Size) == 0 {
		return 0
	}
	n := 1
	for _, s := range r.Size {
		n *= s
	}
	return n
}

// Validate checks that every axis has a start index and at least one cell
// and that the cell count fits in an int.
func (r Region) Validate() error {
	if len(r.Size) == 0 {
		return fmt.Errorf("region has no axes")
	}
	if len(r.Index) != len(r.Size) {
		return fmt.Errorf("region index has %d axes, size has %d", len(r.Index), len(r.Size))
	}
	n := 1
	for d, s := range r.Size {
		if s < 1 {
			return fmt.Errorf("region size on axis %d must be >= 1, got %d", d, s)
		}
		if n > math.MaxInt/s {
			return fmt.Errorf("region size %v overflows the cell count", r.Size)
		}
		n *= s
	}
	return nil
}

// Equal reports whether two regions cover the same indices.
func (r Region) Equal(o Region) bool {
	if len(r.Size) != len(o.Size) || len(r.Index) != len(o.Index) {
		return false
	}
	for d := range r.Size {
		if r.Size[d] != o.Size[d] || r.Index[d] != o.Index[d] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (r Region) Clone() Region {
	idx := make([]int, len(r.Index))
	sz := make([]int, len(r.Size))
	copy(idx, r.Index)
	copy(sz, r.Size)
	return Region{Index: idx, Size: sz}
}

// Offset returns the linear cell offset of an absolute index. The index
// must lie inside the region.
func (r Region) Offset(index []int) int {
	off := 0
	stride := 1
	for d := range r.Size {
		off += (index[d] - r.Index[d]) * stride
		stride *= r.Size[d]
	}
	return off
}

// IndexOf writes the absolute index of linear offset off into dst and
// returns it. dst is allocated when shorter than Dim.
func (r Region) IndexOf(off int, dst []int) []int {
	if len(dst) < len(r.Size) {
		dst = make([]int, len(r.Size))
	}
	for d, s := range r.Size {
		dst[d] = r.Index[d] + off%s
		off /= s
	}
	return dst
}

// Contains reports whether an absolute index lies inside the region.
func (r Region) Contains(index []int) bool {
	for d, s := range r.Size {
		if index[d] < r.Index[d] || index[d] >= r.Index[d]+s {
			return false
		}
	}
	return true
}

// IsBoundary reports whether index sits on the pinned outer shell. Axis d
// is a boundary when index[d] equals the start index or equals
// size-start-1; the test is exact-index, not a margin.
func (r Region) IsBoundary(index []int) bool {
	for d, s := range r.Size {
		if index[d] == r.Index[d] || index[d] == s-r.Index[d]-1 {
			return true
		}
	}
	return false
}

// advance steps index to the next cell in layout order, wrapping axes.
func (r Region) advance(index []int) {
	for d, s := range r.Size {
		index[d]++
		if index[d] < r.Index[d]+s {
			return
		}
		index[d] = r.Index[d]
	}
}

// Span is a half-open range [Begin, End) of linear cell offsets.
type Span struct {
	Begin int
	End   int
}

// Len returns the number of cells in the span.
func (s Span) Len() int { return s.End - s.Begin }

// Partition splits the region into at most n disjoint, contiguous spans
// aligned to slabs of the slowest-varying axis. Every cell belongs to
// exactly one span and spans are returned in layout order.
func (r Region) Partition(n int) []Span {
	total := r.NumCells()
	if total == 0 {
		return nil
	}
	if n < 1 {
		n = 1
	}
	slowest := r.Size[len(r.Size)-1]
	slab := total / slowest
	if n > slowest {
		n = slowest
	}

	spans := make([]Span, 0, n)
	base, rem := slowest/n, slowest%n
	begin := 0
	for i := 0; i < n; i++ {
		count := base
		if i < rem {
			count++
		}
		end := begin + count*slab
		spans = append(spans, Span{Begin: begin, End: end})
		begin = end
	}
	return spans
}

// Walk calls fn for every offset in span with the corresponding absolute
// index. The index slice is reused between calls.
func (r Region) Walk(span Span, fn func(off int, index []int)) {
	if span.Len() <= 0 {
		return
	}
	index := r.IndexOf(span.Begin, nil)
	for off := span.Begin; off < span.End; off++ {
		fn(off, index)
		r.advance(index)
	}
}
