package field

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/invertfield/internal/parallel"
)

// Composer combines two displacement fields: for every cell x of the
// warping field b, C(x) = b(x) + a(p(x) + b(x)), where p(x) is the physical
// point of x and a is sampled through Interpolator.
type Composer struct {
	Interpolator Interpolator
	Pool         *parallel.Pool
	// Partitions is the number of spans each pass is split into; <= 0 uses
	// the pool's worker count.
	Partitions int
}

// NewComposer returns a Composer with linear interpolation.
func NewComposer(pool *parallel.Pool) *Composer {
	return &Composer{Interpolator: LinearInterpolator, Pool: pool}
}

// Compose returns a newly allocated a∘b over b's geometry.
func (c *Composer) Compose(a, b *Field) (*Field, error) {
	dst := NewFieldLike(b)
	if err := c.ComposeInto(dst, a, b); err != nil {
		return nil, err
	}
	return dst, nil
}

// ComposeInto writes a∘b into dst, which must share b's geometry. dst may
// not alias a or b.
func (c *Composer) ComposeInto(dst, a, b *Field) error {
	if a.Dim != b.Dim {
		return fmt.Errorf("%w: cannot compose %d- and %d-dimensional fields", ErrGeometry, a.Dim, b.Dim)
	}
	if !SameGeometry(dst, b) {
		return fmt.Errorf("%w: composition output does not match warping field geometry", ErrGeometry)
	}
	interp := c.Interpolator
	if interp == nil {
		interp = LinearInterpolator
	}
	n := c.Partitions
	if n <= 0 {
		n = c.Pool.Workers()
	}
	spans := b.Region.Partition(n)

	return c.Pool.ParallelFor(len(spans), func(part int) error {
		point := make([]float64, b.Dim)
		sample := make([]float64, b.Dim)
		b.Region.Walk(spans[part], func(off int, index []int) {
			disp := b.At(off)
			b.PhysicalPoint(index, point)
			floats.Add(point, disp)
			out := dst.At(off)
			copy(out, disp)
			if interp(a, point, sample) {
				floats.Add(out, sample)
			}
		})
		return nil
	})
}
