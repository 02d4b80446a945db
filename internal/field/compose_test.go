package field

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/invertfield/internal/parallel"
)

func TestCompose_ZeroWarpReturnsForward(t *testing.T) {
	a := rampField()
	b := NewFieldLike(a)

	c, err := NewComposer(parallel.NewPool(2)).Compose(a, b)
	require.NoError(t, err)
	assert.InDeltaSlice(t, a.Data, c.Data, 1e-12)
}

func TestCompose_TranslationsAdd(t *testing.T) {
	a := NewField(NewRegion(6, 6), []float64{1, 1})
	b := NewFieldLike(a)
	a.Fill([]float64{0.3, -0.2})
	b.Fill([]float64{-0.1, 0.4})

	c, err := NewComposer(parallel.NewPool(3)).Compose(a, b)
	require.NoError(t, err)
	for off := 0; off < c.NumCells(); off++ {
		assert.InDeltaSlice(t, []float64{0.2, 0.2}, c.At(off), 1e-12)
	}
}

func TestCompose_OutsideSampleContributesZero(t *testing.T) {
	a := NewField(NewRegion(3, 3), []float64{1, 1})
	b := NewFieldLike(a)
	a.Fill([]float64{1, 1})
	// Push every cell two cells to the left: column 0 and 1 leave the buffer.
	b.Fill([]float64{-2, 0})

	c, err := NewComposer(nil).Compose(a, b)
	require.NoError(t, err)

	idx := make([]int, 2)
	for off := 0; off < c.NumCells(); off++ {
		idx = c.Region.IndexOf(off, idx)
		if idx[0] == 2 {
			assert.InDeltaSlice(t, []float64{-1, 1}, c.At(off), 1e-12)
		} else {
			assert.Equal(t, []float64{-2, 0}, c.At(off))
		}
	}
}

func TestCompose_PartitionCountDoesNotChangeResult(t *testing.T) {
	a := rampField()
	b := NewFieldLike(a)
	for i := range b.Data {
		b.Data[i] = 0.01 * float64(i%7)
	}

	ref, err := (&Composer{Interpolator: LinearInterpolator, Partitions: 1}).Compose(a, b)
	require.NoError(t, err)
	for _, parts := range []int{2, 3, 8} {
		c, err := (&Composer{Interpolator: LinearInterpolator, Pool: parallel.NewPool(4), Partitions: parts}).Compose(a, b)
		require.NoError(t, err)
		assert.Equal(t, ref.Data, c.Data)
	}
}

func TestComposeInto_GeometryMismatch(t *testing.T) {
	a := rampField()
	b := NewFieldLike(a)
	other := NewField(NewRegion(2, 2), []float64{1, 1})

	err := NewComposer(nil).ComposeInto(other, a, b)
	assert.ErrorIs(t, err, ErrGeometry)

	three := NewField(NewRegion(2, 2, 2), []float64{1, 1, 1})
	err = NewComposer(nil).ComposeInto(NewFieldLike(three), a, three)
	assert.ErrorIs(t, err, ErrGeometry)
}
