package fieldio

import (
	"fmt"
	"math"

	"github.com/banshee-data/invertfield/internal/field"
)

// Names accepted by Synthesize.
const (
	SynthZero        = "zero"
	SynthTranslation = "translation"
	SynthSinusoid    = "sinusoid"
)

// SynthOptions describes a generated field.
type SynthOptions struct {
	Kind    string
	Size    []int
	Spacing []float64 // nil means unit spacing
	// Vector is the displacement of a translation field.
	Vector []float64
	// Amplitude of a sinusoid field, in physical units.
	Amplitude float64
}

// Synthesize builds a forward field for testing and benchmarking.
func Synthesize(opts SynthOptions) (*field.Field, error) {
	dim := len(opts.Size)
	spacing := opts.Spacing
	if spacing == nil {
		spacing = make([]float64, dim)
		for d := range spacing {
			spacing[d] = 1
		}
	}
	region := field.NewRegion(opts.Size...)
	if err := region.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", field.ErrGeometry, err)
	}
	f := &field.Field{
		Dim:     dim,
		Region:  region,
		Spacing: spacing,
		Origin:  make([]float64, dim),
		Data:    make([]float64, region.NumCells()*dim),
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	switch opts.Kind {
	case SynthZero, "":
		return f, nil
	case SynthTranslation:
		if len(opts.Vector) != dim {
			return nil, fmt.Errorf("translation vector has %d components, want %d", len(opts.Vector), dim)
		}
		f.Fill(opts.Vector)
		return f, nil
	case SynthSinusoid:
		fillSinusoid(f, opts.Amplitude)
		return f, nil
	default:
		return nil, fmt.Errorf("unknown synthetic field %q", opts.Kind)
	}
}

// fillSinusoid sets component d to amp*sin(2π p/L), where p is the
// physical coordinate along the next axis and L that axis' extent. Each
// component varies across its own axis, so the field is smooth and
// invertible for small amplitudes.
func fillSinusoid(f *field.Field, amp float64) {
	idx := make([]int, f.Dim)
	p := make([]float64, f.Dim)
	for off := 0; off < f.NumCells(); off++ {
		idx = f.Region.IndexOf(off, idx)
		p = f.PhysicalPoint(idx, p)
		v := f.At(off)
		for d := range v {
			a := (d + 1) % f.Dim
			extent := float64(f.Region.Size[a]) * f.Spacing[a]
			v[d] = amp * math.Sin(2*math.Pi*p[a]/extent)
		}
	}
}
