// Package testutil provides shared test utilities and fixtures.
//
// This package centralises the field fixtures and assertions used by the
// engine, storage and API tests.
package testutil

import (
	"bytes"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/banshee-data/invertfield/internal/field"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// NewJSONRequest creates a test HTTP request carrying a JSON body.
func NewJSONRequest(method, path string, body []byte) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// ConstantField returns a field with unit spacing holding v in every cell.
func ConstantField(v []float64, size ...int) *field.Field {
	spacing := make([]float64, len(size))
	for d := range spacing {
		spacing[d] = 1
	}
	f := field.NewField(field.NewRegion(size...), spacing)
	f.Fill(v)
	return f
}

// WaveField returns a smooth 2-D field with unit spacing:
// u(x, y) = amp * (sin(2πy/n), cos(2πx/n)).
func WaveField(amp float64, n int) *field.Field {
	f := field.NewField(field.NewRegion(n, n), []float64{1, 1})
	idx := make([]int, 2)
	for off := 0; off < f.NumCells(); off++ {
		idx = f.Region.IndexOf(off, idx)
		v := f.At(off)
		v[0] = amp * math.Sin(2*math.Pi*float64(idx[1])/float64(n))
		v[1] = amp * math.Cos(2*math.Pi*float64(idx[0])/float64(n))
	}
	return f
}

// AssertBoundaryZero fails the test unless every cell on the first or last
// index of an axis holds the exact zero vector.
func AssertBoundaryZero(t testing.TB, f *field.Field) {
	t.Helper()
	idx := make([]int, f.Dim)
	for off := 0; off < f.NumCells(); off++ {
		idx = f.Region.IndexOf(off, idx)
		if !f.Region.IsBoundary(idx) {
			continue
		}
		for _, c := range f.At(off) {
			if c != 0 {
				t.Errorf("boundary cell %v = %v, want zero", idx, f.At(off))
				break
			}
		}
	}
}

// AssertInteriorNear fails the test unless every non-boundary cell is
// within tol of want on every component.
func AssertInteriorNear(t testing.TB, f *field.Field, want []float64, tol float64) {
	t.Helper()
	idx := make([]int, f.Dim)
	for off := 0; off < f.NumCells(); off++ {
		idx = f.Region.IndexOf(off, idx)
		if f.Region.IsBoundary(idx) {
			continue
		}
		for d, c := range f.At(off) {
			if math.Abs(c-want[d]) > tol {
				t.Errorf("interior cell %v = %v, want %v (tol %g)", idx, f.At(off), want, tol)
				break
			}
		}
	}
}
