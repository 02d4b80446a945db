// Package fieldio reads, writes and synthesises displacement fields.
//
// Fields travel in two encodings: a JSON Document used by the HTTP API and
// the CLI, and a gzip-compressed gob blob used for storage.
package fieldio

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/banshee-data/invertfield/internal/field"
)

// Document is the JSON form of a field. Index and Origin may be omitted and
// default to zero on every axis. Data is cell-major with axis 0 varying
// fastest: the first Dimension values are the vector at the start index.
type Document struct {
	Dimension int       `json:"dimension"`
	Index     []int     `json:"index,omitempty"`
	Size      []int     `json:"size"`
	Spacing   []float64 `json:"spacing"`
	Origin    []float64 `json:"origin,omitempty"`
	Data      []float64 `json:"data"`
}

// FromField copies f into a Document.
func FromField(f *field.Field) *Document {
	return &Document{
		Dimension: f.Dim,
		Index:     slices.Clone(f.Region.Index),
		Size:      slices.Clone(f.Region.Size),
		Spacing:   slices.Clone(f.Spacing),
		Origin:    slices.Clone(f.Origin),
		Data:      slices.Clone(f.Data),
	}
}

// ToField validates the document and returns the field it describes.
// Failures wrap field.ErrGeometry.
func (d *Document) ToField() (*field.Field, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: missing field document", field.ErrGeometry)
	}
	index := d.Index
	if index == nil {
		index = make([]int, len(d.Size))
	}
	origin := d.Origin
	if origin == nil {
		origin = make([]float64, len(d.Size))
	}
	f := &field.Field{
		Dim: d.Dimension,
		Region: field.Region{
			Index: slices.Clone(index),
			Size:  slices.Clone(d.Size),
		},
		Spacing: slices.Clone(d.Spacing),
		Origin:  slices.Clone(origin),
		Data:    slices.Clone(d.Data),
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// DecodeJSON reads a Document from r and converts it to a field.
func DecodeJSON(r io.Reader) (*field.Field, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode field document: %w", err)
	}
	return doc.ToField()
}

// EncodeJSON writes f to w as an indented Document.
func EncodeJSON(w io.Writer, f *field.Field) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(FromField(f)); err != nil {
		return fmt.Errorf("failed to encode field document: %w", err)
	}
	return nil
}
