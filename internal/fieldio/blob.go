package fieldio

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"

	"github.com/banshee-data/invertfield/internal/field"
)

// EncodeBlob compresses f using gob encoding and gzip compression.
func EncodeBlob(f *field.Field) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := gob.NewEncoder(gz)
	if err := enc.Encode(FromField(f)); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeBlob decompresses and decodes a field from a gob+gzip blob.
func DecodeBlob(blob []byte) (*field.Field, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("empty field blob")
	}
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	var doc Document
	if err := gob.NewDecoder(gz).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode field blob: %w", err)
	}
	return doc.ToField()
}
