package fieldio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/invertfield/internal/field"
)

// Supported file extensions.
const (
	ExtJSON = ".json"
	ExtBlob = ".gz"
)

// maxFileSize bounds the files ReadFile accepts.
const maxFileSize = 256 * 1024 * 1024

// ReadFile loads a field from a .json document or a .gz blob.
func ReadFile(path string) (*field.Field, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ExtJSON && ext != ExtBlob {
		return nil, fmt.Errorf("field file must have %s or %s extension, got %q", ExtJSON, ExtBlob, ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat field file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("field file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	if ext == ExtBlob {
		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read field file: %w", err)
		}
		return DecodeBlob(data)
	}

	fh, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open field file: %w", err)
	}
	defer fh.Close()
	return DecodeJSON(fh)
}

// WriteFile stores f at path, choosing the encoding from the extension.
func WriteFile(path string, f *field.Field) error {
	cleanPath := filepath.Clean(path)
	switch strings.ToLower(filepath.Ext(cleanPath)) {
	case ExtBlob:
		blob, err := EncodeBlob(f)
		if err != nil {
			return fmt.Errorf("failed to encode field: %w", err)
		}
		return os.WriteFile(cleanPath, blob, 0644)
	case ExtJSON:
		fh, err := os.Create(cleanPath)
		if err != nil {
			return fmt.Errorf("failed to create field file: %w", err)
		}
		if err := EncodeJSON(fh, f); err != nil {
			fh.Close()
			return err
		}
		return fh.Close()
	default:
		return fmt.Errorf("field file must have %s or %s extension, got %q", ExtJSON, ExtBlob, filepath.Ext(cleanPath))
	}
}
