package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/banshee-data/invertfield/internal/field"
	"github.com/banshee-data/invertfield/internal/invert"
)

// DefaultConfigPath is the path to the canonical inversion defaults file.
const DefaultConfigPath = "config/inversion.defaults.json"

// InversionConfig is the JSON form of an inversion run's parameters. The
// same schema is accepted by the CLI -config flag and by the "config"
// member of POST /api/invert, so a file can be replayed against the server.
type InversionConfig struct {
	// Iteration controller
	MaximumNumberOfIterations   *int     `json:"maximum_number_of_iterations,omitempty"`
	MaxErrorToleranceThreshold  *float64 `json:"max_error_tolerance_threshold,omitempty"`
	MeanErrorToleranceThreshold *float64 `json:"mean_error_tolerance_threshold,omitempty"`
	EnforceBoundaryCondition    *bool    `json:"enforce_boundary_condition,omitempty"`

	// Composition
	Interpolator *string `json:"interpolator,omitempty"` // "linear" or "nearest"

	// Parallelism
	Workers    *int `json:"workers,omitempty"`    // <= 0 means GOMAXPROCS
	Partitions *int `json:"partitions,omitempty"` // <= 0 means one per worker

	// Diagnostics
	CollectPercentile *bool `json:"collect_percentile,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyInversionConfig returns an InversionConfig with all fields set to nil.
// The Get* methods supply defaults for every unset field.
func EmptyInversionConfig() *InversionConfig {
	return &InversionConfig{}
}

// DefaultInversionConfig returns a config with every field populated with
// its default value.
func DefaultInversionConfig() *InversionConfig {
	return &InversionConfig{
		MaximumNumberOfIterations:   ptrInt(invert.DefaultMaximumNumberOfIterations),
		MaxErrorToleranceThreshold:  ptrFloat64(invert.DefaultMaxErrorToleranceThreshold),
		MeanErrorToleranceThreshold: ptrFloat64(invert.DefaultMeanErrorToleranceThreshold),
		EnforceBoundaryCondition:    ptrBool(true),
		Interpolator:                ptrString(field.InterpolatorLinear),
		Workers:                     ptrInt(0),
		Partitions:                  ptrInt(0),
		CollectPercentile:           ptrBool(false),
	}
}

// LoadInversionConfig loads an InversionConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted
// from the file fall back to their defaults, so partial configs are safe.
func LoadInversionConfig(path string) (*InversionConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyInversionConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents up to the repository root. Panics if the file
// cannot be loaded; intended for test setup.
func MustLoadDefaultConfig() *InversionConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadInversionConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Merge returns a copy of c with every field set in override replacing the
// corresponding field of c.
func (c *InversionConfig) Merge(override *InversionConfig) *InversionConfig {
	out := *c
	if override == nil {
		return &out
	}
	if override.MaximumNumberOfIterations != nil {
		out.MaximumNumberOfIterations = override.MaximumNumberOfIterations
	}
	if override.MaxErrorToleranceThreshold != nil {
		out.MaxErrorToleranceThreshold = override.MaxErrorToleranceThreshold
	}
	if override.MeanErrorToleranceThreshold != nil {
		out.MeanErrorToleranceThreshold = override.MeanErrorToleranceThreshold
	}
	if override.EnforceBoundaryCondition != nil {
		out.EnforceBoundaryCondition = override.EnforceBoundaryCondition
	}
	if override.Interpolator != nil {
		out.Interpolator = override.Interpolator
	}
	if override.Workers != nil {
		out.Workers = override.Workers
	}
	if override.Partitions != nil {
		out.Partitions = override.Partitions
	}
	if override.CollectPercentile != nil {
		out.CollectPercentile = override.CollectPercentile
	}
	return &out
}

// Validate checks that the configuration values are valid.
func (c *InversionConfig) Validate() error {
	if c.MaximumNumberOfIterations != nil && *c.MaximumNumberOfIterations < 0 {
		return fmt.Errorf("maximum_number_of_iterations must be non-negative, got %d", *c.MaximumNumberOfIterations)
	}
	if c.MaxErrorToleranceThreshold != nil {
		if v := *c.MaxErrorToleranceThreshold; v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("max_error_tolerance_threshold must be finite and non-negative, got %g", v)
		}
	}
	if c.MeanErrorToleranceThreshold != nil {
		if v := *c.MeanErrorToleranceThreshold; v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("mean_error_tolerance_threshold must be finite and non-negative, got %g", v)
		}
	}
	if c.Interpolator != nil {
		if _, err := field.LookupInterpolator(*c.Interpolator); err != nil {
			return fmt.Errorf("invalid interpolator: %w", err)
		}
	}
	return nil
}

// GetMaximumNumberOfIterations returns the maximum_number_of_iterations value or the default.
func (c *InversionConfig) GetMaximumNumberOfIterations() int {
	if c.MaximumNumberOfIterations == nil {
		return invert.DefaultMaximumNumberOfIterations
	}
	return *c.MaximumNumberOfIterations
}

// GetMaxErrorToleranceThreshold returns the max_error_tolerance_threshold value or the default.
func (c *InversionConfig) GetMaxErrorToleranceThreshold() float64 {
	if c.MaxErrorToleranceThreshold == nil {
		return invert.DefaultMaxErrorToleranceThreshold
	}
	return *c.MaxErrorToleranceThreshold
}

// GetMeanErrorToleranceThreshold returns the mean_error_tolerance_threshold value or the default.
func (c *InversionConfig) GetMeanErrorToleranceThreshold() float64 {
	if c.MeanErrorToleranceThreshold == nil {
		return invert.DefaultMeanErrorToleranceThreshold
	}
	return *c.MeanErrorToleranceThreshold
}

// GetEnforceBoundaryCondition returns the enforce_boundary_condition value or the default.
func (c *InversionConfig) GetEnforceBoundaryCondition() bool {
	if c.EnforceBoundaryCondition == nil {
		return true // default
	}
	return *c.EnforceBoundaryCondition
}

// GetInterpolator returns the interpolator name or the default.
func (c *InversionConfig) GetInterpolator() string {
	if c.Interpolator == nil || *c.Interpolator == "" {
		return field.InterpolatorLinear
	}
	return *c.Interpolator
}

// GetWorkers returns the workers value or 0 (GOMAXPROCS).
func (c *InversionConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetPartitions returns the partitions value or 0 (one per worker).
func (c *InversionConfig) GetPartitions() int {
	if c.Partitions == nil {
		return 0
	}
	return *c.Partitions
}

// GetCollectPercentile returns the collect_percentile value or the default.
func (c *InversionConfig) GetCollectPercentile() bool {
	if c.CollectPercentile == nil {
		return false
	}
	return *c.CollectPercentile
}

// ToEngineConfig resolves defaults into the engine's configuration.
func (c *InversionConfig) ToEngineConfig() invert.Config {
	return invert.Config{
		MaximumNumberOfIterations:   c.GetMaximumNumberOfIterations(),
		MaxErrorToleranceThreshold:  c.GetMaxErrorToleranceThreshold(),
		MeanErrorToleranceThreshold: c.GetMeanErrorToleranceThreshold(),
		EnforceBoundaryCondition:    c.GetEnforceBoundaryCondition(),
		Partitions:                  c.GetPartitions(),
		CollectPercentile:           c.GetCollectPercentile(),
	}
}

// EngineInterpolator returns the interpolator named by the config.
func (c *InversionConfig) EngineInterpolator() (field.Interpolator, error) {
	return field.LookupInterpolator(c.GetInterpolator())
}
