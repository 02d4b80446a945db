package invert

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidInput is wrapped by every validation failure at entry to
	// Invert. No output field is produced alongside it.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDiverged is wrapped when the residual norms stop being finite. The
	// Result returned with it holds the last finite inverse estimate.
	ErrDiverged = errors.New("inversion diverged")
)

// Defaults applied by DefaultConfig.
const (
	DefaultMaximumNumberOfIterations   = 20
	DefaultMaxErrorToleranceThreshold  = 0.1
	DefaultMeanErrorToleranceThreshold = 0.001
)

// Damping factors: the first iteration takes a larger step.
const (
	firstEpsilon = 0.75
	epsilon      = 0.5
)

// Config is the immutable configuration of one inversion run.
type Config struct {
	// MaximumNumberOfIterations bounds how often the loop body runs. Zero
	// returns the all-zero inverse untouched.
	MaximumNumberOfIterations int
	// MaxErrorToleranceThreshold and MeanErrorToleranceThreshold stop the
	// loop as soon as either the max or the mean spacing-scaled residual
	// is at or below its threshold.
	MaxErrorToleranceThreshold  float64
	MeanErrorToleranceThreshold float64
	// EnforceBoundaryCondition pins the first and last index on every axis
	// to the zero displacement after each update.
	EnforceBoundaryCondition bool
	// Partitions is the number of disjoint spans each pass is split into.
	// <= 0 uses the worker pool size. Runs with the same partition count
	// are bit-identical; the residual sum may differ in the last bits
	// across partition counts.
	Partitions int
	// CollectPercentile records the 95th percentile residual per iteration.
	CollectPercentile bool
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() Config {
	return Config{
		MaximumNumberOfIterations:   DefaultMaximumNumberOfIterations,
		MaxErrorToleranceThreshold:  DefaultMaxErrorToleranceThreshold,
		MeanErrorToleranceThreshold: DefaultMeanErrorToleranceThreshold,
		EnforceBoundaryCondition:    true,
	}
}

// Validate checks the configuration. Failures wrap ErrInvalidInput.
func (c Config) Validate() error {
	if c.MaximumNumberOfIterations < 0 {
		return fmt.Errorf("%w: maximum number of iterations must be >= 0, got %d", ErrInvalidInput, c.MaximumNumberOfIterations)
	}
	if !validThreshold(c.MaxErrorToleranceThreshold) {
		return fmt.Errorf("%w: max error tolerance must be finite and >= 0, got %g", ErrInvalidInput, c.MaxErrorToleranceThreshold)
	}
	if !validThreshold(c.MeanErrorToleranceThreshold) {
		return fmt.Errorf("%w: mean error tolerance must be finite and >= 0, got %g", ErrInvalidInput, c.MeanErrorToleranceThreshold)
	}
	return nil
}

func validThreshold(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0)
}
