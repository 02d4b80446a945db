package invert

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/invertfield/internal/field"
	"github.com/banshee-data/invertfield/internal/parallel"
	"github.com/banshee-data/invertfield/internal/timeutil"
)

// Reason records why the iteration loop stopped.
type Reason int

const (
	ReasonNotStarted Reason = iota
	ReasonConverged
	ReasonMaxIterationsReached
	ReasonDiverged
	ReasonCancelled
)

func (r Reason) String() string {
	switch r {
	case ReasonNotStarted:
		return "not_started"
	case ReasonConverged:
		return "converged"
	case ReasonMaxIterationsReached:
		return "max_iterations_reached"
	case ReasonDiverged:
		return "diverged"
	case ReasonCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// ParseReason is the inverse of Reason.String.
func ParseReason(s string) (Reason, error) {
	for r := ReasonNotStarted; r <= ReasonCancelled; r++ {
		if r.String() == s {
			return r, nil
		}
	}
	return ReasonNotStarted, fmt.Errorf("unknown reason %q", s)
}

// State is the controller state after the most recent iteration. Both norms
// start at +Inf and are recomputed from scratch every iteration.
type State struct {
	Iteration     int
	MeanErrorNorm float64
	MaxErrorNorm  float64
	Epsilon       float64
}

// IterationStats summarises one pass of the loop body.
type IterationStats struct {
	Iteration     int
	Epsilon       float64
	MeanErrorNorm float64
	MaxErrorNorm  float64
	// P95ErrorNorm is NaN unless Config.CollectPercentile is set.
	P95ErrorNorm float64
}

// Result is the outcome of an inversion run.
type Result struct {
	Inverse  *field.Field
	State    State
	Reason   Reason
	History  []IterationStats
	Started  time.Time
	Duration time.Duration
}

// Inverter computes the inverse of displacement fields by damped
// fixed-point iteration. An Inverter is safe for concurrent use; each
// Invert call owns its working buffers.
type Inverter struct {
	cfg      Config
	pool     *parallel.Pool
	composer *field.Composer
	clock    timeutil.Clock
	observer func(IterationStats)
}

// Option customises an Inverter.
type Option func(*Inverter)

// WithInterpolator replaces the linear interpolator used by composition.
func WithInterpolator(interp field.Interpolator) Option {
	return func(inv *Inverter) {
		if interp != nil {
			inv.composer.Interpolator = interp
		}
	}
}

// WithPool sets the worker pool shared by every pass.
func WithPool(pool *parallel.Pool) Option {
	return func(inv *Inverter) {
		if pool != nil {
			inv.pool = pool
			inv.composer.Pool = pool
		}
	}
}

// WithClock sets the clock used to time runs.
func WithClock(c timeutil.Clock) Option {
	return func(inv *Inverter) {
		if c != nil {
			inv.clock = c
		}
	}
}

// WithObserver registers a callback invoked after every iteration, on the
// calling goroutine, between phases.
func WithObserver(fn func(IterationStats)) Option {
	return func(inv *Inverter) { inv.observer = fn }
}

// New returns an Inverter for cfg. The configuration is validated by
// Invert, not here.
func New(cfg Config, opts ...Option) *Inverter {
	pool := parallel.NewPool(0)
	inv := &Inverter{
		cfg:      cfg,
		pool:     pool,
		composer: field.NewComposer(pool),
		clock:    timeutil.RealClock{},
	}
	for _, opt := range opts {
		opt(inv)
	}
	inv.composer.Partitions = cfg.Partitions
	return inv
}

// Config returns the inverter's configuration.
func (inv *Inverter) Config() Config { return inv.cfg }

// Invert returns a field that, composed with forward in either order,
// approximates the identity. forward is only read.
//
// Invalid geometry or configuration returns an error wrapping
// ErrInvalidInput and a nil Result. Divergence returns the Result together
// with an error wrapping ErrDiverged. Cancellation is observed only between
// iterations and returns the Result together with ctx.Err().
func (inv *Inverter) Invert(ctx context.Context, forward *field.Field) (*Result, error) {
	if err := forward.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	cfg := inv.cfg
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	started := inv.clock.Now()
	inverse := field.NewFieldLike(forward)
	composed := field.NewFieldLike(forward)
	norms := field.NewScalarField(forward.Region)

	parts := cfg.Partitions
	if parts <= 0 {
		parts = inv.pool.Workers()
	}
	spans := forward.Region.Partition(parts)
	numCells := float64(forward.NumCells())

	res := &Result{
		Inverse: inverse,
		Started: started,
		State: State{
			MeanErrorNorm: math.Inf(1),
			MaxErrorNorm:  math.Inf(1),
		},
	}
	st := &res.State
	finish := func(reason Reason) {
		res.Reason = reason
		res.Duration = inv.clock.Since(started)
	}

	diagf("inverting %d-D field: cells=%d partitions=%d max_iterations=%d", forward.Dim, forward.NumCells(), len(spans), cfg.MaximumNumberOfIterations)

	for {
		if st.MaxErrorNorm <= cfg.MaxErrorToleranceThreshold || st.MeanErrorNorm <= cfg.MeanErrorToleranceThreshold {
			finish(ReasonConverged)
			break
		}
		if st.Iteration >= cfg.MaximumNumberOfIterations {
			finish(ReasonMaxIterationsReached)
			break
		}
		if err := ctx.Err(); err != nil {
			finish(ReasonCancelled)
			opsf("cancelled after %d iterations: %v", st.Iteration, err)
			return res, err
		}
		st.Iteration++

		if err := inv.composer.ComposeInto(composed, forward, inverse); err != nil {
			return nil, fmt.Errorf("compose at iteration %d: %w", st.Iteration, err)
		}

		totals, err := estimateResiduals(inv.pool, residualPhase{
			composed: composed,
			norms:    norms,
			spans:    spans,
		})
		if err != nil {
			return nil, fmt.Errorf("residual pass at iteration %d: %w", st.Iteration, err)
		}
		st.MeanErrorNorm = totals.sum / numCells
		st.MaxErrorNorm = totals.max

		st.Epsilon = epsilon
		if st.Iteration == 1 {
			st.Epsilon = firstEpsilon
		}

		stats := IterationStats{
			Iteration:     st.Iteration,
			Epsilon:       st.Epsilon,
			MeanErrorNorm: st.MeanErrorNorm,
			MaxErrorNorm:  st.MaxErrorNorm,
			P95ErrorNorm:  math.NaN(),
		}
		if cfg.CollectPercentile {
			stats.P95ErrorNorm = percentile(norms.Data, 0.95)
		}
		res.History = append(res.History, stats)
		diagf("iteration %d: mean error norm = %g, max error norm = %g, epsilon = %g",
			st.Iteration, st.MeanErrorNorm, st.MaxErrorNorm, st.Epsilon)

		if !finite(st.MeanErrorNorm) || !finite(st.MaxErrorNorm) {
			finish(ReasonDiverged)
			opsf("diverged at iteration %d: mean=%g max=%g", st.Iteration, st.MeanErrorNorm, st.MaxErrorNorm)
			if inv.observer != nil {
				inv.observer(stats)
			}
			return res, fmt.Errorf("%w at iteration %d", ErrDiverged, st.Iteration)
		}

		err = applyUpdate(inv.pool, updatePhase{
			correction:      composed,
			norms:           norms,
			inverse:         inverse,
			spans:           spans,
			epsilon:         st.Epsilon,
			maxErrorNorm:    st.MaxErrorNorm,
			enforceBoundary: cfg.EnforceBoundaryCondition,
		})
		if err != nil {
			return nil, fmt.Errorf("update pass at iteration %d: %w", st.Iteration, err)
		}

		if inv.observer != nil {
			inv.observer(stats)
		}
	}

	opsf("%s after %d iterations: mean error norm = %g, max error norm = %g (%v)",
		res.Reason, st.Iteration, st.MeanErrorNorm, st.MaxErrorNorm, res.Duration)
	return res, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// percentile returns the empirical p-quantile of values without modifying
// them.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}
