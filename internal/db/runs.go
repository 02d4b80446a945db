package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/invertfield/internal/field"
	"github.com/banshee-data/invertfield/internal/fieldio"
	"github.com/banshee-data/invertfield/internal/invert"
)

// ErrRunNotFound is returned when no run matches the requested id.
var ErrRunNotFound = errors.New("run not found")

// DefaultListLimit caps ListRuns when the caller passes no limit.
const DefaultListLimit = 100

// RunRecord is one stored inversion run. Norms that were not finite when
// the run ended (no iterations ran, or the run diverged) are stored as
// NULL and read back as nil.
type RunRecord struct {
	RunID            string          `json:"run_id"`
	CreatedUnixNanos int64           `json:"created_unix_nanos"`
	Dimension        int             `json:"dimension"`
	Size             []int           `json:"size"`
	Spacing          []float64       `json:"spacing"`
	Config           json.RawMessage `json:"config"`
	Iterations       int             `json:"iterations"`
	Reason           string          `json:"reason"`
	MeanErrorNorm    *float64        `json:"mean_error_norm"`
	MaxErrorNorm     *float64        `json:"max_error_norm"`
	DurationNanos    int64           `json:"duration_nanos"`

	// Blobs are gob+gzip encoded fields, see fieldio.EncodeBlob. They are
	// only populated by GetRun.
	ForwardBlob []byte `json:"-"`
	InverseBlob []byte `json:"-"`
}

// IterationRecord is one row of a run's convergence history.
type IterationRecord struct {
	Iteration     int      `json:"iteration"`
	Epsilon       float64  `json:"epsilon"`
	MeanErrorNorm *float64 `json:"mean_error_norm"`
	MaxErrorNorm  *float64 `json:"max_error_norm"`
	P95ErrorNorm  *float64 `json:"p95_error_norm,omitempty"`
}

// FiniteOrNil returns nil for NaN and ±Inf.
func FiniteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// RecordFromResult builds the rows for an inversion of forward. configJSON
// is stored verbatim and may be nil.
func RecordFromResult(forward *field.Field, res *invert.Result, configJSON []byte) (*RunRecord, []IterationRecord, error) {
	fwdBlob, err := fieldio.EncodeBlob(forward)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode forward field: %w", err)
	}
	invBlob, err := fieldio.EncodeBlob(res.Inverse)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode inverse field: %w", err)
	}
	if len(configJSON) == 0 {
		configJSON = []byte("{}")
	}

	run := &RunRecord{
		CreatedUnixNanos: res.Started.UnixNano(),
		Dimension:        forward.Dim,
		Size:             forward.Region.Size,
		Spacing:          forward.Spacing,
		Config:           json.RawMessage(configJSON),
		Iterations:       res.State.Iteration,
		Reason:           res.Reason.String(),
		MeanErrorNorm:    FiniteOrNil(res.State.MeanErrorNorm),
		MaxErrorNorm:     FiniteOrNil(res.State.MaxErrorNorm),
		DurationNanos:    res.Duration.Nanoseconds(),
		ForwardBlob:      fwdBlob,
		InverseBlob:      invBlob,
	}

	iters := make([]IterationRecord, len(res.History))
	for i, s := range res.History {
		iters[i] = IterationRecord{
			Iteration:     s.Iteration,
			Epsilon:       s.Epsilon,
			MeanErrorNorm: FiniteOrNil(s.MeanErrorNorm),
			MaxErrorNorm:  FiniteOrNil(s.MaxErrorNorm),
			P95ErrorNorm:  FiniteOrNil(s.P95ErrorNorm),
		}
	}
	return run, iters, nil
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

// InsertRun stores a run and its iteration history in one transaction and
// returns the run id. A missing RunID is generated and a zero
// CreatedUnixNanos is set to the current time.
func (db *DB) InsertRun(run *RunRecord, iters []IterationRecord) (string, error) {
	if run.RunID == "" {
		run.RunID = uuid.NewString()
	}
	if run.CreatedUnixNanos == 0 {
		run.CreatedUnixNanos = time.Now().UnixNano()
	}
	if len(run.Config) == 0 {
		run.Config = json.RawMessage("{}")
	}
	sizeJSON, err := json.Marshal(run.Size)
	if err != nil {
		return "", fmt.Errorf("failed to marshal size: %w", err)
	}
	spacingJSON, err := json.Marshal(run.Spacing)
	if err != nil {
		return "", fmt.Errorf("failed to marshal spacing: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO inversion_runs (
			run_id, created_unix_nanos, dimension, size_json, spacing_json, config_json,
			iterations, reason, mean_error_norm, max_error_norm, duration_nanos,
			forward_blob, inverse_blob
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.CreatedUnixNanos, run.Dimension, string(sizeJSON), string(spacingJSON), string(run.Config),
		run.Iterations, run.Reason, nullFloat(run.MeanErrorNorm), nullFloat(run.MaxErrorNorm), run.DurationNanos,
		run.ForwardBlob, run.InverseBlob,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO inversion_iterations (
			run_id, iteration, epsilon, mean_error_norm, max_error_norm, p95_error_norm
		) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare iteration insert: %w", err)
	}
	defer stmt.Close()
	for _, it := range iters {
		if _, err := stmt.Exec(run.RunID, it.Iteration, it.Epsilon,
			nullFloat(it.MeanErrorNorm), nullFloat(it.MaxErrorNorm), nullFloat(it.P95ErrorNorm)); err != nil {
			return "", fmt.Errorf("failed to insert iteration %d: %w", it.Iteration, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return run.RunID, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner, withBlobs bool) (*RunRecord, error) {
	var (
		r                     RunRecord
		sizeJSON, spacingJSON string
		configJSON            string
		meanNorm, maxNorm     sql.NullFloat64
	)
	dest := []any{
		&r.RunID, &r.CreatedUnixNanos, &r.Dimension, &sizeJSON, &spacingJSON, &configJSON,
		&r.Iterations, &r.Reason, &meanNorm, &maxNorm, &r.DurationNanos,
	}
	if withBlobs {
		dest = append(dest, &r.ForwardBlob, &r.InverseBlob)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(sizeJSON), &r.Size); err != nil {
		return nil, fmt.Errorf("failed to parse size_json: %w", err)
	}
	if err := json.Unmarshal([]byte(spacingJSON), &r.Spacing); err != nil {
		return nil, fmt.Errorf("failed to parse spacing_json: %w", err)
	}
	r.Config = json.RawMessage(configJSON)
	r.MeanErrorNorm = floatPtr(meanNorm)
	r.MaxErrorNorm = floatPtr(maxNorm)
	return &r, nil
}

const runColumns = `run_id, created_unix_nanos, dimension, size_json, spacing_json, config_json,
	iterations, reason, mean_error_norm, max_error_norm, duration_nanos`

// GetRun returns the run with the given id including its field blobs.
func (db *DB) GetRun(runID string) (*RunRecord, error) {
	row := db.QueryRow(`SELECT `+runColumns+`, forward_blob, inverse_blob
		FROM inversion_runs WHERE run_id = ?`, runID)
	r, err := scanRun(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return r, nil
}

// ListRuns returns up to limit runs, newest first, without blobs. A limit
// of zero or less means DefaultListLimit.
func (db *DB) ListRuns(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := db.Query(`SELECT `+runColumns+`
		FROM inversion_runs ORDER BY created_unix_nanos DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		r, err := scanRun(rows, false)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// RunIterations returns the iteration history of a run in order.
func (db *DB) RunIterations(runID string) ([]IterationRecord, error) {
	rows, err := db.Query(`SELECT iteration, epsilon, mean_error_norm, max_error_norm, p95_error_norm
		FROM inversion_iterations WHERE run_id = ? ORDER BY iteration`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query iterations: %w", err)
	}
	defer rows.Close()

	var iters []IterationRecord
	for rows.Next() {
		var (
			it                     IterationRecord
			meanNorm, maxNorm, p95 sql.NullFloat64
		)
		if err := rows.Scan(&it.Iteration, &it.Epsilon, &meanNorm, &maxNorm, &p95); err != nil {
			return nil, fmt.Errorf("failed to scan iteration: %w", err)
		}
		it.MeanErrorNorm = floatPtr(meanNorm)
		it.MaxErrorNorm = floatPtr(maxNorm)
		it.P95ErrorNorm = floatPtr(p95)
		iters = append(iters, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return iters, nil
}

// DeleteRun removes a run and its history.
func (db *DB) DeleteRun(runID string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM inversion_iterations WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to delete iterations: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM inversion_runs WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return tx.Commit()
}
