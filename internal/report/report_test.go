package report

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/invertfield/internal/db"
	"github.com/banshee-data/invertfield/internal/invert"
)

func history() []Point {
	return []Point{
		{Iteration: 1, Mean: 0.2, Max: 0.5, P95: math.NaN()},
		{Iteration: 2, Mean: 0.08, Max: 0.3, P95: math.NaN()},
		{Iteration: 3, Mean: 0.03, Max: 0.15, P95: math.NaN()},
	}
}

func TestPointsFromStats(t *testing.T) {
	pts := PointsFromStats([]invert.IterationStats{
		{Iteration: 1, Epsilon: 0.75, MeanErrorNorm: 0.1, MaxErrorNorm: 0.4, P95ErrorNorm: 0.3},
	})
	require.Len(t, pts, 1)
	assert.Equal(t, Point{Iteration: 1, Mean: 0.1, Max: 0.4, P95: 0.3}, pts[0])
}

func TestPointsFromRecords(t *testing.T) {
	mean := 0.1
	pts := PointsFromRecords([]db.IterationRecord{{Iteration: 4, Epsilon: 0.5, MeanErrorNorm: &mean}})
	require.Len(t, pts, 1)
	assert.Equal(t, 4, pts[0].Iteration)
	assert.Equal(t, 0.1, pts[0].Mean)
	assert.True(t, math.IsNaN(pts[0].Max))
	assert.True(t, math.IsNaN(pts[0].P95))
}

func TestPositive(t *testing.T) {
	assert.True(t, positive(history()))
	assert.False(t, positive([]Point{{Iteration: 1, Mean: 0, Max: 0, P95: math.NaN()}}))
	assert.False(t, positive([]Point{{Iteration: 1, Mean: math.NaN(), Max: math.Inf(1), P95: math.NaN()}}))
	assert.False(t, positive(nil))
}

func TestSaveConvergencePlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "convergence.png")
	require.NoError(t, SaveConvergencePlot(history(), "test run", path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), 8)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\n"), data[:8])
}

func TestSaveConvergencePlot_ZeroNorms(t *testing.T) {
	// identity input converges with zero residuals; must not use a log axis
	path := filepath.Join(t.TempDir(), "identity.png")
	pts := []Point{{Iteration: 1, Mean: 0, Max: 0, P95: 0}}
	assert.NoError(t, SaveConvergencePlot(pts, "identity", path))
}

func TestSaveConvergencePlot_Empty(t *testing.T) {
	err := SaveConvergencePlot(nil, "empty", filepath.Join(t.TempDir(), "empty.png"))
	assert.ErrorContains(t, err, "no iterations")
}

func TestRenderConvergenceChart(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderConvergenceChart(&buf, "Run abc", "converged after 3 iterations", history()))

	html := buf.String()
	assert.True(t, strings.Contains(html, "<html"), "expected an HTML document")
	assert.Contains(t, html, "Run abc")
	assert.Contains(t, html, `"mean"`)
	assert.Contains(t, html, `"max"`)
	assert.NotContains(t, html, `"p95"`)
}

func TestRenderConvergenceChart_GapsAndP95(t *testing.T) {
	pts := history()
	pts[1].Mean = math.NaN()
	pts[2].P95 = 0.1

	var buf bytes.Buffer
	require.NoError(t, RenderConvergenceChart(&buf, "gaps", "", pts))
	assert.Contains(t, buf.String(), `"p95"`)
	assert.Contains(t, buf.String(), `"-"`)
}
