package monitoring

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loghub/countyscore/internal/model"
)

func TestObserveRun(t *testing.T) {
	c := NewCollector()
	stats := &model.RunStats{
		TilesLoaded:      120,
		TilesSkipped:     2,
		TilesDropped:     5,
		CountiesExcluded: 1,
		CountiesScored:   14,
		CountiesMissing:  3,
		ValidationIssues: 0,
		Stages: []model.StageResult{
			{Name: "load_tiles", Duration: 1500},
			{Name: "join", Duration: 250},
		},
	}
	finished := time.Unix(1714564800, 0)

	c.ObserveRun("south", model.RunStatusComplete, stats, finished)
	c.ObserveRun("south", model.RunStatusComplete, stats, finished)
	c.ObserveRun("west", model.RunStatusFailed, nil, finished)

	assert.Equal(t, 120.0, testutil.ToFloat64(c.TilesLoaded.WithLabelValues("south")))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.TilesDropped.WithLabelValues("south")))
	assert.Equal(t, 14.0, testutil.ToFloat64(c.CountiesScored.WithLabelValues("south")))
	assert.Equal(t, 1.5, testutil.ToFloat64(c.StageDuration.WithLabelValues("south", "load_tiles")))
	assert.Equal(t, 0.25, testutil.ToFloat64(c.StageDuration.WithLabelValues("south", "join")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.RunsTotal.WithLabelValues("south", "complete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.RunsTotal.WithLabelValues("west", "failed")))
	assert.Equal(t, 1714564800.0, testutil.ToFloat64(c.LastRunTimestamp.WithLabelValues("west")))

	// a failed run without stats does not create count series
	assert.Equal(t, 1, testutil.CollectAndCount(c.TilesLoaded))
}

func TestWriteTextfile(t *testing.T) {
	c := NewCollector()
	c.ObserveRun("all", model.RunStatusComplete, &model.RunStats{CountiesScored: 7}, time.Now())

	path := filepath.Join(t.TempDir(), "textfile", "countyscore.prom")
	require.NoError(t, c.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "# TYPE countyscore_counties_scored gauge")
	assert.Contains(t, text, `countyscore_counties_scored{region="all"} 7`)
	assert.Contains(t, text, `countyscore_runs_total{region="all",status="complete"} 1`)
	assert.False(t, strings.Contains(text, "go_goroutines"), "private registry carries no runtime collectors")
}

func TestWriteTextfile_Disabled(t *testing.T) {
	assert.NoError(t, NewCollector().WriteTextfile(""))
}
