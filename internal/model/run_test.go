package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStatusValues(t *testing.T) {
	tests := []struct {
		status RunStatus
		want   string
	}{
		{RunStatusRunning, "running"},
		{RunStatusComplete, "complete"},
		{RunStatusFailed, "failed"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, string(tt.status))
	}
}

func TestRun_Duration(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := &Run{StartedAt: start}
	assert.Zero(t, r.Duration())

	end := start.Add(90 * time.Second)
	r.FinishedAt = &end
	assert.Equal(t, 90*time.Second, r.Duration())
}

func TestRun_JSONOmitsEmpty(t *testing.T) {
	data, err := json.Marshal(Run{ID: "r1", Region: "south", Status: RunStatusRunning})
	require.NoError(t, err)
	s := string(data)
	assert.Contains(t, s, `"status":"running"`)
	assert.NotContains(t, s, "stats")
	assert.NotContains(t, s, "finished_at")
	assert.NotContains(t, s, "error")
}
