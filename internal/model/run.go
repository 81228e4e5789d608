// Package model holds the persisted run records shared by the store, the
// pipeline and the CLI.
package model

import "time"

// RunStatus represents the current state of a scoring run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one execution of the pipeline for a region ("all" for the full
// national run).
type Run struct {
	ID         string     `json:"id"`
	Region     string     `json:"region"`
	Input      string     `json:"input"`
	Output     string     `json:"output"`
	Status     RunStatus  `json:"status"`
	Stats      *RunStats  `json:"stats,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RunStats holds the counts reported at the end of a run.
type RunStats struct {
	TilesLoaded      int           `json:"tiles_loaded"`
	TilesSkipped     int           `json:"tiles_skipped"`
	TilesDropped     int           `json:"tiles_dropped"`
	CountiesLoaded   int           `json:"counties_loaded"`
	CountiesExcluded int           `json:"counties_excluded"`
	CountiesScored   int           `json:"counties_scored"`
	CountiesMissing  int           `json:"counties_missing"`
	ValidationStatus string        `json:"validation_status,omitempty"`
	ValidationIssues int           `json:"validation_issues"`
	Stages           []StageResult `json:"stages,omitempty"`
}

// StageResult records how long one pipeline stage took.
type StageResult struct {
	Name     string `json:"name"`
	Duration int64  `json:"duration_ms"`
}

// Duration returns the wall time between start and finish, or zero while
// the run is in progress.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
