// Package store persists pipeline runs and the latest county scores per
// region for the presentation layer.
package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/loghub/countyscore/internal/config"
	"github.com/loghub/countyscore/internal/export"
	"github.com/loghub/countyscore/internal/model"
)

// Supported drivers.
const (
	DriverNone     = "none"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Region string          `json:"region,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

func (f RunFilter) limit() int {
	if f.Limit <= 0 {
		return 100
	}
	return f.Limit
}

// Store defines the persistence interface for scoring runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, region, input, output string) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus, stats *model.RunStats, runErr error) error
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// ReplaceCountyScores supersedes every stored score for region with
	// features, atomically. It returns the number of rows written.
	ReplaceCountyScores(ctx context.Context, runID, region string, features []export.Feature) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects the configured driver and applies migrations. It returns a
// nil Store when persistence is disabled.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))

	var (
		s   Store
		err error
	)
	switch driver {
	case "", DriverNone:
		return nil, nil
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, eris.New("store: postgres driver requires store.database_url")
		}
		s, err = NewPostgres(ctx, cfg.DatabaseURL)
	case DriverSQLite:
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "countyscore.db"
		}
		s, err = NewSQLite(dsn)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := s.Migrate(ctx); err != nil {
		s.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}

func marshalStats(stats *model.RunStats) ([]byte, error) {
	if stats == nil {
		return nil, nil
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal run stats")
	}
	return data, nil
}

func unmarshalStats(data string) (*model.RunStats, error) {
	if data == "" {
		return nil, nil
	}
	var stats model.RunStats
	if err := json.Unmarshal([]byte(data), &stats); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal run stats")
	}
	return &stats, nil
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func finishedAt(hasFinished bool, t time.Time) *time.Time {
	if !hasFinished {
		return nil
	}
	t = t.UTC()
	return &t
}
