package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	_ "modernc.org/sqlite"

	"github.com/loghub/countyscore/internal/county"
	"github.com/loghub/countyscore/internal/export"
	"github.com/loghub/countyscore/internal/model"
	"github.com/loghub/countyscore/internal/scoring"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store using modernc.org/sqlite through sqlx.
// Boundaries are kept as GeoJSON text.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// one writer; also keeps ":memory:" databases on a single connection
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS score_runs (
	id          TEXT PRIMARY KEY,
	region      TEXT NOT NULL,
	input       TEXT NOT NULL,
	output      TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	stats       TEXT,
	error       TEXT,
	started_at  TEXT NOT NULL,
	finished_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_score_runs_status ON score_runs(status);
CREATE INDEX IF NOT EXISTS idx_score_runs_region_started ON score_runs(region, started_at);

CREATE TABLE IF NOT EXISTS county_scores (
	region                 TEXT NOT NULL,
	fips_code              TEXT NOT NULL,
	run_id                 TEXT NOT NULL REFERENCES score_runs(id),
	name                   TEXT NOT NULL DEFAULT '',
	state_fips             TEXT NOT NULL DEFAULT '',
	obsolescence_score     REAL NOT NULL,
	growth_potential_score REAL NOT NULL,
	bivariate_score        REAL NOT NULL,
	confidence             REAL NOT NULL,
	tile_count             INTEGER NOT NULL,
	geometry               TEXT,
	PRIMARY KEY (region, fips_code)
);

CREATE INDEX IF NOT EXISTS idx_county_scores_run_id ON county_scores(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type runRow struct {
	ID         string         `db:"id"`
	Region     string         `db:"region"`
	Input      string         `db:"input"`
	Output     string         `db:"output"`
	Status     string         `db:"status"`
	Stats      sql.NullString `db:"stats"`
	Error      sql.NullString `db:"error"`
	StartedAt  string         `db:"started_at"`
	FinishedAt sql.NullString `db:"finished_at"`
}

func (r runRow) toModel() (model.Run, error) {
	run := model.Run{
		ID:     r.ID,
		Region: r.Region,
		Input:  r.Input,
		Output: r.Output,
		Status: model.RunStatus(r.Status),
		Error:  r.Error.String,
	}
	started, err := time.Parse(timeLayout, r.StartedAt)
	if err != nil {
		return model.Run{}, eris.Wrapf(err, "sqlite: parse started_at for run %s", r.ID)
	}
	run.StartedAt = started
	if r.FinishedAt.Valid {
		finished, err := time.Parse(timeLayout, r.FinishedAt.String)
		if err != nil {
			return model.Run{}, eris.Wrapf(err, "sqlite: parse finished_at for run %s", r.ID)
		}
		run.FinishedAt = finishedAt(true, finished)
	}
	if run.Stats, err = unmarshalStats(r.Stats.String); err != nil {
		return model.Run{}, err
	}
	return run, nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context, region, input, output string) (*model.Run, error) {
	now := time.Now().UTC()
	row := runRow{
		ID:        uuid.New().String(),
		Region:    region,
		Input:     input,
		Output:    output,
		Status:    string(model.RunStatusRunning),
		StartedAt: now.Format(timeLayout),
	}
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO score_runs (id, region, input, output, status, started_at)
		 VALUES (:id, :region, :input, :output, :status, :started_at)`, row)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return &model.Run{
		ID:        row.ID,
		Region:    region,
		Input:     input,
		Output:    output,
		Status:    model.RunStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, stats *model.RunStats, runErr error) error {
	statsJSON, err := marshalStats(stats)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE score_runs SET status = ?, stats = ?, error = NULLIF(?, ''), finished_at = ? WHERE id = ?`,
		string(status), nullString(string(statsJSON)), errorText(runErr), time.Now().UTC().Format(timeLayout), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, region, input, output, status, stats, error, started_at, finished_at FROM score_runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Region != "" {
		query += ` AND region = ?`
		args = append(args, filter.Region)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, filter.limit())
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	runs := make([]model.Run, 0, len(rows))
	for _, row := range rows {
		r, err := row.toModel()
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, nil
}

type scoreRow struct {
	Region               string         `db:"region"`
	FIPS                 string         `db:"fips_code"`
	RunID                string         `db:"run_id"`
	Name                 string         `db:"name"`
	StateFIPS            string         `db:"state_fips"`
	ObsolescenceScore    float64        `db:"obsolescence_score"`
	GrowthPotentialScore float64        `db:"growth_potential_score"`
	BivariateScore       float64        `db:"bivariate_score"`
	Confidence           float64        `db:"confidence"`
	TileCount            int            `db:"tile_count"`
	Geometry             sql.NullString `db:"geometry"`
}

func (s *SQLiteStore) ReplaceCountyScores(ctx context.Context, runID, region string, features []export.Feature) (int64, error) {
	rows := make([]scoreRow, 0, len(features))
	for _, f := range features {
		g, err := county.ToGeom(f.Boundary)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: geometry for %s", f.Score.FIPS)
		}
		enc, err := geojson.Encode(g)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: encode geometry for %s", f.Score.FIPS)
		}
		data, err := json.Marshal(enc)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: marshal geometry for %s", f.Score.FIPS)
		}
		sc := f.Score
		rows = append(rows, scoreRow{
			Region:               region,
			FIPS:                 sc.FIPS,
			RunID:                runID,
			Name:                 sc.Name,
			StateFIPS:            sc.StateFIPS,
			ObsolescenceScore:    sc.ObsolescenceScore,
			GrowthPotentialScore: sc.GrowthPotentialScore,
			BivariateScore:       sc.BivariateScore,
			Confidence:           sc.Confidence,
			TileCount:            sc.TileCount,
			Geometry:             nullString(string(data)),
		})
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: replace county scores: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM county_scores WHERE region = ?`, region); err != nil {
		return 0, eris.Wrap(err, "sqlite: replace county scores: delete")
	}
	for _, row := range rows {
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO county_scores (
			region, fips_code, run_id, name, state_fips,
			obsolescence_score, growth_potential_score, bivariate_score,
			confidence, tile_count, geometry
		) VALUES (
			:region, :fips_code, :run_id, :name, :state_fips,
			:obsolescence_score, :growth_potential_score, :bivariate_score,
			:confidence, :tile_count, :geometry
		)`, row); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert score %s", row.FIPS)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: replace county scores: commit tx")
	}
	return int64(len(rows)), nil
}

// CountyScores returns the stored scores for region ordered by FIPS.
func (s *SQLiteStore) CountyScores(ctx context.Context, region string) ([]scoring.CountyScore, error) {
	var rows []scoreRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM county_scores WHERE region = ? ORDER BY fips_code`, region,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: select county scores")
	}
	out := make([]scoring.CountyScore, len(rows))
	for i, r := range rows {
		out[i] = scoring.CountyScore{
			FIPS:                 r.FIPS,
			Name:                 r.Name,
			StateFIPS:            r.StateFIPS,
			ObsolescenceScore:    r.ObsolescenceScore,
			GrowthPotentialScore: r.GrowthPotentialScore,
			BivariateScore:       r.BivariateScore,
			Confidence:           r.Confidence,
			TileCount:            r.TileCount,
		}
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
