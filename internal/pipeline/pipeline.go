// Package pipeline runs the tile-to-county scoring stages end to end: load,
// join, aggregate, export, validate and the optional persistence and metrics
// steps.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/loghub/countyscore/internal/config"
	"github.com/loghub/countyscore/internal/county"
	"github.com/loghub/countyscore/internal/export"
	"github.com/loghub/countyscore/internal/fetcher"
	"github.com/loghub/countyscore/internal/model"
	"github.com/loghub/countyscore/internal/monitoring"
	"github.com/loghub/countyscore/internal/resilience"
	"github.com/loghub/countyscore/internal/scoring"
	"github.com/loghub/countyscore/internal/spatial"
	"github.com/loghub/countyscore/internal/store"
	"github.com/loghub/countyscore/internal/tile"
	"github.com/loghub/countyscore/internal/validate"
)

// RegionAll labels a run over the full reference dataset.
const RegionAll = "all"

// Stage names recorded in RunStats.
const (
	StageLoadTiles    = "load_tiles"
	StageLoadCounties = "load_counties"
	StageJoin         = "join"
	StageAggregate    = "aggregate"
	StageExport       = "export"
	StageValidate     = "validate"
	StagePersist      = "persist"
)

// Pipeline orchestrates one or more scoring runs.
type Pipeline struct {
	cfg      *config.Config
	scoring  scoring.Config
	export   export.Options
	resolver *fetcher.Resolver
	store    store.Store
	metrics  *monitoring.Collector
}

// New creates a Pipeline. st and metrics may be nil to disable persistence
// and the textfile export respectively.
func New(cfg *config.Config, st store.Store, metrics *monitoring.Collector) (*Pipeline, error) {
	sc, err := scoring.FromConfig(cfg.Scoring)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: scoring config")
	}
	opts, err := ExportOptions(cfg.Export)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:      cfg,
		scoring:  sc,
		export:   opts,
		resolver: fetcher.NewResolver(FetchOptions(cfg.Fetch), cfg.Counties.CacheDir),
		store:    st,
		metrics:  metrics,
	}, nil
}

// ExportOptions builds the exporter options from configuration.
func ExportOptions(c config.ExportConfig) (export.Options, error) {
	opts := export.DefaultOptions()
	opts.Simplify = c.Simplify
	if c.LegendField != "" {
		if _, err := export.FieldValue(scoring.CountyScore{}, c.LegendField); err != nil {
			return export.Options{}, eris.Wrap(err, "pipeline: export.legend_field")
		}
		opts.LegendField = c.LegendField
	}
	if len(c.ColorRamp) > 0 {
		ramp, err := export.ParseRamp(c.ColorRamp)
		if err != nil {
			return export.Options{}, eris.Wrap(err, "pipeline: export.color_ramp")
		}
		opts.Ramp = ramp
	}
	return opts, nil
}

// FetchOptions builds the downloader options from configuration.
func FetchOptions(c config.FetchConfig) fetcher.Options {
	return fetcher.Options{
		UserAgent:  c.UserAgent,
		Timeout:    time.Duration(c.TimeoutSecs) * time.Second,
		RatePerSec: c.RatePerSec,
		Retry:      resilience.DefaultPolicy().WithAttempts(c.MaxAttempts),
	}
}

// Request describes a single run.
type Request struct {
	// Region labels the run; empty means RegionAll.
	Region string
	// States restricts the county reference to these state FIPS codes.
	States []string
	// Tiles is a local path or remote URL; empty uses input.tiles.
	Tiles string
	// Output is the GeoJSON path; empty uses export.output.
	Output string
}

// Result is the outcome of one run.
type Result struct {
	RunID  string
	Region string
	Output string
	// Image is the PNG path when visualization is enabled.
	Image  string
	Scores []scoring.CountyScore
	Report *validate.Report
	Stats  model.RunStats
}

// Run executes the full pipeline for one request.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	req = p.withDefaults(req)
	t := newTracker(req.Region)

	var tiles *tile.LoadResult
	if err := t.track(ctx, StageLoadTiles, func() (err error) {
		tiles, err = p.LoadTiles(ctx, req.Tiles)
		return err
	}); err != nil {
		return nil, err
	}

	var counties *county.LoadResult
	if err := t.track(ctx, StageLoadCounties, func() (err error) {
		counties, err = p.LoadCounties(ctx, req.States)
		return err
	}); err != nil {
		return nil, err
	}

	return p.score(ctx, req, tiles, counties, t)
}

// LoadTiles resolves source to a local file and reads its tiles.
func (p *Pipeline) LoadTiles(ctx context.Context, source string) (*tile.LoadResult, error) {
	path, err := p.resolver.Resolve(ctx, source)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: resolve tiles")
	}
	return tile.Load(ctx, path, tile.Options{SheetName: p.cfg.Input.SheetName})
}

// LoadCounties fetches the configured boundary dataset if needed and loads
// it, keeping only the given states when states is non-empty.
func (p *Pipeline) LoadCounties(ctx context.Context, states []string) (*county.LoadResult, error) {
	source := p.cfg.Counties.Path
	if source == "" {
		source = p.cfg.Counties.URL
	}
	path, err := county.Fetch(ctx, p.resolver, source, p.cfg.Counties.Year)
	if err != nil {
		return nil, err
	}
	return county.Load(ctx, path, states)
}

func (p *Pipeline) withDefaults(req Request) Request {
	if req.Region == "" {
		req.Region = RegionAll
	}
	if req.Tiles == "" {
		req.Tiles = p.cfg.Input.Tiles
	}
	if req.Output == "" {
		req.Output = p.cfg.Export.Output
	}
	return req
}

// score runs the stages after loading. tiles and counties are shared
// read-only between concurrent regional runs.
func (p *Pipeline) score(ctx context.Context, req Request, tiles *tile.LoadResult, counties *county.LoadResult, t *tracker) (res *Result, err error) {
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("region", req.Region))

	res = &Result{Region: req.Region, Output: req.Output}
	res.Stats.TilesLoaded = len(tiles.Tiles)
	res.Stats.TilesSkipped = tiles.SkippedTotal()
	res.Stats.CountiesLoaded = len(counties.Counties)
	res.Stats.CountiesExcluded = excludedIn(counties, req.States)

	if p.store != nil {
		run, createErr := p.store.CreateRun(ctx, req.Region, req.Tiles, req.Output)
		if createErr != nil {
			return nil, eris.Wrap(createErr, "pipeline: create run")
		}
		res.RunID = run.ID
	}
	log.Info("pipeline: starting run",
		zap.String("run_id", res.RunID),
		zap.String("tiles", req.Tiles),
		zap.Int("counties", len(counties.Counties)),
	)

	defer func() {
		res.Stats.Stages = t.stages
		p.finish(ctx, res, err)
	}()

	var joined *spatial.Result
	if err = t.track(ctx, StageJoin, func() (jerr error) {
		joined, jerr = spatial.Join(ctx, tiles.Tiles, spatial.NewIndex(counties.Counties))
		return jerr
	}); err != nil {
		return res, err
	}
	res.Stats.TilesDropped = joined.Dropped

	if err = t.track(ctx, StageAggregate, func() error {
		res.Scores = scoring.Aggregate(joined.ByCounty, countyInfo(counties.Counties), p.scoring)
		return nil
	}); err != nil {
		return res, err
	}
	res.Stats.CountiesScored = len(res.Scores)

	var features []export.Feature
	if err = t.track(ctx, StageExport, func() (xerr error) {
		features, xerr = export.Features(res.Scores, counties.Counties, p.export)
		if xerr != nil {
			return xerr
		}
		if xerr = export.WriteGeoJSON(req.Output, features, p.export); xerr != nil {
			return xerr
		}
		if p.cfg.Export.Visualize && len(features) > 0 {
			res.Image = export.SiblingPath(req.Output, "_viz.png")
			return export.WritePNG(res.Image, features, p.export, p.cfg.Export.ImageWidth)
		}
		return nil
	}); err != nil {
		return res, err
	}

	// Validation is advisory: problems are reported, never returned.
	if err = t.track(ctx, StageValidate, func() error {
		res.Report = validate.Check(req.Output, features, counties.Counties)
		res.Report.Log()
		if p.cfg.Validate.WriteReport {
			if werr := validate.WriteReport(validate.ReportPath(req.Output), res.Report); werr != nil {
				log.Warn("pipeline: write validation report", zap.Error(werr))
			}
		}
		return nil
	}); err != nil {
		return res, err
	}
	res.Stats.CountiesMissing = len(res.Report.MissingCounties)
	res.Stats.ValidationStatus = string(res.Report.Status)
	res.Stats.ValidationIssues = res.Report.IssueCount()

	if p.store != nil {
		if err = t.track(ctx, StagePersist, func() error {
			_, perr := p.store.ReplaceCountyScores(ctx, res.RunID, req.Region, features)
			return perr
		}); err != nil {
			return res, err
		}
	}

	log.Info("pipeline: run complete",
		zap.String("output", req.Output),
		zap.Int("tiles_loaded", res.Stats.TilesLoaded),
		zap.Int("tiles_skipped", res.Stats.TilesSkipped),
		zap.Int("tiles_dropped", res.Stats.TilesDropped),
		zap.Int("counties_scored", res.Stats.CountiesScored),
		zap.String("validation", res.Stats.ValidationStatus),
	)
	return res, nil
}

// finish records the run outcome in the store and the metrics collector.
func (p *Pipeline) finish(ctx context.Context, res *Result, runErr error) {
	status := model.RunStatusComplete
	if runErr != nil {
		status = model.RunStatusFailed
	}
	if p.metrics != nil {
		p.metrics.ObserveRun(res.Region, status, &res.Stats, time.Now())
	}
	if p.store == nil || res.RunID == "" {
		return
	}
	// the run row is closed even when ctx was cancelled
	if err := p.store.FinishRun(context.WithoutCancel(ctx), res.RunID, status, &res.Stats, runErr); err != nil {
		zap.L().With(zap.String("component", "pipeline")).Warn("pipeline: failed to finish run",
			zap.String("run_id", res.RunID), zap.Error(err))
	}
}

func countyInfo(counties []county.County) map[string]scoring.CountyInfo {
	info := make(map[string]scoring.CountyInfo, len(counties))
	for _, c := range counties {
		info[c.FIPS] = scoring.CountyInfo{Name: c.Name, StateFIPS: c.StateFIPS}
	}
	return info
}

// excludedIn counts excluded counties belonging to states, or all of them
// when states is empty.
func excludedIn(res *county.LoadResult, states []string) int {
	if len(states) == 0 {
		return res.ExcludedTotal()
	}
	keep := make(map[string]bool, len(states))
	for _, s := range states {
		keep[s] = true
	}
	n := 0
	for _, fips := range res.ExcludedFIPS {
		if len(fips) >= 2 && keep[fips[:2]] {
			n++
		}
	}
	return n
}
