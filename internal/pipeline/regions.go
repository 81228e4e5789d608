package pipeline

import (
	"context"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/loghub/countyscore/internal/county"
	"github.com/loghub/countyscore/internal/region"
	"github.com/loghub/countyscore/internal/tile"
)

// RegionsRequest describes a regional batch.
type RegionsRequest struct {
	Regions []region.Region
	// Tiles is a local path or remote URL; empty uses input.tiles.
	Tiles string
	// OutputDir receives <region>.geojson; empty uses export.output_dir.
	OutputDir string
	// Concurrency bounds the regions scored at once; zero uses
	// batch.concurrency.
	Concurrency int
}

// RegionOutput returns the GeoJSON path for a region.
func RegionOutput(dir, name string) string {
	return filepath.Join(dir, name+".geojson")
}

// RunRegions scores each region concurrently. Tiles and the county
// reference are loaded once and shared read-only; every region writes its
// own output. Results are returned in request order. The first failing
// region cancels the rest.
func (p *Pipeline) RunRegions(ctx context.Context, req RegionsRequest) ([]*Result, error) {
	log := zap.L().With(zap.String("component", "pipeline.regions"))

	if len(req.Regions) == 0 {
		return nil, eris.New("pipeline: no regions requested")
	}
	if req.Tiles == "" {
		req.Tiles = p.cfg.Input.Tiles
	}
	if req.OutputDir == "" {
		req.OutputDir = p.cfg.Export.OutputDir
	}
	limit := req.Concurrency
	if limit <= 0 {
		limit = p.cfg.Batch.Concurrency
	}
	if limit <= 0 {
		limit = 1
	}

	var states []string
	for _, r := range req.Regions {
		states = append(states, r.States...)
	}

	t := newTracker("batch")
	var tiles *tile.LoadResult
	if err := t.track(ctx, StageLoadTiles, func() (err error) {
		tiles, err = p.LoadTiles(ctx, req.Tiles)
		return err
	}); err != nil {
		return nil, err
	}
	var counties *county.LoadResult
	if err := t.track(ctx, StageLoadCounties, func() (err error) {
		counties, err = p.LoadCounties(ctx, states)
		return err
	}); err != nil {
		return nil, err
	}

	results := make([]*Result, len(req.Regions))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, r := range req.Regions {
		g.Go(func() error {
			subset := &county.LoadResult{
				Source:       counties.Source,
				Counties:     county.Filter(counties.Counties, r.States),
				Excluded:     counties.Excluded,
				ExcludedFIPS: counties.ExcludedFIPS,
			}
			res, err := p.score(gCtx, Request{
				Region: r.Name,
				States: r.States,
				Tiles:  req.Tiles,
				Output: RegionOutput(req.OutputDir, r.Name),
			}, tiles, subset, t.fork(r.Name))
			if err != nil {
				return eris.Wrapf(err, "pipeline: region %s", r.Name)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Info("pipeline: regional batch complete",
		zap.Int("regions", len(req.Regions)),
		zap.Int("concurrency", limit),
	)
	return results, nil
}
