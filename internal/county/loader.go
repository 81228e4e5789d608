package county

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/loghub/countyscore/internal/fetcher"
)

// DownloadURL builds the Census Bureau URL of the national county shapefile.
func DownloadURL(year int) string {
	return fmt.Sprintf("https://www2.census.gov/geo/tiger/TIGER%d/COUNTY/tl_%d_us_county.zip", year, year)
}

// Fetch makes the county shapefile available locally and returns the .shp
// path. source may be a local .shp/.zip/.geojson path or a remote URL; an
// empty source means the TIGER national file for year. Downloads are cached
// by the resolver; archives are extracted next to the cached ZIP.
func Fetch(ctx context.Context, r *fetcher.Resolver, source string, year int) (string, error) {
	if source == "" {
		source = DownloadURL(year)
	}
	local, err := r.Resolve(ctx, source)
	if err != nil {
		return "", eris.Wrap(err, "county: fetch boundaries")
	}
	if !strings.EqualFold(filepath.Ext(local), ".zip") {
		return local, nil
	}

	extractDir := strings.TrimSuffix(local, filepath.Ext(local))
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return "", eris.Wrap(err, "county: create extract dir")
	}
	shpPath, err := fetcher.ExtractShapefile(local, extractDir)
	if err != nil {
		return "", eris.Wrap(err, "county: extract boundaries")
	}
	return shpPath, nil
}

// Load reads the boundary dataset at path (.shp or .geojson/.json) and
// applies the optional state filter. A missing or unreadable file is fatal.
func Load(ctx context.Context, path string, states []string) (*LoadResult, error) {
	log := zap.L().With(zap.String("component", "county.loader"), zap.String("path", path))

	if _, err := os.Stat(path); err != nil {
		return nil, eris.Wrapf(err, "county: stat %s", path)
	}

	var (
		res *LoadResult
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".shp":
		res, err = ReadShapefile(ctx, path)
	case ".geojson", ".json":
		f, openErr := os.Open(path)
		if openErr != nil {
			return nil, eris.Wrapf(openErr, "county: open %s", path)
		}
		res, err = ReadGeoJSON(f, path)
		_ = f.Close()
	default:
		return nil, eris.Errorf("county: unsupported boundary format %q", ext)
	}
	if err != nil {
		return nil, err
	}

	if len(states) > 0 {
		res.Counties = Filter(res.Counties, states)
	}

	if n := res.ExcludedTotal(); n > 0 {
		fields := []zap.Field{zap.Int("excluded", n), zap.Strings("fips", res.ExcludedFIPS)}
		for reason, c := range res.Excluded {
			fields = append(fields, zap.Int("excluded_"+string(reason), c))
		}
		log.Warn("counties with malformed geometry excluded", fields...)
	}
	if len(res.Duplicates) > 0 {
		log.Warn("duplicate county FIPS in reference, keeping first", zap.Strings("fips", res.Duplicates))
	}
	log.Info("counties loaded", zap.Int("counties", len(res.Counties)), zap.Strings("states", states))

	return res, nil
}
