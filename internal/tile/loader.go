package tile

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Options configures Load.
type Options struct {
	SheetName string // XLSX only; empty selects the first sheet
}

// Load reads tiles from a local file, choosing the parser by extension.
// A missing or unreadable file is fatal; malformed rows are counted in the
// result and never abort the load.
func Load(ctx context.Context, path string, opts Options) (*LoadResult, error) {
	log := zap.L().With(zap.String("component", "tile.loader"), zap.String("path", path))

	info, err := os.Stat(path)
	if err != nil {
		return nil, eris.Wrapf(err, "tile: stat %s", path)
	}
	if info.IsDir() {
		return nil, eris.Errorf("tile: %s is a directory", path)
	}

	var res *LoadResult
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx":
		res, err = ReadXLSX(ctx, path, opts.SheetName)
	case ".geojson", ".json":
		res, err = readFile(path, func(f *os.File) (*LoadResult, error) {
			return ReadGeoJSON(f, path)
		})
	case ".tsv", ".tab":
		res, err = readFile(path, func(f *os.File) (*LoadResult, error) {
			return ReadCSV(ctx, f, '\t', path)
		})
	case ".csv", ".txt", "":
		res, err = readFile(path, func(f *os.File) (*LoadResult, error) {
			return ReadCSV(ctx, f, ',', path)
		})
	default:
		return nil, eris.Errorf("tile: unsupported input format %q", ext)
	}
	if err != nil {
		return nil, err
	}

	fields := []zap.Field{
		zap.Int("tiles", len(res.Tiles)),
		zap.Int("skipped", res.SkippedTotal()),
	}
	for _, reason := range res.SkipReasons() {
		fields = append(fields, zap.Int("skipped_"+string(reason), res.Skipped[reason]))
	}
	log.Info("tiles loaded", fields...)

	return res, nil
}

func readFile(path string, parse func(*os.File) (*LoadResult, error)) (*LoadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "tile: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return parse(f)
}
