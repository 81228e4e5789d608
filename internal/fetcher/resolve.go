package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Resolver turns an input location into a local file path, downloading
// remote sources into a cache directory on first use.
type Resolver struct {
	http     Fetcher
	ftp      Fetcher
	cacheDir string
}

// NewResolver creates a Resolver with HTTP and FTP fetchers built from opts.
func NewResolver(opts Options, cacheDir string) *Resolver {
	return &Resolver{
		http:     NewHTTPFetcher(opts),
		ftp:      NewFTPFetcher(opts),
		cacheDir: cacheDir,
	}
}

// IsRemote reports whether source names an http(s) or ftp URL.
func IsRemote(source string) bool {
	u, err := url.Parse(source)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ftp":
		return true
	}
	return false
}

// CachePath returns where a remote source is stored locally.
func (r *Resolver) CachePath(source string) string {
	name := ""
	if u, err := url.Parse(source); err == nil {
		name = path.Base(u.Path)
	}
	if name == "" || name == "/" || name == "." {
		sum := sha256.Sum256([]byte(source))
		name = hex.EncodeToString(sum[:8])
	}
	return filepath.Join(r.cacheDir, name)
}

// Resolve returns a local path for source. Local paths and file:// URLs are
// returned as-is; remote sources are downloaded unless already cached.
func (r *Resolver) Resolve(ctx context.Context, source string) (string, error) {
	if strings.HasPrefix(source, "file://") {
		return strings.TrimPrefix(source, "file://"), nil
	}
	if !IsRemote(source) {
		return source, nil
	}

	log := zap.L().With(zap.String("component", "fetcher.resolve"), zap.String("source", source))

	dest := r.CachePath(source)
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		log.Debug("using cached download", zap.String("path", dest))
		return dest, nil
	}

	if err := os.MkdirAll(r.cacheDir, 0o755); err != nil {
		return "", eris.Wrap(err, "fetcher: create cache dir")
	}

	f := r.http
	if strings.HasPrefix(strings.ToLower(source), "ftp://") {
		f = r.ftp
	}

	tmp := dest + ".part"
	n, err := f.DownloadToFile(ctx, source, tmp)
	if err != nil {
		_ = os.Remove(tmp)
		return "", eris.Wrapf(err, "fetcher: download %s", source)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return "", eris.Wrap(err, "fetcher: move download into cache")
	}

	log.Info("downloaded", zap.String("path", dest), zap.Int64("bytes", n))
	return dest, nil
}
