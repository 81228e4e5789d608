// Package fetcher retrieves remote tile tables and boundary archives over
// HTTP(S) or FTP into a local cache.
package fetcher

import (
	"context"
	"io"
	"time"

	"github.com/loghub/countyscore/internal/resilience"
)

// Fetcher downloads a remote resource.
type Fetcher interface {
	// Download returns the response body. The caller closes it.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile writes the resource to path and returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// Options configures both fetchers.
type Options struct {
	UserAgent  string
	Timeout    time.Duration
	RatePerSec float64 // per host; 0 disables limiting
	Retry      resilience.Policy
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Minute
	}
	if o.UserAgent == "" {
		o.UserAgent = "countyscore/1.0"
	}
	if o.Retry.MaxAttempts <= 0 {
		o.Retry = resilience.DefaultPolicy()
	}
	return o
}
