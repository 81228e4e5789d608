// Package monitoring records per-run pipeline metrics on a private
// prometheus registry and writes them in the node_exporter textfile format.
package monitoring

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/loghub/countyscore/internal/model"
)

const namespace = "countyscore"

// Collector holds the run metrics, labelled by region.
type Collector struct {
	registry *prometheus.Registry

	TilesLoaded      *prometheus.GaugeVec
	TilesSkipped     *prometheus.GaugeVec
	TilesDropped     *prometheus.GaugeVec
	CountiesExcluded *prometheus.GaugeVec
	CountiesScored   *prometheus.GaugeVec
	CountiesMissing  *prometheus.GaugeVec
	ValidationIssues *prometheus.GaugeVec
	StageDuration    *prometheus.GaugeVec
	RunsTotal        *prometheus.CounterVec
	LastRunTimestamp *prometheus.GaugeVec
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	gauge := func(name, help string) *prometheus.GaugeVec {
		return f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, []string{"region"})
	}

	return &Collector{
		registry:         reg,
		TilesLoaded:      gauge("tiles_loaded", "Tile records read from the input table"),
		TilesSkipped:     gauge("tiles_skipped", "Tile rows skipped for malformed values"),
		TilesDropped:     gauge("tiles_dropped", "Tiles falling outside every county boundary"),
		CountiesExcluded: gauge("counties_excluded", "County records excluded for malformed geometry"),
		CountiesScored:   gauge("counties_scored", "Counties with at least one tile"),
		CountiesMissing:  gauge("counties_missing", "Reference counties absent from the output"),
		ValidationIssues: gauge("validation_issues", "Advisory validation issues found in the output"),
		StageDuration: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of each pipeline stage in the last run",
		}, []string{"region", "stage"}),
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by region and final status",
		}, []string{"region", "status"}),
		LastRunTimestamp: gauge("last_run_timestamp_seconds", "Unix time the last run for the region finished"),
	}
}

// Registry exposes the private registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveRun records the outcome of one region's run. stats may be nil for a
// run that failed before producing counts.
func (c *Collector) ObserveRun(region string, status model.RunStatus, stats *model.RunStats, finished time.Time) {
	c.RunsTotal.WithLabelValues(region, string(status)).Inc()
	c.LastRunTimestamp.WithLabelValues(region).Set(float64(finished.Unix()))
	if stats == nil {
		return
	}

	c.TilesLoaded.WithLabelValues(region).Set(float64(stats.TilesLoaded))
	c.TilesSkipped.WithLabelValues(region).Set(float64(stats.TilesSkipped))
	c.TilesDropped.WithLabelValues(region).Set(float64(stats.TilesDropped))
	c.CountiesExcluded.WithLabelValues(region).Set(float64(stats.CountiesExcluded))
	c.CountiesScored.WithLabelValues(region).Set(float64(stats.CountiesScored))
	c.CountiesMissing.WithLabelValues(region).Set(float64(stats.CountiesMissing))
	c.ValidationIssues.WithLabelValues(region).Set(float64(stats.ValidationIssues))
	for _, st := range stats.Stages {
		c.StageDuration.WithLabelValues(region, st.Name).Set(float64(st.Duration) / 1000)
	}
}

// WriteTextfile writes the registry to path. The textfile collector reads
// partially written files, so prometheus writes a temp file and renames it.
func (c *Collector) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "monitoring: create dir for %s", path)
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return eris.Wrapf(err, "monitoring: write textfile %s", path)
	}
	zap.L().With(zap.String("component", "monitoring")).Debug("metrics written", zap.String("path", path))
	return nil
}
