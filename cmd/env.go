package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/loghub/countyscore/internal/monitoring"
	"github.com/loghub/countyscore/internal/pipeline"
	"github.com/loghub/countyscore/internal/store"
)

// pipelineEnv holds the pipeline and the resources it owns.
type pipelineEnv struct {
	Pipeline *pipeline.Pipeline
	Store    store.Store
	Metrics  *monitoring.Collector
}

// initPipeline opens the configured store and metrics collector and builds
// the pipeline. Callers must Close the env.
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}

	var metrics *monitoring.Collector
	if cfg.Metrics.Textfile != "" {
		metrics = monitoring.NewCollector()
	}

	p, err := pipeline.New(cfg, st, metrics)
	if err != nil {
		if st != nil {
			st.Close() //nolint:errcheck
		}
		return nil, err
	}
	return &pipelineEnv{Pipeline: p, Store: st, Metrics: metrics}, nil
}

// Close flushes metrics and closes the store.
func (e *pipelineEnv) Close() {
	log := zap.L().With(zap.String("component", "cmd"))
	if e.Metrics != nil {
		if err := e.Metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			log.Warn("failed to write metrics textfile", zap.Error(err))
		}
	}
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			log.Warn("failed to close store", zap.Error(err))
		}
	}
}
