package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/loghub/countyscore/internal/model"
)

// tracker times the stages of one run. Cancellation is honoured between
// stages.
type tracker struct {
	log    *zap.Logger
	stages []model.StageResult
}

func newTracker(region string) *tracker {
	return &tracker{log: zap.L().With(zap.String("component", "pipeline"), zap.String("region", region))}
}

func (t *tracker) track(ctx context.Context, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrapf(err, "pipeline: cancelled before %s", name)
	}

	start := time.Now()
	err := fn()
	duration := time.Since(start).Milliseconds()
	t.stages = append(t.stages, model.StageResult{Name: name, Duration: duration})

	if err != nil {
		t.log.Error("pipeline: stage failed",
			zap.String("stage", name),
			zap.Int64("duration_ms", duration),
			zap.Error(err),
		)
		return err
	}
	t.log.Info("pipeline: stage complete",
		zap.String("stage", name),
		zap.Int64("duration_ms", duration),
	)
	return nil
}

// fork returns a tracker for a regional run that starts from the shared
// load stages.
func (t *tracker) fork(region string) *tracker {
	f := newTracker(region)
	f.stages = append(f.stages, t.stages...)
	return f
}
