package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/loghub/countyscore/internal/export"
	"github.com/loghub/countyscore/internal/model"
	"github.com/loghub/countyscore/internal/store"
)

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateRun(ctx context.Context, region, input, output string) (*model.Run, error) {
	args := m.Called(ctx, region, input, output)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *mockStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, stats *model.RunStats, runErr error) error {
	args := m.Called(ctx, runID, status, stats, runErr)
	return args.Error(0)
}

func (m *mockStore) ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Run), args.Error(1)
}

func (m *mockStore) ReplaceCountyScores(ctx context.Context, runID, region string, features []export.Feature) (int64, error) {
	args := m.Called(ctx, runID, region, features)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}

var _ store.Store = (*mockStore)(nil)
