package storagemock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/raterudder/solarconsumer/pkg/storage"
	"github.com/raterudder/solarconsumer/pkg/types"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) CreateRun(ctx context.Context, run types.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockDatabase) CompleteRun(ctx context.Context, id string, c storage.Completion) error {
	args := m.Called(ctx, id, c)
	return args.Error(0)
}

func (m *MockDatabase) FailRun(ctx context.Context, id string, f storage.Failure) error {
	args := m.Called(ctx, id, f)
	return args.Error(0)
}

func (m *MockDatabase) GetRun(ctx context.Context, id string) (types.Run, error) {
	args := m.Called(ctx, id)
	if len(args) > 0 {
		return args.Get(0).(types.Run), args.Error(1)
	}
	return types.Run{}, nil
}

func (m *MockDatabase) ListRuns(ctx context.Context, limit int) ([]types.Run, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.Run), args.Error(1)
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
