package mocks

import (
	"context"

	"github.com/durgasflow/durgasflow/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockScheduleManager is a mock of the schedule registration used by the workflow service.
type MockScheduleManager struct {
	mock.Mock
}

func (m *MockScheduleManager) SetupSchedule(ctx context.Context, workflowID, cronExpression string) (*models.Schedule, error) {
	args := m.Called(ctx, workflowID, cronExpression)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Schedule), args.Error(1)
}

func (m *MockScheduleManager) RemoveSchedule(ctx context.Context, workflowID string) error {
	args := m.Called(ctx, workflowID)

	return args.Error(0)
}
