package mocks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/durgasflow/durgasflow/pkg/models"
	"github.com/durgasflow/durgasflow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockWorkflowRepository is a mock implementation of persistence.WorkflowRepository interface.
type MockWorkflowRepository struct {
	mock.Mock
}

func (m *MockWorkflowRepository) List(ctx context.Context, filter persistence.WorkflowFilter) ([]*models.Workflow, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) GetByWebhookPath(ctx context.Context, id, path string) (*models.Workflow, error) {
	args := m.Called(ctx, id, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockWorkflowRepository) SaveGraph(ctx context.Context, id string, graph json.RawMessage, nodes []*models.WorkflowNode, connections []*models.Connection) error {
	args := m.Called(ctx, id, graph, nodes, connections)

	return args.Error(0)
}

func (m *MockWorkflowRepository) RecordExecutionOutcome(ctx context.Context, id string, status models.ExecutionStatus, at time.Time) error {
	args := m.Called(ctx, id, status, at)

	return args.Error(0)
}

func (m *MockWorkflowRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockExecutionRepository is a mock implementation of persistence.ExecutionRepository interface.
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) Create(ctx context.Context, execution *models.Execution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) Save(ctx context.Context, execution *models.Execution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) Transition(ctx context.Context, execution *models.Execution, from models.ExecutionStatus) (bool, error) {
	args := m.Called(ctx, execution, from)

	return args.Bool(0), args.Error(1)
}

func (m *MockExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Execution), args.Error(1)
}

func (m *MockExecutionRepository) List(ctx context.Context, filter persistence.ExecutionFilter) ([]*models.Execution, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Execution), args.Error(1)
}

// MockExecutionLogRepository is a mock implementation of persistence.ExecutionLogRepository interface.
type MockExecutionLogRepository struct {
	mock.Mock
}

func (m *MockExecutionLogRepository) Append(ctx context.Context, log *models.ExecutionLog) error {
	args := m.Called(ctx, log)

	return args.Error(0)
}

func (m *MockExecutionLogRepository) Update(ctx context.Context, log *models.ExecutionLog) error {
	args := m.Called(ctx, log)

	return args.Error(0)
}

func (m *MockExecutionLogRepository) ListByExecution(ctx context.Context, executionID string, level models.LogLevel) ([]*models.ExecutionLog, error) {
	args := m.Called(ctx, executionID, level)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ExecutionLog), args.Error(1)
}

// MockScheduleRepository is a mock implementation of persistence.ScheduleRepository interface.
type MockScheduleRepository struct {
	mock.Mock
}

func (m *MockScheduleRepository) Save(ctx context.Context, schedule *models.Schedule) error {
	args := m.Called(ctx, schedule)

	return args.Error(0)
}

func (m *MockScheduleRepository) Get(ctx context.Context, name string) (*models.Schedule, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Schedule), args.Error(1)
}

func (m *MockScheduleRepository) List(ctx context.Context) ([]*models.Schedule, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Schedule), args.Error(1)
}

func (m *MockScheduleRepository) Delete(ctx context.Context, name string) error {
	args := m.Called(ctx, name)

	return args.Error(0)
}

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	workflowRepo  *MockWorkflowRepository
	executionRepo *MockExecutionRepository
	logRepo       *MockExecutionLogRepository
	scheduleRepo  *MockScheduleRepository
}

// NewMockPersistence creates a new MockPersistence with all mock repositories.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		workflowRepo:  &MockWorkflowRepository{},
		executionRepo: &MockExecutionRepository{},
		logRepo:       &MockExecutionLogRepository{},
		scheduleRepo:  &MockScheduleRepository{},
	}
}

// GetMockWorkflowRepository returns the underlying mock workflow repository for setting up expectations.
func (m *MockPersistence) GetMockWorkflowRepository() *MockWorkflowRepository {
	return m.workflowRepo
}

// GetMockExecutionRepository returns the underlying mock execution repository.
func (m *MockPersistence) GetMockExecutionRepository() *MockExecutionRepository {
	return m.executionRepo
}

// GetMockExecutionLogRepository returns the underlying mock execution log repository.
func (m *MockPersistence) GetMockExecutionLogRepository() *MockExecutionLogRepository {
	return m.logRepo
}

// GetMockScheduleRepository returns the underlying mock schedule repository.
func (m *MockPersistence) GetMockScheduleRepository() *MockScheduleRepository {
	return m.scheduleRepo
}

func (m *MockPersistence) WorkflowRepository() persistence.WorkflowRepository {
	return m.workflowRepo
}

func (m *MockPersistence) ExecutionRepository() persistence.ExecutionRepository {
	return m.executionRepo
}

func (m *MockPersistence) ExecutionLogRepository() persistence.ExecutionLogRepository {
	return m.logRepo
}

func (m *MockPersistence) ScheduleRepository() persistence.ScheduleRepository {
	return m.scheduleRepo
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
