package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
	"unicode/utf8"

	"github.com/durgasflow/durgasflow/pkg/graph"
	"github.com/durgasflow/durgasflow/pkg/models"
	"github.com/durgasflow/durgasflow/pkg/otelhelper"
	"github.com/durgasflow/durgasflow/pkg/persistence"
	"github.com/durgasflow/durgasflow/pkg/protocol"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	outputPreviewLimit = 500
	noNodesMessage     = "No nodes to execute"
)

// HandlerLookup resolves node types to handlers.
type HandlerLookup interface {
	Handler(nodeType string) (protocol.NodeHandler, bool)
}

// Queue hands executions to out-of-band workers.
type Queue interface {
	QueueExecution(ctx context.Context, executionID string) error
}

// ExecuteRequest starts a run. Either WorkflowID or Workflow must be set.
type ExecuteRequest struct {
	WorkflowID  string
	Workflow    *models.Workflow
	TriggerType models.TriggerType
	TriggerData map[string]any
	TriggeredBy string
	Async       bool
}

// CancelResult reports what a cancel request did.
type CancelResult struct {
	ExecutionID string                 `json:"execution_id"`
	Cancelled   bool                   `json:"cancelled"`
	Status      models.ExecutionStatus `json:"status,omitempty"`
	Message     string                 `json:"message"`
}

// Engine creates executions and runs them.
type Engine struct {
	persistence persistence.Persistence
	handlers    HandlerLookup
	logger      *slog.Logger
	tracer      trace.Tracer
	queue       Queue
	now         func() time.Time
}

type Option func(*Engine)

// WithTracer sets the tracer used for run and node spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an engine. Without a queue, async requests run inline.
func NewEngine(p persistence.Persistence, handlers HandlerLookup, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		persistence: p,
		handlers:    handlers,
		logger:      logger.With("module", "execution_engine"),
		tracer:      otelhelper.NoopTracer(),
		now:         func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// SetQueue sets the queue async executions are handed to.
func (e *Engine) SetQueue(q Queue) {
	e.queue = q
}

// ExecuteWorkflow creates a pending execution. Async requests are queued and
// returned while still pending; everything else runs before returning.
func (e *Engine) ExecuteWorkflow(ctx context.Context, req ExecuteRequest) (*models.Execution, error) {
	wf := req.Workflow
	if wf == nil {
		if req.WorkflowID == "" {
			return nil, ErrWorkflowRequired
		}

		var err error

		wf, err = e.persistence.WorkflowRepository().GetByID(ctx, req.WorkflowID)
		if err != nil {
			return nil, err
		}
	}

	triggerType := req.TriggerType
	if triggerType == "" {
		triggerType = models.TriggerTypeManual
	}

	exec := models.NewExecution(uuid.NewString(), wf.ID, triggerType, req.TriggerData, req.TriggeredBy)
	exec.CreatedAt = e.now()

	if err := e.persistence.ExecutionRepository().Create(ctx, exec); err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	e.logger.InfoContext(ctx, "Execution created",
		"execution_id", exec.ID, "workflow_id", wf.ID, "trigger_type", triggerType, "async", req.Async)

	if req.Async && e.queue != nil {
		if err := e.queue.QueueExecution(ctx, exec.ID); err != nil {
			return nil, fmt.Errorf("failed to queue execution %s: %w", exec.ID, err)
		}

		// An inline queue may already have run it.
		return e.persistence.ExecutionRepository().GetByID(ctx, exec.ID)
	}

	return e.Run(ctx, exec, wf)
}

// RunExecution runs a stored pending execution. Executions that are no longer
// pending are returned untouched, so delivering a task twice runs it once.
func (e *Engine) RunExecution(ctx context.Context, executionID string) (*models.Execution, error) {
	exec, err := e.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if exec.Status != models.ExecutionStatusPending {
		e.logger.InfoContext(ctx, "Execution already processed", "execution_id", exec.ID, "status", exec.Status)

		return exec, nil
	}

	wf, err := e.persistence.WorkflowRepository().GetByID(ctx, exec.WorkflowID)
	if err != nil {
		if !persistence.IsWorkflowNotFound(err) {
			return nil, err
		}

		exec.Fail(err.Error(), "", e.now())

		if _, terr := e.persistence.ExecutionRepository().Transition(ctx, exec, models.ExecutionStatusPending); terr != nil {
			return nil, terr
		}

		return exec, nil
	}

	return e.Run(ctx, exec, wf)
}

// Run executes the nodes of wf for a pending execution in topological order.
// Node failures never surface as the returned error; they are recorded on the
// execution, which ends completed, failed or, when cancelled meanwhile,
// cancelled.
func (e *Engine) Run(ctx context.Context, exec *models.Execution, wf *models.Workflow) (*models.Execution, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.run",
		attribute.String(otelhelper.ExecutionIDKey, exec.ID),
		attribute.String(otelhelper.WorkflowIDKey, wf.ID),
		attribute.String(otelhelper.TriggerTypeKey, string(exec.TriggerType)),
	)
	defer span.End()

	logger := e.logger.With("execution_id", exec.ID, "workflow_id", wf.ID)
	executions := e.persistence.ExecutionRepository()

	exec.Start(e.now())

	started, err := executions.Transition(ctx, exec, models.ExecutionStatusPending)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to start execution %s: %w", exec.ID, err)
	}

	if !started {
		logger.WarnContext(ctx, "Execution is no longer pending, not running it")

		return executions.GetByID(ctx, exec.ID)
	}

	runCtx := NewContext(exec, wf, e.logger)

	order := graph.ExecutionOrder(wf.Nodes, wf.Connections)
	if order.HasCycle() {
		logger.WarnContext(ctx, "Workflow graph has a cycle, running remaining nodes in declaration order",
			"cyclic_nodes", order.Cyclic)
	}

	if len(order.Nodes) == 0 {
		exec.Complete(map[string]any{"message": noNodesMessage}, e.now())

		return e.finish(ctx, exec, span)
	}

	continueOnError := wf.Settings.ContinueOnError()

	var runErr error

	for _, node := range order.Nodes {
		output, nodeErr := e.executeNode(ctx, exec, runCtx, node)
		if nodeErr != nil {
			exec.NodeResults[node.NodeID] = models.NodeResult{Status: models.NodeResultError, Error: errors.Unwrap(nodeErr).Error()}

			if !continueOnError {
				runErr = nodeErr

				break
			}

			continue
		}

		exec.NodeResults[node.NodeID] = models.NodeResult{Status: models.NodeResultSuccess, Output: output}
	}

	if runErr != nil {
		var nodeErr *NodeExecutionError

		stack := ""
		if errors.As(runErr, &nodeErr) {
			stack = nodeErr.Stack
		}

		exec.Fail(runErr.Error(), stack, e.now())
	} else {
		exec.Complete(map[string]any{"node_results": exec.NodeResults}, e.now())
	}

	return e.finish(ctx, exec, span)
}

// finish stores the terminal state unless the execution was cancelled while
// running, in which case only the node results are added to the stored row.
func (e *Engine) finish(ctx context.Context, exec *models.Execution, span trace.Span) (*models.Execution, error) {
	executions := e.persistence.ExecutionRepository()

	applied, err := executions.Transition(ctx, exec, models.ExecutionStatusRunning)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to finish execution %s: %w", exec.ID, err)
	}

	if !applied {
		stored, err := executions.GetByID(ctx, exec.ID)
		if err != nil {
			return nil, err
		}

		stored.NodeResults = exec.NodeResults
		if err := executions.Save(ctx, stored); err != nil {
			return nil, err
		}

		e.logger.InfoContext(ctx, "Execution changed state while running", "execution_id", exec.ID, "status", stored.Status)

		return stored, nil
	}

	if err := e.persistence.WorkflowRepository().RecordExecutionOutcome(ctx, exec.WorkflowID, exec.Status, *exec.FinishedAt); err != nil {
		e.logger.ErrorContext(ctx, "Failed to record execution outcome", "workflow_id", exec.WorkflowID, "error", err)
	}

	if exec.Status == models.ExecutionStatusFailed {
		otelhelper.SetError(span, errors.New(exec.ErrorMessage))
	} else {
		otelhelper.SetOK(span)
	}

	e.logger.InfoContext(ctx, "Execution finished",
		"execution_id", exec.ID, "status", exec.Status, "duration", exec.Duration())

	return exec, nil
}

// executeNode runs one node and writes its log rows. The returned error is
// always a *NodeExecutionError.
func (e *Engine) executeNode(ctx context.Context, exec *models.Execution, runCtx *Context, node *models.WorkflowNode) (any, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.node",
		attribute.String(otelhelper.ExecutionIDKey, exec.ID),
		attribute.String(otelhelper.NodeIDKey, node.NodeID),
		attribute.String(otelhelper.NodeTypeKey, node.Type),
	)
	defer span.End()

	logs := e.persistence.ExecutionLogRepository()
	started := e.now()
	entry := &models.ExecutionLog{
		ID:          uuid.NewString(),
		ExecutionID: exec.ID,
		NodeID:      node.NodeID,
		NodeType:    node.Type,
		NodeTitle:   node.Title,
		Level:       models.LogLevelInfo,
		Message:     "Executing node: " + node.DisplayName(),
		StartedAt:   &started,
		CreatedAt:   started,
	}

	if err := logs.Append(ctx, entry); err != nil {
		e.logger.ErrorContext(ctx, "Failed to append execution log", "execution_id", exec.ID, "node_id", node.NodeID, "error", err)
	}

	output, err := e.invoke(ctx, runCtx, node)

	finished := e.now()
	entry.FinishedAt = &finished

	if err != nil {
		otelhelper.SetError(span, err)

		entry.Level = models.LogLevelError
		entry.Message = "Node failed: " + errors.Unwrap(err).Error()
		e.updateLog(ctx, entry)

		var nodeErr *NodeExecutionError
		errors.As(err, &nodeErr)

		failure := &models.ExecutionLog{
			ID:          uuid.NewString(),
			ExecutionID: exec.ID,
			NodeID:      node.NodeID,
			NodeType:    node.Type,
			NodeTitle:   node.Title,
			Level:       models.LogLevelError,
			Message:     "Node execution failed: " + nodeErr.Err.Error(),
			Data:        map[string]any{"traceback": nodeErr.Stack},
			CreatedAt:   finished,
		}

		if err := logs.Append(ctx, failure); err != nil {
			e.logger.ErrorContext(ctx, "Failed to append execution log", "execution_id", exec.ID, "node_id", node.NodeID, "error", err)
		}

		e.logger.WarnContext(ctx, "Node failed", "execution_id", exec.ID, "node_id", node.NodeID, "error", nodeErr.Err)

		return nil, err
	}

	if slots, ok := output.(protocol.SlotOutputs); ok {
		for slot, value := range slots {
			runCtx.SetOutputData(node.NodeID, slot, value)
		}

		output = map[int]any(slots)
	} else {
		for slot := range node.OutputSlotCount() {
			runCtx.SetOutputData(node.NodeID, slot, output)
		}
	}

	entry.Message = "Node completed: " + node.DisplayName()
	entry.Data = map[string]any{"output_preview": preview(output)}
	e.updateLog(ctx, entry)

	return output, nil
}

func (e *Engine) invoke(ctx context.Context, runCtx *Context, node *models.WorkflowNode) (output any, err error) {
	handler, ok := e.handlers.Handler(node.Type)
	if !ok {
		return nil, &NodeExecutionError{
			NodeID:   node.NodeID,
			NodeType: node.Type,
			Err:      fmt.Errorf("%w: %s", ErrUnknownNodeType, node.Type),
			Stack:    string(debug.Stack()),
		}
	}

	defer func() {
		if r := recover(); r != nil {
			output = nil
			err = &NodeExecutionError{
				NodeID:   node.NodeID,
				NodeType: node.Type,
				Err:      &PanicError{Value: r},
				Stack:    string(debug.Stack()),
			}
		}
	}()

	input, _ := runCtx.InputData(node.NodeID, 0)

	output, err = handler.Execute(ctx, node.Config, input, runCtx.ForNode(node))
	if err != nil {
		return nil, &NodeExecutionError{
			NodeID:   node.NodeID,
			NodeType: node.Type,
			Err:      err,
			Stack:    string(debug.Stack()),
		}
	}

	return output, nil
}

func (e *Engine) updateLog(ctx context.Context, entry *models.ExecutionLog) {
	if err := e.persistence.ExecutionLogRepository().Update(ctx, entry); err != nil {
		e.logger.ErrorContext(ctx, "Failed to update execution log", "log_id", entry.ID, "error", err)
	}
}

// CancelExecution marks a running execution cancelled. It does not interrupt
// the node currently executing. Executions in any other state are left alone
// and reported through the result.
func (e *Engine) CancelExecution(ctx context.Context, executionID string) (CancelResult, error) {
	result := CancelResult{ExecutionID: executionID}

	exec, err := e.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			result.Message = "Execution not found"

			return result, nil
		}

		return result, err
	}

	result.Status = exec.Status

	if exec.Status != models.ExecutionStatusRunning {
		result.Message = fmt.Sprintf("Execution is %s, only running executions can be cancelled", exec.Status)

		return result, nil
	}

	exec.Cancel(e.now())

	applied, err := e.persistence.ExecutionRepository().Transition(ctx, exec, models.ExecutionStatusRunning)
	if err != nil {
		return result, err
	}

	if !applied {
		stored, err := e.persistence.ExecutionRepository().GetByID(ctx, executionID)
		if err != nil {
			return result, err
		}

		result.Status = stored.Status
		result.Message = fmt.Sprintf("Execution is %s, only running executions can be cancelled", stored.Status)

		return result, nil
	}

	if err := e.persistence.WorkflowRepository().RecordExecutionOutcome(ctx, exec.WorkflowID, exec.Status, *exec.FinishedAt); err != nil {
		e.logger.ErrorContext(ctx, "Failed to record execution outcome", "workflow_id", exec.WorkflowID, "error", err)
	}

	e.logger.InfoContext(ctx, "Execution cancelled", "execution_id", executionID)

	result.Cancelled = true
	result.Status = exec.Status
	result.Message = "Execution cancelled"

	return result, nil
}

// RetryExecution runs a new execution with the trigger of an earlier one. The
// original execution is not modified.
func (e *Engine) RetryExecution(ctx context.Context, executionID, userID string) (*models.Execution, error) {
	original, err := e.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if !original.CanRetry() {
		return nil, persistence.NewExecutionError("Retry", executionID, ErrMaxRetriesExceeded)
	}

	wf, err := e.persistence.WorkflowRepository().GetByID(ctx, original.WorkflowID)
	if err != nil {
		return nil, err
	}

	triggeredBy := userID
	if triggeredBy == "" {
		triggeredBy = original.TriggeredBy
	}

	retry := models.NewExecution(uuid.NewString(), original.WorkflowID, original.TriggerType, original.TriggerData, triggeredBy)
	retry.RetryCount = original.RetryCount + 1
	retry.MaxRetries = original.MaxRetries
	retry.RetryOf = original.ID
	retry.CreatedAt = e.now()

	if err := e.persistence.ExecutionRepository().Create(ctx, retry); err != nil {
		return nil, fmt.Errorf("failed to create retry execution: %w", err)
	}

	e.logger.InfoContext(ctx, "Retrying execution",
		"execution_id", retry.ID, "retry_of", original.ID, "retry_count", retry.RetryCount)

	return e.Run(ctx, retry, wf)
}

func preview(output any) string {
	var s string

	switch v := output.(type) {
	case string:
		s = v
	case nil:
		s = "null"
	default:
		b, err := json.Marshal(v)
		if err != nil {
			s = fmt.Sprint(v)
		} else {
			s = string(b)
		}
	}

	if len(s) <= outputPreviewLimit {
		return s
	}

	// cut on a rune boundary
	cut := outputPreviewLimit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}

	return s[:cut]
}
