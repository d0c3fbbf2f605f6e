package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/durgasflow/durgasflow/pkg/models"
	"github.com/durgasflow/durgasflow/pkg/persistence"
	"github.com/lib/pq"
)

const executionColumns = `
			id
		  , workflow_id
		  , trigger_type
		  , trigger_data
		  , triggered_by
		  , status
		  , node_results
		  , result_data
		  , error_message
		  , error_stack
		  , started_at
		  , finished_at
		  , retry_count
		  , max_retries
		  , retry_of
		  , created_at`

// ExecutionRepository stores workflow runs.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

type executionRow struct {
	triggerData, nodeResults []byte
	resultData               any
}

func encodeExecution(execution *models.Execution) (executionRow, error) {
	var (
		row executionRow
		err error
	)

	row.triggerData, err = json.Marshal(nonNilMap(execution.TriggerData))
	if err != nil {
		return row, fmt.Errorf("failed to marshal trigger data: %w", err)
	}

	results := execution.NodeResults
	if results == nil {
		results = map[string]models.NodeResult{}
	}

	row.nodeResults, err = json.Marshal(results)
	if err != nil {
		return row, fmt.Errorf("failed to marshal node results: %w", err)
	}

	if execution.ResultData != nil {
		resultData, err := json.Marshal(execution.ResultData)
		if err != nil {
			return row, fmt.Errorf("failed to marshal result data: %w", err)
		}

		row.resultData = resultData
	}

	return row, nil
}

func (r *ExecutionRepository) Create(ctx context.Context, execution *models.Execution) error {
	row, err := encodeExecution(execution)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO executions (`+executionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		execution.ID,
		execution.WorkflowID,
		execution.TriggerType,
		row.triggerData,
		nullString(execution.TriggeredBy),
		execution.Status,
		row.nodeResults,
		row.resultData,
		nullString(execution.ErrorMessage),
		nullString(execution.ErrorStack),
		execution.StartedAt,
		execution.FinishedAt,
		execution.RetryCount,
		execution.MaxRetries,
		nullString(execution.RetryOf),
		execution.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return persistence.NewExecutionError("Create", execution.ID, persistence.ErrExecutionAlreadyExists)
		}

		return fmt.Errorf("failed to insert execution: %w", err)
	}

	return nil
}

const updateExecution = `
		UPDATE executions SET
			status = $2,
			node_results = $3,
			result_data = $4,
			error_message = $5,
			error_stack = $6,
			started_at = $7,
			finished_at = $8
		WHERE id = $1`

func (r *ExecutionRepository) update(ctx context.Context, execution *models.Execution, extra string, args ...any) (sql.Result, error) {
	row, err := encodeExecution(execution)
	if err != nil {
		return nil, err
	}

	params := append([]any{
		execution.ID,
		execution.Status,
		row.nodeResults,
		row.resultData,
		nullString(execution.ErrorMessage),
		nullString(execution.ErrorStack),
		execution.StartedAt,
		execution.FinishedAt,
	}, args...)

	result, err := r.db.ExecContext(ctx, updateExecution+extra, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to update execution: %w", err)
	}

	return result, nil
}

func (r *ExecutionRepository) Save(ctx context.Context, execution *models.Execution) error {
	result, err := r.update(ctx, execution, "")
	if err != nil {
		return err
	}

	return requireRow(result, persistence.NewExecutionError("Save", execution.ID, persistence.ErrExecutionNotFound))
}

// Transition is a compare-and-set on the status column.
func (r *ExecutionRepository) Transition(ctx context.Context, execution *models.Execution, from models.ExecutionStatus) (bool, error) {
	result, err := r.update(ctx, execution, " AND status = $9", string(from))
	if err != nil {
		return false, err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	if n == 1 {
		return true, nil
	}

	// tell a lost race from a missing row
	if _, err := r.GetByID(ctx, execution.ID); err != nil {
		return false, err
	}

	return false, nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	execution, err := scanExecution(r.db.QueryRowContext(ctx, "SELECT "+executionColumns+" FROM executions WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

func (r *ExecutionRepository) List(ctx context.Context, filter persistence.ExecutionFilter) ([]*models.Execution, error) {
	var (
		where []string
		args  []any
	)

	if filter.WorkflowID != "" {
		args = append(args, filter.WorkflowID)
		where = append(where, fmt.Sprintf("workflow_id = $%d", len(args)))
	}

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = persistence.DefaultExecutionLimit
	}

	query := "SELECT " + executionColumns + " FROM executions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

func scanExecution(row scanner) (*models.Execution, error) {
	var (
		execution                            models.Execution
		triggerData, nodeResults, resultData []byte
		triggeredBy, errMsg, errStack, retry sql.NullString
		startedAt, finishedAt                sql.NullTime
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.TriggerType,
		&triggerData,
		&triggeredBy,
		&execution.Status,
		&nodeResults,
		&resultData,
		&errMsg,
		&errStack,
		&startedAt,
		&finishedAt,
		&execution.RetryCount,
		&execution.MaxRetries,
		&retry,
		&execution.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	execution.TriggeredBy = triggeredBy.String
	execution.ErrorMessage = errMsg.String
	execution.ErrorStack = errStack.String
	execution.RetryOf = retry.String
	execution.StartedAt = timePtr(startedAt)
	execution.FinishedAt = timePtr(finishedAt)

	err = unmarshalAll(triggerData, &execution.TriggerData, nodeResults, &execution.NodeResults, resultData, &execution.ResultData)
	if err != nil {
		return nil, fmt.Errorf("failed to decode execution %s: %w", execution.ID, err)
	}

	return &execution, nil
}

// ExecutionLogRepository stores per-node log entries of a run.
type ExecutionLogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *ExecutionLogRepository) Append(ctx context.Context, log *models.ExecutionLog) error {
	data, err := marshalData(log.Data)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO execution_logs (id, execution_id, node_id, node_type, node_title, level, message, data, started_at, finished_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, log.ID, log.ExecutionID, log.NodeID, log.NodeType, log.NodeTitle, log.Level, log.Message, data,
		log.StartedAt, log.FinishedAt, log.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert execution log: %w", err)
	}

	return nil
}

func (r *ExecutionLogRepository) Update(ctx context.Context, log *models.ExecutionLog) error {
	data, err := marshalData(log.Data)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE execution_logs SET level = $2, message = $3, data = $4, started_at = $5, finished_at = $6
		WHERE id = $1
	`, log.ID, log.Level, log.Message, data, log.StartedAt, log.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to update execution log: %w", err)
	}

	return requireRow(result, persistence.ErrExecutionLogNotFound)
}

func (r *ExecutionLogRepository) ListByExecution(ctx context.Context, executionID string, level models.LogLevel) ([]*models.ExecutionLog, error) {
	query := `
		SELECT id, execution_id, node_id, node_type, node_title, level, message, data, started_at, finished_at, created_at
		FROM execution_logs
		WHERE execution_id = $1 AND ($2 = '' OR level = $2)
		ORDER BY seq
	`

	rows, err := r.db.QueryContext(ctx, query, executionID, string(level))
	if err != nil {
		return nil, fmt.Errorf("failed to query execution logs: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	logs := make([]*models.ExecutionLog, 0)

	for rows.Next() {
		var (
			log                         models.ExecutionLog
			nodeID, nodeType, nodeTitle sql.NullString
			data                        []byte
			startedAt, finishedAt       sql.NullTime
		)

		err := rows.Scan(&log.ID, &log.ExecutionID, &nodeID, &nodeType, &nodeTitle, &log.Level, &log.Message,
			&data, &startedAt, &finishedAt, &log.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution log: %w", err)
		}

		log.NodeID = nodeID.String
		log.NodeType = nodeType.String
		log.NodeTitle = nodeTitle.String
		log.StartedAt = timePtr(startedAt)
		log.FinishedAt = timePtr(finishedAt)

		if err := unmarshalAll(data, &log.Data); err != nil {
			return nil, fmt.Errorf("failed to decode execution log %s: %w", log.ID, err)
		}

		logs = append(logs, &log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution logs: %w", err)
	}

	return logs, nil
}

func marshalData(data map[string]any) (any, error) {
	if data == nil {
		return nil, nil
	}

	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal log data: %w", err)
	}

	return b, nil
}
