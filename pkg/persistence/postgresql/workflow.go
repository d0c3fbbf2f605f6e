package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/durgasflow/durgasflow/pkg/models"
	"github.com/durgasflow/durgasflow/pkg/persistence"
	"github.com/google/uuid"
)

const workflowColumns = `
			id
		  , name
		  , description
		  , trigger_type
		  , status
		  , graph_data
		  , tags
		  , settings
		  , metadata
		  , is_active
		  , webhook_path
		  , webhook_secret
		  , schedule_cron
		  , execution_count
		  , success_count
		  , failure_count
		  , last_executed_at
		  , owner
		  , created_at
		  , updated_at`

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

// List returns filtered workflows, newest first.
func (r *WorkflowRepository) List(ctx context.Context, filter persistence.WorkflowFilter) ([]*models.Workflow, error) {
	var (
		where []string
		args  []any
	)

	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if filter.Owner != "" {
		add("owner = $%d", filter.Owner)
	}

	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}

	if filter.TriggerType != "" {
		add("trigger_type = $%d", filter.TriggerType)
	}

	if filter.Active != nil {
		add("is_active = $%d", *filter.Active)
	}

	query := "SELECT " + workflowColumns + " FROM workflows"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	for _, workflow := range workflows {
		if err := r.loadGraph(ctx, r.db, workflow); err != nil {
			return nil, err
		}
	}

	return workflows, nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	return r.getOne(ctx, "GetByID", id, "SELECT "+workflowColumns+" FROM workflows WHERE id = $1", id)
}

func (r *WorkflowRepository) GetByWebhookPath(ctx context.Context, id, path string) (*models.Workflow, error) {
	return r.getOne(ctx, "GetByWebhookPath", id,
		"SELECT "+workflowColumns+" FROM workflows WHERE id = $1 AND webhook_path = $2", id, path)
}

func (r *WorkflowRepository) getOne(ctx context.Context, op, id, query string, args ...any) (*models.Workflow, error) {
	workflow, err := scanWorkflow(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError(op, id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	if err := r.loadGraph(ctx, r.db, workflow); err != nil {
		return nil, err
	}

	return workflow, nil
}

// Save upserts the workflow row and replaces its projection.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) (err error) {
	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	if len(workflow.GraphData) == 0 {
		workflow.GraphData = models.EmptyGraph()
	}

	tags, err := json.Marshal(nonNil(workflow.Tags))
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	settings, err := json.Marshal(nonNilMap(workflow.Settings))
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	metadata, err := json.Marshal(workflow.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflows (`+workflowColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			trigger_type = EXCLUDED.trigger_type,
			status = EXCLUDED.status,
			graph_data = EXCLUDED.graph_data,
			tags = EXCLUDED.tags,
			settings = EXCLUDED.settings,
			metadata = EXCLUDED.metadata,
			is_active = EXCLUDED.is_active,
			webhook_path = EXCLUDED.webhook_path,
			webhook_secret = EXCLUDED.webhook_secret,
			schedule_cron = EXCLUDED.schedule_cron,
			owner = EXCLUDED.owner,
			updated_at = EXCLUDED.updated_at
	`,
		workflow.ID,
		workflow.Name,
		workflow.Description,
		workflow.TriggerType,
		workflow.Status,
		[]byte(workflow.GraphData),
		tags,
		settings,
		metadata,
		workflow.IsActive,
		nullString(workflow.WebhookPath),
		nullString(workflow.WebhookSecret),
		nullString(workflow.ScheduleCron),
		workflow.ExecutionCount,
		workflow.SuccessCount,
		workflow.FailureCount,
		workflow.LastExecutedAt,
		workflow.Owner,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow base: %w", err)
	}

	err = r.replaceProjection(ctx, tx, workflow.ID, workflow.Nodes, workflow.Connections)
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// SaveGraph locks the workflow row so concurrent saves of one workflow apply
// one after the other, then rewrites the document and its projection.
func (r *WorkflowRepository) SaveGraph(ctx context.Context, id string, graph json.RawMessage, nodes []*models.WorkflowNode, connections []*models.Connection) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var locked string

	err = tx.QueryRowContext(ctx, "SELECT id FROM workflows WHERE id = $1 FOR UPDATE", id).Scan(&locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.NewWorkflowError("SaveGraph", id, persistence.ErrWorkflowNotFound)
		}

		return fmt.Errorf("failed to lock workflow: %w", err)
	}

	_, err = tx.ExecContext(ctx, "UPDATE workflows SET graph_data = $2, updated_at = $3 WHERE id = $1",
		id, []byte(graph), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update graph data: %w", err)
	}

	err = r.replaceProjection(ctx, tx, id, nodes, connections)
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *WorkflowRepository) replaceProjection(ctx context.Context, tx *sql.Tx, workflowID string, nodes []*models.WorkflowNode, connections []*models.Connection) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM workflow_connections WHERE workflow_id = $1", workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete existing connections: %w", err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM workflow_nodes WHERE workflow_id = $1", workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete existing nodes: %w", err)
	}

	for i, node := range nodes {
		config, err := json.Marshal(nonNilMap(node.Config))
		if err != nil {
			return fmt.Errorf("failed to marshal node config: %w", err)
		}

		inputs, err := json.Marshal(nonNil(node.Inputs))
		if err != nil {
			return fmt.Errorf("failed to marshal node inputs: %w", err)
		}

		outputs, err := json.Marshal(nonNil(node.Outputs))
		if err != nil {
			return fmt.Errorf("failed to marshal node outputs: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_nodes (workflow_id, id, node_type, category, title, position_x, position_y, config, inputs, outputs, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, workflowID, node.NodeID, node.Type, node.Category, node.Title, node.PositionX, node.PositionY, config, inputs, outputs, i)
		if err != nil {
			return fmt.Errorf("failed to insert node %s: %w", node.NodeID, err)
		}
	}

	for i, conn := range connections {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_connections (workflow_id, id, source_node_id, source_output, target_node_id, target_input, link_type, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, workflowID, conn.ID, conn.SourceNodeID, conn.SourceOutput, conn.TargetNodeID, conn.TargetInput, nullString(conn.Type), i)
		if err != nil {
			return fmt.Errorf("failed to insert connection %s: %w", conn.ID, err)
		}
	}

	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (r *WorkflowRepository) loadGraph(ctx context.Context, q querier, workflow *models.Workflow) error {
	nodeRows, err := q.QueryContext(ctx, `
		SELECT id, node_type, category, title, position_x, position_y, config, inputs, outputs
		FROM workflow_nodes WHERE workflow_id = $1 ORDER BY position
	`, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query workflow nodes: %w", err)
	}

	defer closeRows(ctx, r.logger, nodeRows)

	workflow.Nodes = make([]*models.WorkflowNode, 0)

	for nodeRows.Next() {
		var (
			node                    models.WorkflowNode
			config, inputs, outputs []byte
		)

		err := nodeRows.Scan(&node.NodeID, &node.Type, &node.Category, &node.Title,
			&node.PositionX, &node.PositionY, &config, &inputs, &outputs)
		if err != nil {
			return fmt.Errorf("failed to scan workflow node: %w", err)
		}

		if err := unmarshalAll(config, &node.Config, inputs, &node.Inputs, outputs, &node.Outputs); err != nil {
			return fmt.Errorf("failed to decode workflow node %s: %w", node.NodeID, err)
		}

		workflow.Nodes = append(workflow.Nodes, &node)
	}

	if err := nodeRows.Err(); err != nil {
		return fmt.Errorf("error iterating workflow nodes: %w", err)
	}

	connRows, err := q.QueryContext(ctx, `
		SELECT id, source_node_id, source_output, target_node_id, target_input, link_type
		FROM workflow_connections WHERE workflow_id = $1 ORDER BY position
	`, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query workflow connections: %w", err)
	}

	defer closeRows(ctx, r.logger, connRows)

	workflow.Connections = make([]*models.Connection, 0)

	for connRows.Next() {
		var (
			conn     models.Connection
			linkType sql.NullString
		)

		err := connRows.Scan(&conn.ID, &conn.SourceNodeID, &conn.SourceOutput, &conn.TargetNodeID, &conn.TargetInput, &linkType)
		if err != nil {
			return fmt.Errorf("failed to scan workflow connection: %w", err)
		}

		conn.Type = linkType.String
		workflow.Connections = append(workflow.Connections, &conn)
	}

	if err := connRows.Err(); err != nil {
		return fmt.Errorf("error iterating workflow connections: %w", err)
	}

	return nil
}

// RecordExecutionOutcome bumps the run counters in a single statement.
func (r *WorkflowRepository) RecordExecutionOutcome(ctx context.Context, id string, status models.ExecutionStatus, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE workflows SET
			execution_count = execution_count + 1,
			success_count = success_count + CASE WHEN $2 = 'completed' THEN 1 ELSE 0 END,
			failure_count = failure_count + CASE WHEN $2 = 'failed' THEN 1 ELSE 0 END,
			last_executed_at = $3
		WHERE id = $1
	`, id, string(status), at)
	if err != nil {
		return fmt.Errorf("failed to record execution outcome: %w", err)
	}

	return requireRow(result, persistence.NewWorkflowError("RecordExecutionOutcome", id, persistence.ErrWorkflowNotFound))
}

// Delete removes a workflow; nodes and connections cascade.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM workflows WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	return requireRow(result, persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound))
}

func scanWorkflow(row scanner) (*models.Workflow, error) {
	var (
		workflow                             models.Workflow
		graph, tags, settings, metadata      []byte
		webhookPath, webhookSecret, schedule sql.NullString
		owner                                sql.NullString
		lastExecutedAt                       sql.NullTime
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.Name,
		&workflow.Description,
		&workflow.TriggerType,
		&workflow.Status,
		&graph,
		&tags,
		&settings,
		&metadata,
		&workflow.IsActive,
		&webhookPath,
		&webhookSecret,
		&schedule,
		&workflow.ExecutionCount,
		&workflow.SuccessCount,
		&workflow.FailureCount,
		&lastExecutedAt,
		&owner,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	workflow.GraphData = json.RawMessage(graph)
	workflow.WebhookPath = webhookPath.String
	workflow.WebhookSecret = webhookSecret.String
	workflow.ScheduleCron = schedule.String
	workflow.Owner = owner.String

	if lastExecutedAt.Valid {
		at := lastExecutedAt.Time.UTC()
		workflow.LastExecutedAt = &at
	}

	if err := unmarshalAll(tags, &workflow.Tags, settings, &workflow.Settings, metadata, &workflow.Metadata); err != nil {
		return nil, err
	}

	return &workflow, nil
}

// unmarshalAll decodes pairs of (json, target), skipping empty and null columns.
func unmarshalAll(pairs ...any) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		data, _ := pairs[i].([]byte)
		if len(data) == 0 || string(data) == "null" {
			continue
		}

		if err := json.Unmarshal(data, pairs[i+1]); err != nil {
			return err
		}
	}

	return nil
}

func requireRow(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if n == 0 {
		return notFound
	}

	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}

	return s
}

func nonNilMap[M ~map[string]any](m M) M {
	if m == nil {
		return M{}
	}

	return m
}
