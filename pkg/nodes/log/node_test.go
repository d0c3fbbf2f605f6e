package log

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/durgasflow/durgasflow/pkg/execution"
	"github.com/durgasflow/durgasflow/pkg/models"
	"github.com/durgasflow/durgasflow/pkg/protocol"
	"github.com/durgasflow/durgasflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExecCtx(buf *bytes.Buffer) protocol.ExecutionContext {
	node := testutil.CreateTestNode("log1")
	wf := testutil.CreateTestWorkflow([]*models.WorkflowNode{node}, nil)
	exec := models.NewExecution("exec-1", wf.ID, models.TriggerTypeManual, map[string]any{"user": "ada"}, "")
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	return execution.NewContext(exec, wf, logger).ForNode(node)
}

func TestLogNode_Execute(t *testing.T) {
	var buf bytes.Buffer

	out, err := NewLogNode().Execute(t.Context(), map[string]any{
		"message": "order {{.input.id}} by {{.trigger.user}}",
		"level":   "warn",
	}, map[string]any{"id": 7}, newExecCtx(&buf))
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"message": "order 7 by ada", "level": "warn", "logged": true}, out)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "order 7 by ada")
	assert.Contains(t, buf.String(), "node_id=log1")
}

func TestLogNode_UnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer

	out, err := NewLogNode().Execute(t.Context(), map[string]any{"message": "plain", "level": "loud"}, nil, newExecCtx(&buf))
	require.NoError(t, err)

	assert.Equal(t, "info", out.(map[string]any)["level"])
	assert.Contains(t, buf.String(), "level=INFO")
}

func TestLogNode_Errors(t *testing.T) {
	var buf bytes.Buffer

	_, err := NewLogNode().Execute(t.Context(), map[string]any{}, nil, newExecCtx(&buf))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "message")

	_, err = NewLogNode().Execute(t.Context(), map[string]any{"message": "{{ .input."}, nil, newExecCtx(&buf))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to render")
}
