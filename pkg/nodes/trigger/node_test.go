package trigger

import (
	"log/slog"
	"testing"

	"github.com/durgasflow/durgasflow/pkg/execution"
	"github.com/durgasflow/durgasflow/pkg/models"
	"github.com/durgasflow/durgasflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerNodes_Metadata(t *testing.T) {
	for nodeType, handler := range map[string]interface{ Type() string }{
		"trigger/manual":   NewManualTriggerNode(),
		"trigger/webhook":  NewWebhookTriggerNode(),
		"trigger/schedule": NewScheduleTriggerNode(),
		"trigger/event":    NewEventTriggerNode(),
	} {
		assert.Equal(t, nodeType, handler.Type())
		assert.Equal(t, models.CategoryTypeTrigger, models.CategoryForType(handler.Type()))
	}
}

func TestTriggerNode_EmitsPayload(t *testing.T) {
	node := testutil.CreateTestNode("t1", testutil.WithTriggerNode())
	wf := testutil.CreateTestWorkflow([]*models.WorkflowNode{node}, nil)
	exec := models.NewExecution("exec-1", wf.ID, models.TriggerTypeWebhook, map[string]any{"body": "hi"}, "")
	execCtx := execution.NewContext(exec, wf, slog.Default()).ForNode(node)

	handler := NewWebhookTriggerNode()

	out, err := handler.Execute(t.Context(), nil, nil, execCtx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"body": "hi"}, out)

	out, err = handler.Execute(t.Context(), nil, "wired", execCtx)
	require.NoError(t, err)
	assert.Equal(t, "wired", out)
}
