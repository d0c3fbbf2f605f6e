package conditional

import (
	"log/slog"
	"testing"

	"github.com/durgasflow/durgasflow/pkg/execution"
	"github.com/durgasflow/durgasflow/pkg/models"
	"github.com/durgasflow/durgasflow/pkg/protocol"
	"github.com/durgasflow/durgasflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExecCtx(vars map[string]any) protocol.ExecutionContext {
	node := testutil.CreateTestNode("if1", testutil.WithType(NodeType))
	wf := testutil.CreateTestWorkflow([]*models.WorkflowNode{node}, nil)
	exec := models.NewExecution("exec-1", wf.ID, models.TriggerTypeManual, nil, "")
	runCtx := execution.NewContext(exec, wf, slog.Default())

	for k, v := range vars {
		runCtx.SetVariable(k, v)
	}

	return runCtx.ForNode(node)
}

func TestConditionalNode_FieldComparison(t *testing.T) {
	input := map[string]any{
		"status": "active",
		"amount": 120,
		"user":   map[string]any{"verified": true, "name": "Ada Lovelace"},
	}

	tests := []struct {
		name   string
		config map[string]any
		want   bool
	}{
		{"equals string", map[string]any{"field": "status", "value": "active"}, true},
		{"equals mismatch", map[string]any{"field": "status", "value": "archived"}, false},
		{"equals number", map[string]any{"field": "amount", "value": 120.0}, true},
		{"equals nested bool", map[string]any{"field": "user.verified", "value": true}, true},
		{"not equals", map[string]any{"field": "status", "operator": "not_equals", "value": "draft"}, true},
		{"contains", map[string]any{"field": "user.name", "operator": "contains", "value": "Love"}, true},
		{"greater", map[string]any{"field": "amount", "operator": "gt", "value": 100}, true},
		{"less", map[string]any{"field": "amount", "operator": "lt", "value": "100"}, false},
		{"exists", map[string]any{"field": "user.name", "operator": "exists"}, true},
		{"missing field equals nil", map[string]any{"field": "nope"}, true},
		{"missing field exists", map[string]any{"field": "nope", "operator": "exists"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := NewConditionalNode().Execute(t.Context(), tt.config, input, newExecCtx(nil))
			require.NoError(t, err)

			if tt.want {
				assert.Equal(t, protocol.SlotOutputs{SlotTrue: input}, out)
			} else {
				assert.Equal(t, protocol.SlotOutputs{SlotFalse: input}, out)
			}
		})
	}
}

func TestConditionalNode_TemplateCondition(t *testing.T) {
	tests := []struct {
		name      string
		condition string
		vars      map[string]any
		want      bool
	}{
		{"positive number is true", "{{.vars.count}}", map[string]any{"count": 5}, true},
		{"zero is false", "{{.vars.count}}", map[string]any{"count": 0}, false},
		{"non-empty string is true", "{{.vars.name}}", map[string]any{"name": "test"}, true},
		{"empty string is false", "{{.vars.name}}", map[string]any{"name": ""}, false},
		{"eq function", `{{eq .input "go"}}`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := NewConditionalNode().Execute(t.Context(), map[string]any{"condition": tt.condition}, "go", newExecCtx(tt.vars))
			require.NoError(t, err)

			slots := out.(protocol.SlotOutputs)
			if tt.want {
				assert.Contains(t, slots, SlotTrue)
				assert.NotContains(t, slots, SlotFalse)
			} else {
				assert.Contains(t, slots, SlotFalse)
				assert.NotContains(t, slots, SlotTrue)
			}
		})
	}
}

func TestConditionalNode_Errors(t *testing.T) {
	_, err := NewConditionalNode().Execute(t.Context(), map[string]any{}, nil, newExecCtx(nil))
	require.Error(t, err)

	_, err = NewConditionalNode().Execute(t.Context(), map[string]any{"field": "a", "operator": "between"}, nil, newExecCtx(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown operator")
}

func TestTruthy(t *testing.T) {
	assert.True(t, Truthy(true))
	assert.True(t, Truthy("yes"))
	assert.False(t, Truthy("false"))
	assert.False(t, Truthy(""))
	assert.True(t, Truthy([]any{1}))
	assert.False(t, Truthy(map[string]any{}))
	assert.False(t, Truthy(nil))
}
