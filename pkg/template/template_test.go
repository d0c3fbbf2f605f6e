package template

import (
	"log/slog"
	"testing"

	"github.com/durgasflow/durgasflow/pkg/execution"
	"github.com/durgasflow/durgasflow/pkg/models"
	"github.com/durgasflow/durgasflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_SimpleExpression(t *testing.T) {
	data := map[string]any{
		"name":  "John",
		"age":   30,
		"isNew": true,
	}

	result, err := Render("{{ .name }}", data)
	require.NoError(t, err)
	assert.Equal(t, "John", result)

	result, err = Render("{{ .isNew }}", data)
	require.NoError(t, err)
	assert.Equal(t, true, result)

	// numbers always come back as float64
	result, err = Render("{{ .age }}", data)
	require.NoError(t, err)
	assert.Equal(t, 30.0, result)
}

func TestRender_ObjectConstruction(t *testing.T) {
	data := map[string]any{
		"user":   map[string]any{"name": "Alice"},
		"orders": []any{1, 2},
	}

	result, err := Render(`{"user_name": "{{ .user.name }}", "total_orders": {{ len .orders }}}`, data)
	require.NoError(t, err)

	resultMap, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Alice", resultMap["user_name"])
	assert.Equal(t, 2.0, resultMap["total_orders"])
}

func TestRender_ErrorHandling(t *testing.T) {
	data := map[string]any{"test": "value"}

	_, err := Render("{ invalid..expression }}", data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse json")

	_, err = Render("{{ nonexistent.field }}", data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "function \"nonexistent\" not defined")
}

func TestRenderString_KeepsText(t *testing.T) {
	out, err := RenderString("count={{ .n }}", map[string]any{"n": 5})
	require.NoError(t, err)
	assert.Equal(t, "count=5", out)

	out, err = RenderString("42", nil)
	require.NoError(t, err)
	assert.Equal(t, "42", out)
}

func TestRenderWithContext(t *testing.T) {
	t.Setenv("DURGASFLOW_TEMPLATE_TEST", "from-env")

	wf := testutil.CreateTestWorkflow(nil, nil)
	exec := models.NewExecution("exec-1", wf.ID, models.TriggerTypeManual, map[string]any{"user": "ada"}, "")
	runCtx := execution.NewContext(exec, wf, slog.Default())
	runCtx.SetVariable("greeting", "hello")

	node := testutil.CreateTestNode("n1")

	result, err := RenderWithContext(
		"{{ .vars.greeting }} {{ .trigger.user }} {{ .input.x }} {{ .execution.id }} {{ .env.DURGASFLOW_TEMPLATE_TEST }}",
		runCtx.ForNode(node),
		map[string]any{"x": "in"},
	)
	require.NoError(t, err)
	assert.Equal(t, "hello ada in exec-1 from-env", result)
}
