package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/durgasflow/durgasflow/pkg/execution"
	"github.com/durgasflow/durgasflow/pkg/models"
	"github.com/durgasflow/durgasflow/pkg/persistence"
	"github.com/durgasflow/durgasflow/pkg/persistence/file"
	"github.com/durgasflow/durgasflow/pkg/registry"
	"github.com/durgasflow/durgasflow/pkg/services"
	"github.com/durgasflow/durgasflow/pkg/testutil"
	"github.com/durgasflow/durgasflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type testAPI struct {
	app         *fiber.App
	persistence persistence.Persistence
	workflows   *services.Workflow
}

func setupTestApp(t *testing.T) *testAPI {
	t.Helper()

	p := file.NewPersistence(t.TempDir())

	registryInstance := registry.NewRegistry(slog.Default())
	registryInstance.RegisterDefaultNodes()

	engine := execution.NewEngine(p, registryInstance, slog.Default())
	workflowService := services.NewWorkflow(p, nil, slog.Default())

	handlers := web.NewAPIHandlers(
		workflowService,
		services.NewExecution(p, engine, slog.Default()),
		services.NewNode(registryInstance),
		validator.New(validator.WithRequiredStructEnabled()),
		registryInstance,
	)

	app := fiber.New()
	handlers.RegisterRoutes(app)

	return &testAPI{app: app, persistence: p, workflows: workflowService}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, headers ...string) (int, []byte) {
	t.Helper()

	var reader io.Reader

	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)

		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := a.app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, data
}

func (a *testAPI) createLogWorkflow(t *testing.T, triggerType models.TriggerType) *models.Workflow {
	t.Helper()

	doc := testutil.GraphDocument(
		[]*models.WorkflowNode{
			testutil.CreateTestNode("1", testutil.WithType("trigger/"+string(triggerType)), func(n *models.WorkflowNode) {
				n.Inputs = []models.Slot{}
			}),
			testutil.CreateTestNode("2", testutil.WithConfig(map[string]any{"message": "received"})),
		},
		[]*models.Connection{testutil.CreateTestConnection("1", "2")},
	)

	status, body := a.do(t, http.MethodPost, "/workflows", web.CreateWorkflowRequest{
		Name:        "Logger",
		TriggerType: string(triggerType),
		GraphData:   doc,
		Owner:       "test-user",
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	var workflow models.Workflow
	require.NoError(t, json.Unmarshal(body, &workflow))

	return &workflow
}

func TestAPIHandlers_CreateWorkflow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
		validateResult func(t *testing.T, body []byte)
	}{
		{
			name: "successful creation",
			requestBody: web.CreateWorkflowRequest{
				Name:        "Test Workflow",
				Description: "Test Description",
				Owner:       "test-user",
				Tags:        []string{"test"},
			},
			expectedStatus: http.StatusCreated,
			validateResult: func(t *testing.T, body []byte) {
				t.Helper()

				var workflow models.Workflow
				require.NoError(t, json.Unmarshal(body, &workflow))
				assert.NotEmpty(t, workflow.ID)
				assert.Equal(t, "Test Workflow", workflow.Name)
				assert.Equal(t, "test-user", workflow.Owner)
				assert.Equal(t, models.WorkflowStatusDraft, workflow.Status)
				assert.Equal(t, models.TriggerTypeManual, workflow.TriggerType)
				assert.False(t, workflow.IsActive)
				assert.Empty(t, workflow.Nodes)
			},
		},
		{
			name:           "validation error - missing name",
			requestBody:    web.CreateWorkflowRequest{Owner: "test-user"},
			expectedStatus: http.StatusBadRequest,
			validateResult: func(t *testing.T, body []byte) {
				t.Helper()
				assert.Contains(t, gjson.GetBytes(body, "detail").String(), "Name")
			},
		},
		{
			name:           "validation error - graph is not an object",
			requestBody:    web.CreateWorkflowRequest{Name: "Bad graph", GraphData: json.RawMessage(`[1, 2]`)},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "validation error - invalid cron",
			requestBody:    web.CreateWorkflowRequest{Name: "Bad cron", TriggerType: "schedule", ScheduleCron: "whenever"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid JSON",
			requestBody:    "invalid-json",
			expectedStatus: http.StatusBadRequest,
			validateResult: func(t *testing.T, body []byte) {
				t.Helper()
				assert.Equal(t, "Invalid JSON format", gjson.GetBytes(body, "detail").String())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			api := setupTestApp(t)

			status, body := api.do(t, http.MethodPost, "/workflows", tt.requestBody)
			assert.Equal(t, tt.expectedStatus, status, string(body))

			if tt.validateResult != nil {
				tt.validateResult(t, body)
			}
		})
	}
}

func TestAPIHandlers_WorkflowLifecycle(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)
	workflow := api.createLogWorkflow(t, models.TriggerTypeManual)

	status, body := api.do(t, http.MethodGet, "/workflows/"+workflow.ID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Logger", gjson.GetBytes(body, "name").String())
	assert.Equal(t, int64(2), gjson.GetBytes(body, "nodes.#").Int())

	status, body = api.do(t, http.MethodPatch, "/workflows/"+workflow.ID, map[string]any{"name": "Renamed"})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, "Renamed", gjson.GetBytes(body, "name").String())
	assert.Equal(t, int64(2), gjson.GetBytes(body, "nodes.#").Int(), "graph untouched")

	status, body = api.do(t, http.MethodGet, "/workflows?owner=test-user", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(1), gjson.GetBytes(body, "total_count").Int())

	status, _ = api.do(t, http.MethodGet, "/workflows?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = api.do(t, http.MethodPost, "/workflows/"+workflow.ID+"/duplicate", nil)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "Renamed (Copy)", gjson.GetBytes(body, "name").String())

	status, _ = api.do(t, http.MethodDelete, "/workflows/"+workflow.ID, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, body = api.do(t, http.MethodGet, "/workflows/"+workflow.ID, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "workflow_not_found", gjson.GetBytes(body, "type").String())

	status, _ = api.do(t, http.MethodPatch, "/workflows/missing", map[string]any{"name": "x"})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_Graph(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)

	status, body := api.do(t, http.MethodPost, "/workflows", web.CreateWorkflowRequest{Name: "Empty"})
	require.Equal(t, http.StatusCreated, status)

	id := gjson.GetBytes(body, "id").String()

	status, body = api.do(t, http.MethodGet, "/workflows/"+id+"/graph", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, id, gjson.GetBytes(body, "workflow_id").String())
	assert.True(t, gjson.GetBytes(body, "graph_data.nodes").IsArray())

	doc := testutil.GraphDocument(
		[]*models.WorkflowNode{testutil.CreateTestNode("1", testutil.WithTriggerNode())},
		nil,
	)

	status, body = api.do(t, http.MethodPut, "/workflows/"+id+"/graph", web.SaveGraphRequest{GraphData: doc})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.True(t, gjson.GetBytes(body, "saved").Bool())

	loaded, err := api.workflows.FetchByID(t.Context(), id)
	require.NoError(t, err)
	assert.Len(t, loaded.Nodes, 1)

	status, _ = api.do(t, http.MethodPut, "/workflows/"+id+"/graph", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = api.do(t, http.MethodPut, "/workflows/"+id+"/graph", `{"graph_data": "not a graph"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = api.do(t, http.MethodPut, "/workflows/missing/graph", web.SaveGraphRequest{GraphData: doc})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_ExecuteAndInspect(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)
	workflow := api.createLogWorkflow(t, models.TriggerTypeManual)

	status, body := api.do(t, http.MethodPost, "/workflows/"+workflow.ID+"/execute", web.ExecuteWorkflowRequest{
		TriggerData: map[string]any{"order": "A-1"},
		TriggeredBy: "test-user",
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	assert.Equal(t, string(models.ExecutionStatusCompleted), gjson.GetBytes(body, "status").String())
	assert.False(t, gjson.GetBytes(body, "async").Bool())

	executionID := gjson.GetBytes(body, "execution_id").String()
	require.NotEmpty(t, executionID)

	status, body = api.do(t, http.MethodGet, "/executions/"+executionID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "A-1", gjson.GetBytes(body, "trigger_data.order").String())
	assert.Equal(t, "test-user", gjson.GetBytes(body, "triggered_by").String())

	status, body = api.do(t, http.MethodGet, "/executions?workflow_id="+workflow.ID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(1), gjson.GetBytes(body, "total_count").Int())

	status, body = api.do(t, http.MethodGet, "/executions/"+executionID+"/logs", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(2), gjson.GetBytes(body, "logs.#").Int())

	status, body = api.do(t, http.MethodGet, "/executions/"+executionID+"/logs?level=error", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(0), gjson.GetBytes(body, "logs.#").Int())

	status, body = api.do(t, http.MethodPost, "/executions/"+executionID+"/cancel", nil)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, gjson.GetBytes(body, "cancelled").Bool())

	status, body = api.do(t, http.MethodPost, "/executions/"+executionID+"/retry", web.RetryExecutionRequest{TriggeredBy: "ops"})
	require.Equal(t, http.StatusCreated, status, string(body))
	assert.Equal(t, executionID, gjson.GetBytes(body, "retry_of").String())
	assert.Equal(t, int64(1), gjson.GetBytes(body, "retry_count").Int())

	status, body = api.do(t, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(2), gjson.GetBytes(body, "total_executions").Int())
	assert.Equal(t, int64(2), gjson.GetBytes(body, "total_successes").Int())

	status, _ = api.do(t, http.MethodGet, "/executions?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = api.do(t, http.MethodGet, "/executions/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "execution_not_found", gjson.GetBytes(body, "type").String())

	status, _ = api.do(t, http.MethodPost, "/workflows/missing/execute", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_Activation(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)
	workflow := api.createLogWorkflow(t, models.TriggerTypeManual)

	status, body := api.do(t, http.MethodPost, "/workflows/"+workflow.ID+"/activate", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, "activated", gjson.GetBytes(body, "status").String())
	assert.True(t, gjson.GetBytes(body, "is_active").Bool())

	status, body = api.do(t, http.MethodPost, "/workflows/"+workflow.ID+"/deactivate", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "deactivated", gjson.GetBytes(body, "status").String())
	assert.False(t, gjson.GetBytes(body, "is_active").Bool())

	status, body = api.do(t, http.MethodPost, "/workflows", web.CreateWorkflowRequest{Name: "No cron", TriggerType: "schedule"})
	require.Equal(t, http.StatusCreated, status)

	status, _ = api.do(t, http.MethodPost, "/workflows/"+gjson.GetBytes(body, "id").String()+"/activate", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	archived, err := api.workflows.FetchByID(t.Context(), workflow.ID)
	require.NoError(t, err)

	archived.Status = models.WorkflowStatusArchived
	require.NoError(t, api.persistence.WorkflowRepository().Save(t.Context(), archived))

	status, body = api.do(t, http.MethodPost, "/workflows/"+workflow.ID+"/activate", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "conflict", gjson.GetBytes(body, "type").String())
}

func TestAPIHandlers_Webhook(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)
	workflow := api.createLogWorkflow(t, models.TriggerTypeWebhook)
	require.NotEmpty(t, workflow.WebhookPath)

	url := "/webhooks/" + workflow.ID + "/" + workflow.WebhookPath

	status, body := api.do(t, http.MethodPost, url, map[string]any{"event": "created"})
	assert.Equal(t, http.StatusNotFound, status, "inactive workflows do not accept webhooks")
	assert.Equal(t, "Workflow not found or inactive", gjson.GetBytes(body, "error").String())

	status, _ = api.do(t, http.MethodPost, "/workflows/"+workflow.ID+"/activate", nil)
	require.Equal(t, http.StatusOK, status)

	status, body = api.do(t, http.MethodPost, url+"?source=test", map[string]any{"event": "created"})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.True(t, gjson.GetBytes(body, "success").Bool())
	assert.Equal(t, string(models.ExecutionStatusCompleted), gjson.GetBytes(body, "status").String())

	status, body = api.do(t, http.MethodGet, "/executions/"+gjson.GetBytes(body, "execution_id").String(), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, string(models.TriggerTypeWebhook), gjson.GetBytes(body, "trigger_type").String())
	assert.Equal(t, "POST", gjson.GetBytes(body, "trigger_data.method").String())
	assert.Equal(t, "test", gjson.GetBytes(body, "trigger_data.query_params.source").String())
	assert.Equal(t, "created", gjson.GetBytes(body, "trigger_data.body.event").String())

	status, body = api.do(t, http.MethodPost, url, "{broken", "Content-Type", "application/json")
	require.Equal(t, http.StatusOK, status)

	status, body = api.do(t, http.MethodGet, "/executions/"+gjson.GetBytes(body, "execution_id").String(), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "{broken", gjson.GetBytes(body, "trigger_data.body").String())

	status, _ = api.do(t, http.MethodGet, "/webhooks/"+workflow.ID+"/wrong-path", nil)
	assert.Equal(t, http.StatusNotFound, status)

	stored, err := api.workflows.FetchByID(t.Context(), workflow.ID)
	require.NoError(t, err)

	stored.WebhookSecret = "s3cret"
	require.NoError(t, api.persistence.WorkflowRepository().Save(t.Context(), stored))

	status, body = api.do(t, http.MethodGet, url, nil, web.WebhookSecretHeader, "nope")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Invalid webhook secret", gjson.GetBytes(body, "error").String())

	status, _ = api.do(t, http.MethodGet, url, nil, web.WebhookSecretHeader, "s3cret")
	assert.Equal(t, http.StatusOK, status)
}

func TestAPIHandlers_WebhookFormBody(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)
	workflow := api.createLogWorkflow(t, models.TriggerTypeWebhook)

	_, err := api.workflows.Activate(t.Context(), workflow.ID)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/"+workflow.ID+"/"+workflow.WebhookPath,
		strings.NewReader("name=ada&lang=go"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := api.app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	exec, err := api.persistence.ExecutionRepository().GetByID(t.Context(), gjson.GetBytes(body, "execution_id").String())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "ada", "lang": "go"}, exec.TriggerData["body"])
}

func TestAPIHandlers_Import(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)
	workflow := api.createLogWorkflow(t, models.TriggerTypeManual)

	status, exported := api.do(t, http.MethodGet, "/workflows/"+workflow.ID+"/export", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, services.ExportVersion, gjson.GetBytes(exported, "version").String())

	status, body := api.do(t, http.MethodPost, "/workflows/import?owner=someone", string(exported))
	require.Equal(t, http.StatusCreated, status, string(body))
	assert.Equal(t, "someone", gjson.GetBytes(body, "owner").String())
	assert.NotEqual(t, workflow.ID, gjson.GetBytes(body, "id").String())

	n8nDoc := `{
	  "name": "Hook",
	  "nodes": [
	    {"name": "In", "type": "n8n-nodes-base.webhook", "position": [0, 0], "parameters": {"path": "hook"}},
	    {"name": "Out", "type": "n8n-nodes-base.set", "position": [200, 0], "parameters": {}}
	  ],
	  "connections": {"In": {"main": [[{"node": "Out", "type": "main", "index": 0}]]}}
	}`

	status, body = api.do(t, http.MethodPost, "/workflows/import/n8n", n8nDoc)
	require.Equal(t, http.StatusCreated, status, string(body))
	assert.Equal(t, "Hook (N8n)", gjson.GetBytes(body, "workflow.name").String())
	assert.Equal(t, string(models.TriggerTypeWebhook), gjson.GetBytes(body, "workflow.trigger_type").String())
	assert.Equal(t, int64(2), gjson.GetBytes(body, "conversion_stats.total_nodes").Int())

	status, _ = api.do(t, http.MethodPost, "/workflows/import/n8n", `{"nodes": "none"}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_Nodes(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)

	status, body := api.do(t, http.MethodGet, "/nodes", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Positive(t, gjson.GetBytes(body, "nodes.#").Int())

	status, body = api.do(t, http.MethodGet, "/nodes?by_category=true", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(4), gjson.GetBytes(body, "categories.trigger.#").Int())

	status, body = api.do(t, http.MethodGet, "/nodes/action-log/schema", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "action/log", gjson.GetBytes(body, "type").String())

	status, _ = api.do(t, http.MethodGet, "/nodes/unknown-thing/schema", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	api := setupTestApp(t)

	status, body := api.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, "healthy", gjson.GetBytes(body, "status").String())
	assert.Equal(t, "ok", gjson.GetBytes(body, "checkers.registry").String())
}
