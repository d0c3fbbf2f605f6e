package httprequest

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/durgasflow/durgasflow/pkg/execution"
	"github.com/durgasflow/durgasflow/pkg/models"
	"github.com/durgasflow/durgasflow/pkg/protocol"
	"github.com/durgasflow/durgasflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExecCtx() protocol.ExecutionContext {
	node := testutil.CreateTestNode("http1", testutil.WithType(NodeType))
	wf := testutil.CreateTestWorkflow([]*models.WorkflowNode{node}, nil)
	exec := models.NewExecution("exec-1", wf.ID, models.TriggerTypeManual, map[string]any{"token": "secret"}, "")

	return execution.NewContext(exec, wf, slog.Default()).ForNode(node)
}

func TestHTTPRequestNode_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/users/42", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.JSONEq(t, `{"name":"Ada"}`, string(body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	out, err := NewHTTPRequestNode().Execute(t.Context(), map[string]any{
		"url":     server.URL + "/users/{{.input.id}}",
		"method":  "post",
		"headers": map[string]any{"Authorization": "Bearer {{.trigger.token}}"},
		"body":    `{"name":"{{.input.name}}"}`,
	}, map[string]any{"id": 42, "name": "Ada"}, newExecCtx())
	require.NoError(t, err)

	result := out.(map[string]any)
	assert.Equal(t, http.StatusOK, result["status_code"])
	assert.Equal(t, `{"ok":true}`, result["body"])
	assert.Equal(t, map[string]any{"ok": true}, result["json"])
	assert.Equal(t, "application/json", result["headers"].(map[string]any)["Content-Type"])
}

func TestHTTPRequestNode_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)

			return
		}

		_, _ = w.Write([]byte("done"))
	}))
	defer server.Close()

	out, err := NewHTTPRequestNode().Execute(t.Context(), map[string]any{
		"url":     server.URL,
		"retries": map[string]any{"attempts": 3.0, "delay": 1.0},
	}, nil, newExecCtx())
	require.NoError(t, err)

	assert.Equal(t, "done", out.(map[string]any)["body"])
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPRequestNode_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewHTTPRequestNode().Execute(t.Context(), map[string]any{
		"url":     server.URL,
		"retries": map[string]any{"attempts": 5.0},
	}, nil, newExecCtx())
	require.Error(t, err)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(map[string]any{"url": "http://example.com"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, cfg.Method)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 1, cfg.Retries.Attempts)

	tests := []struct {
		name   string
		config map[string]any
		errMsg string
	}{
		{"missing url", map[string]any{}, "'url'"},
		{"bad method", map[string]any{"url": "x", "method": "BREW"}, "invalid HTTP method"},
		{"bad timeout", map[string]any{"url": "x", "timeout": 0.0}, "timeout"},
		{"bad attempts", map[string]any{"url": "x", "retries": map[string]any{"attempts": 11.0}}, "attempts"},
		{"bad delay", map[string]any{"url": "x", "retries": map[string]any{"delay": -1.0}}, "delay"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig(tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
