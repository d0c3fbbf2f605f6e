// Package httprequest provides the HTTP request node.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/durgasflow/durgasflow/pkg/protocol"
	"github.com/durgasflow/durgasflow/pkg/template"
)

const NodeType = "action/http_request"

// Config is the parsed node configuration.
type Config struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    string
	Timeout time.Duration
	Retries RetryConfig
}

// RetryConfig defines retry behavior for HTTP requests.
type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// HTTPRequestNode performs an HTTP request with templated url, headers and body.
type HTTPRequestNode struct {
	client *http.Client
}

func NewHTTPRequestNode() protocol.NodeHandler {
	return &HTTPRequestNode{client: &http.Client{}}
}

func (n *HTTPRequestNode) Type() string { return NodeType }

func (n *HTTPRequestNode) Name() string { return "HTTP Request" }

func (n *HTTPRequestNode) Description() string {
	return "Makes an HTTP request and returns status_code, headers, body and the decoded json body"
}

func (n *HTTPRequestNode) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Request URL. Supports templating.",
				"examples":    []string{"https://api.example.com/users/{{.input.id}}"},
			},
			"method": map[string]any{
				"type":    "string",
				"enum":    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
				"default": "GET",
			},
			"headers": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Request body. Supports templating.",
			},
			"timeout": map[string]any{
				"type":        "integer",
				"description": "Timeout in seconds",
				"minimum":     1,
				"maximum":     300,
				"default":     30,
			},
			"retries": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"attempts": map[string]any{"type": "integer", "minimum": 1, "maximum": 10, "default": 1},
					"delay":    map[string]any{"type": "integer", "description": "Delay between attempts in milliseconds", "minimum": 0, "maximum": 30000},
				},
			},
		},
		"required": []string{"url"},
	}
}

// ParseConfig validates a node property bag.
func ParseConfig(config map[string]any) (Config, error) {
	cfg := Config{
		Method:  http.MethodGet,
		Headers: map[string]string{},
		Timeout: 30 * time.Second,
		Retries: RetryConfig{Attempts: 1},
	}

	url, ok := config["url"].(string)
	if !ok || url == "" {
		return cfg, errors.New("missing required field 'url'")
	}

	cfg.URL = url

	if method, ok := config["method"].(string); ok && method != "" {
		cfg.Method = strings.ToUpper(method)
	}

	switch cfg.Method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
		http.MethodDelete, http.MethodHead, http.MethodOptions:
	default:
		return cfg, fmt.Errorf("invalid HTTP method: %s", cfg.Method)
	}

	if headers, ok := config["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				cfg.Headers[k] = s
			}
		}
	}

	cfg.Body, _ = config["body"].(string)

	if timeout, ok := config["timeout"].(float64); ok {
		if timeout < 1 || timeout > 300 {
			return cfg, errors.New("timeout must be between 1 and 300 seconds")
		}

		cfg.Timeout = time.Duration(timeout) * time.Second
	}

	if retries, ok := config["retries"].(map[string]any); ok {
		if attempts, ok := retries["attempts"].(float64); ok {
			if attempts < 1 || attempts > 10 {
				return cfg, errors.New("retry attempts must be between 1 and 10")
			}

			cfg.Retries.Attempts = int(attempts)
		}

		if delay, ok := retries["delay"].(float64); ok {
			if delay < 0 || delay > 30000 {
				return cfg, errors.New("retry delay must be between 0 and 30000 milliseconds")
			}

			cfg.Retries.Delay = time.Duration(delay) * time.Millisecond
		}
	}

	return cfg, nil
}

func (n *HTTPRequestNode) Execute(ctx context.Context, config map[string]any, input any, execCtx protocol.ExecutionContext) (any, error) {
	cfg, err := ParseConfig(config)
	if err != nil {
		return nil, err
	}

	data := template.ContextData(execCtx, input)

	url, err := template.RenderString(cfg.URL, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render URL template: %w", err)
	}

	body, err := template.RenderString(cfg.Body, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render body template: %w", err)
	}

	headers := make(map[string]string, len(cfg.Headers))

	for key, value := range cfg.Headers {
		rendered, err := template.RenderString(value, data)
		if err != nil {
			rendered = value
		}

		headers[key] = rendered
	}

	var lastErr error

	for attempt := 1; attempt <= cfg.Retries.Attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(cfg.Retries.Delay):
			}
		}

		result, err := n.do(ctx, cfg, url, body, headers)
		if err == nil {
			return result, nil
		}

		lastErr = err

		execCtx.Logger().WarnContext(ctx, "HTTP request attempt failed", "attempt", attempt, "error", err)

		// client errors are not retried
		httpErr := &HTTPError{}
		if errors.As(err, &httpErr) && httpErr.StatusCode < 500 {
			break
		}
	}

	return nil, fmt.Errorf("HTTP request failed after %d attempts: %w", cfg.Retries.Attempts, lastErr)
}

func (n *HTTPRequestNode) do(ctx context.Context, cfg Config, url, body string, headers map[string]string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, cfg.Method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	if body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	respHeaders := make(map[string]any, len(resp.Header))
	for k := range resp.Header {
		respHeaders[k] = resp.Header.Get(k)
	}

	result := map[string]any{
		"status_code": resp.StatusCode,
		"headers":     respHeaders,
		"body":        string(respBody),
	}

	var jsonBody any
	if err := json.Unmarshal(respBody, &jsonBody); err == nil {
		result["json"] = jsonBody
	}

	return result, nil
}
