// Package template renders Go templates against the state of a workflow run.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/durgasflow/durgasflow/pkg/protocol"
)

// ContextData builds the template data for a node: its input, the trigger
// payload, run variables, execution ids and the process environment.
func ContextData(execCtx protocol.ExecutionContext, input any) map[string]any {
	vars := execCtx.Variables()

	return map[string]any{
		"input":        input,
		"trigger":      execCtx.TriggerData(),
		"trigger_data": execCtx.TriggerData(),
		"vars":         vars,
		"variables":    vars,
		"env":          envVars(),
		"execution": map[string]any{
			"id":          execCtx.ExecutionID(),
			"workflow_id": execCtx.WorkflowID(),
		},
	}
}

// RenderWithContext renders templateStr against ContextData and coerces the
// result like Render.
func RenderWithContext(templateStr string, execCtx protocol.ExecutionContext, input any) (any, error) {
	return Render(templateStr, ContextData(execCtx, input))
}

// RenderString renders templateStr without coercing the result.
func RenderString(templateStr string, data any) (string, error) {
	if !strings.Contains(templateStr, "{{") {
		return templateStr, nil
	}

	tmpl, err := template.New("node").Funcs(funcs).Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return buf.String(), nil
}

// Render renders templateStr and converts the output to a JSON value, a
// number or a boolean when it looks like one.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.New("node").Funcs(funcs).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err == nil {
			return jsonResult, nil
		}

		return jsonResult, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

var funcs = template.FuncMap{
	"now": func() string {
		return time.Now().UTC().Format(time.RFC3339)
	},
	"rand": func(max int) int {
		if max <= 0 {
			return 0
		}

		num := make([]byte, 1)
		if _, err := rand.Read(num); err != nil {
			return 0
		}

		return int(num[0]) % max
	},
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)

		return string(b), err
	},
}

func envVars() map[string]any {
	envMap := make(map[string]any)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	return envMap
}
