// Package log provides the logging node.
package log

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/durgasflow/durgasflow/pkg/protocol"
	"github.com/durgasflow/durgasflow/pkg/template"
)

const NodeType = "action/log"

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// LogNode writes a templated message to the run logger.
type LogNode struct{}

func NewLogNode() protocol.NodeHandler {
	return &LogNode{}
}

func (n *LogNode) Type() string { return NodeType }

func (n *LogNode) Name() string { return "Log" }

func (n *LogNode) Description() string {
	return "Logs a message rendered against the node input, trigger data and variables"
}

func (n *LogNode) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message to log. Supports templating.",
				"examples": []string{
					"Processing order {{.input.id}}",
					"Triggered by {{.trigger.method}}",
				},
			},
			"level": map[string]any{
				"type":    "string",
				"enum":    []string{"debug", "info", "warn", "error"},
				"default": "info",
			},
		},
		"required": []string{"message"},
	}
}

// Execute logs the message and returns what was logged.
func (n *LogNode) Execute(ctx context.Context, config map[string]any, input any, execCtx protocol.ExecutionContext) (any, error) {
	raw, ok := config["message"].(string)
	if !ok {
		return nil, errors.New("missing required field 'message'")
	}

	message, err := template.RenderString(raw, template.ContextData(execCtx, input))
	if err != nil {
		return nil, fmt.Errorf("failed to render log message template: %w", err)
	}

	levelName, _ := config["level"].(string)

	level, ok := levels[levelName]
	if !ok {
		levelName = "info"
		level = slog.LevelInfo
	}

	execCtx.Logger().Log(ctx, level, message)

	return map[string]any{
		"message": message,
		"level":   levelName,
		"logged":  true,
	}, nil
}
