// Package transform provides data transformation nodes.
package transform

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/durgasflow/durgasflow/pkg/protocol"
	"github.com/durgasflow/durgasflow/pkg/template"
)

const (
	SetNodeType      = "transform/set"
	TemplateNodeType = "transform/template"
)

// SetNode merges configured fields into the input object. String values are
// rendered as templates; the input itself is never modified.
type SetNode struct{}

func NewSetNode() protocol.NodeHandler {
	return &SetNode{}
}

func (n *SetNode) Type() string { return SetNodeType }

func (n *SetNode) Name() string { return "Set Fields" }

func (n *SetNode) Description() string {
	return "Adds or overwrites fields on the input object"
}

func (n *SetNode) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"fields": map[string]any{
				"type":                 "object",
				"description":          "Fields to set. String values support templating.",
				"additionalProperties": true,
			},
			"keep_input": map[string]any{
				"type":        "boolean",
				"description": "Start from the input object (default true)",
				"default":     true,
			},
		},
		"required": []string{"fields"},
	}
}

func (n *SetNode) Execute(_ context.Context, config map[string]any, input any, execCtx protocol.ExecutionContext) (any, error) {
	fields, ok := config["fields"].(map[string]any)
	if !ok {
		return nil, errors.New("missing required field 'fields'")
	}

	out := map[string]any{}

	keep, isBool := config["keep_input"].(bool)
	if !isBool || keep {
		if in, ok := input.(map[string]any); ok {
			maps.Copy(out, in)
		} else if input != nil {
			out["input"] = input
		}
	}

	data := template.ContextData(execCtx, input)

	for key, value := range fields {
		s, ok := value.(string)
		if !ok {
			out[key] = value

			continue
		}

		rendered, err := template.Render(s, data)
		if err != nil {
			return nil, fmt.Errorf("failed to render field '%s': %w", key, err)
		}

		out[key] = rendered
	}

	return out, nil
}

// TemplateNode replaces the input with the result of a template expression.
type TemplateNode struct{}

func NewTemplateNode() protocol.NodeHandler {
	return &TemplateNode{}
}

func (n *TemplateNode) Type() string { return TemplateNodeType }

func (n *TemplateNode) Name() string { return "Transform" }

func (n *TemplateNode) Description() string {
	return "Transforms data with a Go template expression. JSON, numbers and booleans in the output are decoded."
}

func (n *TemplateNode) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"type":        "string",
				"description": "Go template evaluated against input, trigger, vars and env",
				"examples": []string{
					`{"name": "{{.input.name}}", "total": {{len .input.items}}}`,
					`{{.trigger.body.amount}}`,
				},
			},
		},
		"required": []string{"expression"},
	}
}

func (n *TemplateNode) Execute(_ context.Context, config map[string]any, input any, execCtx protocol.ExecutionContext) (any, error) {
	expression, ok := config["expression"].(string)
	if !ok {
		return nil, errors.New("missing required field 'expression'")
	}

	result, err := template.RenderWithContext(expression, execCtx, input)
	if err != nil {
		return nil, fmt.Errorf("transformation failed: %w", err)
	}

	return result, nil
}
