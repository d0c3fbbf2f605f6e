// Package switchnode provides the switch node that routes its input by value.
package switchnode

import (
	"context"
	"errors"
	"fmt"

	"github.com/durgasflow/durgasflow/pkg/protocol"
	"github.com/durgasflow/durgasflow/pkg/template"
)

const NodeType = "logic/switch"

// SwitchNode renders "value" and sends the input to the slot of the first
// matching case. Case i maps to output slot i; the slot after the last case
// is the default.
type SwitchNode struct{}

func NewSwitchNode() protocol.NodeHandler {
	return &SwitchNode{}
}

func (n *SwitchNode) Type() string { return NodeType }

func (n *SwitchNode) Name() string { return "Switch" }

func (n *SwitchNode) Description() string {
	return "Routes the input to the output slot of the first case matching the value, or to the default slot"
}

func (n *SwitchNode) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"value": map[string]any{
				"type":        "string",
				"description": "Value to switch on. Supports templating.",
				"examples":    []string{"{{.input.type}}", "{{.trigger.method}}"},
			},
			"cases": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"value": map[string]any{"type": "string"},
					},
					"required": []string{"value"},
				},
			},
		},
		"required": []string{"value", "cases"},
	}
}

func (n *SwitchNode) Execute(_ context.Context, config map[string]any, input any, execCtx protocol.ExecutionContext) (any, error) {
	valueTemplate, ok := config["value"].(string)
	if !ok {
		return nil, errors.New("missing required field 'value'")
	}

	cases, err := parseCases(config["cases"])
	if err != nil {
		return nil, err
	}

	value, err := template.RenderString(valueTemplate, template.ContextData(execCtx, input))
	if err != nil {
		return nil, fmt.Errorf("value evaluation failed: %w", err)
	}

	for i, c := range cases {
		if c == value {
			return protocol.SlotOutputs{i: input}, nil
		}
	}

	execCtx.Logger().Debug("No switch case matched", "value", value)

	return protocol.SlotOutputs{len(cases): input}, nil
}

func parseCases(raw any) ([]string, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, errors.New("missing required field 'cases'")
	}

	cases := make([]string, 0, len(list))

	for i, item := range list {
		caseMap, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("case %d must be an object", i)
		}

		value, ok := caseMap["value"]
		if !ok {
			return nil, fmt.Errorf("case %d missing 'value'", i)
		}

		cases = append(cases, fmt.Sprint(value))
	}

	return cases, nil
}
