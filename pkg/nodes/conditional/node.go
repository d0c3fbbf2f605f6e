// Package conditional provides the if node used for branching.
package conditional

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/durgasflow/durgasflow/pkg/protocol"
	"github.com/durgasflow/durgasflow/pkg/template"
	"github.com/tidwall/gjson"
)

const (
	NodeType = "logic/if"

	// SlotTrue and SlotFalse are the output slots the input is routed to.
	SlotTrue  = 0
	SlotFalse = 1
)

const (
	OperatorEquals    = "equals"
	OperatorNotEquals = "not_equals"
	OperatorContains  = "contains"
	OperatorGreater   = "gt"
	OperatorLess      = "lt"
	OperatorExists    = "exists"
)

// ConditionalNode routes its input to the true or the false slot.
//
// The condition is either a "condition" template evaluated for truthiness, or
// a "field" path into the input compared with "value" using "operator".
type ConditionalNode struct{}

func NewConditionalNode() protocol.NodeHandler {
	return &ConditionalNode{}
}

func (n *ConditionalNode) Type() string { return NodeType }

func (n *ConditionalNode) Name() string { return "If" }

func (n *ConditionalNode) Description() string {
	return "Evaluates a condition and routes the input to the true (slot 0) or false (slot 1) output"
}

func (n *ConditionalNode) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"condition": map[string]any{
				"type":        "string",
				"description": "Template evaluated for truthiness. Takes precedence over field.",
				"examples":    []string{`{{eq .input.status "active"}}`, `{{.vars.enabled}}`},
			},
			"field": map[string]any{
				"type":        "string",
				"description": "Dot path into the input, e.g. body.user.id",
			},
			"operator": map[string]any{
				"type":    "string",
				"enum":    []string{OperatorEquals, OperatorNotEquals, OperatorContains, OperatorGreater, OperatorLess, OperatorExists},
				"default": OperatorEquals,
			},
			"value": map[string]any{
				"description": "Value the field is compared with",
			},
		},
	}
}

func (n *ConditionalNode) Execute(_ context.Context, config map[string]any, input any, execCtx protocol.ExecutionContext) (any, error) {
	result, err := n.evaluate(config, input, execCtx)
	if err != nil {
		return nil, err
	}

	if result {
		return protocol.SlotOutputs{SlotTrue: input}, nil
	}

	return protocol.SlotOutputs{SlotFalse: input}, nil
}

func (n *ConditionalNode) evaluate(config map[string]any, input any, execCtx protocol.ExecutionContext) (bool, error) {
	if condition, ok := config["condition"].(string); ok {
		value, err := template.RenderWithContext(condition, execCtx, input)
		if err != nil {
			return false, fmt.Errorf("condition evaluation failed: %w", err)
		}

		return Truthy(value), nil
	}

	field, ok := config["field"].(string)
	if !ok {
		return false, errors.New("missing required field 'condition' or 'field'")
	}

	body, err := json.Marshal(input)
	if err != nil {
		return false, fmt.Errorf("input is not serializable: %w", err)
	}

	actual := gjson.GetBytes(body, field)

	operator, _ := config["operator"].(string)
	if operator == "" {
		operator = OperatorEquals
	}

	expected := config["value"]

	switch operator {
	case OperatorExists:
		return actual.Exists(), nil
	case OperatorEquals:
		return equal(actual, expected), nil
	case OperatorNotEquals:
		return !equal(actual, expected), nil
	case OperatorContains:
		return strings.Contains(actual.String(), fmt.Sprint(expected)), nil
	case OperatorGreater, OperatorLess:
		want, ok := number(expected)
		if !ok || actual.Type != gjson.Number {
			return false, nil
		}

		if operator == OperatorGreater {
			return actual.Float() > want, nil
		}

		return actual.Float() < want, nil
	default:
		return false, fmt.Errorf("unknown operator: %s", operator)
	}
}

func equal(actual gjson.Result, expected any) bool {
	if !actual.Exists() {
		return expected == nil
	}

	if actual.Type == gjson.Number {
		if want, ok := number(expected); ok {
			return actual.Float() == want
		}
	}

	if actual.Type == gjson.True || actual.Type == gjson.False {
		if want, ok := expected.(bool); ok {
			return actual.Bool() == want
		}
	}

	return actual.String() == fmt.Sprint(expected)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)

		return f, err == nil
	default:
		return 0, false
	}
}

// Truthy converts a rendered value to a boolean.
func Truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}

		return v != ""
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0.0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return false
	}
}
