// Package merge provides the node that joins several inputs into one value.
package merge

import (
	"context"
	"fmt"
	"maps"

	"github.com/durgasflow/durgasflow/pkg/protocol"
)

const (
	NodeType = "logic/merge"

	ModeArray  = "array"
	ModeObject = "object"
	ModeFirst  = "first"
	ModeDeep   = "deep"

	defaultInputs = 2
)

// MergeNode reads its input slots and combines the values that were produced.
type MergeNode struct{}

func NewMergeNode() protocol.NodeHandler {
	return &MergeNode{}
}

func (n *MergeNode) Type() string { return NodeType }

func (n *MergeNode) Name() string { return "Merge" }

func (n *MergeNode) Description() string {
	return "Combines the values of several input slots into a list, an object keyed by slot, the first available value or one merged object"
}

func (n *MergeNode) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"inputs": map[string]any{
				"type":    "integer",
				"minimum": 1,
				"default": defaultInputs,
			},
			"mode": map[string]any{
				"type":    "string",
				"enum":    []string{ModeArray, ModeObject, ModeFirst, ModeDeep},
				"default": ModeArray,
			},
		},
	}
}

func (n *MergeNode) Execute(_ context.Context, config map[string]any, _ any, execCtx protocol.ExecutionContext) (any, error) {
	count := defaultInputs

	switch v := config["inputs"].(type) {
	case float64:
		count = int(v)
	case int:
		count = v
	}

	if count < 1 {
		return nil, fmt.Errorf("inputs must be at least 1, got %d", count)
	}

	mode, _ := config["mode"].(string)
	if mode == "" {
		mode = ModeArray
	}

	values := make([]any, 0, count)
	keyed := make(map[string]any, count)

	for slot := range count {
		v, ok := execCtx.Input(slot)
		if !ok {
			continue
		}

		values = append(values, v)
		keyed[fmt.Sprintf("input_%d", slot)] = v
	}

	switch mode {
	case ModeArray:
		return values, nil
	case ModeObject:
		return keyed, nil
	case ModeFirst:
		if len(values) == 0 {
			return nil, nil
		}

		return values[0], nil
	case ModeDeep:
		merged := map[string]any{}

		for _, v := range values {
			if m, ok := v.(map[string]any); ok {
				maps.Copy(merged, m)
			}
		}

		return merged, nil
	default:
		return nil, fmt.Errorf("unknown merge mode: %s", mode)
	}
}
