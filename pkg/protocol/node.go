// Package protocol defines the interfaces and contracts for pluggable nodes.
package protocol

import (
	"context"
	"log/slog"
)

// NodeHandler implements the behaviour of one node type.
type NodeHandler interface {
	// Type returns the node type identifier, e.g. "action/log"
	Type() string

	// Name returns the human-readable name for this node type
	Name() string

	// Description returns a description of what this node does
	Description() string

	// Schema returns the JSON schema for configuring this node
	Schema() map[string]any

	// Execute runs the node. config is the node's property bag and input the
	// value resolved for input slot 0, nil when unconnected or not produced.
	// The returned value is written to every declared output slot unless it
	// is a SlotOutputs.
	Execute(ctx context.Context, config map[string]any, input any, execCtx ExecutionContext) (any, error)
}

// SlotOutputs lets a handler write different values to different output
// slots. Slots not present in the map produce no output.
type SlotOutputs map[int]any

// ExecutionContext is the per-run state a handler may read and write.
type ExecutionContext interface {
	ExecutionID() string
	WorkflowID() string

	// TriggerData is the immutable trigger payload of the run.
	TriggerData() map[string]any

	// Input resolves the value connected to one of the current node's input slots.
	Input(slot int) (any, bool)

	Variable(name string) (any, bool)
	SetVariable(name string, value any)
	Variables() map[string]any

	// Logger is scoped to the run and the current node.
	Logger() *slog.Logger
}
