// Package trigger provides the entry nodes of a workflow graph.
package trigger

import (
	"context"

	"github.com/durgasflow/durgasflow/pkg/protocol"
)

// TriggerNode emits the payload a run was started with. Its unconnected
// input resolves to the trigger payload, so Execute only passes it on.
type TriggerNode struct {
	nodeType    string
	name        string
	description string
	properties  map[string]any
}

func (n *TriggerNode) Type() string        { return n.nodeType }
func (n *TriggerNode) Name() string        { return n.name }
func (n *TriggerNode) Description() string { return n.description }

func (n *TriggerNode) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": n.properties,
	}
}

// Execute returns the trigger payload. When the node input is wired to
// another node, that value wins.
func (n *TriggerNode) Execute(_ context.Context, _ map[string]any, input any, execCtx protocol.ExecutionContext) (any, error) {
	if input != nil {
		return input, nil
	}

	return execCtx.TriggerData(), nil
}

// NewManualTriggerNode creates the trigger used by manual runs.
func NewManualTriggerNode() protocol.NodeHandler {
	return &TriggerNode{
		nodeType:    "trigger/manual",
		name:        "Manual Trigger",
		description: "Starts the workflow when it is executed by hand or through the API",
		properties:  map[string]any{},
	}
}

// NewWebhookTriggerNode creates the trigger fed by incoming webhook requests.
func NewWebhookTriggerNode() protocol.NodeHandler {
	return &TriggerNode{
		nodeType:    "trigger/webhook",
		name:        "Webhook Trigger",
		description: "Starts the workflow when an HTTP request hits the workflow webhook. Emits method, headers, query_params and body.",
		properties: map[string]any{
			"method": map[string]any{
				"type":        "string",
				"description": "Expected HTTP method",
				"enum":        []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
				"default":     "POST",
			},
		},
	}
}

// NewScheduleTriggerNode creates the trigger fired by the cron scheduler.
func NewScheduleTriggerNode() protocol.NodeHandler {
	return &TriggerNode{
		nodeType:    "trigger/schedule",
		name:        "Schedule Trigger",
		description: "Starts the workflow on the cron schedule of the workflow",
		properties: map[string]any{
			"cron": map[string]any{
				"type":        "string",
				"description": "Cron expression (minute hour day month weekday)",
				"examples":    []string{"0 * * * *", "*/5 * * * *"},
			},
		},
	}
}

// NewEventTriggerNode creates the trigger for externally published events.
func NewEventTriggerNode() protocol.NodeHandler {
	return &TriggerNode{
		nodeType:    "trigger/event",
		name:        "Event Trigger",
		description: "Starts the workflow when an event is delivered for it",
		properties: map[string]any{
			"event_type": map[string]any{
				"type":        "string",
				"description": "Name of the event this trigger listens to",
			},
		},
	}
}
