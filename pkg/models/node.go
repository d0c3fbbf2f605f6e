// Package models defines core node-based workflow models for graph execution
package models

import (
	"strings"
)

// CategoryType represents the category of node.
type CategoryType string

const (
	CategoryTypeTrigger CategoryType = "trigger"
	CategoryTypeAIAgent CategoryType = "ai_agent"
	CategoryTypeLogic   CategoryType = "logic"
	CategoryTypeDocsAI  CategoryType = "docsai"
	CategoryTypeAction  CategoryType = "action"
)

var categoryPrefixes = []struct {
	prefix   string
	category CategoryType
}{
	{"trigger/", CategoryTypeTrigger},
	{"ai/", CategoryTypeAIAgent},
	{"agent/", CategoryTypeAIAgent},
	{"logic/", CategoryTypeLogic},
	{"transform/", CategoryTypeLogic},
	{"docsai/", CategoryTypeDocsAI},
}

// CategoryForType derives a node category from the node type prefix.
// Unknown prefixes are actions.
func CategoryForType(nodeType string) CategoryType {
	for _, p := range categoryPrefixes {
		if strings.HasPrefix(nodeType, p.prefix) {
			return p.category
		}
	}

	return CategoryTypeAction
}

// Slot is a declared input or output of a node.
type Slot struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// WorkflowNode is one node of the projected graph. NodeID is the id from the
// graph document, not a storage key.
type WorkflowNode struct {
	NodeID    string         `json:"node_id"`
	Type      string         `json:"type"`
	Category  CategoryType   `json:"category"`
	Title     string         `json:"title"`
	PositionX float64        `json:"position_x"`
	PositionY float64        `json:"position_y"`
	Config    map[string]any `json:"config"`
	Inputs    []Slot         `json:"inputs"`
	Outputs   []Slot         `json:"outputs"`
}

// IsTriggerNode reports whether the node starts a run.
func (n *WorkflowNode) IsTriggerNode() bool {
	return n.Category == CategoryTypeTrigger
}

// DisplayName is the title, or the type when the node has no title.
func (n *WorkflowNode) DisplayName() string {
	if n.Title != "" {
		return n.Title
	}

	return n.Type
}

// OutputSlotCount is the number of output slots a node writes to. Nodes that
// declare none still write slot 0.
func (n *WorkflowNode) OutputSlotCount() int {
	if len(n.Outputs) == 0 {
		return 1
	}

	return len(n.Outputs)
}

// Connection is a directed edge from an output slot to an input slot.
type Connection struct {
	ID           string `json:"id"`
	SourceNodeID string `json:"source_node_id"`
	SourceOutput int    `json:"source_output"`
	TargetNodeID string `json:"target_node_id"`
	TargetInput  int    `json:"target_input"`
	Type         string `json:"type,omitempty"`
}
