// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"encoding/json"
	"strconv"

	"github.com/durgasflow/durgasflow/pkg/models"
)

// CreateTestNode creates a test WorkflowNode with default values that can be overridden.
func CreateTestNode(nodeID string, overrides ...func(*models.WorkflowNode)) *models.WorkflowNode {
	node := &models.WorkflowNode{
		NodeID:    nodeID,
		Type:      "action/log",
		Category:  models.CategoryTypeAction,
		Title:     "Node " + nodeID,
		Config:    map[string]any{"message": "test"},
		PositionX: 100,
		PositionY: 200,
		Inputs:    []models.Slot{{Name: "in"}},
		Outputs:   []models.Slot{{Name: "out"}},
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithTriggerNode configures the node as a manual trigger without inputs.
func WithTriggerNode() func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Type = "trigger/manual"
		n.Category = models.CategoryTypeTrigger
		n.Inputs = []models.Slot{}
	}
}

// WithType sets the node type and the category derived from it.
func WithType(nodeType string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Type = nodeType
		n.Category = models.CategoryForType(nodeType)
	}
}

// WithConfig sets the node configuration.
func WithConfig(config map[string]any) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Config = config
	}
}

// WithTitle sets the node title.
func WithTitle(title string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Title = title
	}
}

// WithOutputs replaces the declared output slots.
func WithOutputs(names ...string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Outputs = make([]models.Slot, 0, len(names))
		for _, name := range names {
			n.Outputs = append(n.Outputs, models.Slot{Name: name})
		}
	}
}

// CreateTestConnection links slot 0 of source to slot 0 of target.
func CreateTestConnection(sourceID, targetID string) *models.Connection {
	return &models.Connection{
		ID:           sourceID + "->" + targetID,
		SourceNodeID: sourceID,
		TargetNodeID: targetID,
	}
}

// CreateTestWorkflow creates a manual workflow over the given graph.
func CreateTestWorkflow(nodes []*models.WorkflowNode, conns []*models.Connection) *models.Workflow {
	wf := &models.Workflow{
		ID:          "wf-test",
		Name:        "Test Workflow",
		TriggerType: models.TriggerTypeManual,
		Status:      models.WorkflowStatusDraft,
		Nodes:       nodes,
		Connections: conns,
		Settings:    models.Settings{},
		Owner:       "user-1",
	}
	wf.GraphData = GraphDocument(nodes, conns)

	return wf
}

// GraphDocument renders nodes and connections in the editor's document format.
func GraphDocument(nodes []*models.WorkflowNode, conns []*models.Connection) json.RawMessage {
	docNodes := make([]map[string]any, 0, len(nodes))

	for _, n := range nodes {
		docNodes = append(docNodes, map[string]any{
			"id":         n.NodeID,
			"type":       n.Type,
			"title":      n.Title,
			"pos":        []float64{n.PositionX, n.PositionY},
			"properties": n.Config,
			"inputs":     n.Inputs,
			"outputs":    n.Outputs,
		})
	}

	links := make([][]any, 0, len(conns))
	for i, c := range conns {
		links = append(links, []any{strconv.Itoa(i + 1), c.SourceNodeID, c.SourceOutput, c.TargetNodeID, c.TargetInput, "*"})
	}

	doc, _ := json.Marshal(map[string]any{
		"version": 0.4,
		"config":  map[string]any{},
		"nodes":   docNodes,
		"links":   links,
		"groups":  []any{},
		"extra":   map[string]any{},
	})

	return doc
}
