// Package graph projects the editor's graph document into nodes and connections
// and computes the order in which they run.
package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/durgasflow/durgasflow/pkg/models"
	"github.com/tidwall/gjson"
)

// ErrInvalidDocument is returned when the graph document is not a JSON object.
var ErrInvalidDocument = errors.New("graph document is not a JSON object")

// GraphError describes a link or node that was dropped during projection.
type GraphError struct {
	Index  int
	Reason string
}

func (e GraphError) Error() string {
	return fmt.Sprintf("link %d: %s", e.Index, e.Reason)
}

// Projection is the relational view of a graph document.
type Projection struct {
	Nodes       []*models.WorkflowNode
	Connections []*models.Connection

	// Skipped lists the links and duplicate nodes that were dropped.
	Skipped []GraphError
}

// Project parses the nodes and links arrays of a graph document. Malformed
// links and links to unknown nodes are skipped, never fatal. When a node id
// appears twice the first occurrence is kept.
func Project(doc json.RawMessage) (*Projection, error) {
	if !gjson.ValidBytes(doc) {
		return nil, ErrInvalidDocument
	}

	root := gjson.ParseBytes(doc)
	if !root.IsObject() {
		return nil, ErrInvalidDocument
	}

	p := &Projection{
		Nodes:       []*models.WorkflowNode{},
		Connections: []*models.Connection{},
	}
	seen := map[string]bool{}

	for i, raw := range root.Get("nodes").Array() {
		node, ok := projectNode(raw)
		if !ok {
			p.Skipped = append(p.Skipped, GraphError{Index: i, Reason: "node without id"})

			continue
		}

		if seen[node.NodeID] {
			p.Skipped = append(p.Skipped, GraphError{Index: i, Reason: "duplicate node id " + node.NodeID})

			continue
		}

		seen[node.NodeID] = true
		p.Nodes = append(p.Nodes, node)
	}

	for i, raw := range root.Get("links").Array() {
		conn, err := projectLink(raw)
		if err != nil {
			p.Skipped = append(p.Skipped, GraphError{Index: i, Reason: err.Error()})

			continue
		}

		if !seen[conn.SourceNodeID] || !seen[conn.TargetNodeID] {
			p.Skipped = append(p.Skipped, GraphError{Index: i, Reason: "references unknown node"})

			continue
		}

		p.Connections = append(p.Connections, conn)
	}

	return p, nil
}

func projectNode(raw gjson.Result) (*models.WorkflowNode, bool) {
	id := raw.Get("id")
	if !id.Exists() || id.String() == "" {
		return nil, false
	}

	nodeType := raw.Get("type").String()
	title := raw.Get("title").String()

	if title == "" {
		title = nodeType
	}

	config := map[string]any{}
	if props, ok := raw.Get("properties").Value().(map[string]any); ok {
		config = props
	}

	pos := raw.Get("pos").Array()
	node := &models.WorkflowNode{
		NodeID:   id.String(),
		Type:     nodeType,
		Category: models.CategoryForType(nodeType),
		Title:    title,
		Config:   config,
		Inputs:   projectSlots(raw.Get("inputs")),
		Outputs:  projectSlots(raw.Get("outputs")),
	}

	if len(pos) >= 2 {
		node.PositionX = pos[0].Float()
		node.PositionY = pos[1].Float()
	}

	return node, true
}

func projectSlots(raw gjson.Result) []models.Slot {
	slots := []models.Slot{}

	for _, s := range raw.Array() {
		slots = append(slots, models.Slot{
			Name: s.Get("name").String(),
			Type: s.Get("type").String(),
		})
	}

	return slots
}

// projectLink accepts the array form [id, source, source_slot, target,
// target_slot, type] and the object form with origin_/target_ keys.
func projectLink(raw gjson.Result) (*models.Connection, error) {
	if raw.IsObject() {
		for _, key := range []string{"id", "origin_id", "origin_slot", "target_id", "target_slot"} {
			if !raw.Get(key).Exists() {
				return nil, fmt.Errorf("missing %s", key)
			}
		}

		return &models.Connection{
			ID:           raw.Get("id").String(),
			SourceNodeID: raw.Get("origin_id").String(),
			SourceOutput: int(raw.Get("origin_slot").Int()),
			TargetNodeID: raw.Get("target_id").String(),
			TargetInput:  int(raw.Get("target_slot").Int()),
			Type:         raw.Get("type").String(),
		}, nil
	}

	parts := raw.Array()
	if len(parts) < 6 {
		return nil, errors.New("malformed link, expected 6 elements, got " + strconv.Itoa(len(parts)))
	}

	return &models.Connection{
		ID:           parts[0].String(),
		SourceNodeID: parts[1].String(),
		SourceOutput: int(parts[2].Int()),
		TargetNodeID: parts[3].String(),
		TargetInput:  int(parts[4].Int()),
		Type:         parts[5].String(),
	}, nil
}
