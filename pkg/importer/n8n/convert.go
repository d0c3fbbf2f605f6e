package n8n

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"

	"github.com/durgasflow/durgasflow/pkg/models"
)

const (
	// UnsupportedNodeType is the placeholder for n8n nodes without a mapping.
	UnsupportedNodeType = "n8n/unsupported"

	// ConfidenceThreshold is the share of converted nodes below which an
	// import is flagged as unsupported.
	ConfidenceThreshold = 0.8

	stickyNoteType = "n8n-nodes-base.stickyNote"
)

// Stats summarizes a conversion.
type Stats struct {
	TotalNodes           int      `json:"total_nodes"`
	SupportedNodes       int      `json:"supported_nodes"`
	ConversionConfidence float64  `json:"conversion_confidence"`
	UnsupportedTypes     []string `json:"unsupported_types,omitempty"`

	// SkippedNodes counts sticky notes, which are not converted.
	SkippedNodes int `json:"skipped_nodes,omitempty"`
}

// LowConfidence reports whether the import should be flagged as unsupported.
func (s Stats) LowConfidence() bool {
	return s.ConversionConfidence < ConfidenceThreshold
}

// Conversion is the result of converting an export.
type Conversion struct {
	Graph       json.RawMessage
	Stats       Stats
	TriggerType models.TriggerType
}

type docSlot struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Link  *int   `json:"link,omitempty"`
	Links []int  `json:"links,omitempty"`
}

type docNode struct {
	ID         int            `json:"id"`
	Type       string         `json:"type"`
	Title      string         `json:"title"`
	Pos        []float64      `json:"pos"`
	Size       []float64      `json:"size"`
	Properties map[string]any `json:"properties"`
	Inputs     []*docSlot     `json:"inputs"`
	Outputs    []*docSlot     `json:"outputs"`
}

// Convert maps an export to a graph document. Nodes without a mapping are
// kept as UnsupportedNodeType placeholders carrying the original type and
// parameters, so the conversion never loses nodes.
func Convert(wf *Workflow) (*Conversion, error) {
	stats := Stats{}
	ids := make(map[string]int, len(wf.Nodes))
	nodes := make([]*docNode, 0, len(wf.Nodes))
	unsupported := map[string]bool{}

	for _, node := range wf.Nodes {
		if node.Type == stickyNoteType {
			stats.SkippedNodes++

			continue
		}

		stats.TotalNodes++

		m, ok := mapNode(node)
		if ok {
			stats.SupportedNodes++
		} else {
			unsupported[node.Type] = true
			m = placeholder(node)
		}

		id := len(nodes) + 1
		ids[node.Name] = id
		nodes = append(nodes, buildNode(id, node, m))
	}

	links := linkNodes(wf, ids, nodes)

	if stats.TotalNodes > 0 {
		stats.ConversionConfidence = math.Round(float64(stats.SupportedNodes)/float64(stats.TotalNodes)*100) / 100
	}

	stats.UnsupportedTypes = slices.Sorted(maps.Keys(unsupported))

	doc := map[string]any{
		"version": 0.4,
		"config":  map[string]any{},
		"nodes":   nodes,
		"links":   links,
		"groups":  []any{},
		"extra": map[string]any{
			"n8n_metadata": map[string]any{
				"workflow_id": wf.ID,
				"name":        wf.Name,
				"node_count":  len(wf.Nodes),
				"unsupported": stats.LowConfidence(),
			},
			"conversion_stats": stats,
		},
	}

	graph, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode graph document: %w", err)
	}

	return &Conversion{
		Graph:       graph,
		Stats:       stats,
		TriggerType: DetectTriggerType(wf),
	}, nil
}

func buildNode(id int, node Node, m mapped) *docNode {
	pos := []float64{0, 0}
	if len(node.Position) >= 2 {
		pos = []float64{node.Position[0], node.Position[1]}
	}

	inputs := make([]*docSlot, 0, m.inputs)
	for i := range m.inputs {
		name := "in"
		if m.inputs > 1 {
			name = "in" + strconv.Itoa(i)
		}

		inputs = append(inputs, &docSlot{Name: name, Type: "*"})
	}

	outputs := make([]*docSlot, 0, len(m.outputs))
	for _, name := range m.outputs {
		outputs = append(outputs, &docSlot{Name: name, Type: "*"})
	}

	props := m.props
	if props == nil {
		props = map[string]any{}
	}

	if node.Disabled {
		props["n8n_disabled"] = true
	}

	return &docNode{
		ID:         id,
		Type:       m.nodeType,
		Title:      node.Name,
		Pos:        pos,
		Size:       []float64{200, 80},
		Properties: props,
		Inputs:     inputs,
		Outputs:    outputs,
	}
}

// linkNodes turns the "main" connections into links and records them on
// the slots of both ends. Slots missing on either side are added.
func linkNodes(wf *Workflow, ids map[string]int, nodes []*docNode) [][]any {
	links := [][]any{}

	for _, source := range sortedKeys(wf.Connections) {
		sourceID, ok := ids[source]
		if !ok {
			continue
		}

		from := nodes[sourceID-1]

		for slot, targets := range wf.Connections[source]["main"] {
			for _, target := range targets {
				targetID, ok := ids[target.Node]
				if !ok {
					continue
				}

				to := nodes[targetID-1]
				linkID := len(links) + 1

				for len(from.Outputs) <= slot {
					from.Outputs = append(from.Outputs, &docSlot{Name: "out" + strconv.Itoa(len(from.Outputs)), Type: "*"})
				}

				for len(to.Inputs) <= target.Index {
					to.Inputs = append(to.Inputs, &docSlot{Name: "in" + strconv.Itoa(len(to.Inputs)), Type: "*"})
				}

				from.Outputs[slot].Links = append(from.Outputs[slot].Links, linkID)
				to.Inputs[target.Index].Link = &linkID

				links = append(links, []any{linkID, sourceID, slot, targetID, target.Index, "*"})
			}
		}
	}

	return links
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
