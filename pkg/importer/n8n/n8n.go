// Package n8n converts n8n workflow exports into durgasflow graph documents.
package n8n

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrParse is returned when an export is not valid JSON.
var ErrParse = errors.New("failed to parse n8n workflow")

// ValidationError lists every problem found in an export.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "invalid n8n workflow: " + strings.Join(e.Errors, ", ")
}

// Workflow is the subset of an n8n export the converter reads.
type Workflow struct {
	ID          string                 `json:"id,omitempty"`
	Name        string                 `json:"name"`
	Nodes       []Node                 `json:"nodes"`
	Connections map[string]NodeOutputs `json:"connections"`
	Active      bool                   `json:"active,omitempty"`
	Tags        json.RawMessage        `json:"tags,omitempty"`
}

// NodeOutputs maps a connection type ("main") to the targets of each output
// slot of a node.
type NodeOutputs map[string][][]Target

// Target is the far end of an n8n connection.
type Target struct {
	Node  string `json:"node"`
	Type  string `json:"type"`
	Index int    `json:"index"`
}

type Node struct {
	ID          string          `json:"id,omitempty"`
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	TypeVersion float64         `json:"typeVersion,omitempty"`
	Position    []float64       `json:"position,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Disabled    bool            `json:"disabled,omitempty"`
}

// Parse decodes an export. It does not validate it, see Validate.
func Parse(data []byte) (*Workflow, error) {
	var wf Workflow

	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}

	return &wf, nil
}

// Import validates, parses and converts an export in one step. Syntax errors
// wrap ErrParse, validation failures are returned as *ValidationError.
func Import(data []byte) (*Workflow, *Conversion, error) {
	if !json.Valid(data) {
		return nil, nil, ErrParse
	}

	if errs := Validate(data); len(errs) > 0 {
		return nil, nil, &ValidationError{Errors: errs}
	}

	wf, err := Parse(data)
	if err != nil {
		return nil, nil, err
	}

	conversion, err := Convert(wf)
	if err != nil {
		return nil, nil, err
	}

	return wf, conversion, nil
}
