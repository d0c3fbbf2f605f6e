package n8n

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

const workflowSchema = `{
  "type": "object",
  "required": ["nodes"],
  "properties": {
    "name": {"type": "string"},
    "nodes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "type"],
        "properties": {
          "id": {"type": "string"},
          "name": {"type": "string", "minLength": 1},
          "type": {"type": "string", "minLength": 1},
          "typeVersion": {"type": "number"},
          "position": {"type": "array", "items": {"type": "number"}, "minItems": 2},
          "parameters": {"type": "object"},
          "disabled": {"type": "boolean"}
        }
      }
    },
    "connections": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "additionalProperties": {
          "type": "array",
          "items": {
            "type": ["array", "null"],
            "items": {
              "type": "object",
              "required": ["node"],
              "properties": {
                "node": {"type": "string"},
                "type": {"type": "string"},
                "index": {"type": "integer", "minimum": 0}
              }
            }
          }
        }
      }
    }
  }
}`

var schema = mustSchema(workflowSchema)

func mustSchema(s string) *gojsonschema.Schema {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Errorf("invalid n8n workflow schema: %w", err))
	}

	return compiled
}

// Validate checks an export and returns every problem found. An empty result
// means the export can be converted.
func Validate(data []byte) []string {
	if !json.Valid(data) {
		return []string{"workflow is not valid JSON"}
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return []string{err.Error()}
	}

	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}

		return errs
	}

	wf, err := Parse(data)
	if err != nil {
		return []string{err.Error()}
	}

	return checkReferences(wf)
}

// checkReferences finds duplicate node names and connections to nodes that
// do not exist. n8n connects nodes by name.
func checkReferences(wf *Workflow) []string {
	var errs []string

	names := make(map[string]bool, len(wf.Nodes))

	for _, node := range wf.Nodes {
		if names[node.Name] {
			errs = append(errs, fmt.Sprintf("duplicate node name %q", node.Name))
		}

		names[node.Name] = true
	}

	for _, source := range sortedKeys(wf.Connections) {
		if !names[source] {
			errs = append(errs, fmt.Sprintf("connection from unknown node %q", source))

			continue
		}

		outputs := wf.Connections[source]

		for _, kind := range sortedKeys(outputs) {
			for _, targets := range outputs[kind] {
				for _, target := range targets {
					if !names[target.Node] {
						errs = append(errs, fmt.Sprintf("connection from %q to unknown node %q", source, target.Node))
					}
				}
			}
		}
	}

	return errs
}
