package services

import (
	"strings"

	"github.com/durgasflow/durgasflow/pkg/models"
	"github.com/durgasflow/durgasflow/pkg/registry"
)

// NodeTypeSchema is the configuration schema of one node type.
type NodeTypeSchema struct {
	Type        string              `json:"type"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Category    models.CategoryType `json:"category"`
	Schema      map[string]any      `json:"schema"`
}

// Node exposes the catalogue of registered node types.
type Node struct {
	registry *registry.Registry
}

// NewNode creates a new node catalogue service.
func NewNode(registry *registry.Registry) *Node {
	return &Node{
		registry: registry,
	}
}

// ListNodeTypes returns every registered node type sorted by type.
func (n *Node) ListNodeTypes() []registry.NodeInfo {
	return n.registry.Available()
}

// ListNodeTypesByCategory groups the registered node types by category.
func (n *Node) ListNodeTypesByCategory() map[models.CategoryType][]registry.NodeInfo {
	return n.registry.ByCategory()
}

// NodeTypeSchema returns the schema of a node type. URL segments cannot
// carry "/", so "-" is accepted in its place ("action-log" for "action/log").
func (n *Node) NodeTypeSchema(nodeType string) (*NodeTypeSchema, error) {
	handler, ok := n.registry.Handler(nodeType)
	if !ok {
		nodeType = strings.Replace(nodeType, "-", "/", 1)
		handler, ok = n.registry.Handler(nodeType)
	}

	if !ok {
		return nil, &ServiceError{
			Op:      "NodeTypeSchema",
			Code:    "NODE_TYPE_NOT_FOUND",
			Message: "node type '" + nodeType + "' not registered",
			Err:     ErrNodeTypeNotFound,
		}
	}

	return &NodeTypeSchema{
		Type:        handler.Type(),
		Name:        handler.Name(),
		Description: handler.Description(),
		Category:    models.CategoryForType(handler.Type()),
		Schema:      handler.Schema(),
	}, nil
}
