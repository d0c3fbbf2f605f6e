// Package registry maps node type identifiers to their handlers.
package registry

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/durgasflow/durgasflow/pkg/models"
	"github.com/durgasflow/durgasflow/pkg/protocol"
)

// NodeInfo describes a registered node type.
type NodeInfo struct {
	Type        string              `json:"type"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Category    models.CategoryType `json:"category"`
}

type Registry struct {
	logger   *slog.Logger
	mu       sync.RWMutex
	handlers map[string]protocol.NodeHandler
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:   log.With("module", "registry"),
		handlers: make(map[string]protocol.NodeHandler),
	}
}

// RegisterNode adds a handler, replacing any handler of the same type.
func (r *Registry) RegisterNode(handler protocol.NodeHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[handler.Type()]; exists {
		r.logger.Warn("Replacing node handler", "type", handler.Type())
	}

	r.handlers[handler.Type()] = handler
}

// Handler returns the handler for a node type.
func (r *Registry) Handler(nodeType string) (protocol.NodeHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[nodeType]

	return h, ok
}

// Schema returns the configuration schema of a node type.
func (r *Registry) Schema(nodeType string) (map[string]any, error) {
	h, ok := r.Handler(nodeType)
	if !ok {
		return nil, fmt.Errorf("node type '%s' not registered", nodeType)
	}

	return h.Schema(), nil
}

// Types returns the registered node types sorted by name.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Sorted(maps.Keys(r.handlers))
}

// Available returns metadata of every registered node type sorted by type.
func (r *Registry) Available() []NodeInfo {
	types := r.Types()
	out := make([]NodeInfo, 0, len(types))

	for _, t := range types {
		h, _ := r.Handler(t)
		out = append(out, NodeInfo{
			Type:        t,
			Name:        h.Name(),
			Description: h.Description(),
			Category:    models.CategoryForType(t),
		})
	}

	return out
}

// ByCategory groups Available by node category.
func (r *Registry) ByCategory() map[models.CategoryType][]NodeInfo {
	out := map[models.CategoryType][]NodeInfo{}
	for _, info := range r.Available() {
		out[info.Category] = append(out[info.Category], info)
	}

	return out
}

// HealthCheck reports an error when no handlers are registered.
func (r *Registry) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.handlers) == 0 {
		return fmt.Errorf("no node handlers registered")
	}

	return nil
}
