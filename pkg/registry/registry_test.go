package registry

import (
	"context"
	"log/slog"
	"testing"

	"github.com/durgasflow/durgasflow/pkg/models"
	"github.com/durgasflow/durgasflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHandler struct {
	nodeType string
	name     string
}

func (s *stubHandler) Type() string           { return s.nodeType }
func (s *stubHandler) Name() string           { return s.name }
func (s *stubHandler) Description() string    { return "stub " + s.nodeType }
func (s *stubHandler) Schema() map[string]any { return map[string]any{"type": "object", "title": s.name} }

func (s *stubHandler) Execute(context.Context, map[string]any, any, protocol.ExecutionContext) (any, error) {
	return s.name, nil
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry(slog.Default())

	_, ok := r.Handler("action/stub")
	assert.False(t, ok)

	r.RegisterNode(&stubHandler{nodeType: "action/stub", name: "first"})

	h, ok := r.Handler("action/stub")
	require.True(t, ok)
	assert.Equal(t, "first", h.Name())

	// re-registering replaces
	r.RegisterNode(&stubHandler{nodeType: "action/stub", name: "second"})

	h, _ = r.Handler("action/stub")
	assert.Equal(t, "second", h.Name())
	assert.Equal(t, []string{"action/stub"}, r.Types())
}

func TestRegistry_Schema(t *testing.T) {
	r := NewRegistry(slog.Default())
	r.RegisterNode(&stubHandler{nodeType: "logic/stub", name: "Stub"})

	schema, err := r.Schema("logic/stub")
	require.NoError(t, err)
	assert.Equal(t, "Stub", schema["title"])

	_, err = r.Schema("logic/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestRegistry_AvailableAndByCategory(t *testing.T) {
	r := NewRegistry(slog.Default())
	r.RegisterNode(&stubHandler{nodeType: "trigger/stub", name: "T"})
	r.RegisterNode(&stubHandler{nodeType: "ai/stub", name: "A"})
	r.RegisterNode(&stubHandler{nodeType: "action/stub", name: "B"})

	available := r.Available()
	require.Len(t, available, 3)
	assert.Equal(t, NodeInfo{Type: "action/stub", Name: "B", Description: "stub action/stub", Category: models.CategoryTypeAction}, available[0])

	groups := r.ByCategory()
	assert.Len(t, groups[models.CategoryTypeTrigger], 1)
	assert.Len(t, groups[models.CategoryTypeAIAgent], 1)
	assert.Len(t, groups[models.CategoryTypeAction], 1)
}

func TestRegistry_HealthCheck(t *testing.T) {
	r := NewRegistry(slog.Default())
	require.Error(t, r.HealthCheck())

	r.RegisterNode(&stubHandler{nodeType: "action/stub"})
	assert.NoError(t, r.HealthCheck())
}
