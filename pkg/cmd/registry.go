package cmd

import (
	"log/slog"

	"github.com/durgasflow/durgasflow/pkg/registry"
)

// NewRegistry builds the node registry with every built-in handler.
func NewRegistry(log *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(log)
	reg.RegisterDefaultNodes()

	if err := reg.HealthCheck(); err != nil {
		panic(err)
	}

	return reg
}
