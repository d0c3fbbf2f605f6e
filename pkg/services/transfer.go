package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/durgasflow/durgasflow/pkg/importer/n8n"
	"github.com/durgasflow/durgasflow/pkg/models"
	"github.com/tidwall/sjson"
)

// ExportVersion is the version stamped on exported workflows.
const ExportVersion = "1.0"

const (
	defaultImportName    = "Imported Workflow"
	defaultN8nImportName = "Imported N8n Workflow"
)

// N8nImportTags are attached to every workflow imported from n8n.
var N8nImportTags = []string{"n8n-import", "imported"}

// Export is the portable form of a workflow.
type Export struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	TriggerType models.TriggerType `json:"trigger_type"`
	GraphData   json.RawMessage    `json:"graph_data"`
	Tags        []string           `json:"tags"`
	Settings    models.Settings    `json:"settings"`
	Version     string             `json:"version"`
}

// Export returns the portable form of a workflow.
func (w *Workflow) Export(ctx context.Context, id string) (*Export, error) {
	workflow, err := w.FetchByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return &Export{
		Name:        workflow.Name,
		Description: workflow.Description,
		TriggerType: workflow.TriggerType,
		GraphData:   workflow.GraphData,
		Tags:        workflow.Tags,
		Settings:    workflow.Settings,
		Version:     ExportVersion,
	}, nil
}

// Import creates a draft workflow from an export document.
func (w *Workflow) Import(ctx context.Context, data []byte, owner string) (*models.Workflow, error) {
	var export Export
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, NewValidationError("Import", "INVALID_EXPORT", err.Error(), ErrInvalidExport)
	}

	if export.Name == "" {
		export.Name = defaultImportName
	}

	return w.Create(ctx, CreateWorkflowRequest{
		Name:        export.Name,
		Description: export.Description,
		TriggerType: export.TriggerType,
		GraphData:   export.GraphData,
		Tags:        export.Tags,
		Settings:    export.Settings,
		Owner:       owner,
	})
}

// N8nImport is the outcome of an n8n import.
type N8nImport struct {
	Workflow *models.Workflow `json:"workflow"`
	Stats    n8n.Stats        `json:"conversion_stats"`
}

// ImportN8n converts an n8n workflow document and stores it as a draft.
// Documents that fail validation are rejected with every problem listed.
// Documents with unsupported nodes are still imported.
func (w *Workflow) ImportN8n(ctx context.Context, data []byte, owner string) (*N8nImport, error) {
	source, conversion, err := n8n.Import(data)
	if err != nil {
		var verr *n8n.ValidationError
		if errors.As(err, &verr) || errors.Is(err, n8n.ErrParse) {
			return nil, NewValidationError("ImportN8n", "N8N_IMPORT_INVALID", err.Error(), errors.Join(ErrImportValidation, err))
		}

		return nil, fmt.Errorf("failed to convert n8n workflow: %w", err)
	}

	doc, err := sjson.SetBytes(conversion.Graph, "extra.n8n_metadata.imported_at", time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to stamp import metadata: %w", err)
	}

	name := source.Name
	if name == "" {
		name = defaultN8nImportName
	}

	stats := conversion.Stats

	workflow, err := w.Create(ctx, CreateWorkflowRequest{
		Name: name + " (N8n)",
		Description: fmt.Sprintf("Imported from n8n workflow. %d/%d nodes converted successfully.",
			stats.SupportedNodes, stats.TotalNodes),
		TriggerType: conversion.TriggerType,
		GraphData:   doc,
		Tags:        append([]string(nil), N8nImportTags...),
		Owner:       owner,
	})
	if err != nil {
		return nil, err
	}

	if stats.LowConfidence() {
		w.logger.WarnContext(ctx, "Imported n8n workflow with low conversion confidence",
			"workflow_id", workflow.ID, "confidence", stats.ConversionConfidence, "unsupported", stats.UnsupportedTypes)
	} else {
		w.logger.InfoContext(ctx, "Imported n8n workflow", "workflow_id", workflow.ID,
			"supported_nodes", stats.SupportedNodes, "total_nodes", stats.TotalNodes)
	}

	return &N8nImport{Workflow: workflow, Stats: stats}, nil
}
