// Package web provides HTTP handlers and REST API endpoints for workflow management.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/durgasflow/durgasflow/pkg/models"
	"github.com/durgasflow/durgasflow/pkg/registry"
	"github.com/durgasflow/durgasflow/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	workflowService  *services.Workflow
	executionService *services.Execution
	nodeService      *services.Node
	validator        *validator.Validate
	registry         *registry.Registry
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	executionService *services.Execution,
	nodeService *services.Node,
	validator *validator.Validate,
	registry *registry.Registry,
) *APIHandlers {
	return &APIHandlers{
		workflowService:  workflowService,
		executionService: executionService,
		nodeService:      nodeService,
		validator:        validator,
		registry:         registry,
	}
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.workflowService.ListWorkflows(c.Context(), services.ListWorkflowsRequest{
		Owner:       c.Query("owner"),
		Status:      models.WorkflowStatus(c.Query("status")),
		TriggerType: models.TriggerType(c.Query("trigger_type")),
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows":   workflows,
		"total_count": len(workflows),
	})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.workflowService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := "ok", true
	if err := h.registry.HealthCheck(); err != nil {
		registryCheck, regOk = err.Error(), false
	}

	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Durgasflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		message = "Durgasflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow, err := h.workflowService.Create(c.Context(), services.CreateWorkflowRequest{
		Name:         req.Name,
		Description:  req.Description,
		TriggerType:  models.TriggerType(req.TriggerType),
		GraphData:    req.GraphData,
		Tags:         req.Tags,
		Settings:     req.Settings,
		ScheduleCron: req.ScheduleCron,
		Owner:        req.Owner,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(workflow)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	update := services.UpdateWorkflowRequest{
		Name:         req.Name,
		Description:  req.Description,
		GraphData:    req.GraphData,
		Tags:         req.Tags,
		Settings:     req.Settings,
		ScheduleCron: req.ScheduleCron,
	}

	if req.TriggerType != nil {
		triggerType := models.TriggerType(*req.TriggerType)
		update.TriggerType = &triggerType
	}

	workflow, err := h.workflowService.Update(c.Context(), c.Params("id"), update)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	if err := h.workflowService.Delete(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetWorkflowGraph(c fiber.Ctx) error {
	workflow, err := h.workflowService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	graph := workflow.GraphData
	if len(graph) == 0 {
		graph = models.EmptyGraph()
	}

	return c.JSON(GraphResponse{WorkflowID: workflow.ID, GraphData: graph})
}

func (h *APIHandlers) SaveWorkflowGraph(c fiber.Ctx) error {
	var req SaveGraphRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow, err := h.workflowService.SaveGraph(c.Context(), c.Params("id"), req.GraphData)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(GraphResponse{WorkflowID: workflow.ID, GraphData: workflow.GraphData, Saved: true})
}

func (h *APIHandlers) ActivateWorkflow(c fiber.Ctx) error {
	workflow, err := h.workflowService.Activate(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(ActivationResponse{Status: "activated", IsActive: workflow.IsActive})
}

func (h *APIHandlers) DeactivateWorkflow(c fiber.Ctx) error {
	workflow, err := h.workflowService.Deactivate(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(ActivationResponse{Status: "deactivated", IsActive: workflow.IsActive})
}

func (h *APIHandlers) DuplicateWorkflow(c fiber.Ctx) error {
	workflow, err := h.workflowService.Duplicate(c.Context(), c.Params("id"), c.Query("owner"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(workflow)
}

func (h *APIHandlers) ExportWorkflow(c fiber.Ctx) error {
	export, err := h.workflowService.Export(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(export)
}

func (h *APIHandlers) ImportWorkflow(c fiber.Ctx) error {
	workflow, err := h.workflowService.Import(c.Context(), c.Body(), c.Query("owner"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(workflow)
}

func (h *APIHandlers) ImportN8nWorkflow(c fiber.Ctx) error {
	result, err := h.workflowService.ImportN8n(c.Context(), c.Body(), c.Query("owner"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *APIHandlers) GetStats(c fiber.Ctx) error {
	stats, err := h.workflowService.Stats(c.Context(), c.Query("owner"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(stats)
}

func (h *APIHandlers) GetNodeTypes(c fiber.Ctx) error {
	if byCategory, _ := strconv.ParseBool(c.Query("by_category")); byCategory {
		return c.JSON(fiber.Map{"categories": h.nodeService.ListNodeTypesByCategory()})
	}

	return c.JSON(fiber.Map{"nodes": h.nodeService.ListNodeTypes()})
}

func (h *APIHandlers) GetNodeTypeSchema(c fiber.Ctx) error {
	schema, err := h.nodeService.NodeTypeSchema(c.Params("type"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(schema)
}
