package web

import (
	"strconv"

	"github.com/durgasflow/durgasflow/pkg/models"
	"github.com/durgasflow/durgasflow/pkg/persistence"
	"github.com/durgasflow/durgasflow/pkg/services"
	"github.com/gofiber/fiber/v3"
)

func (h *APIHandlers) ExecuteWorkflow(c fiber.Ctx) error {
	var req ExecuteWorkflowRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	execution, err := h.executionService.Execute(c.Context(), services.ExecuteRequest{
		WorkflowID:  c.Params("id"),
		TriggerData: req.TriggerData,
		TriggeredBy: req.TriggeredBy,
		Async:       req.Async,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(ExecuteWorkflowResponse{
		ExecutionID: execution.ID,
		Status:      execution.Status,
		Async:       req.Async,
	})
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	filter := persistence.ExecutionFilter{
		WorkflowID: c.Query("workflow_id"),
		Status:     models.ExecutionStatus(c.Query("status")),
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			return badRequest(c, "Invalid query parameters: limit must be a non-negative integer")
		}

		filter.Limit = limit
	}

	executions, err := h.executionService.ListExecutions(c.Context(), filter)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"executions":  executions,
		"total_count": len(executions),
	})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, err := h.executionService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) GetExecutionLogs(c fiber.Ctx) error {
	logs, err := h.executionService.Logs(c.Context(), c.Params("id"), models.LogLevel(c.Query("level")))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"execution_id": c.Params("id"),
		"logs":         logs,
	})
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	result, err := h.executionService.Cancel(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) RetryExecution(c fiber.Ctx) error {
	var req RetryExecutionRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	execution, err := h.executionService.Retry(c.Context(), c.Params("id"), req.TriggeredBy)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(execution)
}
