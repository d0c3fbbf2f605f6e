package web

import "github.com/gofiber/fiber/v3"

// RegisterRoutes mounts every API endpoint on router.
func (h *APIHandlers) RegisterRoutes(router fiber.Router) {
	router.Get("/health", h.HealthCheck)
	router.Get("/stats", h.GetStats)

	w := router.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Post("/import", h.ImportWorkflow)
	w.Post("/import/n8n", h.ImportN8nWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Put("/:id", h.UpdateWorkflow)
	w.Patch("/:id", h.UpdateWorkflow)
	w.Delete("/:id", h.DeleteWorkflow)
	w.Get("/:id/graph", h.GetWorkflowGraph)
	w.Put("/:id/graph", h.SaveWorkflowGraph)
	w.Post("/:id/execute", h.ExecuteWorkflow)
	w.Post("/:id/activate", h.ActivateWorkflow)
	w.Post("/:id/deactivate", h.DeactivateWorkflow)
	w.Post("/:id/duplicate", h.DuplicateWorkflow)
	w.Get("/:id/export", h.ExportWorkflow)

	e := router.Group("/executions")
	e.Get("/", h.GetExecutions)
	e.Get("/:id", h.GetExecution)
	e.Get("/:id/logs", h.GetExecutionLogs)
	e.Post("/:id/cancel", h.CancelExecution)
	e.Post("/:id/retry", h.RetryExecution)

	n := router.Group("/nodes")
	n.Get("/", h.GetNodeTypes)
	n.Get("/:type/schema", h.GetNodeTypeSchema)

	router.Get("/webhooks/:workflowId/:path", h.TriggerWebhook)
	router.Post("/webhooks/:workflowId/:path", h.TriggerWebhook)
}
