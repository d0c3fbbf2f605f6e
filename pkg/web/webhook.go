package web

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/durgasflow/durgasflow/pkg/services"
	"github.com/gofiber/fiber/v3"
)

// WebhookSecretHeader carries the shared secret of a webhook workflow.
const WebhookSecretHeader = "X-Webhook-Secret"

func (h *APIHandlers) TriggerWebhook(c fiber.Ctx) error {
	execution, err := h.executionService.TriggerWebhook(
		c.Context(),
		c.Params("workflowId"),
		c.Params("path"),
		c.Get(WebhookSecretHeader),
		webhookTriggerData(c),
	)

	switch {
	case errors.Is(err, services.ErrWebhookNotFound):
		return c.Status(fiber.StatusNotFound).JSON(WebhookResponse{Error: "Workflow not found or inactive"})
	case errors.Is(err, services.ErrWebhookSecretMismatch):
		return c.Status(fiber.StatusForbidden).JSON(WebhookResponse{Error: "Invalid webhook secret"})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(WebhookResponse{Error: err.Error()})
	}

	return c.JSON(WebhookResponse{
		Success:     true,
		ExecutionID: execution.ID,
		Status:      execution.Status,
	})
}

// webhookTriggerData describes the inbound request. POST bodies are decoded as
// JSON or form data; a JSON body that fails to parse is kept as text.
func webhookTriggerData(c fiber.Ctx) map[string]any {
	headers := map[string]any{}
	for key, values := range c.GetReqHeaders() {
		headers[key] = strings.Join(values, ", ")
	}

	query := map[string]any{}
	for key, value := range c.Queries() {
		query[key] = value
	}

	data := map[string]any{
		"method":       c.Method(),
		"headers":      headers,
		"query_params": query,
	}

	if c.Method() != fiber.MethodPost {
		return data
	}

	body := c.Body()

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		var decoded any
		if err := json.Unmarshal(body, &decoded); err != nil {
			data["body"] = strings.ToValidUTF8(string(body), "\uFFFD")
		} else {
			data["body"] = decoded
		}

		return data
	}

	form := map[string]any{}
	c.Request().PostArgs().VisitAll(func(key, value []byte) {
		form[string(key)] = string(value)
	})

	data["body"] = form

	return data
}
