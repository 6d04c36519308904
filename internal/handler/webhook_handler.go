package handler

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/mail-engine/internal/service"
)

type WebhookService interface {
	Ingest(ctx context.Context, provider string, payload []byte) (*service.IngestResult, error)
}

type WebhookHandler struct {
	service WebhookService
}

func NewWebhookHandler(service WebhookService) (*WebhookHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("webhook service is required")
	}
	return &WebhookHandler{service: service}, nil
}

func RegisterWebhookRoutes(router fiber.Router, service WebhookService) error {
	h, err := NewWebhookHandler(service)
	if err != nil {
		return err
	}

	router.Group("/v1").Post("/webhooks/:provider", h.Receive)
	return nil
}

// Receive acknowledges any payload that was recorded, even one it cannot interpret.
func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	// fiber reuses the request buffer after the handler returns.
	payload := append([]byte(nil), c.Body()...)

	result, err := h.service.Ingest(c.UserContext(), c.Params("provider"), payload)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(result)
}
