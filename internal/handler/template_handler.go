package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/mail-engine/internal/domain"
	"github.com/kursadbilgin/mail-engine/internal/service"
	"github.com/kursadbilgin/mail-engine/internal/template"
)

type TemplateService interface {
	RegisterTemplate(ctx context.Context, in service.TemplateInput) (*domain.Template, error)
	GetTemplate(ctx context.Context, id string) (*domain.Template, error)
	ListTemplates(ctx context.Context) ([]domain.Template, error)
	DeleteTemplate(ctx context.Context, id string) error
	RenderTemplate(ctx context.Context, id string, vars map[string]any) (*template.Result, error)
	ValidateTemplateVariables(ctx context.Context, id string, vars map[string]any) (*template.Validation, error)
}

type TemplateHandler struct {
	service TemplateService
}

func NewTemplateHandler(service TemplateService) (*TemplateHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("template service is required")
	}
	return &TemplateHandler{service: service}, nil
}

func RegisterTemplateRoutes(router fiber.Router, service TemplateService) error {
	h, err := NewTemplateHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/templates", h.CreateTemplate)
	v1.Get("/templates", h.ListTemplates)
	v1.Get("/templates/:id", h.GetTemplate)
	v1.Delete("/templates/:id", h.DeleteTemplate)
	v1.Post("/templates/:id/render", h.RenderTemplate)
	v1.Post("/templates/:id/validate", h.ValidateTemplate)

	return nil
}

type createTemplateRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Subject  string `json:"subject"`
	HTML     string `json:"html"`
	Markdown string `json:"markdown"`
	Text     string `json:"text"`
}

type variablesRequest struct {
	Data map[string]any `json:"data"`
}

type listTemplatesResponse struct {
	Data []domain.Template `json:"data"`
}

func (h *TemplateHandler) CreateTemplate(c *fiber.Ctx) error {
	var req createTemplateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	tpl, err := h.service.RegisterTemplate(c.UserContext(), service.TemplateInput{
		ID:       req.ID,
		Name:     req.Name,
		Subject:  req.Subject,
		HTML:     req.HTML,
		Markdown: req.Markdown,
		Text:     req.Text,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(tpl)
}

func (h *TemplateHandler) ListTemplates(c *fiber.Ctx) error {
	templates, err := h.service.ListTemplates(c.UserContext())
	if err != nil {
		return toHTTPError(err)
	}
	if templates == nil {
		templates = []domain.Template{}
	}
	return c.Status(fiber.StatusOK).JSON(listTemplatesResponse{Data: templates})
}

func (h *TemplateHandler) GetTemplate(c *fiber.Ctx) error {
	tpl, err := h.service.GetTemplate(c.UserContext(), templateID(c))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(tpl)
}

func (h *TemplateHandler) DeleteTemplate(c *fiber.Ctx) error {
	if err := h.service.DeleteTemplate(c.UserContext(), templateID(c)); err != nil {
		return toHTTPError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *TemplateHandler) RenderTemplate(c *fiber.Ctx) error {
	vars, err := parseVariables(c)
	if err != nil {
		return err
	}

	result, err := h.service.RenderTemplate(c.UserContext(), templateID(c), vars)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *TemplateHandler) ValidateTemplate(c *fiber.Ctx) error {
	vars, err := parseVariables(c)
	if err != nil {
		return err
	}

	result, err := h.service.ValidateTemplateVariables(c.UserContext(), templateID(c), vars)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

func templateID(c *fiber.Ctx) string {
	return strings.ToLower(strings.TrimSpace(c.Params("id")))
}

// parseVariables accepts an empty body as an empty variable bag.
func parseVariables(c *fiber.Ctx) (map[string]any, error) {
	if len(c.Body()) == 0 {
		return map[string]any{}, nil
	}

	var req variablesRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Data == nil {
		req.Data = map[string]any{}
	}
	return req.Data, nil
}
