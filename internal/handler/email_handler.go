package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/mail-engine/internal/domain"
	"github.com/kursadbilgin/mail-engine/internal/service"
)

type EmailService interface {
	Send(ctx context.Context, m *domain.Message) (*service.SendResult, error)
	SendTemplate(ctx context.Context, req service.TemplateSend) (*service.SendResult, error)
	Bulk(ctx context.Context, messages []domain.Message) (*service.BulkResult, error)
	GetStatus(ctx context.Context, id string) (*domain.Message, error)
	Stats(ctx context.Context) (*service.Stats, error)
}

type EmailHandler struct {
	service EmailService
}

func NewEmailHandler(service EmailService) (*EmailHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("email service is required")
	}
	return &EmailHandler{service: service}, nil
}

func RegisterEmailRoutes(router fiber.Router, service EmailService) error {
	h, err := NewEmailHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/emails", h.SendEmail)
	v1.Post("/emails/template", h.SendTemplate)
	v1.Post("/emails/bulk", h.SendBulk)
	v1.Get("/emails/:id", h.GetEmail)
	v1.Get("/stats", h.GetStats)

	return nil
}

// addressList accepts a single address string or an array of addresses.
type addressList []string

func (a *addressList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var single string
		if err := json.Unmarshal(data, &single); err != nil {
			return err
		}
		*a = addressList{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*a = many
	return nil
}

type attachmentRequest struct {
	Filename    string `json:"filename"`
	Content     string `json:"content"`
	ContentType string `json:"contentType"`
}

type sendEmailRequest struct {
	To           addressList         `json:"to"`
	CC           addressList         `json:"cc"`
	BCC          addressList         `json:"bcc"`
	From         string              `json:"from"`
	ReplyTo      string              `json:"replyTo"`
	Subject      string              `json:"subject"`
	HTML         string              `json:"html"`
	Text         string              `json:"text"`
	Template     string              `json:"template"`
	TemplateData map[string]any      `json:"templateData"`
	Attachments  []attachmentRequest `json:"attachments"`
	Tags         []string            `json:"tags"`
	Metadata     map[string]string   `json:"metadata"`
	Headers      map[string]string   `json:"headers"`
	ScheduledAt  string              `json:"scheduledAt"`
}

type sendTemplateRequest struct {
	To          addressList         `json:"to"`
	CC          addressList         `json:"cc"`
	BCC         addressList         `json:"bcc"`
	TemplateID  string              `json:"templateId"`
	Data        map[string]any      `json:"data"`
	From        string              `json:"from"`
	ReplyTo     string              `json:"replyTo"`
	Tags        []string            `json:"tags"`
	Metadata    map[string]string   `json:"metadata"`
	Attachments []attachmentRequest `json:"attachments"`
	ScheduledAt string              `json:"scheduledAt"`
}

type bulkRequest struct {
	Messages []sendEmailRequest `json:"messages"`
}

type sendResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Provider string `json:"provider,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (h *EmailHandler) SendEmail(c *fiber.Ctx) error {
	var req sendEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	message, err := requestToMessage(req)
	if err != nil {
		return toHTTPError(err)
	}

	result, err := h.service.Send(c.UserContext(), &message)
	return respondSend(c, result, err)
}

func (h *EmailHandler) SendTemplate(c *fiber.Ctx) error {
	var req sendTemplateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	scheduledAt, err := parseScheduledAt(req.ScheduledAt)
	if err != nil {
		return toHTTPError(err)
	}

	result, err := h.service.SendTemplate(c.UserContext(), service.TemplateSend{
		To:          req.To,
		CC:          req.CC,
		BCC:         req.BCC,
		TemplateID:  strings.TrimSpace(req.TemplateID),
		Data:        req.Data,
		From:        req.From,
		ReplyTo:     req.ReplyTo,
		Tags:        req.Tags,
		Metadata:    req.Metadata,
		Attachments: toAttachments(req.Attachments),
		ScheduledAt: scheduledAt,
	})
	return respondSend(c, result, err)
}

func (h *EmailHandler) SendBulk(c *fiber.Ctx) error {
	var req bulkRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	messages := make([]domain.Message, 0, len(req.Messages))
	for i, item := range req.Messages {
		m, err := requestToMessage(item)
		if err != nil {
			return toHTTPError(fmt.Errorf("message %d: %w", i, err))
		}
		messages = append(messages, m)
	}

	result, err := h.service.Bulk(c.UserContext(), messages)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(result)
}

func (h *EmailHandler) GetEmail(c *fiber.Ctx) error {
	message, err := h.service.GetStatus(c.UserContext(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(message)
}

func (h *EmailHandler) GetStats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(c.UserContext())
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(stats)
}

// respondSend reports a failed dispatch with the stored record id so callers can
// poll it later.
func respondSend(c *fiber.Ctx, result *service.SendResult, err error) error {
	if err != nil {
		if result == nil {
			return toHTTPError(err)
		}
		return c.Status(statusFor(err)).JSON(sendResponse{
			ID:       result.ID,
			Status:   result.Status.String(),
			Provider: result.Provider,
			Error:    err.Error(),
		})
	}

	code := fiber.StatusOK
	if result.Status == domain.StatusScheduled || result.Status == domain.StatusPending {
		code = fiber.StatusAccepted
	}
	return c.Status(code).JSON(sendResponse{
		ID:       result.ID,
		Status:   result.Status.String(),
		Provider: result.Provider,
	})
}

func requestToMessage(req sendEmailRequest) (domain.Message, error) {
	scheduledAt, err := parseScheduledAt(req.ScheduledAt)
	if err != nil {
		return domain.Message{}, err
	}

	return domain.Message{
		To:           req.To,
		CC:           req.CC,
		BCC:          req.BCC,
		From:         req.From,
		ReplyTo:      req.ReplyTo,
		Subject:      req.Subject,
		HTML:         req.HTML,
		Text:         req.Text,
		Template:     strings.TrimSpace(req.Template),
		TemplateData: req.TemplateData,
		Attachments:  toAttachments(req.Attachments),
		Tags:         req.Tags,
		Metadata:     req.Metadata,
		Headers:      req.Headers,
		ScheduledAt:  scheduledAt,
	}, nil
}

func toAttachments(in []attachmentRequest) []domain.Attachment {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.Attachment, 0, len(in))
	for _, a := range in {
		out = append(out, domain.Attachment{
			Filename:    a.Filename,
			Content:     a.Content,
			ContentType: a.ContentType,
		})
	}
	return out
}

func parseScheduledAt(value string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: scheduledAt must be RFC3339", domain.ErrValidation)
	}
	return &t, nil
}
