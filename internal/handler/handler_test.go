package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/mail-engine/internal/domain"
	"github.com/kursadbilgin/mail-engine/internal/observability"
	"github.com/kursadbilgin/mail-engine/internal/service"
	"github.com/kursadbilgin/mail-engine/internal/template"
	"github.com/kursadbilgin/mail-engine/internal/transport"
	"go.uber.org/zap"
)

type stubEmailService struct {
	sendFn         func(ctx context.Context, m *domain.Message) (*service.SendResult, error)
	sendTemplateFn func(ctx context.Context, req service.TemplateSend) (*service.SendResult, error)
	bulkFn         func(ctx context.Context, messages []domain.Message) (*service.BulkResult, error)
	getStatusFn    func(ctx context.Context, id string) (*domain.Message, error)
	statsFn        func(ctx context.Context) (*service.Stats, error)
}

func (s *stubEmailService) Send(ctx context.Context, m *domain.Message) (*service.SendResult, error) {
	if s.sendFn != nil {
		return s.sendFn(ctx, m)
	}
	return nil, errors.New("not implemented")
}

func (s *stubEmailService) SendTemplate(ctx context.Context, req service.TemplateSend) (*service.SendResult, error) {
	if s.sendTemplateFn != nil {
		return s.sendTemplateFn(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (s *stubEmailService) Bulk(ctx context.Context, messages []domain.Message) (*service.BulkResult, error) {
	if s.bulkFn != nil {
		return s.bulkFn(ctx, messages)
	}
	return nil, errors.New("not implemented")
}

func (s *stubEmailService) GetStatus(ctx context.Context, id string) (*domain.Message, error) {
	if s.getStatusFn != nil {
		return s.getStatusFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (s *stubEmailService) Stats(ctx context.Context) (*service.Stats, error) {
	if s.statsFn != nil {
		return s.statsFn(ctx)
	}
	return &service.Stats{}, nil
}

type stubTemplateService struct {
	registerFn func(ctx context.Context, in service.TemplateInput) (*domain.Template, error)
	getFn      func(ctx context.Context, id string) (*domain.Template, error)
	listFn     func(ctx context.Context) ([]domain.Template, error)
	deleteFn   func(ctx context.Context, id string) error
	renderFn   func(ctx context.Context, id string, vars map[string]any) (*template.Result, error)
	validateFn func(ctx context.Context, id string, vars map[string]any) (*template.Validation, error)
}

func (s *stubTemplateService) RegisterTemplate(ctx context.Context, in service.TemplateInput) (*domain.Template, error) {
	if s.registerFn != nil {
		return s.registerFn(ctx, in)
	}
	return nil, errors.New("not implemented")
}

func (s *stubTemplateService) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	if s.getFn != nil {
		return s.getFn(ctx, id)
	}
	return nil, domain.ErrTemplateNotFound
}

func (s *stubTemplateService) ListTemplates(ctx context.Context) ([]domain.Template, error) {
	if s.listFn != nil {
		return s.listFn(ctx)
	}
	return nil, nil
}

func (s *stubTemplateService) DeleteTemplate(ctx context.Context, id string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, id)
	}
	return nil
}

func (s *stubTemplateService) RenderTemplate(ctx context.Context, id string, vars map[string]any) (*template.Result, error) {
	if s.renderFn != nil {
		return s.renderFn(ctx, id, vars)
	}
	return nil, domain.ErrTemplateNotFound
}

func (s *stubTemplateService) ValidateTemplateVariables(ctx context.Context, id string, vars map[string]any) (*template.Validation, error) {
	if s.validateFn != nil {
		return s.validateFn(ctx, id, vars)
	}
	return nil, domain.ErrTemplateNotFound
}

type stubWebhookService struct {
	ingestFn func(ctx context.Context, provider string, payload []byte) (*service.IngestResult, error)
}

func (s *stubWebhookService) Ingest(ctx context.Context, provider string, payload []byte) (*service.IngestResult, error) {
	if s.ingestFn != nil {
		return s.ingestFn(ctx, provider, payload)
	}
	return &service.IngestResult{Received: true}, nil
}

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error { return p.err }

func newTestApp(t *testing.T, register func(app *fiber.App) error) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})
	app.Use(observability.CorrelationMiddleware())

	if err := register(app); err != nil {
		t.Fatalf("register routes error = %v", err)
	}
	return app
}

func performRequest(t *testing.T, app *fiber.App, method string, path string, body string) (*http.Response, []byte) {
	t.Helper()
	return doRequest(t, app, newJSONRequest(method, path, body))
}

func decodeBody(t *testing.T, body []byte) map[string]any {
	t.Helper()

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v, body=%s", err, string(body))
	}
	return parsed
}

func newJSONRequest(method string, path string, body string) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return req
}

func doRequest(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, []byte) {
	t.Helper()

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}
