package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/mail-engine/internal/domain"
	"github.com/kursadbilgin/mail-engine/internal/observability"
	"github.com/kursadbilgin/mail-engine/internal/service"
)

func newEmailTestApp(t *testing.T, svc EmailService) *fiber.App {
	t.Helper()
	return newTestApp(t, func(app *fiber.App) error {
		return RegisterEmailRoutes(app, svc)
	})
}

func TestEmailIntegration_SendEmail(t *testing.T) {
	t.Parallel()

	var gotCorrelation string
	svc := &stubEmailService{
		sendFn: func(ctx context.Context, m *domain.Message) (*service.SendResult, error) {
			gotCorrelation, _ = observability.CorrelationIDFromContext(ctx)
			if len(m.To) != 1 || m.To[0] != "a@x.com" {
				t.Fatalf("To = %v, want [a@x.com]", m.To)
			}
			if m.Subject != "Hi" || m.HTML != "<p>Hi</p>" {
				t.Fatalf("message = %+v, want subject and html", m)
			}
			return &service.SendResult{ID: "msg-1", Status: domain.StatusSent, Provider: "resend"}, nil
		},
	}
	app := newEmailTestApp(t, svc)

	req := newJSONRequest(http.MethodPost, "/v1/emails", `{"to":"a@x.com","subject":"Hi","html":"<p>Hi</p>"}`)
	req.Header.Set(observability.HeaderCorrelationID, "corr-42")
	resp, body := doRequest(t, app, req)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	parsed := decodeBody(t, body)
	if parsed["id"] != "msg-1" || parsed["status"] != "sent" || parsed["provider"] != "resend" {
		t.Fatalf("response = %v, want sent via resend", parsed)
	}
	if gotCorrelation != "corr-42" {
		t.Fatalf("correlation id = %q, want corr-42", gotCorrelation)
	}
	if resp.Header.Get(observability.HeaderCorrelationID) != "corr-42" {
		t.Fatalf("response correlation header = %q", resp.Header.Get(observability.HeaderCorrelationID))
	}
}

func TestEmailIntegration_SendEmailAddressList(t *testing.T) {
	t.Parallel()

	var got *domain.Message
	app := newEmailTestApp(t, &stubEmailService{
		sendFn: func(ctx context.Context, m *domain.Message) (*service.SendResult, error) {
			got = m
			return &service.SendResult{ID: "msg-1", Status: domain.StatusSent}, nil
		},
	})

	resp, body := performRequest(t, app, http.MethodPost, "/v1/emails",
		`{"to":["a@x.com","b@x.com"],"cc":"c@x.com","subject":"Hi","text":"hello","tags":["t1"],"metadata":{"k":"v"}}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	if len(got.To) != 2 || got.To[1] != "b@x.com" || len(got.CC) != 1 || got.CC[0] != "c@x.com" {
		t.Fatalf("recipients = to %v cc %v", got.To, got.CC)
	}
	if got.Metadata["k"] != "v" || got.Tags[0] != "t1" {
		t.Fatalf("tags/metadata not passed through: %+v", got)
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/emails", `{"to":42,"subject":"Hi"}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for non-address to", resp.StatusCode)
	}
}

func TestEmailIntegration_SendEmailScheduled(t *testing.T) {
	t.Parallel()

	want, _ := time.Parse(time.RFC3339, "2026-03-14T11:00:00Z")
	app := newEmailTestApp(t, &stubEmailService{
		sendFn: func(ctx context.Context, m *domain.Message) (*service.SendResult, error) {
			if m.ScheduledAt == nil || !m.ScheduledAt.Equal(want) {
				t.Fatalf("ScheduledAt = %v, want %v", m.ScheduledAt, want)
			}
			return &service.SendResult{ID: "msg-2", Status: domain.StatusScheduled}, nil
		},
	})

	resp, body := performRequest(t, app, http.MethodPost, "/v1/emails",
		`{"to":"a@x.com","subject":"Later","text":"x","scheduledAt":"2026-03-14T11:00:00Z"}`)
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", resp.StatusCode, string(body))
	}
	if parsed := decodeBody(t, body); parsed["status"] != "scheduled" {
		t.Fatalf("status = %v, want scheduled", parsed["status"])
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/emails",
		`{"to":"a@x.com","subject":"Later","text":"x","scheduledAt":"tomorrow"}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for invalid scheduledAt", resp.StatusCode)
	}
}

func TestEmailIntegration_SendEmailErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		result     *service.SendResult
		err        error
		wantStatus int
		wantID     string
		wantError  string
	}{
		{
			name:       "validation",
			err:        fmt.Errorf("%w: at least one recipient is required", domain.ErrValidation),
			wantStatus: fiber.StatusBadRequest,
			wantError:  "at least one recipient is required",
		},
		{
			name:       "unknown template",
			err:        fmt.Errorf("%w: nope", domain.ErrTemplateNotFound),
			wantStatus: fiber.StatusNotFound,
		},
		{
			name:       "provider failure keeps record id",
			result:     &service.SendResult{ID: "msg-9", Status: domain.StatusFailed},
			err:        fmt.Errorf("resend: %w", domain.ErrProvider),
			wantStatus: fiber.StatusBadGateway,
			wantID:     "msg-9",
		},
		{
			name:       "no provider configured",
			result:     &service.SendResult{ID: "msg-10", Status: domain.StatusFailed},
			err:        domain.ErrProviderNotConfigured,
			wantStatus: fiber.StatusServiceUnavailable,
			wantID:     "msg-10",
		},
		{
			name:       "unexpected",
			err:        errors.New("redis: connection refused"),
			wantStatus: fiber.StatusInternalServerError,
			wantError:  "internal server error",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app := newEmailTestApp(t, &stubEmailService{
				sendFn: func(ctx context.Context, m *domain.Message) (*service.SendResult, error) {
					return tt.result, tt.err
				},
			})

			resp, body := performRequest(t, app, http.MethodPost, "/v1/emails", `{"to":"a@x.com","subject":"Hi","text":"x"}`)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body=%s", resp.StatusCode, tt.wantStatus, string(body))
			}

			parsed := decodeBody(t, body)
			if tt.wantID != "" && parsed["id"] != tt.wantID {
				t.Fatalf("id = %v, want %s", parsed["id"], tt.wantID)
			}
			if errMsg, _ := parsed["error"].(string); errMsg == "" || !strings.Contains(errMsg, tt.wantError) {
				t.Fatalf("error = %q, want it to contain %q", errMsg, tt.wantError)
			}
		})
	}

	app := newEmailTestApp(t, &stubEmailService{})
	resp, _ := performRequest(t, app, http.MethodPost, "/v1/emails", `{not json`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for malformed body", resp.StatusCode)
	}
}

func TestEmailIntegration_SendTemplate(t *testing.T) {
	t.Parallel()

	app := newEmailTestApp(t, &stubEmailService{
		sendTemplateFn: func(ctx context.Context, req service.TemplateSend) (*service.SendResult, error) {
			if req.TemplateID != "welcome" {
				t.Fatalf("TemplateID = %q, want welcome", req.TemplateID)
			}
			if req.Data["name"] != "Ada" || req.To[0] != "ada@x.com" {
				t.Fatalf("request = %+v, want data and recipient", req)
			}
			return &service.SendResult{ID: "msg-3", Status: domain.StatusSent, Provider: "ses"}, nil
		},
	})

	resp, body := performRequest(t, app, http.MethodPost, "/v1/emails/template",
		`{"to":"ada@x.com","templateId":" welcome ","data":{"name":"Ada"}}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	if parsed := decodeBody(t, body); parsed["provider"] != "ses" {
		t.Fatalf("provider = %v, want ses", parsed["provider"])
	}
}

func TestEmailIntegration_SendBulk(t *testing.T) {
	t.Parallel()

	app := newEmailTestApp(t, &stubEmailService{
		bulkFn: func(ctx context.Context, messages []domain.Message) (*service.BulkResult, error) {
			if len(messages) > 1000 {
				return nil, fmt.Errorf("%w: bulk size exceeds 1000", domain.ErrValidation)
			}
			result := &service.BulkResult{}
			for i := range messages {
				result.Items = append(result.Items, service.BulkItem{ID: fmt.Sprintf("msg-%d", i+1), Status: domain.StatusPending})
				result.Queued++
			}
			return result, nil
		},
	})

	resp, body := performRequest(t, app, http.MethodPost, "/v1/emails/bulk",
		`{"messages":[{"to":"a@x.com","subject":"A","text":"a"},{"to":"b@x.com","subject":"B","text":"b"}]}`)
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", resp.StatusCode, string(body))
	}
	parsed := decodeBody(t, body)
	if parsed["queued"] != float64(2) {
		t.Fatalf("queued = %v, want 2", parsed["queued"])
	}
	if items, _ := parsed["items"].([]any); len(items) != 2 {
		t.Fatalf("items = %v, want 2", parsed["items"])
	}

	items := make([]string, 0, 1001)
	for i := 0; i < 1001; i++ {
		items = append(items, `{"to":"a@x.com","subject":"A","text":"a"}`)
	}
	resp, _ = performRequest(t, app, http.MethodPost, "/v1/emails/bulk", `{"messages":[`+strings.Join(items, ",")+`]}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for bulk size > 1000", resp.StatusCode)
	}

	resp, body = performRequest(t, app, http.MethodPost, "/v1/emails/bulk",
		`{"messages":[{"to":"a@x.com","subject":"A","text":"a","scheduledAt":"soon"}]}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for invalid item", resp.StatusCode)
	}
	if errMsg, _ := decodeBody(t, body)["error"].(string); !strings.Contains(errMsg, "message 0") {
		t.Fatalf("error = %q, want item index", errMsg)
	}
}

func TestEmailIntegration_GetEmailAndStats(t *testing.T) {
	t.Parallel()

	sentAt := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	app := newEmailTestApp(t, &stubEmailService{
		getStatusFn: func(ctx context.Context, id string) (*domain.Message, error) {
			if id == "msg-1" {
				return &domain.Message{ID: "msg-1", To: []string{"a@x.com"}, Status: domain.StatusSent, Provider: "mailgun", SentAt: &sentAt}, nil
			}
			return nil, fmt.Errorf("%w: message %s", domain.ErrNotFound, id)
		},
		statsFn: func(ctx context.Context) (*service.Stats, error) {
			return &service.Stats{Total: 3, ByStatus: map[domain.Status]int{domain.StatusSent: 2, domain.StatusBounced: 1}}, nil
		},
	})

	resp, body := performRequest(t, app, http.MethodGet, "/v1/emails/msg-1", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	parsed := decodeBody(t, body)
	if parsed["status"] != "sent" || parsed["provider"] != "mailgun" || parsed["sentAt"] != "2026-03-14T09:00:00Z" {
		t.Fatalf("response = %v, want sent record", parsed)
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/emails/missing", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}

	resp, body = performRequest(t, app, http.MethodGet, "/v1/stats", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	stats := decodeBody(t, body)
	byStatus, _ := stats["byStatus"].(map[string]any)
	if stats["total"] != float64(3) || byStatus["bounced"] != float64(1) {
		t.Fatalf("stats = %v", stats)
	}
}
