package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/mail-engine/internal/domain"
	"github.com/kursadbilgin/mail-engine/internal/service"
)

func TestWebhookIntegration_Receive(t *testing.T) {
	t.Parallel()

	var gotProvider, gotPayload string
	app := newTestApp(t, func(app *fiber.App) error {
		return RegisterWebhookRoutes(app, &stubWebhookService{
			ingestFn: func(ctx context.Context, provider string, payload []byte) (*service.IngestResult, error) {
				gotProvider = provider
				gotPayload = string(payload)
				return &service.IngestResult{Received: true, Events: 1, Applied: 1}, nil
			},
		})
	})

	payload := `{"type":"email.bounced","data":{"email_id":"re-1"}}`
	resp, body := performRequest(t, app, http.MethodPost, "/v1/webhooks/resend", payload)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	if gotProvider != "resend" || gotPayload != payload {
		t.Fatalf("ingest called with %q %q", gotProvider, gotPayload)
	}

	parsed := decodeBody(t, body)
	if parsed["received"] != true || parsed["applied"] != float64(1) {
		t.Fatalf("response = %v, want received and applied", parsed)
	}
}

func TestWebhookIntegration_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "audit failure", err: errors.New("failed to record webhook: redis down"), wantStatus: fiber.StatusInternalServerError},
		{name: "validation", err: fmt.Errorf("%w: provider is required", domain.ErrValidation), wantStatus: fiber.StatusBadRequest},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app := newTestApp(t, func(app *fiber.App) error {
				return RegisterWebhookRoutes(app, &stubWebhookService{
					ingestFn: func(ctx context.Context, provider string, payload []byte) (*service.IngestResult, error) {
						return nil, tt.err
					},
				})
			})

			resp, _ := performRequest(t, app, http.MethodPost, "/v1/webhooks/sendgrid", `[]`)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestRegisterRoutesRequireService(t *testing.T) {
	t.Parallel()

	app := fiber.New()
	if err := RegisterEmailRoutes(app, nil); err == nil {
		t.Fatal("expected error for nil email service")
	}
	if err := RegisterTemplateRoutes(app, nil); err == nil {
		t.Fatal("expected error for nil template service")
	}
	if err := RegisterWebhookRoutes(app, nil); err == nil {
		t.Fatal("expected error for nil webhook service")
	}
}
