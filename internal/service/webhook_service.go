package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/mail-engine/internal/domain"
	"github.com/kursadbilgin/mail-engine/internal/observability"
	"github.com/kursadbilgin/mail-engine/internal/provider"
	"github.com/kursadbilgin/mail-engine/internal/repository"
	"go.uber.org/zap"
)

// IngestResult acknowledges a webhook. Events and Applied are informational.
type IngestResult struct {
	Received bool `json:"received"`
	Events   int  `json:"events"`
	Applied  int  `json:"applied"`
}

// WebhookService records provider callbacks and applies bounce and complaint events.
type WebhookService struct {
	messages repository.MessageRepository
	audit    repository.WebhookRepository
	parse    func(provider string, payload []byte) ([]provider.Event, error)
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

func NewWebhookService(
	messages repository.MessageRepository,
	audit repository.WebhookRepository,
	logger *zap.Logger,
) (*WebhookService, error) {
	if messages == nil {
		return nil, fmt.Errorf("message repository is required")
	}
	if audit == nil {
		return nil, fmt.Errorf("webhook repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WebhookService{
		messages: messages,
		audit:    audit,
		parse:    provider.ParseEvents,
		logger:   logger,
		now:      time.Now,
	}, nil
}

func (s *WebhookService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Ingest writes the raw payload to the audit log before interpreting it. Only a
// failed audit write is returned; interpretation errors are logged.
func (s *WebhookService) Ingest(ctx context.Context, providerName string, payload []byte) (*IngestResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	providerName = strings.ToLower(strings.TrimSpace(providerName))
	if providerName == "" {
		return nil, fmt.Errorf("%w: provider is required", domain.ErrValidation)
	}

	record := &domain.WebhookRecord{
		Provider:   providerName,
		ReceivedAt: s.now().UTC(),
		Payload:    append([]byte(nil), payload...),
	}
	if err := s.audit.Append(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to record webhook: %w", err)
	}

	logger := observability.WithContextLogger(s.logger, ctx).With(zap.String("provider", providerName))
	result := &IngestResult{Received: true}

	events, err := s.parse(providerName, payload)
	if err != nil {
		logger.Warn("webhook payload not interpreted", zap.Error(err))
		return result, nil
	}
	result.Events = len(events)

	for _, event := range events {
		s.metrics.IncWebhookEvent(providerName, string(event.Category))
		if !event.Category.Marks() {
			continue
		}

		applied, err := s.applyBounce(ctx, event)
		if err != nil {
			logger.Warn("webhook event not applied",
				zap.String("type", event.Type),
				zap.String("messageId", event.MessageID),
				zap.String("providerMessageId", event.ProviderMessageID),
				zap.Error(err),
			)
			continue
		}
		if applied {
			result.Applied++
		}
	}

	return result, nil
}

// applyBounce marks the referenced message bounced whatever its prior status.
func (s *WebhookService) applyBounce(ctx context.Context, event provider.Event) (bool, error) {
	id, err := s.resolveMessageID(ctx, event)
	if err != nil {
		return false, err
	}

	changed := false
	_, err = s.messages.Update(ctx, id, func(m *domain.Message) (bool, error) {
		result, err := m.Transition(domain.AuthorityWebhook, domain.StatusBounced, s.now())
		if err != nil || !result.Changed {
			return false, err
		}
		if event.Reason != "" {
			m.Error = fmt.Sprintf("%s: %s", event.Category, event.Reason)
		} else {
			m.Error = string(event.Category)
		}
		changed = true
		return true, nil
	})
	if err != nil {
		return false, err
	}
	if changed {
		s.logger.Info("message bounced",
			zap.String("messageId", id),
			zap.String("category", string(event.Category)),
			zap.String("recipient", event.Recipient),
		)
	}
	return changed, nil
}

func (s *WebhookService) resolveMessageID(ctx context.Context, event provider.Event) (string, error) {
	if id := strings.TrimSpace(event.MessageID); id != "" {
		return id, nil
	}
	id, err := s.messages.FindByProviderMessage(ctx, event.Provider, event.ProviderMessageID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("%w: no message for provider id %q", domain.ErrNotFound, event.ProviderMessageID)
		}
		return "", err
	}
	return id, nil
}
