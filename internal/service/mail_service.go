package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/mail-engine/internal/domain"
	"github.com/kursadbilgin/mail-engine/internal/observability"
	"github.com/kursadbilgin/mail-engine/internal/queue"
	"github.com/kursadbilgin/mail-engine/internal/repository"
	"github.com/kursadbilgin/mail-engine/internal/template"
	"go.uber.org/zap"
)

const maxBulkSize = 1000

// SendResult summarizes the record after a send request.
type SendResult struct {
	ID       string        `json:"id"`
	Status   domain.Status `json:"status"`
	Provider string        `json:"provider,omitempty"`
}

// TemplateSend is a request to render a stored template and send the result.
type TemplateSend struct {
	To          []string
	CC          []string
	BCC         []string
	TemplateID  string
	Data        map[string]any
	From        string
	ReplyTo     string
	Tags        []string
	Metadata    map[string]string
	Attachments []domain.Attachment
	ScheduledAt *time.Time
}

type BulkItem struct {
	ID     string        `json:"id"`
	Status domain.Status `json:"status"`
	Error  string        `json:"error,omitempty"`
}

type BulkResult struct {
	Queued int        `json:"queued"`
	Items  []BulkItem `json:"items"`
}

// TemplateInput registers a template. Markdown is used when HTML is empty; Text is
// derived from the html pattern when empty.
type TemplateInput struct {
	ID       string
	Name     string
	Subject  string
	HTML     string
	Markdown string
	Text     string
}

// Stats counts stored messages per status.
type Stats struct {
	Total    int                   `json:"total"`
	ByStatus map[domain.Status]int `json:"byStatus"`
}

type MailService struct {
	messages    repository.MessageRepository
	templates   repository.TemplateRepository
	publisher   queue.Publisher
	delivery    *deliverer
	defaultFrom string
	logger      *zap.Logger
	now         func() time.Time
	newID       func() string
}

func NewMailService(
	messages repository.MessageRepository,
	templates repository.TemplateRepository,
	dispatcher Dispatcher,
	publisher queue.Publisher,
	defaultFrom string,
	logger *zap.Logger,
) (*MailService, error) {
	if messages == nil {
		return nil, fmt.Errorf("message repository is required")
	}
	if templates == nil {
		return nil, fmt.Errorf("template repository is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &MailService{
		messages:    messages,
		templates:   templates,
		publisher:   publisher,
		defaultFrom: strings.TrimSpace(defaultFrom),
		logger:      logger,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	s.delivery = &deliverer{
		messages:   messages,
		dispatcher: dispatcher,
		logger:     logger,
		now:        func() time.Time { return s.now() },
	}
	return s, nil
}

func (s *MailService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.delivery.metrics = metrics
}

// Send persists the message and dispatches it, or enqueues it when scheduledAt is
// in the future. A provider failure marks the record failed and is returned
// alongside the result.
func (s *MailService) Send(ctx context.Context, m *domain.Message) (*SendResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.prepare(ctx, m); err != nil {
		return nil, err
	}

	if err := s.messages.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}

	if s.isFuture(m.ScheduledAt) {
		if err := s.schedule(ctx, m); err != nil {
			return nil, err
		}
		return &SendResult{ID: m.ID, Status: m.Status}, nil
	}

	updated, err := s.delivery.deliver(ctx, m, domain.AuthoritySync)
	if updated == nil {
		return nil, err
	}
	return &SendResult{ID: updated.ID, Status: updated.Status, Provider: updated.Provider}, err
}

// SendTemplate renders a stored template and sends the result.
func (s *MailService) SendTemplate(ctx context.Context, req TemplateSend) (*SendResult, error) {
	if strings.TrimSpace(req.TemplateID) == "" {
		return nil, fmt.Errorf("%w: template id is required", domain.ErrValidation)
	}

	return s.Send(ctx, &domain.Message{
		To:           req.To,
		CC:           req.CC,
		BCC:          req.BCC,
		From:         req.From,
		ReplyTo:      req.ReplyTo,
		Template:     req.TemplateID,
		TemplateData: req.Data,
		Tags:         req.Tags,
		Metadata:     req.Metadata,
		Attachments:  req.Attachments,
		ScheduledAt:  req.ScheduledAt,
	})
}

// Bulk validates every message, then stores and enqueues each one independently.
// Nothing is sent synchronously.
func (s *MailService) Bulk(ctx context.Context, messages []domain.Message) (*BulkResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("%w: bulk request must include at least one message", domain.ErrValidation)
	}
	if len(messages) > maxBulkSize {
		return nil, fmt.Errorf("%w: bulk size exceeds %d", domain.ErrValidation, maxBulkSize)
	}

	prepared := make([]domain.Message, len(messages))
	for i := range messages {
		prepared[i] = messages[i]
		if err := s.prepare(ctx, &prepared[i]); err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
	}

	result := &BulkResult{Items: make([]BulkItem, 0, len(prepared))}
	for i := range prepared {
		m := &prepared[i]
		item := BulkItem{ID: m.ID}

		if err := s.messages.Create(ctx, m); err != nil {
			s.logger.Error("bulk: failed to store message", zap.String("messageId", m.ID), zap.Error(err))
			item.Status = domain.StatusFailed
			item.Error = err.Error()
			result.Items = append(result.Items, item)
			continue
		}

		if err := s.schedule(ctx, m); err != nil {
			item.Status = m.Status
			item.Error = err.Error()
			result.Items = append(result.Items, item)
			continue
		}

		item.Status = m.Status
		result.Queued++
		result.Items = append(result.Items, item)
	}

	if failed := len(prepared) - result.Queued; failed > 0 {
		s.logger.Warn("bulk completed with partial failure",
			zap.Int("failed", failed),
			zap.Int("total", len(prepared)),
		)
	}

	return result, nil
}

func (s *MailService) GetStatus(ctx context.Context, id string) (*domain.Message, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: message id is required", domain.ErrValidation)
	}
	m, err := s.messages.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: message %s", domain.ErrNotFound, id)
		}
		return nil, err
	}
	return m, nil
}

func (s *MailService) Stats(ctx context.Context) (*Stats, error) {
	counts, err := s.messages.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	return &Stats{Total: total, ByStatus: counts}, nil
}

// prepare assigns identity, resolves the template and validates the rendered message.
func (s *MailService) prepare(ctx context.Context, m *domain.Message) error {
	if m == nil {
		return fmt.Errorf("%w: message is required", domain.ErrValidation)
	}

	m.Normalize()
	if err := m.ValidateRequest(); err != nil {
		return err
	}

	if m.Template != "" {
		tpl, err := s.templates.GetByID(ctx, m.Template)
		if err != nil {
			return err
		}
		rendered := template.Render(*tpl, m.TemplateData, s.now())
		if m.Subject == "" {
			m.Subject = rendered.Subject
		}
		if m.HTML == "" {
			m.HTML = rendered.HTML
		}
		if m.Text == "" {
			m.Text = rendered.Text
		}
	}

	if m.From == "" {
		m.From = s.defaultFrom
	}
	if err := m.Validate(); err != nil {
		return err
	}

	now := s.now().UTC()
	m.ID = s.newID()
	m.Status = domain.StatusPending
	m.Provider = ""
	m.ProviderMessageID = ""
	m.Error = ""
	m.Attempts = 0
	m.SentAt = nil
	m.BouncedAt = nil
	m.CreatedAt = now
	m.UpdatedAt = now
	return nil
}

// schedule enqueues a stored pending message. A future scheduledAt moves it to
// scheduled before the publish; a publish failure marks it failed.
func (s *MailService) schedule(ctx context.Context, m *domain.Message) error {
	var delay time.Duration
	if s.isFuture(m.ScheduledAt) {
		delay = m.ScheduledAt.Sub(s.now())
	}

	if delay > 0 {
		updated, err := s.messages.Update(ctx, m.ID, func(current *domain.Message) (bool, error) {
			result, err := current.Transition(domain.AuthoritySync, domain.StatusScheduled, s.now())
			return result.Changed, err
		})
		if err != nil {
			return fmt.Errorf("failed to mark message as scheduled: %w", err)
		}
		*m = *updated
	}

	msg := queue.DeliveryMessage{MessageID: m.ID, Attempt: 1}
	if correlationID, ok := observability.CorrelationIDFromContext(ctx); ok {
		msg.CorrelationID = correlationID
	}

	publishErr := s.publisher.Enqueue(ctx, msg, delay)
	if publishErr == nil {
		return nil
	}

	s.logger.Error("failed to enqueue message",
		zap.String("messageId", m.ID),
		zap.Error(publishErr),
	)
	updated, updateErr := s.messages.Update(ctx, m.ID, func(current *domain.Message) (bool, error) {
		_, err := current.MarkFailed(domain.AuthoritySync, publishErr, s.now())
		return err == nil, err
	})
	if updateErr != nil {
		return fmt.Errorf("failed to enqueue message: %w (failed to mark as failed: %v)", publishErr, updateErr)
	}
	*m = *updated
	return fmt.Errorf("failed to enqueue message: %w", publishErr)
}

func (s *MailService) isFuture(t *time.Time) bool {
	return t != nil && t.After(s.now())
}
