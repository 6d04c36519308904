package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kursadbilgin/mail-engine/internal/domain"
	"github.com/kursadbilgin/mail-engine/internal/template"
	"go.uber.org/zap"
)

// RegisterBuiltIns stores the pre-built catalog, replacing stored copies.
func (s *MailService) RegisterBuiltIns(ctx context.Context) error {
	now := s.now().UTC()
	for _, tpl := range template.BuiltIns() {
		tpl := tpl
		tpl.BuiltIn = true
		tpl.CreatedAt = now
		tpl.UpdatedAt = now
		if err := s.templates.Save(ctx, &tpl); err != nil {
			return fmt.Errorf("failed to register built-in template %s: %w", tpl.ID, err)
		}
	}
	s.logger.Info("built-in templates registered", zap.Int("count", len(template.BuiltIns())))
	return nil
}

// RegisterTemplate creates or replaces a user template. Variables are derived from
// the patterns; built-in templates cannot be replaced.
func (s *MailService) RegisterTemplate(ctx context.Context, in TemplateInput) (*domain.Template, error) {
	tpl := domain.Template{
		ID:      strings.ToLower(strings.TrimSpace(in.ID)),
		Name:    strings.TrimSpace(in.Name),
		Subject: strings.TrimSpace(in.Subject),
		HTML:    in.HTML,
		Text:    in.Text,
	}

	if strings.TrimSpace(tpl.HTML) == "" && strings.TrimSpace(in.Markdown) != "" {
		html, err := template.MarkdownToHTML(in.Markdown)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		tpl.HTML = html
	}
	if strings.TrimSpace(tpl.Text) == "" && strings.TrimSpace(tpl.HTML) != "" {
		tpl.Text = template.TextFromHTML(tpl.HTML)
	}
	tpl.Variables = template.ExtractVariables(tpl.Subject, tpl.HTML, tpl.Text)

	if err := tpl.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	tpl.CreatedAt = now
	tpl.UpdatedAt = now

	existing, err := s.templates.GetByID(ctx, tpl.ID)
	switch {
	case err == nil:
		if existing.BuiltIn {
			return nil, fmt.Errorf("%w: built-in template %s cannot be replaced", domain.ErrConflict, tpl.ID)
		}
		tpl.CreatedAt = existing.CreatedAt
	case !errors.Is(err, domain.ErrTemplateNotFound):
		return nil, err
	}

	if err := s.templates.Save(ctx, &tpl); err != nil {
		return nil, err
	}
	return &tpl, nil
}

func (s *MailService) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	return s.templates.GetByID(ctx, strings.TrimSpace(id))
}

func (s *MailService) ListTemplates(ctx context.Context) ([]domain.Template, error) {
	return s.templates.List(ctx)
}

func (s *MailService) DeleteTemplate(ctx context.Context, id string) error {
	tpl, err := s.templates.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	if tpl.BuiltIn {
		return fmt.Errorf("%w: built-in template %s cannot be deleted", domain.ErrConflict, tpl.ID)
	}
	return s.templates.Delete(ctx, tpl.ID)
}

// RenderTemplate renders a stored template without sending it.
func (s *MailService) RenderTemplate(ctx context.Context, id string, vars map[string]any) (*template.Result, error) {
	tpl, err := s.templates.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	result := template.Render(*tpl, vars, s.now())
	return &result, nil
}

// ValidateTemplateVariables reports declared variables missing from vars. An
// unknown template returns domain.ErrTemplateNotFound.
func (s *MailService) ValidateTemplateVariables(ctx context.Context, id string, vars map[string]any) (*template.Validation, error) {
	tpl, err := s.templates.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	result := template.ValidateVariables(*tpl, vars)
	return &result, nil
}
