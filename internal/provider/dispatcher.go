package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kursadbilgin/mail-engine/internal/config"
	"github.com/kursadbilgin/mail-engine/internal/domain"
	"go.uber.org/zap"
)

// Factory builds a provider from configuration. It returns (nil, nil) when the
// provider's credentials are absent.
type Factory struct {
	Name  string
	Build func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Provider, error)
}

// DefaultFactories lists every supported provider in priority order.
func DefaultFactories() []Factory {
	return []Factory{
		{Name: NameResend, Build: buildResend},
		{Name: NameSendGrid, Build: buildSendGrid},
		{Name: NameMailgun, Build: buildMailgun},
		{Name: NameSES, Build: buildSES},
		{Name: NameLog, Build: buildLog},
	}
}

// Dispatcher routes messages to the provider chosen from configuration.
type Dispatcher struct {
	providers []Provider
	failover  bool
	logger    *zap.Logger
}

// NewDispatcher selects providers once. Without failover only the first configured
// provider is kept.
func NewDispatcher(ctx context.Context, cfg *config.Config, factories []Factory, logger *zap.Logger) (*Dispatcher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	providers := make([]Provider, 0, len(factories))
	for _, f := range factories {
		p, err := f.Build(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s provider: %w", f.Name, err)
		}
		if p == nil {
			continue
		}
		providers = append(providers, p)
		if !cfg.ProviderFailover {
			break
		}
	}

	return NewDispatcherWithProviders(providers, cfg.ProviderFailover, logger), nil
}

func NewDispatcherWithProviders(providers []Provider, failover bool, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !failover && len(providers) > 1 {
		providers = providers[:1]
	}
	return &Dispatcher{providers: providers, failover: failover, logger: logger}
}

// Name returns the primary provider name, or "" when none is configured.
func (d *Dispatcher) Name() string {
	if d == nil || len(d.providers) == 0 {
		return ""
	}
	return d.providers[0].Name()
}

// Configured reports whether at least one provider is available.
func (d *Dispatcher) Configured() bool {
	return d != nil && len(d.providers) > 0
}

// Send performs one provider call, or walks the failover chain when enabled.
func (d *Dispatcher) Send(ctx context.Context, message domain.Message) (*Response, error) {
	if !d.Configured() {
		return nil, domain.ErrProviderNotConfigured
	}

	var errs []error
	for _, p := range d.providers {
		resp, err := p.Send(ctx, message)
		if err == nil {
			if resp == nil {
				resp = &Response{}
			}
			if resp.Provider == "" {
				resp.Provider = p.Name()
			}
			return resp, nil
		}

		errs = append(errs, err)
		if !d.failover || ctx.Err() != nil {
			break
		}
		d.logger.Warn("provider send failed, trying next provider",
			zap.String("messageId", message.ID),
			zap.String("provider", p.Name()),
			zap.Error(err),
		)
	}

	if len(errs) == 1 {
		return nil, errs[0]
	}
	return nil, errors.Join(errs...)
}

func buildResend(_ context.Context, cfg *config.Config, _ *zap.Logger) (Provider, error) {
	if strings.TrimSpace(cfg.ResendAPIKey) == "" {
		return nil, nil
	}
	return NewResendProvider(cfg.ResendAPIKey, cfg.ResendBaseURL)
}

func buildSendGrid(_ context.Context, cfg *config.Config, _ *zap.Logger) (Provider, error) {
	if strings.TrimSpace(cfg.SendGridAPIKey) == "" {
		return nil, nil
	}
	return NewSendGridProvider(cfg.SendGridBaseURL, cfg.SendGridAPIKey)
}

func buildMailgun(_ context.Context, cfg *config.Config, _ *zap.Logger) (Provider, error) {
	if strings.TrimSpace(cfg.MailgunAPIKey) == "" || strings.TrimSpace(cfg.MailgunDomain) == "" {
		return nil, nil
	}
	return NewMailgunProvider(cfg.MailgunAPIKey, cfg.MailgunDomain, cfg.MailgunAPIBase)
}

func buildSES(ctx context.Context, cfg *config.Config, _ *zap.Logger) (Provider, error) {
	if strings.TrimSpace(cfg.SESRegion) == "" {
		return nil, nil
	}
	return NewSESProvider(ctx, cfg.SESRegion, cfg.SESAccessKeyID, cfg.SESSecretAccessKey, cfg.SESConfigurationSet)
}

func buildLog(_ context.Context, cfg *config.Config, logger *zap.Logger) (Provider, error) {
	if !cfg.LogProviderEnabled {
		return nil, nil
	}
	return NewLogProvider(logger), nil
}
