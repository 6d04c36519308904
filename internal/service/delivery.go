package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/mail-engine/internal/domain"
	"github.com/kursadbilgin/mail-engine/internal/observability"
	"github.com/kursadbilgin/mail-engine/internal/provider"
	"github.com/kursadbilgin/mail-engine/internal/repository"
	"go.uber.org/zap"
)

// Dispatcher sends a rendered message through the configured provider.
type Dispatcher interface {
	Name() string
	Send(ctx context.Context, message domain.Message) (*provider.Response, error)
}

// deliverer performs one dispatch and records its outcome on behalf of an authority.
type deliverer struct {
	messages   repository.MessageRepository
	dispatcher Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// deliver dispatches m once and writes sent or failed back to the record. The
// returned error is the provider error, if any; store failures are wrapped.
func (d *deliverer) deliver(ctx context.Context, m *domain.Message, authority domain.Authority) (*domain.Message, error) {
	logger := observability.WithContextLogger(d.logger, ctx).With(
		zap.String("messageId", m.ID),
		zap.String("authority", authority.String()),
	)

	start := d.now()
	resp, sendErr := d.dispatcher.Send(ctx, *m)

	providerName := d.dispatcher.Name()
	if resp != nil && resp.Provider != "" {
		providerName = resp.Provider
	}
	d.metrics.ObserveSendDuration(providerName, d.now().Sub(start))

	updated, err := d.messages.Update(ctx, m.ID, func(current *domain.Message) (bool, error) {
		var transitionErr error
		if sendErr == nil {
			providerMessageID := ""
			if resp != nil {
				providerMessageID = resp.MessageID
			}
			_, transitionErr = current.MarkSent(authority, providerName, providerMessageID, d.now())
		} else {
			_, transitionErr = current.MarkFailed(authority, sendErr, d.now())
		}
		if transitionErr != nil {
			return false, transitionErr
		}
		current.Attempts++
		return true, nil
	})

	if sendErr != nil {
		d.metrics.IncEmailFailed(providerName, failureReason(sendErr))
		logger.Warn("email dispatch failed", zap.String("provider", providerName), zap.Error(sendErr))
	} else {
		d.metrics.IncEmailSent(providerName)
		logger.Info("email dispatched", zap.String("provider", providerName))
	}

	if err != nil {
		// A bounce recorded while the provider call was in flight wins over the send result.
		if errors.Is(err, domain.ErrInvalidTransition) && updated != nil {
			logger.Warn("record changed during dispatch, keeping stored status",
				zap.String("status", updated.Status.String()),
				zap.Error(err),
			)
			return updated, sendErr
		}
		if sendErr != nil {
			return nil, errors.Join(sendErr, fmt.Errorf("failed to record dispatch outcome: %w", err))
		}
		return nil, fmt.Errorf("failed to record dispatch outcome: %w", err)
	}

	if sendErr == nil && updated.ProviderMessageID != "" {
		if err := d.messages.IndexProviderMessage(ctx, updated.Provider, updated.ProviderMessageID, updated.ID); err != nil {
			logger.Warn("failed to index provider message id", zap.Error(err))
		}
	}

	return updated, sendErr
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrProviderNotConfigured):
		return "not_configured"
	case provider.IsTransient(err):
		return "transient"
	default:
		return "permanent"
	}
}
