package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/mail-engine/internal/domain"
	"github.com/kursadbilgin/mail-engine/internal/observability"
	"github.com/kursadbilgin/mail-engine/internal/provider"
	"github.com/kursadbilgin/mail-engine/internal/queue"
	"github.com/kursadbilgin/mail-engine/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minWorkerConcurrency = 1

// WorkerService drains the email queue and dispatches scheduled and retried messages.
type WorkerService struct {
	messages    repository.MessageRepository
	consumer    queue.Consumer
	delivery    *deliverer
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
}

func NewWorkerService(
	messages repository.MessageRepository,
	consumer queue.Consumer,
	dispatcher Dispatcher,
	concurrency int,
	logger *zap.Logger,
) (*WorkerService, error) {
	if messages == nil {
		return nil, fmt.Errorf("message repository is required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerService{
		messages: messages,
		consumer: consumer,
		delivery: &deliverer{
			messages:   messages,
			dispatcher: dispatcher,
			logger:     logger,
			now:        time.Now,
		},
		logger:      logger,
		concurrency: concurrency,
	}, nil
}

func (s *WorkerService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
	s.delivery.metrics = metrics
}

// Start runs concurrency consumers on the email queue until ctx is canceled.
func (s *WorkerService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.concurrency; i++ {
		workerID := i + 1

		g.Go(func() error {
			s.logger.Info("worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queue.EmailQueue),
			)

			err := s.consumer.Consume(groupCtx, s.processMessage)
			if err != nil {
				s.logger.Error("worker stopped with error",
					zap.Int("workerId", workerID),
					zap.Error(err),
				)
				return err
			}

			s.logger.Info("worker stopped", zap.Int("workerId", workerID))
			return nil
		})
	}

	return g.Wait()
}

// processMessage dispatches one queued message. Returning an error asks the
// consumer to retry; queue.Permanent errors are dead-lettered.
func (s *WorkerService) processMessage(ctx context.Context, msg queue.DeliveryMessage) error {
	if msg.CorrelationID != "" {
		ctx = observability.WithCorrelationID(ctx, msg.CorrelationID)
	}
	logger := observability.WithContextLogger(s.logger, ctx).With(
		zap.String("messageId", msg.MessageID),
		zap.Int("attempt", msg.Attempt),
	)

	m, err := s.messages.GetByID(ctx, msg.MessageID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Warn("message not found, skipping")
			return nil
		}
		return fmt.Errorf("failed to load message: %w", err)
	}

	// Redelivery of a finished message is harmless.
	if m.Status.IsTerminal() {
		logger.Info("message already finished, skipping", zap.String("status", m.Status.String()))
		return nil
	}

	s.metrics.IncWorkerInFlight()
	defer s.metrics.DecWorkerInFlight()

	_, sendErr := s.delivery.deliver(ctx, m, domain.AuthorityQueue)
	if sendErr == nil {
		return nil
	}

	if errors.Is(sendErr, domain.ErrProviderNotConfigured) || provider.IsTransient(sendErr) {
		return sendErr
	}
	// A permanent provider rejection skips QUEUE_MAX_ATTEMPTS and is
	// dead-lettered on the first try.
	if errors.Is(sendErr, domain.ErrProvider) {
		return queue.Permanent(sendErr)
	}
	// Store failures are retried.
	return sendErr
}
