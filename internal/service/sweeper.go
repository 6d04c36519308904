package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/mail-engine/internal/observability"
	"go.uber.org/zap"
)

const defaultSweepInterval = 5 * time.Minute

// ExpirySweeper removes records whose retention has passed. Stores with native
// expiry do not need one.
type ExpirySweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Sweeper periodically purges expired records from a store without native TTLs.
type Sweeper struct {
	store    ExpirySweeper
	logger   *zap.Logger
	metrics  *observability.Metrics
	interval time.Duration
}

func NewSweeper(store ExpirySweeper, interval time.Duration, logger *zap.Logger) (*Sweeper, error) {
	if store == nil {
		return nil, fmt.Errorf("sweeper store is required")
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Sweeper{
		store:    store,
		logger:   logger,
		interval: interval,
	}, nil
}

func (s *Sweeper) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *Sweeper) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.sweep(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("initial sweep failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.sweep(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("sweep failed", zap.Error(err))
			}
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) error {
	removed, err := s.store.SweepExpired(ctx)
	if err != nil {
		return fmt.Errorf("failed to sweep expired records: %w", err)
	}
	s.metrics.AddSwept(removed)
	if removed > 0 {
		s.logger.Info("expired records swept", zap.Int64("removed", removed))
	}
	return nil
}
