package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/joho/godotenv"
	"github.com/kursadbilgin/mail-engine/internal/config"
	"github.com/kursadbilgin/mail-engine/internal/handler"
	"github.com/kursadbilgin/mail-engine/internal/infra"
	"github.com/kursadbilgin/mail-engine/internal/observability"
	"github.com/kursadbilgin/mail-engine/internal/provider"
	"github.com/kursadbilgin/mail-engine/internal/queue"
	"github.com/kursadbilgin/mail-engine/internal/repository"
	"github.com/kursadbilgin/mail-engine/internal/service"
	"github.com/kursadbilgin/mail-engine/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("failed to load .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger("worker", cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("worker stopped with error", zap.Error(err))
	}
	logger.Info("worker stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	store, err := infra.OpenStore(cfg)
	if err != nil {
		return fmt.Errorf("store initialization failed: %w", err)
	}
	defer store.Close() //nolint:errcheck

	rmq, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	defer rmq.Close() //nolint:errcheck

	dispatcher, err := provider.NewDispatcher(ctx, cfg, provider.DefaultFactories(), logger)
	if err != nil {
		return err
	}
	if !dispatcher.Configured() {
		logger.Warn("no email provider configured; deliveries will be retried until dead-lettered")
	}

	metrics := observability.NewMetrics()
	consumer := queue.NewRabbitMQConsumer(rmq, cfg.QueuePrefetch, queue.DefaultRetryPolicy(cfg.QueueMaxAttempts), metrics, logger)
	defer consumer.Close() //nolint:errcheck

	worker, err := service.NewWorkerService(
		repository.NewKVMessageRepo(store, cfg.MessageRetention()),
		consumer,
		dispatcher,
		cfg.WorkerConcurrency,
		logger,
	)
	if err != nil {
		return err
	}
	worker.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		AppName:               "mail-engine-worker",
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handler.RegisterHealthRoutes(app, map[string]handler.Pinger{
		"store":    store,
		"rabbitmq": rmq,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("mail-engine worker started",
			zap.Int("concurrency", cfg.WorkerConcurrency),
			zap.String("provider", dispatcher.Name()),
		)
		return worker.Start(gctx)
	})
	g.Go(func() error {
		return app.Listen(fmt.Sprintf(":%d", cfg.WorkerPort))
	})
	g.Go(func() error {
		<-gctx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	return g.Wait()
}
