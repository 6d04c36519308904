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

	logger, err := observability.NewLogger("api", cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("api stopped with error", zap.Error(err))
	}
	logger.Info("api stopped")
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
		logger.Warn("no email provider configured; synchronous sends will fail")
	}

	metrics := observability.NewMetrics()
	messages := repository.NewKVMessageRepo(store, cfg.MessageRetention())
	templates := repository.NewKVTemplateRepo(store)
	webhooks := repository.NewKVWebhookRepo(store, cfg.WebhookRetention())

	mailService, err := service.NewMailService(messages, templates, dispatcher, queue.NewRabbitMQPublisher(rmq), cfg.DefaultFrom, logger)
	if err != nil {
		return err
	}
	mailService.SetMetrics(metrics)
	if err := mailService.RegisterBuiltIns(ctx); err != nil {
		return fmt.Errorf("failed to register built-in templates: %w", err)
	}

	webhookService, err := service.NewWebhookService(messages, webhooks, logger)
	if err != nil {
		return err
	}
	webhookService.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		AppName:               "mail-engine-api",
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})
	app.Use(observability.CorrelationMiddleware())
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handler.RegisterHealthRoutes(app, map[string]handler.Pinger{
		"store":    store,
		"rabbitmq": rmq,
	})
	if err := handler.RegisterEmailRoutes(app, mailService); err != nil {
		return err
	}
	if err := handler.RegisterTemplateRoutes(app, mailService); err != nil {
		return err
	}
	if err := handler.RegisterWebhookRoutes(app, webhookService); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("mail-engine api started",
			zap.Int("port", cfg.APIPort),
			zap.String("provider", dispatcher.Name()),
			zap.String("store", cfg.StoreDriver),
		)
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})
	g.Go(func() error {
		<-gctx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if store.Gorm != nil {
		sweeper, err := service.NewSweeper(store.Gorm, cfg.SweepInterval(), logger)
		if err != nil {
			return err
		}
		sweeper.SetMetrics(metrics)
		g.Go(func() error {
			return sweeper.Start(gctx)
		})
	}

	return g.Wait()
}
