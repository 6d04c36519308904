package observability

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// HeaderCorrelationID carries the caller supplied correlation id.
const HeaderCorrelationID = "X-Correlation-ID"

type correlationIDKey struct{}

// NewLogger builds the JSON production logger tagged with the binary name.
func NewLogger(service string, level string) (*zap.Logger, error) {
	parsedLevel, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsedLevel)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true

	opts := []zap.Option{zap.AddCaller()}
	if service = strings.TrimSpace(service); service != "" {
		opts = append(opts, zap.Fields(zap.String("service", service)))
	}

	logger, err := cfg.Build(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger, nil
}

func parseLevel(level string) (zapcore.Level, error) {
	var parsed zapcore.Level
	normalized := strings.ToLower(strings.TrimSpace(level))
	if normalized == "" {
		normalized = "info"
	}

	if err := parsed.UnmarshalText([]byte(normalized)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	return parsed, nil
}

func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	return context.WithValue(ctx, correlationIDKey{}, correlationID)
}

func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}

	correlationID, ok := ctx.Value(correlationIDKey{}).(string)
	if !ok || correlationID == "" {
		return "", false
	}

	return correlationID, true
}

func WithContextLogger(logger *zap.Logger, ctx context.Context) *zap.Logger {
	if logger == nil {
		return nil
	}

	correlationID, ok := CorrelationIDFromContext(ctx)
	if !ok {
		return logger
	}

	return logger.With(zap.String("correlationId", correlationID))
}

// CorrelationMiddleware resolves the request correlation id from X-Correlation-ID,
// then X-Request-ID, generating one when both are absent. The id is echoed in the
// response and stored in the request's user context.
func CorrelationMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		correlationID := strings.TrimSpace(c.Get(HeaderCorrelationID))
		if correlationID == "" {
			correlationID = strings.TrimSpace(c.Get(fiber.HeaderXRequestID))
		}
		if correlationID == "" {
			correlationID = uuid.NewString()
		}

		c.Set(HeaderCorrelationID, correlationID)
		c.SetUserContext(WithCorrelationID(c.UserContext(), correlationID))
		return c.Next()
	}
}
