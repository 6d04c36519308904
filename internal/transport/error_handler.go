package transport

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/mail-engine/internal/observability"
	"go.uber.org/zap"
)

func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		}
		if id, ok := observability.CorrelationIDFromContext(c.UserContext()); ok {
			fields = append(fields, zap.String("correlationId", id))
		}

		message := err.Error()
		switch {
		case fe == nil:
			logger.Error("request error", fields...)
			message = "internal server error"
		case code >= fiber.StatusInternalServerError:
			logger.Error("request error", fields...)
		default:
			logger.Warn("request rejected", fields...)
		}

		return c.Status(code).JSON(fiber.Map{
			"error": message,
		})
	}
}
