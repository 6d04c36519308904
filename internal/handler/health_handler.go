package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

const readinessTimeout = 2 * time.Second

// Pinger is a dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

func RegisterHealthRoutes(app fiber.Router, checks map[string]Pinger) {
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(checks))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

func ReadyzHandler(checks map[string]Pinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
		defer cancel()

		results := make(fiber.Map, len(checks))
		ready := true
		for name, check := range checks {
			if err := check.Ping(ctx); err != nil {
				results[name] = "down"
				ready = false
				continue
			}
			results[name] = "ok"
		}

		status := "ready"
		statusCode := fiber.StatusOK
		if !ready {
			status = "not_ready"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": results,
		})
	}
}
