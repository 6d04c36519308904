package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/mail-engine/internal/domain"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrTemplateNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrProviderNotConfigured):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, domain.ErrProvider):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func toHTTPError(err error) error {
	if err == nil {
		return nil
	}
	code := statusFor(err)
	if code == fiber.StatusInternalServerError {
		return err
	}
	return fiber.NewError(code, err.Error())
}
