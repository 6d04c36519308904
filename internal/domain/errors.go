package domain

import "errors"

var (
	ErrValidation            = errors.New("validation error")
	ErrNotFound              = errors.New("record not found")
	ErrConflict              = errors.New("conflict")
	ErrTemplateNotFound      = errors.New("template not found")
	ErrProviderNotConfigured = errors.New("no email provider configured")
	ErrProvider              = errors.New("provider error")
	ErrInvalidTransition     = errors.New("invalid status transition")
)
