package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/kursadbilgin/mail-engine/internal/domain"
)

// ProviderError classifies provider call failures as transient/permanent.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Detail     string
	Transient  bool
	Cause      error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 5)
	if name := strings.TrimSpace(e.Provider); name != "" {
		parts = append(parts, name)
	} else {
		parts = append(parts, "provider error")
	}

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if detail := strings.TrimSpace(e.Detail); detail != "" {
		parts = append(parts, detail)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is lets errors.Is(err, domain.ErrProvider) match every provider failure.
func (e *ProviderError) Is(target error) bool {
	return target == domain.ErrProvider
}

// IsTransient reports whether an error should be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

// requestError wraps a transport-level failure; anything but cancellation is transient.
func requestError(provider string, err error) *ProviderError {
	transient := !errors.Is(err, context.Canceled)

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		transient = true
	}

	return &ProviderError{
		Provider:  provider,
		Message:   "provider request failed",
		Transient: transient,
		Cause:     err,
	}
}
