package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/kursadbilgin/mail-engine/internal/domain"
)

// MessageIDTag is the tag/custom-arg name carrying our message id to the provider,
// echoed back in webhook payloads.
const MessageIDTag = "message_id"

// Provider names in dispatch priority order.
const (
	NameResend   = "resend"
	NameSendGrid = "sendgrid"
	NameMailgun  = "mailgun"
	NameSES      = "ses"
	NameLog      = "log"
)

// Provider is the outbound email delivery port.
type Provider interface {
	Name() string
	Send(ctx context.Context, message domain.Message) (*Response, error)
}

// Response stores provider call metadata for persistence.
type Response struct {
	Provider   string
	StatusCode int
	MessageID  string
}

type decodedAttachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

func decodeAttachments(provider string, attachments []domain.Attachment) ([]decodedAttachment, error) {
	out := make([]decodedAttachment, 0, len(attachments))
	for _, a := range attachments {
		content, err := base64.StdEncoding.DecodeString(a.Content)
		if err != nil {
			return nil, &ProviderError{
				Provider: provider,
				Message:  fmt.Sprintf("attachment %q is not valid base64", a.Filename),
				Cause:    err,
			}
		}
		contentType := strings.TrimSpace(a.ContentType)
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		out = append(out, decodedAttachment{Filename: a.Filename, ContentType: contentType, Content: content})
	}
	return out, nil
}

var tagUnsafe = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// sanitizeTag maps a free-form tag onto the charset every provider accepts.
func sanitizeTag(tag string) string {
	return tagUnsafe.ReplaceAllString(strings.TrimSpace(tag), "_")
}

// splitAddress returns the display name and bare address of addr.
func splitAddress(addr string) (string, string) {
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return "", strings.TrimSpace(addr)
	}
	return parsed.Name, parsed.Address
}
