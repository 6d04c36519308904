package domain

import (
	"encoding/base64"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// Content limits.
const (
	MaxRecipients     = 50
	MaxSubjectLength  = 998
	MaxAttachmentSize = 10 << 20
)

// Attachment is a file carried with a message. Content is base64 encoded.
type Attachment struct {
	Filename    string `json:"filename"`
	Content     string `json:"content"`
	ContentType string `json:"contentType,omitempty"`
}

// Message is one addressed, content-bearing delivery unit and its delivery record.
type Message struct {
	ID                string            `json:"id"`
	To                []string          `json:"to"`
	CC                []string          `json:"cc,omitempty"`
	BCC               []string          `json:"bcc,omitempty"`
	From              string            `json:"from"`
	ReplyTo           string            `json:"replyTo,omitempty"`
	Subject           string            `json:"subject"`
	HTML              string            `json:"html,omitempty"`
	Text              string            `json:"text,omitempty"`
	Template          string            `json:"template,omitempty"`
	TemplateData      map[string]any    `json:"templateData,omitempty"`
	Attachments       []Attachment      `json:"attachments,omitempty"`
	Tags              []string          `json:"tags,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	Headers           map[string]string `json:"headers,omitempty"`
	ScheduledAt       *time.Time        `json:"scheduledAt,omitempty"`
	Status            Status            `json:"status"`
	Provider          string            `json:"provider,omitempty"`
	ProviderMessageID string            `json:"providerMessageId,omitempty"`
	Error             string            `json:"error,omitempty"`
	Attempts          int               `json:"attempts"`
	SentAt            *time.Time        `json:"sentAt,omitempty"`
	BouncedAt         *time.Time        `json:"bouncedAt,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

// HasBody reports whether the message carries html or text content.
func (m *Message) HasBody() bool {
	return strings.TrimSpace(m.HTML) != "" || strings.TrimSpace(m.Text) != ""
}

// Recipients returns to, cc and bcc addresses in order.
func (m *Message) Recipients() []string {
	out := make([]string, 0, len(m.To)+len(m.CC)+len(m.BCC))
	out = append(out, m.To...)
	out = append(out, m.CC...)
	out = append(out, m.BCC...)
	return out
}

// ValidateRequest checks the fields a caller must supply before rendering.
// A template reference stands in for html/text bodies.
func (m *Message) ValidateRequest() error {
	if len(m.To) == 0 {
		return fmt.Errorf("%w: at least one recipient is required", ErrValidation)
	}
	if !m.HasBody() && strings.TrimSpace(m.Template) == "" {
		return fmt.Errorf("%w: html, text or template is required", ErrValidation)
	}
	if total := len(m.Recipients()); total > MaxRecipients {
		return fmt.Errorf("%w: message has %d recipients, max is %d", ErrValidation, total, MaxRecipients)
	}

	for _, field := range []struct {
		name  string
		addrs []string
	}{
		{name: "to", addrs: m.To},
		{name: "cc", addrs: m.CC},
		{name: "bcc", addrs: m.BCC},
	} {
		for _, addr := range field.addrs {
			if err := validateAddress(addr); err != nil {
				return fmt.Errorf("%w: invalid %s address %q", ErrValidation, field.name, addr)
			}
		}
	}
	if m.From != "" {
		if err := validateAddress(m.From); err != nil {
			return fmt.Errorf("%w: invalid from address %q", ErrValidation, m.From)
		}
	}
	if m.ReplyTo != "" {
		if err := validateAddress(m.ReplyTo); err != nil {
			return fmt.Errorf("%w: invalid replyTo address %q", ErrValidation, m.ReplyTo)
		}
	}

	for i, a := range m.Attachments {
		if strings.TrimSpace(a.Filename) == "" {
			return fmt.Errorf("%w: attachment %d has no filename", ErrValidation, i)
		}
		if a.Content == "" {
			return fmt.Errorf("%w: attachment %q has no content", ErrValidation, a.Filename)
		}
		if len(a.Content) > MaxAttachmentSize {
			return fmt.Errorf("%w: attachment %q exceeds %d bytes", ErrValidation, a.Filename, MaxAttachmentSize)
		}
		if _, err := base64.StdEncoding.DecodeString(a.Content); err != nil {
			return fmt.Errorf("%w: attachment %q content is not valid base64", ErrValidation, a.Filename)
		}
	}

	return nil
}

// Validate checks a fully rendered message is deliverable.
func (m *Message) Validate() error {
	if err := m.ValidateRequest(); err != nil {
		return err
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrValidation)
	}
	if len(m.Subject) > MaxSubjectLength {
		return fmt.Errorf("%w: subject exceeds %d characters", ErrValidation, MaxSubjectLength)
	}
	if !m.HasBody() {
		return fmt.Errorf("%w: html or text body is required", ErrValidation)
	}
	return nil
}

// Normalize trims addresses, drops empty entries and deduplicates tags.
func (m *Message) Normalize() {
	m.To = cleanList(m.To)
	m.CC = cleanList(m.CC)
	m.BCC = cleanList(m.BCC)
	m.From = strings.TrimSpace(m.From)
	m.ReplyTo = strings.TrimSpace(m.ReplyTo)
	m.Subject = strings.TrimSpace(m.Subject)
	m.Template = strings.TrimSpace(m.Template)

	if len(m.Tags) > 0 {
		seen := make(map[string]struct{}, len(m.Tags))
		tags := make([]string, 0, len(m.Tags))
		for _, tag := range m.Tags {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			tags = append(tags, tag)
		}
		m.Tags = tags
	}
}

// AddressEmail returns the bare address of an "email" or "Name <email>" string.
func AddressEmail(addr string) string {
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return strings.TrimSpace(addr)
	}
	return parsed.Address
}

func validateAddress(addr string) error {
	_, err := mail.ParseAddress(addr)
	return err
}

func cleanList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
