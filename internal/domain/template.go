package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var templateIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// Template is a named, reusable subject/html/text pattern.
type Template struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Subject   string    `json:"subject"`
	HTML      string    `json:"html"`
	Text      string    `json:"text,omitempty"`
	Variables []string  `json:"variables"`
	BuiltIn   bool      `json:"builtIn"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (t *Template) Validate() error {
	if !templateIDPattern.MatchString(t.ID) {
		return fmt.Errorf("%w: template id %q must match %s", ErrValidation, t.ID, templateIDPattern)
	}
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: template name is required", ErrValidation)
	}
	if strings.TrimSpace(t.Subject) == "" {
		return fmt.Errorf("%w: template subject is required", ErrValidation)
	}
	if strings.TrimSpace(t.HTML) == "" {
		return fmt.Errorf("%w: template html is required", ErrValidation)
	}
	return nil
}

// WebhookRecord is an append-only audit entry of a raw provider callback.
type WebhookRecord struct {
	Provider   string    `json:"provider"`
	ReceivedAt time.Time `json:"receivedAt"`
	Payload    []byte    `json:"payload"`
}
