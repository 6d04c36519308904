package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kursadbilgin/mail-engine/internal/domain"
)

// EventCategory groups provider event types by their effect on delivery state.
type EventCategory string

const (
	CategoryBounce          EventCategory = "bounce"
	CategoryComplaint       EventCategory = "complaint"
	CategoryDeliveryFailure EventCategory = "delivery_failure"
	CategoryOther           EventCategory = "other"
)

// Marks reports whether the category moves a message to bounced.
func (c EventCategory) Marks() bool {
	return c == CategoryBounce || c == CategoryComplaint
}

// Event is one provider callback normalized across providers.
type Event struct {
	Provider          string
	Type              string
	Category          EventCategory
	MessageID         string
	ProviderMessageID string
	Recipient         string
	Reason            string
}

// ParseEvents decodes a webhook payload for the named provider.
func ParseEvents(provider string, payload []byte) ([]Event, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case NameResend:
		return parseResend(payload)
	case NameSendGrid:
		return parseSendGrid(payload)
	case NameMailgun:
		return parseMailgun(payload)
	case NameSES:
		return parseSES(payload)
	default:
		return nil, fmt.Errorf("%w: unsupported webhook provider %q", domain.ErrValidation, provider)
	}
}

type resendEvent struct {
	Type string `json:"type"`
	Data struct {
		EmailID string          `json:"email_id"`
		To      []string        `json:"to"`
		Tags    json.RawMessage `json:"tags"`
		Bounce  struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"bounce"`
	} `json:"data"`
}

func parseResend(payload []byte) ([]Event, error) {
	var raw resendEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode resend webhook: %w", err)
	}

	event := Event{
		Provider:          NameResend,
		Type:              raw.Type,
		ProviderMessageID: raw.Data.EmailID,
		MessageID:         resendTag(raw.Data.Tags, MessageIDTag),
		Reason:            raw.Data.Bounce.Message,
	}
	if len(raw.Data.To) > 0 {
		event.Recipient = raw.Data.To[0]
	}

	switch raw.Type {
	case "email.bounced":
		event.Category = CategoryBounce
	case "email.complained":
		event.Category = CategoryComplaint
	case "email.delivery_delayed", "email.failed":
		event.Category = CategoryDeliveryFailure
	default:
		event.Category = CategoryOther
	}
	return []Event{event}, nil
}

// resendTag reads a tag from either the object or the array form of data.tags.
func resendTag(raw json.RawMessage, name string) string {
	if len(raw) == 0 {
		return ""
	}

	var asMap map[string]string
	if err := json.Unmarshal(raw, &asMap); err == nil {
		return asMap[name]
	}

	var asList []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &asList); err == nil {
		for _, tag := range asList {
			if tag.Name == name {
				return tag.Value
			}
		}
	}
	return ""
}

type sendGridEvent struct {
	Event       string `json:"event"`
	Email       string `json:"email"`
	MessageID   string `json:"message_id"`
	SGMessageID string `json:"sg_message_id"`
	Reason      string `json:"reason"`
	Type        string `json:"type"`
}

func parseSendGrid(payload []byte) ([]Event, error) {
	var raw []sendGridEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode sendgrid webhook: %w", err)
	}

	events := make([]Event, 0, len(raw))
	for _, r := range raw {
		event := Event{
			Provider:          NameSendGrid,
			Type:              r.Event,
			MessageID:         r.MessageID,
			ProviderMessageID: sendGridBaseID(r.SGMessageID),
			Recipient:         r.Email,
			Reason:            r.Reason,
		}
		switch r.Event {
		case "bounce":
			// Newer payloads report blocks as bounce events with type=blocked.
			if r.Type == "blocked" {
				event.Category = CategoryDeliveryFailure
			} else {
				event.Category = CategoryBounce
			}
		case "spamreport":
			event.Category = CategoryComplaint
		case "dropped", "deferred":
			event.Category = CategoryDeliveryFailure
		default:
			event.Category = CategoryOther
		}
		events = append(events, event)
	}
	return events, nil
}

// sendGridBaseID trims the filter suffix SendGrid appends to X-Message-Id.
func sendGridBaseID(id string) string {
	if i := strings.Index(id, "."); i > 0 {
		return id[:i]
	}
	return id
}

type mailgunEvent struct {
	EventData struct {
		Event          string         `json:"event"`
		Severity       string         `json:"severity"`
		Recipient      string         `json:"recipient"`
		Reason         string         `json:"reason"`
		UserVariables  map[string]any `json:"user-variables"`
		DeliveryStatus struct {
			Description string `json:"description"`
			Message     string `json:"message"`
		} `json:"delivery-status"`
		Message struct {
			Headers struct {
				MessageID string `json:"message-id"`
			} `json:"headers"`
		} `json:"message"`
	} `json:"event-data"`
}

func parseMailgun(payload []byte) ([]Event, error) {
	var raw mailgunEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode mailgun webhook: %w", err)
	}

	data := raw.EventData
	event := Event{
		Provider:          NameMailgun,
		Type:              data.Event,
		ProviderMessageID: strings.Trim(data.Message.Headers.MessageID, "<>"),
		Recipient:         data.Recipient,
		Reason:            firstNonEmpty(data.DeliveryStatus.Description, data.DeliveryStatus.Message, data.Reason),
	}
	if v, ok := data.UserVariables[MessageIDTag].(string); ok {
		event.MessageID = v
	}

	switch data.Event {
	case "failed":
		if data.Severity == "permanent" {
			event.Category = CategoryBounce
		} else {
			event.Category = CategoryDeliveryFailure
		}
	case "complained":
		event.Category = CategoryComplaint
	default:
		event.Category = CategoryOther
	}
	return []Event{event}, nil
}

type snsEnvelope struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

type sesNotification struct {
	NotificationType string `json:"notificationType"`
	EventType        string `json:"eventType"`
	Mail             struct {
		MessageID string              `json:"messageId"`
		Tags      map[string][]string `json:"tags"`
	} `json:"mail"`
	Bounce struct {
		BounceType        string `json:"bounceType"`
		BounceSubType     string `json:"bounceSubType"`
		BouncedRecipients []struct {
			EmailAddress   string `json:"emailAddress"`
			DiagnosticCode string `json:"diagnosticCode"`
		} `json:"bouncedRecipients"`
	} `json:"bounce"`
	Complaint struct {
		ComplaintFeedbackType string `json:"complaintFeedbackType"`
		ComplainedRecipients  []struct {
			EmailAddress string `json:"emailAddress"`
		} `json:"complainedRecipients"`
	} `json:"complaint"`
}

func parseSES(payload []byte) ([]Event, error) {
	var envelope snsEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode ses webhook: %w", err)
	}

	if envelope.Type != "" && envelope.Type != "Notification" {
		return []Event{{Provider: NameSES, Type: envelope.Type, Category: CategoryOther}}, nil
	}

	body := payload
	if envelope.Message != "" {
		body = []byte(envelope.Message)
	}

	var n sesNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("failed to decode ses notification: %w", err)
	}

	kind := firstNonEmpty(n.NotificationType, n.EventType)
	event := Event{
		Provider:          NameSES,
		Type:              kind,
		ProviderMessageID: n.Mail.MessageID,
		Category:          CategoryOther,
	}
	if ids := n.Mail.Tags[MessageIDTag]; len(ids) > 0 {
		event.MessageID = ids[0]
	}

	switch kind {
	case "Bounce":
		if n.Bounce.BounceType == "Transient" {
			event.Category = CategoryDeliveryFailure
		} else {
			event.Category = CategoryBounce
		}
		event.Reason = strings.TrimSpace(n.Bounce.BounceType + " " + n.Bounce.BounceSubType)
		if len(n.Bounce.BouncedRecipients) > 0 {
			event.Recipient = n.Bounce.BouncedRecipients[0].EmailAddress
			if code := n.Bounce.BouncedRecipients[0].DiagnosticCode; code != "" {
				event.Reason = code
			}
		}
	case "Complaint":
		event.Category = CategoryComplaint
		event.Reason = n.Complaint.ComplaintFeedbackType
		if len(n.Complaint.ComplainedRecipients) > 0 {
			event.Recipient = n.Complaint.ComplainedRecipients[0].EmailAddress
		}
	case "Reject", "Rendering Failure":
		event.Category = CategoryDeliveryFailure
	}
	return []Event{event}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
