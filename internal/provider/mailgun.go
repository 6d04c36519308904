package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/mail-engine/internal/domain"
	"github.com/mailgun/mailgun-go/v4"
)

const (
	mailgunSendTimeout = 30 * time.Second
	mailgunMaxTags     = 3
)

// MailgunProvider sends email via the Mailgun API.
type MailgunProvider struct {
	client *mailgun.MailgunImpl
}

func NewMailgunProvider(apiKey, domainName, apiBase string) (*MailgunProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("mailgun api key is required")
	}
	if strings.TrimSpace(domainName) == "" {
		return nil, fmt.Errorf("mailgun domain is required")
	}

	mg := mailgun.NewMailgun(strings.TrimSpace(domainName), strings.TrimSpace(apiKey))
	if base := strings.TrimSpace(apiBase); base != "" {
		mg.SetAPIBase(base)
	}

	return &MailgunProvider{client: mg}, nil
}

func (p *MailgunProvider) Name() string {
	return NameMailgun
}

func (p *MailgunProvider) Send(ctx context.Context, message domain.Message) (*Response, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}

	m := p.client.NewMessage(message.From, message.Subject, message.Text, message.To...)
	if message.HTML != "" {
		m.SetHtml(message.HTML)
	}
	for _, cc := range message.CC {
		m.AddCC(cc)
	}
	for _, bcc := range message.BCC {
		m.AddBCC(bcc)
	}
	if message.ReplyTo != "" {
		m.SetReplyTo(message.ReplyTo)
	}
	for name, value := range message.Headers {
		m.AddHeader(name, value)
	}

	tags := make([]string, 0, len(message.Tags))
	for _, tag := range message.Tags {
		if tag = sanitizeTag(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	if len(tags) > mailgunMaxTags {
		tags = tags[:mailgunMaxTags]
	}
	if len(tags) > 0 {
		if err := m.AddTag(tags...); err != nil {
			return nil, &ProviderError{Provider: NameMailgun, Message: "invalid tags", Cause: err}
		}
	}
	if message.ID != "" {
		if err := m.AddVariable(MessageIDTag, message.ID); err != nil {
			return nil, &ProviderError{Provider: NameMailgun, Message: "invalid variable", Cause: err}
		}
	}

	attachments, err := decodeAttachments(NameMailgun, message.Attachments)
	if err != nil {
		return nil, err
	}
	for _, a := range attachments {
		m.AddBufferAttachment(a.Filename, a.Content)
	}

	sendCtx, cancel := context.WithTimeout(ctx, mailgunSendTimeout)
	defer cancel()

	_, id, err := p.client.Send(sendCtx, m)
	if err != nil {
		return nil, mailgunError(err)
	}

	return &Response{Provider: NameMailgun, MessageID: strings.Trim(id, "<>")}, nil
}

func mailgunError(err error) error {
	status := mailgun.GetStatusFromErr(err)
	if status <= 0 {
		return requestError(NameMailgun, err)
	}
	return &ProviderError{
		Provider:   NameMailgun,
		StatusCode: status,
		Message:    fmt.Sprintf("provider returned status %d", status),
		Transient:  isTransientHTTPStatus(status),
		Cause:      err,
	}
}
