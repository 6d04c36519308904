package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/kursadbilgin/mail-engine/internal/domain"
	"github.com/resend/resend-go/v2"
)

// ResendProvider sends email via the Resend API.
type ResendProvider struct {
	client *resend.Client
}

func NewResendProvider(apiKey, baseURL string) (*ResendProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("resend api key is required")
	}

	client := resend.NewClient(apiKey)
	if base := strings.TrimSpace(baseURL); base != "" {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		parsed, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid resend base url: %w", err)
		}
		client.BaseURL = parsed
	}

	return &ResendProvider{client: client}, nil
}

func (p *ResendProvider) Name() string {
	return NameResend
}

func (p *ResendProvider) Send(ctx context.Context, message domain.Message) (*Response, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}

	params := &resend.SendEmailRequest{
		From:    message.From,
		To:      message.To,
		Cc:      message.CC,
		Bcc:     message.BCC,
		ReplyTo: message.ReplyTo,
		Subject: message.Subject,
		Html:    message.HTML,
		Text:    message.Text,
		Headers: message.Headers,
	}

	if message.ID != "" {
		params.Tags = append(params.Tags, resend.Tag{Name: MessageIDTag, Value: message.ID})
	}
	for _, tag := range message.Tags {
		if tag = sanitizeTag(tag); tag != "" && tag != MessageIDTag {
			params.Tags = append(params.Tags, resend.Tag{Name: tag, Value: "true"})
		}
	}

	attachments, err := decodeAttachments(NameResend, message.Attachments)
	if err != nil {
		return nil, err
	}
	for _, a := range attachments {
		params.Attachments = append(params.Attachments, &resend.Attachment{
			Filename:    a.Filename,
			Content:     a.Content,
			ContentType: a.ContentType,
		})
	}

	sent, err := p.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return nil, resendError(err)
	}

	resp := &Response{Provider: NameResend}
	if sent != nil {
		resp.MessageID = sent.Id
	}
	return resp, nil
}

func resendError(err error) error {
	var rateErr *resend.RateLimitError
	if errors.As(err, &rateErr) {
		return &ProviderError{
			Provider:   NameResend,
			StatusCode: 429,
			Message:    "rate limited",
			Detail:     rateErr.Message,
			Transient:  true,
			Cause:      err,
		}
	}

	providerErr := requestError(NameResend, err)
	// The client reports API rejections as plain errors prefixed with [ERROR].
	if strings.HasPrefix(err.Error(), "[ERROR]") {
		providerErr.Message = "provider rejected request"
		providerErr.Transient = false
	}
	return providerErr
}
