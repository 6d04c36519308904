package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/mail-engine/internal/domain"
)

const (
	defaultHTTPTimeout  = 10 * time.Second
	sendGridSendPath    = "/v3/mail/send"
	sendGridMessageIDHd = "X-Message-Id"
)

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridPersonalization struct {
	To         []sendGridAddress `json:"to"`
	CC         []sendGridAddress `json:"cc,omitempty"`
	BCC        []sendGridAddress `json:"bcc,omitempty"`
	CustomArgs map[string]string `json:"custom_args,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridAttachment struct {
	Content     string `json:"content"`
	Filename    string `json:"filename"`
	Type        string `json:"type,omitempty"`
	Disposition string `json:"disposition,omitempty"`
}

type sendGridRequest struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	ReplyTo          *sendGridAddress          `json:"reply_to,omitempty"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
	Attachments      []sendGridAttachment      `json:"attachments,omitempty"`
	Categories       []string                  `json:"categories,omitempty"`
	Headers          map[string]string         `json:"headers,omitempty"`
}

// SendGridProvider sends email through the SendGrid v3 mail API.
type SendGridProvider struct {
	client   *resty.Client
	endpoint string
	apiKey   string
}

func NewSendGridProvider(baseURL, apiKey string) (*SendGridProvider, error) {
	client := resty.New()
	client.SetTimeout(defaultHTTPTimeout)
	client.SetRetryCount(0)

	return NewSendGridProviderWithClient(baseURL, apiKey, client)
}

func NewSendGridProviderWithClient(baseURL, apiKey string, client *resty.Client) (*SendGridProvider, error) {
	trimmedBase := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedBase == "" {
		return nil, fmt.Errorf("sendgrid base url is required")
	}
	if _, err := url.ParseRequestURI(trimmedBase); err != nil {
		return nil, fmt.Errorf("invalid sendgrid base url: %w", err)
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("sendgrid api key is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultHTTPTimeout)
	}
	client.SetRetryCount(0)

	return &SendGridProvider{
		client:   client,
		endpoint: trimmedBase + sendGridSendPath,
		apiKey:   strings.TrimSpace(apiKey),
	}, nil
}

func (p *SendGridProvider) Name() string {
	return NameSendGrid
}

func (p *SendGridProvider) Send(ctx context.Context, message domain.Message) (*Response, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}

	reqBody, err := p.buildRequest(message)
	if err != nil {
		return nil, err
	}

	response, err := p.client.R().
		SetContext(ctx).
		SetAuthToken(p.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		Post(p.endpoint)
	if err != nil {
		return nil, requestError(NameSendGrid, err)
	}
	if response == nil {
		return nil, &ProviderError{
			Provider:  NameSendGrid,
			Message:   "provider returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &Response{
			Provider:   NameSendGrid,
			StatusCode: statusCode,
			MessageID:  strings.TrimSpace(response.Header().Get(sendGridMessageIDHd)),
		}, nil
	}

	return nil, &ProviderError{
		Provider:   NameSendGrid,
		StatusCode: statusCode,
		Message:    fmt.Sprintf("provider returned status %d", statusCode),
		Detail:     responseBody,
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func (p *SendGridProvider) buildRequest(message domain.Message) (*sendGridRequest, error) {
	personalization := sendGridPersonalization{
		To:  sendGridAddresses(message.To),
		CC:  sendGridAddresses(message.CC),
		BCC: sendGridAddresses(message.BCC),
	}
	if message.ID != "" {
		personalization.CustomArgs = map[string]string{MessageIDTag: message.ID}
	}

	req := &sendGridRequest{
		Personalizations: []sendGridPersonalization{personalization},
		From:             sendGridAddressOf(message.From),
		Subject:          message.Subject,
		Headers:          message.Headers,
	}
	if message.ReplyTo != "" {
		replyTo := sendGridAddressOf(message.ReplyTo)
		req.ReplyTo = &replyTo
	}

	// SendGrid requires text/plain before text/html.
	if message.Text != "" {
		req.Content = append(req.Content, sendGridContent{Type: "text/plain", Value: message.Text})
	}
	if message.HTML != "" {
		req.Content = append(req.Content, sendGridContent{Type: "text/html", Value: message.HTML})
	}

	for _, tag := range message.Tags {
		if tag = sanitizeTag(tag); tag != "" {
			req.Categories = append(req.Categories, tag)
		}
	}

	attachments, err := decodeAttachments(NameSendGrid, message.Attachments)
	if err != nil {
		return nil, err
	}
	for _, a := range attachments {
		req.Attachments = append(req.Attachments, sendGridAttachment{
			Content:     base64.StdEncoding.EncodeToString(a.Content),
			Filename:    a.Filename,
			Type:        a.ContentType,
			Disposition: "attachment",
		})
	}

	return req, nil
}

func sendGridAddresses(addrs []string) []sendGridAddress {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]sendGridAddress, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, sendGridAddressOf(addr))
	}
	return out
}

func sendGridAddressOf(addr string) sendGridAddress {
	name, email := splitAddress(addr)
	return sendGridAddress{Email: email, Name: name}
}
