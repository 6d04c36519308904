package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/smithy-go"
	"github.com/kursadbilgin/mail-engine/internal/domain"
)

const sesCharset = "UTF-8"

// SESAPI is the subset of the SES client the provider calls.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
	SendRawEmail(ctx context.Context, params *ses.SendRawEmailInput, optFns ...func(*ses.Options)) (*ses.SendRawEmailOutput, error)
}

// SESProvider sends email via Amazon SES.
type SESProvider struct {
	client           SESAPI
	configurationSet string
}

func NewSESProvider(ctx context.Context, region, accessKeyID, secretAccessKey, configurationSet string) (*SESProvider, error) {
	if strings.TrimSpace(region) == "" {
		return nil, fmt.Errorf("ses region is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(strings.TrimSpace(region))}
	if accessKeyID != "" && secretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return NewSESProviderWithClient(ses.NewFromConfig(awsCfg), configurationSet)
}

func NewSESProviderWithClient(client SESAPI, configurationSet string) (*SESProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("ses client is required")
	}
	return &SESProvider{client: client, configurationSet: strings.TrimSpace(configurationSet)}, nil
}

func (p *SESProvider) Name() string {
	return NameSES
}

func (p *SESProvider) Send(ctx context.Context, message domain.Message) (*Response, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}

	if len(message.Attachments) > 0 || len(message.Headers) > 0 {
		return p.sendRaw(ctx, message)
	}

	input := &ses.SendEmailInput{
		Source: aws.String(message.From),
		Destination: &types.Destination{
			ToAddresses:  message.To,
			CcAddresses:  message.CC,
			BccAddresses: message.BCC,
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(message.Subject), Charset: aws.String(sesCharset)},
			Body:    &types.Body{},
		},
		Tags: p.tags(message),
	}
	if message.Text != "" {
		input.Message.Body.Text = &types.Content{Data: aws.String(message.Text), Charset: aws.String(sesCharset)}
	}
	if message.HTML != "" {
		input.Message.Body.Html = &types.Content{Data: aws.String(message.HTML), Charset: aws.String(sesCharset)}
	}
	if message.ReplyTo != "" {
		input.ReplyToAddresses = []string{message.ReplyTo}
	}
	if p.configurationSet != "" {
		input.ConfigurationSetName = aws.String(p.configurationSet)
	}

	out, err := p.client.SendEmail(ctx, input)
	if err != nil {
		return nil, sesError(err)
	}
	return &Response{Provider: NameSES, MessageID: aws.ToString(out.MessageId)}, nil
}

func (p *SESProvider) sendRaw(ctx context.Context, message domain.Message) (*Response, error) {
	attachments, err := decodeAttachments(NameSES, message.Attachments)
	if err != nil {
		return nil, err
	}

	raw, err := buildMIME(message, attachments)
	if err != nil {
		return nil, &ProviderError{Provider: NameSES, Message: "failed to build mime message", Cause: err}
	}

	destinations := make([]string, 0, len(message.Recipients()))
	for _, addr := range message.Recipients() {
		destinations = append(destinations, domain.AddressEmail(addr))
	}

	input := &ses.SendRawEmailInput{
		RawMessage:   &types.RawMessage{Data: raw},
		Source:       aws.String(message.From),
		Destinations: destinations,
		Tags:         p.tags(message),
	}
	if p.configurationSet != "" {
		input.ConfigurationSetName = aws.String(p.configurationSet)
	}

	out, err := p.client.SendRawEmail(ctx, input)
	if err != nil {
		return nil, sesError(err)
	}
	return &Response{Provider: NameSES, MessageID: aws.ToString(out.MessageId)}, nil
}

func (p *SESProvider) tags(message domain.Message) []types.MessageTag {
	tags := make([]types.MessageTag, 0, len(message.Tags)+1)
	if message.ID != "" {
		tags = append(tags, types.MessageTag{Name: aws.String(MessageIDTag), Value: aws.String(message.ID)})
	}
	for _, tag := range message.Tags {
		if tag = sanitizeTag(tag); tag != "" && tag != MessageIDTag {
			tags = append(tags, types.MessageTag{Name: aws.String(tag), Value: aws.String("true")})
		}
	}
	return tags
}

var sesTransientCodes = map[string]struct{}{
	"Throttling":          {},
	"ThrottlingException": {},
	"ServiceUnavailable":  {},
	"InternalFailure":     {},
	"RequestTimeout":      {},
}

func sesError(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return requestError(NameSES, err)
	}

	_, transient := sesTransientCodes[apiErr.ErrorCode()]
	return &ProviderError{
		Provider:  NameSES,
		Message:   apiErr.ErrorCode(),
		Detail:    apiErr.ErrorMessage(),
		Transient: transient,
		Cause:     err,
	}
}
