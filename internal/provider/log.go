package provider

import (
	"context"

	"github.com/google/uuid"
	"github.com/kursadbilgin/mail-engine/internal/domain"
	"go.uber.org/zap"
)

// LogProvider writes the envelope to the logger instead of delivering it.
// Intended for local development.
type LogProvider struct {
	logger *zap.Logger
}

func NewLogProvider(logger *zap.Logger) *LogProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogProvider{logger: logger}
}

func (p *LogProvider) Name() string {
	return NameLog
}

func (p *LogProvider) Send(ctx context.Context, message domain.Message) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, requestError(NameLog, err)
	}

	providerMessageID := "log-" + uuid.NewString()
	p.logger.Info("email delivered to log transport",
		zap.String("messageId", message.ID),
		zap.String("providerMessageId", providerMessageID),
		zap.String("from", message.From),
		zap.Strings("to", message.To),
		zap.Strings("cc", message.CC),
		zap.Int("bccCount", len(message.BCC)),
		zap.String("subject", message.Subject),
		zap.Int("htmlBytes", len(message.HTML)),
		zap.Int("textBytes", len(message.Text)),
		zap.Int("attachments", len(message.Attachments)),
		zap.Strings("tags", message.Tags),
	)

	return &Response{Provider: NameLog, MessageID: providerMessageID}, nil
}
