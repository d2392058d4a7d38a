package email

import (
	"context"

	"go.uber.org/zap"
)

type Attachment struct {
	Filename string
	Content  []byte
	MimeType string
}

type Message struct {
	To          string
	Subject     string
	HTMLBody    string
	TextBody    string
	Attachments []Attachment
}

// Provider delivers one message. Only success or failure is reported.
type Provider interface {
	Send(ctx context.Context, msg Message) error
}

// NoOpProvider drops messages after logging them. Used when no SMTP relay
// is configured.
type NoOpProvider struct {
	log *zap.Logger
}

func NewNoOp(log *zap.Logger) *NoOpProvider {
	return &NoOpProvider{log: log.Named("email.noop")}
}

func (p *NoOpProvider) Send(ctx context.Context, msg Message) error {
	p.log.Debug("email dropped",
		zap.String("subject", msg.Subject),
		zap.Int("attachments", len(msg.Attachments)),
	)
	return nil
}
