package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/domodwyer/mailyak/v3"
)

var ErrNoRecipient = errors.New("email_no_recipient")

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPProvider struct {
	cfg  Config
	addr string
	auth smtp.Auth
}

func NewSMTP(cfg Config) *SMTPProvider {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPProvider{
		cfg:  cfg,
		addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		auth: auth,
	}
}

func (p *SMTPProvider) Send(ctx context.Context, msg Message) error {
	mail, err := p.build(msg)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := mail.Send(); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (p *SMTPProvider) build(msg Message) (*mailyak.MailYak, error) {
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return nil, ErrNoRecipient
	}

	mail := mailyak.New(p.addr, p.auth)
	mail.To(to)
	mail.From(p.cfg.From)
	mail.Subject(msg.Subject)
	mail.HTML().Set(msg.HTMLBody)
	if msg.TextBody != "" {
		mail.Plain().Set(msg.TextBody)
	}
	for _, attachment := range msg.Attachments {
		mail.AttachWithMimeType(attachment.Filename, bytes.NewReader(attachment.Content), attachment.MimeType)
	}
	return mail, nil
}
