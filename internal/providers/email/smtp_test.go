package email

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBuildIncludesBodiesAndAttachment(t *testing.T) {
	p := NewSMTP(Config{Host: "localhost", Port: 1025, From: "tickets@example.com"})

	mail, err := p.build(Message{
		To:       "ana@example.com",
		Subject:  "Your ticket",
		HTMLBody: "<p>See you there</p>",
		TextBody: "See you there",
		Attachments: []Attachment{{
			Filename: "ticket-1.pdf",
			Content:  []byte("%PDF-1.3"),
			MimeType: "application/pdf",
		}},
	})
	require.NoError(t, err)

	buf, err := mail.MimeBuf()
	require.NoError(t, err)
	raw := buf.String()
	assert.Contains(t, raw, "Subject: Your ticket")
	assert.Contains(t, raw, "ana@example.com")
	assert.Contains(t, raw, "ticket-1.pdf")
	assert.Contains(t, raw, "application/pdf")
	assert.Contains(t, raw, "text/plain")
}

func TestBuildRequiresRecipient(t *testing.T) {
	p := NewSMTP(Config{Host: "localhost", Port: 1025})

	_, err := p.build(Message{Subject: "x"})
	assert.ErrorIs(t, err, ErrNoRecipient)
}

func TestNoOpAcceptsEverything(t *testing.T) {
	assert.NoError(t, NewNoOp(zap.NewNop()).Send(context.Background(), Message{To: "a@b.c"}))
}
