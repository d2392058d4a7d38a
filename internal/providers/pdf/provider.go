package pdf

import (
	"context"
	"time"
)

// TicketData is everything printed on a ticket.
type TicketData struct {
	EventName     string
	EventStartAt  time.Time
	EventLocation string
	ClassName     string
	HolderName    string
	HolderEmail   string
	QRCode        string
	QRImage       []byte
}

type Provider interface {
	TicketPDF(ctx context.Context, data TicketData) ([]byte, error)
}

type PDFProvider struct{}

func NewProvider() Provider {
	return &PDFProvider{}
}
