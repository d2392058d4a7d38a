package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/ticketing/internal/apperror"
	"github.com/smallbiznis/ticketing/internal/cache"
	"github.com/smallbiznis/ticketing/internal/config"
	"github.com/smallbiznis/ticketing/internal/providers/pdf"
	"github.com/smallbiznis/ticketing/internal/providers/qrcode"
	ticketdomain "github.com/smallbiznis/ticketing/internal/ticket/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type RendererParams struct {
	fx.In

	Log    *zap.Logger
	Store  cache.Store
	PDF    pdf.Provider
	Tuning *config.TuningHolder
}

// Renderer turns a ticket into its PDF. QR images are cached because the
// payload never changes once issued.
type Renderer struct {
	log    *zap.Logger
	store  cache.Store
	pdf    pdf.Provider
	tuning *config.TuningHolder
}

func NewRenderer(p RendererParams) *Renderer {
	return &Renderer{
		log:    p.Log.Named("fulfillment.renderer"),
		store:  p.Store,
		pdf:    p.PDF,
		tuning: p.Tuning,
	}
}

func qrCacheKey(ticket *ticketdomain.Detail) string {
	return fmt.Sprintf("qr_%s_%s", ticket.EventID.String(), ticket.QRCode)
}

func (r *Renderer) Render(ctx context.Context, ticket *ticketdomain.Detail) ([]byte, error) {
	image, err := r.qrImage(ctx, ticket)
	if err != nil {
		return nil, err
	}
	return r.pdf.TicketPDF(ctx, pdf.TicketData{
		EventName:     ticket.EventName,
		EventStartAt:  ticket.EventStartAt,
		EventLocation: location(ticket),
		ClassName:     ticket.ClassName,
		HolderName:    ticket.HolderName,
		HolderEmail:   ticket.HolderEmail,
		QRCode:        ticket.QRCode,
		QRImage:       image,
	})
}

func (r *Renderer) qrImage(ctx context.Context, ticket *ticketdomain.Detail) ([]byte, error) {
	key := qrCacheKey(ticket)
	if r.store != nil {
		cached, ok, err := r.store.Get(ctx, key)
		switch {
		case err != nil:
			r.log.Warn("qr cache read failed", zap.String("ticket_id", ticket.ID.String()), zap.Error(err))
		case ok && len(cached) > 0:
			return cached, nil
		}
	}

	image, err := qrcode.PNG(ticket.QRCode, qrcode.DefaultSize)
	if err != nil {
		return nil, apperror.Permanent(fmt.Errorf("render qr for ticket %s: %w", ticket.ID, err))
	}

	if r.store != nil {
		ttl := r.tuning.Get().Fulfillment.QRCacheTTL
		if err := r.store.Set(ctx, key, image, ttl); err != nil {
			r.log.Warn("qr cache write failed", zap.String("ticket_id", ticket.ID.String()), zap.Error(err))
		}
	}
	return image, nil
}

func location(ticket *ticketdomain.Detail) string {
	parts := make([]string, 0, 2)
	for _, p := range []string{ticket.EventLocation, ticket.EventCity} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
