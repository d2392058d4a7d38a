package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/ticketing/internal/apperror"
)

type CreateTicketClassRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Type        TicketClassType `json:"type"`
}

type CreateEventRequest struct {
	Name          string                     `json:"name"`
	Description   string                     `json:"description"`
	StartAt       time.Time                  `json:"start_at"`
	EndAt         time.Time                  `json:"end_at"`
	Location      string                     `json:"location"`
	City          string                     `json:"city"`
	State         string                     `json:"state"`
	TicketClasses []CreateTicketClassRequest `json:"ticket_classes"`
}

type Service interface {
	ListUpcoming(ctx context.Context, now time.Time) ([]Event, error)
	Get(ctx context.Context, ref string) (Event, error)
	Create(ctx context.Context, req CreateEventRequest) (Event, error)
}

var (
	ErrInvalidName          = apperror.Validation("invalid_name", "name", "name is required")
	ErrInvalidSchedule      = apperror.Validation("invalid_schedule", "end_at", "event must end after it starts")
	ErrNoTicketClasses      = apperror.Validation("invalid_ticket_classes", "ticket_classes", "at least one ticket class is required")
	ErrInvalidClassName     = apperror.Validation("invalid_ticket_class_name", "ticket_classes.name", "ticket class name is required")
	ErrInvalidClassType     = apperror.Validation("invalid_ticket_class_type", "ticket_classes.type", "ticket class type must be general, complimentary or vip")
	ErrNegativePrice        = apperror.Validation("invalid_price", "ticket_classes.price", "price must not be negative")
	ErrComplimentaryPricing = apperror.Validation("complimentary_price", "ticket_classes.price", "complimentary ticket classes must be free")
	ErrNotFound             = apperror.NotFound("event_not_found", "event not found")
)
