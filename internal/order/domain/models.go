package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	ticketdomain "github.com/smallbiznis/ticketing/internal/ticket/domain"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
	StatusFailed   Status = "failed"
	StatusRefunded Status = "refunded"
)

type State string

const (
	StateActive    State = "active"
	StateCancelled State = "cancelled"
	StateExpired   State = "expired"
)

// Fulfillment is derived from status, fulfilled_at and the tickets' delivery.
type Fulfillment string

const (
	FulfillmentAwaitingPayment  Fulfillment = "awaiting_payment"
	FulfillmentPaid             Fulfillment = "paid"
	FulfillmentTicketsGenerated Fulfillment = "tickets_generated"
	FulfillmentEmailsSent       Fulfillment = "emails_sent"
)

type Order struct {
	ID              snowflake.ID    `gorm:"primaryKey" json:"id"`
	UserID          *snowflake.ID   `gorm:"index" json:"user_id,omitempty"`
	Status          Status          `gorm:"not null" json:"status"`
	State           State           `gorm:"not null" json:"state"`
	RedemptionToken string          `gorm:"not null;uniqueIndex" json:"-"`
	TotalAmount     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_amount"`
	BillingType     string          `json:"billing_type,omitempty"`
	PaymentProvider string          `json:"payment_provider,omitempty"`
	PaymentID       *string         `gorm:"index" json:"payment_id,omitempty"`
	PaymentData     datatypes.JSON  `json:"payment_data,omitempty"`
	ExpiresAt       time.Time       `gorm:"not null" json:"expires_at"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	FulfilledAt     *time.Time      `json:"fulfilled_at,omitempty"`
	CreatedAt       time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"not null" json:"updated_at"`

	Items       []OrderItem           `gorm:"-" json:"items"`
	Tickets     []ticketdomain.Ticket `gorm:"-" json:"tickets"`
	Fulfillment Fulfillment           `gorm:"-" json:"fulfillment_state"`
}

func (o Order) IsPayable(now time.Time) bool {
	return o.Status == StatusPending &&
		o.State == StateActive &&
		o.TotalAmount.IsPositive() &&
		now.Before(o.ExpiresAt)
}

// FulfillmentState needs Tickets to be loaded to tell generated from sent.
func (o Order) FulfillmentState() Fulfillment {
	switch {
	case o.Status != StatusPaid:
		return FulfillmentAwaitingPayment
	case o.FulfilledAt == nil:
		return FulfillmentPaid
	}
	for _, t := range o.Tickets {
		if t.HolderEmail != "" && t.EmailedAt == nil {
			return FulfillmentTicketsGenerated
		}
	}
	return FulfillmentEmailsSent
}

// OrderItem is one priced line. Subtotal is always UnitPrice * Quantity.
type OrderItem struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrderID       snowflake.ID    `gorm:"not null;index" json:"order_id"`
	EventID       snowflake.ID    `gorm:"not null" json:"event_id"`
	TicketClassID snowflake.ID    `gorm:"not null" json:"ticket_class_id"`
	Quantity      int             `gorm:"not null" json:"quantity"`
	UnitPrice     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price"`
	Subtotal      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"subtotal"`
}

// Courtesy is the public view of an order reachable through its
// redemption token.
type Courtesy struct {
	OrderID     snowflake.ID    `json:"order_id"`
	Status      Status          `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	ExpiresAt   time.Time       `json:"expires_at"`
	Items       []OrderItem     `json:"items"`
}
