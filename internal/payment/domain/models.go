package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	BillingTypePix        = "PIX"
	BillingTypeBoleto     = "BOLETO"
	BillingTypeCreditCard = "CREDIT_CARD"
)

func ValidBillingType(value string) bool {
	switch value {
	case BillingTypePix, BillingTypeBoleto, BillingTypeCreditCard:
		return true
	default:
		return false
	}
}

const (
	EventPaymentReceived  = "PAYMENT_RECEIVED"
	EventPaymentConfirmed = "PAYMENT_CONFIRMED"
)

// Customer is the identity sent to the provider when creating a remote
// customer record.
type Customer struct {
	UserID snowflake.ID
	Name   string
	Email  string
	TaxID  string
	Phone  string
}

type ChargeRequest struct {
	OrderID     snowflake.ID
	CustomerID  string
	BillingType string
	Amount      decimal.Decimal
	DueDate     time.Time
}

// ChargeResult carries the provider payment id and its raw response, which
// is stored verbatim on the order.
type ChargeResult struct {
	ID  string
	Raw json.RawMessage
}

// WebhookRecord is the append-only audit row of an inbound provider event.
type WebhookRecord struct {
	ID        snowflake.ID   `gorm:"primaryKey" json:"id"`
	Provider  string         `gorm:"not null" json:"provider"`
	WebhookID string         `json:"webhook_id"`
	EventType string         `json:"event_type"`
	Payload   datatypes.JSON `gorm:"not null" json:"payload"`
	Processed bool           `gorm:"not null" json:"processed"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
}

func (WebhookRecord) TableName() string { return "payment_webhooks" }

// WebhookEvent is the provider envelope reduced to what reconciliation reads.
type WebhookEvent struct {
	ID        string
	Type      string
	PaymentID string
}

// Settles reports whether the event confirms money was received.
func (e WebhookEvent) Settles() bool {
	return (e.Type == EventPaymentReceived || e.Type == EventPaymentConfirmed) && e.PaymentID != ""
}

type AdapterConfig struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
	Timeout       time.Duration
}
