package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Type string

const (
	TypeTicketConfirmation Type = "ticket_confirmation"
	TypeWelcome            Type = "welcome"
	TypeComplimentaryLink  Type = "complimentary_link"
)

// EmailLog records one delivery attempt. Rows are never updated.
type EmailLog struct {
	ID           snowflake.ID  `gorm:"primaryKey" json:"id"`
	EmailType    Type          `gorm:"not null" json:"email_type"`
	Recipient    string        `gorm:"not null" json:"recipient"`
	Subject      string        `json:"subject"`
	UserID       *snowflake.ID `json:"user_id,omitempty"`
	OrderID      *snowflake.ID `json:"order_id,omitempty"`
	TicketID     *snowflake.ID `json:"ticket_id,omitempty"`
	Success      bool          `gorm:"not null" json:"success"`
	ErrorMessage string        `json:"error_message,omitempty"`
	SentAt       time.Time     `gorm:"not null" json:"sent_at"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *EmailLog) error
	ListByTicket(ctx context.Context, db *gorm.DB, ticketID snowflake.ID) ([]*EmailLog, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, emailType Type) ([]*EmailLog, error)
}
