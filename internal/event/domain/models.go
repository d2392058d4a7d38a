package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type TicketClassType string

const (
	TicketClassGeneral       TicketClassType = "general"
	TicketClassComplimentary TicketClassType = "complimentary"
	TicketClassVIP           TicketClassType = "vip"
)

func (t TicketClassType) Valid() bool {
	switch t {
	case TicketClassGeneral, TicketClassComplimentary, TicketClassVIP:
		return true
	default:
		return false
	}
}

type Event struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	Name          string        `gorm:"not null" json:"name"`
	Slug          string        `gorm:"not null;uniqueIndex" json:"slug"`
	Description   string        `json:"description,omitempty"`
	StartAt       time.Time     `gorm:"not null" json:"start_at"`
	EndAt         time.Time     `gorm:"not null" json:"end_at"`
	Location      string        `json:"location,omitempty"`
	City          string        `json:"city,omitempty"`
	State         string        `json:"state,omitempty"`
	IsActive      bool          `gorm:"not null" json:"is_active"`
	CreatedAt     time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time     `gorm:"not null" json:"updated_at"`
	TicketClasses []TicketClass `gorm:"-" json:"ticket_classes,omitempty"`
}

// TicketClass prices one kind of admission. Complimentary classes are
// always free.
type TicketClass struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	EventID     snowflake.ID    `gorm:"not null;index" json:"event_id"`
	Name        string          `gorm:"not null" json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Type        TicketClassType `gorm:"not null" json:"type"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
}
