package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type State string

const (
	StateUnassigned State = "unassigned"
	StateAssigned   State = "assigned"
	StateEmailed    State = "emailed"
)

// Ticket is one admission. QRCode is issued once and never reused.
type Ticket struct {
	ID          snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrderID     snowflake.ID  `gorm:"not null;index" json:"order_id"`
	OrderItemID snowflake.ID  `gorm:"not null;index" json:"order_item_id"`
	QRCode      string        `gorm:"column:qr_code;not null;uniqueIndex" json:"qr_code"`
	HolderName  string        `json:"holder_name,omitempty"`
	HolderEmail string        `json:"holder_email,omitempty"`
	IsRedeemed  bool          `gorm:"not null" json:"is_redeemed"`
	RedeemedAt  *time.Time    `json:"redeemed_at,omitempty"`
	RedeemedBy  *snowflake.ID `json:"redeemed_by,omitempty"`
	EmailedAt   *time.Time    `json:"emailed_at,omitempty"`
	CreatedAt   time.Time     `gorm:"not null" json:"created_at"`
}

func (t Ticket) HasHolder() bool {
	return strings.TrimSpace(t.HolderName) != "" || strings.TrimSpace(t.HolderEmail) != ""
}

func (t Ticket) State() State {
	switch {
	case t.EmailedAt != nil:
		return StateEmailed
	case t.HasHolder():
		return StateAssigned
	default:
		return StateUnassigned
	}
}

// Detail is a ticket joined with everything needed to render and mail it.
type Detail struct {
	Ticket

	OrderStatus   string        `gorm:"column:order_status"`
	OrderState    string        `gorm:"column:order_state"`
	OrderUserID   *snowflake.ID `gorm:"column:order_user_id"`
	EventID       snowflake.ID  `gorm:"column:event_id"`
	EventName     string        `gorm:"column:event_name"`
	EventLocation string        `gorm:"column:event_location"`
	EventCity     string        `gorm:"column:event_city"`
	EventStartAt  time.Time     `gorm:"column:event_start_at"`
	EventEndAt    time.Time     `gorm:"column:event_end_at"`
	ClassName     string        `gorm:"column:class_name"`
	ClassType     string        `gorm:"column:class_type"`
}

// Holder is the pending assignment for a seat.
type Holder struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}
