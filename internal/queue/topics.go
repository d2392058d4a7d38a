package queue

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	TopicOrderPaid             = "order.paid"
	TopicOrderTicketsGenerated = "order.tickets_generated"
	TopicTicketAssigned        = "ticket.assigned"
	TopicCheckInPresence       = "checkin.presence"
	TopicUserRegistered        = "user.registered"
)

type OrderPaid struct {
	OrderID snowflake.ID `json:"order_id"`
}

type OrderTicketsGenerated struct {
	OrderID snowflake.ID `json:"order_id"`
}

type TicketAssigned struct {
	TicketID snowflake.ID `json:"ticket_id"`
}

type CheckInPresence struct {
	TicketID    snowflake.ID `json:"ticket_id"`
	CheckedInAt time.Time    `json:"checked_in_at"`
	ClientIP    string       `json:"client_ip,omitempty"`
}

type UserRegistered struct {
	UserID snowflake.ID `json:"user_id"`
}
