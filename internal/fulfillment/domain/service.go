package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ticketing/internal/apperror"
	ticketdomain "github.com/smallbiznis/ticketing/internal/ticket/domain"
)

// Summary counts per-ticket outcomes of one delivery batch.
type Summary struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

type AssignHolderRequest struct {
	UserID   snowflake.ID `json:"-"`
	TicketID snowflake.ID `json:"-"`
	Name     string       `json:"name"`
	Email    string       `json:"email"`
}

type Service interface {
	// HandleOrderPaid issues the order's tickets once. Ineligible orders
	// are skipped without error.
	HandleOrderPaid(ctx context.Context, orderID snowflake.ID) error
	DeliverOrderTickets(ctx context.Context, orderID snowflake.ID) (Summary, error)
	AssignHolder(ctx context.Context, req AssignHolderRequest) (*ticketdomain.Ticket, error)
	DeliverTicket(ctx context.Context, ticketID snowflake.ID) error
	SendWelcome(ctx context.Context, userID snowflake.ID) error
}

var (
	ErrTicketNotFound      = apperror.NotFound("ticket_not_found", "ticket not found")
	ErrAlreadyAssigned     = apperror.Conflict("already_assigned", "ticket already has a holder")
	ErrInvalidHolderName   = apperror.Validation("invalid_holder_name", "name", "holder name is required")
	ErrInvalidHolderEmail  = apperror.Validation("invalid_holder_email", "email", "holder email is invalid")
	ErrOrderNotFound       = apperror.NotFound("order_not_found", "order not found")
	ErrRecipientNotFound   = apperror.NotFound("user_not_found", "user not found")
)
