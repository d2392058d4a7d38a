package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ticketing/internal/apperror"
	ticketdomain "github.com/smallbiznis/ticketing/internal/ticket/domain"
)

type Status string

const (
	StatusCheckedIn        Status = "checked_in"
	StatusAlreadyCheckedIn Status = "already_checked_in"
)

const (
	MessageCheckedIn        = "Check-in successful."
	MessageAlreadyCheckedIn = "User already checked in."
)

type Result struct {
	Status   Status       `json:"status"`
	Message  string       `json:"message"`
	TicketID snowflake.ID `json:"ticket_id"`
}

type RedeemRequest struct {
	QRCode  string
	StaffID snowflake.ID
}

type Service interface {
	// CheckIn admits the holder of token once. Repeated attempts succeed
	// with an already-checked-in notice and no side effects.
	CheckIn(ctx context.Context, token, clientIP string) (Result, error)
	Redeem(ctx context.Context, req RedeemRequest) (*ticketdomain.Ticket, error)
	// MarkPresent applies the deferred presence update. It is idempotent.
	MarkPresent(ctx context.Context, ticketID snowflake.ID, at time.Time) error
}

var (
	ErrInvalidToken    = apperror.Validation("invalid_token", "token", "token is invalid")
	ErrTicketNotFound  = apperror.NotFound("ticket_not_found", "ticket not found")
	ErrTicketNotValid  = apperror.Conflict("ticket_not_valid", "ticket is not valid for entry")
	ErrAlreadyRedeemed = apperror.Conflict("already_redeemed", "ticket already redeemed")
)
