package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ticketing/internal/apperror"
	ticketdomain "github.com/smallbiznis/ticketing/internal/ticket/domain"
	"github.com/smallbiznis/ticketing/pkg/db/pagination"
	"gorm.io/gorm"
)

type CreateOrderItem struct {
	TicketClassID snowflake.ID          `json:"ticket_class_id"`
	Quantity      int                   `json:"quantity"`
	Holders       []ticketdomain.Holder `json:"holders,omitempty"`
}

type CreateOrderRequest struct {
	UserID      snowflake.ID      `json:"-"`
	BillingType string            `json:"billing_type"`
	Items       []CreateOrderItem `json:"items"`
}

type ListOrdersResponse struct {
	Orders   []Order             `json:"orders"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type Service interface {
	Create(ctx context.Context, req CreateOrderRequest) (*Order, error)
	ListByUser(ctx context.Context, userID snowflake.ID, page pagination.Pagination) (ListOrdersResponse, error)
	Get(ctx context.Context, userID, orderID snowflake.ID) (*Order, error)
	CreateCharge(ctx context.Context, userID, orderID snowflake.ID, billingType string) (*Order, error)
	GetCourtesy(ctx context.Context, token string) (*Courtesy, error)
	// MarkPaid runs inside the caller's transaction.
	MarkPaid(ctx context.Context, tx *gorm.DB, orderID snowflake.ID, at time.Time) (bool, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

var (
	ErrEmptyItems          = apperror.Validation("empty_items", "items", "at least one item is required")
	ErrUnknownTicketClass  = apperror.Validation("unknown_ticket_class", "items.ticket_class_id", "ticket class does not exist")
	ErrInvalidQuantity     = apperror.Validation("invalid_quantity", "items.quantity", "quantity must be at least 1")
	ErrHolderCountMismatch = apperror.Validation("holder_count_mismatch", "items.holders", "holders must match the quantity")
	ErrInvalidBillingType  = apperror.Validation("invalid_billing_type", "billing_type", "billing type must be PIX, BOLETO or CREDIT_CARD")
	ErrInvalidHolderEmail  = apperror.Validation("invalid_holder_email", "items.holders.email", "holder email is invalid")
	ErrOrderNotPayable     = apperror.Conflict("order_not_payable", "order cannot be charged")
	ErrChargeExists        = apperror.Conflict("charge_exists", "order already has a charge with another billing type")
	ErrNotFound            = apperror.NotFound("order_not_found", "order not found")
	ErrCourtesyNotFound    = apperror.NotFound("courtesy_not_found", "courtesy not found")
)
