package domain

import (
	"context"
	"errors"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ticketing/internal/apperror"
)

// Gateway resolves remote customers and creates charges. Every failure is
// reported as a payment gateway error.
type Gateway interface {
	EnsureCustomer(ctx context.Context, userID snowflake.ID) (string, error)
	CreateCharge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

// WebhookService reconciles provider notifications with order state.
type WebhookService interface {
	Ingest(ctx context.Context, provider string, headers http.Header, body []byte) error
}

var (
	ErrProviderNotFound = apperror.NotFound("payment_provider_not_found", "payment provider not found")
	ErrInvalidConfig    = errors.New("invalid_payment_config")
	ErrUnauthorized     = &apperror.Error{Kind: apperror.KindUnauthorized, Code: "invalid_webhook_token", Message: "invalid webhook token"}
	ErrInvalidPayload   = apperror.Validation("invalid_payload", "body", "webhook payload must be a JSON object")
	ErrCustomerRequired = apperror.Validation("customer_required", "customer", "a payment customer is required")
	ErrUserNotFound     = apperror.NotFound("user_not_found", "user not found")
)
