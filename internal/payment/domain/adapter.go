package domain

import (
	"context"
	"net/http"
)

// PaymentAdapter maps requests onto one provider's HTTP contract. It holds
// no business rules.
type PaymentAdapter interface {
	CreateCustomer(ctx context.Context, customer Customer) (string, error)
	CreateCharge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*WebhookEvent, error)
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
}
