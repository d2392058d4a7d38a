// Package paymenttest provides testify mocks of the payment boundaries.
package paymenttest

import (
	"context"
	"net/http"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/ticketing/internal/payment/domain"
	"github.com/stretchr/testify/mock"
)

type Adapter struct {
	mock.Mock
}

var _ paymentdomain.PaymentAdapter = (*Adapter)(nil)

func (a *Adapter) CreateCustomer(ctx context.Context, customer paymentdomain.Customer) (string, error) {
	args := a.Called(ctx, customer)
	return args.String(0), args.Error(1)
}

func (a *Adapter) CreateCharge(ctx context.Context, req paymentdomain.ChargeRequest) (paymentdomain.ChargeResult, error) {
	args := a.Called(ctx, req)
	return args.Get(0).(paymentdomain.ChargeResult), args.Error(1)
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	args := a.Called(ctx, payload, headers)
	return args.Error(0)
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.WebhookEvent, error) {
	args := a.Called(ctx, payload)
	event, _ := args.Get(0).(*paymentdomain.WebhookEvent)
	return event, args.Error(1)
}

type Gateway struct {
	mock.Mock
}

var _ paymentdomain.Gateway = (*Gateway)(nil)

func (g *Gateway) EnsureCustomer(ctx context.Context, userID snowflake.ID) (string, error) {
	args := g.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

func (g *Gateway) CreateCharge(ctx context.Context, req paymentdomain.ChargeRequest) (paymentdomain.ChargeResult, error) {
	args := g.Called(ctx, req)
	return args.Get(0).(paymentdomain.ChargeResult), args.Error(1)
}
