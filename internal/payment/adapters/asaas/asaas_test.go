package asaas

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/ticketing/internal/apperror"
	paymentdomain "github.com/smallbiznis/ticketing/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Path   string
	Token  string
	Body   map[string]any
	Method string
}

func newTestAdapter(t *testing.T, status int, response string) (paymentdomain.PaymentAdapter, *[]capturedRequest) {
	t.Helper()
	var captured []capturedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		captured = append(captured, capturedRequest{
			Path:   r.URL.Path,
			Token:  r.Header.Get("access_token"),
			Body:   body,
			Method: r.Method,
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(server.Close)

	adapter, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{
		BaseURL:       server.URL + "/v3/",
		APIKey:        "test_api_key",
		WebhookSecret: "whsec",
		Timeout:       time.Second,
	})
	require.NoError(t, err)
	return adapter, &captured
}

func TestCreateCustomerSendsIdentity(t *testing.T) {
	adapter, captured := newTestAdapter(t, http.StatusOK, `{"id":"cus_123456789"}`)

	id, err := adapter.CreateCustomer(context.Background(), paymentdomain.Customer{
		UserID: snowflake.ID(42),
		Name:   "Ana Souza",
		Email:  "ana@example.com",
		TaxID:  "123.456.789-01",
		Phone:  "11999990000",
	})
	require.NoError(t, err)
	assert.Equal(t, "cus_123456789", id)

	require.Len(t, *captured, 1)
	req := (*captured)[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/v3/customers", req.Path)
	assert.Equal(t, "test_api_key", req.Token)
	assert.Equal(t, "12345678901", req.Body["cpfCnpj"])
	assert.Equal(t, "42", req.Body["externalReference"])
	assert.Equal(t, "Ana Souza", req.Body["name"])
}

func TestCreateChargeBuildsPayment(t *testing.T) {
	adapter, captured := newTestAdapter(t, http.StatusOK, `{"id":"pay_1","status":"PENDING","bankSlipUrl":"https://asaas.com/boleto/1"}`)

	result, err := adapter.CreateCharge(context.Background(), paymentdomain.ChargeRequest{
		OrderID:     snowflake.ID(7),
		CustomerID:  "cus_1",
		BillingType: paymentdomain.BillingTypeBoleto,
		Amount:      decimal.RequireFromString("200"),
		DueDate:     time.Date(2026, 11, 3, 23, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "pay_1", result.ID)
	assert.JSONEq(t, `{"id":"pay_1","status":"PENDING","bankSlipUrl":"https://asaas.com/boleto/1"}`, string(result.Raw))

	req := (*captured)[0]
	assert.Equal(t, "/v3/payments", req.Path)
	assert.Equal(t, "cus_1", req.Body["customer"])
	assert.Equal(t, "BOLETO", req.Body["billingType"])
	assert.Equal(t, 200.0, req.Body["value"])
	assert.Equal(t, "2026-11-03", req.Body["dueDate"])
	assert.Equal(t, "Payment for Order #7", req.Body["description"])
}

func TestUpstreamFailureIsGatewayError(t *testing.T) {
	adapter, _ := newTestAdapter(t, http.StatusBadRequest, `{"errors":[{"code":"invalid_customer"}]}`)

	_, err := adapter.CreateCharge(context.Background(), paymentdomain.ChargeRequest{
		OrderID:     snowflake.ID(7),
		CustomerID:  "cus_1",
		BillingType: paymentdomain.BillingTypePix,
		Amount:      decimal.NewFromInt(10),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrPaymentGateway)
	assert.Contains(t, err.Error(), "status 400")
}

func TestCreateChargeRequiresCustomer(t *testing.T) {
	adapter, captured := newTestAdapter(t, http.StatusOK, `{}`)

	_, err := adapter.CreateCharge(context.Background(), paymentdomain.ChargeRequest{OrderID: 1})
	assert.ErrorIs(t, err, paymentdomain.ErrCustomerRequired)
	assert.Empty(t, *captured)
}

func TestVerifyToken(t *testing.T) {
	adapter, _ := newTestAdapter(t, http.StatusOK, `{}`)

	ok := http.Header{}
	ok.Set(TokenHeader, "whsec")
	assert.NoError(t, adapter.Verify(context.Background(), nil, ok))

	bad := http.Header{}
	bad.Set(TokenHeader, "nope")
	assert.ErrorIs(t, adapter.Verify(context.Background(), nil, bad), paymentdomain.ErrUnauthorized)
	assert.ErrorIs(t, adapter.Verify(context.Background(), nil, http.Header{}), paymentdomain.ErrUnauthorized)
}

func TestParseEnvelope(t *testing.T) {
	adapter, _ := newTestAdapter(t, http.StatusOK, `{}`)

	event, err := adapter.Parse(context.Background(), []byte(`{"id":"evt_1","event":"PAYMENT_RECEIVED","payment":{"id":"pay_1","value":200}}`))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, "pay_1", event.PaymentID)
	assert.True(t, event.Settles())

	event, err = adapter.Parse(context.Background(), []byte(`{"event":"PAYMENT_OVERDUE"}`))
	require.NoError(t, err)
	assert.False(t, event.Settles())

	_, err = adapter.Parse(context.Background(), []byte(`[1,2]`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)
	_, err = adapter.Parse(context.Background(), []byte(`{"event":`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)
}
