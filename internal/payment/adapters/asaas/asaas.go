package asaas

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/ticketing/internal/apperror"
	paymentdomain "github.com/smallbiznis/ticketing/internal/payment/domain"
)

const (
	ProviderName = "asaas"
	TokenHeader  = "Asaas-Webhook-Token"

	defaultBaseURL = "https://api.asaas.com/v3"
	maxBodyBytes   = 1 << 20
)

type Factory struct {
	client *http.Client
}

func NewFactory() *Factory {
	return &Factory{}
}

// NewFactoryWithClient builds adapters sharing client, mostly for tests.
func NewFactoryWithClient(client *http.Client) *Factory {
	return &Factory{client: client}
}

func (f *Factory) Provider() string {
	return ProviderName
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := f.client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	return &Adapter{
		baseURL:       baseURL,
		apiKey:        strings.TrimSpace(cfg.APIKey),
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		client:        client,
	}, nil
}

type Adapter struct {
	baseURL       string
	apiKey        string
	webhookSecret string
	client        *http.Client
}

type customerRequest struct {
	Name              string `json:"name"`
	Email             string `json:"email"`
	CpfCnpj           string `json:"cpfCnpj"`
	Phone             string `json:"phone"`
	ExternalReference string `json:"externalReference,omitempty"`
}

type paymentRequest struct {
	Customer    string      `json:"customer"`
	BillingType string      `json:"billingType"`
	Value       json.Number `json:"value"`
	DueDate     string      `json:"dueDate"`
	Description string      `json:"description"`
}

type idResponse struct {
	ID string `json:"id"`
}

func (a *Adapter) CreateCustomer(ctx context.Context, customer paymentdomain.Customer) (string, error) {
	body := customerRequest{
		Name:    customer.Name,
		Email:   customer.Email,
		CpfCnpj: digitsOnly(customer.TaxID),
		Phone:   customer.Phone,
	}
	if customer.UserID != 0 {
		body.ExternalReference = customer.UserID.String()
	}

	raw, err := a.post(ctx, "/customers", body)
	if err != nil {
		return "", err
	}
	var out idResponse
	if err := json.Unmarshal(raw, &out); err != nil || out.ID == "" {
		return "", apperror.PaymentGateway(fmt.Errorf("asaas: decode customer response: %v", err))
	}
	return out.ID, nil
}

func (a *Adapter) CreateCharge(ctx context.Context, req paymentdomain.ChargeRequest) (paymentdomain.ChargeResult, error) {
	if strings.TrimSpace(req.CustomerID) == "" {
		return paymentdomain.ChargeResult{}, paymentdomain.ErrCustomerRequired
	}
	due := req.DueDate
	if due.IsZero() {
		due = time.Now()
	}

	body := paymentRequest{
		Customer:    req.CustomerID,
		BillingType: req.BillingType,
		Value:       json.Number(req.Amount.StringFixed(2)),
		DueDate:     due.UTC().Format(time.DateOnly),
		Description: fmt.Sprintf("Payment for Order #%s", req.OrderID),
	}

	raw, err := a.post(ctx, "/payments", body)
	if err != nil {
		return paymentdomain.ChargeResult{}, err
	}
	var out idResponse
	if err := json.Unmarshal(raw, &out); err != nil || out.ID == "" {
		return paymentdomain.ChargeResult{}, apperror.PaymentGateway(fmt.Errorf("asaas: decode payment response: %v", err))
	}
	return paymentdomain.ChargeResult{ID: out.ID, Raw: json.RawMessage(raw)}, nil
}

// Verify checks the shared token header. An unset secret rejects everything.
func (a *Adapter) Verify(_ context.Context, _ []byte, headers http.Header) error {
	token := strings.TrimSpace(headers.Get(TokenHeader))
	if a.webhookSecret == "" || token == "" {
		return paymentdomain.ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(a.webhookSecret)) != 1 {
		return paymentdomain.ErrUnauthorized
	}
	return nil
}

type webhookEnvelope struct {
	ID      string `json:"id"`
	Event   string `json:"event"`
	Payment *struct {
		ID string `json:"id"`
	} `json:"payment"`
}

func (a *Adapter) Parse(_ context.Context, payload []byte) (*paymentdomain.WebhookEvent, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, paymentdomain.ErrInvalidPayload
	}
	var envelope webhookEnvelope
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	event := &paymentdomain.WebhookEvent{
		ID:   strings.TrimSpace(envelope.ID),
		Type: strings.ToUpper(strings.TrimSpace(envelope.Event)),
	}
	if envelope.Payment != nil {
		event.PaymentID = strings.TrimSpace(envelope.Payment.ID)
	}
	return event, nil
}

func (a *Adapter) post(ctx context.Context, path string, body any) ([]byte, error) {
	if a.apiKey == "" {
		return nil, apperror.PaymentGateway(paymentdomain.ErrInvalidConfig)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, apperror.PaymentGateway(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("access_token", a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, apperror.PaymentGateway(fmt.Errorf("asaas: POST %s: %w", path, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, apperror.PaymentGateway(fmt.Errorf("asaas: read %s response: %w", path, err))
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, apperror.PaymentGateway(fmt.Errorf("asaas: POST %s: status %d", path, resp.StatusCode))
	}
	return raw, nil
}

func digitsOnly(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
