package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/ticketing/internal/apperror"
	authdomain "github.com/smallbiznis/ticketing/internal/auth/domain"
	"github.com/smallbiznis/ticketing/internal/authorization"
	"github.com/smallbiznis/ticketing/internal/cache"
	checkindomain "github.com/smallbiznis/ticketing/internal/checkin/domain"
	"github.com/smallbiznis/ticketing/internal/clock"
	"github.com/smallbiznis/ticketing/internal/config"
	eventdomain "github.com/smallbiznis/ticketing/internal/event/domain"
	fulfillmentdomain "github.com/smallbiznis/ticketing/internal/fulfillment/domain"
	"github.com/smallbiznis/ticketing/internal/idempotency"
	"github.com/smallbiznis/ticketing/internal/observability"
	orderdomain "github.com/smallbiznis/ticketing/internal/order/domain"
	paymentdomain "github.com/smallbiznis/ticketing/internal/payment/domain"
	ticketdomain "github.com/smallbiznis/ticketing/internal/ticket/domain"
	userdomain "github.com/smallbiznis/ticketing/internal/user/domain"
	"github.com/smallbiznis/ticketing/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	customerToken = "customer-token"
	staffToken    = "staff-token"
	customerID    = snowflake.ID(1001)
	staffID       = snowflake.ID(2002)
)

type fakeAuthService struct{}

func (fakeAuthService) Login(_ context.Context, email, password string) (authdomain.Token, error) {
	if email == "ana@example.com" && password == "correct-horse" {
		return authdomain.Token{AccessToken: customerToken, TokenType: "Bearer"}, nil
	}
	return authdomain.Token{}, authdomain.ErrInvalidCredentials
}

func (fakeAuthService) Authenticate(_ context.Context, rawToken string) (authdomain.Principal, error) {
	switch rawToken {
	case customerToken:
		return authdomain.Principal{UserID: customerID, Role: "customer"}, nil
	case staffToken:
		return authdomain.Principal{UserID: staffID, Role: "staff"}, nil
	default:
		return authdomain.Principal{}, authdomain.ErrInvalidToken
	}
}

// fakeAuthzService grants staff everything and customers the order and
// assignment actions.
type fakeAuthzService struct{}

func (fakeAuthzService) Authorize(_ context.Context, _ snowflake.ID, role string, _ string, action string) error {
	if role == "staff" {
		return nil
	}
	switch action {
	case authorization.ActionOrderCreate, authorization.ActionTicketAssign:
		return nil
	default:
		return apperror.ErrForbidden
	}
}

type fakeUserService struct {
	registerCalls int
	registerErr   error
}

func (f *fakeUserService) Register(_ context.Context, req userdomain.RegisterRequest) (userdomain.User, error) {
	f.registerCalls++
	if f.registerErr != nil {
		return userdomain.User{}, f.registerErr
	}
	return userdomain.User{
		ID:       snowflake.ID(5000 + f.registerCalls),
		FullName: req.FullName,
		Email:    req.Email,
		Role:     userdomain.RoleCustomer,
	}, nil
}

func (f *fakeUserService) Get(_ context.Context, id snowflake.ID) (userdomain.User, error) {
	if id != customerID {
		return userdomain.User{}, userdomain.ErrNotFound
	}
	return userdomain.User{ID: id, FullName: "Ana", Email: "ana@example.com", Role: userdomain.RoleCustomer}, nil
}

type fakeEventService struct {
	created int
}

func (f *fakeEventService) ListUpcoming(context.Context, time.Time) ([]eventdomain.Event, error) {
	return []eventdomain.Event{{ID: 1, Name: "Summit", Slug: "summit", IsActive: true}}, nil
}

func (f *fakeEventService) Get(_ context.Context, ref string) (eventdomain.Event, error) {
	if ref != "summit" {
		return eventdomain.Event{}, eventdomain.ErrNotFound
	}
	return eventdomain.Event{ID: 1, Name: "Summit", Slug: "summit", IsActive: true}, nil
}

func (f *fakeEventService) Create(_ context.Context, req eventdomain.CreateEventRequest) (eventdomain.Event, error) {
	f.created++
	return eventdomain.Event{ID: 2, Name: req.Name, Slug: "new-event", IsActive: true}, nil
}

type fakeOrderService struct {
	createCalls []orderdomain.CreateOrderRequest
	chargeErr   error
	listErr     error
}

func (f *fakeOrderService) Create(_ context.Context, req orderdomain.CreateOrderRequest) (*orderdomain.Order, error) {
	f.createCalls = append(f.createCalls, req)
	userID := req.UserID
	return &orderdomain.Order{
		ID:     snowflake.ID(9000 + len(f.createCalls)),
		UserID: &userID,
		Status: orderdomain.StatusPending,
		State:  orderdomain.StateActive,
	}, nil
}

func (f *fakeOrderService) ListByUser(_ context.Context, _ snowflake.ID, page pagination.Pagination) (orderdomain.ListOrdersResponse, error) {
	if f.listErr != nil {
		return orderdomain.ListOrdersResponse{}, f.listErr
	}
	return orderdomain.ListOrdersResponse{Orders: []orderdomain.Order{}}, nil
}

func (f *fakeOrderService) Get(_ context.Context, userID, orderID snowflake.ID) (*orderdomain.Order, error) {
	return nil, orderdomain.ErrNotFound
}

func (f *fakeOrderService) CreateCharge(_ context.Context, _, orderID snowflake.ID, _ string) (*orderdomain.Order, error) {
	if f.chargeErr != nil {
		return nil, f.chargeErr
	}
	return &orderdomain.Order{ID: orderID, Status: orderdomain.StatusPending}, nil
}

func (f *fakeOrderService) GetCourtesy(context.Context, string) (*orderdomain.Courtesy, error) {
	return nil, orderdomain.ErrCourtesyNotFound
}

func (f *fakeOrderService) MarkPaid(context.Context, *gorm.DB, snowflake.ID, time.Time) (bool, error) {
	return false, nil
}

func (f *fakeOrderService) ExpireOverdue(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type fakeWebhookService struct {
	err      error
	provider string
	body     []byte
}

func (f *fakeWebhookService) Ingest(_ context.Context, provider string, _ http.Header, body []byte) error {
	f.provider = provider
	f.body = body
	return f.err
}

type fakeFulfillmentService struct {
	assigned []fulfillmentdomain.AssignHolderRequest
	err      error
}

func (f *fakeFulfillmentService) HandleOrderPaid(context.Context, snowflake.ID) error { return nil }

func (f *fakeFulfillmentService) DeliverOrderTickets(context.Context, snowflake.ID) (fulfillmentdomain.Summary, error) {
	return fulfillmentdomain.Summary{}, nil
}

func (f *fakeFulfillmentService) AssignHolder(_ context.Context, req fulfillmentdomain.AssignHolderRequest) (*ticketdomain.Ticket, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.assigned = append(f.assigned, req)
	return &ticketdomain.Ticket{ID: req.TicketID, HolderName: req.Name, HolderEmail: req.Email}, nil
}

func (f *fakeFulfillmentService) DeliverTicket(context.Context, snowflake.ID) error { return nil }

func (f *fakeFulfillmentService) SendWelcome(context.Context, snowflake.ID) error { return nil }

type fakeCheckinService struct {
	err      error
	clientIP string
	redeemed []checkindomain.RedeemRequest
}

func (f *fakeCheckinService) CheckIn(_ context.Context, token, clientIP string) (checkindomain.Result, error) {
	f.clientIP = clientIP
	if f.err != nil {
		return checkindomain.Result{}, f.err
	}
	return checkindomain.Result{
		Status:   checkindomain.StatusCheckedIn,
		Message:  checkindomain.MessageCheckedIn,
		TicketID: 77,
	}, nil
}

func (f *fakeCheckinService) Redeem(_ context.Context, req checkindomain.RedeemRequest) (*ticketdomain.Ticket, error) {
	f.redeemed = append(f.redeemed, req)
	return &ticketdomain.Ticket{ID: 77, QRCode: req.QRCode, IsRedeemed: true, RedeemedBy: &req.StaffID}, nil
}

func (f *fakeCheckinService) MarkPresent(context.Context, snowflake.ID, time.Time) error { return nil }

type testServer struct {
	engine      *gin.Engine
	users       *fakeUserService
	events      *fakeEventService
	orders      *fakeOrderService
	webhooks    *fakeWebhookService
	fulfillment *fakeFulfillmentService
	checkin     *fakeCheckinService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fake := clock.NewFakeClock(time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC))
	tuning := config.DefaultTuning()
	tuning.Idempotency.LockWait = 20 * time.Millisecond
	gate := idempotency.New(idempotency.Params{
		Log:    zap.NewNop(),
		Store:  cache.NewMemoryStore(fake),
		Locker: cache.NewMemoryLocker(fake),
		Tuning: config.NewStaticTuning(tuning),
	})

	ts := &testServer{
		engine:      NewEngine(observability.Config{}, nil),
		users:       &fakeUserService{},
		events:      &fakeEventService{},
		orders:      &fakeOrderService{},
		webhooks:    &fakeWebhookService{},
		fulfillment: &fakeFulfillmentService{},
		checkin:     &fakeCheckinService{},
	}
	NewServer(ServerParams{
		Gin:         ts.engine,
		Log:         zap.NewNop(),
		Clock:       fake,
		Authsvc:     fakeAuthService{},
		AuthzSvc:    fakeAuthzService{},
		UserSvc:     ts.users,
		EventSvc:    ts.events,
		OrderSvc:    ts.orders,
		WebhookSvc:  ts.webhooks,
		Fulfillment: ts.fulfillment,
		CheckinSvc:  ts.checkin,
		Idempotency: gate,
	})
	return ts
}

func (ts *testServer) do(method, path, token string, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp.Error
}

func TestRegisterUserReplaysIdenticalResponse(t *testing.T) {
	ts := newTestServer(t)
	body := `{"full_name":"Ana","email":"ana@example.com","tax_id":"12345678909","password":"correct-horse"}`
	key := map[string]string{idempotency.HeaderKey: "signup-0001-ana"}

	first := ts.do(http.MethodPost, "/api/users", "", body, key)
	second := ts.do(http.MethodPost, "/api/users", "", body, key)

	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Empty(t, first.Header().Get(headerIdempotentReplayed))
	assert.Equal(t, "true", second.Header().Get(headerIdempotentReplayed))
	assert.Equal(t, 1, ts.users.registerCalls)
}

func TestRegisterUserRejectsMissingOrMalformedKey(t *testing.T) {
	ts := newTestServer(t)
	body := `{"full_name":"Ana","email":"ana@example.com","password":"correct-horse"}`

	for name, headers := range map[string]map[string]string{
		"missing":   nil,
		"too short": {idempotency.HeaderKey: "abc"},
		"bad chars": {idempotency.HeaderKey: "key with spaces!!"},
	} {
		t.Run(name, func(t *testing.T) {
			rec := ts.do(http.MethodPost, "/api/users", "", body, headers)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			payload := decodeError(t, rec)
			assert.Equal(t, "validation_error", payload.Type)
			require.Len(t, payload.Errors, 1)
			assert.Equal(t, "invalid_idempotency_key", payload.Errors[0].Code)
		})
	}
	assert.Zero(t, ts.users.registerCalls)
}

func TestRegisterFailureIsNotReplayed(t *testing.T) {
	ts := newTestServer(t)
	ts.users.registerErr = userdomain.ErrEmailTaken
	body := `{"full_name":"Ana","email":"ana@example.com","password":"correct-horse"}`
	key := map[string]string{idempotency.HeaderKey: "signup-0002-ana"}

	rec := ts.do(http.MethodPost, "/api/users", "", body, key)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "email_taken", decodeError(t, rec).Code)

	ts.users.registerErr = nil
	rec = ts.do(http.MethodPost, "/api/users", "", body, key)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 2, ts.users.registerCalls)
}

func TestCreateOrderKeyIsScopedPerUser(t *testing.T) {
	ts := newTestServer(t)
	body := `{"billing_type":"pix","items":[{"ticket_class_id":"42","quantity":2}]}`
	key := map[string]string{idempotency.HeaderKey: "order-2026-06-01"}

	first := ts.do(http.MethodPost, "/api/orders", customerToken, body, key)
	replay := ts.do(http.MethodPost, "/api/orders", customerToken, body, key)
	other := ts.do(http.MethodPost, "/api/orders", staffToken, body, key)

	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	assert.Equal(t, first.Body.String(), replay.Body.String())
	assert.Equal(t, http.StatusCreated, other.Code)
	assert.NotEqual(t, first.Body.String(), other.Body.String())

	require.Len(t, ts.orders.createCalls, 2)
	assert.Equal(t, customerID, ts.orders.createCalls[0].UserID)
	assert.Equal(t, "PIX", ts.orders.createCalls[0].BillingType)
	assert.Equal(t, staffID, ts.orders.createCalls[1].UserID)
	assert.Equal(t, 2, ts.orders.createCalls[0].Items[0].Quantity)
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/users/me", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodGet, "/api/users/me", "forged", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_token", decodeError(t, rec).Code)

	rec = ts.do(http.MethodGet, "/api/users/me", "", "", map[string]string{"Authorization": "Basic " + customerToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodGet, "/api/users/me", customerToken, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"email":"ana@example.com"`)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/auth/login", "", `{"email":"ana@example.com","password":"correct-horse"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), customerToken)

	rec = ts.do(http.MethodPost, "/api/auth/login", "", `{"email":"ana@example.com","password":"nope"}`, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_credentials", decodeError(t, rec).Code)
}

func TestStaffOnlyRoutes(t *testing.T) {
	ts := newTestServer(t)
	body := `{"name":"Launch","start_at":"2026-07-01T19:00:00Z","end_at":"2026-07-01T23:00:00Z"}`

	rec := ts.do(http.MethodPost, "/api/events", customerToken, body, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, ts.events.created)

	rec = ts.do(http.MethodPost, "/api/events", staffToken, body, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1, ts.events.created)

	rec = ts.do(http.MethodPost, "/api/tickets/QR-ABC/redeem", customerToken, "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(http.MethodPost, "/api/tickets/QR-ABC/redeem", staffToken, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, ts.checkin.redeemed, 1)
	assert.Equal(t, checkindomain.RedeemRequest{QRCode: "QR-ABC", StaffID: staffID}, ts.checkin.redeemed[0])
}

func TestPublicEventRoutes(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/events", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"slug":"summit"`)

	rec = ts.do(http.MethodGet, "/api/events/unknown", "", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "event_not_found", decodeError(t, rec).Code)
}

func TestAssignTicketPassesCaller(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPatch, "/api/tickets/555/assign", customerToken, `{"name":"Bia","email":"bia@example.com"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, ts.fulfillment.assigned, 1)
	assert.Equal(t, fulfillmentdomain.AssignHolderRequest{
		UserID:   customerID,
		TicketID: 555,
		Name:     "Bia",
		Email:    "bia@example.com",
	}, ts.fulfillment.assigned[0])

	rec = ts.do(http.MethodPatch, "/api/tickets/not-an-id/assign", customerToken, `{"name":"Bia","email":"bia@example.com"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_ref", decodeError(t, rec).Errors[0].Code)

	ts.fulfillment.err = fulfillmentdomain.ErrAlreadyAssigned
	rec = ts.do(http.MethodPatch, "/api/tickets/555/assign", customerToken, `{"name":"Bia","email":"bia@example.com"}`, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_assigned", decodeError(t, rec).Code)
}

func TestCheckIn(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/checkin/QR-TOKEN-1", "", "", map[string]string{"X-Forwarded-For": "203.0.113.9"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), checkindomain.MessageCheckedIn)
	assert.NotEmpty(t, ts.checkin.clientIP)
}

func TestRateLimitedSetsRetryAfter(t *testing.T) {
	ts := newTestServer(t)
	ts.checkin.err = apperror.RateLimited(89500 * time.Millisecond)

	rec := ts.do(http.MethodPost, "/api/checkin/QR-TOKEN-1", "", "", nil)

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "90", rec.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limited", decodeError(t, rec).Type)
}

func TestUpstreamFailuresAreNotRendered(t *testing.T) {
	ts := newTestServer(t)
	body := `{"billing_type":"PIX"}`

	ts.orders.chargeErr = apperror.PaymentGateway(errors.New("asaas status 500: internal key sk_live_123"))
	rec := ts.do(http.MethodPost, "/api/orders/9001/charge", customerToken, body, nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "sk_live_123")
	assert.Equal(t, "payment_gateway_error", decodeError(t, rec).Type)

	ts.orders.chargeErr = apperror.Unavailable(errors.New("dial tcp 10.0.0.5:6379: connection refused"))
	rec = ts.do(http.MethodPost, "/api/orders/9001/charge", customerToken, body, nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")

	ts.orders.chargeErr = errors.New("pq: relation orders does not exist")
	rec = ts.do(http.MethodPost, "/api/orders/9001/charge", customerToken, body, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "relation")
}

func TestListOrdersRejectsBadPageToken(t *testing.T) {
	ts := newTestServer(t)
	ts.orders.listErr = pagination.ErrInvalidPageToken

	rec := ts.do(http.MethodGet, "/api/orders?page_token=garbage", customerToken, "", nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_page_token", decodeError(t, rec).Errors[0].Code)
}

func TestWebhookAcknowledges(t *testing.T) {
	ts := newTestServer(t)
	payload := `{"id":"evt_1","event":"PAYMENT_RECEIVED","payment":{"id":"pay_404"}}`

	rec := ts.do(http.MethodPost, "/api/webhooks/Asaas", "", payload, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "asaas", ts.webhooks.provider)
	assert.Equal(t, payload, string(ts.webhooks.body))

	ts.webhooks.err = paymentdomain.ErrUnauthorized
	rec = ts.do(http.MethodPost, "/api/webhooks/asaas", "", payload, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUnknownRouteUsesErrorEnvelope(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/nowhere", "", "", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), `{"error":`))
}
