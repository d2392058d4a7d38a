package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/ticketing/internal/apperror"
	"github.com/smallbiznis/ticketing/internal/cache"
	"github.com/smallbiznis/ticketing/internal/clock"
	"github.com/smallbiznis/ticketing/internal/config"
	"github.com/smallbiznis/ticketing/internal/dbtest"
	emaillogdomain "github.com/smallbiznis/ticketing/internal/emaillog/domain"
	emaillogrepo "github.com/smallbiznis/ticketing/internal/emaillog/repository"
	"github.com/smallbiznis/ticketing/internal/fulfillment/domain"
	orderdomain "github.com/smallbiznis/ticketing/internal/order/domain"
	orderrepo "github.com/smallbiznis/ticketing/internal/order/repository"
	"github.com/smallbiznis/ticketing/internal/providers/email"
	"github.com/smallbiznis/ticketing/internal/providers/pdf"
	"github.com/smallbiznis/ticketing/internal/queue"
	"github.com/smallbiznis/ticketing/internal/queue/queuetest"
	ticketdomain "github.com/smallbiznis/ticketing/internal/ticket/domain"
	ticketrepo "github.com/smallbiznis/ticketing/internal/ticket/repository"
	userrepo "github.com/smallbiznis/ticketing/internal/user/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeMail struct {
	mu       sync.Mutex
	sent     []email.Message
	failNext int
	failFor  map[string]bool
}

func (f *fakeMail) Send(_ context.Context, msg email.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return errors.New("421 service not available")
	}
	if f.failFor[msg.To] {
		return errors.New("550 mailbox unavailable")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeMail) Sent() []email.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]email.Message(nil), f.sent...)
}

type fakePDF struct {
	calls int
}

func (f *fakePDF) TicketPDF(_ context.Context, data pdf.TicketData) ([]byte, error) {
	f.calls++
	if len(data.QRImage) == 0 {
		return nil, errors.New("missing qr image")
	}
	return []byte("%PDF-1.7 " + data.QRCode), nil
}

type fixture struct {
	svc     *Service
	db      *gorm.DB
	node    *snowflake.Node
	clock   *clock.FakeClock
	mail    *fakeMail
	pdf     *fakePDF
	store   *cache.MemoryStore
	locker  *cache.MemoryLocker
	queue   *queuetest.Recorder
	tuning  config.Tuning
	userID  snowflake.ID
	classID snowflake.ID
	eventID snowflake.ID
}

func testTuning() config.Tuning {
	tuning := config.DefaultTuning()
	tuning.Retry.InitialInterval = time.Millisecond
	tuning.Retry.MaxInterval = 2 * time.Millisecond
	tuning.Fulfillment.ChunkSize = 2
	return tuning
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	node := dbtest.Node(t)
	fake := clock.NewFakeClock(time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC))
	tuning := testTuning()
	holder := config.NewStaticTuning(tuning)
	mail := &fakeMail{failFor: map[string]bool{}}
	pdfs := &fakePDF{}
	store := cache.NewMemoryStore(fake)
	locker := cache.NewMemoryLocker(fake)
	rec := &queuetest.Recorder{}
	logs := emaillogrepo.Provide()

	renderer := NewRenderer(RendererParams{Log: zap.NewNop(), Store: store, PDF: pdfs, Tuning: holder})
	mailer := NewMailer(MailerParams{DB: db, Log: zap.NewNop(), GenID: node, Clock: fake, Provider: mail, Logs: logs})

	svc := New(Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      fake,
		Config:     config.Config{AppName: "Ticketing"},
		Tuning:     holder,
		Locker:     locker,
		OrderRepo:  orderrepo.Provide(),
		TicketRepo: ticketrepo.Provide(),
		UserRepo:   userrepo.Provide(),
		EmailLogs:  logs,
		Renderer:   renderer,
		Mailer:     mailer,
		Queue:      rec,
	}).(*Service)

	eventID := dbtest.SeedEvent(t, db, node, "Summit", time.Date(2026, 7, 1, 19, 0, 0, 0, time.UTC))
	return &fixture{
		svc:     svc,
		db:      db,
		node:    node,
		clock:   fake,
		mail:    mail,
		pdf:     pdfs,
		store:   store,
		locker:  locker,
		queue:   rec,
		tuning:  tuning,
		userID:  dbtest.SeedUser(t, db, node, "buyer@example.com"),
		classID: dbtest.SeedTicketClass(t, db, node, eventID, "100.00", "general"),
		eventID: eventID,
	}
}

// seedOrder stores an order with one item of quantity qty and the given
// tickets, which may be fewer or more than qty.
func (f *fixture) seedOrder(t *testing.T, status orderdomain.Status, qty int, holders []ticketdomain.Holder) (*orderdomain.Order, snowflake.ID) {
	t.Helper()
	ctx := context.Background()
	now := f.clock.Now()
	userID := f.userID
	order := &orderdomain.Order{
		ID:              f.node.Generate(),
		UserID:          &userID,
		Status:          status,
		State:           orderdomain.StateActive,
		RedemptionToken: uuid.NewString(),
		TotalAmount:     decimal.NewFromInt(int64(100 * qty)),
		BillingType:     "PIX",
		ExpiresAt:       now.Add(24 * time.Hour),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if status == orderdomain.StatusPaid {
		order.PaidAt = &now
	}
	repo := orderrepo.Provide()
	require.NoError(t, repo.Insert(ctx, f.db, order))

	item := orderdomain.OrderItem{
		ID:            f.node.Generate(),
		OrderID:       order.ID,
		EventID:       f.eventID,
		TicketClassID: f.classID,
		Quantity:      qty,
		UnitPrice:     decimal.NewFromInt(100),
		Subtotal:      decimal.NewFromInt(int64(100 * qty)),
	}
	require.NoError(t, repo.InsertItem(ctx, f.db, &item))

	tickets := ticketrepo.Provide()
	for _, h := range holders {
		require.NoError(t, tickets.Insert(ctx, f.db, &ticketdomain.Ticket{
			ID:          f.node.Generate(),
			OrderID:     order.ID,
			OrderItemID: item.ID,
			QRCode:      uuid.NewString(),
			HolderName:  h.Name,
			HolderEmail: h.Email,
			CreatedAt:   now,
		}))
	}
	return order, item.ID
}

func (f *fixture) tickets(t *testing.T, orderID snowflake.ID) []*ticketdomain.Ticket {
	t.Helper()
	list, err := ticketrepo.Provide().ListByOrders(context.Background(), f.db, []snowflake.ID{orderID})
	require.NoError(t, err)
	return list
}

func (f *fixture) order(t *testing.T, id snowflake.ID) *orderdomain.Order {
	t.Helper()
	order, err := orderrepo.Provide().FindByID(context.Background(), f.db, id)
	require.NoError(t, err)
	require.NotNil(t, order)
	return order
}

func (f *fixture) countLogs(t *testing.T, where string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM email_logs WHERE `+where, args...).Scan(&n).Error)
	return n
}

func TestHandleOrderPaidClaimsOnceAndSchedulesDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, _ := f.seedOrder(t, orderdomain.StatusPaid, 2, []ticketdomain.Holder{{}, {}})

	require.NoError(t, f.svc.HandleOrderPaid(ctx, order.ID))
	require.NoError(t, f.svc.HandleOrderPaid(ctx, order.ID))

	assert.Len(t, f.tickets(t, order.ID), 2)
	assert.NotNil(t, f.order(t, order.ID).FulfilledAt)

	tasks := queuetest.Decode[queue.OrderTicketsGenerated](f.queue, queue.TopicOrderTicketsGenerated)
	require.Len(t, tasks, 1)
	assert.Equal(t, order.ID, tasks[0].OrderID)
}

func TestHandleOrderPaidTopsUpMissingTickets(t *testing.T) {
	f := newFixture(t)
	order, _ := f.seedOrder(t, orderdomain.StatusPaid, 3, []ticketdomain.Holder{{Name: "Ana", Email: "ana@example.com"}})

	require.NoError(t, f.svc.HandleOrderPaid(context.Background(), order.ID))

	tickets := f.tickets(t, order.ID)
	require.Len(t, tickets, 3)
	seen := map[string]bool{}
	for _, ticket := range tickets {
		assert.False(t, seen[ticket.QRCode])
		seen[ticket.QRCode] = true
	}
}

func TestHandleOrderPaidSkipsIneligibleOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pending, _ := f.seedOrder(t, orderdomain.StatusPending, 1, nil)

	require.NoError(t, f.svc.HandleOrderPaid(ctx, pending.ID))
	require.NoError(t, f.svc.HandleOrderPaid(ctx, f.node.Generate()))

	assert.Empty(t, f.tickets(t, pending.ID))
	assert.Nil(t, f.order(t, pending.ID).FulfilledAt)
	assert.Empty(t, f.queue.Tasks(""))
}

func TestHandleOrderPaidSurplusTicketsIsPermanentFailure(t *testing.T) {
	f := newFixture(t)
	order, _ := f.seedOrder(t, orderdomain.StatusPaid, 1, []ticketdomain.Holder{{}, {}})

	err := f.svc.HandleOrderPaid(context.Background(), order.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrTicketGeneration)
	assert.True(t, apperror.IsPermanent(err))
	assert.Nil(t, f.order(t, order.ID).FulfilledAt)
	assert.Empty(t, f.queue.Tasks(""))
}

func TestDeliverOrderTicketsIsolatesFailuresAcrossChunks(t *testing.T) {
	f := newFixture(t)
	order, _ := f.seedOrder(t, orderdomain.StatusPaid, 3, []ticketdomain.Holder{
		{Name: "Ana", Email: "ana@example.com"},
		{Name: "Bruno", Email: "bruno@example.com"},
		{Name: "Carla", Email: "carla@example.com"},
	})
	f.mail.failFor["bruno@example.com"] = true

	summary, err := f.svc.DeliverOrderTickets(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Summary{Sent: 2, Failed: 1}, summary)
	assert.Len(t, f.mail.Sent(), 2)

	assert.EqualValues(t, 2, f.countLogs(t, `success = ?`, true))
	// every retry of the failing ticket leaves its own row
	assert.EqualValues(t, f.tuning.Retry.MaxAttempts, f.countLogs(t, `success = ? AND recipient = ?`, false, "bruno@example.com"))

	for _, ticket := range f.tickets(t, order.ID) {
		if ticket.HolderEmail == "bruno@example.com" {
			assert.Nil(t, ticket.EmailedAt)
			continue
		}
		assert.NotNil(t, ticket.EmailedAt)
	}

	// a second batch only retries what is still undelivered
	delete(f.mail.failFor, "bruno@example.com")
	summary, err = f.svc.DeliverOrderTickets(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Summary{Sent: 1}, summary)
}

func TestDeliverOrderTicketsRetriesTransientFailure(t *testing.T) {
	f := newFixture(t)
	order, _ := f.seedOrder(t, orderdomain.StatusPaid, 1, []ticketdomain.Holder{{Name: "Ana", Email: "ana@example.com"}})
	f.mail.failNext = 1

	summary, err := f.svc.DeliverOrderTickets(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Summary{Sent: 1}, summary)
	assert.EqualValues(t, 1, f.countLogs(t, `success = ?`, false))
	assert.EqualValues(t, 1, f.countLogs(t, `success = ?`, true))

	sent := f.mail.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Your ticket for Summit", sent[0].Subject)
	require.Len(t, sent[0].Attachments, 1)
	assert.Equal(t, "application/pdf", sent[0].Attachments[0].MimeType)
	assert.Contains(t, sent[0].HTMLBody, "Ana")
}

func TestDeliverOrderTicketsSkipsUnpaidOrder(t *testing.T) {
	f := newFixture(t)
	order, _ := f.seedOrder(t, orderdomain.StatusPending, 1, []ticketdomain.Holder{{Name: "Ana", Email: "ana@example.com"}})

	summary, err := f.svc.DeliverOrderTickets(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Zero(t, summary)
	assert.Empty(t, f.mail.Sent())
}

func TestAssignHolderSchedulesSingleTicketEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, _ := f.seedOrder(t, orderdomain.StatusPaid, 2, []ticketdomain.Holder{{}, {}})
	target := f.tickets(t, order.ID)[0]

	ticket, err := f.svc.AssignHolder(ctx, domain.AssignHolderRequest{
		UserID:   f.userID,
		TicketID: target.ID,
		Name:     " Dana ",
		Email:    "Dana@Example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "Dana", ticket.HolderName)
	assert.Equal(t, "dana@example.com", ticket.HolderEmail)

	tasks := queuetest.Decode[queue.TicketAssigned](f.queue, queue.TopicTicketAssigned)
	require.Len(t, tasks, 1)
	assert.Equal(t, target.ID, tasks[0].TicketID)

	require.NoError(t, f.svc.DeliverTicket(ctx, target.ID))
	require.NoError(t, f.svc.DeliverTicket(ctx, target.ID))

	logs, err := emaillogrepo.Provide().ListByTicket(ctx, f.db, target.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Success)
	assert.Equal(t, emaillogdomain.TypeTicketConfirmation, logs[0].EmailType)
	assert.Len(t, f.mail.Sent(), 1)

	_, err = f.svc.AssignHolder(ctx, domain.AssignHolderRequest{
		UserID:   f.userID,
		TicketID: target.ID,
		Name:     "Eve",
		Email:    "eve@example.com",
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyAssigned)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
}

func TestAssignHolderValidation(t *testing.T) {
	f := newFixture(t)
	order, _ := f.seedOrder(t, orderdomain.StatusPaid, 1, []ticketdomain.Holder{{}})
	ticketID := f.tickets(t, order.ID)[0].ID
	stranger := dbtest.SeedUser(t, f.db, f.node, "stranger@example.com")

	cases := []struct {
		name string
		req  domain.AssignHolderRequest
		want error
	}{
		{"missing name", domain.AssignHolderRequest{UserID: f.userID, TicketID: ticketID, Email: "a@example.com"}, domain.ErrInvalidHolderName},
		{"bad email", domain.AssignHolderRequest{UserID: f.userID, TicketID: ticketID, Name: "A", Email: "not-an-email"}, domain.ErrInvalidHolderEmail},
		{"display name email", domain.AssignHolderRequest{UserID: f.userID, TicketID: ticketID, Name: "A", Email: "A <a@example.com>"}, domain.ErrInvalidHolderEmail},
		{"not owner", domain.AssignHolderRequest{UserID: stranger, TicketID: ticketID, Name: "A", Email: "a@example.com"}, domain.ErrTicketNotFound},
		{"unknown ticket", domain.AssignHolderRequest{UserID: f.userID, TicketID: f.node.Generate(), Name: "A", Email: "a@example.com"}, domain.ErrTicketNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.AssignHolder(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Empty(t, f.queue.Tasks(""))
}

func TestDeliverTicketWaitsForPayment(t *testing.T) {
	f := newFixture(t)
	order, _ := f.seedOrder(t, orderdomain.StatusPending, 1, []ticketdomain.Holder{{Name: "Ana", Email: "ana@example.com"}})
	ticketID := f.tickets(t, order.ID)[0].ID

	require.NoError(t, f.svc.DeliverTicket(context.Background(), ticketID))
	assert.Empty(t, f.mail.Sent())
	assert.EqualValues(t, 0, f.countLogs(t, `1 = 1`))
}

func TestDeliverTicketReturnsSendErrorForRetry(t *testing.T) {
	f := newFixture(t)
	order, _ := f.seedOrder(t, orderdomain.StatusPaid, 1, []ticketdomain.Holder{{Name: "Ana", Email: "ana@example.com"}})
	ticketID := f.tickets(t, order.ID)[0].ID
	f.mail.failNext = 1

	err := f.svc.DeliverTicket(context.Background(), ticketID)
	require.Error(t, err)
	assert.False(t, apperror.IsPermanent(err))
	assert.EqualValues(t, 1, f.countLogs(t, `success = ? AND ticket_id = ?`, false, ticketID))
	assert.Nil(t, f.tickets(t, order.ID)[0].EmailedAt)
}

// brokenEmailedMark stores everything except the emailed_at mark.
type brokenEmailedMark struct {
	ticketdomain.Repository
	calls int
}

func (r *brokenEmailedMark) MarkEmailed(context.Context, *gorm.DB, snowflake.ID, time.Time) error {
	r.calls++
	return errors.New("db blip")
}

func TestDeliverTicketMailsOnceWhenEmailedMarkFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, _ := f.seedOrder(t, orderdomain.StatusPaid, 1, []ticketdomain.Holder{{Name: "Ana", Email: "ana@example.com"}})
	ticketID := f.tickets(t, order.ID)[0].ID
	repo := &brokenEmailedMark{Repository: ticketrepo.Provide()}
	f.svc.ticketRepo = repo

	// the task router redelivers on error, so run it as often as it would
	for attempt := 0; attempt < f.tuning.Retry.MaxAttempts; attempt++ {
		require.NoError(t, f.svc.DeliverTicket(ctx, ticketID))
	}
	summary, err := f.svc.DeliverOrderTickets(ctx, order.ID)
	require.NoError(t, err)
	assert.Zero(t, summary)

	assert.Len(t, f.mail.Sent(), 1)
	assert.EqualValues(t, 1, f.countLogs(t, `success = ? AND ticket_id = ?`, true, ticketID))
	assert.Equal(t, f.tuning.Retry.MaxAttempts+1, repo.calls)
	assert.Nil(t, f.tickets(t, order.ID)[0].EmailedAt)
}

func TestDeliveryInFlightIsNotSentTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, _ := f.seedOrder(t, orderdomain.StatusPaid, 1, []ticketdomain.Holder{{Name: "Ana", Email: "ana@example.com"}})
	ticketID := f.tickets(t, order.ID)[0].ID

	// another worker is mid-send for this ticket
	key := "fulfillment:ticket:" + ticketID.String()
	token, ok, err := f.locker.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	err = f.svc.DeliverTicket(ctx, ticketID)
	require.ErrorIs(t, err, ErrDeliveryInFlight)
	assert.False(t, apperror.IsPermanent(err))

	summary, err := f.svc.DeliverOrderTickets(ctx, order.ID)
	require.NoError(t, err)
	assert.Zero(t, summary)
	assert.Empty(t, f.mail.Sent())

	// that worker finishes; the redelivered task sees it and stays quiet
	require.NoError(t, ticketrepo.Provide().MarkEmailed(ctx, f.db, ticketID, f.clock.Now()))
	require.NoError(t, f.locker.Release(ctx, key, token))
	require.NoError(t, f.svc.DeliverTicket(ctx, ticketID))
	assert.Empty(t, f.mail.Sent())
	assert.False(t, f.locker.Held(key))
}

func TestSendWelcomeOnlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SendWelcome(ctx, f.userID))
	require.NoError(t, f.svc.SendWelcome(ctx, f.userID))

	sent := f.mail.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "buyer@example.com", sent[0].To)
	assert.Equal(t, "Welcome to Ticketing", sent[0].Subject)
	assert.EqualValues(t, 1, f.countLogs(t, `email_type = ?`, emaillogdomain.TypeWelcome))

	err := f.svc.SendWelcome(ctx, f.node.Generate())
	assert.ErrorIs(t, err, domain.ErrRecipientNotFound)
}
