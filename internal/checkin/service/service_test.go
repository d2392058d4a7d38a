package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/ticketing/internal/apperror"
	"github.com/smallbiznis/ticketing/internal/cache"
	"github.com/smallbiznis/ticketing/internal/checkin/domain"
	"github.com/smallbiznis/ticketing/internal/clock"
	"github.com/smallbiznis/ticketing/internal/config"
	"github.com/smallbiznis/ticketing/internal/dbtest"
	orderdomain "github.com/smallbiznis/ticketing/internal/order/domain"
	orderrepo "github.com/smallbiznis/ticketing/internal/order/repository"
	"github.com/smallbiznis/ticketing/internal/queue"
	"github.com/smallbiznis/ticketing/internal/queue/queuetest"
	"github.com/smallbiznis/ticketing/internal/ratelimit"
	ticketdomain "github.com/smallbiznis/ticketing/internal/ticket/domain"
	ticketrepo "github.com/smallbiznis/ticketing/internal/ticket/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	svc    *Service
	db     *gorm.DB
	node   *snowflake.Node
	clock  *clock.FakeClock
	locker *cache.MemoryLocker
	queue  *queuetest.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	fake := clock.NewFakeClock(time.Date(2026, 7, 1, 18, 30, 0, 0, time.UTC))
	tuning := config.DefaultTuning()
	tuning.CheckIn.LockWait = 20 * time.Millisecond
	locker := cache.NewMemoryLocker(fake)
	rec := &queuetest.Recorder{}

	svc := New(Params{
		DB:         db,
		Log:        zap.NewNop(),
		Clock:      fake,
		Tuning:     config.NewStaticTuning(tuning),
		TicketRepo: ticketrepo.Provide(),
		Limiter:    ratelimit.NewMemoryFixedWindow(fake),
		Locker:     locker,
		Store:      cache.NewMemoryStore(fake),
		Queue:      rec,
	}).(*Service)

	return &fixture{svc: svc, db: db, node: dbtest.Node(t), clock: fake, locker: locker, queue: rec}
}

// seedTicket stores a one-ticket order in the given status.
func (f *fixture) seedTicket(t *testing.T, status orderdomain.Status) *ticketdomain.Ticket {
	t.Helper()
	ctx := context.Background()
	now := f.clock.Now()
	userID := dbtest.SeedUser(t, f.db, f.node, uuid.NewString()+"@example.com")
	eventID := dbtest.SeedEvent(t, f.db, f.node, "Summit", now.Add(time.Hour))
	classID := dbtest.SeedTicketClass(t, f.db, f.node, eventID, "50.00", "general")

	order := &orderdomain.Order{
		ID:              f.node.Generate(),
		UserID:          &userID,
		Status:          status,
		State:           orderdomain.StateActive,
		RedemptionToken: uuid.NewString(),
		TotalAmount:     decimal.NewFromInt(50),
		ExpiresAt:       now.Add(time.Hour),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, orderrepo.Provide().Insert(ctx, f.db, order))
	item := orderdomain.OrderItem{
		ID:            f.node.Generate(),
		OrderID:       order.ID,
		EventID:       eventID,
		TicketClassID: classID,
		Quantity:      1,
		UnitPrice:     decimal.NewFromInt(50),
		Subtotal:      decimal.NewFromInt(50),
	}
	require.NoError(t, orderrepo.Provide().InsertItem(ctx, f.db, &item))

	ticket := &ticketdomain.Ticket{
		ID:          f.node.Generate(),
		OrderID:     order.ID,
		OrderItemID: item.ID,
		QRCode:      uuid.NewString(),
		CreatedAt:   now,
	}
	require.NoError(t, ticketrepo.Provide().Insert(ctx, f.db, ticket))
	return ticket
}

func (f *fixture) reload(t *testing.T, id snowflake.ID) *ticketdomain.Ticket {
	t.Helper()
	ticket, err := ticketrepo.Provide().FindByID(context.Background(), f.db, id)
	require.NoError(t, err)
	require.NotNil(t, ticket)
	return ticket
}

func TestCheckInSchedulesPresenceOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.seedTicket(t, orderdomain.StatusPaid)

	res, err := f.svc.CheckIn(ctx, ticket.QRCode, "10.0.0.7")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCheckedIn, res.Status)
	assert.Equal(t, "Check-in successful.", res.Message)
	assert.False(t, f.locker.Held(lockKey(ticket.QRCode)))

	// before the presence task runs
	res, err = f.svc.CheckIn(ctx, ticket.QRCode, "10.0.0.7")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAlreadyCheckedIn, res.Status)
	assert.Equal(t, "User already checked in.", res.Message)

	tasks := queuetest.Decode[queue.CheckInPresence](f.queue, queue.TopicCheckInPresence)
	require.Len(t, tasks, 1)
	assert.Equal(t, ticket.ID, tasks[0].TicketID)
	assert.Equal(t, "10.0.0.7", tasks[0].ClientIP)

	require.NoError(t, f.svc.MarkPresent(ctx, tasks[0].TicketID, tasks[0].CheckedInAt))
	stored := f.reload(t, ticket.ID)
	assert.True(t, stored.IsRedeemed)
	require.NotNil(t, stored.RedeemedAt)
	assert.True(t, stored.RedeemedAt.Equal(f.clock.Now()))

	// a redelivered task changes nothing
	f.clock.Advance(time.Minute)
	require.NoError(t, f.svc.MarkPresent(ctx, ticket.ID, f.clock.Now()))
	assert.True(t, f.reload(t, ticket.ID).RedeemedAt.Equal(*stored.RedeemedAt))
}

func TestCheckInSixthAttemptIsRateLimited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.seedTicket(t, orderdomain.StatusPaid)

	for i := 0; i < 5; i++ {
		_, err := f.svc.CheckIn(ctx, ticket.QRCode, "")
		require.NoError(t, err, "attempt %d", i+1)
	}
	before := len(f.queue.Tasks(""))

	_, err := f.svc.CheckIn(ctx, ticket.QRCode, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrRateLimited)
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Greater(t, appErr.RetryAfter, time.Duration(0))
	assert.Len(t, f.queue.Tasks(""), before)

	// the window resets
	f.clock.Advance(61 * time.Second)
	_, err = f.svc.CheckIn(ctx, ticket.QRCode, "")
	assert.NoError(t, err)
}

func TestCheckInRateLimitAppliesToUnknownTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := f.svc.CheckIn(ctx, "missing-token", "")
		assert.ErrorIs(t, err, domain.ErrTicketNotFound)
	}
	_, err := f.svc.CheckIn(ctx, "missing-token", "")
	assert.Equal(t, apperror.KindRateLimited, apperror.KindOf(err))
}

func TestCheckInRejectsUnpaidTicket(t *testing.T) {
	f := newFixture(t)
	ticket := f.seedTicket(t, orderdomain.StatusPending)

	_, err := f.svc.CheckIn(context.Background(), ticket.QRCode, "")
	assert.ErrorIs(t, err, domain.ErrTicketNotValid)
	assert.Empty(t, f.queue.Tasks(""))
}

func TestCheckInLockContention(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.seedTicket(t, orderdomain.StatusPaid)

	_, ok, err := f.locker.TryLock(ctx, lockKey(ticket.QRCode), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.CheckIn(ctx, ticket.QRCode, "")
	assert.ErrorIs(t, err, apperror.ErrServiceUnavailable)
	assert.ErrorIs(t, err, cache.ErrLockTimeout)
	assert.Empty(t, f.queue.Tasks(""))
}

type downLimiter struct{}

func (downLimiter) Allow(context.Context, string, int, time.Duration) (ratelimit.Result, error) {
	return ratelimit.Result{}, errors.New("dial tcp: connection refused")
}

func TestCheckInFailsClosedWhenLimiterIsDown(t *testing.T) {
	f := newFixture(t)
	f.svc.limiter = downLimiter{}
	ticket := f.seedTicket(t, orderdomain.StatusPaid)

	_, err := f.svc.CheckIn(context.Background(), ticket.QRCode, "")
	assert.Equal(t, apperror.KindUnavailable, apperror.KindOf(err))
	assert.Empty(t, f.queue.Tasks(""))
}

func TestCheckInValidatesToken(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CheckIn(context.Background(), "  ", "")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestRedeemTwiceConflictsAndKeepsFirstTimestamp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ticket := f.seedTicket(t, orderdomain.StatusPaid)
	staffID := f.node.Generate()

	redeemed, err := f.svc.Redeem(ctx, domain.RedeemRequest{QRCode: ticket.QRCode, StaffID: staffID})
	require.NoError(t, err)
	assert.True(t, redeemed.IsRedeemed)
	first := f.reload(t, ticket.ID)
	require.NotNil(t, first.RedeemedBy)
	assert.Equal(t, staffID, *first.RedeemedBy)

	f.clock.Advance(5 * time.Minute)
	_, err = f.svc.Redeem(ctx, domain.RedeemRequest{QRCode: ticket.QRCode, StaffID: staffID})
	assert.ErrorIs(t, err, domain.ErrAlreadyRedeemed)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
	assert.True(t, f.reload(t, ticket.ID).RedeemedAt.Equal(*first.RedeemedAt))

	// the check-in desk sees the staff redemption
	res, err := f.svc.CheckIn(ctx, ticket.QRCode, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAlreadyCheckedIn, res.Status)
}

func TestRedeemUnknownCode(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Redeem(context.Background(), domain.RedeemRequest{QRCode: "nope", StaffID: 1})
	assert.ErrorIs(t, err, domain.ErrTicketNotFound)
}
