package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/ticketing/internal/cache"
	"github.com/smallbiznis/ticketing/internal/config"
	eventrepo "github.com/smallbiznis/ticketing/internal/event/repository"
	orderdomain "github.com/smallbiznis/ticketing/internal/order/domain"
	orderrepo "github.com/smallbiznis/ticketing/internal/order/repository"
	orderservice "github.com/smallbiznis/ticketing/internal/order/service"
	"github.com/smallbiznis/ticketing/internal/payment/paymenttest"
	"github.com/smallbiznis/ticketing/internal/queue"
	"github.com/smallbiznis/ticketing/internal/queue/queuetest"
	ticketrepo "github.com/smallbiznis/ticketing/internal/ticket/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSweeper(f *fixture, rec *queuetest.Recorder) *Sweeper {
	return newSweeperWithLocker(f, rec, cache.NewMemoryLocker(f.clock))
}

func newSweeperWithLocker(f *fixture, rec *queuetest.Recorder, locker cache.Locker) *Sweeper {
	holder := config.NewStaticTuning(f.tuning)
	orders := orderservice.New(orderservice.Params{
		DB:         f.db,
		Log:        zap.NewNop(),
		GenID:      f.node,
		Clock:      f.clock,
		Tuning:     holder,
		Repo:       orderrepo.Provide(),
		EventRepo:  eventrepo.Provide(),
		TicketRepo: ticketrepo.Provide(),
		Gateway:    &paymenttest.Gateway{},
		Queue:      rec,
	})
	return NewSweeper(SweeperParams{
		DB:        f.db,
		Log:       zap.NewNop(),
		GenID:     f.node,
		Clock:     f.clock,
		Tuning:    holder,
		Locker:    locker,
		OrderRepo: orderrepo.Provide(),
		Orders:    orders,
		Queue:     rec,
	})
}

func TestSweeperRequeuesStalledOrdersAndExpiresUnpaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stalled, _ := f.seedOrder(t, orderdomain.StatusPaid, 1, nil)
	unpaid, _ := f.seedOrder(t, orderdomain.StatusPending, 1, nil)

	rec := &queuetest.Recorder{}
	sweeper := newSweeper(f, rec)

	// inside the grace period nothing is touched
	require.NoError(t, sweeper.RunOnce(ctx))
	assert.Empty(t, rec.Tasks(""))

	f.clock.Advance(25 * time.Hour)
	require.NoError(t, sweeper.RunOnce(ctx))

	tasks := queuetest.Decode[queue.OrderPaid](rec, queue.TopicOrderPaid)
	require.Len(t, tasks, 1)
	assert.Equal(t, stalled.ID, tasks[0].OrderID)

	expired := f.order(t, unpaid.ID)
	assert.Equal(t, orderdomain.StateExpired, expired.State)
	assert.Equal(t, orderdomain.StatusFailed, expired.Status)

	// once fulfilled the order is no longer swept
	require.NoError(t, f.svc.HandleOrderPaid(ctx, stalled.ID))
	require.NoError(t, sweeper.RunOnce(ctx))
	assert.Len(t, queuetest.Decode[queue.OrderPaid](rec, queue.TopicOrderPaid), 1)
}

func TestSweeperReportsEnqueueFailures(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, orderdomain.StatusPaid, 1, nil)
	f.clock.Advance(time.Hour)

	rec := &queuetest.Recorder{Err: errors.New("stream unavailable")}
	err := newSweeper(f, rec).RunOnce(context.Background())
	assert.Error(t, err)
}

func TestSweeperSkipsWhileAnotherWorkerHoldsTheLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedOrder(t, orderdomain.StatusPaid, 1, nil)
	f.clock.Advance(time.Hour)

	locker := cache.NewMemoryLocker(f.clock)
	token, ok, err := locker.TryLock(ctx, sweeperLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	rec := &queuetest.Recorder{}
	sweeper := newSweeperWithLocker(f, rec, locker)
	require.NoError(t, sweeper.RunOnce(ctx))
	assert.Empty(t, rec.Tasks(""))

	require.NoError(t, locker.Release(ctx, sweeperLockKey, token))
	require.NoError(t, sweeper.RunOnce(ctx))
	assert.Len(t, queuetest.Decode[queue.OrderPaid](rec, queue.TopicOrderPaid), 1)
	assert.False(t, locker.Held(sweeperLockKey))
}
