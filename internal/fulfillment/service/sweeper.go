package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ticketing/internal/cache"
	"github.com/smallbiznis/ticketing/internal/clock"
	"github.com/smallbiznis/ticketing/internal/config"
	obscontext "github.com/smallbiznis/ticketing/internal/observability/context"
	obslogger "github.com/smallbiznis/ticketing/internal/observability/logger"
	"github.com/smallbiznis/ticketing/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/ticketing/internal/order/domain"
	"github.com/smallbiznis/ticketing/internal/queue"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	sweptRequeued = "fulfillment_requeued"
	sweptExpired  = "orders_expired"

	sweeperLockKey = "fulfillment:sweeper"
)

type SweeperParams struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Tuning    *config.TuningHolder
	Locker    cache.Locker
	OrderRepo orderdomain.Repository
	Orders    orderdomain.Service
	Queue     queue.Enqueuer
	Metrics   *metrics.TaskMetrics `optional:"true"`
}

// Sweeper recovers paid orders whose order.paid task was lost and expires
// pending orders past their payment deadline.
type Sweeper struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	tuning    *config.TuningHolder
	locker    cache.Locker
	orderRepo orderdomain.Repository
	orders    orderdomain.Service
	queue     queue.Enqueuer
	metrics   *metrics.TaskMetrics
}

func NewSweeper(p SweeperParams) *Sweeper {
	return &Sweeper{
		db:        p.DB,
		log:       p.Log.Named("fulfillment.sweeper"),
		genID:     p.GenID,
		clock:     p.Clock,
		tuning:    p.Tuning,
		locker:    p.Locker,
		orderRepo: p.OrderRepo,
		orders:    p.Orders,
		queue:     p.Queue,
		metrics:   p.Metrics,
	}
}

// RunOnce sweeps one batch. Only one worker sweeps at a time; the others
// skip the run while the lock is held.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	cfg := s.tuning.Get().Sweeper
	token, ok, err := s.locker.TryLock(ctx, sweeperLockKey, cfg.Interval)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Debug("sweeper.run.skipped", zap.String("reason", "locked"))
		return nil
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), sweeperLockKey, token); err != nil {
			s.log.Warn("sweeper lock release failed", zap.Error(err))
		}
	}()

	now := s.clock.Now()
	started := time.Now()

	ctx = obscontext.WithActor(ctx, "system", "sweeper")
	log := obslogger.WithContext(ctx, s.log).With(zap.String("run_id", s.genID.Generate().String()))
	log.Debug("sweeper.run.start", zap.Int("batch_size", cfg.Batch))

	var errs []error
	requeued := 0
	ids, err := s.orderRepo.ListUnfulfilled(ctx, s.db, now.Add(-cfg.Grace), cfg.Batch)
	if err != nil {
		errs = append(errs, err)
	}
	for _, id := range ids {
		if err := s.queue.Enqueue(ctx, queue.TopicOrderPaid, queue.OrderPaid{OrderID: id}); err != nil {
			errs = append(errs, err)
			continue
		}
		requeued++
	}

	expired, err := s.orders.ExpireOverdue(ctx, now)
	if err != nil {
		errs = append(errs, err)
	}

	s.metrics.AddSwept(sweptRequeued, requeued)
	s.metrics.AddSwept(sweptExpired, int(expired))

	fields := []zap.Field{
		zap.Int("requeued_count", requeued),
		zap.Int64("expired_count", expired),
		zap.Int("error_count", len(errs)),
		zap.Int64("duration_ms", time.Since(started).Milliseconds()),
	}
	if requeued > 0 || expired > 0 || len(errs) > 0 {
		log.Info("sweeper.run.finish", fields...)
	} else {
		log.Debug("sweeper.run.finish", fields...)
	}
	return errors.Join(errs...)
}

func (s *Sweeper) RunForever(ctx context.Context) {
	interval := s.tuning.Get().Sweeper.Interval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("sweeper run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// StartSweeper runs the sweeper for the life of a worker process.
func StartSweeper(lc fx.Lifecycle, cfg config.Config, sweeper *Sweeper) {
	if !cfg.RunsWorker() {
		return
	}

	var cancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			go sweeper.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			return nil
		},
	})
}
