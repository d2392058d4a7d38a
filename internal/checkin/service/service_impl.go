package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ticketing/internal/apperror"
	"github.com/smallbiznis/ticketing/internal/cache"
	"github.com/smallbiznis/ticketing/internal/checkin/domain"
	"github.com/smallbiznis/ticketing/internal/clock"
	"github.com/smallbiznis/ticketing/internal/config"
	"github.com/smallbiznis/ticketing/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/ticketing/internal/order/domain"
	"github.com/smallbiznis/ticketing/internal/queue"
	"github.com/smallbiznis/ticketing/internal/ratelimit"
	ticketdomain "github.com/smallbiznis/ticketing/internal/ticket/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxTokenLength = 255
	// presentTTL keeps the pending-presence marker around long enough to
	// cover a backed up worker.
	presentTTL = 24 * time.Hour
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Tuning     *config.TuningHolder
	TicketRepo ticketdomain.Repository
	Limiter    ratelimit.Limiter
	Locker     cache.Locker
	Store      cache.Store
	Queue      queue.Enqueuer
	Metrics    *metrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	tuning     *config.TuningHolder
	ticketRepo ticketdomain.Repository
	limiter    ratelimit.Limiter
	locker     cache.Locker
	store      cache.Store
	queue      queue.Enqueuer
	metrics    *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("checkin.service"),
		clock:      p.Clock,
		tuning:     p.Tuning,
		ticketRepo: p.TicketRepo,
		limiter:    p.Limiter,
		locker:     p.Locker,
		store:      p.Store,
		queue:      p.Queue,
		metrics:    p.Metrics,
	}
}

func attemptsKey(token string) string { return "checkin:attempts:" + token }
func lockKey(token string) string { return "checkin:lock:" + token }
func presentKey(token string) string { return "checkin:present:" + token }

func (s *Service) CheckIn(ctx context.Context, token, clientIP string) (domain.Result, error) {
	token = strings.TrimSpace(token)
	if token == "" || len(token) > maxTokenLength {
		return domain.Result{}, domain.ErrInvalidToken
	}
	cfg := s.tuning.Get().CheckIn

	allowed, err := s.limiter.Allow(ctx, attemptsKey(token), cfg.MaxAttempts, cfg.Window)
	if err != nil {
		return domain.Result{}, apperror.Unavailable(fmt.Errorf("check-in rate limit: %w", err))
	}
	if !allowed.Allowed {
		s.metrics.RecordCheckIn(ctx, "rate_limited")
		return domain.Result{}, apperror.RateLimited(allowed.RetryAfter)
	}

	lockToken, err := cache.Acquire(ctx, s.locker, lockKey(token), cfg.LockTTL, cfg.LockWait)
	if err != nil {
		return domain.Result{}, apperror.Unavailable(fmt.Errorf("check-in lock: %w", err))
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), lockKey(token), lockToken); err != nil && !errors.Is(err, cache.ErrInvalidLock) {
			s.log.Warn("failed to release check-in lock", zap.Error(err))
		}
	}()

	ticket, err := s.ticketRepo.FindByQRCode(ctx, s.db, token)
	if err != nil {
		return domain.Result{}, err
	}
	if ticket == nil {
		s.metrics.RecordCheckIn(ctx, "not_found")
		return domain.Result{}, domain.ErrTicketNotFound
	}

	detail, err := s.ticketRepo.FindDetail(ctx, s.db, ticket.ID)
	if err != nil {
		return domain.Result{}, err
	}
	if detail == nil || !admissible(detail) {
		s.metrics.RecordCheckIn(ctx, "not_valid")
		return domain.Result{}, domain.ErrTicketNotValid
	}

	already := detail.IsRedeemed
	if !already {
		// the presence update is async, so a recent check-in may not be
		// visible on the row yet
		_, pending, err := s.store.Get(ctx, presentKey(token))
		if err != nil {
			return domain.Result{}, apperror.Unavailable(fmt.Errorf("check-in marker: %w", err))
		}
		already = pending
	}
	if already {
		s.metrics.RecordCheckIn(ctx, string(domain.StatusAlreadyCheckedIn))
		return domain.Result{
			Status:   domain.StatusAlreadyCheckedIn,
			Message:  domain.MessageAlreadyCheckedIn,
			TicketID: ticket.ID,
		}, nil
	}

	now := s.clock.Now()
	if err := s.queue.Enqueue(ctx, queue.TopicCheckInPresence, queue.CheckInPresence{
		TicketID:    ticket.ID,
		CheckedInAt: now,
		ClientIP:    clientIP,
	}); err != nil {
		return domain.Result{}, apperror.Unavailable(fmt.Errorf("enqueue presence: %w", err))
	}
	if err := s.store.Set(ctx, presentKey(token), []byte(now.UTC().Format(time.RFC3339Nano)), presentTTL); err != nil {
		s.log.Warn("failed to store check-in marker", zap.String("ticket_id", ticket.ID.String()), zap.Error(err))
	}

	s.metrics.RecordCheckIn(ctx, string(domain.StatusCheckedIn))
	s.log.Info("ticket checked in", zap.String("ticket_id", ticket.ID.String()), zap.String("client_ip", clientIP))
	return domain.Result{
		Status:   domain.StatusCheckedIn,
		Message:  domain.MessageCheckedIn,
		TicketID: ticket.ID,
	}, nil
}

func admissible(ticket *ticketdomain.Detail) bool {
	return ticket.OrderStatus == string(orderdomain.StatusPaid) &&
		ticket.OrderState == string(orderdomain.StateActive)
}

func (s *Service) Redeem(ctx context.Context, req domain.RedeemRequest) (*ticketdomain.Ticket, error) {
	code := strings.TrimSpace(req.QRCode)
	if code == "" || len(code) > maxTokenLength {
		return nil, domain.ErrInvalidToken
	}

	detail, err := s.findDetailByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !admissible(detail) {
		return nil, domain.ErrTicketNotValid
	}
	if detail.IsRedeemed {
		return nil, domain.ErrAlreadyRedeemed
	}

	now := s.clock.Now()
	staffID := req.StaffID
	ok, err := s.ticketRepo.MarkRedeemed(ctx, s.db, detail.ID, now, &staffID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrAlreadyRedeemed
	}

	s.metrics.RecordCheckIn(ctx, "redeemed")
	s.log.Info("ticket redeemed",
		zap.String("ticket_id", detail.ID.String()),
		zap.String("staff_id", staffID.String()),
	)

	ticket := detail.Ticket
	ticket.IsRedeemed = true
	ticket.RedeemedAt = &now
	ticket.RedeemedBy = &staffID
	return &ticket, nil
}

func (s *Service) findDetailByCode(ctx context.Context, code string) (*ticketdomain.Detail, error) {
	ticket, err := s.ticketRepo.FindByQRCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, domain.ErrTicketNotFound
	}
	detail, err := s.ticketRepo.FindDetail(ctx, s.db, ticket.ID)
	if err != nil {
		return nil, err
	}
	if detail == nil {
		return nil, domain.ErrTicketNotFound
	}
	return detail, nil
}

func (s *Service) MarkPresent(ctx context.Context, ticketID snowflake.ID, at time.Time) error {
	if at.IsZero() {
		at = s.clock.Now()
	}
	changed, err := s.ticketRepo.MarkRedeemed(ctx, s.db, ticketID, at, nil)
	if err != nil {
		return err
	}
	if !changed {
		s.log.Info("presence already recorded", zap.String("ticket_id", ticketID.String()))
	}
	return nil
}
