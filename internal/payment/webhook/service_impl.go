package webhook

import (
	"context"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ticketing/internal/clock"
	"github.com/smallbiznis/ticketing/internal/config"
	"github.com/smallbiznis/ticketing/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/ticketing/internal/order/domain"
	"github.com/smallbiznis/ticketing/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/ticketing/internal/payment/domain"
	"github.com/smallbiznis/ticketing/internal/queue"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Cfg       config.Config
	Repo      paymentdomain.Repository
	Adapters  *adapters.Registry
	Adapter   paymentdomain.PaymentAdapter
	Orders    orderdomain.Service
	OrderRepo orderdomain.Repository
	Queue     queue.Enqueuer
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	provider  string
	repo      paymentdomain.Repository
	adapters  *adapters.Registry
	adapter   paymentdomain.PaymentAdapter
	orders    orderdomain.Service
	orderRepo orderdomain.Repository
	queue     queue.Enqueuer
	metrics   *metrics.Metrics
}

func NewService(p Params) paymentdomain.WebhookService {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("payment.webhook"),
		genID:     p.GenID,
		clock:     p.Clock,
		provider:  strings.ToLower(strings.TrimSpace(p.Cfg.Payment.Provider)),
		repo:      p.Repo,
		adapters:  p.Adapters,
		adapter:   p.Adapter,
		orders:    p.Orders,
		orderRepo: p.OrderRepo,
		queue:     p.Queue,
		metrics:   p.Metrics,
	}
}

// Ingest authenticates and records a provider notification, then applies a
// settlement to the matching order. Unknown orders and event types are
// acknowledged so the provider stops redelivering.
func (s *Service) Ingest(ctx context.Context, provider string, headers http.Header, body []byte) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" || provider != s.provider || !s.adapters.ProviderExists(provider) {
		return paymentdomain.ErrProviderNotFound
	}
	if err := s.adapter.Verify(ctx, body, headers); err != nil {
		s.log.Warn("payment webhook rejected", zap.String("provider", provider))
		return err
	}

	event, err := s.adapter.Parse(ctx, body)
	if err != nil {
		return err
	}

	record := paymentdomain.WebhookRecord{
		ID:        s.genID.Generate(),
		Provider:  provider,
		WebhookID: event.ID,
		EventType: event.Type,
		Payload:   datatypes.JSON(body),
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.InsertWebhook(ctx, s.db, &record); err != nil {
		return err
	}
	s.metrics.RecordPaymentEvent(ctx, provider, event.Type)

	if !event.Settles() {
		s.log.Debug("payment webhook ignored",
			zap.String("event_type", event.Type),
			zap.String("webhook_id", record.ID.String()),
		)
		return nil
	}

	order, err := s.orderRepo.FindByPaymentID(ctx, s.db, event.PaymentID)
	if err != nil {
		return err
	}
	if order == nil {
		s.log.Warn("payment webhook for unknown order",
			zap.String("payment_id", event.PaymentID),
			zap.String("webhook_id", record.ID.String()),
		)
		return nil
	}

	var changed bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		changed, err = s.orders.MarkPaid(ctx, tx, order.ID, s.clock.Now())
		if err != nil {
			return err
		}
		// the sweeper may have expired the order since it was looked up
		current, err := s.orderRepo.FindByID(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if current != nil {
			order = current
		}
		return s.repo.MarkProcessed(ctx, tx, record.ID)
	})
	if err != nil {
		return err
	}

	if order.State != orderdomain.StateActive {
		// paid stays recorded but the order is never fulfilled
		if changed {
			s.log.Error("payment received for inactive order, refund required",
				zap.String("order_id", order.ID.String()),
				zap.String("state", string(order.State)),
				zap.String("payment_id", event.PaymentID),
			)
			s.metrics.RecordRefundRequired(ctx, provider, string(order.State))
		}
		return nil
	}

	s.log.Info("order payment reconciled",
		zap.String("order_id", order.ID.String()),
		zap.String("event_type", event.Type),
		zap.Bool("changed", changed),
	)

	if err := s.queue.Enqueue(ctx, queue.TopicOrderPaid, queue.OrderPaid{OrderID: order.ID}); err != nil {
		s.log.Warn("failed to enqueue order fulfillment", zap.String("order_id", order.ID.String()), zap.Error(err))
	}
	return nil
}
