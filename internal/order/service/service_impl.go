package service

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/ticketing/internal/clock"
	"github.com/smallbiznis/ticketing/internal/config"
	eventdomain "github.com/smallbiznis/ticketing/internal/event/domain"
	"github.com/smallbiznis/ticketing/internal/observability/metrics"
	"github.com/smallbiznis/ticketing/internal/order/domain"
	paymentdomain "github.com/smallbiznis/ticketing/internal/payment/domain"
	"github.com/smallbiznis/ticketing/internal/queue"
	ticketdomain "github.com/smallbiznis/ticketing/internal/ticket/domain"
	"github.com/smallbiznis/ticketing/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     config.Config
	Tuning     *config.TuningHolder
	Repo       domain.Repository
	EventRepo  eventdomain.Repository
	TicketRepo ticketdomain.Repository
	Gateway    paymentdomain.Gateway
	Queue      queue.Enqueuer
	Metrics    *metrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	tuning     *config.TuningHolder
	repo       domain.Repository
	eventRepo  eventdomain.Repository
	ticketRepo ticketdomain.Repository
	gateway    paymentdomain.Gateway
	queue      queue.Enqueuer
	metrics    *metrics.Metrics
	provider   string
	paymentTTL time.Duration
}

func New(p Params) domain.Service {
	ttl := p.Config.OrderPaymentTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("order.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		tuning:     p.Tuning,
		repo:       p.Repo,
		eventRepo:  p.EventRepo,
		ticketRepo: p.TicketRepo,
		gateway:    p.Gateway,
		queue:      p.Queue,
		metrics:    p.Metrics,
		provider:   p.Config.Payment.Provider,
		paymentTTL: ttl,
	}
}

// line is a validated request item priced from its ticket class.
type line struct {
	class   *eventdomain.TicketClass
	qty     int
	holders []ticketdomain.Holder
}

func (s *Service) Create(ctx context.Context, req domain.CreateOrderRequest) (*domain.Order, error) {
	if req.UserID == 0 {
		return nil, domain.ErrNotFound
	}
	lines, err := s.priceLines(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.class.Price.Mul(decimal.NewFromInt(int64(l.qty))))
	}
	total = total.Round(2)

	billingType := strings.ToUpper(strings.TrimSpace(req.BillingType))
	if billingType != "" && !paymentdomain.ValidBillingType(billingType) {
		return nil, domain.ErrInvalidBillingType
	}
	if total.IsPositive() && billingType == "" {
		return nil, domain.ErrInvalidBillingType
	}

	now := s.clock.Now()
	userID := req.UserID
	order := &domain.Order{
		ID:              s.genID.Generate(),
		UserID:          &userID,
		Status:          domain.StatusPending,
		State:           domain.StateActive,
		RedemptionToken: uuid.NewString(),
		TotalAmount:     total,
		BillingType:     billingType,
		ExpiresAt:       now.Add(s.paymentTTL),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if total.IsZero() {
		order.Status = domain.StatusPaid
		order.PaidAt = &now
		if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.materialize(ctx, tx, order, lines)
		}); err != nil {
			return nil, err
		}
		s.enqueuePaid(ctx, order.ID)
		s.recordCreated(ctx, order)
		return order, nil
	}

	// resolved outside the transaction so the user row is not held while
	// the provider is called
	customerID, err := s.gateway.EnsureCustomer(ctx, userID)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.materialize(ctx, tx, order, lines); err != nil {
			return err
		}
		charge, err := s.gateway.CreateCharge(ctx, paymentdomain.ChargeRequest{
			OrderID:     order.ID,
			CustomerID:  customerID,
			BillingType: billingType,
			Amount:      total,
			DueDate:     order.ExpiresAt,
		})
		if err != nil {
			return err
		}
		return s.applyCharge(ctx, tx, order, billingType, charge)
	})
	if err != nil {
		s.log.Warn("order creation rolled back", zap.String("order_id", order.ID.String()), zap.Error(err))
		return nil, err
	}

	s.recordCreated(ctx, order)
	return order, nil
}

// priceLines validates every item and reads unit prices from the stored
// ticket classes. Any invalid item rejects the whole request.
func (s *Service) priceLines(ctx context.Context, items []domain.CreateOrderItem) ([]line, error) {
	if len(items) == 0 {
		return nil, domain.ErrEmptyItems
	}

	ids := make([]snowflake.ID, 0, len(items))
	for _, item := range items {
		if item.TicketClassID == 0 {
			return nil, domain.ErrUnknownTicketClass
		}
		if item.Quantity < 1 {
			return nil, domain.ErrInvalidQuantity
		}
		if len(item.Holders) > 0 && len(item.Holders) != item.Quantity {
			return nil, domain.ErrHolderCountMismatch
		}
		for _, holder := range item.Holders {
			if email := strings.TrimSpace(holder.Email); email != "" {
				if _, err := mail.ParseAddress(email); err != nil {
					return nil, domain.ErrInvalidHolderEmail
				}
			}
		}
		ids = append(ids, item.TicketClassID)
	}

	classes, err := s.eventRepo.FindTicketClasses(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[snowflake.ID]*eventdomain.TicketClass, len(classes))
	for _, class := range classes {
		byID[class.ID] = class
	}

	lines := make([]line, 0, len(items))
	for _, item := range items {
		class, ok := byID[item.TicketClassID]
		if !ok {
			return nil, domain.ErrUnknownTicketClass
		}
		lines = append(lines, line{class: class, qty: item.Quantity, holders: item.Holders})
	}
	return lines, nil
}

// materialize writes the order, its items and one ticket per unit.
func (s *Service) materialize(ctx context.Context, tx *gorm.DB, order *domain.Order, lines []line) error {
	if err := s.repo.Insert(ctx, tx, order); err != nil {
		return err
	}

	for _, l := range lines {
		item := domain.OrderItem{
			ID:            s.genID.Generate(),
			OrderID:       order.ID,
			EventID:       l.class.EventID,
			TicketClassID: l.class.ID,
			Quantity:      l.qty,
			UnitPrice:     l.class.Price,
			Subtotal:      l.class.Price.Mul(decimal.NewFromInt(int64(l.qty))).Round(2),
		}
		if err := s.repo.InsertItem(ctx, tx, &item); err != nil {
			return err
		}
		order.Items = append(order.Items, item)

		for i := 0; i < l.qty; i++ {
			ticket := ticketdomain.Ticket{
				ID:          s.genID.Generate(),
				OrderID:     order.ID,
				OrderItemID: item.ID,
				QRCode:      uuid.NewString(),
				CreatedAt:   order.CreatedAt,
			}
			if i < len(l.holders) {
				ticket.HolderName = strings.TrimSpace(l.holders[i].Name)
				ticket.HolderEmail = strings.ToLower(strings.TrimSpace(l.holders[i].Email))
			}
			if err := s.ticketRepo.Insert(ctx, tx, &ticket); err != nil {
				return err
			}
			order.Tickets = append(order.Tickets, ticket)
		}
	}
	order.Fulfillment = order.FulfillmentState()
	return nil
}

func (s *Service) applyCharge(ctx context.Context, tx *gorm.DB, order *domain.Order, billingType string, charge paymentdomain.ChargeResult) error {
	now := s.clock.Now()
	data := datatypes.JSON(charge.Raw)
	set, err := s.repo.SetPayment(ctx, tx, order.ID, s.provider, billingType, charge.ID, data, now)
	if err != nil {
		return err
	}
	if !set {
		// a concurrent request attached its charge first; this one stays
		// unpaid at the provider and lapses on its due date
		s.log.Warn("order charge discarded",
			zap.String("order_id", order.ID.String()),
			zap.String("payment_id", charge.ID),
		)
		return domain.ErrChargeExists
	}
	paymentID := charge.ID
	order.PaymentID = &paymentID
	order.PaymentData = data
	order.PaymentProvider = s.provider
	order.BillingType = billingType
	order.UpdatedAt = now
	return nil
}

func (s *Service) ListByUser(ctx context.Context, userID snowflake.ID, page pagination.Pagination) (domain.ListOrdersResponse, error) {
	cursor, err := pagination.DecodeCursor(page.PageToken)
	if err != nil {
		return domain.ListOrdersResponse{}, err
	}
	limit := page.Limit()

	rows, err := s.repo.ListByUser(ctx, s.db, userID, cursor, limit+1)
	if err != nil {
		return domain.ListOrdersResponse{}, err
	}
	rows, info, err := pagination.Page(rows, limit, func(o *domain.Order) pagination.Cursor {
		return pagination.Cursor{ID: int64(o.ID), CreatedAt: o.CreatedAt.UTC().Format(time.RFC3339Nano)}
	})
	if err != nil {
		return domain.ListOrdersResponse{}, err
	}
	if err := s.attach(ctx, rows); err != nil {
		return domain.ListOrdersResponse{}, err
	}

	orders := make([]domain.Order, 0, len(rows))
	for _, row := range rows {
		orders = append(orders, *row)
	}
	return domain.ListOrdersResponse{Orders: orders, PageInfo: info}, nil
}

func (s *Service) Get(ctx context.Context, userID, orderID snowflake.ID) (*domain.Order, error) {
	order, err := s.findOwned(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.attach(ctx, []*domain.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) CreateCharge(ctx context.Context, userID, orderID snowflake.ID, billingType string) (*domain.Order, error) {
	billingType = strings.ToUpper(strings.TrimSpace(billingType))
	if !paymentdomain.ValidBillingType(billingType) {
		return nil, domain.ErrInvalidBillingType
	}
	order, err := s.findOwned(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsPayable(s.clock.Now()) {
		return nil, domain.ErrOrderNotPayable
	}
	if order.PaymentID != nil {
		// the live charge is what the webhook settles against
		if order.BillingType != billingType {
			return nil, domain.ErrChargeExists
		}
		if err := s.attach(ctx, []*domain.Order{order}); err != nil {
			return nil, err
		}
		return order, nil
	}

	customerID, err := s.gateway.EnsureCustomer(ctx, userID)
	if err != nil {
		return nil, err
	}
	charge, err := s.gateway.CreateCharge(ctx, paymentdomain.ChargeRequest{
		OrderID:     order.ID,
		CustomerID:  customerID,
		BillingType: billingType,
		Amount:      order.TotalAmount,
		DueDate:     order.ExpiresAt,
	})
	if err != nil {
		return nil, err
	}
	if err := s.applyCharge(ctx, s.db, order, billingType, charge); err != nil {
		return nil, err
	}

	s.log.Info("order charge created",
		zap.String("order_id", order.ID.String()),
		zap.String("billing_type", billingType),
	)
	if err := s.attach(ctx, []*domain.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) GetCourtesy(ctx context.Context, token string) (*domain.Courtesy, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.ErrCourtesyNotFound
	}
	order, err := s.repo.FindByRedemptionToken(ctx, s.db, token)
	if err != nil {
		return nil, err
	}
	if order == nil || order.Status != domain.StatusPending || order.State != domain.StateActive {
		return nil, domain.ErrCourtesyNotFound
	}

	items, err := s.repo.ListItems(ctx, s.db, []snowflake.ID{order.ID})
	if err != nil {
		return nil, err
	}
	courtesy := &domain.Courtesy{
		OrderID:     order.ID,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
		ExpiresAt:   order.ExpiresAt,
		Items:       make([]domain.OrderItem, 0, len(items)),
	}
	for _, item := range items {
		courtesy.Items = append(courtesy.Items, *item)
	}
	return courtesy, nil
}

func (s *Service) MarkPaid(ctx context.Context, tx *gorm.DB, orderID snowflake.ID, at time.Time) (bool, error) {
	return s.repo.MarkPaid(ctx, tx, orderID, at.UTC())
}

func (s *Service) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	batch := s.tuning.Get().Sweeper.Batch
	expired, err := s.repo.ExpireOverdue(ctx, s.db, now.UTC(), batch)
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		s.log.Info("expired unpaid orders", zap.Int64("count", expired))
	}
	return expired, nil
}

func (s *Service) findOwned(ctx context.Context, userID, orderID snowflake.ID) (*domain.Order, error) {
	order, err := s.repo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil || order.UserID == nil || *order.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return order, nil
}

func (s *Service) attach(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]snowflake.ID, 0, len(orders))
	byID := make(map[snowflake.ID]*domain.Order, len(orders))
	for _, order := range orders {
		ids = append(ids, order.ID)
		byID[order.ID] = order
		order.Items = []domain.OrderItem{}
		order.Tickets = []ticketdomain.Ticket{}
	}

	items, err := s.repo.ListItems(ctx, s.db, ids)
	if err != nil {
		return err
	}
	for _, item := range items {
		if order, ok := byID[item.OrderID]; ok {
			order.Items = append(order.Items, *item)
		}
	}

	tickets, err := s.ticketRepo.ListByOrders(ctx, s.db, ids)
	if err != nil {
		return err
	}
	for _, ticket := range tickets {
		if order, ok := byID[ticket.OrderID]; ok {
			order.Tickets = append(order.Tickets, *ticket)
		}
	}

	for _, order := range orders {
		order.Fulfillment = order.FulfillmentState()
	}
	return nil
}

// enqueuePaid runs after commit. A lost message is picked up by the sweeper.
func (s *Service) enqueuePaid(ctx context.Context, orderID snowflake.ID) {
	if err := s.queue.Enqueue(ctx, queue.TopicOrderPaid, queue.OrderPaid{OrderID: orderID}); err != nil {
		s.log.Warn("failed to enqueue order fulfillment", zap.String("order_id", orderID.String()), zap.Error(err))
	}
}

func (s *Service) recordCreated(ctx context.Context, order *domain.Order) {
	s.metrics.RecordOrderCreated(ctx, order.BillingType, string(order.Status))
	s.log.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("status", string(order.Status)),
		zap.String("total_amount", order.TotalAmount.StringFixed(2)),
		zap.Int("tickets", len(order.Tickets)),
	)
}
