package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/smallbiznis/ticketing/internal/apperror"
	"github.com/smallbiznis/ticketing/internal/cache"
	"github.com/smallbiznis/ticketing/internal/clock"
	"github.com/smallbiznis/ticketing/internal/config"
	emaillogdomain "github.com/smallbiznis/ticketing/internal/emaillog/domain"
	"github.com/smallbiznis/ticketing/internal/fulfillment/domain"
	"github.com/smallbiznis/ticketing/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/ticketing/internal/order/domain"
	"github.com/smallbiznis/ticketing/internal/providers/email"
	"github.com/smallbiznis/ticketing/internal/queue"
	ticketdomain "github.com/smallbiznis/ticketing/internal/ticket/domain"
	userdomain "github.com/smallbiznis/ticketing/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// errClaimLost means another worker issued the tickets first.
	errClaimLost = errors.New("fulfillment claim lost")
	// ErrDeliveryInFlight means another worker is mailing the ticket right
	// now. It is retryable: the next attempt sees the finished delivery.
	ErrDeliveryInFlight = errors.New("ticket delivery in progress")
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     config.Config
	Tuning     *config.TuningHolder
	Locker     cache.Locker
	OrderRepo  orderdomain.Repository
	TicketRepo ticketdomain.Repository
	UserRepo   userdomain.Repository
	EmailLogs  emaillogdomain.Repository
	Renderer   *Renderer
	Mailer     *Mailer
	Queue      queue.Enqueuer
	Metrics    *metrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	appName    string
	tuning     *config.TuningHolder
	locker     cache.Locker
	orderRepo  orderdomain.Repository
	ticketRepo ticketdomain.Repository
	userRepo   userdomain.Repository
	emailLogs  emaillogdomain.Repository
	renderer   *Renderer
	mailer     *Mailer
	queue      queue.Enqueuer
	metrics    *metrics.Metrics
}

func New(p Params) domain.Service {
	appName := strings.TrimSpace(p.Config.AppName)
	if appName == "" {
		appName = "ticketing"
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("fulfillment.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		appName:    appName,
		tuning:     p.Tuning,
		locker:     p.Locker,
		orderRepo:  p.OrderRepo,
		ticketRepo: p.TicketRepo,
		userRepo:   p.UserRepo,
		emailLogs:  p.EmailLogs,
		renderer:   p.Renderer,
		mailer:     p.Mailer,
		queue:      p.Queue,
		metrics:    p.Metrics,
	}
}

func (s *Service) HandleOrderPaid(ctx context.Context, orderID snowflake.ID) error {
	log := s.log.With(zap.String("order_id", orderID.String()))

	order, err := s.orderRepo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		log.Warn("fulfillment skipped, order not found")
		return nil
	}
	if reason := ineligible(order); reason != "" {
		log.Info("fulfillment skipped", zap.String("reason", reason))
		return nil
	}

	items, err := s.orderRepo.ListItems(ctx, s.db, []snowflake.ID{orderID})
	if err != nil {
		return err
	}
	if len(items) == 0 {
		log.Warn("fulfillment skipped", zap.String("reason", "no_items"))
		return nil
	}

	issued, created := 0, 0
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		counts, err := s.ticketRepo.CountByOrderItem(ctx, tx, orderID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		for _, item := range items {
			have := counts[item.ID]
			if have > item.Quantity {
				return fmt.Errorf("order item %s has %d tickets for quantity %d", item.ID, have, item.Quantity)
			}
			for i := have; i < item.Quantity; i++ {
				ticket := ticketdomain.Ticket{
					ID:          s.genID.Generate(),
					OrderID:     orderID,
					OrderItemID: item.ID,
					QRCode:      uuid.NewString(),
					CreatedAt:   now,
				}
				if err := s.ticketRepo.Insert(ctx, tx, &ticket); err != nil {
					return err
				}
				created++
			}
			issued += item.Quantity
		}

		won, err := s.orderRepo.ClaimFulfillment(ctx, tx, orderID, now)
		if err != nil {
			return err
		}
		if !won {
			return errClaimLost
		}
		return nil
	})
	if errors.Is(err, errClaimLost) {
		log.Info("fulfillment skipped", zap.String("reason", "already_fulfilled"))
		return nil
	}
	if err != nil {
		log.Error("ticket generation failed", zap.Error(err))
		return apperror.TicketGeneration(err)
	}

	s.metrics.RecordTicketsGenerated(ctx, issued)
	log.Info("tickets generated", zap.Int("tickets", issued), zap.Int("created", created))

	if err := s.queue.Enqueue(ctx, queue.TopicOrderTicketsGenerated, queue.OrderTicketsGenerated{OrderID: orderID}); err != nil {
		log.Warn("failed to enqueue ticket delivery", zap.Error(err))
	}
	return nil
}

func ineligible(order *orderdomain.Order) string {
	switch {
	case order.Status != orderdomain.StatusPaid:
		return "not_paid"
	case order.State != orderdomain.StateActive:
		return "not_active"
	case order.FulfilledAt != nil:
		return "already_fulfilled"
	default:
		return ""
	}
}

func (s *Service) DeliverOrderTickets(ctx context.Context, orderID snowflake.ID) (domain.Summary, error) {
	var summary domain.Summary
	log := s.log.With(zap.String("order_id", orderID.String()))

	order, err := s.orderRepo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return summary, err
	}
	if order == nil {
		return summary, domain.ErrOrderNotFound
	}
	if order.Status != orderdomain.StatusPaid {
		log.Info("ticket delivery skipped", zap.String("reason", "not_paid"))
		return summary, nil
	}

	chunk := s.tuning.Get().Fulfillment.ChunkSize
	var after snowflake.ID
	for {
		tickets, err := s.ticketRepo.ListUndelivered(ctx, s.db, orderID, after, chunk)
		if err != nil {
			return summary, err
		}
		for _, ticket := range tickets {
			skipped, err := s.claimAndSend(ctx, ticket.ID, s.sendWithRetry)
			switch {
			case errors.Is(err, ErrDeliveryInFlight):
				log.Info("ticket delivery skipped",
					zap.String("ticket_id", ticket.ID.String()),
					zap.String("reason", "in_flight"),
				)
			case err != nil:
				summary.Failed++
				log.Warn("ticket delivery failed",
					zap.String("ticket_id", ticket.ID.String()),
					zap.Error(err),
				)
			case skipped == "":
				summary.Sent++
			}
		}
		if len(tickets) < chunk {
			break
		}
		after = tickets[len(tickets)-1].ID
	}

	log.Info("ticket delivery finished", zap.Int("sent", summary.Sent), zap.Int("failed", summary.Failed))
	return summary, nil
}

// claimAndSend mails one ticket while holding its delivery lock. The
// ticket is re-read under the lock so a delivery finished by another
// worker is seen. skipped names why nothing was sent.
func (s *Service) claimAndSend(
	ctx context.Context,
	ticketID snowflake.ID,
	send func(context.Context, *ticketdomain.Detail) error,
) (skipped string, err error) {
	key := "fulfillment:ticket:" + ticketID.String()
	token, ok, err := s.locker.TryLock(ctx, key, s.tuning.Get().Fulfillment.DeliveryLockTTL)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrDeliveryInFlight
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			s.log.Warn("ticket delivery lock release failed", zap.String("ticket_id", ticketID.String()), zap.Error(err))
		}
	}()

	ticket, err := s.ticketRepo.FindDetail(ctx, s.db, ticketID)
	if err != nil {
		return "", err
	}
	if ticket == nil {
		return "", domain.ErrTicketNotFound
	}
	if reason := undeliverable(ticket); reason != "" {
		return reason, nil
	}
	// emailed_at may be missing after a bookkeeping failure; the log row
	// of the successful send still counts.
	mailed, err := s.confirmationLogged(ctx, ticketID)
	if err != nil {
		return "", err
	}
	if mailed {
		s.markEmailed(ctx, ticket)
		return "already_emailed", nil
	}

	if err := send(ctx, ticket); err != nil {
		return "", err
	}
	s.markEmailed(ctx, ticket)
	return "", nil
}

func undeliverable(ticket *ticketdomain.Detail) string {
	switch {
	case ticket.OrderStatus != string(orderdomain.StatusPaid):
		return "not_paid"
	case ticket.EmailedAt != nil:
		return "already_emailed"
	case strings.TrimSpace(ticket.HolderEmail) == "":
		return "no_holder_email"
	default:
		return ""
	}
}

func (s *Service) confirmationLogged(ctx context.Context, ticketID snowflake.ID) (bool, error) {
	entries, err := s.emailLogs.ListByTicket(ctx, s.db, ticketID)
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		if entry.Success && entry.EmailType == emaillogdomain.TypeTicketConfirmation {
			return true, nil
		}
	}
	return false, nil
}

// sendWithRetry retries transient render or send failures with the
// configured exponential backoff. Each send attempt leaves its own log row.
func (s *Service) sendWithRetry(ctx context.Context, ticket *ticketdomain.Detail) error {
	policy := s.tuning.Get().Retry
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = policy.InitialInterval
	eb.MaxInterval = policy.MaxInterval
	eb.Multiplier = policy.Multiplier
	eb.RandomizationFactor = policy.RandomizationFactor

	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := s.send(ctx, ticket)
		if err != nil && apperror.IsPermanent(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(eb), backoff.WithMaxTries(uint(attempts)))
	return err
}

func (s *Service) send(ctx context.Context, ticket *ticketdomain.Detail) error {
	pdfBytes, err := s.renderer.Render(ctx, ticket)
	if err != nil {
		return err
	}

	view := ticketView{
		AppName:    s.appName,
		EventName:  ticket.EventName,
		ClassName:  ticket.ClassName,
		HolderName: holderName(ticket),
		StartsAt:   ticket.EventStartAt.UTC().Format("Mon, 02 Jan 2006 15:04 MST"),
		Location:   location(ticket),
		QRCode:     ticket.QRCode,
	}
	html, text, err := renderBodies("ticket", view)
	if err != nil {
		return apperror.Permanent(fmt.Errorf("render ticket email: %w", err))
	}

	ticketID := ticket.ID
	orderID := ticket.OrderID
	return s.mailer.Send(ctx, emaillogdomain.EmailLog{
		EmailType: emaillogdomain.TypeTicketConfirmation,
		UserID:    ticket.OrderUserID,
		OrderID:   &orderID,
		TicketID:  &ticketID,
	}, email.Message{
		To:       ticket.HolderEmail,
		Subject:  fmt.Sprintf("Your ticket for %s", ticket.EventName),
		HTMLBody: html,
		TextBody: text,
		Attachments: []email.Attachment{{
			Filename: fmt.Sprintf("ticket-%s.pdf", ticket.QRCode),
			Content:  pdfBytes,
			MimeType: "application/pdf",
		}},
	})
}

// markEmailed runs after the holder was mailed. Its failure is only
// logged: returning it would get the task retried and the email resent.
func (s *Service) markEmailed(ctx context.Context, ticket *ticketdomain.Detail) {
	if err := s.ticketRepo.MarkEmailed(ctx, s.db, ticket.ID, s.clock.Now()); err != nil {
		s.log.Error("failed to mark ticket emailed",
			zap.String("ticket_id", ticket.ID.String()),
			zap.Error(err),
		)
	}
}

func holderName(ticket *ticketdomain.Detail) string {
	if name := strings.TrimSpace(ticket.HolderName); name != "" {
		return name
	}
	return ticket.HolderEmail
}

func (s *Service) AssignHolder(ctx context.Context, req domain.AssignHolderRequest) (*ticketdomain.Ticket, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidHolderName
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil || addr.Name != "" {
		return nil, domain.ErrInvalidHolderEmail
	}
	holderEmail := strings.ToLower(addr.Address)

	detail, err := s.ticketRepo.FindDetail(ctx, s.db, req.TicketID)
	if err != nil {
		return nil, err
	}
	if detail == nil || detail.OrderUserID == nil || *detail.OrderUserID != req.UserID {
		return nil, domain.ErrTicketNotFound
	}
	if detail.HasHolder() {
		return nil, domain.ErrAlreadyAssigned
	}

	ok, err := s.ticketRepo.AssignHolder(ctx, s.db, req.TicketID, name, holderEmail)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrAlreadyAssigned
	}

	if err := s.queue.Enqueue(ctx, queue.TopicTicketAssigned, queue.TicketAssigned{TicketID: req.TicketID}); err != nil {
		s.log.Warn("failed to enqueue ticket email",
			zap.String("ticket_id", req.TicketID.String()),
			zap.Error(err),
		)
	}

	ticket := detail.Ticket
	ticket.HolderName = name
	ticket.HolderEmail = holderEmail
	return &ticket, nil
}

func (s *Service) DeliverTicket(ctx context.Context, ticketID snowflake.ID) error {
	log := s.log.With(zap.String("ticket_id", ticketID.String()))

	skipped, err := s.claimAndSend(ctx, ticketID, s.send)
	if err != nil {
		return err
	}
	switch skipped {
	case "":
	case "not_paid":
		log.Info("ticket email deferred until payment")
	default:
		log.Info("ticket email skipped", zap.String("reason", skipped))
	}
	return nil
}

func (s *Service) SendWelcome(ctx context.Context, userID snowflake.ID) error {
	user, err := s.userRepo.FindByID(ctx, s.db, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return domain.ErrRecipientNotFound
	}

	previous, err := s.emailLogs.ListByUser(ctx, s.db, userID, emaillogdomain.TypeWelcome)
	if err != nil {
		return err
	}
	for _, entry := range previous {
		if entry.Success {
			return nil
		}
	}

	html, text, err := renderBodies("welcome", welcomeView{
		AppName: s.appName,
		Name:    user.FullName,
		Email:   user.Email,
	})
	if err != nil {
		return apperror.Permanent(fmt.Errorf("render welcome email: %w", err))
	}

	id := user.ID
	return s.mailer.Send(ctx, emaillogdomain.EmailLog{
		EmailType: emaillogdomain.TypeWelcome,
		UserID:    &id,
	}, email.Message{
		To:       user.Email,
		Subject:  fmt.Sprintf("Welcome to %s", s.appName),
		HTMLBody: html,
		TextBody: text,
	})
}
