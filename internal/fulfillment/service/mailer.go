package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ticketing/internal/clock"
	emaillogdomain "github.com/smallbiznis/ticketing/internal/emaillog/domain"
	"github.com/smallbiznis/ticketing/internal/observability/metrics"
	"github.com/smallbiznis/ticketing/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type MailerParams struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Provider email.Provider
	Logs     emaillogdomain.Repository
	Metrics  *metrics.Metrics `optional:"true"`
}

// Mailer sends one message and records exactly one email log row for the
// attempt, whatever its outcome.
type Mailer struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	provider email.Provider
	logs     emaillogdomain.Repository
	metrics  *metrics.Metrics
}

func NewMailer(p MailerParams) *Mailer {
	return &Mailer{
		db:       p.DB,
		log:      p.Log.Named("fulfillment.mailer"),
		genID:    p.GenID,
		clock:    p.Clock,
		provider: p.Provider,
		logs:     p.Logs,
		metrics:  p.Metrics,
	}
}

// Send returns the provider's error. Failing to write the log row is
// reported but does not change the outcome of the send.
func (m *Mailer) Send(ctx context.Context, entry emaillogdomain.EmailLog, msg email.Message) error {
	sendErr := m.provider.Send(ctx, msg)

	entry.ID = m.genID.Generate()
	entry.Recipient = msg.To
	entry.Subject = msg.Subject
	entry.Success = sendErr == nil
	entry.SentAt = m.clock.Now()
	if sendErr != nil {
		entry.ErrorMessage = sendErr.Error()
	}

	// detached so a cancelled task still leaves its audit row
	if err := m.logs.Insert(context.WithoutCancel(ctx), m.db, &entry); err != nil {
		m.log.Error("failed to record email attempt",
			zap.String("email_type", string(entry.EmailType)),
			zap.Bool("success", entry.Success),
			zap.Error(err),
		)
	}
	m.metrics.RecordEmail(ctx, string(entry.EmailType), entry.Success)

	if sendErr != nil {
		m.log.Warn("email send failed", zap.String("email_type", string(entry.EmailType)), zap.Error(sendErr))
	}
	return sendErr
}
