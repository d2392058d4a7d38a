package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ticketing/internal/emaillog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const logColumns = `id, email_type, recipient, subject, user_id, order_id, ticket_id, success, error_message, sent_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.EmailLog) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO email_logs (`+logColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.EmailType,
		entry.Recipient,
		entry.Subject,
		entry.UserID,
		entry.OrderID,
		entry.TicketID,
		entry.Success,
		entry.ErrorMessage,
		entry.SentAt,
	).Error
}

func (r *repo) ListByTicket(ctx context.Context, db *gorm.DB, ticketID snowflake.ID) ([]*domain.EmailLog, error) {
	var items []*domain.EmailLog
	err := db.WithContext(ctx).Raw(
		`SELECT `+logColumns+` FROM email_logs WHERE ticket_id = ? ORDER BY sent_at ASC, id ASC`,
		ticketID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, emailType domain.Type) ([]*domain.EmailLog, error) {
	var items []*domain.EmailLog
	err := db.WithContext(ctx).Raw(
		`SELECT `+logColumns+` FROM email_logs
		 WHERE user_id = ? AND email_type = ?
		 ORDER BY sent_at ASC, id ASC`,
		userID,
		emailType,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
