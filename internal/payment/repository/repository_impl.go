package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ticketing/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertWebhook(ctx context.Context, db *gorm.DB, record *domain.WebhookRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_webhooks (
			id, provider, webhook_id, event_type, payload, processed, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.Provider,
		record.WebhookID,
		record.EventType,
		record.Payload,
		record.Processed,
		record.CreatedAt,
	).Error
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_webhooks
		 SET processed = TRUE
		 WHERE id = ?`,
		id,
	).Error
}

func (r *repo) ListWebhooks(ctx context.Context, db *gorm.DB, provider string) ([]*domain.WebhookRecord, error) {
	var items []*domain.WebhookRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, webhook_id, event_type, payload, processed, created_at
		 FROM payment_webhooks
		 WHERE provider = ?
		 ORDER BY created_at ASC, id ASC`,
		provider,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
