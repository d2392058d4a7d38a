package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertWebhook(ctx context.Context, db *gorm.DB, record *WebhookRecord) error
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	ListWebhooks(ctx context.Context, db *gorm.DB, provider string) ([]*WebhookRecord, error)
}
