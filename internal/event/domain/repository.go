package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *Event) error
	InsertTicketClass(ctx context.Context, db *gorm.DB, class *TicketClass) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Event, error)
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Event, error)
	SlugExists(ctx context.Context, db *gorm.DB, slug string) (bool, error)
	ListUpcoming(ctx context.Context, db *gorm.DB, now time.Time) ([]*Event, error)
	ListTicketClasses(ctx context.Context, db *gorm.DB, eventIDs []snowflake.ID) ([]*TicketClass, error)
	FindTicketClasses(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]*TicketClass, error)
}
