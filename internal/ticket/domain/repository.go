package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, ticket *Ticket) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Ticket, error)
	FindByQRCode(ctx context.Context, db *gorm.DB, code string) (*Ticket, error)
	ListByOrders(ctx context.Context, db *gorm.DB, orderIDs []snowflake.ID) ([]*Ticket, error)
	CountByOrderItem(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (map[snowflake.ID]int, error)
	// AssignHolder sets the holder only when the ticket has none and
	// reports whether a row changed.
	AssignHolder(ctx context.Context, db *gorm.DB, id snowflake.ID, name, email string) (bool, error)
	MarkEmailed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	// MarkRedeemed flips is_redeemed once; later calls change nothing.
	MarkRedeemed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time, by *snowflake.ID) (bool, error)
	FindDetail(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Detail, error)
	// ListUndelivered pages through tickets of an order that have a holder
	// email but were never mailed, in id order after afterID.
	ListUndelivered(ctx context.Context, db *gorm.DB, orderID, afterID snowflake.ID, limit int) ([]*Detail, error)
}
