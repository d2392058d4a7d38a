package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ticketing/pkg/db/pagination"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	InsertItem(ctx context.Context, db *gorm.DB, item *OrderItem) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindByPaymentID(ctx context.Context, db *gorm.DB, paymentID string) (*Order, error)
	FindByRedemptionToken(ctx context.Context, db *gorm.DB, token string) (*Order, error)
	// ListByUser returns up to limit orders, newest first, after cursor.
	ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, cursor *pagination.Cursor, limit int) ([]*Order, error)
	ListItems(ctx context.Context, db *gorm.DB, orderIDs []snowflake.ID) ([]*OrderItem, error)
	// SetPayment attaches the provider charge to an order that has none
	// and reports whether it did. A charge is never replaced, since
	// webhooks find the order by its payment id.
	SetPayment(ctx context.Context, db *gorm.DB, id snowflake.ID, provider, billingType, paymentID string, data datatypes.JSON, at time.Time) (bool, error)
	// MarkPaid sets status paid and keeps the first paid_at. It reports
	// whether the order was not paid before.
	MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
	// ClaimFulfillment stamps fulfilled_at on a paid, active, unfulfilled
	// order and reports whether this call won the claim.
	ClaimFulfillment(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
	ExpireOverdue(ctx context.Context, db *gorm.DB, now time.Time, limit int) (int64, error)
	ListUnfulfilled(ctx context.Context, db *gorm.DB, paidBefore time.Time, limit int) ([]snowflake.ID, error)
}
