package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ticketing/internal/order/domain"
	"github.com/smallbiznis/ticketing/pkg/db/pagination"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const orderColumns = `id, user_id, status, state, redemption_token, total_amount, billing_type,
	payment_provider, payment_id, payment_data, expires_at, paid_at, fulfilled_at,
	created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.UserID,
		order.Status,
		order.State,
		order.RedemptionToken,
		order.TotalAmount,
		order.BillingType,
		order.PaymentProvider,
		order.PaymentID,
		nullableJSON(order.PaymentData),
		order.ExpiresAt,
		order.PaidAt,
		order.FulfilledAt,
		order.CreatedAt,
		order.UpdatedAt,
	).Error
}

func (r *repo) InsertItem(ctx context.Context, db *gorm.DB, item *domain.OrderItem) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO order_items (id, order_id, event_id, ticket_class_id, quantity, unit_price, subtotal)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.OrderID,
		item.EventID,
		item.TicketClassID,
		item.Quantity,
		item.UnitPrice,
		item.Subtotal,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) FindByPaymentID(ctx context.Context, db *gorm.DB, paymentID string) (*domain.Order, error) {
	return r.findOne(ctx, db, `payment_id = ?`, paymentID)
}

func (r *repo) FindByRedemptionToken(ctx context.Context, db *gorm.DB, token string) (*domain.Order, error) {
	return r.findOne(ctx, db, `redemption_token = ?`, token)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.Order, error) {
	var order domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders WHERE `+where+` LIMIT 1`,
		arg,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, cursor *pagination.Cursor, limit int) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = ?`
	args := []any{userID}
	if cursor != nil {
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, pagination.ErrInvalidPageToken
		}
		query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		args = append(args, createdAt.UTC(), createdAt.UTC(), cursor.ID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	var items []*domain.Order
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, orderIDs []snowflake.ID) ([]*domain.OrderItem, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	var items []*domain.OrderItem
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, event_id, ticket_class_id, quantity, unit_price, subtotal
		 FROM order_items
		 WHERE order_id IN ?
		 ORDER BY order_id ASC, id ASC`,
		orderIDs,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) SetPayment(ctx context.Context, db *gorm.DB, id snowflake.ID, provider, billingType, paymentID string, data datatypes.JSON, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET payment_provider = ?, billing_type = ?, payment_id = ?, payment_data = ?, updated_at = ?
		 WHERE id = ? AND payment_id IS NULL`,
		provider,
		billingType,
		paymentID,
		nullableJSON(data),
		at,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = 'paid', paid_at = COALESCE(paid_at, ?), updated_at = ?
		 WHERE id = ? AND status <> 'paid'`,
		at,
		at,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ClaimFulfillment(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET fulfilled_at = ?, updated_at = ?
		 WHERE id = ? AND status = 'paid' AND state = 'active' AND fulfilled_at IS NULL`,
		at,
		at,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ExpireOverdue(ctx context.Context, db *gorm.DB, now time.Time, limit int) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET state = 'expired', status = 'failed', updated_at = ?
		 WHERE id IN (
			SELECT id FROM orders
			WHERE status = 'pending' AND state = 'active' AND expires_at < ?
			ORDER BY expires_at ASC
			LIMIT ?
		 )`,
		now,
		now,
		limit,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) ListUnfulfilled(ctx context.Context, db *gorm.DB, paidBefore time.Time, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM orders
		 WHERE status = 'paid' AND state = 'active' AND fulfilled_at IS NULL AND paid_at < ?
		 ORDER BY paid_at ASC
		 LIMIT ?`,
		paidBefore,
		limit,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func nullableJSON(data datatypes.JSON) any {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}
