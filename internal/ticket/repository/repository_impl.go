package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ticketing/internal/ticket/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const ticketColumns = `id, order_id, order_item_id, qr_code, holder_name, holder_email, is_redeemed, redeemed_at, redeemed_by, emailed_at, created_at`

const detailSelect = `SELECT t.id, t.order_id, t.order_item_id, t.qr_code, t.holder_name, t.holder_email,
		t.is_redeemed, t.redeemed_at, t.redeemed_by, t.emailed_at, t.created_at,
		o.status AS order_status, o.state AS order_state, o.user_id AS order_user_id,
		e.id AS event_id, e.name AS event_name, e.location AS event_location, e.city AS event_city,
		e.start_at AS event_start_at, e.end_at AS event_end_at,
		tc.name AS class_name, tc.type AS class_type
	FROM tickets t
	JOIN orders o ON o.id = t.order_id
	JOIN order_items oi ON oi.id = t.order_item_id
	JOIN events e ON e.id = oi.event_id
	JOIN ticket_classes tc ON tc.id = oi.ticket_class_id`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, ticket *domain.Ticket) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO tickets (`+ticketColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ticket.ID,
		ticket.OrderID,
		ticket.OrderItemID,
		ticket.QRCode,
		ticket.HolderName,
		ticket.HolderEmail,
		ticket.IsRedeemed,
		ticket.RedeemedAt,
		ticket.RedeemedBy,
		ticket.EmailedAt,
		ticket.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Ticket, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) FindByQRCode(ctx context.Context, db *gorm.DB, code string) (*domain.Ticket, error) {
	return r.findOne(ctx, db, `qr_code = ?`, code)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	err := db.WithContext(ctx).Raw(
		`SELECT `+ticketColumns+` FROM tickets WHERE `+where,
		arg,
	).Scan(&ticket).Error
	if err != nil {
		return nil, err
	}
	if ticket.ID == 0 {
		return nil, nil
	}
	return &ticket, nil
}

func (r *repo) ListByOrders(ctx context.Context, db *gorm.DB, orderIDs []snowflake.ID) ([]*domain.Ticket, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	var tickets []*domain.Ticket
	err := db.WithContext(ctx).Raw(
		`SELECT `+ticketColumns+` FROM tickets WHERE order_id IN ? ORDER BY id ASC`,
		orderIDs,
	).Scan(&tickets).Error
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (r *repo) CountByOrderItem(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (map[snowflake.ID]int, error) {
	var rows []struct {
		OrderItemID snowflake.ID `gorm:"column:order_item_id"`
		Total       int          `gorm:"column:total"`
	}
	err := db.WithContext(ctx).Raw(
		`SELECT order_item_id, COUNT(1) AS total FROM tickets
		 WHERE order_id = ? GROUP BY order_item_id`,
		orderID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[snowflake.ID]int, len(rows))
	for _, row := range rows {
		counts[row.OrderItemID] = row.Total
	}
	return counts, nil
}

func (r *repo) AssignHolder(ctx context.Context, db *gorm.DB, id snowflake.ID, name, email string) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE tickets SET holder_name = ?, holder_email = ?
		 WHERE id = ? AND holder_name = '' AND holder_email = ''`,
		name,
		email,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) MarkEmailed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE tickets SET emailed_at = ? WHERE id = ?`,
		at,
		id,
	).Error
}

func (r *repo) MarkRedeemed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time, by *snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE tickets SET is_redeemed = ?, redeemed_at = ?, redeemed_by = ?
		 WHERE id = ? AND is_redeemed = ?`,
		true,
		at,
		by,
		id,
		false,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) FindDetail(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Detail, error) {
	var detail domain.Detail
	err := db.WithContext(ctx).Raw(detailSelect+` WHERE t.id = ?`, id).Scan(&detail).Error
	if err != nil {
		return nil, err
	}
	if detail.ID == 0 {
		return nil, nil
	}
	return &detail, nil
}

func (r *repo) ListUndelivered(ctx context.Context, db *gorm.DB, orderID, afterID snowflake.ID, limit int) ([]*domain.Detail, error) {
	var details []*domain.Detail
	err := db.WithContext(ctx).Raw(
		detailSelect+`
		 WHERE t.order_id = ? AND t.id > ? AND t.holder_email <> '' AND t.emailed_at IS NULL
		 ORDER BY t.id ASC
		 LIMIT ?`,
		orderID,
		afterID,
		limit,
	).Scan(&details).Error
	if err != nil {
		return nil, err
	}
	return details, nil
}
