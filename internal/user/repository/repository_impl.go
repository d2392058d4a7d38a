package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ticketing/internal/user/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const userColumns = `id, full_name, email, tax_id, phone, password_hash, role, payment_customer_id, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, user *domain.User) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.FullName,
		user.Email,
		user.TaxID,
		user.Phone,
		user.PasswordHash,
		user.Role,
		user.PaymentCustomerID,
		user.CreatedAt,
		user.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.User, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	return r.findOne(ctx, db, `email = ?`, email)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, arg any) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT `+userColumns+` FROM users WHERE `+where,
		arg,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) SetPaymentCustomerID(ctx context.Context, db *gorm.DB, id snowflake.ID, customerID string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE users SET payment_customer_id = ?, updated_at = ?
		 WHERE id = ? AND payment_customer_id IS NULL`,
		customerID,
		at,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
