package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, user *User) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	FindByEmail(ctx context.Context, db *gorm.DB, email string) (*User, error)
	// SetPaymentCustomerID stores the remote customer id only if none is
	// set yet and reports whether this call stored it.
	SetPaymentCustomerID(ctx context.Context, db *gorm.DB, id snowflake.ID, customerID string, at time.Time) (bool, error)
}
