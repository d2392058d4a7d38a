package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
)

// User is identified by email. PaymentCustomerID stays nil until the first
// charge creates the remote customer.
type User struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	FullName          string       `gorm:"not null" json:"full_name"`
	Email             string       `gorm:"not null;uniqueIndex" json:"email"`
	TaxID             string       `json:"tax_id,omitempty"`
	Phone             string       `json:"phone,omitempty"`
	PasswordHash      string       `gorm:"not null" json:"-"`
	Role              Role         `gorm:"not null" json:"role"`
	PaymentCustomerID *string      `gorm:"uniqueIndex" json:"-"`
	CreatedAt         time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time    `gorm:"not null" json:"updated_at"`
}
