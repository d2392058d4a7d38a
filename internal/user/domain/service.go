package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ticketing/internal/apperror"
)

type RegisterRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	TaxID    string `json:"tax_id"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (User, error)
	Get(ctx context.Context, id snowflake.ID) (User, error)
}

var (
	ErrInvalidName     = apperror.Validation("invalid_name", "full_name", "full name is required")
	ErrInvalidEmail    = apperror.Validation("invalid_email", "email", "a valid email is required")
	ErrInvalidPassword = apperror.Validation("invalid_password", "password", "password must have at least 8 characters")
	ErrInvalidTaxID    = apperror.Validation("invalid_tax_id", "tax_id", "tax id must have 11 or 14 digits")
	ErrEmailTaken      = apperror.Conflict("email_taken", "a user with this email already exists")
	ErrNotFound        = apperror.NotFound("user_not_found", "user not found")
)
