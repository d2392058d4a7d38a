package domain

import "github.com/smallbiznis/ticketing/internal/apperror"

var (
	ErrInvalidCredentials = &apperror.Error{Kind: apperror.KindUnauthorized, Code: "invalid_credentials", Message: "invalid email or password"}
	ErrInvalidToken       = &apperror.Error{Kind: apperror.KindUnauthorized, Code: "invalid_token", Message: "invalid or expired token"}
)
