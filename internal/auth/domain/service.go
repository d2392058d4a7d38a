package domain

import "context"

type Service interface {
	Login(ctx context.Context, email, password string) (Token, error)
	Authenticate(ctx context.Context, rawToken string) (Principal, error)
}
