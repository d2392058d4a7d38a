package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/ticketing/internal/auth/domain"
	"github.com/smallbiznis/ticketing/internal/auth/password"
	"github.com/smallbiznis/ticketing/internal/clock"
	"github.com/smallbiznis/ticketing/internal/config"
	userdomain "github.com/smallbiznis/ticketing/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// dummyHash is verified when the email is unknown so both paths cost the same.
const dummyHash = "$argon2id$v=19$m=65536,t=1,p=4$c29tZXNhbHRzb21lc2FsdA$3J3bV2pZ0m9c1yH1mQ0oQm0G0vO7wq2o1xk3m1yH1mQ"

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Config   config.Config
	Clock    clock.Clock
	Hasher   *password.Hasher
	UserRepo userdomain.Repository
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	hasher   *password.Hasher
	userRepo userdomain.Repository
	secret   []byte
	issuer   string
	tokenTTL time.Duration
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func New(p Params) (domain.Service, error) {
	secret := strings.TrimSpace(p.Config.Auth.JWTSecret)
	if secret == "" {
		if p.Config.IsProduction() {
			return nil, errors.New("AUTH_JWT_SECRET is required in production")
		}
		p.Log.Warn("AUTH_JWT_SECRET not set, using an insecure development secret")
		secret = "development-only-secret"
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("auth.service"),
		clock:    p.Clock,
		hasher:   p.Hasher,
		userRepo: p.UserRepo,
		secret:   []byte(secret),
		issuer:   p.Config.Auth.Issuer,
		tokenTTL: p.Config.Auth.TokenTTL,
	}, nil
}

func (s *Service) Login(ctx context.Context, email, pass string) (domain.Token, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil || pass == "" {
		return domain.Token{}, domain.ErrInvalidCredentials
	}

	user, err := s.userRepo.FindByEmail(ctx, s.db, strings.ToLower(addr.Address))
	if err != nil {
		return domain.Token{}, err
	}
	if user == nil {
		_, _ = s.hasher.Verify(pass, dummyHash)
		return domain.Token{}, domain.ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(pass, user.PasswordHash)
	if err != nil {
		s.log.Error("stored password hash is unreadable", zap.String("user_id", user.ID.String()), zap.Error(err))
		return domain.Token{}, domain.ErrInvalidCredentials
	}
	if !ok {
		return domain.Token{}, domain.ErrInvalidCredentials
	}

	return s.issue(user.ID, string(user.Role))
}

func (s *Service) issue(userID snowflake.ID, role string) (domain.Token, error) {
	now := s.clock.Now()
	expiresAt := now.Add(s.tokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return domain.Token{}, err
	}
	return domain.Token{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
	}, nil
}

func (s *Service) Authenticate(_ context.Context, rawToken string) (domain.Principal, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return domain.Principal{}, domain.ErrInvalidToken
	}

	var parsed claims
	_, err := jwt.ParseWithClaims(rawToken, &parsed, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return domain.Principal{}, domain.ErrInvalidToken.WithCause(err)
	}

	userID, err := snowflake.ParseString(parsed.Subject)
	if err != nil || userID == 0 {
		return domain.Principal{}, domain.ErrInvalidToken
	}
	return domain.Principal{UserID: userID, Role: parsed.Role}, nil
}
