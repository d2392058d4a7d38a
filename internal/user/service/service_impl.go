package service

import (
	"context"
	"net/mail"
	"strings"
	"unicode"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ticketing/internal/auth/password"
	"github.com/smallbiznis/ticketing/internal/clock"
	"github.com/smallbiznis/ticketing/internal/queue"
	"github.com/smallbiznis/ticketing/internal/user/domain"
	"github.com/smallbiznis/ticketing/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const minPasswordLength = 8

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   domain.Repository
	Hasher *password.Hasher
	Queue  queue.Enqueuer
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	repo   domain.Repository
	hasher *password.Hasher
	queue  queue.Enqueuer
}

func New(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("user.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		repo:   p.Repo,
		hasher: p.Hasher,
		queue:  p.Queue,
	}
}

func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (domain.User, error) {
	name := strings.TrimSpace(req.FullName)
	if name == "" {
		return domain.User{}, domain.ErrInvalidName
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return domain.User{}, domain.ErrInvalidEmail
	}
	if len(req.Password) < minPasswordLength {
		return domain.User{}, domain.ErrInvalidPassword
	}
	taxID, ok := normalizeTaxID(req.TaxID)
	if !ok {
		return domain.User{}, domain.ErrInvalidTaxID
	}

	existing, err := s.repo.FindByEmail(ctx, s.db, email)
	if err != nil {
		return domain.User{}, err
	}
	if existing != nil {
		return domain.User{}, domain.ErrEmailTaken
	}

	hashed, err := s.hasher.Hash(req.Password)
	if err != nil {
		return domain.User{}, err
	}

	now := s.clock.Now()
	user := domain.User{
		ID:           s.genID.Generate(),
		FullName:     name,
		Email:        email,
		TaxID:        taxID,
		Phone:        strings.TrimSpace(req.Phone),
		PasswordHash: hashed,
		Role:         domain.RoleCustomer,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Insert(ctx, s.db, &user); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.User{}, domain.ErrEmailTaken
		}
		return domain.User{}, err
	}

	// the welcome email is best effort; registration already committed
	if err := s.queue.Enqueue(ctx, queue.TopicUserRegistered, queue.UserRegistered{UserID: user.ID}); err != nil {
		s.log.Warn("failed to enqueue welcome email", zap.String("user_id", user.ID.String()), zap.Error(err))
	}

	s.log.Info("user registered", zap.String("user_id", user.ID.String()))
	return user, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.User, error) {
	if id == 0 {
		return domain.User{}, domain.ErrNotFound
	}
	user, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.User{}, err
	}
	if user == nil {
		return domain.User{}, domain.ErrNotFound
	}
	return *user, nil
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(addr.Address), nil
}

// normalizeTaxID keeps digits only: 11 for a CPF, 14 for a CNPJ.
func normalizeTaxID(raw string) (string, bool) {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, raw)
	switch len(digits) {
	case 11, 14:
		return digits, true
	default:
		return "", false
	}
}
