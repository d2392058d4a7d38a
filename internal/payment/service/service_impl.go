package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ticketing/internal/apperror"
	"github.com/smallbiznis/ticketing/internal/clock"
	paymentdomain "github.com/smallbiznis/ticketing/internal/payment/domain"
	userdomain "github.com/smallbiznis/ticketing/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Adapter  paymentdomain.PaymentAdapter
	UserRepo userdomain.Repository
}

// Service is the gateway boundary in front of the configured provider.
type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	adapter  paymentdomain.PaymentAdapter
	userRepo userdomain.Repository
}

func New(p Params) paymentdomain.Gateway {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payment.gateway"),
		clock:    p.Clock,
		adapter:  p.Adapter,
		userRepo: p.UserRepo,
	}
}

// EnsureCustomer returns the stored remote customer id, creating it on the
// provider first when the user has none. The id is persisted only after the
// provider accepted the customer.
func (s *Service) EnsureCustomer(ctx context.Context, userID snowflake.ID) (string, error) {
	user, err := s.userRepo.FindByID(ctx, s.db, userID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", paymentdomain.ErrUserNotFound
	}
	if existing := storedCustomerID(user); existing != "" {
		return existing, nil
	}

	customerID, err := s.adapter.CreateCustomer(ctx, paymentdomain.Customer{
		UserID: user.ID,
		Name:   user.FullName,
		Email:  user.Email,
		TaxID:  user.TaxID,
		Phone:  user.Phone,
	})
	if err != nil {
		return "", asGatewayError(err)
	}

	stored, err := s.userRepo.SetPaymentCustomerID(ctx, s.db, user.ID, customerID, s.clock.Now())
	if err != nil {
		return "", err
	}
	if !stored {
		current, err := s.userRepo.FindByID(ctx, s.db, user.ID)
		if err != nil {
			return "", err
		}
		if existing := storedCustomerID(current); existing != "" {
			s.log.Warn("payment customer created concurrently, keeping stored id",
				zap.String("user_id", user.ID.String()),
			)
			return existing, nil
		}
		return "", apperror.PaymentGateway(errors.New("payment customer id was not stored"))
	}

	s.log.Info("payment customer created", zap.String("user_id", user.ID.String()))
	return customerID, nil
}

func (s *Service) CreateCharge(ctx context.Context, req paymentdomain.ChargeRequest) (paymentdomain.ChargeResult, error) {
	if strings.TrimSpace(req.CustomerID) == "" {
		return paymentdomain.ChargeResult{}, paymentdomain.ErrCustomerRequired
	}
	result, err := s.adapter.CreateCharge(ctx, req)
	if err != nil {
		return paymentdomain.ChargeResult{}, asGatewayError(err)
	}
	if result.ID == "" {
		return paymentdomain.ChargeResult{}, apperror.PaymentGateway(errors.New("charge response carried no id"))
	}

	s.log.Info("payment charge created",
		zap.String("order_id", req.OrderID.String()),
		zap.String("billing_type", req.BillingType),
	)
	return result, nil
}

func storedCustomerID(user *userdomain.User) string {
	if user == nil || user.PaymentCustomerID == nil {
		return ""
	}
	return strings.TrimSpace(*user.PaymentCustomerID)
}

// asGatewayError keeps classified errors and folds anything else into a
// payment gateway error.
func asGatewayError(err error) error {
	if _, ok := apperror.As(err); ok {
		return err
	}
	return apperror.PaymentGateway(err)
}
