package payment

import (
	"github.com/smallbiznis/ticketing/internal/config"
	"github.com/smallbiznis/ticketing/internal/payment/adapters"
	"github.com/smallbiznis/ticketing/internal/payment/adapters/asaas"
	"github.com/smallbiznis/ticketing/internal/payment/domain"
	"github.com/smallbiznis/ticketing/internal/payment/repository"
	paymentservice "github.com/smallbiznis/ticketing/internal/payment/service"
	"github.com/smallbiznis/ticketing/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			asaas.NewFactory(),
		)
	}),
	fx.Provide(NewAdapter),
	fx.Provide(paymentservice.New),
	fx.Provide(webhook.NewService),
)

// NewAdapter builds the adapter of the configured provider.
func NewAdapter(cfg config.Config, registry *adapters.Registry) (domain.PaymentAdapter, error) {
	return registry.NewAdapter(cfg.Payment.Provider, domain.AdapterConfig{
		BaseURL:       cfg.Payment.BaseURL,
		APIKey:        cfg.Payment.APIKey,
		WebhookSecret: cfg.Payment.WebhookSecret,
		Timeout:       cfg.Payment.Timeout,
	})
}
