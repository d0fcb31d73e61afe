package payment

import (
	"github.com/smallbiznis/virtuepath/internal/config"
	"github.com/smallbiznis/virtuepath/internal/payment/adapters/stripe"
	"github.com/smallbiznis/virtuepath/internal/payment/domain"
	"github.com/smallbiznis/virtuepath/internal/payment/repository"
	paymentservice "github.com/smallbiznis/virtuepath/internal/payment/service"
	"go.uber.org/fx"
)

func newStripe(cfg config.Config) *stripe.Client {
	return stripe.New(stripe.Config{
		SecretKey:     cfg.Payments.StripeSecretKey,
		WebhookSecret: cfg.Payments.StripeWebhookSecret,
		AccountID:     cfg.Payments.StripeAccountID,
	})
}

var Module = fx.Module("payment.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(newStripe),
	fx.Provide(func(c *stripe.Client) domain.Gateway { return c }),
	fx.Provide(func(c *stripe.Client) domain.WebhookParser { return c }),
	fx.Provide(paymentservice.NewService),
)
