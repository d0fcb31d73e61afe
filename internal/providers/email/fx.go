package email

import (
	"github.com/smallbiznis/virtuepath/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	if cfg.Email.Provider != "smtp" || cfg.Email.SMTP.Host == "" {
		log.Named("email").Info("smtp not configured, emails are discarded")
		return &NoOpProvider{}
	}
	return NewSMTP(Config{
		Host:     cfg.Email.SMTP.Host,
		Port:     cfg.Email.SMTP.Port,
		Username: cfg.Email.SMTP.Username,
		Password: cfg.Email.SMTP.Password,
		From:     cfg.Email.SMTP.FromEmail,
		FromName: cfg.Email.SMTP.FromName,
	})
}
