// Package providers wires outbound delivery providers.
package providers

import (
	"github.com/harvestbox/commerce/internal/config"
	"github.com/harvestbox/commerce/internal/providers/email"
	"github.com/harvestbox/commerce/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	fx.Provide(NewEmailProvider),
	fx.Provide(pdf.NewReceiptRenderer),
)

// NewEmailProvider returns the SMTP provider when configured, the no-op
// provider otherwise.
func NewEmailProvider(cfg config.Config) email.Provider {
	if cfg.SMTPHost == "" {
		return &email.NoOpProvider{}
	}
	return email.NewSMTP(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
}
