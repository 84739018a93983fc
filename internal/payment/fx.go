package payment

import (
	"github.com/bwmarrin/snowflake"
	"github.com/harvestbox/commerce/internal/config"
	"github.com/harvestbox/commerce/internal/payment/adapters"
	"github.com/harvestbox/commerce/internal/payment/adapters/sandbox"
	"github.com/harvestbox/commerce/internal/payment/adapters/stripe"
	paymentdomain "github.com/harvestbox/commerce/internal/payment/domain"
	"github.com/harvestbox/commerce/internal/payment/repository"
	"github.com/harvestbox/commerce/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment",
	fx.Provide(repository.Provide),
	fx.Provide(NewRegistry),
	fx.Provide(service.NewService),
)

// NewRegistry wires every configured gateway. The sandbox gateway is always
// registered so development environments work without credentials.
func NewRegistry(cfg config.Config, genID *snowflake.Node) *adapters.Registry {
	gateways := []paymentdomain.Gateway{sandbox.New(genID)}
	if cfg.GatewaySecretKey != "" {
		gateways = append(gateways, stripe.New(stripe.Config{
			SecretKey: cfg.GatewaySecretKey,
			BaseURL:   cfg.GatewayBaseURL,
			Timeout:   cfg.GatewayTimeout,
		}))
	}
	return adapters.NewRegistry(gateways...)
}
