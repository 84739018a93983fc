package subscription

import (
	"github.com/harvestbox/commerce/internal/subscription/repository"
	"github.com/harvestbox/commerce/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
