package order

import (
	"github.com/harvestbox/commerce/internal/order/repository"
	"github.com/harvestbox/commerce/internal/order/service"
	"github.com/harvestbox/commerce/internal/order/snapshot"
	"go.uber.org/fx"
)

var Module = fx.Module("order",
	fx.Provide(repository.Provide),
	fx.Provide(snapshot.NewBuilder),
	fx.Provide(service.NewService),
)
