package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/harvestbox/commerce/internal/catalog"
	"github.com/harvestbox/commerce/internal/clock"
	"github.com/harvestbox/commerce/internal/config"
	"github.com/harvestbox/commerce/internal/dispatcher"
	"github.com/harvestbox/commerce/internal/order"
	"github.com/harvestbox/commerce/internal/payment"
	"github.com/harvestbox/commerce/internal/providers"
	"github.com/harvestbox/commerce/internal/receipt"
	"github.com/harvestbox/commerce/internal/subscription"
	"github.com/harvestbox/commerce/pkg/db"
	"github.com/harvestbox/commerce/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		config.DispatchModule,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Domain services required by the dispatch run
		catalog.Module,
		subscription.Module,
		order.Module,
		payment.Module,
		providers.Module,
		receipt.Module,

		// No server module!
		dispatcher.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
