package dispatcher

import (
	"context"

	"github.com/harvestbox/commerce/internal/config"
	obsmetrics "github.com/harvestbox/commerce/internal/observability/metrics"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("dispatcher",
	fx.Provide(ProvideConfig),
	fx.Provide(ProvideRunLocker),
	fx.Provide(New),
	fx.Invoke(Run),
)

// ProvideRunLocker builds the redis-backed run lock when an address is
// configured. Without redis the dispatcher runs unlocked, which is fine for a
// single instance.
func ProvideRunLocker(cfg config.Config) *RunLocker {
	if cfg.RedisAddr == "" {
		return nil
	}
	return NewRunLocker(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
}

func Run(lc fx.Lifecycle, cfg config.Config, d *Dispatcher) {
	obsmetrics.DispatcherWithConfig(obsmetrics.Config{
		ServiceName: cfg.AppName,
		Environment: cfg.Environment,
	})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go d.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
