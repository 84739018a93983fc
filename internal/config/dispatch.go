package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

// DispatchConfig is the business configuration snapshot consumed by the
// dispatch engine: the settlement currency, the minimum amount the payment
// processor will accept, and the shipping rate used when a subscription has
// no rate of its own. A snapshot is taken once per dispatch cycle so a reload
// mid-cycle cannot change totals for subscriptions already claimed.
type DispatchConfig struct {
	Currency            string `mapstructure:"currency"`
	MinChargeable       string `mapstructure:"minChargeable"`
	DefaultShippingRate string `mapstructure:"defaultShippingRate"`
}

func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		Currency:            "NZD",
		MinChargeable:       "0.50",
		DefaultShippingRate: "0.00",
	}
}

// MinChargeableAmount parses the configured payment-processor floor.
func (c DispatchConfig) MinChargeableAmount() decimal.Decimal {
	amount, err := decimal.NewFromString(c.MinChargeable)
	if err != nil {
		return decimal.RequireFromString(DefaultDispatchConfig().MinChargeable)
	}
	return amount
}

// DefaultShippingRateAmount parses the configured shipping fallback.
func (c DispatchConfig) DefaultShippingRateAmount() decimal.Decimal {
	amount, err := decimal.NewFromString(c.DefaultShippingRate)
	if err != nil {
		return decimal.Zero
	}
	return amount
}

type DispatchConfigHolder struct {
	current atomic.Value // holds DispatchConfig
}

// DispatchModule provides the hot-reloading dispatch configuration holder.
var DispatchModule = fx.Provide(NewDispatchConfigHolder)

func NewDispatchConfigHolder() (*DispatchConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("dispatch")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/harvestbox/config")
	v.AddConfigPath("/etc/harvestbox")
	v.AddConfigPath(".")

	v.SetEnvPrefix("HARVESTBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultDispatchConfig()
	v.SetDefault("dispatch.currency", defaults.Currency)
	v.SetDefault("dispatch.minChargeable", defaults.MinChargeable)
	v.SetDefault("dispatch.defaultShippingRate", defaults.DefaultShippingRate)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg DispatchConfig
	if err := v.UnmarshalKey("dispatch", &cfg); err != nil {
		return nil, err
	}
	if err := validateDispatchConfig(cfg); err != nil {
		return nil, err
	}

	holder := &DispatchConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated DispatchConfig
		if err := v.UnmarshalKey("dispatch", &updated); err != nil {
			log.Printf("[dispatch-config] reload failed: %v", err)
			return
		}
		if err := validateDispatchConfig(updated); err != nil {
			log.Printf("[dispatch-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[dispatch-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticDispatchConfigHolder wraps a fixed configuration, for tests and
// one-shot tools that do not watch a config file.
func NewStaticDispatchConfigHolder(cfg DispatchConfig) *DispatchConfigHolder {
	holder := &DispatchConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

// Get returns the current configuration snapshot.
func (h *DispatchConfigHolder) Get() DispatchConfig {
	return h.current.Load().(DispatchConfig)
}

func validateDispatchConfig(cfg DispatchConfig) error {
	if strings.TrimSpace(cfg.Currency) == "" {
		return errors.New("dispatch.currency cannot be empty")
	}
	if _, err := decimal.NewFromString(cfg.MinChargeable); err != nil {
		return errors.New("dispatch.minChargeable must be a decimal amount")
	}
	if _, err := decimal.NewFromString(cfg.DefaultShippingRate); err != nil {
		return errors.New("dispatch.defaultShippingRate must be a decimal amount")
	}
	return nil
}
