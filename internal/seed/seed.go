// Package seed bootstraps a fresh database with the rows a new install
// needs before any subscription can be created.
package seed

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/harvestbox/commerce/internal/catalog/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	defaultRateLabel       = "standard"
	defaultRateDescription = "Standard courier delivery"
)

var defaultRateAmount = decimal.NewFromFloat(5.00)

// EnsureDefaultShippingRate seeds the standard shipping rate so the first
// subscription can be created out of the box. Existing rates are left alone.
func EnsureDefaultShippingRate(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&catalogdomain.ShippingRate{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		return tx.Create(&catalogdomain.ShippingRate{
			ID:          node.Generate(),
			Label:       defaultRateLabel,
			Description: defaultRateDescription,
			Rate:        defaultRateAmount,
			Active:      true,
		}).Error
	})
}
