// Package domain contains persistence models for the product catalog.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// ProductVariant is a sellable variant of a product. Price is the live
// catalog price; orders snapshot it at dispatch time and never read it back.
type ProductVariant struct {
	ID        snowflake.ID    `gorm:"primaryKey"`
	ProductID snowflake.ID    `gorm:"not null;index"`
	Ref       string          `gorm:"type:text;not null;uniqueIndex"`
	Title     string          `gorm:"type:text;not null"`
	Price     decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Active    bool            `gorm:"not null;default:true"`
	CreatedAt time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ProductVariant) TableName() string { return "product_variants" }

// ShippingRate is a flat-rate shipping option selectable per subscription.
type ShippingRate struct {
	ID          snowflake.ID    `gorm:"primaryKey"`
	Label       string          `gorm:"type:text;not null;uniqueIndex"`
	Description string          `gorm:"type:text"`
	Rate        decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Active      bool            `gorm:"not null;default:true"`
	CreatedAt   time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ShippingRate) TableName() string { return "shipping_rates" }

var (
	ErrVariantNotFound      = errors.New("variant_not_found")
	ErrShippingRateNotFound = errors.New("shipping_rate_not_found")
)
