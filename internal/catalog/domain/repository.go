package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertVariant(ctx context.Context, db *gorm.DB, variant *ProductVariant) error
	InsertShippingRate(ctx context.Context, db *gorm.DB, rate *ShippingRate) error
	FindVariantByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ProductVariant, error)
	FindVariantsByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]ProductVariant, error)
	FindShippingRateByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ShippingRate, error)
	ListShippingRates(ctx context.Context, db *gorm.DB) ([]ShippingRate, error)
}
