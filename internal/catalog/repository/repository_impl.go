package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/harvestbox/commerce/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() catalogdomain.Repository {
	return &repo{}
}

func (r *repo) InsertVariant(ctx context.Context, db *gorm.DB, variant *catalogdomain.ProductVariant) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO product_variants (
			id, product_id, ref, title, price, active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		variant.ID,
		variant.ProductID,
		variant.Ref,
		variant.Title,
		variant.Price,
		variant.Active,
		variant.CreatedAt,
		variant.UpdatedAt,
	).Error
}

func (r *repo) InsertShippingRate(ctx context.Context, db *gorm.DB, rate *catalogdomain.ShippingRate) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO shipping_rates (
			id, label, description, rate, active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rate.ID,
		rate.Label,
		rate.Description,
		rate.Rate,
		rate.Active,
		rate.CreatedAt,
		rate.UpdatedAt,
	).Error
}

func (r *repo) FindVariantByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*catalogdomain.ProductVariant, error) {
	var variant catalogdomain.ProductVariant
	err := db.WithContext(ctx).Raw(
		`SELECT id, product_id, ref, title, price, active, created_at, updated_at
		 FROM product_variants WHERE id = ?`,
		id,
	).Scan(&variant).Error
	if err != nil {
		return nil, err
	}
	if variant.ID == 0 {
		return nil, nil
	}
	return &variant, nil
}

func (r *repo) FindVariantsByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]catalogdomain.ProductVariant, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var variants []catalogdomain.ProductVariant
	err := db.WithContext(ctx).Raw(
		`SELECT id, product_id, ref, title, price, active, created_at, updated_at
		 FROM product_variants WHERE id IN ?`,
		ids,
	).Scan(&variants).Error
	if err != nil {
		return nil, err
	}
	return variants, nil
}

func (r *repo) FindShippingRateByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*catalogdomain.ShippingRate, error) {
	var rate catalogdomain.ShippingRate
	err := db.WithContext(ctx).Raw(
		`SELECT id, label, description, rate, active, created_at, updated_at
		 FROM shipping_rates WHERE id = ?`,
		id,
	).Scan(&rate).Error
	if err != nil {
		return nil, err
	}
	if rate.ID == 0 {
		return nil, nil
	}
	return &rate, nil
}

func (r *repo) ListShippingRates(ctx context.Context, db *gorm.DB) ([]catalogdomain.ShippingRate, error) {
	var rates []catalogdomain.ShippingRate
	err := db.WithContext(ctx).Raw(
		`SELECT id, label, description, rate, active, created_at, updated_at
		 FROM shipping_rates WHERE active = ? ORDER BY rate ASC`,
		true,
	).Scan(&rates).Error
	if err != nil {
		return nil, err
	}
	return rates, nil
}
