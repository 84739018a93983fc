package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/harvestbox/commerce/internal/subscription/domain"
	"gorm.io/gorm"
)

const subscriptionColumns = `id, account_id, status, dispatch_frequency, dispatch_day_of_week,
	 last_dispatch_date, next_dispatch_date, dispatch_count, pause_until_date,
	 payment_method_id, shipping_rate_id, shipping_address, discount_kind, discount_value,
	 metadata, activated_at, canceled_at, created_at, updated_at`

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, account_id, status, dispatch_frequency, dispatch_day_of_week,
			last_dispatch_date, next_dispatch_date, dispatch_count, pause_until_date,
			payment_method_id, shipping_rate_id, shipping_address, discount_kind, discount_value,
			metadata, activated_at, canceled_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		subscription.ID,
		subscription.AccountID,
		subscription.Status,
		subscription.DispatchFrequency,
		subscription.DispatchDayOfWeek,
		subscription.LastDispatchDate,
		subscription.NextDispatchDate,
		subscription.DispatchCount,
		subscription.PauseUntilDate,
		subscription.PaymentMethodID,
		subscription.ShippingRateID,
		subscription.ShippingAddress,
		subscription.DiscountKind,
		subscription.DiscountValue,
		subscription.Metadata,
		subscription.ActivatedAt,
		subscription.CanceledAt,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	).Error
}

func (r *repo) InsertLineItems(ctx context.Context, db *gorm.DB, items []subscriptiondomain.SubscriptionLineItem) error {
	if len(items) == 0 {
		return nil
	}

	for _, item := range items {
		if err := db.WithContext(ctx).Exec(
			`INSERT INTO subscription_line_items (
				id, subscription_id, variant_id, quantity, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?)`,
			item.ID,
			item.SubscriptionID,
			item.VariantID,
			item.Quantity,
			item.CreatedAt,
			item.UpdatedAt,
		).Error; err != nil {
			return err
		}
	}

	return nil
}

func (r *repo) ReplaceLineItems(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, items []subscriptiondomain.SubscriptionLineItem) error {
	if err := db.WithContext(ctx).Exec(
		`DELETE FROM subscription_line_items WHERE subscription_id = ?`,
		subscriptionID,
	).Error; err != nil {
		return err
	}
	return r.InsertLineItems(ctx, db, items)
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET
			status = ?, dispatch_frequency = ?, dispatch_day_of_week = ?,
			last_dispatch_date = ?, next_dispatch_date = ?, dispatch_count = ?,
			pause_until_date = ?, payment_method_id = ?, shipping_rate_id = ?,
			shipping_address = ?, discount_kind = ?, discount_value = ?, metadata = ?,
			activated_at = ?, canceled_at = ?, updated_at = ?
		 WHERE id = ?`,
		subscription.Status,
		subscription.DispatchFrequency,
		subscription.DispatchDayOfWeek,
		subscription.LastDispatchDate,
		subscription.NextDispatchDate,
		subscription.DispatchCount,
		subscription.PauseUntilDate,
		subscription.PaymentMethodID,
		subscription.ShippingRateID,
		subscription.ShippingAddress,
		subscription.DiscountKind,
		subscription.DiscountValue,
		subscription.Metadata,
		subscription.ActivatedAt,
		subscription.CanceledAt,
		subscription.UpdatedAt,
		subscription.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`,
		id,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ? FOR UPDATE`,
		id,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]subscriptiondomain.Subscription, error) {
	var subscriptions []subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE account_id = ? ORDER BY created_at ASC`,
		accountID,
	).Scan(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (r *repo) ListLineItems(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]subscriptiondomain.SubscriptionLineItem, error) {
	var items []subscriptiondomain.SubscriptionLineItem
	err := db.WithContext(ctx).Raw(
		`SELECT id, subscription_id, variant_id, quantity, created_at, updated_at
		 FROM subscription_line_items
		 WHERE subscription_id = ? ORDER BY created_at ASC, id ASC`,
		subscriptionID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
