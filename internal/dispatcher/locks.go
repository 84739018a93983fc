package dispatcher

import (
	"context"
	"time"

	subscriptiondomain "github.com/harvestbox/commerce/internal/subscription/domain"
	"gorm.io/gorm"
)

const claimColumns = `id, account_id, status, dispatch_frequency, dispatch_day_of_week,
	last_dispatch_date, next_dispatch_date, dispatch_count, pause_until_date,
	payment_method_id, shipping_rate_id, shipping_address, discount_kind,
	discount_value, metadata, activated_at, canceled_at, created_at, updated_at`

// claimDueSubscriptions picks up to limit active subscriptions whose dispatch
// date is exactly day and whose pause, if any, has expired. Rows with a date
// in the past are never claimed: a missed dispatch is an operator anomaly
// surfaced by countOverdue, and charging it late without review risks billing
// for boxes that were never sent. SKIP LOCKED keeps concurrent claimers off
// each other's rows; the row locks are released when the claim commits, so
// processing re-validates each subscription under its own lock before the
// cadence is advanced.
func (d *Dispatcher) claimDueSubscriptions(ctx context.Context, day time.Time, limit int) ([]subscriptiondomain.Subscription, error) {
	claimCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var subscriptions []subscriptiondomain.Subscription
	err := d.db.WithContext(claimCtx).Transaction(func(tx *gorm.DB) error {
		return tx.WithContext(claimCtx).Raw(
			`SELECT `+claimColumns+`
			 FROM subscriptions
			 WHERE status = ?
			   AND next_dispatch_date IS NOT NULL
			   AND next_dispatch_date = ?
			   AND (pause_until_date IS NULL OR pause_until_date <= ?)
			 ORDER BY next_dispatch_date, id
			 FOR UPDATE SKIP LOCKED
			 LIMIT ?`,
			subscriptiondomain.SubscriptionStatusActive,
			day,
			day,
			limit,
		).Scan(&subscriptions).Error
	})
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}

// countOverdue counts active subscriptions whose dispatch date slipped past
// the tolerance window without being processed.
func (d *Dispatcher) countOverdue(ctx context.Context, day time.Time) (int64, error) {
	cutoff := day.AddDate(0, 0, -d.cfg.OverdueToleranceDays)

	var count int64
	err := d.db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM subscriptions
		 WHERE status = ?
		   AND next_dispatch_date IS NOT NULL
		   AND next_dispatch_date < ?
		   AND (pause_until_date IS NULL OR pause_until_date <= ?)`,
		subscriptiondomain.SubscriptionStatusActive,
		cutoff,
		day,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
