package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/harvestbox/commerce/internal/order/domain"
	"gorm.io/gorm"
)

const orderColumns = `id, subscription_id, account_id, status, status_note, currency, dispatch_date,
	 subtotal_amount, discount_kind, discount_value, amount_saved, shipping_label, shipping_amount,
	 total_amount, total_paid, transaction_id, payment_date, receipt_email_sent, created_at, updated_at`

type repo struct{}

func Provide() orderdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *orderdomain.Order) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO orders (
			id, subscription_id, account_id, status, status_note, currency, dispatch_date,
			subtotal_amount, discount_kind, discount_value, amount_saved, shipping_label, shipping_amount,
			total_amount, total_paid, transaction_id, payment_date, receipt_email_sent, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.SubscriptionID,
		order.AccountID,
		order.Status,
		order.StatusNote,
		order.Currency,
		order.DispatchDate,
		order.SubtotalAmount,
		order.DiscountKind,
		order.DiscountValue,
		order.AmountSaved,
		order.ShippingLabel,
		order.ShippingAmount,
		order.TotalAmount,
		order.TotalPaid,
		order.TransactionID,
		order.PaymentDate,
		order.ReceiptEmailSent,
		order.CreatedAt,
		order.UpdatedAt,
	).Error
}

func (r *repo) InsertItems(ctx context.Context, db *gorm.DB, items []orderdomain.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	for _, item := range items {
		if err := db.WithContext(ctx).Exec(
			`INSERT INTO order_items (
				id, order_id, variant_id, ref, title, unit_price, quantity, line_total, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID,
			item.OrderID,
			item.VariantID,
			item.Ref,
			item.Title,
			item.UnitPrice,
			item.Quantity,
			item.LineTotal,
			item.CreatedAt,
		).Error; err != nil {
			return err
		}
	}

	return nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, order *orderdomain.Order) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders SET
			status = ?, status_note = ?, total_paid = ?, transaction_id = ?, payment_date = ?,
			receipt_email_sent = ?, updated_at = ?
		 WHERE id = ?`,
		order.Status,
		order.StatusNote,
		order.TotalPaid,
		order.TransactionID,
		order.PaymentDate,
		order.ReceiptEmailSent,
		order.UpdatedAt,
		order.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*orderdomain.Order, error) {
	var order orderdomain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders WHERE id = ?`,
		id,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*orderdomain.Order, error) {
	var order orderdomain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders WHERE id = ? FOR UPDATE`,
		id,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) FindBySubscriptionAndDispatchDate(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, dispatchDate time.Time) (*orderdomain.Order, error) {
	var order orderdomain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders
		 WHERE subscription_id = ? AND dispatch_date = ? AND status <> ?
		 ORDER BY created_at DESC
		 LIMIT 1`,
		subscriptionID,
		dispatchDate,
		orderdomain.OrderStatusFailure,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) ListBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]orderdomain.Order, error) {
	var orders []orderdomain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders
		 WHERE subscription_id = ? ORDER BY dispatch_date DESC, created_at DESC`,
		subscriptionID,
	).Scan(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]orderdomain.OrderItem, error) {
	var items []orderdomain.OrderItem
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, variant_id, ref, title, unit_price, quantity, line_total, created_at
		 FROM order_items
		 WHERE order_id = ? ORDER BY id ASC`,
		orderID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) MarkReceiptEmailSent(ctx context.Context, db *gorm.DB, orderID snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders SET receipt_email_sent = ?, updated_at = ? WHERE id = ?`,
		true,
		at,
		orderID,
	).Error
}
