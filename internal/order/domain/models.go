// Package domain contains persistence models for dispatch orders.
//
// An order is an immutable record of a single dispatch: every price, title
// and rate is copied from the catalog at build time so that later catalog
// edits never rewrite history.
package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/harvestbox/commerce/internal/subscription/domain"
	"github.com/shopspring/decimal"
)

// OrderStatus represents lifecycle states for an order.
type OrderStatus string

const (
	OrderStatusSubmitted OrderStatus = "SUBMITTED"
	OrderStatusFailure   OrderStatus = "FAILURE"
	OrderStatusFulfilled OrderStatus = "FULFILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRefunded  OrderStatus = "REFUNDED"
)

var (
	ErrOrderNotFound     = errors.New("order_not_found")
	ErrInvalidOrder      = errors.New("invalid_order")
	ErrInvalidTransition = errors.New("invalid_order_transition")
)

// Order is the billing and fulfilment record for one dispatch cycle.
type Order struct {
	ID               snowflake.ID                      `gorm:"primaryKey"`
	SubscriptionID   snowflake.ID                      `gorm:"not null;index"`
	AccountID        snowflake.ID                      `gorm:"not null;index"`
	Status           OrderStatus                       `gorm:"type:text;not null"`
	StatusNote       string                            `gorm:"type:text"`
	Currency         string                            `gorm:"type:text;not null"`
	DispatchDate     time.Time                         `gorm:"not null"`
	SubtotalAmount   decimal.Decimal                   `gorm:"type:numeric(12,2);not null"`
	DiscountKind     *subscriptiondomain.DiscountKind  `gorm:"type:text"`
	DiscountValue    *decimal.Decimal                  `gorm:"type:numeric(12,2)"`
	AmountSaved      decimal.Decimal                   `gorm:"type:numeric(12,2);not null"`
	ShippingLabel    string                            `gorm:"type:text;not null"`
	ShippingAmount   decimal.Decimal                   `gorm:"type:numeric(12,2);not null"`
	TotalAmount      decimal.Decimal                   `gorm:"type:numeric(12,2);not null"`
	TotalPaid        decimal.Decimal                   `gorm:"type:numeric(12,2);not null"`
	TransactionID    string                            `gorm:"type:text"`
	PaymentDate      *time.Time                        `gorm:""`
	ReceiptEmailSent bool                              `gorm:"not null;default:false"`
	CreatedAt        time.Time                         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time                         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Order) TableName() string { return "orders" }

// AppendStatusNote records a timestamped line in the order's status history.
func (o *Order) AppendStatusNote(at time.Time, note string) {
	line := fmt.Sprintf("[%s] %s", at.UTC().Format(time.RFC3339), note)
	if o.StatusNote == "" {
		o.StatusNote = line
		return
	}
	o.StatusNote += "\n" + line
}

// MarkPaid records a successful charge against the order.
func (o *Order) MarkPaid(at time.Time, transactionID string, paid decimal.Decimal) {
	o.TransactionID = transactionID
	o.TotalPaid = paid
	paymentDate := at.UTC()
	o.PaymentDate = &paymentDate
}

// MarkFailed moves the order to FAILURE with the gateway's reason preserved
// in the status note.
func (o *Order) MarkFailed(at time.Time, reason string) {
	o.Status = OrderStatusFailure
	o.AppendStatusNote(at, "payment failed: "+reason)
}

// Fulfill marks a submitted order as dispatched.
func (o *Order) Fulfill(at time.Time) error {
	if o.Status != OrderStatusSubmitted {
		return ErrInvalidTransition
	}
	o.Status = OrderStatusFulfilled
	o.AppendStatusNote(at, "order fulfilled")
	return nil
}

// Unfulfill reverts a fulfilled order back to submitted, for when a dispatch
// was marked done in error.
func (o *Order) Unfulfill(at time.Time) error {
	if o.Status != OrderStatusFulfilled {
		return ErrInvalidTransition
	}
	o.Status = OrderStatusSubmitted
	o.AppendStatusNote(at, "fulfilment reverted")
	return nil
}

// Cancel voids a submitted order without touching the payment.
func (o *Order) Cancel(at time.Time) error {
	if o.Status != OrderStatusSubmitted {
		return ErrInvalidTransition
	}
	o.Status = OrderStatusCancelled
	o.AppendStatusNote(at, "order cancelled")
	return nil
}

// Refund marks the order refunded. Orders that never captured a payment, or
// that were already refunded, cannot be refunded.
func (o *Order) Refund(at time.Time) error {
	if o.Status == OrderStatusRefunded || o.Status == OrderStatusFailure {
		return ErrInvalidTransition
	}
	if o.TransactionID == "" {
		return ErrInvalidTransition
	}
	o.Status = OrderStatusRefunded
	o.AppendStatusNote(at, "payment refunded")
	return nil
}

// OrderItem is a frozen copy of one basket line: ref, title and unit price
// are snapshotted from the variant at dispatch time.
type OrderItem struct {
	ID        snowflake.ID    `gorm:"primaryKey"`
	OrderID   snowflake.ID    `gorm:"not null;index"`
	VariantID snowflake.ID    `gorm:"not null"`
	Ref       string          `gorm:"type:text;not null"`
	Title     string          `gorm:"type:text;not null"`
	UnitPrice decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Quantity  int             `gorm:"not null"`
	LineTotal decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	CreatedAt time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (OrderItem) TableName() string { return "order_items" }
