// Package domain defines payment methods and the gateway contract.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

// PaymentMethod is a stored charge instrument. CustomerRef and MethodRef are
// the gateway's identifiers; no card data is ever held locally.
type PaymentMethod struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	AccountID   snowflake.ID `gorm:"not null;index"`
	Provider    string       `gorm:"type:text;not null"`
	CustomerRef string       `gorm:"type:text;not null"`
	MethodRef   string       `gorm:"type:text;not null"`
	Label       string       `gorm:"type:text"`
	Active      bool         `gorm:"not null;default:true"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PaymentMethod) TableName() string { return "payment_methods" }

// ChargeRequest asks a gateway to capture a payment. Amount is in minor
// currency units. IdempotencyKey must be stable across retries of the same
// logical charge.
type ChargeRequest struct {
	AmountMinor    int64
	Currency       string
	CustomerRef    string
	MethodRef      string
	Description    string
	IdempotencyKey string
}

// ChargeResult reports a captured payment.
type ChargeResult struct {
	TransactionID string
}

// RefundRequest reverses a previously captured payment in full.
type RefundRequest struct {
	TransactionID  string
	AmountMinor    int64
	Currency       string
	IdempotencyKey string
}

// Gateway is the provider-side payment contract.
type Gateway interface {
	Provider() string
	CreateCharge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	IssueRefund(ctx context.Context, req RefundRequest) error
}

// PaymentError is a charge the gateway declined or rejected. It is a business
// outcome, not an infrastructure failure: callers record it and move on
// rather than retrying.
type PaymentError struct {
	Provider string
	Code     string
	Message  string
}

func (e *PaymentError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

var (
	ErrPaymentMethodNotFound = errors.New("payment_method_not_found")
	ErrInactivePaymentMethod = errors.New("inactive_payment_method")
	ErrProviderNotFound      = errors.New("payment_provider_not_found")
	ErrMissingTransaction    = errors.New("missing_transaction")

	ErrInvalidAccount       = errors.New("invalid_account")
	ErrInvalidPaymentMethod = errors.New("invalid_payment_method")
	ErrMissingCustomerRef   = errors.New("missing_customer_ref")
	ErrMissingMethodRef     = errors.New("missing_method_ref")
)
