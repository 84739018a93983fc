package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// RegisterMethodRequest stores a new charge instrument. Both refs must
// already exist at the gateway; registration never touches card data.
type RegisterMethodRequest struct {
	AccountID   string `json:"account_id"`
	Provider    string `json:"provider"`
	CustomerRef string `json:"customer_ref"`
	MethodRef   string `json:"method_ref"`
	Label       string `json:"label,omitempty"`
}

// ChargeOrderRequest charges a stored payment method for one order. The
// idempotency key is derived from the order so a crashed run retried later
// cannot double-charge.
type ChargeOrderRequest struct {
	PaymentMethodID snowflake.ID
	OrderID         snowflake.ID
	Amount          decimal.Decimal
	Currency        string
	Description     string
}

// RefundOrderRequest reverses the full captured amount of an order.
type RefundOrderRequest struct {
	PaymentMethodID snowflake.ID
	OrderID         snowflake.ID
	TransactionID   string
	Amount          decimal.Decimal
	Currency        string
}

type Service interface {
	RegisterMethod(ctx context.Context, req RegisterMethodRequest) (PaymentMethod, error)
	ListMethods(ctx context.Context, accountID string) ([]PaymentMethod, error)
	DeactivateMethod(ctx context.Context, id string) error
	ChargeOrder(ctx context.Context, req ChargeOrderRequest) (ChargeResult, error)
	RefundOrder(ctx context.Context, req RefundOrderRequest) error
}
