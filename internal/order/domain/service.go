package domain

import (
	"context"
)

// OrderDetail is an order with its frozen line items.
type OrderDetail struct {
	Order Order       `json:"order"`
	Items []OrderItem `json:"items"`
}

type Service interface {
	GetByID(ctx context.Context, orderID string) (OrderDetail, error)
	DispatchHistory(ctx context.Context, subscriptionID string) ([]Order, error)
	Fulfill(ctx context.Context, orderID string) (Order, error)
	Unfulfill(ctx context.Context, orderID string) (Order, error)
	Cancel(ctx context.Context, orderID string, refund bool) (Order, error)
	Refund(ctx context.Context, orderID string) (Order, error)
}
