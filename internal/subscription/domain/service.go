package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type CreateLineItemRequest struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

type CreateSubscriptionRequest struct {
	AccountID         string                  `json:"account_id"`
	DispatchFrequency int                     `json:"dispatch_frequency"`
	DispatchDayOfWeek int                     `json:"dispatch_day_of_week"`
	PaymentMethodID   string                  `json:"payment_method_id"`
	ShippingRateID    string                  `json:"shipping_rate_id"`
	ShippingAddress   map[string]any          `json:"shipping_address,omitempty"`
	DiscountKind      *DiscountKind           `json:"discount_kind,omitempty"`
	DiscountValue     *decimal.Decimal        `json:"discount_value,omitempty"`
	Items             []CreateLineItemRequest `json:"items"`
	Metadata          map[string]any          `json:"metadata,omitempty"`
}

type PauseSubscriptionRequest struct {
	SubscriptionID string    `json:"subscription_id"`
	PauseUntil     time.Time `json:"pause_until"`
}

type UpdateCadenceRequest struct {
	SubscriptionID    string `json:"subscription_id"`
	DispatchFrequency int    `json:"dispatch_frequency"`
	DispatchDayOfWeek int    `json:"dispatch_day_of_week"`
}

type ReplaceLineItemsRequest struct {
	SubscriptionID string                  `json:"subscription_id"`
	Items          []CreateLineItemRequest `json:"items"`
}

type Service interface {
	Create(context.Context, CreateSubscriptionRequest) (Subscription, error)
	Activate(ctx context.Context, subscriptionID string) (Subscription, error)
	Pause(context.Context, PauseSubscriptionRequest) (Subscription, error)
	Resume(ctx context.Context, subscriptionID string) (Subscription, error)
	Cancel(ctx context.Context, subscriptionID string) (Subscription, error)
	UpdateCadence(context.Context, UpdateCadenceRequest) (Subscription, error)
	ReplaceLineItems(context.Context, ReplaceLineItemsRequest) (Subscription, error)
	GetByID(ctx context.Context, subscriptionID string) (Subscription, error)
	ListByAccount(ctx context.Context, accountID string) ([]Subscription, error)
	ListLineItems(ctx context.Context, subscriptionID string) ([]SubscriptionLineItem, error)
}

var (
	ErrInvalidAccount        = errors.New("invalid_account")
	ErrInvalidSubscription   = errors.New("invalid_subscription")
	ErrInvalidVariant        = errors.New("invalid_variant")
	ErrInvalidQuantity       = errors.New("invalid_quantity")
	ErrInvalidShippingRate   = errors.New("invalid_shipping_rate")
	ErrInvalidPaymentMethod  = errors.New("invalid_payment_method")
	ErrInvalidDiscount       = errors.New("invalid_discount")
	ErrInvalidPauseDate      = errors.New("invalid_pause_date")
	ErrInvalidTransition     = errors.New("invalid_transition")
	ErrMissingLineItems      = errors.New("missing_line_items")
	ErrSubscriptionNotFound  = errors.New("subscription_not_found")
	ErrSubscriptionNotPaused = errors.New("subscription_not_paused")
)
