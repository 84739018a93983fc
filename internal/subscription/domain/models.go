// Package domain contains persistence models for recurring subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// SubscriptionStatus represents lifecycle states for a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusDraft    SubscriptionStatus = "DRAFT"
	SubscriptionStatusActive   SubscriptionStatus = "ACTIVE"
	SubscriptionStatusCanceled SubscriptionStatus = "CANCELED"
)

// DiscountKind discriminates how DiscountValue is interpreted.
type DiscountKind string

const (
	DiscountKindPercentage  DiscountKind = "percentage"
	DiscountKindFixedAmount DiscountKind = "fixed_amount"
)

// Subscription is a recurring dispatch agreement: a basket of variants
// dispatched every DispatchFrequency weeks on DispatchDayOfWeek.
//
// All *Date columns hold calendar dates at midnight UTC. A subscription is
// paused when PauseUntilDate is set and falls strictly after the day under
// consideration; a pause date on or before that day has expired and is
// ignored.
type Subscription struct {
	ID                snowflake.ID       `gorm:"primaryKey"`
	AccountID         snowflake.ID       `gorm:"not null;index"`
	Status            SubscriptionStatus `gorm:"type:text;not null"`
	DispatchFrequency int                `gorm:"not null"`
	DispatchDayOfWeek int                `gorm:"not null"`
	LastDispatchDate  *time.Time         `gorm:""`
	NextDispatchDate  *time.Time         `gorm:"index"`
	DispatchCount     int                `gorm:"not null;default:0"`
	PauseUntilDate    *time.Time         `gorm:""`
	PaymentMethodID   snowflake.ID       `gorm:"not null"`
	ShippingRateID    snowflake.ID       `gorm:"not null"`
	ShippingAddress   datatypes.JSONMap  `gorm:"type:jsonb"`
	DiscountKind      *DiscountKind      `gorm:"type:text"`
	DiscountValue     *decimal.Decimal   `gorm:"type:numeric(12,2)"`
	Metadata          datatypes.JSONMap  `gorm:"type:jsonb"`
	ActivatedAt       *time.Time         `gorm:""`
	CanceledAt        *time.Time         `gorm:""`
	CreatedAt         time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// PausedAt reports whether the subscription is paused for the given day.
func (s *Subscription) PausedAt(day time.Time) bool {
	return s.PauseUntilDate != nil && s.PauseUntilDate.After(day)
}

// SubscriptionLineItem pins one variant and quantity to a subscription. It
// references the live catalog; prices are snapshotted onto the order at
// dispatch time, never here.
type SubscriptionLineItem struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	SubscriptionID snowflake.ID `gorm:"not null;index"`
	VariantID      snowflake.ID `gorm:"not null"`
	Quantity       int          `gorm:"not null"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (SubscriptionLineItem) TableName() string { return "subscription_line_items" }
