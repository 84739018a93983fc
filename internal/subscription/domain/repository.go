package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	InsertLineItems(ctx context.Context, db *gorm.DB, items []SubscriptionLineItem) error
	ReplaceLineItems(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, items []SubscriptionLineItem) error
	Update(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]Subscription, error)
	ListLineItems(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]SubscriptionLineItem, error)
}
