package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, method *PaymentMethod) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PaymentMethod, error)
	ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]PaymentMethod, error)
	Deactivate(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}
