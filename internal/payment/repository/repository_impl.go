package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/harvestbox/commerce/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() paymentdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, method *paymentdomain.PaymentMethod) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_methods (
			id, account_id, provider, customer_ref, method_ref, label, active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		method.ID,
		method.AccountID,
		method.Provider,
		method.CustomerRef,
		method.MethodRef,
		method.Label,
		method.Active,
		method.CreatedAt,
		method.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*paymentdomain.PaymentMethod, error) {
	var method paymentdomain.PaymentMethod
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, provider, customer_ref, method_ref, label, active, created_at, updated_at
		 FROM payment_methods WHERE id = ?`,
		id,
	).Scan(&method).Error
	if err != nil {
		return nil, err
	}
	if method.ID == 0 {
		return nil, nil
	}
	return &method, nil
}

func (r *repo) ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]paymentdomain.PaymentMethod, error) {
	var methods []paymentdomain.PaymentMethod
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, provider, customer_ref, method_ref, label, active, created_at, updated_at
		 FROM payment_methods WHERE account_id = ? ORDER BY created_at ASC`,
		accountID,
	).Scan(&methods).Error
	if err != nil {
		return nil, err
	}
	return methods, nil
}

func (r *repo) Deactivate(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_methods SET active = ? WHERE id = ?`,
		false,
		id,
	).Error
}
