package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/harvestbox/commerce/internal/clock"
	"github.com/harvestbox/commerce/internal/payment/adapters"
	"github.com/harvestbox/commerce/internal/payment/adapters/sandbox"
	paymentdomain "github.com/harvestbox/commerce/internal/payment/domain"
	"github.com/harvestbox/commerce/internal/payment/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupService(t *testing.T) (paymentdomain.Service, *gorm.DB, *snowflake.Node, *sandbox.Gateway) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.Exec(`
		CREATE TABLE payment_methods (
			id INTEGER PRIMARY KEY,
			account_id INTEGER,
			provider TEXT,
			customer_ref TEXT,
			method_ref TEXT,
			label TEXT,
			active BOOLEAN,
			created_at DATETIME,
			updated_at DATETIME
		)
	`).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	gateway := sandbox.New(node)

	svc := NewService(ServiceParam{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clock.NewFakeClock(time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC)),
		Repo:     repository.Provide(),
		Registry: adapters.NewRegistry(gateway),
	})
	return svc, db, node, gateway
}

func seedMethod(t *testing.T, db *gorm.DB, node *snowflake.Node, methodRef string, active bool) snowflake.ID {
	t.Helper()

	id := node.Generate()
	now := time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Exec(
		`INSERT INTO payment_methods (id, account_id, provider, customer_ref, method_ref, label, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, node.Generate(), "sandbox", "cus_test", methodRef, "visa 4242", active, now, now,
	).Error)
	return id
}

func TestRegisterMethod(t *testing.T) {
	svc, _, node, _ := setupService(t)
	accountID := node.Generate().String()

	method, err := svc.RegisterMethod(context.Background(), paymentdomain.RegisterMethodRequest{
		AccountID:   accountID,
		Provider:    "Sandbox",
		CustomerRef: "cus_test",
		MethodRef:   "pm_new",
		Label:       "visa 4242",
	})
	require.NoError(t, err)
	assert.Equal(t, "sandbox", method.Provider)
	assert.True(t, method.Active)

	methods, err := svc.ListMethods(context.Background(), accountID)
	require.NoError(t, err)
	require.Len(t, methods, 1)
	assert.Equal(t, method.ID, methods[0].ID)
}

func TestRegisterMethod_Validation(t *testing.T) {
	svc, _, node, _ := setupService(t)
	accountID := node.Generate().String()

	_, err := svc.RegisterMethod(context.Background(), paymentdomain.RegisterMethodRequest{
		AccountID:   "not-a-snowflake",
		Provider:    "sandbox",
		CustomerRef: "cus_test",
		MethodRef:   "pm_new",
	})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidAccount)

	_, err = svc.RegisterMethod(context.Background(), paymentdomain.RegisterMethodRequest{
		AccountID:   accountID,
		Provider:    "acme",
		CustomerRef: "cus_test",
		MethodRef:   "pm_new",
	})
	assert.ErrorIs(t, err, paymentdomain.ErrProviderNotFound)

	_, err = svc.RegisterMethod(context.Background(), paymentdomain.RegisterMethodRequest{
		AccountID:   accountID,
		Provider:    "sandbox",
		CustomerRef: " ",
		MethodRef:   "pm_new",
	})
	assert.ErrorIs(t, err, paymentdomain.ErrMissingCustomerRef)

	_, err = svc.RegisterMethod(context.Background(), paymentdomain.RegisterMethodRequest{
		AccountID:   accountID,
		Provider:    "sandbox",
		CustomerRef: "cus_test",
	})
	assert.ErrorIs(t, err, paymentdomain.ErrMissingMethodRef)
}

func TestDeactivateMethod(t *testing.T) {
	svc, db, node, _ := setupService(t)
	methodID := seedMethod(t, db, node, "pm_ok", true)

	require.NoError(t, svc.DeactivateMethod(context.Background(), methodID.String()))

	// a retired method can no longer be charged
	_, err := svc.ChargeOrder(context.Background(), paymentdomain.ChargeOrderRequest{
		PaymentMethodID: methodID,
		OrderID:         node.Generate(),
		Amount:          decimal.RequireFromString("10.00"),
		Currency:        "NZD",
	})
	assert.ErrorIs(t, err, paymentdomain.ErrInactivePaymentMethod)

	err = svc.DeactivateMethod(context.Background(), node.Generate().String())
	assert.ErrorIs(t, err, paymentdomain.ErrPaymentMethodNotFound)
}

func TestChargeOrder_IdempotentPerOrder(t *testing.T) {
	svc, db, node, _ := setupService(t)
	methodID := seedMethod(t, db, node, "pm_ok", true)
	orderID := node.Generate()

	req := paymentdomain.ChargeOrderRequest{
		PaymentMethodID: methodID,
		OrderID:         orderID,
		Amount:          decimal.RequireFromString("35.00"),
		Currency:        "NZD",
		Description:     "weekly box",
	}

	first, err := svc.ChargeOrder(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, first.TransactionID)

	// same order charges again: the gateway must replay, not re-capture
	second, err := svc.ChargeOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.TransactionID, second.TransactionID)
}

func TestChargeOrder_Declined(t *testing.T) {
	svc, db, node, _ := setupService(t)
	methodID := seedMethod(t, db, node, "pm_decline", true)

	_, err := svc.ChargeOrder(context.Background(), paymentdomain.ChargeOrderRequest{
		PaymentMethodID: methodID,
		OrderID:         node.Generate(),
		Amount:          decimal.RequireFromString("10.00"),
		Currency:        "NZD",
	})

	var paymentErr *paymentdomain.PaymentError
	require.ErrorAs(t, err, &paymentErr)
	assert.Equal(t, "card_declined", paymentErr.Code)
}

func TestChargeOrder_InactiveMethod(t *testing.T) {
	svc, db, node, _ := setupService(t)
	methodID := seedMethod(t, db, node, "pm_ok", false)

	_, err := svc.ChargeOrder(context.Background(), paymentdomain.ChargeOrderRequest{
		PaymentMethodID: methodID,
		OrderID:         node.Generate(),
		Amount:          decimal.RequireFromString("10.00"),
		Currency:        "NZD",
	})
	assert.ErrorIs(t, err, paymentdomain.ErrInactivePaymentMethod)
}

func TestChargeOrder_UnknownMethod(t *testing.T) {
	svc, _, node, _ := setupService(t)

	_, err := svc.ChargeOrder(context.Background(), paymentdomain.ChargeOrderRequest{
		PaymentMethodID: node.Generate(),
		OrderID:         node.Generate(),
		Amount:          decimal.RequireFromString("10.00"),
		Currency:        "NZD",
	})
	assert.ErrorIs(t, err, paymentdomain.ErrPaymentMethodNotFound)
}

func TestRefundOrder(t *testing.T) {
	svc, db, node, gateway := setupService(t)
	methodID := seedMethod(t, db, node, "pm_ok", true)
	orderID := node.Generate()

	charged, err := svc.ChargeOrder(context.Background(), paymentdomain.ChargeOrderRequest{
		PaymentMethodID: methodID,
		OrderID:         orderID,
		Amount:          decimal.RequireFromString("35.00"),
		Currency:        "NZD",
	})
	require.NoError(t, err)

	require.NoError(t, svc.RefundOrder(context.Background(), paymentdomain.RefundOrderRequest{
		PaymentMethodID: methodID,
		OrderID:         orderID,
		TransactionID:   charged.TransactionID,
		Amount:          decimal.RequireFromString("35.00"),
		Currency:        "NZD",
	}))
	assert.True(t, gateway.Refunded(charged.TransactionID))

	err = svc.RefundOrder(context.Background(), paymentdomain.RefundOrderRequest{
		PaymentMethodID: methodID,
		OrderID:         orderID,
		Amount:          decimal.RequireFromString("35.00"),
		Currency:        "NZD",
	})
	assert.ErrorIs(t, err, paymentdomain.ErrMissingTransaction)
}
