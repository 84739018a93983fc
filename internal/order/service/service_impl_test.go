package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/harvestbox/commerce/internal/clock"
	orderdomain "github.com/harvestbox/commerce/internal/order/domain"
	orderrepository "github.com/harvestbox/commerce/internal/order/repository"
	"github.com/harvestbox/commerce/internal/payment/adapters"
	"github.com/harvestbox/commerce/internal/payment/adapters/sandbox"
	paymentrepository "github.com/harvestbox/commerce/internal/payment/repository"
	paymentservice "github.com/harvestbox/commerce/internal/payment/service"
	subscriptionrepository "github.com/harvestbox/commerce/internal/subscription/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	node    *snowflake.Node
	clock   *clock.FakeClock
	svc     orderdomain.Service
	gateway *sandbox.Gateway
	subID   snowflake.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	stripLocking := func(d *gorm.DB) {
		sql := d.Statement.SQL.String()
		if strings.Contains(sql, "FOR UPDATE") {
			newSQL := strings.ReplaceAll(sql, "FOR UPDATE SKIP LOCKED", "")
			newSQL = strings.ReplaceAll(newSQL, "FOR UPDATE", "")
			d.Statement.SQL.Reset()
			d.Statement.SQL.WriteString(newSQL)
		}
	}
	require.NoError(t, db.Callback().Query().Before("gorm:query").Register("sqlite_skip_locked", stripLocking))
	require.NoError(t, db.Callback().Row().Before("gorm:row").Register("sqlite_skip_locked_row", stripLocking))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	statements := []string{
		`CREATE TABLE orders (
			id INTEGER PRIMARY KEY,
			subscription_id INTEGER,
			account_id INTEGER,
			status TEXT,
			status_note TEXT,
			currency TEXT,
			dispatch_date DATETIME,
			subtotal_amount NUMERIC,
			discount_kind TEXT,
			discount_value NUMERIC,
			amount_saved NUMERIC,
			shipping_label TEXT,
			shipping_amount NUMERIC,
			total_amount NUMERIC,
			total_paid NUMERIC,
			transaction_id TEXT,
			payment_date DATETIME,
			receipt_email_sent BOOLEAN,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE order_items (
			id INTEGER PRIMARY KEY,
			order_id INTEGER,
			variant_id INTEGER,
			ref TEXT,
			title TEXT,
			unit_price NUMERIC,
			quantity INTEGER,
			line_total NUMERIC,
			created_at DATETIME
		)`,
		`CREATE TABLE subscriptions (
			id INTEGER PRIMARY KEY,
			account_id INTEGER,
			status TEXT,
			dispatch_frequency INTEGER,
			dispatch_day_of_week INTEGER,
			last_dispatch_date DATETIME,
			next_dispatch_date DATETIME,
			dispatch_count INTEGER DEFAULT 0,
			pause_until_date DATETIME,
			payment_method_id INTEGER,
			shipping_rate_id INTEGER,
			shipping_address TEXT,
			discount_kind TEXT,
			discount_value NUMERIC,
			metadata TEXT,
			activated_at DATETIME,
			canceled_at DATETIME,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE payment_methods (
			id INTEGER PRIMARY KEY,
			account_id INTEGER,
			provider TEXT,
			customer_ref TEXT,
			method_ref TEXT,
			label TEXT,
			active BOOLEAN,
			created_at DATETIME,
			updated_at DATETIME
		)`,
	}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	start := time.Date(2025, time.June, 6, 9, 0, 0, 0, time.UTC)
	fakeClock := clock.NewFakeClock(start)
	gateway := sandbox.New(node)

	paymentSvc := paymentservice.NewService(paymentservice.ServiceParam{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fakeClock,
		Repo:     paymentrepository.Provide(),
		Registry: adapters.NewRegistry(gateway),
	})

	accountID := node.Generate()
	methodID := node.Generate()
	require.NoError(t, db.Exec(
		`INSERT INTO payment_methods (id, account_id, provider, customer_ref, method_ref, label, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		methodID, accountID, "sandbox", "cus_test", "pm_ok", "visa 4242", true, start, start,
	).Error)

	subID := node.Generate()
	require.NoError(t, db.Exec(
		`INSERT INTO subscriptions (id, account_id, status, dispatch_frequency, dispatch_day_of_week, payment_method_id, shipping_rate_id, dispatch_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		subID, accountID, "ACTIVE", 1, 5, methodID, node.Generate(), 0, start, start,
	).Error)

	svc := NewService(ServiceParam{
		DB:               db,
		Log:              zap.NewNop(),
		Clock:            fakeClock,
		Repo:             orderrepository.Provide(),
		SubscriptionRepo: subscriptionrepository.Provide(),
		PaymentSvc:       paymentSvc,
	})

	return &fixture{
		db:      db,
		node:    node,
		clock:   fakeClock,
		svc:     svc,
		gateway: gateway,
		subID:   subID,
	}
}

func (f *fixture) seedOrder(t *testing.T, status orderdomain.OrderStatus, transactionID string) snowflake.ID {
	t.Helper()

	id := f.node.Generate()
	now := f.clock.Now()
	require.NoError(t, f.db.Exec(
		`INSERT INTO orders (
			id, subscription_id, account_id, status, status_note, currency, dispatch_date,
			subtotal_amount, amount_saved, shipping_label, shipping_amount, total_amount, total_paid,
			transaction_id, receipt_email_sent, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, f.subID, f.node.Generate(), status, "", "NZD", now,
		"35.00", "0", "standard", "5.00", "40.00", "40.00",
		transactionID, false, now, now,
	).Error)
	return id
}

func TestFulfillFlow(t *testing.T) {
	f := newFixture(t)
	orderID := f.seedOrder(t, orderdomain.OrderStatusSubmitted, "sandbox_tx_1")

	fulfilled, err := f.svc.Fulfill(context.Background(), orderID.String())
	require.NoError(t, err)
	assert.Equal(t, orderdomain.OrderStatusFulfilled, fulfilled.Status)
	assert.Contains(t, fulfilled.StatusNote, "fulfilled")

	_, err = f.svc.Fulfill(context.Background(), orderID.String())
	assert.ErrorIs(t, err, orderdomain.ErrInvalidTransition)

	reverted, err := f.svc.Unfulfill(context.Background(), orderID.String())
	require.NoError(t, err)
	assert.Equal(t, orderdomain.OrderStatusSubmitted, reverted.Status)
}

func TestRefund_ReversesGatewayPayment(t *testing.T) {
	f := newFixture(t)
	orderID := f.seedOrder(t, orderdomain.OrderStatusSubmitted, "sandbox_tx_2")

	refunded, err := f.svc.Refund(context.Background(), orderID.String())
	require.NoError(t, err)
	assert.Equal(t, orderdomain.OrderStatusRefunded, refunded.Status)
	assert.True(t, f.gateway.Refunded("sandbox_tx_2"))

	// refund is sticky: state survives a reload
	detail, err := f.svc.GetByID(context.Background(), orderID.String())
	require.NoError(t, err)
	assert.Equal(t, orderdomain.OrderStatusRefunded, detail.Order.Status)
}

func TestRefund_RejectsUnpaidOrder(t *testing.T) {
	f := newFixture(t)
	orderID := f.seedOrder(t, orderdomain.OrderStatusSubmitted, "")

	_, err := f.svc.Refund(context.Background(), orderID.String())
	assert.ErrorIs(t, err, orderdomain.ErrInvalidTransition)
	assert.False(t, f.gateway.Refunded(""))
}

func TestCancel_WithAndWithoutRefund(t *testing.T) {
	f := newFixture(t)

	plain := f.seedOrder(t, orderdomain.OrderStatusSubmitted, "sandbox_tx_3")
	cancelled, err := f.svc.Cancel(context.Background(), plain.String(), false)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.OrderStatusCancelled, cancelled.Status)
	assert.False(t, f.gateway.Refunded("sandbox_tx_3"))

	withRefund := f.seedOrder(t, orderdomain.OrderStatusSubmitted, "sandbox_tx_4")
	refunded, err := f.svc.Cancel(context.Background(), withRefund.String(), true)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.OrderStatusRefunded, refunded.Status)
	assert.True(t, f.gateway.Refunded("sandbox_tx_4"))
}

func TestDispatchHistory_NewestFirst(t *testing.T) {
	f := newFixture(t)

	first := f.seedOrder(t, orderdomain.OrderStatusFulfilled, "tx_a")
	f.clock.Advance(7 * 24 * time.Hour)
	second := f.seedOrder(t, orderdomain.OrderStatusSubmitted, "tx_b")

	history, err := f.svc.DispatchHistory(context.Background(), f.subID.String())
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second, history[0].ID)
	assert.Equal(t, first, history[1].ID)
}

func TestGetByID_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetByID(context.Background(), f.node.Generate().String())
	assert.ErrorIs(t, err, orderdomain.ErrOrderNotFound)
}
