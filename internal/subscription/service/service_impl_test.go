package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	catalogrepository "github.com/harvestbox/commerce/internal/catalog/repository"
	"github.com/harvestbox/commerce/internal/clock"
	subscriptiondomain "github.com/harvestbox/commerce/internal/subscription/domain"
	subscriptionrepository "github.com/harvestbox/commerce/internal/subscription/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	// SQLite support hack: remove FOR UPDATE clauses
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
		`CREATE TABLE subscription_line_items (
			id INTEGER PRIMARY KEY,
			subscription_id INTEGER,
			variant_id INTEGER,
			quantity INTEGER,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE product_variants (
			id INTEGER PRIMARY KEY,
			product_id INTEGER,
			ref TEXT,
			title TEXT,
			price NUMERIC,
			active BOOLEAN,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE shipping_rates (
			id INTEGER PRIMARY KEY,
			label TEXT,
			description TEXT,
			rate NUMERIC,
			active BOOLEAN,
			created_at DATETIME,
			updated_at DATETIME
		)`,
	}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}

	return db
}

type fixture struct {
	db      *gorm.DB
	node    *snowflake.Node
	clock   *clock.FakeClock
	svc     subscriptiondomain.Service
	variant snowflake.ID
	rate    snowflake.ID
}

func newFixture(t *testing.T, start time.Time) *fixture {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fakeClock := clock.NewFakeClock(start)

	variantID := node.Generate()
	require.NoError(t, db.Exec(
		`INSERT INTO product_variants (id, product_id, ref, title, price, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		variantID, node.Generate(), "VEG-BOX-L", "Large Veg Box", "35.00", true, start, start,
	).Error)

	rateID := node.Generate()
	require.NoError(t, db.Exec(
		`INSERT INTO shipping_rates (id, label, description, rate, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rateID, "standard", "Standard courier", "5.00", true, start, start,
	).Error)

	svc := NewService(ServiceParam{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       fakeClock,
		Repo:        subscriptionrepository.Provide(),
		CatalogRepo: catalogrepository.Provide(),
	})

	return &fixture{
		db:      db,
		node:    node,
		clock:   fakeClock,
		svc:     svc,
		variant: variantID,
		rate:    rateID,
	}
}

func (f *fixture) createActive(t *testing.T, frequency int, weekday time.Weekday) subscriptiondomain.Subscription {
	t.Helper()

	created, err := f.svc.Create(context.Background(), subscriptiondomain.CreateSubscriptionRequest{
		AccountID:         f.node.Generate().String(),
		DispatchFrequency: frequency,
		DispatchDayOfWeek: int(weekday),
		PaymentMethodID:   f.node.Generate().String(),
		ShippingRateID:    f.rate.String(),
		Items: []subscriptiondomain.CreateLineItemRequest{
			{VariantID: f.variant.String(), Quantity: 1},
		},
	})
	require.NoError(t, err)

	activated, err := f.svc.Activate(context.Background(), created.ID.String())
	require.NoError(t, err)
	return activated
}

func TestCreate_DraftWithNextDispatchDate(t *testing.T) {
	// 2025-06-02 is a Monday
	start := time.Date(2025, time.June, 2, 10, 0, 0, 0, time.UTC)
	f := newFixture(t, start)

	created, err := f.svc.Create(context.Background(), subscriptiondomain.CreateSubscriptionRequest{
		AccountID:         f.node.Generate().String(),
		DispatchFrequency: 2,
		DispatchDayOfWeek: int(time.Wednesday),
		PaymentMethodID:   f.node.Generate().String(),
		ShippingRateID:    f.rate.String(),
		Items: []subscriptiondomain.CreateLineItemRequest{
			{VariantID: f.variant.String(), Quantity: 2},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, subscriptiondomain.SubscriptionStatusDraft, created.Status)
	require.NotNil(t, created.NextDispatchDate)
	// next Wednesday is Jun 4, plus one further week for the fortnightly cadence
	assert.Equal(t, time.Date(2025, time.June, 11, 0, 0, 0, 0, time.UTC), *created.NextDispatchDate)

	items, err := f.svc.ListLineItems(context.Background(), created.ID.String())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, f.variant, items[0].VariantID)
	assert.Equal(t, 2, items[0].Quantity)
}

func TestCreate_Validation(t *testing.T) {
	start := time.Date(2025, time.June, 2, 10, 0, 0, 0, time.UTC)
	f := newFixture(t, start)
	account := f.node.Generate().String()
	method := f.node.Generate().String()

	base := subscriptiondomain.CreateSubscriptionRequest{
		AccountID:         account,
		DispatchFrequency: 1,
		DispatchDayOfWeek: int(time.Friday),
		PaymentMethodID:   method,
		ShippingRateID:    f.rate.String(),
		Items: []subscriptiondomain.CreateLineItemRequest{
			{VariantID: f.variant.String(), Quantity: 1},
		},
	}

	t.Run("missing items", func(t *testing.T) {
		req := base
		req.Items = nil
		_, err := f.svc.Create(context.Background(), req)
		assert.ErrorIs(t, err, subscriptiondomain.ErrMissingLineItems)
	})

	t.Run("zero quantity", func(t *testing.T) {
		req := base
		req.Items = []subscriptiondomain.CreateLineItemRequest{{VariantID: f.variant.String(), Quantity: 0}}
		_, err := f.svc.Create(context.Background(), req)
		assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidQuantity)
	})

	t.Run("unknown variant", func(t *testing.T) {
		req := base
		req.Items = []subscriptiondomain.CreateLineItemRequest{{VariantID: f.node.Generate().String(), Quantity: 1}}
		_, err := f.svc.Create(context.Background(), req)
		assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidVariant)
	})

	t.Run("unknown shipping rate", func(t *testing.T) {
		req := base
		req.ShippingRateID = f.node.Generate().String()
		_, err := f.svc.Create(context.Background(), req)
		assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidShippingRate)
	})

	t.Run("discount value without kind", func(t *testing.T) {
		req := base
		v := decimal.NewFromInt(10)
		req.DiscountValue = &v
		_, err := f.svc.Create(context.Background(), req)
		assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidDiscount)
	})

	t.Run("percentage above hundred", func(t *testing.T) {
		req := base
		kind := subscriptiondomain.DiscountKindPercentage
		v := decimal.NewFromInt(120)
		req.DiscountKind = &kind
		req.DiscountValue = &v
		_, err := f.svc.Create(context.Background(), req)
		assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidDiscount)
	})
}

func TestActivate_OnlyFromDraft(t *testing.T) {
	start := time.Date(2025, time.June, 2, 10, 0, 0, 0, time.UTC)
	f := newFixture(t, start)

	sub := f.createActive(t, 1, time.Friday)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusActive, sub.Status)
	require.NotNil(t, sub.ActivatedAt)

	_, err := f.svc.Activate(context.Background(), sub.ID.String())
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidTransition)
}

func TestPause_RequiresFutureDate(t *testing.T) {
	start := time.Date(2025, time.June, 2, 10, 0, 0, 0, time.UTC)
	f := newFixture(t, start)
	sub := f.createActive(t, 1, time.Friday)

	_, err := f.svc.Pause(context.Background(), subscriptiondomain.PauseSubscriptionRequest{
		SubscriptionID: sub.ID.String(),
		PauseUntil:     start, // same day, not strictly in the future
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidPauseDate)

	paused, err := f.svc.Pause(context.Background(), subscriptiondomain.PauseSubscriptionRequest{
		SubscriptionID: sub.ID.String(),
		PauseUntil:     start.AddDate(0, 0, 3),
	})
	require.NoError(t, err)
	require.NotNil(t, paused.PauseUntilDate)
	assert.Equal(t, time.Date(2025, time.June, 5, 0, 0, 0, 0, time.UTC), *paused.PauseUntilDate)
}

func TestResume_ShortPauseKeepsScheduledDate(t *testing.T) {
	start := time.Date(2025, time.June, 2, 10, 0, 0, 0, time.UTC)
	f := newFixture(t, start)
	sub := f.createActive(t, 1, time.Friday)
	require.NotNil(t, sub.NextDispatchDate)
	scheduled := *sub.NextDispatchDate // Friday Jun 6

	_, err := f.svc.Pause(context.Background(), subscriptiondomain.PauseSubscriptionRequest{
		SubscriptionID: sub.ID.String(),
		PauseUntil:     start.AddDate(0, 0, 2), // Jun 4, before the scheduled Friday
	})
	require.NoError(t, err)

	resumed, err := f.svc.Resume(context.Background(), sub.ID.String())
	require.NoError(t, err)
	assert.Nil(t, resumed.PauseUntilDate)
	require.NotNil(t, resumed.NextDispatchDate)
	assert.Equal(t, scheduled, *resumed.NextDispatchDate)
}

func TestResume_LongPauseRecomputesDate(t *testing.T) {
	start := time.Date(2025, time.June, 2, 10, 0, 0, 0, time.UTC)
	f := newFixture(t, start)
	sub := f.createActive(t, 1, time.Friday)

	_, err := f.svc.Pause(context.Background(), subscriptiondomain.PauseSubscriptionRequest{
		SubscriptionID: sub.ID.String(),
		PauseUntil:     start.AddDate(0, 0, 10), // Jun 12, past the scheduled Friday Jun 6
	})
	require.NoError(t, err)

	resumed, err := f.svc.Resume(context.Background(), sub.ID.String())
	require.NoError(t, err)
	require.NotNil(t, resumed.NextDispatchDate)
	// first Friday strictly after Jun 12
	assert.Equal(t, time.Date(2025, time.June, 13, 0, 0, 0, 0, time.UTC), *resumed.NextDispatchDate)
}

func TestResume_NotPaused(t *testing.T) {
	start := time.Date(2025, time.June, 2, 10, 0, 0, 0, time.UTC)
	f := newFixture(t, start)
	sub := f.createActive(t, 1, time.Friday)

	_, err := f.svc.Resume(context.Background(), sub.ID.String())
	assert.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionNotPaused)
}

func TestCancel_ClearsScheduleAndIsTerminal(t *testing.T) {
	start := time.Date(2025, time.June, 2, 10, 0, 0, 0, time.UTC)
	f := newFixture(t, start)
	sub := f.createActive(t, 1, time.Friday)

	canceled, err := f.svc.Cancel(context.Background(), sub.ID.String())
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusCanceled, canceled.Status)
	assert.Nil(t, canceled.NextDispatchDate)
	require.NotNil(t, canceled.CanceledAt)

	_, err = f.svc.Cancel(context.Background(), sub.ID.String())
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidTransition)

	_, err = f.svc.Pause(context.Background(), subscriptiondomain.PauseSubscriptionRequest{
		SubscriptionID: sub.ID.String(),
		PauseUntil:     start.AddDate(0, 0, 3),
	})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidTransition)
}

func TestUpdateCadence_RecomputesNextDispatch(t *testing.T) {
	start := time.Date(2025, time.June, 2, 10, 0, 0, 0, time.UTC)
	f := newFixture(t, start)
	sub := f.createActive(t, 1, time.Friday)

	updated, err := f.svc.UpdateCadence(context.Background(), subscriptiondomain.UpdateCadenceRequest{
		SubscriptionID:    sub.ID.String(),
		DispatchFrequency: 2,
		DispatchDayOfWeek: int(time.Tuesday),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.DispatchFrequency)
	assert.Equal(t, int(time.Tuesday), updated.DispatchDayOfWeek)
	require.NotNil(t, updated.NextDispatchDate)
	// next Tuesday is Jun 3, plus one further week
	assert.Equal(t, time.Date(2025, time.June, 10, 0, 0, 0, 0, time.UTC), *updated.NextDispatchDate)
}

func TestListByAccount(t *testing.T) {
	start := time.Date(2025, time.June, 2, 10, 0, 0, 0, time.UTC)
	f := newFixture(t, start)

	account := f.node.Generate()
	for i := 0; i < 2; i++ {
		_, err := f.svc.Create(context.Background(), subscriptiondomain.CreateSubscriptionRequest{
			AccountID:         account.String(),
			DispatchFrequency: 1,
			DispatchDayOfWeek: int(time.Monday),
			PaymentMethodID:   f.node.Generate().String(),
			ShippingRateID:    f.rate.String(),
			Items: []subscriptiondomain.CreateLineItemRequest{
				{VariantID: f.variant.String(), Quantity: 1},
			},
		})
		require.NoError(t, err)
	}

	subs, err := f.svc.ListByAccount(context.Background(), account.String())
	require.NoError(t, err)
	assert.Len(t, subs, 2)
}
