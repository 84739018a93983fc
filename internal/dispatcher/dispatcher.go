// Package dispatcher runs the recurring dispatch cycle. Each run claims the
// subscriptions due on the current date, freezes their baskets into orders,
// charges the stored payment method and advances the cadence to the next
// dispatch date. Subscriptions whose date slipped into the past are reported
// as overdue, never dispatched late.
//
// The charge flow is split into three phases so a crash at any point is
// recoverable on the next run: the order is inserted and committed first, the
// gateway charge happens outside any transaction with an order-derived
// idempotency key, and the payment result plus cadence advance are committed
// last under row locks. A rerun finds the existing order for the dispatch
// date and resumes from wherever the previous run stopped.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/harvestbox/commerce/internal/cadence"
	catalogdomain "github.com/harvestbox/commerce/internal/catalog/domain"
	"github.com/harvestbox/commerce/internal/clock"
	"github.com/harvestbox/commerce/internal/config"
	obsmetrics "github.com/harvestbox/commerce/internal/observability/metrics"
	orderdomain "github.com/harvestbox/commerce/internal/order/domain"
	"github.com/harvestbox/commerce/internal/order/snapshot"
	paymentdomain "github.com/harvestbox/commerce/internal/payment/domain"
	"github.com/harvestbox/commerce/internal/pricing"
	"github.com/harvestbox/commerce/internal/receipt"
	subscriptiondomain "github.com/harvestbox/commerce/internal/subscription/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("dispatcher: missing dependency")

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Holder      *config.DispatchConfigHolder
	Builder     *snapshot.Builder
	SubRepo     subscriptiondomain.Repository
	OrderRepo   orderdomain.Repository
	CatalogRepo catalogdomain.Repository
	PaymentRepo paymentdomain.Repository
	PaymentSvc  paymentdomain.Service
	ReceiptSvc  *receipt.Service `optional:"true"`
	Locker      *RunLocker       `optional:"true"`
	Config      Config           `optional:"true"`
}

type Dispatcher struct {
	db          *gorm.DB
	log         *zap.Logger
	cfg         Config
	genID       *snowflake.Node
	clock       clock.Clock
	holder      *config.DispatchConfigHolder
	builder     *snapshot.Builder
	subRepo     subscriptiondomain.Repository
	orderRepo   orderdomain.Repository
	catalogRepo catalogdomain.Repository
	paymentRepo paymentdomain.Repository
	paymentSvc  paymentdomain.Service
	receiptSvc  *receipt.Service
	locker      *RunLocker
}

func New(p Params) (*Dispatcher, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.Holder == nil ||
		p.Builder == nil || p.SubRepo == nil || p.OrderRepo == nil || p.CatalogRepo == nil ||
		p.PaymentRepo == nil || p.PaymentSvc == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	return &Dispatcher{
		db:          p.DB,
		log:         p.Log.Named("dispatcher").With(zap.String("component", "dispatcher")),
		cfg:         cfg,
		genID:       p.GenID,
		clock:       p.Clock,
		holder:      p.Holder,
		builder:     p.Builder,
		subRepo:     p.SubRepo,
		orderRepo:   p.OrderRepo,
		catalogRepo: p.CatalogRepo,
		paymentRepo: p.PaymentRepo,
		paymentSvc:  p.PaymentSvc,
		receiptSvc:  p.ReceiptSvc,
		locker:      p.Locker,
	}, nil
}

func (d *Dispatcher) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := d.ensureJobRun(ctx, name, batchSize)
	if owner {
		d.logJobStart(run)
	}
	dispMetrics := obsmetrics.Dispatcher()
	dispMetrics.IncJobRun(name)

	err := fn(ctx)
	dispMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run != nil && run.errorCount == 0 {
			run.IncError()
		}
		d.logJobFinish(run)
	}
	if err == nil {
		return nil
	}

	dispMetrics.IncJobError(name, err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		// soft timeout: the next run resumes from the persisted state
		d.log.Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce performs a single dispatch run, guarded by the run lock when one is
// configured.
func (d *Dispatcher) RunOnce(parent context.Context) error {
	token, ok, err := d.locker.TryLock(parent, d.cfg.RunLockTTL)
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		d.log.Info("dispatch run held by another instance, skipping")
		return nil
	}
	defer func() {
		if err := d.locker.Release(parent, token); err != nil {
			d.log.Warn("release run lock", zap.Error(err))
		}
	}()

	return d.runJob(parent, "dispatch", d.cfg.BatchSize, 30*time.Minute, d.DispatchJob)
}

func (d *Dispatcher) RunForever(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := d.clock.Now().Add(d.cfg.RunInterval)
	dispMetrics := obsmetrics.Dispatcher()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			dispMetrics.ObserveRunLoopLag(runLag)
		}
		if err := d.RunOnce(ctx); err != nil {
			d.log.Warn("dispatch run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(d.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DispatchJob claims one batch of subscriptions due today and processes each
// one. Subscriptions whose payment declined stay due for the rest of the day,
// so the job takes a single batch per run rather than looping until the
// backlog drains.
func (d *Dispatcher) DispatchJob(ctx context.Context) error {
	ctx, run, _ := d.ensureJobRun(ctx, "dispatch", d.cfg.BatchSize)
	day := cadence.DateOnly(d.clock.Now())

	// One snapshot per run: a config reload mid-run must not change totals
	// for subscriptions already claimed.
	dispatchCfg := d.holder.Get()
	calc := pricing.NewCalculator(dispatchCfg.MinChargeableAmount())

	var jobErr error
	subscriptions, err := d.claimDueSubscriptions(ctx, day, d.cfg.BatchSize)
	if err != nil {
		jobErr = errors.Join(jobErr, fmt.Errorf("claim due subscriptions: %w", err))
	}

	if len(subscriptions) > 0 {
		var g errgroup.Group
		g.SetLimit(d.cfg.Workers)
		results := make([]error, len(subscriptions))
		for i := range subscriptions {
			sub := subscriptions[i]
			g.Go(func() error {
				results[i] = d.processSubscription(ctx, calc, dispatchCfg, &sub)
				return nil
			})
		}
		_ = g.Wait()

		run.AddProcessed(len(subscriptions))
		for i, procErr := range results {
			if procErr == nil {
				continue
			}
			run.IncError()
			d.log.Error("dispatch failed",
				zap.Int64("subscription_id", subscriptions[i].ID.Int64()),
				zap.Error(procErr),
			)
			jobErr = errors.Join(jobErr, procErr)
		}
	}

	if count, err := d.countOverdue(ctx, day); err != nil {
		jobErr = errors.Join(jobErr, fmt.Errorf("count overdue: %w", err))
	} else {
		obsmetrics.Dispatcher().SetOverdue(int(count))
	}

	return jobErr
}

func (d *Dispatcher) processSubscription(
	ctx context.Context,
	calc pricing.Calculator,
	dispatchCfg config.DispatchConfig,
	sub *subscriptiondomain.Subscription,
) error {
	dispMetrics := obsmetrics.Dispatcher()
	if sub.NextDispatchDate == nil {
		return nil
	}
	dispatchDate := cadence.DateOnly(*sub.NextDispatchDate)
	log := d.log.With(
		zap.Int64("subscription_id", sub.ID.Int64()),
		zap.Time("dispatch_date", dispatchDate),
	)

	// A scheduled date off the subscription's weekday means the stored
	// cadence was corrupted. Re-anchor it instead of charging on a day the
	// customer never agreed to.
	if int(dispatchDate.Weekday()) != sub.DispatchDayOfWeek {
		log.Warn("scheduled date does not match dispatch weekday, re-anchoring",
			zap.Int("dispatch_day_of_week", sub.DispatchDayOfWeek),
		)
		dispMetrics.IncDispatchFailed("cadence_mismatch")
		return d.reanchorCadence(ctx, sub.ID)
	}

	existing, err := d.orderRepo.FindBySubscriptionAndDispatchDate(ctx, d.db, sub.ID, dispatchDate)
	if err != nil {
		return fmt.Errorf("find order for dispatch date: %w", err)
	}
	if existing != nil && existing.PaymentDate != nil {
		// A previous run charged the card and crashed before advancing the
		// cadence. Finish the bookkeeping without touching the gateway.
		if err := d.advanceCadence(ctx, sub.ID, dispatchDate); err != nil {
			return err
		}
		dispMetrics.IncDispatchProcessed(obsmetrics.DispatchOutcomeReplayed)
		d.sendReceipt(ctx, sub, existing.ID)
		return nil
	}

	// An inactive instrument rejects the dispatch before anything is built
	// or charged. The cadence stays put, so the subscription surfaces in the
	// overdue scan until an operator attaches a working method.
	method, err := d.paymentRepo.FindByID(ctx, d.db, sub.PaymentMethodID)
	if err != nil {
		return fmt.Errorf("load payment method: %w", err)
	}
	if method == nil || !method.Active {
		log.Warn("payment method inactive, dispatch rejected")
		dispMetrics.IncDispatchFailed("inactive_payment_method")
		return nil
	}

	var (
		order    *orderdomain.Order
		replayed bool
	)
	if existing != nil {
		// Unpaid order from an interrupted run. Reuse it; the idempotency key
		// makes the gateway replay the original charge if it went through.
		order = existing
		replayed = true
	} else {
		var items []orderdomain.OrderItem
		order, items, err = d.buildOrder(ctx, calc, dispatchCfg, sub, dispatchDate)
		if errors.Is(err, snapshot.ErrEmptyBasket) {
			// Nothing shippable this cycle. No order, no charge, and the
			// dispatch date stays in place so the subscription shows up as
			// overdue until someone restocks the basket.
			log.Info("basket empty, skipping dispatch cycle")
			dispMetrics.IncDispatchProcessed(obsmetrics.DispatchOutcomeEmptyBasket)
			return nil
		}
		if err != nil {
			return fmt.Errorf("build order: %w", err)
		}
		if err := d.db.Transaction(func(tx *gorm.DB) error {
			if err := d.orderRepo.Insert(ctx, tx, order); err != nil {
				return err
			}
			return d.orderRepo.InsertItems(ctx, tx, items)
		}); err != nil {
			return fmt.Errorf("persist order: %w", err)
		}
	}

	if order.TotalAmount.IsZero() {
		now := d.clock.Now()
		if err := d.db.Transaction(func(tx *gorm.DB) error {
			locked, err := d.orderRepo.FindByIDForUpdate(ctx, tx, order.ID)
			if err != nil {
				return err
			}
			if locked == nil {
				return orderdomain.ErrOrderNotFound
			}
			locked.MarkPaid(now, "", decimal.Zero)
			locked.AppendStatusNote(now, "discount covered the full total, no charge made")
			locked.UpdatedAt = now
			if err := d.orderRepo.Update(ctx, tx, locked); err != nil {
				return err
			}
			return d.advanceCadenceTx(ctx, tx, sub.ID, dispatchDate)
		}); err != nil {
			return err
		}
		log.Info("dispatch total fully discounted, no charge made")
		dispMetrics.IncDispatchProcessed(obsmetrics.DispatchOutcomeZeroTotal)
		d.sendReceipt(ctx, sub, order.ID)
		return nil
	}

	// The charge runs outside any transaction so a database lock is never
	// held across the network call.
	result, err := d.paymentSvc.ChargeOrder(ctx, paymentdomain.ChargeOrderRequest{
		PaymentMethodID: sub.PaymentMethodID,
		OrderID:         order.ID,
		Amount:          order.TotalAmount,
		Currency:        order.Currency,
		Description:     "Dispatch " + dispatchDate.Format("2006-01-02"),
	})
	if err != nil {
		var payErr *paymentdomain.PaymentError
		if errors.As(err, &payErr) {
			// Business decline. The order is marked FAILURE and the cadence
			// stays put: the engine never retries on a later date, the
			// subscription goes overdue until an operator reacts.
			now := d.clock.Now()
			if markErr := d.db.Transaction(func(tx *gorm.DB) error {
				locked, err := d.orderRepo.FindByIDForUpdate(ctx, tx, order.ID)
				if err != nil {
					return err
				}
				if locked == nil {
					return orderdomain.ErrOrderNotFound
				}
				locked.MarkFailed(now, payErr.Error())
				locked.UpdatedAt = now
				return d.orderRepo.Update(ctx, tx, locked)
			}); markErr != nil {
				return markErr
			}
			log.Warn("payment declined",
				zap.String("provider", payErr.Provider),
				zap.String("code", payErr.Code),
			)
			dispMetrics.IncDispatchProcessed(obsmetrics.DispatchOutcomeDeclined)
			dispMetrics.IncDispatchFailed("payment_declined")
			return nil
		}
		return fmt.Errorf("charge order %s: %w", order.ID.String(), err)
	}

	now := d.clock.Now()
	if err := d.db.Transaction(func(tx *gorm.DB) error {
		locked, err := d.orderRepo.FindByIDForUpdate(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			return orderdomain.ErrOrderNotFound
		}
		locked.MarkPaid(now, result.TransactionID, locked.TotalAmount)
		locked.UpdatedAt = now
		if err := d.orderRepo.Update(ctx, tx, locked); err != nil {
			return err
		}
		return d.advanceCadenceTx(ctx, tx, sub.ID, dispatchDate)
	}); err != nil {
		return fmt.Errorf("record payment: %w", err)
	}

	if replayed {
		dispMetrics.IncDispatchProcessed(obsmetrics.DispatchOutcomeReplayed)
	} else {
		dispMetrics.IncDispatchProcessed(obsmetrics.DispatchOutcomeCharged)
	}
	log.Info("dispatch charged",
		zap.String("transaction_id", result.TransactionID),
		zap.String("total", order.TotalAmount.StringFixed(2)),
	)
	d.sendReceipt(ctx, sub, order.ID)
	return nil
}

func (d *Dispatcher) buildOrder(
	ctx context.Context,
	calc pricing.Calculator,
	dispatchCfg config.DispatchConfig,
	sub *subscriptiondomain.Subscription,
	dispatchDate time.Time,
) (*orderdomain.Order, []orderdomain.OrderItem, error) {
	lineItems, err := d.subRepo.ListLineItems(ctx, d.db, sub.ID)
	if err != nil {
		return nil, nil, err
	}
	if len(lineItems) == 0 {
		return nil, nil, snapshot.ErrEmptyBasket
	}

	variantIDs := make([]snowflake.ID, 0, len(lineItems))
	for _, line := range lineItems {
		variantIDs = append(variantIDs, line.VariantID)
	}
	variants, err := d.catalogRepo.FindVariantsByIDs(ctx, d.db, variantIDs)
	if err != nil {
		return nil, nil, err
	}

	rate, err := d.catalogRepo.FindShippingRateByID(ctx, d.db, sub.ShippingRateID)
	if err != nil {
		return nil, nil, err
	}
	if rate == nil {
		// rate removed from the catalog after the subscription was created
		rate = &catalogdomain.ShippingRate{
			Label:  "standard",
			Rate:   dispatchCfg.DefaultShippingRateAmount(),
			Active: true,
		}
	}

	return d.builder.Build(sub, lineItems, variants, rate, calc, dispatchCfg.Currency, dispatchDate, d.clock.Now())
}

func (d *Dispatcher) advanceCadence(ctx context.Context, subscriptionID snowflake.ID, dispatchDate time.Time) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		return d.advanceCadenceTx(ctx, tx, subscriptionID, dispatchDate)
	})
}

// advanceCadenceTx moves the subscription's schedule past dispatchDate. The
// row is re-read under lock and left untouched when another run already
// advanced it, which makes the advance idempotent across replicas and reruns.
func (d *Dispatcher) advanceCadenceTx(ctx context.Context, tx *gorm.DB, subscriptionID snowflake.ID, dispatchDate time.Time) error {
	locked, err := d.subRepo.FindByIDForUpdate(ctx, tx, subscriptionID)
	if err != nil {
		return err
	}
	if locked == nil {
		return subscriptiondomain.ErrSubscriptionNotFound
	}
	if locked.NextDispatchDate == nil || !cadence.DateOnly(*locked.NextDispatchDate).Equal(dispatchDate) {
		return nil
	}

	next, err := cadence.NextDispatchDate(dispatchDate, time.Weekday(locked.DispatchDayOfWeek), locked.DispatchFrequency, false)
	if err != nil {
		return err
	}

	now := d.clock.Now()
	dispatched := dispatchDate
	locked.LastDispatchDate = &dispatched
	locked.NextDispatchDate = &next
	locked.DispatchCount++
	if locked.PauseUntilDate != nil && !locked.PauseUntilDate.After(dispatchDate) {
		locked.PauseUntilDate = nil
	}
	locked.UpdatedAt = now
	return d.subRepo.Update(ctx, tx, locked)
}

// reanchorCadence recomputes the next dispatch date from today for a
// subscription whose schedule fell off its weekday.
func (d *Dispatcher) reanchorCadence(ctx context.Context, subscriptionID snowflake.ID) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		locked, err := d.subRepo.FindByIDForUpdate(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		if locked == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}

		next, err := cadence.NextDispatchDate(d.clock.Now(), time.Weekday(locked.DispatchDayOfWeek), locked.DispatchFrequency, false)
		if err != nil {
			return err
		}
		locked.NextDispatchDate = &next
		locked.UpdatedAt = d.clock.Now()
		return d.subRepo.Update(ctx, tx, locked)
	})
}

// sendReceipt delivers the receipt email after the payment has committed.
// Delivery is best effort: a failed send is logged and retried implicitly the
// next time the order is replayed, never rolled into the dispatch outcome.
func (d *Dispatcher) sendReceipt(ctx context.Context, sub *subscriptiondomain.Subscription, orderID snowflake.ID) {
	if d.receiptSvc == nil {
		return
	}
	order, err := d.orderRepo.FindByID(ctx, d.db, orderID)
	if err != nil || order == nil {
		d.log.Warn("load order for receipt", zap.Int64("order_id", orderID.Int64()), zap.Error(err))
		return
	}
	items, err := d.orderRepo.ListItems(ctx, d.db, orderID)
	if err != nil {
		d.log.Warn("load items for receipt", zap.Int64("order_id", orderID.Int64()), zap.Error(err))
		return
	}
	if err := d.receiptSvc.SendOrderReceipt(ctx, sub, order, items); err != nil {
		d.log.Warn("receipt delivery failed", zap.Int64("order_id", orderID.Int64()), zap.Error(err))
	}
}
