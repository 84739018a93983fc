package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/harvestbox/commerce/internal/cadence"
	catalogdomain "github.com/harvestbox/commerce/internal/catalog/domain"
	"github.com/harvestbox/commerce/internal/clock"
	subscriptiondomain "github.com/harvestbox/commerce/internal/subscription/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID       *snowflake.Node
	clock       clock.Clock
	repo        subscriptiondomain.Repository
	catalogRepo catalogdomain.Repository
}

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        subscriptiondomain.Repository
	CatalogRepo catalogdomain.Repository
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("subscription.service"),

		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		catalogRepo: p.CatalogRepo,
	}
}

func (s *Service) Create(ctx context.Context, req subscriptiondomain.CreateSubscriptionRequest) (subscriptiondomain.Subscription, error) {
	accountID, err := s.parseID(req.AccountID, subscriptiondomain.ErrInvalidAccount)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	paymentMethodID, err := s.parseID(req.PaymentMethodID, subscriptiondomain.ErrInvalidPaymentMethod)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	shippingRateID, err := s.parseID(req.ShippingRateID, subscriptiondomain.ErrInvalidShippingRate)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	if req.DispatchFrequency < 1 || !cadence.ValidWeekday(req.DispatchDayOfWeek) {
		return subscriptiondomain.Subscription{}, cadence.ErrInvalidCadence
	}
	if err := validateDiscount(req.DiscountKind, req.DiscountValue); err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if len(req.Items) == 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrMissingLineItems
	}

	now := s.clock.Now()
	items := make([]subscriptiondomain.SubscriptionLineItem, 0, len(req.Items))
	variantIDs := make([]snowflake.ID, 0, len(req.Items))
	for _, item := range req.Items {
		variantID, err := s.parseID(item.VariantID, subscriptiondomain.ErrInvalidVariant)
		if err != nil {
			return subscriptiondomain.Subscription{}, err
		}
		if item.Quantity < 1 {
			return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidQuantity
		}
		variantIDs = append(variantIDs, variantID)
		items = append(items, subscriptiondomain.SubscriptionLineItem{
			ID:        s.genID.Generate(),
			VariantID: variantID,
			Quantity:  item.Quantity,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	if err := s.checkVariants(ctx, variantIDs); err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	rate, err := s.catalogRepo.FindShippingRateByID(ctx, s.db, shippingRateID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if rate == nil || !rate.Active {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidShippingRate
	}

	next, err := cadence.NextDispatchDate(now, time.Weekday(req.DispatchDayOfWeek), req.DispatchFrequency, false)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	subscription := subscriptiondomain.Subscription{
		ID:                s.genID.Generate(),
		AccountID:         accountID,
		Status:            subscriptiondomain.SubscriptionStatusDraft,
		DispatchFrequency: req.DispatchFrequency,
		DispatchDayOfWeek: req.DispatchDayOfWeek,
		NextDispatchDate:  &next,
		PaymentMethodID:   paymentMethodID,
		ShippingRateID:    shippingRateID,
		ShippingAddress:   req.ShippingAddress,
		DiscountKind:      req.DiscountKind,
		DiscountValue:     req.DiscountValue,
		Metadata:          req.Metadata,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	for i := range items {
		items[i].SubscriptionID = subscription.ID
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &subscription); err != nil {
			return err
		}
		return s.repo.InsertLineItems(ctx, tx, items)
	})
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	s.log.Info("subscription created",
		zap.Int64("subscription_id", subscription.ID.Int64()),
		zap.Int64("account_id", accountID.Int64()),
		zap.Time("next_dispatch_date", next),
	)
	return subscription, nil
}

// Activate promotes a draft to active and re-anchors the next dispatch date
// to the first matching weekday strictly after today.
func (s *Service) Activate(ctx context.Context, subscriptionID string) (subscriptiondomain.Subscription, error) {
	return s.transition(ctx, subscriptionID, func(sub *subscriptiondomain.Subscription) error {
		if sub.Status != subscriptiondomain.SubscriptionStatusDraft {
			return subscriptiondomain.ErrInvalidTransition
		}

		now := s.clock.Now()
		next, err := cadence.NextDispatchDate(now, time.Weekday(sub.DispatchDayOfWeek), sub.DispatchFrequency, false)
		if err != nil {
			return err
		}

		sub.Status = subscriptiondomain.SubscriptionStatusActive
		sub.ActivatedAt = &now
		sub.NextDispatchDate = &next
		return nil
	})
}

func (s *Service) Pause(ctx context.Context, req subscriptiondomain.PauseSubscriptionRequest) (subscriptiondomain.Subscription, error) {
	return s.transition(ctx, req.SubscriptionID, func(sub *subscriptiondomain.Subscription) error {
		if sub.Status != subscriptiondomain.SubscriptionStatusActive {
			return subscriptiondomain.ErrInvalidTransition
		}

		until := cadence.DateOnly(req.PauseUntil)
		if !until.After(cadence.DateOnly(s.clock.Now())) {
			return subscriptiondomain.ErrInvalidPauseDate
		}

		sub.PauseUntilDate = &until
		return nil
	})
}

// Resume lifts a pause early. The scheduled dispatch date is kept when the
// pause never reached it; otherwise the cadence restarts on the first
// matching weekday strictly after the pause.
func (s *Service) Resume(ctx context.Context, subscriptionID string) (subscriptiondomain.Subscription, error) {
	return s.transition(ctx, subscriptionID, func(sub *subscriptiondomain.Subscription) error {
		if sub.Status != subscriptiondomain.SubscriptionStatusActive {
			return subscriptiondomain.ErrInvalidTransition
		}
		if sub.PauseUntilDate == nil {
			return subscriptiondomain.ErrSubscriptionNotPaused
		}

		if sub.NextDispatchDate != nil {
			next := cadence.NextDispatchAfterPause(*sub.NextDispatchDate, *sub.PauseUntilDate, time.Weekday(sub.DispatchDayOfWeek))
			sub.NextDispatchDate = &next
		}
		sub.PauseUntilDate = nil
		return nil
	})
}

func (s *Service) Cancel(ctx context.Context, subscriptionID string) (subscriptiondomain.Subscription, error) {
	return s.transition(ctx, subscriptionID, func(sub *subscriptiondomain.Subscription) error {
		if sub.Status == subscriptiondomain.SubscriptionStatusCanceled {
			return subscriptiondomain.ErrInvalidTransition
		}

		now := s.clock.Now()
		sub.Status = subscriptiondomain.SubscriptionStatusCanceled
		sub.CanceledAt = &now
		sub.NextDispatchDate = nil
		sub.PauseUntilDate = nil
		return nil
	})
}

func (s *Service) UpdateCadence(ctx context.Context, req subscriptiondomain.UpdateCadenceRequest) (subscriptiondomain.Subscription, error) {
	if req.DispatchFrequency < 1 || !cadence.ValidWeekday(req.DispatchDayOfWeek) {
		return subscriptiondomain.Subscription{}, cadence.ErrInvalidCadence
	}

	return s.transition(ctx, req.SubscriptionID, func(sub *subscriptiondomain.Subscription) error {
		if sub.Status == subscriptiondomain.SubscriptionStatusCanceled {
			return subscriptiondomain.ErrInvalidTransition
		}

		sub.DispatchFrequency = req.DispatchFrequency
		sub.DispatchDayOfWeek = req.DispatchDayOfWeek
		if sub.NextDispatchDate != nil {
			next, err := cadence.NextDispatchDate(s.clock.Now(), time.Weekday(req.DispatchDayOfWeek), req.DispatchFrequency, false)
			if err != nil {
				return err
			}
			sub.NextDispatchDate = &next
		}
		return nil
	})
}

func (s *Service) ReplaceLineItems(ctx context.Context, req subscriptiondomain.ReplaceLineItemsRequest) (subscriptiondomain.Subscription, error) {
	id, err := s.parseID(req.SubscriptionID, subscriptiondomain.ErrInvalidSubscription)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if len(req.Items) == 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrMissingLineItems
	}

	now := s.clock.Now()
	items := make([]subscriptiondomain.SubscriptionLineItem, 0, len(req.Items))
	variantIDs := make([]snowflake.ID, 0, len(req.Items))
	for _, item := range req.Items {
		variantID, err := s.parseID(item.VariantID, subscriptiondomain.ErrInvalidVariant)
		if err != nil {
			return subscriptiondomain.Subscription{}, err
		}
		if item.Quantity < 1 {
			return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidQuantity
		}
		variantIDs = append(variantIDs, variantID)
		items = append(items, subscriptiondomain.SubscriptionLineItem{
			ID:             s.genID.Generate(),
			SubscriptionID: id,
			VariantID:      variantID,
			Quantity:       item.Quantity,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}

	if err := s.checkVariants(ctx, variantIDs); err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	var out subscriptiondomain.Subscription
	err = s.db.Transaction(func(tx *gorm.DB) error {
		sub, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if sub == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		if sub.Status == subscriptiondomain.SubscriptionStatusCanceled {
			return subscriptiondomain.ErrInvalidTransition
		}
		if err := s.repo.ReplaceLineItems(ctx, tx, id, items); err != nil {
			return err
		}
		out = *sub
		return nil
	})
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	return out, nil
}

func (s *Service) GetByID(ctx context.Context, subscriptionID string) (subscriptiondomain.Subscription, error) {
	id, err := s.parseID(subscriptionID, subscriptiondomain.ErrInvalidSubscription)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	sub, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if sub == nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}
	return *sub, nil
}

func (s *Service) ListByAccount(ctx context.Context, accountID string) ([]subscriptiondomain.Subscription, error) {
	id, err := s.parseID(accountID, subscriptiondomain.ErrInvalidAccount)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByAccount(ctx, s.db, id)
}

func (s *Service) ListLineItems(ctx context.Context, subscriptionID string) ([]subscriptiondomain.SubscriptionLineItem, error) {
	id, err := s.parseID(subscriptionID, subscriptiondomain.ErrInvalidSubscription)
	if err != nil {
		return nil, err
	}
	return s.repo.ListLineItems(ctx, s.db, id)
}

// transition loads the subscription under a row lock, applies mutate and
// persists the result in one transaction.
func (s *Service) transition(ctx context.Context, subscriptionID string, mutate func(*subscriptiondomain.Subscription) error) (subscriptiondomain.Subscription, error) {
	id, err := s.parseID(subscriptionID, subscriptiondomain.ErrInvalidSubscription)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	var out subscriptiondomain.Subscription
	err = s.db.Transaction(func(tx *gorm.DB) error {
		sub, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if sub == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}

		if err := mutate(sub); err != nil {
			return err
		}

		sub.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, sub); err != nil {
			return err
		}
		out = *sub
		return nil
	})
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	return out, nil
}

func (s *Service) checkVariants(ctx context.Context, ids []snowflake.ID) error {
	variants, err := s.catalogRepo.FindVariantsByIDs(ctx, s.db, ids)
	if err != nil {
		return err
	}

	active := make(map[snowflake.ID]bool, len(variants))
	for _, v := range variants {
		active[v.ID] = v.Active
	}
	for _, id := range ids {
		if !active[id] {
			return subscriptiondomain.ErrInvalidVariant
		}
	}
	return nil
}

func (s *Service) parseID(raw string, invalid error) (snowflake.ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, invalid
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return 0, invalid
	}
	return id, nil
}

func validateDiscount(kind *subscriptiondomain.DiscountKind, value *decimal.Decimal) error {
	if kind == nil && value == nil {
		return nil
	}
	if kind == nil || value == nil {
		return subscriptiondomain.ErrInvalidDiscount
	}
	if value.IsNegative() {
		return subscriptiondomain.ErrInvalidDiscount
	}

	switch *kind {
	case subscriptiondomain.DiscountKindPercentage:
		if value.GreaterThan(decimal.NewFromInt(100)) {
			return subscriptiondomain.ErrInvalidDiscount
		}
	case subscriptiondomain.DiscountKindFixedAmount:
	default:
		return subscriptiondomain.ErrInvalidDiscount
	}
	return nil
}
