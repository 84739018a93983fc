package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/harvestbox/commerce/internal/clock"
	orderdomain "github.com/harvestbox/commerce/internal/order/domain"
	paymentdomain "github.com/harvestbox/commerce/internal/payment/domain"
	subscriptiondomain "github.com/harvestbox/commerce/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	clock            clock.Clock
	repo             orderdomain.Repository
	subscriptionRepo subscriptiondomain.Repository
	paymentSvc       paymentdomain.Service
}

type ServiceParam struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	Clock            clock.Clock
	Repo             orderdomain.Repository
	SubscriptionRepo subscriptiondomain.Repository
	PaymentSvc       paymentdomain.Service
}

func NewService(p ServiceParam) orderdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("order.service"),

		clock:            p.Clock,
		repo:             p.Repo,
		subscriptionRepo: p.SubscriptionRepo,
		paymentSvc:       p.PaymentSvc,
	}
}

func (s *Service) GetByID(ctx context.Context, orderID string) (orderdomain.OrderDetail, error) {
	id, err := s.parseID(orderID)
	if err != nil {
		return orderdomain.OrderDetail{}, err
	}

	order, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return orderdomain.OrderDetail{}, err
	}
	if order == nil {
		return orderdomain.OrderDetail{}, orderdomain.ErrOrderNotFound
	}

	items, err := s.repo.ListItems(ctx, s.db, id)
	if err != nil {
		return orderdomain.OrderDetail{}, err
	}
	return orderdomain.OrderDetail{Order: *order, Items: items}, nil
}

func (s *Service) DispatchHistory(ctx context.Context, subscriptionID string) ([]orderdomain.Order, error) {
	id := strings.TrimSpace(subscriptionID)
	if id == "" {
		return nil, subscriptiondomain.ErrInvalidSubscription
	}
	parsed, err := snowflake.ParseString(id)
	if err != nil || parsed == 0 {
		return nil, subscriptiondomain.ErrInvalidSubscription
	}
	return s.repo.ListBySubscription(ctx, s.db, parsed)
}

func (s *Service) Fulfill(ctx context.Context, orderID string) (orderdomain.Order, error) {
	return s.transition(ctx, orderID, func(order *orderdomain.Order) error {
		return order.Fulfill(s.clock.Now())
	})
}

func (s *Service) Unfulfill(ctx context.Context, orderID string) (orderdomain.Order, error) {
	return s.transition(ctx, orderID, func(order *orderdomain.Order) error {
		return order.Unfulfill(s.clock.Now())
	})
}

// Cancel voids a submitted order. With refund set, the captured payment is
// reversed at the gateway first and the order lands in REFUNDED instead of
// CANCELLED.
func (s *Service) Cancel(ctx context.Context, orderID string, refund bool) (orderdomain.Order, error) {
	if refund {
		return s.Refund(ctx, orderID)
	}
	return s.transition(ctx, orderID, func(order *orderdomain.Order) error {
		return order.Cancel(s.clock.Now())
	})
}

// Refund reverses the payment at the gateway, then persists the state change
// under a row lock. The gateway call happens outside the transaction so the
// lock is never held across the network; the order-derived idempotency key
// makes a re-run after a crash reverse the same refund, not a second one.
func (s *Service) Refund(ctx context.Context, orderID string) (orderdomain.Order, error) {
	id, err := s.parseID(orderID)
	if err != nil {
		return orderdomain.Order{}, err
	}

	order, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return orderdomain.Order{}, err
	}
	if order == nil {
		return orderdomain.Order{}, orderdomain.ErrOrderNotFound
	}

	preview := *order
	if err := preview.Refund(s.clock.Now()); err != nil {
		return orderdomain.Order{}, err
	}

	sub, err := s.subscriptionRepo.FindByID(ctx, s.db, order.SubscriptionID)
	if err != nil {
		return orderdomain.Order{}, err
	}
	if sub == nil {
		return orderdomain.Order{}, subscriptiondomain.ErrSubscriptionNotFound
	}

	if err := s.paymentSvc.RefundOrder(ctx, paymentdomain.RefundOrderRequest{
		PaymentMethodID: sub.PaymentMethodID,
		OrderID:         order.ID,
		TransactionID:   order.TransactionID,
		Amount:          order.TotalPaid,
		Currency:        order.Currency,
	}); err != nil {
		return orderdomain.Order{}, err
	}

	return s.transition(ctx, orderID, func(locked *orderdomain.Order) error {
		return locked.Refund(s.clock.Now())
	})
}

func (s *Service) transition(ctx context.Context, orderID string, mutate func(*orderdomain.Order) error) (orderdomain.Order, error) {
	id, err := s.parseID(orderID)
	if err != nil {
		return orderdomain.Order{}, err
	}

	var out orderdomain.Order
	err = s.db.Transaction(func(tx *gorm.DB) error {
		order, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if order == nil {
			return orderdomain.ErrOrderNotFound
		}

		if err := mutate(order); err != nil {
			return err
		}

		order.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, order); err != nil {
			return err
		}
		out = *order
		return nil
	})
	if err != nil {
		return orderdomain.Order{}, err
	}
	return out, nil
}

func (s *Service) parseID(raw string) (snowflake.ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, orderdomain.ErrInvalidOrder
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return 0, orderdomain.ErrInvalidOrder
	}
	return id, nil
}
