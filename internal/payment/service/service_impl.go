package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/harvestbox/commerce/internal/clock"
	"github.com/harvestbox/commerce/internal/payment/adapters"
	paymentdomain "github.com/harvestbox/commerce/internal/payment/domain"
	"github.com/harvestbox/commerce/internal/pricing"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	repo     paymentdomain.Repository
	registry *adapters.Registry
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock

	Repo     paymentdomain.Repository
	Registry *adapters.Registry
}

func NewService(p ServiceParam) paymentdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("payment.service"),
		genID: p.GenID,
		clock: p.Clock,

		repo:     p.Repo,
		registry: p.Registry,
	}
}

// RegisterMethod stores a charge instrument already set up at the gateway.
// The provider must be one the registry knows, otherwise nothing could ever
// charge the method.
func (s *Service) RegisterMethod(ctx context.Context, req paymentdomain.RegisterMethodRequest) (paymentdomain.PaymentMethod, error) {
	accountID, err := s.parseID(req.AccountID, paymentdomain.ErrInvalidAccount)
	if err != nil {
		return paymentdomain.PaymentMethod{}, err
	}

	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if _, err := s.registry.Gateway(provider); err != nil {
		return paymentdomain.PaymentMethod{}, err
	}

	customerRef := strings.TrimSpace(req.CustomerRef)
	if customerRef == "" {
		return paymentdomain.PaymentMethod{}, paymentdomain.ErrMissingCustomerRef
	}
	methodRef := strings.TrimSpace(req.MethodRef)
	if methodRef == "" {
		return paymentdomain.PaymentMethod{}, paymentdomain.ErrMissingMethodRef
	}

	now := s.clock.Now()
	method := paymentdomain.PaymentMethod{
		ID:          s.genID.Generate(),
		AccountID:   accountID,
		Provider:    provider,
		CustomerRef: customerRef,
		MethodRef:   methodRef,
		Label:       strings.TrimSpace(req.Label),
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, s.db, &method); err != nil {
		return paymentdomain.PaymentMethod{}, err
	}

	s.log.Info("payment method registered",
		zap.Int64("payment_method_id", method.ID.Int64()),
		zap.String("provider", method.Provider),
	)
	return method, nil
}

func (s *Service) ListMethods(ctx context.Context, accountID string) ([]paymentdomain.PaymentMethod, error) {
	id, err := s.parseID(accountID, paymentdomain.ErrInvalidAccount)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByAccount(ctx, s.db, id)
}

// DeactivateMethod retires a method from future charges. Orders already
// captured against it keep their transaction references.
func (s *Service) DeactivateMethod(ctx context.Context, id string) error {
	methodID, err := s.parseID(id, paymentdomain.ErrInvalidPaymentMethod)
	if err != nil {
		return err
	}

	method, err := s.repo.FindByID(ctx, s.db, methodID)
	if err != nil {
		return err
	}
	if method == nil {
		return paymentdomain.ErrPaymentMethodNotFound
	}

	if err := s.repo.Deactivate(ctx, s.db, methodID); err != nil {
		return err
	}

	s.log.Info("payment method deactivated",
		zap.Int64("payment_method_id", methodID.Int64()),
	)
	return nil
}

// ChargeOrder captures the order total against the stored payment method.
// The idempotency key is derived from the order ID, so retrying the same
// order after a crash replays the original charge at the gateway instead of
// capturing a second one.
func (s *Service) ChargeOrder(ctx context.Context, req paymentdomain.ChargeOrderRequest) (paymentdomain.ChargeResult, error) {
	method, gateway, err := s.resolveMethod(ctx, req.PaymentMethodID)
	if err != nil {
		return paymentdomain.ChargeResult{}, err
	}

	result, err := gateway.CreateCharge(ctx, paymentdomain.ChargeRequest{
		AmountMinor:    pricing.MinorUnits(req.Amount),
		Currency:       req.Currency,
		CustomerRef:    method.CustomerRef,
		MethodRef:      method.MethodRef,
		Description:    req.Description,
		IdempotencyKey: "order-" + req.OrderID.String(),
	})
	if err != nil {
		return paymentdomain.ChargeResult{}, err
	}

	s.log.Info("order charged",
		zap.Int64("order_id", req.OrderID.Int64()),
		zap.String("provider", method.Provider),
		zap.String("transaction_id", result.TransactionID),
	)
	return result, nil
}

func (s *Service) RefundOrder(ctx context.Context, req paymentdomain.RefundOrderRequest) error {
	if req.TransactionID == "" {
		return paymentdomain.ErrMissingTransaction
	}

	_, gateway, err := s.resolveMethod(ctx, req.PaymentMethodID)
	if err != nil {
		return err
	}

	if err := gateway.IssueRefund(ctx, paymentdomain.RefundRequest{
		TransactionID:  req.TransactionID,
		AmountMinor:    pricing.MinorUnits(req.Amount),
		Currency:       req.Currency,
		IdempotencyKey: "refund-" + req.OrderID.String(),
	}); err != nil {
		return err
	}

	s.log.Info("order refunded",
		zap.Int64("order_id", req.OrderID.Int64()),
		zap.String("transaction_id", req.TransactionID),
	)
	return nil
}

func (s *Service) resolveMethod(ctx context.Context, id snowflake.ID) (*paymentdomain.PaymentMethod, paymentdomain.Gateway, error) {
	method, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, nil, err
	}
	if method == nil {
		return nil, nil, paymentdomain.ErrPaymentMethodNotFound
	}
	if !method.Active {
		return nil, nil, paymentdomain.ErrInactivePaymentMethod
	}

	gateway, err := s.registry.Gateway(method.Provider)
	if err != nil {
		return nil, nil, err
	}
	return method, gateway, nil
}

func (s *Service) parseID(raw string, invalid error) (snowflake.ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, invalid
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return 0, invalid
	}
	return id, nil
}
