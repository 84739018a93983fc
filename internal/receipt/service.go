// Package receipt emails paid customers a PDF receipt for each dispatch.
package receipt

import (
	"context"
	"fmt"
	"strings"

	"github.com/harvestbox/commerce/internal/clock"
	orderdomain "github.com/harvestbox/commerce/internal/order/domain"
	"github.com/harvestbox/commerce/internal/providers/email"
	"github.com/harvestbox/commerce/internal/providers/pdf"
	subscriptiondomain "github.com/harvestbox/commerce/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	clock    clock.Clock
	repo     orderdomain.Repository
	renderer *pdf.ReceiptRenderer
	email    email.Provider
}

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Repo     orderdomain.Repository
	Renderer *pdf.ReceiptRenderer
	Email    email.Provider
}

func NewService(p ServiceParam) *Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("receipt.service"),

		clock:    p.Clock,
		repo:     p.Repo,
		renderer: p.Renderer,
		email:    p.Email,
	}
}

var Module = fx.Module("receipt",
	fx.Provide(NewService),
)

// SendOrderReceipt renders and emails the receipt for a paid order, then
// records the send on the order. Orders without a recipient email in the
// subscription metadata are skipped. Already-sent orders are skipped, so a
// re-run after a crash cannot mail the customer twice.
func (s *Service) SendOrderReceipt(ctx context.Context, sub *subscriptiondomain.Subscription, order *orderdomain.Order, items []orderdomain.OrderItem) error {
	if order.ReceiptEmailSent || order.PaymentDate == nil {
		return nil
	}

	recipient := metadataString(sub.Metadata, "email")
	if recipient == "" {
		s.log.Debug("no recipient email on subscription, skipping receipt",
			zap.Int64("order_id", order.ID.Int64()),
		)
		return nil
	}

	data := pdf.ReceiptData{
		OrderNumber:  order.ID.String(),
		DatePaid:     order.PaymentDate.Format("2 January 2006"),
		DispatchDate: order.DispatchDate.Format("2 January 2006"),
		ShipToName:   metadataString(sub.ShippingAddress, "name"),
		ShipTo:       formatAddress(sub.ShippingAddress),
		Subtotal:     money(order.Currency, order.SubtotalAmount.StringFixed(2)),
		Shipping:     money(order.Currency, order.ShippingAmount.StringFixed(2)),
		Total:        money(order.Currency, order.TotalPaid.StringFixed(2)),
	}
	if order.AmountSaved.IsPositive() {
		data.Discount = money(order.Currency, order.AmountSaved.StringFixed(2))
	}
	for _, item := range items {
		data.Items = append(data.Items, pdf.ReceiptItem{
			Description: item.Title,
			Qty:         item.Quantity,
			UnitPrice:   money(order.Currency, item.UnitPrice.StringFixed(2)),
			Amount:      money(order.Currency, item.LineTotal.StringFixed(2)),
		})
	}

	doc, err := s.renderer.Render(ctx, data)
	if err != nil {
		return fmt.Errorf("render receipt: %w", err)
	}

	subject := "Your dispatch receipt " + order.ID.String()
	body := fmt.Sprintf(
		"<p>Thanks for your order. We charged %s for your dispatch on %s. Your receipt is attached.</p>",
		data.Total, data.DispatchDate,
	)
	if err := s.email.Send(ctx, []string{recipient}, subject, body, email.Attachment{
		Filename:    "receipt-" + order.ID.String() + ".pdf",
		ContentType: "application/pdf",
		Data:        doc,
	}); err != nil {
		return fmt.Errorf("send receipt: %w", err)
	}

	if err := s.repo.MarkReceiptEmailSent(ctx, s.db, order.ID, s.clock.Now()); err != nil {
		return err
	}

	s.log.Info("receipt emailed",
		zap.Int64("order_id", order.ID.Int64()),
		zap.String("recipient", recipient),
	)
	return nil
}

func metadataString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if value, ok := m[key].(string); ok {
		return value
	}
	return ""
}

func formatAddress(address map[string]any) string {
	parts := []string{}
	for _, key := range []string{"line1", "line2", "city", "postcode"} {
		if value := metadataString(address, key); value != "" {
			parts = append(parts, value)
		}
	}
	return strings.Join(parts, ", ")
}

func money(currency, amount string) string {
	return currency + " " + amount
}
