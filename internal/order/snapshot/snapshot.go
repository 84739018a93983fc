// Package snapshot builds immutable order records from a subscription's
// basket and the live catalog.
package snapshot

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/harvestbox/commerce/internal/catalog/domain"
	orderdomain "github.com/harvestbox/commerce/internal/order/domain"
	"github.com/harvestbox/commerce/internal/pricing"
	subscriptiondomain "github.com/harvestbox/commerce/internal/subscription/domain"
	"github.com/shopspring/decimal"
)

// ErrEmptyBasket is returned when no line item resolves to an active variant.
// A dispatch with nothing to send must not charge the customer.
var ErrEmptyBasket = errors.New("empty_basket")

// Builder assembles orders. It is stateless apart from the ID generator; the
// discount calculator is passed per build so hot-reloaded pricing settings
// take effect without rebuilding the graph.
type Builder struct {
	genID *snowflake.Node
}

func NewBuilder(genID *snowflake.Node) *Builder {
	return &Builder{genID: genID}
}

// Build freezes the subscription's basket into an order for dispatchDate.
//
// Line items whose variant is missing or inactive are dropped rather than
// failing the whole order; if nothing survives, ErrEmptyBasket is returned.
// The payable total is the discounted subtotal plus the shipping rate; the
// discount floor applies to the goods subtotal only, shipping is always
// charged as quoted.
func (b *Builder) Build(
	sub *subscriptiondomain.Subscription,
	lineItems []subscriptiondomain.SubscriptionLineItem,
	variants []catalogdomain.ProductVariant,
	shippingRate *catalogdomain.ShippingRate,
	calc pricing.Calculator,
	currency string,
	dispatchDate time.Time,
	now time.Time,
) (*orderdomain.Order, []orderdomain.OrderItem, error) {
	byID := make(map[snowflake.ID]catalogdomain.ProductVariant, len(variants))
	for _, v := range variants {
		byID[v.ID] = v
	}

	orderID := b.genID.Generate()
	items := make([]orderdomain.OrderItem, 0, len(lineItems))
	subtotal := decimal.Zero
	for _, line := range lineItems {
		variant, ok := byID[line.VariantID]
		if !ok || !variant.Active || line.Quantity < 1 {
			continue
		}

		lineTotal := variant.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		subtotal = subtotal.Add(lineTotal)
		items = append(items, orderdomain.OrderItem{
			ID:        b.genID.Generate(),
			OrderID:   orderID,
			VariantID: variant.ID,
			Ref:       variant.Ref,
			Title:     variant.Title,
			UnitPrice: variant.Price,
			Quantity:  line.Quantity,
			LineTotal: lineTotal,
			CreatedAt: now,
		})
	}
	if len(items) == 0 {
		return nil, nil, ErrEmptyBasket
	}

	var discount *pricing.Discount
	if sub.DiscountKind != nil && sub.DiscountValue != nil {
		discount = &pricing.Discount{
			Kind:  pricing.DiscountKind(*sub.DiscountKind),
			Value: *sub.DiscountValue,
		}
	}
	discounted, saved := calc.Apply(subtotal, discount)
	total := discounted.Add(shippingRate.Rate)

	order := &orderdomain.Order{
		ID:             orderID,
		SubscriptionID: sub.ID,
		AccountID:      sub.AccountID,
		Status:         orderdomain.OrderStatusSubmitted,
		Currency:       currency,
		DispatchDate:   dispatchDate,
		SubtotalAmount: subtotal,
		DiscountKind:   sub.DiscountKind,
		DiscountValue:  sub.DiscountValue,
		AmountSaved:    saved,
		ShippingLabel:  shippingRate.Label,
		ShippingAmount: shippingRate.Rate,
		TotalAmount:    total,
		TotalPaid:      decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return order, items, nil
}
