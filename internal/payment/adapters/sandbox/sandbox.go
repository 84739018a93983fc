// Package sandbox is an in-process gateway for development and tests. It
// approves every charge unless the method ref carries a decline marker, and
// replays the same transaction for a repeated idempotency key.
package sandbox

import (
	"context"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/harvestbox/commerce/internal/payment/domain"
)

// DeclineMarker in a method ref makes the sandbox decline the charge.
const DeclineMarker = "decline"

type Gateway struct {
	mu       sync.Mutex
	genID    *snowflake.Node
	charges  map[string]string
	refunded map[string]bool
}

func New(genID *snowflake.Node) *Gateway {
	return &Gateway{
		genID:    genID,
		charges:  map[string]string{},
		refunded: map[string]bool{},
	}
}

func (g *Gateway) Provider() string { return "sandbox" }

func (g *Gateway) CreateCharge(ctx context.Context, req paymentdomain.ChargeRequest) (paymentdomain.ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if strings.Contains(req.MethodRef, DeclineMarker) {
		return paymentdomain.ChargeResult{}, &paymentdomain.PaymentError{
			Provider: "sandbox",
			Code:     "card_declined",
			Message:  "sandbox decline",
		}
	}

	if req.IdempotencyKey != "" {
		if txID, ok := g.charges[req.IdempotencyKey]; ok {
			return paymentdomain.ChargeResult{TransactionID: txID}, nil
		}
	}

	txID := "sandbox_" + g.genID.Generate().String()
	if req.IdempotencyKey != "" {
		g.charges[req.IdempotencyKey] = txID
	}
	return paymentdomain.ChargeResult{TransactionID: txID}, nil
}

func (g *Gateway) IssueRefund(ctx context.Context, req paymentdomain.RefundRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if req.TransactionID == "" {
		return paymentdomain.ErrMissingTransaction
	}
	g.refunded[req.TransactionID] = true
	return nil
}

// Refunded reports whether a transaction has been refunded. Test helper.
func (g *Gateway) Refunded(transactionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refunded[transactionID]
}

// ChargeCount reports how many distinct charges have been captured. Test
// helper; replayed idempotency keys do not increase the count.
func (g *Gateway) ChargeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.charges)
}
