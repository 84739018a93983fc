// Package stripe implements the payment gateway contract against the Stripe
// HTTP API.
package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	paymentdomain "github.com/harvestbox/commerce/internal/payment/domain"
)

const defaultBaseURL = "https://api.stripe.com"

type Gateway struct {
	secretKey string
	baseURL   string
	client    *http.Client
}

type Config struct {
	SecretKey string
	BaseURL   string
	Timeout   time.Duration
}

func New(cfg Config) *Gateway {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Gateway{
		secretKey: cfg.SecretKey,
		baseURL:   baseURL,
		client:    &http.Client{Timeout: timeout},
	}
}

func (g *Gateway) Provider() string { return "stripe" }

func (g *Gateway) CreateCharge(ctx context.Context, req paymentdomain.ChargeRequest) (paymentdomain.ChargeResult, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.AmountMinor, 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("customer", req.CustomerRef)
	form.Set("payment_method", req.MethodRef)
	form.Set("description", req.Description)
	form.Set("confirm", "true")
	form.Set("off_session", "true")

	var intent paymentIntent
	if err := g.post(ctx, "/v1/payment_intents", form, req.IdempotencyKey, &intent); err != nil {
		return paymentdomain.ChargeResult{}, err
	}

	if intent.Status != "succeeded" && intent.Status != "processing" {
		return paymentdomain.ChargeResult{}, &paymentdomain.PaymentError{
			Provider: "stripe",
			Code:     intent.Status,
			Message:  "payment intent not captured",
		}
	}
	return paymentdomain.ChargeResult{TransactionID: intent.ID}, nil
}

func (g *Gateway) IssueRefund(ctx context.Context, req paymentdomain.RefundRequest) error {
	form := url.Values{}
	form.Set("payment_intent", req.TransactionID)

	var refund struct {
		ID string `json:"id"`
	}
	return g.post(ctx, "/v1/refunds", form, req.IdempotencyKey, &refund)
}

type paymentIntent struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (g *Gateway) post(ctx context.Context, path string, form url.Values, idempotencyKey string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.secretKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		// Transport failures, client timeouts included, have an unknown
		// outcome at the gateway. They are not PaymentErrors: the order must
		// stay open so a rerun with the same idempotency key settles whether
		// the charge went through.
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
			return &paymentdomain.PaymentError{
				Provider: "stripe",
				Code:     apiErr.Error.Code,
				Message:  apiErr.Error.Message,
			}
		}
		return fmt.Errorf("stripe: unexpected status %d", resp.StatusCode)
	}

	return json.Unmarshal(body, out)
}
