package stripe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	paymentdomain "github.com/harvestbox/commerce/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCharge_Succeeded(t *testing.T) {
	var gotIdempotencyKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/payment_intents", r.URL.Path)
		require.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		gotIdempotencyKey = r.Header.Get("Idempotency-Key")

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "3500", r.PostForm.Get("amount"))
		assert.Equal(t, "nzd", r.PostForm.Get("currency"))
		assert.Equal(t, "cus_1", r.PostForm.Get("customer"))
		assert.Equal(t, "pm_1", r.PostForm.Get("payment_method"))
		assert.Equal(t, "true", r.PostForm.Get("confirm"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","status":"succeeded"}`))
	}))
	defer server.Close()

	gateway := New(Config{SecretKey: "sk_test_123", BaseURL: server.URL})
	result, err := gateway.CreateCharge(context.Background(), paymentdomain.ChargeRequest{
		AmountMinor:    3500,
		Currency:       "NZD",
		CustomerRef:    "cus_1",
		MethodRef:      "pm_1",
		Description:    "weekly box",
		IdempotencyKey: "order-42",
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", result.TransactionID)
	assert.Equal(t, "order-42", gotIdempotencyKey)
}

func TestCreateCharge_Declined(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`))
	}))
	defer server.Close()

	gateway := New(Config{SecretKey: "sk_test_123", BaseURL: server.URL})
	_, err := gateway.CreateCharge(context.Background(), paymentdomain.ChargeRequest{
		AmountMinor: 100,
		Currency:    "NZD",
	})

	var paymentErr *paymentdomain.PaymentError
	require.ErrorAs(t, err, &paymentErr)
	assert.Equal(t, "card_declined", paymentErr.Code)
	assert.Equal(t, "Your card was declined.", paymentErr.Message)
}

func TestCreateCharge_RequiresActionIsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_456","status":"requires_action"}`))
	}))
	defer server.Close()

	gateway := New(Config{SecretKey: "sk_test_123", BaseURL: server.URL})
	_, err := gateway.CreateCharge(context.Background(), paymentdomain.ChargeRequest{AmountMinor: 100, Currency: "NZD"})

	var paymentErr *paymentdomain.PaymentError
	require.ErrorAs(t, err, &paymentErr)
	assert.Equal(t, "requires_action", paymentErr.Code)
}

func TestIssueRefund(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/refunds", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "pi_123", r.PostForm.Get("payment_intent"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"re_1"}`))
	}))
	defer server.Close()

	gateway := New(Config{SecretKey: "sk_test_123", BaseURL: server.URL})
	err := gateway.IssueRefund(context.Background(), paymentdomain.RefundRequest{
		TransactionID:  "pi_123",
		AmountMinor:    3500,
		Currency:       "NZD",
		IdempotencyKey: "refund-42",
	})
	require.NoError(t, err)
}
