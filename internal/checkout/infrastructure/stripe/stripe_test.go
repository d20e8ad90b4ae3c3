package stripe

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dmehra2102/Marketplace-Checkout/internal/checkout/application"
	"github.com/dmehra2102/Marketplace-Checkout/internal/settlement/domain"
	"github.com/dmehra2102/Marketplace-Checkout/pkg/apperr"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func sessionRequest() application.SessionRequest {
	return application.SessionRequest{
		AmountMinor: 4500,
		Currency:    "usd",
		SuccessURL:  "https://shop.example/loading?nextUrl=orders",
		CancelURL:   "https://shop.example/cart",
		ExpiresAt:   time.Now().Add(30 * time.Minute),
		Metadata:    map[string]string{"orderIds": "o1,o2", "userId": "u1", "appId": "gocart"},
	}
}

func TestGateway_CreateSession(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.example/cs_test_1"}`))
	}))
	defer srv.Close()

	g := NewGateway(discard(), Config{SecretKey: "sk_test_123", BaseURL: srv.URL, Timeout: time.Second})
	sess, err := g.CreateSession(context.Background(), sessionRequest())
	require.NoError(t, err)

	assert.Equal(t, "cs_test_1", sess.ID)
	assert.Equal(t, "https://checkout.example/cs_test_1", sess.URL)
	assert.Equal(t, "payment", form.Get("mode"))
	assert.Equal(t, "4500", form.Get("line_items[0][price_data][unit_amount]"))
	assert.Equal(t, "usd", form.Get("line_items[0][price_data][currency]"))
	assert.Equal(t, "Order", form.Get("line_items[0][price_data][product_data][name]"))
	assert.Equal(t, "o1,o2", form.Get("metadata[orderIds]"))
	assert.Equal(t, "https://shop.example/cart", form.Get("cancel_url"))
}

func TestGateway_BreakerOpensAfterServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"type":"api_error","message":"boom"}}`))
	}))
	defer srv.Close()

	g := NewGateway(discard(), Config{SecretKey: "sk_test_123", BaseURL: srv.URL, Timeout: time.Second})
	for range 5 {
		_, err := g.CreateSession(context.Background(), sessionRequest())
		require.Error(t, err)
	}
	before := hits.Load()

	_, err := g.CreateSession(context.Background(), sessionRequest())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, before, hits.Load())
}

func signed(t *testing.T, secret string, eventType string, session map[string]any) ([]byte, string) {
	t.Helper()
	raw, err := json.Marshal(session)
	require.NoError(t, err)
	body, err := json.Marshal(map[string]any{
		"id":          "evt_1",
		"object":      "event",
		"type":        eventType,
		"created":     time.Now().Unix(),
		"api_version": "2020-08-27",
		"data":        map[string]json.RawMessage{"object": raw},
	})
	require.NoError(t, err)
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: body, Secret: secret, Timestamp: time.Now()})
	return sp.Payload, sp.Header
}

func paidSession() map[string]any {
	return map[string]any{
		"id":             "cs_test_1",
		"object":         "checkout.session",
		"payment_status": "paid",
		"amount_total":   4500,
		"metadata":       map[string]string{"orderIds": "o1,o2", "userId": "u1", "appId": "gocart"},
	}
}

func TestWebhookVerifier_Completed(t *testing.T) {
	v := NewWebhookVerifier("whsec_test")
	body, sig := signed(t, "whsec_test", "checkout.session.completed", paidSession())

	ev, ok, err := v.Parse(body, sig)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.PaymentConfirmed, ev.Type)
	assert.Equal(t, "cs_test_1", ev.SessionID)
	assert.Equal(t, []string{"o1", "o2"}, ev.OrderIDs)
	assert.Equal(t, "u1", ev.UserID)
	assert.Equal(t, "gocart", ev.AppID)
	assert.Equal(t, int64(4500), ev.AmountMinor)
}

func TestWebhookVerifier_Expired(t *testing.T) {
	v := NewWebhookVerifier("whsec_test")
	s := paidSession()
	s["payment_status"] = "unpaid"
	body, sig := signed(t, "whsec_test", "checkout.session.expired", s)

	ev, ok, err := v.Parse(body, sig)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.PaymentExpired, ev.Type)
}

func TestWebhookVerifier_IgnoresUnpaidAndOtherEvents(t *testing.T) {
	v := NewWebhookVerifier("whsec_test")
	s := paidSession()
	s["payment_status"] = "unpaid"
	body, sig := signed(t, "whsec_test", "checkout.session.completed", s)
	_, ok, err := v.Parse(body, sig)
	require.NoError(t, err)
	assert.False(t, ok)

	body, sig = signed(t, "whsec_test", "customer.created", map[string]any{"id": "cus_1"})
	_, ok, err = v.Parse(body, sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWebhookVerifier_BadSignature(t *testing.T) {
	v := NewWebhookVerifier("whsec_test")
	body, sig := signed(t, "whsec_other", "checkout.session.completed", paidSession())

	_, _, err := v.Parse(body, sig)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}
