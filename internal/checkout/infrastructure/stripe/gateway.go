// Package stripe adapts the hosted checkout API and its webhooks.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"

	"github.com/dmehra2102/Marketplace-Checkout/internal/checkout/application"
)

// ErrUnavailable is returned while the breaker is open.
var ErrUnavailable = errors.New("payment gateway unavailable")

type Config struct {
	SecretKey  string
	Timeout    time.Duration
	MaxRetries int64
	// BaseURL overrides the API endpoint; used by tests.
	BaseURL string
}

type Gateway struct {
	log     *slog.Logger
	client  session.Client
	breaker *gobreaker.CircuitBreaker[*stripe.CheckoutSession]
}

func NewGateway(log *slog.Logger, cfg Config) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		MaxNetworkRetries: stripe.Int64(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(cfg.BaseURL)
	}

	g := &Gateway{
		log: log,
		client: session.Client{
			B:   stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
			Key: cfg.SecretKey,
		},
	}
	g.breaker = gobreaker.NewCircuitBreaker[*stripe.CheckoutSession](gobreaker.Settings{
		Name:        "stripe-checkout",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 },
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// Card and validation errors say nothing about gateway health.
			var se *stripe.Error
			if errors.As(err, &se) {
				return se.HTTPStatusCode < http.StatusInternalServerError && se.HTTPStatusCode != http.StatusTooManyRequests
			}
			return err == nil
		},
	})
	return g
}

// CreateSession opens a hosted payment page for the whole checkout amount as
// a single "Order" line item.
func (g *Gateway) CreateSession(ctx context.Context, req application.SessionRequest) (application.PaymentSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(req.Currency),
				UnitAmount:  stripe.Int64(req.AmountMinor),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{Name: stripe.String("Order")},
			},
			Quantity: stripe.Int64(1),
		}},
	}
	if !req.ExpiresAt.IsZero() {
		params.ExpiresAt = stripe.Int64(req.ExpiresAt.Unix())
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	sess, err := g.breaker.Execute(func() (*stripe.CheckoutSession, error) {
		return g.client.New(params)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return application.PaymentSession{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return application.PaymentSession{}, fmt.Errorf("create checkout session: %w", err)
	}
	g.log.Info("checkout session created", "session_id", sess.ID, "amount_minor", req.AmountMinor)
	return application.PaymentSession{ID: sess.ID, URL: sess.URL}, nil
}
