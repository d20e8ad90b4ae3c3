package stripe

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dmehra2102/Marketplace-Checkout/internal/checkout/application"
	"github.com/dmehra2102/Marketplace-Checkout/internal/settlement/domain"
	"github.com/dmehra2102/Marketplace-Checkout/pkg/apperr"
)

type WebhookVerifier struct {
	secret string
}

func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: secret}
}

// Parse checks the signature header and maps session events onto gateway
// events. ok is false for event types settlement does not care about, and for
// completed sessions whose payment is still pending.
func (v *WebhookVerifier) Parse(payload []byte, signature string) (ev domain.GatewayEvent, ok bool, err error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return domain.GatewayEvent{}, false, apperr.Wrap(apperr.KindUnauthorized, err, "invalid webhook signature")
	}

	var kind domain.EventType
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		kind = domain.PaymentConfirmed
	case stripe.EventTypeCheckoutSessionExpired:
		kind = domain.PaymentExpired
	default:
		return domain.GatewayEvent{}, false, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return domain.GatewayEvent{}, false, apperr.Wrap(apperr.KindMissingFields, err, "decode checkout session")
	}
	if kind == domain.PaymentConfirmed &&
		sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid &&
		sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusNoPaymentRequired {
		return domain.GatewayEvent{}, false, nil
	}

	ev = domain.GatewayEvent{
		Type:        kind,
		EventID:     event.ID,
		SessionID:   sess.ID,
		UserID:      sess.Metadata[application.MetaUserID],
		AppID:       sess.Metadata[application.MetaAppID],
		OrderIDs:    domain.ParseOrderIDs(sess.Metadata[application.MetaOrderIDs]),
		AmountMinor: sess.AmountTotal,
		OccurredAt:  time.Unix(event.Created, 0).UTC(),
	}
	if err := ev.Validate(); err != nil {
		return domain.GatewayEvent{}, false, fmt.Errorf("session %s: %w", sess.ID, err)
	}
	return ev, true, nil
}
