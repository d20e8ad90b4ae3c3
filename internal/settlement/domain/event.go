package domain

import (
	"strings"
	"time"

	"github.com/dmehra2102/Marketplace-Checkout/pkg/apperr"
)

type EventType string

const (
	PaymentConfirmed EventType = "payment.confirmed"
	PaymentExpired   EventType = "payment.expired"
)

// GatewayEvent is the transport-neutral form of a gateway callback, correlated
// back to marketplace orders through the session metadata.
type GatewayEvent struct {
	Type        EventType `json:"type"`
	EventID     string    `json:"eventId"`
	SessionID   string    `json:"sessionId"`
	UserID      string    `json:"userId"`
	AppID       string    `json:"appId"`
	OrderIDs    []string  `json:"orderIds"`
	AmountMinor int64     `json:"amountMinor"`
	OccurredAt  time.Time `json:"occurredAt"`
}

func (e GatewayEvent) Validate() error {
	switch e.Type {
	case PaymentConfirmed, PaymentExpired:
	default:
		return apperr.Newf(apperr.KindMissingFields, "unknown gateway event type %q", e.Type)
	}
	if e.SessionID == "" {
		return apperr.New(apperr.KindMissingFields, "gateway event has no session id")
	}
	if e.Type == PaymentConfirmed && (e.UserID == "" || len(e.OrderIDs) == 0) {
		return apperr.New(apperr.KindMissingFields, "confirmation is missing user or order ids")
	}
	return nil
}

// ParseOrderIDs splits the comma-joined metadata value, dropping blanks and
// repeats.
func ParseOrderIDs(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
