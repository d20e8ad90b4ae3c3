package application

import (
	"context"

	"github.com/dmehra2102/Marketplace-Checkout/internal/settlement/domain"
)

type Repository interface {
	// Settle records the confirmation and marks the orders paid and the cart
	// cleared in one transaction. It reports false when the session was
	// already settled.
	Settle(ctx context.Context, ev domain.GatewayEvent) (bool, error)
	// RecordExpiry notes an expired session. Orders are left unpaid.
	RecordExpiry(ctx context.Context, ev domain.GatewayEvent) (bool, error)
}
