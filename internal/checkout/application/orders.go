package application

import (
	"context"

	"github.com/dmehra2102/Marketplace-Checkout/internal/checkout/domain"
	"github.com/dmehra2102/Marketplace-Checkout/pkg/apperr"
)

// ListOrders returns the shopper's settled orders, newest first. Gateway
// orders still waiting for confirmation are hidden.
func (s *Service) ListOrders(ctx context.Context, principal domain.Principal) ([]domain.Order, error) {
	if !principal.Authenticated() {
		return nil, apperr.New(apperr.KindUnauthorized, "not authorized")
	}
	all, err := s.orders.ListOrdersByUser(ctx, principal.UserID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "list orders")
	}
	out := make([]domain.Order, 0, len(all))
	for _, o := range all {
		if o.Settled() {
			out = append(out, o)
		}
	}
	return out, nil
}
