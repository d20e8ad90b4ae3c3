package application

import (
	"context"
	"time"

	"github.com/dmehra2102/Marketplace-Checkout/internal/checkout/domain"
	"github.com/dmehra2102/Marketplace-Checkout/pkg/outbox"
)

type ProductCatalog interface {
	// ProductsByIDs returns the products that exist; missing ids are simply
	// absent from the map.
	ProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
}

type CouponRepository interface {
	// FindCoupon returns nil, nil when no coupon has the given code.
	FindCoupon(ctx context.Context, code string) (*domain.Coupon, error)
	CreateCoupon(ctx context.Context, c domain.Coupon) error
	ListCoupons(ctx context.Context) ([]domain.Coupon, error)
	DeleteCoupon(ctx context.Context, code string) (bool, error)
	DeleteExpiredCoupons(ctx context.Context, now time.Time) (int64, error)
}

type OrderRepository interface {
	CountOrdersByUser(ctx context.Context, userID string) (int, error)
	// SaveCheckout writes every order, its items and the outbox event in one
	// transaction. When clearCart is set the shopper's cart is emptied in the
	// same transaction.
	SaveCheckout(ctx context.Context, c domain.Checkout, clearCart bool, event outbox.Event) error
	ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error)
}

type PaymentGateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (PaymentSession, error)
}

type SessionRequest struct {
	AmountMinor int64
	Currency    string
	SuccessURL  string
	CancelURL   string
	ExpiresAt   time.Time
	Metadata    map[string]string
}

type PaymentSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type IdempotencyGuard interface {
	Seen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}
