package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/Marketplace-Checkout/internal/checkout/domain"
	"github.com/dmehra2102/Marketplace-Checkout/pkg/outbox"
)

var errStore = errors.New("store unavailable")

type fakeCatalog struct {
	products map[string]domain.Product
	err      error
}

func (f *fakeCatalog) ProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type fakeCoupons struct {
	mu      sync.Mutex
	coupons map[string]domain.Coupon
}

func newFakeCoupons(cs ...domain.Coupon) *fakeCoupons {
	f := &fakeCoupons{coupons: map[string]domain.Coupon{}}
	for _, c := range cs {
		f.coupons[c.Code] = c
	}
	return f
}

func (f *fakeCoupons) FindCoupon(_ context.Context, code string) (*domain.Coupon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.coupons[code]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeCoupons) CreateCoupon(_ context.Context, c domain.Coupon) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.coupons[c.Code]; ok {
		return fmt.Errorf("insert coupon: %w", domain.ErrCouponExists)
	}
	f.coupons[c.Code] = c
	return nil
}

func (f *fakeCoupons) ListCoupons(_ context.Context) ([]domain.Coupon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Coupon, 0, len(f.coupons))
	for _, c := range f.coupons {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (f *fakeCoupons) DeleteCoupon(_ context.Context, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.coupons[code]; !ok {
		return false, nil
	}
	delete(f.coupons, code)
	return true, nil
}

func (f *fakeCoupons) DeleteExpiredCoupons(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for code, c := range f.coupons {
		if c.Expired(now) {
			delete(f.coupons, code)
			n++
		}
	}
	return n, nil
}

type savedCheckout struct {
	checkout  domain.Checkout
	clearCart bool
	event     outbox.Event
}

type fakeOrders struct {
	mu       sync.Mutex
	prior    map[string]int
	saved    []savedCheckout
	existing []domain.Order
	saveErr  error
}

func (f *fakeOrders) CountOrdersByUser(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prior[userID], nil
}

func (f *fakeOrders) SaveCheckout(_ context.Context, c domain.Checkout, clearCart bool, event outbox.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, savedCheckout{checkout: c, clearCart: clearCart, event: event})
	return nil
}

func (f *fakeOrders) ListOrdersByUser(_ context.Context, userID string) ([]domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Order
	for _, o := range f.existing {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

type fakeGateway struct {
	requests []SessionRequest
	err      error
	// hang blocks CreateSession until the caller's deadline passes.
	hang bool
}

func (f *fakeGateway) CreateSession(ctx context.Context, req SessionRequest) (PaymentSession, error) {
	f.requests = append(f.requests, req)
	if f.hang {
		<-ctx.Done()
		return PaymentSession{}, ctx.Err()
	}
	if f.err != nil {
		return PaymentSession{}, f.err
	}
	return PaymentSession{ID: "cs_test_1", URL: "https://pay.example/cs_test_1"}, nil
}

type fakeGuard struct {
	seen      map[string]bool
	forgotten []string
}

func (f *fakeGuard) Seen(_ context.Context, key string) (bool, error) {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[key] {
		return true, nil
	}
	f.seen[key] = true
	return false, nil
}

func (f *fakeGuard) Forget(_ context.Context, key string) error {
	delete(f.seen, key)
	f.forgotten = append(f.forgotten, key)
	return nil
}

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	svc     *Service
	catalog *fakeCatalog
	coupons *fakeCoupons
	orders  *fakeOrders
	gateway *fakeGateway
	guard   *fakeGuard
}

func newFixture(coupons ...domain.Coupon) *fixture {
	f := &fixture{
		catalog: &fakeCatalog{products: map[string]domain.Product{
			"A": {ID: "A", StoreID: "S1", Price: dec("10.00")},
			"B": {ID: "B", StoreID: "S2", Price: dec("20.00")},
		}},
		coupons: newFakeCoupons(coupons...),
		orders:  &fakeOrders{prior: map[string]int{}},
		gateway: &fakeGateway{},
		guard:   &fakeGuard{},
	}
	n := 0
	f.svc = NewService(
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		f.catalog, f.coupons, f.orders, f.gateway,
		Options{
			ShippingFee:    dec("5.00"),
			ElevatedPlan:   "plus",
			AppID:          "gocart",
			PublicBaseURL:  "https://shop.example",
			AdminEmails:    []string{"admin@shop.example"},
			GatewayTimeout: time.Second,
		},
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}),
		WithIdempotency(f.guard),
	)
	return f
}

var shopper = domain.Principal{UserID: "user-1", Email: "shopper@shop.example"}

func twoSellerCart(method string) PlaceOrderRequest {
	return PlaceOrderRequest{
		AddressID:     "addr-1",
		PaymentMethod: method,
		Items: []domain.CartItem{
			{ProductID: "A", Quantity: 2},
			{ProductID: "B", Quantity: 1},
		},
	}
}
