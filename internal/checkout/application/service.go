package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/Marketplace-Checkout/internal/checkout/domain"
	"github.com/dmehra2102/Marketplace-Checkout/pkg/apperr"
	"github.com/dmehra2102/Marketplace-Checkout/pkg/metrics"
	"github.com/dmehra2102/Marketplace-Checkout/pkg/outbox"
)

const (
	MetaOrderIDs = "orderIds"
	MetaUserID   = "userId"
	MetaAppID    = "appId"
)

type Options struct {
	ShippingFee    decimal.Decimal
	ElevatedPlan   string
	Currency       string
	AppID          string
	PublicBaseURL  string
	GatewayTimeout time.Duration
	SessionTTL     time.Duration
	AdminEmails    []string
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithIDGenerator(newID func() string) Option { return func(s *Service) { s.newID = newID } }

func WithIdempotency(guard IdempotencyGuard) Option { return func(s *Service) { s.idem = guard } }

func WithMetrics(m *metrics.Collectors) Option { return func(s *Service) { s.metrics = m } }

type Service struct {
	log     *slog.Logger
	catalog ProductCatalog
	coupons CouponRepository
	orders  OrderRepository
	gateway PaymentGateway
	idem    IdempotencyGuard
	metrics *metrics.Collectors
	opts    Options
	now     func() time.Time
	newID   func() string
	tracer  trace.Tracer
}

func NewService(log *slog.Logger, catalog ProductCatalog, coupons CouponRepository, orders OrderRepository, gateway PaymentGateway, opts Options, options ...Option) *Service {
	if opts.Currency == "" {
		opts.Currency = "usd"
	}
	if opts.GatewayTimeout <= 0 {
		opts.GatewayTimeout = 10 * time.Second
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * time.Minute
	}
	s := &Service{
		log:     log,
		catalog: catalog,
		coupons: coupons,
		orders:  orders,
		gateway: gateway,
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.NewString() },
		tracer:  otel.Tracer("checkout-service"),
	}
	for _, o := range options {
		o(s)
	}
	return s
}

type PlaceOrderRequest struct {
	AddressID      string
	Items          []domain.CartItem
	CouponCode     string
	PaymentMethod  string
	IdempotencyKey string
	// Origin is the shopper-facing site the gateway redirects back to.
	Origin      string
	Traceparent string
}

type PlaceOrderResult struct {
	CheckoutID string
	OrderIDs   []string
	Amount     decimal.Decimal
	Method     domain.PaymentMethod
	State      domain.CheckoutState
	Session    *PaymentSession
}

var ErrIllegalTransition = apperr.New(apperr.KindInternal, "illegal transition of checkout state")

type placement struct {
	state     domain.CheckoutState
	persisted bool
}

func (p *placement) advance(steps ...domain.CheckoutState) error {
	for _, to := range steps {
		if !domain.CanTransitionTo(p.state, to) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, p.state, to)
		}
		p.state = to
		if to == domain.StatePersisted {
			p.persisted = true
		}
	}
	return nil
}

// PlaceOrder runs one checkout: validate, price, apply the coupon, split per
// seller, persist all orders atomically and then settle or hand off to the
// payment gateway.
func (s *Service) PlaceOrder(ctx context.Context, principal domain.Principal, req PlaceOrderRequest) (res *PlaceOrderResult, err error) {
	ctx, span := s.tracer.Start(ctx, "PlaceOrder")
	defer span.End()

	method := domain.PaymentMethod(strings.ToUpper(strings.TrimSpace(req.PaymentMethod)))
	defer func() { s.observe(method, err) }()

	if !principal.Authenticated() {
		return nil, apperr.New(apperr.KindUnauthorized, "not authorized")
	}
	span.SetAttributes(attribute.String("user.id", principal.UserID))

	p := &placement{state: domain.StateReceived}
	method, err = validate(req)
	if err != nil {
		return nil, err
	}
	if err := p.advance(domain.StateValidated); err != nil {
		return nil, err
	}

	priced, err := s.price(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	if err := p.advance(domain.StatePriced); err != nil {
		return nil, err
	}

	elevated := principal.HasPlan(s.opts.ElevatedPlan)
	decision, err := s.evaluateCoupon(ctx, principal, req.CouponCode, elevated)
	if err != nil {
		return nil, err
	}

	groups := domain.SplitBySeller(priced)
	if err := p.advance(domain.StateSplit); err != nil {
		return nil, err
	}

	checkout := domain.PlanOrders(domain.PlanInput{
		CheckoutID:    s.newID(),
		UserID:        principal.UserID,
		AddressID:     strings.TrimSpace(req.AddressID),
		Method:        method,
		Groups:        groups,
		Coupon:        decision,
		ShippingFee:   s.opts.ShippingFee,
		WaiveShipping: elevated,
		NewID:         s.newID,
		Now:           s.now(),
	})

	headers := map[string]string{"source": "checkout-service", "user_id": principal.UserID}
	event, err := outbox.NewEvent("checkout", checkout.ID, domain.EventOrdersPlaced, checkout.PlacedEvent(), headers, req.Traceparent)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "encode orders placed event")
	}
	// The key is claimed only once the orders are ready to write, so a
	// rejected or crashed attempt before this point leaves it free.
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" && s.idem != nil {
		idemKey := "checkout:" + principal.UserID + ":" + key
		seen, serr := s.idem.Seen(ctx, idemKey)
		if serr != nil {
			s.log.Warn("idempotency check failed", "user_id", principal.UserID, "err", serr)
		} else if seen {
			return nil, apperr.New(apperr.KindDuplicateRequest, "checkout already submitted for this idempotency key")
		} else {
			// Release the key if nothing was persisted so the client can retry.
			defer func() {
				if err != nil && !p.persisted {
					if ferr := s.idem.Forget(context.WithoutCancel(ctx), idemKey); ferr != nil {
						s.log.Warn("idempotency release failed", "user_id", principal.UserID, "err", ferr)
					}
				}
			}()
		}
	}

	clearCart := method == domain.CashOnDelivery
	if err := s.orders.SaveCheckout(ctx, checkout, clearCart, event); err != nil {
		return nil, apperr.Wrap(apperr.KindStoreWriteError, err, "failed to persist orders")
	}
	if err := p.advance(domain.StatePersisted); err != nil {
		return nil, err
	}

	res = &PlaceOrderResult{
		CheckoutID: checkout.ID,
		OrderIDs:   checkout.OrderIDs(),
		Amount:     checkout.Amount(),
		Method:     method,
	}
	s.log.Info("orders persisted",
		"checkout_id", checkout.ID,
		"user_id", principal.UserID,
		"order_ids", res.OrderIDs,
		"amount", res.Amount.StringFixed(2),
		"payment_method", method,
	)

	if method == domain.CashOnDelivery {
		if err := p.advance(domain.StateSettled, domain.StateDone); err != nil {
			return nil, err
		}
		res.State = p.state
		return res, nil
	}

	session, err := s.openSession(ctx, principal, checkout, req.Origin)
	if err != nil {
		s.log.Error("gateway session failed, orders left pending",
			"checkout_id", checkout.ID, "order_ids", res.OrderIDs, "err", err)
		return nil, err
	}
	if err := p.advance(domain.StateAwaitingGateway, domain.StateDone); err != nil {
		return nil, err
	}
	res.Session = &session
	res.State = p.state
	return res, nil
}

func validate(req PlaceOrderRequest) (domain.PaymentMethod, error) {
	if strings.TrimSpace(req.AddressID) == "" || strings.TrimSpace(req.PaymentMethod) == "" || len(req.Items) == 0 {
		return "", apperr.New(apperr.KindMissingFields, "missing order details")
	}
	method, ok := domain.ParsePaymentMethod(req.PaymentMethod)
	if !ok {
		return "", apperr.Newf(apperr.KindMissingFields, "unsupported payment method %q", req.PaymentMethod)
	}
	for i, item := range req.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return "", apperr.Newf(apperr.KindMissingFields, "item %d has no product id", i)
		}
		if item.Quantity <= 0 {
			return "", apperr.Newf(apperr.KindMissingFields, "item %d quantity must be positive", i)
		}
	}
	return method, nil
}

func (s *Service) price(ctx context.Context, items []domain.CartItem) ([]domain.PricedItem, error) {
	ids := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	catalog, err := s.catalog.ProductsByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "load products")
	}
	return domain.PriceItems(items, catalog)
}

func (s *Service) evaluateCoupon(ctx context.Context, principal domain.Principal, code string, elevated bool) (domain.CouponDecision, error) {
	code = domain.NormalizeCode(code)
	if code == "" {
		return domain.CouponDecision{}, nil
	}
	coupon, err := s.coupons.FindCoupon(ctx, code)
	if err != nil {
		return domain.CouponDecision{}, apperr.Wrap(apperr.KindInternal, err, "load coupon")
	}
	elig := domain.Eligibility{ElevatedMember: elevated}
	if coupon != nil && coupon.ForNewUserOnly {
		n, err := s.orders.CountOrdersByUser(ctx, principal.UserID)
		if err != nil {
			return domain.CouponDecision{}, apperr.Wrap(apperr.KindInternal, err, "count prior orders")
		}
		elig.HasPriorOrders = n > 0
	}
	return domain.EvaluateCoupon(coupon, elig, s.now())
}

func (s *Service) openSession(ctx context.Context, principal domain.Principal, checkout domain.Checkout, origin string) (PaymentSession, error) {
	origin = strings.TrimRight(strings.TrimSpace(origin), "/")
	if origin == "" {
		origin = strings.TrimRight(s.opts.PublicBaseURL, "/")
	}
	req := SessionRequest{
		AmountMinor: domain.MinorUnits(checkout.Amount()),
		Currency:    s.opts.Currency,
		SuccessURL:  origin + "/loading?nextUrl=orders",
		CancelURL:   origin + "/cart",
		ExpiresAt:   s.now().Add(s.opts.SessionTTL),
		Metadata: map[string]string{
			MetaOrderIDs: strings.Join(checkout.OrderIDs(), ","),
			MetaUserID:   principal.UserID,
			MetaAppID:    s.opts.AppID,
		},
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.opts.GatewayTimeout)
	defer cancel()

	start := time.Now()
	session, err := s.gateway.CreateSession(gwCtx, req)
	if s.metrics != nil {
		s.metrics.GatewayLatency.Observe(float64(time.Since(start).Milliseconds()))
	}
	if err != nil {
		return PaymentSession{}, apperr.Wrap(apperr.KindPaymentGatewayError, err, "payment session could not be created; orders remain pending payment")
	}
	return session, nil
}

func (s *Service) observe(method domain.PaymentMethod, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(apperr.KindOf(err))
	}
	s.metrics.Checkouts.WithLabelValues(string(method), outcome).Inc()
}
