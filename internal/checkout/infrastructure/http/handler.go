package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/Marketplace-Checkout/internal/checkout/application"
	"github.com/dmehra2102/Marketplace-Checkout/internal/checkout/domain"
	settlement "github.com/dmehra2102/Marketplace-Checkout/internal/settlement/domain"
	"github.com/dmehra2102/Marketplace-Checkout/pkg/apperr"
	"github.com/dmehra2102/Marketplace-Checkout/pkg/tracing"
)

type Checkout interface {
	PlaceOrder(ctx context.Context, principal domain.Principal, req application.PlaceOrderRequest) (*application.PlaceOrderResult, error)
	ListOrders(ctx context.Context, principal domain.Principal) ([]domain.Order, error)
	CreateCoupon(ctx context.Context, principal domain.Principal, in application.NewCoupon) (domain.Coupon, error)
	ListCoupons(ctx context.Context, principal domain.Principal) ([]domain.Coupon, error)
	DeleteCoupon(ctx context.Context, principal domain.Principal, code string) error
}

type WebhookParser interface {
	Parse(payload []byte, signature string) (settlement.GatewayEvent, bool, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, ev settlement.GatewayEvent) error
}

const maxWebhookBody = 64 << 10

type Handler struct {
	log       *slog.Logger
	service   Checkout
	identity  IdentityResolver
	webhooks  WebhookParser
	publisher EventPublisher
	tracer    trace.Tracer
}

func NewHandler(log *slog.Logger, service Checkout, identity IdentityResolver, webhooks WebhookParser, publisher EventPublisher) *Handler {
	return &Handler{
		log:       log,
		service:   service,
		identity:  identity,
		webhooks:  webhooks,
		publisher: publisher,
		tracer:    otel.Tracer("checkout-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/webhooks/gateway", h.gatewayWebhook)

	r.Group(func(r chi.Router) {
		r.Use(h.authenticate)
		r.Post("/orders", h.placeOrder)
		r.Get("/orders", h.listOrders)

		r.Route("/admin/coupons", func(r chi.Router) {
			r.Post("/", h.createCoupon)
			r.Get("/", h.listCoupons)
			r.Delete("/", h.deleteCoupon)
			r.Delete("/{code}", h.deleteCoupon)
		})
	})
	return r
}

type cartItemReq struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type placeOrderReq struct {
	AddressID     string        `json:"addressId"`
	Items         []cartItemReq `json:"items"`
	CouponCode    string        `json:"couponCode"`
	PaymentMethod string        `json:"paymentMethod"`
}

type placeOrderResp struct {
	Message    string                      `json:"message"`
	CheckoutID string                      `json:"checkoutId"`
	OrderIDs   []string                    `json:"orderIds"`
	Amount     string                      `json:"amount"`
	Session    *application.PaymentSession `json:"session,omitempty"`
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "PlaceOrderHTTP")
	defer span.End()

	principal := principalFrom(ctx)
	if !principal.Authenticated() {
		writeError(h.log, w, r, apperr.New(apperr.KindUnauthorized, "not authorized"))
		return
	}

	var req placeOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(h.log, w, r, apperr.New(apperr.KindMissingFields, "missing order details"))
		return
	}
	items := make([]domain.CartItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, domain.CartItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	traceparent := r.Header.Get(tracing.TraceparentHeader)
	if traceparent == "" {
		traceparent = tracing.Traceparent(ctx)
	}

	res, err := h.service.PlaceOrder(ctx, principal, application.PlaceOrderRequest{
		AddressID:      req.AddressID,
		Items:          items,
		CouponCode:     req.CouponCode,
		PaymentMethod:  req.PaymentMethod,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		Origin:         r.Header.Get("Origin"),
		Traceparent:    traceparent,
	})
	if err != nil {
		writeError(h.log, w, r, err)
		return
	}

	resp := placeOrderResp{
		Message:    "Orders placed successfully",
		CheckoutID: res.CheckoutID,
		OrderIDs:   res.OrderIDs,
		Amount:     res.Amount.StringFixed(2),
		Session:    res.Session,
	}
	if res.Session != nil {
		resp.Message = "Redirect to payment"
	}
	writeJSON(w, http.StatusOK, resp)
}

type orderItemResp struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
}

type orderResp struct {
	ID            string                 `json:"id"`
	StoreID       string                 `json:"storeId"`
	AddressID     string                 `json:"addressId"`
	Total         string                 `json:"total"`
	PaymentMethod domain.PaymentMethod   `json:"paymentMethod"`
	IsPaid        bool                   `json:"isPaid"`
	IsCouponUsed  bool                   `json:"isCouponUsed"`
	Coupon        *domain.CouponSnapshot `json:"coupon,omitempty"`
	CreatedAt     time.Time              `json:"createdAt"`
	Items         []orderItemResp        `json:"orderItems"`
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context(), principalFrom(r.Context()))
	if err != nil {
		writeError(h.log, w, r, err)
		return
	}

	out := make([]orderResp, 0, len(orders))
	for _, o := range orders {
		resp := orderResp{
			ID:            o.ID,
			StoreID:       o.StoreID,
			AddressID:     o.AddressID,
			Total:         o.Total.StringFixed(2),
			PaymentMethod: o.PaymentMethod,
			IsPaid:        o.IsPaid,
			IsCouponUsed:  o.IsCouponUsed,
			CreatedAt:     o.CreatedAt,
			Items:         make([]orderItemResp, 0, len(o.Items)),
		}
		if !o.Coupon.IsZero() {
			snap := o.Coupon
			resp.Coupon = &snap
		}
		for _, it := range o.Items {
			resp.Items = append(resp.Items, orderItemResp{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price.StringFixed(2)})
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": out})
}

type couponReq struct {
	Code        string          `json:"code"`
	Description string          `json:"description"`
	Discount    decimal.Decimal `json:"discount"`
	ForNewUser  bool            `json:"forNewUser"`
	ForMember   bool            `json:"forMember"`
	ExpiresAt   time.Time       `json:"expiresAt"`
}

type couponResp struct {
	Code        string    `json:"code"`
	Description string    `json:"description"`
	Discount    string    `json:"discount"`
	ForNewUser  bool      `json:"forNewUser"`
	ForMember   bool      `json:"forMember"`
	ExpiresAt   time.Time `json:"expiresAt"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toCouponResp(c domain.Coupon) couponResp {
	return couponResp{
		Code:        c.Code,
		Description: c.Description,
		Discount:    c.DiscountPercent.String(),
		ForNewUser:  c.ForNewUserOnly,
		ForMember:   c.ForPlusMemberOnly,
		ExpiresAt:   c.ExpiresAt,
		CreatedAt:   c.CreatedAt,
	}
}

func (h *Handler) createCoupon(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Coupon couponReq `json:"coupon"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(h.log, w, r, apperr.New(apperr.KindMissingFields, "invalid coupon body"))
		return
	}
	c, err := h.service.CreateCoupon(r.Context(), principalFrom(r.Context()), application.NewCoupon{
		Code:              body.Coupon.Code,
		Description:       body.Coupon.Description,
		DiscountPercent:   body.Coupon.Discount,
		ForNewUserOnly:    body.Coupon.ForNewUser,
		ForPlusMemberOnly: body.Coupon.ForMember,
		ExpiresAt:         body.Coupon.ExpiresAt,
	})
	if err != nil {
		writeError(h.log, w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Coupon added successfully", "coupon": toCouponResp(c)})
}

func (h *Handler) listCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.service.ListCoupons(r.Context(), principalFrom(r.Context()))
	if err != nil {
		writeError(h.log, w, r, err)
		return
	}
	out := make([]couponResp, 0, len(coupons))
	for _, c := range coupons {
		out = append(out, toCouponResp(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"coupons": out})
}

func (h *Handler) deleteCoupon(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		code = r.URL.Query().Get("code")
	}
	if err := h.service.DeleteCoupon(r.Context(), principalFrom(r.Context()), code); err != nil {
		writeError(h.log, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Coupon deleted successfully"})
}

// gatewayWebhook verifies the gateway callback and hands it to settlement.
// Irrelevant events are acknowledged so the gateway stops retrying them.
func (h *Handler) gatewayWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GatewayWebhook")
	defer span.End()

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(h.log, w, r, apperr.Wrap(apperr.KindMissingFields, err, "unreadable body"))
		return
	}
	ev, ok, err := h.webhooks.Parse(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUnauthorized {
			h.log.Warn("webhook signature rejected", "err", err)
		}
		writeError(h.log, w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}
	if err := h.publisher.Publish(ctx, ev); err != nil {
		// 5xx makes the gateway redeliver later.
		writeError(h.log, w, r, apperr.Wrap(apperr.KindInternal, err, "publish gateway event"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
}
