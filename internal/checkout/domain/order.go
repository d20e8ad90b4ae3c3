package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	CashOnDelivery PaymentMethod = "CASH_ON_DELIVERY"
	GatewayCard    PaymentMethod = "GATEWAY_CARD"
)

// ParsePaymentMethod accepts the canonical names and the legacy "COD" and
// "STRIPE" spellings still sent by older clients.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(CashOnDelivery), "COD":
		return CashOnDelivery, true
	case string(GatewayCard), "STRIPE":
		return GatewayCard, true
	default:
		return "", false
	}
}

type Order struct {
	ID            string
	CheckoutID    string
	UserID        string
	StoreID       string
	AddressID     string
	Total         decimal.Decimal
	PaymentMethod PaymentMethod
	IsCouponUsed  bool
	Coupon        CouponSnapshot
	IsPaid        bool
	CreatedAt     time.Time
	Items         []OrderItem
}

type OrderItem struct {
	ProductID string
	Quantity  int
	Price     decimal.Decimal
}

// Settled reports whether the order counts as paid for listing purposes.
func (o Order) Settled() bool {
	return o.PaymentMethod == CashOnDelivery || o.IsPaid
}

// Checkout is the set of per-seller orders produced by one checkout request.
type Checkout struct {
	ID        string
	UserID    string
	AddressID string
	Method    PaymentMethod
	Orders    []Order
}

// Amount is the sum of the already rounded order totals.
func (c Checkout) Amount() decimal.Decimal {
	sum := decimal.Zero
	for _, o := range c.Orders {
		sum = sum.Add(o.Total)
	}
	return sum
}

func (c Checkout) OrderIDs() []string {
	ids := make([]string, 0, len(c.Orders))
	for _, o := range c.Orders {
		ids = append(ids, o.ID)
	}
	return ids
}

type PlanInput struct {
	CheckoutID    string
	UserID        string
	AddressID     string
	Method        PaymentMethod
	Groups        []SellerGroup
	Coupon        CouponDecision
	ShippingFee   decimal.Decimal
	WaiveShipping bool
	NewID         func() string
	Now           time.Time
}

// PlanOrders builds one order per seller group. The discount is applied to
// each group's subtotal, the shipping fee is added to the first group only
// (none when waived) and each total is rounded once.
func PlanOrders(in PlanInput) Checkout {
	c := Checkout{
		ID:        in.CheckoutID,
		UserID:    in.UserID,
		AddressID: in.AddressID,
		Method:    in.Method,
		Orders:    make([]Order, 0, len(in.Groups)),
	}
	shippingAdded := in.WaiveShipping
	for _, g := range in.Groups {
		total := in.Coupon.Apply(g.Subtotal())
		if !shippingAdded {
			total = total.Add(in.ShippingFee)
			shippingAdded = true
		}

		items := make([]OrderItem, 0, len(g.Items))
		for _, it := range g.Items {
			items = append(items, OrderItem{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.UnitPrice})
		}

		o := Order{
			ID:            in.NewID(),
			CheckoutID:    in.CheckoutID,
			UserID:        in.UserID,
			StoreID:       g.StoreID,
			AddressID:     in.AddressID,
			Total:         RoundCurrency(total),
			PaymentMethod: in.Method,
			IsCouponUsed:  in.Coupon.Applied,
			IsPaid:        in.Method == CashOnDelivery,
			CreatedAt:     in.Now,
			Items:         items,
		}
		if in.Coupon.Applied {
			o.Coupon = in.Coupon.Coupon
		}
		c.Orders = append(c.Orders, o)
	}
	return c
}
