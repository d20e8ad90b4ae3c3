package domain

// OrdersPlaced is written to the outbox in the same transaction as the orders.
type OrdersPlaced struct {
	CheckoutID    string   `json:"checkoutId"`
	UserID        string   `json:"userId"`
	OrderIDs      []string `json:"orderIds"`
	Amount        string   `json:"amount"`
	PaymentMethod string   `json:"paymentMethod"`
	CouponCode    string   `json:"couponCode,omitempty"`
}

const EventOrdersPlaced = "OrdersPlaced"

func (c Checkout) PlacedEvent() OrdersPlaced {
	ev := OrdersPlaced{
		CheckoutID:    c.ID,
		UserID:        c.UserID,
		OrderIDs:      c.OrderIDs(),
		Amount:        c.Amount().StringFixed(2),
		PaymentMethod: string(c.Method),
	}
	if len(c.Orders) > 0 && c.Orders[0].IsCouponUsed {
		ev.CouponCode = c.Orders[0].Coupon.Code
	}
	return ev
}
