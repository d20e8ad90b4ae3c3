package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Coupon struct {
	Code              string
	Description       string
	DiscountPercent   decimal.Decimal
	ForNewUserOnly    bool
	ForPlusMemberOnly bool
	ExpiresAt         time.Time
	CreatedAt         time.Time
}

// NormalizeCode is the canonical stored form of a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (c Coupon) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(now)
}

func (c Coupon) Snapshot() CouponSnapshot {
	return CouponSnapshot{
		Code:              c.Code,
		Description:       c.Description,
		DiscountPercent:   c.DiscountPercent,
		ForNewUserOnly:    c.ForNewUserOnly,
		ForPlusMemberOnly: c.ForPlusMemberOnly,
		ExpiresAt:         c.ExpiresAt,
	}
}

// CouponSnapshot is the copy of a coupon's terms stored on each order that
// used it. It is never linked back to the live coupon row.
type CouponSnapshot struct {
	Code              string          `json:"code"`
	Description       string          `json:"description,omitempty"`
	DiscountPercent   decimal.Decimal `json:"discountPercent"`
	ForNewUserOnly    bool            `json:"forNewUserOnly"`
	ForPlusMemberOnly bool            `json:"forPlusMemberOnly"`
	ExpiresAt         time.Time       `json:"expiresAt"`
}

func (s CouponSnapshot) IsZero() bool {
	return s.Code == ""
}

// ErrCouponExists is returned by stores when a coupon code is already taken.
var ErrCouponExists = errors.New("coupon code already exists")
