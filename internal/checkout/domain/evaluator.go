package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/Marketplace-Checkout/pkg/apperr"
)

// Eligibility is the shopper context a coupon is checked against.
type Eligibility struct {
	HasPriorOrders bool
	ElevatedMember bool
}

// CouponDecision is the evaluator's successful outcome. The zero value means
// no coupon applies.
type CouponDecision struct {
	Applied bool
	Coupon  CouponSnapshot
	Percent decimal.Decimal
}

// EvaluateCoupon applies the eligibility rules to a looked-up coupon. A nil
// coupon for a supplied code is CouponNotFound; rules are checked in order and
// the first failure wins.
func EvaluateCoupon(coupon *Coupon, elig Eligibility, now time.Time) (CouponDecision, error) {
	if coupon == nil {
		return CouponDecision{}, apperr.New(apperr.KindCouponNotFound, "coupon not found")
	}
	if coupon.ForNewUserOnly && elig.HasPriorOrders {
		return CouponDecision{}, apperr.New(apperr.KindNotEligibleNewUserOnly, "coupon valid for new users only")
	}
	if coupon.ForPlusMemberOnly && !elig.ElevatedMember {
		return CouponDecision{}, apperr.New(apperr.KindNotEligiblePlanRequired, "coupon valid only for premium members")
	}
	if coupon.Expired(now) {
		return CouponDecision{}, apperr.New(apperr.KindCouponExpired, "coupon has expired")
	}
	return CouponDecision{
		Applied: true,
		Coupon:  coupon.Snapshot(),
		Percent: coupon.DiscountPercent,
	}, nil
}

// Apply reduces amount by the decision's percentage. Unapplied decisions
// return amount unchanged.
func (d CouponDecision) Apply(amount decimal.Decimal) decimal.Decimal {
	if !d.Applied || d.Percent.IsZero() {
		return amount
	}
	return amount.Sub(amount.Mul(d.Percent).Div(hundred))
}
