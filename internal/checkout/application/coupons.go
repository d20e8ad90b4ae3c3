package application

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/Marketplace-Checkout/internal/checkout/domain"
	"github.com/dmehra2102/Marketplace-Checkout/pkg/apperr"
)

type NewCoupon struct {
	Code              string
	Description       string
	DiscountPercent   decimal.Decimal
	ForNewUserOnly    bool
	ForPlusMemberOnly bool
	ExpiresAt         time.Time
}

func (s *Service) requireAdmin(principal domain.Principal) error {
	if !principal.Authenticated() {
		return apperr.New(apperr.KindUnauthorized, "not authorized")
	}
	email := strings.ToLower(strings.TrimSpace(principal.Email))
	if email == "" {
		return apperr.New(apperr.KindForbidden, "admin access required")
	}
	for _, admin := range s.opts.AdminEmails {
		if strings.EqualFold(admin, email) {
			return nil
		}
	}
	return apperr.New(apperr.KindForbidden, "admin access required")
}

func (s *Service) CreateCoupon(ctx context.Context, principal domain.Principal, in NewCoupon) (domain.Coupon, error) {
	if err := s.requireAdmin(principal); err != nil {
		return domain.Coupon{}, err
	}
	now := s.now()
	c := domain.Coupon{
		Code:              domain.NormalizeCode(in.Code),
		Description:       strings.TrimSpace(in.Description),
		DiscountPercent:   in.DiscountPercent,
		ForNewUserOnly:    in.ForNewUserOnly,
		ForPlusMemberOnly: in.ForPlusMemberOnly,
		ExpiresAt:         in.ExpiresAt.UTC(),
		CreatedAt:         now,
	}
	switch {
	case c.Code == "":
		return domain.Coupon{}, apperr.New(apperr.KindMissingFields, "coupon code is required")
	case !c.DiscountPercent.IsPositive() || c.DiscountPercent.GreaterThan(hundredPercent):
		return domain.Coupon{}, apperr.New(apperr.KindMissingFields, "discount must be greater than 0 and at most 100")
	case c.ExpiresAt.IsZero() || !c.ExpiresAt.After(now):
		return domain.Coupon{}, apperr.New(apperr.KindMissingFields, "expiry must be in the future")
	}

	if err := s.coupons.CreateCoupon(ctx, c); err != nil {
		if errors.Is(err, domain.ErrCouponExists) {
			return domain.Coupon{}, apperr.New(apperr.KindCouponExists, "coupon code already exists")
		}
		return domain.Coupon{}, apperr.Wrap(apperr.KindStoreWriteError, err, "create coupon")
	}
	s.log.Info("coupon created", "code", c.Code, "expires_at", c.ExpiresAt)
	return c, nil
}

var hundredPercent = decimal.NewFromInt(100)

func (s *Service) ListCoupons(ctx context.Context, principal domain.Principal) ([]domain.Coupon, error) {
	if err := s.requireAdmin(principal); err != nil {
		return nil, err
	}
	coupons, err := s.coupons.ListCoupons(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "list coupons")
	}
	return coupons, nil
}

func (s *Service) DeleteCoupon(ctx context.Context, principal domain.Principal, code string) error {
	if err := s.requireAdmin(principal); err != nil {
		return err
	}
	code = domain.NormalizeCode(code)
	if code == "" {
		return apperr.New(apperr.KindMissingFields, "coupon code is required")
	}
	ok, err := s.coupons.DeleteCoupon(ctx, code)
	if err != nil {
		return apperr.Wrap(apperr.KindStoreWriteError, err, "delete coupon")
	}
	if !ok {
		return apperr.Newf(apperr.KindNotFound, "coupon %s not found", code)
	}
	s.log.Info("coupon deleted", "code", code)
	return nil
}

// SweepExpiredCoupons deletes every coupon whose expiry has passed. Orders
// that used them keep their snapshots.
func (s *Service) SweepExpiredCoupons(ctx context.Context) (int64, error) {
	n, err := s.coupons.DeleteExpiredCoupons(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("expired coupons removed", "count", n)
	}
	return n, nil
}

type CouponSweeper struct {
	log      *slog.Logger
	svc      *Service
	interval time.Duration
}

func NewCouponSweeper(log *slog.Logger, svc *Service, interval time.Duration) *CouponSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &CouponSweeper{log: log, svc: svc, interval: interval}
}

func (w *CouponSweeper) Run(ctx context.Context) error {
	t := time.NewTicker(w.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("coupon sweeper stopping")
			return nil
		case <-t.C:
			if _, err := w.svc.SweepExpiredCoupons(ctx); err != nil {
				w.log.Error("coupon sweep failed", "err", err)
			}
		}
	}
}
