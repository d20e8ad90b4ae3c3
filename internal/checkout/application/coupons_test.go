package application

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/Marketplace-Checkout/internal/checkout/domain"
	"github.com/dmehra2102/Marketplace-Checkout/pkg/apperr"
)

var admin = domain.Principal{UserID: "admin-1", Email: "Admin@Shop.example"}

func TestCreateCoupon_NormalizesAndStores(t *testing.T) {
	f := newFixture()

	c, err := f.svc.CreateCoupon(context.Background(), admin, NewCoupon{
		Code:            " summer ",
		DiscountPercent: dec("15"),
		ExpiresAt:       fixedNow.Add(48 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "SUMMER", c.Code)
	assert.Equal(t, fixedNow, c.CreatedAt)

	stored, err := f.coupons.FindCoupon(context.Background(), "SUMMER")
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestCreateCoupon_Rejections(t *testing.T) {
	f := newFixture(tenOff())
	valid := NewCoupon{Code: "NEW", DiscountPercent: dec("5"), ExpiresAt: fixedNow.Add(time.Hour)}

	tests := []struct {
		name      string
		principal domain.Principal
		mutate    func(*NewCoupon)
		want      apperr.Kind
	}{
		{"anonymous", domain.Principal{}, func(*NewCoupon) {}, apperr.KindUnauthorized},
		{"not admin", shopper, func(*NewCoupon) {}, apperr.KindForbidden},
		{"empty code", admin, func(c *NewCoupon) { c.Code = "" }, apperr.KindMissingFields},
		{"zero percent", admin, func(c *NewCoupon) { c.DiscountPercent = dec("0") }, apperr.KindMissingFields},
		{"over hundred", admin, func(c *NewCoupon) { c.DiscountPercent = dec("100.5") }, apperr.KindMissingFields},
		{"past expiry", admin, func(c *NewCoupon) { c.ExpiresAt = fixedNow.Add(-time.Hour) }, apperr.KindMissingFields},
		{"duplicate", admin, func(c *NewCoupon) { c.Code = "save10" }, apperr.KindCouponExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := f.svc.CreateCoupon(context.Background(), tt.principal, in)
			assert.Equal(t, tt.want, apperr.KindOf(err))
		})
	}
}

func TestDeleteCoupon(t *testing.T) {
	f := newFixture(tenOff())

	require.NoError(t, f.svc.DeleteCoupon(context.Background(), admin, "save10"))
	err := f.svc.DeleteCoupon(context.Background(), admin, "SAVE10")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestListCoupons_RequiresAdmin(t *testing.T) {
	f := newFixture(tenOff())

	got, err := f.svc.ListCoupons(context.Background(), admin)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = f.svc.ListCoupons(context.Background(), shopper)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestSweepExpiredCoupons_KeepsOrderSnapshots(t *testing.T) {
	old := tenOff()
	old.Code = "OLD"
	old.ExpiresAt = fixedNow.Add(-time.Hour)
	f := newFixture(tenOff(), old)

	n, err := f.svc.SweepExpiredCoupons(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	gone, err := f.coupons.FindCoupon(context.Background(), "OLD")
	require.NoError(t, err)
	assert.Nil(t, gone)
	kept, err := f.coupons.FindCoupon(context.Background(), "SAVE10")
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestCouponSweeper_StopsOnCancel(t *testing.T) {
	old := tenOff()
	old.ExpiresAt = fixedNow.Add(-time.Hour)
	f := newFixture(old)
	w := NewCouponSweeper(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		c, _ := f.coupons.FindCoupon(context.Background(), "SAVE10")
		return c == nil
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
