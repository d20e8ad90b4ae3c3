package postgres

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/dmehra2102/Marketplace-Checkout/internal/settlement/domain"
)

func TestAuditSettlement(t *testing.T) {
	totals := []decimal.Decimal{decimal.RequireFromString("25.00"), decimal.RequireFromString("20.00")}

	tests := []struct {
		name     string
		orderIDs []string
		amount   int64
		totals   []decimal.Decimal
		mismatch bool
	}{
		{"matches", []string{"o1", "o2"}, 4500, totals, false},
		{"no amount reported", []string{"o1", "o2"}, 0, totals, false},
		{"amount differs", []string{"o1", "o2"}, 4499, totals, true},
		{"order missing", []string{"o1", "o2", "o3"}, 4500, totals, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := auditSettlement(domain.GatewayEvent{OrderIDs: tt.orderIDs, AmountMinor: tt.amount}, tt.totals)
			assert.Equal(t, 2, a.orders)
			assert.Equal(t, int64(4500), a.settledMinor)
			assert.Equal(t, tt.mismatch, a.mismatch)
		})
	}
}
