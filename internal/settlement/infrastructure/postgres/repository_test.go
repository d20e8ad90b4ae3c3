package postgres

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	checkoutpg "github.com/dmehra2102/Marketplace-Checkout/internal/checkout/infrastructure/postgres"
	"github.com/dmehra2102/Marketplace-Checkout/internal/settlement/domain"
	"github.com/dmehra2102/Marketplace-Checkout/test/integration"
)

func setup(t *testing.T) *pgxpool.Pool {
	t.Helper()
	pgURL := integration.Postgres(t)
	require.NoError(t, checkoutpg.Migrate(pgURL))

	pool, err := pgxpool.New(context.Background(), pgURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	ctx := context.Background()
	_, err = pool.Exec(ctx, `INSERT INTO users (id, cart) VALUES ('user-1', '{"A":1}'::jsonb)`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO orders (id, checkout_id, user_id, store_id, address_id, total, payment_method)
		VALUES ('o1','chk','user-1','S1','addr',25.00,'GATEWAY_CARD'),('o2','chk','user-1','S2','addr',20.00,'GATEWAY_CARD')`)
	require.NoError(t, err)
	return pool
}

func paidCount(t *testing.T, pool *pgxpool.Pool) int {
	t.Helper()
	var n int
	require.NoError(t, pool.QueryRow(context.Background(), `SELECT count(*) FROM orders WHERE is_paid`).Scan(&n))
	return n
}

func confirmation() domain.GatewayEvent {
	return domain.GatewayEvent{
		Type:        domain.PaymentConfirmed,
		EventID:     "evt_1",
		SessionID:   "cs_1",
		UserID:      "user-1",
		OrderIDs:    []string{"o1", "o2"},
		AmountMinor: 4500,
	}
}

func TestSettle_Idempotent(t *testing.T) {
	pool := setup(t)
	repo := NewRepository(slog.New(slog.NewTextHandler(io.Discard, nil)), pool)
	ctx := context.Background()

	applied, err := repo.Settle(ctx, confirmation())
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 2, paidCount(t, pool))

	var cart string
	require.NoError(t, pool.QueryRow(ctx, `SELECT cart::text FROM users WHERE id='user-1'`).Scan(&cart))
	assert.Equal(t, "{}", cart)

	applied, err = repo.Settle(ctx, confirmation())
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 2, paidCount(t, pool))
}

type settlementRow struct {
	orders       int
	settledMinor int64
	mismatch     bool
}

func settlementOf(t *testing.T, pool *pgxpool.Pool, sessionID string) settlementRow {
	t.Helper()
	var row settlementRow
	require.NoError(t, pool.QueryRow(context.Background(),
		`SELECT orders_settled, settled_minor, mismatch FROM settlements WHERE session_id=$1 AND kind='confirmed'`, sessionID).
		Scan(&row.orders, &row.settledMinor, &row.mismatch))
	return row
}

func TestSettle_RecordsWhatWasSettled(t *testing.T) {
	pool := setup(t)
	repo := NewRepository(slog.New(slog.NewTextHandler(io.Discard, nil)), pool)

	_, err := repo.Settle(context.Background(), confirmation())
	require.NoError(t, err)
	assert.Equal(t, settlementRow{orders: 2, settledMinor: 4500}, settlementOf(t, pool, "cs_1"))
}

func TestSettle_FlagsMismatch(t *testing.T) {
	pool := setup(t)
	repo := NewRepository(slog.New(slog.NewTextHandler(io.Discard, nil)), pool)

	ev := confirmation()
	ev.SessionID = "cs_short"
	ev.OrderIDs = []string{"o1", "missing"}
	ev.AmountMinor = 4500

	applied, err := repo.Settle(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 1, paidCount(t, pool))
	assert.Equal(t, settlementRow{orders: 1, settledMinor: 2500, mismatch: true}, settlementOf(t, pool, "cs_short"))
}

func TestSettle_ConcurrentDeliveries(t *testing.T) {
	pool := setup(t)
	repo := NewRepository(slog.New(slog.NewTextHandler(io.Discard, nil)), pool)

	var wg sync.WaitGroup
	results := make(chan bool, 4)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			applied, err := repo.Settle(context.Background(), confirmation())
			assert.NoError(t, err)
			results <- applied
		}()
	}
	wg.Wait()
	close(results)

	applied := 0
	for ok := range results {
		if ok {
			applied++
		}
	}
	assert.Equal(t, 1, applied)
	assert.Equal(t, 2, paidCount(t, pool))
}

func TestRecordExpiry_LeavesOrdersUnpaid(t *testing.T) {
	pool := setup(t)
	repo := NewRepository(slog.New(slog.NewTextHandler(io.Discard, nil)), pool)
	ev := confirmation()
	ev.Type = domain.PaymentExpired

	applied, err := repo.RecordExpiry(context.Background(), ev)
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = repo.RecordExpiry(context.Background(), ev)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Zero(t, paidCount(t, pool))
}
