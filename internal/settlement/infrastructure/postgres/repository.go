package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/Marketplace-Checkout/internal/settlement/domain"
)

const (
	kindConfirmed = "confirmed"
	kindExpired   = "expired"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

// Settle claims the session row first; a concurrent duplicate blocks on the
// primary key and then finds nothing to insert.
func (r *Repository) Settle(ctx context.Context, ev domain.GatewayEvent) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	claimed, err := claim(ctx, tx, ev, kindConfirmed)
	if err != nil || !claimed {
		return false, err
	}

	rows, err := tx.Query(ctx, `UPDATE orders SET is_paid=true, updated_at=now() WHERE id = ANY($1) AND user_id=$2 AND is_paid=false RETURNING total`,
		ev.OrderIDs, ev.UserID)
	if err != nil {
		return false, fmt.Errorf("mark orders paid: %w", err)
	}
	totals, err := pgx.CollectRows(rows, pgx.RowTo[decimal.Decimal])
	if err != nil {
		return false, fmt.Errorf("mark orders paid: %w", err)
	}

	audit := auditSettlement(ev, totals)
	if audit.mismatch {
		r.log.Warn("confirmation does not match the orders it settled",
			"session_id", ev.SessionID,
			"referenced", len(ev.OrderIDs), "updated", audit.orders,
			"amount_minor", ev.AmountMinor, "settled_minor", audit.settledMinor)
	}
	if _, err := tx.Exec(ctx, `UPDATE settlements SET orders_settled=$3, settled_minor=$4, mismatch=$5 WHERE session_id=$1 AND kind=$2`,
		ev.SessionID, kindConfirmed, audit.orders, audit.settledMinor, audit.mismatch); err != nil {
		return false, fmt.Errorf("record settlement audit: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE users SET cart='{}'::jsonb WHERE id=$1`, ev.UserID); err != nil {
		return false, fmt.Errorf("clear cart: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

type settlementAudit struct {
	orders       int
	settledMinor int64
	mismatch     bool
}

// auditSettlement compares what a confirmation claims with the orders it
// actually moved to paid. A zero amount means the gateway did not report one.
func auditSettlement(ev domain.GatewayEvent, totals []decimal.Decimal) settlementAudit {
	sum := decimal.Zero
	for _, t := range totals {
		sum = sum.Add(t)
	}
	a := settlementAudit{
		orders:       len(totals),
		settledMinor: sum.Shift(2).Round(0).IntPart(),
	}
	a.mismatch = a.orders != len(ev.OrderIDs) || (ev.AmountMinor > 0 && a.settledMinor != ev.AmountMinor)
	return a
}

func (r *Repository) RecordExpiry(ctx context.Context, ev domain.GatewayEvent) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	claimed, err := claim(ctx, tx, ev, kindExpired)
	if err != nil || !claimed {
		return false, err
	}
	return true, tx.Commit(ctx)
}

func claim(ctx context.Context, tx pgx.Tx, ev domain.GatewayEvent, kind string) (bool, error) {
	orderIDs := ev.OrderIDs
	if orderIDs == nil {
		orderIDs = []string{}
	}
	ct, err := tx.Exec(ctx, `INSERT INTO settlements (session_id, kind, event_id, user_id, order_ids, amount_minor)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (session_id, kind) DO NOTHING`,
		ev.SessionID, kind, ev.EventID, ev.UserID, orderIDs, ev.AmountMinor)
	if err != nil {
		return false, fmt.Errorf("record settlement: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}
