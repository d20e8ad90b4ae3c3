package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/Marketplace-Checkout/internal/checkout/domain"
	"github.com/dmehra2102/Marketplace-Checkout/pkg/outbox"
)

// Repository backs the catalog, coupon and order ports with one pool.
type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) ProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, store_id, price FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.Product, len(ids))
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.StoreID, &p.Price); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (r *Repository) FindCoupon(ctx context.Context, code string) (*domain.Coupon, error) {
	var c domain.Coupon
	err := r.pool.QueryRow(ctx, `SELECT code, description, discount_percent, for_new_user_only, for_plus_member_only, expires_at, created_at
		FROM coupons WHERE code=$1`, code).
		Scan(&c.Code, &c.Description, &c.DiscountPercent, &c.ForNewUserOnly, &c.ForPlusMemberOnly, &c.ExpiresAt, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find coupon %s: %w", code, err)
	}
	return &c, nil
}

func (r *Repository) CreateCoupon(ctx context.Context, c domain.Coupon) error {
	ct, err := r.pool.Exec(ctx, `INSERT INTO coupons (code, description, discount_percent, for_new_user_only, for_plus_member_only, expires_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (code) DO NOTHING`,
		c.Code, c.Description, c.DiscountPercent, c.ForNewUserOnly, c.ForPlusMemberOnly, c.ExpiresAt, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert coupon %s: %w", c.Code, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("insert coupon %s: %w", c.Code, domain.ErrCouponExists)
	}
	return nil
}

func (r *Repository) ListCoupons(ctx context.Context) ([]domain.Coupon, error) {
	rows, err := r.pool.Query(ctx, `SELECT code, description, discount_percent, for_new_user_only, for_plus_member_only, expires_at, created_at
		FROM coupons ORDER BY created_at DESC, code`)
	if err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	defer rows.Close()

	var out []domain.Coupon
	for rows.Next() {
		var c domain.Coupon
		if err := rows.Scan(&c.Code, &c.Description, &c.DiscountPercent, &c.ForNewUserOnly, &c.ForPlusMemberOnly, &c.ExpiresAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) DeleteCoupon(ctx context.Context, code string) (bool, error) {
	ct, err := r.pool.Exec(ctx, `DELETE FROM coupons WHERE code=$1`, code)
	if err != nil {
		return false, fmt.Errorf("delete coupon %s: %w", code, err)
	}
	return ct.RowsAffected() > 0, nil
}

func (r *Repository) DeleteExpiredCoupons(ctx context.Context, now time.Time) (int64, error) {
	ct, err := r.pool.Exec(ctx, `DELETE FROM coupons WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired coupons: %w", err)
	}
	return ct.RowsAffected(), nil
}

func (r *Repository) CountOrdersByUser(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM orders WHERE user_id=$1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return n, nil
}

func (r *Repository) SaveCheckout(ctx context.Context, c domain.Checkout, clearCart bool, event outbox.Event) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	batch := &pgx.Batch{}
	for _, o := range c.Orders {
		snapshot, err := couponJSON(o.Coupon)
		if err != nil {
			return err
		}
		batch.Queue(`INSERT INTO orders (id, checkout_id, user_id, store_id, address_id, total, payment_method, is_paid, is_coupon_used, coupon, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11)`,
			o.ID, o.CheckoutID, o.UserID, o.StoreID, o.AddressID, o.Total, string(o.PaymentMethod), o.IsPaid, o.IsCouponUsed, snapshot, o.CreatedAt)
		for i, item := range o.Items {
			batch.Queue(`INSERT INTO order_items (order_id, line_no, product_id, quantity, price) VALUES ($1,$2,$3,$4,$5)`,
				o.ID, i+1, item.ProductID, item.Quantity, item.Price)
		}
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert orders: %w", err)
	}

	headers := event.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	_, err = tx.Exec(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status) VALUES ($1,$2,$3,$4,$5,$6,'pending')`,
		event.AggregateType, event.AggregateID, event.Type, event.Payload, headers, event.Traceparent)
	if err != nil {
		return fmt.Errorf("insert outbox: %w", err)
	}

	if clearCart {
		if _, err := tx.Exec(ctx, `UPDATE users SET cart='{}'::jsonb WHERE id=$1`, c.UserID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// ListOrdersByUser returns every order of the user with its items, newest
// first.
func (r *Repository) ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, checkout_id, user_id, store_id, address_id, total, payment_method, is_paid, is_coupon_used, coupon, created_at
		FROM orders WHERE user_id=$1 ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	index := map[string]int{}
	for rows.Next() {
		var o domain.Order
		var method string
		var coupon []byte
		if err := rows.Scan(&o.ID, &o.CheckoutID, &o.UserID, &o.StoreID, &o.AddressID, &o.Total, &method, &o.IsPaid, &o.IsCouponUsed, &coupon, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.PaymentMethod = domain.PaymentMethod(method)
		if len(coupon) > 0 {
			if err := json.Unmarshal(coupon, &o.Coupon); err != nil {
				return nil, fmt.Errorf("decode coupon snapshot of order %s: %w", o.ID, err)
			}
		}
		index[o.ID] = len(orders)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	itemRows, err := r.pool.Query(ctx, `SELECT order_id, product_id, quantity, price FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, line_no`, ids)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var orderID string
		var item domain.OrderItem
		if err := itemRows.Scan(&orderID, &item.ProductID, &item.Quantity, &item.Price); err != nil {
			return nil, err
		}
		i := index[orderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	return orders, itemRows.Err()
}

func couponJSON(s domain.CouponSnapshot) ([]byte, error) {
	if s.IsZero() {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode coupon snapshot: %w", err)
	}
	return b, nil
}
