package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mollapos/shift-service/internal/domain/sales"
)

const (
	ordersInWindowSQL = `SELECT id, total, payment_method, created_at
		FROM orders
		WHERE cashier_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at`

	orderItemsSQL = `SELECT order_id, product_id, product_name, quantity
		FROM order_items
		WHERE order_id = ANY($1)`

	refundsInWindowSQL = `SELECT id, COALESCE(order_id, ''), amount, payment_method, reason, created_at
		FROM refunds
		WHERE cashier_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at`
)

var _ sales.Source = (*SalesRepository)(nil)

// SalesRepository implements sales.Source backed by PostgreSQL. All window
// queries are half-open [start, end): a transaction stamped exactly at the
// shift end belongs to the next shift.
type SalesRepository struct {
	pool *pgxpool.Pool
}

// NewSalesRepository returns a SalesRepository that uses the given pool.
func NewSalesRepository(pool *pgxpool.Pool) *SalesRepository {
	return &SalesRepository{pool: pool}
}

// OrdersForCashier returns the cashier's orders in the window, with line
// items attached, ordered oldest first.
func (r *SalesRepository) OrdersForCashier(ctx context.Context, cashierID string, start, end time.Time) ([]sales.OrderFact, error) {
	rows, err := r.pool.Query(ctx, ordersInWindowSQL, cashierID, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying orders: %w", err)
	}

	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (sales.OrderFact, error) {
		var (
			o      sales.OrderFact
			method string
		)
		err := row.Scan(&o.ID, &o.Amount, &method, &o.CreatedAt)
		o.Method = sales.PaymentMethod(method)
		return o, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning orders: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachItems fetches line items for all orders in one round trip and folds
// them back onto their orders.
func (r *SalesRepository) attachItems(ctx context.Context, orders []sales.OrderFact) error {
	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := r.pool.Query(ctx, orderItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("querying order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			item    sales.LineItem
		)
		if err := rows.Scan(&orderID, &item.ProductID, &item.ProductName, &item.Quantity); err != nil {
			return fmt.Errorf("scanning order item: %w", err)
		}
		if i, ok := index[orderID]; ok {
			orders[i].Items = append(orders[i].Items, item)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading order items: %w", err)
	}
	return nil
}

// RefundsForCashier returns the cashier's refunds in the window, ordered
// oldest first.
func (r *SalesRepository) RefundsForCashier(ctx context.Context, cashierID string, start, end time.Time) ([]sales.RefundFact, error) {
	rows, err := r.pool.Query(ctx, refundsInWindowSQL, cashierID, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying refunds: %w", err)
	}

	refunds, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (sales.RefundFact, error) {
		var (
			f      sales.RefundFact
			method string
		)
		err := row.Scan(&f.ID, &f.OrderID, &f.Amount, &method, &f.Reason, &f.CreatedAt)
		f.Method = sales.PaymentMethod(method)
		return f, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning refunds: %w", err)
	}
	return refunds, nil
}
