// Command seed-db loads a demo fixture (branches, cashiers, orders, refunds)
// into the database so the API can be exercised locally without a terminal
// feed.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mollapos/shift-service/internal/repository"
)

type fixture struct {
	Branches []branchJSON  `json:"branches"`
	Cashiers []cashierJSON `json:"cashiers"`
	Orders   []orderJSON   `json:"orders"`
	Refunds  []refundJSON  `json:"refunds"`
}

type branchJSON struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	StoreID string `json:"storeId"`
}

type cashierJSON struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	BranchID string `json:"branchId"`
}

type orderJSON struct {
	ID            string          `json:"id"`
	CashierID     string          `json:"cashierId"`
	BranchID      string          `json:"branchId"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"paymentMethod"`
	CreatedAt     time.Time       `json:"createdAt"`
	Items         []itemJSON      `json:"items"`
}

type itemJSON struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
}

type refundJSON struct {
	ID            string          `json:"id"`
	OrderID       string          `json:"orderId"`
	CashierID     string          `json:"cashierId"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"paymentMethod"`
	Reason        string          `json:"reason"`
	CreatedAt     time.Time       `json:"createdAt"`
}

func main() {
	var (
		databaseURL string
		fixtureFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&fixtureFile, "fixture-file", "db/seed/demo.json", "path to demo fixture JSON")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, fixtureFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, fixtureFile string) error {
	slog.Info("reading fixture", slog.String("path", fixtureFile))

	data, err := os.ReadFile(fixtureFile)
	if err != nil {
		return errors.Wrap(err, "read fixture file")
	}
	var fx fixture
	if err := json.Unmarshal(data, &fx); err != nil {
		return errors.Wrap(err, "parse fixture JSON")
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedBranches(ctx, pool, fx.Branches); err != nil {
		return errors.Wrap(err, "seed branches")
	}
	if err := seedCashiers(ctx, pool, fx.Cashiers); err != nil {
		return errors.Wrap(err, "seed cashiers")
	}
	if err := seedOrders(ctx, pool, fx.Orders); err != nil {
		return errors.Wrap(err, "seed orders")
	}
	if err := seedRefunds(ctx, pool, fx.Refunds); err != nil {
		return errors.Wrap(err, "seed refunds")
	}

	return nil
}

func seedBranches(ctx context.Context, pool *pgxpool.Pool, branches []branchJSON) error {
	slog.Info("upserting branches", slog.Int("count", len(branches)))

	for _, b := range branches {
		if _, err := pool.Exec(ctx,
			`INSERT INTO branches (id, name, store_id) VALUES ($1, $2, $3)
			 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, store_id = EXCLUDED.store_id`,
			b.ID, b.Name, b.StoreID,
		); err != nil {
			return errors.Wrapf(err, "upsert branch %s", b.ID)
		}
	}
	return nil
}

func seedCashiers(ctx context.Context, pool *pgxpool.Pool, cashiers []cashierJSON) error {
	slog.Info("upserting cashiers", slog.Int("count", len(cashiers)))

	for _, c := range cashiers {
		role := c.Role
		if role == "" {
			role = "cashier"
		}
		if _, err := pool.Exec(ctx,
			`INSERT INTO cashiers (id, name, role, branch_id) VALUES ($1, $2, $3, NULLIF($4, ''))
			 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, role = EXCLUDED.role, branch_id = EXCLUDED.branch_id`,
			c.ID, c.Name, role, c.BranchID,
		); err != nil {
			return errors.Wrapf(err, "upsert cashier %s", c.ID)
		}
	}
	return nil
}

func seedOrders(ctx context.Context, pool *pgxpool.Pool, orders []orderJSON) error {
	slog.Info("inserting orders", slog.Int("count", len(orders)))

	for _, o := range orders {
		tag, err := pool.Exec(ctx,
			`INSERT INTO orders (id, cashier_id, branch_id, total, payment_method, created_at)
			 VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
			 ON CONFLICT (id) DO NOTHING`,
			o.ID, o.CashierID, o.BranchID, o.Total, o.PaymentMethod, o.CreatedAt,
		)
		if err != nil {
			return errors.Wrapf(err, "insert order %s", o.ID)
		}
		if tag.RowsAffected() == 0 {
			continue
		}
		for _, item := range o.Items {
			if _, err := pool.Exec(ctx,
				`INSERT INTO order_items (order_id, product_id, product_name, quantity)
				 VALUES ($1, $2, $3, $4)`,
				o.ID, item.ProductID, item.ProductName, item.Quantity,
			); err != nil {
				return errors.Wrapf(err, "insert items for order %s", o.ID)
			}
		}
	}
	return nil
}

func seedRefunds(ctx context.Context, pool *pgxpool.Pool, refunds []refundJSON) error {
	slog.Info("inserting refunds", slog.Int("count", len(refunds)))

	for _, r := range refunds {
		if _, err := pool.Exec(ctx,
			`INSERT INTO refunds (id, order_id, cashier_id, amount, payment_method, reason, created_at)
			 VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7)
			 ON CONFLICT (id) DO NOTHING`,
			r.ID, r.OrderID, r.CashierID, r.Amount, r.PaymentMethod, r.Reason, r.CreatedAt,
		); err != nil {
			return errors.Wrapf(err, "insert refund %s", r.ID)
		}
	}
	return nil
}
