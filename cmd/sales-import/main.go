// Command sales-import loads gzipped CSV order exports from legacy POS
// terminals into the orders and order_items tables. Each export row is one
// order line:
//
//	order_id,cashier_id,branch_id,total,payment_method,created_at,product_id,product_name,quantity
//
// Re-running an import is safe: a bloom filter over already-imported order
// ids skips most duplicates without a database round trip, and the filter's
// false positives are settled with an EXISTS query.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/mollapos/shift-service/internal/repository"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	maxParallel   = 4
	recordFields  = 9
)

type orderRecord struct {
	id        string
	cashierID string
	branchID  string
	total     decimal.Decimal
	method    string
	createdAt time.Time
	items     []itemRecord
}

type itemRecord struct {
	productID   string
	productName string
	quantity    int
}

// seenOrders wraps the bloom filter with a mutex; the filter itself is not
// safe for concurrent use.
type seenOrders struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
}

func (s *seenOrders) test(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter.TestString(id)
}

func (s *seenOrders) add(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter.AddString(id)
}

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing orders-*.csv.gz exports")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
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

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("sales import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("sales import completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "orders-*.csv.gz"))
	if err != nil {
		return errors.Wrap(err, "list export files")
	}
	if len(files) == 0 {
		return errors.Errorf("no orders-*.csv.gz files in %s", dataDir)
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	seen, err := loadSeenOrders(ctx, pool)
	if err != nil {
		return errors.Wrap(err, "load imported order ids")
	}

	slog.Info("importing exports", slog.Int("files", len(files)))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for _, f := range files {
		g.Go(func() error {
			return importFile(ctx, pool, seen, f)
		})
	}
	return g.Wait()
}

// loadSeenOrders primes the bloom filter with every order id already in the
// database.
func loadSeenOrders(ctx context.Context, pool *pgxpool.Pool) (*seenOrders, error) {
	seen := &seenOrders{filter: bloom.NewWithEstimates(bloomCapacity, bloomFPR)}

	rows, err := pool.Query(ctx, `SELECT id FROM orders`)
	if err != nil {
		return nil, errors.Wrap(err, "query order ids")
	}
	defer rows.Close()

	var count int
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan order id")
		}
		seen.filter.AddString(id)
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "read order ids")
	}

	slog.Info("primed dedupe filter", slog.Int("existing_orders", count))
	return seen, nil
}

func importFile(ctx context.Context, pool *pgxpool.Pool, seen *seenOrders, path string) error {
	orders, err := parseExport(ctx, path)
	if err != nil {
		return errors.Wrapf(err, "parse %s", path)
	}

	var imported, skipped int
	for _, o := range orders {
		if seen.test(o.id) && existsInDB(ctx, pool, o.id) {
			skipped++
			continue
		}
		if err := insertOrder(ctx, pool, o); err != nil {
			return errors.Wrapf(err, "insert order %s", o.id)
		}
		seen.add(o.id)
		imported++
	}

	slog.Info("file imported",
		slog.String("file", filepath.Base(path)),
		slog.Int("orders", imported),
		slog.Int("skipped", skipped),
	)
	return nil
}

// parseExport streams a gzipped CSV export and groups rows by order id.
func parseExport(ctx context.Context, path string) ([]orderRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrap(err, "create gzip reader")
	}
	defer func() { _ = gz.Close() }()

	reader := csv.NewReader(gz)
	reader.FieldsPerRecord = recordFields

	index := make(map[string]int)
	var orders []orderRecord

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "read row")
		}

		o, item, err := parseRow(row)
		if err != nil {
			return nil, err
		}

		i, ok := index[o.id]
		if !ok {
			i = len(orders)
			index[o.id] = i
			orders = append(orders, o)
		}
		if item.productID != "" {
			orders[i].items = append(orders[i].items, item)
		}
	}
	return orders, nil
}

func parseRow(row []string) (orderRecord, itemRecord, error) {
	total, err := decimal.NewFromString(row[3])
	if err != nil {
		return orderRecord{}, itemRecord{}, errors.Wrapf(err, "order %s: invalid total %q", row[0], row[3])
	}
	createdAt, err := time.Parse(time.RFC3339, row[5])
	if err != nil {
		return orderRecord{}, itemRecord{}, errors.Wrapf(err, "order %s: invalid timestamp %q", row[0], row[5])
	}

	quantity := 0
	if row[8] != "" {
		if quantity, err = strconv.Atoi(row[8]); err != nil {
			return orderRecord{}, itemRecord{}, errors.Wrapf(err, "order %s: invalid quantity %q", row[0], row[8])
		}
	}

	o := orderRecord{
		id:        row[0],
		cashierID: row[1],
		branchID:  row[2],
		total:     total,
		method:    row[4],
		createdAt: createdAt,
	}
	item := itemRecord{productID: row[6], productName: row[7], quantity: quantity}
	return o, item, nil
}

func existsInDB(ctx context.Context, pool *pgxpool.Pool, id string) bool {
	var exists bool
	err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists)
	return err == nil && exists
}

// insertOrder writes the order and its items in one transaction.
func insertOrder(ctx context.Context, pool *pgxpool.Pool, o orderRecord) error {
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO orders (id, cashier_id, branch_id, total, payment_method, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (id) DO NOTHING`,
			o.id, o.cashierID, o.branchID, o.total, o.method, o.createdAt,
		)
		if err != nil {
			return err
		}
		for _, item := range o.items {
			if _, err := tx.Exec(ctx,
				`INSERT INTO order_items (order_id, product_id, product_name, quantity)
				 VALUES ($1, $2, $3, $4)`,
				o.id, item.productID, item.productName, item.quantity,
			); err != nil {
				return err
			}
		}
		return nil
	})
}
