package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mollapos/shift-service/internal/domain/shift"
)

const (
	shiftColumns = `id, cashier_id, branch_id, shift_start, shift_end,
		total_sales, total_refunds, net_sales, total_orders, created_at`

	saveShiftSQL = `INSERT INTO shift_sessions
		(id, cashier_id, branch_id, shift_start, shift_end,
		 total_sales, total_refunds, net_sales, total_orders, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			shift_end     = EXCLUDED.shift_end,
			total_sales   = EXCLUDED.total_sales,
			total_refunds = EXCLUDED.total_refunds,
			net_sales     = EXCLUDED.net_sales,
			total_orders  = EXCLUDED.total_orders`

	getShiftByIDSQL = `SELECT ` + shiftColumns + `
		FROM shift_sessions WHERE id = $1`

	findOpenShiftSQL = `SELECT ` + shiftColumns + `
		FROM shift_sessions
		WHERE cashier_id = $1 AND shift_end IS NULL
		ORDER BY shift_start DESC
		LIMIT 1`

	findShiftOnDaySQL = `SELECT ` + shiftColumns + `
		FROM shift_sessions
		WHERE cashier_id = $1 AND shift_start >= $2 AND shift_start < $3
		ORDER BY shift_start DESC
		LIMIT 1`

	listShiftsByBranchSQL = `SELECT ` + shiftColumns + `
		FROM shift_sessions WHERE branch_id = $1 ORDER BY shift_start DESC`

	listShiftsByCashierSQL = `SELECT ` + shiftColumns + `
		FROM shift_sessions WHERE cashier_id = $1 ORDER BY shift_start DESC`

	listShiftsSQL = `SELECT ` + shiftColumns + `
		FROM shift_sessions ORDER BY shift_start DESC`
)

// pgUniqueViolation is the SQLSTATE for a unique constraint violation.
const pgUniqueViolation = "23505"

var _ shift.Store = (*ShiftRepository)(nil)

// ShiftRepository implements shift.Store backed by PostgreSQL. The single
// open session per cashier is enforced by a partial unique index on
// (cashier_id) WHERE shift_end IS NULL, so concurrent opens are resolved by
// the database rather than application locks.
type ShiftRepository struct {
	pool *pgxpool.Pool
}

// NewShiftRepository returns a ShiftRepository that uses the given pool.
func NewShiftRepository(pool *pgxpool.Pool) *ShiftRepository {
	return &ShiftRepository{pool: pool}
}

// Save inserts a session or, for an existing id, updates its closing state.
// Inserting a second open session for a cashier returns shift.ErrOpenConflict.
func (r *ShiftRepository) Save(ctx context.Context, s *shift.Session) error {
	_, err := r.pool.Exec(ctx, saveShiftSQL,
		s.ID, s.CashierID, s.BranchID, s.ShiftStart, s.ShiftEnd,
		s.TotalSales, s.TotalRefunds, s.NetSales, s.TotalOrders, s.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == "uq_shift_sessions_open" {
			return shift.ErrOpenConflict
		}
		return fmt.Errorf("saving shift session %q: %w", s.ID, err)
	}
	return nil
}

// GetByID returns the session or a shift.NotFoundError.
func (r *ShiftRepository) GetByID(ctx context.Context, id string) (*shift.Session, error) {
	rows, err := r.pool.Query(ctx, getShiftByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting shift session %q: %w", id, err)
	}

	s, err := pgx.CollectExactlyOneRow(rows, scanShift)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &shift.NotFoundError{Ref: id}
		}
		return nil, fmt.Errorf("getting shift session %q: %w", id, err)
	}
	return &s, nil
}

// FindOpenForCashier returns the cashier's open session, or nil when every
// session is closed.
func (r *ShiftRepository) FindOpenForCashier(ctx context.Context, cashierID string) (*shift.Session, error) {
	return r.findOne(ctx, findOpenShiftSQL, cashierID)
}

// FindForCashierOnDay returns the session started within [dayStart, dayEnd),
// or nil.
func (r *ShiftRepository) FindForCashierOnDay(ctx context.Context, cashierID string, dayStart, dayEnd time.Time) (*shift.Session, error) {
	return r.findOne(ctx, findShiftOnDaySQL, cashierID, dayStart, dayEnd)
}

func (r *ShiftRepository) findOne(ctx context.Context, sql string, args ...any) (*shift.Session, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("finding shift session: %w", err)
	}

	s, err := pgx.CollectExactlyOneRow(rows, scanShift)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding shift session: %w", err)
	}
	return &s, nil
}

// ListByBranch returns the branch's sessions, newest shift first.
func (r *ShiftRepository) ListByBranch(ctx context.Context, branchID string) ([]shift.Session, error) {
	return r.list(ctx, listShiftsByBranchSQL, branchID)
}

// ListByCashier returns the cashier's sessions, newest shift first.
func (r *ShiftRepository) ListByCashier(ctx context.Context, cashierID string) ([]shift.Session, error) {
	return r.list(ctx, listShiftsByCashierSQL, cashierID)
}

// ListAll returns every session, newest shift first.
func (r *ShiftRepository) ListAll(ctx context.Context) ([]shift.Session, error) {
	return r.list(ctx, listShiftsSQL)
}

func (r *ShiftRepository) list(ctx context.Context, sql string, args ...any) ([]shift.Session, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing shift sessions: %w", err)
	}
	return pgx.CollectRows(rows, scanShift)
}

func scanShift(row pgx.CollectableRow) (shift.Session, error) {
	var s shift.Session
	err := row.Scan(
		&s.ID, &s.CashierID, &s.BranchID, &s.ShiftStart, &s.ShiftEnd,
		&s.TotalSales, &s.TotalRefunds, &s.NetSales, &s.TotalOrders, &s.CreatedAt,
	)
	return s, err
}
