package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mollapos/shift-service/internal/domain/staff"
)

const (
	getCashierSQL = `SELECT id, name, role, COALESCE(branch_id, '')
		FROM cashiers WHERE id = $1`

	getBranchSQL = `SELECT id, name, store_id
		FROM branches WHERE id = $1`
)

var _ staff.Repository = (*StaffRepository)(nil)

// StaffRepository provides cashier and branch lookups backed by PostgreSQL.
type StaffRepository struct {
	pool *pgxpool.Pool
}

// NewStaffRepository returns a StaffRepository that uses the given pool.
func NewStaffRepository(pool *pgxpool.Pool) *StaffRepository {
	return &StaffRepository{pool: pool}
}

// GetCashier returns the cashier or a staff.NotFoundError.
func (r *StaffRepository) GetCashier(ctx context.Context, id string) (*staff.Cashier, error) {
	var c staff.Cashier
	err := r.pool.QueryRow(ctx, getCashierSQL, id).Scan(&c.ID, &c.Name, &c.Role, &c.BranchID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &staff.NotFoundError{Kind: "cashier", ID: id}
		}
		return nil, fmt.Errorf("getting cashier %q: %w", id, err)
	}
	return &c, nil
}

// GetBranch returns the branch or a staff.NotFoundError.
func (r *StaffRepository) GetBranch(ctx context.Context, id string) (*staff.Branch, error) {
	var b staff.Branch
	err := r.pool.QueryRow(ctx, getBranchSQL, id).Scan(&b.ID, &b.Name, &b.StoreID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &staff.NotFoundError{Kind: "branch", ID: id}
		}
		return nil, fmt.Errorf("getting branch %q: %w", id, err)
	}
	return &b, nil
}
