// Package staff provides lookups for cashiers and branches. The full employee
// and branch CRUD lives in other services; the shift engine only needs to
// resolve ids and default branch assignments.
package staff

import (
	"context"
	"fmt"
)

// Cashier is a user allowed to open shifts.
type Cashier struct {
	ID       string
	Name     string
	Role     string
	BranchID string
}

// Branch is a sales location.
type Branch struct {
	ID      string
	Name    string
	StoreID string
}

// NotFoundError reports a missing cashier or branch by id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// Repository resolves cashier and branch references.
type Repository interface {
	GetCashier(ctx context.Context, id string) (*Cashier, error)
	GetBranch(ctx context.Context, id string) (*Branch, error)
}
