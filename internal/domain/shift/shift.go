package shift

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/mollapos/shift-service/internal/domain/sales"
)

var (
	// ErrNoActiveShift is returned when End or a progress query needs an open
	// session and the cashier has none.
	ErrNoActiveShift = errors.New("no active shift found for cashier")
	// ErrNoBranch is returned when a new session cannot determine its branch:
	// none was given and the cashier has no assigned branch.
	ErrNoBranch = errors.New("no branch determinable for shift")
)

// NotFoundError reports a missing shift session. Ref names what was looked
// up, either a session id or a cashier-and-date pair.
type NotFoundError struct {
	Ref string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("shift session %s not found", e.Ref)
}

// Session is one cashier's bounded work session. ShiftEnd == nil means the
// session is still open. The totals are zero until End fixes them.
type Session struct {
	ID        string
	CashierID string
	BranchID  string

	ShiftStart time.Time
	ShiftEnd   *time.Time

	TotalSales   decimal.Decimal
	TotalRefunds decimal.Decimal
	NetSales     decimal.Decimal
	TotalOrders  int

	CreatedAt time.Time
}

// Open reports whether the session has not been closed yet.
func (s *Session) Open() bool {
	return s.ShiftEnd == nil
}

// Report is a session together with its computed reconciliation view. The
// summary part is derived per request and never persisted.
type Report struct {
	Session
	sales.Summary
}

// Store persists shift sessions.
//
// Save must guarantee that two concurrent inserts of open sessions for the
// same cashier do not both succeed; the losing call returns ErrOpenConflict
// and the service resolves the winner.
type Store interface {
	Save(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, id string) (*Session, error)
	// FindOpenForCashier returns the cashier's most recent open session by
	// shift start, or nil when every session is closed.
	FindOpenForCashier(ctx context.Context, cashierID string) (*Session, error)
	// FindForCashierOnDay returns the session whose shift start falls within
	// [dayStart, dayEnd), or nil.
	FindForCashierOnDay(ctx context.Context, cashierID string, dayStart, dayEnd time.Time) (*Session, error)
	ListByBranch(ctx context.Context, branchID string) ([]Session, error)
	ListByCashier(ctx context.Context, cashierID string) ([]Session, error)
	ListAll(ctx context.Context) ([]Session, error)
}

// ErrOpenConflict is returned by Store.Save when inserting a second open
// session for a cashier. The caller should re-read and return the winner.
var ErrOpenConflict = errors.New("cashier already has an open shift")
