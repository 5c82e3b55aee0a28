package shift

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mollapos/shift-service/internal/domain/sales"
	"github.com/mollapos/shift-service/internal/domain/staff"
)

// Service owns the shift state machine: NOT_STARTED -> OPEN (Start, at most
// once per cashier per calendar day) -> CLOSED (End, re-enterable as a
// correction). Aggregation is delegated to the sales package.
type Service struct {
	store  Store
	source sales.Source
	staff  staff.Repository
	now    func() time.Time
}

// NewService creates a shift Service with the required collaborators.
func NewService(store Store, source sales.Source, staffRepo staff.Repository) *Service {
	return &Service{
		store:  store,
		source: source,
		staff:  staffRepo,
		now:    time.Now,
	}
}

// StartRequest holds the input for opening a shift. BranchID and ShiftStart
// are optional: the branch defaults to the cashier's assigned branch and the
// start time to now.
type StartRequest struct {
	CashierID  string
	BranchID   string
	ShiftStart time.Time
}

// EndRequest holds the input for closing a shift. When ShiftID is empty the
// cashier's most recent open session is closed. ShiftEnd defaults to now.
type EndRequest struct {
	ShiftID   string
	CashierID string
	ShiftEnd  time.Time
}

// Start opens a shift for a cashier. Within one calendar day the call is
// idempotent: if a session already exists for the day it is returned
// unchanged, whether open or already closed. A same-day closed session is
// deliberately not replaced; re-opening requires manual intervention.
func (s *Service) Start(ctx context.Context, req StartRequest) (*Session, error) {
	cashier, err := s.staff.GetCashier(ctx, req.CashierID)
	if err != nil {
		return nil, err
	}

	start := req.ShiftStart
	if start.IsZero() {
		start = s.now()
	}

	dayStart, dayEnd := dayWindow(start)
	existing, err := s.store.FindForCashierOnDay(ctx, cashier.ID, dayStart, dayEnd)
	if err != nil {
		return nil, errors.Wrap(err, "find session for day")
	}
	if existing != nil {
		return existing, nil
	}

	branchID := req.BranchID
	if branchID != "" {
		branch, err := s.staff.GetBranch(ctx, branchID)
		if err != nil {
			return nil, err
		}
		branchID = branch.ID
	} else {
		branchID = cashier.BranchID
	}
	if branchID == "" {
		return nil, ErrNoBranch
	}

	session := &Session{
		ID:         uuid.New().String(),
		CashierID:  cashier.ID,
		BranchID:   branchID,
		ShiftStart: start,
		CreatedAt:  s.now(),
	}

	if err := s.store.Save(ctx, session); err != nil {
		// Lost the race against a concurrent Start: the winner's open session
		// is the session for the day.
		if errors.Is(err, ErrOpenConflict) {
			winner, findErr := s.store.FindOpenForCashier(ctx, cashier.ID)
			if findErr == nil && winner != nil {
				return winner, nil
			}
		}
		return nil, errors.Wrap(err, "save session")
	}

	return session, nil
}

// End closes a shift, reconciles its window, and persists the totals. This is
// the only operation that writes computed totals back to the store.
//
// Ending an already-closed session recomputes over the stored window and
// re-persists; it is a correction mechanism, not an error.
func (s *Service) End(ctx context.Context, req EndRequest) (*Report, error) {
	var (
		session *Session
		err     error
	)
	if req.ShiftID != "" {
		session, err = s.store.GetByID(ctx, req.ShiftID)
		if err != nil {
			return nil, err
		}
	} else {
		session, err = s.store.FindOpenForCashier(ctx, req.CashierID)
		if err != nil {
			return nil, errors.Wrap(err, "find open session")
		}
		if session == nil {
			return nil, ErrNoActiveShift
		}
	}

	end := req.ShiftEnd
	if session.ShiftEnd != nil {
		// Re-closing: keep the stored window so corrections are reproducible.
		end = *session.ShiftEnd
	} else if end.IsZero() {
		end = s.now()
	}

	orders, refunds, err := s.fetchWindow(ctx, session.CashierID, session.ShiftStart, end)
	if err != nil {
		return nil, err
	}

	summary := sales.Summarize(orders, refunds)

	session.ShiftEnd = &end
	session.TotalSales = summary.TotalSales
	session.TotalRefunds = summary.TotalRefunds
	session.NetSales = summary.NetSales
	session.TotalOrders = summary.TotalOrders

	if err := s.store.Save(ctx, session); err != nil {
		return nil, errors.Wrap(err, "save session")
	}

	return &Report{Session: *session, Summary: summary}, nil
}

// CurrentProgress reconciles the cashier's open shift against [shiftStart,
// now) without persisting anything; it is safe to poll at any frequency.
// When no shift is open it returns an explicit empty report so clients never
// have to special-case the response shape.
func (s *Service) CurrentProgress(ctx context.Context, cashierID string) (*Report, error) {
	cashier, err := s.staff.GetCashier(ctx, cashierID)
	if err != nil {
		return nil, err
	}

	session, err := s.store.FindOpenForCashier(ctx, cashier.ID)
	if err != nil {
		return nil, errors.Wrap(err, "find open session")
	}
	if session == nil {
		return &Report{
			Session: Session{CashierID: cashier.ID, BranchID: cashier.BranchID},
			Summary: sales.EmptySummary(),
		}, nil
	}

	return s.reconcile(ctx, session, s.now())
}

// GetByID returns a session with its breakdown re-derived from the stored
// window (or up to now for a still-open session).
func (s *Service) GetByID(ctx context.Context, id string) (*Report, error) {
	session, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	end := s.now()
	if session.ShiftEnd != nil {
		end = *session.ShiftEnd
	}
	return s.reconcile(ctx, session, end)
}

// GetByCashierAndDate returns the cashier's session for the calendar day
// containing date, with its breakdown re-derived.
func (s *Service) GetByCashierAndDate(ctx context.Context, cashierID string, date time.Time) (*Report, error) {
	cashier, err := s.staff.GetCashier(ctx, cashierID)
	if err != nil {
		return nil, err
	}

	dayStart, dayEnd := dayWindow(date)
	session, err := s.store.FindForCashierOnDay(ctx, cashier.ID, dayStart, dayEnd)
	if err != nil {
		return nil, errors.Wrap(err, "find session for day")
	}
	if session == nil {
		return nil, &NotFoundError{Ref: "cashier " + cashierID + " on " + dayStart.Format("2006-01-02")}
	}

	end := s.now()
	if session.ShiftEnd != nil {
		end = *session.ShiftEnd
	}
	return s.reconcile(ctx, session, end)
}

// ListByBranch returns all sessions recorded for a branch, persisted totals only.
func (s *Service) ListByBranch(ctx context.Context, branchID string) ([]Session, error) {
	return s.store.ListByBranch(ctx, branchID)
}

// ListByCashier returns all sessions recorded for a cashier, persisted totals only.
func (s *Service) ListByCashier(ctx context.Context, cashierID string) ([]Session, error) {
	return s.store.ListByCashier(ctx, cashierID)
}

// ListAll returns every recorded session, persisted totals only.
func (s *Service) ListAll(ctx context.Context) ([]Session, error) {
	return s.store.ListAll(ctx)
}

// reconcile computes the report for a session over [shiftStart, end) without
// touching the store. The returned session copy carries the computed totals
// for display.
func (s *Service) reconcile(ctx context.Context, session *Session, end time.Time) (*Report, error) {
	orders, refunds, err := s.fetchWindow(ctx, session.CashierID, session.ShiftStart, end)
	if err != nil {
		return nil, err
	}

	summary := sales.Summarize(orders, refunds)

	view := *session
	view.TotalSales = summary.TotalSales
	view.TotalRefunds = summary.TotalRefunds
	view.NetSales = summary.NetSales
	view.TotalOrders = summary.TotalOrders

	return &Report{Session: view, Summary: summary}, nil
}

// fetchWindow pulls order and refund facts for the window concurrently.
func (s *Service) fetchWindow(ctx context.Context, cashierID string, start, end time.Time) ([]sales.OrderFact, []sales.RefundFact, error) {
	var (
		orders  []sales.OrderFact
		refunds []sales.RefundFact
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if orders, err = s.source.OrdersForCashier(gctx, cashierID, start, end); err != nil {
			return errors.Wrap(err, "fetch orders")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if refunds, err = s.source.RefundsForCashier(gctx, cashierID, start, end); err != nil {
			return errors.Wrap(err, "fetch refunds")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	return orders, refunds, nil
}

// dayWindow returns the half-open calendar-day interval [midnight,
// next-midnight) containing t, in t's location.
func dayWindow(t time.Time) (time.Time, time.Time) {
	year, month, day := t.Date()
	start := time.Date(year, month, day, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}
