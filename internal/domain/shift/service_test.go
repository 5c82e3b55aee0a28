package shift

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mollapos/shift-service/internal/domain/sales"
	"github.com/mollapos/shift-service/internal/domain/staff"
)

// --- Mock implementations ---

type memStore struct {
	sessions  map[string]Session
	saveCalls int
	saveErr   error
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]Session)}
}

func (m *memStore) Save(_ context.Context, s *Session) error {
	m.saveCalls++
	if m.saveErr != nil {
		return m.saveErr
	}
	if s.Open() {
		for _, other := range m.sessions {
			if other.CashierID == s.CashierID && other.Open() && other.ID != s.ID {
				return ErrOpenConflict
			}
		}
	}
	m.sessions[s.ID] = *s
	return nil
}

func (m *memStore) GetByID(_ context.Context, id string) (*Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, &NotFoundError{Ref: id}
	}
	return &s, nil
}

func (m *memStore) FindOpenForCashier(_ context.Context, cashierID string) (*Session, error) {
	var found *Session
	for _, s := range m.sessions {
		if s.CashierID != cashierID || !s.Open() {
			continue
		}
		if found == nil || s.ShiftStart.After(found.ShiftStart) {
			cp := s
			found = &cp
		}
	}
	return found, nil
}

func (m *memStore) FindForCashierOnDay(_ context.Context, cashierID string, dayStart, dayEnd time.Time) (*Session, error) {
	for _, s := range m.sessions {
		if s.CashierID != cashierID {
			continue
		}
		if !s.ShiftStart.Before(dayStart) && s.ShiftStart.Before(dayEnd) {
			cp := s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListByBranch(_ context.Context, branchID string) ([]Session, error) {
	var out []Session
	for _, s := range m.sessions {
		if s.BranchID == branchID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) ListByCashier(_ context.Context, cashierID string) ([]Session, error) {
	var out []Session
	for _, s := range m.sessions {
		if s.CashierID == cashierID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) ListAll(_ context.Context) ([]Session, error) {
	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (m *memStore) openCount(cashierID string) int {
	n := 0
	for _, s := range m.sessions {
		if s.CashierID == cashierID && s.Open() {
			n++
		}
	}
	return n
}

type mockSource struct {
	orders  []sales.OrderFact
	refunds []sales.RefundFact
	err     error

	lastStart time.Time
	lastEnd   time.Time
}

func (m *mockSource) OrdersForCashier(_ context.Context, _ string, start, end time.Time) ([]sales.OrderFact, error) {
	m.lastStart, m.lastEnd = start, end
	return m.orders, m.err
}

func (m *mockSource) RefundsForCashier(_ context.Context, _ string, _, _ time.Time) ([]sales.RefundFact, error) {
	return m.refunds, m.err
}

type mockStaff struct {
	cashiers map[string]*staff.Cashier
	branches map[string]*staff.Branch
}

func (m *mockStaff) GetCashier(_ context.Context, id string) (*staff.Cashier, error) {
	if c, ok := m.cashiers[id]; ok {
		return c, nil
	}
	return nil, &staff.NotFoundError{Kind: "cashier", ID: id}
}

func (m *mockStaff) GetBranch(_ context.Context, id string) (*staff.Branch, error) {
	if b, ok := m.branches[id]; ok {
		return b, nil
	}
	return nil, &staff.NotFoundError{Kind: "branch", ID: id}
}

// --- Helpers ---

func newTestStaff() *mockStaff {
	return &mockStaff{
		cashiers: map[string]*staff.Cashier{
			"c1": {ID: "c1", Name: "Asha", Role: "cashier", BranchID: "b1"},
			"c2": {ID: "c2", Name: "Ravi", Role: "cashier"},
		},
		branches: map[string]*staff.Branch{
			"b1": {ID: "b1", Name: "Main Street"},
			"b2": {ID: "b2", Name: "Riverside"},
		},
	}
}

func newTestService(store Store, source sales.Source) *Service {
	return NewService(store, source, newTestStaff())
}

func at(hour, minute int) time.Time {
	return time.Date(2024, 3, 12, hour, minute, 0, 0, time.UTC)
}

// --- Tests ---

func TestStart_CreatesOpenSession(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &mockSource{})

	session, err := svc.Start(context.Background(), StartRequest{
		CashierID:  "c1",
		ShiftStart: at(9, 0),
	})

	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "c1", session.CashierID)
	assert.Equal(t, "b1", session.BranchID, "defaults to the cashier's branch")
	assert.True(t, session.Open())
	assert.Equal(t, at(9, 0), session.ShiftStart)
}

func TestStart_IdempotentWithinDay(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &mockSource{})

	first, err := svc.Start(context.Background(), StartRequest{CashierID: "c1", ShiftStart: at(9, 0)})
	require.NoError(t, err)

	second, err := svc.Start(context.Background(), StartRequest{CashierID: "c1", ShiftStart: at(14, 30)})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, store.openCount("c1"))
}

func TestStart_ReturnsClosedSameDaySession(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &mockSource{})

	end := at(12, 0)
	closed := Session{
		ID:         "s-closed",
		CashierID:  "c1",
		BranchID:   "b1",
		ShiftStart: at(8, 0),
		ShiftEnd:   &end,
	}
	store.sessions[closed.ID] = closed

	// A closed same-day session is returned as-is, never replaced.
	session, err := svc.Start(context.Background(), StartRequest{CashierID: "c1", ShiftStart: at(15, 0)})
	require.NoError(t, err)
	assert.Equal(t, "s-closed", session.ID)
	assert.False(t, session.Open())
	assert.Zero(t, store.openCount("c1"))
}

func TestStart_NewDayNewSession(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &mockSource{})

	end := at(17, 0)
	store.sessions["s-yesterday"] = Session{
		ID:         "s-yesterday",
		CashierID:  "c1",
		BranchID:   "b1",
		ShiftStart: at(9, 0).AddDate(0, 0, -1),
		ShiftEnd:   &end,
	}

	session, err := svc.Start(context.Background(), StartRequest{CashierID: "c1", ShiftStart: at(9, 0)})
	require.NoError(t, err)
	assert.NotEqual(t, "s-yesterday", session.ID)
}

func TestStart_CashierNotFound(t *testing.T) {
	svc := newTestService(newMemStore(), &mockSource{})

	_, err := svc.Start(context.Background(), StartRequest{CashierID: "ghost"})

	var nfErr *staff.NotFoundError
	require.ErrorAs(t, err, &nfErr)
	assert.Equal(t, "cashier", nfErr.Kind)
	assert.Equal(t, "ghost", nfErr.ID)
}

func TestStart_ExplicitBranchNotFound(t *testing.T) {
	svc := newTestService(newMemStore(), &mockSource{})

	_, err := svc.Start(context.Background(), StartRequest{CashierID: "c1", BranchID: "nope"})

	var nfErr *staff.NotFoundError
	require.ErrorAs(t, err, &nfErr)
	assert.Equal(t, "branch", nfErr.Kind)
}

func TestStart_NoBranchDeterminable(t *testing.T) {
	// c2 has no assigned branch and none is given.
	svc := newTestService(newMemStore(), &mockSource{})

	_, err := svc.Start(context.Background(), StartRequest{CashierID: "c2"})
	require.ErrorIs(t, err, ErrNoBranch)
}

func TestStart_ConflictReturnsWinner(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &mockSource{})

	// A concurrent Start won the insert race after our day lookup: the store
	// rejects the second open session and the winner is returned instead.
	winner := Session{ID: "s-winner", CashierID: "c1", BranchID: "b1", ShiftStart: at(9, 0)}
	store.saveErr = ErrOpenConflict
	store.sessions[winner.ID] = winner

	// Different day lookup window so FindForCashierOnDay misses.
	session, err := svc.Start(context.Background(), StartRequest{
		CashierID:  "c1",
		ShiftStart: at(9, 0).AddDate(0, 0, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, "s-winner", session.ID)
}

func TestEnd_ClosesAndPersistsTotals(t *testing.T) {
	store := newMemStore()
	source := &mockSource{
		orders: []sales.OrderFact{
			{ID: "o1", Amount: decimal.RequireFromString("10"), Method: sales.PaymentCash, CreatedAt: at(9, 10)},
			{ID: "o2", Amount: decimal.RequireFromString("20"), Method: sales.PaymentCard, CreatedAt: at(9, 20)},
			{ID: "o3", Amount: decimal.RequireFromString("30"), Method: sales.PaymentCash, CreatedAt: at(9, 30)},
		},
		refunds: []sales.RefundFact{
			{ID: "r1", Amount: decimal.RequireFromString("5"), Method: sales.PaymentCash, CreatedAt: at(9, 40)},
		},
	}
	svc := newTestService(store, source)

	opened, err := svc.Start(context.Background(), StartRequest{CashierID: "c1", ShiftStart: at(9, 0)})
	require.NoError(t, err)

	report, err := svc.End(context.Background(), EndRequest{ShiftID: opened.ID, ShiftEnd: at(10, 0)})
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("60").Equal(report.Summary.TotalSales))
	assert.True(t, decimal.RequireFromString("5").Equal(report.Summary.TotalRefunds))
	assert.True(t, decimal.RequireFromString("55").Equal(report.Summary.NetSales))
	assert.Equal(t, 3, report.Summary.TotalOrders)

	// The session view carries the same totals as the summary.
	assert.True(t, report.Session.TotalSales.Equal(report.Summary.TotalSales))
	assert.Equal(t, report.Session.TotalOrders, report.Summary.TotalOrders)
	require.NotNil(t, report.ShiftEnd)
	assert.Equal(t, at(10, 0), *report.ShiftEnd)

	// Window is half-open [shiftStart, shiftEnd).
	assert.Equal(t, at(9, 0), source.lastStart)
	assert.Equal(t, at(10, 0), source.lastEnd)

	// Totals are persisted.
	persisted := store.sessions[opened.ID]
	assert.True(t, decimal.RequireFromString("60").Equal(persisted.TotalSales))
	assert.False(t, persisted.Open())

	// Breakdown is attached to the report but not part of the stored record.
	require.Len(t, report.PaymentSummaries, 2)
	require.Len(t, report.Refunds, 1)
}

func TestEnd_DefaultsToMostRecentOpenShift(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &mockSource{})

	opened, err := svc.Start(context.Background(), StartRequest{CashierID: "c1", ShiftStart: at(9, 0)})
	require.NoError(t, err)

	report, err := svc.End(context.Background(), EndRequest{CashierID: "c1", ShiftEnd: at(17, 0)})
	require.NoError(t, err)
	assert.Equal(t, opened.ID, report.ID)
}

func TestEnd_NoActiveShift(t *testing.T) {
	svc := newTestService(newMemStore(), &mockSource{})

	_, err := svc.End(context.Background(), EndRequest{CashierID: "c1"})
	require.ErrorIs(t, err, ErrNoActiveShift)
}

func TestEnd_UnknownShiftID(t *testing.T) {
	svc := newTestService(newMemStore(), &mockSource{})

	_, err := svc.End(context.Background(), EndRequest{ShiftID: "missing"})

	var nfErr *NotFoundError
	require.ErrorAs(t, err, &nfErr)
}

func TestEnd_ReclosingUsesStoredWindow(t *testing.T) {
	store := newMemStore()
	source := &mockSource{}
	svc := newTestService(store, source)

	opened, err := svc.Start(context.Background(), StartRequest{CashierID: "c1", ShiftStart: at(9, 0)})
	require.NoError(t, err)

	_, err = svc.End(context.Background(), EndRequest{ShiftID: opened.ID, ShiftEnd: at(17, 0)})
	require.NoError(t, err)

	// Second End ignores the supplied end time and recomputes over the
	// stored window.
	report, err := svc.End(context.Background(), EndRequest{ShiftID: opened.ID, ShiftEnd: at(23, 0)})
	require.NoError(t, err)

	require.NotNil(t, report.ShiftEnd)
	assert.Equal(t, at(17, 0), *report.ShiftEnd)
	assert.Equal(t, at(17, 0), source.lastEnd)
}

func TestEnd_FetchFailureLeavesSessionUntouched(t *testing.T) {
	store := newMemStore()
	source := &mockSource{err: errors.New("orders backend down")}
	svc := newTestService(store, source)

	opened, err := svc.Start(context.Background(), StartRequest{CashierID: "c1", ShiftStart: at(9, 0)})
	require.NoError(t, err)

	_, err = svc.End(context.Background(), EndRequest{ShiftID: opened.ID})
	require.Error(t, err)

	persisted := store.sessions[opened.ID]
	assert.True(t, persisted.Open(), "a failed reconciliation must not close the session")
	assert.True(t, persisted.TotalSales.IsZero())
}

func TestCurrentProgress_EmptyWhenNoShift(t *testing.T) {
	svc := newTestService(newMemStore(), &mockSource{})

	report, err := svc.CurrentProgress(context.Background(), "c1")
	require.NoError(t, err)

	assert.Empty(t, report.ID)
	assert.Zero(t, report.Summary.TotalOrders)
	assert.True(t, report.Summary.TotalSales.IsZero())
	assert.NotNil(t, report.PaymentSummaries)
	assert.NotNil(t, report.TopProducts)
	assert.NotNil(t, report.RecentOrders)
}

func TestCurrentProgress_NeverPersists(t *testing.T) {
	store := newMemStore()
	source := &mockSource{
		orders: []sales.OrderFact{
			{ID: "o1", Amount: decimal.RequireFromString("42"), CreatedAt: at(9, 5)},
		},
	}
	svc := newTestService(store, source)

	opened, err := svc.Start(context.Background(), StartRequest{CashierID: "c1", ShiftStart: at(9, 0)})
	require.NoError(t, err)
	savesAfterStart := store.saveCalls

	for range 3 {
		report, err := svc.CurrentProgress(context.Background(), "c1")
		require.NoError(t, err)
		assert.Equal(t, opened.ID, report.ID)
		assert.True(t, decimal.RequireFromString("42").Equal(report.Summary.TotalSales))
	}

	assert.Equal(t, savesAfterStart, store.saveCalls, "progress reads must not write")
	persisted := store.sessions[opened.ID]
	assert.True(t, persisted.TotalSales.IsZero(), "persisted totals stay untouched")
	assert.True(t, persisted.Open())
}

func TestGetByID_RederivesBreakdown(t *testing.T) {
	store := newMemStore()
	source := &mockSource{
		orders: []sales.OrderFact{
			{ID: "o1", Amount: decimal.RequireFromString("12.50"), CreatedAt: at(9, 5)},
		},
	}
	svc := newTestService(store, source)

	opened, err := svc.Start(context.Background(), StartRequest{CashierID: "c1", ShiftStart: at(9, 0)})
	require.NoError(t, err)

	// Reads that reconcile an open window must succeed when both fact
	// fetches succeed, including when they return nothing.
	report, err := svc.GetByID(context.Background(), opened.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("12.50").Equal(report.Summary.TotalSales))

	source.orders = nil
	report, err = svc.GetByID(context.Background(), opened.ID)
	require.NoError(t, err)
	assert.True(t, report.Summary.TotalSales.IsZero())

	persisted := store.sessions[opened.ID]
	assert.True(t, persisted.TotalSales.IsZero(), "reads must not persist derived totals")
}

func TestGetByCashierAndDate(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &mockSource{})

	opened, err := svc.Start(context.Background(), StartRequest{CashierID: "c1", ShiftStart: at(9, 0)})
	require.NoError(t, err)

	report, err := svc.GetByCashierAndDate(context.Background(), "c1", at(18, 45))
	require.NoError(t, err)
	assert.Equal(t, opened.ID, report.ID)

	_, err = svc.GetByCashierAndDate(context.Background(), "c1", at(9, 0).AddDate(0, 0, 5))
	var nfErr *NotFoundError
	require.ErrorAs(t, err, &nfErr)
}

func TestListOperations(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &mockSource{})

	_, err := svc.Start(context.Background(), StartRequest{CashierID: "c1", ShiftStart: at(9, 0)})
	require.NoError(t, err)

	byBranch, err := svc.ListByBranch(context.Background(), "b1")
	require.NoError(t, err)
	assert.Len(t, byBranch, 1)

	byCashier, err := svc.ListByCashier(context.Background(), "c1")
	require.NoError(t, err)
	assert.Len(t, byCashier, 1)

	all, err := svc.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
