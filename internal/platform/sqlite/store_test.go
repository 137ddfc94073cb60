package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leaveflow/internal/domain/leave"
	"leaveflow/internal/domain/notifications"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	require.NoError(t, store.SaveOrgUnit(ctx, leave.ScopeDepartment, leave.OrgUnit{ID: "dept-1", Name: "Ops", Active: true, RequiredCoverage: decimal.NewFromInt(50)}))
	require.NoError(t, store.SaveOrgUnit(ctx, leave.ScopeBranch, leave.OrgUnit{ID: "branch-1", Name: "HQ", Active: true, MaxConcurrentLeaves: 3}))
	for _, e := range []leave.Employee{
		{ID: "emp-1", Name: "One", Role: "employee", ManagerID: "mgr-1", Active: true},
		{ID: "emp-2", Name: "Two", Role: "hr", Active: true},
		{ID: "emp-3", Name: "Three", Role: "admin", Active: false},
	} {
		e.Email = e.ID + "@example.com"
		e.EmploymentType = "full-time"
		e.DepartmentID = "dept-1"
		e.BranchID = "branch-1"
		e.DateOfJoining = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, store.SaveEmployee(ctx, e))
	}
	return store
}

func TestOrgRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	emp, err := store.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "mgr-1", emp.ManagerID)
	assert.Equal(t, "", emp.TeamLeadID)
	assert.True(t, emp.DateOfJoining.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)))

	unit, err := store.GetOrgUnit(ctx, leave.ScopeDepartment, "dept-1")
	require.NoError(t, err)
	assert.True(t, unit.RequiredCoverage.Equal(decimal.NewFromInt(50)))

	count, err := store.CountActiveEmployees(ctx, leave.ScopeBranch, "branch-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = store.GetEmployee(ctx, "missing")
	assert.ErrorIs(t, err, leave.ErrNotFound)

	_, err = store.GetOrgUnit(ctx, leave.Scope("region"), "x")
	assert.Error(t, err)
}

func TestEmployeeActive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	active, err := store.EmployeeActive(ctx, "emp-1")
	require.NoError(t, err)
	assert.True(t, active)

	active, err = store.EmployeeActive(ctx, "emp-3")
	require.NoError(t, err)
	assert.False(t, active)

	active, err = store.EmployeeActive(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestPolicyDocument(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	policy := leave.LeavePolicy{
		ID:        "pol-sick",
		LeaveType: "sick",
		Active:    true,
		Accrual:   leave.AccrualRule{Rate: decimal.RequireFromString("0.75")},
		Restrictions: leave.Restrictions{
			BlackoutDates: []leave.Date{leave.NewDate(time.Date(2025, 12, 24, 0, 0, 0, 0, time.UTC))},
		},
	}
	require.NoError(t, store.SavePolicy(ctx, policy))

	got, err := store.ActivePolicy(ctx, "sick")
	require.NoError(t, err)
	assert.Equal(t, "pol-sick", got.ID)
	assert.True(t, got.Accrual.Rate.Equal(decimal.RequireFromString("0.75")))
	require.Len(t, got.Restrictions.BlackoutDates, 1)

	policy.Accrual.Rate = decimal.NewFromInt(-1)
	assert.ErrorIs(t, store.SavePolicy(ctx, policy), leave.ErrMalformedPolicy)

	_, err = store.ActivePolicy(ctx, "annual")
	assert.ErrorIs(t, err, leave.ErrNotFound)
}

func TestBalanceGuards(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := leave.BalanceKey{EmployeeID: "emp-1", LeaveType: "annual", FiscalYear: 2025}
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	created, err := store.InsertBalance(ctx, leave.LeaveBalance{
		ID: "bal-1", BalanceKey: key,
		Balance:     decimal.NewFromInt(4),
		AccrualRate: decimal.RequireFromString("2.5"),
		MaxAccrual:  decimal.NewFromInt(8),
		UpdatedAt:   now,
	})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.InsertBalance(ctx, leave.LeaveBalance{ID: "bal-dup", BalanceKey: key, UpdatedAt: now})
	require.NoError(t, err)
	assert.False(t, created, "duplicate key must not create a second record")

	changed, err := store.AccrueBalance(ctx, "bal-1", "2025-03", now)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = store.AccrueBalance(ctx, "bal-1", "2025-03", now)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = store.AccrueBalance(ctx, "bal-1", "2025-04", now)
	require.NoError(t, err)
	assert.True(t, changed)

	b, err := store.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "8", b.Balance.String())
	assert.Equal(t, "2025-04", b.LastAccruedCycle)

	ok, err := store.DebitBalance(ctx, key, decimal.NewFromInt(9), now)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.DebitBalance(ctx, key, decimal.NewFromInt(3), now)
	require.NoError(t, err)
	assert.True(t, ok)

	b, err = store.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "5", b.Balance.String())
}

func TestFractionalAccrualDebitsExactly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := leave.BalanceKey{EmployeeID: "emp-1", LeaveType: "annual", FiscalYear: 2025}
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := store.InsertBalance(ctx, leave.LeaveBalance{
		ID: "bal-1", BalanceKey: key,
		AccrualRate: decimal.RequireFromString("0.1"),
		UpdatedAt:   now,
	})
	require.NoError(t, err)

	for month := 1; month <= 10; month++ {
		changed, err := store.AccrueBalance(ctx, "bal-1", fmt.Sprintf("2025-%02d", month), now)
		require.NoError(t, err)
		require.True(t, changed, "cycle %d", month)
	}

	var raw string
	require.NoError(t, store.root.QueryRowContext(ctx, "SELECT balance FROM leave_balances WHERE id = ?", "bal-1").Scan(&raw))
	assert.Equal(t, "1", raw)

	b, err := store.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "1", b.Balance.String())

	ok, err := store.DebitBalance(ctx, key, decimal.NewFromInt(1), now)
	require.NoError(t, err)
	assert.True(t, ok, "a balance of exactly one day must cover a one day debit")

	b, err = store.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.True(t, b.Balance.IsZero(), "got %s", b.Balance)

	ok, err = store.DebitBalance(ctx, leave.BalanceKey{EmployeeID: "emp-2", LeaveType: "annual", FiscalYear: 2025}, decimal.NewFromInt(1), now)
	require.NoError(t, err)
	assert.False(t, ok, "missing balance")
}

func TestRequestsAndHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

	req := leave.LeaveRequest{
		ID:           "req-1",
		EmployeeID:   "emp-1",
		LeaveType:    "annual",
		PolicyID:     "pol-annual",
		FiscalYear:   2025,
		StartDate:    time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		EndDate:      time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC),
		TotalDays:    3,
		ManagerID:    "mgr-1",
		DepartmentID: "dept-1",
		BranchID:     "branch-1",
		Status:       leave.StatusPendingManager,
		ReliefStatus: leave.ReliefNotRequired,
		History: []leave.ApprovalEntry{{
			Seq: 1, ActorID: "emp-1", Role: leave.RoleEmployee, Action: leave.ActionSubmit,
			FromStatus: leave.StatusDraft, ToStatus: leave.StatusPendingManager, Timestamp: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.CreateRequest(ctx, req))

	changed, err := store.UpdateRequestStatus(ctx, "req-1", leave.StatusPendingHR, leave.StatusApproved, leave.ReliefNotRequired, now)
	require.NoError(t, err)
	assert.False(t, changed, "stale from status must not write")

	changed, err = store.UpdateRequestStatus(ctx, "req-1", leave.StatusPendingManager, leave.StatusPendingHR, leave.ReliefNotRequired, now)
	require.NoError(t, err)
	assert.True(t, changed)
	require.NoError(t, store.AppendHistory(ctx, "req-1", leave.ApprovalEntry{
		Seq: 2, ActorID: "mgr-1", Role: leave.RoleManager, Action: leave.ActionApprove,
		FromStatus: leave.StatusPendingManager, ToStatus: leave.StatusPendingHR, Timestamp: now,
	}))

	got, err := store.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPendingHR, got.Status)
	require.Len(t, got.History, 2)
	assert.Equal(t, leave.RoleManager, got.History[1].Role)
	assert.True(t, got.CreatedAt.Equal(now))

	_, err = store.db.ExecContext(ctx, "UPDATE leave_approval_history SET notes = 'edited' WHERE request_id = 'req-1'")
	assert.Error(t, err, "history rows are append-only")

	start := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)
	onLeave, err := store.OnLeaveEmployees(ctx, leave.ScopeDepartment, "dept-1", start, end)
	require.NoError(t, err)
	assert.Equal(t, []string{"emp-1"}, onLeave)

	overlaps, err := store.OverlappingRequests(ctx, "emp-1", time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC), end)
	require.NoError(t, err)
	assert.Empty(t, overlaps)

	list, err := store.ListRequests(ctx, leave.RequestFilter{ApproverID: "mgr-1", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, list.Total)
	require.Len(t, list.Requests, 1)
	assert.Len(t, list.Requests[0].History, 2)

	list, err = store.ListRequests(ctx, leave.RequestFilter{Statuses: []leave.Status{leave.StatusApproved}, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 0, list.Total)
}

func TestNotificationsAndRecipients(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	ids, err := store.EmployeeIDsWithRole(ctx, "hr", "admin")
	require.NoError(t, err)
	assert.Equal(t, []string{"emp-2"}, ids, "inactive admins are not recipients")

	require.NoError(t, store.CreateNotification(ctx, notifications.Notification{
		ID: "n-1", EmployeeID: "emp-1", Type: notifications.TypeLeaveApproved, Title: "Approved", Body: "ok", CreatedAt: now,
	}))
	total, err := store.CountNotifications(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	require.NoError(t, store.MarkRead(ctx, "emp-2", "n-1", now), "another employee's notification is left alone")
	items, err := store.ListNotifications(ctx, "emp-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Nil(t, items[0].ReadAt)

	require.NoError(t, store.MarkRead(ctx, "emp-1", "n-1", now))
	items, err = store.ListNotifications(ctx, "emp-1", 10, 0)
	require.NoError(t, err)
	require.NotNil(t, items[0].ReadAt)
}

func TestIdempotencyKeys(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, _, found, err := store.LookupIdempotency(ctx, "emp-1", "leave.requests.submit", "k1")
	require.NoError(t, err)
	assert.False(t, found)

	ok, err := store.SaveIdempotency(ctx, "emp-1", "leave.requests.submit", "k1", "hash-a", json.RawMessage(`{"id":"req-1"}`))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.SaveIdempotency(ctx, "emp-1", "leave.requests.submit", "k1", "hash-b", json.RawMessage(`{"id":"req-2"}`))
	require.NoError(t, err)
	assert.False(t, ok, "a different payload under the same key is a conflict")

	hash, response, found, err := store.LookupIdempotency(ctx, "emp-1", "leave.requests.submit", "k1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "hash-a", hash)
	assert.JSONEq(t, `{"id":"req-1"}`, string(response))
}

func TestJobRuns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	id, err := store.StartRun(ctx, "leave_accrual", now)
	require.NoError(t, err)
	require.NoError(t, store.FinishRun(ctx, id, "completed", []byte(`{"summary":{"processed":1}}`), now.Add(time.Second)))

	var status string
	require.NoError(t, store.root.QueryRowContext(ctx, "SELECT status FROM job_runs WHERE id = ?", id).Scan(&status))
	assert.Equal(t, "completed", status)
}

func TestWithTxRollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := leave.BalanceKey{EmployeeID: "emp-1", LeaveType: "annual", FiscalYear: 2025}

	err := store.WithTx(ctx, func(tx leave.StoreAPI) error {
		if _, err := tx.InsertBalance(ctx, leave.LeaveBalance{ID: "bal-tx", BalanceKey: key, Balance: decimal.NewFromInt(3)}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	_, err = store.GetBalance(ctx, key)
	assert.ErrorIs(t, err, leave.ErrNotFound)
}
