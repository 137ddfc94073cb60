package leave

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"leaveflow/internal/requestctx"
)

type Service struct {
	Store            StoreAPI
	Ledger           *Ledger
	Workflow         *Workflow
	FiscalStartMonth time.Month
	Now              func() time.Time
}

func NewService(store StoreAPI, notifier Notifier, fiscalStartMonth time.Month, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	ledger := NewLedger(store, now)
	return &Service{
		Store:            store,
		Ledger:           ledger,
		Workflow:         NewWorkflow(store, ledger, notifier, now),
		FiscalStartMonth: fiscalStartMonth,
		Now:              now,
	}
}

type SubmitInput struct {
	EmployeeID      string
	LeaveType       string
	StartDate       time.Time
	EndDate         time.Time
	Reason          string
	ReliefOfficerID string
}

func (s *Service) FiscalYear(t time.Time) int {
	return FiscalYearOf(t, s.FiscalStartMonth)
}

// Submit resolves the employee snapshot, runs Validate and creates the
// request. A denial leaves no record behind.
func (s *Service) Submit(ctx context.Context, actor Actor, in SubmitInput) (LeaveRequest, error) {
	in.EmployeeID = strings.TrimSpace(in.EmployeeID)
	in.LeaveType = strings.TrimSpace(in.LeaveType)
	in.ReliefOfficerID = strings.TrimSpace(in.ReliefOfficerID)
	if in.EmployeeID == "" {
		in.EmployeeID = actor.ID
	}
	if in.EmployeeID != actor.ID && !actor.IsHR() {
		return LeaveRequest{}, &PermissionDeniedError{RequiredRole: RoleHR, ActorID: actor.ID}
	}
	if in.LeaveType == "" {
		return LeaveRequest{}, fmt.Errorf("%w: leave type required", ErrInvalidInput)
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return LeaveRequest{}, fmt.Errorf("%w: start and end date required", ErrInvalidInput)
	}
	totalDays, err := CalculateDays(in.StartDate, in.EndDate)
	if err != nil {
		return LeaveRequest{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	start, end := Day(in.StartDate), Day(in.EndDate)

	var created LeaveRequest
	err = s.Store.WithTx(ctx, func(tx StoreAPI) error {
		emp, err := tx.GetEmployee(ctx, in.EmployeeID)
		if err != nil {
			return err
		}
		if !emp.Active {
			return fmt.Errorf("%w: employee %s is not active", ErrInvalidInput, emp.ID)
		}
		policy, err := tx.ActivePolicy(ctx, in.LeaveType)
		if err != nil {
			return err
		}

		org, err := s.orgSettings(ctx, tx, emp, start, end)
		if err != nil {
			return err
		}

		ec := EmployeeContext{Employee: emp, Today: s.Now()}
		if in.ReliefOfficerID != "" {
			relief, err := tx.GetEmployee(ctx, in.ReliefOfficerID)
			switch {
			case IsNotFound(err):
			case err != nil:
				return err
			default:
				ec.ReliefOfficer = &relief
			}
		}

		fiscalYear := s.FiscalYear(start)
		key := BalanceKey{EmployeeID: emp.ID, LeaveType: policy.LeaveType, FiscalYear: fiscalYear}
		var ledger LedgerState
		balance, err := tx.GetBalance(ctx, key)
		switch {
		case IsNotFound(err):
		case err != nil:
			return err
		default:
			ledger.Balance = balance.Balance
		}
		if ledger.OpenOverlaps, err = tx.OverlappingRequests(ctx, emp.ID, start, end); err != nil {
			return err
		}
		if in.ReliefOfficerID != "" {
			if ledger.ReliefCommitments, err = tx.ReliefCommitments(ctx, in.ReliefOfficerID, start, end); err != nil {
				return err
			}
		}

		candidate := Candidate{
			EmployeeID:      emp.ID,
			LeaveType:       policy.LeaveType,
			StartDate:       start,
			EndDate:         end,
			TotalDays:       totalDays,
			ReliefOfficerID: in.ReliefOfficerID,
		}
		if err := Validate(candidate, ec, org, ledger, policy).Err(); err != nil {
			return err
		}

		created, err = s.Workflow.Create(ctx, tx, LeaveRequest{
			ID:              uuid.NewString(),
			EmployeeID:      emp.ID,
			LeaveType:       policy.LeaveType,
			FiscalYear:      fiscalYear,
			StartDate:       start,
			EndDate:         end,
			TotalDays:       totalDays,
			Reason:          strings.TrimSpace(in.Reason),
			ReliefOfficerID: in.ReliefOfficerID,
			TeamLeadID:      emp.TeamLeadID,
			ManagerID:       emp.ManagerID,
			DepartmentID:    emp.DepartmentID,
			BranchID:        emp.BranchID,
		}, policy, actor.ID)
		return err
	})
	if err != nil {
		var denied *ValidationDeniedError
		if errors.As(err, &denied) {
			requestctx.Logger(ctx).Info("leave request denied", "employeeId", in.EmployeeID, "leaveType", in.LeaveType, "reason", denied.Reason)
		}
		return LeaveRequest{}, err
	}

	s.Workflow.Submitted(ctx, created)
	return created, nil
}

func (s *Service) orgSettings(ctx context.Context, tx StoreAPI, emp Employee, start, end time.Time) (OrgSettings, error) {
	var org OrgSettings
	units := []struct {
		scope Scope
		id    string
		out   *UnitCapacity
	}{
		{ScopeDepartment, emp.DepartmentID, &org.Department},
		{ScopeBranch, emp.BranchID, &org.Branch},
	}
	for _, u := range units {
		unit, err := tx.GetOrgUnit(ctx, u.scope, u.id)
		if err != nil {
			return org, err
		}
		active, err := tx.CountActiveEmployees(ctx, u.scope, u.id)
		if err != nil {
			return org, err
		}
		onLeave, err := tx.OnLeaveEmployees(ctx, u.scope, u.id, start, end)
		if err != nil {
			return org, err
		}
		*u.out = UnitCapacity{Unit: unit, ActiveEmployees: active, OnLeave: onLeave}
	}
	return org, nil
}

// Act is the action intake for the approval chain.
func (s *Service) Act(ctx context.Context, actor Actor, requestID string, role Role, action Action, notes string) (LeaveRequest, error) {
	if action != ActionApprove && action != ActionDecline {
		return LeaveRequest{}, fmt.Errorf("%w: unknown action %q", ErrInvalidInput, action)
	}
	return s.Workflow.Transition(ctx, requestID, actor, role, action, strings.TrimSpace(notes))
}

func (s *Service) Withdraw(ctx context.Context, actor Actor, requestID string, action Action, notes string) (LeaveRequest, error) {
	return s.Workflow.Withdraw(ctx, requestID, actor, action, strings.TrimSpace(notes))
}

// Get returns the request if the actor is its applicant, one of its
// approvers or HR.
func (s *Service) Get(ctx context.Context, actor Actor, requestID string) (LeaveRequest, error) {
	req, err := s.Store.GetRequest(ctx, requestID)
	if err != nil {
		return LeaveRequest{}, err
	}
	if !canView(actor, req) {
		return LeaveRequest{}, &PermissionDeniedError{RequiredRole: RoleEmployee, ActorID: actor.ID}
	}
	return req, nil
}

func canView(actor Actor, req LeaveRequest) bool {
	if actor.IsHR() {
		return true
	}
	switch actor.ID {
	case req.EmployeeID, req.ReliefOfficerID, req.TeamLeadID, req.ManagerID:
		return actor.ID != ""
	}
	return false
}

// List scopes non-HR actors to their own requests, or to the requests
// they approve when filter.ApproverID is set.
func (s *Service) List(ctx context.Context, actor Actor, filter RequestFilter) (RequestListResult, error) {
	if !actor.IsHR() {
		if filter.ApproverID != "" {
			filter.ApproverID = actor.ID
			filter.EmployeeID = ""
		} else {
			filter.EmployeeID = actor.ID
		}
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	for _, st := range filter.Statuses {
		if !st.Valid() {
			return RequestListResult{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, st)
		}
	}
	return s.Store.ListRequests(ctx, filter)
}

func (s *Service) Balances(ctx context.Context, actor Actor, employeeID string, fiscalYear int) ([]LeaveBalance, error) {
	if employeeID == "" {
		employeeID = actor.ID
	}
	if employeeID != actor.ID && !actor.IsHR() {
		return nil, &PermissionDeniedError{RequiredRole: RoleHR, ActorID: actor.ID}
	}
	if fiscalYear == 0 {
		fiscalYear = s.FiscalYear(s.Now())
	}
	return s.Store.ListBalances(ctx, employeeID, fiscalYear)
}

// Onboard opens balance records of every applicable active policy.
func (s *Service) Onboard(ctx context.Context, employeeID string, fiscalYear int) (BatchSummary, error) {
	var summary BatchSummary
	if fiscalYear == 0 {
		fiscalYear = s.FiscalYear(s.Now())
	}
	emp, err := s.Store.GetEmployee(ctx, employeeID)
	if err != nil {
		return summary, err
	}
	if !emp.Active {
		return summary, fmt.Errorf("%w: employee %s is not active", ErrInvalidInput, emp.ID)
	}
	policies, err := s.Store.ListActivePolicies(ctx)
	if err != nil {
		return summary, err
	}
	for _, p := range policies {
		if !p.Eligibility.Allows(emp.EmploymentType) {
			continue
		}
		created, err := s.Ledger.Open(ctx, emp, p, fiscalYear)
		switch {
		case err != nil:
			requestctx.Logger(ctx).Warn("leave balance open failed", "employeeId", emp.ID, "leaveType", p.LeaveType, "err", err)
			summary.Failed++
		case created:
			summary.Processed++
		default:
			summary.Skipped++
		}
	}
	return summary, nil
}

// RunAccrual credits the accrual cycle containing at.
func (s *Service) RunAccrual(ctx context.Context, at time.Time) (BatchSummary, error) {
	return s.Ledger.Accrue(ctx, s.FiscalYear(at), CycleID(at))
}

// RunRollover seeds toYear from toYear-1.
func (s *Service) RunRollover(ctx context.Context, toYear int) (BatchSummary, error) {
	return s.Ledger.RolloverFiscalYear(ctx, toYear-1, toYear)
}

// Slip returns an approved request with its applicant for the leave slip.
func (s *Service) Slip(ctx context.Context, actor Actor, requestID string) (LeaveRequest, Employee, error) {
	req, err := s.Get(ctx, actor, requestID)
	if err != nil {
		return LeaveRequest{}, Employee{}, err
	}
	if req.Status != StatusApproved {
		return LeaveRequest{}, Employee{}, ErrSlipUnavailable
	}
	emp, err := s.Store.GetEmployee(ctx, req.EmployeeID)
	if err != nil {
		return LeaveRequest{}, Employee{}, err
	}
	return req, emp, nil
}
