package leave

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	c      Candidate
	ec     EmployeeContext
	org    OrgSettings
	ledger LedgerState
	policy LeavePolicy
}

func newFixture() fixture {
	emp := Employee{
		ID:             "emp-1",
		EmploymentType: "full-time",
		DepartmentID:   "dept-1",
		BranchID:       "branch-1",
		DateOfJoining:  date(2024, 1, 1),
		Active:         true,
	}
	return fixture{
		c: Candidate{
			EmployeeID: emp.ID,
			LeaveType:  "annual",
			StartDate:  date(2025, 3, 10),
			EndDate:    date(2025, 3, 12),
			TotalDays:  3,
		},
		ec: EmployeeContext{Employee: emp, Today: date(2025, 3, 1)},
		org: OrgSettings{
			Department: UnitCapacity{Unit: OrgUnit{ID: "dept-1", Active: true}, ActiveEmployees: 10},
			Branch:     UnitCapacity{Unit: OrgUnit{ID: "branch-1", Active: true}, ActiveEmployees: 40},
		},
		ledger: LedgerState{Balance: decimal.NewFromInt(10)},
		policy: LeavePolicy{
			ID:          "pol-annual",
			LeaveType:   "annual",
			Active:      true,
			Eligibility: Eligibility{EmploymentTypes: []string{"full-time"}, MinServiceDays: 90},
			Restrictions: Restrictions{
				MinNoticeDays:      3,
				MaxConsecutiveDays: 10,
			},
		},
	}
}

func (f fixture) validate() Decision {
	return Validate(f.c, f.ec, f.org, f.ledger, f.policy)
}

func denialReason(t *testing.T, d Decision) ReasonCode {
	t.Helper()
	if d.Admitted {
		t.Fatal("expected denial, got admission")
	}
	var denied *ValidationDeniedError
	if !errors.As(d.Err(), &denied) {
		t.Fatalf("expected ValidationDeniedError, got %v", d.Err())
	}
	return denied.Reason
}

func TestValidateAdmitsCleanRequest(t *testing.T) {
	if d := newFixture().validate(); !d.Admitted {
		t.Fatalf("expected admission, got %v", d.Err())
	}
}

func TestZeroDecisionIsNotAdmission(t *testing.T) {
	var d Decision
	if d.Err() == nil {
		t.Fatal("zero decision must not admit")
	}
}

func TestValidateCoverageBoundary(t *testing.T) {
	f := newFixture()
	f.org.Department.OnLeave = []string{"emp-2", "emp-3"}

	f.org.Department.Unit.RequiredCoverage = decimal.NewFromInt(70)
	if d := f.validate(); !d.Admitted {
		t.Fatalf("expected 70%% coverage to satisfy 70%%, got %v", d.Err())
	}

	f.org.Department.Unit.RequiredCoverage = decimal.NewFromInt(71)
	d := f.validate()
	if reason := denialReason(t, d); reason != ReasonDepartmentCoverage {
		t.Fatalf("expected %s, got %s", ReasonDepartmentCoverage, reason)
	}
	if got := d.Denial.Details["coveragePercentage"]; got != "70.0" {
		t.Fatalf("expected coveragePercentage 70.0, got %v", got)
	}
}

func TestValidateCoverageCountsCandidateOnce(t *testing.T) {
	f := newFixture()
	f.org.Department.OnLeave = []string{"emp-1", "emp-2", "emp-3"}
	f.org.Department.Unit.RequiredCoverage = decimal.NewFromInt(70)
	if d := f.validate(); !d.Admitted {
		t.Fatalf("candidate already on leave must not be counted twice: %v", d.Err())
	}
}

func TestValidateCapacityCap(t *testing.T) {
	f := newFixture()
	f.org.Department.OnLeave = []string{"emp-2", "emp-3"}

	f.org.Department.Unit.MaxConcurrentLeaves = 4
	if d := f.validate(); !d.Admitted {
		t.Fatalf("expected admission under cap, got %v", d.Err())
	}

	f.org.Department.Unit.MaxConcurrentLeaves = 3
	if reason := denialReason(t, f.validate()); reason != ReasonDepartmentCapacity {
		t.Fatalf("expected %s, got %s", ReasonDepartmentCapacity, reason)
	}

	f.org.Department.Unit.MaxConcurrentLeaves = 0
	f.org.Branch.Unit.MaxConcurrentLeaves = 1
	if reason := denialReason(t, f.validate()); reason != ReasonBranchCapacity {
		t.Fatalf("expected %s, got %s", ReasonBranchCapacity, reason)
	}
}

func TestValidateCheckOrder(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*fixture)
		want   ReasonCode
	}{
		{
			name: "inactive department wins over everything",
			mutate: func(f *fixture) {
				f.org.Department.Unit.Active = false
				f.org.Branch.Unit.Active = false
				f.ledger.Balance = decimal.Zero
			},
			want: ReasonDepartmentInactive,
		},
		{
			name:   "inactive branch",
			mutate: func(f *fixture) { f.org.Branch.Unit.Active = false },
			want:   ReasonBranchInactive,
		},
		{
			name: "capacity before coverage",
			mutate: func(f *fixture) {
				f.org.Department.Unit.MaxConcurrentLeaves = 1
				f.org.Department.Unit.RequiredCoverage = decimal.NewFromInt(100)
			},
			want: ReasonDepartmentCapacity,
		},
		{
			name: "branch coverage",
			mutate: func(f *fixture) {
				f.org.Branch.Unit.RequiredCoverage = decimal.NewFromInt(100)
			},
			want: ReasonBranchCoverage,
		},
		{
			name: "relief required before eligibility",
			mutate: func(f *fixture) {
				f.policy.Workflow.RequiresReliefOfficer = true
				f.ec.Employee.EmploymentType = "contract"
			},
			want: ReasonReliefOfficerRequired,
		},
		{
			name: "relief officer from another department",
			mutate: func(f *fixture) {
				f.c.ReliefOfficerID = "emp-9"
				f.ec.ReliefOfficer = &Employee{ID: "emp-9", DepartmentID: "dept-2", Active: true}
			},
			want: ReasonReliefOfficerInvalid,
		},
		{
			name: "applicant cannot relieve themselves",
			mutate: func(f *fixture) {
				f.c.ReliefOfficerID = "emp-1"
				self := f.ec.Employee
				f.ec.ReliefOfficer = &self
			},
			want: ReasonReliefOfficerInvalid,
		},
		{
			name:   "employment type",
			mutate: func(f *fixture) { f.ec.Employee.EmploymentType = "contract" },
			want:   ReasonEmploymentTypeIneligible,
		},
		{
			name: "minimum service before blackout",
			mutate: func(f *fixture) {
				f.ec.Employee.DateOfJoining = date(2025, 2, 1)
				f.policy.Restrictions.BlackoutDates = []Date{NewDate(date(2025, 3, 11))}
			},
			want: ReasonMinServiceNotMet,
		},
		{
			name: "blackout before notice",
			mutate: func(f *fixture) {
				f.policy.Restrictions.BlackoutDates = []Date{NewDate(date(2025, 3, 12))}
				f.ec.Today = date(2025, 3, 9)
			},
			want: ReasonBlackoutConflict,
		},
		{
			name:   "notice",
			mutate: func(f *fixture) { f.ec.Today = date(2025, 3, 8) },
			want:   ReasonInsufficientNotice,
		},
		{
			name: "max consecutive before balance",
			mutate: func(f *fixture) {
				f.policy.Restrictions.MaxConsecutiveDays = 2
				f.ledger.Balance = decimal.Zero
			},
			want: ReasonExceedsMaxConsecutive,
		},
		{
			name:   "balance",
			mutate: func(f *fixture) { f.ledger.Balance = decimal.RequireFromString("2.5") },
			want:   ReasonInsufficientBalance,
		},
		{
			name: "overlap",
			mutate: func(f *fixture) {
				f.ledger.OpenOverlaps = []LeaveRequest{{
					ID: "req-old", EmployeeID: "emp-1", Status: StatusPendingHR,
					StartDate: date(2025, 3, 12), EndDate: date(2025, 3, 14),
				}}
			},
			want: ReasonOverlappingRequest,
		},
		{
			name: "relief officer committed elsewhere",
			mutate: func(f *fixture) {
				f.c.ReliefOfficerID = "emp-9"
				f.ec.ReliefOfficer = &Employee{ID: "emp-9", DepartmentID: "dept-1", Active: true}
				f.ledger.ReliefCommitments = []LeaveRequest{{
					ID: "req-other", EmployeeID: "emp-7", ReliefOfficerID: "emp-9", Status: StatusApproved,
					StartDate: date(2025, 3, 11), EndDate: date(2025, 3, 11),
				}}
			},
			want: ReasonReliefOfficerUnavailable,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			tc.mutate(&f)
			if got := denialReason(t, f.validate()); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestValidateIgnoresTerminalOverlaps(t *testing.T) {
	f := newFixture()
	f.ledger.OpenOverlaps = []LeaveRequest{
		{ID: "r1", EmployeeID: "emp-1", Status: StatusRejected, StartDate: date(2025, 3, 10), EndDate: date(2025, 3, 10)},
		{ID: "r2", EmployeeID: "emp-1", Status: StatusCancelled, StartDate: date(2025, 3, 11), EndDate: date(2025, 3, 11)},
	}
	if d := f.validate(); !d.Admitted {
		t.Fatalf("terminal requests must not block, got %v", d.Err())
	}
}

func TestValidateEmptyEligibilityAdmitsAnyType(t *testing.T) {
	f := newFixture()
	f.policy.Eligibility.EmploymentTypes = nil
	f.ec.Employee.EmploymentType = "intern"
	if d := f.validate(); !d.Admitted {
		t.Fatalf("expected admission, got %v", d.Err())
	}
}

func TestValidateUnknownJoiningDate(t *testing.T) {
	f := newFixture()
	f.ec.Employee.DateOfJoining = time.Time{}
	if got := denialReason(t, f.validate()); got != ReasonMinServiceNotMet {
		t.Fatalf("expected %s, got %s", ReasonMinServiceNotMet, got)
	}

	f.policy.Eligibility.MinServiceDays = 0
	if d := f.validate(); !d.Admitted {
		t.Fatalf("expected admission without a service requirement, got %v", d.Err())
	}
}

func TestCoveragePercentage(t *testing.T) {
	if got := CoveragePercentage(3, 1).StringFixed(1); got != "66.7" {
		t.Fatalf("expected 66.7, got %s", got)
	}
	if !CoveragePercentage(0, 0).IsZero() {
		t.Fatal("expected zero coverage for an empty unit")
	}
	if !CoveragePercentage(2, 5).IsZero() {
		t.Fatal("expected coverage to floor at zero")
	}
}
