package leave

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Candidate is a shape-checked submission that has not been admitted yet.
type Candidate struct {
	EmployeeID      string
	LeaveType       string
	StartDate       time.Time
	EndDate         time.Time
	TotalDays       int
	ReliefOfficerID string
}

type EmployeeContext struct {
	Employee      Employee
	ReliefOfficer *Employee
	Today         time.Time
}

// UnitCapacity is the state of one department or branch over the candidate's dates.
type UnitCapacity struct {
	Unit            OrgUnit
	ActiveEmployees int
	// OnLeave holds the distinct employees with an overlapping blocking
	// request. It may contain the candidate, who is counted once.
	OnLeave []string
}

type OrgSettings struct {
	Department UnitCapacity
	Branch     UnitCapacity
}

type LedgerState struct {
	Balance           decimal.Decimal
	OpenOverlaps      []LeaveRequest
	ReliefCommitments []LeaveRequest
}

// Decision is the outcome of Validate. A zero Decision is not an admission.
type Decision struct {
	Admitted bool
	Denial   *ValidationDeniedError
}

func (d Decision) Err() error {
	if d.Admitted {
		return nil
	}
	if d.Denial == nil {
		return &ValidationDeniedError{Reason: "unknown", Message: "request was not validated"}
	}
	return d.Denial
}

func admit() Decision {
	return Decision{Admitted: true}
}

func deny(reason ReasonCode, details map[string]any, format string, args ...any) Decision {
	return Decision{Denial: &ValidationDeniedError{
		Reason:  reason,
		Message: fmt.Sprintf(format, args...),
		Details: details,
	}}
}

// Validate runs the admission checks in their fixed order and stops at the
// first failure. It reads only its arguments.
func Validate(c Candidate, ec EmployeeContext, org OrgSettings, ledger LedgerState, policy LeavePolicy) Decision {
	emp := ec.Employee
	today := Day(ec.Today)

	if !org.Department.Unit.Active {
		return deny(ReasonDepartmentInactive, map[string]any{"departmentId": org.Department.Unit.ID},
			"department %s is not active", unitName(org.Department.Unit))
	}
	if !org.Branch.Unit.Active {
		return deny(ReasonBranchInactive, map[string]any{"branchId": org.Branch.Unit.ID},
			"branch %s is not active", unitName(org.Branch.Unit))
	}

	if d, ok := checkCapacity(ScopeDepartment, org.Department, c.EmployeeID); !ok {
		return d
	}
	if d, ok := checkCapacity(ScopeBranch, org.Branch, c.EmployeeID); !ok {
		return d
	}
	if d, ok := checkCoverage(ScopeDepartment, org.Department, c.EmployeeID); !ok {
		return d
	}
	if d, ok := checkCoverage(ScopeBranch, org.Branch, c.EmployeeID); !ok {
		return d
	}

	if c.ReliefOfficerID == "" {
		if policy.Workflow.RequiresReliefOfficer {
			return deny(ReasonReliefOfficerRequired, map[string]any{"leaveType": c.LeaveType},
				"%s leave requires a relief officer", c.LeaveType)
		}
	} else {
		relief := ec.ReliefOfficer
		if relief == nil || relief.ID == emp.ID || !relief.Active || relief.DepartmentID != emp.DepartmentID {
			return deny(ReasonReliefOfficerInvalid, map[string]any{"reliefOfficerId": c.ReliefOfficerID},
				"relief officer must be an active member of the same department")
		}
	}

	if !policy.Eligibility.Allows(emp.EmploymentType) {
		return deny(ReasonEmploymentTypeIneligible,
			map[string]any{"employmentType": emp.EmploymentType, "eligible": policy.Eligibility.EmploymentTypes},
			"%s employees are not eligible for %s leave", emp.EmploymentType, c.LeaveType)
	}
	if minService := policy.Eligibility.MinServiceDays; minService > 0 {
		if emp.DateOfJoining.IsZero() {
			return deny(ReasonMinServiceNotMet, map[string]any{"minServiceDays": minService},
				"date of joining is unknown, %d days of service required", minService)
		}
		served := DaysBetween(emp.DateOfJoining, today)
		if served < minService {
			return deny(ReasonMinServiceNotMet,
				map[string]any{"serviceDays": served, "minServiceDays": minService},
				"%d days of service, %d required", served, minService)
		}
	}

	if day, hit := policy.Restrictions.BlackoutWithin(c.StartDate, c.EndDate); hit {
		return deny(ReasonBlackoutConflict, map[string]any{"blackoutDate": day.Format(dateLayout)},
			"%s is a blackout date", day.Format(dateLayout))
	}

	notice := DaysBetween(today, c.StartDate)
	if notice < policy.Restrictions.MinNoticeDays {
		return deny(ReasonInsufficientNotice,
			map[string]any{"noticeDays": notice, "minNoticeDays": policy.Restrictions.MinNoticeDays},
			"%d days notice given, %d required", notice, policy.Restrictions.MinNoticeDays)
	}

	if max := policy.Restrictions.MaxConsecutiveDays; max > 0 && c.TotalDays > max {
		return deny(ReasonExceedsMaxConsecutive,
			map[string]any{"totalDays": c.TotalDays, "maxConsecutiveDays": max},
			"%d consecutive days requested, at most %d allowed", c.TotalDays, max)
	}

	requested := decimal.NewFromInt(int64(c.TotalDays))
	if ledger.Balance.LessThan(requested) {
		return deny(ReasonInsufficientBalance,
			map[string]any{"available": ledger.Balance.String(), "requested": c.TotalDays},
			"%s days available, %d requested", ledger.Balance.String(), c.TotalDays)
	}

	for _, r := range ledger.OpenOverlaps {
		if r.EmployeeID == c.EmployeeID && r.Status.Blocking() && Overlaps(r.StartDate, r.EndDate, c.StartDate, c.EndDate) {
			return deny(ReasonOverlappingRequest, map[string]any{"requestId": r.ID, "status": string(r.Status)},
				"request %s already covers %s to %s", r.ID, r.StartDate.Format(dateLayout), r.EndDate.Format(dateLayout))
		}
	}

	if c.ReliefOfficerID != "" {
		for _, r := range ledger.ReliefCommitments {
			if !r.Status.Blocking() || !Overlaps(r.StartDate, r.EndDate, c.StartDate, c.EndDate) {
				continue
			}
			if r.EmployeeID == c.ReliefOfficerID || r.ReliefOfficerID == c.ReliefOfficerID {
				return deny(ReasonReliefOfficerUnavailable,
					map[string]any{"reliefOfficerId": c.ReliefOfficerID, "requestId": r.ID},
					"relief officer is committed to request %s over the same dates", r.ID)
			}
		}
	}

	return admit()
}

func onLeaveIncluding(onLeave []string, candidateID string) int {
	seen := make(map[string]struct{}, len(onLeave)+1)
	for _, id := range onLeave {
		seen[id] = struct{}{}
	}
	seen[candidateID] = struct{}{}
	return len(seen)
}

func checkCapacity(scope Scope, uc UnitCapacity, candidateID string) (Decision, bool) {
	max := uc.Unit.MaxConcurrentLeaves
	if max <= 0 {
		return Decision{}, true
	}
	count := onLeaveIncluding(uc.OnLeave, candidateID)
	if count < max {
		return Decision{}, true
	}
	reason := ReasonDepartmentCapacity
	if scope == ScopeBranch {
		reason = ReasonBranchCapacity
	}
	return deny(reason,
		map[string]any{"onLeave": count, "maxConcurrentLeaves": max},
		"%s %s would have %d employees on leave, cap is %d", scope, unitName(uc.Unit), count, max), false
}

// CoveragePercentage is the share of the active workforce left working.
func CoveragePercentage(activeEmployees, onLeave int) decimal.Decimal {
	if activeEmployees <= 0 {
		return decimal.Zero
	}
	remaining := activeEmployees - onLeave
	if remaining < 0 {
		remaining = 0
	}
	return decimal.NewFromInt(int64(remaining * 100)).Div(decimal.NewFromInt(int64(activeEmployees)))
}

func checkCoverage(scope Scope, uc UnitCapacity, candidateID string) (Decision, bool) {
	count := onLeaveIncluding(uc.OnLeave, candidateID)
	pct := CoveragePercentage(uc.ActiveEmployees, count)
	if pct.GreaterThanOrEqual(uc.Unit.RequiredCoverage) {
		return Decision{}, true
	}
	reason := ReasonDepartmentCoverage
	if scope == ScopeBranch {
		reason = ReasonBranchCoverage
	}
	return deny(reason,
		map[string]any{
			"coveragePercentage": pct.StringFixed(1),
			"requiredCoverage":   uc.Unit.RequiredCoverage.String(),
			"activeEmployees":    uc.ActiveEmployees,
			"onLeave":            count,
		},
		"%s %s coverage would drop to %s%%, %s%% required", scope, unitName(uc.Unit), pct.StringFixed(1), uc.Unit.RequiredCoverage.String()), false
}

func unitName(u OrgUnit) string {
	if u.Name != "" {
		return u.Name
	}
	return u.ID
}
