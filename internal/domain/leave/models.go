package leave

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusDraft           Status = "draft"
	StatusPendingRelief   Status = "pending-relief"
	StatusPendingTeamLead Status = "pending-team-lead"
	StatusPendingManager  Status = "pending-manager"
	StatusPendingHR       Status = "pending-hr"
	StatusApproved        Status = "approved"
	StatusRejected        Status = "rejected"
	StatusCancelled       Status = "cancelled"
	StatusRevoked         Status = "revoked"
)

// BlockingStatuses are the statuses that occupy calendar days: they count
// toward capacity, coverage and overlap checks.
var BlockingStatuses = []Status{
	StatusPendingRelief,
	StatusPendingTeamLead,
	StatusPendingManager,
	StatusPendingHR,
	StatusApproved,
}

// Terminal reports whether no approval-chain transition leaves s.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusCancelled, StatusRevoked:
		return true
	}
	return false
}

func (s Status) Blocking() bool {
	for _, b := range BlockingStatuses {
		if s == b {
			return true
		}
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPendingRelief, StatusPendingTeamLead, StatusPendingManager, StatusPendingHR,
		StatusApproved, StatusRejected, StatusCancelled, StatusRevoked:
		return true
	}
	return false
}

type ReliefStatus string

const (
	ReliefNotRequired ReliefStatus = "not-required"
	ReliefPending     ReliefStatus = "pending"
	ReliefAccepted    ReliefStatus = "accepted"
	ReliefDeclined    ReliefStatus = "declined"
)

type Role string

const (
	RoleEmployee Role = "employee"
	RoleRelief   Role = "relief"
	RoleTeamLead Role = "team-lead"
	RoleManager  Role = "manager"
	RoleHR       Role = "hr"
	RoleAdmin    Role = "admin"
)

type Action string

const (
	ActionSubmit  Action = "submit"
	ActionApprove Action = "approve"
	ActionDecline Action = "decline"
	ActionCancel  Action = "cancel"
	ActionRevoke  Action = "revoke"
)

type Employee struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Role           string    `json:"role"`
	EmploymentType string    `json:"employmentType"`
	DepartmentID   string    `json:"departmentId"`
	BranchID       string    `json:"branchId"`
	ManagerID      string    `json:"managerId"`
	TeamLeadID     string    `json:"teamLeadId"`
	DateOfJoining  time.Time `json:"dateOfJoining"`
	Active         bool      `json:"active"`
}

// OrgUnit carries the capacity settings of a department or a branch.
type OrgUnit struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	Active              bool            `json:"active"`
	MaxConcurrentLeaves int             `json:"maxConcurrentLeaves"`
	RequiredCoverage    decimal.Decimal `json:"requiredCoverage"`
}

type Scope string

const (
	ScopeDepartment Scope = "department"
	ScopeBranch     Scope = "branch"
)

type BalanceKey struct {
	EmployeeID string `json:"employeeId"`
	LeaveType  string `json:"leaveType"`
	FiscalYear int    `json:"fiscalYear"`
}

type LeaveBalance struct {
	ID string `json:"id"`
	BalanceKey
	Balance          decimal.Decimal `json:"balance"`
	AccrualRate      decimal.Decimal `json:"accrualRate"`
	MaxAccrual       decimal.Decimal `json:"maxAccrual"`
	CarryOverLimit   decimal.Decimal `json:"carryOverLimit"`
	CarriedOver      decimal.Decimal `json:"carriedOver"`
	CarryOverUsed    decimal.Decimal `json:"carryOverUsed"`
	LastAccruedCycle string          `json:"lastAccruedCycle"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

type ApprovalEntry struct {
	Seq        int       `json:"seq"`
	ActorID    string    `json:"actorId"`
	Role       Role      `json:"role"`
	Action     Action    `json:"action"`
	FromStatus Status    `json:"fromStatus,omitempty"`
	ToStatus   Status    `json:"toStatus"`
	Notes      string    `json:"notes,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type LeaveRequest struct {
	ID              string          `json:"id"`
	EmployeeID      string          `json:"employeeId"`
	LeaveType       string          `json:"leaveType"`
	PolicyID        string          `json:"policyId"`
	FiscalYear      int             `json:"fiscalYear"`
	StartDate       time.Time       `json:"startDate"`
	EndDate         time.Time       `json:"endDate"`
	TotalDays       int             `json:"totalDays"`
	Reason          string          `json:"reason"`
	ReliefOfficerID string          `json:"reliefOfficerId,omitempty"`
	TeamLeadID      string          `json:"teamLeadId,omitempty"`
	ManagerID       string          `json:"managerId,omitempty"`
	DepartmentID    string          `json:"departmentId"`
	BranchID        string          `json:"branchId"`
	Status          Status          `json:"status"`
	ReliefStatus    ReliefStatus    `json:"reliefStatus"`
	History         []ApprovalEntry `json:"approvalHistory"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

func (r LeaveRequest) BalanceKey() BalanceKey {
	return BalanceKey{EmployeeID: r.EmployeeID, LeaveType: r.LeaveType, FiscalYear: r.FiscalYear}
}

type RequestFilter struct {
	EmployeeID string
	ApproverID string
	Statuses   []Status
	Limit      int
	Offset     int
}

type RequestListResult struct {
	Requests []LeaveRequest
	Total    int
}
