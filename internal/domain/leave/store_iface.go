package leave

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// StoreAPI is the persistence boundary of the engine. Every method is one
// store round trip; WithTx hands fn a store bound to a single transaction
// that commits when fn returns nil and rolls back otherwise.
type StoreAPI interface {
	WithTx(ctx context.Context, fn func(StoreAPI) error) error

	GetEmployee(ctx context.Context, employeeID string) (Employee, error)
	ListActiveEmployees(ctx context.Context) ([]Employee, error)
	GetOrgUnit(ctx context.Context, scope Scope, id string) (OrgUnit, error)
	CountActiveEmployees(ctx context.Context, scope Scope, id string) (int, error)

	GetPolicy(ctx context.Context, policyID string) (LeavePolicy, error)
	ActivePolicy(ctx context.Context, leaveType string) (LeavePolicy, error)
	ListActivePolicies(ctx context.Context) ([]LeavePolicy, error)

	ReadBalanceStore
	WriteBalanceStore
	RequestStore
}

type ReadBalanceStore interface {
	GetBalance(ctx context.Context, key BalanceKey) (LeaveBalance, error)
	ListBalances(ctx context.Context, employeeID string, fiscalYear int) ([]LeaveBalance, error)
	ListBalancesForYear(ctx context.Context, fiscalYear int) ([]LeaveBalance, error)
}

type WriteBalanceStore interface {
	// InsertBalance creates the record unless one exists for its key.
	InsertBalance(ctx context.Context, balance LeaveBalance) (bool, error)
	// RefreshBalanceTerms overwrites the policy-derived parameters of an
	// existing record and leaves its balance untouched.
	RefreshBalanceTerms(ctx context.Context, balance LeaveBalance) error
	// AccrueBalance applies one accrual cycle to the record unless its
	// watermark already equals cycleID. Reports whether a row changed.
	AccrueBalance(ctx context.Context, balanceID, cycleID string, at time.Time) (bool, error)
	// DebitBalance decrements the record only while balance >= days.
	DebitBalance(ctx context.Context, key BalanceKey, days decimal.Decimal, at time.Time) (bool, error)
}

type RequestStore interface {
	CreateRequest(ctx context.Context, req LeaveRequest) error
	GetRequest(ctx context.Context, requestID string) (LeaveRequest, error)
	ListRequests(ctx context.Context, filter RequestFilter) (RequestListResult, error)
	// UpdateRequestStatus writes the new status only while the stored status
	// still equals from. Reports whether a row changed.
	UpdateRequestStatus(ctx context.Context, requestID string, from, to Status, relief ReliefStatus, at time.Time) (bool, error)
	AppendHistory(ctx context.Context, requestID string, entry ApprovalEntry) error

	// OnLeaveEmployees lists the distinct employees of the unit holding a
	// blocking request that overlaps [start, end].
	OnLeaveEmployees(ctx context.Context, scope Scope, unitID string, start, end time.Time) ([]string, error)
	// OverlappingRequests lists blocking requests of the employee that overlap [start, end].
	OverlappingRequests(ctx context.Context, employeeID string, start, end time.Time) ([]LeaveRequest, error)
	// ReliefCommitments lists blocking requests overlapping [start, end] in
	// which the employee is the applicant or the relief officer.
	ReliefCommitments(ctx context.Context, employeeID string, start, end time.Time) ([]LeaveRequest, error)
}

// ReferenceStore writes the organisational reference data the engine reads.
// It backs seeding and test fixtures; the engine itself never calls it.
type ReferenceStore interface {
	SaveOrgUnit(ctx context.Context, scope Scope, unit OrgUnit) error
	SaveEmployee(ctx context.Context, employee Employee) error
	SavePolicy(ctx context.Context, policy LeavePolicy) error
}
