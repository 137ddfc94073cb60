package leave

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrValidationDenied    = errors.New("validation denied")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotFound            = errors.New("not found")
	ErrLedgerInconsistency = errors.New("ledger inconsistency")
	ErrMalformedPolicy     = errors.New("malformed policy")
	ErrInvalidInput        = errors.New("invalid input")
	ErrSlipUnavailable     = errors.New("leave slip is only available for approved requests")
)

type ReasonCode string

const (
	ReasonDepartmentInactive       ReasonCode = "department_inactive"
	ReasonBranchInactive           ReasonCode = "branch_inactive"
	ReasonDepartmentCapacity       ReasonCode = "department_capacity_reached"
	ReasonBranchCapacity           ReasonCode = "branch_capacity_reached"
	ReasonDepartmentCoverage       ReasonCode = "department_coverage_insufficient"
	ReasonBranchCoverage           ReasonCode = "branch_coverage_insufficient"
	ReasonReliefOfficerRequired    ReasonCode = "relief_officer_required"
	ReasonReliefOfficerInvalid     ReasonCode = "relief_officer_invalid"
	ReasonEmploymentTypeIneligible ReasonCode = "employment_type_ineligible"
	ReasonMinServiceNotMet         ReasonCode = "min_service_not_met"
	ReasonBlackoutConflict         ReasonCode = "blackout_conflict"
	ReasonInsufficientNotice       ReasonCode = "insufficient_notice"
	ReasonExceedsMaxConsecutive    ReasonCode = "exceeds_max_consecutive"
	ReasonInsufficientBalance      ReasonCode = "insufficient_balance"
	ReasonOverlappingRequest       ReasonCode = "overlapping_request"
	ReasonReliefOfficerUnavailable ReasonCode = "relief_officer_unavailable"
)

// ValidationDeniedError is returned when one of the admission checks fails.
type ValidationDeniedError struct {
	Reason  ReasonCode
	Message string
	Details map[string]any
}

func (e *ValidationDeniedError) Error() string {
	return fmt.Sprintf("validation denied (%s): %s", e.Reason, e.Message)
}

func (e *ValidationDeniedError) Unwrap() error {
	return ErrValidationDenied
}

type InvalidTransitionError struct {
	CurrentStatus   Status
	AttemptedAction Action
	Role            Role
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: cannot %s as %s from %s", e.AttemptedAction, e.Role, e.CurrentStatus)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

type PermissionDeniedError struct {
	RequiredRole Role
	ActorID      string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied: actor %s is not the assigned %s", e.ActorID, e.RequiredRole)
}

func (e *PermissionDeniedError) Unwrap() error {
	return ErrPermissionDenied
}

type InsufficientBalanceError struct {
	Key       BalanceKey
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %s, requested %s", e.Available.String(), e.Requested.String())
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

type LedgerInconsistencyError struct {
	Key    BalanceKey
	Detail string
}

func (e *LedgerInconsistencyError) Error() string {
	return fmt.Sprintf("ledger inconsistency for %s/%s/%d: %s", e.Key.EmployeeID, e.Key.LeaveType, e.Key.FiscalYear, e.Detail)
}

func (e *LedgerInconsistencyError) Unwrap() error {
	return ErrLedgerInconsistency
}

func notFound(entity string, id ...string) error {
	return &NotFoundError{Entity: entity, ID: strings.Join(id, "/")}
}

// IsNotFound reports whether err denotes a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
