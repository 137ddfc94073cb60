package leave

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Date is a calendar day, encoded as YYYY-MM-DD.
type Date struct {
	time.Time
}

func NewDate(t time.Time) Date {
	return Date{Time: Day(t)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(dateLayout))
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", raw, err)
	}
	d.Time = parsed
	return nil
}

type Eligibility struct {
	EmploymentTypes []string `json:"employmentTypes"`
	MinServiceDays  int      `json:"minServiceDays"`
}

// Allows reports whether the employment type is eligible. An empty list
// admits every employment type.
func (e Eligibility) Allows(employmentType string) bool {
	if len(e.EmploymentTypes) == 0 {
		return true
	}
	for _, t := range e.EmploymentTypes {
		if strings.EqualFold(t, employmentType) {
			return true
		}
	}
	return false
}

type AccrualRule struct {
	Rate           decimal.Decimal `json:"rate"`
	MaxAccrual     decimal.Decimal `json:"maxAccrual"`
	OpeningBalance decimal.Decimal `json:"openingBalance"`
}

type CarryOverRule struct {
	Enabled bool            `json:"enabled"`
	MaxDays decimal.Decimal `json:"maxDays"`
}

type WorkflowRule struct {
	RequiresReliefOfficer bool `json:"requiresReliefOfficer"`
}

type Restrictions struct {
	BlackoutDates      []Date `json:"blackoutDates"`
	MinNoticeDays      int    `json:"minNoticeDays"`
	MaxConsecutiveDays int    `json:"maxConsecutiveDays"`
	AllowHalfDay       bool   `json:"allowHalfDay"`
}

// LeavePolicy is owned by the administration surface; the engine only reads it.
type LeavePolicy struct {
	ID           string        `json:"id"`
	LeaveType    string        `json:"leaveType"`
	Name         string        `json:"name"`
	Active       bool          `json:"active"`
	Eligibility  Eligibility   `json:"eligibility"`
	Accrual      AccrualRule   `json:"accrual"`
	CarryOver    CarryOverRule `json:"carryOver"`
	Workflow     WorkflowRule  `json:"approvalWorkflow"`
	Restrictions Restrictions  `json:"restrictions"`
}

// Validate checks the policy document once at the store boundary.
func (p LeavePolicy) Validate() error {
	var problems []string
	if strings.TrimSpace(p.ID) == "" {
		problems = append(problems, "id required")
	}
	if strings.TrimSpace(p.LeaveType) == "" {
		problems = append(problems, "leaveType required")
	}
	if p.Eligibility.MinServiceDays < 0 {
		problems = append(problems, "eligibility.minServiceDays must not be negative")
	}
	if p.Accrual.Rate.IsNegative() {
		problems = append(problems, "accrual.rate must not be negative")
	}
	if p.Accrual.MaxAccrual.IsNegative() {
		problems = append(problems, "accrual.maxAccrual must not be negative")
	}
	if p.Accrual.OpeningBalance.IsNegative() {
		problems = append(problems, "accrual.openingBalance must not be negative")
	}
	if p.CarryOver.MaxDays.IsNegative() {
		problems = append(problems, "carryOver.maxDays must not be negative")
	}
	if p.Restrictions.MinNoticeDays < 0 {
		problems = append(problems, "restrictions.minNoticeDays must not be negative")
	}
	if p.Restrictions.MaxConsecutiveDays < 0 {
		problems = append(problems, "restrictions.maxConsecutiveDays must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w %s: %s", ErrMalformedPolicy, p.ID, strings.Join(problems, "; "))
	}
	return nil
}

// DecodePolicy parses and validates a stored policy document.
func DecodePolicy(id string, document []byte) (LeavePolicy, error) {
	var p LeavePolicy
	if err := json.Unmarshal(document, &p); err != nil {
		return LeavePolicy{}, fmt.Errorf("%w %s: %v", ErrMalformedPolicy, id, err)
	}
	if p.ID == "" {
		p.ID = id
	}
	if err := p.Validate(); err != nil {
		return LeavePolicy{}, err
	}
	return p, nil
}

// BlackoutWithin returns the first blackout date inside [start, end].
func (r Restrictions) BlackoutWithin(start, end time.Time) (time.Time, bool) {
	start, end = Day(start), Day(end)
	for _, d := range r.BlackoutDates {
		day := Day(d.Time)
		if !day.Before(start) && !day.After(end) {
			return day, true
		}
	}
	return time.Time{}, false
}
