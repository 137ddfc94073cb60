package db

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"leaveflow/internal/domain/leave"
	"leaveflow/internal/platform/config"
)

const (
	SeedDepartmentID = "dept-general"
	SeedBranchID     = "branch-main"
	SeedAdminID      = "emp-admin"
)

// Seed writes a minimal organisation for local development: one department,
// one branch, an annual leave policy and an HR administrator.
func Seed(ctx context.Context, store leave.ReferenceStore, cfg config.Config) error {
	if err := store.SaveOrgUnit(ctx, leave.ScopeDepartment, leave.OrgUnit{
		ID:               SeedDepartmentID,
		Name:             "General",
		Active:           true,
		RequiredCoverage: decimal.NewFromInt(50),
	}); err != nil {
		return err
	}
	if err := store.SaveOrgUnit(ctx, leave.ScopeBranch, leave.OrgUnit{
		ID:     SeedBranchID,
		Name:   "Main",
		Active: true,
	}); err != nil {
		return err
	}

	if err := store.SavePolicy(ctx, DefaultAnnualPolicy()); err != nil {
		return err
	}

	email := strings.TrimSpace(cfg.SeedAdminEmail)
	if email == "" {
		return nil
	}
	return store.SaveEmployee(ctx, leave.Employee{
		ID:             SeedAdminID,
		Name:           "HR Administrator",
		Email:          email,
		Role:           string(leave.RoleAdmin),
		EmploymentType: "full-time",
		DepartmentID:   SeedDepartmentID,
		BranchID:       SeedBranchID,
		DateOfJoining:  time.Now().UTC().AddDate(-1, 0, 0),
		Active:         true,
	})
}

func DefaultAnnualPolicy() leave.LeavePolicy {
	return leave.LeavePolicy{
		ID:        "policy-annual",
		LeaveType: "annual",
		Name:      "Annual leave",
		Active:    true,
		Eligibility: leave.Eligibility{
			EmploymentTypes: []string{"full-time", "part-time"},
			MinServiceDays:  90,
		},
		Accrual: leave.AccrualRule{
			Rate:       decimal.RequireFromString("1.75"),
			MaxAccrual: decimal.NewFromInt(30),
		},
		CarryOver: leave.CarryOverRule{Enabled: true, MaxDays: decimal.NewFromInt(10)},
		Workflow:  leave.WorkflowRule{RequiresReliefOfficer: true},
		Restrictions: leave.Restrictions{
			MinNoticeDays:      7,
			MaxConsecutiveDays: 21,
		},
	}
}
