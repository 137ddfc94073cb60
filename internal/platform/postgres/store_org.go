package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"leaveflow/internal/domain/leave"
)

const employeeColumns = `id, name, email, role, employment_type, department_id, branch_id,
      COALESCE(manager_id, ''), COALESCE(team_lead_id, ''), COALESCE(date_of_joining, '0001-01-01'::date), active`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row rowScanner) (leave.Employee, error) {
	var e leave.Employee
	err := row.Scan(&e.ID, &e.Name, &e.Email, &e.Role, &e.EmploymentType, &e.DepartmentID, &e.BranchID,
		&e.ManagerID, &e.TeamLeadID, &e.DateOfJoining, &e.Active)
	return e, err
}

func (s *Store) GetEmployee(ctx context.Context, employeeID string) (leave.Employee, error) {
	e, err := scanEmployee(s.DB.QueryRow(ctx, `
    SELECT `+employeeColumns+`
    FROM employees
    WHERE id = $1
  `, employeeID))
	if err != nil {
		return leave.Employee{}, notFound(err, "employee", employeeID)
	}
	return e, nil
}

// EmployeeActive reports false for unknown employees.
func (s *Store) EmployeeActive(ctx context.Context, employeeID string) (bool, error) {
	var active bool
	err := s.DB.QueryRow(ctx, `
    SELECT active FROM employees WHERE id = $1
  `, employeeID).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return active, err
}

func (s *Store) ListActiveEmployees(ctx context.Context) ([]leave.Employee, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+employeeColumns+`
    FROM employees
    WHERE active
    ORDER BY id
  `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []leave.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) GetOrgUnit(ctx context.Context, scope leave.Scope, id string) (leave.OrgUnit, error) {
	table, err := unitTable(scope)
	if err != nil {
		return leave.OrgUnit{}, err
	}
	var u leave.OrgUnit
	err = s.DB.QueryRow(ctx, `
    SELECT id, name, active, max_concurrent_leaves, required_coverage
    FROM `+table+`
    WHERE id = $1
  `, id).Scan(&u.ID, &u.Name, &u.Active, &u.MaxConcurrentLeaves, &u.RequiredCoverage)
	if err != nil {
		return leave.OrgUnit{}, notFound(err, string(scope), id)
	}
	return u, nil
}

func (s *Store) CountActiveEmployees(ctx context.Context, scope leave.Scope, id string) (int, error) {
	column, err := unitColumn(scope)
	if err != nil {
		return 0, err
	}
	var total int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM employees WHERE active AND "+column+" = $1", id).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) scanPolicy(row rowScanner) (leave.LeavePolicy, error) {
	var id string
	var active bool
	var document []byte
	if err := row.Scan(&id, &active, &document); err != nil {
		return leave.LeavePolicy{}, err
	}
	p, err := leave.DecodePolicy(id, document)
	if err != nil {
		return leave.LeavePolicy{}, err
	}
	p.ID = id
	p.Active = active
	return p, nil
}

func (s *Store) GetPolicy(ctx context.Context, policyID string) (leave.LeavePolicy, error) {
	p, err := s.scanPolicy(s.DB.QueryRow(ctx, "SELECT id, active, document FROM leave_policies WHERE id = $1", policyID))
	if err != nil {
		return leave.LeavePolicy{}, notFound(err, "policy", policyID)
	}
	return p, nil
}

func (s *Store) ActivePolicy(ctx context.Context, leaveType string) (leave.LeavePolicy, error) {
	p, err := s.scanPolicy(s.DB.QueryRow(ctx, `
    SELECT id, active, document
    FROM leave_policies
    WHERE leave_type = $1 AND active
  `, leaveType))
	if err != nil {
		return leave.LeavePolicy{}, notFound(err, "policy", leaveType)
	}
	return p, nil
}

func (s *Store) ListActivePolicies(ctx context.Context) ([]leave.LeavePolicy, error) {
	rows, err := s.DB.Query(ctx, "SELECT id, active, document FROM leave_policies WHERE active ORDER BY leave_type")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []leave.LeavePolicy
	for rows.Next() {
		p, err := s.scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) SaveOrgUnit(ctx context.Context, scope leave.Scope, unit leave.OrgUnit) error {
	table, err := unitTable(scope)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
    INSERT INTO `+table+` (id, name, active, max_concurrent_leaves, required_coverage)
    VALUES ($1,$2,$3,$4,$5)
    ON CONFLICT (id) DO UPDATE
      SET name = EXCLUDED.name,
          active = EXCLUDED.active,
          max_concurrent_leaves = EXCLUDED.max_concurrent_leaves,
          required_coverage = EXCLUDED.required_coverage
  `, unit.ID, unit.Name, unit.Active, unit.MaxConcurrentLeaves, unit.RequiredCoverage)
	return err
}

func (s *Store) SaveEmployee(ctx context.Context, e leave.Employee) error {
	var joined any
	if !e.DateOfJoining.IsZero() {
		joined = leave.Day(e.DateOfJoining)
	}
	_, err := s.DB.Exec(ctx, `
    INSERT INTO employees (id, name, email, role, employment_type, department_id, branch_id, manager_id, team_lead_id, date_of_joining, active)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
    ON CONFLICT (id) DO UPDATE
      SET name = EXCLUDED.name,
          email = EXCLUDED.email,
          role = EXCLUDED.role,
          employment_type = EXCLUDED.employment_type,
          department_id = EXCLUDED.department_id,
          branch_id = EXCLUDED.branch_id,
          manager_id = EXCLUDED.manager_id,
          team_lead_id = EXCLUDED.team_lead_id,
          date_of_joining = EXCLUDED.date_of_joining,
          active = EXCLUDED.active
  `, e.ID, e.Name, e.Email, e.Role, e.EmploymentType, e.DepartmentID, e.BranchID,
		nullIfEmpty(e.ManagerID), nullIfEmpty(e.TeamLeadID), joined, e.Active)
	return err
}

func (s *Store) SavePolicy(ctx context.Context, p leave.LeavePolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	document, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
    INSERT INTO leave_policies (id, leave_type, active, document, updated_at)
    VALUES ($1,$2,$3,$4,now())
    ON CONFLICT (id) DO UPDATE
      SET leave_type = EXCLUDED.leave_type,
          active = EXCLUDED.active,
          document = EXCLUDED.document,
          updated_at = now()
  `, p.ID, p.LeaveType, p.Active, document)
	return err
}
