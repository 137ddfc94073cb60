package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"leaveflow/internal/domain/leave"
)

const employeeColumns = `id, name, email, role, employment_type, department_id, branch_id,
      COALESCE(manager_id, ''), COALESCE(team_lead_id, ''), COALESCE(date_of_joining, ''), active`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row rowScanner) (leave.Employee, error) {
	var e leave.Employee
	var joined string
	if err := row.Scan(&e.ID, &e.Name, &e.Email, &e.Role, &e.EmploymentType, &e.DepartmentID, &e.BranchID,
		&e.ManagerID, &e.TeamLeadID, &joined, &e.Active); err != nil {
		return leave.Employee{}, err
	}
	var err error
	if e.DateOfJoining, err = parseDate(joined); err != nil {
		return leave.Employee{}, fmt.Errorf("employee %s date_of_joining: %w", e.ID, err)
	}
	return e, nil
}

func (s *Store) GetEmployee(ctx context.Context, employeeID string) (leave.Employee, error) {
	e, err := scanEmployee(s.db.QueryRowContext(ctx, `
    SELECT `+employeeColumns+`
    FROM employees
    WHERE id = ?
  `, employeeID))
	if err != nil {
		return leave.Employee{}, notFound(err, "employee", employeeID)
	}
	return e, nil
}

// EmployeeActive reports false for unknown employees.
func (s *Store) EmployeeActive(ctx context.Context, employeeID string) (bool, error) {
	var active bool
	err := s.db.QueryRowContext(ctx, `
    SELECT active FROM employees WHERE id = ?
  `, employeeID).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return active, err
}

func (s *Store) ListActiveEmployees(ctx context.Context) ([]leave.Employee, error) {
	rows, err := s.db.QueryContext(ctx, `
    SELECT `+employeeColumns+`
    FROM employees
    WHERE active = 1
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
	err = s.db.QueryRowContext(ctx, `
    SELECT id, name, active, max_concurrent_leaves, required_coverage
    FROM `+table+`
    WHERE id = ?
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
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM employees WHERE active = 1 AND "+column+" = ?", id).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func scanPolicy(row rowScanner) (leave.LeavePolicy, error) {
	var id, document string
	var active bool
	if err := row.Scan(&id, &active, &document); err != nil {
		return leave.LeavePolicy{}, err
	}
	p, err := leave.DecodePolicy(id, []byte(document))
	if err != nil {
		return leave.LeavePolicy{}, err
	}
	p.ID = id
	p.Active = active
	return p, nil
}

func (s *Store) GetPolicy(ctx context.Context, policyID string) (leave.LeavePolicy, error) {
	p, err := scanPolicy(s.db.QueryRowContext(ctx, "SELECT id, active, document FROM leave_policies WHERE id = ?", policyID))
	if err != nil {
		return leave.LeavePolicy{}, notFound(err, "policy", policyID)
	}
	return p, nil
}

func (s *Store) ActivePolicy(ctx context.Context, leaveType string) (leave.LeavePolicy, error) {
	p, err := scanPolicy(s.db.QueryRowContext(ctx, `
    SELECT id, active, document
    FROM leave_policies
    WHERE leave_type = ? AND active = 1
  `, leaveType))
	if err != nil {
		return leave.LeavePolicy{}, notFound(err, "policy", leaveType)
	}
	return p, nil
}

func (s *Store) ListActivePolicies(ctx context.Context) ([]leave.LeavePolicy, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, active, document FROM leave_policies WHERE active = 1 ORDER BY leave_type")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []leave.LeavePolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
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
	_, err = s.db.ExecContext(ctx, `
    INSERT INTO `+table+` (id, name, active, max_concurrent_leaves, required_coverage)
    VALUES (?, ?, ?, ?, ?)
    ON CONFLICT (id) DO UPDATE
    SET name = excluded.name,
      active = excluded.active,
      max_concurrent_leaves = excluded.max_concurrent_leaves,
      required_coverage = excluded.required_coverage
  `, unit.ID, unit.Name, unit.Active, unit.MaxConcurrentLeaves, dec(unit.RequiredCoverage))
	return err
}

func (s *Store) SaveEmployee(ctx context.Context, e leave.Employee) error {
	var joined sql.NullString
	if !e.DateOfJoining.IsZero() {
		joined = sql.NullString{String: formatDate(e.DateOfJoining), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
    INSERT INTO employees (id, name, email, role, employment_type, department_id, branch_id,
      manager_id, team_lead_id, date_of_joining, active)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    ON CONFLICT (id) DO UPDATE
    SET name = excluded.name,
      email = excluded.email,
      role = excluded.role,
      employment_type = excluded.employment_type,
      department_id = excluded.department_id,
      branch_id = excluded.branch_id,
      manager_id = excluded.manager_id,
      team_lead_id = excluded.team_lead_id,
      date_of_joining = excluded.date_of_joining,
      active = excluded.active
  `, e.ID, e.Name, e.Email, e.Role, e.EmploymentType, e.DepartmentID, e.BranchID,
		nullString(e.ManagerID), nullString(e.TeamLeadID), joined, e.Active)
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
	_, err = s.db.ExecContext(ctx, `
    INSERT INTO leave_policies (id, leave_type, active, document, updated_at)
    VALUES (?, ?, ?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
    ON CONFLICT (id) DO UPDATE
    SET leave_type = excluded.leave_type,
      active = excluded.active,
      document = excluded.document,
      updated_at = excluded.updated_at
  `, p.ID, p.LeaveType, p.Active, string(document))
	return err
}
