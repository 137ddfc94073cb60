package sqlite

import (
	"context"
	"strings"
	"time"

	"leaveflow/internal/domain/leave"
)

const requestColumns = `id, employee_id, leave_type, policy_id, fiscal_year, start_date, end_date, total_days, reason,
      COALESCE(relief_officer_id, ''), COALESCE(team_lead_id, ''), COALESCE(manager_id, ''),
      department_id, branch_id, status, relief_status, created_at, updated_at`

func scanRequest(row rowScanner) (leave.LeaveRequest, error) {
	var r leave.LeaveRequest
	var start, end, status, relief, created, updated string
	if err := row.Scan(&r.ID, &r.EmployeeID, &r.LeaveType, &r.PolicyID, &r.FiscalYear, &start, &end, &r.TotalDays, &r.Reason,
		&r.ReliefOfficerID, &r.TeamLeadID, &r.ManagerID,
		&r.DepartmentID, &r.BranchID, &status, &relief, &created, &updated); err != nil {
		return leave.LeaveRequest{}, err
	}
	r.Status = leave.Status(status)
	r.ReliefStatus = leave.ReliefStatus(relief)

	var err error
	if r.StartDate, err = parseDate(start); err != nil {
		return leave.LeaveRequest{}, err
	}
	if r.EndDate, err = parseDate(end); err != nil {
		return leave.LeaveRequest{}, err
	}
	if r.CreatedAt, err = parseTS(created); err != nil {
		return leave.LeaveRequest{}, err
	}
	if r.UpdatedAt, err = parseTS(updated); err != nil {
		return leave.LeaveRequest{}, err
	}
	return r, nil
}

func (s *Store) CreateRequest(ctx context.Context, req leave.LeaveRequest) error {
	return s.WithTx(ctx, func(api leave.StoreAPI) error {
		tx := api.(*Store)
		if _, err := tx.db.ExecContext(ctx, `
      INSERT INTO leave_requests (id, employee_id, leave_type, policy_id, fiscal_year, start_date, end_date, total_days, reason,
        relief_officer_id, team_lead_id, manager_id, department_id, branch_id, status, relief_status, created_at, updated_at)
      VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, req.ID, req.EmployeeID, req.LeaveType, req.PolicyID, req.FiscalYear, formatDate(req.StartDate), formatDate(req.EndDate), req.TotalDays, req.Reason,
			nullString(req.ReliefOfficerID), nullString(req.TeamLeadID), nullString(req.ManagerID),
			req.DepartmentID, req.BranchID, string(req.Status), string(req.ReliefStatus), formatTS(req.CreatedAt), formatTS(req.UpdatedAt)); err != nil {
			return err
		}
		for _, entry := range req.History {
			if err := tx.AppendHistory(ctx, req.ID, entry); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetRequest needs no row lock: the single connection already serialises
// transactions.
func (s *Store) GetRequest(ctx context.Context, requestID string) (leave.LeaveRequest, error) {
	req, err := scanRequest(s.db.QueryRowContext(ctx, `
    SELECT `+requestColumns+`
    FROM leave_requests
    WHERE id = ?
  `, requestID))
	if err != nil {
		return leave.LeaveRequest{}, notFound(err, "leave request", requestID)
	}
	history, err := s.history(ctx, []string{req.ID})
	if err != nil {
		return leave.LeaveRequest{}, err
	}
	req.History = history[req.ID]
	return req, nil
}

func (s *Store) history(ctx context.Context, requestIDs []string) (map[string][]leave.ApprovalEntry, error) {
	out := map[string][]leave.ApprovalEntry{}
	if len(requestIDs) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(requestIDs))
	for _, id := range requestIDs {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx, `
    SELECT request_id, seq, actor_id, role, action, from_status, to_status, notes, created_at
    FROM leave_approval_history
    WHERE request_id IN (`+placeholders(len(args))+`)
    ORDER BY request_id, seq
  `, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var requestID, role, action, from, to, created string
		var e leave.ApprovalEntry
		if err := rows.Scan(&requestID, &e.Seq, &e.ActorID, &role, &action, &from, &to, &e.Notes, &created); err != nil {
			return nil, err
		}
		if e.Timestamp, err = parseTS(created); err != nil {
			return nil, err
		}
		e.Role = leave.Role(role)
		e.Action = leave.Action(action)
		e.FromStatus = leave.Status(from)
		e.ToStatus = leave.Status(to)
		out[requestID] = append(out[requestID], e)
	}
	return out, rows.Err()
}

func (s *Store) ListRequests(ctx context.Context, filter leave.RequestFilter) (leave.RequestListResult, error) {
	var where []string
	var args []any
	if filter.EmployeeID != "" {
		where = append(where, "employee_id = ?")
		args = append(args, filter.EmployeeID)
	}
	if filter.ApproverID != "" {
		where = append(where, "(relief_officer_id = ? OR team_lead_id = ? OR manager_id = ?)")
		args = append(args, filter.ApproverID, filter.ApproverID, filter.ApproverID)
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, st := range filter.Statuses {
			args = append(args, string(st))
		}
	}
	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}

	var result leave.RequestListResult
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM leave_requests "+clause, args...).Scan(&result.Total); err != nil {
		return result, err
	}

	rows, err := s.db.QueryContext(ctx, `
    SELECT `+requestColumns+`
    FROM leave_requests
    `+clause+`
    ORDER BY created_at DESC, id
    LIMIT ? OFFSET ?
  `, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return result, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return result, err
		}
		result.Requests = append(result.Requests, req)
		ids = append(ids, req.ID)
	}
	if err := rows.Err(); err != nil {
		return result, err
	}
	rows.Close()

	history, err := s.history(ctx, ids)
	if err != nil {
		return result, err
	}
	for i := range result.Requests {
		result.Requests[i].History = history[result.Requests[i].ID]
	}
	return result, nil
}

func (s *Store) UpdateRequestStatus(ctx context.Context, requestID string, from, to leave.Status, relief leave.ReliefStatus, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
    UPDATE leave_requests
    SET status = ?, relief_status = ?, updated_at = ?
    WHERE id = ? AND status = ?
  `, string(to), string(relief), formatTS(at), requestID, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *Store) AppendHistory(ctx context.Context, requestID string, e leave.ApprovalEntry) error {
	_, err := s.db.ExecContext(ctx, `
    INSERT INTO leave_approval_history (request_id, seq, actor_id, role, action, from_status, to_status, notes, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
  `, requestID, e.Seq, e.ActorID, string(e.Role), string(e.Action), string(e.FromStatus), string(e.ToStatus), e.Notes, formatTS(e.Timestamp))
	return err
}

func (s *Store) OnLeaveEmployees(ctx context.Context, scope leave.Scope, unitID string, start, end time.Time) ([]string, error) {
	column, err := unitColumn(scope)
	if err != nil {
		return nil, err
	}
	args := append([]any{unitID}, blockingArgs()...)
	args = append(args, formatDate(end), formatDate(start))
	rows, err := s.db.QueryContext(ctx, `
    SELECT DISTINCT employee_id
    FROM leave_requests
    WHERE `+column+` = ? AND status IN (`+placeholders(len(leave.BlockingStatuses))+`) AND start_date <= ? AND end_date >= ?
  `, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// blockingRequests lists blocking requests overlapping [start, end] that
// match who, a condition with one placeholder per element of whoArgs.
func (s *Store) blockingRequests(ctx context.Context, who string, whoArgs []any, start, end time.Time) ([]leave.LeaveRequest, error) {
	args := append(whoArgs, blockingArgs()...)
	args = append(args, formatDate(end), formatDate(start))
	rows, err := s.db.QueryContext(ctx, `
    SELECT `+requestColumns+`
    FROM leave_requests
    WHERE `+who+` AND status IN (`+placeholders(len(leave.BlockingStatuses))+`) AND start_date <= ? AND end_date >= ?
    ORDER BY start_date
  `, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []leave.LeaveRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (s *Store) OverlappingRequests(ctx context.Context, employeeID string, start, end time.Time) ([]leave.LeaveRequest, error) {
	return s.blockingRequests(ctx, "employee_id = ?", []any{employeeID}, start, end)
}

func (s *Store) ReliefCommitments(ctx context.Context, employeeID string, start, end time.Time) ([]leave.LeaveRequest, error) {
	return s.blockingRequests(ctx, "(employee_id = ? OR relief_officer_id = ?)", []any{employeeID, employeeID}, start, end)
}
