package postgres

import (
	"context"
	"strconv"
	"strings"
	"time"

	"leaveflow/internal/domain/leave"
)

const requestColumns = `id, employee_id, leave_type, policy_id, fiscal_year, start_date, end_date, total_days, reason,
      COALESCE(relief_officer_id, ''), COALESCE(team_lead_id, ''), COALESCE(manager_id, ''),
      department_id, branch_id, status, relief_status, created_at, updated_at`

func scanRequest(row rowScanner) (leave.LeaveRequest, error) {
	var r leave.LeaveRequest
	var status, relief string
	err := row.Scan(&r.ID, &r.EmployeeID, &r.LeaveType, &r.PolicyID, &r.FiscalYear, &r.StartDate, &r.EndDate, &r.TotalDays, &r.Reason,
		&r.ReliefOfficerID, &r.TeamLeadID, &r.ManagerID,
		&r.DepartmentID, &r.BranchID, &status, &relief, &r.CreatedAt, &r.UpdatedAt)
	r.Status = leave.Status(status)
	r.ReliefStatus = leave.ReliefStatus(relief)
	return r, err
}

func (s *Store) CreateRequest(ctx context.Context, req leave.LeaveRequest) error {
	return s.WithTx(ctx, func(api leave.StoreAPI) error {
		tx := api.(*Store)
		if _, err := tx.DB.Exec(ctx, `
      INSERT INTO leave_requests (id, employee_id, leave_type, policy_id, fiscal_year, start_date, end_date, total_days, reason,
        relief_officer_id, team_lead_id, manager_id, department_id, branch_id, status, relief_status, created_at, updated_at)
      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
    `, req.ID, req.EmployeeID, req.LeaveType, req.PolicyID, req.FiscalYear, req.StartDate, req.EndDate, req.TotalDays, req.Reason,
			nullIfEmpty(req.ReliefOfficerID), nullIfEmpty(req.TeamLeadID), nullIfEmpty(req.ManagerID),
			req.DepartmentID, req.BranchID, string(req.Status), string(req.ReliefStatus), req.CreatedAt, req.UpdatedAt); err != nil {
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

func (s *Store) GetRequest(ctx context.Context, requestID string) (leave.LeaveRequest, error) {
	query := `
    SELECT ` + requestColumns + `
    FROM leave_requests
    WHERE id = $1
  `
	if s.inTx {
		query += "FOR UPDATE"
	}
	req, err := scanRequest(s.DB.QueryRow(ctx, query, requestID))
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
	rows, err := s.DB.Query(ctx, `
    SELECT request_id, seq, actor_id, role, action, from_status, to_status, notes, created_at
    FROM leave_approval_history
    WHERE request_id = ANY($1)
    ORDER BY request_id, seq
  `, requestIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var requestID, role, action, from, to string
		var e leave.ApprovalEntry
		if err := rows.Scan(&requestID, &e.Seq, &e.ActorID, &role, &action, &from, &to, &e.Notes, &e.Timestamp); err != nil {
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
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if filter.EmployeeID != "" {
		where = append(where, "employee_id = "+arg(filter.EmployeeID))
	}
	if filter.ApproverID != "" {
		p := arg(filter.ApproverID)
		where = append(where, "(relief_officer_id = "+p+" OR team_lead_id = "+p+" OR manager_id = "+p+")")
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses = append(statuses, string(st))
		}
		where = append(where, "status = ANY("+arg(statuses)+")")
	}
	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}

	var result leave.RequestListResult
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM leave_requests "+clause, args...).Scan(&result.Total); err != nil {
		return result, err
	}

	limit, offset := arg(filter.Limit), arg(filter.Offset)
	rows, err := s.DB.Query(ctx, `
    SELECT `+requestColumns+`
    FROM leave_requests
    `+clause+`
    ORDER BY created_at DESC, id
    LIMIT `+limit+` OFFSET `+offset, args...)
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
	tag, err := s.DB.Exec(ctx, `
    UPDATE leave_requests
    SET status = $1, relief_status = $2, updated_at = $3
    WHERE id = $4 AND status = $5
  `, string(to), string(relief), at, requestID, string(from))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) AppendHistory(ctx context.Context, requestID string, e leave.ApprovalEntry) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO leave_approval_history (request_id, seq, actor_id, role, action, from_status, to_status, notes, created_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
  `, requestID, e.Seq, e.ActorID, string(e.Role), string(e.Action), string(e.FromStatus), string(e.ToStatus), e.Notes, e.Timestamp)
	return err
}

func (s *Store) OnLeaveEmployees(ctx context.Context, scope leave.Scope, unitID string, start, end time.Time) ([]string, error) {
	column, err := unitColumn(scope)
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.Query(ctx, `
    SELECT DISTINCT employee_id
    FROM leave_requests
    WHERE `+column+` = $1 AND status = ANY($2) AND start_date <= $4 AND end_date >= $3
  `, unitID, blockingStatuses(), leave.Day(start), leave.Day(end))
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

func (s *Store) blockingRequests(ctx context.Context, who, employeeID string, start, end time.Time) ([]leave.LeaveRequest, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+requestColumns+`
    FROM leave_requests
    WHERE `+who+` AND status = ANY($2) AND start_date <= $4 AND end_date >= $3
    ORDER BY start_date
  `, employeeID, blockingStatuses(), leave.Day(start), leave.Day(end))
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
	return s.blockingRequests(ctx, "employee_id = $1", employeeID, start, end)
}

func (s *Store) ReliefCommitments(ctx context.Context, employeeID string, start, end time.Time) ([]leave.LeaveRequest, error) {
	return s.blockingRequests(ctx, "(employee_id = $1 OR relief_officer_id = $1)", employeeID, start, end)
}
