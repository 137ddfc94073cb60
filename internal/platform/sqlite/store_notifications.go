package sqlite

import (
	"context"
	"database/sql"
	"time"

	"leaveflow/internal/domain/notifications"
)

func (s *Store) CreateNotification(ctx context.Context, n notifications.Notification) error {
	_, err := s.db.ExecContext(ctx, `
    INSERT INTO notifications (id, employee_id, type, title, body, created_at)
    VALUES (?, ?, ?, ?, ?, ?)
  `, n.ID, n.EmployeeID, n.Type, n.Title, n.Body, formatTS(n.CreatedAt))
	return err
}

func (s *Store) EmployeeEmail(ctx context.Context, employeeID string) (string, error) {
	var email string
	if err := s.db.QueryRowContext(ctx, "SELECT email FROM employees WHERE id = ?", employeeID).Scan(&email); err != nil {
		return "", notFound(err, "employee", employeeID)
	}
	return email, nil
}

func (s *Store) EmployeeIDsWithRole(ctx context.Context, roles ...string) ([]string, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(roles))
	for _, r := range roles {
		args = append(args, r)
	}
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM employees WHERE active = 1 AND role IN ("+placeholders(len(args))+") ORDER BY id", args...)
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

func (s *Store) ListNotifications(ctx context.Context, employeeID string, limit, offset int) ([]notifications.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
    SELECT id, employee_id, type, title, body, read_at, created_at
    FROM notifications
    WHERE employee_id = ?
    ORDER BY created_at DESC
    LIMIT ? OFFSET ?
  `, employeeID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []notifications.Notification
	for rows.Next() {
		var n notifications.Notification
		var readAt sql.NullString
		var created string
		if err := rows.Scan(&n.ID, &n.EmployeeID, &n.Type, &n.Title, &n.Body, &readAt, &created); err != nil {
			return nil, err
		}
		if n.CreatedAt, err = parseTS(created); err != nil {
			return nil, err
		}
		if readAt.Valid {
			t, err := parseTS(readAt.String)
			if err != nil {
				return nil, err
			}
			n.ReadAt = &t
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) CountNotifications(ctx context.Context, employeeID string) (int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM notifications WHERE employee_id = ?", employeeID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) MarkRead(ctx context.Context, employeeID, notificationID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
    UPDATE notifications SET read_at = ?
    WHERE employee_id = ? AND id = ? AND read_at IS NULL
  `, formatTS(at), employeeID, notificationID)
	return err
}
