package postgres

import (
	"context"
	"time"

	"leaveflow/internal/domain/notifications"
)

func (s *Store) CreateNotification(ctx context.Context, n notifications.Notification) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO notifications (id, employee_id, type, title, body, created_at)
    VALUES ($1,$2,$3,$4,$5,$6)
  `, n.ID, n.EmployeeID, n.Type, n.Title, n.Body, n.CreatedAt)
	return err
}

func (s *Store) EmployeeEmail(ctx context.Context, employeeID string) (string, error) {
	var email string
	if err := s.DB.QueryRow(ctx, "SELECT email FROM employees WHERE id = $1", employeeID).Scan(&email); err != nil {
		return "", notFound(err, "employee", employeeID)
	}
	return email, nil
}

func (s *Store) EmployeeIDsWithRole(ctx context.Context, roles ...string) ([]string, error) {
	rows, err := s.DB.Query(ctx, "SELECT id FROM employees WHERE active AND role = ANY($1) ORDER BY id", roles)
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
	rows, err := s.DB.Query(ctx, `
    SELECT id, employee_id, type, title, body, read_at, created_at
    FROM notifications
    WHERE employee_id = $1
    ORDER BY created_at DESC
    LIMIT $2 OFFSET $3
  `, employeeID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []notifications.Notification
	for rows.Next() {
		var n notifications.Notification
		if err := rows.Scan(&n.ID, &n.EmployeeID, &n.Type, &n.Title, &n.Body, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) CountNotifications(ctx context.Context, employeeID string) (int, error) {
	var total int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM notifications WHERE employee_id = $1", employeeID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) MarkRead(ctx context.Context, employeeID, notificationID string, at time.Time) error {
	_, err := s.DB.Exec(ctx, `
    UPDATE notifications SET read_at = $1
    WHERE employee_id = $2 AND id = $3 AND read_at IS NULL
  `, at, employeeID, notificationID)
	return err
}
