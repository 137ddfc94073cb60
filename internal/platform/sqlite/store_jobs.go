package sqlite

import (
	"context"
	"time"

	"github.com/google/uuid"
)

func (s *Store) StartRun(ctx context.Context, jobType string, at time.Time) (string, error) {
	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx, `
    INSERT INTO job_runs (id, job_type, status, started_at)
    VALUES (?, ?, 'running', ?)
  `, id, jobType, formatTS(at)); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) FinishRun(ctx context.Context, runID, status string, details []byte, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
    UPDATE job_runs
    SET status = ?, details_json = ?, completed_at = ?
    WHERE id = ?
  `, status, string(details), formatTS(at), runID)
	return err
}
