package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
)

func (s *Store) StartRun(ctx context.Context, jobType string, at time.Time) (string, error) {
	id := uuid.NewString()
	if _, err := s.DB.Exec(ctx, `
    INSERT INTO job_runs (id, job_type, status, started_at)
    VALUES ($1,$2,'running',$3)
  `, id, jobType, at); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) FinishRun(ctx context.Context, runID, status string, details []byte, at time.Time) error {
	_, err := s.DB.Exec(ctx, `
    UPDATE job_runs
    SET status = $1, details_json = $2, completed_at = $3
    WHERE id = $4
  `, status, details, at, runID)
	return err
}
