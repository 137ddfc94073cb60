package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"leaveflow/internal/domain/leave"
	"leaveflow/internal/platform/config"
	"leaveflow/internal/platform/metrics"
)

const (
	JobLeaveAccrual  = "leave_accrual"
	JobLeaveRollover = "leave_rollover"
)

// RunStore records job runs.
type RunStore interface {
	StartRun(ctx context.Context, jobType string, at time.Time) (string, error)
	FinishRun(ctx context.Context, runID, status string, details []byte, at time.Time) error
}

// LeaveRunner is the part of the leave service the scheduler drives.
type LeaveRunner interface {
	RunAccrual(ctx context.Context, at time.Time) (leave.BatchSummary, error)
	RunRollover(ctx context.Context, toYear int) (leave.BatchSummary, error)
	FiscalYear(t time.Time) int
}

type Service struct {
	Store   RunStore
	Leave   LeaveRunner
	Cfg     config.Config
	Metrics *metrics.Collector
	Now     func() time.Time
	queue   chan job
}

type job struct {
	Type string
	Run  func(context.Context) (leave.BatchSummary, error)
}

func New(store RunStore, runner LeaveRunner, cfg config.Config, collector *metrics.Collector) *Service {
	return &Service{
		Store:   store,
		Leave:   runner,
		Cfg:     cfg,
		Metrics: collector,
		Now:     time.Now,
		queue:   make(chan job, 16),
	}
}

func (s *Service) Start(ctx context.Context) {
	go s.worker(ctx)
	if s.Cfg.LeaveSchedulerInterval > 0 {
		go s.schedule(ctx, s.Cfg.LeaveSchedulerInterval)
	}
}

func (s *Service) Enqueue(jobType string, run func(context.Context) (leave.BatchSummary, error)) {
	select {
	case s.queue <- job{Type: jobType, Run: run}:
	default:
		slog.Warn("job queue full", "jobType", jobType)
	}
}

// RunNow executes a job synchronously and records it like a scheduled run.
func (s *Service) RunNow(ctx context.Context, jobType string, run func(context.Context) (leave.BatchSummary, error)) (leave.BatchSummary, error) {
	return s.runJob(ctx, job{Type: jobType, Run: run})
}

func (s *Service) Accrual(at time.Time) func(context.Context) (leave.BatchSummary, error) {
	return func(ctx context.Context) (leave.BatchSummary, error) {
		return s.Leave.RunAccrual(ctx, at)
	}
}

func (s *Service) Rollover(toYear int) func(context.Context) (leave.BatchSummary, error) {
	return func(ctx context.Context) (leave.BatchSummary, error) {
		return s.Leave.RunRollover(ctx, toYear)
	}
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (leave.BatchSummary, error) {
	runID, err := s.Store.StartRun(ctx, j.Type, s.Now().UTC())
	if err != nil {
		slog.Warn("job run insert failed", "jobType", j.Type, "err", err)
	}

	summary, err := j.Run(ctx)
	status := "completed"
	details := map[string]any{"summary": summary}
	if err != nil {
		status = "failed"
		details["error"] = err.Error()
	}
	if s.Metrics != nil {
		s.Metrics.RecordJob(j.Type, err, summary.Processed, summary.Skipped, summary.Failed)
	}

	detailsJSON, marshalErr := json.Marshal(details)
	if marshalErr != nil {
		slog.Warn("job details marshal failed", "err", marshalErr)
		detailsJSON = []byte("{}")
	}
	if runID != "" {
		if updErr := s.Store.FinishRun(ctx, runID, status, detailsJSON, s.Now().UTC()); updErr != nil {
			slog.Warn("job run update failed", "jobType", j.Type, "err", updErr)
		}
	}
	return summary, err
}

// schedule enqueues the accrual of the current cycle on every tick, and
// during the fiscal start month the rollover into the current fiscal year.
func (s *Service) schedule(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Service) tick() {
	now := s.Now()
	if now.Month() == s.Cfg.FiscalYearStartMonth {
		s.Enqueue(JobLeaveRollover, s.Rollover(s.Leave.FiscalYear(now)))
	}
	s.Enqueue(JobLeaveAccrual, s.Accrual(now))
}
