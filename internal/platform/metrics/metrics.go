package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

type Collector struct {
	totalRequests   uint64
	errorRequests   uint64
	rateLimited     uint64
	totalDurationMs uint64
	droppedEvents   uint64

	mu   sync.Mutex
	jobs map[string]*JobStats
}

type JobStats struct {
	Runs      uint64 `json:"runs"`
	Failures  uint64 `json:"failures"`
	Processed uint64 `json:"processed"`
	Skipped   uint64 `json:"skipped"`
	Failed    uint64 `json:"failed"`
}

func New() *Collector {
	return &Collector{jobs: map[string]*JobStats{}}
}

func (c *Collector) Record(status int, duration time.Duration) {
	atomic.AddUint64(&c.totalRequests, 1)
	if status >= 500 {
		atomic.AddUint64(&c.errorRequests, 1)
	}
	if status == 429 {
		atomic.AddUint64(&c.rateLimited, 1)
	}
	atomic.AddUint64(&c.totalDurationMs, uint64(duration.Milliseconds()))
}

// RecordJob adds one batch run. processed, skipped and failed are the
// per-record counts the run reported.
func (c *Collector) RecordJob(jobType string, runErr error, processed, skipped, failed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.jobs[jobType]
	if !ok {
		st = &JobStats{}
		c.jobs[jobType] = st
	}
	st.Runs++
	if runErr != nil {
		st.Failures++
	}
	st.Processed += uint64(processed)
	st.Skipped += uint64(skipped)
	st.Failed += uint64(failed)
}

func (c *Collector) RecordDroppedEvent() {
	atomic.AddUint64(&c.droppedEvents, 1)
}

func (c *Collector) Snapshot() map[string]any {
	total := atomic.LoadUint64(&c.totalRequests)
	errs := atomic.LoadUint64(&c.errorRequests)
	limited := atomic.LoadUint64(&c.rateLimited)
	totalMs := atomic.LoadUint64(&c.totalDurationMs)
	avg := float64(0)
	if total > 0 {
		avg = float64(totalMs) / float64(total)
	}

	c.mu.Lock()
	jobs := make(map[string]JobStats, len(c.jobs))
	for name, st := range c.jobs {
		jobs[name] = *st
	}
	c.mu.Unlock()

	return map[string]any{
		"requestsTotal":             total,
		"errorsTotal":               errs,
		"rateLimitedTotal":          limited,
		"avgDurationMs":             avg,
		"totalDurationMs":           totalMs,
		"notificationsDroppedTotal": atomic.LoadUint64(&c.droppedEvents),
		"jobs":                      jobs,
	}
}
