package agent

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"memorylane/internal/metrics"
)

// JobStatus represents the status of a dispatched job.
type JobStatus string

const (
	JobPending  JobStatus = "pending"
	JobRunning  JobStatus = "running"
	JobComplete JobStatus = "complete"
	JobFailed   JobStatus = "failed"
)

// Job is one unit of work launched off the webhook path.
type Job struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    JobStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at"`
	DoneAt    time.Time `json:"done_at,omitempty"`
}

// JobFunc is the body of a dispatched job. The context carries no deadline
// and is not canceled when the originating HTTP request completes.
type JobFunc func(ctx context.Context, jobID string) error

// Dispatcher runs each submitted job in its own goroutine. There is no cap,
// queue or backpressure.
type Dispatcher struct {
	mu     sync.RWMutex
	jobs   map[string]*Job
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewDispatcher creates a new dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		jobs:   make(map[string]*Job),
		logger: logger,
	}
}

// Submit launches fn and returns its job id immediately. Errors and panics
// inside fn are caught and logged here; nothing propagates to the caller.
func (d *Dispatcher) Submit(ctx context.Context, name string, fn JobFunc) string {
	id := uuid.NewString()
	job := &Job{
		ID:        id,
		Name:      name,
		Status:    JobPending,
		StartedAt: time.Now(),
	}

	d.mu.Lock()
	d.jobs[id] = job
	d.mu.Unlock()

	d.logger.Debug("job submitted", "id", id, "name", name)

	jobCtx := context.WithoutCancel(ctx)
	d.wg.Add(1)
	metrics.JobsInFlight.Inc()

	go func() {
		defer d.wg.Done()
		defer metrics.JobsInFlight.Dec()

		d.setStatus(job, JobRunning, nil)
		err := d.run(jobCtx, id, fn)
		if err != nil {
			d.logger.Error("job failed", "id", id, "name", name, "err", err)
			d.setStatus(job, JobFailed, err)
			return
		}
		d.logger.Debug("job completed", "id", id, "name", name)
		d.setStatus(job, JobComplete, nil)
	}()

	return id
}

func (d *Dispatcher) run(ctx context.Context, id string, fn JobFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("job panicked", "id", id, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, id)
}

func (d *Dispatcher) setStatus(job *Job, status JobStatus, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	job.Status = status
	if status == JobComplete || status == JobFailed {
		job.DoneAt = time.Now()
	}
	if err != nil {
		job.Error = err.Error()
	}
}

// Get returns a copy of the job's current state.
func (d *Dispatcher) Get(id string) (Job, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	job, ok := d.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// ListActive returns jobs that are still pending or running.
func (d *Dispatcher) ListActive() []Job {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var result []Job
	for _, j := range d.jobs {
		if j.Status == JobPending || j.Status == JobRunning {
			result = append(result, *j)
		}
	}
	return result
}

// Clean forgets finished jobs older than maxAge and returns how many were removed.
func (d *Dispatcher) Clean(maxAge time.Duration) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, j := range d.jobs {
		if (j.Status == JobComplete || j.Status == JobFailed) && j.DoneAt.Before(cutoff) {
			delete(d.jobs, id)
			removed++
		}
	}
	return removed
}

// Wait blocks until every submitted job has returned or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
