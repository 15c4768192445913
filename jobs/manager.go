// Package jobs accepts document-processing jobs and reports their status,
// using the queue backend when it is reachable and running jobs inline when
// it is not.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docintake/common"
	"docintake/processor"
	"docintake/queue"
	"docintake/types"

	"github.com/google/uuid"
)

var (
	// ErrJobNotFound means neither the backend nor the local store knows the id.
	ErrJobNotFound = common.NewAppError("JOB_NOT_FOUND", "job not found", common.ErrNotFound)
	// ErrQueueUnavailable is returned by queue control operations when the
	// backend cannot be reached.
	ErrQueueUnavailable = common.NewAppError("QUEUE_UNAVAILABLE", "queue backend unavailable", common.ErrUnavailable)
)

// QueueStats is the backend view plus the number of locally executed jobs.
type QueueStats struct {
	queue.Stats
	LocalJobs int `json:"localJobs"`
}

// Manager routes submissions and status lookups between the queue backend and
// the local result store.
type Manager struct {
	backend  queue.Backend
	proc     processor.Processor
	results  ResultStore
	listener queue.JobListener
	log      *common.Logger
	now      func() time.Time
}

type Option func(*Manager)

func WithResultStore(s ResultStore) Option {
	return func(m *Manager) { m.results = s }
}

func WithListener(l queue.JobListener) Option {
	return func(m *Manager) { m.listener = l }
}

func WithLogger(l *common.Logger) Option {
	return func(m *Manager) { m.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager builds a Manager. A nil backend means every job runs inline.
func NewManager(backend queue.Backend, proc processor.Processor, opts ...Option) *Manager {
	m := &Manager{
		backend: backend,
		proc:    proc,
		results: NewMemoryResults(),
		log:     common.NopLogger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With("component", "JobManager")
	return m
}

// Submit validates req and either enqueues it or, when the backend is
// unreachable, processes it before returning.
func (m *Manager) Submit(ctx context.Context, req types.JobRequest) (types.Submission, error) {
	if err := ValidateRequest(req); err != nil {
		return types.Submission{}, err
	}

	if m.reachable(ctx) {
		id, err := m.backend.Enqueue(ctx, req)
		if err == nil {
			m.log.Info("Job queued", "job_id", id, "owner_id", req.OwnerID)
			return types.Submission{ID: id, State: types.JobQueued}, nil
		}
		if !queue.IsConnectivity(err) {
			return types.Submission{}, fmt.Errorf("enqueue job: %w", err)
		}
		m.log.Warn("Enqueue lost the backend, processing inline", "error", err)
	}

	return m.runInline(ctx, req)
}

func (m *Manager) runInline(ctx context.Context, req types.JobRequest) (types.Submission, error) {
	id := uuid.New().String()
	log := m.log.With("job_id", id, "owner_id", req.OwnerID)

	err := m.results.Create(types.Job{
		ID:        id,
		State:     types.JobAcceptedNoQueue,
		Input:     req,
		CreatedAt: m.now(),
	})
	if err != nil {
		return types.Submission{}, fmt.Errorf("record job: %w", err)
	}
	log.Info("Processing job inline", "doc_type", req.DocType)

	start := time.Now()
	res, procErr := m.process(ctx, id, req)
	elapsed := time.Since(start)

	var job types.Job
	if procErr != nil {
		log.Warn("Job failed", "error", procErr, "duration_ms", elapsed.Milliseconds())
		job, err = m.results.Finish(id, nil, procErr.Error(), m.now())
	} else {
		log.Info("Job completed", "transactions", res.TransactionCount, "duration_ms", elapsed.Milliseconds())
		job, err = m.results.Finish(id, &types.JobResult{
			Transactions:     res.Transactions,
			TransactionCount: res.TransactionCount,
			ProcessingTimeMs: res.ProcessingTimeMs,
			DurationMs:       elapsed.Milliseconds(),
		}, "", m.now())
	}
	if err != nil {
		return types.Submission{}, fmt.Errorf("record job outcome: %w", err)
	}

	if m.listener != nil {
		m.listener.JobFinished(ctx, job)
	}
	return types.Submission{ID: id, State: job.State}, nil
}

func (m *Manager) process(ctx context.Context, id string, req types.JobRequest) (res *processor.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("Processor panic", "job_id", id, "panic", r)
			res, err = nil, fmt.Errorf("processor panic: %v", r)
		}
	}()

	res, err = m.proc.Process(ctx, processor.NewRequest(id, req, func(p int) {
		if err := m.results.UpdateProgress(id, p); err != nil {
			m.log.Debug("Progress update failed", "job_id", id, "error", err)
		}
	}))
	if err == nil && res == nil {
		err = errors.New("processor returned no result")
	}
	return res, err
}

// Status looks the job up in the backend first and the local store second.
// Unknown ids return a not_found job together with ErrJobNotFound.
func (m *Manager) Status(ctx context.Context, id string) (types.Job, error) {
	if m.reachable(ctx) {
		job, err := m.backend.Status(ctx, id)
		switch {
		case err == nil && job != nil:
			return *job, nil
		case err != nil && !queue.IsConnectivity(err):
			return types.Job{}, fmt.Errorf("job status: %w", err)
		case err != nil:
			m.log.Warn("Status lost the backend, checking local results", "job_id", id, "error", err)
		}
	}

	if job, ok := m.results.Get(id); ok {
		return job, nil
	}
	return types.Job{ID: id, State: types.JobNotFound}, ErrJobNotFound
}

// QueueStats never fails on an unreachable backend; it reports Reachable=false.
func (m *Manager) QueueStats(ctx context.Context) (QueueStats, error) {
	out := QueueStats{LocalJobs: m.results.Count()}
	if m.backend == nil {
		return out, nil
	}
	stats, err := m.backend.Stats(ctx)
	if err != nil {
		if queue.IsConnectivity(err) {
			return out, nil
		}
		return out, fmt.Errorf("queue stats: %w", err)
	}
	out.Stats = stats
	return out, nil
}

func (m *Manager) PauseQueue(ctx context.Context) error {
	return m.control(ctx, "pause", m.backendPause)
}

func (m *Manager) ResumeQueue(ctx context.Context) error {
	return m.control(ctx, "resume", m.backendResume)
}

// CleanQueue removes backend jobs that finished more than olderThan ago.
func (m *Manager) CleanQueue(ctx context.Context, olderThan time.Duration) (int, error) {
	var removed int
	err := m.control(ctx, "clean", func(ctx context.Context) error {
		n, err := m.backend.CleanOld(ctx, olderThan)
		removed = n
		return err
	})
	return removed, err
}

// PruneLocal drops locally executed jobs that finished more than olderThan ago.
func (m *Manager) PruneLocal(olderThan time.Duration) int {
	return m.results.Prune(m.now().Add(-olderThan))
}

// PingQueue probes the backend. It returns ErrQueueUnavailable wrapping the
// cause when there is no reachable backend.
func (m *Manager) PingQueue(ctx context.Context) error {
	if m.backend == nil {
		return fmt.Errorf("%w: not configured", ErrQueueUnavailable)
	}
	if err := m.backend.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrQueueUnavailable, err)
	}
	return nil
}

func (m *Manager) backendPause(ctx context.Context) error  { return m.backend.Pause(ctx) }
func (m *Manager) backendResume(ctx context.Context) error { return m.backend.Resume(ctx) }

func (m *Manager) control(ctx context.Context, op string, fn func(context.Context) error) error {
	if m.backend == nil {
		return fmt.Errorf("%w: not configured", ErrQueueUnavailable)
	}
	if err := fn(ctx); err != nil {
		if queue.IsConnectivity(err) {
			return fmt.Errorf("%w: %w", ErrQueueUnavailable, err)
		}
		return fmt.Errorf("queue %s: %w", op, err)
	}
	m.log.Info("Queue control applied", "op", op)
	return nil
}

func (m *Manager) reachable(ctx context.Context) bool {
	if m.backend == nil {
		return false
	}
	if err := m.backend.Ping(ctx); err != nil {
		m.log.Debug("Queue backend unreachable", "error", err)
		return false
	}
	return true
}
