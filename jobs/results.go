package jobs

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"docintake/types"
)

var errJobFinished = errors.New("job already finished")

// ResultStore records jobs executed without the queue.
type ResultStore interface {
	Create(job types.Job) error
	UpdateProgress(id string, progress int) error
	// Finish applies the terminal transition once; result and errMsg are
	// mutually exclusive.
	Finish(id string, result *types.JobResult, errMsg string, at time.Time) (types.Job, error)
	Get(id string) (types.Job, bool)
	Count() int
	// Prune drops terminal jobs that finished before cutoff.
	Prune(cutoff time.Time) int
}

// MemoryResults is a process-local ResultStore.
type MemoryResults struct {
	mu   sync.RWMutex
	jobs map[string]types.Job
}

func NewMemoryResults() *MemoryResults {
	return &MemoryResults{jobs: make(map[string]types.Job)}
}

func (s *MemoryResults) Create(job types.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *MemoryResults) UpdateProgress(id string, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, ErrJobNotFound)
	}
	if job.State.IsTerminal() {
		return nil
	}
	progress = max(0, min(progress, 100))
	if progress > job.Progress {
		job.Progress = progress
		s.jobs[id] = job
	}
	return nil
}

func (s *MemoryResults) Finish(id string, result *types.JobResult, errMsg string, at time.Time) (types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return types.Job{}, fmt.Errorf("job %s: %w", id, ErrJobNotFound)
	}
	if job.State.IsTerminal() {
		return job, fmt.Errorf("job %s: %w", id, errJobFinished)
	}

	if result != nil {
		job.State = types.JobCompleted
		job.Progress = 100
		job.Result = result
	} else {
		job.State = types.JobFailed
		job.Error = errMsg
	}
	if job.ProcessedAt == nil {
		job.ProcessedAt = &at
	}
	job.FinishedAt = &at
	s.jobs[id] = job
	return job, nil
}

func (s *MemoryResults) Get(id string) (types.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	return job, ok
}

func (s *MemoryResults) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func (s *MemoryResults) Prune(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, job := range s.jobs {
		if job.State.IsTerminal() && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}
