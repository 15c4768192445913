package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docintake/common"
	"docintake/processor"
	"docintake/types"

	"golang.org/x/sync/errgroup"
)

// WorkerConfig controls the worker pool.
type WorkerConfig struct {
	Concurrency  int           // default 4
	JobTimeout   time.Duration // default 5m
	PollInterval time.Duration // how long one dequeue waits; default 1s
	RetryDelay   time.Duration // pause after a failed dequeue; default 2s
}

// Worker drains a WorkQueue through a Processor.
type Worker struct {
	queue    WorkQueue
	proc     processor.Processor
	listener JobListener
	log      *common.Logger
	cfg      WorkerConfig
}

func NewWorker(q WorkQueue, proc processor.Processor, listener JobListener, log *common.Logger, cfg WorkerConfig) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 4
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if log == nil {
		log = common.NopLogger()
	}
	return &Worker{
		queue:    q,
		proc:     proc,
		listener: listener,
		log:      log.With("component", "QueueWorker"),
		cfg:      cfg,
	}
}

// Run starts Concurrency loops and blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("Starting queue worker pool", "concurrency", w.cfg.Concurrency)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Concurrency; i++ {
		workerID := i + 1
		g.Go(func() error {
			w.runLoop(ctx, workerID)
			return nil
		})
	}
	return g.Wait()
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	for {
		if ctx.Err() != nil {
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		}
		if claimed, err := w.ProcessNext(ctx); err != nil {
			w.log.Warn("Processing next job failed", "worker_id", workerID, "error", err)
			if !claimed {
				select {
				case <-ctx.Done():
				case <-time.After(w.cfg.RetryDelay):
				}
			}
		}
	}
}

// ProcessNext claims and runs at most one job. It reports whether a job was
// claimed.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := w.queue.Dequeue(ctx, w.cfg.PollInterval)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	log := w.log.With("job_id", job.ID, "owner_id", job.Input.OwnerID)
	log.Info("Processing job", "doc_type", job.Input.DocType)

	start := time.Now()
	res, procErr := w.run(ctx, job)
	elapsed := time.Since(start)

	// Record the outcome even when shutdown cancelled ctx mid-job.
	recordCtx := context.WithoutCancel(ctx)
	var finishErr error
	if procErr != nil {
		log.Warn("Job failed", "error", procErr, "duration_ms", elapsed.Milliseconds())
		finishErr = w.queue.Fail(recordCtx, job.ID, procErr.Error())
	} else {
		log.Info("Job completed", "transactions", res.TransactionCount, "duration_ms", elapsed.Milliseconds())
		finishErr = w.queue.Complete(recordCtx, job.ID, types.JobResult{
			Transactions:     res.Transactions,
			TransactionCount: res.TransactionCount,
			ProcessingTimeMs: res.ProcessingTimeMs,
			DurationMs:       elapsed.Milliseconds(),
		})
	}
	if finishErr != nil {
		return true, fmt.Errorf("record outcome of job %s: %w", job.ID, finishErr)
	}

	if w.listener != nil {
		final, err := w.queue.Status(recordCtx, job.ID)
		if err != nil || final == nil {
			log.Warn("Reload finished job failed", "error", err)
			return true, nil
		}
		w.listener.JobFinished(recordCtx, *final)
	}
	return true, nil
}

func (w *Worker) run(ctx context.Context, job *types.Job) (res *processor.Result, err error) {
	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Processor panic", "job_id", job.ID, "panic", r)
			res, err = nil, fmt.Errorf("processor panic: %v", r)
		}
	}()

	req := processor.NewRequest(job.ID, job.Input, func(p int) {
		if err := w.queue.UpdateProgress(ctx, job.ID, p); err != nil {
			w.log.Debug("Progress update failed", "job_id", job.ID, "error", err)
		}
	})
	res, err = w.proc.Process(jobCtx, req)
	if err == nil && res == nil {
		err = errors.New("processor returned no result")
	}
	if errors.Is(err, context.DeadlineExceeded) && jobCtx.Err() != nil && ctx.Err() == nil {
		err = fmt.Errorf("job timed out after %s: %w", w.cfg.JobTimeout, err)
	}
	return res, err
}
