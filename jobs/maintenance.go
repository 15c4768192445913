package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"docintake/common"

	"github.com/robfig/cron/v3"
)

// Janitor periodically cleans finished jobs out of the queue backend and the
// local result store.
type Janitor struct {
	manager   *Manager
	retention time.Duration
	log       *common.Logger
	cron      *cron.Cron
	cronID    cron.EntryID
	mu        sync.Mutex
	running   bool
}

func NewJanitor(m *Manager, retention time.Duration, log *common.Logger) *Janitor {
	if log == nil {
		log = common.NopLogger()
	}
	return &Janitor{
		manager:   m,
		retention: retention,
		log:       log.With("component", "Janitor"),
		cron:      cron.New(),
	}
}

// Start schedules RunOnce on a standard five-field cron schedule.
func (j *Janitor) Start(schedule string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return errors.New("janitor already started")
	}

	id, err := j.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		j.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	j.cronID = id
	j.running = true
	j.cron.Start()
	j.log.Info("Janitor started", "schedule", schedule, "retention", j.retention.String())
	return nil
}

// RunOnce cleans both stores and returns how many jobs each dropped. An
// unreachable backend is skipped.
func (j *Janitor) RunOnce(ctx context.Context) (queued int, local int) {
	queued, err := j.manager.CleanQueue(ctx, j.retention)
	switch {
	case errors.Is(err, ErrQueueUnavailable):
		j.log.Debug("Janitor skipped queue clean", "error", err)
	case err != nil:
		j.log.Warn("Janitor queue clean failed", "error", err)
	}
	local = j.manager.PruneLocal(j.retention)
	if queued > 0 || local > 0 {
		j.log.Info("Janitor removed finished jobs", "queued", queued, "local", local)
	}
	return queued, local
}

// Stop halts the schedule and waits for a running clean to finish.
func (j *Janitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.running {
		return
	}
	<-j.cron.Stop().Done()
	j.running = false
}
