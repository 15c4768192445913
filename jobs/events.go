package jobs

import (
	"context"
	"time"

	"docintake/common"
	"docintake/types"
)

// JobEvent is published once per job when it reaches a terminal state.
type JobEvent struct {
	JobID            string         `json:"jobId"`
	OwnerID          string         `json:"ownerId"`
	DocumentID       string         `json:"documentId,omitempty"`
	DocType          types.DocType  `json:"docType"`
	State            types.JobState `json:"state"`
	Error            string         `json:"error,omitempty"`
	TransactionCount int            `json:"transactionCount"`
	DurationMs       int64          `json:"durationMs"`
	FinishedAt       time.Time      `json:"finishedAt"`
}

// NewJobEvent summarizes a finished job.
func NewJobEvent(job types.Job) JobEvent {
	ev := JobEvent{
		JobID:      job.ID,
		OwnerID:    job.Input.OwnerID,
		DocumentID: job.Input.DocumentID,
		DocType:    job.Input.DocType,
		State:      job.State,
		Error:      job.Error,
	}
	if job.Result != nil {
		ev.TransactionCount = job.Result.TransactionCount
		ev.DurationMs = job.Result.DurationMs
	}
	if job.FinishedAt != nil {
		ev.FinishedAt = *job.FinishedAt
	}
	return ev
}

// JSONPublisher sends one keyed JSON message.
type JSONPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// EventPublisher is a queue.JobListener that publishes a JobEvent per job.
// Publish failures are logged and never affect the job.
type EventPublisher struct {
	pub JSONPublisher
	log *common.Logger
}

func NewEventPublisher(pub JSONPublisher, log *common.Logger) *EventPublisher {
	if log == nil {
		log = common.NopLogger()
	}
	return &EventPublisher{pub: pub, log: log.With("component", "JobEvents")}
}

func (p *EventPublisher) JobFinished(ctx context.Context, job types.Job) {
	if err := p.pub.PublishJSON(ctx, job.ID, NewJobEvent(job)); err != nil {
		p.log.Warn("Publish job event failed", "job_id", job.ID, "state", job.State, "error", err)
	}
}
