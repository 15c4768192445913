package tui

import (
	"time"

	"docintake/client"
	"docintake/jobs"
)

// JobUpdateMsg carries one job's latest status.
type JobUpdateMsg struct {
	JobID  string
	Status *client.JobStatus
	Err    error
}

// StatsUpdateMsg carries queue depth.
type StatsUpdateMsg struct {
	Stats *jobs.QueueStats
	Err   error
}

// TickMsg is sent periodically to trigger polling
type TickMsg struct {
	Time time.Time
}
