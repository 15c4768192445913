package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

const (
	pollInterval = 500 * time.Millisecond
	pollTimeout  = 5 * time.Second
)

// pollJob creates a command to fetch one job's status
func pollJob(api API, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
		defer cancel()
		st, err := api.JobStatus(ctx, id)
		return JobUpdateMsg{JobID: id, Status: st, Err: err}
	}
}

// pollStats creates a command to fetch queue stats
func pollStats(api API) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
		defer cancel()
		stats, err := api.QueueStats(ctx)
		return StatsUpdateMsg{Stats: stats, Err: err}
	}
}

// tickCmd creates a command that ticks every 500ms for polling
func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return TickMsg{Time: t}
	})
}
