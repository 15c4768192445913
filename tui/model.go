// Package tui is a terminal watcher that polls job status and queue depth.
package tui

import (
	"context"
	"sort"

	"docintake/client"
	"docintake/jobs"
	"docintake/types"

	tea "github.com/charmbracelet/bubbletea"
)

// API is the part of the docintake client the watcher polls.
type API interface {
	JobStatus(ctx context.Context, id string) (*client.JobStatus, error)
	QueueStats(ctx context.Context) (*jobs.QueueStats, error)
}

// JobView is the watcher's copy of one job.
type JobView struct {
	ID     string
	Status *client.JobStatus
	Err    error
}

// Done reports whether the job reached a terminal or not_found state.
func (j JobView) Done() bool {
	if j.Status == nil {
		return false
	}
	return j.Status.State.IsTerminal() || j.Status.State == types.JobNotFound
}

// Model represents the watcher state
type Model struct {
	api   API
	order []string
	Jobs  map[string]*JobView

	Stats     *jobs.QueueStats
	StatsErr  error
	Connected bool

	// ExitWhenDone quits once every watched job is finished.
	ExitWhenDone bool
}

// NewModel creates a watcher for the given job ids.
func NewModel(api API, jobIDs []string, exitWhenDone bool) Model {
	m := Model{
		api:          api,
		Jobs:         make(map[string]*JobView, len(jobIDs)),
		ExitWhenDone: exitWhenDone,
	}
	for _, id := range jobIDs {
		if _, ok := m.Jobs[id]; ok {
			continue
		}
		m.order = append(m.order, id)
		m.Jobs[id] = &JobView{ID: id}
	}
	sort.Strings(m.order)
	return m
}

// Init implements tea.Model interface
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.pollAll(), tickCmd())
}

func (m Model) pollAll() tea.Cmd {
	cmds := []tea.Cmd{pollStats(m.api)}
	for _, id := range m.order {
		if !m.Jobs[id].Done() {
			cmds = append(cmds, pollJob(m.api, id))
		}
	}
	return tea.Batch(cmds...)
}

// AllDone reports whether every watched job is finished.
func (m Model) AllDone() bool {
	if len(m.order) == 0 {
		return false
	}
	for _, id := range m.order {
		if !m.Jobs[id].Done() {
			return false
		}
	}
	return true
}
