package tui

import (
	"errors"
	"net/http"

	"docintake/client"
	"docintake/types"

	tea "github.com/charmbracelet/bubbletea"
)

// Update implements tea.Model interface
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r":
			return m, m.pollAll()
		}
	case TickMsg:
		return m, tea.Batch(m.pollAll(), tickCmd())
	case StatsUpdateMsg:
		m.Stats, m.StatsErr = msg.Stats, msg.Err
		m.Connected = msg.Err == nil
	case JobUpdateMsg:
		return m.handleJobUpdate(msg)
	}
	return m, nil
}

func (m Model) handleJobUpdate(msg JobUpdateMsg) (tea.Model, tea.Cmd) {
	view, ok := m.Jobs[msg.JobID]
	if !ok {
		return m, nil
	}
	next := *view
	next.Err = msg.Err
	if msg.Status != nil {
		next.Status = msg.Status
	}
	var apiErr *client.APIError
	if errors.As(msg.Err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		next.Err = nil
		next.Status = &client.JobStatus{
			Job:     types.Job{ID: msg.JobID, State: types.JobNotFound},
			Status:  "error",
			Message: apiErr.Message,
		}
	}
	m.Jobs = cloneJobs(m.Jobs)
	m.Jobs[msg.JobID] = &next

	if m.ExitWhenDone && m.AllDone() {
		return m, tea.Quit
	}
	return m, nil
}

func cloneJobs(in map[string]*JobView) map[string]*JobView {
	out := make(map[string]*JobView, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
