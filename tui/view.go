package tui

import (
	"fmt"
	"strings"

	"docintake/types"
)

// View implements tea.Model interface
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("docintake job watcher"))
	b.WriteString("\n")
	b.WriteString(m.queueLine())
	b.WriteString("\n\n")

	if len(m.order) == 0 {
		b.WriteString(InfoStyle.Render("No jobs to watch"))
		b.WriteString("\n")
	}

	var rows strings.Builder
	for i, id := range m.order {
		if i > 0 {
			rows.WriteString("\n")
		}
		rows.WriteString(jobLine(m.Jobs[id]))
	}
	if rows.Len() > 0 {
		b.WriteString(BoxStyle.Render(rows.String()))
		b.WriteString("\n\n")
	}

	b.WriteString(InfoStyle.Render("Press 'r' to refresh | Press 'q' or Ctrl+C to quit"))
	return b.String()
}

func (m Model) queueLine() string {
	switch {
	case m.StatsErr != nil:
		return ErrorStyle.Render("API unreachable: " + m.StatsErr.Error())
	case m.Stats == nil:
		return InfoStyle.Render("Connecting...")
	case !m.Stats.Reachable:
		return WarnStyle.Render(fmt.Sprintf("Queue unavailable, jobs run inline | local jobs: %d", m.Stats.LocalJobs))
	}
	line := fmt.Sprintf("waiting %d | active %d | completed %d | failed %d | local %d",
		m.Stats.Waiting, m.Stats.Active, m.Stats.Completed, m.Stats.Failed, m.Stats.LocalJobs)
	if m.Stats.Paused {
		return WarnStyle.Render("PAUSED " + line)
	}
	return StatusStyle.Render(line)
}

func jobLine(j *JobView) string {
	if j.Status == nil {
		if j.Err != nil {
			return ErrorStyle.Render(fmt.Sprintf("%s  %s", j.ID, j.Err))
		}
		return InfoStyle.Render(j.ID + "  pending")
	}

	st := j.Status
	line := fmt.Sprintf("%s  %-17s %s", j.ID, st.State, progressBar(st.Progress, 20))
	switch st.State {
	case types.JobCompleted:
		count := 0
		if st.Result != nil {
			count = st.Result.TransactionCount
		}
		return StatusStyle.Render(fmt.Sprintf("%s  %d transactions", line, count))
	case types.JobFailed:
		return ErrorStyle.Render(fmt.Sprintf("%s  %s", line, st.Error))
	case types.JobNotFound:
		return WarnStyle.Render(j.ID + "  not found")
	case types.JobAcceptedNoQueue:
		return WarnStyle.Render(line)
	}
	return line
}

func progressBar(pct, width int) string {
	pct = max(0, min(pct, 100))
	filled := pct * width / 100
	return fmt.Sprintf("[%s%s] %3d%%", strings.Repeat("#", filled), strings.Repeat(".", width-filled), pct)
}
