package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/hochfrequenz/claude-flow-orchestrator/internal/domain"
)

var (
	headerStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255")).
		Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	runningStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	queuedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))

	failedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("196"))

	statusBarStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255"))

	tabActiveStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		Underline(true)

	tabInactiveStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))

	criticalStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("196"))

	dimmedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240"))
)

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	header := fmt.Sprintf(" Flow Orchestrator │ %s │ Running: %d │ Queued: %d │ Completed: %d │ Failed: %d ",
		m.scheduler.Policy().Name(), m.metrics.Running, m.metrics.Pending, m.metrics.Completed, m.metrics.Failed)
	b.WriteString(headerStyle.Width(m.width).Render(header))
	b.WriteString("\n")

	b.WriteString(m.renderTabs())
	b.WriteString("\n")

	var section string
	switch m.activeTab {
	case 1:
		section = m.renderQueued()
	case 2:
		section = m.renderResults()
	default:
		section = m.renderRunning()
	}
	b.WriteString(sectionStyle.Width(m.width - 2).Render(section))
	b.WriteString("\n")

	bar := fmt.Sprintf(" q quit │ tab switch │ j/k move │ r refresh │ updated %s ",
		humanize.Time(m.lastRefresh))
	b.WriteString(statusBarStyle.Width(m.width).Render(bar))

	return b.String()
}

func (m Model) renderTabs() string {
	names := []string{"Running", "Queue", "Results"}
	parts := make([]string, len(names))
	for i, name := range names {
		label := fmt.Sprintf(" [%d] %s ", i+1, name)
		if i == m.activeTab {
			parts[i] = tabActiveStyle.Render(label)
		} else {
			parts[i] = tabInactiveStyle.Render(label)
		}
	}
	return strings.Join(parts, "")
}

func (m Model) renderRunning() string {
	if len(m.running) == 0 {
		return dimmedStyle.Render("No issues running")
	}

	var b strings.Builder
	now := time.Now()
	for _, issue := range m.running {
		started := now
		if issue.StartedAt != nil {
			started = *issue.StartedAt
		}
		line := fmt.Sprintf("● %s  %s  %s",
			issue.ID, truncate(issue.Title, 40), humanize.Time(started))
		b.WriteString(runningStyle.Render(line))
		b.WriteString("\n")

		if st, ok := m.stages[issue.ID]; ok {
			b.WriteString(fmt.Sprintf("  %s %s %s\n",
				renderBar(st.Progress, 20), st.Stage, dimmedStyle.Render(truncate(st.Message, 40))))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderQueued() string {
	if len(m.queued) == 0 {
		return dimmedStyle.Render("Queue is empty")
	}

	var b strings.Builder
	for i, issue := range m.queued {
		if i < m.scroll || i >= m.scroll+m.visibleRows() {
			continue
		}
		cursor := "  "
		if i == m.selectedRow {
			cursor = "> "
		}
		line := fmt.Sprintf("%s%s  p%-2d %-8s  %s  waiting %s",
			cursor, issue.ID, issue.Priority, issue.Tier(),
			truncate(issue.Title, 36), humanize.Time(issue.CreatedAt))
		if issue.Tier() == domain.TierCritical {
			b.WriteString(criticalStyle.Render(line))
		} else {
			b.WriteString(queuedStyle.Render(line))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderResults() string {
	if len(m.results) == 0 {
		return dimmedStyle.Render("No results yet")
	}

	var b strings.Builder
	for i, r := range m.results {
		if i < m.scroll || i >= m.scroll+m.visibleRows() {
			continue
		}
		mark := "✓"
		style := runningStyle
		if !r.Success {
			mark = "✗"
			style = failedStyle
		}
		line := fmt.Sprintf("%s %s  %-9s  %s  %s",
			mark, r.IssueID, r.Status, r.Duration.Round(time.Second), truncate(r.Message, 40))
		if r.PRURL != "" {
			line += "  " + dimmedStyle.Render(r.PRURL)
		}
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	filled := int(progress * float64(width))
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

func sortResults(results []*domain.Result) {
	sort.Slice(results, func(i, j int) bool {
		return results[i].IssueID < results[j].IssueID
	})
}
