package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

const tabCount = 3

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			m.refresh()
		case "j", "down":
			if m.selectedRow < m.rowCount()-1 {
				m.selectedRow++
			}
			maxVisible := m.visibleRows()
			if m.selectedRow >= m.scroll+maxVisible {
				m.scroll = m.selectedRow - maxVisible + 1
			}
		case "k", "up":
			if m.selectedRow > 0 {
				m.selectedRow--
			}
			if m.selectedRow < m.scroll {
				m.scroll = m.selectedRow
			}
		case "tab":
			m.activeTab = (m.activeTab + 1) % tabCount
			m.selectedRow = 0
			m.scroll = 0
		case "1":
			m.activeTab = 0
			m.scroll = 0
		case "2":
			m.activeTab = 1
			m.scroll = 0
		case "3":
			m.activeTab = 2
			m.scroll = 0
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		m.refresh()
		return m, tickCmd()

	case ProgressMsg:
		m.stages[msg.IssueID] = stageState{
			Stage:    msg.Stage,
			Progress: msg.Progress,
			Message:  msg.Message,
		}
		return m, listenForProgress(m.events)
	}

	return m, nil
}

// rowCount returns the number of selectable rows on the active tab
func (m Model) rowCount() int {
	switch m.activeTab {
	case 1:
		return len(m.queued)
	case 2:
		return len(m.results)
	}
	return len(m.running)
}

// visibleRows returns how many list rows fit in the current terminal height
func (m Model) visibleRows() int {
	rows := m.height - 8
	if rows < 4 {
		rows = 4
	}
	return rows
}
