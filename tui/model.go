// Package tui renders a live terminal dashboard over a running scheduler:
// in-flight issues with stage progress, the pending queue, and finished
// results.
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/claude-flow-orchestrator/internal/domain"
	"github.com/hochfrequenz/claude-flow-orchestrator/internal/strategy"
)

// stageState is the most recent progress report for one issue
type stageState struct {
	Stage    string
	Progress float64
	Message  string
}

// ProgressMsg carries one progress report into the TUI event loop
type ProgressMsg struct {
	IssueID  string
	Stage    string
	Progress float64
	Message  string
}

// Model is the TUI application model
type Model struct {
	scheduler *strategy.Scheduler
	events    <-chan ProgressMsg

	// Snapshot data, refreshed on every tick
	running []*domain.Issue
	queued  []*domain.Issue
	results []*domain.Result
	metrics strategy.Metrics
	stages  map[string]stageState

	// UI state
	width       int
	height      int
	activeTab   int
	selectedRow int
	scroll      int

	lastRefresh time.Time
}

// NewModel creates a TUI model over a scheduler. Progress reports arrive on
// events; pass the channel side fed by ProgressSink.
func NewModel(scheduler *strategy.Scheduler, events <-chan ProgressMsg) Model {
	m := Model{
		scheduler: scheduler,
		events:    events,
		stages:    make(map[string]stageState),
	}
	m.refresh()
	return m
}

// ProgressSink returns a scheduler progress callback feeding ch. Reports are
// dropped when the TUI falls behind rather than blocking execution.
func ProgressSink(ch chan<- ProgressMsg) strategy.ProgressFunc {
	return func(issueID, stage string, progress float64, message string) {
		select {
		case ch <- ProgressMsg{IssueID: issueID, Stage: stage, Progress: progress, Message: message}:
		default:
		}
	}
}

// refresh pulls a fresh snapshot from the scheduler
func (m *Model) refresh() {
	m.running = m.scheduler.RunningIssues()
	m.queued = m.scheduler.PendingIssues()
	m.metrics = m.scheduler.Metrics()

	results := m.scheduler.Results()
	m.results = m.results[:0]
	for _, r := range results {
		m.results = append(m.results, r)
	}
	sortResults(m.results)

	for id := range m.stages {
		if _, ok := results[id]; ok {
			delete(m.stages, id)
		}
	}
	m.lastRefresh = time.Now()
}

// Init starts the tick and progress listeners
func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), listenForProgress(m.events))
}

// TickMsg triggers a snapshot refresh
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func listenForProgress(ch <-chan ProgressMsg) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}
