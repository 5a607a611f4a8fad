// Package observer tracks run health: stuck detection and aggregated
// completion metrics across scheduler runs.
package observer

import (
	"sync"
	"time"

	"github.com/hochfrequenz/claude-flow-orchestrator/internal/domain"
)

// Observer monitors issue execution and collects metrics
type Observer struct {
	stuckThreshold time.Duration

	completions []completion
	mu          sync.RWMutex
}

type completion struct {
	IssueID     string
	Duration    time.Duration
	Success     bool
	CompletedAt time.Time
}

// Metrics holds aggregated metrics
type Metrics struct {
	TotalCompleted int
	TotalFailed    int
	AvgDuration    time.Duration
}

// New creates a new Observer
func New(stuckThreshold time.Duration) *Observer {
	return &Observer{
		stuckThreshold: stuckThreshold,
	}
}

// IsStuck returns true if a running issue has exceeded the stuck threshold
func (o *Observer) IsStuck(issue *domain.Issue, now time.Time) bool {
	if issue.Status != domain.StatusRunning {
		return false
	}
	if issue.StartedAt == nil {
		return false
	}
	return now.Sub(*issue.StartedAt) > o.stuckThreshold
}

// RecordResult records a terminal result
func (o *Observer) RecordResult(result *domain.Result) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.completions = append(o.completions, completion{
		IssueID:     result.IssueID,
		Duration:    result.Duration,
		Success:     result.Success,
		CompletedAt: time.Now(),
	})
}

// GetMetrics returns aggregated metrics
func (o *Observer) GetMetrics() Metrics {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var metrics Metrics
	var totalDuration time.Duration

	for _, c := range o.completions {
		if c.Success {
			metrics.TotalCompleted++
		} else {
			metrics.TotalFailed++
		}
		totalDuration += c.Duration
	}

	if n := len(o.completions); n > 0 {
		metrics.AvgDuration = totalDuration / time.Duration(n)
	}

	return metrics
}

// GetRecentCompletions returns issue IDs finished within the last duration
func (o *Observer) GetRecentCompletions(since time.Duration) []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	cutoff := time.Now().Add(-since)
	var result []string

	for _, c := range o.completions {
		if c.CompletedAt.After(cutoff) {
			result = append(result, c.IssueID)
		}
	}

	return result
}
