package domain

import (
	"fmt"
	"time"
)

// DefaultMaxRetries is applied when an issue doesn't specify its own cap
const DefaultMaxRetries = 3

// Issue represents a unit of schedulable work: one backlog item that must be
// run through the external workflow exactly once
type Issue struct {
	ID           string
	Title        string
	Body         string
	Priority     int
	Dependencies []string

	// Filled in by execution, not by the scheduler
	WorkspacePath string
	BranchName    string

	Status       Status
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ErrorMessage string
	RetryCount   int
	MaxRetries   int
}

// NewIssue creates a pending issue with defaults applied
func NewIssue(id, title, body string) *Issue {
	return &Issue{
		ID:         id,
		Title:      title,
		Body:       body,
		Status:     StatusPending,
		CreatedAt:  time.Now(),
		MaxRetries: DefaultMaxRetries,
	}
}

// Tier returns the named priority band for this issue
func (i *Issue) Tier() Tier {
	return TierFor(i.Priority)
}

// Age returns how long the issue has been waiting since creation
func (i *Issue) Age(now time.Time) time.Duration {
	return now.Sub(i.CreatedAt)
}

// MarkRunning transitions the issue to running and stamps the start time
func (i *Issue) MarkRunning() {
	now := time.Now()
	i.Status = StatusRunning
	i.StartedAt = &now
}

// MarkCompleted transitions the issue to its terminal completed state
func (i *Issue) MarkCompleted() {
	now := time.Now()
	i.Status = StatusCompleted
	i.CompletedAt = &now
}

// MarkFailed transitions the issue to failed with an error message
func (i *Issue) MarkFailed(msg string) {
	now := time.Now()
	i.Status = StatusFailed
	i.CompletedAt = &now
	i.ErrorMessage = msg
}

// MarkCancelled transitions the issue to cancelled
func (i *Issue) MarkCancelled() {
	now := time.Now()
	i.Status = StatusCancelled
	i.CompletedAt = &now
}

// Requeue returns a failed issue to pending for another attempt.
// The retry count is incremented and capped at MaxRetries.
func (i *Issue) Requeue() error {
	if i.Status != StatusFailed {
		return fmt.Errorf("cannot requeue issue %s in status %s", i.ID, i.Status)
	}
	max := i.MaxRetries
	if max == 0 {
		max = DefaultMaxRetries
	}
	if i.RetryCount >= max {
		return fmt.Errorf("issue %s exhausted retries (%d/%d)", i.ID, i.RetryCount, max)
	}
	i.RetryCount++
	i.Status = StatusPending
	i.StartedAt = nil
	i.CompletedAt = nil
	i.ErrorMessage = ""
	return nil
}

// Duration returns how long execution took, or 0 if not finished
func (i *Issue) Duration() time.Duration {
	if i.StartedAt == nil || i.CompletedAt == nil {
		return 0
	}
	return i.CompletedAt.Sub(*i.StartedAt)
}
