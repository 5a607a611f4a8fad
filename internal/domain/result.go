package domain

import "time"

// Result records the terminal outcome of one issue.
// Exactly one Result exists per issue once it leaves the active set.
type Result struct {
	IssueID      string
	Status       Status
	Success      bool
	Message      string
	Duration     time.Duration
	PRURL        string
	ErrorDetails map[string]string
}

// NewResult creates a result with an initialized details map
func NewResult(issueID string, status Status, success bool, message string) *Result {
	return &Result{
		IssueID:      issueID,
		Status:       status,
		Success:      success,
		Message:      message,
		ErrorDetails: make(map[string]string),
	}
}
