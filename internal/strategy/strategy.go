package strategy

import (
	"context"
	"time"

	"github.com/hochfrequenz/claude-flow-orchestrator/internal/domain"
)

// ProgressFunc receives progress events for an issue.
// stage is a short identifier (queued, started, clone, pr, ...), progress is 0.0-1.0.
type ProgressFunc func(issueID, stage string, progress float64, message string)

// Capacity describes free resources reported by a ResourceManager
type Capacity struct {
	Slots       int
	CPUCores    int
	MemoryMB    int
	FastStorage int
}

// ResourceManager arbitrates finite execution resources.
// The scheduler asks it before starting work and tells it when work finishes.
type ResourceManager interface {
	// Acquire reserves resources for an issue. A false return is a normal
	// no-capacity reply, not an error; the issue stays pending for the next pass.
	Acquire(ctx context.Context, issueID string, req domain.Requirements) bool

	// Release returns an issue's resources. Must not fail; called exactly once
	// per successful Acquire, on every termination path.
	Release(issueID string)

	// AvailableCapacity returns a snapshot of currently free resources
	AvailableCapacity() Capacity
}

// Backend performs the actual workflow for one issue. The scheduler treats it
// as an opaque operation that eventually yields a result, fails, or is
// cancelled through the context.
type Backend interface {
	Execute(ctx context.Context, issue *domain.Issue, report ProgressFunc) (*domain.Result, error)
}

// SelectionState is the scheduler's view of the world handed to a policy
// during a selection pass. Results is the live completed table and must be
// treated as read-only.
type SelectionState struct {
	Running             int
	RunningHighPriority int
	Results             map[string]*domain.Result
	Now                 time.Time
}

// Policy decides which pending issues may start, in what order, and with
// what resource sizing. Implementations: sequential, parallel, priority.
type Policy interface {
	// Name returns the strategy name used by the factory
	Name() string

	// ExecutionOrder sorts issues into the policy's processing order
	ExecutionOrder(issues []*domain.Issue) []*domain.Issue

	// SelectNext picks up to capacity issues that may start now
	SelectNext(pending []*domain.Issue, capacity int, state SelectionState) []*domain.Issue

	// Requirements computes the resource request for an issue
	Requirements(issue *domain.Issue) domain.Requirements

	// Blocked returns pending issues that can never become ready given the
	// recorded results (a dependency failed or was cancelled)
	Blocked(pending []*domain.Issue, results map[string]*domain.Result) []*domain.Issue

	// MaxConcurrent returns the policy's concurrency ceiling
	MaxConcurrent() int
}

// dependenciesSatisfied returns true if every dependency has a successful result
func dependenciesSatisfied(issue *domain.Issue, results map[string]*domain.Result) bool {
	for _, dep := range issue.Dependencies {
		r, ok := results[dep]
		if !ok || !r.Success {
			return false
		}
	}
	return true
}

// failedDependency returns the first dependency with a terminal unsuccessful
// result. Such an issue can never become ready.
func failedDependency(issue *domain.Issue, results map[string]*domain.Result) (string, bool) {
	for _, dep := range issue.Dependencies {
		if r, ok := results[dep]; ok && !r.Success {
			return dep, true
		}
	}
	return "", false
}

// blockedByDependency collects pending issues with a permanently failed dependency
func blockedByDependency(pending []*domain.Issue, results map[string]*domain.Result) []*domain.Issue {
	var blocked []*domain.Issue
	for _, issue := range pending {
		if _, ok := failedDependency(issue, results); ok {
			blocked = append(blocked, issue)
		}
	}
	return blocked
}
