package strategy

import (
	"sort"

	"github.com/hochfrequenz/claude-flow-orchestrator/internal/domain"
)

// DefaultParallelConcurrency is the parallel policy's concurrency ceiling
// when none is configured
const DefaultParallelConcurrency = 5

// ParallelPolicy processes many issues concurrently, ordered by priority
// then age, with dependency gating: an issue is ready only once every
// dependency has a successful result.
type ParallelPolicy struct {
	maxConcurrent int
}

// NewParallelPolicy creates a parallel policy with the given concurrency
// ceiling (DefaultParallelConcurrency if maxConcurrent <= 0)
func NewParallelPolicy(maxConcurrent int) *ParallelPolicy {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultParallelConcurrency
	}
	return &ParallelPolicy{maxConcurrent: maxConcurrent}
}

// Name returns "parallel"
func (p *ParallelPolicy) Name() string { return "parallel" }

// ExecutionOrder sorts issues by priority descending, ties broken by
// creation time ascending
func (p *ParallelPolicy) ExecutionOrder(issues []*domain.Issue) []*domain.Issue {
	ordered := make([]*domain.Issue, len(issues))
	copy(ordered, issues)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})
	return ordered
}

// SelectNext filters to issues whose dependencies are all satisfied, orders
// them, and takes greedily up to the free slots under the ceiling. Selection
// never reorders issues already in flight.
func (p *ParallelPolicy) SelectNext(pending []*domain.Issue, capacity int, state SelectionState) []*domain.Issue {
	if len(pending) == 0 || capacity < 1 {
		return nil
	}

	var ready []*domain.Issue
	for _, issue := range pending {
		if dependenciesSatisfied(issue, state.Results) {
			ready = append(ready, issue)
		}
	}
	if len(ready) == 0 {
		return nil
	}

	ordered := p.ExecutionOrder(ready)
	limit := p.maxConcurrent - state.Running
	if capacity < limit {
		limit = capacity
	}
	if limit < 1 {
		return nil
	}
	if len(ordered) > limit {
		ordered = ordered[:limit]
	}
	return ordered
}

// Requirements returns the flat per-issue resource request
func (p *ParallelPolicy) Requirements(issue *domain.Issue) domain.Requirements {
	return domain.Requirements{CPUCores: 1, MemoryMB: 512, DiskMB: 1024}
}

// Blocked reports issues with a permanently failed dependency
func (p *ParallelPolicy) Blocked(pending []*domain.Issue, results map[string]*domain.Result) []*domain.Issue {
	return blockedByDependency(pending, results)
}

// MaxConcurrent returns the configured concurrency ceiling
func (p *ParallelPolicy) MaxConcurrent() int { return p.maxConcurrent }
