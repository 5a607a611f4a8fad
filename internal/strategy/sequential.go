package strategy

import (
	"sort"

	"github.com/hochfrequenz/claude-flow-orchestrator/internal/domain"
)

// SequentialPolicy processes one issue at a time in creation order (FIFO).
// A failing issue terminates on its own; the next item simply becomes the
// new head of the queue.
type SequentialPolicy struct{}

// NewSequentialPolicy creates a sequential policy
func NewSequentialPolicy() *SequentialPolicy {
	return &SequentialPolicy{}
}

// Name returns "sequential"
func (p *SequentialPolicy) Name() string { return "sequential" }

// ExecutionOrder sorts issues by creation time, oldest first. Ties keep
// their original insertion order.
func (p *SequentialPolicy) ExecutionOrder(issues []*domain.Issue) []*domain.Issue {
	ordered := make([]*domain.Issue, len(issues))
	copy(ordered, issues)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})
	return ordered
}

// SelectNext returns at most the head of the ordered queue, and only when
// nothing is running. This guarantees true mutual exclusion regardless of
// the capacity offered.
func (p *SequentialPolicy) SelectNext(pending []*domain.Issue, capacity int, state SelectionState) []*domain.Issue {
	if len(pending) == 0 || capacity < 1 || state.Running > 0 {
		return nil
	}
	ordered := p.ExecutionOrder(pending)
	return ordered[:1]
}

// Requirements returns the flat per-issue resource request
func (p *SequentialPolicy) Requirements(issue *domain.Issue) domain.Requirements {
	return domain.Requirements{CPUCores: 1, MemoryMB: 512, DiskMB: 1024}
}

// Blocked always returns nil: sequential processing ignores dependencies
func (p *SequentialPolicy) Blocked(pending []*domain.Issue, results map[string]*domain.Result) []*domain.Issue {
	return nil
}

// MaxConcurrent is always 1 for sequential processing
func (p *SequentialPolicy) MaxConcurrent() int { return 1 }
