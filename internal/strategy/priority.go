package strategy

import (
	"sort"
	"time"

	"github.com/hochfrequenz/claude-flow-orchestrator/internal/domain"
)

// Priority policy defaults
const (
	DefaultPriorityConcurrency = 3
	DefaultBoostThreshold      = 5 * time.Minute
	defaultPriorityCPUCores    = 1
	defaultPriorityMemoryMB    = 512
	defaultPriorityDiskMB      = 1024
)

// PriorityPolicy schedules by priority tier with reserved capacity for
// high-tier issues and anti-starvation aging: the effective priority of a
// pending issue grows without bound once it has waited longer than the
// boost threshold, so every issue is eventually scheduled.
type PriorityPolicy struct {
	maxConcurrent        int
	reservedSlots        int
	boostThreshold       time.Duration
	starvationPrevention bool
}

// NewPriorityPolicy creates a priority policy. maxConcurrent <= 0 selects
// the default ceiling; reservedSlots <= 0 reserves half the ceiling
// (minimum one slot) for critical/high issues.
func NewPriorityPolicy(maxConcurrent, reservedSlots int, boostThreshold time.Duration, starvationPrevention bool) *PriorityPolicy {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultPriorityConcurrency
	}
	if reservedSlots <= 0 {
		reservedSlots = maxConcurrent / 2
		if reservedSlots < 1 {
			reservedSlots = 1
		}
	}
	if reservedSlots > maxConcurrent {
		reservedSlots = maxConcurrent
	}
	if boostThreshold <= 0 {
		boostThreshold = DefaultBoostThreshold
	}
	return &PriorityPolicy{
		maxConcurrent:        maxConcurrent,
		reservedSlots:        reservedSlots,
		boostThreshold:       boostThreshold,
		starvationPrevention: starvationPrevention,
	}
}

// Name returns "priority"
func (p *PriorityPolicy) Name() string { return "priority" }

// EffectivePriority returns the nominal priority plus an aging boost of one
// level per elapsed boost-threshold interval. Issues younger than the
// threshold are never boosted.
func (p *PriorityPolicy) EffectivePriority(issue *domain.Issue, now time.Time) int {
	if !p.starvationPrevention {
		return issue.Priority
	}
	age := issue.Age(now)
	if age <= p.boostThreshold {
		return issue.Priority
	}
	return issue.Priority + int(age/p.boostThreshold)
}

// ExecutionOrder sorts issues by effective priority descending, ties broken
// by creation time ascending (older first)
func (p *PriorityPolicy) ExecutionOrder(issues []*domain.Issue) []*domain.Issue {
	return p.orderByEffective(issues, time.Now())
}

func (p *PriorityPolicy) orderByEffective(issues []*domain.Issue, now time.Time) []*domain.Issue {
	ordered := make([]*domain.Issue, len(issues))
	copy(ordered, issues)
	sort.SliceStable(ordered, func(i, j int) bool {
		ei, ej := p.EffectivePriority(ordered[i], now), p.EffectivePriority(ordered[j], now)
		if ei != ej {
			return ei > ej
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})
	return ordered
}

// SelectNext allocates reserved slots first to issues whose effective
// priority reaches the high tier, then remaining slots to everyone else.
// Judging reservation on effective priority is the starvation override: a
// long-waiting low issue eventually qualifies for reserved capacity too.
func (p *PriorityPolicy) SelectNext(pending []*domain.Issue, capacity int, state SelectionState) []*domain.Issue {
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

	free := p.maxConcurrent - state.Running
	if capacity < free {
		free = capacity
	}
	if free < 1 {
		return nil
	}

	reservedFree := p.reservedSlots - state.RunningHighPriority
	if reservedFree < 0 {
		reservedFree = 0
	}
	if reservedFree > free {
		reservedFree = free
	}
	generalFree := free - reservedFree

	now := state.Now
	if now.IsZero() {
		now = time.Now()
	}
	ordered := p.orderByEffective(ready, now)

	var selected []*domain.Issue
	for _, issue := range ordered {
		if len(selected) >= free {
			break
		}
		if p.EffectivePriority(issue, now) >= domain.PriorityHigh {
			if reservedFree > 0 {
				reservedFree--
				selected = append(selected, issue)
				continue
			}
		}
		if generalFree > 0 {
			generalFree--
			selected = append(selected, issue)
		}
	}
	return selected
}

// Requirements scales the resource request with the issue's nominal tier.
// Sizing is monotonic: a higher tier never requests less than a lower one,
// and only critical issues request fast storage.
func (p *PriorityPolicy) Requirements(issue *domain.Issue) domain.Requirements {
	req := domain.Requirements{
		CPUCores: defaultPriorityCPUCores,
		MemoryMB: defaultPriorityMemoryMB,
		DiskMB:   defaultPriorityDiskMB,
	}
	switch issue.Tier() {
	case domain.TierCritical:
		req.CPUCores = 2
		req.MemoryMB = 1024
		req.DiskMB = 2048
		req.FastStorage = true
	case domain.TierHigh:
		req.CPUCores = 2
		req.MemoryMB = 768
	case domain.TierDeferred:
		req.MemoryMB = 256
		req.DiskMB = 512
	}
	return req
}

// Blocked reports issues with a permanently failed dependency
func (p *PriorityPolicy) Blocked(pending []*domain.Issue, results map[string]*domain.Result) []*domain.Issue {
	return blockedByDependency(pending, results)
}

// MaxConcurrent returns the configured concurrency ceiling
func (p *PriorityPolicy) MaxConcurrent() int { return p.maxConcurrent }

// ReservedSlots returns the number of slots held for critical/high issues
func (p *PriorityPolicy) ReservedSlots() int { return p.reservedSlots }
