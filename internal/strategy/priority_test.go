package strategy

import (
	"testing"
	"time"

	"github.com/hochfrequenz/claude-flow-orchestrator/internal/domain"
)

func TestPriorityPolicy_Defaults(t *testing.T) {
	policy := NewPriorityPolicy(0, 0, 0, true)
	if got := policy.MaxConcurrent(); got != DefaultPriorityConcurrency {
		t.Errorf("MaxConcurrent() = %d, want %d", got, DefaultPriorityConcurrency)
	}
	if got := policy.ReservedSlots(); got != 1 {
		t.Errorf("ReservedSlots() = %d, want 1 (half of 3, floored)", got)
	}

	policy = NewPriorityPolicy(4, 0, 0, true)
	if got := policy.ReservedSlots(); got != 2 {
		t.Errorf("ReservedSlots() = %d, want 2 (half of 4)", got)
	}

	// Reserved slots never exceed the ceiling
	policy = NewPriorityPolicy(2, 5, 0, true)
	if got := policy.ReservedSlots(); got != 2 {
		t.Errorf("ReservedSlots() = %d, want clamped to 2", got)
	}
}

func TestPriorityPolicy_EffectivePriority_Boost(t *testing.T) {
	policy := NewPriorityPolicy(3, 1, 5*time.Minute, true)
	now := time.Now()

	fresh := issueWithPriority("fresh", 2, now.Add(-time.Minute))
	if got := policy.EffectivePriority(fresh, now); got != 2 {
		t.Errorf("EffectivePriority(fresh) = %d, want nominal 2", got)
	}

	// Exactly at the threshold there is no boost yet
	edge := issueWithPriority("edge", 2, now.Add(-5*time.Minute))
	if got := policy.EffectivePriority(edge, now); got != 2 {
		t.Errorf("EffectivePriority(edge) = %d, want 2 at threshold", got)
	}

	// Past the threshold the boost strictly exceeds the nominal value
	// and keeps growing, one level per interval
	aged := issueWithPriority("aged", 2, now.Add(-6*time.Minute))
	if got := policy.EffectivePriority(aged, now); got != 3 {
		t.Errorf("EffectivePriority(aged) = %d, want 3", got)
	}
	ancient := issueWithPriority("ancient", 2, now.Add(-31*time.Minute))
	if got := policy.EffectivePriority(ancient, now); got != 8 {
		t.Errorf("EffectivePriority(ancient) = %d, want 8 after 6 intervals", got)
	}
}

func TestPriorityPolicy_EffectivePriority_Disabled(t *testing.T) {
	policy := NewPriorityPolicy(3, 1, 5*time.Minute, false)
	now := time.Now()
	aged := issueWithPriority("aged", 2, now.Add(-time.Hour))
	if got := policy.EffectivePriority(aged, now); got != 2 {
		t.Errorf("EffectivePriority = %d with aging disabled, want 2", got)
	}
}

func TestPriorityPolicy_ExecutionOrder_AgedOvertakes(t *testing.T) {
	policy := NewPriorityPolicy(3, 1, 5*time.Minute, true)
	now := time.Now()
	// Low issue has waited 36 minutes: effective 2+7=9, above the fresh high issue
	low := issueWithPriority("low", 2, now.Add(-36*time.Minute))
	high := issueWithPriority("high", 8, now.Add(-time.Minute))

	ordered := policy.orderByEffective([]*domain.Issue{high, low}, now)
	if ordered[0].ID != "low" {
		t.Errorf("ordered[0] = %s, want aged low issue first", ordered[0].ID)
	}
}

func TestPriorityPolicy_SelectNext_ReservedSlots(t *testing.T) {
	policy := NewPriorityPolicy(4, 2, 5*time.Minute, true)
	now := time.Now()
	var pending []*domain.Issue
	for i := 0; i < 4; i++ {
		pending = append(pending, issueWithPriority(string(rune('a'+i)), 2, now))
	}

	// Four free slots, two reserved: fresh low issues only get the general two
	state := SelectionState{Results: map[string]*domain.Result{}, Now: now}
	selected := policy.SelectNext(pending, 10, state)
	if len(selected) != 2 {
		t.Fatalf("selected = %d low issues, want 2 (reserved slots withheld)", len(selected))
	}

	// High issues fill the reserved slots as well
	pending = append(pending,
		issueWithPriority("h1", 8, now),
		issueWithPriority("h2", 10, now),
	)
	selected = policy.SelectNext(pending, 10, state)
	if len(selected) != 4 {
		t.Fatalf("selected = %d, want 4 with high issues present", len(selected))
	}
	highFirst := map[string]bool{"h1": true, "h2": true}
	if !highFirst[selected[0].ID] || !highFirst[selected[1].ID] {
		t.Errorf("selected = [%s %s ...], want high issues first", selected[0].ID, selected[1].ID)
	}
}

func TestPriorityPolicy_SelectNext_StarvationOverride(t *testing.T) {
	policy := NewPriorityPolicy(2, 2, 5*time.Minute, true)
	now := time.Now()
	// Every slot is reserved: a fresh low issue cannot be selected, but an
	// aged one whose effective priority reaches the high tier can
	fresh := issueWithPriority("fresh", 2, now)
	state := SelectionState{Results: map[string]*domain.Result{}, Now: now}

	if selected := policy.SelectNext([]*domain.Issue{fresh}, 10, state); len(selected) != 0 {
		t.Fatalf("selected = %v, want none for fresh low issue", selected)
	}

	aged := issueWithPriority("aged", 2, now.Add(-31*time.Minute))
	selected := policy.SelectNext([]*domain.Issue{aged}, 10, state)
	if len(selected) != 1 || selected[0].ID != "aged" {
		t.Errorf("selected = %v, want aged issue via starvation override", selected)
	}
}

func TestPriorityPolicy_SelectNext_ReservedOccupied(t *testing.T) {
	policy := NewPriorityPolicy(3, 1, 5*time.Minute, true)
	now := time.Now()
	high := issueWithPriority("high", 8, now)
	state := SelectionState{
		Running:             1,
		RunningHighPriority: 1,
		Results:             map[string]*domain.Result{},
		Now:                 now,
	}

	// The reserved slot is occupied, so the high issue falls back to a general slot
	selected := policy.SelectNext([]*domain.Issue{high}, 10, state)
	if len(selected) != 1 || selected[0].ID != "high" {
		t.Errorf("selected = %v, want high issue in a general slot", selected)
	}
}

func TestPriorityPolicy_Requirements_TierSizing(t *testing.T) {
	policy := NewPriorityPolicy(3, 1, 5*time.Minute, true)

	critical := issueWithPriority("c", 10, time.Now())
	req := policy.Requirements(critical)
	if !req.FastStorage {
		t.Error("critical issues should request fast storage")
	}
	if req.CPUCores != 2 || req.MemoryMB != 1024 || req.DiskMB != 2048 {
		t.Errorf("critical requirements = %+v", req)
	}

	// Only critical gets fast storage
	for _, prio := range []int{8, 5, 2, 0} {
		issue := issueWithPriority("x", prio, time.Now())
		if policy.Requirements(issue).FastStorage {
			t.Errorf("priority %d requested fast storage", prio)
		}
	}

	// Sizing is monotonic across tiers
	tiers := []int{10, 8, 5, 2, 0}
	for i := 0; i < len(tiers)-1; i++ {
		higher := policy.Requirements(issueWithPriority("h", tiers[i], time.Now()))
		lower := policy.Requirements(issueWithPriority("l", tiers[i+1], time.Now()))
		if !higher.AtLeast(lower) {
			t.Errorf("tier %d requirements %+v below tier %d requirements %+v",
				tiers[i], higher, tiers[i+1], lower)
		}
	}
}
