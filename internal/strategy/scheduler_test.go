package strategy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hochfrequenz/claude-flow-orchestrator/internal/domain"
)

// fakeBackend simulates the external workflow with configurable delays and
// per-issue failures, tracking the peak number of concurrent executions
type fakeBackend struct {
	delay time.Duration

	mu      sync.Mutex
	fail    map[string]bool
	panics  map[string]bool
	current int
	peak    int
}

func newFakeBackend(delay time.Duration) *fakeBackend {
	return &fakeBackend{
		delay:  delay,
		fail:   make(map[string]bool),
		panics: make(map[string]bool),
	}
}

func (b *fakeBackend) Execute(ctx context.Context, issue *domain.Issue, report ProgressFunc) (*domain.Result, error) {
	b.mu.Lock()
	b.current++
	if b.current > b.peak {
		b.peak = b.current
	}
	shouldFail := b.fail[issue.ID]
	shouldPanic := b.panics[issue.ID]
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.current--
		b.mu.Unlock()
	}()

	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if shouldPanic {
		panic("backend exploded")
	}
	if shouldFail {
		return nil, errors.New("simulated workflow failure")
	}
	return domain.NewResult(issue.ID, domain.StatusCompleted, true,
		fmt.Sprintf("issue %s completed", issue.ID)), nil
}

func (b *fakeBackend) peakConcurrency() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.peak
}

// fakeResources counts acquires and releases, optionally denying capacity
type fakeResources struct {
	mu       sync.Mutex
	acquired int
	released int
	deny     bool
}

func (r *fakeResources) Acquire(ctx context.Context, issueID string, req domain.Requirements) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deny {
		return false
	}
	r.acquired++
	return true
}

func (r *fakeResources) Release(issueID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released++
}

func (r *fakeResources) AvailableCapacity() Capacity {
	return Capacity{Slots: 1}
}

func (r *fakeResources) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.acquired, r.released
}

// progressRecorder collects progress events per issue
type progressRecorder struct {
	mu     sync.Mutex
	stages map[string][]string
}

func newProgressRecorder() *progressRecorder {
	return &progressRecorder{stages: make(map[string][]string)}
}

func (p *progressRecorder) record(issueID, stage string, progress float64, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stages[issueID] = append(p.stages[issueID], stage)
}

func (p *progressRecorder) sawStage(issueID, stage string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.stages[issueID] {
		if s == stage {
			return true
		}
	}
	return false
}

func newTestScheduler(t *testing.T, name string, opts Options) *Scheduler {
	t.Helper()
	if opts.PollInterval == 0 {
		opts.PollInterval = 10 * time.Millisecond
	}
	sched, err := New(name, opts)
	if err != nil {
		t.Fatalf("New(%s) error = %v", name, err)
	}
	return sched
}

func issueWithPriority(id string, priority int, created time.Time) *domain.Issue {
	issue := domain.NewIssue(id, "issue "+id, "")
	issue.Priority = priority
	issue.CreatedAt = created
	return issue
}

func TestScheduler_AddIssue_Queued(t *testing.T) {
	backend := newFakeBackend(0)
	progress := newProgressRecorder()
	sched := newTestScheduler(t, NameParallel, Options{Backend: backend, Progress: progress.record})

	issue := domain.NewIssue("1", "First", "")
	if err := sched.AddIssue(issue); err != nil {
		t.Fatalf("AddIssue() error = %v", err)
	}

	status, ok := sched.Status("1")
	if !ok || status != domain.StatusPending {
		t.Errorf("Status(1) = %s/%v, want pending/true", status, ok)
	}
	if !progress.sawStage("1", "queued") {
		t.Error("expected queued progress event")
	}

	m := sched.Metrics()
	if m.Pending != 1 || m.Total != 1 {
		t.Errorf("Metrics = %+v, want Pending=1 Total=1", m)
	}
}

func TestScheduler_AddIssue_Duplicate(t *testing.T) {
	backend := newFakeBackend(0)
	sched := newTestScheduler(t, NameParallel, Options{Backend: backend})

	if err := sched.AddIssue(domain.NewIssue("1", "a", "")); err != nil {
		t.Fatalf("AddIssue() error = %v", err)
	}
	if err := sched.AddIssue(domain.NewIssue("1", "b", "")); err == nil {
		t.Error("duplicate AddIssue should error")
	}
}

func TestScheduler_EndToEnd(t *testing.T) {
	backend := newFakeBackend(20 * time.Millisecond)
	sched := newTestScheduler(t, NameParallel, Options{Backend: backend, MaxConcurrent: 2})

	now := time.Now()
	for i, prio := range []int{2, 8, 5} {
		issue := issueWithPriority(fmt.Sprintf("%d", i+1), prio, now.Add(time.Duration(i)*time.Millisecond))
		if err := sched.AddIssue(issue); err != nil {
			t.Fatalf("AddIssue() error = %v", err)
		}
	}

	sched.Start(context.Background())
	defer sched.Stop()

	results := sched.WaitForCompletion(5 * time.Second)
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	for id, r := range results {
		if !r.Success || r.Status != domain.StatusCompleted {
			t.Errorf("result %s = %+v, want success", id, r)
		}
	}
	if peak := backend.peakConcurrency(); peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}

	m := sched.Metrics()
	if m.Completed != 3 || m.SuccessRate != 1.0 {
		t.Errorf("Metrics = %+v, want Completed=3 SuccessRate=1", m)
	}
}

func TestScheduler_FirstRound_PrefersHighPriority(t *testing.T) {
	// With max_concurrent=2 and priorities 2, 8, 5, the first selection round
	// must pick the 8 and 5 issues and defer the 2.
	policy := NewParallelPolicy(2)
	now := time.Now()
	pending := []*domain.Issue{
		issueWithPriority("low", 2, now),
		issueWithPriority("high", 8, now.Add(time.Millisecond)),
		issueWithPriority("mid", 5, now.Add(2*time.Millisecond)),
	}

	selected := policy.SelectNext(pending, 2, SelectionState{Results: map[string]*domain.Result{}})
	if len(selected) != 2 {
		t.Fatalf("selected = %d, want 2", len(selected))
	}
	if selected[0].ID != "high" || selected[1].ID != "mid" {
		t.Errorf("selected = [%s %s], want [high mid]", selected[0].ID, selected[1].ID)
	}
}

func TestScheduler_RemoveIssue_Pending(t *testing.T) {
	backend := newFakeBackend(0)
	sched := newTestScheduler(t, NameParallel, Options{Backend: backend})

	issue := domain.NewIssue("1", "a", "")
	sched.AddIssue(issue)

	if !sched.RemoveIssue("1") {
		t.Fatal("RemoveIssue(1) = false, want true")
	}
	status, ok := sched.Status("1")
	if !ok || status != domain.StatusCancelled {
		t.Errorf("Status(1) = %s/%v, want cancelled/true", status, ok)
	}
	r := sched.Results()["1"]
	if r == nil || r.Status != domain.StatusCancelled || r.Success {
		t.Errorf("result = %+v, want cancelled", r)
	}
}

func TestScheduler_RemoveIssue_NotFound(t *testing.T) {
	backend := newFakeBackend(0)
	sched := newTestScheduler(t, NameSequential, Options{Backend: backend})

	if sched.RemoveIssue("ghost") {
		t.Error("RemoveIssue(ghost) = true, want false")
	}
	if m := sched.Metrics(); m.Total != 0 {
		t.Errorf("Metrics.Total = %d, want 0 (no side effects)", m.Total)
	}
}

func TestScheduler_RemoveIssue_Running(t *testing.T) {
	backend := newFakeBackend(time.Second)
	resources := &fakeResources{}
	sched := newTestScheduler(t, NameParallel, Options{Backend: backend, ResourceManager: resources})

	sched.AddIssue(domain.NewIssue("1", "slow", ""))
	sched.Start(context.Background())
	defer sched.Stop()

	// Wait until the issue is running
	deadline := time.Now().Add(2 * time.Second)
	for {
		if status, _ := sched.Status("1"); status == domain.StatusRunning {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("issue never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if !sched.RemoveIssue("1") {
		t.Fatal("RemoveIssue(1) = false, want true")
	}

	results := sched.WaitForCompletion(2 * time.Second)
	r := results["1"]
	if r == nil || r.Status != domain.StatusCancelled {
		t.Fatalf("result = %+v, want cancelled", r)
	}

	acquired, released := resources.counts()
	if acquired != 1 || released != 1 {
		t.Errorf("resource counts = %d/%d, want 1/1", acquired, released)
	}
}

func TestScheduler_Results_Snapshot(t *testing.T) {
	backend := newFakeBackend(0)
	sched := newTestScheduler(t, NameParallel, Options{Backend: backend})

	sched.AddIssue(domain.NewIssue("1", "a", ""))
	sched.Start(context.Background())
	defer sched.Stop()
	sched.WaitForCompletion(2 * time.Second)

	first := sched.Results()
	second := sched.Results()
	if len(first) != len(second) {
		t.Fatalf("snapshots differ in size: %d vs %d", len(first), len(second))
	}
	for id, r := range first {
		if second[id] != r {
			t.Errorf("snapshot entry %s differs", id)
		}
	}

	// Mutating a snapshot must not affect the scheduler's table
	delete(first, "1")
	if sched.Results()["1"] == nil {
		t.Error("mutating a snapshot leaked into the live table")
	}
}

func TestScheduler_Metrics_NoCompletions(t *testing.T) {
	backend := newFakeBackend(0)
	sched := newTestScheduler(t, NameParallel, Options{Backend: backend})

	if rate := sched.Metrics().SuccessRate; rate != 0 {
		t.Errorf("SuccessRate = %f, want 0 with no completions", rate)
	}
}

func TestScheduler_ExecutionFailure(t *testing.T) {
	backend := newFakeBackend(0)
	backend.fail["1"] = true
	sched := newTestScheduler(t, NameParallel, Options{Backend: backend})

	sched.AddIssue(domain.NewIssue("1", "doomed", ""))
	sched.Start(context.Background())
	defer sched.Stop()

	results := sched.WaitForCompletion(2 * time.Second)
	r := results["1"]
	if r == nil || r.Success || r.Status != domain.StatusFailed {
		t.Fatalf("result = %+v, want failed", r)
	}
	if r.ErrorDetails["error"] == "" {
		t.Error("failed result should carry error details")
	}

	m := sched.Metrics()
	if m.Failed != 1 || m.SuccessRate != 0 {
		t.Errorf("Metrics = %+v, want Failed=1 SuccessRate=0", m)
	}
}

func TestScheduler_PanicContained(t *testing.T) {
	backend := newFakeBackend(0)
	backend.panics["1"] = true
	sched := newTestScheduler(t, NameParallel, Options{Backend: backend})

	sched.AddIssue(domain.NewIssue("1", "explosive", ""))
	sched.AddIssue(domain.NewIssue("2", "fine", ""))
	sched.Start(context.Background())
	defer sched.Stop()

	results := sched.WaitForCompletion(2 * time.Second)
	if r := results["1"]; r == nil || r.Success {
		t.Errorf("result 1 = %+v, want failed from panic", r)
	}
	if r := results["2"]; r == nil || !r.Success {
		t.Errorf("result 2 = %+v, want success despite sibling panic", r)
	}
}

func TestScheduler_ResourceDenial_Defers(t *testing.T) {
	backend := newFakeBackend(0)
	resources := &fakeResources{deny: true}
	sched := newTestScheduler(t, NameParallel, Options{Backend: backend, ResourceManager: resources})

	sched.AddIssue(domain.NewIssue("1", "starved", ""))
	sched.Start(context.Background())
	defer sched.Stop()

	// Capacity exhaustion is not an error: the issue stays pending
	sched.WaitForCompletion(100 * time.Millisecond)
	status, ok := sched.Status("1")
	if !ok || status != domain.StatusPending {
		t.Fatalf("Status(1) = %s/%v, want pending/true", status, ok)
	}

	// Once capacity frees up the issue runs
	resources.mu.Lock()
	resources.deny = false
	resources.mu.Unlock()

	results := sched.WaitForCompletion(2 * time.Second)
	if r := results["1"]; r == nil || !r.Success {
		t.Errorf("result = %+v, want success after capacity freed", r)
	}
}

func TestScheduler_ResourceRelease_OnFailure(t *testing.T) {
	backend := newFakeBackend(0)
	backend.fail["1"] = true
	resources := &fakeResources{}
	sched := newTestScheduler(t, NameParallel, Options{Backend: backend, ResourceManager: resources})

	sched.AddIssue(domain.NewIssue("1", "doomed", ""))
	sched.Start(context.Background())
	defer sched.Stop()
	sched.WaitForCompletion(2 * time.Second)

	acquired, released := resources.counts()
	if acquired != released {
		t.Errorf("acquired %d but released %d, want equal", acquired, released)
	}
}

func TestScheduler_BlockedDependency_SurfacesAsFailed(t *testing.T) {
	backend := newFakeBackend(0)
	backend.fail["dep1"] = true
	progress := newProgressRecorder()
	sched := newTestScheduler(t, NameParallel, Options{Backend: backend, Progress: progress.record})

	dep := domain.NewIssue("dep1", "will fail", "")
	child := domain.NewIssue("child", "depends on dep1", "")
	child.Dependencies = []string{"dep1"}
	sched.AddIssue(dep)
	sched.AddIssue(child)

	sched.Start(context.Background())
	defer sched.Stop()

	results := sched.WaitForCompletion(2 * time.Second)
	r := results["child"]
	if r == nil || r.Success {
		t.Fatalf("child result = %+v, want failed", r)
	}
	if r.ErrorDetails["dependency"] != "dep1" {
		t.Errorf("ErrorDetails[dependency] = %q, want dep1", r.ErrorDetails["dependency"])
	}
	if !progress.sawStage("child", "blocked") {
		t.Error("expected blocked progress event for child")
	}
}

func TestScheduler_Retry_Resubmit(t *testing.T) {
	backend := newFakeBackend(0)
	backend.fail["1"] = true
	sched := newTestScheduler(t, NameParallel, Options{Backend: backend})

	issue := domain.NewIssue("1", "flaky", "")
	sched.AddIssue(issue)
	sched.Start(context.Background())
	defer sched.Stop()
	sched.WaitForCompletion(2 * time.Second)

	if issue.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want failed", issue.Status)
	}

	// Resubmission takes the retry path
	backend.mu.Lock()
	backend.fail["1"] = false
	backend.mu.Unlock()
	if err := sched.AddIssue(issue); err != nil {
		t.Fatalf("resubmit error = %v", err)
	}
	if issue.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", issue.RetryCount)
	}

	results := sched.WaitForCompletion(2 * time.Second)
	if r := results["1"]; r == nil || !r.Success {
		t.Errorf("result after retry = %+v, want success", r)
	}
}

func TestScheduler_WaitForCompletion_Timeout(t *testing.T) {
	backend := newFakeBackend(time.Second)
	sched := newTestScheduler(t, NameParallel, Options{Backend: backend})

	sched.AddIssue(domain.NewIssue("1", "slow", ""))
	sched.Start(context.Background())
	defer sched.Stop()

	start := time.Now()
	results := sched.WaitForCompletion(100 * time.Millisecond)
	if elapsed := time.Since(start); elapsed > 800*time.Millisecond {
		t.Errorf("WaitForCompletion took %v, want ~100ms", elapsed)
	}
	if len(results) != 0 {
		t.Errorf("results = %d, want 0 before completion", len(results))
	}
}

func TestScheduler_ProgressSinkPanic_Ignored(t *testing.T) {
	backend := newFakeBackend(0)
	sink := func(issueID, stage string, progress float64, message string) {
		panic("sink exploded")
	}
	sched := newTestScheduler(t, NameParallel, Options{Backend: backend, Progress: sink})

	sched.AddIssue(domain.NewIssue("1", "a", ""))
	sched.Start(context.Background())
	defer sched.Stop()

	results := sched.WaitForCompletion(2 * time.Second)
	if r := results["1"]; r == nil || !r.Success {
		t.Errorf("result = %+v, want success despite panicking sink", r)
	}
}
