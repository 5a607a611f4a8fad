package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hochfrequenz/claude-flow-orchestrator/internal/domain"
)

// Default runtime tuning
const (
	defaultPollInterval = 250 * time.Millisecond
	waitPollInterval    = 50 * time.Millisecond
)

// Metrics holds scheduler counters. Completed counts successful terminals,
// Failed counts unsuccessful ones (including cancellations).
type Metrics struct {
	Total       int
	Completed   int
	Failed      int
	Running     int
	Pending     int
	SuccessRate float64
}

// runningTask tracks one in-flight execution
type runningTask struct {
	issue  *domain.Issue
	cancel context.CancelFunc
}

// Scheduler is the shared engine inside every strategy: it owns the pending
// queue, the running-task table and the completed-result table, and drives
// the select/acquire/launch cycle. Policies only decide ordering, selection
// and resource sizing.
type Scheduler struct {
	policy    Policy
	backend   Backend
	resources ResourceManager
	progress  ProgressFunc

	pollInterval time.Duration

	mu      sync.Mutex
	pending []*domain.Issue
	running map[string]*runningTask
	results map[string]*domain.Result

	wake     chan struct{}
	stop     chan struct{}
	loopDone chan struct{}
	started  bool
	stopOnce sync.Once
}

func newScheduler(policy Policy, opts Options) *Scheduler {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Scheduler{
		policy:       policy,
		backend:      opts.Backend,
		resources:    opts.ResourceManager,
		progress:     opts.Progress,
		pollInterval: interval,
		running:      make(map[string]*runningTask),
		results:      make(map[string]*domain.Result),
		wake:         make(chan struct{}, 1),
		stop:         make(chan struct{}),
		loopDone:     make(chan struct{}),
	}
}

// Policy returns the scheduling policy driving this scheduler
func (s *Scheduler) Policy() Policy {
	return s.policy
}

// AddIssue appends an issue to the pending queue. A failed issue may be
// resubmitted for retry until its MaxRetries cap; its previous result is
// superseded when it re-enters the active set.
func (s *Scheduler) AddIssue(issue *domain.Issue) error {
	s.mu.Lock()
	if _, ok := s.running[issue.ID]; ok {
		s.mu.Unlock()
		return fmt.Errorf("issue %s is already running", issue.ID)
	}
	for _, p := range s.pending {
		if p.ID == issue.ID {
			s.mu.Unlock()
			return fmt.Errorf("issue %s is already queued", issue.ID)
		}
	}
	if issue.Status == domain.StatusFailed {
		if err := issue.Requeue(); err != nil {
			s.mu.Unlock()
			return err
		}
		delete(s.results, issue.ID)
	} else if prev, ok := s.results[issue.ID]; ok {
		s.mu.Unlock()
		return fmt.Errorf("issue %s already finished with status %s", issue.ID, prev.Status)
	}

	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = time.Now()
	}
	if issue.MaxRetries == 0 {
		issue.MaxRetries = domain.DefaultMaxRetries
	}
	issue.Status = domain.StatusPending
	s.pending = append(s.pending, issue)
	s.mu.Unlock()

	s.report(issue.ID, "queued", 0.0, "issue added to queue")
	s.kick()
	return nil
}

// RemoveIssue cancels a pending or running issue. Returns false if the issue
// is neither pending nor running; completed issues are unaffected.
func (s *Scheduler) RemoveIssue(issueID string) bool {
	s.mu.Lock()
	for idx, issue := range s.pending {
		if issue.ID != issueID {
			continue
		}
		s.pending = append(s.pending[:idx], s.pending[idx+1:]...)
		issue.MarkCancelled()
		s.results[issueID] = domain.NewResult(issueID, domain.StatusCancelled, false,
			fmt.Sprintf("issue %s cancelled while pending", issueID))
		s.mu.Unlock()
		s.report(issueID, "cancelled", 1.0, "issue removed from queue")
		s.kick()
		return true
	}
	if task, ok := s.running[issueID]; ok {
		// Signal cancellation; the execution goroutine records the terminal
		// result and releases resources.
		task.cancel()
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()
	return false
}

// Status returns the current status of an issue, checking the completed
// table, then the running table, then the pending queue
func (s *Scheduler) Status(issueID string) (domain.Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.results[issueID]; ok {
		return r.Status, true
	}
	if _, ok := s.running[issueID]; ok {
		return domain.StatusRunning, true
	}
	for _, issue := range s.pending {
		if issue.ID == issueID {
			return issue.Status, true
		}
	}
	return "", false
}

// Results returns a snapshot copy of all completed results
func (s *Scheduler) Results() map[string]*domain.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[string]*domain.Result, len(s.results))
	for id, r := range s.results {
		snapshot[id] = r
	}
	return snapshot
}

// PendingIssues returns a snapshot of the pending queue in queue order
func (s *Scheduler) PendingIssues() []*domain.Issue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.Issue(nil), s.pending...)
}

// RunningIssues returns a snapshot of the issues currently executing
func (s *Scheduler) RunningIssues() []*domain.Issue {
	s.mu.Lock()
	defer s.mu.Unlock()

	issues := make([]*domain.Issue, 0, len(s.running))
	for _, task := range s.running {
		issues = append(issues, task.issue)
	}
	return issues
}

// Metrics returns current counters and the success rate over completed issues
func (s *Scheduler) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := Metrics{
		Running: len(s.running),
		Pending: len(s.pending),
	}
	for _, r := range s.results {
		if r.Success {
			m.Completed++
		} else {
			m.Failed++
		}
	}
	m.Total = len(s.results) + m.Running + m.Pending
	if n := len(s.results); n > 0 {
		m.SuccessRate = float64(m.Completed) / float64(n)
	}
	return m
}

// Start launches the scheduling loop. Safe to call once.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()
	go s.loop(ctx)
}

// Stop terminates the scheduling loop. Running executions keep their own
// contexts and are not cancelled by Stop.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.loopDone
	}
}

// WaitForCompletion blocks until the pending queue and running table are both
// empty, or until timeout elapses (timeout <= 0 means no bound). It returns
// whatever results exist at that point.
func (s *Scheduler) WaitForCompletion(timeout time.Duration) map[string]*domain.Result {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		s.mu.Lock()
		idle := len(s.pending) == 0 && len(s.running) == 0
		s.mu.Unlock()
		if idle {
			break
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			break
		}
		time.Sleep(waitPollInterval)
	}
	return s.Results()
}

// loop is the single decision-maker: it runs scheduling passes whenever woken
// by queue activity, completions, or the idle ticker
func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.loopDone)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		s.schedule(ctx)
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-s.wake:
		case <-ticker.C:
		}
	}
}

// schedule runs one selection pass: surface blocked issues, ask the policy
// for the next batch, acquire resources, and launch executions
func (s *Scheduler) schedule(ctx context.Context) {
	s.failBlocked()

	s.mu.Lock()
	capacity := s.policy.MaxConcurrent() - len(s.running)
	if capacity <= 0 || len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}

	state := SelectionState{
		Running:             len(s.running),
		RunningHighPriority: s.runningHighLocked(),
		Results:             s.results,
		Now:                 time.Now(),
	}
	snapshot := make([]*domain.Issue, len(s.pending))
	copy(snapshot, s.pending)
	selected := s.policy.SelectNext(snapshot, capacity, state)

	var launched []*domain.Issue
	for _, issue := range selected {
		if len(s.running) >= s.policy.MaxConcurrent() {
			break
		}
		if !s.pendingContainsLocked(issue.ID) {
			continue
		}
		if s.resources != nil && !s.resources.Acquire(ctx, issue.ID, s.policy.Requirements(issue)) {
			// No capacity this round; the issue stays pending for the next pass
			continue
		}
		s.removePendingLocked(issue.ID)
		issue.MarkRunning()
		runCtx, cancel := context.WithCancel(ctx)
		s.running[issue.ID] = &runningTask{issue: issue, cancel: cancel}
		launched = append(launched, issue)
		go s.execute(runCtx, issue)
	}
	s.mu.Unlock()

	for _, issue := range launched {
		s.report(issue.ID, "started", 0.0, "execution started")
	}
}

// failBlocked finalizes pending issues whose dependencies terminated without
// success: they can never become ready, so they surface as blocked and are
// recorded as failed rather than silently dropped
func (s *Scheduler) failBlocked() {
	s.mu.Lock()
	blocked := s.policy.Blocked(s.pending, s.results)
	type failure struct {
		issue *domain.Issue
		dep   string
	}
	var failures []failure
	for _, issue := range blocked {
		dep, _ := failedDependency(issue, s.results)
		s.removePendingLocked(issue.ID)
		msg := fmt.Sprintf("issue %s blocked: dependency %s did not complete successfully", issue.ID, dep)
		issue.MarkFailed(msg)
		result := domain.NewResult(issue.ID, domain.StatusFailed, false, msg)
		result.ErrorDetails["dependency"] = dep
		s.results[issue.ID] = result
		failures = append(failures, failure{issue: issue, dep: dep})
	}
	s.mu.Unlock()

	for _, f := range failures {
		s.report(f.issue.ID, "blocked", 1.0,
			fmt.Sprintf("dependency %s failed", f.dep))
	}
}

// execute runs one issue to its terminal state. Resources are released on
// every path; backend faults never reach the scheduling loop.
func (s *Scheduler) execute(ctx context.Context, issue *domain.Issue) {
	defer func() {
		if s.resources != nil {
			s.resources.Release(issue.ID)
		}
	}()

	result, err := s.runBackend(ctx, issue)

	switch {
	case ctx.Err() != nil && (err != nil || result == nil):
		issue.MarkCancelled()
		result = domain.NewResult(issue.ID, domain.StatusCancelled, false,
			fmt.Sprintf("issue %s cancelled", issue.ID))
	case err != nil:
		issue.MarkFailed(err.Error())
		result = domain.NewResult(issue.ID, domain.StatusFailed, false,
			fmt.Sprintf("issue %s failed: %s", issue.ID, err))
		result.ErrorDetails["error"] = err.Error()
	case result == nil:
		issue.MarkFailed("backend returned no result")
		result = domain.NewResult(issue.ID, domain.StatusFailed, false,
			fmt.Sprintf("issue %s failed: backend returned no result", issue.ID))
	default:
		if result.Success {
			issue.MarkCompleted()
		} else {
			issue.MarkFailed(result.Message)
		}
	}
	result.Duration = issue.Duration()

	s.mu.Lock()
	delete(s.running, issue.ID)
	if _, exists := s.results[issue.ID]; !exists {
		s.results[issue.ID] = result
	}
	s.mu.Unlock()

	stage := "completed"
	if !result.Success {
		stage = string(result.Status)
	}
	s.report(issue.ID, stage, 1.0, result.Message)
	s.kick()
}

// runBackend invokes the backend with panic containment
func (s *Scheduler) runBackend(ctx context.Context, issue *domain.Issue) (result *domain.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("execution panic: %v", r)
		}
	}()
	return s.backend.Execute(ctx, issue, s.report)
}

// report delivers a progress event. Sink failures must not affect scheduling.
func (s *Scheduler) report(issueID, stage string, progress float64, message string) {
	if s.progress == nil {
		return
	}
	defer func() { _ = recover() }()
	s.progress(issueID, stage, progress, message)
}

// kick wakes the scheduling loop without blocking
func (s *Scheduler) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) pendingContainsLocked(issueID string) bool {
	for _, issue := range s.pending {
		if issue.ID == issueID {
			return true
		}
	}
	return false
}

func (s *Scheduler) removePendingLocked(issueID string) {
	for idx, issue := range s.pending {
		if issue.ID == issueID {
			s.pending = append(s.pending[:idx], s.pending[idx+1:]...)
			return
		}
	}
}

func (s *Scheduler) runningHighLocked() int {
	count := 0
	for _, task := range s.running {
		if task.issue.Priority >= domain.PriorityHigh {
			count++
		}
	}
	return count
}
