package domain

import (
	"testing"
	"time"
)

func TestTierFor(t *testing.T) {
	cases := []struct {
		priority int
		want     Tier
	}{
		{10, TierCritical},
		{8, TierHigh},
		{5, TierMedium},
		{2, TierLow},
		{0, TierDeferred},
		{-3, TierDeferred},
		{15, TierCritical},
		{9, TierHigh},
		{3, TierLow},
	}

	for _, c := range cases {
		if got := TierFor(c.priority); got != c.want {
			t.Errorf("TierFor(%d) = %s, want %s", c.priority, got, c.want)
		}
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	if StatusPending.IsTerminal() || StatusRunning.IsTerminal() {
		t.Error("pending/running should not be terminal")
	}
	if !StatusCompleted.IsTerminal() || !StatusFailed.IsTerminal() || !StatusCancelled.IsTerminal() {
		t.Error("completed/failed/cancelled should be terminal")
	}
}

func TestIssue_Transitions(t *testing.T) {
	issue := NewIssue("42", "Fix login", "body")

	if issue.Status != StatusPending {
		t.Errorf("initial status = %s, want pending", issue.Status)
	}

	issue.MarkRunning()
	if issue.Status != StatusRunning || issue.StartedAt == nil {
		t.Error("MarkRunning should set status and StartedAt")
	}

	issue.MarkCompleted()
	if issue.Status != StatusCompleted || issue.CompletedAt == nil {
		t.Error("MarkCompleted should set status and CompletedAt")
	}

	if issue.CompletedAt.Before(*issue.StartedAt) {
		t.Error("CompletedAt should not precede StartedAt")
	}
}

func TestIssue_Requeue(t *testing.T) {
	issue := NewIssue("7", "Flaky", "")
	issue.MarkRunning()
	issue.MarkFailed("boom")

	if err := issue.Requeue(); err != nil {
		t.Fatalf("Requeue() error = %v", err)
	}
	if issue.Status != StatusPending {
		t.Errorf("status after requeue = %s, want pending", issue.Status)
	}
	if issue.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", issue.RetryCount)
	}
	if issue.StartedAt != nil || issue.CompletedAt != nil {
		t.Error("requeue should clear timestamps")
	}
}

func TestIssue_Requeue_NotFailed(t *testing.T) {
	issue := NewIssue("8", "Fresh", "")
	if err := issue.Requeue(); err == nil {
		t.Error("Requeue() on pending issue should error")
	}
}

func TestIssue_Requeue_Exhausted(t *testing.T) {
	issue := NewIssue("9", "Hopeless", "")
	issue.MaxRetries = 2

	for i := 0; i < 2; i++ {
		issue.MarkRunning()
		issue.MarkFailed("boom")
		if err := issue.Requeue(); err != nil {
			t.Fatalf("Requeue() attempt %d error = %v", i+1, err)
		}
	}

	issue.MarkRunning()
	issue.MarkFailed("boom")
	if err := issue.Requeue(); err == nil {
		t.Error("Requeue() beyond MaxRetries should error")
	}
}

func TestIssue_Duration(t *testing.T) {
	issue := NewIssue("1", "Timed", "")
	if issue.Duration() != 0 {
		t.Error("Duration() before start should be 0")
	}

	start := time.Now().Add(-3 * time.Second)
	end := time.Now()
	issue.StartedAt = &start
	issue.CompletedAt = &end

	if d := issue.Duration(); d < 2*time.Second || d > 4*time.Second {
		t.Errorf("Duration() = %v, want ~3s", d)
	}
}

func TestRequirements_AtLeast(t *testing.T) {
	big := Requirements{CPUCores: 2, MemoryMB: 1024, DiskMB: 2048}
	small := Requirements{CPUCores: 1, MemoryMB: 512, DiskMB: 1024}

	if !big.AtLeast(small) {
		t.Error("big.AtLeast(small) = false, want true")
	}
	if small.AtLeast(big) {
		t.Error("small.AtLeast(big) = true, want false")
	}
}
