package batch

import (
	"testing"
	"time"

	"github.com/hochfrequenz/claude-flow-orchestrator/internal/config"
)

func TestParseCron(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"0 22 * * *", false},   // 10 PM daily
		{"0 12 * * 1-5", false}, // noon weekdays
		{"*/5 * * * *", false},  // every 5 minutes
		{"invalid", true},
	}

	for _, tt := range tests {
		_, err := ParseCron(tt.expr)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCron(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
		}
	}
}

func TestNewScheduler_InvalidCron(t *testing.T) {
	cfg := config.BatchConfig{Name: "broken", Cron: "not a cron"}
	if _, err := NewScheduler([]config.BatchConfig{cfg}); err == nil {
		t.Error("NewScheduler should reject invalid cron expressions")
	}
}

func TestScheduler_NextRun(t *testing.T) {
	cfg := config.BatchConfig{
		Name: "test",
		Cron: "0 22 * * *", // 10 PM daily
	}

	sched, err := NewScheduler([]config.BatchConfig{cfg})
	if err != nil {
		t.Fatal(err)
	}

	next := sched.NextRun("test")
	if next.IsZero() {
		t.Error("NextRun should return a time")
	}

	// Should be in the future
	if !next.After(time.Now()) {
		t.Error("NextRun should be in the future")
	}

	if !sched.NextRun("unknown").IsZero() {
		t.Error("NextRun for unknown batch should be zero")
	}
}

func TestScheduler_ShouldRun(t *testing.T) {
	cfg := config.BatchConfig{
		Name: "test",
		Cron: "* * * * *", // Every minute
	}

	sched, err := NewScheduler([]config.BatchConfig{cfg})
	if err != nil {
		t.Fatal(err)
	}

	// Mark as last run two minutes ago
	sched.lastRun["test"] = time.Now().Add(-2 * time.Minute)

	if !sched.ShouldRun("test") {
		t.Error("Should run after cron interval passed")
	}

	// A running batch is never re-dispatched
	sched.MarkRunning("test")
	if sched.ShouldRun("test") {
		t.Error("Should not run while already running")
	}

	sched.MarkComplete("test")
	if sched.ShouldRun("test") {
		t.Error("Should not run immediately after completion")
	}
}

func TestScheduler_ListBatches(t *testing.T) {
	configs := []config.BatchConfig{
		{Name: "nightly", Cron: "0 2 * * *"},
		{Name: "hourly", Cron: "0 * * * *"},
	}
	sched, err := NewScheduler(configs)
	if err != nil {
		t.Fatal(err)
	}

	names := sched.ListBatches()
	if len(names) != 2 {
		t.Errorf("ListBatches() = %v, want 2 names", names)
	}
}
