package domain

// Status represents the lifecycle state of an issue
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal returns true if no further transitions can occur from this status
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Tier represents a named priority band
type Tier string

const (
	TierCritical Tier = "critical"
	TierHigh     Tier = "high"
	TierMedium   Tier = "medium"
	TierLow      Tier = "low"
	TierDeferred Tier = "deferred"
)

// Priority thresholds for each tier
const (
	PriorityCritical = 10
	PriorityHigh     = 8
	PriorityMedium   = 5
	PriorityLow      = 2
)

// TierFor maps a numeric priority to its tier name.
// Values of 0 or below, and anything under the low threshold, are deferred.
func TierFor(priority int) Tier {
	switch {
	case priority >= PriorityCritical:
		return TierCritical
	case priority >= PriorityHigh:
		return TierHigh
	case priority >= PriorityMedium:
		return TierMedium
	case priority >= PriorityLow:
		return TierLow
	default:
		return TierDeferred
	}
}

// Requirements describes the resources an issue needs before it may start
type Requirements struct {
	CPUCores    int
	MemoryMB    int
	DiskMB      int
	FastStorage bool
}

// AtLeast returns true if every numeric field is >= the other's
func (r Requirements) AtLeast(other Requirements) bool {
	return r.CPUCores >= other.CPUCores && r.MemoryMB >= other.MemoryMB && r.DiskMB >= other.DiskMB
}
