package strategy

import (
	"fmt"
	"strings"
	"time"
)

// Strategy names accepted by New
const (
	NameSequential = "sequential"
	NameParallel   = "parallel"
	NamePriority   = "priority"
)

// Names returns the valid strategy names in a stable order
func Names() []string {
	return []string{NameSequential, NameParallel, NamePriority}
}

// Options configures a scheduler built by New. Zero values select the
// per-strategy defaults.
type Options struct {
	// MaxConcurrent caps in-flight executions (ignored by sequential)
	MaxConcurrent int

	// ReservedSlots holds capacity for critical/high issues (priority only)
	ReservedSlots int

	// BoostThreshold is the pending age beyond which aging kicks in (priority only)
	BoostThreshold time.Duration

	// DisableStarvationPrevention turns off aging boosts (priority only)
	DisableStarvationPrevention bool

	// PollInterval tunes the scheduling loop's idle wait
	PollInterval time.Duration

	Backend         Backend
	ResourceManager ResourceManager
	Progress        ProgressFunc
}

// New builds a scheduler running the named strategy. Unknown names fail
// with an error listing the valid choices.
func New(name string, opts Options) (*Scheduler, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("strategy %q requires an execution backend", name)
	}

	var policy Policy
	switch name {
	case NameSequential:
		policy = NewSequentialPolicy()
	case NameParallel:
		policy = NewParallelPolicy(opts.MaxConcurrent)
	case NamePriority:
		policy = NewPriorityPolicy(opts.MaxConcurrent, opts.ReservedSlots,
			opts.BoostThreshold, !opts.DisableStarvationPrevention)
	default:
		return nil, fmt.Errorf("unknown strategy %q (valid: %s)", name, strings.Join(Names(), ", "))
	}

	return newScheduler(policy, opts), nil
}
