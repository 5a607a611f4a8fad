// Package resource provides the default slot and memory accounting used to
// admit issue executions. Acquire never blocks: on exhaustion the caller is
// expected to retry on a later scheduling pass.
package resource

import (
	"context"
	"sync"

	"github.com/hochfrequenz/claude-flow-orchestrator/internal/domain"
	"github.com/hochfrequenz/claude-flow-orchestrator/internal/strategy"
)

// Pool defaults
const (
	DefaultSlots            = 8
	DefaultCPUCores         = 8
	DefaultMemoryMB         = 8192
	DefaultFastStorageSlots = 2
)

// Config sizes the resource pools
type Config struct {
	Slots            int
	CPUCores         int
	MemoryMB         int
	FastStorageSlots int
}

// Manager is a fixed-size resource pool implementing strategy.ResourceManager
type Manager struct {
	config Config

	mu       sync.Mutex
	holdings map[string]domain.Requirements
	usedCPU  int
	usedMem  int
	usedFast int
}

// NewManager creates a resource pool. Zero config fields take defaults.
func NewManager(config Config) *Manager {
	if config.Slots <= 0 {
		config.Slots = DefaultSlots
	}
	if config.CPUCores <= 0 {
		config.CPUCores = DefaultCPUCores
	}
	if config.MemoryMB <= 0 {
		config.MemoryMB = DefaultMemoryMB
	}
	if config.FastStorageSlots <= 0 {
		config.FastStorageSlots = DefaultFastStorageSlots
	}
	return &Manager{
		config:   config,
		holdings: make(map[string]domain.Requirements),
	}
}

// Acquire reserves capacity for an issue. It returns false without waiting
// when any requested pool is exhausted or the issue already holds capacity.
func (m *Manager) Acquire(ctx context.Context, issueID string, req domain.Requirements) bool {
	if ctx.Err() != nil {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, held := m.holdings[issueID]; held {
		return false
	}
	if len(m.holdings) >= m.config.Slots {
		return false
	}
	if m.usedCPU+req.CPUCores > m.config.CPUCores {
		return false
	}
	if m.usedMem+req.MemoryMB > m.config.MemoryMB {
		return false
	}
	if req.FastStorage && m.usedFast >= m.config.FastStorageSlots {
		return false
	}

	m.holdings[issueID] = req
	m.usedCPU += req.CPUCores
	m.usedMem += req.MemoryMB
	if req.FastStorage {
		m.usedFast++
	}
	return true
}

// Release returns an issue's capacity to the pool. Releasing an unknown
// issue is a no-op.
func (m *Manager) Release(issueID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, held := m.holdings[issueID]
	if !held {
		return
	}
	delete(m.holdings, issueID)
	m.usedCPU -= req.CPUCores
	m.usedMem -= req.MemoryMB
	if req.FastStorage {
		m.usedFast--
	}
}

// AvailableCapacity returns a snapshot of the remaining pools
func (m *Manager) AvailableCapacity() strategy.Capacity {
	m.mu.Lock()
	defer m.mu.Unlock()

	return strategy.Capacity{
		Slots:       m.config.Slots - len(m.holdings),
		CPUCores:    m.config.CPUCores - m.usedCPU,
		MemoryMB:    m.config.MemoryMB - m.usedMem,
		FastStorage: m.config.FastStorageSlots - m.usedFast,
	}
}

// Holdings returns the issue IDs currently holding capacity
func (m *Manager) Holdings() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.holdings))
	for id := range m.holdings {
		ids = append(ids, id)
	}
	return ids
}
