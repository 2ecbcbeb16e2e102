// Package resource reserves CPU, memory and disk for workflows from a fixed
// capacity pool.
package resource

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/mplp/internal/concerns"
	"github.com/Iron-Ham/mplp/internal/config"
	"github.com/Iron-Ham/mplp/internal/errors"
	"github.com/Iron-Ham/mplp/internal/event"
	"github.com/Iron-Ham/mplp/internal/logging"
)

// Capacity is an amount of each resource.
type Capacity struct {
	CPUCores    int `json:"cpu_cores"`
	MemoryMB    int `json:"memory_mb"`
	DiskSpaceMB int `json:"disk_space_mb"`
}

// Request asks for resources for one workflow. A request with no amounts set
// uses the defaults for its priority.
type Request struct {
	CPUCores    int
	MemoryMB    int
	DiskSpaceMB int
	Priority    string
}

func (r Request) empty() bool {
	return r.CPUCores == 0 && r.MemoryMB == 0 && r.DiskSpaceMB == 0
}

// RequestForPriority returns the default request for a workflow priority.
// Unknown priorities get the normal request.
func RequestForPriority(priority string) Request {
	switch priority {
	case "critical", "high":
		return Request{CPUCores: 4, MemoryMB: 4096, DiskSpaceMB: 10240, Priority: priority}
	case "low":
		return Request{CPUCores: 1, MemoryMB: 1024, DiskSpaceMB: 2048, Priority: priority}
	default:
		if priority == "" {
			priority = "normal"
		}
		return Request{CPUCores: 2, MemoryMB: 2048, DiskSpaceMB: 5120, Priority: priority}
	}
}

// Allocation is a reservation held by one workflow.
type Allocation struct {
	ID          string    `json:"id"`
	WorkflowID  string    `json:"workflow_id"`
	CPUCores    int       `json:"cpu_cores"`
	MemoryMB    int       `json:"memory_mb"`
	DiskSpaceMB int       `json:"disk_space_mb"`
	Priority    string    `json:"priority"`
	AllocatedAt time.Time `json:"allocated_at"`
}

// Utilization reports how much of the pool is reserved. Fractions are in [0, 1].
type Utilization struct {
	Capacity    Capacity `json:"capacity"`
	Used        Capacity `json:"used"`
	CPU         float64  `json:"cpu"`
	Memory      float64  `json:"memory"`
	Disk        float64  `json:"disk"`
	Allocations int      `json:"allocations"`
}

// Peak returns the highest of the three fractions.
func (u Utilization) Peak() float64 {
	return max(u.CPU, u.Memory, u.Disk)
}

// Callbacks defines callbacks for resource events.
type Callbacks struct {
	// OnWarning is called when an allocation pushes utilization past the
	// warning threshold.
	OnWarning func(Utilization)
}

// Config holds resource pool configuration.
type Config struct {
	Capacity         Capacity
	WarningThreshold float64
}

// Manager owns all resource allocations.
type Manager struct {
	mu          sync.Mutex
	config      Config
	used        Capacity
	allocations map[string]*Allocation

	tx        *concerns.TransactionManager
	bus       *event.Bus
	callbacks Callbacks
	logger    *logging.Logger
}

// NewManager creates a resource manager. tx and bus may be nil.
func NewManager(cfg Config, tx *concerns.TransactionManager, bus *event.Bus, callbacks Callbacks, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if tx == nil {
		tx = concerns.NewTransactionManager(logger)
	}
	return &Manager{
		config:      cfg,
		allocations: make(map[string]*Allocation),
		tx:          tx,
		bus:         bus,
		callbacks:   callbacks,
		logger:      logger.WithComponent("resource-manager"),
	}
}

// NewManagerFromConfig creates a resource manager from application config,
// detecting host capacity when auto-detection is on. Values that cannot be
// detected fall back to the configured sizes.
func NewManagerFromConfig(ctx context.Context, appCfg *config.Config, tx *concerns.TransactionManager, bus *event.Bus, callbacks Callbacks, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NopLogger()
	}
	cfg := Config{}
	if appCfg != nil {
		cfg.Capacity = Capacity{
			CPUCores:    appCfg.Resources.CPUCores,
			MemoryMB:    appCfg.Resources.MemoryMB,
			DiskSpaceMB: appCfg.Resources.DiskSpaceMB,
		}
		cfg.WarningThreshold = appCfg.Resources.WarningThreshold
		if appCfg.Resources.AutoDetect {
			detected, err := DetectCapacity(ctx, os.TempDir())
			if err != nil {
				logger.Warn("resource detection incomplete, using configured capacity for missing values", "error", err)
			}
			cfg.Capacity = mergeCapacity(detected, cfg.Capacity)
		}
	}
	return NewManager(cfg, tx, bus, callbacks, logger)
}

// mergeCapacity keeps detected values and fills zeros from fallback.
func mergeCapacity(detected, fallback Capacity) Capacity {
	if detected.CPUCores == 0 {
		detected.CPUCores = fallback.CPUCores
	}
	if detected.MemoryMB == 0 {
		detected.MemoryMB = fallback.MemoryMB
	}
	if detected.DiskSpaceMB == 0 {
		detected.DiskSpaceMB = fallback.DiskSpaceMB
	}
	return detected
}

// Capacity returns the pool size.
func (m *Manager) Capacity() Capacity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config.Capacity
}

// Allocate reserves resources for workflowID. CPU, memory and disk are
// reserved in that order inside one transaction; if any is unavailable the
// earlier reservations are released and an AllocationError is returned.
// A workflow that already holds an allocation gets it back unchanged.
func (m *Manager) Allocate(ctx context.Context, workflowID string, req Request) (*Allocation, error) {
	if existing, ok := m.Allocation(workflowID); ok {
		return &existing, nil
	}
	if req.empty() {
		req = RequestForPriority(req.Priority)
	}
	if req.CPUCores < 0 || req.MemoryMB < 0 || req.DiskSpaceMB < 0 {
		return nil, errors.NewValidationError("negative resource request").WithValue(req)
	}

	tx := m.tx.Begin("allocate:" + workflowID)
	steps := []struct {
		name   string
		amount int
		field  func(*Capacity) *int
	}{
		{"cpu", req.CPUCores, func(c *Capacity) *int { return &c.CPUCores }},
		{"memory", req.MemoryMB, func(c *Capacity) *int { return &c.MemoryMB }},
		{"disk", req.DiskSpaceMB, func(c *Capacity) *int { return &c.DiskSpaceMB }},
	}
	for _, s := range steps {
		err := tx.Do(ctx, s.name,
			func(context.Context) error { return m.reserve(workflowID, s.name, s.amount, s.field) },
			func(context.Context) error { m.unreserve(s.amount, s.field); return nil },
		)
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				m.logger.Error("allocation rollback failed", "workflow_id", workflowID, "error", rbErr)
			}
			return nil, err
		}
	}

	alloc := &Allocation{
		ID:          uuid.NewString(),
		WorkflowID:  workflowID,
		CPUCores:    req.CPUCores,
		MemoryMB:    req.MemoryMB,
		DiskSpaceMB: req.DiskSpaceMB,
		Priority:    req.Priority,
		AllocatedAt: time.Now(),
	}

	m.mu.Lock()
	if existing, ok := m.allocations[workflowID]; ok {
		// A concurrent Allocate for the same workflow won.
		m.mu.Unlock()
		_ = tx.Rollback(ctx)
		out := *existing
		return &out, nil
	}
	m.allocations[workflowID] = alloc
	m.mu.Unlock()
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	m.logger.WithWorkflow(workflowID).Info("resources allocated",
		"allocation_id", alloc.ID, "cpu", alloc.CPUCores, "memory_mb", alloc.MemoryMB, "disk_mb", alloc.DiskSpaceMB)
	if m.bus != nil {
		m.bus.Publish(event.NewResourceAllocatedEvent(workflowID, alloc.ID, alloc.CPUCores, alloc.MemoryMB, alloc.DiskSpaceMB))
	}
	m.checkThreshold()

	out := *alloc
	return &out, nil
}

func (m *Manager) reserve(workflowID, name string, amount int, field func(*Capacity) *int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	available := *field(&m.config.Capacity) - *field(&m.used)
	if amount > available {
		return errors.NewAllocationError(
			fmt.Sprintf("requested %d %s, %d available", amount, name, available),
			errors.ErrInsufficientCapacity,
		).WithWorkflowID(workflowID).WithResource(name)
	}
	*field(&m.used) += amount
	return nil
}

func (m *Manager) unreserve(amount int, field func(*Capacity) *int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*field(&m.used) -= amount
}

// SetWarningThreshold changes the peak utilization that triggers OnWarning.
// Zero or less disables the warning.
func (m *Manager) SetWarningThreshold(threshold float64) {
	m.mu.Lock()
	m.config.WarningThreshold = threshold
	m.mu.Unlock()
}

// WarningThreshold returns the current warning threshold.
func (m *Manager) WarningThreshold() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config.WarningThreshold
}

func (m *Manager) checkThreshold() {
	threshold := m.WarningThreshold()
	if threshold <= 0 {
		return
	}
	u := m.Utilization()
	if u.Peak() < threshold {
		return
	}
	m.logger.Warn("resource utilization above warning threshold",
		"cpu", u.CPU, "memory", u.Memory, "disk", u.Disk, "threshold", threshold)
	if m.callbacks.OnWarning != nil {
		m.callbacks.OnWarning(u)
	}
}

// Release frees workflowID's allocation and reports whether it had one.
func (m *Manager) Release(_ context.Context, workflowID string) bool {
	m.mu.Lock()
	alloc, ok := m.allocations[workflowID]
	if ok {
		delete(m.allocations, workflowID)
		m.used.CPUCores -= alloc.CPUCores
		m.used.MemoryMB -= alloc.MemoryMB
		m.used.DiskSpaceMB -= alloc.DiskSpaceMB
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	m.logger.WithWorkflow(workflowID).Info("resources released", "allocation_id", alloc.ID)
	if m.bus != nil {
		m.bus.Publish(event.NewResourceReleasedEvent(workflowID, alloc.ID, alloc.CPUCores, alloc.MemoryMB, alloc.DiskSpaceMB))
	}
	return true
}

// HasAllocation reports whether workflowID holds an allocation.
func (m *Manager) HasAllocation(workflowID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.allocations[workflowID]
	return ok
}

// Allocation returns workflowID's allocation.
func (m *Manager) Allocation(workflowID string) (Allocation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.allocations[workflowID]
	if !ok {
		return Allocation{}, false
	}
	return *a, true
}

// Allocations returns all allocations ordered by workflow id.
func (m *Manager) Allocations() []Allocation {
	m.mu.Lock()
	out := make([]Allocation, 0, len(m.allocations))
	for _, a := range m.allocations {
		out = append(out, *a)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].WorkflowID < out[j].WorkflowID })
	return out
}

// Utilization returns current pool usage.
func (m *Manager) Utilization() Utilization {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, u := m.config.Capacity, m.used
	return Utilization{
		Capacity:    c,
		Used:        u,
		CPU:         fraction(u.CPUCores, c.CPUCores),
		Memory:      fraction(u.MemoryMB, c.MemoryMB),
		Disk:        fraction(u.DiskSpaceMB, c.DiskSpaceMB),
		Allocations: len(m.allocations),
	}
}

func fraction(used, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(used) / float64(total)
}
