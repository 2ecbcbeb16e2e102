package concerns

import (
	"sort"
	"sync"
	"time"
)

// Orchestration records that a workflow's stage modules are being coordinated.
type Orchestration struct {
	WorkflowID  string    `json:"workflow_id"`
	Targets     []string  `json:"targets"`
	ActivatedAt time.Time `json:"activated_at"`
}

// OrchestrationManager tracks active orchestrations by workflow.
type OrchestrationManager struct {
	mu     sync.RWMutex
	active map[string]Orchestration
}

// NewOrchestrationManager creates an empty OrchestrationManager.
func NewOrchestrationManager() *OrchestrationManager {
	return &OrchestrationManager{active: make(map[string]Orchestration)}
}

// Activate marks workflowID active over targets, replacing any prior record.
func (o *OrchestrationManager) Activate(workflowID string, targets []string) Orchestration {
	rec := Orchestration{
		WorkflowID:  workflowID,
		Targets:     append([]string(nil), targets...),
		ActivatedAt: time.Now(),
	}
	o.mu.Lock()
	o.active[workflowID] = rec
	o.mu.Unlock()
	return rec
}

// Deactivate removes workflowID and reports whether it was active.
func (o *OrchestrationManager) Deactivate(workflowID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.active[workflowID]
	delete(o.active, workflowID)
	return ok
}

// IsActive reports whether workflowID has an active orchestration.
func (o *OrchestrationManager) IsActive(workflowID string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.active[workflowID]
	return ok
}

// Get returns the orchestration record for workflowID.
func (o *OrchestrationManager) Get(workflowID string) (Orchestration, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	rec, ok := o.active[workflowID]
	if ok {
		rec.Targets = append([]string(nil), rec.Targets...)
	}
	return rec, ok
}

// Targets returns the modules coordinated for workflowID.
func (o *OrchestrationManager) Targets(workflowID string) []string {
	rec, _ := o.Get(workflowID)
	return rec.Targets
}

// ActiveCount returns the number of active orchestrations.
func (o *OrchestrationManager) ActiveCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.active)
}

// List returns all active orchestrations ordered by workflow id.
func (o *OrchestrationManager) List() []Orchestration {
	o.mu.RLock()
	out := make([]Orchestration, 0, len(o.active))
	for _, rec := range o.active {
		rec.Targets = append([]string(nil), rec.Targets...)
		out = append(out, rec)
	}
	o.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].WorkflowID < out[j].WorkflowID })
	return out
}
