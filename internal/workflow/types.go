package workflow

import (
	"time"
)

// Status is the lifecycle status of a workflow.
type Status string

const (
	StatusCreated   Status = "created"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusStopped
}

// IsActive reports whether the workflow is created or running.
func (s Status) IsActive() bool {
	return s == StatusCreated || s == StatusRunning
}

// Execution modes.
const (
	ModeSequential = "sequential"
	ModeParallel   = "parallel"
)

// Priorities accepted on workflows.
var Priorities = []string{"low", "normal", "high", "critical"}

// Config describes how a workflow runs.
type Config struct {
	Stages            []string `json:"stages" yaml:"stages"`
	ExecutionMode     string   `json:"execution_mode" yaml:"execution_mode"`
	ParallelExecution bool     `json:"parallel_execution" yaml:"parallel_execution"`
	Priority          string   `json:"priority" yaml:"priority"`
}

// ExecutionContext identifies who a workflow runs for.
type ExecutionContext struct {
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// StepStatus is the status of one stage of a workflow.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepDispatched StepStatus = "dispatched"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
)

// StepState tracks one stage.
type StepState struct {
	Stage     string     `json:"stage"`
	Status    StepStatus `json:"status"`
	Error     string     `json:"error,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Workflow is a composition of protocol modules run as ordered stages.
type Workflow struct {
	ID               string           `json:"id"`
	OrchestratorID   string           `json:"orchestrator_id"`
	Config           Config           `json:"config"`
	ExecutionContext ExecutionContext `json:"execution_context"`
	CoreOperation    string           `json:"core_operation,omitempty"`
	CoreDetails      map[string]any   `json:"core_details,omitempty"`
	Definition       string           `json:"definition,omitempty"`
	Status           Status           `json:"status"`
	Steps            []StepState      `json:"steps"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Step returns the state of stage.
func (w *Workflow) Step(stage string) (StepState, bool) {
	for _, s := range w.Steps {
		if s.Stage == stage {
			return s, true
		}
	}
	return StepState{}, false
}

// Clone returns a deep copy of w.
func (w *Workflow) Clone() *Workflow {
	c := *w
	c.Config.Stages = append([]string(nil), w.Config.Stages...)
	c.Steps = append([]StepState(nil), w.Steps...)
	if w.CoreDetails != nil {
		c.CoreDetails = make(map[string]any, len(w.CoreDetails))
		for k, v := range w.CoreDetails {
			c.CoreDetails[k] = v
		}
	}
	return &c
}

// CreateRequest describes a workflow to create. Empty fields take the
// definition's values, then the manager's defaults.
type CreateRequest struct {
	ID               string
	Definition       string
	Config           Config
	ExecutionContext ExecutionContext
	CoreOperation    string
	CoreDetails      map[string]any
}

// Statistics summarizes the workflows a manager holds.
type Statistics struct {
	Total       int            `json:"total"`
	Active      int            `json:"active"`
	ByStatus    map[Status]int `json:"by_status"`
	Definitions int            `json:"definitions"`
}
