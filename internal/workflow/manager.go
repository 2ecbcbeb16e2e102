package workflow

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/mplp/internal/errors"
	"github.com/Iron-Ham/mplp/internal/event"
	"github.com/Iron-Ham/mplp/internal/logging"
)

// DefaultOrchestratorID is stamped on workflows when none is configured.
const DefaultOrchestratorID = "core-orchestrator"

// DefaultStages is the stage list used when neither the request nor a
// definition provides one.
var DefaultStages = []string{"context", "plan", "confirm", "trace"}

type managerConfig struct {
	logger          *logging.Logger
	bus             *event.Bus
	orchestratorID  string
	defaultStages   []string
	defaultPriority string
	now             func() time.Time
}

// Option configures a Manager.
type Option func(*managerConfig)

// WithLogger sets the logger. If nil, a NopLogger is used.
func WithLogger(l *logging.Logger) Option {
	return func(c *managerConfig) { c.logger = l }
}

// WithEventBus publishes workflow events on bus.
func WithEventBus(bus *event.Bus) Option {
	return func(c *managerConfig) { c.bus = bus }
}

// WithOrchestratorID sets the id stamped on created workflows.
func WithOrchestratorID(id string) Option {
	return func(c *managerConfig) { c.orchestratorID = id }
}

// WithDefaultStages sets the fallback stage list.
func WithDefaultStages(stages []string) Option {
	return func(c *managerConfig) { c.defaultStages = append([]string(nil), stages...) }
}

// WithDefaultPriority sets the fallback priority.
func WithDefaultPriority(p string) Option {
	return func(c *managerConfig) { c.defaultPriority = p }
}

// Manager owns workflow definitions and executions.
type Manager struct {
	mu          sync.RWMutex
	workflows   map[string]*Workflow
	definitions map[string]Definition

	cfg    managerConfig
	logger *logging.Logger
}

// New creates a Manager.
func New(opts ...Option) *Manager {
	cfg := managerConfig{
		orchestratorID:  DefaultOrchestratorID,
		defaultStages:   DefaultStages,
		defaultPriority: "normal",
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.NopLogger()
	}
	return &Manager{
		workflows:   make(map[string]*Workflow),
		definitions: make(map[string]Definition),
		cfg:         cfg,
		logger:      cfg.logger.WithComponent("workflow-manager"),
	}
}

// Create materializes a workflow. Creating a workflow with the id of an
// active one fails; a terminal one with that id is superseded.
func (m *Manager) Create(_ context.Context, req CreateRequest) (*Workflow, error) {
	wf, err := m.build(req)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existing, ok := m.workflows[wf.ID]; ok {
		if existing.Status.IsActive() {
			m.mu.Unlock()
			return nil, errors.NewAlreadyExistsError("workflow", wf.ID)
		}
		m.logger.Info("superseding terminal workflow", "workflow_id", wf.ID, "status", existing.Status)
	}
	m.workflows[wf.ID] = wf
	out := wf.Clone()
	m.mu.Unlock()

	m.logger.WithWorkflow(wf.ID).Info("workflow created",
		"stages", wf.Config.Stages, "priority", wf.Config.Priority, "definition", wf.Definition)
	m.publish(event.NewWorkflowCreatedEvent(wf.ID, wf.Config.Stages, wf.Config.Priority))
	return out, nil
}

// SetDefaultPriority changes the priority given to workflows that name none.
func (m *Manager) SetDefaultPriority(p string) error {
	if err := validatePriority(p); err != nil {
		return err
	}
	m.mu.Lock()
	m.cfg.defaultPriority = p
	m.mu.Unlock()
	return nil
}

// DefaultPriority returns the fallback priority.
func (m *Manager) DefaultPriority() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.defaultPriority
}

func (m *Manager) build(req CreateRequest) (*Workflow, error) {
	cfg := req.Config
	if req.Definition != "" {
		def, ok := m.Definition(req.Definition)
		if !ok {
			return nil, errors.NewNotFoundError("workflow definition", req.Definition)
		}
		if len(cfg.Stages) == 0 {
			cfg.Stages = def.Stages
		}
		if cfg.ExecutionMode == "" {
			cfg.ExecutionMode = def.ExecutionMode
		}
		if !cfg.ParallelExecution {
			cfg.ParallelExecution = def.ParallelExecution
		}
		if cfg.Priority == "" {
			cfg.Priority = def.Priority
		}
	}
	if len(cfg.Stages) == 0 {
		cfg.Stages = m.cfg.defaultStages
	}
	cfg.Stages = append([]string(nil), cfg.Stages...)
	if cfg.Priority == "" {
		cfg.Priority = m.DefaultPriority()
	}
	if cfg.ExecutionMode == "" {
		cfg.ExecutionMode = ModeSequential
		if cfg.ParallelExecution {
			cfg.ExecutionMode = ModeParallel
		}
	}
	cfg.ParallelExecution = cfg.ExecutionMode == ModeParallel

	if err := validateMode(cfg.ExecutionMode); err != nil {
		return nil, err
	}
	if err := validatePriority(cfg.Priority); err != nil {
		return nil, err
	}
	for _, s := range cfg.Stages {
		if s == "" {
			return nil, errors.NewValidationError("stage name must not be empty").WithField("stages")
		}
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := m.cfg.now()
	wf := &Workflow{
		ID:               id,
		OrchestratorID:   m.cfg.orchestratorID,
		Config:           cfg,
		ExecutionContext: req.ExecutionContext,
		CoreOperation:    req.CoreOperation,
		CoreDetails:      req.CoreDetails,
		Definition:       req.Definition,
		Status:           StatusCreated,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for _, s := range cfg.Stages {
		wf.Steps = append(wf.Steps, StepState{Stage: s, Status: StepPending, UpdatedAt: now})
	}
	return wf.Clone(), nil
}

// Get returns a copy of the workflow.
func (m *Manager) Get(_ context.Context, id string) (*Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wf, ok := m.workflows[id]
	if !ok {
		return nil, errors.NewNotFoundError("workflow", id)
	}
	return wf.Clone(), nil
}

// List returns copies of all workflows, oldest first.
func (m *Manager) List(_ context.Context) []*Workflow {
	m.mu.RLock()
	out := make([]*Workflow, 0, len(m.workflows))
	for _, wf := range m.workflows {
		out = append(out, wf.Clone())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Refresh brings a workflow into the running state. A workflow that was
// never materialized is created from the defaults under id. Running and
// terminal workflows are returned unchanged, so Refresh is idempotent.
func (m *Manager) Refresh(ctx context.Context, id string) (*Workflow, error) {
	m.mu.Lock()
	wf, ok := m.workflows[id]
	if !ok {
		m.mu.Unlock()
		if _, err := m.Create(ctx, CreateRequest{ID: id}); err != nil && !errors.Is(err, &errors.AlreadyExistsError{}) {
			return nil, err
		}
		m.logger.WithWorkflow(id).Info("workflow re-materialized from defaults")
		return m.Refresh(ctx, id)
	}

	var from Status
	if wf.Status == StatusCreated {
		from = wf.Status
		wf.Status = StatusRunning
		wf.UpdatedAt = m.cfg.now()
	}
	out := wf.Clone()
	m.mu.Unlock()

	if from != "" {
		m.publish(event.NewWorkflowStatusEvent(id, string(from), string(StatusRunning)))
	}
	return out, nil
}

// MarkStopped moves an active workflow to stopped. Terminal workflows are
// left as they are.
func (m *Manager) MarkStopped(_ context.Context, id string) error {
	m.mu.Lock()
	wf, ok := m.workflows[id]
	if !ok {
		m.mu.Unlock()
		return errors.NewNotFoundError("workflow", id)
	}
	if wf.Status.IsTerminal() {
		m.mu.Unlock()
		return nil
	}
	from := wf.Status
	wf.Status = StatusStopped
	wf.UpdatedAt = m.cfg.now()
	m.mu.Unlock()

	m.logger.WithWorkflow(id).Info("workflow stopped", "from", from)
	m.publish(event.NewWorkflowStatusEvent(id, string(from), string(StatusStopped)))
	return nil
}

// RecordStep updates the state of one stage. The workflow completes once
// every stage has completed and fails as soon as one stage fails.
func (m *Manager) RecordStep(_ context.Context, id, stage string, status StepStatus, errMsg string) error {
	m.mu.Lock()
	wf, ok := m.workflows[id]
	if !ok {
		m.mu.Unlock()
		return errors.NewNotFoundError("workflow", id)
	}
	if wf.Status.IsTerminal() {
		m.mu.Unlock()
		return errors.NewValidationError(fmt.Sprintf("workflow %s is %s", id, wf.Status)).WithField("status").WithValue(string(wf.Status))
	}
	idx := slices.IndexFunc(wf.Steps, func(s StepState) bool { return s.Stage == stage })
	if idx < 0 {
		m.mu.Unlock()
		return errors.NewValidationError(fmt.Sprintf("workflow %s has no stage %s", id, stage)).WithField("stage").WithValue(stage)
	}

	now := m.cfg.now()
	wf.Steps[idx] = StepState{Stage: stage, Status: status, Error: errMsg, UpdatedAt: now}
	wf.UpdatedAt = now

	from := wf.Status
	switch {
	case status == StepFailed:
		wf.Status = StatusFailed
	case allCompleted(wf.Steps):
		wf.Status = StatusCompleted
	case wf.Status == StatusCreated:
		wf.Status = StatusRunning
	}
	to := wf.Status
	m.mu.Unlock()

	m.publish(event.NewWorkflowStepEvent(id, stage, string(status), errMsg))
	if to != from {
		m.logger.WithWorkflow(id).Info("workflow status changed", "from", from, "to", to)
		m.publish(event.NewWorkflowStatusEvent(id, string(from), string(to)))
	}
	return nil
}

func allCompleted(steps []StepState) bool {
	for _, s := range steps {
		if s.Status != StepCompleted {
			return false
		}
	}
	return len(steps) > 0
}

// Delete removes a workflow and reports whether it existed.
func (m *Manager) Delete(_ context.Context, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.workflows[id]
	delete(m.workflows, id)
	return ok
}

// Statistics counts workflows by status.
func (m *Manager) Statistics(_ context.Context) (Statistics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := Statistics{
		Total:       len(m.workflows),
		ByStatus:    make(map[Status]int),
		Definitions: len(m.definitions),
	}
	for _, wf := range m.workflows {
		st.ByStatus[wf.Status]++
		if wf.Status.IsActive() {
			st.Active++
		}
	}
	return st, nil
}

func (m *Manager) publish(e event.Event) {
	if m.cfg.bus != nil {
		m.cfg.bus.Publish(e)
	}
}

func validateMode(mode string) error {
	switch mode {
	case "", ModeSequential, ModeParallel:
		return nil
	}
	return errors.NewValidationError("unknown execution mode").WithField("execution_mode").WithValue(mode)
}

func validatePriority(p string) error {
	if slices.Contains(Priorities, p) {
		return nil
	}
	return errors.NewValidationError("unknown priority").WithField("priority").WithValue(p)
}
