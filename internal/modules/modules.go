// Package modules provides the nine standard protocol modules.
//
// Each module is a protocol.Base with a message handler that acknowledges
// workflow operations. With the auto_complete setting on, a module reports
// step.completed to the workflow endpoint for every workflow.execute it
// accepts.
package modules

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Iron-Ham/mplp/internal/errors"
	"github.com/Iron-Ham/mplp/internal/logging"
	"github.com/Iron-Ham/mplp/internal/protocol"
	"github.com/Iron-Ham/mplp/internal/workflow"
)

// Standard module names.
const (
	Context   = "context"
	Plan      = "plan"
	Confirm   = "confirm"
	Trace     = "trace"
	Role      = "role"
	Extension = "extension"
	Dialog    = "dialog"
	Collab    = "collab"
	Network   = "network"
)

// SettingAutoComplete is the module setting that enables step reports.
const SettingAutoComplete = "auto_complete"

// DefaultVersion is the protocol version modules declare unless overridden.
const DefaultVersion = "v1.0.0"

// Operation message types handled by every module.
const (
	OpExecute = "workflow.execute"
	OpStop    = "workflow.stop"
)

// Spec describes a standard module.
type Spec struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Dependencies []string `json:"dependencies"`
}

var specs = map[string]Spec{
	Context:   {Context, "Shared context for an agent session", nil},
	Plan:      {Plan, "Task plans derived from context", []string{Context}},
	Confirm:   {Confirm, "Approval of plans before execution", []string{Plan}},
	Trace:     {Trace, "Execution traces and audit records", []string{Context}},
	Role:      {Role, "Roles and capabilities of participants", nil},
	Extension: {Extension, "Extension points and plug-ins", nil},
	Dialog:    {Dialog, "Conversational exchanges", []string{Context}},
	Collab:    {Collab, "Multi-agent collaboration", []string{Role}},
	Network:   {Network, "Agent network topology", []string{Collab}},
}

// Lookup returns the description and dependencies of a standard module.
func Lookup(name string) (Spec, bool) {
	s, ok := specs[name]
	if ok {
		s.Dependencies = append([]string(nil), s.Dependencies...)
	}
	return s, ok
}

// Names returns all standard module names sorted.
func Names() []string {
	names := make([]string, 0, len(specs))
	for n := range specs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Order returns names arranged so that every module follows its
// dependencies. Ties keep the input order. Unknown names, missing
// dependencies and cycles are rejected.
func Order(names []string) ([]string, error) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := specs[n]; !ok {
			return nil, errors.NewNotFoundError("module", n)
		}
		want[n] = true
	}
	for _, n := range names {
		for _, dep := range specs[n].Dependencies {
			if !want[dep] {
				return nil, errors.NewValidationError(fmt.Sprintf("module %s requires %s", n, dep)).
					WithField("modules.enabled").WithValue(names)
			}
		}
	}

	out := make([]string, 0, len(names))
	placed := make(map[string]bool, len(names))
	for len(out) < len(names) {
		progress := false
		for _, n := range names {
			if placed[n] {
				continue
			}
			ready := true
			for _, dep := range specs[n].Dependencies {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				out = append(out, n)
				placed[n] = true
				progress = true
			}
		}
		if !progress {
			return nil, errors.NewValidationError("module dependency cycle").WithValue(names)
		}
	}
	return out, nil
}

// Option configures a Module.
type Option func(*moduleConfig)

type moduleConfig struct {
	version string
	logger  *logging.Logger
}

// WithVersion overrides the module's protocol version.
func WithVersion(v string) Option {
	return func(c *moduleConfig) { c.version = v }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *moduleConfig) { c.logger = l }
}

// Module is a standard protocol module.
type Module struct {
	*protocol.Base

	mu        sync.Mutex
	active    map[string]bool
	executed  int64
	stopped   int64
	reported  int64
	reportErr int64
}

// New creates the named standard module in the stopped state.
func New(name string, opts ...Option) (*Module, error) {
	spec, ok := specs[name]
	if !ok {
		return nil, errors.NewNotFoundError("module", name)
	}
	cfg := moduleConfig{version: DefaultVersion}
	for _, opt := range opts {
		opt(&cfg)
	}

	m := &Module{active: make(map[string]bool)}
	m.Base = protocol.NewBase(name,
		protocol.WithVersion(cfg.version),
		protocol.WithDependencies(spec.Dependencies...),
		protocol.WithLogger(cfg.logger),
		protocol.WithHooks(protocol.Hooks{
			OnMessage:        m.handle,
			ValidateSettings: validateSettings,
			BusinessMetrics:  m.business,
		}),
	)
	return m, nil
}

// NewAll creates the named modules in dependency order.
func NewAll(names []string, opts ...Option) ([]*Module, error) {
	ordered, err := Order(names)
	if err != nil {
		return nil, err
	}
	out := make([]*Module, 0, len(ordered))
	for _, n := range ordered {
		m, err := New(n, opts...)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func validateSettings(settings map[string]any) error {
	if v, ok := settings[SettingAutoComplete]; ok {
		if _, isBool := v.(bool); !isBool {
			return fmt.Errorf("%s must be a boolean, got %T", SettingAutoComplete, v)
		}
	}
	return nil
}

// ActiveWorkflows returns the ids of workflows executing on this module.
func (m *Module) ActiveWorkflows() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Strings(ids)
	return ids
}

func (m *Module) handle(ctx context.Context, source string, msg protocol.Message) (*protocol.Message, error) {
	switch msg.Type {
	case OpExecute:
		if msg.WorkflowID == "" {
			return nil, errors.NewValidationError("execute without workflow id").WithField("workflow_id")
		}
		m.mu.Lock()
		m.active[msg.WorkflowID] = true
		m.executed++
		m.mu.Unlock()

		if m.Configuration().BoolSetting(SettingAutoComplete, false) {
			m.reportStep(ctx, msg.WorkflowID)
		}
		return msg.Reply(m.Name(), msg.Type+".ack", map[string]any{"stage": m.Name()}), nil

	case OpStop:
		m.mu.Lock()
		delete(m.active, msg.WorkflowID)
		m.stopped++
		m.mu.Unlock()
		return msg.Reply(m.Name(), msg.Type+".ack", map[string]any{"stage": m.Name()}), nil

	default:
		return msg.Reply(m.Name(), msg.Type+".ack", nil), nil
	}
}

// reportStep tells the workflow endpoint this stage is complete. A failed
// report is logged and counted; the execute itself still succeeds.
func (m *Module) reportStep(ctx context.Context, workflowID string) {
	report := protocol.NewMessage(workflow.MsgStepCompleted, map[string]any{"stage": m.Name()})
	report.WorkflowID = workflowID
	err := m.SendMessage(ctx, workflow.EndpointName, report)

	m.mu.Lock()
	if err != nil {
		m.reportErr++
	} else {
		m.reported++
		delete(m.active, workflowID)
	}
	m.mu.Unlock()
}

func (m *Module) business() map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]float64{
		"active_workflows": float64(len(m.active)),
		"executed":         float64(m.executed),
		"stopped":          float64(m.stopped),
		"steps_reported":   float64(m.reported),
		"report_failures":  float64(m.reportErr),
	}
}

var _ protocol.Module = (*Module)(nil)
