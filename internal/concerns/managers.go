package concerns

import (
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/Iron-Ham/mplp/internal/event"
	"github.com/Iron-Ham/mplp/internal/logging"
)

// Options configures NewManagers. Zero values of MaxMonitored, ErrorHistory,
// EventHistory and ProtocolVersion fall back to DefaultOptions.
type Options struct {
	Bus             *event.Bus
	Logger          *logging.Logger
	Meter           metric.Meter
	DefaultDeny     bool
	Rules           []Rule
	MaxMonitored    int
	ErrorHistory    int
	EventHistory    int
	ProtocolVersion string
	DispatchTimeout time.Duration
}

// DefaultOptions returns the options Default uses.
func DefaultOptions() Options {
	return Options{
		MaxMonitored:    100,
		ErrorHistory:    200,
		EventHistory:    500,
		ProtocolVersion: "v1.0.0",
	}
}

// Managers is the set of cross-cutting concern managers shared by the runtime.
type Managers struct {
	Security        *SecurityManager
	Performance     *PerformanceManager
	EventBus        *EventBusManager
	ErrorHandling   *ErrorHandlingManager
	Coordination    *CoordinationManager
	Orchestration   *OrchestrationManager
	StateSync       *StateSyncManager
	Transaction     *TransactionManager
	ProtocolVersion *ProtocolVersionManager
}

// NewManagers builds an independent set of managers sharing one event bus.
func NewManagers(opts Options) (*Managers, error) {
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger()
	}
	if opts.Bus == nil {
		opts.Bus = event.NewBus(opts.Logger)
	}
	if opts.MaxMonitored == 0 {
		opts.MaxMonitored = 100
	}
	if opts.ErrorHistory == 0 {
		opts.ErrorHistory = 200
	}
	if opts.EventHistory == 0 {
		opts.EventHistory = 500
	}
	if opts.ProtocolVersion == "" {
		opts.ProtocolVersion = "v1.0.0"
	}

	security := NewSecurityManager(!opts.DefaultDeny, opts.Logger)
	if err := security.SetRules(opts.Rules); err != nil {
		return nil, err
	}

	return &Managers{
		Security:        security,
		Performance:     NewPerformanceManager(opts.MaxMonitored, opts.Meter, opts.Logger),
		EventBus:        NewEventBusManager(opts.Bus, opts.EventHistory, opts.Logger),
		ErrorHandling:   NewErrorHandlingManager(opts.ErrorHistory, opts.Bus, opts.Logger),
		Coordination:    NewCoordinationManager(opts.DispatchTimeout, opts.Logger),
		Orchestration:   NewOrchestrationManager(),
		StateSync:       NewStateSyncManager(opts.Bus, opts.Logger),
		Transaction:     NewTransactionManager(opts.Logger),
		ProtocolVersion: NewProtocolVersionManager(opts.ProtocolVersion),
	}, nil
}

var (
	defaultOnce     sync.Once
	defaultManagers *Managers
)

// Default returns the process-wide manager set, built on first use from
// DefaultOptions.
func Default() *Managers {
	defaultOnce.Do(func() {
		// DefaultOptions has no rules, so construction cannot fail.
		defaultManagers, _ = NewManagers(DefaultOptions())
	})
	return defaultManagers
}

// Status is one concern's mapping with its manager's live counters.
type Status struct {
	Mapping
	Stats any `json:"stats"`
}

// Describe returns the mapping and live counters for concern.
func (m *Managers) Describe(concern string) (Status, bool) {
	mapping, ok := Lookup(concern)
	if !ok {
		return Status{}, false
	}
	st := Status{Mapping: mapping}
	switch concern {
	case ConcernSecurity:
		st.Stats = m.Security.Stats()
	case ConcernPerformance:
		st.Stats = m.Performance.Stats()
	case ConcernEventBus:
		st.Stats = m.EventBus.Counts()
	case ConcernErrorHandling:
		st.Stats = m.ErrorHandling.CountBySeverity()
	case ConcernCoordination:
		st.Stats = m.Coordination.Stats()
	case ConcernOrchestration:
		st.Stats = map[string]int{"active": m.Orchestration.ActiveCount()}
	case ConcernStateSync:
		st.Stats = map[string]int{"keys": len(m.StateSync.Keys(""))}
	case ConcernTransaction:
		st.Stats = m.Transaction.Stats()
	case ConcernProtocolVersion:
		st.Stats = map[string]any{
			"runtime": m.ProtocolVersion.RuntimeVersion(),
			"modules": m.ProtocolVersion.Versions(),
		}
	}
	return st, true
}

// DescribeAll returns Describe for every concern, sorted by name.
func (m *Managers) DescribeAll() []Status {
	names := Concerns()
	out := make([]Status, 0, len(names))
	for _, name := range names {
		st, _ := m.Describe(name)
		out = append(out, st)
	}
	return out
}
