package protocol

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Iron-Ham/mplp/internal/errors"
	"github.com/Iron-Ham/mplp/internal/logging"
)

// maxRecentErrors bounds the error messages kept for health reports.
const maxRecentErrors = 10

// Base implements Module. Concrete modules embed or wrap it and customise
// behaviour through Hooks.
//
// Lifecycle operations are serialized by opMu; hooks run while it is held
// but never while mu is held, so hooks may call Status or Configuration.
type Base struct {
	opMu sync.Mutex
	mu   sync.RWMutex

	name    string
	version string
	deps    []string
	hooks   Hooks
	logger  *logging.Logger

	state        State
	config       Config
	startedAt    time.Time
	lastActivity time.Time

	sent, received, broadcasts int64
	processed                  int64
	failures                   int64
	activeConns                int
	totalResponse              time.Duration
	recentErrors               []string

	onStateChange StateChangeCallback
	outbox        Outbox
	resolver      DependencyResolver
}

// Option configures a Base.
type Option func(*Base)

// WithVersion sets the module's protocol version.
func WithVersion(v string) Option {
	return func(b *Base) { b.version = v }
}

// WithDependencies declares the modules this module depends on.
func WithDependencies(deps ...string) Option {
	return func(b *Base) { b.deps = slices.Clone(deps) }
}

// WithHooks installs module-specific behaviour.
func WithHooks(h Hooks) Option {
	return func(b *Base) { b.hooks = h }
}

// WithLogger sets the logger. A nil logger is replaced by logging.NopLogger.
func WithLogger(l *logging.Logger) Option {
	return func(b *Base) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBase creates a module in the stopped state with DefaultConfig.
func NewBase(name string, opts ...Option) *Base {
	b := &Base{
		name:    name,
		version: "v1.0.0",
		state:   StateStopped,
		config:  DefaultConfig(),
		logger:  logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.WithModule(name)
	return b
}

// SetStateChangeCallback registers cb for every lifecycle transition.
func (b *Base) SetStateChangeCallback(cb StateChangeCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStateChange = cb
}

// SetOutbox binds the delivery function used by SendMessage and BroadcastMessage.
func (b *Base) SetOutbox(o Outbox) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outbox = o
}

// SetDependencyResolver binds the lookup used by the dependency health check.
func (b *Base) SetDependencyResolver(r DependencyResolver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resolver = r
}

// Name returns the module name.
func (b *Base) Name() string { return b.name }

// Version returns the module's protocol version.
func (b *Base) Version() string { return b.version }

// Dependencies returns a copy of the declared dependencies.
func (b *Base) Dependencies() []string { return slices.Clone(b.deps) }

// State returns the current lifecycle state.
func (b *Base) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// transition moves to state to and reports it. Callers hold opMu.
func (b *Base) transition(to State) {
	b.mu.Lock()
	from := b.state
	b.state = to
	switch to {
	case StateRunning:
		b.startedAt = time.Now()
	case StateStopped, StateError:
		b.startedAt = time.Time{}
	}
	cb := b.onStateChange
	b.mu.Unlock()

	if from == to {
		return
	}
	b.logger.Debug("state transition", "from", string(from), "to", string(to))
	if cb != nil {
		cb(b.name, from, to)
	}
}

// fail moves to error and records err.
func (b *Base) fail(err error) {
	b.recordError(err)
	b.transition(StateError)
}

func (b *Base) recordError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.recentErrors = append(b.recentErrors, err.Error())
	if len(b.recentErrors) > maxRecentErrors {
		b.recentErrors = b.recentErrors[len(b.recentErrors)-maxRecentErrors:]
	}
}

// Initialize stores cfg and runs the OnInitialize hook. It is allowed from any state.
func (b *Base) Initialize(ctx context.Context, cfg Config) error {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	b.transition(StateInitializing)

	if err := b.validate(cfg); err != nil {
		initErr := errors.NewInitializationError("invalid configuration", err).WithModule(b.name)
		b.fail(initErr)
		return initErr
	}

	b.mu.Lock()
	b.config = cfg.clone()
	b.mu.Unlock()

	if b.hooks.OnInitialize != nil {
		if err := b.hooks.OnInitialize(ctx, cfg); err != nil {
			initErr := errors.NewInitializationError("initialize hook failed", err).WithModule(b.name)
			b.fail(initErr)
			return initErr
		}
	}

	b.logger.Info("module initialized")
	return nil
}

// Start moves the module to running. Allowed from initializing or stopped.
func (b *Base) Start(ctx context.Context) error {
	b.opMu.Lock()
	defer b.opMu.Unlock()
	return b.start(ctx)
}

func (b *Base) start(ctx context.Context) error {
	current := b.State()
	if current != StateInitializing && current != StateStopped {
		return errors.NewStateError("start", string(current)).WithModule(b.name)
	}

	if b.hooks.OnStart != nil {
		if err := b.hooks.OnStart(ctx); err != nil {
			wrapped := errors.Wrapf(err, "start %s", b.name)
			b.fail(wrapped)
			return wrapped
		}
	}

	b.transition(StateRunning)
	b.touch()
	b.logger.Info("module started")
	return nil
}

// Stop moves a running module through stopping to stopped.
func (b *Base) Stop(ctx context.Context) error {
	b.opMu.Lock()
	defer b.opMu.Unlock()
	return b.stop(ctx)
}

func (b *Base) stop(ctx context.Context) error {
	current := b.State()
	if current != StateRunning {
		return errors.NewStateError("stop", string(current)).WithModule(b.name)
	}

	b.transition(StateStopping)

	if b.hooks.OnStop != nil {
		if err := b.hooks.OnStop(ctx); err != nil {
			wrapped := errors.Wrapf(err, "stop %s", b.name)
			b.fail(wrapped)
			return wrapped
		}
	}

	b.transition(StateStopped)
	b.logger.Info("module stopped")
	return nil
}

// Restart stops then starts the module. Any failure leaves it in error.
func (b *Base) Restart(ctx context.Context) error {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	if err := b.stop(ctx); err != nil {
		if b.State() != StateError {
			b.fail(err)
		}
		return err
	}
	if err := b.start(ctx); err != nil {
		if b.State() != StateError {
			b.fail(err)
		}
		return err
	}
	return nil
}

// Shutdown stops a running module and forces the stopped state, even from error.
func (b *Base) Shutdown(ctx context.Context) {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	if b.State() == StateRunning {
		if err := b.stop(ctx); err != nil {
			b.logger.Warn("stop during shutdown failed", "error", err)
		}
	}
	b.transition(StateStopped)
}

// touch records activity now.
func (b *Base) touch() {
	b.mu.Lock()
	b.lastActivity = time.Now()
	b.mu.Unlock()
}

// SendMessage addresses msg to target and hands it to the outbox. Without an
// outbox the message is only counted.
func (b *Base) SendMessage(ctx context.Context, target string, msg Message) error {
	msg.Source = b.name
	msg.Target = target
	if msg.ID == "" {
		msg.ID = NewMessage(msg.Type, nil).ID
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	b.mu.Lock()
	b.sent++
	b.processed++
	b.lastActivity = time.Now()
	outbox := b.outbox
	b.mu.Unlock()

	return b.deliver(ctx, outbox, msg)
}

// BroadcastMessage sends msg to every registered endpoint except this module.
func (b *Base) BroadcastMessage(ctx context.Context, msg Message) error {
	msg.Source = b.name
	msg.Target = Broadcast
	if msg.ID == "" {
		msg.ID = NewMessage(msg.Type, nil).ID
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	b.mu.Lock()
	b.broadcasts++
	b.processed++
	b.lastActivity = time.Now()
	outbox := b.outbox
	b.mu.Unlock()

	return b.deliver(ctx, outbox, msg)
}

func (b *Base) deliver(ctx context.Context, outbox Outbox, msg Message) error {
	if outbox == nil {
		return nil
	}
	if err := outbox(ctx, msg); err != nil {
		b.recordError(err)
		b.logger.Warn("message delivery failed",
			"target", msg.Target, "type", msg.Type, "error", err)
		return err
	}
	return nil
}

// ReceiveMessage handles an inbound message. The module must be running.
func (b *Base) ReceiveMessage(ctx context.Context, source string, msg Message) (*Message, error) {
	if source != "" {
		msg.Source = source
	}
	b.mu.Lock()
	if b.state != StateRunning {
		state := b.state
		b.mu.Unlock()
		return nil, errors.NewCoordinationError(
			fmt.Sprintf("module %s is %s", b.name, state), errors.ErrModuleUnavailable,
		).WithRoute(source, b.name).WithOperation(msg.Type).WithWorkflowID(msg.WorkflowID).WithRetryable(true)
	}
	if limit := b.config.MaxConnections; limit > 0 && b.activeConns >= limit {
		b.mu.Unlock()
		return nil, errors.NewCoordinationError(
			fmt.Sprintf("module %s at connection limit %d", b.name, limit), errors.ErrModuleUnavailable,
		).WithRoute(source, b.name).WithOperation(msg.Type).WithRetryable(true)
	}
	b.activeConns++
	b.received++
	b.processed++
	b.lastActivity = time.Now()
	handler := b.hooks.OnMessage
	b.mu.Unlock()

	started := time.Now()
	var (
		reply *Message
		err   error
	)
	if handler != nil {
		reply, err = handler(ctx, source, msg)
	} else {
		reply = msg.Reply(b.name, msg.Type+".ack", nil)
	}
	elapsed := time.Since(started)

	b.mu.Lock()
	b.activeConns--
	b.totalResponse += elapsed
	b.mu.Unlock()

	if err != nil {
		b.recordError(err)
		return nil, err
	}
	return reply, nil
}

// Status returns a snapshot of the module.
func (b *Base) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Status{
		Name:              b.name,
		State:             b.state,
		Uptime:            b.uptimeLocked(),
		LastActivity:      b.lastActivity,
		ActiveConnections: b.activeConns,
		ProcessedRequests: b.processed,
	}
}

func (b *Base) uptimeLocked() time.Duration {
	if b.startedAt.IsZero() {
		return 0
	}
	return time.Since(b.startedAt)
}

// Metrics returns performance, resource and business metrics.
func (b *Base) Metrics() Metrics {
	b.mu.RLock()
	m := Metrics{
		Resources: ResourceMetrics{
			ActiveConnections: b.activeConns,
			MaxConnections:    b.config.MaxConnections,
		},
		Business: map[string]float64{
			"messages_sent":     float64(b.sent),
			"messages_received": float64(b.received),
			"broadcasts":        float64(b.broadcasts),
			"errors":            float64(b.failures),
		},
	}
	if b.received > 0 {
		m.Performance.AverageResponseTime = b.totalResponse / time.Duration(b.received)
	}
	if b.processed > 0 {
		m.Performance.ErrorRate = float64(b.failures) / float64(b.processed)
	}
	if up := b.uptimeLocked(); up > 0 {
		m.Performance.Throughput = float64(b.processed) / up.Seconds()
	}
	if b.config.MaxConnections > 0 {
		m.Resources.ConnectionUtilization = float64(b.activeConns) / float64(b.config.MaxConnections)
	}
	extra := b.hooks.BusinessMetrics
	b.mu.RUnlock()

	if extra != nil {
		for k, v := range extra() {
			m.Business[k] = v
		}
	}
	return m
}

// UpdateConfiguration replaces the configuration after validating it.
func (b *Base) UpdateConfiguration(cfg Config) error {
	if err := b.validate(cfg); err != nil {
		return err
	}
	b.mu.Lock()
	b.config = cfg.clone()
	b.mu.Unlock()
	b.logger.Debug("configuration updated")
	return nil
}

// Configuration returns a copy of the current configuration.
func (b *Base) Configuration() Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.config.clone()
}

// ValidateConfiguration reports whether cfg would be accepted.
func (b *Base) ValidateConfiguration(cfg Config) bool {
	return b.validate(cfg) == nil
}

func (b *Base) validate(cfg Config) error {
	if cfg.Timeout < 0 {
		return errors.NewValidationError("timeout must be non-negative").WithField("timeout").WithValue(cfg.Timeout)
	}
	if cfg.MaxConnections < 0 {
		return errors.NewValidationError("max connections must be non-negative").
			WithField("max_connections").WithValue(cfg.MaxConnections)
	}
	if b.hooks.ValidateSettings != nil {
		if err := b.hooks.ValidateSettings(cfg.Settings); err != nil {
			return errors.NewValidationError("settings rejected").WithField("settings").WithCause(err)
		}
	}
	return nil
}

var _ Module = (*Base)(nil)
