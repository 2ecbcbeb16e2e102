// Package platform wires the runtime together: concern managers, the
// config store, workflows, resources, the module coordinator, the nine
// standard modules and the core orchestrator.
package platform

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/mplp/internal/concerns"
	"github.com/Iron-Ham/mplp/internal/config"
	"github.com/Iron-Ham/mplp/internal/configmgr"
	"github.com/Iron-Ham/mplp/internal/coordinator"
	"github.com/Iron-Ham/mplp/internal/errors"
	"github.com/Iron-Ham/mplp/internal/event"
	"github.com/Iron-Ham/mplp/internal/logging"
	"github.com/Iron-Ham/mplp/internal/modules"
	"github.com/Iron-Ham/mplp/internal/orchestrator"
	"github.com/Iron-Ham/mplp/internal/protocol"
	"github.com/Iron-Ham/mplp/internal/resource"
	"github.com/Iron-Ham/mplp/internal/storage"
	"github.com/Iron-Ham/mplp/internal/workflow"
)

// Keys the hub mirrors from process configuration into the config store.
const (
	KeyModulesAutoComplete   = "modules.auto_complete"
	KeyModulesTimeout        = "modules.timeout_seconds"
	KeyModulesMaxConnections = "modules.max_connections"
	KeyMonitoringEnabled     = "monitoring.enabled"
	KeyDefaultPriority       = "orchestrator.default_priority"
	KeyWarningThreshold      = "resources.warning_threshold"
	KeySecurityDefaultAllow  = "security.default_allow"
)

// StateKeyUtilization is where resource warnings are published in state sync.
const StateKeyUtilization = "resources/utilization"

// Hub owns every runtime component for one process.
type Hub struct {
	mu      sync.RWMutex
	started bool

	cfg    *config.Config
	logger *logging.Logger
	bus    *event.Bus

	managers     *concerns.Managers
	configs      *configmgr.Manager
	workflows    *workflow.Manager
	resources    *resource.Manager
	coordinator  *coordinator.Coordinator
	orchestrator *orchestrator.Orchestrator

	modules []*modules.Module
	byName  map[string]*modules.Module

	store       *storage.ConfigStore
	watchIDs    []string
	defsWatcher *FileWatcher
}

// NewHub builds every component from cfg. Nothing runs until Start.
func NewHub(ctx context.Context, cfg *config.Config, opts ...Option) (*Hub, error) {
	if cfg == nil {
		return nil, errors.New("platform: Config is required")
	}

	hc := &hubConfig{}
	for _, opt := range opts {
		opt(hc)
	}
	if hc.logger == nil {
		hc.logger = logging.NopLogger()
	}
	if hc.bus == nil {
		hc.bus = event.NewBus(hc.logger)
	}

	h := &Hub{
		cfg:    cfg,
		logger: hc.logger.WithComponent("hub"),
		bus:    hc.bus,
		byName: make(map[string]*modules.Module),
	}

	managers, err := concerns.NewManagers(concerns.Options{
		Bus:             hc.bus,
		Logger:          hc.logger,
		Meter:           hc.meter,
		DefaultDeny:     !cfg.Security.DefaultAllow,
		Rules:           securityRules(cfg.Security.Rules),
		MaxMonitored:    cfg.Monitoring.MaxMonitored,
		ErrorHistory:    cfg.Monitoring.ErrorHistory,
		EventHistory:    cfg.Monitoring.EventHistory,
		ProtocolVersion: cfg.Modules.ProtocolVersion,
		DispatchTimeout: cfg.Orchestrator.OperationTimeout(),
	})
	if err != nil {
		return nil, err
	}
	managers.Performance.SetEnabled(cfg.Monitoring.Enabled)
	h.managers = managers

	if err := h.buildConfigStore(ctx, hc); err != nil {
		return nil, err
	}

	h.workflows = workflow.New(
		workflow.WithLogger(hc.logger),
		workflow.WithEventBus(hc.bus),
		workflow.WithOrchestratorID(cfg.Orchestrator.ID),
		workflow.WithDefaultStages(cfg.Orchestrator.DefaultStages),
		workflow.WithDefaultPriority(cfg.Orchestrator.DefaultPriority),
	)
	if path := cfg.Orchestrator.DefinitionsFile; path != "" {
		n, err := h.workflows.LoadDefinitionsFile(path)
		if err != nil {
			h.closeStore()
			return nil, errors.Wrapf(err, "load workflow definitions %s", path)
		}
		h.logger.Info("workflow definitions loaded", "path", path, "count", n)
	}

	resCfg := *cfg
	if hc.skipProbe {
		resCfg.Resources.AutoDetect = false
	}
	h.resources = resource.NewManagerFromConfig(ctx, &resCfg, managers.Transaction, hc.bus,
		resource.Callbacks{
			OnWarning: func(u resource.Utilization) { managers.StateSync.Set(StateKeyUtilization, u) },
		}, hc.logger)

	h.coordinator = coordinator.New(managers, hc.logger)

	if err := h.buildModules(hc.logger); err != nil {
		h.closeStore()
		return nil, err
	}
	if err := managers.Coordination.Register(workflow.EndpointName, h.workflows); err != nil {
		h.closeStore()
		return nil, err
	}

	h.orchestrator = orchestrator.New(h.workflows, managers.Performance, h.resources, h.coordinator,
		orchestrator.WithLogger(hc.logger),
		orchestrator.WithErrorReporter(managers.ErrorHandling),
		orchestrator.WithStateRecorder(managers.StateSync),
		orchestrator.WithTracer(hc.tracer),
	)

	if err := h.watchRuntimeConfig(); err != nil {
		h.closeStore()
		return nil, err
	}
	if _, err := h.SyncProcessConfig(cfg); err != nil {
		h.closeStore()
		return nil, err
	}
	return h, nil
}

func (h *Hub) buildConfigStore(ctx context.Context, hc *hubConfig) error {
	cfg := h.cfg

	var key []byte
	if cfg.ConfigStore.EncryptionKey != "" {
		decoded, err := hex.DecodeString(cfg.ConfigStore.EncryptionKey)
		if err != nil {
			return errors.NewValidationError("encryption key must be hex").
				WithField("configstore.encryption_key").WithCause(err)
		}
		key = decoded
	}

	persister := hc.persister
	if persister == nil {
		switch cfg.Storage.Driver {
		case "postgres":
			store, err := storage.Open(ctx, cfg.Storage.DSN)
			if err != nil {
				return errors.Wrap(err, "open config store")
			}
			h.store = store
			persister = store
		case "", "memory":
			persister = configmgr.NewMemoryPersister()
		default:
			return errors.NewValidationError("unknown storage driver").
				WithField("storage.driver").WithValue(cfg.Storage.Driver)
		}
	}

	configs, err := configmgr.New(
		configmgr.WithLogger(hc.logger),
		configmgr.WithEventBus(hc.bus),
		configmgr.WithPersister(persister),
		configmgr.WithCache(cfg.ConfigStore.CacheEnabled, cfg.ConfigStore.CacheTTL()),
		configmgr.WithHistoryRetention(cfg.ConfigStore.HistoryRetention),
		configmgr.WithEncryptionKey(key),
	)
	if err != nil {
		h.closeStore()
		return err
	}
	if err := configs.Restore(ctx); err != nil {
		h.closeStore()
		return errors.Wrap(err, "restore config history")
	}
	h.configs = configs
	return nil
}

func (h *Hub) buildModules(logger *logging.Logger) error {
	mods, err := modules.NewAll(h.cfg.Modules.Enabled, modules.WithLogger(logger))
	if err != nil {
		return err
	}
	for _, m := range mods {
		name := m.Name()
		if err := h.managers.ProtocolVersion.Register(name, m.Version()); err != nil {
			return err
		}
		if err := h.managers.Coordination.Register(name, m); err != nil {
			return err
		}
		m.SetOutbox(func(ctx context.Context, msg protocol.Message) error {
			return h.coordinator.Route(ctx, name, msg)
		})
		m.SetDependencyResolver(h.moduleState)
		m.SetStateChangeCallback(func(module string, from, to protocol.State) {
			h.bus.Publish(event.NewModuleStateChangedEvent(module, string(from), string(to)))
		})
		h.byName[name] = m
	}
	h.modules = mods
	return nil
}

func (h *Hub) moduleState(name string) (protocol.State, bool) {
	m, ok := h.byName[name]
	if !ok {
		return "", false
	}
	return m.State(), true
}

// Start initializes and starts the modules in dependency order, then the
// definitions file watcher if one is configured. On failure every module
// already started is shut down again.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return errors.New("platform: hub already started")
	}

	cfg := h.moduleConfig()
	for i, m := range h.modules {
		err := m.Initialize(ctx, cfg)
		if err == nil {
			err = m.Start(ctx)
		}
		if err != nil {
			for j := i; j >= 0; j-- {
				h.modules[j].Shutdown(ctx)
			}
			return errors.Wrapf(err, "start module %s", m.Name())
		}
	}

	if path := h.cfg.Orchestrator.DefinitionsFile; path != "" {
		fw, err := NewFileWatcher(path, func(p string) error {
			_, err := h.workflows.LoadDefinitionsFile(p)
			return err
		}, h.logger)
		if err != nil {
			h.logger.Warn("definitions watcher unavailable", "path", path, "error", err)
		} else {
			fw.Start()
			h.defsWatcher = fw
		}
	}

	h.started = true
	h.logger.Info("hub started", "modules", len(h.modules))
	return nil
}

// Stop shuts modules down in reverse order and releases storage. It is
// idempotent.
func (h *Hub) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.defsWatcher != nil {
		h.defsWatcher.Stop()
		h.defsWatcher = nil
	}
	for _, id := range h.watchIDs {
		h.configs.Unwatch(id)
	}
	h.watchIDs = nil

	if h.started {
		for i := len(h.modules) - 1; i >= 0; i-- {
			h.modules[i].Shutdown(ctx)
		}
		h.started = false
		h.logger.Info("hub stopped")
	}
	h.closeStore()
	return nil
}

// Running reports whether the hub is started.
func (h *Hub) Running() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.started
}

func (h *Hub) closeStore() {
	if h.store != nil {
		h.store.Close()
		h.store = nil
	}
}

// Orchestrator returns the core orchestrator.
func (h *Hub) Orchestrator() *orchestrator.Orchestrator { return h.orchestrator }

// Managers returns the cross-cutting concern managers.
func (h *Hub) Managers() *concerns.Managers { return h.managers }

// Configs returns the runtime config store.
func (h *Hub) Configs() *configmgr.Manager { return h.configs }

// Workflows returns the workflow manager.
func (h *Hub) Workflows() *workflow.Manager { return h.workflows }

// Resources returns the resource manager.
func (h *Hub) Resources() *resource.Manager { return h.resources }

// Coordinator returns the module coordinator.
func (h *Hub) Coordinator() *coordinator.Coordinator { return h.coordinator }

// Bus returns the shared event bus.
func (h *Hub) Bus() *event.Bus { return h.bus }

// Modules returns the registered modules in startup order.
func (h *Hub) Modules() []*modules.Module {
	return append([]*modules.Module(nil), h.modules...)
}

// Module returns a registered module by name.
func (h *Hub) Module(name string) (*modules.Module, bool) {
	m, ok := h.byName[name]
	return m, ok
}

// moduleConfig builds module configuration from the config store, falling
// back to process configuration for keys it does not hold.
func (h *Hub) moduleConfig() protocol.Config {
	mc := h.cfg.Modules
	timeout := intValue(h.lookup(KeyModulesTimeout), mc.TimeoutSeconds)
	return protocol.Config{
		Enabled:        true,
		Timeout:        time.Duration(timeout) * time.Second,
		MaxConnections: intValue(h.lookup(KeyModulesMaxConnections), mc.MaxConnections),
		Settings: map[string]any{
			modules.SettingAutoComplete: boolValue(h.lookup(KeyModulesAutoComplete), mc.AutoComplete),
		},
	}
}

func (h *Hub) lookup(key string) any {
	v, _ := h.configs.Get(key)
	return v
}

// SyncProcessConfig mirrors the runtime-tunable part of cfg into the config
// store. Keys whose stored value already matches are left alone, so a
// restart does not grow history. It returns the number of keys written.
func (h *Hub) SyncProcessConfig(cfg *config.Config) (int, error) {
	entries := []struct {
		key   string
		value any
	}{
		{KeyModulesAutoComplete, cfg.Modules.AutoComplete},
		{KeyModulesTimeout, cfg.Modules.TimeoutSeconds},
		{KeyModulesMaxConnections, cfg.Modules.MaxConnections},
		{KeyMonitoringEnabled, cfg.Monitoring.Enabled},
		{KeyDefaultPriority, cfg.Orchestrator.DefaultPriority},
		{KeyWarningThreshold, cfg.Resources.WarningThreshold},
		{KeySecurityDefaultAllow, cfg.Security.DefaultAllow},
	}

	written := 0
	for _, e := range entries {
		if cur, ok := h.configs.Get(e.key); ok && fmt.Sprint(cur) == fmt.Sprint(e.value) {
			continue
		}
		if _, err := h.configs.Set(e.key, e.value, false); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// ApplyProcessConfig syncs cfg into the config store and replaces the
// security rules. The mirrored keys take effect through the config store
// watchers.
func (h *Hub) ApplyProcessConfig(cfg *config.Config) error {
	if err := h.managers.Security.SetRules(securityRules(cfg.Security.Rules)); err != nil {
		return err
	}
	n, err := h.SyncProcessConfig(cfg)
	if err != nil {
		return err
	}
	h.logger.Info("process config applied", "keys_changed", n, "rules", len(cfg.Security.Rules))
	return nil
}

// WatchProcessConfig reloads v's config file on change and applies it.
func (h *Hub) WatchProcessConfig(v *viper.Viper) {
	v.OnConfigChange(func(e fsnotify.Event) {
		h.logger.Info("config file changed", "file", e.Name, "op", e.Op.String())
		cfg, err := config.LoadFrom(v)
		if err != nil {
			h.logger.Warn("config reload rejected", "error", err)
			return
		}
		if err := h.ApplyProcessConfig(cfg); err != nil {
			h.logger.Warn("config reload failed", "error", err)
		}
	})
	v.WatchConfig()
}

func (h *Hub) watchRuntimeConfig() error {
	id, err := h.configs.WatchConfig("modules.*", func(c configmgr.Change) {
		cfg := h.moduleConfig()
		for _, m := range h.modules {
			if err := m.UpdateConfiguration(cfg); err != nil {
				h.logger.Warn("module configuration rejected", "module", m.Name(), "key", c.Key, "error", err)
			}
		}
	})
	if err != nil {
		return err
	}
	h.watchIDs = append(h.watchIDs, id)

	h.watchIDs = append(h.watchIDs, h.configs.Watch(KeyMonitoringEnabled, func(c configmgr.Change) {
		h.managers.Performance.SetEnabled(boolValue(c.NewValue, h.cfg.Monitoring.Enabled))
	}))
	h.watchIDs = append(h.watchIDs, h.configs.Watch(KeySecurityDefaultAllow, func(c configmgr.Change) {
		h.managers.Security.SetDefaultAllow(boolValue(c.NewValue, h.cfg.Security.DefaultAllow))
	}))
	h.watchIDs = append(h.watchIDs, h.configs.Watch(KeyWarningThreshold, func(c configmgr.Change) {
		h.resources.SetWarningThreshold(floatValue(c.NewValue, h.cfg.Resources.WarningThreshold))
	}))
	h.watchIDs = append(h.watchIDs, h.configs.Watch(KeyDefaultPriority, func(c configmgr.Change) {
		p, _ := c.NewValue.(string)
		if p == "" {
			p = h.cfg.Orchestrator.DefaultPriority
		}
		if err := h.workflows.SetDefaultPriority(p); err != nil {
			h.logger.Warn("default priority rejected", "key", c.Key, "error", err)
		}
	}))
	return nil
}

func securityRules(in []config.SecurityRule) []concerns.Rule {
	out := make([]concerns.Rule, 0, len(in))
	for _, r := range in {
		out = append(out, concerns.Rule{Source: r.Source, Target: r.Target, Operation: r.Operation, Allow: r.Allow})
	}
	return out
}

// intValue accepts the numeric shapes config values arrive in; values
// restored from JSON storage are float64.
func intValue(v any, def int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}

func floatValue(v any, def float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return def
	}
}

func boolValue(v any, def bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}
