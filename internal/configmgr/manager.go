package configmgr

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Iron-Ham/mplp/internal/errors"
	"github.com/Iron-Ham/mplp/internal/event"
	"github.com/Iron-Ham/mplp/internal/logging"
)

// ChangeType describes how a key changed.
type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// Value is one version of a config key.
type Value struct {
	Key            string    `json:"key" yaml:"key"`
	Value          any       `json:"value" yaml:"value"`
	Version        int       `json:"version" yaml:"version"`
	Timestamp      time.Time `json:"timestamp" yaml:"timestamp"`
	Encrypted      bool      `json:"encrypted" yaml:"encrypted"`
	RolledBackFrom int       `json:"rolled_back_from,omitempty" yaml:"rolled_back_from,omitempty"`
}

// Change is delivered to listeners after a key changes. Values are plaintext.
type Change struct {
	Key      string
	Type     ChangeType
	OldValue any
	NewValue any
	Version  int
}

// Listener is notified of changes. Listeners run synchronously on the
// goroutine that made the change, after the manager's lock is released.
type Listener func(Change)

type cacheEntry struct {
	value   any
	expires time.Time
}

// Manager is a versioned, watchable key/value store for runtime configuration.
type Manager struct {
	mu       sync.Mutex
	current  map[string]Value
	history  map[string][]Value
	versions map[string]int
	cache    map[string]cacheEntry
	watchers map[string]*watcher
	nextID   int

	cfg    managerConfig
	sealer *sealer
	logger *logging.Logger
}

// New creates a Manager.
func New(opts ...Option) (*Manager, error) {
	cfg := managerConfig{
		cacheEnabled: true,
		cacheTTL:     DefaultCacheTTL,
		retention:    DefaultHistoryRetention,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.NopLogger()
	}

	s, err := newSealer(cfg.encryptionKey)
	if err != nil {
		return nil, errors.NewValidationError("invalid encryption key").WithField("configstore.encryption_key").WithCause(err)
	}

	return &Manager{
		current:  make(map[string]Value),
		history:  make(map[string][]Value),
		versions: make(map[string]int),
		cache:    make(map[string]cacheEntry),
		watchers: make(map[string]*watcher),
		cfg:      cfg,
		sealer:   s,
		logger:   cfg.logger.WithComponent("config-manager"),
	}, nil
}

// Get returns the plaintext value stored under key.
func (m *Manager) Get(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.cfg.now()
	if m.cfg.cacheEnabled {
		if ce, ok := m.cache[key]; ok && now.Before(ce.expires) {
			return ce.value, true
		}
		delete(m.cache, key)
	}

	v, ok := m.current[key]
	if !ok {
		return nil, false
	}
	plain, err := m.reveal(v)
	if err != nil {
		m.logger.Error("failed to decrypt value", "key", key, "error", err)
		return nil, false
	}
	if m.cfg.cacheEnabled {
		m.cache[key] = cacheEntry{value: plain, expires: now.Add(m.cfg.cacheTTL)}
	}
	return plain, true
}

// GetValue returns the current version of key with its value decrypted.
func (m *Manager) GetValue(key string) (Value, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.current[key]
	if !ok {
		return Value{}, false
	}
	plain, err := m.reveal(v)
	if err != nil {
		m.logger.Error("failed to decrypt value", "key", key, "error", err)
		return Value{}, false
	}
	v.Value = plain
	return v, true
}

// Set stores value under key as a new version. With encrypted set, the value
// is stored sealed and decrypted on read.
func (m *Manager) Set(key string, value any, encrypted bool) (Value, error) {
	if key == "" {
		return Value{}, errors.NewValidationError("config key must not be empty").WithField("key")
	}
	stored := value
	if encrypted {
		sealed, err := m.sealer.seal(key, value)
		if err != nil {
			return Value{}, errors.NewValidationError("cannot encrypt value").WithField(key).WithCause(err)
		}
		stored = sealed
	}
	return m.write(key, stored, encrypted, 0)
}

// write stores an already sealed value. rolledBackFrom is zero for plain sets.
func (m *Manager) write(key string, stored any, encrypted bool, rolledBackFrom int) (Value, error) {
	m.mu.Lock()
	prev, existed := m.current[key]
	next := Value{
		Key:            key,
		Value:          stored,
		Version:        m.versions[key] + 1,
		Timestamp:      m.cfg.now(),
		Encrypted:      encrypted,
		RolledBackFrom: rolledBackFrom,
	}

	if err := m.persist(Record{
		Key:            key,
		Value:          stored,
		Version:        next.Version,
		Encrypted:      encrypted,
		RolledBackFrom: rolledBackFrom,
		Timestamp:      next.Timestamp,
	}); err != nil {
		m.mu.Unlock()
		return Value{}, err
	}

	m.versions[key] = next.Version
	m.current[key] = next
	m.appendHistory(next)
	delete(m.cache, key)

	change := Change{Key: key, Type: ChangeCreate, Version: next.Version}
	if existed {
		change.Type = ChangeUpdate
		change.OldValue, _ = m.reveal(prev)
	}
	change.NewValue, _ = m.reveal(next)
	listeners := m.listenersFor(key)
	m.mu.Unlock()

	m.dispatch(listeners, change)
	return m.publicValue(next, change.NewValue), nil
}

// Delete removes key. The version counter advances and history is kept, so
// a later Rollback can restore an earlier value.
func (m *Manager) Delete(key string) (bool, error) {
	m.mu.Lock()
	prev, ok := m.current[key]
	if !ok {
		m.mu.Unlock()
		return false, nil
	}
	version := m.versions[key] + 1
	if err := m.persist(Record{Key: key, Version: version, Deleted: true, Timestamp: m.cfg.now()}); err != nil {
		m.mu.Unlock()
		return false, err
	}
	m.versions[key] = version
	delete(m.current, key)
	delete(m.cache, key)

	change := Change{Key: key, Type: ChangeDelete, Version: version}
	change.OldValue, _ = m.reveal(prev)
	listeners := m.listenersFor(key)
	m.mu.Unlock()

	m.dispatch(listeners, change)
	return true, nil
}

// Version returns the latest version number of key, or zero if it was never set.
func (m *Manager) Version(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.versions[key]
}

// Rollback makes the value of an earlier version current again. The result is
// a new version annotated with RolledBackFrom, so versions never decrease.
func (m *Manager) Rollback(key string, version int) (Value, error) {
	m.mu.Lock()
	hist, ok := m.history[key]
	if !ok {
		m.mu.Unlock()
		return Value{}, errors.NewNotFoundError("config history", key).WithCause(errors.ErrVersionNotFound)
	}
	var target *Value
	for i := range hist {
		if hist[i].Version == version {
			target = &hist[i]
			break
		}
	}
	if target == nil {
		m.mu.Unlock()
		return Value{}, errors.NewNotFoundError("config version", versionID(key, version)).WithCause(errors.ErrVersionNotFound)
	}
	stored, encrypted := target.Value, target.Encrypted
	m.mu.Unlock()

	m.logger.Info("rolling back config", "key", key, "to_version", version)
	return m.write(key, stored, encrypted, version)
}

// Keys returns the current keys, sorted.
func (m *Manager) Keys() []string {
	m.mu.Lock()
	keys := make([]string, 0, len(m.current))
	for k := range m.current {
		keys = append(keys, k)
	}
	m.mu.Unlock()
	sort.Strings(keys)
	return keys
}

// History returns the retained versions of key, oldest first, decrypted.
func (m *Manager) History(key string) []Value {
	m.mu.Lock()
	defer m.mu.Unlock()
	hist := m.history[key]
	out := make([]Value, 0, len(hist))
	for _, v := range hist {
		plain, err := m.reveal(v)
		if err != nil {
			continue
		}
		out = append(out, m.publicValue(v, plain))
	}
	return out
}

// Restore replays the persister's records into an empty manager.
func (m *Manager) Restore(ctx context.Context) error {
	if m.cfg.persister == nil {
		return nil
	}
	recs, err := m.cfg.persister.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "load config history")
	}
	sortRecords(recs)

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range recs {
		if rec.Version > m.versions[rec.Key] {
			m.versions[rec.Key] = rec.Version
		}
		if rec.Deleted {
			delete(m.current, rec.Key)
			continue
		}
		v := Value{
			Key:            rec.Key,
			Value:          rec.Value,
			Version:        rec.Version,
			Timestamp:      rec.Timestamp,
			Encrypted:      rec.Encrypted,
			RolledBackFrom: rec.RolledBackFrom,
		}
		m.current[rec.Key] = v
		m.appendHistory(v)
	}
	m.cache = make(map[string]cacheEntry)
	m.logger.Info("config restored", "records", len(recs), "keys", len(m.current))
	return nil
}

func (m *Manager) appendHistory(v Value) {
	hist := append(m.history[v.Key], v)
	if len(hist) > m.cfg.retention {
		hist = hist[len(hist)-m.cfg.retention:]
	}
	m.history[v.Key] = hist
}

func (m *Manager) persist(rec Record) error {
	if m.cfg.persister == nil {
		return nil
	}
	// TODO: move persistence out of the critical section once Append can be
	// ordered by version on the storage side.
	if err := m.cfg.persister.Append(context.Background(), rec); err != nil {
		m.logger.Error("failed to persist config change", "key", rec.Key, "version", rec.Version, "error", err)
		return errors.Wrapf(err, "persist %s", rec.Key)
	}
	return nil
}

func (m *Manager) reveal(v Value) (any, error) {
	if !v.Encrypted {
		return v.Value, nil
	}
	return m.sealer.open(v.Key, v.Value)
}

func (m *Manager) publicValue(v Value, plain any) Value {
	v.Value = plain
	return v
}

func (m *Manager) dispatch(listeners []Listener, change Change) {
	for _, fn := range listeners {
		m.safeCall(fn, change)
	}
	if m.cfg.bus != nil {
		m.cfg.bus.Publish(event.NewConfigChangedEvent(change.Key, string(change.Type), change.Version))
	}
}
