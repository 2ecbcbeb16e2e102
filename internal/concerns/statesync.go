package concerns

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"

	"github.com/Iron-Ham/mplp/internal/errors"
	"github.com/Iron-Ham/mplp/internal/event"
	"github.com/Iron-Ham/mplp/internal/logging"
)

// ErrVersionConflict is returned by CompareAndSwap when the stored version
// differs from the expected one.
var ErrVersionConflict = errors.New("state version conflict")

// StateEntry is one versioned value in shared state.
type StateEntry struct {
	Key       string    `json:"key"`
	Value     any       `json:"value"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StateListener is called after a key matching its pattern changes.
type StateListener func(entry StateEntry, deleted bool)

type stateSubscription struct {
	pattern string
	matcher glob.Glob
	fn      StateListener
}

// StateSyncManager holds shared state keyed by string. Each write bumps the
// key's version; a deleted key keeps its version counter.
type StateSyncManager struct {
	mu       sync.RWMutex
	entries  map[string]StateEntry
	versions map[string]int64
	subs     map[string]stateSubscription
	nextID   int

	bus    *event.Bus
	logger *logging.Logger
}

// NewStateSyncManager creates an empty StateSyncManager. bus may be nil.
func NewStateSyncManager(bus *event.Bus, logger *logging.Logger) *StateSyncManager {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &StateSyncManager{
		entries:  make(map[string]StateEntry),
		versions: make(map[string]int64),
		subs:     make(map[string]stateSubscription),
		bus:      bus,
		logger:   logger.WithComponent("state-sync"),
	}
}

// Set stores value under key and returns the new entry.
func (s *StateSyncManager) Set(key string, value any) StateEntry {
	s.mu.Lock()
	entry := s.writeLocked(key, value)
	s.mu.Unlock()

	s.notify(entry, false)
	return entry
}

// CompareAndSwap stores value only if key's current version equals expected.
// An expected version of zero means the key must not exist.
func (s *StateSyncManager) CompareAndSwap(key string, expected int64, value any) (StateEntry, error) {
	s.mu.Lock()
	current := int64(0)
	if e, ok := s.entries[key]; ok {
		current = e.Version
	}
	if current != expected {
		s.mu.Unlock()
		return StateEntry{}, fmt.Errorf("key %q at version %d, expected %d: %w", key, current, expected, ErrVersionConflict)
	}
	entry := s.writeLocked(key, value)
	s.mu.Unlock()

	s.notify(entry, false)
	return entry, nil
}

func (s *StateSyncManager) writeLocked(key string, value any) StateEntry {
	s.versions[key]++
	entry := StateEntry{
		Key:       key,
		Value:     value,
		Version:   s.versions[key],
		UpdatedAt: time.Now(),
	}
	s.entries[key] = entry
	return entry
}

// Get returns the entry stored under key.
func (s *StateSyncManager) Get(key string) (StateEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok
}

// Delete removes key and reports whether it existed.
func (s *StateSyncManager) Delete(key string) bool {
	s.mu.Lock()
	entry, ok := s.entries[key]
	delete(s.entries, key)
	s.mu.Unlock()

	if ok {
		s.notify(entry, true)
	}
	return ok
}

// Keys returns the stored keys with the given prefix, sorted.
func (s *StateSyncManager) Keys(prefix string) []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Subscribe calls fn for every change to a key matching pattern. '*' matches
// any run of characters, including '/'.
func (s *StateSyncManager) Subscribe(pattern string, fn StateListener) (string, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return "", errors.NewValidationError("invalid subscription pattern").WithValue(pattern).WithCause(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := fmt.Sprintf("state-sub-%d", s.nextID)
	s.subs[id] = stateSubscription{pattern: pattern, matcher: g, fn: fn}
	return id, nil
}

// Unsubscribe removes a subscription.
func (s *StateSyncManager) Unsubscribe(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subs[id]
	delete(s.subs, id)
	return ok
}

func (s *StateSyncManager) notify(entry StateEntry, deleted bool) {
	s.mu.RLock()
	var listeners []StateListener
	for _, sub := range s.subs {
		if sub.matcher.Match(entry.Key) {
			listeners = append(listeners, sub.fn)
		}
	}
	s.mu.RUnlock()

	for _, fn := range listeners {
		s.safeCall(fn, entry, deleted)
	}
	if s.bus != nil {
		s.bus.Publish(event.NewStateUpdatedEvent(entry.Key, entry.Version, deleted))
	}
}

func (s *StateSyncManager) safeCall(fn StateListener, entry StateEntry, deleted bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("state listener panicked", "key", entry.Key, "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn(entry, deleted)
}
