package configmgr

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"github.com/Iron-Ham/mplp/internal/errors"
)

type watcher struct {
	seq     int
	key     string
	pattern string
	matcher glob.Glob
	fn      Listener
}

func (w *watcher) matches(key string) bool {
	if w.matcher != nil {
		return w.matcher.Match(key)
	}
	return w.key == key
}

// Watch calls fn after every change to key and returns the watcher id.
func (m *Manager) Watch(key string, fn Listener) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addWatcher(&watcher{key: key, fn: fn})
}

// WatchConfig calls fn after every change to a key matching pattern. '*'
// matches any run of characters including '.', and every other character is
// literal, so "db.*" matches both "db.host" and "db.pool.size". The pattern
// is compiled once, when the watcher is added.
func (m *Manager) WatchConfig(pattern string, fn Listener) (string, error) {
	g, err := compileWatchPattern(pattern)
	if err != nil {
		return "", errors.NewValidationError("invalid watch pattern").WithValue(pattern).WithCause(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addWatcher(&watcher{pattern: pattern, matcher: g, fn: fn}), nil
}

// compileWatchPattern quotes all glob syntax except '*'.
func compileWatchPattern(pattern string) (glob.Glob, error) {
	if pattern == "" {
		return nil, fmt.Errorf("empty pattern")
	}
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = glob.QuoteMeta(p)
	}
	return glob.Compile(strings.Join(parts, "*"))
}

// Unwatch removes a watcher and reports whether it existed.
func (m *Manager) Unwatch(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.watchers[id]
	delete(m.watchers, id)
	return ok
}

// WatcherCount returns the number of registered watchers.
func (m *Manager) WatcherCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watchers)
}

func (m *Manager) addWatcher(w *watcher) string {
	m.nextID++
	w.seq = m.nextID
	id := fmt.Sprintf("watch-%d", w.seq)
	m.watchers[id] = w
	return id
}

// listenersFor must be called with m.mu held.
func (m *Manager) listenersFor(key string) []Listener {
	var matched []*watcher
	for _, w := range m.watchers {
		if w.matches(key) {
			matched = append(matched, w)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })

	out := make([]Listener, len(matched))
	for i, w := range matched {
		out[i] = w.fn
	}
	return out
}

func (m *Manager) safeCall(fn Listener, change Change) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("config listener panicked", "key", change.Key, "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn(change)
}

func versionID(key string, version int) string {
	return fmt.Sprintf("%s@%d", key, version)
}
