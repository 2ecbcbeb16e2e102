package concerns

import (
	"sync"

	"github.com/Iron-Ham/mplp/internal/event"
	"github.com/Iron-Ham/mplp/internal/logging"
)

// EventBusManager wraps an event.Bus, counting published events per type and
// keeping the most recent ones.
type EventBusManager struct {
	bus *event.Bus

	mu      sync.Mutex
	counts  map[string]int64
	history []event.Event
	next    int
	filled  bool

	recorderID string
	logger     *logging.Logger
}

// NewEventBusManager creates an EventBusManager over bus. A nil bus gets a
// fresh one. historySize bounds History; zero disables it.
func NewEventBusManager(bus *event.Bus, historySize int, logger *logging.Logger) *EventBusManager {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if bus == nil {
		bus = event.NewBus(logger)
	}
	if historySize < 0 {
		historySize = 0
	}
	m := &EventBusManager{
		bus:     bus,
		counts:  make(map[string]int64),
		history: make([]event.Event, historySize),
		logger:  logger.WithComponent("event-bus-manager"),
	}
	m.recorderID = bus.SubscribeAll(m.record)
	return m
}

func (m *EventBusManager) record(e event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[e.EventType()]++
	if len(m.history) == 0 {
		return
	}
	m.history[m.next] = e
	m.next = (m.next + 1) % len(m.history)
	if m.next == 0 {
		m.filled = true
	}
}

// Bus returns the underlying bus.
func (m *EventBusManager) Bus() *event.Bus { return m.bus }

// Publish publishes e on the underlying bus.
func (m *EventBusManager) Publish(e event.Event) {
	m.bus.Publish(e)
}

// Subscribe registers handler for eventType and returns the subscription id.
func (m *EventBusManager) Subscribe(eventType string, handler event.Handler) string {
	return m.bus.Subscribe(eventType, handler)
}

// Unsubscribe removes a subscription.
func (m *EventBusManager) Unsubscribe(id string) bool {
	return m.bus.Unsubscribe(id)
}

// Count returns how many events of eventType have been published.
func (m *EventBusManager) Count(eventType string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[eventType]
}

// Counts returns a copy of the per-type counters.
func (m *EventBusManager) Counts() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.counts))
	for k, v := range m.counts {
		out[k] = v
	}
	return out
}

// History returns up to limit of the most recent events, oldest first.
// A limit of zero or less returns everything retained.
func (m *EventBusManager) History(limit int) []event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ordered []event.Event
	if m.filled {
		ordered = append(ordered, m.history[m.next:]...)
	}
	ordered = append(ordered, m.history[:m.next]...)

	if limit > 0 && len(ordered) > limit {
		ordered = ordered[len(ordered)-limit:]
	}
	return ordered
}

// Close detaches the manager from the bus. Other subscriptions stay.
func (m *EventBusManager) Close() {
	m.bus.Unsubscribe(m.recorderID)
}
