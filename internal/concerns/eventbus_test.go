package concerns

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/mplp/internal/event"
)

func TestEventBusManager_CountsAndHistory(t *testing.T) {
	m := NewEventBusManager(nil, 3, nil)

	for i := 0; i < 4; i++ {
		m.Publish(event.NewWorkflowStatusEvent(fmt.Sprintf("wf-%d", i), "created", "running"))
	}
	m.Publish(event.NewConfigChangedEvent("a", "create", 1))

	assert.Equal(t, int64(4), m.Count(event.TypeWorkflowStatus))
	assert.Equal(t, int64(1), m.Count(event.TypeConfigChanged))

	hist := m.History(0)
	require.Len(t, hist, 3)
	assert.Equal(t, "wf-2", hist[0].(event.WorkflowStatusEvent).WorkflowID)
	assert.Equal(t, "wf-3", hist[1].(event.WorkflowStatusEvent).WorkflowID)
	assert.Equal(t, event.TypeConfigChanged, hist[2].EventType())

	last := m.History(1)
	require.Len(t, last, 1)
	assert.Equal(t, event.TypeConfigChanged, last[0].EventType())
}

func TestEventBusManager_PartialHistory(t *testing.T) {
	m := NewEventBusManager(nil, 5, nil)
	m.Publish(event.NewStateUpdatedEvent("k", 1, false))

	assert.Len(t, m.History(0), 1)
}

func TestEventBusManager_SubscribeAndClose(t *testing.T) {
	bus := event.NewBus(nil)
	m := NewEventBusManager(bus, 0, nil)

	var got []string
	id := m.Subscribe("config.*", func(e event.Event) { got = append(got, e.EventType()) })

	bus.Publish(event.NewConfigChangedEvent("a", "update", 2))
	assert.Equal(t, []string{event.TypeConfigChanged}, got)
	assert.Empty(t, m.History(0), "zero history size retains nothing")

	assert.True(t, m.Unsubscribe(id))
	m.Close()
	bus.Publish(event.NewConfigChangedEvent("a", "update", 3))
	assert.Equal(t, int64(1), m.Count(event.TypeConfigChanged))
	assert.Equal(t, 0, bus.SubscriptionCount())
}
