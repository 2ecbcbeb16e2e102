package concerns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/mplp/internal/event"
)

func TestDefault_IsSingleton(t *testing.T) {
	a := Default()
	b := Default()
	require.NotNil(t, a)
	assert.Same(t, a, b)
	assert.Equal(t, "v1.0.0", a.ProtocolVersion.RuntimeVersion())
}

func TestNewManagers_SharesBus(t *testing.T) {
	bus := event.NewBus(nil)
	m, err := NewManagers(Options{Bus: bus})
	require.NoError(t, err)
	assert.NotSame(t, Default(), m)

	m.StateSync.Set("k", 1)
	assert.Equal(t, int64(1), m.EventBus.Count(event.TypeStateUpdated))
	assert.Same(t, bus, m.EventBus.Bus())
	assert.NoError(t, m.Security.Authorize("a", "b", "c"), "zero options allow by default")
}

func TestNewManagers_InvalidRule(t *testing.T) {
	_, err := NewManagers(Options{Rules: []Rule{{Source: "[x"}}})
	assert.Error(t, err)
}

func TestManagers_Describe(t *testing.T) {
	m, err := NewManagers(DefaultOptions())
	require.NoError(t, err)

	all := m.DescribeAll()
	require.Len(t, all, 9)
	for _, st := range all {
		assert.NotNil(t, st.Stats, st.Concern)
	}

	st, ok := m.Describe(ConcernSecurity)
	require.True(t, ok)
	assert.Equal(t, "SecurityManager", st.Manager)

	_, ok = m.Describe("caching")
	assert.False(t, ok)
}
