package concerns

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_KnownConcerns(t *testing.T) {
	tests := []struct {
		concern  string
		manager  string
		category string
	}{
		{ConcernSecurity, "SecurityManager", "Security Infrastructure"},
		{ConcernPerformance, "PerformanceManager", "Performance Infrastructure"},
		{ConcernEventBus, "EventBusManager", "Events Infrastructure"},
		{ConcernErrorHandling, "ErrorHandlingManager", "Events Infrastructure"},
		{ConcernCoordination, "CoordinationManager", "Coordination Infrastructure"},
		{ConcernOrchestration, "OrchestrationManager", "Coordination Infrastructure"},
		{ConcernStateSync, "StateSyncManager", "Storage Infrastructure"},
		{ConcernTransaction, "TransactionManager", "Storage Infrastructure"},
		{ConcernProtocolVersion, "ProtocolVersionManager", "Protocol Management Infrastructure"},
	}

	for _, tt := range tests {
		t.Run(tt.concern, func(t *testing.T) {
			assert.Equal(t, tt.manager, L3Manager(tt.concern))
			assert.Equal(t, tt.category, InfrastructureCategory(tt.concern))
			assert.NotEqual(t, UnknownLocation, L3Location(tt.concern))

			m, ok := Lookup(tt.concern)
			require.True(t, ok)
			assert.Equal(t, tt.concern, m.Concern)
			assert.NotEmpty(t, m.Description)
		})
	}
}

func TestRegistry_UnknownConcern(t *testing.T) {
	assert.Equal(t, "Unknown Infrastructure", InfrastructureCategory("caching"))
	assert.Equal(t, "UnknownManager", L3Manager("caching"))
	assert.Equal(t, "unknown", L3Location("caching"))

	_, ok := Lookup("caching")
	assert.False(t, ok)
}

func TestConcerns_SortedAndComplete(t *testing.T) {
	names := Concerns()
	assert.Len(t, names, 9)
	assert.True(t, sort.StringsAreSorted(names))

	mappings := Mappings()
	require.Len(t, mappings, 9)
	for i, m := range mappings {
		assert.Equal(t, names[i], m.Concern)
	}
}
