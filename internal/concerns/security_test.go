package concerns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/mplp/internal/errors"
)

func TestSecurityManager_DefaultPolicy(t *testing.T) {
	assert.NoError(t, NewSecurityManager(true, nil).Authorize("core", "plan", "workflow.execute"))

	err := NewSecurityManager(false, nil).Authorize("core", "plan", "workflow.execute")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAccessDenied))

	var coordErr *errors.CoordinationError
	require.True(t, errors.As(err, &coordErr))
	assert.Equal(t, "core", coordErr.Source)
	assert.Equal(t, "plan", coordErr.Target)
	assert.Equal(t, "workflow.execute", coordErr.Operation)
}

func TestSecurityManager_FirstMatchWins(t *testing.T) {
	s := NewSecurityManager(true, nil)
	require.NoError(t, s.SetRules([]Rule{
		{Source: "extension", Target: "network", Operation: "*", Allow: true},
		{Source: "extension", Operation: "network.*", Allow: false},
		{Target: "trace", Operation: "trace.purge", Allow: false},
	}))

	tests := []struct {
		name               string
		source, target, op string
		allowed            bool
	}{
		{"explicit allow before deny", "extension", "network", "network.connect", true},
		{"deny by operation prefix", "extension", "collab", "network.connect", false},
		{"deny on any source", "core", "trace", "trace.purge", false},
		{"unmatched falls back to default", "core", "trace", "trace.read", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Authorize(tt.source, tt.target, tt.op)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, errors.ErrAccessDenied))
			}
		})
	}

	stats := s.Stats()
	assert.Equal(t, 3, stats.Rules)
	assert.Equal(t, int64(2), stats.Allowed)
	assert.Equal(t, int64(2), stats.Denied)
}

func TestSecurityManager_InvalidRuleLeavesRulesUnchanged(t *testing.T) {
	s := NewSecurityManager(true, nil)
	require.NoError(t, s.AddRule(Rule{Source: "plan", Allow: false}))

	err := s.SetRules([]Rule{{Source: "[unterminated"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
	assert.Len(t, s.Rules(), 1)

	assert.Error(t, s.AddRule(Rule{Operation: "[a-"}))
	assert.Len(t, s.Rules(), 1)
}

func TestSecurityManager_SetDefaultAllow(t *testing.T) {
	s := NewSecurityManager(true, nil)
	require.NoError(t, s.SetRules([]Rule{{Target: "trace", Allow: true}}))

	s.SetDefaultAllow(false)
	assert.False(t, s.Stats().DefaultAllow)
	assert.True(t, errors.Is(s.Authorize("core", "plan", "workflow.execute"), errors.ErrAccessDenied))
	assert.NoError(t, s.Authorize("core", "trace", "workflow.execute"))

	s.SetDefaultAllow(true)
	assert.NoError(t, s.Authorize("core", "plan", "workflow.execute"))
}
