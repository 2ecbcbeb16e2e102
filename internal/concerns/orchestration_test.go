package concerns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrchestrationManager(t *testing.T) {
	o := NewOrchestrationManager()
	assert.False(t, o.IsActive("wf-1"))
	assert.Nil(t, o.Targets("wf-1"))

	targets := []string{"context", "plan"}
	o.Activate("wf-2", targets)
	o.Activate("wf-1", []string{"trace"})
	targets[0] = "mutated"

	rec, ok := o.Get("wf-2")
	require.True(t, ok)
	assert.Equal(t, []string{"context", "plan"}, rec.Targets)
	assert.False(t, rec.ActivatedAt.IsZero())

	list := o.List()
	require.Len(t, list, 2)
	assert.Equal(t, "wf-1", list[0].WorkflowID)
	assert.Equal(t, "wf-2", list[1].WorkflowID)

	o.Activate("wf-1", []string{"confirm"})
	assert.Equal(t, []string{"confirm"}, o.Targets("wf-1"))
	assert.Equal(t, 2, o.ActiveCount())

	assert.True(t, o.Deactivate("wf-1"))
	assert.False(t, o.Deactivate("wf-1"))
	assert.Equal(t, 1, o.ActiveCount())
}
