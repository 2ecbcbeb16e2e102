package coordinator

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/mplp/internal/concerns"
	"github.com/Iron-Ham/mplp/internal/errors"
	"github.com/Iron-Ham/mplp/internal/event"
	"github.com/Iron-Ham/mplp/internal/protocol"
	"github.com/Iron-Ham/mplp/internal/workflow"
)

// recorder is an endpoint that remembers what it received.
type recorder struct {
	mu       sync.Mutex
	name     string
	received []protocol.Message
	fail     error
}

func (r *recorder) ReceiveMessage(_ context.Context, _ string, msg protocol.Message) (*protocol.Message, error) {
	r.mu.Lock()
	r.received = append(r.received, msg)
	r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}
	return msg.Reply(r.name, msg.Type+".ack", nil), nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.received))
	for i, m := range r.received {
		out[i] = m.Type
	}
	return out
}

type fixture struct {
	coord    *Coordinator
	managers *concerns.Managers
	mu       sync.Mutex
	ops      []event.ModuleOperationEvent
	eps      map[string]*recorder
}

func newFixture(t *testing.T, rules []concerns.Rule, endpoints ...string) *fixture {
	t.Helper()
	bus := event.NewBus(nil)
	m, err := concerns.NewManagers(concerns.Options{Bus: bus, Rules: rules})
	require.NoError(t, err)

	f := &fixture{coord: New(m, nil), managers: m, eps: make(map[string]*recorder)}
	bus.Subscribe(event.TypeModuleOperation, func(e event.Event) {
		f.mu.Lock()
		f.ops = append(f.ops, e.(event.ModuleOperationEvent))
		f.mu.Unlock()
	})
	for _, name := range endpoints {
		r := &recorder{name: name}
		require.NoError(t, m.Coordination.Register(name, r))
		f.eps[name] = r
	}
	return f
}

func testWorkflow(id string, parallel bool, stages ...string) *workflow.Workflow {
	return &workflow.Workflow{
		ID:            id,
		Config:        workflow.Config{Stages: stages, ParallelExecution: parallel},
		CoreOperation: "summarize",
	}
}

func TestCoordinateModuleOperation(t *testing.T) {
	f := newFixture(t, nil, "plan")

	reply, err := f.coord.CoordinateModuleOperation(context.Background(), Operation{
		Target:     "plan",
		Operation:  "plan.create",
		WorkflowID: "wf-1",
		Payload:    map[string]any{"goal": "ship"},
	})
	require.NoError(t, err)
	assert.Equal(t, "plan.create.ack", reply.Type)

	require.Len(t, f.eps["plan"].received, 1)
	got := f.eps["plan"].received[0]
	assert.Equal(t, CoreSource, got.Source)
	assert.Equal(t, "wf-1", got.WorkflowID)
	assert.Equal(t, "ship", got.Payload["goal"])

	require.Len(t, f.ops, 1)
	assert.Equal(t, CoreSource, f.ops[0].Source)
	assert.True(t, f.ops[0].Success)
	assert.Equal(t, int64(1), f.managers.Performance.Stats().Operations)
}

func TestCoordinateModuleOperation_DeniedPublishesOnce(t *testing.T) {
	f := newFixture(t, []concerns.Rule{{Target: "confirm", Allow: false}}, "confirm")

	_, err := f.coord.CoordinateModuleOperation(context.Background(), Operation{
		Source: "plan", Target: "confirm", Operation: "confirm.request",
	})
	assert.True(t, errors.Is(err, errors.ErrAccessDenied))
	assert.Empty(t, f.eps["confirm"].received)

	require.Len(t, f.ops, 1)
	assert.False(t, f.ops[0].Success)
	assert.NotEmpty(t, f.ops[0].Error)
}

func TestCoordinateModuleOperation_WrapsEndpointErrors(t *testing.T) {
	f := newFixture(t, nil, "trace")
	f.eps["trace"].fail = errors.New("disk full")

	_, err := f.coord.CoordinateModuleOperation(context.Background(), Operation{
		Target: "trace", Operation: "trace.write", WorkflowID: "wf-1",
	})
	var ce *errors.CoordinationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "trace", ce.Target)
	assert.Equal(t, "wf-1", ce.WorkflowID)

	_, err = f.coord.CoordinateModuleOperation(context.Background(), Operation{Target: "ghost", Operation: "x"})
	assert.True(t, errors.Is(err, errors.ErrModuleUnavailable))
}

func TestRoute(t *testing.T) {
	f := newFixture(t, nil, "context", "plan", "trace")
	ctx := context.Background()

	msg := protocol.NewMessage("context.updated", nil)
	msg.Target = "trace"
	require.NoError(t, f.coord.Route(ctx, "context", msg))
	assert.Equal(t, []string{"context.updated"}, f.eps["trace"].types())

	bcast := protocol.NewMessage("context.reset", nil)
	bcast.Target = protocol.Broadcast
	require.NoError(t, f.coord.Route(ctx, "context", bcast))
	assert.Empty(t, f.eps["context"].types())
	assert.Equal(t, []string{"context.reset"}, f.eps["plan"].types())
	assert.Equal(t, []string{"context.updated", "context.reset"}, f.eps["trace"].types())
}

func TestRoute_BroadcastDenied(t *testing.T) {
	f := newFixture(t, []concerns.Rule{{Target: protocol.Broadcast, Allow: false}}, "context", "plan")

	msg := protocol.NewMessage("context.reset", nil)
	msg.Target = protocol.Broadcast
	err := f.coord.Route(context.Background(), "context", msg)
	assert.True(t, errors.Is(err, errors.ErrAccessDenied))
	assert.Empty(t, f.eps["plan"].types())
}

func TestActivateOrchestration(t *testing.T) {
	f := newFixture(t, nil, "context", "plan")
	ctx := context.Background()

	err := f.coord.ActivateOrchestration(ctx, testWorkflow("wf-1", false, "context", "confirm"))
	assert.True(t, errors.Is(err, errors.ErrModuleUnavailable))
	assert.False(t, f.coord.IsOrchestrationActive("wf-1"))

	require.NoError(t, f.coord.ActivateOrchestration(ctx, testWorkflow("wf-1", false, "context", "plan")))
	assert.True(t, f.coord.IsOrchestrationActive("wf-1"))

	assert.Error(t, f.coord.ActivateOrchestration(ctx, nil))
}

func TestNotifyWorkflow(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		name := "sequential"
		if parallel {
			name = "parallel"
		}
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, nil, "context", "plan", "confirm")
			f.eps["plan"].fail = errors.New("no plan")

			wf := testWorkflow("wf-1", parallel, "context", "plan", "confirm")
			got, err := f.coord.NotifyWorkflow(context.Background(), wf, OpWorkflowExecute)
			assert.Error(t, err)
			require.Len(t, got, 3)

			assert.Equal(t, "context", got[0].Target)
			assert.NoError(t, got[0].Err)
			assert.Equal(t, "plan", got[1].Target)
			assert.Error(t, got[1].Err)
			assert.Equal(t, "confirm", got[2].Target)
			assert.NoError(t, got[2].Err)

			msg := f.eps["confirm"].received[0]
			assert.Equal(t, "confirm", msg.Payload["stage"])
			assert.Equal(t, "summarize", msg.Payload["operation"])
		})
	}
}

func TestStopOrchestration(t *testing.T) {
	f := newFixture(t, nil, "context", "plan")
	ctx := context.Background()

	require.NoError(t, f.coord.StopOrchestration(ctx, "wf-1"))
	assert.Empty(t, f.eps["context"].types())

	require.NoError(t, f.coord.ActivateOrchestration(ctx, testWorkflow("wf-1", false, "context", "plan")))
	f.eps["plan"].fail = errors.New("busy")

	require.NoError(t, f.coord.StopOrchestration(ctx, "wf-1"))
	assert.Equal(t, []string{OpWorkflowStop}, f.eps["context"].types())
	assert.Equal(t, []string{OpWorkflowStop}, f.eps["plan"].types())
	assert.False(t, f.coord.IsOrchestrationActive("wf-1"))
}

func TestStopOrchestration_Denied(t *testing.T) {
	f := newFixture(t, []concerns.Rule{{Operation: OpWorkflowStop, Allow: false}}, "context")
	ctx := context.Background()

	require.NoError(t, f.coord.ActivateOrchestration(ctx, testWorkflow("wf-1", false, "context")))
	err := f.coord.StopOrchestration(ctx, "wf-1")
	assert.True(t, errors.Is(err, errors.ErrAccessDenied))
	assert.True(t, f.coord.IsOrchestrationActive("wf-1"))
}

func TestNotifyWorkflow_ParallelJoinsFailures(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, nil, "context", "plan", "confirm")
	got, err := f.coord.NotifyWorkflow(ctx, testWorkflow("wf-1", true, "context", "plan", "confirm"), OpWorkflowExecute)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for _, d := range got {
		require.NotNil(t, d.Reply, d.Target)
		assert.Equal(t, OpWorkflowExecute+".ack", d.Reply.Type)
	}

	planErr := errors.New("no plan")
	confirmErr := errors.New("no approver")
	f.eps["plan"].fail = planErr
	f.eps["confirm"].fail = confirmErr
	got, err = f.coord.NotifyWorkflow(ctx, testWorkflow("wf-2", true, "context", "plan", "confirm"), OpWorkflowExecute)
	require.Error(t, err)
	assert.True(t, errors.Is(err, planErr))
	assert.True(t, errors.Is(err, confirmErr))
	assert.NoError(t, got[0].Err)
}
