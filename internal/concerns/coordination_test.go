package concerns

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/mplp/internal/errors"
	"github.com/Iron-Ham/mplp/internal/protocol"
)

type endpointFunc func(ctx context.Context, source string, msg protocol.Message) (*protocol.Message, error)

func (f endpointFunc) ReceiveMessage(ctx context.Context, source string, msg protocol.Message) (*protocol.Message, error) {
	return f(ctx, source, msg)
}

func echoEndpoint(name string) endpointFunc {
	return func(_ context.Context, _ string, msg protocol.Message) (*protocol.Message, error) {
		return msg.Reply(name, msg.Type+".ok", nil), nil
	}
}

func TestCoordinationManager_Register(t *testing.T) {
	c := NewCoordinationManager(0, nil)

	require.NoError(t, c.Register("plan", echoEndpoint("plan")))
	err := c.Register("plan", echoEndpoint("plan"))
	assert.True(t, errors.Is(err, &errors.AlreadyExistsError{}))
	assert.Error(t, c.Register("", echoEndpoint("x")))
	assert.Error(t, c.Register(protocol.Broadcast, echoEndpoint("x")))

	require.NoError(t, c.Register("context", echoEndpoint("context")))
	assert.Equal(t, []string{"context", "plan"}, c.Endpoints())

	assert.True(t, c.Unregister("plan"))
	assert.False(t, c.Unregister("plan"))
	_, ok := c.Endpoint("plan")
	assert.False(t, ok)
}

func TestCoordinationManager_Dispatch(t *testing.T) {
	ctx := context.Background()
	c := NewCoordinationManager(0, nil)
	require.NoError(t, c.Register("plan", echoEndpoint("plan")))

	msg := protocol.NewMessage("workflow.execute", nil)
	msg.WorkflowID = "wf-1"
	reply, err := c.Dispatch(ctx, "core", "plan", msg)
	require.NoError(t, err)
	assert.Equal(t, "workflow.execute.ok", reply.Type)
	assert.Equal(t, "core", reply.Target)
	assert.Equal(t, "wf-1", reply.WorkflowID)

	_, err = c.Dispatch(ctx, "core", "ghost", msg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrModuleUnavailable))

	stats := c.Stats()["plan"]
	assert.Equal(t, int64(1), stats.Dispatched)
	assert.Zero(t, stats.Failed)
}

func TestCoordinationManager_DispatchFailureAndTimeout(t *testing.T) {
	c := NewCoordinationManager(10*time.Millisecond, nil)
	require.NoError(t, c.Register("slow", endpointFunc(func(ctx context.Context, _ string, _ protocol.Message) (*protocol.Message, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})))
	require.NoError(t, c.Register("broken", endpointFunc(func(context.Context, string, protocol.Message) (*protocol.Message, error) {
		return nil, fmt.Errorf("broken")
	})))

	_, err := c.Dispatch(context.Background(), "core", "slow", protocol.NewMessage("x", nil))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = c.Dispatch(context.Background(), "core", "broken", protocol.NewMessage("x", nil))
	assert.EqualError(t, err, "broken")
	assert.Equal(t, int64(1), c.Stats()["broken"].Failed)
}

func TestCoordinationManager_Broadcast(t *testing.T) {
	c := NewCoordinationManager(0, nil)
	var seen []string
	for _, name := range []string{"context", "plan", "trace"} {
		name := name
		require.NoError(t, c.Register(name, endpointFunc(func(_ context.Context, source string, msg protocol.Message) (*protocol.Message, error) {
			seen = append(seen, name)
			if name == "trace" {
				return nil, fmt.Errorf("trace down")
			}
			return nil, nil
		})))
	}

	err := c.Broadcast(context.Background(), "plan", protocol.NewMessage("plan.updated", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trace down")
	assert.Equal(t, []string{"context", "trace"}, seen)
}

func TestRouteStats_AverageLatency(t *testing.T) {
	assert.Zero(t, RouteStats{}.AverageLatency())
	assert.Equal(t, 5*time.Millisecond, RouteStats{Dispatched: 2, TotalLatency: 10 * time.Millisecond}.AverageLatency())
}
