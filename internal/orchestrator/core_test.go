package orchestrator

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Iron-Ham/mplp/internal/concerns"
	"github.com/Iron-Ham/mplp/internal/coordinator"
	"github.com/Iron-Ham/mplp/internal/errors"
	"github.com/Iron-Ham/mplp/internal/resource"
	"github.com/Iron-Ham/mplp/internal/workflow"
)

type mockWorkflows struct{ mock.Mock }

func (m *mockWorkflows) Create(ctx context.Context, req workflow.CreateRequest) (*workflow.Workflow, error) {
	args := m.Called(ctx, req)
	wf, _ := args.Get(0).(*workflow.Workflow)
	return wf, args.Error(1)
}

func (m *mockWorkflows) Get(ctx context.Context, id string) (*workflow.Workflow, error) {
	args := m.Called(ctx, id)
	wf, _ := args.Get(0).(*workflow.Workflow)
	return wf, args.Error(1)
}

func (m *mockWorkflows) Refresh(ctx context.Context, id string) (*workflow.Workflow, error) {
	args := m.Called(ctx, id)
	wf, _ := args.Get(0).(*workflow.Workflow)
	return wf, args.Error(1)
}

func (m *mockWorkflows) MarkStopped(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockWorkflows) RecordStep(ctx context.Context, id, stage string, status workflow.StepStatus, errMsg string) error {
	return m.Called(ctx, id, stage, status, errMsg).Error(0)
}

func (m *mockWorkflows) Statistics(ctx context.Context) (workflow.Statistics, error) {
	args := m.Called(ctx)
	return args.Get(0).(workflow.Statistics), args.Error(1)
}

type mockMonitoring struct{ mock.Mock }

func (m *mockMonitoring) StartMonitoring(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockMonitoring) StopMonitoring(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockMonitoring) IsMonitoring(id string) bool { return m.Called(id).Bool(0) }

func (m *mockMonitoring) MonitoredCount() int { return m.Called().Int(0) }

func (m *mockMonitoring) SystemHealth(ctx context.Context) (concerns.SystemHealth, error) {
	args := m.Called(ctx)
	return args.Get(0).(concerns.SystemHealth), args.Error(1)
}

type mockResources struct{ mock.Mock }

func (m *mockResources) Allocate(ctx context.Context, id string, req resource.Request) (*resource.Allocation, error) {
	args := m.Called(ctx, id, req)
	a, _ := args.Get(0).(*resource.Allocation)
	return a, args.Error(1)
}

func (m *mockResources) Release(ctx context.Context, id string) bool { return m.Called(ctx, id).Bool(0) }

func (m *mockResources) HasAllocation(id string) bool { return m.Called(id).Bool(0) }

func (m *mockResources) Utilization() resource.Utilization {
	return m.Called().Get(0).(resource.Utilization)
}

type mockOrchestration struct{ mock.Mock }

func (m *mockOrchestration) ActivateOrchestration(ctx context.Context, wf *workflow.Workflow) error {
	return m.Called(ctx, wf).Error(0)
}

func (m *mockOrchestration) NotifyWorkflow(ctx context.Context, wf *workflow.Workflow, op string) ([]coordinator.Dispatch, error) {
	args := m.Called(ctx, wf, op)
	d, _ := args.Get(0).([]coordinator.Dispatch)
	return d, args.Error(1)
}

func (m *mockOrchestration) StopOrchestration(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockOrchestration) IsOrchestrationActive(id string) bool { return m.Called(id).Bool(0) }

type mockReporter struct{ mock.Mock }

func (m *mockReporter) Report(ctx context.Context, component string, err error) {
	m.Called(ctx, component, err)
}

type fixture struct {
	wfs  *mockWorkflows
	mon  *mockMonitoring
	res  *mockResources
	orch *mockOrchestration
	rep  *mockReporter
	o    *Orchestrator
}

func newFixture(opts ...Option) *fixture {
	f := &fixture{
		wfs:  &mockWorkflows{},
		mon:  &mockMonitoring{},
		res:  &mockResources{},
		orch: &mockOrchestration{},
		rep:  &mockReporter{},
	}
	opts = append([]Option{WithErrorReporter(f.rep), WithTracer(noop.NewTracerProvider().Tracer("test"))}, opts...)
	f.o = New(f.wfs, f.mon, f.res, f.orch, opts...)
	return f
}

func testWorkflow(id string) *workflow.Workflow {
	return &workflow.Workflow{
		ID:     id,
		Status: workflow.StatusCreated,
		Config: workflow.Config{Stages: []string{"context", "plan"}, Priority: "normal"},
		Steps: []workflow.StepState{
			{Stage: "context", Status: workflow.StepPending},
			{Stage: "plan", Status: workflow.StepPending},
		},
	}
}

func TestComputeHealth_AllCombinations(t *testing.T) {
	for i := 0; i < 8; i++ {
		m, r, o := i&1 != 0, i&2 != 0, i&4 != 0
		t.Run(fmt.Sprintf("monitoring=%t/resources=%t/orchestration=%t", m, r, o), func(t *testing.T) {
			n := 0
			for _, b := range []bool{m, r, o} {
				if b {
					n++
				}
			}
			want := HealthCritical
			switch n {
			case 3:
				want = HealthHealthy
			case 2:
				want = HealthWarning
			}
			assert.Equal(t, want, ComputeHealth(m, r, o))
		})
	}
}

func TestCreateWorkflow_AllStepsSucceed(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	wf := testWorkflow("wf-1")

	f.wfs.On("Create", mock.Anything, mock.Anything).Return(wf, nil)
	f.mon.On("StartMonitoring", mock.Anything, "wf-1").Return(nil)
	f.res.On("Allocate", mock.Anything, "wf-1", resource.Request{Priority: "normal"}).Return(&resource.Allocation{ID: "a1"}, nil)
	f.orch.On("ActivateOrchestration", mock.Anything, wf).Return(nil)

	res, err := f.o.CreateWorkflowWithFullCoordination(ctx, CreateParams{})
	require.NoError(t, err)
	assert.Same(t, wf, res.Workflow)
	assert.True(t, res.MonitoringEnabled)
	assert.True(t, res.ResourcesAllocated)
	assert.True(t, res.OrchestrationActive)
	assert.Equal(t, HealthHealthy, res.HealthStatus)

	f.wfs.AssertExpectations(t)
	f.mon.AssertExpectations(t)
	f.res.AssertExpectations(t)
	f.orch.AssertExpectations(t)
	f.rep.AssertNotCalled(t, "Report", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateWorkflow_SkipMonitoringIsWarning(t *testing.T) {
	f := newFixture()
	wf := testWorkflow("wf-1")

	f.wfs.On("Create", mock.Anything, mock.Anything).Return(wf, nil)
	f.res.On("Allocate", mock.Anything, "wf-1", mock.Anything).Return(&resource.Allocation{ID: "a1"}, nil)
	f.orch.On("ActivateOrchestration", mock.Anything, wf).Return(nil)

	res, err := f.o.CreateWorkflowWithFullCoordination(context.Background(), CreateParams{
		CreateRequest:  workflow.CreateRequest{ID: "wf-1"},
		SkipMonitoring: true,
	})
	require.NoError(t, err)
	assert.False(t, res.MonitoringEnabled)
	assert.True(t, res.ResourcesAllocated)
	assert.True(t, res.OrchestrationActive)
	assert.Equal(t, HealthWarning, res.HealthStatus)
	f.mon.AssertNotCalled(t, "StartMonitoring", mock.Anything, mock.Anything)
}

func TestCreateWorkflow_SubStepFailuresDegrade(t *testing.T) {
	f := newFixture()
	wf := testWorkflow("wf-1")
	monErr := errors.NewMonitoringError("full", errors.ErrMonitoringCapacity)
	resErr := errors.NewAllocationError("no cpu", errors.ErrInsufficientCapacity)

	f.wfs.On("Create", mock.Anything, mock.Anything).Return(wf, nil)
	f.mon.On("StartMonitoring", mock.Anything, "wf-1").Return(monErr)
	f.res.On("Allocate", mock.Anything, "wf-1", mock.Anything).Return(nil, resErr)
	f.orch.On("ActivateOrchestration", mock.Anything, wf).Return(nil)
	f.rep.On("Report", mock.Anything, componentMonitoring, monErr).Once()
	f.rep.On("Report", mock.Anything, componentResources, resErr).Once()

	res, err := f.o.CreateWorkflowWithFullCoordination(context.Background(), CreateParams{})
	require.NoError(t, err)
	assert.False(t, res.MonitoringEnabled)
	assert.False(t, res.ResourcesAllocated)
	assert.True(t, res.OrchestrationActive)
	assert.Equal(t, HealthCritical, res.HealthStatus)
	f.rep.AssertExpectations(t)
}

func TestCreateWorkflow_CreateFailureIsReturned(t *testing.T) {
	f := newFixture()
	createErr := errors.NewValidationError("bad priority")
	f.wfs.On("Create", mock.Anything, mock.Anything).Return(nil, createErr)
	f.rep.On("Report", mock.Anything, componentWorkflow, createErr)

	res, err := f.o.CreateWorkflowWithFullCoordination(context.Background(), CreateParams{})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, createErr)
	f.mon.AssertNotCalled(t, "StartMonitoring", mock.Anything, mock.Anything)
	f.res.AssertNotCalled(t, "Allocate", mock.Anything, mock.Anything, mock.Anything)
	f.orch.AssertNotCalled(t, "ActivateOrchestration", mock.Anything, mock.Anything)
}

func TestCreateWorkflow_RecordsHealthState(t *testing.T) {
	state := concerns.NewStateSyncManager(nil, nil)
	f := newFixture(WithStateRecorder(state))
	wf := testWorkflow("wf-1")

	f.wfs.On("Create", mock.Anything, mock.Anything).Return(wf, nil)
	f.mon.On("StartMonitoring", mock.Anything, "wf-1").Return(nil)
	f.res.On("Allocate", mock.Anything, "wf-1", mock.Anything).Return(&resource.Allocation{}, nil)
	f.orch.On("ActivateOrchestration", mock.Anything, wf).Return(errors.New("no stages"))
	f.rep.On("Report", mock.Anything, componentOrchestration, mock.Anything)

	_, err := f.o.CreateWorkflowWithFullCoordination(context.Background(), CreateParams{})
	require.NoError(t, err)

	entry, ok := state.Get(HealthKey("wf-1"))
	require.True(t, ok)
	value := entry.Value.(map[string]any)
	assert.Equal(t, "warning", value["status"])
	assert.Equal(t, false, value["orchestration"])
}

func TestExecuteWorkflow_RecordsDispatches(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	running := testWorkflow("wf-1")
	running.Status = workflow.StatusRunning

	f.wfs.On("Refresh", mock.Anything, "wf-1").Return(running, nil)
	f.orch.On("IsOrchestrationActive", "wf-1").Return(true)
	f.orch.On("NotifyWorkflow", mock.Anything, running, coordinator.OpWorkflowExecute).Return([]coordinator.Dispatch{
		{Target: "context"},
		{Target: "plan", Err: errors.New("plan down")},
	}, errors.New("plan down"))
	f.rep.On("Report", mock.Anything, componentOrchestration, mock.Anything)
	f.wfs.On("Get", mock.Anything, "wf-1").Return(running, nil)
	f.wfs.On("RecordStep", mock.Anything, "wf-1", "context", workflow.StepDispatched, "").Return(nil).Once()
	f.wfs.On("RecordStep", mock.Anything, "wf-1", "plan", workflow.StepFailed, "plan down").Return(nil).Once()
	f.mon.On("IsMonitoring", "wf-1").Return(true)
	f.res.On("HasAllocation", "wf-1").Return(true)

	res, err := f.o.ExecuteWorkflowWithCoordination(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, HealthHealthy, res.HealthStatus)
	f.wfs.AssertExpectations(t)
	f.orch.AssertNotCalled(t, "ActivateOrchestration", mock.Anything, mock.Anything)
}

func TestExecuteWorkflow_MaterializesMissingWorkflow(t *testing.T) {
	f := newFixture()
	wf := testWorkflow("wf-lost")
	wf.Status = workflow.StatusRunning

	f.wfs.On("Refresh", mock.Anything, "wf-lost").Return(wf, nil)
	f.orch.On("IsOrchestrationActive", "wf-lost").Return(false).Once()
	f.orch.On("ActivateOrchestration", mock.Anything, wf).Return(nil)
	f.orch.On("NotifyWorkflow", mock.Anything, wf, coordinator.OpWorkflowExecute).Return([]coordinator.Dispatch{}, nil)
	f.wfs.On("Get", mock.Anything, "wf-lost").Return(wf, nil)
	f.orch.On("IsOrchestrationActive", "wf-lost").Return(true)
	f.mon.On("IsMonitoring", "wf-lost").Return(false)
	f.res.On("HasAllocation", "wf-lost").Return(false)

	res, err := f.o.ExecuteWorkflowWithCoordination(context.Background(), "wf-lost")
	require.NoError(t, err)
	assert.True(t, res.OrchestrationActive)
	assert.Equal(t, HealthCritical, res.HealthStatus)
	f.orch.AssertExpectations(t)
}

func TestExecuteWorkflow_RefreshFailure(t *testing.T) {
	f := newFixture()
	refreshErr := errors.NewValidationError("bad stages")
	f.wfs.On("Refresh", mock.Anything, "wf-1").Return(nil, refreshErr)
	f.rep.On("Report", mock.Anything, componentWorkflow, refreshErr)

	_, err := f.o.ExecuteWorkflowWithCoordination(context.Background(), "wf-1")
	assert.ErrorIs(t, err, refreshErr)
}

func TestExecuteWorkflow_TerminalWorkflowNotNotified(t *testing.T) {
	f := newFixture()
	wf := testWorkflow("wf-1")
	wf.Status = workflow.StatusStopped

	f.wfs.On("Refresh", mock.Anything, "wf-1").Return(wf, nil)
	f.wfs.On("Get", mock.Anything, "wf-1").Return(wf, nil)
	f.orch.On("IsOrchestrationActive", "wf-1").Return(false)
	f.mon.On("IsMonitoring", "wf-1").Return(false)
	f.res.On("HasAllocation", "wf-1").Return(false)

	res, err := f.o.ExecuteWorkflowWithCoordination(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusStopped, res.Workflow.Status)
	f.orch.AssertNotCalled(t, "NotifyWorkflow", mock.Anything, mock.Anything, mock.Anything)
	f.orch.AssertNotCalled(t, "ActivateOrchestration", mock.Anything, mock.Anything)
}

func TestStopWorkflow_Idempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	wf := testWorkflow("wf-1")

	f.wfs.On("Get", mock.Anything, "wf-1").Return(wf, nil)
	f.orch.On("StopOrchestration", mock.Anything, "wf-1").Return(nil)
	f.mon.On("StopMonitoring", mock.Anything, "wf-1").Return(nil)
	f.res.On("Release", mock.Anything, "wf-1").Return(true).Once()
	f.res.On("Release", mock.Anything, "wf-1").Return(false)
	f.wfs.On("MarkStopped", mock.Anything, "wf-1").Return(nil)

	assert.True(t, f.o.StopWorkflowWithCoordination(ctx, "wf-1"))
	assert.True(t, f.o.StopWorkflowWithCoordination(ctx, "wf-1"))
	f.wfs.AssertNumberOfCalls(t, "MarkStopped", 2)
}

func TestStopWorkflow_UnknownWorkflow(t *testing.T) {
	f := newFixture()
	f.wfs.On("Get", mock.Anything, "ghost").Return(nil, errors.NewNotFoundError("workflow", "ghost"))

	assert.False(t, f.o.StopWorkflowWithCoordination(context.Background(), "ghost"))
	assert.False(t, f.o.StopWorkflowWithCoordination(context.Background(), "ghost"))
	f.orch.AssertNotCalled(t, "StopOrchestration", mock.Anything, mock.Anything)
}

func TestStopWorkflow_CoordinatorRefuses(t *testing.T) {
	f := newFixture()
	denied := errors.NewCoordinationError("operation not permitted", errors.ErrAccessDenied)
	f.wfs.On("Get", mock.Anything, "wf-1").Return(testWorkflow("wf-1"), nil)
	f.orch.On("StopOrchestration", mock.Anything, "wf-1").Return(denied)
	f.rep.On("Report", mock.Anything, componentOrchestration, denied)

	assert.False(t, f.o.StopWorkflowWithCoordination(context.Background(), "wf-1"))
	f.wfs.AssertNotCalled(t, "MarkStopped", mock.Anything, mock.Anything)
}

func TestStopWorkflow_PanicIsContained(t *testing.T) {
	f := newFixture()
	f.wfs.On("Get", mock.Anything, "wf-1").Return(testWorkflow("wf-1"), nil)
	f.orch.On("StopOrchestration", mock.Anything, "wf-1").Return(nil)
	f.mon.On("StopMonitoring", mock.Anything, "wf-1").Run(func(mock.Arguments) { panic("boom") })
	f.rep.On("Report", mock.Anything, componentOrchestration, mock.Anything)

	assert.NotPanics(t, func() {
		assert.False(t, f.o.StopWorkflowWithCoordination(context.Background(), "wf-1"))
	})
}

func TestCoordinationOverview(t *testing.T) {
	f := newFixture()
	f.wfs.On("Statistics", mock.Anything).Return(workflow.Statistics{Total: 2, Active: 1}, nil)
	f.mon.On("SystemHealth", mock.Anything).Return(concerns.SystemHealth{Status: concerns.SystemHealthy}, nil)
	f.mon.On("MonitoredCount").Return(1)
	f.res.On("Utilization").Return(resource.Utilization{CPU: 0.25})

	ov, err := f.o.CoordinationOverview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, ov.TotalWorkflows)
	assert.Equal(t, 1, ov.ActiveWorkflows)
	assert.Equal(t, 1, ov.MonitoredWorkflows)
	assert.InDelta(t, 0.25, ov.ResourceUtilization.CPU, 1e-9)
	assert.Equal(t, concerns.SystemHealthy, ov.SystemHealth.Status)
}

func TestCoordinationOverview_HealthFailureDegrades(t *testing.T) {
	f := newFixture()
	f.wfs.On("Statistics", mock.Anything).Return(workflow.Statistics{Total: 1}, nil)
	f.mon.On("SystemHealth", mock.Anything).Return(concerns.SystemHealth{}, context.Canceled)
	f.mon.On("MonitoredCount").Return(0)
	f.res.On("Utilization").Return(resource.Utilization{})

	ov, err := f.o.CoordinationOverview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, concerns.SystemUnknown, ov.SystemHealth.Status)
}

func TestCoordinationOverview_StatisticsFailure(t *testing.T) {
	f := newFixture()
	statsErr := errors.New("store offline")
	f.wfs.On("Statistics", mock.Anything).Return(workflow.Statistics{}, statsErr)

	ov, err := f.o.CoordinationOverview(context.Background())
	assert.Nil(t, ov)
	assert.ErrorIs(t, err, statsErr)
}
