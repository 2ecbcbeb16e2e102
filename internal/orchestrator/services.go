// Package orchestrator is the runtime's top-level façade. It creates,
// executes and stops workflows by sequencing the workflow, monitoring,
// resource and orchestration services, and reduces their outcomes to a
// single health verdict.
package orchestrator

import (
	"context"

	"github.com/Iron-Ham/mplp/internal/concerns"
	"github.com/Iron-Ham/mplp/internal/coordinator"
	"github.com/Iron-Ham/mplp/internal/resource"
	"github.com/Iron-Ham/mplp/internal/workflow"
)

// WorkflowService materializes and tracks workflows.
type WorkflowService interface {
	// Create builds and stores a workflow.
	Create(ctx context.Context, req workflow.CreateRequest) (*workflow.Workflow, error)

	// Get returns a copy of a workflow or a NotFoundError.
	Get(ctx context.Context, id string) (*workflow.Workflow, error)

	// Refresh returns the workflow, creating it from defaults if it does not
	// exist and moving a created workflow to running.
	Refresh(ctx context.Context, id string) (*workflow.Workflow, error)

	// MarkStopped moves an active workflow to stopped.
	MarkStopped(ctx context.Context, id string) error

	// RecordStep updates the state of one stage.
	RecordStep(ctx context.Context, id, stage string, status workflow.StepStatus, errMsg string) error

	// Statistics counts workflows.
	Statistics(ctx context.Context) (workflow.Statistics, error)
}

// MonitoringService tracks which workflows are monitored.
type MonitoringService interface {
	StartMonitoring(ctx context.Context, workflowID string) error
	StopMonitoring(ctx context.Context, workflowID string) error
	IsMonitoring(workflowID string) bool
	MonitoredCount() int

	// SystemHealth returns a point-in-time health snapshot.
	SystemHealth(ctx context.Context) (concerns.SystemHealth, error)
}

// ResourceService reserves resources for workflows.
type ResourceService interface {
	Allocate(ctx context.Context, workflowID string, req resource.Request) (*resource.Allocation, error)
	Release(ctx context.Context, workflowID string) bool
	HasAllocation(workflowID string) bool
	Utilization() resource.Utilization
}

// OrchestrationService notifies stage modules about workflow operations.
type OrchestrationService interface {
	ActivateOrchestration(ctx context.Context, wf *workflow.Workflow) error
	NotifyWorkflow(ctx context.Context, wf *workflow.Workflow, operation string) ([]coordinator.Dispatch, error)
	StopOrchestration(ctx context.Context, workflowID string) error
	IsOrchestrationActive(workflowID string) bool
}

// ErrorReporter receives recovered sub-step failures.
type ErrorReporter interface {
	Report(ctx context.Context, component string, err error)
}

// StateRecorder publishes per-workflow outcomes to shared state.
type StateRecorder interface {
	Set(key string, value any) concerns.StateEntry
}

// Compile-time checks that the runtime components satisfy the interfaces.
var (
	_ WorkflowService      = (*workflow.Manager)(nil)
	_ MonitoringService    = (*concerns.PerformanceManager)(nil)
	_ ResourceService      = (*resource.Manager)(nil)
	_ OrchestrationService = (*coordinator.Coordinator)(nil)
	_ ErrorReporter        = (*concerns.ErrorHandlingManager)(nil)
	_ StateRecorder        = (*concerns.StateSyncManager)(nil)
)
