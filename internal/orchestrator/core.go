package orchestrator

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Iron-Ham/mplp/internal/concerns"
	"github.com/Iron-Ham/mplp/internal/coordinator"
	"github.com/Iron-Ham/mplp/internal/errors"
	"github.com/Iron-Ham/mplp/internal/logging"
	"github.com/Iron-Ham/mplp/internal/resource"
	"github.com/Iron-Ham/mplp/internal/workflow"
)

// Component names used when reporting recovered failures.
const (
	componentMonitoring    = "monitoring"
	componentResources     = "resources"
	componentOrchestration = "orchestration"
	componentWorkflow      = "workflow"
)

// CreateParams describes a workflow to create with full coordination.
// Monitoring and resource tracking are on unless skipped.
type CreateParams struct {
	workflow.CreateRequest

	SkipMonitoring       bool
	SkipResourceTracking bool
}

// Result is recomputed on every orchestration call and never stored.
type Result struct {
	Workflow            *workflow.Workflow `json:"workflow"`
	MonitoringEnabled   bool               `json:"monitoring_enabled"`
	ResourcesAllocated  bool               `json:"resources_allocated"`
	OrchestrationActive bool               `json:"orchestration_active"`
	HealthStatus        HealthStatus       `json:"health_status"`
}

// Overview summarizes every workflow the orchestrator knows about.
type Overview struct {
	TotalWorkflows      int                   `json:"total_workflows"`
	ActiveWorkflows     int                   `json:"active_workflows"`
	MonitoredWorkflows  int                   `json:"monitored_workflows"`
	ResourceUtilization resource.Utilization  `json:"resource_utilization"`
	SystemHealth        concerns.SystemHealth `json:"system_health"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithErrorReporter sets where recovered sub-step failures are reported.
func WithErrorReporter(r ErrorReporter) Option {
	return func(o *Orchestrator) { o.reporter = r }
}

// WithStateRecorder publishes each result under workflow/<id>/health.
func WithStateRecorder(s StateRecorder) Option {
	return func(o *Orchestrator) { o.state = s }
}

// WithTracer sets the tracer. The default comes from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// Orchestrator sequences the four services for each workflow operation. It
// holds no lock of its own; ordering per workflow follows the caller.
type Orchestrator struct {
	workflows     WorkflowService
	monitoring    MonitoringService
	resources     ResourceService
	orchestration OrchestrationService

	reporter ErrorReporter
	state    StateRecorder
	tracer   trace.Tracer
	logger   *logging.Logger
}

// New creates an Orchestrator.
func New(wfs WorkflowService, mon MonitoringService, res ResourceService, orch OrchestrationService, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		workflows:     wfs,
		monitoring:    mon,
		resources:     res,
		orchestration: orch,
		tracer:        otel.Tracer(concerns.InstrumentationName),
		logger:        logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.WithComponent("orchestrator")
	return o
}

// HealthKey is the shared-state key holding a workflow's latest result.
func HealthKey(workflowID string) string {
	return fmt.Sprintf("workflow/%s/health", workflowID)
}

// CreateWorkflowWithFullCoordination creates a workflow, then in order starts
// monitoring, allocates resources and activates orchestration. Only a
// failure to create the workflow is returned; the other steps record false
// in the result when they fail.
func (o *Orchestrator) CreateWorkflowWithFullCoordination(ctx context.Context, p CreateParams) (*Result, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.CreateWorkflow",
		trace.WithAttributes(
			attribute.Bool("monitoring.skip", p.SkipMonitoring),
			attribute.Bool("resources.skip", p.SkipResourceTracking),
		))
	defer span.End()

	wf, err := o.workflows.Create(ctx, p.CreateRequest)
	if err != nil {
		o.logger.Error("workflow creation failed", "error", err)
		o.report(ctx, componentWorkflow, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "create workflow")
		return nil, err
	}
	span.SetAttributes(attribute.String("workflow.id", wf.ID))
	log := o.logger.WithWorkflow(wf.ID)

	res := &Result{Workflow: wf}

	if !p.SkipMonitoring {
		if err := o.monitoring.StartMonitoring(ctx, wf.ID); err != nil {
			o.degrade(ctx, log, componentMonitoring, "monitoring not started", err)
		} else {
			res.MonitoringEnabled = true
		}
	}

	if !p.SkipResourceTracking {
		if _, err := o.resources.Allocate(ctx, wf.ID, resource.Request{Priority: wf.Config.Priority}); err != nil {
			o.degrade(ctx, log, componentResources, "resources not allocated", err)
		} else {
			res.ResourcesAllocated = true
		}
	}

	if err := o.orchestration.ActivateOrchestration(ctx, wf); err != nil {
		o.degrade(ctx, log, componentOrchestration, "orchestration not activated", err)
	} else {
		res.OrchestrationActive = true
	}

	res.HealthStatus = ComputeHealth(res.MonitoringEnabled, res.ResourcesAllocated, res.OrchestrationActive)
	o.finish(span, res)
	log.Info("workflow created",
		"monitoring", res.MonitoringEnabled,
		"resources", res.ResourcesAllocated,
		"orchestration", res.OrchestrationActive,
		"health", res.HealthStatus)
	return res, nil
}

// ExecuteWorkflowWithCoordination runs a workflow. The workflow is refreshed
// first, which creates it from defaults if an earlier create never produced
// it. For an active workflow, a missing orchestration is activated and
// workflow.execute is sent to every stage. Stages still pending afterwards
// are marked dispatched, or failed if their module rejected the operation.
func (o *Orchestrator) ExecuteWorkflowWithCoordination(ctx context.Context, workflowID string) (*Result, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.ExecuteWorkflow",
		trace.WithAttributes(attribute.String("workflow.id", workflowID)))
	defer span.End()
	log := o.logger.WithWorkflow(workflowID)

	wf, err := o.workflows.Refresh(ctx, workflowID)
	if err != nil {
		log.Error("workflow refresh failed", "error", err)
		o.report(ctx, componentWorkflow, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh workflow")
		return nil, err
	}

	if !wf.Status.IsTerminal() {
		if !o.orchestration.IsOrchestrationActive(workflowID) {
			if err := o.orchestration.ActivateOrchestration(ctx, wf); err != nil {
				o.degrade(ctx, log, componentOrchestration, "orchestration not activated", err)
			}
		}
		dispatches, err := o.orchestration.NotifyWorkflow(ctx, wf, coordinator.OpWorkflowExecute)
		if err != nil {
			o.degrade(ctx, log, componentOrchestration, "stage notification incomplete", err)
		}
		o.recordDispatches(ctx, log, workflowID, dispatches)
	}

	if latest, err := o.workflows.Get(ctx, workflowID); err == nil {
		wf = latest
	}

	res := o.snapshot(wf)
	o.finish(span, res)
	log.Info("workflow executed", "status", wf.Status, "health", res.HealthStatus)
	return res, nil
}

func (o *Orchestrator) recordDispatches(ctx context.Context, log *logging.Logger, workflowID string, dispatches []coordinator.Dispatch) {
	if len(dispatches) == 0 {
		return
	}
	current, err := o.workflows.Get(ctx, workflowID)
	if err != nil {
		return
	}
	for _, d := range dispatches {
		if current.Status.IsTerminal() {
			return
		}
		step, ok := current.Step(d.Target)
		if !ok || step.Status != workflow.StepPending {
			continue
		}
		status, msg := workflow.StepDispatched, ""
		if d.Err != nil {
			status, msg = workflow.StepFailed, d.Err.Error()
		}
		if err := o.workflows.RecordStep(ctx, workflowID, d.Target, status, msg); err != nil {
			log.Debug("step not recorded", "stage", d.Target, "error", err)
			continue
		}
		if status == workflow.StepFailed {
			current.Status = workflow.StatusFailed
		}
	}
}

// StopWorkflowWithCoordination sends workflow.stop to the workflow's stages,
// then stops monitoring, releases resources and marks the workflow stopped.
// It returns false for an unknown workflow or when the coordinator refuses
// the stop. Calling it again on a stopped workflow returns true.
func (o *Orchestrator) StopWorkflowWithCoordination(ctx context.Context, workflowID string) (stopped bool) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.StopWorkflow",
		trace.WithAttributes(attribute.String("workflow.id", workflowID)))
	defer span.End()
	log := o.logger.WithWorkflow(workflowID)

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic during stop: %v", r)
			log.Error("workflow stop panicked", "panic", r)
			o.report(ctx, componentOrchestration, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "panic")
			stopped = false
		}
		span.SetAttributes(attribute.Bool("workflow.stopped", stopped))
	}()

	if _, err := o.workflows.Get(ctx, workflowID); err != nil {
		log.Debug("stop requested for unknown workflow", "error", err)
		return false
	}

	if err := o.orchestration.StopOrchestration(ctx, workflowID); err != nil {
		log.Warn("coordinator refused stop", "error", err)
		o.report(ctx, componentOrchestration, err)
		return false
	}

	if err := o.monitoring.StopMonitoring(ctx, workflowID); err != nil {
		log.Warn("monitoring not stopped", "error", err)
	}
	o.resources.Release(ctx, workflowID)
	if err := o.workflows.MarkStopped(ctx, workflowID); err != nil {
		log.Warn("workflow not marked stopped", "error", err)
	}

	if o.state != nil {
		o.state.Set(HealthKey(workflowID), map[string]any{"status": "stopped"})
	}
	log.Info("workflow stopped")
	return true
}

// CoordinationOverview aggregates workflow statistics, system health and
// resource utilization. A statistics failure is returned; a health failure
// leaves SystemHealth as an unknown snapshot.
func (o *Orchestrator) CoordinationOverview(ctx context.Context) (*Overview, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.CoordinationOverview")
	defer span.End()

	stats, err := o.workflows.Statistics(ctx)
	if err != nil {
		o.logger.Error("workflow statistics unavailable", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "statistics")
		return nil, errors.Wrap(err, "workflow statistics")
	}

	health, err := o.monitoring.SystemHealth(ctx)
	if err != nil {
		o.logger.Warn("system health unavailable", "error", err)
		health = concerns.SystemHealth{Status: concerns.SystemUnknown}
	}

	return &Overview{
		TotalWorkflows:      stats.Total,
		ActiveWorkflows:     stats.Active,
		MonitoredWorkflows:  o.monitoring.MonitoredCount(),
		ResourceUtilization: o.resources.Utilization(),
		SystemHealth:        health,
	}, nil
}

// snapshot recomputes the result flags from the services.
func (o *Orchestrator) snapshot(wf *workflow.Workflow) *Result {
	res := &Result{
		Workflow:            wf,
		MonitoringEnabled:   o.monitoring.IsMonitoring(wf.ID),
		ResourcesAllocated:  o.resources.HasAllocation(wf.ID),
		OrchestrationActive: o.orchestration.IsOrchestrationActive(wf.ID),
	}
	res.HealthStatus = ComputeHealth(res.MonitoringEnabled, res.ResourcesAllocated, res.OrchestrationActive)
	return res
}

func (o *Orchestrator) degrade(ctx context.Context, log *logging.Logger, component, msg string, err error) {
	log.Warn(msg, "component", component, "error", err)
	o.report(ctx, component, err)
}

func (o *Orchestrator) report(ctx context.Context, component string, err error) {
	if o.reporter != nil {
		o.reporter.Report(ctx, component, err)
	}
}

func (o *Orchestrator) finish(span trace.Span, res *Result) {
	span.SetAttributes(
		attribute.String("workflow.health", string(res.HealthStatus)),
		attribute.Bool("workflow.monitoring", res.MonitoringEnabled),
		attribute.Bool("workflow.resources", res.ResourcesAllocated),
		attribute.Bool("workflow.orchestration", res.OrchestrationActive),
	)
	if o.state == nil || res.Workflow == nil {
		return
	}
	o.state.Set(HealthKey(res.Workflow.ID), map[string]any{
		"status":        string(res.HealthStatus),
		"monitoring":    res.MonitoringEnabled,
		"resources":     res.ResourcesAllocated,
		"orchestration": res.OrchestrationActive,
	})
}
