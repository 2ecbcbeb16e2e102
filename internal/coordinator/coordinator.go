// Package coordinator routes operations between protocol modules and tracks
// which workflows have an active orchestration.
package coordinator

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/mplp/internal/concerns"
	"github.com/Iron-Ham/mplp/internal/errors"
	"github.com/Iron-Ham/mplp/internal/event"
	"github.com/Iron-Ham/mplp/internal/logging"
	"github.com/Iron-Ham/mplp/internal/protocol"
	"github.com/Iron-Ham/mplp/internal/workflow"
)

// CoreSource is the source name used for operations issued by the runtime itself.
const CoreSource = "core"

// Workflow operations sent to stage modules.
const (
	OpWorkflowActivate = "workflow.activate"
	OpWorkflowExecute  = "workflow.execute"
	OpWorkflowStop     = "workflow.stop"
)

// Operation is one cross-module call.
type Operation struct {
	Source     string
	Target     string
	Operation  string
	WorkflowID string
	Payload    map[string]any
}

// Dispatch is the outcome of sending an operation to one stage module.
type Dispatch struct {
	Target string
	Reply  *protocol.Message
	Err    error
}

// Coordinator authorizes, routes and records module operations.
type Coordinator struct {
	security      *concerns.SecurityManager
	routes        *concerns.CoordinationManager
	events        *concerns.EventBusManager
	orchestration *concerns.OrchestrationManager
	performance   *concerns.PerformanceManager
	logger        *logging.Logger
}

// New creates a Coordinator over the given concern managers.
func New(m *concerns.Managers, logger *logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Coordinator{
		security:      m.Security,
		routes:        m.Coordination,
		events:        m.EventBus,
		orchestration: m.Orchestration,
		performance:   m.Performance,
		logger:        logger.WithComponent("coordinator"),
	}
}

// CoordinateModuleOperation authorizes op, dispatches it to its target and
// publishes a ModuleOperationEvent describing the outcome. The event is
// published exactly once per call, including on denial.
func (c *Coordinator) CoordinateModuleOperation(ctx context.Context, op Operation) (*protocol.Message, error) {
	if op.Source == "" {
		op.Source = CoreSource
	}
	start := time.Now()

	reply, err := c.coordinate(ctx, op)

	c.performance.RecordOperation(ctx, op.Operation, time.Since(start), err)
	c.events.Publish(event.NewModuleOperationEvent(op.Source, op.Target, op.Operation, op.WorkflowID, op.Payload, err))
	if err != nil {
		c.logger.Warn("module operation failed",
			"source", op.Source, "target", op.Target, "operation", op.Operation,
			"workflow_id", op.WorkflowID, "error", err)
	}
	return reply, err
}

func (c *Coordinator) coordinate(ctx context.Context, op Operation) (*protocol.Message, error) {
	if err := c.security.Authorize(op.Source, op.Target, op.Operation); err != nil {
		return nil, err
	}
	msg := protocol.NewMessage(op.Operation, op.Payload)
	msg.WorkflowID = op.WorkflowID
	reply, err := c.routes.Dispatch(ctx, op.Source, op.Target, msg)
	if err != nil {
		var ce *errors.CoordinationError
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, errors.NewCoordinationError("dispatch failed", err).
			WithRoute(op.Source, op.Target).
			WithOperation(op.Operation).
			WithWorkflowID(op.WorkflowID)
	}
	return reply, nil
}

// Route delivers a message sent by a module. It backs the module Outbox.
func (c *Coordinator) Route(ctx context.Context, source string, msg protocol.Message) error {
	if msg.Target == protocol.Broadcast {
		if err := c.security.Authorize(source, protocol.Broadcast, msg.Type); err != nil {
			return err
		}
		return c.routes.Broadcast(ctx, source, msg)
	}
	_, err := c.CoordinateModuleOperation(ctx, Operation{
		Source:     source,
		Target:     msg.Target,
		Operation:  msg.Type,
		WorkflowID: msg.WorkflowID,
		Payload:    msg.Payload,
	})
	return err
}

// ActivateOrchestration marks wf as orchestrated over its stages. Every stage
// must have a registered endpoint; otherwise nothing is activated.
func (c *Coordinator) ActivateOrchestration(ctx context.Context, wf *workflow.Workflow) error {
	if wf == nil {
		return errors.NewValidationError("nil workflow")
	}
	for _, stage := range wf.Config.Stages {
		if _, ok := c.routes.Endpoint(stage); !ok {
			return errors.NewCoordinationError("stage module not registered", errors.ErrModuleUnavailable).
				WithRoute(CoreSource, stage).
				WithOperation(OpWorkflowActivate).
				WithWorkflowID(wf.ID)
		}
	}
	c.orchestration.Activate(wf.ID, wf.Config.Stages)
	c.logger.WithWorkflow(wf.ID).Info("orchestration activated", "stages", wf.Config.Stages)
	return nil
}

// IsOrchestrationActive reports whether workflowID has an active orchestration.
func (c *Coordinator) IsOrchestrationActive(workflowID string) bool {
	return c.orchestration.IsActive(workflowID)
}

// NotifyWorkflow sends operation to every stage of wf. Sequential workflows
// notify stages in order; parallel workflows fan out. The returned slice is
// in stage order either way. A failed stage does not stop the others; the
// error joins every stage failure.
func (c *Coordinator) NotifyWorkflow(ctx context.Context, wf *workflow.Workflow, operation string) ([]Dispatch, error) {
	if wf == nil {
		return nil, errors.NewValidationError("nil workflow")
	}
	targets := wf.Config.Stages
	results := make([]Dispatch, len(targets))
	send := func(i int) error {
		reply, err := c.CoordinateModuleOperation(ctx, Operation{
			Source:     CoreSource,
			Target:     targets[i],
			Operation:  operation,
			WorkflowID: wf.ID,
			Payload:    map[string]any{"stage": targets[i], "operation": wf.CoreOperation},
		})
		results[i] = Dispatch{Target: targets[i], Reply: reply, Err: err}
		return err
	}

	failed := false
	if wf.Config.ParallelExecution {
		var g errgroup.Group
		for i := range targets {
			g.Go(func() error { return send(i) })
		}
		failed = g.Wait() != nil
	} else {
		for i := range targets {
			if send(i) != nil {
				failed = true
			}
		}
	}
	if !failed {
		return results, nil
	}

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return results, errors.Join(errs...)
}

// StopOrchestration sends workflow.stop to the stages of an active
// orchestration and deactivates it. Stopping a workflow with no active
// orchestration is a no-op. Stage failures are logged; the orchestration
// is deactivated regardless.
func (c *Coordinator) StopOrchestration(ctx context.Context, workflowID string) error {
	orch, ok := c.orchestration.Get(workflowID)
	if !ok {
		return nil
	}
	if err := c.security.Authorize(CoreSource, protocol.Broadcast, OpWorkflowStop); err != nil {
		return err
	}

	log := c.logger.WithWorkflow(workflowID)
	for _, target := range orch.Targets {
		if _, err := c.CoordinateModuleOperation(ctx, Operation{
			Source:     CoreSource,
			Target:     target,
			Operation:  OpWorkflowStop,
			WorkflowID: workflowID,
		}); err != nil {
			log.Warn("stage did not acknowledge stop", "target", target, "error", err)
		}
	}
	c.orchestration.Deactivate(workflowID)
	log.Info("orchestration stopped")
	return nil
}
