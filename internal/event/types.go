package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "module.operation", "config.changed")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers published by the runtime.
const (
	TypeModuleOperation    = "module.operation"
	TypeModuleStateChanged = "module.state_changed"
	TypeWorkflowCreated    = "workflow.created"
	TypeWorkflowStatus     = "workflow.status_changed"
	TypeWorkflowStep       = "workflow.step"
	TypeConfigChanged      = "config.changed"
	TypeResourceAllocated  = "resource.allocated"
	TypeResourceReleased   = "resource.released"
	TypeErrorRecorded      = "error.recorded"
	TypeStateUpdated       = "state.updated"
)

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Module Events
// -----------------------------------------------------------------------------

// ModuleOperationEvent records one cross-module operation routed by the
// coordinator. It is transient and delivered at most once per call.
type ModuleOperationEvent struct {
	baseEvent
	Source     string         // Module (or "core") that issued the operation
	Target     string         // Module that handled it
	Operation  string         // Operation name, e.g. "workflow.execute"
	WorkflowID string         // Workflow the operation belongs to, if any
	Payload    map[string]any // Operation arguments
	Success    bool           // Whether the target accepted the operation
	Error      string         // Failure reason when Success is false
}

// NewModuleOperationEvent creates a ModuleOperationEvent.
func NewModuleOperationEvent(source, target, operation, workflowID string, payload map[string]any, opErr error) ModuleOperationEvent {
	e := ModuleOperationEvent{
		baseEvent:  newBaseEvent(TypeModuleOperation),
		Source:     source,
		Target:     target,
		Operation:  operation,
		WorkflowID: workflowID,
		Payload:    payload,
		Success:    opErr == nil,
	}
	if opErr != nil {
		e.Error = opErr.Error()
	}
	return e
}

// ModuleStateChangedEvent is emitted on every module lifecycle transition.
type ModuleStateChangedEvent struct {
	baseEvent
	Module string
	From   string
	To     string
}

// NewModuleStateChangedEvent creates a ModuleStateChangedEvent.
func NewModuleStateChangedEvent(module, from, to string) ModuleStateChangedEvent {
	return ModuleStateChangedEvent{
		baseEvent: newBaseEvent(TypeModuleStateChanged),
		Module:    module,
		From:      from,
		To:        to,
	}
}

// -----------------------------------------------------------------------------
// Workflow Events
// -----------------------------------------------------------------------------

// WorkflowCreatedEvent is emitted when the workflow manager materializes a workflow.
type WorkflowCreatedEvent struct {
	baseEvent
	WorkflowID string
	Stages     []string
	Priority   string
}

// NewWorkflowCreatedEvent creates a WorkflowCreatedEvent.
func NewWorkflowCreatedEvent(workflowID string, stages []string, priority string) WorkflowCreatedEvent {
	return WorkflowCreatedEvent{
		baseEvent:  newBaseEvent(TypeWorkflowCreated),
		WorkflowID: workflowID,
		Stages:     stages,
		Priority:   priority,
	}
}

// WorkflowStatusEvent is emitted when a workflow's status changes.
type WorkflowStatusEvent struct {
	baseEvent
	WorkflowID string
	From       string
	To         string
}

// NewWorkflowStatusEvent creates a WorkflowStatusEvent.
func NewWorkflowStatusEvent(workflowID, from, to string) WorkflowStatusEvent {
	return WorkflowStatusEvent{
		baseEvent:  newBaseEvent(TypeWorkflowStatus),
		WorkflowID: workflowID,
		From:       from,
		To:         to,
	}
}

// WorkflowStepEvent is emitted when a workflow stage changes status.
type WorkflowStepEvent struct {
	baseEvent
	WorkflowID string
	Stage      string
	Status     string
	Error      string
}

// NewWorkflowStepEvent creates a WorkflowStepEvent.
func NewWorkflowStepEvent(workflowID, stage, status, errMsg string) WorkflowStepEvent {
	return WorkflowStepEvent{
		baseEvent:  newBaseEvent(TypeWorkflowStep),
		WorkflowID: workflowID,
		Stage:      stage,
		Status:     status,
		Error:      errMsg,
	}
}

// -----------------------------------------------------------------------------
// Config Events
// -----------------------------------------------------------------------------

// ConfigChangedEvent is emitted after a config key is created, updated,
// deleted or rolled back. Values are never included; encrypted keys would leak.
type ConfigChangedEvent struct {
	baseEvent
	Key        string
	ChangeType string // create, update or delete
	Version    int
}

// NewConfigChangedEvent creates a ConfigChangedEvent.
func NewConfigChangedEvent(key, changeType string, version int) ConfigChangedEvent {
	return ConfigChangedEvent{
		baseEvent:  newBaseEvent(TypeConfigChanged),
		Key:        key,
		ChangeType: changeType,
		Version:    version,
	}
}

// -----------------------------------------------------------------------------
// Resource Events
// -----------------------------------------------------------------------------

// ResourceEvent is emitted when an allocation is reserved or released.
type ResourceEvent struct {
	baseEvent
	WorkflowID   string
	AllocationID string
	CPUCores     int
	MemoryMB     int
	DiskSpaceMB  int
}

// NewResourceAllocatedEvent creates a resource.allocated event.
func NewResourceAllocatedEvent(workflowID, allocationID string, cpu, memMB, diskMB int) ResourceEvent {
	return ResourceEvent{
		baseEvent:    newBaseEvent(TypeResourceAllocated),
		WorkflowID:   workflowID,
		AllocationID: allocationID,
		CPUCores:     cpu,
		MemoryMB:     memMB,
		DiskSpaceMB:  diskMB,
	}
}

// NewResourceReleasedEvent creates a resource.released event.
func NewResourceReleasedEvent(workflowID, allocationID string, cpu, memMB, diskMB int) ResourceEvent {
	e := NewResourceAllocatedEvent(workflowID, allocationID, cpu, memMB, diskMB)
	e.eventType = TypeResourceReleased
	return e
}

// -----------------------------------------------------------------------------
// Infrastructure Events
// -----------------------------------------------------------------------------

// ErrorRecordedEvent is emitted when the error-handling manager records an error.
type ErrorRecordedEvent struct {
	baseEvent
	Component string
	Code      string
	Severity  string
	Message   string
}

// NewErrorRecordedEvent creates an ErrorRecordedEvent.
func NewErrorRecordedEvent(component, code, severity, message string) ErrorRecordedEvent {
	return ErrorRecordedEvent{
		baseEvent: newBaseEvent(TypeErrorRecorded),
		Component: component,
		Code:      code,
		Severity:  severity,
		Message:   message,
	}
}

// StateUpdatedEvent is emitted when a shared state key changes.
type StateUpdatedEvent struct {
	baseEvent
	Key     string
	Version int64
	Deleted bool
}

// NewStateUpdatedEvent creates a StateUpdatedEvent.
func NewStateUpdatedEvent(key string, version int64, deleted bool) StateUpdatedEvent {
	return StateUpdatedEvent{
		baseEvent: newBaseEvent(TypeStateUpdated),
		Key:       key,
		Version:   version,
		Deleted:   deleted,
	}
}
