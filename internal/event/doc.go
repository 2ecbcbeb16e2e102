// Package event provides the synchronous pub-sub bus that carries runtime
// notifications between protocol modules, the coordinator and the
// cross-cutting concern managers.
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub event dispatcher with thread-safe operations
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Categories
//
// Module:
//   - [ModuleOperationEvent]: a cross-module operation routed by the coordinator
//   - [ModuleStateChangedEvent]: a module lifecycle transition
//
// Workflow:
//   - [WorkflowCreatedEvent], [WorkflowStatusEvent], [WorkflowStepEvent]
//
// Infrastructure:
//   - [ConfigChangedEvent]: a config key changed
//   - [ResourceEvent]: an allocation was reserved or released
//   - [ErrorRecordedEvent]: the error-handling manager recorded an error
//   - [StateUpdatedEvent]: a shared state key changed
//
// # Ordering
//
// Handlers run synchronously in the publishing goroutine. Events published by
// one goroutine are therefore observed by every handler in publish order; no
// ordering is defined between different publishers. A panicking handler is
// logged and does not prevent delivery to the remaining handlers.
//
// # Basic Usage
//
//	bus := event.NewBus(logger)
//
//	bus.Subscribe(event.TypeModuleOperation, func(e event.Event) {
//	    op := e.(event.ModuleOperationEvent)
//	    logger.Info("operation", "target", op.Target, "op", op.Operation)
//	})
//
//	// Category subscription
//	bus.Subscribe("workflow.*", func(e event.Event) { ... })
//
//	// Every event
//	bus.SubscribeAll(func(e event.Event) { ... })
//
// # Event Type Naming Convention
//
// Event types follow the pattern "category.action": module.operation,
// module.state_changed, workflow.created, config.changed, resource.allocated.
package event
