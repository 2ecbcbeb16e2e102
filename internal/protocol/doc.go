// Package protocol defines the lifecycle and messaging contract shared by all
// MPLP protocol modules, and Base, the state machine that implements it.
//
// # Lifecycle
//
//	stopped ──Initialize──▶ initializing ──Start──▶ running ──Stop──▶ stopping ──▶ stopped
//	   ▲                                                                          │
//	   └───────────────────────────────Start──────────────────────────────────────┘
//
// Initialize is accepted from any state. Start is accepted only from
// initializing or stopped, Stop only from running; anything else returns a
// StateError reading "Cannot start protocol from state: X". A failed hook moves
// the module to error, which Initialize or Shutdown leave. Shutdown never fails.
//
// # Messaging
//
// SendMessage and BroadcastMessage count the message and hand it to the Outbox
// the runtime binds to the coordinator. ReceiveMessage requires the running
// state and dispatches to Hooks.OnMessage. None of them change lifecycle state.
//
// # Health
//
// HealthCheck combines three checks (protocol status, service availability
// and dependencies) into healthy, degraded or unhealthy.
package protocol
