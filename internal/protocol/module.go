package protocol

import "context"

// Endpoint receives messages routed by the coordinator.
// Protocol modules implement it, as do runtime components that accept
// reports from modules (the workflow manager, for example).
type Endpoint interface {
	// ReceiveMessage handles msg from source. It may return a reply, nil or an error.
	ReceiveMessage(ctx context.Context, source string, msg Message) (*Message, error)
}

// Module is the lifecycle and messaging contract every protocol module implements.
type Module interface {
	Endpoint

	// Name returns the module's registry name (e.g. "plan").
	Name() string
	// Version returns the module's protocol version (semver, "v" prefixed).
	Version() string
	// Dependencies returns the names of modules this module relies on.
	Dependencies() []string

	Initialize(ctx context.Context, cfg Config) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error
	// Shutdown stops the module if running and forces it to stopped. It never fails.
	Shutdown(ctx context.Context)

	HealthCheck(ctx context.Context) Health
	Status() Status
	Metrics() Metrics

	SendMessage(ctx context.Context, target string, msg Message) error
	BroadcastMessage(ctx context.Context, msg Message) error

	UpdateConfiguration(cfg Config) error
	Configuration() Config
	ValidateConfiguration(cfg Config) bool
}

// Outbox delivers messages a module sends. The runtime binds it to the coordinator.
type Outbox func(ctx context.Context, msg Message) error

// DependencyResolver reports the current state of a module by name.
// ok is false when no such module is registered.
type DependencyResolver func(name string) (state State, ok bool)

// StateChangeCallback is invoked after every lifecycle transition.
type StateChangeCallback func(module string, from, to State)

// Hooks let a concrete module plug behaviour into Base. Every hook is optional.
type Hooks struct {
	// OnInitialize runs after the config is stored. An error moves the module to error.
	OnInitialize func(ctx context.Context, cfg Config) error
	// OnStart runs before the module enters running.
	OnStart func(ctx context.Context) error
	// OnStop runs while the module is stopping.
	OnStop func(ctx context.Context) error
	// OnMessage handles a received message. When nil, Base acknowledges it.
	OnMessage func(ctx context.Context, source string, msg Message) (*Message, error)
	// ServiceCheck backs the service-availability health check.
	ServiceCheck func(ctx context.Context) error
	// ValidateSettings vets module-specific settings.
	ValidateSettings func(settings map[string]any) error
	// BusinessMetrics adds module-specific counters to Metrics().Business.
	BusinessMetrics func() map[string]float64
}
