package platform

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/Iron-Ham/mplp/internal/configmgr"
	"github.com/Iron-Ham/mplp/internal/event"
	"github.com/Iron-Ham/mplp/internal/logging"
)

// hubConfig holds optional configuration for a Hub.
type hubConfig struct {
	logger    *logging.Logger
	bus       *event.Bus
	meter     metric.Meter
	tracer    trace.Tracer
	persister configmgr.Persister
	skipProbe bool
}

// Option configures a Hub.
type Option func(*hubConfig)

// WithLogger sets the logger shared by every component.
// If nil, a NopLogger is used.
func WithLogger(l *logging.Logger) Option {
	return func(c *hubConfig) { c.logger = l }
}

// WithEventBus sets the event bus. If nil, a new bus is created.
func WithEventBus(bus *event.Bus) Option {
	return func(c *hubConfig) { c.bus = bus }
}

// WithMeter sets the meter for performance instruments.
// If nil, the global meter provider is used.
func WithMeter(m metric.Meter) Option {
	return func(c *hubConfig) { c.meter = m }
}

// WithTracer sets the tracer used for orchestration spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *hubConfig) { c.tracer = t }
}

// WithPersister overrides the config persister chosen from storage settings.
func WithPersister(p configmgr.Persister) Option {
	return func(c *hubConfig) { c.persister = p }
}

// WithoutHostDetection disables host resource detection regardless of
// resources.auto_detect.
func WithoutHostDetection() Option {
	return func(c *hubConfig) { c.skipProbe = true }
}
