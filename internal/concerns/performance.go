package concerns

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Iron-Ham/mplp/internal/errors"
	"github.com/Iron-Ham/mplp/internal/logging"
)

// InstrumentationName names the meter and tracer used by the runtime.
const InstrumentationName = "github.com/Iron-Ham/mplp"

// System health verdicts.
const (
	SystemHealthy  = "healthy"
	SystemDegraded = "degraded"
	SystemCritical = "critical"
	SystemUnknown  = "unknown"
)

// degradedUtilization is the monitored/capacity ratio at which the system
// reports degraded.
const degradedUtilization = 0.9

// SystemHealth is a point-in-time snapshot of the monitoring layer.
type SystemHealth struct {
	Status             string    `json:"status"`
	MonitoredWorkflows int       `json:"monitored_workflows"`
	Capacity           int       `json:"capacity"`
	Goroutines         int       `json:"goroutines"`
	HostMemoryPercent  float64   `json:"host_memory_percent,omitempty"`
	HostMemoryKnown    bool      `json:"host_memory_known"`
	CheckedAt          time.Time `json:"checked_at"`
}

// PerformanceStats summarizes recorded operations.
type PerformanceStats struct {
	Monitored  int   `json:"monitored"`
	Capacity   int   `json:"capacity"`
	Operations int64 `json:"operations"`
	Failures   int64 `json:"failures"`
	Rejected   int64 `json:"rejected"`
}

type memProbe func(ctx context.Context) (*mem.VirtualMemoryStat, error)

// PerformanceManager tracks which workflows are monitored and records
// operation metrics through OpenTelemetry instruments.
type PerformanceManager struct {
	mu        sync.RWMutex
	monitored map[string]time.Time
	capacity  int
	enabled   bool

	operations int64
	failures   int64
	rejected   int64

	opCounter   metric.Int64Counter
	opDuration  metric.Float64Histogram
	monitorSize metric.Int64UpDownCounter

	probe  memProbe
	logger *logging.Logger
}

// NewPerformanceManager creates a PerformanceManager that monitors at most
// capacity workflows. A nil meter uses the global meter provider.
func NewPerformanceManager(capacity int, meter metric.Meter, logger *logging.Logger) *PerformanceManager {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}
	p := &PerformanceManager{
		monitored: make(map[string]time.Time),
		capacity:  capacity,
		enabled:   true,
		probe:     mem.VirtualMemoryWithContext,
		logger:    logger.WithComponent("performance"),
	}

	var err error
	if p.opCounter, err = meter.Int64Counter("mplp.operations",
		metric.WithDescription("Orchestrator operations by name and outcome")); err != nil {
		p.logger.Warn("failed to create counter", "error", err)
	}
	if p.opDuration, err = meter.Float64Histogram("mplp.operation.duration",
		metric.WithDescription("Orchestrator operation latency"),
		metric.WithUnit("ms")); err != nil {
		p.logger.Warn("failed to create histogram", "error", err)
	}
	if p.monitorSize, err = meter.Int64UpDownCounter("mplp.workflows.monitored",
		metric.WithDescription("Workflows currently monitored")); err != nil {
		p.logger.Warn("failed to create up-down counter", "error", err)
	}
	return p
}

// SetEnabled turns monitoring on or off. Disabling does not drop workflows
// that are already monitored.
func (p *PerformanceManager) SetEnabled(enabled bool) {
	p.mu.Lock()
	p.enabled = enabled
	p.mu.Unlock()
}

// StartMonitoring begins monitoring workflowID. Monitoring an already
// monitored workflow is a no-op.
func (p *PerformanceManager) StartMonitoring(ctx context.Context, workflowID string) error {
	p.mu.Lock()
	if !p.enabled {
		p.rejected++
		p.mu.Unlock()
		return errors.NewMonitoringError("monitoring is disabled", nil).WithWorkflowID(workflowID)
	}
	if _, ok := p.monitored[workflowID]; ok {
		p.mu.Unlock()
		return nil
	}
	if p.capacity > 0 && len(p.monitored) >= p.capacity {
		p.rejected++
		p.mu.Unlock()
		return errors.NewMonitoringError("monitored workflow limit reached", errors.ErrMonitoringCapacity).
			WithWorkflowID(workflowID)
	}
	p.monitored[workflowID] = time.Now()
	p.mu.Unlock()

	if p.monitorSize != nil {
		p.monitorSize.Add(ctx, 1)
	}
	p.logger.Debug("monitoring started", "workflow_id", workflowID)
	return nil
}

// StopMonitoring stops monitoring workflowID. Stopping an unmonitored
// workflow returns nil.
func (p *PerformanceManager) StopMonitoring(ctx context.Context, workflowID string) error {
	p.mu.Lock()
	_, ok := p.monitored[workflowID]
	delete(p.monitored, workflowID)
	p.mu.Unlock()

	if ok {
		if p.monitorSize != nil {
			p.monitorSize.Add(ctx, -1)
		}
		p.logger.Debug("monitoring stopped", "workflow_id", workflowID)
	}
	return nil
}

// IsMonitoring reports whether workflowID is monitored.
func (p *PerformanceManager) IsMonitoring(workflowID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.monitored[workflowID]
	return ok
}

// MonitoredCount returns the number of monitored workflows.
func (p *PerformanceManager) MonitoredCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.monitored)
}

// Monitored returns the monitored workflow ids, sorted.
func (p *PerformanceManager) Monitored() []string {
	p.mu.RLock()
	ids := make([]string, 0, len(p.monitored))
	for id := range p.monitored {
		ids = append(ids, id)
	}
	p.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// RecordOperation records one operation's latency and outcome.
func (p *PerformanceManager) RecordOperation(ctx context.Context, name string, d time.Duration, err error) {
	outcome := "success"
	p.mu.Lock()
	p.operations++
	if err != nil {
		p.failures++
		outcome = "failure"
	}
	p.mu.Unlock()

	attrs := metric.WithAttributes(
		attribute.String("operation", name),
		attribute.String("outcome", outcome),
	)
	if p.opCounter != nil {
		p.opCounter.Add(ctx, 1, attrs)
	}
	if p.opDuration != nil {
		p.opDuration.Record(ctx, float64(d)/float64(time.Millisecond), attrs)
	}
}

// SystemHealth returns a snapshot of monitoring load and host memory. Host
// memory is best effort; a failed probe leaves HostMemoryKnown false.
func (p *PerformanceManager) SystemHealth(ctx context.Context) (SystemHealth, error) {
	if err := ctx.Err(); err != nil {
		return SystemHealth{Status: SystemUnknown}, err
	}

	p.mu.RLock()
	h := SystemHealth{
		Status:             SystemHealthy,
		MonitoredWorkflows: len(p.monitored),
		Capacity:           p.capacity,
		Goroutines:         runtime.NumGoroutine(),
		CheckedAt:          time.Now(),
	}
	p.mu.RUnlock()

	if vm, err := p.probe(ctx); err == nil && vm != nil {
		h.HostMemoryPercent = vm.UsedPercent
		h.HostMemoryKnown = true
	} else if err != nil {
		p.logger.Debug("host memory probe failed", "error", err)
	}

	switch {
	case h.Capacity > 0 && h.MonitoredWorkflows >= h.Capacity:
		h.Status = SystemCritical
	case h.Capacity > 0 && float64(h.MonitoredWorkflows)/float64(h.Capacity) >= degradedUtilization:
		h.Status = SystemDegraded
	case h.HostMemoryKnown && h.HostMemoryPercent >= 95:
		h.Status = SystemDegraded
	}
	return h, nil
}

// Stats returns operation counters.
func (p *PerformanceManager) Stats() PerformanceStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return PerformanceStats{
		Monitored:  len(p.monitored),
		Capacity:   p.capacity,
		Operations: p.operations,
		Failures:   p.failures,
		Rejected:   p.rejected,
	}
}
