package protocol

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
)

// HealthCheck runs the protocol-status, service-availability and dependency
// checks. It does not change module state.
func (b *Base) HealthCheck(ctx context.Context) Health {
	checks := []HealthCheck{
		timed("protocol_status", func() (CheckStatus, string) { return b.checkProtocolStatus() }),
		timed("service_availability", func() (CheckStatus, string) { return b.checkService(ctx) }),
		timed("dependencies", func() (CheckStatus, string) { return b.checkDependencies() }),
	}

	b.mu.RLock()
	h := Health{
		Checks: checks,
		Metrics: HealthMetrics{
			Uptime:            b.uptimeLocked(),
			ActiveConnections: b.activeConns,
			ProcessedRequests: b.processed,
		},
		Errors: slices.Clone(b.recentErrors),
	}
	b.mu.RUnlock()

	if h.Errors == nil {
		h.Errors = []string{}
	}
	h.Status = Aggregate(checks)
	return h
}

// Aggregate reduces checks to an overall status: unhealthy if any fail,
// degraded if any warn, otherwise healthy.
func Aggregate(checks []HealthCheck) HealthStatus {
	status := HealthHealthy
	for _, c := range checks {
		switch c.Status {
		case CheckFail:
			return HealthUnhealthy
		case CheckWarn:
			status = HealthDegraded
		}
	}
	return status
}

func timed(name string, probe func() (CheckStatus, string)) HealthCheck {
	started := time.Now()
	status, msg := probe()
	return HealthCheck{
		Name:      name,
		Status:    status,
		Message:   msg,
		Duration:  time.Since(started),
		Timestamp: started,
	}
}

func (b *Base) checkProtocolStatus() (CheckStatus, string) {
	switch state := b.State(); state {
	case StateRunning:
		return CheckPass, "Protocol is running"
	case StateError:
		return CheckFail, "Protocol is in error state"
	default:
		return CheckWarn, fmt.Sprintf("Protocol is %s", state)
	}
}

func (b *Base) checkService(ctx context.Context) (status CheckStatus, msg string) {
	if b.hooks.ServiceCheck == nil {
		return CheckPass, "Service available"
	}
	defer func() {
		if r := recover(); r != nil {
			status, msg = CheckFail, fmt.Sprintf("service check panicked: %v", r)
		}
	}()
	if err := b.hooks.ServiceCheck(ctx); err != nil {
		return CheckFail, fmt.Sprintf("Service unavailable: %v", err)
	}
	return CheckPass, "Service available"
}

func (b *Base) checkDependencies() (CheckStatus, string) {
	if len(b.deps) == 0 {
		return CheckPass, "No dependencies"
	}

	b.mu.RLock()
	resolver := b.resolver
	b.mu.RUnlock()
	if resolver == nil {
		return CheckWarn, "Dependency resolver not configured"
	}

	var problems []string
	for _, dep := range b.deps {
		state, ok := resolver(dep)
		switch {
		case !ok:
			problems = append(problems, dep+" not registered")
		case state != StateRunning:
			problems = append(problems, fmt.Sprintf("%s is %s", dep, state))
		}
	}
	if len(problems) > 0 {
		return CheckWarn, "Dependencies unavailable: " + strings.Join(problems, ", ")
	}
	return CheckPass, "All dependencies running"
}
