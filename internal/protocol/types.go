package protocol

import (
	"time"

	"github.com/google/uuid"
)

// State represents the lifecycle state of a protocol module.
type State string

const (
	// StateStopped is the initial state and the state after Stop or Shutdown.
	StateStopped State = "stopped"
	// StateInitializing indicates configuration has been applied but the module is not serving.
	StateInitializing State = "initializing"
	// StateRunning indicates the module accepts messages.
	StateRunning State = "running"
	// StateStopping is the transient state between running and stopped.
	StateStopping State = "stopping"
	// StateError is entered when any transition fails. Only Initialize,
	// Start (via Restart) or Shutdown leave it.
	StateError State = "error"
)

// String returns the state name.
func (s State) String() string { return string(s) }

// Config is the per-module protocol configuration.
type Config struct {
	Enabled        bool           `json:"enabled" yaml:"enabled"`
	Timeout        time.Duration  `json:"timeout" yaml:"timeout"`
	MaxConnections int            `json:"max_connections" yaml:"max_connections"`
	Settings       map[string]any `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// DefaultConfig returns an enabled configuration with a 30s timeout and 100 connections.
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		Timeout:        30 * time.Second,
		MaxConnections: 100,
		Settings:       map[string]any{},
	}
}

// Setting returns the named setting, or def if it is absent.
func (c Config) Setting(name string, def any) any {
	if v, ok := c.Settings[name]; ok {
		return v
	}
	return def
}

// BoolSetting returns the named boolean setting, or def if it is absent or not a bool.
func (c Config) BoolSetting(name string, def bool) bool {
	if v, ok := c.Settings[name].(bool); ok {
		return v
	}
	return def
}

// clone returns a copy with its own Settings map.
func (c Config) clone() Config {
	out := c
	out.Settings = make(map[string]any, len(c.Settings))
	for k, v := range c.Settings {
		out.Settings[k] = v
	}
	return out
}

// Broadcast is the Target of messages sent with BroadcastMessage.
const Broadcast = "*"

// Message is a unit of cross-module communication.
type Message struct {
	ID         string         `json:"id"`
	Source     string         `json:"source"`
	Target     string         `json:"target"`
	Type       string         `json:"type"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// NewMessage creates a Message with a fresh id and timestamp.
func NewMessage(msgType string, payload map[string]any) Message {
	return Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// Reply builds a response to m from responder, carrying the same workflow id.
func (m Message) Reply(responder, msgType string, payload map[string]any) *Message {
	r := NewMessage(msgType, payload)
	r.Source = responder
	r.Target = m.Source
	r.WorkflowID = m.WorkflowID
	return &r
}

// HealthStatus is the overall verdict of a health check.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthCritical  HealthStatus = "critical"
)

// CheckStatus is the verdict of a single health check.
type CheckStatus string

const (
	CheckPass CheckStatus = "pass"
	CheckWarn CheckStatus = "warn"
	CheckFail CheckStatus = "fail"
)

// HealthCheck is the result of one named probe.
type HealthCheck struct {
	Name      string        `json:"name"`
	Status    CheckStatus   `json:"status"`
	Message   string        `json:"message"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// HealthMetrics are the counters reported alongside a health verdict.
type HealthMetrics struct {
	Uptime            time.Duration `json:"uptime"`
	ActiveConnections int           `json:"active_connections"`
	ProcessedRequests int64         `json:"processed_requests"`
}

// Health is recomputed on every HealthCheck call and never stored.
type Health struct {
	Status  HealthStatus  `json:"status"`
	Checks  []HealthCheck `json:"checks"`
	Metrics HealthMetrics `json:"metrics"`
	Errors  []string      `json:"errors"`
}

// Status is a point-in-time snapshot of a module.
type Status struct {
	Name              string        `json:"name"`
	State             State         `json:"state"`
	Uptime            time.Duration `json:"uptime"`
	LastActivity      time.Time     `json:"last_activity"`
	ActiveConnections int           `json:"active_connections"`
	ProcessedRequests int64         `json:"processed_requests"`
}

// PerformanceMetrics describe message handling latency and throughput.
type PerformanceMetrics struct {
	AverageResponseTime time.Duration `json:"average_response_time"`
	Throughput          float64       `json:"throughput"` // requests per second of uptime
	ErrorRate           float64       `json:"error_rate"`
}

// ResourceMetrics describe connection usage.
type ResourceMetrics struct {
	ActiveConnections     int     `json:"active_connections"`
	MaxConnections        int     `json:"max_connections"`
	ConnectionUtilization float64 `json:"connection_utilization"`
}

// Metrics groups the three metric families every module reports.
type Metrics struct {
	Performance PerformanceMetrics `json:"performance"`
	Resources   ResourceMetrics    `json:"resources"`
	Business    map[string]float64 `json:"business"`
}
