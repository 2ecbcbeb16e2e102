package concerns

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Iron-Ham/mplp/internal/errors"
	"github.com/Iron-Ham/mplp/internal/logging"
	"github.com/Iron-Ham/mplp/internal/protocol"
)

// RouteStats counts dispatches to one endpoint.
type RouteStats struct {
	Dispatched   int64         `json:"dispatched"`
	Failed       int64         `json:"failed"`
	TotalLatency time.Duration `json:"total_latency"`
	LastDispatch time.Time     `json:"last_dispatch"`
}

// AverageLatency returns the mean dispatch latency.
func (s RouteStats) AverageLatency() time.Duration {
	if s.Dispatched == 0 {
		return 0
	}
	return s.TotalLatency / time.Duration(s.Dispatched)
}

// CoordinationManager routes messages to registered endpoints.
type CoordinationManager struct {
	mu        sync.RWMutex
	endpoints map[string]protocol.Endpoint
	stats     map[string]*RouteStats
	timeout   time.Duration

	logger *logging.Logger
}

// NewCoordinationManager creates a CoordinationManager. A positive timeout
// bounds every dispatch.
func NewCoordinationManager(timeout time.Duration, logger *logging.Logger) *CoordinationManager {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &CoordinationManager{
		endpoints: make(map[string]protocol.Endpoint),
		stats:     make(map[string]*RouteStats),
		timeout:   timeout,
		logger:    logger.WithComponent("coordination"),
	}
}

// Register makes ep reachable under name.
func (c *CoordinationManager) Register(name string, ep protocol.Endpoint) error {
	if name == "" || name == protocol.Broadcast {
		return errors.NewValidationError("invalid endpoint name").WithField("name").WithValue(name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.endpoints[name]; exists {
		return errors.NewAlreadyExistsError("endpoint", name)
	}
	c.endpoints[name] = ep
	c.stats[name] = &RouteStats{}
	return nil
}

// Unregister removes the endpoint registered under name.
func (c *CoordinationManager) Unregister(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.endpoints[name]; !ok {
		return false
	}
	delete(c.endpoints, name)
	delete(c.stats, name)
	return true
}

// Endpoint returns the endpoint registered under name.
func (c *CoordinationManager) Endpoint(name string) (protocol.Endpoint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ep, ok := c.endpoints[name]
	return ep, ok
}

// Endpoints returns the registered endpoint names, sorted.
func (c *CoordinationManager) Endpoints() []string {
	c.mu.RLock()
	names := make([]string, 0, len(c.endpoints))
	for name := range c.endpoints {
		names = append(names, name)
	}
	c.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Dispatch delivers msg from source to target and returns the target's reply.
// The endpoint runs without the manager's lock held.
func (c *CoordinationManager) Dispatch(ctx context.Context, source, target string, msg protocol.Message) (*protocol.Message, error) {
	ep, ok := c.Endpoint(target)
	if !ok {
		return nil, errors.NewCoordinationError("no endpoint registered", errors.ErrModuleUnavailable).
			WithRoute(source, target).
			WithOperation(msg.Type).
			WithWorkflowID(msg.WorkflowID)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	msg.Source = source
	msg.Target = target

	start := time.Now()
	reply, err := ep.ReceiveMessage(ctx, source, msg)
	elapsed := time.Since(start)

	c.mu.Lock()
	if st, ok := c.stats[target]; ok {
		st.Dispatched++
		st.TotalLatency += elapsed
		st.LastDispatch = start
		if err != nil {
			st.Failed++
		}
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Debug("dispatch failed", "source", source, "target", target, "type", msg.Type, "error", err)
		return nil, err
	}
	return reply, nil
}

// Broadcast dispatches msg to every endpoint except source and returns the
// joined errors of failed deliveries.
func (c *CoordinationManager) Broadcast(ctx context.Context, source string, msg protocol.Message) error {
	var errs []error
	for _, name := range c.Endpoints() {
		if name == source {
			continue
		}
		if _, err := c.Dispatch(ctx, source, name, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats returns a copy of per-endpoint dispatch counters.
func (c *CoordinationManager) Stats() map[string]RouteStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]RouteStats, len(c.stats))
	for name, st := range c.stats {
		out[name] = *st
	}
	return out
}
