package concerns

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/mplp/internal/errors"
	"github.com/Iron-Ham/mplp/internal/event"
	"github.com/Iron-Ham/mplp/internal/logging"
)

// ErrorRecord is one error reported by a runtime component.
type ErrorRecord struct {
	ID        string    `json:"id"`
	Component string    `json:"component"`
	Code      string    `json:"code"`
	Severity  string    `json:"severity"`
	Retryable bool      `json:"retryable"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorHandlingManager classifies and retains reported errors.
type ErrorHandlingManager struct {
	mu         sync.Mutex
	records    []ErrorRecord
	limit      int
	bySeverity map[string]int64
	total      int64

	bus    *event.Bus
	logger *logging.Logger
}

// NewErrorHandlingManager creates a manager retaining at most limit records.
// bus may be nil.
func NewErrorHandlingManager(limit int, bus *event.Bus, logger *logging.Logger) *ErrorHandlingManager {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if limit <= 0 {
		limit = 1
	}
	return &ErrorHandlingManager{
		limit:      limit,
		bySeverity: make(map[string]int64),
		bus:        bus,
		logger:     logger.WithComponent("error-handling"),
	}
}

// Report records err for component. A nil err is ignored.
func (m *ErrorHandlingManager) Report(_ context.Context, component string, err error) {
	if err == nil {
		return
	}
	m.Record(component, err)
}

// Record records err for component and returns the stored record.
func (m *ErrorHandlingManager) Record(component string, err error) ErrorRecord {
	sev := errors.GetSeverity(err)
	rec := ErrorRecord{
		ID:        uuid.NewString(),
		Component: component,
		Code:      errors.Code(err),
		Severity:  sev.String(),
		Retryable: errors.IsRetryable(err),
		Message:   err.Error(),
		Timestamp: time.Now(),
	}

	m.mu.Lock()
	m.records = append(m.records, rec)
	if len(m.records) > m.limit {
		m.records = m.records[len(m.records)-m.limit:]
	}
	m.bySeverity[rec.Severity]++
	m.total++
	m.mu.Unlock()

	args := []any{"component", component, "code", rec.Code, "retryable", rec.Retryable, "error", rec.Message}
	if sev >= errors.SeverityError {
		m.logger.Error("error recorded", args...)
	} else {
		m.logger.Warn("error recorded", args...)
	}

	if m.bus != nil {
		m.bus.Publish(event.NewErrorRecordedEvent(component, rec.Code, rec.Severity, rec.Message))
	}
	return rec
}

// Recent returns up to n of the newest records, oldest first. n <= 0 returns all.
func (m *ErrorHandlingManager) Recent(n int) []ErrorRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	start := 0
	if n > 0 && len(m.records) > n {
		start = len(m.records) - n
	}
	out := make([]ErrorRecord, len(m.records)-start)
	copy(out, m.records[start:])
	return out
}

// CountBySeverity returns how many errors were recorded per severity.
func (m *ErrorHandlingManager) CountBySeverity() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.bySeverity))
	for k, v := range m.bySeverity {
		out[k] = v
	}
	return out
}

// Total returns the number of errors ever recorded.
func (m *ErrorHandlingManager) Total() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}
