// Package errors provides the error taxonomy shared by every MPLP runtime
// component: sentinel errors, domain error types carrying structured context,
// and classification helpers used by the orchestrator and the error-handling
// manager.
//
// # Error Types
//
// Domain errors describe a failure in one runtime subsystem:
//   - StateError: an illegal module lifecycle transition
//   - InitializationError: a module failed to initialize
//   - AllocationError: the resource manager could not reserve capacity
//   - MonitoringError: the performance manager could not monitor a workflow
//   - CoordinationError: a cross-module operation could not be delivered
//
// Semantic errors describe common conditions independent of subsystem:
//   - NotFoundError: unknown workflow id, config key or version
//   - AlreadyExistsError: duplicate active workflow id
//   - ValidationError: rejected configuration or input
//   - TimeoutError: an operation exceeded its deadline
//
// # Usage
//
//	err := errors.NewStateError("start", protocol.StateRunning).WithModule("plan")
//	if errors.Is(err, errors.ErrInvalidState) { ... }
//
//	var allocErr *errors.AllocationError
//	if errors.As(err, &allocErr) { ... }
//
//	if errors.IsRetryable(err) { ... }
//
// Every error type also reports a stable machine-readable code via [Code]
// (INVALID_STATE, INIT_FAILED and so on) for API responses and error records.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Machine-readable error codes.
const (
	CodeInvalidState       = "INVALID_STATE"
	CodeInitFailed         = "INIT_FAILED"
	CodeAllocationFailed   = "ALLOCATION_FAILED"
	CodeMonitoringFailed   = "MONITORING_FAILED"
	CodeCoordinationFailed = "COORDINATION_FAILED"
	CodeNotFound           = "NOT_FOUND"
	CodeAlreadyExists      = "ALREADY_EXISTS"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeTimeout            = "TIMEOUT"
	CodeInternal           = "INTERNAL_ERROR"
)

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Module lifecycle sentinel errors
var (
	// ErrInvalidState indicates a lifecycle operation was attempted from a state
	// that does not allow it.
	ErrInvalidState = New("invalid protocol state")
	// ErrInitFailed indicates a module failed to initialize.
	ErrInitFailed = New("module initialization failed")
	// ErrModuleUnavailable indicates the target module is not registered or not running.
	ErrModuleUnavailable = New("module unavailable")
)

// Orchestration sentinel errors
var (
	// ErrInsufficientCapacity indicates the resource pool cannot satisfy a request.
	ErrInsufficientCapacity = New("insufficient resource capacity")
	// ErrMonitoringCapacity indicates the performance manager is at its monitored-workflow limit.
	ErrMonitoringCapacity = New("monitoring capacity exceeded")
	// ErrAccessDenied indicates the security manager rejected an operation.
	ErrAccessDenied = New("access denied")
	// ErrVersionNotFound indicates a config version is absent from history.
	ErrVersionNotFound = New("config version not found")
	// ErrProtocolIncompatible indicates a module's protocol version cannot run on this runtime.
	ErrProtocolIncompatible = New("protocol version incompatible")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// RuntimeError is the interface implemented by every error type in this package.
type RuntimeError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to return to API callers.
	IsUserFacing() bool

	// Code returns the stable machine-readable error code.
	Code() string
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	code       string
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// Code returns the machine-readable error code.
func (e *baseError) Code() string {
	return e.code
}

// Message returns the message without context prefix or cause.
func (e *baseError) Message() string {
	return e.message
}

// format renders "<kind> [k=v, ...]: message: cause".
func (e *baseError) format(kind string, parts []string) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// StateError represents an illegal module lifecycle transition.
//
// Example:
//
//	err := errors.NewStateError("start", "running").WithModule("plan")
//	fmt.Println(err) // "state error [module=plan]: Cannot start protocol from state: running"
type StateError struct {
	baseError
	Module    string
	Operation string
	State     string
}

// NewStateError creates a StateError for operation attempted from state.
func NewStateError(operation, state string) *StateError {
	return &StateError{
		baseError: baseError{
			message:    fmt.Sprintf("Cannot %s protocol from state: %s", operation, state),
			cause:      ErrInvalidState,
			code:       CodeInvalidState,
			severity:   SeverityWarning,
			userFacing: true,
		},
		Operation: operation,
		State:     state,
	}
}

// WithModule adds the module name to the error context.
func (e *StateError) WithModule(module string) *StateError {
	e.Module = module
	return e
}

// Error returns the formatted error message. The sentinel cause is omitted so
// the message reads exactly as the rejected transition.
func (e *StateError) Error() string {
	var parts []string
	if e.Module != "" {
		parts = append(parts, fmt.Sprintf("module=%s", e.Module))
	}
	prefix := "state error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("state error [%s]", strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *StateError) Is(target error) bool {
	if _, ok := target.(*StateError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// InitializationError represents a module that failed to initialize.
//
// Example:
//
//	err := errors.NewInitializationError("settings rejected", cause).WithModule("trace")
type InitializationError struct {
	baseError
	Module string
}

// NewInitializationError creates a new InitializationError.
func NewInitializationError(message string, cause error) *InitializationError {
	return &InitializationError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			code:       CodeInitFailed,
			severity:   SeverityError,
			userFacing: true,
		},
	}
}

// WithModule adds the module name to the error context.
func (e *InitializationError) WithModule(module string) *InitializationError {
	e.Module = module
	return e
}

// Error returns the formatted error message.
func (e *InitializationError) Error() string {
	var parts []string
	if e.Module != "" {
		parts = append(parts, fmt.Sprintf("module=%s", e.Module))
	}
	return e.format("initialization error", parts)
}

// Is checks if this error matches the target.
func (e *InitializationError) Is(target error) bool {
	if _, ok := target.(*InitializationError); ok {
		return true
	}
	if target == ErrInitFailed {
		return true
	}
	return e.baseError.Is(target)
}

// AllocationError represents a resource manager failure. It is recoverable:
// the orchestrator downgrades health instead of failing the call.
//
// Example:
//
//	err := errors.NewAllocationError("memory reservation failed", errors.ErrInsufficientCapacity).
//	    WithWorkflowID("wf-1").WithResource("memory")
type AllocationError struct {
	baseError
	WorkflowID string
	Resource   string
}

// NewAllocationError creates a new AllocationError.
func NewAllocationError(message string, cause error) *AllocationError {
	return &AllocationError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			code:       CodeAllocationFailed,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
	}
}

// WithWorkflowID adds the workflow id to the error context.
func (e *AllocationError) WithWorkflowID(id string) *AllocationError {
	e.WorkflowID = id
	return e
}

// WithResource adds the resource kind (cpu, memory, disk) to the error context.
func (e *AllocationError) WithResource(resource string) *AllocationError {
	e.Resource = resource
	return e
}

// Error returns the formatted error message.
func (e *AllocationError) Error() string {
	var parts []string
	if e.WorkflowID != "" {
		parts = append(parts, fmt.Sprintf("workflow=%s", e.WorkflowID))
	}
	if e.Resource != "" {
		parts = append(parts, fmt.Sprintf("resource=%s", e.Resource))
	}
	return e.format("allocation error", parts)
}

// Is checks if this error matches the target.
func (e *AllocationError) Is(target error) bool {
	if _, ok := target.(*AllocationError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// MonitoringError represents a performance manager failure. Recoverable.
type MonitoringError struct {
	baseError
	WorkflowID string
}

// NewMonitoringError creates a new MonitoringError.
func NewMonitoringError(message string, cause error) *MonitoringError {
	return &MonitoringError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			code:       CodeMonitoringFailed,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
	}
}

// WithWorkflowID adds the workflow id to the error context.
func (e *MonitoringError) WithWorkflowID(id string) *MonitoringError {
	e.WorkflowID = id
	return e
}

// Error returns the formatted error message.
func (e *MonitoringError) Error() string {
	var parts []string
	if e.WorkflowID != "" {
		parts = append(parts, fmt.Sprintf("workflow=%s", e.WorkflowID))
	}
	return e.format("monitoring error", parts)
}

// Is checks if this error matches the target.
func (e *MonitoringError) Is(target error) bool {
	if _, ok := target.(*MonitoringError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// CoordinationError represents a cross-module operation that could not be
// authorized, routed or delivered.
//
// Example:
//
//	err := errors.NewCoordinationError("dispatch failed", errors.ErrModuleUnavailable).
//	    WithRoute("core", "plan").WithOperation("workflow.execute")
type CoordinationError struct {
	baseError
	Source     string
	Target     string
	Operation  string
	WorkflowID string
}

// NewCoordinationError creates a new CoordinationError.
func NewCoordinationError(message string, cause error) *CoordinationError {
	return &CoordinationError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			code:       CodeCoordinationFailed,
			severity:   SeverityError,
			userFacing: true,
		},
	}
}

// WithRoute adds source and target modules to the error context.
func (e *CoordinationError) WithRoute(source, target string) *CoordinationError {
	e.Source = source
	e.Target = target
	return e
}

// WithOperation adds the operation name to the error context.
func (e *CoordinationError) WithOperation(op string) *CoordinationError {
	e.Operation = op
	return e
}

// WithWorkflowID adds the workflow id to the error context.
func (e *CoordinationError) WithWorkflowID(id string) *CoordinationError {
	e.WorkflowID = id
	return e
}

// WithSeverity sets the error severity.
func (e *CoordinationError) WithSeverity(s Severity) *CoordinationError {
	e.severity = s
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *CoordinationError) WithRetryable(r bool) *CoordinationError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *CoordinationError) Error() string {
	var parts []string
	if e.Source != "" || e.Target != "" {
		parts = append(parts, fmt.Sprintf("route=%s->%s", e.Source, e.Target))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Operation))
	}
	if e.WorkflowID != "" {
		parts = append(parts, fmt.Sprintf("workflow=%s", e.WorkflowID))
	}
	return e.format("coordination error", parts)
}

// Is checks if this error matches the target.
func (e *CoordinationError) Is(target error) bool {
	if _, ok := target.(*CoordinationError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("workflow", "wf-1")
//	fmt.Println(err) // "workflow 'wf-1' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			code:       CodeNotFound,
			severity:   SeverityWarning,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// AlreadyExistsError represents a resource that already exists.
type AlreadyExistsError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewAlreadyExistsError creates a new AlreadyExistsError.
func NewAlreadyExistsError(resourceType, resourceID string) *AlreadyExistsError {
	return &AlreadyExistsError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' already exists", resourceType, resourceID),
			code:       CodeAlreadyExists,
			severity:   SeverityWarning,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// Error returns the formatted error message.
func (e *AlreadyExistsError) Error() string {
	return e.message
}

// Is checks if this error matches the target.
func (e *AlreadyExistsError) Is(target error) bool {
	if _, ok := target.(*AlreadyExistsError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or configuration.
//
// Example:
//
//	err := errors.NewValidationError("timeout must be positive")
//	err = err.WithField("timeout").WithValue(-1)
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			code:       CodeValidationFailed,
			severity:   SeverityWarning,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return e.format("validation error", parts)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if target == ErrInvalidInput {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that exceeded its deadline.
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    operation,
			code:       CodeTimeout,
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if target == ErrTimeout {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var rtErr RuntimeError
	if As(err, &rtErr) {
		return rtErr.IsRetryable()
	}

	return Is(err, ErrTimeout)
}

// IsUserFacing returns true if the error message is safe to return to API callers.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var rtErr RuntimeError
	if As(err, &rtErr) {
		return rtErr.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement RuntimeError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var rtErr RuntimeError
	if As(err, &rtErr) {
		return rtErr.Severity()
	}

	return SeverityError
}

// Code returns the machine-readable code of err, or INTERNAL_ERROR for errors
// outside this package's taxonomy.
func Code(err error) string {
	if err == nil {
		return ""
	}

	var rtErr RuntimeError
	if As(err, &rtErr) {
		return rtErr.Code()
	}
	if Is(err, ErrTimeout) {
		return CodeTimeout
	}
	return CodeInternal
}

// IsDomainError returns true if the error is one of the subsystem error types.
func IsDomainError(err error) bool {
	if err == nil {
		return false
	}

	var stateErr *StateError
	var initErr *InitializationError
	var allocErr *AllocationError
	var monErr *MonitoringError
	var coordErr *CoordinationError

	return As(err, &stateErr) || As(err, &initErr) || As(err, &allocErr) ||
		As(err, &monErr) || As(err, &coordErr)
}

// IsSemanticError returns true if the error is a semantic error
// (NotFoundError, AlreadyExistsError, ValidationError, or TimeoutError).
func IsSemanticError(err error) bool {
	if err == nil {
		return false
	}

	var notFound *NotFoundError
	var alreadyExists *AlreadyExistsError
	var validation *ValidationError
	var timeout *TimeoutError

	return As(err, &notFound) || As(err, &alreadyExists) ||
		As(err, &validation) || As(err, &timeout)
}

// IsRecoverable reports whether the orchestrator should downgrade a flag
// rather than fail the call when err occurs.
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}

	var allocErr *AllocationError
	var monErr *MonitoringError
	var coordErr *CoordinationError
	return As(err, &allocErr) || As(err, &monErr) || As(err, &coordErr)
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
