// Package errors provides centralized error definitions and error handling utilities
// for the berth codebase. It defines domain-specific errors, semantic error types,
// error constructors with context wrapping, error classification helpers, and the
// mapping from errors to process exit codes.
//
// # Error Types
//
// The package provides two categories of errors:
//
// Domain-specific errors represent errors from specific subsystems:
//   - StateError: errors related to the on-disk state documents and their locks
//   - PortError: errors related to local port allocation
//   - TunnelError: errors related to tunnel process management
//   - MonitorError: errors related to readiness monitoring and remote log access
//
// Semantic errors represent common error conditions:
//   - NotFoundError: resource not found
//   - ValidationError: invalid input or state
//   - TimeoutError: operation timed out
//
// # Usage
//
// Creating errors:
//
//	// Domain-specific error
//	err := errors.NewTunnelError("spawn failed", errors.ErrTunnelDied)
//
//	// Semantic error
//	err := errors.NewNotFoundError("tunnel", "12345")
//
//	// With context wrapping
//	err := errors.NewPortError("allocation failed", baseErr).WithInstanceID("12345")
//
// Checking errors:
//
//	// Check for specific sentinel errors
//	if errors.Is(err, errors.ErrPortExhausted) { ... }
//
//	// Check for error types
//	var tunnelErr *errors.TunnelError
//	if errors.As(err, &tunnelErr) { ... }
//
//	// Use classification helpers
//	if errors.IsRetryable(err) { ... }
//	if errors.IsUserFacing(err) { ... }
//
// # Exit Codes
//
// ExitCode maps an error to the process exit status so that callers and
// scripts can distinguish failure categories without parsing output.
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

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// State-related sentinel errors
var (
	// ErrLockBusy indicates that a state lock is held by another live process
	// and could not be acquired within the configured wait.
	ErrLockBusy = New("state lock busy")
	// ErrStaleRecord indicates that persisted state references a process that
	// no longer exists. Callers recover from it transparently; it is never
	// returned to users.
	ErrStaleRecord = New("stale state record")
	// ErrStateCorrupted indicates that a state document could not be decoded.
	ErrStateCorrupted = New("state document corrupted")
)

// Port-related sentinel errors
var (
	// ErrPortExhausted indicates that no free local port was found within the
	// configured scan window.
	ErrPortExhausted = New("no free port in scan window")
)

// Tunnel-related sentinel errors
var (
	// ErrTunnelDied indicates that a tunnel subprocess exited before it was
	// confirmed established.
	ErrTunnelDied = New("tunnel process died")
	// ErrTunnelNotFound indicates that no tunnel record exists for an instance.
	ErrTunnelNotFound = New("tunnel not found")
)

// Monitor-related sentinel errors
var (
	// ErrUnreachable indicates that the remote instance could not be reached
	// after repeated attempts.
	ErrUnreachable = New("instance unreachable")
	// ErrProvisioningFailed indicates that the remote log contained an
	// explicit error marker.
	ErrProvisioningFailed = New("provisioning failed")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
	// ErrOperationFailed indicates a general operation failure.
	ErrOperationFailed = New("operation failed")
)

// -----------------------------------------------------------------------------
// Exit Codes
// -----------------------------------------------------------------------------

// Exit codes returned by the berth binary. Code 2 is avoided because shells
// and flag parsers conventionally use it for usage errors.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitUnreachable   = 3
	ExitTimeout       = 4
	ExitPortExhausted = 5
	ExitTunnelDied    = 6
	ExitLockBusy      = 7
)

// ExitCode maps an error to a process exit status. Sentinels are matched
// through wrapped chains, so a MonitorError carrying ErrUnreachable maps the
// same as the bare sentinel.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case Is(err, ErrUnreachable):
		return ExitUnreachable
	case Is(err, ErrTimeout):
		return ExitTimeout
	case Is(err, ErrPortExhausted):
		return ExitPortExhausted
	case Is(err, ErrTunnelDied):
		return ExitTunnelDied
	case Is(err, ErrLockBusy):
		return ExitLockBusy
	default:
		return ExitFailure
	}
}

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// BerthError is the base interface for all berth errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type BerthError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	// This is used by errors.Is() for error comparison.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
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

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// StateError represents errors related to the on-disk state documents and
// their advisory locks.
//
// Example:
//
//	err := errors.NewStateError("failed to save document", cause)
//	err = err.WithPath("/home/u/.local/state/berth/ports.json")
//	fmt.Println(err) // "state error [path=...]: failed to save document: ..."
type StateError struct {
	baseError
	Path     string
	Document string
}

// NewStateError creates a new StateError.
func NewStateError(message string, cause error) *StateError {
	return &StateError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithPath adds the document path to the error context.
func (e *StateError) WithPath(path string) *StateError {
	e.Path = path
	return e
}

// WithDocument adds the document name to the error context.
func (e *StateError) WithDocument(name string) *StateError {
	e.Document = name
	return e
}

// WithSeverity sets the error severity.
func (e *StateError) WithSeverity(s Severity) *StateError {
	e.severity = s
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *StateError) WithRetryable(r bool) *StateError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *StateError) Error() string {
	var parts []string
	if e.Document != "" {
		parts = append(parts, fmt.Sprintf("document=%s", e.Document))
	}
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}

	prefix := "state error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("state error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
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

// PortError represents errors related to local port allocation.
//
// Example:
//
//	err := errors.NewPortError("allocation failed", errors.ErrPortExhausted)
//	err = err.WithInstanceID("12345").WithBasePort(8188)
type PortError struct {
	baseError
	InstanceID string
	Port       int
	BasePort   int
}

// NewPortError creates a new PortError.
func NewPortError(message string, cause error) *PortError {
	return &PortError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithInstanceID adds an instance ID to the error context.
func (e *PortError) WithInstanceID(id string) *PortError {
	e.InstanceID = id
	return e
}

// WithPort adds the affected port to the error context.
func (e *PortError) WithPort(port int) *PortError {
	e.Port = port
	return e
}

// WithBasePort adds the scan base port to the error context.
func (e *PortError) WithBasePort(port int) *PortError {
	e.BasePort = port
	return e
}

// WithSeverity sets the error severity.
func (e *PortError) WithSeverity(s Severity) *PortError {
	e.severity = s
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *PortError) WithRetryable(r bool) *PortError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *PortError) Error() string {
	var parts []string
	if e.InstanceID != "" {
		parts = append(parts, fmt.Sprintf("instance=%s", e.InstanceID))
	}
	if e.Port > 0 {
		parts = append(parts, fmt.Sprintf("port=%d", e.Port))
	}
	if e.BasePort > 0 {
		parts = append(parts, fmt.Sprintf("base=%d", e.BasePort))
	}

	prefix := "port error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("port error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *PortError) Is(target error) bool {
	if _, ok := target.(*PortError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// TunnelError represents errors related to tunnel process management.
//
// Example:
//
//	err := errors.NewTunnelError("tunnel died immediately", errors.ErrTunnelDied)
//	err = err.WithInstanceID("12345").WithLocalPort(8189).WithPID(4242)
type TunnelError struct {
	baseError
	InstanceID string
	LocalPort  int
	PID        int
}

// NewTunnelError creates a new TunnelError.
func NewTunnelError(message string, cause error) *TunnelError {
	return &TunnelError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithInstanceID adds an instance ID to the error context.
func (e *TunnelError) WithInstanceID(id string) *TunnelError {
	e.InstanceID = id
	return e
}

// WithLocalPort adds the local port to the error context.
func (e *TunnelError) WithLocalPort(port int) *TunnelError {
	e.LocalPort = port
	return e
}

// WithPID adds the subprocess PID to the error context.
func (e *TunnelError) WithPID(pid int) *TunnelError {
	e.PID = pid
	return e
}

// WithSeverity sets the error severity.
func (e *TunnelError) WithSeverity(s Severity) *TunnelError {
	e.severity = s
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *TunnelError) WithRetryable(r bool) *TunnelError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *TunnelError) Error() string {
	var parts []string
	if e.InstanceID != "" {
		parts = append(parts, fmt.Sprintf("instance=%s", e.InstanceID))
	}
	if e.LocalPort > 0 {
		parts = append(parts, fmt.Sprintf("port=%d", e.LocalPort))
	}
	if e.PID > 0 {
		parts = append(parts, fmt.Sprintf("pid=%d", e.PID))
	}

	prefix := "tunnel error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("tunnel error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *TunnelError) Is(target error) bool {
	if _, ok := target.(*TunnelError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// MonitorError represents errors related to readiness monitoring and remote
// log access.
//
// Example:
//
//	err := errors.NewMonitorError("log fetch failed", errors.ErrUnreachable)
//	err = err.WithInstanceID("12345").WithStage("DOWNLOADING")
type MonitorError struct {
	baseError
	InstanceID string
	Stage      string
	Host       string
}

// NewMonitorError creates a new MonitorError.
func NewMonitorError(message string, cause error) *MonitorError {
	return &MonitorError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithInstanceID adds an instance ID to the error context.
func (e *MonitorError) WithInstanceID(id string) *MonitorError {
	e.InstanceID = id
	return e
}

// WithStage adds the lifecycle stage at failure time to the error context.
func (e *MonitorError) WithStage(stage string) *MonitorError {
	e.Stage = stage
	return e
}

// WithHost adds the SSH host to the error context.
func (e *MonitorError) WithHost(host string) *MonitorError {
	e.Host = host
	return e
}

// WithSeverity sets the error severity.
func (e *MonitorError) WithSeverity(s Severity) *MonitorError {
	e.severity = s
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *MonitorError) WithRetryable(r bool) *MonitorError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *MonitorError) Error() string {
	var parts []string
	if e.InstanceID != "" {
		parts = append(parts, fmt.Sprintf("instance=%s", e.InstanceID))
	}
	if e.Stage != "" {
		parts = append(parts, fmt.Sprintf("stage=%s", e.Stage))
	}
	if e.Host != "" {
		parts = append(parts, fmt.Sprintf("host=%s", e.Host))
	}

	prefix := "monitor error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("monitor error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *MonitorError) Is(target error) bool {
	if _, ok := target.(*MonitorError); ok {
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
//	err := errors.NewNotFoundError("tunnel", "12345")
//	fmt.Println(err) // "tunnel '12345' not found"
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
			severity:   SeverityWarning,
			retryable:  false,
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

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("ssh host cannot be empty")
//	err = err.WithField("ssh_host").WithValue("")
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
			severity:   SeverityWarning,
			retryable:  false,
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

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
//
// Example:
//
//	err := errors.NewTimeoutError("waiting for instance to become ready", time.Hour)
//	fmt.Println(err) // "timeout error: waiting for instance to become ready (timeout: 1h0m0s)"
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
			severity:   SeverityWarning,
			retryable:  true, // Timeouts are generally retryable
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

// WithRetryable sets whether the error is retryable (default true for timeouts).
func (e *TimeoutError) WithRetryable(r bool) *TimeoutError {
	e.retryable = r
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
	if errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry. This checks for:
//   - Errors implementing BerthError with IsRetryable() returning true
//   - TimeoutError instances
//   - Errors wrapping ErrTimeout, ErrUnreachable, or ErrLockBusy
//
// Example:
//
//	if errors.IsRetryable(err) {
//	    time.Sleep(backoff)
//	    return retry(operation)
//	}
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Check if error implements BerthError
	var berthErr BerthError
	if As(err, &berthErr) {
		return berthErr.IsRetryable()
	}

	// Check for known retryable sentinel errors
	if Is(err, ErrTimeout) || Is(err, ErrUnreachable) || Is(err, ErrLockBusy) {
		return true
	}

	return false
}

// IsUserFacing returns true if the error message is safe to display to end users.
// This checks for:
//   - Errors implementing BerthError with IsUserFacing() returning true
//   - Semantic errors (NotFoundError, ValidationError, TimeoutError)
//
// Example:
//
//	if errors.IsUserFacing(err) {
//	    displayToUser(err.Error())
//	} else {
//	    displayToUser("An internal error occurred")
//	    log.Error("internal error", "err", err)
//	}
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	// Check if error implements BerthError
	var berthErr BerthError
	if As(err, &berthErr) {
		return berthErr.IsUserFacing()
	}

	// Semantic errors are always user-facing
	var notFound *NotFoundError
	var validation *ValidationError
	var timeout *TimeoutError

	if As(err, &notFound) || As(err, &validation) || As(err, &timeout) {
		return true
	}

	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement BerthError.
//
// Example:
//
//	switch errors.GetSeverity(err) {
//	case errors.SeverityCritical:
//	    alertOperator(err)
//	case errors.SeverityError:
//	    log.Error("error occurred", "err", err)
//	case errors.SeverityWarning:
//	    log.Warn("warning", "err", err)
//	}
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	// Check if error implements BerthError
	var berthErr BerthError
	if As(err, &berthErr) {
		return berthErr.Severity()
	}

	// Default to Error severity for unknown errors
	return SeverityError
}

// IsDomainError returns true if the error is a domain-specific error
// (StateError, PortError, TunnelError, or MonitorError).
func IsDomainError(err error) bool {
	if err == nil {
		return false
	}

	var stateErr *StateError
	var portErr *PortError
	var tunnelErr *TunnelError
	var monitorErr *MonitorError

	return As(err, &stateErr) || As(err, &portErr) ||
		As(err, &tunnelErr) || As(err, &monitorErr)
}

// IsSemanticError returns true if the error is a semantic error
// (NotFoundError, ValidationError, or TimeoutError).
func IsSemanticError(err error) bool {
	if err == nil {
		return false
	}

	var notFound *NotFoundError
	var validation *ValidationError
	var timeout *TimeoutError

	return As(err, &notFound) || As(err, &validation) || As(err, &timeout)
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
// Unlike fmt.Errorf with %w, this preserves the BerthError interface.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to create tunnel")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
//
// Example:
//
//	err := errors.Wrapf(baseErr, "failed to stop tunnel for instance %s", id)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
