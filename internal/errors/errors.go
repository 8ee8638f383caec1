// Package errors provides centralized error definitions and error handling
// utilities for the schedswap codebase. It defines domain-specific errors,
// semantic error types, error constructors with context wrapping, and error
// classification helpers.
//
// # Error Types
//
// The package provides two categories of errors:
//
// Domain-specific errors represent errors from specific subsystems:
//   - RegistryError: errors from scheduler plugin registration and lookup
//   - SwitchError: errors from the hot-swap switch controller
//   - MigrationError: errors from task migration between schedulers
//   - QueueError: errors from the ready queue and task table
//
// Semantic errors represent common error conditions:
//   - NotFoundError: resource not found
//   - AlreadyExistsError: resource already exists
//   - ValidationError: invalid input or state
//   - TimeoutError: operation timed out
//   - ChecksumError: integrity verification failed
//
// # Usage
//
// Creating errors:
//
//	// Domain-specific error
//	err := errors.NewRegistryError("register failed", errors.ErrRegistryFull)
//
//	// Semantic error
//	err := errors.NewNotFoundError("scheduler", "edf")
//
//	// With context wrapping
//	err := errors.NewSwitchError("migration aborted", baseErr).WithPhase("MIGRATING_TASKS")
//
// Checking errors:
//
//	// Check for specific sentinel errors
//	if errors.Is(err, errors.ErrSwitchInProgress) { ... }
//
//	// Check for error types
//	var swErr *errors.SwitchError
//	if errors.As(err, &swErr) { ... }
//
//	// Use classification helpers
//	if errors.IsRetryable(err) { ... }
//	if errors.IsUserFacing(err) { ... }
//
// # Error Classification
//
// Errors can be classified by severity and behavior:
//   - Retryable: transient errors that may succeed on retry
//   - UserFacing: errors safe to display to users (vs internal errors)
//   - Severity: Debug, Info, Warning, Error, Critical
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

// Registry-related sentinel errors
var (
	// ErrSchedulerNotFound indicates that a scheduler plugin could not be found.
	ErrSchedulerNotFound = New("scheduler not found")
	// ErrSchedulerExists indicates that a scheduler ID is already registered.
	ErrSchedulerExists = New("scheduler already registered")
	// ErrRegistryFull indicates that the plugin registry has no free slots.
	ErrRegistryFull = New("scheduler registry full")
	// ErrSchedulerActive indicates an operation rejected because the scheduler is active.
	ErrSchedulerActive = New("scheduler is active")
	// ErrNotInitialized indicates that a component has not been initialized yet.
	ErrNotInitialized = New("not initialized")
	// ErrAlreadyInitialized indicates a repeated initialization attempt.
	ErrAlreadyInitialized = New("already initialized")
	// ErrAlreadyStarted indicates a repeated start attempt.
	ErrAlreadyStarted = New("already started")
)

// Switch-related sentinel errors
var (
	// ErrSwitchInProgress indicates that another switch transaction is running.
	ErrSwitchInProgress = New("switch already in progress")
	// ErrSwitchTooSoon indicates that the minimum interval between switches
	// has not elapsed.
	ErrSwitchTooSoon = New("switch requested too soon")
	// ErrSwitchBudget indicates that the estimated switch duration exceeds
	// the allowed budget.
	ErrSwitchBudget = New("switch exceeds duration budget")
	// ErrSwitchNotAllowed indicates that switching is disallowed by policy.
	ErrSwitchNotAllowed = New("switch not allowed")
	// ErrPhaseTransition indicates an illegal switch phase transition.
	ErrPhaseTransition = New("invalid phase transition")
	// ErrRollbackFailed indicates that rollback could not restore the source
	// scheduler. The system may be degraded.
	ErrRollbackFailed = New("rollback failed")
)

// Migration-related sentinel errors
var (
	// ErrMigrationIncomplete indicates that not all tasks were migrated.
	ErrMigrationIncomplete = New("migration incomplete")
	// ErrBatchTooLarge indicates a migration plan over the batch cap.
	ErrBatchTooLarge = New("migration batch too large")
	// ErrNoCustomOrder indicates a Custom migration strategy with no ordering
	// function installed.
	ErrNoCustomOrder = New("no custom ordering function")
)

// Queue-related sentinel errors
var (
	// ErrQueueFull indicates that the node arena has no free slots.
	ErrQueueFull = New("ready queue full")
	// ErrQueueEmpty indicates a dequeue from an empty queue.
	ErrQueueEmpty = New("ready queue empty")
	// ErrTaskNotQueued indicates that a task is not present in the queue.
	ErrTaskNotQueued = New("task not queued")
	// ErrInheritanceDepth indicates the priority inheritance chain limit was hit.
	ErrInheritanceDepth = New("inheritance chain too deep")
	// ErrInheritanceFull indicates no free inheritance records remain.
	ErrInheritanceFull = New("inheritance table full")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
	// ErrChecksumMismatch indicates that an integrity check failed.
	ErrChecksumMismatch = New("checksum mismatch")
	// ErrBusy indicates that a resource is busy.
	ErrBusy = New("resource busy")
	// ErrNoResource indicates that a fixed-capacity resource is exhausted.
	ErrNoResource = New("no resource available")
	// ErrOperationFailed indicates a general operation failure.
	ErrOperationFailed = New("operation failed")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// SchedError is the base interface for all schedswap errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type SchedError interface {
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

// RegistryError represents errors from scheduler plugin registration and lookup.
//
// Example:
//
//	err := errors.NewRegistryError("register failed", errors.ErrRegistryFull)
//	err = err.WithScheduler("edf")
//	fmt.Println(err) // "registry error [scheduler=edf]: register failed: scheduler registry full"
type RegistryError struct {
	baseError
	Scheduler string
	Slot      int
}

// NewRegistryError creates a new RegistryError.
func NewRegistryError(message string, cause error) *RegistryError {
	return &RegistryError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
		Slot: -1, // -1 indicates not set
	}
}

// WithScheduler adds a scheduler name to the error context.
func (e *RegistryError) WithScheduler(name string) *RegistryError {
	e.Scheduler = name
	return e
}

// WithSlot adds a registry slot index to the error context.
func (e *RegistryError) WithSlot(slot int) *RegistryError {
	e.Slot = slot
	return e
}

// WithSeverity sets the error severity.
func (e *RegistryError) WithSeverity(s Severity) *RegistryError {
	e.severity = s
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *RegistryError) WithRetryable(r bool) *RegistryError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *RegistryError) Error() string {
	var parts []string
	if e.Scheduler != "" {
		parts = append(parts, fmt.Sprintf("scheduler=%s", e.Scheduler))
	}
	if e.Slot >= 0 {
		parts = append(parts, fmt.Sprintf("slot=%d", e.Slot))
	}

	prefix := "registry error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("registry error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *RegistryError) Is(target error) bool {
	if _, ok := target.(*RegistryError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// SwitchError represents errors from the hot-swap switch controller.
//
// Example:
//
//	err := errors.NewSwitchError("verification failed", errors.ErrChecksumMismatch)
//	err = err.WithSwitchID("b2f1...").WithPhase("VERIFYING")
type SwitchError struct {
	baseError
	SwitchID string
	Phase    string
	From     string
	To       string
}

// NewSwitchError creates a new SwitchError.
func NewSwitchError(message string, cause error) *SwitchError {
	return &SwitchError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithSwitchID adds a switch transaction ID to the error context.
func (e *SwitchError) WithSwitchID(id string) *SwitchError {
	e.SwitchID = id
	return e
}

// WithPhase adds the phase in which the error occurred.
func (e *SwitchError) WithPhase(phase string) *SwitchError {
	e.Phase = phase
	return e
}

// WithSchedulers adds the source and target scheduler names.
func (e *SwitchError) WithSchedulers(from, to string) *SwitchError {
	e.From = from
	e.To = to
	return e
}

// WithSeverity sets the error severity.
func (e *SwitchError) WithSeverity(s Severity) *SwitchError {
	e.severity = s
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *SwitchError) WithRetryable(r bool) *SwitchError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *SwitchError) Error() string {
	var parts []string
	if e.SwitchID != "" {
		parts = append(parts, fmt.Sprintf("switch=%s", e.SwitchID))
	}
	if e.Phase != "" {
		parts = append(parts, fmt.Sprintf("phase=%s", e.Phase))
	}
	if e.From != "" || e.To != "" {
		parts = append(parts, fmt.Sprintf("%s->%s", e.From, e.To))
	}

	prefix := "switch error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("switch error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *SwitchError) Is(target error) bool {
	if _, ok := target.(*SwitchError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// MigrationError represents errors from task migration between schedulers.
//
// Example:
//
//	err := errors.NewMigrationError("insert rejected", cause)
//	err = err.WithTaskID(12).WithMigrated(3)
type MigrationError struct {
	baseError
	TaskID   uint32
	Migrated int
	Strategy string
}

// NewMigrationError creates a new MigrationError.
func NewMigrationError(message string, cause error) *MigrationError {
	return &MigrationError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
		Migrated: -1, // -1 indicates not set
	}
}

// WithTaskID adds the failing task ID to the error context.
func (e *MigrationError) WithTaskID(id uint32) *MigrationError {
	e.TaskID = id
	return e
}

// WithMigrated records how many tasks had already been moved.
func (e *MigrationError) WithMigrated(n int) *MigrationError {
	e.Migrated = n
	return e
}

// WithStrategy adds the migration strategy name to the error context.
func (e *MigrationError) WithStrategy(name string) *MigrationError {
	e.Strategy = name
	return e
}

// WithSeverity sets the error severity.
func (e *MigrationError) WithSeverity(s Severity) *MigrationError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *MigrationError) Error() string {
	var parts []string
	if e.TaskID != 0 {
		parts = append(parts, fmt.Sprintf("task=%d", e.TaskID))
	}
	if e.Migrated >= 0 {
		parts = append(parts, fmt.Sprintf("migrated=%d", e.Migrated))
	}
	if e.Strategy != "" {
		parts = append(parts, fmt.Sprintf("strategy=%s", e.Strategy))
	}

	prefix := "migration error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("migration error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *MigrationError) Is(target error) bool {
	if _, ok := target.(*MigrationError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// QueueError represents errors from the ready queue and task table.
//
// Example:
//
//	err := errors.NewQueueError("enqueue failed", errors.ErrQueueFull)
//	err = err.WithTaskID(7).WithPriority(128)
type QueueError struct {
	baseError
	TaskID   uint32
	Priority int
}

// NewQueueError creates a new QueueError.
func NewQueueError(message string, cause error) *QueueError {
	return &QueueError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: false,
		},
		Priority: -1, // -1 indicates not set
	}
}

// WithTaskID adds a task ID to the error context.
func (e *QueueError) WithTaskID(id uint32) *QueueError {
	e.TaskID = id
	return e
}

// WithPriority adds a priority level to the error context.
func (e *QueueError) WithPriority(p int) *QueueError {
	e.Priority = p
	return e
}

// WithSeverity sets the error severity.
func (e *QueueError) WithSeverity(s Severity) *QueueError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *QueueError) Error() string {
	var parts []string
	if e.TaskID != 0 {
		parts = append(parts, fmt.Sprintf("task=%d", e.TaskID))
	}
	if e.Priority >= 0 {
		parts = append(parts, fmt.Sprintf("priority=%d", e.Priority))
	}

	prefix := "queue error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("queue error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *QueueError) Is(target error) bool {
	if _, ok := target.(*QueueError); ok {
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
//	err := errors.NewNotFoundError("scheduler", "edf")
//	fmt.Println(err) // "scheduler 'edf' not found"
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
	if errors.Is(target, ErrSchedulerNotFound) {
		return true
	}
	return e.baseError.Is(target)
}

// AlreadyExistsError represents a resource that already exists.
//
// Example:
//
//	err := errors.NewAlreadyExistsError("scheduler", "round_robin")
//	fmt.Println(err) // "scheduler 'round_robin' already exists"
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
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *AlreadyExistsError) WithCause(cause error) *AlreadyExistsError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *AlreadyExistsError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' already exists: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' already exists", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *AlreadyExistsError) Is(target error) bool {
	if _, ok := target.(*AlreadyExistsError); ok {
		return true
	}
	if errors.Is(target, ErrSchedulerExists) {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("priority out of range")
//	err = err.WithField("priority").WithValue(300)
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
//	err := errors.NewTimeoutError("waiting for switch to complete", 500*time.Microsecond)
//	fmt.Println(err) // "timeout error: waiting for switch to complete (timeout: 500µs)"
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

// ChecksumError represents a failed integrity verification.
//
// Example:
//
//	err := errors.NewChecksumError("state snapshot", 0x5a13, 0x5a10)
//	fmt.Println(err) // "checksum mismatch on state snapshot: want 0x5a13, got 0x5a10"
type ChecksumError struct {
	baseError
	Subject string
	Want    uint32
	Got     uint32
}

// NewChecksumError creates a new ChecksumError.
func NewChecksumError(subject string, want, got uint32) *ChecksumError {
	return &ChecksumError{
		baseError: baseError{
			message:    fmt.Sprintf("checksum mismatch on %s", subject),
			severity:   SeverityCritical,
			retryable:  false,
			userFacing: false,
		},
		Subject: subject,
		Want:    want,
		Got:     got,
	}
}

// WithCause adds a cause to the error.
func (e *ChecksumError) WithCause(cause error) *ChecksumError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ChecksumError) Error() string {
	base := fmt.Sprintf("checksum mismatch on %s: want 0x%x, got 0x%x", e.Subject, e.Want, e.Got)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *ChecksumError) Is(target error) bool {
	if _, ok := target.(*ChecksumError); ok {
		return true
	}
	if errors.Is(target, ErrChecksumMismatch) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry. This checks for:
//   - Errors implementing SchedError with IsRetryable() returning true
//   - TimeoutError instances
//   - Errors wrapping ErrTimeout, ErrBusy, or ErrSwitchTooSoon
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

	// Check if error implements SchedError
	var schedErr SchedError
	if As(err, &schedErr) {
		return schedErr.IsRetryable()
	}

	// Check for known retryable sentinel errors
	if Is(err, ErrTimeout) || Is(err, ErrBusy) || Is(err, ErrSwitchTooSoon) {
		return true
	}

	return false
}

// IsUserFacing returns true if the error message is safe to display to end users.
// This checks for:
//   - Errors implementing SchedError with IsUserFacing() returning true
//   - Semantic errors (NotFoundError, AlreadyExistsError, ValidationError, TimeoutError)
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

	// Check if error implements SchedError
	var schedErr SchedError
	if As(err, &schedErr) {
		return schedErr.IsUserFacing()
	}

	// Semantic errors are always user-facing
	var notFound *NotFoundError
	var alreadyExists *AlreadyExistsError
	var validation *ValidationError
	var timeout *TimeoutError

	if As(err, &notFound) || As(err, &alreadyExists) ||
		As(err, &validation) || As(err, &timeout) {
		return true
	}

	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement SchedError.
//
// Example:
//
//	switch errors.GetSeverity(err) {
//	case errors.SeverityCritical:
//	    haltSwitching(err)
//	case errors.SeverityError:
//	    log.Error("error occurred", "err", err)
//	case errors.SeverityWarning:
//	    log.Warn("warning", "err", err)
//	}
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	// Check if error implements SchedError
	var schedErr SchedError
	if As(err, &schedErr) {
		return schedErr.Severity()
	}

	// Default to Error severity for unknown errors
	return SeverityError
}

// IsDomainError returns true if the error is a domain-specific error
// (RegistryError, SwitchError, MigrationError, or QueueError).
func IsDomainError(err error) bool {
	if err == nil {
		return false
	}

	var registryErr *RegistryError
	var switchErr *SwitchError
	var migrationErr *MigrationError
	var queueErr *QueueError

	return As(err, &registryErr) || As(err, &switchErr) ||
		As(err, &migrationErr) || As(err, &queueErr)
}

// IsSemanticError returns true if the error is a semantic error
// (NotFoundError, AlreadyExistsError, ValidationError, TimeoutError, or
// ChecksumError).
func IsSemanticError(err error) bool {
	if err == nil {
		return false
	}

	var notFound *NotFoundError
	var alreadyExists *AlreadyExistsError
	var validation *ValidationError
	var timeout *TimeoutError
	var checksum *ChecksumError

	return As(err, &notFound) || As(err, &alreadyExists) ||
		As(err, &validation) || As(err, &timeout) || As(err, &checksum)
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
// Unlike fmt.Errorf with %w, this preserves the SchedError interface.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to activate scheduler")
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
//	err := errors.Wrapf(baseErr, "failed to migrate task %d", taskID)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
