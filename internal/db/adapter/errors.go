package adapter

import (
	"errors"
	"fmt"

	"github.com/trellishq/trellis/internal/db/capability"
)

// Sentinel errors for the error taxonomy of the storage layer. Typed
// wrappers below implement Is against these so callers can branch with
// errors.Is without caring about the concrete type.
var (
	// ErrUnsupportedAdapter marks a startup-time configuration mistake:
	// the selected adapter kind is unknown or not registered.
	ErrUnsupportedAdapter = errors.New("unsupported adapter kind")

	// ErrConnectionFailed marks a network or authentication failure.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrDatabaseMissing marks the one recoverable connection failure:
	// the target database does not exist yet.
	ErrDatabaseMissing = errors.New("database does not exist")

	// ErrConnectionClosed is returned when using a released connection.
	ErrConnectionClosed = errors.New("connection is closed")

	// ErrLedgerUnavailable marks the migration ledger as unusable; the
	// whole migration subsystem is down without it.
	ErrLedgerUnavailable = errors.New("migration ledger unavailable")

	// ErrNothingToUndo is returned by rollback when the ledger is empty.
	ErrNothingToUndo = errors.New("nothing to undo: no applied migrations")

	// ErrConflictingSchemaModes is returned when eager schema sync and
	// ledger-tracked migrations are both configured.
	ErrConflictingSchemaModes = errors.New("eager sync and ledger migrations are mutually exclusive")

	// ErrOperationNotSupported is returned when a backend cannot perform
	// the requested operation category.
	ErrOperationNotSupported = errors.New("operation not supported by this adapter")
)

// UnsupportedAdapterError reports an unknown or unregistered adapter kind.
type UnsupportedAdapterError struct {
	Kind string
}

func (e *UnsupportedAdapterError) Error() string {
	return fmt.Sprintf("unsupported adapter kind %q", e.Kind)
}

func (e *UnsupportedAdapterError) Is(target error) bool {
	return errors.Is(target, ErrUnsupportedAdapter)
}

// ConnectionError wraps a failed connection attempt with its target.
type ConnectionError struct {
	Kind  capability.Kind
	Host  string
	Port  int
	Cause error
}

func (e *ConnectionError) Error() string {
	if e.Host != "" {
		return fmt.Sprintf("failed to connect to %s at %s:%d: %v", e.Kind, e.Host, e.Port, e.Cause)
	}
	return fmt.Sprintf("failed to connect to %s: %v", e.Kind, e.Cause)
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

func (e *ConnectionError) Is(target error) bool {
	if errors.Is(target, ErrConnectionFailed) {
		return true
	}
	return errors.Is(e.Cause, target)
}

// NewConnectionError builds a ConnectionError for the given target.
func NewConnectionError(kind capability.Kind, host string, port int, cause error) *ConnectionError {
	return &ConnectionError{Kind: kind, Host: host, Port: port, Cause: cause}
}

// ConfigurationError reports an invalid connection configuration field.
type ConfigurationError struct {
	Kind   capability.Kind
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s configuration: field %q: %s", e.Kind, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s configuration: %s", e.Kind, e.Reason)
}

// NewConfigurationError builds a ConfigurationError.
func NewConfigurationError(kind capability.Kind, field, reason string) *ConfigurationError {
	return &ConfigurationError{Kind: kind, Field: field, Reason: reason}
}

// UnsupportedOperationError reports an operation a backend cannot perform.
type UnsupportedOperationError struct {
	Kind      capability.Kind
	Operation string
	Reason    string
}

func (e *UnsupportedOperationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s does not support %s: %s", e.Kind, e.Operation, e.Reason)
	}
	return fmt.Sprintf("%s does not support %s", e.Kind, e.Operation)
}

func (e *UnsupportedOperationError) Is(target error) bool {
	return errors.Is(target, ErrOperationNotSupported)
}

// WrapError attaches adapter and operation context to an error, without
// double-wrapping errors that already carry it.
func WrapError(kind capability.Kind, operation string, err error) error {
	if err == nil {
		return nil
	}
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return err
	}
	return &OperationError{Kind: kind, Operation: operation, Cause: err}
}

// OperationError wraps backend errors with adapter and operation context.
type OperationError struct {
	Kind      capability.Kind
	Operation string
	Cause     error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Operation, e.Cause)
}

func (e *OperationError) Unwrap() error { return e.Cause }
