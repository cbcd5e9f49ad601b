package evoke

import (
	"errors"
	"fmt"
)

// ErrClosed is returned when dispatching through a server whose worker pool
// has been shut down.
var ErrClosed = errors.New("server is closed")

// ErrNoHandler is returned by Dispatch when no handler is registered for the
// invocation's event and namespace.
var ErrNoHandler = errors.New("no handler for event")

// ErrQueueFull is returned when the async dispatch queue is at capacity.
var ErrQueueFull = errors.New("dispatch queue is full")

// ContextUnavailableError is returned when a handler requests an ambient value
// outside the invocation that carries it. The canonical cases are Auth outside
// a connect dispatch and Reason outside a disconnect dispatch.
type ContextUnavailableError struct {
	// Key is the ambient value that was requested (e.g. "auth", "reason").
	Key string

	// Event is the event being dispatched when the request was made.
	Event string
}

func (e *ContextUnavailableError) Error() string {
	if e.Event == "" {
		return fmt.Sprintf("ambient %s is not available outside a dispatch", e.Key)
	}
	return fmt.Sprintf("ambient %s is not available during %q dispatch", e.Key, e.Event)
}

// ValidationError is returned when a payload cannot be decoded into or fails
// validation against a handler's declared payload model.
type ValidationError struct {
	// Model is the Go type name of the declared payload model.
	Model string

	// Field is the path of the offending field, when known.
	Field string

	// Message describes the failure.
	Message string

	err error
}

func (e *ValidationError) Error() string {
	switch {
	case e.Field != "" && e.Model != "":
		return fmt.Sprintf("validate %s: field %s: %s", e.Model, e.Field, e.Message)
	case e.Model != "":
		return fmt.Sprintf("validate %s: %s", e.Model, e.Message)
	default:
		return fmt.Sprintf("validate payload: %s", e.Message)
	}
}

func (e *ValidationError) Unwrap() error { return e.err }

// ResolutionError is returned when a declared parameter cannot be classified,
// a dependency factory fails, or registration detects a structural problem
// such as a cycle in the factory graph.
type ResolutionError struct {
	// Target is the handler or factory whose parameter could not be resolved.
	Target string

	// Param is the zero-based position of the offending parameter.
	Param int

	// Type is the Go type name of the offending parameter.
	Type string

	// Reason describes why resolution failed.
	Reason string

	err error
}

func (e *ResolutionError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("resolve %s: %s", e.Target, e.Reason)
	}
	return fmt.Sprintf("resolve %s: parameter %d (%s): %s", e.Target, e.Param, e.Type, e.Reason)
}

func (e *ResolutionError) Unwrap() error { return e.err }

// AsyncDependencyError is returned when a synchronous resolution path reaches
// a factory registered with AsyncFactory. Async work must never be smuggled
// into a handler that runs inline on the dispatching goroutine.
type AsyncDependencyError struct {
	// Factory is the name of the async factory that was reached.
	Factory string

	// Target is the sync handler or factory whose resolution reached it.
	Target string
}

func (e *AsyncDependencyError) Error() string {
	return fmt.Sprintf("sync %s depends on async factory %s", e.Target, e.Factory)
}

// RejectionError is returned by a middleware Before hook to deny an event.
// The handler is never invoked and no After hooks run.
type RejectionError struct {
	// Event is the denied event.
	Event string

	// Reason is the middleware author's explanation.
	Reason string
}

func (e *RejectionError) Error() string {
	if e.Event == "" {
		return fmt.Sprintf("rejected: %s", e.Reason)
	}
	return fmt.Sprintf("event %q rejected: %s", e.Event, e.Reason)
}

// Reject builds a RejectionError for use inside a Before hook. The event name
// is filled in by the pipeline before the error is surfaced.
func Reject(reason string) error {
	return &RejectionError{Reason: reason}
}

// IsRejection reports whether err is (or wraps) a middleware rejection.
func IsRejection(err error) bool {
	var re *RejectionError
	return errors.As(err, &re)
}
