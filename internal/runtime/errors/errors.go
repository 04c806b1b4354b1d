package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrConfigRequired          = sterrors.New("flowcore: configuration is required")
	ErrLoggerRequired          = sterrors.New("flowcore: logger is required")
	ErrMessageRequired         = sterrors.New("flowcore: message is required")
	ErrSessionRequired         = sterrors.New("flowcore: session is required")
	ErrEndpointRequired        = sterrors.New("flowcore: endpoint is required")
	ErrComponentRequired       = sterrors.New("flowcore: component is required")
	ErrPublisherRequired       = sterrors.New("flowcore: publisher is required")
	ErrSubscriberRequired      = sterrors.New("flowcore: subscriber is required")
	ErrNoOutboundRoute         = sterrors.New("flowcore: no outbound route for message")
	ErrNoEntryPoint            = sterrors.New("flowcore: component has no entry point")
	ErrEndpointNotSendable     = sterrors.New("flowcore: endpoint cannot send")
	ErrEndpointNotReceivable   = sterrors.New("flowcore: endpoint cannot receive")
	ErrReplyTimeout            = sterrors.New("flowcore: timed out waiting for reply")
	ErrReceiveTimeout          = sterrors.New("flowcore: timed out waiting for message")
	ErrRemoteSyncInTransaction = sterrors.New("flowcore: remote sync is not allowed inside a transaction")
	ErrComponentAlreadyBound   = sterrors.New("flowcore: session component is already bound")
	ErrSessionInvalid          = sterrors.New("flowcore: session is invalid")
	ErrNoRequestScope          = sterrors.New("flowcore: no request scope in context")
	ErrAdapterDisposed         = sterrors.New("flowcore: component adapter is disposed")
	ErrComponentNotStarted     = sterrors.New("flowcore: component is not started")
	ErrPoolStopped             = sterrors.New("flowcore: work manager is stopped")
	ErrPoolNotStarted          = sterrors.New("flowcore: work manager is not started")
)

// ConfigValidationError reports a Config that failed Validate.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "flowcore: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error { return e.Err }

// NewConfigValidationError wraps err, returning nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}

// ConfigurationError is raised when a collaborator is wired incorrectly, for
// example a receive-only endpoint registered as a dead-letter target. It is
// returned at registration time.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("flowcore: configuration error: %s: %v", e.Reason, e.Err)
	}
	return "flowcore: configuration error: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// LifecycleError wraps a failure raised while moving a component through
// initialise, start, stop or dispose.
type LifecycleError struct {
	Component string
	Phase     string
	Err       error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("flowcore: component %q failed to %s: %v", e.Component, e.Phase, e.Err)
}

func (e *LifecycleError) Unwrap() error { return e.Err }

// DispatchError reports a send, dispatch or receive failure on an endpoint.
type DispatchError struct {
	Endpoint string
	Op       string
	Err      error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("flowcore: %s on endpoint %q failed: %v", e.Op, e.Endpoint, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// FatalError is a failure raised while a previous failure was being handled.
// Nothing recovers from it.
type FatalError struct {
	Cause error
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("flowcore: fatal error while handling %v: %v", e.Cause, e.Err)
}

func (e *FatalError) Unwrap() []error { return []error{e.Err, e.Cause} }

// StateError reports an operation that is illegal in the current state.
type StateError struct {
	Op  string
	Err error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("flowcore: illegal state for %s: %v", e.Op, e.Err)
}

func (e *StateError) Unwrap() error { return e.Err }

// AccessViolationError is raised when an owned object is touched by a
// non-owner or written after it was sealed.
type AccessViolationError struct {
	Object string
	Owner  string
	Caller string
	Sealed bool
}

func (e *AccessViolationError) Error() string {
	if e.Sealed {
		return fmt.Sprintf("flowcore: %s is sealed; write from %s rejected", e.Object, e.Caller)
	}
	return fmt.Sprintf("flowcore: %s is owned by %s; write from %s rejected", e.Object, e.Owner, e.Caller)
}

// ConversionError reports a payload that could not be converted.
type ConversionError struct {
	From string
	To   string
	Err  error
}

func (e *ConversionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("flowcore: cannot convert %s to %s: %v", e.From, e.To, e.Err)
	}
	return fmt.Sprintf("flowcore: cannot convert %s to %s", e.From, e.To)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// HeaderParseError reports a malformed session header segment.
type HeaderParseError struct {
	Segment string
	Err     error
}

func (e *HeaderParseError) Error() string {
	if e.Segment == "" {
		return fmt.Sprintf("flowcore: invalid session header: %v", e.Err)
	}
	return fmt.Sprintf("flowcore: invalid session header segment %q", e.Segment)
}

func (e *HeaderParseError) Unwrap() error { return e.Err }
