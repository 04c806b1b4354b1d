package message

import (
	"fmt"
	"maps"

	"github.com/drblury/flowcore/internal/runtime/errors"
)

// Coder is implemented by failures that carry a numeric code.
type Coder interface {
	Code() int
}

// ExceptionPayload records a failure on the message it happened to.
type ExceptionPayload struct {
	Err     error
	Code    int
	Message string
	Info    map[string]any
}

// NewExceptionPayload describes err. The code comes from the first failure in
// the chain implementing Coder.
func NewExceptionPayload(err error) *ExceptionPayload {
	ep := &ExceptionPayload{Err: err, Info: make(map[string]any)}
	if err == nil {
		return ep
	}
	ep.Message = err.Error()
	ep.Info["type"] = fmt.Sprintf("%T", err)
	errors.Walk(err, func(link error) bool {
		if c, ok := link.(Coder); ok {
			ep.Code = c.Code()
			return false
		}
		return true
	})
	return ep
}

// WithInfo returns a copy of ep with an extra info entry.
func (ep *ExceptionPayload) WithInfo(key string, value any) *ExceptionPayload {
	cp := *ep
	cp.Info = maps.Clone(ep.Info)
	if cp.Info == nil {
		cp.Info = make(map[string]any)
	}
	cp.Info[key] = value
	return &cp
}

// MessagingError is a failure bound to the message being processed.
type MessagingError struct {
	Message   *Message
	Component string
	Err       error
}

func (e *MessagingError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("flowcore: component %q failed processing message: %v", e.Component, e.Err)
	}
	return fmt.Sprintf("flowcore: failed processing message: %v", e.Err)
}

func (e *MessagingError) Unwrap() error { return e.Err }

// NewMessagingError wraps err with the message and component it happened on.
func NewMessagingError(msg *Message, component string, err error) *MessagingError {
	return &MessagingError{Message: msg, Component: component, Err: err}
}

// RoutingError is a failure to route a message to or through an endpoint.
type RoutingError struct {
	Message  *Message
	Endpoint string
	Err      error
}

func (e *RoutingError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("flowcore: failed to route message to %q: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("flowcore: failed to route message: %v", e.Err)
}

func (e *RoutingError) Unwrap() error { return e.Err }

// NewRoutingError wraps err with the message and target endpoint.
func NewRoutingError(msg *Message, endpoint string, err error) *RoutingError {
	return &RoutingError{Message: msg, Endpoint: endpoint, Err: err}
}

// FailedMessage returns the message carried by the first messaging or
// routing failure in err's chain.
func FailedMessage(err error) *Message {
	var found *Message
	errors.Walk(err, func(link error) bool {
		switch e := link.(type) {
		case *RoutingError:
			found = e.Message
		case *MessagingError:
			found = e.Message
		}
		return found == nil
	})
	return found
}
