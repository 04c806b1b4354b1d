package lifecycle

import (
	"context"
	"time"

	"github.com/drblury/flowcore/internal/runtime/logging"
)

// InvocationContext describes one entry-point invocation to hooks.
type InvocationContext struct {
	// Component is the adapter name.
	Component string
	// EventID is the id of the event being processed.
	EventID string
	// SessionID is the session of the event.
	SessionID string
	// Endpoint is the URI of the endpoint the event arrived on, if any.
	Endpoint string
	// Synchronous reports whether a reply is awaited.
	Synchronous bool
	// Context is the context of the invocation.
	Context context.Context
	// StartedAt is when the invocation started.
	StartedAt time.Time
	// Duration is how long it took (only set in OnInvokeDone and OnInvokeError).
	Duration time.Duration
}

// InvocationHooks defines callbacks around entry-point invocations.
// All hooks are optional - nil hooks are simply not called.
type InvocationHooks struct {
	OnInvokeStart func(ic InvocationContext)
	OnInvokeDone  func(ic InvocationContext)
	OnInvokeError func(ic InvocationContext, err error)
}

// Merge combines two InvocationHooks. The hooks from other run after h's.
func (h InvocationHooks) Merge(other InvocationHooks) InvocationHooks {
	return InvocationHooks{
		OnInvokeStart: chainHooks(h.OnInvokeStart, other.OnInvokeStart),
		OnInvokeDone:  chainHooks(h.OnInvokeDone, other.OnInvokeDone),
		OnInvokeError: chainErrorHooks(h.OnInvokeError, other.OnInvokeError),
	}
}

func chainHooks(a, b func(InvocationContext)) func(InvocationContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ic InvocationContext) {
		a(ic)
		b(ic)
	}
}

func chainErrorHooks(a, b func(InvocationContext, error)) func(InvocationContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ic InvocationContext, err error) {
		a(ic, err)
		b(ic, err)
	}
}

func (h InvocationHooks) start(ic InvocationContext) {
	if h.OnInvokeStart != nil {
		h.OnInvokeStart(ic)
	}
}

func (h InvocationHooks) finish(ic InvocationContext, err error) {
	if err != nil {
		if h.OnInvokeError != nil {
			h.OnInvokeError(ic, err)
		}
		return
	}
	if h.OnInvokeDone != nil {
		h.OnInvokeDone(ic)
	}
}

// LoggingHooks returns hooks that log invocations.
func LoggingHooks(logger logging.ServiceLogger) InvocationHooks {
	logger = logging.OrNop(logger)
	return InvocationHooks{
		OnInvokeStart: func(ic InvocationContext) {
			logger.Debug("Invocation started", logging.LogFields{
				"component": ic.Component,
				"event_id":  ic.EventID,
				"session":   ic.SessionID,
			})
		},
		OnInvokeDone: func(ic InvocationContext) {
			logger.Debug("Invocation completed", logging.LogFields{
				"component":   ic.Component,
				"event_id":    ic.EventID,
				"duration_ms": ic.Duration.Milliseconds(),
			})
		},
		OnInvokeError: func(ic InvocationContext, err error) {
			logger.Error("Invocation failed", err, logging.LogFields{
				"component":   ic.Component,
				"event_id":    ic.EventID,
				"endpoint":    ic.Endpoint,
				"duration_ms": ic.Duration.Milliseconds(),
			})
		},
	}
}

// MetricsHooks returns hooks that report invocations per component.
func MetricsHooks(onStart, onDone, onError func(component string)) InvocationHooks {
	return InvocationHooks{
		OnInvokeStart: func(ic InvocationContext) {
			if onStart != nil {
				onStart(ic.Component)
			}
		},
		OnInvokeDone: func(ic InvocationContext) {
			if onDone != nil {
				onDone(ic.Component)
			}
		},
		OnInvokeError: func(ic InvocationContext, _ error) {
			if onError != nil {
				onError(ic.Component)
			}
		},
	}
}

// AlertingHooks returns hooks that only fire on failures.
func AlertingHooks(alert func(ic InvocationContext, err error)) InvocationHooks {
	return InvocationHooks{OnInvokeError: alert}
}
