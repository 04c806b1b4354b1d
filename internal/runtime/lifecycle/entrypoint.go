package lifecycle

import (
	"context"
	"fmt"

	"github.com/drblury/flowcore/internal/runtime/errors"
	"github.com/drblury/flowcore/internal/runtime/event"
	"github.com/drblury/flowcore/internal/runtime/message"
)

// EntryPoint is the operation on a component that business logic runs in.
type EntryPoint interface {
	Invoke(ctx context.Context, ev *event.Event) (any, error)
	// Void reports whether the operation produces no result of its own.
	Void() bool
}

// EntryPointResolver finds the entry point of object for ev.
type EntryPointResolver interface {
	Resolve(object any, ev *event.Event) (EntryPoint, error)
}

// ResolverFunc adapts a function to EntryPointResolver.
type ResolverFunc func(object any, ev *event.Event) (EntryPoint, error)

func (f ResolverFunc) Resolve(object any, ev *event.Event) (EntryPoint, error) { return f(object, ev) }

// Callable is the explicit entry point a component can implement.
type Callable interface {
	OnCall(ctx context.Context, ev *event.Event) (any, error)
}

type entryPoint struct {
	invoke func(ctx context.Context, ev *event.Event) (any, error)
	void   bool
}

func (e entryPoint) Invoke(ctx context.Context, ev *event.Event) (any, error) {
	return e.invoke(ctx, ev)
}
func (e entryPoint) Void() bool { return e.void }

// CallableResolver resolves components implementing Callable.
var CallableResolver EntryPointResolver = ResolverFunc(func(object any, _ *event.Event) (EntryPoint, error) {
	c, ok := object.(Callable)
	if !ok {
		return nil, noEntryPoint(object)
	}
	return entryPoint{invoke: c.OnCall}, nil
})

// FuncResolver resolves components that are plain functions with one of the
// signatures:
//
//	func(context.Context, *event.Event) (any, error)
//	func(context.Context, *event.Event) error
//	func(context.Context, *message.Message) (*message.Message, error)
//	func(context.Context, any) (any, error)
//
// The second form is void. The last one receives the transformed payload.
var FuncResolver EntryPointResolver = ResolverFunc(func(object any, _ *event.Event) (EntryPoint, error) {
	switch fn := object.(type) {
	case func(context.Context, *event.Event) (any, error):
		return entryPoint{invoke: fn}, nil
	case func(context.Context, *event.Event) error:
		return entryPoint{void: true, invoke: func(ctx context.Context, ev *event.Event) (any, error) {
			return nil, fn(ctx, ev)
		}}, nil
	case func(context.Context, *message.Message) (*message.Message, error):
		return entryPoint{invoke: func(ctx context.Context, ev *event.Event) (any, error) {
			out, err := fn(ctx, ev.Message())
			if out == nil {
				return nil, err
			}
			return out, err
		}}, nil
	case func(context.Context, any) (any, error):
		return entryPoint{invoke: func(ctx context.Context, ev *event.Event) (any, error) {
			payload, err := ev.TransformedMessage(ctx)
			if err != nil {
				return nil, err
			}
			return fn(ctx, payload)
		}}, nil
	}
	return nil, noEntryPoint(object)
})

// FirstResolver tries each resolver in order and returns the first match.
func FirstResolver(resolvers ...EntryPointResolver) EntryPointResolver {
	return ResolverFunc(func(object any, ev *event.Event) (EntryPoint, error) {
		var lastErr error = noEntryPoint(object)
		for _, r := range resolvers {
			ep, err := r.Resolve(object, ev)
			if err == nil {
				return ep, nil
			}
			lastErr = err
		}
		return nil, lastErr
	})
}

// DefaultResolver accepts Callable components and function components.
var DefaultResolver = FirstResolver(CallableResolver, FuncResolver)

func noEntryPoint(object any) error {
	return &errors.ConfigurationError{Reason: fmt.Sprintf("%T has no entry point", object), Err: errors.ErrNoEntryPoint}
}
