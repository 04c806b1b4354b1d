// Package lifecycle wraps user components: it drives their optional
// initialise/start/stop/dispose methods and invokes their entry point for
// each event.
package lifecycle

import "context"

// Initialiser is implemented by components that need one-time setup.
type Initialiser interface {
	Initialise(ctx context.Context) error
}

// Starter is implemented by components that act on start.
type Starter interface {
	Start(ctx context.Context) error
}

// Stopper is implemented by components that act on stop.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Disposer is implemented by components holding resources to release.
type Disposer interface {
	Dispose(ctx context.Context) error
}

// Capabilities records which optional lifecycle methods a component has.
// A nil function means the component does not support that step.
type Capabilities struct {
	Initialise func(ctx context.Context) error
	Start      func(ctx context.Context) error
	Stop       func(ctx context.Context) error
	Dispose    func(ctx context.Context) error
}

// Probe inspects object once.
func Probe(object any) Capabilities {
	var c Capabilities
	if v, ok := object.(Initialiser); ok {
		c.Initialise = v.Initialise
	}
	if v, ok := object.(Starter); ok {
		c.Start = v.Start
	}
	if v, ok := object.(Stopper); ok {
		c.Stop = v.Stop
	}
	if v, ok := object.(Disposer); ok {
		c.Dispose = v.Dispose
	}
	return c
}

// None reports whether the component supports no optional step.
func (c Capabilities) None() bool {
	return c.Initialise == nil && c.Start == nil && c.Stop == nil && c.Dispose == nil
}
