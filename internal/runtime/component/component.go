// Package component is the concrete bus component: a lifecycle adapter
// around user code, an outbound router for its results and an exception
// strategy for its failures.
package component

import (
	"context"

	"github.com/drblury/flowcore/internal/runtime/errors"
	"github.com/drblury/flowcore/internal/runtime/event"
	"github.com/drblury/flowcore/internal/runtime/exception"
	"github.com/drblury/flowcore/internal/runtime/lifecycle"
	"github.com/drblury/flowcore/internal/runtime/logging"
	"github.com/drblury/flowcore/internal/runtime/message"
	"github.com/drblury/flowcore/internal/runtime/requestctx"
	"github.com/drblury/flowcore/internal/runtime/workmanager"
)

// Options configures a Component.
type Options struct {
	// Router receives the component's results. Nil means results are only
	// returned to synchronous callers.
	Router event.OutboundRouter
	// Strategy handles failures. Nil uses a component-scoped strategy
	// without dead-letter endpoints.
	Strategy exception.Listener
	// Pool runs asynchronous events. Nil runs them on the caller.
	Pool   *workmanager.Pool
	Logger logging.ServiceLogger
}

// Component delivers events to a lifecycle adapter.
type Component struct {
	adapter  *lifecycle.Adapter
	router   event.OutboundRouter
	strategy exception.Listener
	pool     *workmanager.Pool
	logger   logging.ServiceLogger
}

var _ event.Component = (*Component)(nil)

// New builds a component around adapter.
func New(adapter *lifecycle.Adapter, opts Options) (*Component, error) {
	if adapter == nil {
		return nil, errors.ErrComponentRequired
	}
	c := &Component{
		adapter:  adapter,
		router:   opts.Router,
		strategy: opts.Strategy,
		pool:     opts.Pool,
		logger:   logging.OrNop(opts.Logger).With(logging.LogFields{"component": adapter.Name()}),
	}
	if c.strategy == nil {
		c.strategy = exception.NewComponentStrategy(c, nil, exception.Options{Logger: opts.Logger})
	}
	return c, nil
}

func (c *Component) Name() string { return c.adapter.Name() }

// OutboundRouter returns the router, or nil.
func (c *Component) OutboundRouter() event.OutboundRouter { return c.router }

func (c *Component) Adapter() *lifecycle.Adapter { return c.adapter }

func (c *Component) Strategy() exception.Listener { return c.strategy }

func (c *Component) Start(ctx context.Context) error { return c.adapter.Start(ctx) }
func (c *Component) Stop(ctx context.Context) error  { return c.adapter.Stop(ctx) }
func (c *Component) Dispose(ctx context.Context)     { c.adapter.Dispose(ctx) }

// DispatchEvent processes ev on the pool. Results are routed
// asynchronously; failures go to the exception strategy.
func (c *Component) DispatchEvent(ctx context.Context, ev *event.Event) error {
	if ev == nil {
		return errors.ErrMessageRequired
	}
	if !c.adapter.IsStarted() {
		return &errors.StateError{Op: "dispatch to " + c.Name(), Err: errors.ErrComponentNotStarted}
	}
	if c.pool == nil {
		_, _ = c.process(ctx, ev, false)
		return nil
	}
	return c.pool.Schedule(ctx, func(wctx context.Context) {
		_, _ = c.process(wctx, ev, false)
	})
}

// SendEvent processes ev on the caller and returns the result, or the reply
// of the outbound router when it routes one. On failure the returned
// message carries the exception payload.
func (c *Component) SendEvent(ctx context.Context, ev *event.Event) (*message.Message, error) {
	if ev == nil {
		return nil, errors.ErrMessageRequired
	}
	if !c.adapter.IsStarted() {
		return nil, &errors.StateError{Op: "send to " + c.Name(), Err: errors.ErrComponentNotStarted}
	}
	return c.process(ctx, ev, true)
}

// process runs ev inside a request scope that holds its own copy of the
// event.
func (c *Component) process(ctx context.Context, ev *event.Event, synchronous bool) (*message.Message, error) {
	ctx, release := requestctx.Enter(ctx)
	defer release()

	active, err := requestctx.SetEvent(ctx, ev)
	if err != nil {
		return nil, err
	}

	result, err := c.adapter.Intercept(ctx, active)
	if err != nil {
		return c.fail(ctx, err)
	}
	if result == nil || active.IsStopFurtherProcessing() || c.router == nil || !c.router.HasEndpoints() {
		return result, nil
	}

	reply, err := c.router.Route(ctx, result, active.Session(), synchronous)
	if err != nil {
		return c.fail(ctx, err)
	}
	if synchronous && reply != nil {
		return reply, nil
	}
	return result, nil
}

func (c *Component) fail(ctx context.Context, err error) (*message.Message, error) {
	c.strategy.ExceptionThrown(ctx, err)
	if active := requestctx.Event(ctx); active != nil {
		return active.Message(), err
	}
	return nil, err
}
