package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/flowcore/internal/runtime/errors"
	"github.com/drblury/flowcore/internal/runtime/event"
	"github.com/drblury/flowcore/internal/runtime/logging"
	"github.com/drblury/flowcore/internal/runtime/message"
	"github.com/drblury/flowcore/internal/runtime/notification"
)

// TracerName is the instrumentation name of invocation spans.
const TracerName = "github.com/drblury/flowcore/lifecycle"

// Options configures an Adapter. Zero values pick defaults.
type Options struct {
	Resolver EntryPointResolver
	Hooks    InvocationHooks
	Notifier notification.Manager
	Logger   logging.ServiceLogger
	Tracer   trace.Tracer
}

// Adapter drives one user component through
// Constructed -> Initialised -> Started <-> Stopped -> Disposed and invokes
// its entry point.
type Adapter struct {
	name     string
	object   any
	caps     Capabilities
	resolver EntryPointResolver
	hooks    InvocationHooks
	notifier notification.Manager
	logger   logging.ServiceLogger
	tracer   trace.Tracer

	mu          sync.Mutex
	initialised bool
	started     atomic.Bool
	disposed    atomic.Bool
}

// NewAdapter wraps object under name. Capabilities are probed here and
// never again.
func NewAdapter(name string, object any, opts Options) (*Adapter, error) {
	if object == nil {
		return nil, errors.ErrComponentRequired
	}
	a := &Adapter{
		name:     name,
		object:   object,
		caps:     Probe(object),
		resolver: opts.Resolver,
		hooks:    opts.Hooks,
		notifier: notification.OrNop(opts.Notifier),
		logger:   logging.OrNop(opts.Logger).With(logging.LogFields{"component": name}),
		tracer:   opts.Tracer,
	}
	if a.resolver == nil {
		a.resolver = DefaultResolver
	}
	if a.tracer == nil {
		a.tracer = otel.Tracer(TracerName)
	}
	return a, nil
}

func (a *Adapter) Name() string { return a.name }

// Object returns the wrapped component.
func (a *Adapter) Object() any { return a.object }

// Capabilities returns what was probed at construction.
func (a *Adapter) Capabilities() Capabilities { return a.caps }

func (a *Adapter) IsStarted() bool  { return a.started.Load() }
func (a *Adapter) IsDisposed() bool { return a.disposed.Load() }

// Initialise runs the component's Initialise once.
func (a *Adapter) Initialise(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.initialiseLocked(ctx)
}

func (a *Adapter) initialiseLocked(ctx context.Context) error {
	if a.initialised {
		return nil
	}
	if a.disposed.Load() {
		return &errors.StateError{Op: "initialise " + a.name, Err: errors.ErrAdapterDisposed}
	}
	if a.caps.Initialise != nil {
		if err := a.caps.Initialise(ctx); err != nil {
			return a.lifecycleError("initialise", err)
		}
	}
	a.initialised = true
	a.notifier.FireNotification(ctx, notification.New(notification.ComponentInitialised, a.name, nil))
	return nil
}

// Start initialises the component if needed and calls its Start. Starting a
// started adapter does nothing; starting a disposed one is a StateError.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.disposed.Load() {
		return &errors.StateError{Op: "start " + a.name, Err: errors.ErrAdapterDisposed}
	}
	if a.started.Load() {
		return nil
	}
	if err := a.initialiseLocked(ctx); err != nil {
		return err
	}
	if a.caps.Start != nil {
		if err := a.caps.Start(ctx); err != nil {
			return a.lifecycleError("start", err)
		}
	}
	a.started.Store(true)
	a.logger.Debug("component started", nil)
	a.notifier.FireNotification(ctx, notification.New(notification.ComponentStarted, a.name, nil))
	return nil
}

// Stop calls the component's Stop. Stopping a stopped adapter does nothing.
// On failure the adapter stays started.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopLocked(ctx)
}

func (a *Adapter) stopLocked(ctx context.Context) error {
	if !a.started.Load() {
		return nil
	}
	if a.caps.Stop != nil {
		if err := a.caps.Stop(ctx); err != nil {
			return a.lifecycleError("stop", err)
		}
	}
	a.started.Store(false)
	a.logger.Debug("component stopped", nil)
	a.notifier.FireNotification(ctx, notification.New(notification.ComponentStopped, a.name, nil))
	return nil
}

// Dispose stops the component if it is running and calls its Dispose.
// Failures are logged, never returned; the adapter ends disposed either way.
func (a *Adapter) Dispose(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.disposed.Load() {
		return
	}
	if err := a.stopLocked(ctx); err != nil {
		a.logger.Error("stopping component before dispose failed", err, nil)
		a.started.Store(false)
	}
	if a.caps.Dispose != nil {
		if err := a.caps.Dispose(ctx); err != nil {
			a.logger.Error("disposing component failed", a.lifecycleError("dispose", err), nil)
		}
	}
	a.disposed.Store(true)
	a.notifier.FireNotification(ctx, notification.New(notification.ComponentDisposed, a.name, nil))
}

// Intercept invokes the component's entry point for ev and normalizes the
// result:
//   - a void entry point returning nil yields ev's message unchanged;
//   - a *message.Message result is returned as is;
//   - any other non-nil result becomes a new message correlated to ev's;
//   - a non-void entry point returning nil yields nil.
//
// Failures are wrapped in a *message.MessagingError naming the component.
func (a *Adapter) Intercept(ctx context.Context, ev *event.Event) (*message.Message, error) {
	if ev == nil {
		return nil, errors.ErrMessageRequired
	}
	if a.disposed.Load() {
		return nil, &errors.StateError{Op: "invoke " + a.name, Err: errors.ErrAdapterDisposed}
	}

	ep, err := a.resolver.Resolve(a.object, ev)
	if err != nil {
		return nil, message.NewMessagingError(ev.Message(), a.name, err)
	}

	ic := InvocationContext{
		Component:   a.name,
		EventID:     ev.ID(),
		Synchronous: ev.IsSynchronous(),
		StartedAt:   time.Now(),
	}
	if sess := ev.Session(); sess != nil {
		ic.SessionID = sess.ID()
	}
	if e := ev.Endpoint(); e != nil {
		ic.Endpoint = e.URI().String()
	}

	ctx, span := a.tracer.Start(ctx, "flowcore.invoke", trace.WithAttributes(
		attribute.String("flowcore.component", a.name),
		attribute.String("flowcore.event_id", ic.EventID),
		attribute.Bool("flowcore.synchronous", ic.Synchronous),
	))
	defer span.End()
	ic.Context = ctx

	a.hooks.start(ic)
	result, err := ep.Invoke(ctx, ev)
	ic.Duration = time.Since(ic.StartedAt)
	a.hooks.finish(ic, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, message.NewMessagingError(ev.Message(), a.name, err)
	}
	return normalize(ev, ep.Void(), result), nil
}

func normalize(ev *event.Event, void bool, result any) *message.Message {
	switch r := result.(type) {
	case nil:
		if void {
			return ev.Message()
		}
		return nil
	case *message.Message:
		return r
	default:
		return message.NewCorrelated(r, ev.Message())
	}
}

func (a *Adapter) lifecycleError(phase string, err error) error {
	return &errors.LifecycleError{Component: a.name, Phase: phase, Err: err}
}
