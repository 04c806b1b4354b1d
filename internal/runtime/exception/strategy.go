// Package exception classifies failures raised while processing an event
// and reroutes the failed message to a dead-letter endpoint. Nothing is
// retried.
package exception

import (
	"context"
	"slices"
	"sync/atomic"

	"github.com/drblury/flowcore/internal/runtime/cloudevents"
	"github.com/drblury/flowcore/internal/runtime/errors"
	"github.com/drblury/flowcore/internal/runtime/event"
	"github.com/drblury/flowcore/internal/runtime/jsoncodec"
	"github.com/drblury/flowcore/internal/runtime/logging"
	"github.com/drblury/flowcore/internal/runtime/message"
	"github.com/drblury/flowcore/internal/runtime/metadata"
	"github.com/drblury/flowcore/internal/runtime/notification"
	"github.com/drblury/flowcore/internal/runtime/requestctx"
	"github.com/drblury/flowcore/internal/runtime/session"
	"github.com/drblury/flowcore/internal/runtime/transaction"
)

// DefaultSource is the CloudEvents source of dead-letter envelopes.
const DefaultSource = "flowcore/exception"

// Kind is the class a failure is handled as.
type Kind int

const (
	Standard Kind = iota
	Routing
	Messaging
	Lifecycle
)

func (k Kind) String() string {
	switch k {
	case Routing:
		return "routing"
	case Messaging:
		return "messaging"
	case Lifecycle:
		return "lifecycle"
	default:
		return "standard"
	}
}

var classifiers = []errors.Predicate{
	errors.TypeOf[*message.RoutingError](),
	errors.TypeOf[*message.MessagingError](),
	errors.TypeOf[*errors.LifecycleError](),
}

// Classify finds the failure err is handled as. The cause chain is searched
// for a routing failure first, then a messaging failure, then a lifecycle
// failure, regardless of how deep each is nested.
func Classify(err error) (Kind, error) {
	cause, idx := errors.FirstCause(err, classifiers...)
	switch idx {
	case 0:
		return Routing, cause
	case 1:
		return Messaging, cause
	case 2:
		return Lifecycle, cause
	}
	return Standard, err
}

// Listener receives failures.
type Listener interface {
	ExceptionThrown(ctx context.Context, err error)
}

// EndpointSelector picks the dead-letter endpoint for err. Returning nil
// means there is none.
type EndpointSelector func(err error, endpoints []event.Endpoint) event.Endpoint

// FirstEndpoint selects the first configured endpoint.
func FirstEndpoint(_ error, endpoints []event.Endpoint) event.Endpoint {
	if len(endpoints) == 0 {
		return nil
	}
	return endpoints[0]
}

// Options configures a Strategy.
type Options struct {
	Logger   logging.ServiceLogger
	Notifier notification.Manager
	Selector EndpointSelector
	// Source is the CloudEvents source of dead-letter envelopes.
	Source string
	// OnInitialise runs once, on the first failure handled.
	OnInitialise func(ctx context.Context)
}

// callbacks let the component-scoped strategy observe the base algorithm.
type callbacks struct {
	componentName func(ctx context.Context) string
	handled       func(ctx context.Context)
	fatal         func(ctx context.Context)
	routed        func(ctx context.Context, ep event.Endpoint)
}

// Strategy is the default exception strategy.
type Strategy struct {
	endpoints    atomic.Pointer[[]event.Endpoint]
	initialised  atomic.Bool
	onInitialise func(ctx context.Context)

	logger   logging.ServiceLogger
	notifier notification.Manager
	selector EndpointSelector
	source   string
	cb       callbacks
}

var _ Listener = (*Strategy)(nil)

// New returns a strategy with no dead-letter endpoint.
func New(opts Options) *Strategy {
	s := &Strategy{
		onInitialise: opts.OnInitialise,
		logger:       logging.OrNop(opts.Logger),
		notifier:     notification.OrNop(opts.Notifier),
		selector:     opts.Selector,
		source:       opts.Source,
	}
	if s.selector == nil {
		s.selector = FirstEndpoint
	}
	if s.source == "" {
		s.source = DefaultSource
	}
	s.cb.componentName = activeComponentName
	s.endpoints.Store(&[]event.Endpoint{})
	return s
}

// AddEndpoint appends a dead-letter endpoint. Endpoints that cannot send
// are rejected here, before any failure is routed.
func (s *Strategy) AddEndpoint(ep event.Endpoint) error {
	if err := checkEndpoint(ep); err != nil {
		return err
	}
	for {
		cur := s.endpoints.Load()
		next := append(slices.Clone(*cur), ep)
		if s.endpoints.CompareAndSwap(cur, &next) {
			return nil
		}
	}
}

// SetEndpoints replaces the dead-letter endpoints. Nothing changes if any
// of them cannot send.
func (s *Strategy) SetEndpoints(eps ...event.Endpoint) error {
	for _, ep := range eps {
		if err := checkEndpoint(ep); err != nil {
			return err
		}
	}
	next := slices.Clone(eps)
	s.endpoints.Store(&next)
	return nil
}

// Endpoints returns the dead-letter endpoints in order.
func (s *Strategy) Endpoints() []event.Endpoint {
	return slices.Clone(*s.endpoints.Load())
}

func checkEndpoint(ep event.Endpoint) error {
	if ep == nil {
		return &errors.ConfigurationError{Reason: "dead-letter endpoint is nil", Err: errors.ErrEndpointRequired}
	}
	if !ep.CanSend() {
		return &errors.ConfigurationError{
			Reason: "dead-letter endpoint " + ep.URI().String() + " cannot send",
			Err:    errors.ErrEndpointNotSendable,
		}
	}
	return nil
}

// IsInitialised reports whether the first failure has been handled.
func (s *Strategy) IsInitialised() bool { return s.initialised.Load() }

func (s *Strategy) initialise(ctx context.Context) {
	if !s.initialised.CompareAndSwap(false, true) {
		return
	}
	s.logger.Debug("exception strategy initialised", logging.LogFields{"dead_letter_endpoints": len(s.Endpoints())})
	if s.onInitialise != nil {
		s.onInitialise(ctx)
	}
}

// ExceptionThrown handles err: it announces it, classifies it and routes
// the failed message. It never fails the caller.
func (s *Strategy) ExceptionThrown(ctx context.Context, err error) {
	if err == nil {
		return
	}
	s.initialise(ctx)
	s.notifier.FireNotification(ctx, notification.New(notification.ExceptionThrown, s.cb.componentName(ctx), err))

	kind, cause := Classify(err)
	s.logger.Error("exception caught", err, logging.LogFields{"kind": kind.String()})

	switch kind {
	case Routing:
		re := cause.(*message.RoutingError)
		s.HandleRouting(ctx, re.Message, re.Endpoint, err)
	case Messaging:
		s.HandleMessaging(ctx, cause.(*message.MessagingError).Message, err)
	case Lifecycle:
		s.HandleLifecycle(ctx, cause.(*errors.LifecycleError).Component, err)
	default:
		s.HandleStandard(ctx, err)
	}
}

// HandleMessaging records err on the active event and routes msg.
func (s *Strategy) HandleMessaging(ctx context.Context, msg *message.Message, err error) {
	s.defaultHandler(ctx, err)
	_ = s.RouteException(ctx, msg, "", err)
}

// HandleRouting records err on the active event and routes msg. The
// endpoint that could not be reached is reported as the origin.
func (s *Strategy) HandleRouting(ctx context.Context, msg *message.Message, failingEndpoint string, err error) {
	s.defaultHandler(ctx, err)
	_ = s.RouteException(ctx, msg, failingEndpoint, err)
}

// HandleLifecycle handles err as a standard failure and logs the component
// that failed.
func (s *Strategy) HandleLifecycle(ctx context.Context, component string, err error) {
	s.HandleStandard(ctx, err)
	s.logger.Error("lifecycle failure", err, logging.LogFields{"failed_component": component})
}

// HandleStandard marks the active transaction rollback-only, then handles
// err as a messaging failure of the active event's message, or of a message
// with no payload.
func (s *Strategy) HandleStandard(ctx context.Context, err error) {
	s.rollback(ctx)
	msg := message.New(nil)
	if ev := requestctx.Event(ctx); ev != nil {
		msg = ev.Message()
	} else {
		s.logger.Info("no active event, routing a message without payload", nil)
	}
	s.HandleMessaging(ctx, msg, err)
}

func (s *Strategy) defaultHandler(ctx context.Context, err error) {
	if s.cb.handled != nil {
		s.cb.handled(ctx)
	}
	if setErr := requestctx.SetExceptionPayload(ctx, message.NewExceptionPayload(err)); setErr != nil {
		s.logger.Error("attaching exception payload failed", setErr, nil)
	}
}

// RouteException sends the dead letter for msg synchronously to the
// selected endpoint. Without one, the active transaction is marked
// rollback-only. A failed dispatch is logged as fatal and returned as a
// *errors.FatalError; it is not retried.
func (s *Strategy) RouteException(ctx context.Context, msg *message.Message, failingEndpoint string, err error) error {
	ep := s.selector(err, s.Endpoints())
	if ep == nil {
		s.rollback(ctx)
		return nil
	}
	if active := requestctx.Event(ctx); active != nil {
		if msg == nil {
			msg = active.Message()
		}
		if failingEndpoint == "" && active.Endpoint() != nil {
			failingEndpoint = active.Endpoint().URI().String()
		}
	}
	component := s.cb.componentName(ctx)
	dl := NewDeadLetter(msg, err, component, failingEndpoint)
	fields := logging.LogFields{"dead_letter_endpoint": ep.URI().String(), "component": component}

	sendErr := s.dispatchDeadLetter(ctx, ep, msg, dl)
	if sendErr != nil {
		fatal := &errors.FatalError{Cause: err, Err: sendErr}
		s.logger.Fatal("failed to dispatch message to dead-letter endpoint; the message is lost", fatal, fields)
		if s.cb.fatal != nil {
			s.cb.fatal(ctx)
		}
		s.notifier.FireNotification(ctx, notification.New(notification.DeadLetterFailed, component, map[string]any{
			"endpoint": ep.URI().String(),
			"error":    sendErr.Error(),
		}))
		return fatal
	}
	s.logger.Debug("routed exception message", fields)
	if s.cb.routed != nil {
		s.cb.routed(ctx, ep)
	}
	s.notifier.FireNotification(ctx, notification.New(notification.DeadLetterRouted, component, map[string]any{
		"endpoint": ep.URI().String(),
	}))
	return nil
}

func (s *Strategy) dispatchDeadLetter(ctx context.Context, ep event.Endpoint, failed *message.Message, dl DeadLetter) error {
	evt := dl.CloudEvent(s.source, failed)
	payload, err := jsoncodec.Marshal(evt)
	if err != nil {
		return &errors.ConversionError{From: "dead letter", To: "cloudevent", Err: err}
	}

	var out *message.Message
	if failed != nil {
		out = message.NewCorrelated(payload, failed)
	} else {
		out = message.New(payload)
	}
	if err := out.AddProperties(ctx, map[string]any{
		cloudevents.MetadataContentType: cloudevents.ContentType,
		cloudevents.MetadataType:        evt.Type,
		cloudevents.MetadataSource:      evt.Source,
	}); err != nil {
		return err
	}
	// The dead letter goes out as a fresh exchange, not as a reply.
	if _, err := out.RemoveProperty(ctx, metadata.KeyReplyTo); err != nil {
		return err
	}

	sess := requestctx.Session(ctx)
	if sess == nil {
		sess = session.New(nil, session.Options{Logger: s.logger})
	}
	dlEvent, err := event.New(ctx, out, ep, sess, true, event.WithPrevious(requestctx.Event(ctx)))
	if err != nil {
		return err
	}
	_, err = ep.Send(ctx, dlEvent)
	return err
}

func (s *Strategy) rollback(ctx context.Context) {
	marked, err := transaction.MarkRollbackOnly(ctx)
	if err != nil {
		s.logger.Error("marking transaction rollback-only failed", err, nil)
		return
	}
	if marked {
		s.logger.Debug("transaction marked rollback-only", nil)
	}
}

func activeComponentName(ctx context.Context) string {
	if ev := requestctx.Event(ctx); ev != nil {
		if c := ev.Component(); c != nil {
			return c.Name()
		}
	}
	return UnknownComponent
}
