// Package session dispatches messages on behalf of one flow. A session is
// created for each inbound message and travels with every event derived
// from it; its header lets the next bus hop restore it.
package session

import (
	"context"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drblury/flowcore/internal/runtime/errors"
	"github.com/drblury/flowcore/internal/runtime/event"
	"github.com/drblury/flowcore/internal/runtime/ids"
	"github.com/drblury/flowcore/internal/runtime/logging"
	"github.com/drblury/flowcore/internal/runtime/message"
	"github.com/drblury/flowcore/internal/runtime/metadata"
	"github.com/drblury/flowcore/internal/runtime/requestctx"
	"github.com/drblury/flowcore/internal/runtime/transaction"
)

// ResponseHook post-processes a synchronous reply before Send returns it.
type ResponseHook func(ctx context.Context, reply *message.Message) (*message.Message, error)

// Options configures a Session.
type Options struct {
	Logger          logging.ServiceLogger
	ProcessResponse ResponseHook
	SecurityContext any
}

// Session is the per-flow dispatcher.
type Session struct {
	id     string
	logger logging.ServiceLogger
	hook   ResponseHook

	compMu    sync.Mutex
	component event.Component

	mu         sync.RWMutex
	properties map[string]any
	security   any

	valid atomic.Bool
}

var _ event.Session = (*Session)(nil)

// New returns a valid session attached to component, which may be nil.
func New(component event.Component, opts Options) *Session {
	return newSession(ids.WithPrefix("session"), component, opts)
}

func newSession(id string, component event.Component, opts Options) *Session {
	s := &Session{
		id:         id,
		logger:     logging.OrNop(opts.Logger),
		hook:       opts.ProcessResponse,
		component:  component,
		properties: make(map[string]any),
		security:   opts.SecurityContext,
	}
	if s.hook == nil {
		s.hook = noResponseProcessing
	}
	s.valid.Store(true)
	return s
}

// FromMessage restores the session described by msg's session header, or
// starts a new one when msg has none.
func FromMessage(msg *message.Message, component event.Component, opts Options) (*Session, error) {
	if msg == nil {
		return nil, errors.ErrMessageRequired
	}
	header := msg.StringProperty(metadata.KeySession, "")
	if header == "" {
		return New(component, opts), nil
	}
	id, props, err := DecodeHeader(header)
	if err != nil {
		return nil, err
	}
	s := newSession(id, component, opts)
	for k, v := range props {
		s.properties[k] = v
	}
	return s, nil
}

func noResponseProcessing(_ context.Context, reply *message.Message) (*message.Message, error) {
	return reply, nil
}

func (s *Session) ID() string { return s.id }

// Component returns the attached component, or nil.
func (s *Session) Component() event.Component {
	s.compMu.Lock()
	defer s.compMu.Unlock()
	return s.component
}

// SetComponent attaches c. A session can be attached once; re-attaching the
// same component is allowed.
func (s *Session) SetComponent(c event.Component) error {
	s.compMu.Lock()
	defer s.compMu.Unlock()
	if s.component != nil && s.component != c {
		return &errors.StateError{Op: "set session component", Err: errors.ErrComponentAlreadyBound}
	}
	s.component = c
	return nil
}

func (s *Session) IsValid() bool { return s.valid.Load() }

// SetValid marks the session valid or invalid.
func (s *Session) SetValid(valid bool) { s.valid.Store(valid) }

func (s *Session) Property(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.properties[key]
	return v, ok
}

// SetProperty stores a session property. A nil value removes it.
func (s *Session) SetProperty(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == nil {
		delete(s.properties, key)
		return
	}
	s.properties[key] = value
}

// RemoveProperty deletes a session property and returns its old value.
func (s *Session) RemoveProperty(key string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.properties[key]
	delete(s.properties, key)
	return old
}

// PropertyNames returns the property names in sorted order.
func (s *Session) PropertyNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.properties))
}

func (s *Session) SecurityContext() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.security
}

func (s *Session) SetSecurityContext(sc any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.security = sc
}

// Dispatch sends msg asynchronously through the component's outbound router.
func (s *Session) Dispatch(ctx context.Context, msg *message.Message) error {
	router, err := s.outboundRouter(ctx, msg)
	if err != nil {
		return err
	}
	_, err = router.Route(ctx, msg, s, false)
	return err
}

// DispatchTo sends msg asynchronously to ep, or through the outbound router
// when ep is nil.
func (s *Session) DispatchTo(ctx context.Context, msg *message.Message, ep event.Endpoint) error {
	if ep == nil {
		return s.Dispatch(ctx, msg)
	}
	ev, err := s.outboundEvent(ctx, msg, ep, false)
	if err != nil {
		return err
	}
	return s.DispatchEvent(ctx, ev)
}

// DispatchEvent delivers ev asynchronously: to its endpoint when it can
// send, otherwise to the attached component.
func (s *Session) DispatchEvent(ctx context.Context, ev *event.Event) error {
	if ep := ev.Endpoint(); ep != nil && ep.CanSend() {
		s.logger.Debug("dispatching event", logging.LogFields{"session": s.id, "event": ev.ID(), "endpoint": ep.Name()})
		return ep.Dispatch(ctx, ev)
	}
	if comp := s.Component(); comp != nil {
		s.logger.Debug("dispatching event to component", logging.LogFields{"session": s.id, "event": ev.ID(), "component": comp.Name()})
		return comp.DispatchEvent(ctx, ev)
	}
	return message.NewRoutingError(ev.Message(), "", errors.ErrNoOutboundRoute)
}

// Send sends msg synchronously through the component's outbound router and
// returns the reply.
func (s *Session) Send(ctx context.Context, msg *message.Message) (*message.Message, error) {
	router, err := s.outboundRouter(ctx, msg)
	if err != nil {
		return nil, err
	}
	reply, err := router.Route(ctx, msg, s, true)
	if err != nil {
		return nil, err
	}
	return s.processResponse(ctx, reply)
}

// SendTo sends msg synchronously to ep, or through the outbound router when
// ep is nil.
func (s *Session) SendTo(ctx context.Context, msg *message.Message, ep event.Endpoint) (*message.Message, error) {
	if ep == nil {
		return s.Send(ctx, msg)
	}
	ev, err := s.outboundEvent(ctx, msg, ep, true)
	if err != nil {
		return nil, err
	}
	return s.SendEvent(ctx, ev)
}

// SendEvent delivers ev synchronously and returns the processed reply.
func (s *Session) SendEvent(ctx context.Context, ev *event.Event) (*message.Message, error) {
	var (
		reply *message.Message
		err   error
	)
	switch ep := ev.Endpoint(); {
	case ep != nil && ep.CanSend():
		s.logger.Debug("sending event", logging.LogFields{"session": s.id, "event": ev.ID(), "endpoint": ep.Name()})
		reply, err = ep.Send(ctx, ev)
	case s.Component() != nil:
		reply, err = s.Component().SendEvent(ctx, ev)
	default:
		return nil, message.NewRoutingError(ev.Message(), "", errors.ErrNoOutboundRoute)
	}
	if err != nil {
		return nil, err
	}
	return s.processResponse(ctx, reply)
}

// Receive waits up to timeout for a message on ep.
func (s *Session) Receive(ctx context.Context, ep event.Endpoint, timeout time.Duration) (*message.Message, error) {
	if ep == nil {
		return nil, errors.ErrEndpointRequired
	}
	if !ep.CanReceive() {
		return nil, &errors.DispatchError{Endpoint: ep.URI().String(), Op: "receive", Err: errors.ErrEndpointNotReceivable}
	}
	return ep.Receive(ctx, timeout)
}

func (s *Session) processResponse(ctx context.Context, reply *message.Message) (*message.Message, error) {
	if reply == nil {
		return nil, nil
	}
	return s.hook(ctx, reply)
}

func (s *Session) outboundRouter(ctx context.Context, msg *message.Message) (event.OutboundRouter, error) {
	if msg == nil {
		return nil, errors.ErrMessageRequired
	}
	if err := msg.AssertAccess(ctx, false); err != nil {
		return nil, err
	}
	comp := s.Component()
	if comp == nil || comp.OutboundRouter() == nil || !comp.OutboundRouter().HasEndpoints() {
		return nil, message.NewRoutingError(msg, "", errors.ErrNoOutboundRoute)
	}
	return comp.OutboundRouter(), nil
}

// outboundEvent prepares msg for ep: checks the endpoint can send, applies
// remote-sync, stores the session header and builds the event. The active
// event, if any, is the previous hop.
func (s *Session) outboundEvent(ctx context.Context, msg *message.Message, ep event.Endpoint, synchronous bool) (*event.Event, error) {
	if msg == nil {
		return nil, errors.ErrMessageRequired
	}
	if err := msg.AssertAccess(ctx, false); err != nil {
		return nil, err
	}
	if !ep.CanSend() {
		return nil, message.NewRoutingError(msg, ep.URI().String(), &errors.DispatchError{
			Endpoint: ep.URI().String(),
			Op:       "dispatch",
			Err:      errors.ErrEndpointNotSendable,
		})
	}
	if ep.IsRemoteSync() {
		if transaction.IsActive(ctx) {
			return nil, &errors.StateError{Op: "remote sync", Err: errors.ErrRemoteSyncInTransaction}
		}
		if err := msg.SetProperty(ctx, metadata.KeyRemoteSync, true); err != nil {
			return nil, err
		}
	}
	if err := msg.SetProperty(ctx, metadata.KeySession, s.EncodeHeader()); err != nil {
		return nil, err
	}
	return event.New(ctx, msg, ep, s, synchronous, event.WithPrevious(requestctx.Event(ctx)))
}
