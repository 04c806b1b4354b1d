// Package event holds the per-hop envelope that carries a message through
// the bus, and the contracts of the collaborators it references.
package event

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/drblury/flowcore/internal/runtime/errors"
	"github.com/drblury/flowcore/internal/runtime/ids"
	"github.com/drblury/flowcore/internal/runtime/message"
	"github.com/drblury/flowcore/internal/runtime/metadata"
	"github.com/drblury/flowcore/internal/runtime/ownership"
	"github.com/drblury/flowcore/internal/runtime/uri"
)

// TimeoutNotSet marks an event whose timeout resolves from its endpoint.
const TimeoutNotSet = -1

// Event is one hop of a message through the bus.
type Event struct {
	guard ownership.Guard

	id          string
	msg         *message.Message
	endpoint    Endpoint
	session     Session
	synchronous bool
	timeout     atomic.Int64
	output      io.Writer
	credentials *uri.Credentials
	stop        bool
	transformed *transformCache
}

type transformCache struct {
	mu    sync.Mutex
	done  bool
	value any
}

func (c *transformCache) computed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

type options struct {
	previous *Event
	output   io.Writer
	timeout  int
}

// Option configures New.
type Option func(*options)

// WithPrevious names the event this one follows. Its message fills the
// properties the new message lacks and supplies the always-overwrite ones.
func WithPrevious(prev *Event) Option {
	return func(o *options) { o.previous = prev }
}

// WithOutput attaches the response stream of a request/response transport.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.output = w }
}

// WithTimeout sets an explicit timeout in milliseconds.
func WithTimeout(ms int) Option {
	return func(o *options) { o.timeout = ms }
}

// New creates the initial event of a flow for msg arriving on ep.
func New(ctx context.Context, msg *message.Message, ep Endpoint, sess Session, synchronous bool, opts ...Option) (*Event, error) {
	o := options{timeout: TimeoutNotSet}
	for _, opt := range opts {
		opt(&o)
	}
	ev, err := newEvent(msg, ep, sess)
	if err != nil {
		return nil, err
	}
	ev.synchronous = synchronous
	ev.output = o.output
	ev.timeout.Store(int64(o.timeout))
	if err := ev.fillProperties(ctx, o.previous); err != nil {
		return nil, err
	}
	return ev, nil
}

// NewWithOutput is New for request/response transports.
func NewWithOutput(ctx context.Context, msg *message.Message, ep Endpoint, sess Session, synchronous bool, out io.Writer, opts ...Option) (*Event, error) {
	return New(ctx, msg, ep, sess, synchronous, append(opts, WithOutput(out))...)
}

// Derive creates the next hop after previous: a fresh id, the previous
// session, synchronous flag, timeout and output stream.
func Derive(ctx context.Context, msg *message.Message, ep Endpoint, previous *Event) (*Event, error) {
	if previous == nil {
		return nil, &errors.StateError{Op: "derive event", Err: errors.ErrSessionRequired}
	}
	ev, err := newEvent(msg, ep, previous.session)
	if err != nil {
		return nil, err
	}
	ev.synchronous = previous.synchronous
	ev.output = previous.output
	ev.timeout.Store(int64(previous.Timeout()))
	if err := ev.fillProperties(ctx, previous); err != nil {
		return nil, err
	}
	return ev, nil
}

// Rewrite replaces the message of previous, keeping everything else,
// including a transformed payload that was already computed.
func Rewrite(msg *message.Message, previous *Event) (*Event, error) {
	if previous == nil {
		return nil, &errors.StateError{Op: "rewrite event", Err: errors.ErrSessionRequired}
	}
	if msg == nil {
		return nil, errors.ErrMessageRequired
	}
	ev := &Event{
		id:          previous.id,
		msg:         msg,
		endpoint:    previous.endpoint,
		session:     previous.session,
		synchronous: previous.synchronous,
		output:      previous.output,
		credentials: previous.credentials,
		stop:        previous.stop,
		transformed: &transformCache{},
	}
	ev.timeout.Store(int64(previous.Timeout()))
	if previous.transformed.computed() {
		ev.transformed = previous.transformed
	}
	return ev, nil
}

func newEvent(msg *message.Message, ep Endpoint, sess Session) (*Event, error) {
	if msg == nil {
		return nil, errors.ErrMessageRequired
	}
	if sess == nil {
		return nil, errors.ErrSessionRequired
	}
	ev := &Event{
		id:          ids.CreateULID(),
		msg:         msg,
		endpoint:    ep,
		session:     sess,
		transformed: &transformCache{},
	}
	if ep != nil && ep.URI() != nil && ep.URI().User != nil {
		creds := *ep.URI().User
		ev.credentials = &creds
	}
	return ev, nil
}

// fillProperties merges the previous message into the event's message, then
// the endpoint properties. Values already on the message win, except for the
// always-overwrite names, which take the previous value. Hop-local headers
// are never inherited.
func (e *Event) fillProperties(ctx context.Context, previous *Event) error {
	if previous != nil && previous.msg != nil {
		for _, name := range previous.msg.PropertyNames() {
			if _, local := metadata.HopLocal[name]; local {
				continue
			}
			if _, overwrite := metadata.AlwaysOverwrite[name]; !overwrite {
				if _, ok := e.msg.Property(name); ok {
					continue
				}
			}
			v, _ := previous.msg.Property(name)
			if err := e.msg.SetProperty(ctx, name, v); err != nil {
				return err
			}
		}
	}
	if e.endpoint == nil {
		return nil
	}
	for k, v := range e.endpoint.Properties() {
		if _, ok := e.msg.Property(k); ok {
			continue
		}
		if err := e.msg.SetProperty(ctx, k, v); err != nil {
			return err
		}
	}
	return nil
}

// ID returns the event id. Rewrites keep it; derived events get a new one.
func (e *Event) ID() string { return e.id }

// Message returns the message carried by this hop.
func (e *Event) Message() *message.Message { return e.msg }

// Endpoint returns the endpoint the event arrived on or is bound for.
func (e *Event) Endpoint() Endpoint { return e.endpoint }

// Session returns the session the event belongs to.
func (e *Event) Session() Session { return e.session }

// IsSynchronous reports whether the caller waits for a result.
func (e *Event) IsSynchronous() bool { return e.synchronous }

// Output returns the response stream of a request/response transport, or nil.
func (e *Event) Output() io.Writer { return e.output }

// Component returns the component attached to the event's session, or nil.
func (e *Event) Component() Component {
	return e.session.Component()
}

// Credentials returns the user-info of the endpoint URI, or nil.
func (e *Event) Credentials() *uri.Credentials {
	return e.credentials
}

// Timeout returns the timeout in milliseconds. An unset timeout resolves
// from the endpoint once; later endpoint changes are not observed.
func (e *Event) Timeout() int {
	if t := e.timeout.Load(); t != TimeoutNotSet {
		return int(t)
	}
	resolved := int64(TimeoutNotSet)
	if e.endpoint != nil {
		resolved = int64(e.endpoint.RemoteSyncTimeout())
	}
	if e.timeout.CompareAndSwap(TimeoutNotSet, resolved) {
		return int(resolved)
	}
	return int(e.timeout.Load())
}

// SetTimeout overrides the timeout in milliseconds.
func (e *Event) SetTimeout(ctx context.Context, ms int) error {
	if err := e.AssertAccess(ctx, true); err != nil {
		return err
	}
	e.timeout.Store(int64(ms))
	return nil
}

// SetSynchronous changes the dispatch mode of the event.
func (e *Event) SetSynchronous(ctx context.Context, synchronous bool) error {
	if err := e.AssertAccess(ctx, true); err != nil {
		return err
	}
	e.synchronous = synchronous
	return nil
}

// IsStopFurtherProcessing reports whether the flow should end at this hop.
func (e *Event) IsStopFurtherProcessing() bool { return e.stop }

// SetStopFurtherProcessing ends the flow at this hop.
func (e *Event) SetStopFurtherProcessing(ctx context.Context, stop bool) error {
	if err := e.AssertAccess(ctx, true); err != nil {
		return err
	}
	e.stop = stop
	return nil
}

// AssertAccess checks the caller carried by ctx against the event's guard.
func (e *Event) AssertAccess(ctx context.Context, write bool) error {
	return e.guard.AssertAccess("event "+e.id, ownership.FromContext(ctx), write)
}

// OwnershipState reports the event guard state.
func (e *Event) OwnershipState() ownership.State {
	return e.guard.State()
}

// ResetAccessControl unbinds the event and its message.
func (e *Event) ResetAccessControl() {
	e.guard.Reset()
	e.msg.ResetAccessControl()
}

// NewThreadCopy returns an unbound copy with the same id and an unbound copy
// of the message, for handing to another worker.
func (e *Event) NewThreadCopy() *Event {
	cp := &Event{
		id:          e.id,
		msg:         e.msg.NewThreadCopy(),
		endpoint:    e.endpoint,
		session:     e.session,
		synchronous: e.synchronous,
		output:      e.output,
		credentials: e.credentials,
		stop:        e.stop,
		transformed: e.transformed,
	}
	cp.timeout.Store(e.timeout.Load())
	return cp
}
