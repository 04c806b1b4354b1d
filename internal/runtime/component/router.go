package component

import (
	"context"
	stderrors "errors"
	"slices"

	"github.com/drblury/flowcore/internal/runtime/errors"
	"github.com/drblury/flowcore/internal/runtime/event"
	"github.com/drblury/flowcore/internal/runtime/message"
)

// EndpointRouter routes results to a fixed list of endpoints. Synchronous
// routing sends to the first endpoint able to send; asynchronous routing
// dispatches to every such endpoint.
type EndpointRouter struct {
	endpoints []event.Endpoint
}

var _ event.OutboundRouter = (*EndpointRouter)(nil)

// NewEndpointRouter returns a router over eps. Nil entries are dropped.
func NewEndpointRouter(eps ...event.Endpoint) *EndpointRouter {
	return &EndpointRouter{endpoints: slices.DeleteFunc(slices.Clone(eps), func(ep event.Endpoint) bool { return ep == nil })}
}

// Endpoints returns the configured endpoints.
func (r *EndpointRouter) Endpoints() []event.Endpoint { return slices.Clone(r.endpoints) }

// HasEndpoints reports whether any endpoint can send.
func (r *EndpointRouter) HasEndpoints() bool {
	return slices.ContainsFunc(r.endpoints, event.Endpoint.CanSend)
}

func (r *EndpointRouter) Route(ctx context.Context, msg *message.Message, sess event.Session, synchronous bool) (*message.Message, error) {
	if msg == nil {
		return nil, errors.ErrMessageRequired
	}
	if sess == nil {
		return nil, errors.ErrSessionRequired
	}
	if synchronous {
		for _, ep := range r.endpoints {
			if ep.CanSend() {
				return sess.SendTo(ctx, msg, ep)
			}
		}
		return nil, message.NewRoutingError(msg, "", errors.ErrNoOutboundRoute)
	}

	var (
		errs []error
		sent bool
	)
	for _, ep := range r.endpoints {
		if !ep.CanSend() {
			continue
		}
		out := msg
		if sent {
			out = msg.NewThreadCopy()
		}
		sent = true
		if err := sess.DispatchTo(ctx, out, ep); err != nil {
			errs = append(errs, err)
		}
	}
	if !sent {
		return nil, message.NewRoutingError(msg, "", errors.ErrNoOutboundRoute)
	}
	return nil, stderrors.Join(errs...)
}
