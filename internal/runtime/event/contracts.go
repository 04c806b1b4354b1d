package event

import (
	"context"
	"time"

	"github.com/drblury/flowcore/internal/runtime/message"
	"github.com/drblury/flowcore/internal/runtime/uri"
)

// Endpoint is a named address a message can be sent to or received from.
type Endpoint interface {
	Name() string
	URI() *uri.URI

	// Dispatch hands ev to the transport without waiting for a reply.
	Dispatch(ctx context.Context, ev *Event) error
	// Send hands ev to the transport and returns the reply, if any.
	Send(ctx context.Context, ev *Event) (*message.Message, error)
	// Receive waits up to timeout for one message.
	Receive(ctx context.Context, timeout time.Duration) (*message.Message, error)

	CanSend() bool
	CanReceive() bool
	IsRemoteSync() bool
	// RemoteSyncTimeout is the reply timeout in milliseconds.
	RemoteSyncTimeout() int
	IsStreaming() bool
	Encoding() string
	Properties() map[string]any
	Transformer() Transformer
}

// Transformer converts an outbound payload before it reaches the transport.
type Transformer interface {
	Transform(ctx context.Context, payload any) (any, error)
}

// TransformerFunc adapts a function to Transformer.
type TransformerFunc func(ctx context.Context, payload any) (any, error)

func (f TransformerFunc) Transform(ctx context.Context, payload any) (any, error) {
	return f(ctx, payload)
}

// Chain runs transformers in order, feeding each the previous result.
func Chain(ts ...Transformer) Transformer {
	return TransformerFunc(func(ctx context.Context, payload any) (any, error) {
		var err error
		for _, t := range ts {
			if t == nil {
				continue
			}
			if payload, err = t.Transform(ctx, payload); err != nil {
				return nil, err
			}
		}
		return payload, nil
	})
}

// Session correlates the hops of one flow.
type Session interface {
	ID() string
	// Component is the component the session is attached to, or nil.
	Component() Component
	IsValid() bool
	Property(key string) (any, bool)
	DispatchTo(ctx context.Context, msg *message.Message, ep Endpoint) error
	SendTo(ctx context.Context, msg *message.Message, ep Endpoint) (*message.Message, error)
}

// Component is a processing unit events are delivered to.
type Component interface {
	Name() string
	OutboundRouter() OutboundRouter
	DispatchEvent(ctx context.Context, ev *Event) error
	SendEvent(ctx context.Context, ev *Event) (*message.Message, error)
}

// OutboundRouter chooses where a component's results go.
type OutboundRouter interface {
	// Route forwards msg through sess. Synchronous routing returns the reply.
	Route(ctx context.Context, msg *message.Message, sess Session, synchronous bool) (*message.Message, error)
	HasEndpoints() bool
}
