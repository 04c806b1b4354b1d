package runtime

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/flowcore/internal/runtime/component"
	errspkg "github.com/drblury/flowcore/internal/runtime/errors"
	"github.com/drblury/flowcore/internal/runtime/event"
	"github.com/drblury/flowcore/internal/runtime/exception"
	"github.com/drblury/flowcore/internal/runtime/lifecycle"
	loggingpkg "github.com/drblury/flowcore/internal/runtime/logging"
	messagepkg "github.com/drblury/flowcore/internal/runtime/message"
	"github.com/drblury/flowcore/internal/runtime/metadata"
	"github.com/drblury/flowcore/internal/runtime/ownership"
	"github.com/drblury/flowcore/internal/runtime/requestctx"
	"github.com/drblury/flowcore/internal/runtime/session"
	"github.com/drblury/flowcore/internal/runtime/stats"
)

// ComponentOptions configures a component built by the Service.
type ComponentOptions struct {
	// Outbound lists the endpoint URIs results are routed to.
	Outbound []string
	// DeadLetters overrides the service-wide dead-letter endpoints.
	DeadLetters []string
	Resolver    lifecycle.EntryPointResolver
	Hooks       lifecycle.InvocationHooks
	Selector    exception.EndpointSelector
}

// NewComponent wraps object in a lifecycle adapter and a component wired to
// the service's pool, metrics, notifier and dead-letter endpoints. The
// component is started by Start.
func (s *Service) NewComponent(ctx context.Context, name string, object any, opts ComponentOptions) (*component.Component, error) {
	outbound := make([]event.Endpoint, 0, len(opts.Outbound))
	for _, raw := range opts.Outbound {
		ep, err := s.Endpoint(ctx, raw)
		if err != nil {
			return nil, err
		}
		outbound = append(outbound, ep)
	}

	deadLetters := s.DeadLetterEndpoints()
	if len(opts.DeadLetters) > 0 {
		deadLetters = deadLetters[:0]
		for _, raw := range opts.DeadLetters {
			ep, err := s.Endpoint(ctx, raw)
			if err != nil {
				return nil, err
			}
			deadLetters = append(deadLetters, ep)
		}
	}

	hooks := lifecycle.LoggingHooks(s.Logger).
		Merge(lifecycle.MetricsHooks(nil,
			func(c string) { s.metrics.Component(c).IncInvocation(stats.OutcomeOK) },
			func(c string) { s.metrics.Component(c).IncInvocation(stats.OutcomeError) },
		)).
		Merge(opts.Hooks)

	adapter, err := lifecycle.NewAdapter(name, object, lifecycle.Options{
		Resolver: opts.Resolver,
		Hooks:    hooks,
		Notifier: s.notifier,
		Logger:   s.Logger,
	})
	if err != nil {
		return nil, err
	}

	strategy := exception.NewComponentStrategy(nil,
		func(c string) exception.Statistics { return s.metrics.Component(c) },
		exception.Options{
			Logger:   s.Logger,
			Notifier: s.notifier,
			Selector: opts.Selector,
		})
	if err := strategy.SetEndpoints(deadLetters...); err != nil {
		return nil, err
	}

	c, err := component.New(adapter, component.Options{
		Router:   component.NewEndpointRouter(outbound...),
		Strategy: strategy,
		Pool:     s.pool,
		Logger:   s.Logger,
	})
	if err != nil {
		return nil, err
	}
	strategy.SetComponent(c)

	s.mu.Lock()
	s.components = append(s.components, c)
	s.mu.Unlock()
	return c, nil
}

// RegisterInbound feeds messages arriving on rawURI to c. Messages carrying a
// reply topic on a remote-sync endpoint are processed on the router
// goroutine and answered; all others are dispatched to the pool. A failed
// message is handed to c's exception strategy and acknowledged.
func (s *Service) RegisterInbound(ctx context.Context, rawURI string, c *component.Component) error {
	if c == nil {
		return errspkg.ErrComponentRequired
	}
	ep, err := s.Endpoint(ctx, rawURI)
	if err != nil {
		return err
	}
	if !ep.CanReceive() || ep.Subscriber() == nil {
		return &errspkg.ConfigurationError{Reason: "inbound endpoint " + ep.URI().String(), Err: errspkg.ErrEndpointNotReceivable}
	}

	s.mu.Lock()
	info := &HandlerInfo{
		Name:      fmt.Sprintf("%s-%s-%d", c.Name(), ep.Topic(), len(s.handlers)),
		Endpoint:  ep.URI().String(),
		Component: c.Name(),
		Topic:     ep.Topic(),
	}
	s.handlers = append(s.handlers, info)
	s.mu.Unlock()

	s.router.AddNoPublisherHandler(info.Name, ep.Topic(), ep.Subscriber(), s.inboundHandler(info.Name, ep, c))
	s.Logger.Info("Registered inbound endpoint", loggingpkg.LogFields{
		"handler":   info.Name,
		"endpoint":  info.Endpoint,
		"component": info.Component,
	})
	return nil
}

type replier interface {
	event.Endpoint
	Reply(ctx context.Context, replyTo string, msg *messagepkg.Message) error
}

func (s *Service) inboundHandler(name string, ep replier, c *component.Component) message.NoPublishHandlerFunc {
	owner := ownership.NewOwner("inbound-" + name)
	logger := s.Logger.With(loggingpkg.LogFields{"handler": name})

	return func(wm *message.Message) error {
		replyTo := wm.Metadata.Get(metadata.KeyReplyTo)
		delete(wm.Metadata, metadata.KeyReplyTo)

		ctx := ownership.WithOwner(wm.Context(), owner)
		msg := messagepkg.FromWatermill(wm)

		sess, err := session.FromMessage(msg, c, session.Options{Logger: s.Logger})
		if err != nil {
			logger.Error("Discarding unreadable session header", err, loggingpkg.LogFields{"message_uuid": wm.UUID})
			sess = session.New(c, session.Options{Logger: s.Logger})
		}

		synchronous := replyTo != "" && ep.IsRemoteSync()
		ev, err := event.New(ctx, msg, ep, sess, synchronous)
		if err != nil {
			return err
		}

		if synchronous {
			reply, err := c.SendEvent(ctx, ev)
			if reply == nil {
				reply = messagepkg.NewCorrelated(nil, msg)
			}
			if replyErr := ep.Reply(ctx, replyTo, reply); replyErr != nil {
				logger.Error("Failed to publish reply", replyErr, loggingpkg.LogFields{
					"reply_to":     replyTo,
					"message_uuid": wm.UUID,
				})
			}
			if err != nil {
				logger.Debug("Synchronous event failed", loggingpkg.LogFields{"error": err.Error()})
			}
			return nil
		}

		if err := c.DispatchEvent(ctx, ev); err != nil {
			sctx, release := requestctx.Scoped(ctx, ev)
			c.Strategy().ExceptionThrown(sctx, err)
			release()
		}
		return nil
	}
}
