package endpoint

import (
	"context"
	"time"

	wmmessage "github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/flowcore/internal/runtime/errors"
	"github.com/drblury/flowcore/internal/runtime/event"
	"github.com/drblury/flowcore/internal/runtime/logging"
	"github.com/drblury/flowcore/internal/runtime/message"
	"github.com/drblury/flowcore/internal/runtime/metadata"
)

// ReplySuffix is appended to an endpoint topic to form reply topics.
const ReplySuffix = ".reply."

// Watermill is an endpoint over a watermill publisher and subscriber. Either
// may be nil; the endpoint then cannot send or receive respectively.
type Watermill struct {
	*Base
	publisher  wmmessage.Publisher
	subscriber wmmessage.Subscriber
	logger     logging.ServiceLogger
}

var _ event.Endpoint = (*Watermill)(nil)

// NewWatermill builds a watermill-backed endpoint.
func NewWatermill(cfg Config, pub wmmessage.Publisher, sub wmmessage.Subscriber, logger logging.ServiceLogger) (*Watermill, error) {
	if cfg.URI == nil {
		return nil, &errors.ConfigurationError{Reason: "endpoint uri is required", Err: errors.ErrEndpointRequired}
	}
	if pub == nil && sub == nil {
		return nil, &errors.ConfigurationError{Reason: "endpoint " + cfg.URI.String() + " has neither publisher nor subscriber"}
	}
	return &Watermill{
		Base:       newBase(cfg, pub != nil, sub != nil),
		publisher:  pub,
		subscriber: sub,
		logger:     logging.OrNop(logger).With(logging.LogFields{"endpoint": cfg.URI.String()}),
	}, nil
}

// Subscriber returns the subscriber inbound handlers consume from, or nil.
func (w *Watermill) Subscriber() wmmessage.Subscriber { return w.subscriber }

// Dispatch publishes ev's transformed payload to the endpoint topic.
func (w *Watermill) Dispatch(ctx context.Context, ev *event.Event) error {
	if !w.CanSend() {
		return w.dispatchError("dispatch", errors.ErrEndpointNotSendable)
	}
	msg, err := w.toWatermill(ctx, ev)
	if err != nil {
		return w.dispatchError("dispatch", err)
	}
	if err := w.publisher.Publish(w.Topic(), msg); err != nil {
		return w.dispatchError("dispatch", err)
	}
	return nil
}

// Send publishes ev. On a remote-sync endpoint it waits for the reply on
// <topic>.reply.<event id>, bounded by the event timeout when one is set.
// Otherwise it returns a nil reply once published.
func (w *Watermill) Send(ctx context.Context, ev *event.Event) (*message.Message, error) {
	if !w.CanSend() {
		return nil, w.dispatchError("send", errors.ErrEndpointNotSendable)
	}
	if !w.IsRemoteSync() || w.subscriber == nil {
		return nil, w.Dispatch(ctx, ev)
	}

	replyTopic := w.Topic() + ReplySuffix + ev.ID()
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	replies, err := w.subscriber.Subscribe(subCtx, replyTopic)
	if err != nil {
		return nil, w.dispatchError("send", err)
	}

	msg, err := w.toWatermill(ctx, ev)
	if err != nil {
		return nil, w.dispatchError("send", err)
	}
	msg.Metadata.Set(metadata.KeyReplyTo, replyTopic)
	if err := w.publisher.Publish(w.Topic(), msg); err != nil {
		return nil, w.dispatchError("send", err)
	}

	reply, err := w.await(ctx, replies, time.Duration(ev.Timeout())*time.Millisecond, errors.ErrReplyTimeout)
	if err != nil {
		return nil, w.dispatchError("send", err)
	}
	return reply, nil
}

// Receive waits up to timeout for one message on the endpoint topic. A
// non-positive timeout waits until ctx ends.
func (w *Watermill) Receive(ctx context.Context, timeout time.Duration) (*message.Message, error) {
	if !w.CanReceive() {
		return nil, w.dispatchError("receive", errors.ErrEndpointNotReceivable)
	}
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	messages, err := w.subscriber.Subscribe(subCtx, w.Topic())
	if err != nil {
		return nil, w.dispatchError("receive", err)
	}
	msg, err := w.await(ctx, messages, timeout, errors.ErrReceiveTimeout)
	if err != nil {
		return nil, w.dispatchError("receive", err)
	}
	return msg, nil
}

// Reply publishes msg to replyTo, the reply topic a remote-sync caller
// named in its request.
func (w *Watermill) Reply(ctx context.Context, replyTo string, msg *message.Message) error {
	if w.publisher == nil {
		return w.dispatchError("reply", errors.ErrEndpointNotSendable)
	}
	wm, err := msg.ToWatermill()
	if err != nil {
		return w.dispatchError("reply", err)
	}
	if ep := msg.ExceptionPayload(); ep != nil {
		wm.Metadata.Set(metadata.KeyException, ep.Message)
	}
	wm.SetContext(ctx)
	if err := w.publisher.Publish(replyTo, wm); err != nil {
		return w.dispatchError("reply", err)
	}
	return nil
}

func (w *Watermill) await(ctx context.Context, ch <-chan *wmmessage.Message, timeout time.Duration, timeoutErr error) (*message.Message, error) {
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case wm, ok := <-ch:
		if !ok {
			return nil, context.Canceled
		}
		wm.Ack()
		return message.FromWatermill(wm), nil
	case <-timer:
		return nil, timeoutErr
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *Watermill) toWatermill(ctx context.Context, ev *event.Event) (*wmmessage.Message, error) {
	src := ev.Message()
	if err := src.AssertAccess(ctx, false); err != nil {
		return nil, err
	}
	payload, err := ev.TransformedMessageAsBytes(ctx)
	if err != nil {
		return nil, err
	}
	wm := wmmessage.NewMessage(ev.ID(), payload)
	wm.Metadata = metadata.FromProperties(src.Properties()).Watermill()
	wm.Metadata.Set(metadata.KeyEventID, ev.ID())
	wm.Metadata.Set(metadata.KeyEncoding, ev.Encoding())
	if src.CorrelationID() == "" {
		wm.Metadata.Set(metadata.KeyCorrelationID, src.ID())
	}
	wm.SetContext(ctx)
	w.logger.Trace("publishing message", logging.LogFields{"topic": w.Topic(), "event": ev.ID()})
	return wm, nil
}

func (w *Watermill) dispatchError(op string, err error) error {
	return &errors.DispatchError{Endpoint: w.URI().String(), Op: op, Err: err}
}
