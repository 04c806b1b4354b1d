package endpoint

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/drblury/flowcore/internal/runtime/errors"
	"github.com/drblury/flowcore/internal/runtime/event"
	"github.com/drblury/flowcore/internal/runtime/message"
)

// ReplyFunc answers a synchronous send on a Memory endpoint.
type ReplyFunc func(ctx context.Context, ev *event.Event) (*message.Message, error)

// Memory is an in-process endpoint. Dispatched messages are queued for
// Receive and every event is recorded. Its remote-sync timeout and failure
// mode can be changed at runtime.
type Memory struct {
	*Base

	mu         sync.Mutex
	dispatched []*event.Event
	sent       []*event.Event
	reply      ReplyFunc
	err        error

	queue chan *message.Message
}

var _ event.Endpoint = (*Memory)(nil)

// DefaultQueueSize bounds the messages a Memory endpoint holds for Receive.
const DefaultQueueSize = 64

// NewMemory builds an in-process endpoint.
func NewMemory(cfg Config) (*Memory, error) {
	if cfg.URI == nil {
		return nil, &errors.ConfigurationError{Reason: "endpoint uri is required", Err: errors.ErrEndpointRequired}
	}
	return &Memory{
		Base:  newBase(cfg, true, true),
		queue: make(chan *message.Message, DefaultQueueSize),
	}, nil
}

// SetRemoteSyncTimeout changes the timeout, in milliseconds, new events
// resolve from this endpoint.
func (m *Memory) SetRemoteSyncTimeout(ms int) { m.timeoutMs.Store(int64(ms)) }

// SetReply installs the function answering Send.
func (m *Memory) SetReply(fn ReplyFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reply = fn
}

// FailWith makes every later Dispatch and Send fail with err. Nil restores
// normal operation.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Dispatched returns the events dispatched so far.
func (m *Memory) Dispatched() []*event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.dispatched)
}

// Sent returns the events sent so far.
func (m *Memory) Sent() []*event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.sent)
}

func (m *Memory) Dispatch(ctx context.Context, ev *event.Event) error {
	if !m.CanSend() {
		return m.dispatchError("dispatch", errors.ErrEndpointNotSendable)
	}
	m.mu.Lock()
	if m.err != nil {
		err := m.err
		m.mu.Unlock()
		return m.dispatchError("dispatch", err)
	}
	m.dispatched = append(m.dispatched, ev)
	m.mu.Unlock()

	select {
	case m.queue <- ev.Message():
		return nil
	case <-ctx.Done():
		return m.dispatchError("dispatch", ctx.Err())
	}
}

func (m *Memory) Send(ctx context.Context, ev *event.Event) (*message.Message, error) {
	if !m.CanSend() {
		return nil, m.dispatchError("send", errors.ErrEndpointNotSendable)
	}
	m.mu.Lock()
	if m.err != nil {
		err := m.err
		m.mu.Unlock()
		return nil, m.dispatchError("send", err)
	}
	m.sent = append(m.sent, ev)
	reply := m.reply
	m.mu.Unlock()

	if reply == nil {
		return nil, nil
	}
	return reply(ctx, ev)
}

// Receive takes the oldest queued message, waiting up to timeout. A
// non-positive timeout waits until ctx ends.
func (m *Memory) Receive(ctx context.Context, timeout time.Duration) (*message.Message, error) {
	if !m.CanReceive() {
		return nil, m.dispatchError("receive", errors.ErrEndpointNotReceivable)
	}
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case msg := <-m.queue:
		return msg, nil
	case <-timer:
		return nil, m.dispatchError("receive", errors.ErrReceiveTimeout)
	case <-ctx.Done():
		return nil, m.dispatchError("receive", ctx.Err())
	}
}

func (m *Memory) dispatchError(op string, err error) error {
	return &errors.DispatchError{Endpoint: m.URI().String(), Op: op, Err: err}
}
