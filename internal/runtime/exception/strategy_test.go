package exception

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/flowcore/internal/runtime/cloudevents"
	"github.com/drblury/flowcore/internal/runtime/endpoint"
	flowerrors "github.com/drblury/flowcore/internal/runtime/errors"
	"github.com/drblury/flowcore/internal/runtime/event"
	"github.com/drblury/flowcore/internal/runtime/logging"
	"github.com/drblury/flowcore/internal/runtime/message"
	"github.com/drblury/flowcore/internal/runtime/notification"
	"github.com/drblury/flowcore/internal/runtime/requestctx"
	"github.com/drblury/flowcore/internal/runtime/session"
	"github.com/drblury/flowcore/internal/runtime/stats"
	"github.com/drblury/flowcore/internal/runtime/transaction"
	"github.com/drblury/flowcore/internal/runtime/uri"
)

type namedComponent struct{ name string }

func (c *namedComponent) Name() string                                      { return c.name }
func (c *namedComponent) OutboundRouter() event.OutboundRouter              { return nil }
func (c *namedComponent) DispatchEvent(context.Context, *event.Event) error { return nil }
func (c *namedComponent) SendEvent(context.Context, *event.Event) (*message.Message, error) {
	return nil, nil
}

func memory(t *testing.T, raw string) *endpoint.Memory {
	t.Helper()
	ep, err := endpoint.NewMemory(endpoint.Config{URI: uri.MustParse(raw)})
	require.NoError(t, err)
	return ep
}

// activeEvent opens a request scope holding an event for payload, received on
// vm://orders by comp.
func activeEvent(t *testing.T, ctx context.Context, comp event.Component, payload any) (context.Context, *event.Event) {
	t.Helper()
	ctx, release := requestctx.Enter(ctx)
	t.Cleanup(release)
	ev, err := event.New(ctx, message.New(payload), memory(t, "vm://orders"), session.New(comp, session.Options{}), false)
	require.NoError(t, err)
	_, err = requestctx.UnsafeSetEvent(ctx, ev)
	require.NoError(t, err)
	return ctx, ev
}

func decodeSent(t *testing.T, ep *endpoint.Memory) (DeadLetter, cloudevents.Event) {
	t.Helper()
	sent := ep.Sent()
	require.Len(t, sent, 1)
	assert.True(t, sent[0].IsSynchronous())
	data, ok := sent[0].Message().Payload().([]byte)
	require.True(t, ok)
	dl, evt, err := DecodeDeadLetter(data)
	require.NoError(t, err)
	return dl, evt
}

func TestClassifyByTypePriority(t *testing.T) {
	msg := message.New("p")
	messaging := message.NewMessagingError(msg, "c", errors.New("business"))
	routing := message.NewRoutingError(msg, "vm://out", errors.New("unreachable"))
	lifecycle := &flowerrors.LifecycleError{Component: "c", Phase: "start", Err: errors.New("x")}

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"routing wraps messaging", message.NewRoutingError(msg, "vm://out", messaging), Routing},
		{"messaging wraps routing", message.NewMessagingError(msg, "c", routing), Routing},
		{"messaging wraps lifecycle", message.NewMessagingError(msg, "c", lifecycle), Messaging},
		{"lifecycle wraps messaging", &flowerrors.LifecycleError{Component: "c", Phase: "stop", Err: messaging}, Messaging},
		{"joined", errors.Join(errors.New("a"), lifecycle), Lifecycle},
		{"deep routing", fmt.Errorf("outer: %w", fmt.Errorf("mid: %w", routing)), Routing},
		{"plain", errors.New("plain"), Standard},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, cause := Classify(tt.err)
			assert.Equal(t, tt.want, kind)
			assert.NotNil(t, cause)
		})
	}
}

func TestNoEndpointMarksRollbackAndDoesNotPanic(t *testing.T) {
	failures := map[string]error{
		"routing":   message.NewRoutingError(message.New("p"), "vm://x", errors.New("x")),
		"messaging": message.NewMessagingError(message.New("p"), "c", errors.New("x")),
		"lifecycle": &flowerrors.LifecycleError{Component: "c", Phase: "start", Err: errors.New("x")},
		"standard":  errors.New("x"),
	}
	for name, failure := range failures {
		t.Run(name, func(t *testing.T) {
			tx := transaction.NewLocal()
			ctx := transaction.WithTransaction(context.Background(), tx)
			New(Options{}).ExceptionThrown(ctx, failure)
			assert.True(t, tx.IsRollbackOnly())
		})
	}
}

func TestNoEndpointWithoutTransaction(t *testing.T) {
	s := New(Options{})
	s.ExceptionThrown(context.Background(), errors.New("x"))
	assert.NoError(t, s.RouteException(context.Background(), nil, "", errors.New("x")))
}

func TestReceiveOnlyDeadLetterEndpointRejected(t *testing.T) {
	s := New(Options{})
	err := s.AddEndpoint(memory(t, "vm://dlq?direction=in"))
	var ce *flowerrors.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, flowerrors.ErrEndpointNotSendable)
	assert.Empty(t, s.Endpoints())

	good := memory(t, "vm://dlq")
	require.NoError(t, s.AddEndpoint(good))
	err = s.SetEndpoints(memory(t, "vm://a"), memory(t, "vm://b?direction=in"))
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []event.Endpoint{good}, s.Endpoints())

	assert.ErrorIs(t, s.AddEndpoint(nil), flowerrors.ErrEndpointRequired)
}

func TestMessagingFailureRoutedToFirstEndpoint(t *testing.T) {
	rec := &notification.Recorder{}
	s := New(Options{Notifier: rec, Source: "test"})
	dlq, second := memory(t, "vm://dlq"), memory(t, "vm://dlq2")
	require.NoError(t, s.AddEndpoint(dlq))
	require.NoError(t, s.AddEndpoint(second))

	ctx, ev := activeEvent(t, context.Background(), &namedComponent{name: "orders"}, "order-42")
	boom := errors.New("business failure")
	s.ExceptionThrown(ctx, message.NewMessagingError(ev.Message(), "orders", boom))

	dl, evt := decodeSent(t, dlq)
	assert.Empty(t, second.Sent())
	assert.Equal(t, "order-42", dl.Payload)
	assert.Equal(t, "orders", dl.Component)
	assert.Equal(t, ev.Endpoint().URI().String(), dl.OriginEndpoint)
	assert.Contains(t, dl.Error, "business failure")
	assert.Equal(t, cloudevents.TypeDeadLetter, evt.Type)
	assert.Equal(t, "test", evt.Source)
	assert.True(t, cloudevents.IsDeadLetter(evt))

	sent := dlq.Sent()[0].Message()
	assert.Equal(t, cloudevents.ContentType, sent.StringProperty(cloudevents.MetadataContentType, ""))

	require.NotNil(t, ev.Message().ExceptionPayload())
	assert.ErrorIs(t, ev.Message().ExceptionPayload().Err, boom)
	assert.Equal(t, []notification.Action{notification.ExceptionThrown, notification.DeadLetterRouted}, rec.Actions())
	assert.True(t, s.IsInitialised())
}

func TestRoutingFailureReportsFailingEndpoint(t *testing.T) {
	s := New(Options{})
	dlq := memory(t, "vm://dlq")
	require.NoError(t, s.AddEndpoint(dlq))

	failed := message.New("payload")
	s.ExceptionThrown(context.Background(), message.NewRoutingError(failed, "vm://unreachable", errors.New("down")))

	dl, evt := decodeSent(t, dlq)
	assert.Equal(t, "vm://unreachable", dl.OriginEndpoint)
	assert.Equal(t, UnknownComponent, dl.Component)
	assert.Equal(t, failed.ID(), evt.ExtensionString(cloudevents.ExtCorrelationID))
	assert.Equal(t, failed.ID(), dlq.Sent()[0].Message().CorrelationID())
}

func TestStandardFailureWithoutEventRoutesEmptyMessage(t *testing.T) {
	tx := transaction.NewLocal()
	ctx := transaction.WithTransaction(context.Background(), tx)
	s := New(Options{})
	dlq := memory(t, "vm://dlq")
	require.NoError(t, s.AddEndpoint(dlq))

	s.ExceptionThrown(ctx, errors.New("standard"))

	dl, _ := decodeSent(t, dlq)
	assert.Nil(t, dl.Payload)
	assert.Equal(t, "standard", dl.Error)
	assert.True(t, tx.IsRollbackOnly(), "standard handling marks rollback even when a dead-letter endpoint is used")
}

func TestStandardFailureUsesActiveEventMessage(t *testing.T) {
	s := New(Options{})
	dlq := memory(t, "vm://dlq")
	require.NoError(t, s.AddEndpoint(dlq))

	ctx, _ := activeEvent(t, context.Background(), nil, "active")
	s.ExceptionThrown(ctx, errors.New("standard"))

	dl, _ := decodeSent(t, dlq)
	assert.Equal(t, "active", dl.Payload)
}

func TestLifecycleFailureHandledAsStandard(t *testing.T) {
	tx := transaction.NewLocal()
	ctx := transaction.WithTransaction(context.Background(), tx)
	capture := watermill.NewCaptureLogger()
	s := New(Options{Logger: logging.NewWatermillServiceLogger(capture)})
	dlq := memory(t, "vm://dlq")
	require.NoError(t, s.AddEndpoint(dlq))

	s.ExceptionThrown(ctx, &flowerrors.LifecycleError{Component: "orders", Phase: "start", Err: errors.New("x")})

	assert.True(t, tx.IsRollbackOnly())
	assert.Len(t, dlq.Sent(), 1)
	var logged bool
	for _, entry := range capture.Captured()[watermill.ErrorLogLevel] {
		if entry.Fields["failed_component"] == "orders" {
			logged = true
		}
	}
	assert.True(t, logged, "expected the failed component to be logged")
}

func TestDeadLetterDispatchFailureIsFatal(t *testing.T) {
	capture := watermill.NewCaptureLogger()
	rec := &notification.Recorder{}
	s := New(Options{Logger: logging.NewWatermillServiceLogger(capture), Notifier: rec})
	dlq := memory(t, "vm://dlq")
	dlq.FailWith(errors.New("dlq down"))
	require.NoError(t, s.AddEndpoint(dlq))

	original := errors.New("original")
	err := s.RouteException(context.Background(), message.New("p"), "", original)
	var fe *flowerrors.FatalError
	require.ErrorAs(t, err, &fe)
	assert.ErrorIs(t, err, original)

	var fatal bool
	for _, entry := range capture.Captured()[watermill.ErrorLogLevel] {
		if entry.Fields[logging.FieldSeverity] == logging.SeverityFatal {
			fatal = true
		}
	}
	assert.True(t, fatal)
	assert.Equal(t, []notification.Action{notification.DeadLetterFailed}, rec.Actions())

	// ExceptionThrown swallows the fatal failure.
	s.ExceptionThrown(context.Background(), errors.New("again"))
}

func TestSelectorOverride(t *testing.T) {
	a, b := memory(t, "vm://a"), memory(t, "vm://b")
	s := New(Options{Selector: func(_ error, eps []event.Endpoint) event.Endpoint { return eps[len(eps)-1] }})
	require.NoError(t, s.SetEndpoints(a, b))

	s.ExceptionThrown(context.Background(), errors.New("x"))
	assert.Empty(t, a.Sent())
	assert.Len(t, b.Sent(), 1)
}

func TestInitialiseRunsOnceUnderConcurrency(t *testing.T) {
	var calls atomic.Int32
	s := New(Options{OnInitialise: func(context.Context) { calls.Add(1) }})

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.ExceptionThrown(context.Background(), errors.New("x"))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestAddEndpointDuringIteration(t *testing.T) {
	s := New(Options{})
	require.NoError(t, s.AddEndpoint(memory(t, "vm://a")))
	snapshot := s.Endpoints()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.AddEndpoint(memory(t, fmt.Sprintf("vm://n%d", i))))
		}()
	}
	for _, ep := range snapshot {
		assert.True(t, ep.CanSend())
	}
	wg.Wait()
	assert.Len(t, snapshot, 1)
	assert.Len(t, s.Endpoints(), 9)
}

func TestComponentStrategyBindsLazilyAndCounts(t *testing.T) {
	metrics := stats.NewMetrics(prometheus.NewRegistry())
	provider := func(name string) Statistics { return metrics.Component(name) }

	cs := NewComponentStrategy(nil, provider, Options{})
	dlq := memory(t, "vm://dlq")
	require.NoError(t, cs.AddEndpoint(dlq))

	comp := &namedComponent{name: "billing"}
	ctx, ev := activeEvent(t, context.Background(), comp, "invoice")
	cs.ExceptionThrown(ctx, message.NewMessagingError(ev.Message(), "billing", errors.New("x")))

	assert.Same(t, comp, cs.Component())
	dl, _ := decodeSent(t, dlq)
	assert.Equal(t, "billing", dl.Component)

	snap := metrics.Component("billing").Snapshot()
	assert.Equal(t, uint64(1), snap.ExecutionErrors)
	assert.Equal(t, uint64(0), snap.FatalErrors)
	assert.Equal(t, uint64(1), snap.RoutedMessages[dlq.URI().String()])

	dlq.FailWith(errors.New("down"))
	cs.ExceptionThrown(ctx, errors.New("y"))
	snap = metrics.Component("billing").Snapshot()
	assert.Equal(t, uint64(2), snap.ExecutionErrors)
	assert.Equal(t, uint64(1), snap.FatalErrors)
	assert.Equal(t, uint64(1), snap.RoutedMessages[dlq.URI().String()])
}

func TestComponentStrategyWithoutEventLogsFatal(t *testing.T) {
	capture := watermill.NewCaptureLogger()
	cs := NewComponentStrategy(nil, nil, Options{Logger: logging.NewWatermillServiceLogger(capture)})
	cs.ExceptionThrown(context.Background(), errors.New("x"))
	assert.Nil(t, cs.Component())

	var fatal bool
	for _, entry := range capture.Captured()[watermill.ErrorLogLevel] {
		if entry.Msg == "component exception strategy invoked without an active event" &&
			entry.Fields[logging.FieldSeverity] == logging.SeverityFatal {
			fatal = true
		}
	}
	assert.True(t, fatal)
}

func TestComponentStrategyBoundUpFront(t *testing.T) {
	comp := &namedComponent{name: "fixed"}
	cs := NewComponentStrategy(comp, nil, Options{})
	dlq := memory(t, "vm://dlq")
	require.NoError(t, cs.AddEndpoint(dlq))

	ctx, _ := activeEvent(t, context.Background(), &namedComponent{name: "other"}, "p")
	cs.ExceptionThrown(ctx, errors.New("x"))

	assert.Same(t, comp, cs.Component())
	dl, _ := decodeSent(t, dlq)
	assert.Equal(t, "fixed", dl.Component)
}
