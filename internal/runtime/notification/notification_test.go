package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/flowcore/internal/runtime/cloudevents"
	"github.com/drblury/flowcore/internal/runtime/logging"
)

func TestNewKeepsErrorText(t *testing.T) {
	n := New(ExceptionThrown, "orders", errors.New("boom"))
	assert.Equal(t, "boom", n.Payload)
	assert.False(t, n.Time.IsZero())
}

func TestMultiFansOut(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	Multi{a, nil, b}.FireNotification(context.Background(), New(ComponentStarted, "c", nil))
	assert.Equal(t, []Action{ComponentStarted}, a.Actions())
	assert.Equal(t, []Action{ComponentStarted}, b.Actions())
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	r := &Recorder{}
	assert.Same(t, r, OrNop(r))
	Nop.FireNotification(context.Background(), New(ComponentStopped, "c", nil))
}

func TestLoggingManager(t *testing.T) {
	capture := watermill.NewCaptureLogger()
	LoggingManager{Logger: logging.NewWatermillServiceLogger(capture)}.
		FireNotification(context.Background(), New(ComponentDisposed, "orders", nil))

	entries := capture.Captured()[watermill.DebugLogLevel]
	require.Len(t, entries, 1)
	assert.Equal(t, "component.disposed", entries[0].Fields["action"])
	assert.Equal(t, "orders", entries[0].Fields["resource"])
}

func TestPublisherManagerPublishesCloudEvent(t *testing.T) {
	ps := gochannel.NewGoChannel(gochannel.Config{Persistent: true}, watermill.NopLogger{})
	defer ps.Close()

	mgr := NewPublisherManager(ps, "notifications", "flowcore/test", nil)
	mgr.FireNotification(context.Background(), New(DeadLetterRouted, "orders", map[string]any{"endpoint": "vm://dlq"}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msgs, err := ps.Subscribe(ctx, "notifications")
	require.NoError(t, err)

	select {
	case msg := <-msgs:
		msg.Ack()
		evt, err := cloudevents.FromWatermill(msg)
		require.NoError(t, err)
		assert.Equal(t, "flowcore.exception.deadletter", evt.Type)
		assert.Equal(t, "flowcore/test", evt.Source)
		assert.Equal(t, "orders", evt.Subject)
		assert.Equal(t, "vm://dlq", evt.Data.(map[string]any)["endpoint"])
	case <-ctx.Done():
		t.Fatal("notification not published")
	}
}
