package requestctx

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	flowerrors "github.com/drblury/flowcore/internal/runtime/errors"
	"github.com/drblury/flowcore/internal/runtime/event"
	"github.com/drblury/flowcore/internal/runtime/message"
	"github.com/drblury/flowcore/internal/runtime/metadata"
	"github.com/drblury/flowcore/internal/runtime/ownership"
)

type stubSession struct{}

func (stubSession) ID() string                  { return "session-1" }
func (stubSession) Component() event.Component  { return nil }
func (stubSession) IsValid() bool               { return true }
func (stubSession) Property(string) (any, bool) { return nil, false }
func (stubSession) DispatchTo(context.Context, *message.Message, event.Endpoint) error {
	return nil
}
func (stubSession) SendTo(context.Context, *message.Message, event.Endpoint) (*message.Message, error) {
	return nil, nil
}

func newEvent(t *testing.T, ctx context.Context, payload any) *event.Event {
	t.Helper()
	ev, err := event.New(ctx, message.New(payload), nil, stubSession{}, false)
	require.NoError(t, err)
	return ev
}

func TestNoScope(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, Event(ctx))
	assert.Nil(t, Session(ctx))

	_, err := UnsafeSetEvent(ctx, newEvent(t, ctx, "p"))
	assert.ErrorIs(t, err, flowerrors.ErrNoRequestScope)

	ev, err := RewriteEvent(ctx, message.New("x"))
	assert.NoError(t, err)
	assert.Nil(t, ev)
	assert.NoError(t, SetExceptionPayload(ctx, message.NewExceptionPayload(errors.New("x"))))
	Clear(ctx)
}

func TestReleaseEmptiesSlot(t *testing.T) {
	ctx, release := Enter(context.Background())
	ev := newEvent(t, ctx, "p")
	installed, err := UnsafeSetEvent(ctx, ev)
	require.NoError(t, err)
	assert.Same(t, ev, installed)
	assert.Same(t, ev, Event(ctx))
	assert.Equal(t, "session-1", Session(ctx).ID())

	release()
	assert.Nil(t, Event(ctx))
}

func TestNestedScopesAreIndependent(t *testing.T) {
	outer, releaseOuter := Enter(context.Background())
	defer releaseOuter()
	outerEv := newEvent(t, outer, "outer")
	_, _ = UnsafeSetEvent(outer, outerEv)

	inner, releaseInner := Scoped(outer, newEvent(t, outer, "inner"))
	assert.Equal(t, "inner", Event(inner).Message().Payload())
	releaseInner()

	assert.Same(t, outerEv, Event(outer))
}

func TestSetEventInstallsUnboundCopy(t *testing.T) {
	w1 := ownership.WithOwner(context.Background(), ownership.NewOwner("w1"))
	ev := newEvent(t, w1, "p")
	require.NoError(t, ev.SetSynchronous(w1, true))

	w2 := ownership.WithOwner(context.Background(), ownership.NewOwner("w2"))
	ctx, release := Enter(w2)
	defer release()

	installed, err := SetEvent(ctx, ev)
	require.NoError(t, err)
	assert.NotSame(t, ev, installed)
	assert.Equal(t, ev.ID(), installed.ID())
	assert.Equal(t, ownership.Unbound, installed.OwnershipState())
	require.NoError(t, installed.SetStopFurtherProcessing(ctx, true))

	installed, err = SetEvent(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, installed)
	assert.Nil(t, Event(ctx))
}

func TestSetEventSealsEventBoundElsewhere(t *testing.T) {
	w1 := ownership.WithOwner(context.Background(), ownership.NewOwner("w1"))
	ev := newEvent(t, w1, "p")
	require.NoError(t, ev.SetSynchronous(w1, true))
	require.NoError(t, ev.Message().SetProperty(w1, "k", "v"))

	ctx, release := Enter(ownership.WithOwner(context.Background(), ownership.NewOwner("w2")))
	defer release()
	_, err := SetEvent(ctx, ev)
	require.NoError(t, err)

	assert.Equal(t, ownership.Sealed, ev.OwnershipState())
	assert.Equal(t, ownership.Sealed, ev.Message().OwnershipState())
	var violation *flowerrors.AccessViolationError
	require.ErrorAs(t, ev.Message().SetProperty(w1, "k", "changed"), &violation)
	require.ErrorAs(t, ev.SetStopFurtherProcessing(w1, true), &violation)
}

func TestRewriteCarriesReservedPropertiesIfAbsent(t *testing.T) {
	ctx, release := Enter(ownership.WithOwner(context.Background(), ownership.NewOwner("w")))
	defer release()

	oldMsg := message.New("old")
	require.NoError(t, oldMsg.SetProperty(ctx, metadata.KeySession, "header"))
	require.NoError(t, oldMsg.SetProperty(ctx, metadata.KeyMethod, "old-method"))
	require.NoError(t, oldMsg.SetProperty(ctx, "user", "kept-out"))
	old, err := event.New(ctx, oldMsg, nil, stubSession{}, true)
	require.NoError(t, err)
	_, _ = UnsafeSetEvent(ctx, old)

	newMsg := message.New("new")
	require.NoError(t, newMsg.SetProperty(ctx, metadata.KeyMethod, "new-method"))

	rewritten, err := RewriteEvent(ctx, newMsg)
	require.NoError(t, err)
	require.NotNil(t, rewritten)

	got := rewritten.Message()
	assert.NotSame(t, newMsg, got)
	assert.Equal(t, "header", got.StringProperty(metadata.KeySession, ""))
	assert.Equal(t, "new-method", got.StringProperty(metadata.KeyMethod, ""))
	_, hasUser := got.Property("user")
	assert.False(t, hasUser)
	assert.Equal(t, ownership.Unbound, got.OwnershipState())

	assert.Equal(t, old.ID(), rewritten.ID())
	assert.True(t, rewritten.IsSynchronous())
	assert.Same(t, rewritten, Event(ctx))
	_, untouched := newMsg.Property(metadata.KeySession)
	assert.False(t, untouched)
}

func TestUnsafeRewriteKeepsMessage(t *testing.T) {
	ctx, release := Enter(context.Background())
	defer release()
	_, _ = UnsafeSetEvent(ctx, newEvent(t, ctx, "old"))

	msg := message.New("new")
	ev, err := UnsafeRewriteEvent(ctx, msg)
	require.NoError(t, err)
	assert.Same(t, msg, ev.Message())

	ev, err = UnsafeRewriteEvent(ctx, nil)
	assert.NoError(t, err)
	assert.Nil(t, ev)
}

func TestSetExceptionPayloadAndClear(t *testing.T) {
	ctx, release := Enter(context.Background())
	defer release()
	ev := newEvent(t, ctx, "p")
	_, _ = UnsafeSetEvent(ctx, ev)

	ep := message.NewExceptionPayload(errors.New("boom"))
	require.NoError(t, SetExceptionPayload(ctx, ep))
	assert.Same(t, ep, ev.Message().ExceptionPayload())

	Clear(ctx)
	assert.Nil(t, Event(ctx))
}
