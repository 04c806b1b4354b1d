package component

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	flowerrors "github.com/drblury/flowcore/internal/runtime/errors"
	"github.com/drblury/flowcore/internal/runtime/event"
	"github.com/drblury/flowcore/internal/runtime/message"
	"github.com/drblury/flowcore/internal/runtime/session"
)

func TestRouterSyncUsesFirstSendableEndpoint(t *testing.T) {
	inOnly, first, second := memory(t, "vm://in?direction=in"), memory(t, "vm://first"), memory(t, "vm://second")
	r := NewEndpointRouter(nil, inOnly, first, second)
	assert.Len(t, r.Endpoints(), 3)
	assert.True(t, r.HasEndpoints())

	_, err := r.Route(context.Background(), message.New("x"), session.New(nil, session.Options{}), true)
	require.NoError(t, err)
	assert.Len(t, first.Sent(), 1)
	assert.Empty(t, second.Sent())
}

func TestRouterAsyncDispatchesToAll(t *testing.T) {
	a, b := memory(t, "vm://a"), memory(t, "vm://b")
	r := NewEndpointRouter(a, b)

	msg := message.New("x")
	_, err := r.Route(context.Background(), msg, session.New(nil, session.Options{}), false)
	require.NoError(t, err)
	require.Len(t, a.Dispatched(), 1)
	require.Len(t, b.Dispatched(), 1)
	assert.Same(t, msg, a.Dispatched()[0].Message())
	assert.NotSame(t, msg, b.Dispatched()[0].Message())
	assert.Equal(t, msg.ID(), b.Dispatched()[0].Message().ID())
}

func TestRouterAsyncJoinsFailures(t *testing.T) {
	a, b := memory(t, "vm://a"), memory(t, "vm://b")
	a.FailWith(errors.New("a down"))
	r := NewEndpointRouter(a, b)

	_, err := r.Route(context.Background(), message.New("x"), session.New(nil, session.Options{}), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a down")
	assert.Len(t, b.Dispatched(), 1)
}

func TestRouterWithoutSendableEndpoint(t *testing.T) {
	r := NewEndpointRouter(memory(t, "vm://in?direction=in"))
	assert.False(t, r.HasEndpoints())

	for _, sync := range []bool{true, false} {
		_, err := r.Route(context.Background(), message.New("x"), session.New(nil, session.Options{}), sync)
		var re *message.RoutingError
		require.ErrorAs(t, err, &re)
		assert.ErrorIs(t, err, flowerrors.ErrNoOutboundRoute)
	}
}

func TestRouterArguments(t *testing.T) {
	r := NewEndpointRouter(memory(t, "vm://a"))
	_, err := r.Route(context.Background(), nil, session.New(nil, session.Options{}), true)
	assert.ErrorIs(t, err, flowerrors.ErrMessageRequired)
	var sess event.Session
	_, err = r.Route(context.Background(), message.New("x"), sess, true)
	assert.ErrorIs(t, err, flowerrors.ErrSessionRequired)
}
