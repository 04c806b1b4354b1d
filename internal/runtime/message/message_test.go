package message

import (
	"context"
	"errors"
	"fmt"
	"testing"

	wmmessage "github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	flowerrors "github.com/drblury/flowcore/internal/runtime/errors"
	"github.com/drblury/flowcore/internal/runtime/metadata"
	"github.com/drblury/flowcore/internal/runtime/ownership"
)

func ownerCtx(name string) context.Context {
	return ownership.WithOwner(context.Background(), ownership.NewOwner(name))
}

func TestPropertiesAndAttachments(t *testing.T) {
	ctx := ownerCtx("w1")
	m := New("payload")

	require.NoError(t, m.SetProperty(ctx, "b", 1))
	require.NoError(t, m.AddProperties(ctx, map[string]any{"a": "x", "flag": "true", "skip": nil}))
	require.NoError(t, m.AddAttachment(ctx, "doc", Attachment{ContentType: "text/plain", Data: []byte("hi")}))

	assert.Equal(t, []string{"a", "b", "flag"}, m.PropertyNames())
	assert.Equal(t, "x", m.StringProperty("a", ""))
	assert.Equal(t, "1", m.StringProperty("b", ""))
	assert.Equal(t, 1, m.IntProperty("b", 0))
	assert.Equal(t, 7, m.IntProperty("a", 7))
	assert.True(t, m.BoolProperty("flag", false))
	assert.Equal(t, "def", m.StringProperty("missing", "def"))

	old, err := m.RemoveProperty(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "x", old)
	require.NoError(t, m.SetProperty(ctx, "b", nil))
	assert.Equal(t, []string{"flag"}, m.PropertyNames())

	a, ok := m.Attachment("doc")
	require.True(t, ok)
	assert.Equal(t, "text/plain", a.ContentType)
	assert.Equal(t, []string{"doc"}, m.AttachmentNames())
	require.NoError(t, m.RemoveAttachment(ctx, "doc"))
	assert.Empty(t, m.AttachmentNames())
}

func TestMutationFromForeignOwnerFails(t *testing.T) {
	m := New("payload")
	require.NoError(t, m.SetPayload(ownerCtx("w1"), "changed"))

	err := m.SetProperty(ownerCtx("w2"), "k", "v")
	var violation *flowerrors.AccessViolationError
	require.ErrorAs(t, err, &violation)

	m.ResetAccessControl()
	assert.Equal(t, ownership.Unbound, m.OwnershipState())
	require.NoError(t, m.SetProperty(ownerCtx("w2"), "k", "v"))
}

func TestForeignObservationSealsMessage(t *testing.T) {
	w1, w2 := ownerCtx("w1"), ownerCtx("w2")
	m := New("payload")
	require.NoError(t, m.SetProperty(w1, "k", "v1"))

	require.NoError(t, m.AssertAccess(w2, false))
	assert.Equal(t, ownership.Sealed, m.OwnershipState())

	err := m.SetProperty(w1, "k", "v2")
	var violation *flowerrors.AccessViolationError
	require.ErrorAs(t, err, &violation)
	assert.True(t, violation.Sealed)
	assert.Equal(t, "v1", m.StringProperty("k", ""))
}

func TestNewThreadCopyIsIndependentAndUnbound(t *testing.T) {
	ctx := ownerCtx("w1")
	m := New("payload")
	require.NoError(t, m.SetProperty(ctx, "k", "v"))
	require.NoError(t, m.AddAttachment(ctx, "a", Attachment{Data: []byte("abc")}))

	cp := m.NewThreadCopy()
	assert.Equal(t, m.ID(), cp.ID())
	assert.Equal(t, ownership.Unbound, cp.OwnershipState())

	other := ownerCtx("w2")
	require.NoError(t, cp.SetProperty(other, "k", "changed"))
	assert.Equal(t, "v", m.StringProperty("k", ""))

	att, _ := cp.Attachment("a")
	att.Data[0] = 'X'
	orig, _ := m.Attachment("a")
	assert.Equal(t, byte('a'), orig.Data[0])
}

func TestNewCorrelated(t *testing.T) {
	ctx := ownerCtx("w1")
	prev := New("in")
	require.NoError(t, prev.SetProperty(ctx, "tenant", "acme"))
	require.NoError(t, prev.SetEncoding(ctx, "ISO-8859-1"))

	next := NewCorrelated(42, prev)
	assert.Equal(t, 42, next.Payload())
	assert.Equal(t, "acme", next.StringProperty("tenant", ""))
	assert.Equal(t, prev.ID(), next.CorrelationID())
	assert.Equal(t, "ISO-8859-1", next.Encoding())
	assert.NotEqual(t, prev.ID(), next.ID())

	require.NoError(t, prev.SetCorrelationID(ctx, "corr-1"))
	assert.Equal(t, "corr-1", NewCorrelated("x", prev).CorrelationID())
	assert.NotNil(t, NewCorrelated("x", nil))
}

type stringer struct{}

func (stringer) String() string { return "stringer" }

func TestPayloadConversion(t *testing.T) {
	tests := []struct {
		name      string
		payload   any
		wantStr   string
		wantBytes []byte
	}{
		{"nil", nil, "", nil},
		{"string", "hello", "hello", []byte("hello")},
		{"bytes", []byte("raw"), "raw", []byte("raw")},
		{"stringer", stringer{}, "stringer", []byte("stringer")},
		{"struct", struct {
			A int `json:"a"`
		}{A: 1}, `{"a":1}`, []byte(`{"a":1}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.payload)
			s, err := m.PayloadAsString()
			require.NoError(t, err)
			assert.Equal(t, tt.wantStr, s)
			b, err := m.PayloadAsBytes()
			require.NoError(t, err)
			assert.Equal(t, tt.wantBytes, b)
		})
	}
}

func TestPayloadConversionProto(t *testing.T) {
	pb := wrapperspb.String("hi")
	m := New(pb)

	s, err := m.PayloadAsString()
	require.NoError(t, err)
	assert.Equal(t, `"hi"`, s)

	b, err := m.PayloadAsBytes()
	require.NoError(t, err)
	want, _ := proto.Marshal(pb)
	assert.Equal(t, want, b)
}

func TestPayloadConversionFailure(t *testing.T) {
	m := New(make(chan int))
	_, err := m.PayloadAsString()
	var conv *flowerrors.ConversionError
	require.ErrorAs(t, err, &conv)
	assert.Equal(t, "chan int", conv.From)
	assert.Equal(t, "string", conv.To)

	_, err = m.PayloadAsBytes()
	require.ErrorAs(t, err, &conv)
}

type codedError struct{}

func (codedError) Error() string { return "coded" }
func (codedError) Code() int     { return 409 }

func TestExceptionPayload(t *testing.T) {
	err := fmt.Errorf("wrap: %w", codedError{})
	ep := NewExceptionPayload(err)
	assert.Equal(t, 409, ep.Code)
	assert.Equal(t, "wrap: coded", ep.Message)
	assert.Equal(t, "*fmt.wrapError", ep.Info["type"])

	withInfo := ep.WithInfo("component", "orders")
	assert.Equal(t, "orders", withInfo.Info["component"])
	_, leaked := ep.Info["component"]
	assert.False(t, leaked)

	m := New("p")
	require.NoError(t, m.SetExceptionPayload(ownerCtx("w"), ep))
	assert.Same(t, ep, m.ExceptionPayload())
}

func TestFailureTypesCarryMessage(t *testing.T) {
	m := New("p")
	root := errors.New("root")

	me := NewMessagingError(m, "orders", root)
	assert.Contains(t, me.Error(), `"orders"`)
	assert.ErrorIs(t, me, root)

	re := NewRoutingError(m, "vm://out", me)
	assert.Contains(t, re.Error(), "vm://out")
	assert.ErrorIs(t, re, root)
	assert.Same(t, m, FailedMessage(re))
	assert.Nil(t, FailedMessage(root))
}

func TestWatermillConversion(t *testing.T) {
	ctx := ownerCtx("w")
	m := New(map[string]int{"qty": 2})
	require.NoError(t, m.SetProperty(ctx, "tenant", "acme"))
	require.NoError(t, m.SetProperty(ctx, "retries", 3))
	require.NoError(t, m.SetEncoding(ctx, "UTF-16"))
	require.NoError(t, m.AddAttachment(ctx, "a", Attachment{Data: []byte("x")}))

	wm, err := m.ToWatermill()
	require.NoError(t, err)
	assert.Equal(t, m.ID(), wm.UUID)
	assert.Equal(t, `{"qty":2}`, string(wm.Payload))
	assert.Equal(t, "acme", wm.Metadata.Get("tenant"))
	assert.Equal(t, "3", wm.Metadata.Get("retries"))
	assert.Equal(t, "UTF-16", wm.Metadata.Get(metadata.KeyEncoding))

	back := FromWatermill(wm)
	assert.Equal(t, m.ID(), back.ID())
	assert.Equal(t, "UTF-16", back.Encoding())
	assert.Equal(t, "acme", back.StringProperty("tenant", ""))
	assert.Equal(t, 3, back.IntProperty("retries", 0))
	_, hasEncodingProp := back.Property(metadata.KeyEncoding)
	assert.False(t, hasEncodingProp)
	assert.Empty(t, back.AttachmentNames())
}

func TestFromWatermillWithoutUUID(t *testing.T) {
	wm := wmmessage.NewMessage("", []byte("x"))
	m := FromWatermill(wm)
	assert.NotEmpty(t, m.ID())
}
