// Package message holds the unit of work carried through the bus: a payload,
// a property bag, named attachments and an optional exception payload.
//
// Mutators take the caller's context so the ownership guard can tell which
// worker is writing. Plain readers never block and never fail; a worker
// handed a message by another one observes it through AssertAccess(ctx,
// false), which seals a message bound elsewhere. Sessions, request scopes
// and endpoints do this when a message crosses workers.
package message

import (
	"context"
	"maps"
	"slices"
	"strconv"

	"github.com/drblury/flowcore/internal/runtime/ids"
	"github.com/drblury/flowcore/internal/runtime/metadata"
	"github.com/drblury/flowcore/internal/runtime/ownership"
)

// Attachment is a named binary part travelling with a message.
type Attachment struct {
	ContentType string
	Data        []byte
}

// Message is the payload envelope. It is not safe for concurrent mutation;
// the ownership guard reports writes from a worker that does not own it.
type Message struct {
	guard       ownership.Guard
	id          string
	payload     any
	properties  map[string]any
	attachments map[string]Attachment
	encoding    string
	exception   *ExceptionPayload
}

// New returns an unbound message carrying payload.
func New(payload any) *Message {
	return &Message{
		id:          ids.CreateULID(),
		payload:     payload,
		properties:  make(map[string]any),
		attachments: make(map[string]Attachment),
	}
}

// NewWithProperties returns a message with a copy of props.
func NewWithProperties(payload any, props map[string]any) *Message {
	m := New(payload)
	maps.Copy(m.properties, props)
	return m
}

// NewCorrelated returns a message for payload that carries the properties and
// the correlation id of previous.
func NewCorrelated(payload any, previous *Message) *Message {
	if previous == nil {
		return New(payload)
	}
	m := NewWithProperties(payload, previous.properties)
	m.encoding = previous.encoding
	if m.CorrelationID() == "" {
		m.properties[metadata.KeyCorrelationID] = previous.id
	}
	return m
}

// ID returns the message id.
func (m *Message) ID() string { return m.id }

func (m *Message) label() string { return "message " + m.id }

// AssertAccess checks the caller carried by ctx against the ownership guard.
func (m *Message) AssertAccess(ctx context.Context, write bool) error {
	return m.guard.AssertAccess(m.label(), ownership.FromContext(ctx), write)
}

func (m *Message) assertWrite(ctx context.Context) error {
	return m.AssertAccess(ctx, true)
}

// ResetAccessControl unbinds the message so another worker may claim it.
func (m *Message) ResetAccessControl() {
	m.guard.Reset()
}

// OwnershipState reports the current guard state.
func (m *Message) OwnershipState() ownership.State {
	return m.guard.State()
}

// NewThreadCopy returns an unbound deep copy sharing the same id.
func (m *Message) NewThreadCopy() *Message {
	cp := &Message{
		id:          m.id,
		payload:     m.payload,
		properties:  maps.Clone(m.properties),
		attachments: make(map[string]Attachment, len(m.attachments)),
		encoding:    m.encoding,
		exception:   m.exception,
	}
	if cp.properties == nil {
		cp.properties = make(map[string]any)
	}
	for name, a := range m.attachments {
		cp.attachments[name] = Attachment{ContentType: a.ContentType, Data: slices.Clone(a.Data)}
	}
	return cp
}

// Payload returns the raw payload.
func (m *Message) Payload() any { return m.payload }

// SetPayload replaces the payload.
func (m *Message) SetPayload(ctx context.Context, payload any) error {
	if err := m.assertWrite(ctx); err != nil {
		return err
	}
	m.payload = payload
	return nil
}

// Property returns a property value.
func (m *Message) Property(key string) (any, bool) {
	v, ok := m.properties[key]
	return v, ok
}

// StringProperty returns a property rendered as a string, or def.
func (m *Message) StringProperty(key, def string) string {
	v, ok := m.properties[key]
	if !ok || v == nil {
		return def
	}
	return metadata.FormatValue(v)
}

// IntProperty returns a numeric property, or def when absent or not numeric.
func (m *Message) IntProperty(key string, def int) int {
	switch v := m.properties[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// BoolProperty returns a boolean property, or def when absent or not boolean.
func (m *Message) BoolProperty(key string, def bool) bool {
	switch v := m.properties[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// PropertyNames returns the property names in sorted order.
func (m *Message) PropertyNames() []string {
	return slices.Sorted(maps.Keys(m.properties))
}

// Properties returns a copy of the property bag.
func (m *Message) Properties() map[string]any {
	return maps.Clone(m.properties)
}

// SetProperty sets one property. A nil value removes it.
func (m *Message) SetProperty(ctx context.Context, key string, value any) error {
	if err := m.assertWrite(ctx); err != nil {
		return err
	}
	if value == nil {
		delete(m.properties, key)
		return nil
	}
	m.properties[key] = value
	return nil
}

// RemoveProperty deletes a property and returns its previous value.
func (m *Message) RemoveProperty(ctx context.Context, key string) (any, error) {
	if err := m.assertWrite(ctx); err != nil {
		return nil, err
	}
	old := m.properties[key]
	delete(m.properties, key)
	return old, nil
}

// AddProperties sets every entry of props, overwriting existing values.
func (m *Message) AddProperties(ctx context.Context, props map[string]any) error {
	if err := m.assertWrite(ctx); err != nil {
		return err
	}
	for k, v := range props {
		if v == nil {
			continue
		}
		m.properties[k] = v
	}
	return nil
}

// CorrelationID returns the correlation id property, or "".
func (m *Message) CorrelationID() string {
	return m.StringProperty(metadata.KeyCorrelationID, "")
}

// SetCorrelationID sets the correlation id property.
func (m *Message) SetCorrelationID(ctx context.Context, id string) error {
	return m.SetProperty(ctx, metadata.KeyCorrelationID, id)
}

// Encoding returns the message's own encoding, or "" when it has none.
func (m *Message) Encoding() string { return m.encoding }

// SetEncoding sets the character encoding of string payloads.
func (m *Message) SetEncoding(ctx context.Context, encoding string) error {
	if err := m.assertWrite(ctx); err != nil {
		return err
	}
	m.encoding = encoding
	return nil
}

// ExceptionPayload returns the attached failure, or nil.
func (m *Message) ExceptionPayload() *ExceptionPayload { return m.exception }

// SetExceptionPayload attaches a failure to the message.
func (m *Message) SetExceptionPayload(ctx context.Context, ep *ExceptionPayload) error {
	if err := m.assertWrite(ctx); err != nil {
		return err
	}
	m.exception = ep
	return nil
}

// Attachment returns a named attachment.
func (m *Message) Attachment(name string) (Attachment, bool) {
	a, ok := m.attachments[name]
	return a, ok
}

// AttachmentNames returns the attachment names in sorted order.
func (m *Message) AttachmentNames() []string {
	return slices.Sorted(maps.Keys(m.attachments))
}

// AddAttachment stores a named attachment, replacing any previous one.
func (m *Message) AddAttachment(ctx context.Context, name string, a Attachment) error {
	if err := m.assertWrite(ctx); err != nil {
		return err
	}
	m.attachments[name] = a
	return nil
}

// RemoveAttachment deletes a named attachment.
func (m *Message) RemoveAttachment(ctx context.Context, name string) error {
	if err := m.assertWrite(ctx); err != nil {
		return err
	}
	delete(m.attachments, name)
	return nil
}
