package message

import (
	wmmessage "github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/flowcore/internal/runtime/metadata"
)

// ToWatermill converts the message for publishing. Properties become string
// metadata; attachments and the exception payload stay behind.
func (m *Message) ToWatermill() (*wmmessage.Message, error) {
	payload, err := m.PayloadAsBytes()
	if err != nil {
		return nil, err
	}
	wm := wmmessage.NewMessage(m.id, payload)
	wm.Metadata = metadata.FromProperties(m.properties).Watermill()
	if m.encoding != "" {
		wm.Metadata.Set(metadata.KeyEncoding, m.encoding)
	}
	return wm, nil
}

// FromWatermill builds an unbound message from a received watermill message.
// The payload is the raw byte slice.
func FromWatermill(wm *wmmessage.Message) *Message {
	props := metadata.FromWatermill(wm.Metadata).Properties()
	encoding, _ := props[metadata.KeyEncoding].(string)
	delete(props, metadata.KeyEncoding)

	m := NewWithProperties([]byte(wm.Payload), props)
	if wm.UUID != "" {
		m.id = wm.UUID
	}
	m.encoding = encoding
	return m
}
