// Package cloudevents provides the CloudEvents v1.0 envelope the bus uses for
// the records it produces itself: dead-letter envelopes and notifications.
package cloudevents

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/flowcore/internal/runtime/ids"
	"github.com/drblury/flowcore/internal/runtime/jsoncodec"
)

// SpecVersion is the CloudEvents specification version implemented.
const SpecVersion = "1.0"

// ContentType is the structured-mode content type.
const ContentType = "application/cloudevents+json"

// Metadata keys set on watermill messages carrying an event.
const (
	MetadataType        = "ce_type"
	MetadataSource      = "ce_source"
	MetadataContentType = "content-type"
)

// Event represents a CloudEvents v1.0 event with flowcore extensions.
type Event struct {
	SpecVersion     string         `json:"specversion"`
	Type            string         `json:"type"`
	Source          string         `json:"source"`
	ID              string         `json:"id"`
	Time            time.Time      `json:"time,omitempty"`
	DataContentType string         `json:"datacontenttype,omitempty"`
	Subject         string         `json:"subject,omitempty"`
	Data            any            `json:"data,omitempty"`
	Extensions      map[string]any `json:"-"`
}

// New creates an event with a ULID id and the current time.
func New(eventType, source string, data any) Event {
	return Event{
		SpecVersion:     SpecVersion,
		Type:            eventType,
		Source:          source,
		ID:              ids.CreateULID(),
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            data,
		Extensions:      make(map[string]any),
	}
}

// WithSubject sets the subject and returns the event.
func (e Event) WithSubject(subject string) Event {
	e.Subject = subject
	return e
}

// WithExtension sets an extension attribute and returns the event.
func (e Event) WithExtension(key string, value any) Event {
	e.Extensions = cloneExtensions(e.Extensions, 1)
	e.Extensions[key] = value
	return e
}

// ExtensionString returns an extension rendered as a string, or "".
func (e Event) ExtensionString(key string) string {
	v, ok := e.Extensions[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Validate checks the required attributes.
func (e Event) Validate() error {
	switch {
	case e.SpecVersion != SpecVersion:
		return fmt.Errorf("specversion must be %q, got %q", SpecVersion, e.SpecVersion)
	case e.Type == "":
		return fmt.Errorf("type is required")
	case e.Source == "":
		return fmt.Errorf("source is required")
	case e.ID == "":
		return fmt.Errorf("id is required")
	}
	return nil
}

// MarshalJSON writes the structured format, extensions flattened to the top level.
func (e Event) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, 8+len(e.Extensions))
	for k, v := range e.Extensions {
		m[k] = v
	}
	m["specversion"] = e.SpecVersion
	m["type"] = e.Type
	m["source"] = e.Source
	m["id"] = e.ID
	if !e.Time.IsZero() {
		m["time"] = e.Time.Format(time.RFC3339Nano)
	}
	if e.DataContentType != "" {
		m["datacontenttype"] = e.DataContentType
	}
	if e.Subject != "" {
		m["subject"] = e.Subject
	}
	if e.Data != nil {
		m["data"] = e.Data
	}
	return jsoncodec.Marshal(m)
}

var knownAttributes = map[string]struct{}{
	"specversion": {}, "type": {}, "source": {}, "id": {}, "time": {},
	"datacontenttype": {}, "subject": {}, "data": {},
}

// UnmarshalJSON reads the structured format; unknown attributes become extensions.
func (e *Event) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := jsoncodec.Unmarshal(data, &m); err != nil {
		return err
	}
	str := func(key string) (string, error) {
		v, ok := m[key]
		if !ok || v == nil {
			return "", nil
		}
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("invalid %s: expected string, got %T", key, v)
		}
		return s, nil
	}

	var err error
	if e.SpecVersion, err = str("specversion"); err != nil {
		return err
	}
	if e.Type, err = str("type"); err != nil {
		return err
	}
	if e.Source, err = str("source"); err != nil {
		return err
	}
	if e.ID, err = str("id"); err != nil {
		return err
	}
	if e.DataContentType, err = str("datacontenttype"); err != nil {
		return err
	}
	if e.Subject, err = str("subject"); err != nil {
		return err
	}
	ts, err := str("time")
	if err != nil {
		return err
	}
	if ts != "" {
		if e.Time, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return fmt.Errorf("invalid time: %w", err)
		}
	}
	e.Data = m["data"]

	e.Extensions = make(map[string]any)
	for k, v := range m {
		if _, known := knownAttributes[k]; !known {
			e.Extensions[k] = v
		}
	}
	return nil
}

// ToWatermill encodes the event in structured mode as a watermill message.
func ToWatermill(evt Event) (*message.Message, error) {
	if err := evt.Validate(); err != nil {
		return nil, err
	}
	payload, err := jsoncodec.Marshal(evt)
	if err != nil {
		return nil, err
	}
	msg := message.NewMessage(evt.ID, payload)
	msg.Metadata.Set(MetadataContentType, ContentType)
	msg.Metadata.Set(MetadataType, evt.Type)
	msg.Metadata.Set(MetadataSource, evt.Source)
	return msg, nil
}

// FromWatermill decodes a structured-mode watermill message.
func FromWatermill(msg *message.Message) (Event, error) {
	var evt Event
	if err := jsoncodec.Unmarshal(msg.Payload, &evt); err != nil {
		return Event{}, err
	}
	return evt, evt.Validate()
}

func cloneExtensions(in map[string]any, extra int) map[string]any {
	out := make(map[string]any, len(in)+extra)
	for k, v := range in {
		out[k] = v
	}
	return out
}
