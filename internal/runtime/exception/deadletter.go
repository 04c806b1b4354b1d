package exception

import (
	"fmt"

	"github.com/drblury/flowcore/internal/runtime/cloudevents"
	"github.com/drblury/flowcore/internal/runtime/errors"
	"github.com/drblury/flowcore/internal/runtime/jsoncodec"
	"github.com/drblury/flowcore/internal/runtime/message"
)

// UnknownComponent names the failing component when none is known.
const UnknownComponent = "Unknown"

// DeadLetter is what a failed message is rerouted as.
type DeadLetter struct {
	// Payload is the failed payload as a string, or the raw payload when it
	// does not convert.
	Payload        any    `json:"payload,omitempty"`
	Error          string `json:"error"`
	ErrorType      string `json:"errorType"`
	Component      string `json:"component"`
	OriginEndpoint string `json:"originEndpoint,omitempty"`

	err error
}

// NewDeadLetter describes the failure of msg, which may be nil.
func NewDeadLetter(msg *message.Message, err error, component, origin string) DeadLetter {
	if component == "" {
		component = UnknownComponent
	}
	dl := DeadLetter{Component: component, OriginEndpoint: origin, err: err}
	if err != nil {
		dl.Error = err.Error()
		dl.ErrorType = fmt.Sprintf("%T", err)
	}
	if msg != nil {
		if s, convErr := msg.PayloadAsString(); convErr == nil {
			dl.Payload = s
		} else {
			dl.Payload = msg.Payload()
		}
	}
	return dl
}

// Err returns the originating failure when the dead letter was built
// in-process.
func (d DeadLetter) Err() error { return d.err }

// CloudEvent wraps the dead letter in a flowcore.deadletter event.
func (d DeadLetter) CloudEvent(source string, failed *message.Message) cloudevents.Event {
	evt := cloudevents.New(cloudevents.TypeDeadLetter, source, d).WithSubject(d.Component)
	cloudevents.PrepareForDeadLetter(&evt, d.Component, d.OriginEndpoint, d.err)
	evt.Extensions[cloudevents.ExtErrorType] = d.ErrorType
	if failed != nil {
		if id := failed.CorrelationID(); id != "" {
			evt.Extensions[cloudevents.ExtCorrelationID] = id
		} else {
			evt.Extensions[cloudevents.ExtCorrelationID] = failed.ID()
		}
	}
	return evt
}

// DecodeDeadLetter reads a dead letter from the structured CloudEvent a
// dead-letter endpoint received.
func DecodeDeadLetter(data []byte) (DeadLetter, cloudevents.Event, error) {
	var evt cloudevents.Event
	if err := jsoncodec.Unmarshal(data, &evt); err != nil {
		return DeadLetter{}, evt, &errors.ConversionError{From: "bytes", To: "dead letter", Err: err}
	}
	if !cloudevents.IsDeadLetter(evt) {
		return DeadLetter{}, evt, &errors.ConversionError{From: evt.Type, To: "dead letter"}
	}
	raw, err := jsoncodec.Marshal(evt.Data)
	if err != nil {
		return DeadLetter{}, evt, &errors.ConversionError{From: "cloudevent data", To: "dead letter", Err: err}
	}
	var dl DeadLetter
	if err := jsoncodec.Unmarshal(raw, &dl); err != nil {
		return DeadLetter{}, evt, &errors.ConversionError{From: "cloudevent data", To: "dead letter", Err: err}
	}
	return dl, evt, nil
}
