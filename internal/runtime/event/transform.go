package event

import (
	"bytes"
	"context"
	"encoding"
	"encoding/gob"
	"fmt"
	"strings"
	"sync/atomic"

	"golang.org/x/text/encoding/htmlindex"
	"google.golang.org/protobuf/proto"

	"github.com/drblury/flowcore/internal/runtime/errors"
)

// DefaultEncoding is used when neither the message nor the endpoint names one.
const DefaultEncoding = "UTF-8"

var defaultEncoding atomic.Value

func init() {
	defaultEncoding.Store(DefaultEncoding)
}

// SetDefaultEncoding changes the process-wide fallback encoding. An empty
// name restores UTF-8.
func SetDefaultEncoding(name string) {
	if strings.TrimSpace(name) == "" {
		name = DefaultEncoding
	}
	defaultEncoding.Store(name)
}

// GlobalEncoding returns the process-wide fallback encoding.
func GlobalEncoding() string {
	return defaultEncoding.Load().(string)
}

// Encoding resolves the character encoding: the message's own, then the
// endpoint's, then the process default. It is never empty.
func (e *Event) Encoding() string {
	if enc := e.msg.Encoding(); enc != "" {
		return enc
	}
	if e.endpoint != nil {
		if enc := e.endpoint.Encoding(); enc != "" {
			return enc
		}
	}
	return GlobalEncoding()
}

// TransformedMessage returns the payload as the endpoint's transformer
// produces it. Streaming endpoints get the raw payload. The transformer runs
// at most once per event; failures are not cached.
func (e *Event) TransformedMessage(ctx context.Context) (any, error) {
	if e.endpoint != nil && e.endpoint.IsStreaming() {
		return e.msg.Payload(), nil
	}
	c := e.transformed
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return c.value, nil
	}
	value := e.msg.Payload()
	if e.endpoint != nil {
		if t := e.endpoint.Transformer(); t != nil {
			out, err := t.Transform(ctx, value)
			if err != nil {
				return nil, err
			}
			value = out
		}
	}
	c.value, c.done = value, true
	return value, nil
}

// TransformedMessageAsBytes returns the transformed payload as bytes. Byte
// slices pass through. Strings are encoded with the resolved encoding.
// Protobuf messages and encoding.BinaryMarshaler values use their binary
// form; anything else is gob-encoded.
func (e *Event) TransformedMessageAsBytes(ctx context.Context) ([]byte, error) {
	v, err := e.TransformedMessage(ctx)
	if err != nil {
		return nil, err
	}
	switch val := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return val, nil
	case string:
		return encodeString(val, e.Encoding())
	case proto.Message:
		data, err := proto.Marshal(val)
		if err != nil {
			return nil, conversionError(v, err)
		}
		return data, nil
	case encoding.BinaryMarshaler:
		data, err := val.MarshalBinary()
		if err != nil {
			return nil, conversionError(v, err)
		}
		return data, nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, conversionError(v, err)
	}
	return buf.Bytes(), nil
}

// TransformedMessageAsString decodes TransformedMessageAsBytes with the
// resolved encoding.
func (e *Event) TransformedMessageAsString(ctx context.Context) (string, error) {
	data, err := e.TransformedMessageAsBytes(ctx)
	if err != nil {
		return "", err
	}
	return decodeString(data, e.Encoding())
}

func encodeString(s, name string) ([]byte, error) {
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, &errors.ConversionError{From: "string", To: name, Err: err}
	}
	out, err := enc.NewEncoder().String(s)
	if err != nil {
		return nil, &errors.ConversionError{From: "string", To: name, Err: err}
	}
	return []byte(out), nil
}

func decodeString(data []byte, name string) (string, error) {
	enc, err := htmlindex.Get(name)
	if err != nil {
		return "", &errors.ConversionError{From: name, To: "string", Err: err}
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", &errors.ConversionError{From: name, To: "string", Err: err}
	}
	return string(out), nil
}

func conversionError(v any, err error) error {
	return &errors.ConversionError{From: fmt.Sprintf("%T", v), To: "bytes", Err: err}
}
