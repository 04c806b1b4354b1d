package message

import (
	"fmt"

	"google.golang.org/protobuf/proto"

	"github.com/drblury/flowcore/internal/runtime/errors"
	"github.com/drblury/flowcore/internal/runtime/jsoncodec"
)

// PayloadAsBytes converts the payload for transports that carry bytes.
// Protobuf messages use the binary wire format; structured values are
// JSON-encoded.
func (m *Message) PayloadAsBytes() ([]byte, error) {
	return ToBytes(m.payload)
}

// PayloadAsString converts the payload to text. Protobuf messages use
// protojson; structured values are JSON-encoded.
func (m *Message) PayloadAsString() (string, error) {
	return ToString(m.payload)
}

// ToBytes is the payload-to-bytes conversion used by PayloadAsBytes.
func ToBytes(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	case proto.Message:
		data, err := proto.Marshal(v)
		if err != nil {
			return nil, conversionError(payload, "bytes", err)
		}
		return data, nil
	case fmt.Stringer:
		return []byte(v.String()), nil
	}
	data, err := jsoncodec.Marshal(payload)
	if err != nil {
		return nil, conversionError(payload, "bytes", err)
	}
	return data, nil
}

// ToString is the payload-to-text conversion used by PayloadAsString.
func ToString(payload any) (string, error) {
	switch v := payload.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case proto.Message:
		s, err := jsoncodec.MarshalToString(v)
		if err != nil {
			return "", conversionError(payload, "string", err)
		}
		return s, nil
	case fmt.Stringer:
		return v.String(), nil
	case error:
		return v.Error(), nil
	}
	s, err := jsoncodec.MarshalToString(payload)
	if err != nil {
		return "", conversionError(payload, "string", err)
	}
	return s, nil
}

func conversionError(payload any, to string, err error) error {
	return &errors.ConversionError{From: fmt.Sprintf("%T", payload), To: to, Err: err}
}
