// Package jsoncodec is the JSON codec used for payload conversion and for the
// envelopes the bus publishes. Protobuf messages go through protojson; every
// other value goes through sonic.
package jsoncodec

import (
	"io"

	"github.com/bytedance/sonic"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

var defaultConfig = sonic.ConfigStd

var protoMarshal = protojson.MarshalOptions{UseProtoNames: true}

var protoUnmarshal = protojson.UnmarshalOptions{DiscardUnknown: true}

func Marshal(v any) ([]byte, error) {
	if pm, ok := v.(proto.Message); ok {
		return protoMarshal.Marshal(pm)
	}
	return defaultConfig.Marshal(v)
}

// MarshalToString is Marshal returning a string.
func MarshalToString(v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return defaultConfig.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	if pm, ok := v.(proto.Message); ok {
		return protoUnmarshal.Unmarshal(data, pm)
	}
	return defaultConfig.Unmarshal(data, v)
}

// Valid reports whether data is a syntactically valid JSON document.
func Valid(data []byte) bool {
	return defaultConfig.Valid(data)
}

func Encode(w io.Writer, v any) error {
	enc := defaultConfig.NewEncoder(w)
	return enc.Encode(v)
}

func Decode(r io.Reader, v any) error {
	dec := defaultConfig.NewDecoder(r)
	return dec.Decode(v)
}
