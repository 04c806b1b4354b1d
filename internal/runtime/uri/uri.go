// Package uri parses endpoint addresses of the form
// scheme://[user[:password]@]address[?params].
package uri

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Well-known query parameters. Every other parameter becomes an endpoint
// property.
const (
	ParamRemoteSync        = "remoteSync"
	ParamRemoteSyncTimeout = "remoteSyncTimeout"
	ParamEncoding          = "encoding"
	ParamStreaming         = "streaming"
	ParamDirection         = "direction"
	ParamTransport         = "transport"
)

// Direction is the set of operations an endpoint supports.
type Direction string

const (
	In    Direction = "in"
	Out   Direction = "out"
	InOut Direction = "inout"
)

// CanSend reports whether d permits outbound traffic.
func (d Direction) CanSend() bool { return d == Out || d == InOut }

// CanReceive reports whether d permits inbound traffic.
func (d Direction) CanReceive() bool { return d == In || d == InOut }

// Credentials is the user-info of an endpoint URI.
type Credentials struct {
	Username string
	Password string
}

// URI is a parsed endpoint address.
type URI struct {
	raw               string
	Scheme            string
	Address           string
	User              *Credentials
	RemoteSync        bool
	RemoteSyncTimeout time.Duration
	Encoding          string
	Streaming         bool
	Direction         Direction
	Transport         string
	Params            map[string]string
}

// Parse reads raw into a URI. Direction defaults to inout.
func Parse(raw string) (*URI, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("flowcore: invalid endpoint uri: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, fmt.Errorf("flowcore: endpoint uri %q has no scheme", raw)
	}
	address := parsed.Host + parsed.Path
	if parsed.Opaque != "" {
		address = parsed.Opaque
	}
	address = strings.TrimPrefix(address, "/")
	if address == "" {
		return nil, fmt.Errorf("flowcore: endpoint uri %q has no address", raw)
	}

	u := &URI{
		raw:       raw,
		Scheme:    strings.ToLower(parsed.Scheme),
		Address:   address,
		Direction: InOut,
		Params:    make(map[string]string),
	}
	if parsed.User != nil {
		pw, _ := parsed.User.Password()
		u.User = &Credentials{Username: parsed.User.Username(), Password: pw}
	}

	for key, values := range parsed.Query() {
		value := ""
		if len(values) > 0 {
			value = values[len(values)-1]
		}
		if err := u.apply(key, value); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// MustParse is Parse that panics; intended for static configuration.
func MustParse(raw string) *URI {
	u, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}

func (u *URI) apply(key, value string) error {
	switch key {
	case ParamRemoteSync:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("flowcore: invalid %s %q: %w", key, value, err)
		}
		u.RemoteSync = b
	case ParamRemoteSyncTimeout:
		ms, err := strconv.Atoi(value)
		if err != nil || ms < 0 {
			return fmt.Errorf("flowcore: invalid %s %q", key, value)
		}
		u.RemoteSyncTimeout = time.Duration(ms) * time.Millisecond
	case ParamEncoding:
		u.Encoding = value
	case ParamStreaming:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("flowcore: invalid %s %q: %w", key, value, err)
		}
		u.Streaming = b
	case ParamDirection:
		switch d := Direction(strings.ToLower(value)); d {
		case In, Out, InOut:
			u.Direction = d
		default:
			return fmt.Errorf("flowcore: invalid %s %q", key, value)
		}
	case ParamTransport:
		u.Transport = value
	default:
		u.Params[key] = value
	}
	return nil
}

// String returns the URI as given, with any password masked.
func (u *URI) String() string {
	if u.User == nil || u.User.Password == "" {
		return u.raw
	}
	parsed, err := url.Parse(u.raw)
	if err != nil {
		return u.raw
	}
	parsed.User = url.UserPassword(u.User.Username, "***")
	return parsed.String()
}

// Raw returns the URI exactly as it was parsed.
func (u *URI) Raw() string { return u.raw }
