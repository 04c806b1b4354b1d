// Package metadata holds the string headers a message carries on the wire and
// the property names the bus reserves for itself.
package metadata

import (
	"fmt"
	"maps"
	"sort"
	"strconv"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
)

// ReservedPrefix marks properties owned by the bus. They survive an event
// rewrite when the new message does not set them.
const ReservedPrefix = "flowcore_"

// Well-known header keys.
const (
	KeySession    = ReservedPrefix + "session"
	KeyRemoteSync = ReservedPrefix + "remote_sync"
	KeyReplyTo    = ReservedPrefix + "reply_to"
	KeyMethod     = ReservedPrefix + "method"
	KeyEncoding   = ReservedPrefix + "encoding"
	KeyEventID    = ReservedPrefix + "event_id"
	KeyOrigin     = ReservedPrefix + "origin"
	KeyException  = ReservedPrefix + "exception"
	// KeyCorrelationID matches the key used by watermill's CorrelationID middleware.
	KeyCorrelationID = "correlation_id"
)

// AlwaysOverwrite lists the properties a derived event always takes from the
// previous event's message, whatever the new message says.
var AlwaysOverwrite = map[string]struct{}{
	KeyMethod: {},
}

// HopLocal lists the headers that describe a single hop. A derived event
// never inherits them from the previous message.
var HopLocal = map[string]struct{}{
	KeyRemoteSync: {},
	KeyReplyTo:    {},
	KeyEventID:    {},
	KeyException:  {},
}

// IsReserved reports whether key belongs to the bus.
func IsReserved(key string) bool {
	return strings.HasPrefix(key, ReservedPrefix)
}

// Metadata represents the headers carried alongside a message.
type Metadata map[string]string

func (m Metadata) cloneWithExtra(extra int) Metadata {
	size := len(m) + extra
	if size <= 0 {
		return Metadata{}
	}

	cloned := make(Metadata, size)
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// Clone returns a shallow copy of the metadata map.
func (m Metadata) Clone() Metadata {
	return m.cloneWithExtra(0)
}

// With returns a cloned metadata map containing the provided key/value pair.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.cloneWithExtra(1)
	cloned[key] = value
	return cloned
}

// Keys returns the header names in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// New constructs a Metadata map from alternating key/value pairs.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i < len(pairs)-1; i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}

// FromProperties renders a property bag as string headers. Nil values are
// skipped.
func FromProperties(props map[string]any) Metadata {
	md := make(Metadata, len(props))
	for k, v := range props {
		if v == nil {
			continue
		}
		md[k] = FormatValue(v)
	}
	return md
}

// Properties returns the headers as a property bag.
func (m Metadata) Properties() map[string]any {
	props := make(map[string]any, len(m))
	for k, v := range m {
		props[k] = v
	}
	return props
}

// FormatValue renders a property value the way it travels in a header.
func FormatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// FromWatermill copies the headers of a received watermill message.
func FromWatermill(md message.Metadata) Metadata {
	out := make(Metadata, len(md))
	maps.Copy(out, md)
	return out
}

// Watermill returns the headers as watermill metadata, ready to publish.
func (m Metadata) Watermill() message.Metadata {
	out := make(message.Metadata, len(m))
	maps.Copy(out, m)
	return out
}
