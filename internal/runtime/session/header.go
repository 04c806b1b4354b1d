package session

import (
	"encoding/base64"
	"slices"
	"strings"

	"github.com/drblury/flowcore/internal/runtime/errors"
	"github.com/drblury/flowcore/internal/runtime/metadata"
)

const headerIDKey = "ID"

var errMissingID = errors.ErrSessionInvalid

// EncodeHeader renders the session as ID=<id>;k=v;... with properties in
// key order, Base64-encoded.
func (s *Session) EncodeHeader() string {
	s.mu.RLock()
	props := make(map[string]string, len(s.properties))
	for k, v := range s.properties {
		props[k] = metadata.FormatValue(v)
	}
	s.mu.RUnlock()
	return EncodeHeader(s.id, props)
}

// EncodeHeader renders id and props in the session header format.
func EncodeHeader(id string, props map[string]string) string {
	var b strings.Builder
	b.WriteString(headerIDKey)
	b.WriteByte('=')
	b.WriteString(id)
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		b.WriteByte(';')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(props[k])
	}
	return base64.StdEncoding.EncodeToString([]byte(b.String()))
}

// DecodeHeader parses a header produced by EncodeHeader. Segments are split
// on ';' and each on its first '='. Keys and values are trimmed and empty
// segments are skipped. The first segment must be the ID; later segments are
// properties, even one keyed ID. A segment without '=' or a header that
// does not start with the ID is a *errors.HeaderParseError.
func DecodeHeader(header string) (string, map[string]string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header))
	if err != nil {
		return "", nil, &errors.HeaderParseError{Err: err}
	}
	var (
		id     string
		seenID bool
	)
	props := make(map[string]string)
	for _, segment := range strings.Split(string(raw), ";") {
		if strings.TrimSpace(segment) == "" {
			continue
		}
		key, value, ok := strings.Cut(segment, "=")
		if !ok {
			return "", nil, &errors.HeaderParseError{Segment: segment}
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if !seenID {
			if key != headerIDKey {
				return "", nil, &errors.HeaderParseError{Segment: segment, Err: errMissingID}
			}
			id, seenID = value, true
			continue
		}
		props[key] = value
	}
	if id == "" {
		return "", nil, &errors.HeaderParseError{Err: errMissingID}
	}
	return id, props, nil
}
