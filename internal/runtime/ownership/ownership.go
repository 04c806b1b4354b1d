// Package ownership implements the bind/seal discipline shared by messages and
// events. An object is freely mutable by the worker that first touched it and
// becomes read-only once another worker observes it.
//
// Go has no goroutine identity, so a worker is represented by an Owner token
// carried in the context. Code running without one acts as Background.
package ownership

import (
	"context"
	"sync/atomic"

	"github.com/drblury/flowcore/internal/runtime/ids"
)

// Owner identifies one worker.
type Owner struct {
	id   string
	name string
}

// NewOwner returns a fresh owner token.
func NewOwner(name string) *Owner {
	return &Owner{id: ids.WithPrefix("owner"), name: name}
}

// ID returns the unique owner id.
func (o *Owner) ID() string { return o.id }

// Name returns the human-readable owner name.
func (o *Owner) Name() string { return o.name }

func (o *Owner) String() string {
	if o == nil {
		return "<none>"
	}
	if o.name == "" {
		return o.id
	}
	return o.name + "(" + o.id + ")"
}

// Background is the owner of code running outside any worker.
var Background = &Owner{id: "background", name: "background"}

type ownerKey struct{}

// WithOwner returns a context carrying o.
func WithOwner(ctx context.Context, o *Owner) context.Context {
	return context.WithValue(ctx, ownerKey{}, o)
}

// FromContext returns the owner carried by ctx, or Background.
func FromContext(ctx context.Context) *Owner {
	if ctx == nil {
		return Background
	}
	if o, ok := ctx.Value(ownerKey{}).(*Owner); ok && o != nil {
		return o
	}
	return Background
}

var checksEnabled atomic.Bool

func init() {
	checksEnabled.Store(true)
}

// SetChecksEnabled turns access assertions on or off for the whole process.
func SetChecksEnabled(enabled bool) {
	checksEnabled.Store(enabled)
}

// ChecksEnabled reports whether access assertions are active.
func ChecksEnabled() bool {
	return checksEnabled.Load()
}
