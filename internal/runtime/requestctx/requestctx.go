// Package requestctx keeps the event currently being processed by a worker.
//
// A scope is opened with Enter at the start of a unit of work and released
// when it ends. The slot belongs to the worker that opened it: it is not
// locked and must not be shared with other goroutines. Hand another worker
// a context from its own Enter instead.
package requestctx

import (
	"context"

	"github.com/drblury/flowcore/internal/runtime/errors"
	"github.com/drblury/flowcore/internal/runtime/event"
	"github.com/drblury/flowcore/internal/runtime/message"
	"github.com/drblury/flowcore/internal/runtime/metadata"
)

type slot struct {
	ev *event.Event
}

type slotKey struct{}

// Enter opens a new scope. The returned release func empties it and must be
// called on every exit path, typically with defer.
func Enter(ctx context.Context) (context.Context, func()) {
	s := &slot{}
	return context.WithValue(ctx, slotKey{}, s), func() { s.ev = nil }
}

// Scoped opens a scope with ev installed as is.
func Scoped(ctx context.Context, ev *event.Event) (context.Context, func()) {
	ctx, release := Enter(ctx)
	_, _ = UnsafeSetEvent(ctx, ev)
	return ctx, release
}

func slotFrom(ctx context.Context) *slot {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(slotKey{}).(*slot)
	return s
}

// Event returns the active event, or nil.
func Event(ctx context.Context) *event.Event {
	if s := slotFrom(ctx); s != nil {
		return s.ev
	}
	return nil
}

// Session returns the session of the active event, or nil.
func Session(ctx context.Context) event.Session {
	if ev := Event(ctx); ev != nil {
		return ev.Session()
	}
	return nil
}

// SetEvent installs an unbound copy of ev, safe even if other workers still
// observe ev. Copying is a read of ev: when ev is bound to another worker it
// is sealed. It returns the installed copy.
func SetEvent(ctx context.Context, ev *event.Event) (*event.Event, error) {
	if ev == nil {
		return UnsafeSetEvent(ctx, nil)
	}
	if err := ev.AssertAccess(ctx, false); err != nil {
		return nil, err
	}
	if err := ev.Message().AssertAccess(ctx, false); err != nil {
		return nil, err
	}
	return UnsafeSetEvent(ctx, ev.NewThreadCopy())
}

// UnsafeSetEvent installs ev without copying. Only valid when no other worker
// can observe ev.
func UnsafeSetEvent(ctx context.Context, ev *event.Event) (*event.Event, error) {
	s := slotFrom(ctx)
	if s == nil {
		return nil, errors.ErrNoRequestScope
	}
	s.ev = ev
	return ev, nil
}

// RewriteEvent replaces the active event's message with an unbound copy of
// msg. Reserved properties of the old message carry over when msg does not
// set them. Without an active event it does nothing and returns nil.
func RewriteEvent(ctx context.Context, msg *message.Message) (*event.Event, error) {
	return rewrite(ctx, msg, true)
}

// UnsafeRewriteEvent is RewriteEvent without copying msg.
func UnsafeRewriteEvent(ctx context.Context, msg *message.Message) (*event.Event, error) {
	return rewrite(ctx, msg, false)
}

func rewrite(ctx context.Context, msg *message.Message, safe bool) (*event.Event, error) {
	if msg == nil {
		return nil, nil
	}
	s := slotFrom(ctx)
	if s == nil || s.ev == nil {
		return nil, nil
	}
	if safe {
		msg = msg.NewThreadCopy()
	}
	old := s.ev.Message()
	for _, name := range old.PropertyNames() {
		if !metadata.IsReserved(name) {
			continue
		}
		if _, ok := msg.Property(name); ok {
			continue
		}
		v, _ := old.Property(name)
		if err := msg.SetProperty(ctx, name, v); err != nil {
			return nil, err
		}
	}
	if safe {
		msg.ResetAccessControl()
	}
	ev, err := event.Rewrite(msg, s.ev)
	if err != nil {
		return nil, err
	}
	s.ev = ev
	return ev, nil
}

// SetExceptionPayload attaches ep to the active event's message. It does
// nothing without an active event.
func SetExceptionPayload(ctx context.Context, ep *message.ExceptionPayload) error {
	ev := Event(ctx)
	if ev == nil {
		return nil
	}
	return ev.Message().SetExceptionPayload(ctx, ep)
}

// Clear empties the active slot.
func Clear(ctx context.Context) {
	if s := slotFrom(ctx); s != nil {
		s.ev = nil
	}
}
