package runtime

import (
	"context"
	"time"

	messagepkg "github.com/drblury/flowcore/internal/runtime/message"
	"github.com/drblury/flowcore/internal/runtime/session"
)

// NewSession starts a session with no component, for callers outside any
// component that inject messages into the bus.
func (s *Service) NewSession() *session.Session {
	return session.New(nil, session.Options{Logger: s.Logger})
}

// Dispatch publishes payload to the endpoint at rawURI without waiting for
// a reply. Payload may be a proto.Message, []byte, string or any value the
// JSON codec accepts.
func (s *Service) Dispatch(ctx context.Context, rawURI string, payload any, props map[string]any) error {
	ep, err := s.Endpoint(ctx, rawURI)
	if err != nil {
		return err
	}
	return s.NewSession().DispatchTo(ctx, messagepkg.NewWithProperties(payload, props), ep)
}

// Send publishes payload to the endpoint at rawURI. On a remote-sync
// endpoint it returns the reply; otherwise the reply is nil.
func (s *Service) Send(ctx context.Context, rawURI string, payload any, props map[string]any) (*messagepkg.Message, error) {
	ep, err := s.Endpoint(ctx, rawURI)
	if err != nil {
		return nil, err
	}
	return s.NewSession().SendTo(ctx, messagepkg.NewWithProperties(payload, props), ep)
}

// Receive waits up to timeout for one message on the endpoint at rawURI.
func (s *Service) Receive(ctx context.Context, rawURI string, timeout time.Duration) (*messagepkg.Message, error) {
	ep, err := s.Endpoint(ctx, rawURI)
	if err != nil {
		return nil, err
	}
	return s.NewSession().Receive(ctx, ep, timeout)
}
