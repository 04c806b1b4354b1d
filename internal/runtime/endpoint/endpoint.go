// Package endpoint provides event.Endpoint implementations: one backed by a
// watermill publisher/subscriber pair and an in-memory one for tests and
// local wiring.
package endpoint

import (
	"maps"
	"sync/atomic"
	"time"

	"github.com/drblury/flowcore/internal/runtime/event"
	"github.com/drblury/flowcore/internal/runtime/uri"
)

// Config describes an endpoint independently of its transport.
type Config struct {
	// URI is the parsed endpoint address. Required.
	URI *uri.URI
	// Name overrides the default name, the URI address.
	Name string
	// Transformer converts outbound payloads. Nil sends them unchanged.
	Transformer event.Transformer
	// DefaultRemoteSyncTimeout applies when the URI has no remoteSyncTimeout.
	DefaultRemoteSyncTimeout time.Duration
	// Properties are merged into outgoing messages that do not set them.
	Properties map[string]any
}

// Base implements the descriptive half of event.Endpoint from a Config.
type Base struct {
	uri         *uri.URI
	name        string
	transformer event.Transformer
	properties  map[string]any
	timeoutMs   atomic.Int64
	canSend     bool
	canReceive  bool
}

func newBase(cfg Config, canSend, canReceive bool) *Base {
	b := &Base{
		uri:         cfg.URI,
		name:        cfg.Name,
		transformer: cfg.Transformer,
		properties:  make(map[string]any, len(cfg.Properties)+len(cfg.URI.Params)),
		canSend:     canSend && cfg.URI.Direction.CanSend(),
		canReceive:  canReceive && cfg.URI.Direction.CanReceive(),
	}
	if b.name == "" {
		b.name = cfg.URI.Address
	}
	for k, v := range cfg.URI.Params {
		b.properties[k] = v
	}
	maps.Copy(b.properties, cfg.Properties)

	timeout := cfg.URI.RemoteSyncTimeout
	if timeout == 0 {
		timeout = cfg.DefaultRemoteSyncTimeout
	}
	b.timeoutMs.Store(timeout.Milliseconds())
	return b
}

func (b *Base) Name() string                   { return b.name }
func (b *Base) URI() *uri.URI                  { return b.uri }
func (b *Base) CanSend() bool                  { return b.canSend }
func (b *Base) CanReceive() bool               { return b.canReceive }
func (b *Base) IsRemoteSync() bool             { return b.uri.RemoteSync }
func (b *Base) IsStreaming() bool              { return b.uri.Streaming }
func (b *Base) Encoding() string               { return b.uri.Encoding }
func (b *Base) Transformer() event.Transformer { return b.transformer }

// RemoteSyncTimeout returns the reply timeout in milliseconds.
func (b *Base) RemoteSyncTimeout() int { return int(b.timeoutMs.Load()) }

// Properties returns a copy of the endpoint properties.
func (b *Base) Properties() map[string]any { return maps.Clone(b.properties) }

// Topic is the transport address messages are published to.
func (b *Base) Topic() string { return b.uri.Address }
