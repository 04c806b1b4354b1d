package transport

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
)

// Registry maps transport names to builders and capabilities, and endpoint
// URI schemes to transport names.
type Registry struct {
	mu           sync.RWMutex
	builders     map[string]Builder
	capabilities map[string]Capabilities
	aliases      map[string]string
}

// DefaultRegistry is the process-wide registry.
var DefaultRegistry = NewRegistry()

// DefaultAliases are the URI schemes understood without registration.
var DefaultAliases = map[string]string{
	"vm":        "channel",
	"gochannel": "channel",
	"amqp":      "rabbitmq",
	"amqps":     "rabbitmq",
	"sns":       "aws",
	"sqs":       "aws",
	"https":     "http",
}

// NewRegistry creates a registry holding DefaultAliases.
func NewRegistry() *Registry {
	r := &Registry{
		builders:     make(map[string]Builder),
		capabilities: make(map[string]Capabilities),
		aliases:      make(map[string]string, len(DefaultAliases)),
	}
	for scheme, name := range DefaultAliases {
		r.aliases[scheme] = name
	}
	return r
}

// Register adds a builder. The name is what PubSubSystem and endpoint URI
// schemes refer to (e.g. "kafka", "rabbitmq").
func (r *Registry) Register(name string, builder Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[name] = builder
}

// RegisterWithCapabilities adds a builder and its capabilities.
func (r *Registry) RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[name] = builder
	r.capabilities[name] = caps
}

// Alias makes scheme resolve to the transport called name.
func (r *Registry) Alias(scheme, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[strings.ToLower(scheme)] = name
}

// Resolve returns the transport serving an endpoint URI. An explicit
// override (the URI's transport parameter) wins, then a registered name
// equal to the scheme, then an alias.
func (r *Registry) Resolve(scheme, override string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := []string{override, strings.ToLower(scheme), r.aliases[strings.ToLower(scheme)]}
	for _, name := range candidates {
		if name == "" {
			continue
		}
		if _, ok := r.builders[name]; ok {
			return name, nil
		}
		if name == override {
			return "", fmt.Errorf("unknown transport: %q (registered: %v)", name, r.namesLocked())
		}
	}
	return "", fmt.Errorf("no transport for scheme %q (registered: %v)", scheme, r.namesLocked())
}

// GetCapabilities returns the capabilities of a transport, or a zero value
// carrying only the name.
func (r *Registry) GetCapabilities(name string) Capabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if caps, ok := r.capabilities[name]; ok {
		return caps
	}
	return Capabilities{Name: name}
}

// Build creates the transport named by cfg.GetPubSubSystem.
func (r *Registry) Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	if cfg == nil {
		return Transport{}, fmt.Errorf("config is required")
	}
	return r.BuildNamed(ctx, cfg.GetPubSubSystem(), cfg, logger)
}

// BuildNamed creates the transport called name.
func (r *Registry) BuildNamed(ctx context.Context, name string, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	if cfg == nil {
		return Transport{}, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	r.mu.RLock()
	builder, ok := r.builders[name]
	r.mu.RUnlock()
	if !ok {
		return Transport{}, fmt.Errorf("unknown transport: %q (registered: %v)", name, r.Names())
	}
	return builder(ctx, cfg, logger)
}

// Names returns the registered transport names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.builders[name]
	return ok
}

// Register adds a builder to the default registry.
func Register(name string, builder Builder) {
	DefaultRegistry.Register(name, builder)
}

// RegisterWithCapabilities adds a builder and its capabilities to the default registry.
func RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	DefaultRegistry.RegisterWithCapabilities(name, builder, caps)
}

// Build creates a transport using the default registry.
func Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	return DefaultRegistry.Build(ctx, cfg, logger)
}

// GetCapabilities returns capabilities from the default registry.
func GetCapabilities(name string) Capabilities {
	return DefaultRegistry.GetCapabilities(name)
}
