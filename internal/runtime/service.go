package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/drblury/flowcore/internal/runtime/component"
	configpkg "github.com/drblury/flowcore/internal/runtime/config"
	"github.com/drblury/flowcore/internal/runtime/endpoint"
	errspkg "github.com/drblury/flowcore/internal/runtime/errors"
	"github.com/drblury/flowcore/internal/runtime/event"
	loggingpkg "github.com/drblury/flowcore/internal/runtime/logging"
	"github.com/drblury/flowcore/internal/runtime/notification"
	"github.com/drblury/flowcore/internal/runtime/ownership"
	"github.com/drblury/flowcore/internal/runtime/stats"
	"github.com/drblury/flowcore/internal/runtime/uri"
	"github.com/drblury/flowcore/internal/runtime/workmanager"
	"github.com/drblury/flowcore/transport"
	"github.com/drblury/flowcore/transport/transports"
)

// NotificationSource is the CloudEvents source of published notifications.
const NotificationSource = "flowcore/service"

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

// ServiceDependencies holds the optional collaborators of a Service. Leave
// fields nil to use the defaults.
type ServiceDependencies struct {
	// Registry resolves endpoint schemes to transports. Nil uses a registry
	// holding every built-in transport.
	Registry                  *transport.Registry
	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.
	// Notifier receives notifications in addition to the logging manager
	// and, when NotificationTopic is set, the publishing one.
	Notifier notification.Manager
	// Registerer receives the Prometheus collectors. Nil uses the default.
	Registerer prometheus.Registerer
}

// Service wires endpoints, components and a watermill router that feeds
// inbound messages to components.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	wmLogger   watermill.LoggerAdapter
	registry   *transport.Registry
	router     *message.Router
	registerer prometheus.Registerer
	metrics    *stats.Metrics
	notifier   notification.Manager
	pool       *workmanager.Pool

	mu          sync.Mutex
	transports  map[string]transport.Transport
	endpoints   map[string]*endpoint.Watermill
	deadLetters []event.Endpoint
	components  []*component.Component
	handlers    []*HandlerInfo

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex
}

// HandlerInfo describes one inbound registration.
type HandlerInfo struct {
	Name      string `json:"name"`
	Endpoint  string `json:"endpoint"`
	Component string `json:"component"`
	Topic     string `json:"topic"`
}

// NewService validates conf and builds a Service. Register components and
// inbound endpoints on it before calling Start.
func NewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) (*Service, error) {
	if err := configpkg.ValidateConfig(conf); err != nil {
		return nil, errspkg.NewConfigValidationError(err)
	}
	log = loggingpkg.OrNop(log)
	wmLogger := loggingpkg.NewWatermillAdapter(log)
	log.Info("Creating flowcore service", loggingpkg.LogFields{
		"pubsub_system": conf.PubSubSystem,
		"config":        conf,
	})

	ownership.SetChecksEnabled(conf.OwnershipChecks)
	event.SetDefaultEncoding(conf.EffectiveEncoding())

	s := &Service{
		Conf:       conf,
		Logger:     log,
		wmLogger:   wmLogger,
		registry:   deps.Registry,
		registerer: deps.Registerer,
		transports: make(map[string]transport.Transport),
		endpoints:  make(map[string]*endpoint.Watermill),
	}
	if s.registry == nil {
		s.registry = transports.NewRegistry()
	}
	if s.registerer == nil {
		s.registerer = prometheus.DefaultRegisterer
	}

	s.metrics = stats.NewMetrics(s.registerer)
	if conf.MetricsEnabled {
		if err := s.metrics.Register(); err != nil {
			return nil, err
		}
	}
	s.pool = workmanager.New("flowcore", conf.WorkerPoolSize, conf.WorkerQueueSize, log)

	notifiers := notification.Multi{notification.LoggingManager{Logger: log}}
	if deps.Notifier != nil {
		notifiers = append(notifiers, deps.Notifier)
	}
	if conf.NotificationTopic != "" {
		tr, err := s.transport(ctx, s.defaultTransportName())
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, notification.NewPublisherManager(tr.Publisher, conf.NotificationTopic, NotificationSource, log))
	}
	s.notifier = notifiers

	for _, raw := range conf.DeadLetterEndpoints {
		ep, err := s.Endpoint(ctx, raw)
		if err != nil {
			return nil, err
		}
		if caps := s.capabilitiesOf(ep.URI()); !caps.SafeForDeadLetters() {
			log.Info("Dead-letter endpoint transport does not persist acknowledged messages", loggingpkg.LogFields{
				"endpoint":  ep.URI().String(),
				"transport": caps.Name,
			})
		}
		s.deadLetters = append(s.deadLetters, ep)
	}

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, err
	}
	s.router = router
	s.router.AddPlugin(plugin.SignalsHandler)

	if err := s.registerConfiguredMiddlewares(deps); err != nil {
		return nil, err
	}
	if conf.StatusPort > 0 {
		s.RegisterHTTPHandler(conf.StatusPort, StatusPath, s.StatusHandler())
	}
	return s, nil
}

func (s *Service) defaultTransportName() string {
	if s.Conf.PubSubSystem == "" {
		return "channel"
	}
	return s.Conf.PubSubSystem
}

// Metrics returns the component statistics.
func (s *Service) Metrics() *stats.Metrics { return s.metrics }

// Notifier returns the notification manager shared by every component.
func (s *Service) Notifier() notification.Manager { return s.notifier }

// Pool returns the worker pool running asynchronous events.
func (s *Service) Pool() *workmanager.Pool { return s.pool }

// DeadLetterEndpoints returns the endpoints named by DeadLetterEndpoints.
func (s *Service) DeadLetterEndpoints() []event.Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.Endpoint(nil), s.deadLetters...)
}

// Handlers returns the inbound registrations.
func (s *Service) Handlers() []*HandlerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*HandlerInfo(nil), s.handlers...)
}

// Endpoint returns the endpoint for rawURI, building its transport on first
// use. Endpoints and transports are shared by every caller asking for the
// same URI or transport.
func (s *Service) Endpoint(ctx context.Context, rawURI string) (*endpoint.Watermill, error) {
	u, err := uri.Parse(rawURI)
	if err != nil {
		return nil, &errspkg.ConfigurationError{Reason: "invalid endpoint uri", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ep, ok := s.endpoints[u.Raw()]; ok {
		return ep, nil
	}

	name, err := s.registry.Resolve(u.Scheme, u.Transport)
	if err != nil {
		return nil, &errspkg.ConfigurationError{Reason: "endpoint " + u.String(), Err: err}
	}
	tr, err := s.transportLocked(ctx, name)
	if err != nil {
		return nil, err
	}

	ep, err := endpoint.NewWatermill(endpoint.Config{
		URI:                      u,
		DefaultRemoteSyncTimeout: s.Conf.DefaultRemoteSyncTimeout,
	}, tr.Publisher, tr.Subscriber, s.Logger)
	if err != nil {
		return nil, err
	}
	s.endpoints[u.Raw()] = ep

	caps := s.registry.GetCapabilities(name)
	if ep.IsRemoteSync() && !caps.SupportsRequestReply {
		s.Logger.Info("Remote-sync endpoint on a transport without request/reply support", loggingpkg.LogFields{
			"endpoint":  u.String(),
			"transport": name,
		})
	}
	return ep, nil
}

func (s *Service) capabilitiesOf(u *uri.URI) transport.Capabilities {
	name, err := s.registry.Resolve(u.Scheme, u.Transport)
	if err != nil {
		return transport.Capabilities{}
	}
	return s.registry.GetCapabilities(name)
}

func (s *Service) transport(ctx context.Context, name string) (transport.Transport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transportLocked(ctx, name)
}

func (s *Service) transportLocked(ctx context.Context, name string) (transport.Transport, error) {
	if tr, ok := s.transports[name]; ok {
		return tr, nil
	}
	tr, err := s.registry.BuildNamed(ctx, name, s.Conf, s.wmLogger)
	if err != nil {
		return transport.Transport{}, &errspkg.ConfigurationError{Reason: "transport " + name, Err: err}
	}
	s.transports[name] = tr
	s.Logger.Info("Transport ready", loggingpkg.LogFields{"transport": name})
	return tr, nil
}

// Start starts the pool and every component, then runs the router until ctx
// is cancelled. Before Start returns the pool drains, components are
// disposed and transports are closed.
func (s *Service) Start(ctx context.Context) error {
	if err := s.pool.Start(ctx); err != nil {
		return err
	}
	defer s.shutdown()

	for _, c := range s.registeredComponents() {
		if err := c.Start(ctx); err != nil {
			return err
		}
	}

	s.startHTTPServers()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancel()
		return routerRun(s.router, gctx)
	})
	g.Go(func() error {
		select {
		case <-s.router.Running():
		case <-gctx.Done():
			return nil
		}
		return s.serveTransports(gctx)
	})
	return g.Wait()
}

// Running is closed once the router consumes messages.
func (s *Service) Running() chan struct{} { return s.router.Running() }

func (s *Service) serveTransports(ctx context.Context) error {
	s.mu.Lock()
	var serves []func(context.Context) error
	for _, tr := range s.transports {
		if tr.Serve != nil {
			serves = append(serves, tr.Serve)
		}
	}
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, serve := range serves {
		g.Go(func() error { return serve(gctx) })
	}
	return g.Wait()
}

func (s *Service) registeredComponents() []*component.Component {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*component.Component(nil), s.components...)
}

func (s *Service) shutdown() {
	ctx := context.Background()
	if err := s.pool.Stop(); err != nil {
		s.Logger.Error("Worker pool stopped with error", err, nil)
	}
	for _, c := range s.registeredComponents() {
		if err := c.Stop(ctx); err != nil {
			s.Logger.Error("Failed to stop component", err, loggingpkg.LogFields{"component": c.Name()})
		}
		c.Dispose(ctx)
	}
	if err := s.Close(); err != nil {
		s.Logger.Error("Failed to close transports", err, nil)
	}
}

// Close closes the router and every transport.
func (s *Service) Close() error {
	var errs []error
	if s.router != nil {
		if err := s.router.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, tr := range s.transports {
		if err := tr.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		delete(s.transports, name)
	}
	return errors.Join(errs...)
}

func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("failed to register middleware %s: %w", name, err)
		}
	}
	return nil
}

// RegisterHTTPHandler serves handler on pattern at port once Start runs.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (s *Service) startHTTPServers() {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	for port, mux := range s.httpServers {
		addr := fmt.Sprintf(":%d", port)
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": addr})
		go func(addr string, handler http.Handler) {
			if err := http.ListenAndServe(addr, handler); err != nil {
				s.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": addr})
			}
		}(addr, mux)
	}
}
