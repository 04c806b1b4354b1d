// Package stats counts component failures and dead-letter routing, both in
// memory for snapshots and as Prometheus counters.
package stats

import (
	"maps"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics owns the Prometheus collectors shared by every component.
type Metrics struct {
	mu         sync.RWMutex
	components map[string]*ComponentStatistics

	executionErrors *prometheus.CounterVec
	fatalErrors     *prometheus.CounterVec
	routedMessages  *prometheus.CounterVec
	invocations     *prometheus.CounterVec

	registerer prometheus.Registerer
	registered bool
}

// ComponentSnapshot is a point-in-time view of one component's counters.
type ComponentSnapshot struct {
	ExecutionErrors uint64            `json:"execution_errors"`
	FatalErrors     uint64            `json:"fatal_errors"`
	RoutedMessages  map[string]uint64 `json:"routed_messages"`
	LastUpdatedAt   time.Time         `json:"last_updated_at"`
}

// Snapshot is a point-in-time view of all components.
type Snapshot struct {
	TotalExecutionErrors uint64                        `json:"total_execution_errors"`
	TotalFatalErrors     uint64                        `json:"total_fatal_errors"`
	TotalRouted          uint64                        `json:"total_routed"`
	Components           map[string]*ComponentSnapshot `json:"components"`
	CollectedAt          time.Time                     `json:"collected_at"`
}

func newComponentCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flowcore",
			Subsystem: "component",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// NewMetrics creates the collectors. A nil registerer uses the default one.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Metrics{
		components:      make(map[string]*ComponentStatistics),
		registerer:      registerer,
		executionErrors: newComponentCounterVec("execution_errors_total", "Failures handled by a component's exception strategy", []string{"component"}),
		fatalErrors:     newComponentCounterVec("fatal_errors_total", "Dead-letter dispatches that failed", []string{"component"}),
		routedMessages:  newComponentCounterVec("routed_messages_total", "Messages rerouted to a dead-letter endpoint", []string{"component", "endpoint"}),
		invocations:     newComponentCounterVec("invocations_total", "Entry-point invocations by outcome", []string{"component", "outcome"}),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}
	for _, vec := range []**prometheus.CounterVec{&m.executionErrors, &m.fatalErrors, &m.routedMessages, &m.invocations} {
		if err := m.registerer.Register(*vec); err != nil {
			are, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				return err
			}
			// Another Metrics registered first; count into its collectors.
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				*vec = existing
			}
		}
	}
	m.registered = true
	return nil
}

// Component returns the statistics of the named component, creating them on
// first use.
func (m *Metrics) Component(name string) *ComponentStatistics {
	m.mu.RLock()
	s, ok := m.components[name]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.components[name]; ok {
		return s
	}
	s = &ComponentStatistics{name: name, metrics: m, routed: make(map[string]uint64)}
	m.components[name] = s
	return s
}

// Snapshot returns the counters of every component.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		Components:  make(map[string]*ComponentSnapshot, len(m.components)),
		CollectedAt: time.Now(),
	}
	for name, s := range m.components {
		cs := s.Snapshot()
		snap.Components[name] = &cs
		snap.TotalExecutionErrors += cs.ExecutionErrors
		snap.TotalFatalErrors += cs.FatalErrors
		for _, n := range cs.RoutedMessages {
			snap.TotalRouted += n
		}
	}
	return snap
}

// Reset clears all counters (useful for testing).
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.components = make(map[string]*ComponentStatistics)
	m.executionErrors.Reset()
	m.fatalErrors.Reset()
	m.routedMessages.Reset()
	m.invocations.Reset()
}

// ComponentStatistics counts the failures of one component.
type ComponentStatistics struct {
	name    string
	metrics *Metrics

	mu              sync.Mutex
	executionErrors uint64
	fatalErrors     uint64
	routed          map[string]uint64
	lastUpdatedAt   time.Time
}

func (s *ComponentStatistics) Name() string { return s.name }

func (s *ComponentStatistics) IncExecutionError() {
	s.mu.Lock()
	s.executionErrors++
	s.lastUpdatedAt = time.Now()
	s.mu.Unlock()
	s.metrics.executionErrors.WithLabelValues(s.name).Inc()
}

func (s *ComponentStatistics) IncFatalError() {
	s.mu.Lock()
	s.fatalErrors++
	s.lastUpdatedAt = time.Now()
	s.mu.Unlock()
	s.metrics.fatalErrors.WithLabelValues(s.name).Inc()
}

// IncRoutedMessage counts a successful dead-letter dispatch to endpoint.
func (s *ComponentStatistics) IncRoutedMessage(endpoint string) {
	s.mu.Lock()
	s.routed[endpoint]++
	s.lastUpdatedAt = time.Now()
	s.mu.Unlock()
	s.metrics.routedMessages.WithLabelValues(s.name, endpoint).Inc()
}

// Outcomes passed to IncInvocation.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// IncInvocation counts one entry-point invocation. Only Prometheus keeps
// it; snapshots track failures.
func (s *ComponentStatistics) IncInvocation(outcome string) {
	s.metrics.invocations.WithLabelValues(s.name, outcome).Inc()
}

// Snapshot returns a copy of the counters.
func (s *ComponentStatistics) Snapshot() ComponentSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ComponentSnapshot{
		ExecutionErrors: s.executionErrors,
		FatalErrors:     s.fatalErrors,
		RoutedMessages:  maps.Clone(s.routed),
		LastUpdatedAt:   s.lastUpdatedAt,
	}
}
