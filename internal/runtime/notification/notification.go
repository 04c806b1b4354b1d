// Package notification announces lifecycle transitions and exception
// handling to interested parties.
package notification

import (
	"context"
	"slices"
	"sync"
	"time"

	wmmessage "github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/flowcore/internal/runtime/cloudevents"
	"github.com/drblury/flowcore/internal/runtime/logging"
)

// Action names what happened.
type Action string

const (
	ComponentInitialised Action = "component.initialised"
	ComponentStarted     Action = "component.started"
	ComponentStopped     Action = "component.stopped"
	ComponentDisposed    Action = "component.disposed"
	ExceptionThrown      Action = "exception.thrown"
	DeadLetterRouted     Action = "exception.deadletter"
	DeadLetterFailed     Action = "exception.deadletter.failed"
)

// Notification is one announcement. Resource names the component or
// endpoint it concerns.
type Notification struct {
	Action   Action
	Resource string
	Payload  any
	Time     time.Time
}

// New stamps a notification with the current time. Error payloads are kept
// as their text so they encode.
func New(action Action, resource string, payload any) Notification {
	if err, ok := payload.(error); ok {
		payload = err.Error()
	}
	return Notification{Action: action, Resource: resource, Payload: payload, Time: time.Now().UTC()}
}

// Manager receives notifications. Implementations must not block for long
// and never fail the caller.
type Manager interface {
	FireNotification(ctx context.Context, n Notification)
}

// ManagerFunc adapts a function to Manager.
type ManagerFunc func(ctx context.Context, n Notification)

func (f ManagerFunc) FireNotification(ctx context.Context, n Notification) { f(ctx, n) }

// Nop discards notifications.
var Nop Manager = ManagerFunc(func(context.Context, Notification) {})

// OrNop returns m, or Nop when m is nil.
func OrNop(m Manager) Manager {
	if m == nil {
		return Nop
	}
	return m
}

// Multi fans a notification out to several managers in order.
type Multi []Manager

func (m Multi) FireNotification(ctx context.Context, n Notification) {
	for _, mgr := range m {
		if mgr != nil {
			mgr.FireNotification(ctx, n)
		}
	}
}

// LoggingManager writes notifications to a logger at debug level.
type LoggingManager struct {
	Logger logging.ServiceLogger
}

func (l LoggingManager) FireNotification(_ context.Context, n Notification) {
	logging.OrNop(l.Logger).Debug("notification", logging.LogFields{
		"action":   string(n.Action),
		"resource": n.Resource,
	})
}

// PublisherManager publishes notifications as CloudEvents of type
// "flowcore.<action>" on a watermill topic.
type PublisherManager struct {
	publisher wmmessage.Publisher
	topic     string
	source    string
	logger    logging.ServiceLogger
}

// NewPublisherManager returns a manager publishing to topic. Source is the
// CloudEvents source attribute.
func NewPublisherManager(publisher wmmessage.Publisher, topic, source string, logger logging.ServiceLogger) *PublisherManager {
	return &PublisherManager{
		publisher: publisher,
		topic:     topic,
		source:    source,
		logger:    logging.OrNop(logger),
	}
}

// EventType is the CloudEvents type used for action.
func EventType(action Action) string { return "flowcore." + string(action) }

// FireNotification publishes n. Publish failures are logged.
func (p *PublisherManager) FireNotification(ctx context.Context, n Notification) {
	evt := cloudevents.New(EventType(n.Action), p.source, n.Payload).WithSubject(n.Resource)
	if !n.Time.IsZero() {
		evt.Time = n.Time
	}
	msg, err := cloudevents.ToWatermill(evt)
	if err != nil {
		p.logger.Error("encoding notification failed", err, logging.LogFields{"action": string(n.Action)})
		return
	}
	msg.SetContext(ctx)
	if err := p.publisher.Publish(p.topic, msg); err != nil {
		p.logger.Error("publishing notification failed", err, logging.LogFields{"action": string(n.Action), "topic": p.topic})
	}
}

// Recorder keeps notifications in memory.
type Recorder struct {
	mu   sync.Mutex
	seen []Notification
}

func (r *Recorder) FireNotification(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, n)
}

// Notifications returns the recorded notifications in order.
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.seen)
}

// Actions returns the recorded actions in order.
func (r *Recorder) Actions() []Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	actions := make([]Action, len(r.seen))
	for i, n := range r.seen {
		actions[i] = n.Action
	}
	return actions
}
