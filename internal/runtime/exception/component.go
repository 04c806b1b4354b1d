package exception

import (
	"context"
	"sync"

	"github.com/drblury/flowcore/internal/runtime/event"
	"github.com/drblury/flowcore/internal/runtime/logging"
	"github.com/drblury/flowcore/internal/runtime/requestctx"
)

// Statistics is what the component-scoped strategy counts into.
type Statistics interface {
	IncExecutionError()
	IncFatalError()
	IncRoutedMessage(endpoint string)
}

// StatisticsProvider returns the statistics of the named component. It may
// return nil to disable counting.
type StatisticsProvider func(component string) Statistics

// ComponentStrategy is the exception strategy of one component. If no
// component was given, it binds to the component of the active event the
// first time it handles a failure. Every failure counts as an execution
// error, every failed dead-letter dispatch as a fatal error, and every
// successful one as a routed message of the dead-letter endpoint.
type ComponentStrategy struct {
	*Strategy

	statsFor StatisticsProvider

	mu        sync.Mutex
	component event.Component
}

// NewComponentStrategy returns a strategy for component, which may be nil.
func NewComponentStrategy(component event.Component, statsFor StatisticsProvider, opts Options) *ComponentStrategy {
	cs := &ComponentStrategy{
		Strategy:  New(opts),
		statsFor:  statsFor,
		component: component,
	}
	cs.cb = callbacks{
		componentName: cs.componentName,
		handled: func(context.Context) {
			if st := cs.statistics(); st != nil {
				st.IncExecutionError()
			}
		},
		fatal: func(context.Context) {
			if st := cs.statistics(); st != nil {
				st.IncFatalError()
			}
		},
		routed: func(_ context.Context, ep event.Endpoint) {
			if st := cs.statistics(); st != nil {
				st.IncRoutedMessage(ep.URI().String())
			}
		},
	}
	return cs
}

// Component returns the bound component, or nil.
func (cs *ComponentStrategy) Component() event.Component {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.component
}

// SetComponent binds the strategy to c.
func (cs *ComponentStrategy) SetComponent(c event.Component) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.component = c
}

// ExceptionThrown binds the strategy to the active event's component if it
// has none yet, then handles err.
func (cs *ComponentStrategy) ExceptionThrown(ctx context.Context, err error) {
	if err == nil {
		return
	}
	cs.mu.Lock()
	if cs.component == nil {
		if ev := requestctx.Event(ctx); ev != nil {
			cs.component = ev.Component()
		} else {
			cs.logger.Fatal("component exception strategy invoked without an active event", err, logging.LogFields{})
		}
	}
	cs.mu.Unlock()
	cs.Strategy.ExceptionThrown(ctx, err)
}

func (cs *ComponentStrategy) componentName(ctx context.Context) string {
	if c := cs.Component(); c != nil {
		return c.Name()
	}
	return activeComponentName(ctx)
}

func (cs *ComponentStrategy) statistics() Statistics {
	if cs.statsFor == nil {
		return nil
	}
	c := cs.Component()
	if c == nil {
		return nil
	}
	return cs.statsFor(c.Name())
}
