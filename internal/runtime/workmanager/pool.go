// Package workmanager runs asynchronous work on a fixed set of workers. Each
// worker is one ownership.Owner: messages and events it touches bind to it.
package workmanager

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/drblury/flowcore/internal/runtime/errors"
	"github.com/drblury/flowcore/internal/runtime/logging"
	"github.com/drblury/flowcore/internal/runtime/ownership"
)

// Work is one unit of work. Its context carries the worker's owner.
type Work func(ctx context.Context)

type item struct {
	ctx  context.Context
	work Work
}

// Pool is a fixed-size worker pool with a bounded queue.
type Pool struct {
	name      string
	size      int
	logger    logging.ServiceLogger
	queue     chan item
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.RWMutex
	started bool
	stopped bool
	group   *errgroup.Group
}

// New returns a pool of size workers holding up to queueSize pending items.
// A non-positive size uses one worker per CPU; a negative queueSize is
// treated as zero, making Schedule wait for a free worker.
func New(name string, size, queueSize int, logger logging.ServiceLogger) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Pool{
		name:   name,
		size:   size,
		logger: logging.OrNop(logger).With(logging.LogFields{"pool": name}),
		queue:  make(chan item, queueSize),
		done:   make(chan struct{}),
	}
}

// Size is the number of workers.
func (p *Pool) Size() int { return p.size }

// Start launches the workers. Starting twice does nothing.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return errors.ErrPoolStopped
	}
	if p.started {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for i := range p.size {
		owner := ownership.NewOwner(fmt.Sprintf("%s-worker-%d", p.name, i))
		g.Go(func() error {
			p.run(gctx, owner)
			return nil
		})
	}
	p.group = g
	p.started = true
	p.logger.Debug("work manager started", logging.LogFields{"workers": p.size})
	return nil
}

// Schedule queues work. The work keeps ctx's values but not its
// cancellation, so it outlives the caller.
func (p *Pool) Schedule(ctx context.Context, work Work) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	switch {
	case p.stopped:
		return errors.ErrPoolStopped
	case !p.started:
		return errors.ErrPoolNotStarted
	}
	it := item{ctx: context.WithoutCancel(ctx), work: work}
	select {
	case p.queue <- it:
		return nil
	case <-p.done:
		return errors.ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses new work, lets the workers finish what is queued and waits
// for them.
func (p *Pool) Stop() error {
	p.closeOnce.Do(func() { close(p.done) })

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.queue)
	g := p.group
	p.mu.Unlock()

	if g == nil {
		return nil
	}
	err := g.Wait()
	p.logger.Debug("work manager stopped", nil)
	return err
}

func (p *Pool) run(ctx context.Context, owner *ownership.Owner) {
	for it := range p.queue {
		if ctx.Err() != nil {
			p.logger.Info("dropping queued work, pool context done", logging.LogFields{"worker": owner.Name()})
			continue
		}
		p.execute(owner, it)
	}
}

func (p *Pool) execute(owner *ownership.Owner, it item) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("work panicked", fmt.Errorf("panic: %v", r), logging.LogFields{"worker": owner.Name()})
		}
	}()
	it.work(ownership.WithOwner(it.ctx, owner))
}
