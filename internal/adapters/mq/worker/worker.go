// Package worker applies queued progress events in the background.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/lingotrack/internal/adapters/mq/queue"
	"github.com/okian/lingotrack/internal/domain/errs"
	"github.com/okian/lingotrack/pkg/logger"
	"github.com/okian/lingotrack/pkg/metrics"
)

const (
	defaultWorkerMultiplier = 4
	workerShutdownTimeout   = 5 * time.Second
)

// Event is what workers read off the queue.
type Event = queue.Event

// Applier applies one progress event to learner state.
type Applier interface {
	Apply(ctx context.Context, ev Event) error
}

// FailureHandler observes events that could not be applied.
type FailureHandler func(ctx context.Context, ev Event, err error)

// Queue defines how workers receive events.
type Queue interface {
	Dequeue() <-chan Event
}

// Worker processes events until its queue closes or it is told to stop.
type Worker interface {
	Run(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue     Queue
	applier   Applier
	name      string
	onFailure FailureHandler
	busy      func(delta int64)

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

var _ Worker = (*InMemoryWorker)(nil)

// NewInMemoryWorker creates a worker reading from q.
func NewInMemoryWorker(q Queue, applier Applier, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		applier:  applier,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		busy:     func(int64) {},
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named("worker")
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run consumes events until the queue channel is closed and drained, ctx is
// cancelled, or Shutdown is called.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	events := w.queue.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			_ = w.process(ctx, ev)
		}
	}
}

// Shutdown stops the worker without draining the queue.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, ev Event) error { //nolint:gocritic // hugeParam: events are passed by value over the channel
	w.busy(1)
	start := time.Now()
	defer func() {
		w.busy(-1)
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	err := w.applier.Apply(ctx, ev)
	metrics.RecordEventApplied(string(ev.Kind), err == nil)
	if err == nil {
		w.logger.Debug(ctx, "event applied",
			logger.String("event_id", ev.EventID),
			logger.String("kind", string(ev.Kind)),
			logger.Time("ts", ev.TS),
			logger.Duration("lag", time.Since(ev.TS)),
		)
		return nil
	}

	metrics.RecordWorkerError()
	w.logger.Error(ctx, "failed to apply event",
		logger.String("event_id", ev.EventID),
		logger.String("learner_id", ev.LearnerID),
		logger.String("kind", string(ev.Kind)),
		logger.Time("ts", ev.TS),
		logger.String("error_kind", errs.Label(err)),
		logger.Error(err),
	)
	if w.onFailure != nil {
		w.onFailure(ctx, ev, err)
	}
	return err
}

// Pool runs a fixed set of workers over one queue.
type Pool struct {
	workers    []*InMemoryWorker
	queue      Queue
	workerOpts []Option

	active    atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64

	stopOnce sync.Once
	logger   logger.Logger
}

// NewPool creates a pool of workerCount workers. A count below one picks a
// multiple of the CPU count.
func NewPool(workerCount int, q Queue, applier Applier, opts ...PoolOption) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named("worker-pool")
	}

	counting := countingApplier{next: applier, pool: p}
	for i := range p.workers {
		wopts := append([]Option{WithLogger(p.logger)}, p.workerOpts...)
		wopts = append(wopts, WithName("worker-"+strconv.Itoa(i)))
		w := NewInMemoryWorker(q, counting, wopts...)
		w.busy = p.trackBusy
		p.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)
	return p
}

// Start launches every worker.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Stop signals every worker to exit without draining and waits briefly for
// each one.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		for _, w := range p.workers {
			w.shutdownOnce.Do(func() { close(w.shutdown) })
		}
	})
	for _, w := range p.workers {
		select {
		case <-w.done:
		case <-time.After(workerShutdownTimeout):
		}
	}
}

// Shutdown closes the queue and lets the workers drain it. Workers still
// running when ctx expires are left behind and reported.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	var stuck int
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			stuck++
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	if stuck > 0 {
		return fmt.Errorf("%d workers still running: %w", stuck, ctx.Err())
	}
	return nil
}

// Size reports the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Active reports how many workers are applying an event right now.
func (p *Pool) Active() int64 { return p.active.Load() }

// Processed reports how many events were applied successfully.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Failed reports how many events failed to apply.
func (p *Pool) Failed() int64 { return p.failed.Load() }

func (p *Pool) trackBusy(delta int64) {
	metrics.UpdateWorkerActiveCount(int(p.active.Add(delta)))
}

type countingApplier struct {
	next Applier
	pool *Pool
}

func (c countingApplier) Apply(ctx context.Context, ev Event) error { //nolint:gocritic // hugeParam: matches Applier
	err := c.next.Apply(ctx, ev)
	if err != nil {
		c.pool.failed.Add(1)
	} else {
		c.pool.processed.Add(1)
	}
	return err
}
