package worker

import (
	"context"
	"fmt"
	"hash/fnv"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/crowdews/internal/domain/model"
	"github.com/okian/crowdews/pkg/logger"
	"github.com/okian/crowdews/pkg/metrics"
)

const defaultInboxSize = 256

// Handler evaluates one reading. Calls for the same zone always arrive on
// the same goroutine in queue order.
type Handler interface {
	Handle(ctx context.Context, r model.SignalReading) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, r model.SignalReading) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, r model.SignalReading) error { //nolint:gocritic // value semantics
	return f(ctx, r)
}

// Queue defines how the pool receives readings.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.SignalReading
}

// Shard maps a zone to one of n workers with FNV-1a. The mapping is stable
// for a fixed n.
func Shard(zone string, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(zone))
	return int(h.Sum32() % uint32(n)) //nolint:gosec // n is a small positive worker count
}

// InMemoryWorker owns a set of zones and handles their readings serially.
type InMemoryWorker struct {
	name      string
	handler   Handler
	inboxSize int
	inbox     chan model.SignalReading
	done      chan struct{}
	processed atomic.Int64
	logger    logger.Logger
}

// NewInMemoryWorker creates a worker; feed it with Submit and start it with Run.
func NewInMemoryWorker(handler Handler, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		name:      "worker",
		handler:   handler,
		inboxSize: defaultInboxSize,
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	w.inbox = make(chan model.SignalReading, w.inboxSize)
	return w
}

// Name returns the worker name.
func (w *InMemoryWorker) Name() string { return w.name }

// Processed returns how many readings the worker has handled.
func (w *InMemoryWorker) Processed() int64 { return w.processed.Load() }

// Submit hands a reading to the worker, blocking while the inbox is full.
func (w *InMemoryWorker) Submit(ctx context.Context, r model.SignalReading) error { //nolint:gocritic // value semantics
	select {
	case w.inbox <- r:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("submit to %s: %w", w.name, ctx.Err())
	}
}

// Close stops accepting readings; Run returns once the inbox is drained.
func (w *InMemoryWorker) Close() { close(w.inbox) }

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

// Run handles readings until the inbox is closed and drained or ctx ends.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-w.inbox:
			if !ok {
				return
			}
			w.handle(ctx, r)
		}
	}
}

func (w *InMemoryWorker) handle(ctx context.Context, r model.SignalReading) { //nolint:gocritic // value semantics
	start := time.Now()
	metrics.AddWorkerActive(1)
	defer func() {
		metrics.AddWorkerActive(-1)
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	w.processed.Add(1)
	if err := w.handler.Handle(ctx, r); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "handle_error")
		w.logger.Error(ctx, "reading evaluation failed",
			logger.String("zone", r.Zone),
			logger.String("reading_id", r.ID),
			logger.Error(err),
		)
	}
}

// Pool fans readings out to workers by zone so every zone has exactly one
// writer and its readings are handled in queue order.
type Pool struct {
	workers   []*InMemoryWorker
	queue     Queue
	size      int
	inboxSize int

	shutdown   chan struct{}
	dispatched chan struct{}
	started    atomic.Bool
	stopOnce   sync.Once

	logger logger.Logger
}

// NewPool creates a pool reading from q and dispatching to handler.
func NewPool(q Queue, handler Handler, opts ...PoolOption) *Pool {
	p := &Pool{
		queue:      q,
		size:       runtime.NumCPU(),
		inboxSize:  defaultInboxSize,
		shutdown:   make(chan struct{}),
		dispatched: make(chan struct{}),
		logger:     logger.Get().Named("worker-pool"),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.workers = make([]*InMemoryWorker, p.size)
	for i := range p.workers {
		p.workers[i] = NewInMemoryWorker(handler,
			WithName("worker-"+strconv.Itoa(i)),
			WithLogger(p.logger),
			WithInboxSize(p.inboxSize),
		)
	}
	metrics.UpdateWorkerCount(p.size)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// WorkerFor returns the worker that owns zone.
func (p *Pool) WorkerFor(zone string) *InMemoryWorker {
	return p.workers[Shard(zone, p.size)]
}

// Start launches the workers and the dispatcher. It is a no-op when called
// more than once.
func (p *Pool) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.dispatch(ctx)
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", p.size))
}

func (p *Pool) dispatch(ctx context.Context) {
	defer close(p.dispatched)
	defer func() {
		for _, w := range p.workers {
			w.Close()
		}
	}()

	in := p.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case r, ok := <-in:
			if !ok {
				return
			}
			if err := p.WorkerFor(r.Zone).Submit(ctx, r); err != nil {
				return
			}
		}
	}
}

// Shutdown stops the pool. When the queue can be closed the backlog is
// drained first; otherwise dispatching stops immediately. Either way the
// workers finish what is already in their inboxes.
func (p *Pool) Shutdown(ctx context.Context) error {
	if !p.started.Load() {
		return nil
	}
	p.stopOnce.Do(func() {
		if closer, ok := p.queue.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				p.logger.Error(ctx, "error closing queue", logger.Error(err))
			}
			return
		}
		close(p.shutdown)
	})

	select {
	case <-p.dispatched:
	case <-ctx.Done():
		return fmt.Errorf("dispatcher shutdown: %w", ctx.Err())
	}
	for _, w := range p.workers {
		select {
		case <-w.Done():
		case <-ctx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.String("worker", w.Name()))
			return fmt.Errorf("worker shutdown: %w", ctx.Err())
		}
	}
	metrics.UpdateWorkerCount(0)
	return nil
}
