// Package worker runs zone-sharded evaluation workers.
package worker

import (
	"github.com/okian/crowdews/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithInboxSize sets how many readings may wait in a worker's inbox.
func WithInboxSize(size int) Option {
	return func(w *InMemoryWorker) {
		if size > 0 {
			w.inboxSize = size
		}
	}
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithWorkerCount sets the number of shards. Values below 1 select
// runtime.NumCPU().
func WithWorkerCount(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.size = n
		}
	}
}

// WithWorkerInboxSize sets the inbox size of every worker in the pool.
func WithWorkerInboxSize(size int) PoolOption {
	return func(p *Pool) {
		if size > 0 {
			p.inboxSize = size
		}
	}
}

// WithPoolLogger sets the pool logger; workers log under it.
func WithPoolLogger(l logger.Logger) PoolOption {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}
