package worker

import (
	"github.com/okian/pitwall/pkg/logger"
)

// Option applies a configuration option to a Worker.
type Option func(*Worker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *Worker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

type poolConfig struct {
	workers   int
	queueSize int
	logger    logger.Logger
}

// PoolOption configures a Pool.
type PoolOption func(*poolConfig)

// WithWorkers sets the number of workers; values below 1 keep the default.
func WithWorkers(n int) PoolOption {
	return func(c *poolConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithQueueSize bounds the number of requests waiting for a worker.
func WithQueueSize(n int) PoolOption {
	return func(c *poolConfig) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithPoolLogger sets the pool's logger.
func WithPoolLogger(l logger.Logger) PoolOption {
	return func(c *poolConfig) {
		if l != nil {
			c.logger = l
		}
	}
}
