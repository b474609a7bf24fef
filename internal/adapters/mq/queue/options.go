package queue

type config struct {
	capacity int
	metrics  bool
}

// Option applies a configuration option to the InMemoryQueue.
type Option func(*config)

// WithCapacity sets the maximum capacity of the queue.
func WithCapacity(capacity int) Option {
	return func(c *config) {
		if capacity > 0 {
			c.capacity = capacity
		}
	}
}

// WithoutMetrics keeps the queue out of the shared prediction queue gauges.
// Session mailboxes use it.
func WithoutMetrics() Option {
	return func(c *config) {
		c.metrics = false
	}
}
