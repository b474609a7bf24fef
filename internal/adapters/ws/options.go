package ws

import (
	"net/http"
	"time"

	"github.com/okian/pitwall/pkg/logger"
)

// Option configures a Handler.
type Option func(*Handler)

// WithWriteTimeout bounds each write.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

// WithReadLimit caps the size of an inbound message.
func WithReadLimit(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.readLimit = n
		}
	}
}

// WithCheckOrigin replaces the origin check; the default accepts any origin.
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(h *Handler) {
		if fn != nil {
			h.upgrader.CheckOrigin = fn
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}
