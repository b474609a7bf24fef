package client

import (
	"io"

	"github.com/gorilla/websocket"

	"github.com/okian/pitwall/internal/domain/delivery"
	"github.com/okian/pitwall/pkg/logger"
)

// Option configures a Client.
type Option func(*Client)

// WithOutput sets where the transcript and banners are printed.
func WithOutput(w io.Writer) Option {
	return func(c *Client) {
		if w != nil {
			c.out = w
		}
	}
}

// WithDialer replaces the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithEchoPolicy decides what happens to an echoed command the server rejects.
func WithEchoPolicy(p delivery.EchoPolicy) Option {
	return func(c *Client) {
		c.policy = p
	}
}

// WithDedupCapacity sets the client dedup window size.
func WithDedupCapacity(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.dedupSize = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}
