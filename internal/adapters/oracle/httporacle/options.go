package httporacle

import (
	"net/http"

	"github.com/okian/pitwall/pkg/logger"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithSource sets the Source reported when the service leaves it empty.
func WithSource(source string) Option {
	return func(c *Client) {
		if source != "" {
			c.source = source
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
