package classifier

import (
	"net/http"
	"time"

	"github.com/okian/learnpath/pkg/logger"
)

// Option applies a configuration option to the HTTPClassifier.
type Option func(*HTTPClassifier)

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClassifier) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client; WithTimeout then has no effect.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClassifier) {
		if client != nil {
			c.client = client
		}
	}
}

// WithLogger sets the classifier logger.
func WithLogger(l logger.Logger) Option {
	return func(c *HTTPClassifier) {
		if l != nil {
			c.logger = l
		}
	}
}
