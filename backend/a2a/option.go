package a2a

import (
	"net/http"

	"go.uber.org/zap"
)

// ClientOption defines options for configuring the A2A client.
type ClientOption func(*Client)

// WithLogger sets a custom logger for the client.
// If not provided, a no-op logger will be used.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger.Named("a2a").With(zap.String("baseURL", c.baseURL))
		}
	}
}

// WithHTTPClient sets a custom HTTP client for the client.
// If not provided, http.DefaultClient will be used.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithExtensions sets the extension URIs announced in the X-A2A-Extensions
// header. Defaults to the A2UI extension.
func WithExtensions(uris ...string) ClientOption {
	return func(c *Client) {
		c.extensions = uris
	}
}

// DoNotTrustAgentCardURL prevents the client from replacing its base URL
// with the URL from a fetched agent card.
func DoNotTrustAgentCardURL() ClientOption {
	return func(c *Client) {
		c.trustCardURL = false
	}
}
