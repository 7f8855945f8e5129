package common

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// DefaultTimeout is applied by NewApiHttpClient when the caller passes a
// non-positive timeout.
const DefaultTimeout = 10 * time.Second

// HttpClient is the transport used by every client in this module.
// This allows mocking or custom transport layers in testing.
type HttpClient interface {
	Do(req *http.Request) (*http.Response, error)
	CloseIdleConnections()
}

// HTTPError captures an unexpected status code together with the request
// that produced it and the raw response body.
type HTTPError struct {
	StatusCode int
	Method     string
	URL        string
	Body       []byte
}

func (e *HTTPError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("unexpected status code: %d, body: %s", e.StatusCode, string(e.Body))
	}
	return fmt.Sprintf("%s %s: unexpected status code: %d, body: %s", e.Method, e.URL, e.StatusCode, string(e.Body))
}

// IsStatus reports whether err (or anything it wraps) is an HTTPError with the given status.
func IsStatus(err error, status int) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == status
}

// userAgentRoundTripper is a custom RoundTripper that adds a User-Agent header.
type userAgentRoundTripper struct {
	Wrapped   http.RoundTripper
	UserAgent string
}

func (rt *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone request to avoid mutating the original
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", rt.UserAgent)
	return rt.Wrapped.RoundTrip(clone)
}

type httpClient struct {
	client *http.Client
}

// NewApiHttpClient returns an HttpClient with the given timeout and a custom User-Agent.
// The base client is modified in place.
func NewApiHttpClient(userAgent string, base *http.Client, timeout time.Duration) HttpClient {
	if base.Transport == nil {
		base.Transport = http.DefaultTransport
	}
	if userAgent != "" {
		base.Transport = &userAgentRoundTripper{
			Wrapped:   base.Transport,
			UserAgent: userAgent,
		}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	base.Timeout = timeout

	return &httpClient{client: base}
}

func (h *httpClient) Do(req *http.Request) (*http.Response, error) {
	return h.client.Do(req)
}

func (h *httpClient) CloseIdleConnections() {
	h.client.CloseIdleConnections()
}
