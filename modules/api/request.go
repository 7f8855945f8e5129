package api

import (
	"net/http"
)

// Request describes one logical outbound call. It survives a replay: the
// same Request is resent after a refresh, so Body is kept as bytes.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte

	// retried is set once a refresh has been attempted for this request.
	retried bool
	// sentToken is the access token attached on the latest send.
	sentToken string
}

// Retried reports whether a refresh was already attempted for this request.
func (r *Request) Retried() bool { return r.retried }

// Response is a fully read 2xx response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}
