package api

import "errors"

var (
	// ErrSessionExpired marks a terminal authentication failure; the caller
	// has to log in again.
	ErrSessionExpired = errors.New("api: session expired")
	// ErrNoRefreshToken is wrapped in a SessionExpiredError when a 401
	// arrives and no refresh token is held.
	ErrNoRefreshToken = errors.New("api: no refresh token")
)

// SessionExpiredError carries the refresh failure that ended the session.
// It matches both ErrSessionExpired and the underlying refresh error.
type SessionExpiredError struct {
	Err error
}

func (e *SessionExpiredError) Error() string {
	return ErrSessionExpired.Error() + ": " + e.Err.Error()
}

func (e *SessionExpiredError) Unwrap() []error {
	return []error{ErrSessionExpired, e.Err}
}

// RequestError ties a failed send to the request that produced it. It
// unwraps to the transport error or *common.HTTPError.
type RequestError struct {
	Request *Request
	Err     error
}

func (e *RequestError) Error() string { return e.Err.Error() }

func (e *RequestError) Unwrap() error { return e.Err }
