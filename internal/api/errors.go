package api

import (
	"errors"
	"fmt"
)

// Unauthorized indicates the server rejected the session token (HTTP 401).
// Callers treat it as a session-invalid signal, never as a transient error.
type Unauthorized struct {
	Message string
}

func (e *Unauthorized) Error() string {
	if e.Message == "" {
		return "unauthorized"
	}
	return "unauthorized: " + e.Message
}

// IsUnauthorized reports whether err (or any error in its chain) is an
// Unauthorized error.
func IsUnauthorized(err error) bool {
	var ue *Unauthorized
	return errors.As(err, &ue)
}

// ServerError is a non-auth structured failure returned by the dispatch
// server (HTTP status outside 2xx, other than 401).
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// IsServerError reports whether err is a ServerError.
func IsServerError(err error) bool {
	var se *ServerError
	return errors.As(err, &se)
}

// NetworkError is a transport-level failure: the request never produced a
// structured server response.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsNetworkError reports whether err is a NetworkError.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
