package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrActionNotFound indicates no action carries the requested id
	ErrActionNotFound = errors.New("action not found")

	// ErrInvalidAction indicates an action failed validation
	ErrInvalidAction = errors.New("invalid action")

	// ErrMissingOAuthToken indicates a token exchange was attempted without credentials
	ErrMissingOAuthToken = errors.New("oauth token is not configured")

	// ErrAmbiguousName indicates more than one action matches a name lookup
	ErrAmbiguousName = errors.New("action name is ambiguous")
)

// TransportError represents a network or HTTP status failure talking to a remote endpoint
type TransportError struct {
	Endpoint   string
	StatusCode int // 0 when no response was received
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: API error (status %d): %s", e.Endpoint, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: request failed: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Temporary reports whether the failure is worth retrying
func (e *TransportError) Temporary() bool {
	if e.StatusCode == 0 {
		return true
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ResponseShapeError represents a well-formed response that lacks the expected fields
type ResponseShapeError struct {
	Endpoint string
	Missing  string
	Body     string
	Err      error
}

func (e *ResponseShapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: unexpected response shape (%s): %v", e.Endpoint, e.Missing, e.Err)
	}
	return fmt.Sprintf("%s: unexpected response shape: missing %s", e.Endpoint, e.Missing)
}

func (e *ResponseShapeError) Unwrap() error {
	return e.Err
}

// PersistenceCorruptError represents a persisted file that could not be decoded
type PersistenceCorruptError struct {
	Path string
	Err  error
}

func (e *PersistenceCorruptError) Error() string {
	return fmt.Sprintf("corrupt file %s: %v", e.Path, e.Err)
}

func (e *PersistenceCorruptError) Unwrap() error {
	return e.Err
}

// IsTransport checks if an error came from talking to a remote endpoint
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsResponseShape checks if an error is due to an unexpected response body
func IsResponseShape(err error) bool {
	var se *ResponseShapeError
	return errors.As(err, &se)
}

// IsCorrupt checks if an error is due to a malformed persisted file
func IsCorrupt(err error) bool {
	var ce *PersistenceCorruptError
	return errors.As(err, &ce)
}

// IsRetryable checks if an error can be retried
func IsRetryable(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Temporary()
	}
	return false
}
