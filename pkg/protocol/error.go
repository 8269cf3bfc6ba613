package protocol

import (
	"errors"
	"fmt"
	"net/http"
)

// Error exposes methods useful for categorizing errors.
type Error interface {
	error

	// Temporary returns true if the Error might be the result of a transient condition. For
	// example, the endpoint is known to intermittently return bodies that do not parse; retrying
	// such a request usually succeeds.
	Temporary() bool
}

var (
	// ErrUnsupportedStore indicates the configured session driver does not name a recognized
	// backing store. This is a configuration error and is never retried.
	ErrUnsupportedStore = errors.New("unsupported session store driver")
	// ErrMalformedResponse indicates a response body was missing required envelope fields.
	ErrMalformedResponse = errors.New("malformed server response")
	// ErrResponseTooLong indicates the server response exceeded connector.MaxResponseLength.
	ErrResponseTooLong = errors.New("response exceeds maximum length")
	// ErrCredentialsRejected indicates the server repeatedly reported the client's credentials as
	// invalid, even for a freshly issued challenge token. Check the configured username and access
	// key.
	ErrCredentialsRejected = errors.New("server rejected credentials for a fresh challenge token")
)

// Remote error codes that signal the cached session document is no longer usable and must be
// discarded rather than surfaced to the caller.
const (
	CodeInvalidCredentials = "INVALID_USER_CREDENTIALS"
	CodeInvalidSessionID   = "INVALID_SESSIONID"
)

// ServerError is a protocol-level failure reported inside a response envelope. Code and Message
// are preserved verbatim so callers can branch on them.
type ServerError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServerError) Temporary() bool {
	return false
}

// InvalidatesSession returns true if the error reports the session credential or login as invalid.
// Such errors are recoverable by discarding the cached session document and re-authenticating.
func (e *ServerError) InvalidatesSession() bool {
	return e.Code == CodeInvalidCredentials || e.Code == CodeInvalidSessionID
}

// StatusError indicates the server answered with an HTTP status other than 200.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d (%s)", e.Code, http.StatusText(e.Code))
}

func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusServiceUnavailable ||
		e.Code == http.StatusGatewayTimeout ||
		e.Code == http.StatusRequestTimeout ||
		e.Code == http.StatusTooManyRequests
}

// RetryExhaustedError indicates the attempt budget was consumed without ever observing a usable
// response envelope.
type RetryExhaustedError struct {
	Operation string
	Attempts  int
	LastError error // last transport failure, if any
}

func (e *RetryExhaustedError) Error() string {
	if e.LastError != nil {
		return fmt.Sprintf("%s: no usable response after %d attempts: %s", e.Operation, e.Attempts, e.LastError)
	}
	return fmt.Sprintf("%s: no usable response after %d attempts", e.Operation, e.Attempts)
}

func (e *RetryExhaustedError) Temporary() bool {
	return true
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.LastError
}

// Temporary returns true if err indicates a failure due to possibly transient conditions that do
// not require configuration changes to resolve.
func Temporary(err error) bool {
	var categorized Error
	if errors.As(err, &categorized) {
		return categorized.Temporary()
	}
	return false
}
