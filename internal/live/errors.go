package live

import "errors"

var (
	// ErrMissingCredential is returned by Connect before any transport
	// activity when no API key is configured.
	ErrMissingCredential = errors.New("live: missing api credential")

	// ErrInvalidEndpoint is returned when the session URL cannot be built.
	ErrInvalidEndpoint = errors.New("live: invalid endpoint url")

	// ErrConnectionTimeout is returned when the transport does not open
	// within the configured window. The failed Connect may be retried.
	ErrConnectionTimeout = errors.New("live: connection open timed out")

	// ErrNotConnected is returned by send operations outside the Active state.
	ErrNotConnected = errors.New("live: not connected")

	// ErrConnectInProgress guards against two concurrent setup handshakes.
	ErrConnectInProgress = errors.New("live: connect already in progress")
)

// State is the connection state of a session.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateActive       State = "active"
)

// SessionError is a typed protocol or transport error delivered through
// the error callback. Errors never escape through send paths once a
// session is active.
type SessionError struct {
	Code      string
	Detail    string
	Retryable bool
}

func (e *SessionError) Error() string {
	if e.Detail == "" {
		return "live: " + e.Code
	}
	return "live: " + e.Code + ": " + e.Detail
}
