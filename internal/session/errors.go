package session

import (
	"errors"
	"fmt"
)

// Domain-specific errors for session operations.
var (
	// ErrNotConnected is returned by Publish before CONNACK or after disconnect.
	ErrNotConnected = errors.New("session: not connected")

	// ErrConnectTimeout is returned when no CONNACK arrives within the connect timeout.
	ErrConnectTimeout = errors.New("session: timed out waiting for connection")

	// ErrSessionClosed is returned when starting a session that has already ended.
	ErrSessionClosed = errors.New("session: closed")

	// ErrAlreadyStarted is returned by Run on a session that is already running.
	ErrAlreadyStarted = errors.New("session: already started")

	// ErrConnectionLost matches a *ConnectionError.
	ErrConnectionLost = errors.New("session: connection lost")
)

// ConnectionError reports that the broker connection dropped while connected.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("session: connection lost: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrConnectionLost) true for any ConnectionError.
func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnectionLost
}
