package dispatch

import "errors"

// Domain-specific errors for handler registration.
var (
	// ErrRegistryFrozen is returned by Register once the session has connected.
	ErrRegistryFrozen = errors.New("dispatch: registry is frozen")

	// ErrNilHandler is returned when registering a pattern without a handler.
	ErrNilHandler = errors.New("dispatch: handler cannot be nil")

	// ErrInvalidQoS is returned for QoS values above 2.
	ErrInvalidQoS = errors.New("dispatch: invalid QoS level (must be 0, 1, or 2)")

	// ErrUnknownHandler is returned when a handler name cannot be resolved.
	ErrUnknownHandler = errors.New("dispatch: unknown handler")
)
