package mqtt

import "errors"

// Sentinel errors; wrapped with context, so match them with errors.Is.
var (
	ErrNotConnected     = errors.New("mqtt: client not connected")
	ErrConnectionFailed = errors.New("mqtt: connection failed")
	ErrPublishFailed    = errors.New("mqtt: publish failed")
	ErrSubscribeFailed  = errors.New("mqtt: subscribe failed")

	// ErrInvalidQoS rejects QoS values outside 0..2.
	ErrInvalidQoS   = errors.New("mqtt: invalid QoS level")
	ErrInvalidTopic = errors.New("mqtt: invalid topic")

	// ErrTimeout is joined with the operation's error when paho's token
	// does not complete in time.
	ErrTimeout = errors.New("mqtt: operation timed out")
)
