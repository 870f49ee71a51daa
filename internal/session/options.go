package session

import "time"

// DefaultConnectTimeout bounds WaitConnected when no timeout is configured.
const DefaultConnectTimeout = 10 * time.Second

// eventBuffer is the capacity of the loop's event channel.
const eventBuffer = 64

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. Without one the controller is silent.
func WithLogger(logger Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPublishQoS sets the QoS used by Publish.
func WithPublishQoS(qos byte) Option {
	return func(c *Controller) {
		c.publishQoS = qos
	}
}

// WithConnectTimeout sets how long WaitConnected waits for the CONNACK.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.connectTimeout = d
		}
	}
}

// Logger is the logging interface used by the controller.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
