package dispatch

import (
	"fmt"
	"strings"
)

// Message is a single delivery from the broker.
type Message struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// Kind identifies a handler variant.
type Kind int

// Handler variants.
const (
	KindDump Kind = iota
	KindControl
	KindLog
	KindDiscard
)

// String returns the configuration name of the kind.
func (k Kind) String() string {
	switch k {
	case KindDump:
		return "dump"
	case KindControl:
		return "control"
	case KindLog:
		return "log"
	case KindDiscard:
		return "discard"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind converts a configuration callback name to a Kind.
//
// An empty name selects KindDump. The control kind is reserved for the
// session and cannot be selected from configuration.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "dump":
		return KindDump, nil
	case "log":
		return KindLog, nil
	case "discard":
		return KindDiscard, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownHandler, name)
	}
}

// Handler processes messages delivered on a subscribed pattern.
//
// Handle is only ever called from the session's event loop, so
// implementations need no locking for state that nothing else touches.
type Handler interface {
	Kind() Kind
	Handle(msg Message) error
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
}

// LogHandler logs each message at info level and drops it.
type LogHandler struct {
	logger Logger
}

// NewLogHandler returns a handler that logs messages to logger.
func NewLogHandler(logger Logger) *LogHandler {
	return &LogHandler{logger: logger}
}

// Kind implements Handler.
func (*LogHandler) Kind() Kind { return KindLog }

// Handle implements Handler.
func (h *LogHandler) Handle(msg Message) error {
	if h.logger != nil {
		h.logger.Info("message received",
			"topic", msg.Topic,
			"payload", string(msg.Payload),
			"qos", msg.QoS,
			"retained", msg.Retained,
		)
	}
	return nil
}

// DiscardHandler drops every message.
type DiscardHandler struct{}

// Kind implements Handler.
func (DiscardHandler) Kind() Kind { return KindDiscard }

// Handle implements Handler.
func (DiscardHandler) Handle(Message) error { return nil }
