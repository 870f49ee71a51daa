package session

import "github.com/nerrad567/mqtt-recorder/internal/dispatch"

// ControlTopic carries session commands.
const ControlTopic = "/recorder"

// exitCommand is the only payload acted on; the comparison is exact.
const exitCommand = "exit"

// controlHandler disconnects its session on an exit command.
type controlHandler struct {
	c *Controller
}

func (*controlHandler) Kind() dispatch.Kind { return dispatch.KindControl }

func (h *controlHandler) Handle(msg dispatch.Message) error {
	if string(msg.Payload) != exitCommand {
		h.c.logger.Debug("ignoring control message", "payload", string(msg.Payload))
		return nil
	}

	h.c.logger.Info("exit requested on control topic", "topic", msg.Topic)
	h.c.requestStop()
	return nil
}
