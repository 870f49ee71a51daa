package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Point tag and field keys.
const (
	tagTopic      = "topic"
	fieldPayload  = "payload"
	fieldQoS      = "qos"
	fieldRetained = "retained"
)

// WriteMessage queues one received message as a point.
//
// The write is non-blocking; the point is batched and sent asynchronously.
// Returns ErrNotConnected after Close.
func (c *Client) WriteMessage(at time.Time, topic string, payload []byte, qos byte, retained bool) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.writeAPI.WritePoint(messagePoint(c.measurement, at, topic, payload, qos, retained))
	return nil
}

// messagePoint builds the point for one message.
func messagePoint(measurement string, at time.Time, topic string, payload []byte, qos byte, retained bool) *write.Point {
	return write.NewPoint(
		measurement,
		map[string]string{
			tagTopic: topic,
		},
		map[string]interface{}{
			fieldPayload:  string(payload),
			fieldQoS:      int64(qos),
			fieldRetained: retained,
		},
		at,
	)
}
