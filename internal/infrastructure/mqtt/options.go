package mqtt

import (
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Connection constants.
const (
	// defaultConnectTimeout is used when the configuration does not set one.
	defaultConnectTimeout = 10 * time.Second

	// defaultOperationTimeout bounds subscribe and publish acknowledgements.
	defaultOperationTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// clientIDPrefix prefixes generated client identifiers.
	clientIDPrefix = "mqtt-recorder-"
)

// brokerURL builds the paho broker URL.
func brokerURL(host string, port int) string {
	return fmt.Sprintf("tcp://%s:%d", host, port)
}

// generateClientID returns a unique client identifier.
//
// Brokers disconnect an existing session when a second client connects with
// the same ID, so a recorder and a player running side by side need distinct IDs.
func generateClientID() string {
	return clientIDPrefix + uuid.NewString()[:8]
}

// buildClientOptions creates paho MQTT options.
//
// This configures:
//   - Broker URL (plain tcp://)
//   - Client ID for identification
//   - Clean session mode
//   - No automatic reconnection
//   - In-order delivery through the default publish handler
func buildClientOptions(host string, port int, clientID string, connectTimeout time.Duration) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(brokerURL(host, port))
	opts.SetClientID(clientID)

	// Clean session - start fresh on connect (no persistent session on broker)
	opts.SetCleanSession(true)

	// A dropped connection ends the running mode.
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)

	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	// Deliver messages one at a time, in arrival order.
	opts.SetOrderMatters(true)

	return opts
}
