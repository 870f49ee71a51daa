package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/mqtt-recorder/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang with recorder-specific functionality.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Callbacks must be set before Connect.
//   - Connect returning nil is the CONNACK; there is no separate connect callback.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions

	host           string
	port           int
	clientID       string
	connectTimeout time.Duration

	// connected tracks current connection state.
	connected bool
	connMu    sync.RWMutex

	// Callbacks for connection and delivery events.
	onMessage        MessageHandler
	onConnectionLost func(err error)
	callbackMu       sync.RWMutex

	// logger for error/panic logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler is the callback signature for delivered messages.
//
// It is invoked on paho's delivery goroutine, one message at a time.
type MessageHandler func(topic string, payload []byte, qos byte, retained bool)

// New creates a client for the broker named in cfg.mqtt_address.
//
// The client is not connected; set callbacks and call Connect.
func New(cfg *config.Config) (*Client, error) {
	host, port, err := cfg.Broker()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = generateClientID()
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	c := &Client{
		host:           host,
		port:           port,
		clientID:       clientID,
		connectTimeout: timeout,
	}

	opts := buildClientOptions(host, port, clientID, timeout)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})
	opts.SetDefaultPublishHandler(c.handleMessage)

	c.options = opts
	c.client = pahomqtt.NewClient(opts)
	return c, nil
}

// Connect dials the broker and waits for the CONNACK.
//
// Returns:
//   - error: wrapping ErrConnectionFailed on refusal or timeout, or the
//     context error if ctx ends first
func (c *Client) Connect(ctx context.Context) error {
	token := c.client.Connect()

	timer := time.NewTimer(c.connectTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-timer.C:
		return fmt.Errorf("%w: %w after %v", ErrConnectionFailed, ErrTimeout, c.connectTimeout)
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect handler runs asynchronously and may not have run yet.
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	return nil
}

// handleConnect is called by paho when the CONNACK has been received.
func (c *Client) handleConnect() {
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()
}

// handleConnectionLost is called by paho when an established connection drops.
func (c *Client) handleConnectionLost(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	c.callbackMu.RLock()
	callback := c.onConnectionLost
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// handleMessage forwards a delivery to OnMessage with panic recovery.
func (c *Client) handleMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	defer func() {
		if r := recover(); r != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Error("MQTT message handler panic recovered",
					"topic", msg.Topic(),
					"panic", r,
				)
			}
		}
	}()

	c.callbackMu.RLock()
	handler := c.onMessage
	c.callbackMu.RUnlock()
	if handler == nil {
		return
	}

	handler(msg.Topic(), msg.Payload(), msg.Qos(), msg.Retained())
}

// Disconnect closes the connection, waiting briefly for in-flight work.
// Calling it on a disconnected client is a no-op.
func (c *Client) Disconnect() {
	if c.client == nil {
		return
	}

	c.connMu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.connMu.Unlock()

	if wasConnected || c.client.IsConnected() {
		c.client.Disconnect(defaultDisconnectQuiesce)
	}
}

// HealthCheck verifies the MQTT connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// Address returns the broker address as host:port.
func (c *Client) Address() string {
	return fmt.Sprintf("%s:%d", c.host, c.port)
}

// ClientID returns the identifier presented to the broker.
func (c *Client) ClientID() string {
	return c.clientID
}

// SetOnMessage sets the callback for every delivered message.
func (c *Client) SetOnMessage(handler MessageHandler) {
	c.callbackMu.Lock()
	c.onMessage = handler
	c.callbackMu.Unlock()
}

// SetOnConnectionLost sets a callback to be invoked when the connection drops.
// It is not called after an explicit Disconnect.
func (c *Client) SetOnConnectionLost(callback func(err error)) {
	c.callbackMu.Lock()
	c.onConnectionLost = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for error and panic logging.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}
