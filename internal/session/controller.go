package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/mqtt-recorder/internal/dispatch"
	"github.com/nerrad567/mqtt-recorder/internal/infrastructure/mqtt"
)

// Transport is the broker connection a Controller drives.
// *mqtt.Client satisfies it.
type Transport interface {
	Connect(ctx context.Context) error
	Subscribe(pattern string, qos byte) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Disconnect()
	SetOnMessage(handler mqtt.MessageHandler)
	SetOnConnectionLost(callback func(err error))
}

type eventKind int

const (
	eventConnected eventKind = iota
	eventMessage
	eventSubscribed
	eventConnectionLost
)

type event struct {
	kind    eventKind
	msg     dispatch.Message
	pattern string
	qos     byte
	err     error
}

// Controller runs one broker session.
//
// Thread Safety:
//   - State, IsConnected, Publish, WaitConnected, Disconnect, Done and Err are
//     safe for concurrent use.
//   - Handlers in the registry run only on the loop goroutine.
type Controller struct {
	transport Transport
	registry  *dispatch.Registry
	logger    Logger

	publishQoS     byte
	connectTimeout time.Duration

	state  atomic.Int32
	events chan event

	connected     chan struct{}
	connectedOnce sync.Once

	stop     chan struct{}
	stopOnce sync.Once

	done       chan struct{}
	finishOnce sync.Once

	mu      sync.Mutex
	started bool
	err     error
	closers []io.Closer
}

// New creates a controller for transport and registers ControlTopic in reg.
//
// Call New before registering other patterns so that the control topic is
// matched ahead of catch-all patterns such as "#".
func New(transport Transport, reg *dispatch.Registry, opts ...Option) (*Controller, error) {
	c := &Controller{
		transport:      transport,
		registry:       reg,
		logger:         nopLogger{},
		connectTimeout: DefaultConnectTimeout,
		events:         make(chan event, eventBuffer),
		connected:      make(chan struct{}),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := reg.Register(ControlTopic, 0, &controlHandler{c: c}); err != nil {
		return nil, fmt.Errorf("registering control topic: %w", err)
	}

	transport.SetOnMessage(c.onMessage)
	transport.SetOnConnectionLost(c.onConnectionLost)

	return c, nil
}

// AddCloser registers a resource to close when the session ends.
// Closers run on the loop goroutine after the transport is disconnected.
func (c *Controller) AddCloser(closer io.Closer) {
	c.mu.Lock()
	c.closers = append(c.closers, closer)
	c.mu.Unlock()
}

// Run connects and services the event loop on the calling goroutine until
// the session ends. It returns nil after a requested disconnect.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.begin(); err != nil {
		return err
	}
	if err := c.connect(ctx); err != nil {
		return err
	}

	c.loop(ctx)
	return c.Err()
}

// Start connects and services the event loop in a background goroutine.
// Calling Start on a live session is a no-op.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.begin(); err != nil {
		if errors.Is(err, ErrAlreadyStarted) && !c.closed() {
			return nil
		}
		if errors.Is(err, ErrAlreadyStarted) {
			return ErrSessionClosed
		}
		return err
	}
	if err := c.connect(ctx); err != nil {
		return err
	}

	go c.loop(ctx)
	return nil
}

// begin marks the session as started.
func (c *Controller) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.stop:
		return ErrSessionClosed
	default:
	}
	if c.started {
		return ErrAlreadyStarted
	}
	c.started = true
	return nil
}

func (c *Controller) connect(ctx context.Context) error {
	c.state.Store(int32(StateConnecting))
	c.logger.Info("connecting to MQTT broker")

	if err := c.transport.Connect(ctx); err != nil {
		c.finish(err)
		return err
	}

	// Connect returns once the CONNACK has arrived.
	c.post(event{kind: eventConnected})
	return nil
}

// Publish sends payload to topic with the configured QoS.
// Messages are not queued: before CONNACK or after disconnect it fails.
func (c *Controller) Publish(topic string, payload []byte) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := c.transport.Publish(topic, payload, c.publishQoS, false); err != nil {
		return fmt.Errorf("publishing to %q: %w", topic, err)
	}
	return nil
}

// Disconnect ends the session and waits for the loop to close its resources.
// It is safe to call more than once and before the session has started, but
// not from a registry handler, which runs on the loop it would wait for.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	started := c.started
	c.requestStop()
	c.mu.Unlock()

	if !started {
		c.finish(nil)
	}
	<-c.done
}

// requestStop signals the loop to exit without waiting for it.
func (c *Controller) requestStop() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

// WaitConnected blocks until the CONNACK has been processed, the session
// ends, the connect timeout elapses or ctx is cancelled.
func (c *Controller) WaitConnected(ctx context.Context) error {
	select {
	case <-c.connected:
		return nil
	default:
	}

	timer := time.NewTimer(c.connectTimeout)
	defer timer.Stop()

	select {
	case <-c.connected:
		return nil
	case <-c.done:
		if err := c.Err(); err != nil {
			return err
		}
		return ErrSessionClosed
	case <-timer.C:
		return fmt.Errorf("%w after %v", ErrConnectTimeout, c.connectTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current connection state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// IsConnected reports whether the session is connected.
func (c *Controller) IsConnected() bool {
	return c.State() == StateConnected
}

// Done is closed when the session has ended and its resources are closed.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that ended the session, or nil for a requested
// disconnect or a session that is still running.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Controller) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// onMessage runs on the transport's delivery goroutine.
func (c *Controller) onMessage(topic string, payload []byte, qos byte, retained bool) {
	c.post(event{
		kind: eventMessage,
		msg: dispatch.Message{
			Topic:    topic,
			Payload:  payload,
			QoS:      qos,
			Retained: retained,
		},
	})
}

// onConnectionLost runs on a transport goroutine.
func (c *Controller) onConnectionLost(err error) {
	c.post(event{kind: eventConnectionLost, err: err})
}

// post hands ev to the loop, dropping it once the session has ended.
func (c *Controller) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Controller) loop(ctx context.Context) {
	var cause error
	defer func() {
		c.finish(cause)
	}()

	for {
		// A pending stop takes priority over queued deliveries.
		select {
		case <-c.stop:
			c.logger.Info("disconnecting")
			return
		default:
		}

		select {
		case ev := <-c.events:
			if err := c.handleEvent(ev); err != nil {
				cause = err
				return
			}
		case <-c.stop:
			c.logger.Info("disconnecting")
			return
		case <-ctx.Done():
			c.logger.Info("shutdown requested")
			return
		}
	}
}

// handleEvent processes one event. A non-nil error ends the session.
func (c *Controller) handleEvent(ev event) error {
	switch ev.kind {
	case eventConnected:
		c.registry.Freeze()
		c.state.Store(int32(StateConnected))
		c.connectedOnce.Do(func() {
			close(c.connected)
		})
		c.logger.Info("connected to MQTT broker")
		go c.subscribeAll(c.registry.Subscriptions())

	case eventSubscribed:
		if ev.err != nil {
			c.logger.Error("subscribe failed", "pattern", ev.pattern, "qos", ev.qos, "error", ev.err)
			return nil
		}
		c.logger.Info("subscribed", "pattern", ev.pattern, "qos", ev.qos)

	case eventMessage:
		c.dispatch(ev.msg)

	case eventConnectionLost:
		c.logger.Error("connection lost", "error", ev.err)
		return &ConnectionError{Err: ev.err}
	}
	return nil
}

// subscribeAll issues subscriptions off the loop so that SUBACK waits do
// not stall delivery.
func (c *Controller) subscribeAll(subs []dispatch.Subscription) {
	for _, sub := range subs {
		err := c.transport.Subscribe(sub.Pattern, sub.QoS)
		c.post(event{
			kind:    eventSubscribed,
			pattern: sub.Pattern,
			qos:     sub.QoS,
			err:     err,
		})
	}
}

func (c *Controller) dispatch(msg dispatch.Message) {
	h := c.registry.Resolve(msg.Topic)
	if h == nil {
		c.logger.Debug("no handler for topic", "topic", msg.Topic)
		return
	}

	if err := h.Handle(msg); err != nil {
		c.logger.Error("handler failed",
			"topic", msg.Topic,
			"handler", h.Kind().String(),
			"error", err,
		)
	}
}

// finish tears the session down exactly once.
func (c *Controller) finish(cause error) {
	c.finishOnce.Do(func() {
		c.state.Store(int32(StateDisconnected))
		c.transport.Disconnect()

		c.mu.Lock()
		c.err = cause
		closers := c.closers
		c.closers = nil
		c.mu.Unlock()

		var errs []error
		for _, closer := range closers {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := errors.Join(errs...); err != nil {
			c.logger.Error("closing session resources", "error", err)
		}

		c.logger.Info("session ended")
		close(c.done)
	})
}
