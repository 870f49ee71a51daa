package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/mqtt-recorder/internal/infrastructure/config"
	"github.com/nerrad567/mqtt-recorder/internal/infrastructure/logging"
	"github.com/nerrad567/mqtt-recorder/internal/topic"
)

// Frame types on the live feed.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePing        = "ping"
	FramePong        = "pong"
	FrameAck         = "ack"
	FrameEvent       = "event"
	FrameError       = "error"
)

// Event names carried by FrameEvent.
const (
	EventMessage      = "message"
	EventSessionEnded = "session.ended"
)

// clientQueue is the per-client outbound buffer. A full queue drops frames.
const clientQueue = 256

// Frame is one JSON message on the feed, in either direction.
//
// Clients send {"type":"subscribe","id":"1","patterns":["home/#"]}; the hub
// answers with an ack and then streams {"type":"event","event":"message",...}.
type Frame struct {
	Type     string        `json:"type"`
	ID       string        `json:"id,omitempty"`
	Event    string        `json:"event,omitempty"`
	Time     string        `json:"time,omitempty"`
	Patterns []string      `json:"patterns,omitempty"`
	Message  *MessageEvent `json:"message,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// MessageEvent is one recorded message.
type MessageEvent struct {
	ReceivedAt time.Time `json:"received_at"`
	Topic      string    `json:"topic"`
	Payload    string    `json:"payload"`
	QoS        byte      `json:"qos"`
	Retained   bool      `json:"retained"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Access is controlled by the bearer token, not the origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub fans recorded messages out to WebSocket clients. It implements the
// recorder's mirror interface.
type Hub struct {
	logger    *logging.Logger
	readLimit int64
	pingEvery time.Duration
	pongWait  time.Duration

	mu      sync.RWMutex
	clients map[*feedClient]struct{}
	closed  bool

	dropped atomic.Int64
}

// NewHub creates a hub with the keepalive settings from cfg.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		logger:    logger,
		readLimit: int64(cfg.MaxMessageSize),
		pingEvery: time.Duration(cfg.PingInterval) * time.Second,
		pongWait:  time.Duration(cfg.PongTimeout) * time.Second,
		clients:   make(map[*feedClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// WriteMessage queues a recorded message for every client whose patterns
// match its topic. It never blocks and never fails.
func (h *Hub) WriteMessage(at time.Time, t string, payload []byte, qos byte, retained bool) error {
	var data []byte
	for _, c := range h.snapshot() {
		if !c.filter.match(t) {
			continue
		}
		if data == nil {
			data = encodeFrame(Frame{
				Type:  FrameEvent,
				Event: EventMessage,
				Time:  now(),
				Message: &MessageEvent{
					ReceivedAt: at,
					Topic:      t,
					Payload:    string(payload),
					QoS:        qos,
					Retained:   retained,
				},
			})
		}
		h.offer(c, data)
	}
	return nil
}

// Close is called when recording stops. Clients get a session.ended event
// and stay connected until the server shuts down.
func (h *Hub) Close() error {
	data := encodeFrame(Frame{Type: FrameEvent, Event: EventSessionEnded, Time: now()})
	for _, c := range h.snapshot() {
		h.offer(c, data)
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many frames were discarded for slow clients.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// register adds c. It reports false once the hub has shut down.
func (h *Hub) register(c *feedClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *feedClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.stop()
}

func (h *Hub) snapshot() []*feedClient {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*feedClient, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*feedClient]struct{})
	h.closed = true
	h.mu.Unlock()

	for c := range clients {
		c.stop()
	}
}

// offer queues data for c, dropping it when the client is behind.
func (h *Hub) offer(c *feedClient, data []byte) {
	select {
	case c.out <- data:
	default:
		if h.dropped.Add(1) == 1 {
			h.logger.Warn("websocket client too slow, dropping frames")
		}
	}
}

// handleWebSocket upgrades the request and attaches the client to the hub.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := newFeedClient(s.hub, conn)
	if !s.hub.register(c) {
		conn.Close()
		return
	}
	s.logger.Debug("websocket client connected", "clients", s.hub.ClientCount())

	go c.writeLoop()
	go c.readLoop()
}

// feedClient is one WebSocket connection.
type feedClient struct {
	hub    *Hub
	conn   *websocket.Conn
	out    chan []byte
	filter patternSet

	done     chan struct{}
	stopOnce sync.Once
}

func newFeedClient(h *Hub, conn *websocket.Conn) *feedClient {
	return &feedClient{
		hub:    h,
		conn:   conn,
		out:    make(chan []byte, clientQueue),
		filter: patternSet{patterns: make(map[string]struct{})},
		done:   make(chan struct{}),
	}
}

// stop ends writeLoop, which closes the connection.
func (c *feedClient) stop() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
}

func (c *feedClient) readLoop() {
	defer c.hub.unregister(c)

	deadline := func() {
		//nolint:errcheck // A failed deadline surfaces as a read error.
		c.conn.SetReadDeadline(time.Now().Add(c.hub.pingEvery + c.hub.pongWait))
	}

	c.conn.SetReadLimit(c.hub.readLimit)
	deadline()
	c.conn.SetPongHandler(func(string) error {
		deadline()
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		deadline()
		c.handleFrame(data)
	}
}

func (c *feedClient) writeLoop() {
	ping := time.NewTicker(c.hub.pingEvery)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		//nolint:errcheck // A failed deadline surfaces as a write error.
		c.conn.SetWriteDeadline(time.Now().Add(c.hub.pongWait))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data := <-c.out:
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			//nolint:errcheck // Best effort; the connection closes either way.
			write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
			return
		}
	}
}

// handleFrame answers one client frame.
func (c *feedClient) handleFrame(data []byte) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		c.reply(Frame{Type: FrameError, Error: "invalid JSON frame"})
		return
	}

	switch f.Type {
	case FrameSubscribe, FrameUnsubscribe:
		if len(f.Patterns) == 0 {
			c.reply(Frame{Type: FrameError, ID: f.ID, Error: f.Type + " needs at least one pattern"})
			return
		}
		for _, p := range f.Patterns {
			if p == "" {
				c.reply(Frame{Type: FrameError, ID: f.ID, Error: "patterns must not be empty"})
				return
			}
		}
		if f.Type == FrameSubscribe {
			c.filter.add(f.Patterns)
		} else {
			c.filter.remove(f.Patterns)
		}
		c.hub.logger.Debug("websocket "+f.Type, "patterns", f.Patterns)
		c.reply(Frame{Type: FrameAck, ID: f.ID, Patterns: c.filter.list()})

	case FramePing:
		c.reply(Frame{Type: FramePong, ID: f.ID})

	default:
		c.reply(Frame{Type: FrameError, ID: f.ID, Error: "unknown frame type: " + f.Type})
	}
}

func (c *feedClient) reply(f Frame) {
	f.Time = now()
	c.hub.offer(c, encodeFrame(f))
}

// patternSet is a client's subscription filter.
type patternSet struct {
	mu       sync.RWMutex
	patterns map[string]struct{}
}

func (s *patternSet) add(patterns []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range patterns {
		s.patterns[p] = struct{}{}
	}
}

func (s *patternSet) remove(patterns []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range patterns {
		delete(s.patterns, p)
	}
}

func (s *patternSet) match(t string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for p := range s.patterns {
		if topic.Matches(p, t) {
			return true
		}
	}
	return false
}

// list returns the current patterns in sorted order.
func (s *patternSet) list() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.patterns))
	for p := range s.patterns {
		out = append(out, p)
	}
	s.mu.RUnlock()

	slices.Sort(out)
	return out
}

func encodeFrame(f Frame) []byte {
	data, _ := json.Marshal(f) //nolint:errchkjson // Frame has no unmarshalable fields.
	return data
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
