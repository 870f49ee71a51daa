package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/mqtt-recorder/internal/archive"
	"github.com/nerrad567/mqtt-recorder/internal/auth"
	"github.com/nerrad567/mqtt-recorder/internal/infrastructure/config"
	"github.com/nerrad567/mqtt-recorder/internal/infrastructure/logging"
	"github.com/nerrad567/mqtt-recorder/internal/session"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

type mockSession struct {
	state session.State
}

func (m *mockSession) State() session.State { return m.state }

type mockCounter struct {
	n int64
}

func (m *mockCounter) Count() int64 { return m.n }

type mockArchive struct {
	mu       sync.Mutex
	msgs     []archive.Message
	err      error
	pattern  string
	limit    int
	countErr error
}

func (m *mockArchive) Count(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return 0, m.countErr
	}
	return int64(len(m.msgs)), nil
}

func (m *mockArchive) Recent(_ context.Context, pattern string, limit int) ([]archive.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pattern = pattern
	m.limit = limit
	if m.err != nil {
		return nil, m.err
	}
	return m.msgs, nil
}

func testConfig() config.APIConfig {
	return config.APIConfig{
		Enabled: true,
		Host:    "127.0.0.1",
		Port:    0,
		Timeouts: config.APITimeoutConfig{
			Read:  5,
			Write: 5,
			Idle:  5,
		},
		WebSocket: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
	}
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

// testServer creates a Server with mock dependencies behind an httptest listener.
func testServer(t *testing.T, deps Deps) (*Server, *httptest.Server) {
	t.Helper()

	if deps.Logger == nil {
		deps.Logger = testLogger()
	}
	if deps.Session == nil {
		deps.Session = &mockSession{state: session.StateConnected}
	}
	if deps.Config.Host == "" {
		deps.Config = testConfig()
	}
	deps.Version = "test"

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go srv.hub.Run(ctx)

	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})
	return srv, ts
}

func getJSON(t *testing.T, url, token string, v any) int {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestNew_RequiredDeps(t *testing.T) {
	if _, err := New(Deps{Session: &mockSession{}}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: testLogger()}); err == nil {
		t.Error("New() without session should fail")
	}
}

func TestHealth(t *testing.T) {
	_, ts := testServer(t, Deps{})

	var body map[string]any
	if code := getJSON(t, ts.URL+"/api/v1/health", "", &body); code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
}

func TestRequestID(t *testing.T) {
	_, ts := testServer(t, Deps{})

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want echoed value", got)
	}

	resp, err = http.Get(ts.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("X-Request-ID should be generated")
	}
}

func TestStatus(t *testing.T) {
	t.Run("full", func(t *testing.T) {
		arch := &mockArchive{msgs: make([]archive.Message, 4)}
		_, ts := testServer(t, Deps{
			Session:  &mockSession{state: session.StateConnected},
			Recorder: &mockCounter{n: 42},
			Archive:  arch,
		})

		var body statusResponse
		if code := getJSON(t, ts.URL+"/api/v1/status", "", &body); code != http.StatusOK {
			t.Fatalf("status = %d, want 200", code)
		}
		if body.Session != "connected" {
			t.Errorf("Session = %q, want connected", body.Session)
		}
		if body.Recorded == nil || *body.Recorded != 42 {
			t.Errorf("Recorded = %v, want 42", body.Recorded)
		}
		if body.Archived == nil || *body.Archived != 4 {
			t.Errorf("Archived = %v, want 4", body.Archived)
		}
		if body.Feed.Clients != 0 || body.Feed.Dropped != 0 {
			t.Errorf("Feed = %+v, want idle", body.Feed)
		}
	})

	t.Run("playback only", func(t *testing.T) {
		_, ts := testServer(t, Deps{Session: &mockSession{state: session.StateConnecting}})

		var body map[string]any
		getJSON(t, ts.URL+"/api/v1/status", "", &body)
		if body["session"] != "connecting" {
			t.Errorf("session = %v, want connecting", body["session"])
		}
		if _, ok := body["recorded"]; ok {
			t.Error("recorded should be omitted without a recorder")
		}
		if _, ok := body["archived"]; ok {
			t.Error("archived should be omitted without an archive")
		}
	})

	t.Run("archive count failure", func(t *testing.T) {
		_, ts := testServer(t, Deps{Archive: &mockArchive{countErr: errors.New("locked")}})

		var body map[string]any
		if code := getJSON(t, ts.URL+"/api/v1/status", "", &body); code != http.StatusOK {
			t.Fatalf("status = %d, want 200", code)
		}
		if _, ok := body["archived"]; ok {
			t.Error("archived should be omitted when counting fails")
		}
	})
}

func TestMessages(t *testing.T) {
	t.Run("archive disabled", func(t *testing.T) {
		_, ts := testServer(t, Deps{})
		if code := getJSON(t, ts.URL+"/api/v1/messages", "", nil); code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", code)
		}
	})

	arch := &mockArchive{msgs: []archive.Message{
		{ReceivedAt: time.Unix(1700000000, 0).UTC(), Topic: "home/a/temp", Payload: "21.5"},
	}}
	_, ts := testServer(t, Deps{Archive: arch})

	tests := []struct {
		name        string
		query       string
		wantStatus  int
		wantPattern string
		wantLimit   int
	}{
		{"defaults", "", http.StatusOK, "", defaultMessageLimit},
		{"pattern and limit", "?topic=home/%2B/temp&limit=5", http.StatusOK, "home/+/temp", 5},
		{"hash pattern", "?topic=%23", http.StatusOK, "#", defaultMessageLimit},
		{"limit too large", "?limit=5000", http.StatusBadRequest, "", 0},
		{"limit zero", "?limit=0", http.StatusBadRequest, "", 0},
		{"limit not a number", "?limit=ten", http.StatusBadRequest, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body struct {
				Messages []archive.Message `json:"messages"`
				Count    int               `json:"count"`
			}
			code := getJSON(t, ts.URL+"/api/v1/messages"+tt.query, "", &body)
			if code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", code, tt.wantStatus)
			}
			if code != http.StatusOK {
				return
			}

			arch.mu.Lock()
			pattern, limit := arch.pattern, arch.limit
			arch.mu.Unlock()
			if pattern != tt.wantPattern || limit != tt.wantLimit {
				t.Errorf("Recent(%q, %d), want (%q, %d)", pattern, limit, tt.wantPattern, tt.wantLimit)
			}
			if body.Count != 1 || body.Messages[0].Topic != "home/a/temp" {
				t.Errorf("body = %+v", body)
			}
		})
	}

	t.Run("query failure", func(t *testing.T) {
		_, ts := testServer(t, Deps{Archive: &mockArchive{err: errors.New("disk I/O error")}})
		if code := getJSON(t, ts.URL+"/api/v1/messages", "", nil); code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", code)
		}
	})
}

func TestAuth(t *testing.T) {
	cfg := testConfig()
	cfg.JWT.Secret = testSecret
	_, ts := testServer(t, Deps{Config: cfg})

	valid, err := auth.GenerateToken("test", testSecret, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	forged, err := auth.GenerateToken("test", "some-other-secret", time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	tests := []struct {
		name   string
		path   string
		token  string
		header string
		want   int
	}{
		{"health is open", "/api/v1/health", "", "", http.StatusOK},
		{"status without token", "/api/v1/status", "", "", http.StatusUnauthorized},
		{"status with token", "/api/v1/status", valid, "", http.StatusOK},
		{"status with forged token", "/api/v1/status", forged, "", http.StatusUnauthorized},
		{"query parameter token", "/api/v1/status?token=" + valid, "", "", http.StatusOK},
		{"non-bearer scheme", "/api/v1/status", "", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, ts.URL+tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			resp.Body.Close()

			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if tt.want == http.StatusUnauthorized && resp.Header.Get("WWW-Authenticate") == "" {
				t.Error("401 without WWW-Authenticate header")
			}
		})
	}
}

func TestStartClose(t *testing.T) {
	srv, err := New(Deps{
		Config:  testConfig(),
		Logger:  testLogger(),
		Session: &mockSession{state: session.StateConnected},
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := srv.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}
	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	var body map[string]any
	if code := getJSON(t, "http://"+srv.Addr()+"/api/v1/health", "", &body); code != http.StatusOK {
		t.Errorf("status = %d, want 200", code)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() after Close should fail")
	}
}

func TestStart_PortInUse(t *testing.T) {
	first, err := New(Deps{Config: testConfig(), Logger: testLogger(), Session: &mockSession{}})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer first.Close()

	cfg := testConfig()
	_, port, err := net.SplitHostPort(first.Addr())
	if err != nil {
		t.Fatalf("SplitHostPort(%q): %v", first.Addr(), err)
	}
	if cfg.Port, err = strconv.Atoi(port); err != nil {
		t.Fatalf("Atoi(%q): %v", port, err)
	}

	second, err := New(Deps{Config: cfg, Logger: testLogger(), Session: &mockSession{}})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Close()
		t.Error("Start() on a bound port should fail")
	}
}

// =============================================================================
// WebSocket Tests
// =============================================================================

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
}

// connectWebSocket dials the live feed and subscribes to patterns.
func connectWebSocket(t *testing.T, ts *httptest.Server, patterns ...string) *websocket.Conn {
	t.Helper()

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	if err != nil {
		t.Fatalf("websocket connect failed: %v", err)
	}
	t.Cleanup(func() { ws.Close() })

	if len(patterns) > 0 {
		if err := ws.WriteJSON(Frame{Type: FrameSubscribe, ID: "sub-1", Patterns: patterns}); err != nil {
			t.Fatalf("write subscribe frame: %v", err)
		}
		if ack := readFrame(t, ws); ack.Type != FrameAck || ack.ID != "sub-1" {
			t.Fatalf("subscribe answer = %+v, want ack", ack)
		}
	}
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) Frame {
	t.Helper()

	ws.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // Test deadline
	var f Frame
	if err := ws.ReadJSON(&f); err != nil {
		t.Fatalf("read websocket frame: %v", err)
	}
	return f
}

func TestWebSocket_StreamsMatchingMessages(t *testing.T) {
	srv, ts := testServer(t, Deps{})
	ws := connectWebSocket(t, ts, "home/+/temp")

	if n := srv.hub.ClientCount(); n != 1 {
		t.Errorf("hub client count = %d, want 1", n)
	}

	at := time.Unix(1700000000, 0).UTC()
	srv.hub.WriteMessage(at, "office/temp", []byte("skip"), 0, false)      //nolint:errcheck // Never fails
	srv.hub.WriteMessage(at, "home/kitchen/temp", []byte("21.5"), 1, true) //nolint:errcheck // Never fails

	f := readFrame(t, ws)
	if f.Type != FrameEvent || f.Event != EventMessage || f.Message == nil {
		t.Fatalf("frame = %+v, want message event", f)
	}
	want := MessageEvent{ReceivedAt: at, Topic: "home/kitchen/temp", Payload: "21.5", QoS: 1, Retained: true}
	if !f.Message.ReceivedAt.Equal(want.ReceivedAt) || f.Message.Topic != want.Topic ||
		f.Message.Payload != want.Payload || f.Message.QoS != want.QoS || f.Message.Retained != want.Retained {
		t.Errorf("message = %+v, want %+v", *f.Message, want)
	}

	if err := srv.hub.Close(); err != nil {
		t.Fatalf("hub Close() error = %v", err)
	}
	if f := readFrame(t, ws); f.Event != EventSessionEnded {
		t.Errorf("event = %q, want %q", f.Event, EventSessionEnded)
	}
}

func TestWebSocket_Unsubscribe(t *testing.T) {
	srv, ts := testServer(t, Deps{})
	ws := connectWebSocket(t, ts, "b/#", "a/#")

	if err := ws.WriteJSON(Frame{Type: FrameUnsubscribe, ID: "unsub-1", Patterns: []string{"a/#"}}); err != nil {
		t.Fatalf("write unsubscribe: %v", err)
	}
	ack := readFrame(t, ws)
	if ack.Type != FrameAck || ack.ID != "unsub-1" {
		t.Fatalf("unsubscribe answer = %+v", ack)
	}
	if len(ack.Patterns) != 1 || ack.Patterns[0] != "b/#" {
		t.Errorf("remaining patterns = %v, want [b/#]", ack.Patterns)
	}

	srv.hub.WriteMessage(time.Now(), "a/x", []byte("1"), 0, false) //nolint:errcheck // Never fails
	srv.hub.WriteMessage(time.Now(), "b/x", []byte("2"), 0, false) //nolint:errcheck // Never fails

	if f := readFrame(t, ws); f.Message == nil || f.Message.Topic != "b/x" {
		t.Errorf("first event = %+v, want b/x", f)
	}
}

func TestWebSocket_ClientFrames(t *testing.T) {
	_, ts := testServer(t, Deps{})
	ws := connectWebSocket(t, ts)

	tests := []struct {
		name     string
		send     string
		wantType string
	}{
		{"invalid json", "not json", FrameError},
		{"ping", `{"type":"ping","id":"p1"}`, FramePong},
		{"unknown type", `{"type":"publish","id":"x"}`, FrameError},
		{"no patterns", `{"type":"subscribe","id":"s"}`, FrameError},
		{"blank pattern", `{"type":"subscribe","id":"s","patterns":[""]}`, FrameError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ws.WriteMessage(websocket.TextMessage, []byte(tt.send)); err != nil {
				t.Fatalf("write: %v", err)
			}
			if f := readFrame(t, ws); f.Type != tt.wantType {
				t.Errorf("answer type = %q, want %q", f.Type, tt.wantType)
			}
		})
	}
}

func TestWebSocket_RequiresToken(t *testing.T) {
	cfg := testConfig()
	cfg.JWT.Secret = testSecret
	_, ts := testServer(t, Deps{Config: cfg})

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	if err == nil {
		t.Fatal("dial without token should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v, want 401", resp)
	}

	token, err := auth.GenerateToken("test", testSecret, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	ws, _, err := websocket.DefaultDialer.Dial(wsURL(ts)+"?token="+token, nil)
	if err != nil {
		t.Fatalf("dial with token: %v", err)
	}
	ws.Close()
}

func TestHub_ShutdownDisconnectsClients(t *testing.T) {
	srv, ts := testServer(t, Deps{})
	ws := connectWebSocket(t, ts, "#")

	srv.hub.closeAll()

	ws.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // Test deadline
	if _, _, err := ws.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("read after hub shutdown error = %v, want going-away close", err)
	}
	if n := srv.hub.ClientCount(); n != 0 {
		t.Errorf("hub client count = %d, want 0", n)
	}
	if srv.hub.register(newFeedClient(srv.hub, nil)) {
		t.Error("register() after shutdown should report false")
	}
}

func TestHub_DropsForSlowClients(t *testing.T) {
	hub := NewHub(testConfig().WebSocket, testLogger())
	c := newFeedClient(hub, nil)
	c.filter.add([]string{"#"})
	if !hub.register(c) {
		t.Fatal("register() = false")
	}

	// Nothing drains c.out, so everything past the queue is dropped.
	for i := 0; i < clientQueue+10; i++ {
		hub.WriteMessage(time.Now(), "a", []byte("x"), 0, false) //nolint:errcheck // Never fails
	}

	if got := hub.Dropped(); got != 10 {
		t.Errorf("Dropped() = %d, want 10", got)
	}
	if got := len(c.out); got != clientQueue {
		t.Errorf("queued = %d, want %d", got, clientQueue)
	}
}

func TestHub_WithoutClients(t *testing.T) {
	hub := NewHub(testConfig().WebSocket, testLogger())
	if err := hub.WriteMessage(time.Now(), "a", nil, 0, false); err != nil {
		t.Errorf("WriteMessage() error = %v", err)
	}
	if err := hub.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestPatternSet(t *testing.T) {
	s := patternSet{patterns: make(map[string]struct{})}
	s.add([]string{"home/+/temp", "alarm/#", "home/+/temp"})

	tests := []struct {
		topic string
		want  bool
	}{
		{"home/kitchen/temp", true},
		{"alarm/front/door", true},
		{"home/kitchen/humidity", false},
		{"office/temp", false},
	}
	for _, tt := range tests {
		if got := s.match(tt.topic); got != tt.want {
			t.Errorf("match(%q) = %v, want %v", tt.topic, got, tt.want)
		}
	}

	s.remove([]string{"alarm/#"})
	if s.match("alarm/front/door") {
		t.Error("match after remove = true")
	}
	if got := s.list(); len(got) != 1 || got[0] != "home/+/temp" {
		t.Errorf("list() = %v, want [home/+/temp]", got)
	}
}
