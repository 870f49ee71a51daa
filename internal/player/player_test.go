package player

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/mqtt-recorder/internal/dispatch"
	"github.com/nerrad567/mqtt-recorder/internal/recorder"
	"github.com/nerrad567/mqtt-recorder/internal/recordlog"
)

type publishCall struct {
	topic   string
	payload string
	at      time.Time
}

// mockSession records publishes.
type mockSession struct {
	mu           sync.Mutex
	connected    bool
	startErr     error
	waitErr      error
	starts       int
	disconnects  int
	publishes    []publishCall
	failPublishN int
}

func (s *mockSession) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *mockSession) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
	if s.startErr != nil {
		return s.startErr
	}
	s.connected = true
	return nil
}

func (s *mockSession) WaitConnected(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waitErr
}

func (s *mockSession) Publish(topic string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPublishN > 0 && len(s.publishes)+1 == s.failPublishN {
		return errors.New("session: not connected")
	}
	s.publishes = append(s.publishes, publishCall{topic, string(payload), time.Now()})
	return nil
}

func (s *mockSession) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.disconnects++
}

func newPlayer(sess Session) *Player {
	return New(sess, WithGracePeriod(0))
}

// =============================================================================
// Replay Tests
// =============================================================================

func TestReplay_PublishesVerbatim(t *testing.T) {
	sess := &mockSession{connected: true}
	input := "1700000000.0\ta/b\thello world\n1700000001.0\ta/c\t{\"v\":1}\n"

	n, err := newPlayer(sess).Replay(context.Background(), strings.NewReader(input), false)
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Replay() = %d, want 2", n)
	}

	want := []publishCall{{topic: "a/b", payload: "hello world"}, {topic: "a/c", payload: `{"v":1}`}}
	for i, w := range want {
		if sess.publishes[i].topic != w.topic || sess.publishes[i].payload != w.payload {
			t.Errorf("publish %d = (%q, %q), want (%q, %q)",
				i, sess.publishes[i].topic, sess.publishes[i].payload, w.topic, w.payload)
		}
	}
	if sess.disconnects != 1 {
		t.Errorf("Disconnect() called %d times, want 1", sess.disconnects)
	}
	if sess.starts != 0 {
		t.Errorf("Start() called %d times on a connected session", sess.starts)
	}
}

func TestReplay_SkipsMalformedLines(t *testing.T) {
	sess := &mockSession{connected: true}
	input := "0.0\ta\tb\nbadline\n1.0\tc\td\n"

	n, err := newPlayer(sess).Replay(context.Background(), strings.NewReader(input), false)
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if n != 2 || len(sess.publishes) != 2 {
		t.Fatalf("Replay() = %d with %d publishes, want 2", n, len(sess.publishes))
	}
	if sess.publishes[0].topic != "a" || sess.publishes[1].topic != "c" {
		t.Errorf("published topics = %q, %q, want a, c", sess.publishes[0].topic, sess.publishes[1].topic)
	}
}

func TestReplay_InvalidTimestampIsFatal(t *testing.T) {
	sess := &mockSession{connected: true}
	input := "0.0\ta\tb\nnot-a-number\tc\td\n2.0\te\tf\n"

	n, err := newPlayer(sess).Replay(context.Background(), strings.NewReader(input), false)
	if !errors.Is(err, recordlog.ErrInvalidTimestamp) {
		t.Fatalf("Replay() error = %v, want ErrInvalidTimestamp", err)
	}

	var parseErr *recordlog.ParseError
	if !errors.As(err, &parseErr) || parseErr.Line != 2 {
		t.Errorf("Replay() error = %v, want *ParseError on line 2", err)
	}
	if n != 1 {
		t.Errorf("Replay() sent %d before failing, want 1", n)
	}
	if sess.disconnects != 0 {
		t.Error("session disconnected after a fatal parse error")
	}
}

func TestReplay_PreservesTiming(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test sleeps 2.5s")
	}

	sess := &mockSession{connected: true}
	input := "0.0\ta\t1\n2.5\tb\t2\n2.5\tc\t3\n"

	start := time.Now()
	n, err := newPlayer(sess).Replay(context.Background(), strings.NewReader(input), true)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if n != 3 {
		t.Fatalf("Replay() = %d, want 3", n)
	}

	if elapsed < 2400*time.Millisecond || elapsed > 3500*time.Millisecond {
		t.Errorf("elapsed = %v, want about 2.5s", elapsed)
	}
	if gap := sess.publishes[2].at.Sub(sess.publishes[1].at); gap > 200*time.Millisecond {
		t.Errorf("equal timestamps waited %v, want no wait", gap)
	}
}

func TestReplay_ClockRegressionDoesNotWait(t *testing.T) {
	sess := &mockSession{connected: true}
	input := "100.0\ta\t1\n50.0\tb\t2\n50.05\tc\t3\n"

	start := time.Now()
	n, err := newPlayer(sess).Replay(context.Background(), strings.NewReader(input), true)
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Replay() = %d, want 3", n)
	}
	// Only the final 50ms gap is slept.
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("elapsed = %v, negative gap was slept", elapsed)
	}
}

func TestReplay_WithoutTimingIsImmediate(t *testing.T) {
	sess := &mockSession{connected: true}
	input := "0.0\ta\t1\n3600.0\tb\t2\n"

	start := time.Now()
	if _, err := newPlayer(sess).Replay(context.Background(), strings.NewReader(input), false); err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("elapsed = %v without preserved timing", elapsed)
	}
}

func TestReplay_StartsDisconnectedSession(t *testing.T) {
	sess := &mockSession{}

	if _, err := newPlayer(sess).Replay(context.Background(), strings.NewReader("0\ta\tb\n"), false); err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if sess.starts != 1 {
		t.Errorf("Start() called %d times, want 1", sess.starts)
	}
}

func TestReplay_SessionErrors(t *testing.T) {
	startErr := errors.New("connection refused")
	waitErr := errors.New("session: timed out waiting for connection")

	tests := []struct {
		name    string
		sess    *mockSession
		wantErr error
	}{
		{name: "start fails", sess: &mockSession{startErr: startErr}, wantErr: startErr},
		{name: "connect times out", sess: &mockSession{connected: true, waitErr: waitErr}, wantErr: waitErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := newPlayer(tt.sess).Replay(context.Background(), strings.NewReader("0\ta\tb\n"), false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Replay() error = %v, want %v", err, tt.wantErr)
			}
			if n != 0 || len(tt.sess.publishes) != 0 {
				t.Errorf("published %d messages before connecting", len(tt.sess.publishes))
			}
		})
	}
}

func TestReplay_PublishFailureStops(t *testing.T) {
	sess := &mockSession{connected: true, failPublishN: 2}
	input := "0\ta\t1\n1\tb\t2\n2\tc\t3\n"

	n, err := newPlayer(sess).Replay(context.Background(), strings.NewReader(input), false)
	if err == nil {
		t.Fatal("Replay() error = nil, want publish failure")
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("Replay() error = %v, want line number", err)
	}
	if n != 1 {
		t.Errorf("Replay() = %d, want 1", n)
	}
}

func TestReplay_ContextCancelledDuringSleep(t *testing.T) {
	sess := &mockSession{connected: true}
	input := "0.0\ta\t1\n60.0\tb\t2\n"

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	n, err := newPlayer(sess).Replay(ctx, strings.NewReader(input), true)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Replay() error = %v, want context.DeadlineExceeded", err)
	}
	if n != 1 {
		t.Errorf("Replay() = %d, want 1", n)
	}
}

func TestReplay_GracePeriod(t *testing.T) {
	sess := &mockSession{connected: true}
	p := New(sess, WithGracePeriod(100*time.Millisecond))

	start := time.Now()
	if _, err := p.Replay(context.Background(), strings.NewReader("0\ta\tb\n"), false); err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("disconnected after %v, want at least the grace period", elapsed)
	}
	if sess.disconnects != 1 {
		t.Errorf("Disconnect() called %d times, want 1", sess.disconnects)
	}
}

func TestReplay_EscapedLog(t *testing.T) {
	var buf bytes.Buffer
	w := recordlog.NewWriter(&buf)
	_ = w.Write(recordlog.Record{Time: time.Unix(0, 0), Topic: "a/b", Payload: "line1\nline2\tend"})
	_ = w.Flush()

	sess := &mockSession{connected: true}
	if _, err := newPlayer(sess).Replay(context.Background(), &buf, false); err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if len(sess.publishes) != 1 || sess.publishes[0].payload != "line1\nline2\tend" {
		t.Errorf("publishes = %+v, want unescaped payload", sess.publishes)
	}
}

// =============================================================================
// Play Tests
// =============================================================================

func TestPlay_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.log")
	if err := os.WriteFile(path, []byte("0\ta\tb\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	sess := &mockSession{connected: true}
	n, err := newPlayer(sess).Play(context.Background(), path, false)
	if err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Play() = %d, want 1", n)
	}
}

func TestPlayFiles_Sequential(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.log")
	second := filepath.Join(dir, "second.log")
	_ = os.WriteFile(first, []byte("0\ta\t1\n1\tb\t2\n"), 0o644)
	_ = os.WriteFile(second, []byte("0\tc\t3\n"), 0o644)

	sess := &mockSession{connected: true}
	n, err := newPlayer(sess).PlayFiles(context.Background(), []string{first, second}, false)
	if err != nil {
		t.Fatalf("PlayFiles() error = %v", err)
	}
	if n != 3 {
		t.Errorf("PlayFiles() = %d, want 3", n)
	}
	if sess.publishes[2].topic != "c" {
		t.Errorf("last topic = %q, want c", sess.publishes[2].topic)
	}
	if sess.disconnects != 1 {
		t.Errorf("Disconnect() called %d times, want 1", sess.disconnects)
	}
}

func TestPlay_MissingFile(t *testing.T) {
	sess := &mockSession{connected: true}

	_, err := newPlayer(sess).Play(context.Background(), filepath.Join(t.TempDir(), "nope.log"), false)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Play() error = %v, want os.ErrNotExist", err)
	}
}

func TestNew_DefaultGracePeriod(t *testing.T) {
	p := New(&mockSession{})
	if p.grace != DefaultGracePeriod {
		t.Errorf("grace = %v, want %v", p.grace, DefaultGracePeriod)
	}
}

func TestPlay_RecordedLargePayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.log")
	rec, err := recorder.Open(path)
	if err != nil {
		t.Fatalf("recorder.Open() error = %v", err)
	}
	big := bytes.Repeat([]byte("x"), 5<<20)
	for _, msg := range []dispatch.Message{
		{Topic: "a/small", Payload: []byte("small")},
		{Topic: "a/big", Payload: big},
		{Topic: "a/after", Payload: []byte("after")},
	} {
		if err := rec.Handle(msg); err != nil {
			t.Fatalf("Handle(%q) error = %v", msg.Topic, err)
		}
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	sess := &mockSession{connected: true}
	n, err := newPlayer(sess).Play(context.Background(), path, false)
	if err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if n != 3 {
		t.Fatalf("Play() = %d, want 3", n)
	}
	if sess.publishes[1].topic != "a/big" || len(sess.publishes[1].payload) != len(big) {
		t.Errorf("publish 1 = %q with %d bytes, want a/big with %d",
			sess.publishes[1].topic, len(sess.publishes[1].payload), len(big))
	}
	if sess.publishes[2].payload != "after" {
		t.Errorf("publish 2 payload = %q, want after", sess.publishes[2].payload)
	}
}
