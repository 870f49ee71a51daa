package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/nerrad567/mqtt-recorder/internal/recordlog"
)

// DefaultGracePeriod is the wait between the last publish and disconnect.
const DefaultGracePeriod = time.Second

// Session is the part of session.Controller the player drives.
type Session interface {
	IsConnected() bool
	Start(ctx context.Context) error
	WaitConnected(ctx context.Context) error
	Publish(topic string, payload []byte) error
	Disconnect()
}

// Logger is the logging interface used by the player.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}

// Option configures a Player.
type Option func(*Player)

// WithLogger sets the logger.
func WithLogger(logger Logger) Option {
	return func(p *Player) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithGracePeriod sets the wait before disconnecting. Zero disables it.
func WithGracePeriod(d time.Duration) Option {
	return func(p *Player) {
		if d >= 0 {
			p.grace = d
		}
	}
}

// Player republishes recorded messages.
type Player struct {
	sess   Session
	logger Logger
	grace  time.Duration
}

// New creates a Player that publishes through sess.
func New(sess Session, opts ...Option) *Player {
	p := &Player{
		sess:   sess,
		logger: nopLogger{},
		grace:  DefaultGracePeriod,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Play replays the log at path. See PlayFiles.
func (p *Player) Play(ctx context.Context, path string, preserveTiming bool) (int, error) {
	return p.PlayFiles(ctx, []string{path}, preserveTiming)
}

// PlayFiles replays each log in turn and returns the total number of
// messages sent. Timing is preserved within a file, not across files.
//
// The session is started if it is not connected, and PlayFiles waits for
// the connection before reading. On success the session is disconnected
// after the grace period. On error the session is left for the caller to close.
func (p *Player) PlayFiles(ctx context.Context, paths []string, preserveTiming bool) (int, error) {
	if err := p.connect(ctx); err != nil {
		return 0, err
	}

	sent := 0
	for _, path := range paths {
		n, err := p.playFile(ctx, path, preserveTiming)
		sent += n
		if err != nil {
			return sent, fmt.Errorf("%s: %w", path, err)
		}
	}

	return sent, p.finish(ctx, sent)
}

// Replay publishes every record read from r, like PlayFiles for a single stream.
func (p *Player) Replay(ctx context.Context, r io.Reader, preserveTiming bool) (int, error) {
	if err := p.connect(ctx); err != nil {
		return 0, err
	}

	sent, err := p.replay(ctx, r, preserveTiming)
	if err != nil {
		return sent, err
	}
	return sent, p.finish(ctx, sent)
}

func (p *Player) connect(ctx context.Context) error {
	if !p.sess.IsConnected() {
		if err := p.sess.Start(ctx); err != nil {
			return fmt.Errorf("starting session: %w", err)
		}
	}
	if err := p.sess.WaitConnected(ctx); err != nil {
		return fmt.Errorf("waiting for connection: %w", err)
	}
	return nil
}

func (p *Player) playFile(ctx context.Context, path string, preserveTiming bool) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening playback file: %w", err)
	}
	defer f.Close()

	p.logger.Info("playing back", "file", path, "preserve_timing", preserveTiming)
	return p.replay(ctx, f, preserveTiming)
}

func (p *Player) replay(ctx context.Context, r io.Reader, preserveTiming bool) (int, error) {
	reader := recordlog.NewReader(r, func(line int, text string, err error) {
		p.logger.Debug("skipping malformed line", "line", line, "text", text, "error", err)
	})

	var (
		sent int
		last time.Time
	)
	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return sent, nil
		}
		if err != nil {
			return sent, err
		}

		if sent > 0 && preserveTiming {
			if wait := rec.Time.Sub(last); wait > 0 {
				if err := sleep(ctx, wait); err != nil {
					return sent, err
				}
			}
		}
		last = rec.Time

		if err := p.sess.Publish(rec.Topic, []byte(rec.Payload)); err != nil {
			return sent, fmt.Errorf("line %d: %w", reader.Line(), err)
		}
		sent++
	}
}

// finish waits out the grace period, then disconnects the session.
func (p *Player) finish(ctx context.Context, sent int) error {
	if err := sleep(ctx, p.grace); err != nil {
		return err
	}

	p.logger.Info("messages sent", "count", sent)
	p.sess.Disconnect()
	return nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
