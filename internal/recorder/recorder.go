package recorder

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/nerrad567/mqtt-recorder/internal/dispatch"
	"github.com/nerrad567/mqtt-recorder/internal/recordlog"
)

// filePermissions is the mode for a newly created output file.
const filePermissions = 0644

// Mirror receives a copy of every recorded message.
// *archive.Store and *influxdb.Client satisfy it.
type Mirror interface {
	WriteMessage(at time.Time, topic string, payload []byte, qos byte, retained bool) error
	Close() error
}

// Logger is the logging interface used by the recorder.
type Logger interface {
	Warn(msg string, args ...any)
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithMirror adds a mirror. Mirrors are closed with the recorder, and also
// when Open fails.
func WithMirror(m Mirror) Option {
	return func(r *Recorder) {
		r.mirrors = append(r.mirrors, m)
	}
}

// WithLogger sets the logger for mirror failures.
func WithLogger(logger Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithClock replaces the wall clock used to timestamp records.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// WithLegacyFormat writes unescaped records without the format header, for
// consumers that only understand the original three-field layout.
func WithLegacyFormat() Option {
	return func(r *Recorder) {
		r.legacy = true
	}
}

// Recorder writes messages to a log file.
type Recorder struct {
	path    string
	file    *os.File
	w       *recordlog.Writer
	mirrors []Mirror
	logger  Logger
	now     func() time.Time
	legacy  bool
	closed  bool

	written atomic.Int64
}

// Open creates or truncates path for writing.
//
// A failure is returned as a *StartupError; any mirrors passed in options
// are closed best-effort before returning.
func Open(path string, opts ...Option) (*Recorder, error) {
	r := &Recorder{
		path: path,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePermissions)
	if err != nil {
		r.closeMirrors() //nolint:errcheck // Best effort cleanup on error path
		return nil, &StartupError{Path: path, Err: err}
	}

	r.file = f
	if r.legacy {
		r.w = recordlog.NewLegacyWriter(f)
	} else {
		r.w = recordlog.NewWriter(f)
	}
	return r, nil
}

// Kind implements dispatch.Handler.
func (*Recorder) Kind() dispatch.Kind { return dispatch.KindDump }

// Handle appends msg to the log, stamped with the current time, flushes it
// to the file and copies it to every mirror. The returned error joins the
// mirror failures; a mirror failure does not undo the file write.
func (r *Recorder) Handle(msg dispatch.Message) error {
	if r.closed {
		return ErrClosed
	}

	at := r.now()
	rec := recordlog.Record{
		Time:    at,
		Topic:   msg.Topic,
		Payload: string(msg.Payload),
	}
	if err := r.w.Write(rec); err != nil {
		return fmt.Errorf("recording %q: %w", msg.Topic, err)
	}
	if err := r.w.Flush(); err != nil {
		return fmt.Errorf("recording %q: %w", msg.Topic, err)
	}
	r.written.Add(1)

	var errs []error
	for _, m := range r.mirrors {
		if err := m.WriteMessage(at, msg.Topic, msg.Payload, msg.QoS, msg.Retained); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Count returns the number of records written. It is safe to call from any
// goroutine.
func (r *Recorder) Count() int64 {
	return r.written.Load()
}

// Path returns the output file path.
func (r *Recorder) Path() string {
	return r.path
}

// Close flushes and closes the output file and every mirror.
// Calling Close more than once is a no-op.
func (r *Recorder) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	if err := r.w.Flush(); err != nil {
		errs = append(errs, err)
	}
	if err := r.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing %s: %w", r.path, err))
	}
	if err := r.closeMirrors(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r *Recorder) closeMirrors() error {
	var errs []error
	for _, m := range r.mirrors {
		if err := m.Close(); err != nil {
			if r.logger != nil {
				r.logger.Warn("closing mirror failed", "error", err)
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
