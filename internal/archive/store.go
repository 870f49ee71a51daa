package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/mqtt-recorder/internal/infrastructure/database"
	"github.com/nerrad567/mqtt-recorder/internal/recordlog"
	"github.com/nerrad567/mqtt-recorder/internal/topic"
	"github.com/nerrad567/mqtt-recorder/migrations"
)

// writeTimeout bounds a single insert.
const writeTimeout = 5 * time.Second

const insertMessage = `
	INSERT INTO mqtt_messages (received_at, topic, payload, qos, retained)
	VALUES (?, ?, ?, ?, ?)`

// recentPageSize is how many rows Recent reads per query for a wildcard filter.
var recentPageSize = 1000

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("archive: closed")

// Store is an SQLite-backed message archive.
//
// WriteMessage is called from the session loop only; Each and Count may run
// concurrently with it.
type Store struct {
	db     *database.DB
	insert *sql.Stmt
}

// Open opens (creating if needed) the archive database and applies the
// embedded schema migrations.
func Open(ctx context.Context, cfg database.Config) (*Store, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}

	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("migrating archive: %w", err)
	}

	insert, err := db.PrepareContext(ctx, insertMessage)
	if err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("preparing archive insert: %w", err)
	}

	return &Store{db: db, insert: insert}, nil
}

// WriteMessage inserts one message.
func (s *Store) WriteMessage(at time.Time, topic string, payload []byte, qos byte, retained bool) error {
	if s.insert == nil {
		return ErrClosed
	}
	if payload == nil {
		payload = []byte{}
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if _, err := s.insert.ExecContext(ctx, at.UnixMicro(), topic, payload, int(qos), retained); err != nil {
		return fmt.Errorf("archiving message on %q: %w", topic, err)
	}
	return nil
}

// Count returns the number of archived messages.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM mqtt_messages").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting archived messages: %w", err)
	}
	return n, nil
}

// Message is one archived message.
type Message struct {
	ReceivedAt time.Time `json:"received_at"`
	Topic      string    `json:"topic"`
	Payload    string    `json:"payload"`
	QoS        byte      `json:"qos"`
	Retained   bool      `json:"retained"`
}

// Recent returns up to limit messages whose topic matches pattern, newest
// first. An empty pattern matches every topic.
func (s *Store) Recent(ctx context.Context, pattern string, limit int) ([]Message, error) {
	if limit <= 0 {
		return nil, nil
	}

	const cols = "SELECT id, received_at, topic, payload, qos, retained FROM mqtt_messages"
	switch {
	case pattern == "" || pattern == "#":
		msgs, _, err := s.scanRecent(ctx, "", limit,
			cols+" ORDER BY received_at DESC, id DESC LIMIT ?", limit)
		return msgs, err
	case !topic.HasWildcard(pattern):
		msgs, _, err := s.scanRecent(ctx, "", limit,
			cols+" WHERE topic = ? ORDER BY received_at DESC, id DESC LIMIT ?", pattern, limit)
		return msgs, err
	}

	// Wildcards are filtered here; SQL LIKE has no level semantics. Pages walk
	// backwards from the newest row until limit matches are found.
	msgs, last, err := s.scanRecent(ctx, pattern, limit,
		cols+" ORDER BY received_at DESC, id DESC LIMIT ?", recentPageSize)
	for err == nil && len(msgs) < limit && last.rows == recentPageSize {
		var more []Message
		more, last, err = s.scanRecent(ctx, pattern, limit-len(msgs),
			cols+" WHERE received_at < ? OR (received_at = ? AND id < ?) ORDER BY received_at DESC, id DESC LIMIT ?",
			last.micros, last.micros, last.id, recentPageSize)
		msgs = append(msgs, more...)
	}
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// pageEnd is the position of the last row a page scanned.
type pageEnd struct {
	rows   int
	id     int64
	micros int64
}

// scanRecent runs query and keeps up to limit rows matching pattern.
func (s *Store) scanRecent(ctx context.Context, pattern string, limit int, query string, args ...any) ([]Message, pageEnd, error) {
	var end pageEnd

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, end, fmt.Errorf("querying recent messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var (
			m        Message
			payload  []byte
			qos      int
			retained bool
		)
		if err := rows.Scan(&end.id, &end.micros, &m.Topic, &payload, &qos, &retained); err != nil {
			return nil, end, fmt.Errorf("scanning archived message: %w", err)
		}
		end.rows++
		if len(msgs) == limit || (pattern != "" && !topic.Matches(pattern, m.Topic)) {
			continue
		}
		m.ReceivedAt = time.UnixMicro(end.micros)
		m.Payload = string(payload)
		m.QoS = byte(qos) // #nosec G115 -- CHECK constraint keeps 0..2
		m.Retained = retained
		msgs = append(msgs, m)
	}

	if err := rows.Err(); err != nil {
		return nil, end, fmt.Errorf("iterating archive: %w", err)
	}
	return msgs, end, nil
}

// Each calls fn for every archived message in receive order.
// Iteration stops at the first error from fn, which is returned.
func (s *Store) Each(ctx context.Context, fn func(recordlog.Record) error) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT received_at, topic, payload FROM mqtt_messages ORDER BY received_at, id")
	if err != nil {
		return fmt.Errorf("querying archive: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			micros  int64
			topic   string
			payload []byte
		)
		if err := rows.Scan(&micros, &topic, &payload); err != nil {
			return fmt.Errorf("scanning archived message: %w", err)
		}

		rec := recordlog.Record{
			Time:    time.UnixMicro(micros),
			Topic:   topic,
			Payload: string(payload),
		}
		if err := fn(rec); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating archive: %w", err)
	}
	return nil
}

// Export writes every archived message to w in receive order and returns
// the number of records written.
func (s *Store) Export(ctx context.Context, w *recordlog.Writer) (int, error) {
	if err := s.Each(ctx, w.Write); err != nil {
		return w.Count(), err
	}
	if err := w.Flush(); err != nil {
		return w.Count(), err
	}
	return w.Count(), nil
}

// Close releases the prepared statement and the database. It is idempotent.
func (s *Store) Close() error {
	if s.insert == nil {
		return nil
	}

	stmtErr := s.insert.Close()
	s.insert = nil

	return errors.Join(stmtErr, s.db.Close())
}
